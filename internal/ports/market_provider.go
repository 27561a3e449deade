package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// MarketSource descubre las instancias Up/Down activas.
type MarketSource interface {
	// ActiveMarkets devuelve las instancias que están vivas o a punto de
	// empezar en now. Las cerradas no se incluyen.
	ActiveMarkets(ctx context.Context, now time.Time) ([]domain.MarketInstance, error)
}

// TickSizeProvider devuelve el tick mínimo de precio de un token.
type TickSizeProvider interface {
	TickSize(ctx context.Context, tokenID string) (decimal.Decimal, error)
}

// PositionsProvider devuelve las posiciones liquidadas de la cuenta.
type PositionsProvider interface {
	PositionsSnapshot(ctx context.Context, account string) (domain.PositionsSnapshot, error)
}
