package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TopOfBook es el mejor nivel de cada lado de un token tal como lo reporta el feed.
// La ausencia de lectura se modela con *TopOfBook nil, nunca con ceros.
type TopOfBook struct {
	TokenID     string
	BestBid     decimal.Decimal
	BestAsk     decimal.Decimal
	BestBidSize decimal.Decimal
	BestAskSize decimal.Decimal
	UpdatedAt   time.Time
}

// Mid devuelve (bid + ask) / 2.
func (b TopOfBook) Mid() decimal.Decimal {
	return b.BestBid.Add(b.BestAsk).Div(decimal.NewFromInt(2))
}

// Spread devuelve ask - bid.
func (b TopOfBook) Spread() decimal.Decimal {
	return b.BestAsk.Sub(b.BestBid)
}

// Age devuelve el tiempo transcurrido desde la última actualización.
func (b TopOfBook) Age(now time.Time) time.Duration {
	return now.Sub(b.UpdatedAt)
}

// Complete devuelve true si ambos lados tienen precio.
func (b TopOfBook) Complete() bool {
	return b.BestBid.IsPositive() && b.BestAsk.IsPositive()
}
