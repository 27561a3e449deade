package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// StatusNotifier presenta el estado de los mercados seguidos al operador.
type StatusNotifier interface {
	// NotifyStatus muestra una fila por mercado.
	// En la implementación de consola, imprime una tabla formateada.
	NotifyStatus(ctx context.Context, markets []domain.MarketStatus) error
}

// Metrics recibe los contadores operativos del engine.
type Metrics interface {
	ObserveTick(d time.Duration)
	MarketSkipped(reason string)
	DecisionMade(series domain.Series, phase domain.Phase)
	OrderAction(kind domain.OrderEventKind, reason string, ok bool)
	FillObserved(series domain.Series, outcome domain.Outcome, shares float64)
	InvariantViolation(kind string)
	SetExposure(usd float64)
	SetImbalance(slug string, shares float64)
	MarketReleased(slug string)
	SetTrackedMarkets(n int)
}
