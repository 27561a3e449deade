package ports

import (
	"context"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// OrderGateway places, cancels, and polls limit orders on the CLOB.
type OrderGateway interface {
	// PlaceLimitOrder signs and submits a GTC limit order.
	PlaceLimitOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error)

	// CancelOrder cancels a specific order by its CLOB order ID.
	CancelOrder(ctx context.Context, orderID string) error

	// PollOrderStatus returns the exchange view of one order.
	PollOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error)
}

// OpenOrderLister returns the orders currently resting for this wallet.
// Used once at startup to find orders the engine does not own.
type OpenOrderLister interface {
	OpenOrders(ctx context.Context) ([]domain.RestingOrder, error)
}

// KillSwitch reports whether new placements are blocked. Cancels are never
// blocked by it.
type KillSwitch interface {
	KillSwitchEngaged() (bool, string)
}
