package domain

import "github.com/shopspring/decimal"

// ExposureView is the aggregate notional used for bankroll caps.
// It is derived on demand from its inputs and never stored on its own.
type ExposureView struct {
	OpenOrderRemainingNotional decimal.Decimal
	OpenPositionNotional       decimal.Decimal
	UnconfirmedFillNotional    decimal.Decimal
}

// Total returns the sum of the three components, floored at zero.
func (e ExposureView) Total() decimal.Decimal {
	t := e.OpenOrderRemainingNotional.
		Add(e.OpenPositionNotional).
		Add(e.UnconfirmedFillNotional)
	if t.IsNegative() {
		return decimal.Zero
	}
	return t
}

// With returns a copy with extra open-order notional added.
func (e ExposureView) With(orderNotional decimal.Decimal) ExposureView {
	e.OpenOrderRemainingNotional = e.OpenOrderRemainingNotional.Add(orderNotional)
	return e
}
