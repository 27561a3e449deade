package live

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// exposureLedger is the process-wide exposure bookkeeping. Markets are
// evaluated concurrently, so every placement is re-admitted here under one
// lock before it reaches the gateway.
type exposureLedger struct {
	mu          sync.Mutex
	orders      map[string]decimal.Decimal // orderID -> remaining notional
	pending     decimal.Decimal            // admitted, not yet acknowledged
	positions   decimal.Decimal
	unconfirmed map[string]decimal.Decimal // marketID -> fills since snapshot
}

func newExposureLedger() *exposureLedger {
	return &exposureLedger{
		orders:      make(map[string]decimal.Decimal),
		unconfirmed: make(map[string]decimal.Decimal),
	}
}

func (l *exposureLedger) viewLocked() domain.ExposureView {
	open := l.pending
	for _, n := range l.orders {
		open = open.Add(n)
	}
	unconfirmed := decimal.Zero
	for _, n := range l.unconfirmed {
		unconfirmed = unconfirmed.Add(n)
	}
	return domain.ExposureView{
		OpenOrderRemainingNotional: open,
		OpenPositionNotional:       l.positions,
		UnconfirmedFillNotional:    unconfirmed,
	}
}

// view returns the current aggregate exposure.
func (l *exposureLedger) view() domain.ExposureView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.viewLocked()
}

// admit reserves notional when it fits under limit. capped=false admits
// unconditionally.
func (l *exposureLedger) admit(notional, limit decimal.Decimal, capped bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if capped && l.viewLocked().Total().Add(notional).GreaterThan(limit) {
		return false
	}
	l.pending = l.pending.Add(notional)
	return true
}

// commit turns a reservation into a tracked open order.
func (l *exposureLedger) commit(orderID string, notional decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = l.pending.Sub(notional)
	l.orders[orderID] = notional
}

// release drops a reservation whose placement failed.
func (l *exposureLedger) release(notional decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = l.pending.Sub(notional)
}

// setOrder updates the remaining notional of a tracked order.
func (l *exposureLedger) setOrder(orderID string, remaining decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.orders[orderID]; ok {
		l.orders[orderID] = remaining
	}
}

func (l *exposureLedger) removeOrder(orderID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.orders, orderID)
}

func (l *exposureLedger) setPositions(notional decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = notional
}

func (l *exposureLedger) setUnconfirmed(marketID string, notional decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if notional.IsZero() {
		delete(l.unconfirmed, marketID)
		return
	}
	l.unconfirmed[marketID] = notional
}

func (l *exposureLedger) dropMarket(marketID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.unconfirmed, marketID)
}
