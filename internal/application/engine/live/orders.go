package live

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// pollTarget is an order picked for a status poll.
type pollTarget struct {
	st       *marketState
	order    domain.RestingOrder
	settling bool
}

// PollOrders polls every resting order whose last poll is older than the
// poll interval, and every canceled order whose final matched size has not
// been read yet. It applies fill deltas to inventory and exposure, drops
// terminal orders and cancels orders older than the stale timeout.
// Gateway calls run without the market lock, each under its own timeout;
// results are applied under the lock.
func (e *Engine) PollOrders(ctx context.Context) {
	now := e.now()
	var targets []pollTarget
	for _, st := range e.snapshotMarkets() {
		st.mu.Lock()
		for _, o := range st.unsettled() {
			targets = append(targets, pollTarget{st: st, order: o, settling: true})
		}
		for _, o := range st.orders {
			if o != nil && now.Sub(o.LastPolledAt) >= e.cfg.PollInterval {
				targets = append(targets, pollTarget{st: st, order: *o})
			}
		}
		st.mu.Unlock()
	}

	for _, t := range targets {
		if ctx.Err() != nil {
			return
		}
		pctx, cancel := context.WithTimeout(ctx, e.cfg.PollInterval)
		status, err := e.gateway.PollOrderStatus(pctx, t.order.OrderID)
		cancel()
		if err != nil {
			slog.Warn("live: error polling order", "market", t.st.market.Slug, "order", t.order.OrderID, "err", err)
			if t.settling {
				e.abandonSettle(t.st, t.order.OrderID)
			}
			continue
		}
		e.applyStatus(ctx, t.st, t.order.OrderID, status, t.settling)
	}
}

// abandonSettle gives up on reading a canceled order's final fills. The
// next positions refresh is forced so the snapshot picks them up.
func (e *Engine) abandonSettle(st *marketState, orderID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.settling, orderID)
	e.fillsSinceSnapshot.Add(1)
}

// applyStatus applies one poll result. final marks a status read after the
// order was canceled.
func (e *Engine) applyStatus(ctx context.Context, st *marketState, orderID string, status domain.OrderStatus, final bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	o, working := st.lookup(orderID)
	if o == nil {
		return
	}
	// A cancel may have landed since the order was picked. Its fills
	// still count.
	e.exec.absorb(st, o, status.FilledSize)
	if !working {
		if final {
			delete(st.settling, orderID)
		}
		return
	}
	now := e.now()
	o.LastPolledAt = now

	if status.Terminal(o.Size) {
		slog.Info("live: order closed",
			"market", st.market.Slug, "leg", o.Outcome, "order", o.OrderID,
			"status", status.RawStatus, "matched", o.Matched.StringFixed(2))
		st.retire(o.Outcome)
		e.ledger.removeOrder(orderID)
		return
	}

	if e.cfg.StaleOrderTimeout > 0 && o.Age(now) >= e.cfg.StaleOrderTimeout {
		_ = e.exec.cancel(ctx, st, o.Outcome, domain.CancelStaleTimeout, st.market.SecondsToEnd(now))
	}
}
