package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
	"github.com/alejandrodnm/updownmm/internal/domain/quoting"
	"github.com/alejandrodnm/updownmm/internal/ports"
)

// executor applies the actions of one Decision against the gateway.
// The caller holds the market lock.
type executor struct {
	runID   string
	gateway ports.OrderGateway
	ledger  *exposureLedger
	records *recordQueue
	metrics ports.Metrics
	caps    quoting.Caps
	now     func() time.Time

	// fills counts fills since the last positions snapshot.
	fills *atomic.Int64
}

// execResult counts what one apply call did.
type execResult struct {
	placed, canceled, failed, skipped int
}

func (x *executor) apply(ctx context.Context, st *marketState, d quoting.Decision) execResult {
	var res execResult
	var cancelFailed [2]bool

	for _, a := range d.Actions {
		switch a.Kind {
		case quoting.ActionCancel:
			if err := x.cancel(ctx, st, a.Outcome, a.CancelReason, d.Trace.SecondsToEnd); err != nil {
				cancelFailed[a.Outcome] = true
				res.failed++
				continue
			}
			res.canceled++

		case quoting.ActionPlace:
			if cancelFailed[a.Outcome] || st.orders[a.Outcome] != nil {
				// single order per token: never place over a working order
				slog.Warn("live: placement skipped, leg still has a working order",
					"market", st.market.Slug, "leg", a.Outcome, "reason", a.Request.Reason)
				res.skipped++
				continue
			}
			if err := x.place(ctx, st, a, d.Trace.SecondsToEnd); err != nil {
				res.failed++
				continue
			}
			res.placed++
		}
	}
	return res
}

// cancel cancels the resting order of one leg. On failure the order stays
// tracked so no second order can be placed on the token.
func (x *executor) cancel(ctx context.Context, st *marketState, o domain.Outcome, reason domain.CancelReason, secondsToEnd int64) error {
	existing := st.orders[o]
	if existing == nil {
		return nil
	}
	now := x.now()
	err := x.gateway.CancelOrder(ctx, existing.OrderID)

	ev := x.event(st, domain.OrderEventCancel, string(reason), existing.TokenID, o, secondsToEnd, now)
	ev.OrderID = existing.OrderID
	ev.Price = existing.Price
	ev.Size = existing.Remaining()
	ev.OrderAge = existing.Age(now)
	ev.Success = err == nil
	if err != nil {
		ev.Error = err.Error()
	}
	x.record(ev)
	x.metrics.OrderAction(domain.OrderEventCancel, string(reason), err == nil)

	if err != nil {
		slog.Warn("live: cancel failed",
			"market", st.market.Slug, "leg", o, "order", existing.OrderID, "reason", reason, "err", err)
		return fmt.Errorf("live.cancel %s: %w", existing.OrderID, err)
	}

	slog.Info("live: order canceled",
		"market", st.market.Slug,
		"leg", o,
		"order", existing.OrderID,
		"price", existing.Price.StringFixed(2),
		"reason", reason,
		"age", existing.Age(now).Round(time.Millisecond),
	)
	// fills between the last poll and the cancel are read by the next poll
	st.retire(o)
	st.settling[existing.OrderID] = true
	x.ledger.removeOrder(existing.OrderID)
	return nil
}

// absorb applies the part of filled not yet seen for o to inventory,
// exposure and the top-up state. Caller holds st.mu.
func (x *executor) absorb(st *marketState, o *domain.RestingOrder, filled decimal.Decimal) {
	delta := filled.Sub(o.Matched)
	if !delta.IsPositive() {
		return
	}
	fill := domain.Fill{
		OrderID:  o.OrderID,
		MarketID: st.market.ID,
		TokenID:  o.TokenID,
		Outcome:  o.Outcome,
		Price:    o.Price,
		Size:     delta,
		// Stamped when observed. A snapshot taken between execution and
		// this poll keeps the fill on top of a baseline that already has
		// it: holdings are overstated until the next refresh, never
		// understated.
		At: x.now(),
	}
	o.Matched = filled
	st.inv.ApplyFill(fill)
	st.topUp.RecordFill(fill)
	x.ledger.setOrder(o.OrderID, o.RemainingNotional())
	x.ledger.setUnconfirmed(st.market.ID, st.inv.UnconfirmedNotional())
	x.fills.Add(1)

	x.records.fill(fill)
	x.metrics.FillObserved(st.market.Series, o.Outcome, delta.InexactFloat64())
	x.metrics.SetImbalance(st.market.Slug, st.inv.Imbalance().InexactFloat64())
	slog.Info("live: FILL",
		"market", st.market.Slug,
		"leg", o.Outcome,
		"order", o.OrderID,
		"shares", delta.StringFixed(2),
		"price", o.Price.StringFixed(2),
		"matched", o.Matched.StringFixed(2)+"/"+o.Size.StringFixed(2),
		"imbalance", st.inv.Imbalance().StringFixed(2),
	)
}

func (x *executor) place(ctx context.Context, st *marketState, a quoting.Action, secondsToEnd int64) error {
	req := a.Request
	req.ClientID = uuid.NewString()
	notional := req.Notional()
	limit, capped := x.caps.TotalLimit()
	now := x.now()

	ev := x.event(st, domain.OrderEventPlace, string(req.Reason), req.TokenID, a.Outcome, secondsToEnd, now)
	ev.Price = req.Price
	ev.Size = req.Size
	if a.Replaces != nil {
		ev.ReplacedID = a.Replaces.OrderID
		ev.ReplacedPrice = a.Replaces.Price
		ev.ReplacedSize = a.Replaces.Size
		ev.OrderAge = a.Replaces.Age(now)
	}

	if !x.ledger.admit(notional, limit, capped) {
		x.metrics.MarketSkipped("total_cap")
		slog.Warn("live: placement exceeds total cap after admission",
			"market", st.market.Slug,
			"leg", a.Outcome,
			"notional", fmt.Sprintf("$%.2f", notional.InexactFloat64()),
			"limit", fmt.Sprintf("$%.2f", limit.InexactFloat64()),
		)
		return errTotalCap
	}

	placed, err := x.gateway.PlaceLimitOrder(ctx, req)
	if err == nil && placed.OrderID == "" {
		err = domain.ErrNoOrderID
	}
	if err != nil {
		x.ledger.release(notional)
		ev.Error = err.Error()
		x.record(ev)
		x.metrics.OrderAction(domain.OrderEventPlace, string(req.Reason), false)
		if domain.Rejected(err) {
			slog.Warn("live: placement rejected", "market", st.market.Slug, "leg", a.Outcome, "err", err)
		} else {
			slog.Warn("live: placement failed", "market", st.market.Slug, "leg", a.Outcome, "err", err)
		}
		return fmt.Errorf("live.place %s: %w", req.TokenID, err)
	}

	x.ledger.commit(placed.OrderID, notional)
	st.orders[a.Outcome] = &domain.RestingOrder{
		OrderID:  placed.OrderID,
		ClientID: req.ClientID,
		MarketID: st.market.ID,
		TokenID:  req.TokenID,
		Outcome:  a.Outcome,
		Side:     req.Side,
		Price:    req.Price,
		Size:     req.Size,
		Matched:  decimal.Zero,
		PlacedAt: now,
		Reason:   req.Reason,
	}
	if req.Reason == domain.PlaceTopUp || req.Reason == domain.PlaceFastTopUp {
		st.topUp.LastTopUpAt = now
	}

	ev.OrderID = placed.OrderID
	ev.Success = true
	x.record(ev)
	x.metrics.OrderAction(domain.OrderEventPlace, string(req.Reason), true)

	slog.Info("live: order placed",
		"market", st.market.Slug,
		"leg", a.Outcome,
		"order", placed.OrderID,
		"price", req.Price.StringFixed(2),
		"size", req.Size.StringFixed(2),
		"notional", fmt.Sprintf("$%.2f", notional.InexactFloat64()),
		"reason", req.Reason,
		"secondsToEnd", secondsToEnd,
	)
	return nil
}

var errTotalCap = errors.New("total exposure cap reached")

func (x *executor) event(st *marketState, kind domain.OrderEventKind, reason, tokenID string, o domain.Outcome, secondsToEnd int64, at time.Time) domain.OrderEvent {
	return domain.OrderEvent{
		RunID:        x.runID,
		Kind:         kind,
		Reason:       reason,
		MarketID:     st.market.ID,
		Slug:         st.market.Slug,
		TokenID:      tokenID,
		Outcome:      o,
		SecondsToEnd: secondsToEnd,
		At:           at,
	}
}

func (x *executor) record(ev domain.OrderEvent) {
	x.records.orderEvent(ev)
}
