package quoting

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// ActionKind is the effect an Action asks the executor to perform.
type ActionKind int

const (
	ActionCancel ActionKind = iota
	ActionPlace
)

// Action is one order effect emitted by Evaluate. Cancels always precede the
// placement on the same token.
type Action struct {
	Kind         ActionKind
	Outcome      domain.Outcome
	TokenID      string
	OrderID      string // cancel target
	CancelReason domain.CancelReason
	Request      domain.PlaceOrderRequest
	Replaces     *domain.RestingOrder
}

func (a Action) String() string {
	if a.Kind == ActionCancel {
		return fmt.Sprintf("cancel %s %s (%s)", a.Outcome, a.OrderID, a.CancelReason)
	}
	return fmt.Sprintf("place %s %s %s@%s (%s)", a.Outcome, a.Request.Type, a.Request.Size, a.Request.Price, a.Request.Reason)
}

// Input is everything Evaluate needs for one market at one instant.
type Input struct {
	RunID     string
	Market    domain.MarketInstance
	Now       time.Time
	Up        *domain.TopOfBook
	Down      *domain.TopOfBook
	TickSizes [2]decimal.Decimal
	Seeded    bool
	Imbalance decimal.Decimal
	TopUp     domain.TopUpState
	Orders    [2]*domain.RestingOrder
	Exposure  domain.ExposureView

	// Halted is set while the kill switch blocks placements. A resting
	// order is never canceled to make room for an order that cannot be
	// placed; exit cancels still go through.
	Halted     bool
	HaltReason string
}

// Decision is the result of Evaluate.
type Decision struct {
	Actions    []Action
	Trace      domain.DecisionTrace
	Phase      domain.Phase
	TopUp      *TopUpPlan
	Violations []string
}

// Evaluate runs the gates and pricing for one market and returns the order
// actions to apply. It performs no I/O.
func Evaluate(in Input, p Params) (d Decision) {
	d = Decision{
		Trace: domain.DecisionTrace{
			RunID:     in.RunID,
			MarketID:  in.Market.ID,
			Slug:      in.Market.Slug,
			Series:    in.Market.Series,
			At:        in.Now,
			Imbalance: in.Imbalance,
			Exposure:  in.Exposure.Total(),
		},
	}
	defer d.finish()

	// 1. Scope
	wc := CheckWindow(in.Market, in.Now, p)
	d.Trace.SecondsToEnd = wc.SecondsToEnd
	d.Trace.AddGate(domain.GateWindow, wc.InScope, wc.Detail)
	if !wc.InScope {
		d.Phase = domain.PhaseOutOfScope
		if in.Market.Expired(in.Now) {
			d.Phase = domain.PhaseExpired
		}
		d.cancelAll(in, wc.Reason)
		return d
	}

	// 2. Inventory must be rehydrated before anything is quoted
	d.Trace.AddGate(domain.GateInventory, in.Seeded, fmt.Sprintf("seeded=%t imbalance=%s", in.Seeded, in.Imbalance))
	if !in.Seeded {
		d.Phase = domain.PhaseOutOfScope
		return d
	}

	// 3. Fresh two-sided books on both legs
	books := CheckBooks(in.Up, in.Down, in.Now, p.StaleAfter)
	d.Trace.AddGate(domain.GateBook, books.OK, books.Detail)
	if !books.OK {
		d.Phase = domain.PhaseOutOfScope
		d.cancelAll(in, domain.CancelBookStale)
		return d
	}

	edge := Edge(books.Up.BestBid, books.Down.BestBid)
	d.Trace.Edge = edge

	exposure := in.Exposure
	var handled [2]bool

	// 4. Top-up runs independently of the edge gate
	if plan, ok, detail := EvaluateTopUp(TopUpInput{
		Now:          in.Now,
		SecondsToEnd: wc.SecondsToEnd,
		Imbalance:    in.Imbalance,
		Books:        books,
		State:        in.TopUp,
	}, p); ok {
		if d.applyTopUp(in, p, plan, &exposure) {
			handled[plan.Lagging] = true
		}
	} else {
		d.Trace.TopUp = detail
	}

	// 5. Edge
	edgeOK := EdgeOK(edge, p.MinEdge)
	d.Trace.AddGate(domain.GateEdge, edgeOK, fmt.Sprintf("edge=%s min=%s", edge, p.MinEdge))
	if !edgeOK {
		d.Phase = domain.PhaseNoEdge
		for _, o := range domain.Outcomes {
			if !handled[o] {
				d.cancelLeg(in, o, domain.CancelInsufficientEdge)
			}
		}
		return d
	}
	d.Phase = domain.PhaseQuoting

	// 6. Quote both legs
	taker := p.Taker.Enabled &&
		edge.LessThan(p.Taker.MaxEdge) &&
		books.Up.Spread().LessThanOrEqual(p.Taker.MaxSpread) &&
		books.Down.Spread().LessThanOrEqual(p.Taker.MaxSpread)
	if p.Taker.Enabled {
		d.Trace.AddGate(domain.GateTaker, taker, fmt.Sprintf("edge=%s maxEdge=%s maxSpread=%s", edge, p.Taker.MaxEdge, p.Taker.MaxSpread))
	}

	skewUp, skewDown := SkewTicks(in.Imbalance, p.MaxSkewTicks, p.ImbalanceSharesForMaxSkew)
	skews := [2]int{skewUp, skewDown}

	for _, o := range domain.Outcomes {
		if handled[o] {
			continue
		}
		d.quoteLeg(in, p, o, books.Book(o), skews[o], wc.SecondsToEnd, taker, &exposure)
	}
	return d
}

func (d *Decision) finish() {
	if d.TopUp != nil && d.Phase != domain.PhaseOutOfScope && d.Phase != domain.PhaseExpired {
		d.Phase = domain.PhaseTopUpPending
	}
	d.Trace.Phase = d.Phase
	d.Trace.Actions = make([]string, 0, len(d.Actions))
	for _, a := range d.Actions {
		d.Trace.Actions = append(d.Trace.Actions, a.String())
	}
}

func (d *Decision) cancelAll(in Input, reason domain.CancelReason) {
	for _, o := range domain.Outcomes {
		d.cancelLeg(in, o, reason)
	}
}

func (d *Decision) cancelLeg(in Input, o domain.Outcome, reason domain.CancelReason) {
	existing := in.Orders[o]
	if existing == nil {
		return
	}
	d.Actions = append(d.Actions, Action{
		Kind:         ActionCancel,
		Outcome:      o,
		TokenID:      existing.TokenID,
		OrderID:      existing.OrderID,
		CancelReason: reason,
	})
}

func (d *Decision) applyTopUp(in Input, p Params, plan TopUpPlan, exposure *domain.ExposureView) bool {
	existing := in.Orders[plan.Lagging]
	if existing != nil {
		*exposure = exposure.With(existing.RemainingNotional().Neg())
	}

	sized := ApplyCaps(plan.Size, plan.Price, exposure.Total(), p.Caps, p.MinShares)
	d.Trace.Legs = append(d.Trace.Legs, domain.LegTrace{
		Outcome:       plan.Lagging,
		TokenID:       in.Market.TokenID(plan.Lagging),
		BestAsk:       plan.Price,
		Price:         plan.Price,
		BaseSize:      plan.Size,
		Size:          sized.Size,
		CappedByOrder: sized.CappedByOrder,
		CappedByTotal: sized.CappedByTotal,
		Decision:      string(plan.Reason),
	})
	if !sized.OK {
		d.Trace.TopUp = fmt.Sprintf("%s skipped: %s", plan.Reason, sized.Detail)
		if existing != nil {
			*exposure = exposure.With(existing.RemainingNotional())
		}
		return false
	}

	if in.Halted && existing != nil {
		*exposure = exposure.With(existing.RemainingNotional())
		d.Trace.TopUp = fmt.Sprintf("%s held: %s", plan.Reason, in.HaltReason)
		return false
	}

	plan.Size = sized.Size
	d.TopUp = &plan
	d.Trace.TopUp = plan.Detail

	cancelReason := domain.CancelTopUp
	if existing != nil && existing.Reason.Taker() {
		// A previous top-up is still working: treat it like a quote under the throttle.
		decision, reason := ReconcileLeg(existing, plan.Price, plan.Size, in.Now, p.ReplaceThrottle)
		if decision == LegHold {
			*exposure = exposure.With(existing.RemainingNotional())
			d.Trace.TopUp = plan.Detail + "; resting top-up held"
			return true
		}
		cancelReason = reason
	}
	d.cancelLeg(in, plan.Lagging, cancelReason)
	d.Actions = append(d.Actions, Action{
		Kind:     ActionPlace,
		Outcome:  plan.Lagging,
		TokenID:  in.Market.TokenID(plan.Lagging),
		Replaces: existing,
		Request: domain.PlaceOrderRequest{
			MarketID: in.Market.ID,
			TokenID:  in.Market.TokenID(plan.Lagging),
			Side:     domain.SideBuy,
			Price:    plan.Price,
			Size:     plan.Size,
			Type:     domain.OrderTypeGTC,
			Reason:   plan.Reason,
		},
	})
	*exposure = exposure.With(plan.Price.Mul(plan.Size))
	return true
}

func (d *Decision) quoteLeg(in Input, p Params, o domain.Outcome, book domain.TopOfBook, skew int, secondsToEnd int64, taker bool, exposure *domain.ExposureView) {
	tick := in.TickSizes[o]
	if !tick.IsPositive() {
		tick = p.DefaultTick
	}
	lt := domain.LegTrace{
		Outcome:   o,
		TokenID:   in.Market.TokenID(o),
		BestBid:   book.BestBid,
		BestAsk:   book.BestAsk,
		TickSize:  tick,
		SkewTicks: skew,
	}
	defer func() { d.Trace.Legs = append(d.Trace.Legs, lt) }()

	reason := domain.PlaceQuote
	var price decimal.Decimal
	if taker {
		price = book.BestAsk
		reason = domain.PlaceTaker
	} else {
		var ok bool
		price, ok = MakerPrice(PriceInput{
			Book:         book,
			Tick:         tick,
			ImproveTicks: p.ImproveTicks,
			SkewTicks:    skew,
			WideSpread:   p.WideSpread,
			MinPrice:     p.MinPrice,
			MaxPrice:     p.MaxPrice,
		})
		if !ok {
			lt.Decision = "price aborted"
			return
		}
	}
	lt.Price = price

	base, ok := p.Sizes.BaseSize(in.Market.Series, secondsToEnd)
	if !ok {
		lt.Decision = "no size tier"
		d.Violations = append(d.Violations, fmt.Sprintf("no size table entry for %s at %ds", in.Market.Series, secondsToEnd))
		return
	}
	lt.BaseSize = base

	existing := in.Orders[o]
	sizingExposure := *exposure
	if existing != nil {
		sizingExposure = sizingExposure.With(existing.RemainingNotional().Neg())
	}
	sized := ApplyCaps(base, price, sizingExposure.Total(), p.Caps, p.MinShares)
	lt.Size = sized.Size
	lt.CappedByOrder = sized.CappedByOrder
	lt.CappedByTotal = sized.CappedByTotal
	if !sized.OK {
		lt.Decision = "size skipped: " + sized.Detail
		if sized.CappedByOrder && !sized.CappedByTotal {
			d.Violations = append(d.Violations, fmt.Sprintf("per-order cap forces %s size to zero at price %s", o, price))
		}
		return
	}

	decision, cancelReason := ReconcileLeg(existing, price, sized.Size, in.Now, p.ReplaceThrottle)
	lt.Decision = decision.String()
	switch decision {
	case LegHold:
		return
	case LegReplace:
		if in.Halted {
			lt.Decision = "held: " + in.HaltReason
			return
		}
		d.cancelLeg(in, o, cancelReason)
		if reason == domain.PlaceQuote {
			reason = domain.PlaceReplace
		}
	}

	d.Actions = append(d.Actions, Action{
		Kind:     ActionPlace,
		Outcome:  o,
		TokenID:  in.Market.TokenID(o),
		Replaces: existing,
		Request: domain.PlaceOrderRequest{
			MarketID: in.Market.ID,
			TokenID:  in.Market.TokenID(o),
			Side:     domain.SideBuy,
			Price:    price,
			Size:     sized.Size,
			Type:     domain.OrderTypeGTC,
			Reason:   reason,
		},
	})
	*exposure = sizingExposure.With(price.Mul(sized.Size))
}
