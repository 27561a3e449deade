package quoting

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// TopUpInput is the state the top-up controller reads.
type TopUpInput struct {
	Now          time.Time
	SecondsToEnd int64
	Imbalance    decimal.Decimal
	Books        BookCheck
	State        domain.TopUpState
}

// TopUpPlan is a taker order on the lagging leg.
type TopUpPlan struct {
	Reason  domain.PlaceReason
	Lagging domain.Outcome
	Price   decimal.Decimal
	Size    decimal.Decimal
	Detail  string
}

// LaggingLeg returns the leg with fewer shares, false when balanced.
func LaggingLeg(imbalance decimal.Decimal) (domain.Outcome, bool) {
	switch imbalance.Sign() {
	case 1:
		return domain.OutcomeDown, true
	case -1:
		return domain.OutcomeUp, true
	}
	return domain.OutcomeUp, false
}

// EvaluateTopUp decides whether to cross the spread on the lagging leg.
// End-of-market top-up wins over the fast top-up when both qualify.
func EvaluateTopUp(in TopUpInput, p Params) (TopUpPlan, bool, string) {
	lagging, ok := LaggingLeg(in.Imbalance)
	if !ok {
		return TopUpPlan{}, false, "balanced"
	}
	abs := in.Imbalance.Abs()
	book := in.Books.Book(lagging)
	if book.Spread().GreaterThan(p.TakerModeMaxSpread) {
		return TopUpPlan{}, false, fmt.Sprintf("%s spread %s above %s", lagging, book.Spread(), p.TakerModeMaxSpread)
	}

	if book.BestAsk.GreaterThan(p.MaxPrice) {
		return TopUpPlan{}, false, fmt.Sprintf("%s ask %s above %s", lagging, book.BestAsk, p.MaxPrice)
	}

	plan := TopUpPlan{Lagging: lagging, Price: book.BestAsk, Size: abs}

	if p.TopUp.Enabled && in.SecondsToEnd <= p.TopUp.SecondsToEnd && abs.GreaterThanOrEqual(p.TopUp.MinShares) {
		plan.Reason = domain.PlaceTopUp
		plan.Detail = fmt.Sprintf("end-of-market: secondsToEnd=%d imbalance=%s", in.SecondsToEnd, in.Imbalance)
		return plan, true, plan.Detail
	}

	if !p.FastTopUp.Enabled {
		return TopUpPlan{}, false, "no trigger"
	}
	if abs.LessThan(p.FastTopUp.MinShares) {
		return TopUpPlan{}, false, fmt.Sprintf("imbalance %s below %s", abs, p.FastTopUp.MinShares)
	}
	if last := in.State.LastTopUpAt; !last.IsZero() && in.Now.Sub(last) < p.FastTopUp.Cooldown {
		return TopUpPlan{}, false, fmt.Sprintf("cooldown %s left", (p.FastTopUp.Cooldown - in.Now.Sub(last)).Round(time.Millisecond))
	}
	leadAt, leadPrice, ok := in.State.LastFill(lagging.Other())
	if !ok {
		return TopUpPlan{}, false, "no lead fill"
	}
	since := in.Now.Sub(leadAt)
	if since < p.FastTopUp.MinAfterFill || since > p.FastTopUp.MaxAfterFill {
		return TopUpPlan{}, false, fmt.Sprintf("lead fill %s ago outside [%s,%s]", since.Round(time.Millisecond), p.FastTopUp.MinAfterFill, p.FastTopUp.MaxAfterFill)
	}
	hedged := Edge(leadPrice, book.BestAsk)
	if hedged.LessThan(p.FastTopUp.MinEdge) {
		return TopUpPlan{}, false, fmt.Sprintf("hedged edge %s below %s", hedged, p.FastTopUp.MinEdge)
	}

	plan.Reason = domain.PlaceFastTopUp
	plan.Detail = fmt.Sprintf("fast: lead fill %s ago at %s, hedged edge %s", since.Round(time.Millisecond), leadPrice, hedged)
	return plan, true, plan.Detail
}
