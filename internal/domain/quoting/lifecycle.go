package quoting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// LegDecision is what the lifecycle manager wants to do with one token.
type LegDecision int

const (
	LegHold LegDecision = iota
	LegPlace
	LegReplace
)

func (d LegDecision) String() string {
	switch d {
	case LegPlace:
		return "place"
	case LegReplace:
		return "replace"
	default:
		return "hold"
	}
}

// ReconcileLeg compares the resting order on a token with the desired quote.
// A differing order younger than throttle is left alone.
func ReconcileLeg(existing *domain.RestingOrder, price, size decimal.Decimal, now time.Time, throttle time.Duration) (LegDecision, domain.CancelReason) {
	if existing == nil {
		return LegPlace, ""
	}
	if existing.Age(now) < throttle {
		return LegHold, ""
	}

	samePrice := existing.Price.Equal(price)
	sameSize := existing.Size.Equal(size)
	switch {
	case samePrice && sameSize:
		return LegHold, ""
	case !samePrice && !sameSize:
		return LegReplace, domain.CancelReplacePriceAndSize
	case !samePrice:
		return LegReplace, domain.CancelReplacePrice
	default:
		return LegReplace, domain.CancelReplaceSize
	}
}
