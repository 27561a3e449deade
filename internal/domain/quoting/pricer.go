package quoting

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// PriceInput is what the maker pricer needs for one leg.
type PriceInput struct {
	Book         domain.TopOfBook
	Tick         decimal.Decimal
	ImproveTicks int
	SkewTicks    int
	WideSpread   decimal.Decimal
	MinPrice     decimal.Decimal
	MaxPrice     decimal.Decimal
}

// MakerPrice computes the BUY entry for one leg. It never returns a price at
// or through the best ask; ok is false when the leg must not be quoted.
func MakerPrice(in PriceInput) (decimal.Decimal, bool) {
	tick := in.Tick
	if !tick.IsPositive() {
		return decimal.Zero, false
	}
	bid, ask := in.Book.BestBid, in.Book.BestAsk
	mid := in.Book.Mid()
	spread := in.Book.Spread()

	var entry decimal.Decimal
	if spread.GreaterThanOrEqual(in.WideSpread) {
		// Wide book: a penny bid is not a reference, anchor on mid instead.
		ticks := max(0, in.ImproveTicks-in.SkewTicks)
		entry = mid.Sub(tick.Mul(decimal.NewFromInt(int64(ticks))))
	} else {
		eff := in.ImproveTicks + in.SkewTicks
		entry = decimal.Min(bid.Add(tick.Mul(decimal.NewFromInt(int64(eff)))), mid)
	}

	entry = RoundDownToTick(entry, tick)

	if entry.GreaterThanOrEqual(ask) {
		entry = ask.Sub(tick)
	}
	if entry.LessThan(in.MinPrice) || entry.GreaterThan(in.MaxPrice) {
		return decimal.Zero, false
	}
	return entry, true
}

// RoundDownToTick floors v to a multiple of tick.
func RoundDownToTick(v, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return v
	}
	return v.Div(tick).Floor().Mul(tick)
}
