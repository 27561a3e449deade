package quoting

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// Step is one row of a size table: Shares applies while
// secondsToEnd <= MaxSecondsToEnd.
type Step struct {
	MaxSecondsToEnd int64
	Shares          decimal.Decimal
}

// StepTable is an ascending list of steps.
type StepTable []Step

// Lookup returns the shares of the first step whose threshold is >= secondsToEnd.
func (t StepTable) Lookup(secondsToEnd int64) (decimal.Decimal, bool) {
	for _, s := range t {
		if secondsToEnd <= s.MaxSecondsToEnd {
			return s.Shares, true
		}
	}
	return decimal.Zero, false
}

// Validate checks ordering and positivity.
func (t StepTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("empty size table")
	}
	for i, s := range t {
		if !s.Shares.IsPositive() {
			return fmt.Errorf("step %d: shares must be positive, got %s", i, s.Shares)
		}
		if i > 0 && s.MaxSecondsToEnd <= t[i-1].MaxSecondsToEnd {
			return fmt.Errorf("step %d: threshold %d not above %d", i, s.MaxSecondsToEnd, t[i-1].MaxSecondsToEnd)
		}
	}
	return nil
}

// SizeTables maps each series to its base size table.
type SizeTables map[domain.Series]StepTable

func steps(pairs ...int64) StepTable {
	t := make(StepTable, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		t = append(t, Step{MaxSecondsToEnd: pairs[i], Shares: decimal.NewFromInt(pairs[i+1])})
	}
	return t
}

// DefaultSizeTables returns the base share schedule per series. Thresholds are
// integer seconds, so "< 60s" is written as 59.
func DefaultSizeTables() SizeTables {
	return SizeTables{
		domain.SeriesBTC15m: steps(59, 11, 179, 13, 299, 17, 599, 19, 900, 20),
		domain.SeriesETH15m: steps(59, 8, 179, 10, 299, 12, 599, 13, 900, 14),
		domain.SeriesBTC1h:  steps(59, 9, 179, 10, 299, 11, 599, 12, 899, 14, 1199, 15, 1799, 17, 3600, 18),
		domain.SeriesETH1h:  steps(59, 7, 299, 8, 599, 9, 899, 11, 1199, 12, 1799, 13, 3600, 14),
	}
}

// BaseSize returns the base shares for a series at secondsToEnd.
func (s SizeTables) BaseSize(series domain.Series, secondsToEnd int64) (decimal.Decimal, bool) {
	t, ok := s[series]
	if !ok {
		return decimal.Zero, false
	}
	return t.Lookup(secondsToEnd)
}

// Caps are the bankroll-fraction limits. Disabled when BankrollUSD <= 0.
type Caps struct {
	BankrollUSD      decimal.Decimal
	MaxOrderFraction decimal.Decimal
	MaxTotalFraction decimal.Decimal
}

// Enabled reports whether bankroll caps apply.
func (c Caps) Enabled() bool {
	return c.BankrollUSD.IsPositive()
}

// TotalLimit returns maxTotalFraction × bankroll, or false when not capped.
func (c Caps) TotalLimit() (decimal.Decimal, bool) {
	if !c.Enabled() || !c.MaxTotalFraction.IsPositive() {
		return decimal.Zero, false
	}
	return c.BankrollUSD.Mul(c.MaxTotalFraction), true
}

// OrderLimit returns maxOrderFraction × bankroll, or false when not capped.
func (c Caps) OrderLimit() (decimal.Decimal, bool) {
	if !c.Enabled() || !c.MaxOrderFraction.IsPositive() {
		return decimal.Zero, false
	}
	return c.BankrollUSD.Mul(c.MaxOrderFraction), true
}

// SizeResult is the outcome of applying caps to a base size.
type SizeResult struct {
	Base          decimal.Decimal
	Size          decimal.Decimal
	CappedByOrder bool
	CappedByTotal bool
	OK            bool
	Detail        string
}

// ApplyCaps shrinks base so that size × price respects the per-order cap and
// exposure + size × price respects the total cap. Shares are floored to two
// decimals; anything under minShares is rejected.
func ApplyCaps(base, price, exposure decimal.Decimal, caps Caps, minShares decimal.Decimal) SizeResult {
	r := SizeResult{Base: base, Size: base}
	if !price.IsPositive() {
		r.Detail = "non-positive price"
		return r
	}

	if limit, ok := caps.OrderLimit(); ok {
		capShares := limit.Div(price).RoundFloor(2)
		if r.Size.GreaterThan(capShares) {
			r.Size = capShares
			r.CappedByOrder = true
		}
	}
	if limit, ok := caps.TotalLimit(); ok {
		remaining := limit.Sub(exposure)
		if !remaining.IsPositive() {
			r.Size = decimal.Zero
			r.CappedByTotal = true
			r.Detail = fmt.Sprintf("total cap exhausted: exposure=%s limit=%s", exposure.StringFixed(2), limit.StringFixed(2))
			return r
		}
		capShares := remaining.Div(price).RoundFloor(2)
		if r.Size.GreaterThan(capShares) {
			r.Size = capShares
			r.CappedByTotal = true
		}
	}

	r.Size = r.Size.RoundFloor(2)
	if r.Size.LessThan(minShares) {
		r.Detail = fmt.Sprintf("size %s below minimum %s", r.Size, minShares)
		return r
	}
	r.OK = true
	return r
}
