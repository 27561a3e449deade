package quoting

import (
	"github.com/shopspring/decimal"
)

// SkewTicks returns the per-leg tick adjustment for an inventory imbalance.
// The magnitude is round-half-up of clamp(|imb|/sharesForMax, 0, 1) × maxSkewTicks;
// the lagging leg gets +skew and the leading leg -skew.
func SkewTicks(imbalance decimal.Decimal, maxSkewTicks int, sharesForMax decimal.Decimal) (up, down int) {
	if maxSkewTicks <= 0 || !sharesForMax.IsPositive() || imbalance.IsZero() {
		return 0, 0
	}

	scale := imbalance.Abs().Div(sharesForMax)
	if scale.GreaterThan(decimal.NewFromInt(1)) {
		scale = decimal.NewFromInt(1)
	}
	// Round is half away from zero; scale is non-negative so this is half-up.
	skew := int(scale.Mul(decimal.NewFromInt(int64(maxSkewTicks))).Round(0).IntPart())

	if imbalance.IsPositive() {
		return -skew, skew
	}
	return skew, -skew
}
