package quoting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Params holds every threshold the decision logic consumes.
type Params struct {
	MinSecondsToEnd int64
	MaxSecondsToEnd int64
	StaleAfter      time.Duration
	ReplaceThrottle time.Duration

	MinEdge                   decimal.Decimal
	ImproveTicks              int
	WideSpread                decimal.Decimal
	MaxSkewTicks              int
	ImbalanceSharesForMaxSkew decimal.Decimal
	DefaultTick               decimal.Decimal
	MinPrice                  decimal.Decimal
	MaxPrice                  decimal.Decimal
	MinShares                 decimal.Decimal

	Sizes SizeTables
	Caps  Caps

	TakerModeMaxSpread decimal.Decimal
	TopUp              TopUpParams
	FastTopUp          FastTopUpParams
	Taker              TakerParams
}

// TopUpParams configures the end-of-market hedge completion.
type TopUpParams struct {
	Enabled      bool
	SecondsToEnd int64
	MinShares    decimal.Decimal
}

// FastTopUpParams configures the hedge completion that follows a lead-leg fill.
type FastTopUpParams struct {
	Enabled      bool
	MinShares    decimal.Decimal
	Cooldown     time.Duration
	MinAfterFill time.Duration
	MaxAfterFill time.Duration
	MinEdge      decimal.Decimal
}

// TakerParams configures the optional taker-entry mode. Off by default.
type TakerParams struct {
	Enabled   bool
	MaxEdge   decimal.Decimal
	MaxSpread decimal.Decimal
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		MinSecondsToEnd: 0,
		MaxSecondsToEnd: 3600,
		StaleAfter:      2 * time.Second,
		ReplaceThrottle: 5 * time.Second,

		MinEdge:                   decimal.RequireFromString("0.01"),
		ImproveTicks:              1,
		WideSpread:                decimal.RequireFromString("0.20"),
		MaxSkewTicks:              1,
		ImbalanceSharesForMaxSkew: decimal.NewFromInt(200),
		DefaultTick:               decimal.RequireFromString("0.01"),
		MinPrice:                  decimal.RequireFromString("0.01"),
		MaxPrice:                  decimal.RequireFromString("0.99"),
		MinShares:                 decimal.RequireFromString("0.01"),

		Sizes: DefaultSizeTables(),
		Caps: Caps{
			BankrollUSD:      decimal.Zero,
			MaxOrderFraction: decimal.RequireFromString("0.05"),
			MaxTotalFraction: decimal.RequireFromString("0.50"),
		},

		TakerModeMaxSpread: decimal.RequireFromString("0.02"),
		TopUp: TopUpParams{
			Enabled:      true,
			SecondsToEnd: 60,
			MinShares:    decimal.NewFromInt(10),
		},
		FastTopUp: FastTopUpParams{
			Enabled:      true,
			MinShares:    decimal.NewFromInt(10),
			Cooldown:     15 * time.Second,
			MinAfterFill: 3 * time.Second,
			MaxAfterFill: 120 * time.Second,
			MinEdge:      decimal.RequireFromString("0.01"),
		},
		Taker: TakerParams{
			Enabled:   false,
			MaxEdge:   decimal.RequireFromString("0.015"),
			MaxSpread: decimal.RequireFromString("0.02"),
		},
	}
}
