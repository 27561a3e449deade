package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Phase is the conceptual per-market state at the end of an evaluation.
type Phase string

const (
	PhaseOutOfScope   Phase = "OUT_OF_SCOPE"
	PhaseNoEdge       Phase = "IN_SCOPE_NO_EDGE"
	PhaseQuoting      Phase = "IN_SCOPE_QUOTING"
	PhaseTopUpPending Phase = "TOP_UP_PENDING"
	PhaseExpired      Phase = "EXPIRED"
)

// Gate names one of the checks that decide whether a market is quoted.
type Gate string

const (
	GateWindow    Gate = "window"
	GateBook      Gate = "book"
	GateEdge      Gate = "edge"
	GateInventory Gate = "inventory"
	GateTaker     Gate = "taker"
)

// GateResult records one gate evaluation.
type GateResult struct {
	Gate   Gate
	Passed bool
	Detail string
}

// LegTrace records how one leg's quote was derived.
type LegTrace struct {
	Outcome       Outcome
	TokenID       string
	BestBid       decimal.Decimal
	BestAsk       decimal.Decimal
	TickSize      decimal.Decimal
	SkewTicks     int
	Price         decimal.Decimal
	BaseSize      decimal.Decimal
	Size          decimal.Decimal
	CappedByOrder bool
	CappedByTotal bool
	Decision      string
}

// DecisionTrace explains a single market evaluation: which gates ran, what
// was computed and which actions were emitted.
type DecisionTrace struct {
	RunID        string
	MarketID     string
	Slug         string
	Series       Series
	At           time.Time
	SecondsToEnd int64
	Phase        Phase
	Edge         decimal.Decimal
	Imbalance    decimal.Decimal
	Exposure     decimal.Decimal
	Gates        []GateResult
	Legs         []LegTrace
	TopUp        string
	Actions      []string
}

// AddGate appends a gate outcome.
func (t *DecisionTrace) AddGate(g Gate, passed bool, detail string) {
	t.Gates = append(t.Gates, GateResult{Gate: g, Passed: passed, Detail: detail})
}

// FailedGate returns the first failing gate, if any.
func (t DecisionTrace) FailedGate() (GateResult, bool) {
	for _, g := range t.Gates {
		if !g.Passed {
			return g, true
		}
	}
	return GateResult{}, false
}

// MarketStatus is the operator-facing summary of one tracked market.
type MarketStatus struct {
	Slug         string
	Series       Series
	SecondsToEnd int64
	Phase        Phase
	Edge         decimal.Decimal
	UpShares     decimal.Decimal
	DownShares   decimal.Decimal
	UpOrder      *RestingOrder
	DownOrder    *RestingOrder
	LastReason   string
}

// RunSummary aggregates the persisted activity of one run.
type RunSummary struct {
	RunID          string
	Decisions      int
	Placed         int
	PlaceFailed    int
	Canceled       int
	CancelReasons  map[string]int
	Fills          int
	FilledShares   map[Outcome]decimal.Decimal
	FilledNotional decimal.Decimal
}
