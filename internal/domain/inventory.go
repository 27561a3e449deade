package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Inventory is the per-market share position. The baseline comes from the
// last positions snapshot; fills observed after the snapshot's as-of time are
// layered on top until a newer snapshot absorbs them.
type Inventory struct {
	baseUp   decimal.Decimal
	baseDown decimal.Decimal
	asOf     time.Time
	seeded   bool
	fills    []Fill
}

// Seeded reports whether at least one snapshot has been applied.
func (inv *Inventory) Seeded() bool { return inv.seeded }

// AsOf returns the as-of time of the applied snapshot.
func (inv *Inventory) AsOf() time.Time { return inv.asOf }

// ApplySnapshot overwrites the settled baseline. Fills newer than asOf are kept.
func (inv *Inventory) ApplySnapshot(up, down decimal.Decimal, asOf time.Time) {
	inv.baseUp = up
	inv.baseDown = down
	inv.asOf = asOf
	inv.seeded = true

	kept := inv.fills[:0]
	for _, f := range inv.fills {
		if f.At.After(asOf) {
			kept = append(kept, f)
		}
	}
	inv.fills = kept
}

// ApplyFill records a fill delta observed this session.
func (inv *Inventory) ApplyFill(f Fill) {
	if !f.Size.IsPositive() {
		return
	}
	inv.fills = append(inv.fills, f)
}

// Shares returns the current holding for one leg.
func (inv *Inventory) Shares(o Outcome) decimal.Decimal {
	total := inv.baseUp
	if o == OutcomeDown {
		total = inv.baseDown
	}
	for _, f := range inv.fills {
		if f.Outcome == o {
			total = total.Add(f.Size)
		}
	}
	return total
}

// UpShares returns Shares(OutcomeUp).
func (inv *Inventory) UpShares() decimal.Decimal { return inv.Shares(OutcomeUp) }

// DownShares returns Shares(OutcomeDown).
func (inv *Inventory) DownShares() decimal.Decimal { return inv.Shares(OutcomeDown) }

// Imbalance is up - down; positive means long Up.
func (inv *Inventory) Imbalance() decimal.Decimal {
	return inv.UpShares().Sub(inv.DownShares())
}

// UnconfirmedNotional sums the cost of fills not yet reflected in a snapshot.
func (inv *Inventory) UnconfirmedNotional() decimal.Decimal {
	total := decimal.Zero
	for _, f := range inv.fills {
		total = total.Add(f.Notional())
	}
	return total
}

// PendingFills returns how many fills are waiting for a snapshot.
func (inv *Inventory) PendingFills() int { return len(inv.fills) }

// TopUpState is the per-market timing bookkeeping for taker top-ups.
// It lives only for the process lifetime.
type TopUpState struct {
	LastTopUpAt time.Time
	lastFillAt  [2]time.Time
	lastPrice   [2]decimal.Decimal
}

// RecordFill updates the last-fill bookkeeping of the filled leg.
func (s *TopUpState) RecordFill(f Fill) {
	if f.At.Before(s.lastFillAt[f.Outcome]) {
		return
	}
	s.lastFillAt[f.Outcome] = f.At
	s.lastPrice[f.Outcome] = f.Price
}

// LastFill returns the last fill time and price of a leg.
func (s *TopUpState) LastFill(o Outcome) (time.Time, decimal.Decimal, bool) {
	at := s.lastFillAt[o]
	return at, s.lastPrice[o], !at.IsZero()
}

// Position is one token holding from the positions provider.
type Position struct {
	TokenID  string
	Size     decimal.Decimal
	Notional decimal.Decimal // cost basis in USDC
	AsOf     time.Time
}

// PositionsSnapshot is the settled holdings of the account at AsOf.
type PositionsSnapshot struct {
	Account   string
	AsOf      time.Time
	Positions []Position
}

// ByToken indexes the snapshot by token id.
func (s PositionsSnapshot) ByToken() map[string]Position {
	out := make(map[string]Position, len(s.Positions))
	for _, p := range s.Positions {
		prev, ok := out[p.TokenID]
		if ok {
			p.Size = p.Size.Add(prev.Size)
			p.Notional = p.Notional.Add(prev.Notional)
		}
		out[p.TokenID] = p
	}
	return out
}

// Size returns the held shares of tokenID (zero when absent).
func (s PositionsSnapshot) Size(tokenID string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Positions {
		if p.TokenID == tokenID {
			total = total.Add(p.Size)
		}
	}
	return total
}

// TotalNotional sums the cost basis of every position.
func (s PositionsSnapshot) TotalNotional() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Positions {
		total = total.Add(p.Notional)
	}
	return total
}
