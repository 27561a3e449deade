package live

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// RefreshPositions pulls a positions snapshot and rebases every market's
// inventory on it. Without force the call is a no-op unless fills arrived
// since the last snapshot or the snapshot is older than the TTL.
func (e *Engine) RefreshPositions(ctx context.Context, force bool) error {
	now := e.now()
	e.posMu.Lock()
	last := e.lastSnapshot
	e.posMu.Unlock()

	if !force && last != nil &&
		e.fillsSinceSnapshot.Load() == 0 &&
		now.Sub(last.AsOf) < e.cfg.PositionsTTL {
		return nil
	}

	fills := e.fillsSinceSnapshot.Load()
	snap, err := e.positions.PositionsSnapshot(ctx, e.cfg.Account)
	if err != nil {
		return fmt.Errorf("live.RefreshPositions: %w", err)
	}
	e.fillsSinceSnapshot.Add(-fills)

	e.posMu.Lock()
	e.lastSnapshot = &snap
	e.posMu.Unlock()
	e.ledger.setPositions(snap.TotalNotional())

	for _, st := range e.snapshotMarkets() {
		st.mu.Lock()
		e.ingest(st, snap)
		st.mu.Unlock()
	}

	slog.Debug("live: positions refreshed",
		"positions", len(snap.Positions),
		"notional", fmt.Sprintf("$%.2f", snap.TotalNotional().InexactFloat64()),
		"asOf", snap.AsOf.Format("15:04:05.000"),
	)
	return nil
}

// ingest rebases one market's inventory. Caller holds st.mu.
func (e *Engine) ingest(st *marketState, snap domain.PositionsSnapshot) {
	wasSeeded := st.inv.Seeded()
	st.inv.ApplySnapshot(snap.Size(st.market.UpTokenID), snap.Size(st.market.DownTokenID), snap.AsOf)
	e.ledger.setUnconfirmed(st.market.ID, st.inv.UnconfirmedNotional())
	e.metrics.SetImbalance(st.market.Slug, st.inv.Imbalance().InexactFloat64())
	if !wasSeeded {
		slog.Info("live: inventory seeded",
			"market", st.market.Slug,
			"up", st.inv.UpShares().StringFixed(2),
			"down", st.inv.DownShares().StringFixed(2),
		)
	}
}
