package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// RunSummary agrega lo persistido por un run. Los fills no llevan run id:
// se cuentan los registrados desde since.
func (s *SQLiteStorage) RunSummary(ctx context.Context, runID string, since time.Time) (domain.RunSummary, error) {
	sum := domain.RunSummary{
		RunID:          runID,
		CancelReasons:  make(map[string]int),
		FilledShares:   map[domain.Outcome]decimal.Decimal{domain.OutcomeUp: decimal.Zero, domain.OutcomeDown: decimal.Zero},
		FilledNotional: decimal.Zero,
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM decisions WHERE run_id = ?`, runID,
	).Scan(&sum.Decisions); err != nil {
		return sum, fmt.Errorf("storage.RunSummary: decisions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, reason, success, COUNT(*)
		FROM order_events
		WHERE run_id = ?
		GROUP BY kind, reason, success`, runID)
	if err != nil {
		return sum, fmt.Errorf("storage.RunSummary: events: %w", err)
	}
	for rows.Next() {
		var kind, reason string
		var success, n int
		if err := rows.Scan(&kind, &reason, &success, &n); err != nil {
			rows.Close()
			return sum, fmt.Errorf("storage.RunSummary: scan event: %w", err)
		}
		switch domain.OrderEventKind(kind) {
		case domain.OrderEventPlace:
			if success == 1 {
				sum.Placed += n
			} else {
				sum.PlaceFailed += n
			}
		case domain.OrderEventCancel:
			if success == 1 {
				sum.Canceled += n
				sum.CancelReasons[reason] += n
			}
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return sum, fmt.Errorf("storage.RunSummary: events: %w", err)
	}

	fills, err := s.db.QueryContext(ctx,
		`SELECT outcome, price, size FROM fills WHERE at >= ?`, since.UTC())
	if err != nil {
		return sum, fmt.Errorf("storage.RunSummary: fills: %w", err)
	}
	defer fills.Close()
	for fills.Next() {
		var outcome, price, size string
		if err := fills.Scan(&outcome, &price, &size); err != nil {
			return sum, fmt.Errorf("storage.RunSummary: scan fill: %w", err)
		}
		p, _ := decimal.NewFromString(price)
		sz, _ := decimal.NewFromString(size)
		o := domain.OutcomeUp
		if outcome == domain.OutcomeDown.String() {
			o = domain.OutcomeDown
		}
		sum.Fills++
		sum.FilledShares[o] = sum.FilledShares[o].Add(sz)
		sum.FilledNotional = sum.FilledNotional.Add(p.Mul(sz))
	}
	return sum, fills.Err()
}

// OrderEvents devuelve los eventos de un run en orden de inserción.
func (s *SQLiteStorage) OrderEvents(ctx context.Context, runID string) ([]domain.OrderEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, reason, market_id, COALESCE(slug, ''), token_id, outcome,
		       COALESCE(order_id, ''), price, size, seconds_to_end, success,
		       COALESCE(error, ''), COALESCE(replaced_id, ''), order_age_ms, at
		FROM order_events
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.OrderEvents: query: %w", err)
	}
	defer rows.Close()

	var events []domain.OrderEvent
	for rows.Next() {
		var (
			e             domain.OrderEvent
			kind, outcome string
			price, size   string
			success       int
			ageMs         int64
			at            string
		)
		if err := rows.Scan(&kind, &e.Reason, &e.MarketID, &e.Slug, &e.TokenID, &outcome,
			&e.OrderID, &price, &size, &e.SecondsToEnd, &success,
			&e.Error, &e.ReplacedID, &ageMs, &at); err != nil {
			return nil, fmt.Errorf("storage.OrderEvents: scan row: %w", err)
		}
		e.RunID = runID
		e.Kind = domain.OrderEventKind(kind)
		if outcome == domain.OutcomeDown.String() {
			e.Outcome = domain.OutcomeDown
		}
		e.Price, _ = decimal.NewFromString(price)
		e.Size, _ = decimal.NewFromString(size)
		e.Success = success == 1
		e.OrderAge = time.Duration(ageMs) * time.Millisecond
		e.At = parseDBTime(at)
		events = append(events, e)
	}
	return events, rows.Err()
}

// parseDBTime acepta lo que devuelve el driver para columnas DATETIME.
func parseDBTime(s string) time.Time {
	for _, layout := range []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
