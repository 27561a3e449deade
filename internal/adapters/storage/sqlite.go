package storage

// sqlite.go: rastro de decisiones, eventos de órdenes y fills.
//
// Estrategia:
//   - `decisions`: una fila por evaluación de mercado. Gates, legs y acciones
//     van serializados como JSON; se consultan poco y solo para auditar.
//   - `decisions` no se escribe si la traza es idéntica a la anterior del mismo
//     mercado (mismo phase, edge, legs y sin acciones): un mercado en reposo
//     evaluado cada segundo no llena el disco.
//   - `order_events` y `fills`: siempre se escriben.
//   - Prune automático al arrancar: decisiones > 7d, eventos y fills > 30d.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id         TEXT     NOT NULL,
    market_id      TEXT     NOT NULL,
    slug           TEXT,
    series         TEXT     NOT NULL,
    at             DATETIME NOT NULL,
    seconds_to_end INTEGER  NOT NULL,
    phase          TEXT     NOT NULL,
    edge           TEXT     NOT NULL DEFAULT '0',
    imbalance      TEXT     NOT NULL DEFAULT '0',
    exposure       TEXT     NOT NULL DEFAULT '0',
    failed_gate    TEXT,
    gates          TEXT,
    legs           TEXT,
    top_up         TEXT,
    actions        TEXT
);

CREATE TABLE IF NOT EXISTS order_events (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id         TEXT     NOT NULL,
    kind           TEXT     NOT NULL,
    reason         TEXT     NOT NULL,
    market_id      TEXT     NOT NULL,
    slug           TEXT,
    token_id       TEXT     NOT NULL,
    outcome        TEXT     NOT NULL,
    order_id       TEXT,
    price          TEXT     NOT NULL DEFAULT '0',
    size           TEXT     NOT NULL DEFAULT '0',
    seconds_to_end INTEGER  NOT NULL DEFAULT 0,
    success        INTEGER  NOT NULL DEFAULT 0,
    error          TEXT,
    replaced_id    TEXT,
    replaced_price TEXT,
    replaced_size  TEXT,
    order_age_ms   INTEGER  NOT NULL DEFAULT 0,
    at             DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id  TEXT     NOT NULL,
    market_id TEXT     NOT NULL,
    token_id  TEXT     NOT NULL,
    outcome   TEXT     NOT NULL,
    price     TEXT     NOT NULL,
    size      TEXT     NOT NULL,
    at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_market ON decisions(market_id, at DESC);
CREATE INDEX IF NOT EXISTS idx_events_at        ON order_events(at DESC);
CREATE INDEX IF NOT EXISTS idx_events_order     ON order_events(order_id);
CREATE INDEX IF NOT EXISTS idx_fills_market     ON fills(market_id);
`

const (
	retentionDecisions = 7 * 24 * time.Hour
	retentionEvents    = 30 * 24 * time.Hour
)

// SQLiteStorage implementa ports.DecisionRecorder usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB

	mu   sync.Mutex
	last map[string]string // marketID → firma de la última traza guardada
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada.
// Aplica el schema y limpia datos antiguos.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db, last: make(map[string]string)}
	s.pruneOld(context.Background())
	return s, nil
}

// RecordDecision guarda la traza salvo que repita la anterior del mismo mercado.
func (s *SQLiteStorage) RecordDecision(ctx context.Context, t domain.DecisionTrace) error {
	gates, err := json.Marshal(t.Gates)
	if err != nil {
		return fmt.Errorf("storage.RecordDecision: gates: %w", err)
	}
	legs, err := json.Marshal(t.Legs)
	if err != nil {
		return fmt.Errorf("storage.RecordDecision: legs: %w", err)
	}
	actions, err := json.Marshal(t.Actions)
	if err != nil {
		return fmt.Errorf("storage.RecordDecision: actions: %w", err)
	}

	if len(t.Actions) == 0 {
		sig := string(t.Phase) + "|" + t.Edge.String() + "|" + t.Imbalance.String() + "|" + string(gates) + "|" + string(legs) + "|" + t.TopUp
		if !s.changed(t.MarketID, sig) {
			return nil
		}
	} else {
		s.forget(t.MarketID)
	}

	var failed *string
	if g, ok := t.FailedGate(); ok {
		name := string(g.Gate)
		failed = &name
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions
			(run_id, market_id, slug, series, at, seconds_to_end, phase,
			 edge, imbalance, exposure, failed_gate, gates, legs, top_up, actions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.MarketID, t.Slug, string(t.Series), t.At.UTC(), t.SecondsToEnd, string(t.Phase),
		t.Edge.String(), t.Imbalance.String(), t.Exposure.String(), failed,
		string(gates), string(legs), t.TopUp, string(actions),
	); err != nil {
		s.forget(t.MarketID)
		return fmt.Errorf("storage.RecordDecision %s: %w", t.MarketID, err)
	}
	return nil
}

// RecordOrderEvent guarda un PLACE, CANCEL o FILL.
func (s *SQLiteStorage) RecordOrderEvent(ctx context.Context, e domain.OrderEvent) error {
	var replacedPrice, replacedSize *string
	if e.ReplacedID != "" {
		p, sz := e.ReplacedPrice.String(), e.ReplacedSize.String()
		replacedPrice, replacedSize = &p, &sz
	}
	success := 0
	if e.Success {
		success = 1
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO order_events
			(run_id, kind, reason, market_id, slug, token_id, outcome, order_id,
			 price, size, seconds_to_end, success, error,
			 replaced_id, replaced_price, replaced_size, order_age_ms, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, string(e.Kind), e.Reason, e.MarketID, e.Slug, e.TokenID, e.Outcome.String(), e.OrderID,
		e.Price.String(), e.Size.String(), e.SecondsToEnd, success, e.Error,
		e.ReplacedID, replacedPrice, replacedSize, e.OrderAge.Milliseconds(), e.At.UTC(),
	); err != nil {
		return fmt.Errorf("storage.RecordOrderEvent %s %s: %w", e.Kind, e.OrderID, err)
	}
	return nil
}

// RecordFill guarda una ejecución observada.
func (s *SQLiteStorage) RecordFill(ctx context.Context, f domain.Fill) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO fills (order_id, market_id, token_id, outcome, price, size, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.MarketID, f.TokenID, f.Outcome.String(), f.Price.String(), f.Size.String(), f.At.UTC(),
	); err != nil {
		return fmt.Errorf("storage.RecordFill %s: %w", f.OrderID, err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

func (s *SQLiteStorage) changed(marketID, sig string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last[marketID] == sig {
		return false
	}
	s.last[marketID] = sig
	return true
}

func (s *SQLiteStorage) forget(marketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, marketID)
}

// pruneOld elimina datos antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	now := time.Now().UTC()
	s.db.ExecContext(ctx, `DELETE FROM decisions WHERE at < ?`, now.Add(-retentionDecisions))
	s.db.ExecContext(ctx, `DELETE FROM order_events WHERE at < ?`, now.Add(-retentionEvents))
	s.db.ExecContext(ctx, `DELETE FROM fills WHERE at < ?`, now.Add(-retentionEvents))
}
