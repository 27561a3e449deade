package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultMetaTTL = 10 * time.Minute
)

// DefaultTickSize se usa cuando el CLOB no responde.
var DefaultTickSize = decimal.RequireFromString("0.01")

type metaEntry[T any] struct {
	value     T
	fetchedAt time.Time
}

// TokenMeta cachea la metadata por token que necesita el firmado de órdenes:
// tick size, neg-risk y fee rate. Implementa ports.TickSizeProvider.
type TokenMeta struct {
	client *Client
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	ticks   map[string]metaEntry[decimal.Decimal]
	negRisk map[string]metaEntry[bool]
	fees    map[string]metaEntry[int]
}

// NewTokenMeta crea la caché. ttl <= 0 usa 10 minutos.
func NewTokenMeta(client *Client, ttl time.Duration, now func() time.Time) *TokenMeta {
	if ttl <= 0 {
		ttl = defaultMetaTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenMeta{
		client:  client,
		ttl:     ttl,
		now:     now,
		ticks:   make(map[string]metaEntry[decimal.Decimal]),
		negRisk: make(map[string]metaEntry[bool]),
		fees:    make(map[string]metaEntry[int]),
	}
}

// TickSize devuelve el tick mínimo del token. Ante error devuelve 0.01 sin cachearlo.
func (m *TokenMeta) TickSize(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	if v, ok := cached(m, m.ticks, tokenID); ok {
		return v, nil
	}

	var resp clobTickSizeResponse
	u := fmt.Sprintf("%s/tick-size?token_id=%s", m.client.clobBase, url.QueryEscape(tokenID))
	if err := m.client.get(ctx, m.client.clobLimiter, u, &resp); err != nil {
		slog.Warn("polymarket: tick size lookup failed, using default", "token", shortID(tokenID), "err", err)
		return DefaultTickSize, nil
	}
	tick, err := decimal.NewFromString(resp.MinimumTickSize.String())
	if err != nil || !tick.IsPositive() {
		slog.Warn("polymarket: invalid tick size, using default", "token", shortID(tokenID), "raw", resp.MinimumTickSize)
		return DefaultTickSize, nil
	}

	store(m, m.ticks, tokenID, tick)
	return tick, nil
}

// NegRisk indica si el token usa el exchange NegRisk.
func (m *TokenMeta) NegRisk(ctx context.Context, tokenID string) (bool, error) {
	if v, ok := cached(m, m.negRisk, tokenID); ok {
		return v, nil
	}

	var resp clobNegRiskResponse
	u := fmt.Sprintf("%s/neg-risk?token_id=%s", m.client.clobBase, url.QueryEscape(tokenID))
	if err := m.client.get(ctx, m.client.clobLimiter, u, &resp); err != nil {
		return false, fmt.Errorf("polymarket.NegRisk: %w", err)
	}

	store(m, m.negRisk, tokenID, resp.NegRisk)
	return resp.NegRisk, nil
}

// FeeRateBps devuelve la fee base que el exchange exige firmar en la orden.
func (m *TokenMeta) FeeRateBps(ctx context.Context, tokenID string) (int, error) {
	if v, ok := cached(m, m.fees, tokenID); ok {
		return v, nil
	}

	var resp clobFeeRateResponse
	u := fmt.Sprintf("%s/fee-rate?token_id=%s", m.client.clobBase, url.QueryEscape(tokenID))
	if err := m.client.get(ctx, m.client.clobLimiter, u, &resp); err != nil {
		return 0, fmt.Errorf("polymarket.FeeRateBps: %w", err)
	}

	store(m, m.fees, tokenID, resp.BaseFee)
	return resp.BaseFee, nil
}

func cached[T any](m *TokenMeta, entries map[string]metaEntry[T], tokenID string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := entries[tokenID]
	if !ok || m.now().Sub(e.fetchedAt) >= m.ttl {
		var zero T
		return zero, false
	}
	return e.value, true
}

func store[T any](m *TokenMeta, entries map[string]metaEntry[T], tokenID string, v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries[tokenID] = metaEntry[T]{value: v, fetchedAt: m.now()}
}

// shortID abrevia un token id para logs.
func shortID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:4] + "..." + id[len(id)-6:]
}
