package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// parseDecimal convierte un string de la API; vacío o inválido → cero.
func parseDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseOptionalDecimal distingue "no reportado" de cero.
func parseOptionalDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// parseTimestamp acepta unix (s o ms), como número o string, y RFC3339.
func parseTimestamp(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}
		}
	}
	return parseTimeString(s)
}

func parseTimeString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		if ts > 1e12 {
			return time.UnixMilli(ts).UTC()
		}
		return time.Unix(ts, 0).UTC()
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// mapOrderState normaliza el status del CLOB.
func mapOrderState(status string) domain.OrderState {
	upper := strings.ToUpper(strings.TrimSpace(status))
	switch {
	case upper == "":
		return domain.OrderStateUnknown
	case strings.Contains(upper, "UNMATCHED"):
		return domain.OrderStateCanceled
	case strings.Contains(upper, "LIVE"), strings.Contains(upper, "OPEN"), strings.Contains(upper, "DELAYED"):
		return domain.OrderStateLive
	case strings.Contains(upper, "MATCHED"), strings.Contains(upper, "FILLED"):
		return domain.OrderStateMatched
	case strings.Contains(upper, "CANCEL"), strings.Contains(upper, "INVALID"), strings.Contains(upper, "EXPIRED"):
		return domain.OrderStateCanceled
	}
	return domain.OrderStateUnknown
}

// mapOrderStatus convierte /data/order/{id} al resultado de poll.
func mapOrderStatus(o clobOrder) domain.OrderStatus {
	st := domain.OrderStatus{
		OrderID:    o.ID,
		State:      mapOrderState(o.Status),
		RawStatus:  o.Status,
		FilledSize: parseDecimal(o.SizeMatched),
	}
	if original, ok := parseOptionalDecimal(o.OriginalSize); ok {
		remaining := original.Sub(st.FilledSize)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		st.RemainingSize = remaining
		st.HasRemaining = true
	}
	return st
}

// mapRestingOrder convierte una orden abierta del CLOB. Outcome lo resuelve el engine.
func mapRestingOrder(o clobOrder) domain.RestingOrder {
	side := domain.SideBuy
	if strings.EqualFold(o.Side, string(domain.SideSell)) {
		side = domain.SideSell
	}
	return domain.RestingOrder{
		OrderID:  o.ID,
		MarketID: o.Market,
		TokenID:  o.AssetID,
		Side:     side,
		Price:    parseDecimal(o.Price),
		Size:     parseDecimal(o.OriginalSize),
		Matched:  parseDecimal(o.SizeMatched),
		PlacedAt: parseTimestamp(o.CreatedAt),
	}
}

// mapPosition convierte una fila de la Data API. Redeemable → false (mercado resuelto).
func mapPosition(p dataPosition, asOf time.Time) (domain.Position, bool) {
	if p.Redeemable || p.Asset == "" {
		return domain.Position{}, false
	}
	size := parseDecimal(p.Size.String())
	notional := parseDecimal(p.InitialValue.String()).Abs()
	return domain.Position{
		TokenID:  p.Asset,
		Size:     size,
		Notional: notional,
		AsOf:     asOf,
	}, true
}

// bestLevel devuelve el mejor nivel: máximo para bids, mínimo para asks.
func bestLevel(levels []bookEntryRaw, highest bool) (price, size decimal.Decimal, ok bool) {
	for _, l := range levels {
		p, valid := parseOptionalDecimal(l.Price)
		if !valid || !p.IsPositive() {
			continue
		}
		s := parseDecimal(l.Size)
		if !s.IsPositive() {
			continue
		}
		if !ok || (highest && p.GreaterThan(price)) || (!highest && p.LessThan(price)) {
			price, size, ok = p, s, true
		}
	}
	return price, size, ok
}

// mapTopOfBook reduce un libro completo a su mejor nivel por lado.
func mapTopOfBook(tokenID string, bids, asks []bookEntryRaw, at time.Time) domain.TopOfBook {
	tob := domain.TopOfBook{TokenID: tokenID, UpdatedAt: at}
	if p, s, ok := bestLevel(bids, true); ok {
		tob.BestBid, tob.BestBidSize = p, s
	}
	if p, s, ok := bestLevel(asks, false); ok {
		tob.BestAsk, tob.BestAskSize = p, s
	}
	return tob
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→TopOfBook.
func mapOrderBooks(raw []orderBookResponse, at time.Time) map[string]domain.TopOfBook {
	result := make(map[string]domain.TopOfBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = mapTopOfBook(r.AssetID, r.Bids, r.Asks, at)
	}
	return result
}
