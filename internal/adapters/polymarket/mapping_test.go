package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestOrderAmounts_ExactProduct(t *testing.T) {
	maker, taker, err := orderAmounts(d("0.47"), d("10.5"), d("0.01"))
	require.NoError(t, err)
	assert.Equal(t, "10500000", taker.String())
	assert.Equal(t, "4935000", maker.String()) // 10.5 × 0.47
}

func TestOrderAmounts_TruncatesSharesToCents(t *testing.T) {
	maker, taker, err := orderAmounts(d("0.33"), d("7.129"), d("0.01"))
	require.NoError(t, err)
	assert.Equal(t, "7120000", taker.String())
	assert.Equal(t, "2349600", maker.String())
}

func TestOrderAmounts_Rejects(t *testing.T) {
	tests := []struct {
		name         string
		price, share string
		tick         string
	}{
		{"off tick", "0.475", "10", "0.01"},
		{"price one", "1", "10", "0.01"},
		{"price zero", "0", "10", "0.01"},
		{"dust shares", "0.50", "0.004", "0.01"},
		{"zero tick", "0.50", "10", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := orderAmounts(d(tt.price), d(tt.share), d(tt.tick))
			assert.Error(t, err)
		})
	}
}

func TestOrderAmounts_FinerTick(t *testing.T) {
	_, _, err := orderAmounts(d("0.475"), d("10"), d("0.001"))
	assert.NoError(t, err)
}

func TestMapOrderState(t *testing.T) {
	tests := map[string]domain.OrderState{
		"":                     domain.OrderStateUnknown,
		"LIVE":                 domain.OrderStateLive,
		"live":                 domain.OrderStateLive,
		"ORDER_STATUS_DELAYED": domain.OrderStateLive,
		"MATCHED":              domain.OrderStateMatched,
		"UNMATCHED":            domain.OrderStateCanceled,
		"CANCELED":             domain.OrderStateCanceled,
		"ORDER_STATUS_INVALID": domain.OrderStateCanceled,
		"SOMETHING_NEW":        domain.OrderStateUnknown,
	}
	for raw, want := range tests {
		assert.Equal(t, want, mapOrderState(raw), "status %q", raw)
	}
}

func TestMapOrderStatus_Remaining(t *testing.T) {
	st := mapOrderStatus(clobOrder{ID: "0x1", Status: "LIVE", OriginalSize: "10", SizeMatched: "4"})
	assert.Equal(t, domain.OrderStateLive, st.State)
	assert.True(t, st.FilledSize.Equal(d("4")))
	assert.True(t, st.HasRemaining)
	assert.True(t, st.RemainingSize.Equal(d("6")))
	assert.False(t, st.Terminal(d("10")))
}

func TestMapOrderStatus_OverfilledClampsRemaining(t *testing.T) {
	st := mapOrderStatus(clobOrder{ID: "0x1", Status: "MATCHED", OriginalSize: "10", SizeMatched: "10.2"})
	assert.True(t, st.RemainingSize.IsZero())
	assert.True(t, st.Terminal(d("10")))
}

func TestMapOrderStatus_NoOriginalSize(t *testing.T) {
	st := mapOrderStatus(clobOrder{ID: "0x1", Status: "LIVE", SizeMatched: "1"})
	assert.False(t, st.HasRemaining)
}

func TestMapRestingOrder(t *testing.T) {
	o := mapRestingOrder(clobOrder{
		ID:           "0xabc",
		AssetID:      "tok",
		Market:       "0xcond",
		Side:         "BUY",
		Price:        "0.45",
		OriginalSize: "12",
		SizeMatched:  "2",
		CreatedAt:    json.RawMessage(`1735689600`),
	})
	assert.Equal(t, "tok", o.TokenID)
	assert.Equal(t, domain.SideBuy, o.Side)
	assert.True(t, o.Remaining().Equal(d("10")))
	assert.Equal(t, time.Unix(1735689600, 0).UTC(), o.PlacedAt)
}

func TestParseTimestamp_Formats(t *testing.T) {
	want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, want, parseTimestamp(json.RawMessage(`1735689600`)))
	assert.Equal(t, want, parseTimestamp(json.RawMessage(`"1735689600000"`)))
	assert.Equal(t, want, parseTimestamp(json.RawMessage(`"2025-01-01T00:00:00Z"`)))
	assert.True(t, parseTimestamp(json.RawMessage(`null`)).IsZero())
	assert.True(t, parseTimestamp(json.RawMessage(`"garbage"`)).IsZero())
}

func TestMapPosition(t *testing.T) {
	asOf := time.Now()
	pos, ok := mapPosition(dataPosition{Asset: "tok", Size: "15", InitialValue: "-7.5"}, asOf)
	require.True(t, ok)
	assert.True(t, pos.Size.Equal(d("15")))
	assert.True(t, pos.Notional.Equal(d("7.5")))
	assert.Equal(t, asOf, pos.AsOf)

	_, ok = mapPosition(dataPosition{Asset: "tok", Size: "15", Redeemable: true}, asOf)
	assert.False(t, ok, "posiciones redimibles pertenecen a mercados resueltos")
}

func TestMapTopOfBook_PicksBestLevels(t *testing.T) {
	at := time.Now()
	tob := mapTopOfBook("tok",
		[]bookEntryRaw{{"0.40", "100"}, {"0.44", "5"}, {"0.45", "0"}},
		[]bookEntryRaw{{"0.52", "10"}, {"0.49", "3"}, {"bad", "1"}},
		at)
	assert.True(t, tob.BestBid.Equal(d("0.44")))
	assert.True(t, tob.BestBidSize.Equal(d("5")))
	assert.True(t, tob.BestAsk.Equal(d("0.49")))
	assert.True(t, tob.BestAskSize.Equal(d("3")))
	assert.Equal(t, at, tob.UpdatedAt)
}

func TestStringList_BothEncodings(t *testing.T) {
	var m gammaMarket
	require.NoError(t, json.Unmarshal([]byte(`{"clobTokenIds":"[\"a\",\"b\"]","outcomes":["Up","Down"]}`), &m))
	assert.Equal(t, stringList{"a", "b"}, m.ClobTokenIDs)
	assert.Equal(t, stringList{"Up", "Down"}, m.Outcomes)

	require.NoError(t, json.Unmarshal([]byte(`{"clobTokenIds":"","outcomes":null}`), &m))
	assert.Empty(t, m.ClobTokenIDs)
	assert.Empty(t, m.Outcomes)
}

func TestQuarterCandidates_Grid(t *testing.T) {
	now := time.Unix(1735690500+120, 0) // 2 minutos dentro del slot 1735690500
	cs := quarterCandidates(domain.SeriesBTC15m, now)
	require.Len(t, cs, 4)
	assert.Equal(t, "btc-updown-15m-1735688700", cs[0].slug)
	assert.Equal(t, "btc-updown-15m-1735691400", cs[3].slug)
	for _, c := range cs {
		assert.Zero(t, c.start.Unix()%slotSeconds15m)
	}
}

func TestHourlySlug(t *testing.T) {
	et, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	assert.Equal(t, "bitcoin-up-or-down-december-14-11am-et",
		hourlySlug(domain.SeriesBTC1h, time.Date(2025, 12, 14, 11, 0, 0, 0, et)))
	assert.Equal(t, "ethereum-up-or-down-march-3-12am-et",
		hourlySlug(domain.SeriesETH1h, time.Date(2026, 3, 3, 0, 0, 0, 0, et)))
	assert.Equal(t, "bitcoin-up-or-down-july-4-3pm-et",
		hourlySlug(domain.SeriesBTC1h, time.Date(2026, 7, 4, 15, 0, 0, 0, et)))
}

func TestMapEvent(t *testing.T) {
	start := time.Unix(1735690500, 0).UTC()
	c := candidate{slug: "btc-updown-15m-1735690500", series: domain.SeriesBTC15m, start: start}

	t.Run("outcome order is respected", func(t *testing.T) {
		m, ok := mapEvent(gammaEvent{
			Slug:    c.slug,
			EndDate: "2025-01-01T00:30:00Z",
			Markets: []gammaMarket{{
				ConditionID:  "0xcond",
				ClobTokenIDs: stringList{"down-tok", "up-tok"},
				Outcomes:     stringList{"Down", "Up"},
			}},
		}, c)
		require.True(t, ok)
		assert.Equal(t, "0xcond", m.ID)
		assert.Equal(t, "up-tok", m.UpTokenID)
		assert.Equal(t, "down-tok", m.DownTokenID)
		assert.Equal(t, time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC), m.EndTime)
	})

	t.Run("end time falls back to slot end", func(t *testing.T) {
		m, ok := mapEvent(gammaEvent{Markets: []gammaMarket{{
			ID:           "42",
			ClobTokenIDs: stringList{"u", "d"},
			Outcomes:     stringList{"Up", "Down"},
		}}}, c)
		require.True(t, ok)
		assert.Equal(t, "42", m.ID)
		assert.Equal(t, c.slug, m.Slug)
		assert.Equal(t, start.Add(15*time.Minute), m.EndTime)
	})

	t.Run("closed or incomplete events are skipped", func(t *testing.T) {
		_, ok := mapEvent(gammaEvent{Closed: true, Markets: []gammaMarket{{ID: "1"}}}, c)
		assert.False(t, ok)
		_, ok = mapEvent(gammaEvent{Markets: []gammaMarket{{
			ID:           "1",
			ClobTokenIDs: stringList{"u"},
			Outcomes:     stringList{"Up", "Down"},
		}}}, c)
		assert.False(t, ok)
	})
}
