package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var invT0 = time.Date(2025, 12, 14, 16, 0, 0, 0, time.UTC)

func num(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestInventory_SnapshotThenFills(t *testing.T) {
	var inv Inventory
	assert.False(t, inv.Seeded())

	inv.ApplySnapshot(num("30"), num("10"), invT0)
	assert.True(t, inv.Seeded())
	assert.Equal(t, "20", inv.Imbalance().String())

	inv.ApplyFill(Fill{Outcome: OutcomeDown, Price: num("0.45"), Size: num("15"), At: invT0.Add(time.Second)})
	assert.Equal(t, "25", inv.DownShares().String())
	assert.Equal(t, "5", inv.Imbalance().String())
	assert.Equal(t, "6.75", inv.UnconfirmedNotional().String())
}

func TestInventory_SnapshotAbsorbsOlderFills(t *testing.T) {
	var inv Inventory
	inv.ApplySnapshot(num("0"), num("0"), invT0)
	inv.ApplyFill(Fill{Outcome: OutcomeUp, Price: num("0.5"), Size: num("10"), At: invT0.Add(time.Second)})
	inv.ApplyFill(Fill{Outcome: OutcomeUp, Price: num("0.5"), Size: num("4"), At: invT0.Add(10 * time.Second)})

	// snapshot taken after the first fill reflects it already
	inv.ApplySnapshot(num("10"), num("0"), invT0.Add(5*time.Second))

	assert.Equal(t, 1, inv.PendingFills())
	assert.Equal(t, "14", inv.UpShares().String())
}

func TestInventory_IgnoresEmptyFills(t *testing.T) {
	var inv Inventory
	inv.ApplyFill(Fill{Outcome: OutcomeUp, Size: decimal.Zero, At: invT0})
	assert.Equal(t, 0, inv.PendingFills())
}

func TestTopUpState_LastFill(t *testing.T) {
	var s TopUpState
	_, _, ok := s.LastFill(OutcomeUp)
	assert.False(t, ok)

	s.RecordFill(Fill{Outcome: OutcomeUp, Price: num("0.52"), Size: num("5"), At: invT0.Add(2 * time.Second)})
	s.RecordFill(Fill{Outcome: OutcomeUp, Price: num("0.40"), Size: num("5"), At: invT0})

	at, price, ok := s.LastFill(OutcomeUp)
	assert.True(t, ok)
	assert.Equal(t, invT0.Add(2*time.Second), at)
	assert.Equal(t, "0.52", price.String())

	_, _, ok = s.LastFill(OutcomeDown)
	assert.False(t, ok)
}

func TestExposureView_Total(t *testing.T) {
	e := ExposureView{
		OpenOrderRemainingNotional: num("3"),
		OpenPositionNotional:       num("10"),
		UnconfirmedFillNotional:    num("1.5"),
	}
	assert.Equal(t, "14.5", e.Total().String())
	assert.Equal(t, "12.5", e.With(num("-2")).Total().String())
	assert.Equal(t, "0", ExposureView{OpenOrderRemainingNotional: num("-1")}.Total().String())
}

func TestOrderStatus_Terminal(t *testing.T) {
	size := num("10")

	cases := []struct {
		name   string
		status OrderStatus
		want   bool
	}{
		{"live", OrderStatus{State: OrderStateLive, RawStatus: "LIVE"}, false},
		{"partially filled", OrderStatus{State: OrderStateLive, FilledSize: num("4")}, false},
		{"fully filled", OrderStatus{FilledSize: num("10")}, true},
		{"no remaining", OrderStatus{HasRemaining: true, RemainingSize: decimal.Zero}, true},
		{"canceled", OrderStatus{State: OrderStateCanceled}, true},
		{"raw cancelled", OrderStatus{State: OrderStateUnknown, RawStatus: "order cancelled"}, true},
		{"raw expired", OrderStatus{RawStatus: "expired"}, true},
		{"unknown", OrderStatus{State: OrderStateUnknown}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.status.Terminal(size))
		})
	}
}

func TestMarketInstance_SecondsToEndFloors(t *testing.T) {
	m := MarketInstance{EndTime: invT0.Add(1500 * time.Millisecond)}
	assert.Equal(t, int64(1), m.SecondsToEnd(invT0))
	assert.Equal(t, int64(-1), m.SecondsToEnd(invT0.Add(2*time.Second)))
}

func TestParseSeries(t *testing.T) {
	s, err := ParseSeries("eth-1h")
	assert.NoError(t, err)
	assert.Equal(t, SeriesETH1h, s)
	assert.Equal(t, time.Hour, s.HardLifetime())

	_, err = ParseSeries("sol-15m")
	assert.Error(t, err)
}
