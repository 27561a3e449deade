package live_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownmm/internal/application/engine"
	"github.com/alejandrodnm/updownmm/internal/application/engine/live"
	"github.com/alejandrodnm/updownmm/internal/domain"
	"github.com/alejandrodnm/updownmm/internal/domain/quoting"
)

type harness struct {
	clock     *testClock
	feed      *fakeFeed
	gw        *fakeGateway
	positions *fakePositions
	recorder  *fakeRecorder
	markets   *fakeMarkets
	market    domain.MarketInstance
	engine    *live.Engine
}

func newHarness(t *testing.T, mutate func(*live.Config, *live.Deps)) *harness {
	t.Helper()
	clock := newClock()
	h := &harness{
		clock:     clock,
		feed:      newFeed(),
		gw:        newGateway(),
		positions: &fakePositions{clock: clock, sizes: map[string]decimal.Decimal{}},
		recorder:  &fakeRecorder{},
		market: domain.MarketInstance{
			ID:          "m-btc",
			Slug:        "btc-updown-15m-1765728000",
			Series:      domain.SeriesBTC15m,
			UpTokenID:   "up",
			DownTokenID: "down",
			EndTime:     clock.Now().Add(500 * time.Second),
		},
	}
	h.markets = &fakeMarkets{markets: []domain.MarketInstance{h.market}}
	cfg := live.Config{Account: "0xfunder", Params: quoting.DefaultParams()}
	deps := live.Deps{
		Feed:       h.feed,
		Subscriber: h.feed,
		Gateway:    h.gw,
		OpenOrders: h.gw,
		Positions:  h.positions,
		Markets:    h.markets,
		Recorder:   h.recorder,
		Clock:      clock.Now,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	h.engine = live.New(cfg, deps)
	return h
}

func (h *harness) books(upBid, upAsk, downBid, downAsk string) {
	now := h.clock.Now()
	h.feed.set("up", upBid, upAsk, now)
	h.feed.set("down", downBid, downAsk, now)
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Start(context.Background()))
	h.engine.FlushRecords()
}

func (h *harness) tick() {
	h.engine.Tick(context.Background())
	h.engine.FlushRecords()
}

func (h *harness) poll() {
	h.engine.PollOrders(context.Background())
	h.engine.FlushRecords()
}

func TestEngine_QuotesBothLegs(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	assert.Equal(t, []string{"down", "up"}, h.feed.subs)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()

	require.Equal(t, 2, h.gw.placedCount())
	status := h.engine.Status()
	require.Len(t, status, 1)
	assert.Equal(t, domain.PhaseQuoting, status[0].Phase)
	require.NotNil(t, status[0].UpOrder)
	require.NotNil(t, status[0].DownOrder)
	assert.Equal(t, "0.55", status[0].UpOrder.Price.String())
	assert.Equal(t, "0.45", status[0].DownOrder.Price.String())

	// 19 × 0.55 + 19 × 0.45
	assert.Equal(t, "19", h.engine.Exposure().Total().String())
	assert.Len(t, h.recorder.traces, 1)
}

func TestEngine_ReplaceThrottle(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()
	require.Equal(t, 2, h.gw.placedCount())

	h.clock.Advance(3000 * time.Millisecond)
	h.books("0.55", "0.57", "0.44", "0.46")
	h.tick()
	assert.Equal(t, 2, h.gw.placedCount())
	assert.Empty(t, h.gw.canceled)

	h.clock.Advance(2001 * time.Millisecond)
	h.books("0.55", "0.57", "0.44", "0.46")
	h.tick()

	require.Equal(t, 3, h.gw.placedCount())
	assert.Equal(t, []string{"0x01"}, h.gw.canceled)
	last := h.gw.lastPlaced()
	assert.Equal(t, "up", last.TokenID)
	assert.Equal(t, "0.56", last.Price.String())
	assert.Equal(t, domain.PlaceReplace, last.Reason)

	replaced := h.recorder.cancels(domain.CancelReplacePrice)
	require.Len(t, replaced, 1)
	assert.Equal(t, "0x01", replaced[0].OrderID)
}

func TestEngine_StaleBookCancelsBothLegs(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()
	require.Equal(t, 2, h.gw.placedCount())

	h.clock.Advance(2500 * time.Millisecond)
	h.feed.set("up", "0.54", "0.56", h.clock.Now())
	h.tick()

	assert.Len(t, h.recorder.cancels(domain.CancelBookStale), 2)
	status := h.engine.Status()[0]
	assert.Nil(t, status.UpOrder)
	assert.Nil(t, status.DownOrder)
	assert.True(t, h.engine.Exposure().Total().IsZero())
}

func TestEngine_UnseededInventoryDoesNotQuote(t *testing.T) {
	h := newHarness(t, nil)
	h.positions.err = errGateway
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()
	assert.Zero(t, h.gw.placedCount())

	h.positions.err = nil
	require.NoError(t, h.engine.RefreshPositions(context.Background(), false))
	h.tick()
	assert.Equal(t, 2, h.gw.placedCount())
}

func TestEngine_CancelFailureBlocksReplacement(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()
	require.Equal(t, 2, h.gw.placedCount())

	h.gw.cancelErr = errGateway
	h.clock.Advance(6 * time.Second)
	h.books("0.55", "0.57", "0.44", "0.46")
	h.tick()

	assert.Equal(t, 2, h.gw.placedCount())
	status := h.engine.Status()[0]
	require.NotNil(t, status.UpOrder)
	assert.Equal(t, "0x01", status.UpOrder.OrderID)
}

func TestEngine_PollAppliesFills(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()

	h.gw.statuses["0x01"] = domain.OrderStatus{
		OrderID:    "0x01",
		State:      domain.OrderStateLive,
		FilledSize: dec("5"),
	}
	h.gw.statuses["0x02"] = domain.OrderStatus{
		OrderID:      "0x02",
		State:        domain.OrderStateMatched,
		FilledSize:   dec("19"),
		HasRemaining: true,
	}
	h.clock.Advance(time.Second)
	h.poll()

	status := h.engine.Status()[0]
	assert.Equal(t, "5", status.UpShares.String())
	assert.Equal(t, "19", status.DownShares.String())
	require.NotNil(t, status.UpOrder)
	assert.Equal(t, "5", status.UpOrder.Matched.String())
	assert.Nil(t, status.DownOrder)
	assert.Len(t, h.recorder.fills, 2)

	// 14 × 0.55 resting + fills 5 × 0.55 + 19 × 0.45
	assert.Equal(t, "19", h.engine.Exposure().Total().String())
}

func TestEngine_StaleOrderTimeout(t *testing.T) {
	h := newHarness(t, func(c *live.Config, _ *live.Deps) {
		c.StaleOrderTimeout = 10 * time.Second
	})
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()

	h.clock.Advance(11 * time.Second)
	h.poll()

	assert.Len(t, h.recorder.cancels(domain.CancelStaleTimeout), 2)
}

func TestEngine_KillSwitchBlocksPlacement(t *testing.T) {
	h := newHarness(t, func(_ *live.Config, d *live.Deps) {
		d.Gateway = engine.NewGuard(d.Gateway, engine.GuardConfig{Mode: engine.ModeLive, LiveAck: true, KillSwitch: true})
	})
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()

	assert.Zero(t, h.gw.placedCount())
	require.Len(t, h.recorder.events, 2)
	for _, ev := range h.recorder.events {
		assert.False(t, ev.Success)
		assert.Contains(t, ev.Error, "kill switch")
	}
	assert.True(t, h.engine.Exposure().Total().IsZero())
}

func TestEngine_ShutdownCancelsEverything(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()
	h.engine.Shutdown()

	assert.Len(t, h.recorder.cancels(domain.CancelShutdown), 2)
	assert.ElementsMatch(t, []string{"0x01", "0x02"}, h.gw.canceled)
}

func TestEngine_CancelsUnrecognizedOrdersAtStart(t *testing.T) {
	h := newHarness(t, nil)
	h.gw.open = []domain.RestingOrder{
		{OrderID: "0xforeign", TokenID: "up", Price: dec("0.30"), Size: dec("10")},
		{OrderID: "0xother", TokenID: "unrelated", Price: dec("0.30"), Size: dec("10")},
	}
	h.start(t)

	assert.Equal(t, []string{"0xforeign"}, h.gw.canceled)
	assert.Len(t, h.recorder.cancels(domain.CancelUnrecognized), 1)
}

func TestEngine_OrphanOpenOrderIsReportedNotCanceled(t *testing.T) {
	metrics := &fakeMetrics{}
	h := newHarness(t, func(_ *live.Config, d *live.Deps) {
		d.Metrics = metrics
	})
	h.gw.open = []domain.RestingOrder{
		{OrderID: "0xorphan", TokenID: "unrelated", Price: dec("0.30"), Size: dec("10")},
	}
	h.start(t)

	assert.Empty(t, h.gw.canceled)
	assert.Equal(t, 1, metrics.violationCount("orphan_order"))
}

func TestEngine_OutOfWindowCancels(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()
	require.Equal(t, 2, h.gw.placedCount())

	h.clock.Advance(501 * time.Second)
	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()
	// the canceled orders' final fills are read before the market goes
	h.poll()
	h.tick()

	assert.Len(t, h.recorder.cancels(domain.CancelOutsideLifetime), 2)
	// expired with no orders left: released
	assert.Empty(t, h.engine.Status())
}

func TestEngine_TotalCapAcrossMarkets(t *testing.T) {
	h := newHarness(t, func(c *live.Config, _ *live.Deps) {
		c.Params.Caps = quoting.Caps{
			BankrollUSD:      dec("30"),
			MaxOrderFraction: dec("1"),
			MaxTotalFraction: dec("0.5"),
		}
	})
	h.markets.markets = append(h.markets.markets, domain.MarketInstance{
		ID:          "m-eth",
		Slug:        "eth-updown-15m-1765728000",
		Series:      domain.SeriesETH15m,
		UpTokenID:   "eth-up",
		DownTokenID: "eth-down",
		EndTime:     h.market.EndTime,
	})
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	now := h.clock.Now()
	h.feed.set("eth-up", "0.54", "0.56", now)
	h.feed.set("eth-down", "0.44", "0.46", now)
	h.tick()

	total := decimal.Zero
	for _, req := range h.gw.placed {
		total = total.Add(req.Notional())
	}
	assert.True(t, total.LessThanOrEqual(dec("15")), "placed %s", total)
	assert.True(t, h.engine.Exposure().Total().LessThanOrEqual(dec("15")))
}

func TestEngine_CancelSettlesFillsSinceLastPoll(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()
	require.Equal(t, 2, h.gw.placedCount())

	// filled between polls, then replaced before the poller saw it
	h.gw.setStatus(domain.OrderStatus{OrderID: "0x01", State: domain.OrderStateLive, FilledSize: dec("5")})
	h.clock.Advance(5001 * time.Millisecond)
	h.books("0.55", "0.57", "0.44", "0.46")
	h.tick()
	require.Equal(t, []string{"0x01"}, h.gw.canceled)

	// the next poll reads the canceled order once more, even inside the interval
	h.poll()
	status := h.engine.Status()[0]
	assert.Equal(t, "5", status.UpShares.String())
	require.Len(t, h.recorder.fills, 1)
	assert.Equal(t, "0x01", h.recorder.fills[0].OrderID)
	assert.Equal(t, "2.75", h.engine.Exposure().UnconfirmedFillNotional.String())

	// settled: later polls leave it alone and nothing counts twice
	h.clock.Advance(time.Second)
	h.poll()
	assert.Equal(t, "5", h.engine.Status()[0].UpShares.String())
	assert.Len(t, h.recorder.fills, 1)
}

func TestEngine_KillSwitchHoldsRestingQuotes(t *testing.T) {
	var guard *engine.Guard
	h := newHarness(t, func(_ *live.Config, d *live.Deps) {
		guard = engine.NewGuard(d.Gateway, engine.GuardConfig{Mode: engine.ModePaper})
		d.Gateway = guard
	})
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()
	require.Equal(t, 2, h.gw.placedCount())

	guard.Engage("operator")
	h.clock.Advance(5001 * time.Millisecond)
	h.books("0.55", "0.57", "0.44", "0.46")
	h.tick()

	assert.Empty(t, h.gw.canceled)
	status := h.engine.Status()[0]
	require.NotNil(t, status.UpOrder)
	assert.Equal(t, "0x01", status.UpOrder.OrderID)

	// the emergency stop path still cancels
	h.clock.Advance(2500 * time.Millisecond)
	h.tick()
	assert.ElementsMatch(t, []string{"0x01", "0x02"}, h.gw.canceled)
}

func TestEngine_FillsSurviveStaleSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()

	h.clock.Advance(time.Second)
	fillAt := h.clock.Now()
	h.gw.setStatus(domain.OrderStatus{OrderID: "0x01", State: domain.OrderStateLive, FilledSize: dec("5")})
	h.poll()

	// snapshot taken before the fill: the fill is kept on top of it
	h.positions.asOf = fillAt.Add(-500 * time.Millisecond)
	require.NoError(t, h.engine.RefreshPositions(context.Background(), false))
	assert.Equal(t, "5", h.engine.Status()[0].UpShares.String())
	ex := h.engine.Exposure()
	assert.Equal(t, "2.75", ex.UnconfirmedFillNotional.String())
	assert.True(t, ex.OpenPositionNotional.IsZero())

	// snapshot that includes the fill replaces it, no double count
	h.clock.Advance(time.Second)
	h.positions.asOf = time.Time{}
	h.positions.sizes["up"] = dec("5")
	require.NoError(t, h.engine.RefreshPositions(context.Background(), true))
	assert.Equal(t, "5", h.engine.Status()[0].UpShares.String())
	ex = h.engine.Exposure()
	assert.True(t, ex.UnconfirmedFillNotional.IsZero())
	assert.Equal(t, "2.5", ex.OpenPositionNotional.String())
	// 14 × 0.55 + 19 × 0.45 resting
	assert.Equal(t, "16.25", ex.OpenOrderRemainingNotional.String())
}

func TestEngine_EndOfMarketTopUp(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()

	h.clock.Advance(time.Second)
	h.gw.setStatus(domain.OrderStatus{OrderID: "0x01", State: domain.OrderStateMatched, FilledSize: dec("19"), HasRemaining: true})
	h.poll()
	require.Equal(t, "19", h.engine.Status()[0].UpShares.String())

	// 55s to the end
	h.clock.Advance(444 * time.Second)
	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()

	topUps := h.recorder.cancels(domain.CancelTopUp)
	require.Len(t, topUps, 1)
	assert.Equal(t, "0x02", topUps[0].OrderID)

	var topUp *domain.PlaceOrderRequest
	for i, req := range h.gw.placed {
		if req.Reason == domain.PlaceTopUp {
			topUp = &h.gw.placed[i]
		}
	}
	require.NotNil(t, topUp)
	assert.Equal(t, "down", topUp.TokenID)
	assert.Equal(t, "0.46", topUp.Price.String())
	assert.Equal(t, "19", topUp.Size.String())
	status := h.engine.Status()[0]
	assert.Equal(t, domain.PhaseTopUpPending, status.Phase)
	require.NotNil(t, status.DownOrder)
	assert.Equal(t, domain.PlaceTopUp, status.DownOrder.Reason)

	// the working top-up is held on the next tick
	placed := h.gw.placedCount()
	h.clock.Advance(time.Second)
	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()
	assert.Equal(t, placed, h.gw.placedCount())
	assert.Len(t, h.recorder.cancels(domain.CancelTopUp), 1)
}

func TestEngine_BusyMarketSkipped(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.gw.onPlace = func() {
		once.Do(func() {
			close(entered)
			<-release
		})
	}

	h.books("0.54", "0.56", "0.44", "0.46")
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.engine.Tick(context.Background())
	}()
	<-entered

	// the first tick still holds the market
	h.engine.Tick(context.Background())
	h.engine.FlushRecords()
	assert.Zero(t, h.recorder.traceCount())

	close(release)
	<-done
	h.engine.FlushRecords()
	assert.Equal(t, 1, h.recorder.traceCount())
	assert.Equal(t, 2, h.gw.placedCount())
}

// statusBlockingGateway answers status polls only when the caller gives up.
type statusBlockingGateway struct {
	*fakeGateway
}

func (g statusBlockingGateway) PollOrderStatus(ctx context.Context, _ string) (domain.OrderStatus, error) {
	<-ctx.Done()
	return domain.OrderStatus{}, ctx.Err()
}

// slowCancelGateway ignores the context and takes its time to cancel.
type slowCancelGateway struct {
	*fakeGateway
	delay time.Duration
}

func (g slowCancelGateway) CancelOrder(ctx context.Context, id string) error {
	time.Sleep(g.delay)
	return g.fakeGateway.CancelOrder(ctx, id)
}

func TestEngine_TickNotDelayedBySlowStatusPolls(t *testing.T) {
	h := newHarness(t, func(_ *live.Config, d *live.Deps) {
		d.Gateway = statusBlockingGateway{d.Gateway.(*fakeGateway)}
	})
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()
	require.Equal(t, 2, h.gw.placedCount())

	h.clock.Advance(2500 * time.Millisecond)
	start := time.Now()
	h.engine.Tick(context.Background())
	took := time.Since(start)

	assert.Less(t, took, 400*time.Millisecond)
	assert.ElementsMatch(t, []string{"0x01", "0x02"}, h.gw.canceled)

	// the poller gives up on the final read and forces a snapshot instead
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	calls := h.positions.calls
	h.engine.PollOrders(ctx)
	require.NoError(t, h.engine.RefreshPositions(context.Background(), false))
	assert.Equal(t, calls+1, h.positions.calls)
}

func TestEngine_RecordsSurviveMarketDeadline(t *testing.T) {
	h := newHarness(t, func(c *live.Config, d *live.Deps) {
		c.MarketDeadline = 20 * time.Millisecond
		d.Gateway = slowCancelGateway{fakeGateway: d.Gateway.(*fakeGateway), delay: 50 * time.Millisecond}
	})
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()
	require.Equal(t, 1, h.recorder.traceCount())

	h.clock.Advance(2500 * time.Millisecond)
	h.tick()

	assert.Equal(t, 2, h.recorder.traceCount())
	stale := h.recorder.cancels(domain.CancelBookStale)
	require.Len(t, stale, 2)
	for _, ev := range stale {
		assert.True(t, ev.Success)
	}
}

func TestEngine_ShutdownReadsFinalFills(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)

	h.books("0.54", "0.56", "0.44", "0.46")
	h.tick()

	h.gw.setStatus(domain.OrderStatus{OrderID: "0x01", State: domain.OrderStateCanceled, FilledSize: dec("3")})
	h.engine.Shutdown()

	assert.Equal(t, "3", h.engine.Status()[0].UpShares.String())
	require.Len(t, h.recorder.fills, 1)
	assert.Equal(t, "0x01", h.recorder.fills[0].OrderID)
}
