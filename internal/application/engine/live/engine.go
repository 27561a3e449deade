package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/updownmm/internal/application/engine"
	"github.com/alejandrodnm/updownmm/internal/domain"
	"github.com/alejandrodnm/updownmm/internal/domain/quoting"
	"github.com/alejandrodnm/updownmm/internal/ports"
)

const (
	defaultTickInterval      = 500 * time.Millisecond
	defaultMarketDeadline    = 400 * time.Millisecond
	defaultPositionsRefresh  = 5 * time.Second
	defaultPositionsTTL      = 60 * time.Second
	defaultPollInterval      = time.Second
	defaultStaleOrderTimeout = 300 * time.Second
	defaultDiscoveryInterval = 30 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultMaxConcurrent     = 8
)

// Config holds configuration for the quoting engine.
type Config struct {
	TickInterval         time.Duration
	MarketDeadline       time.Duration
	PositionsRefresh     time.Duration
	PositionsTTL         time.Duration
	PollInterval         time.Duration
	StaleOrderTimeout    time.Duration // negative disables
	DiscoveryInterval    time.Duration
	ShutdownTimeout      time.Duration
	MaxConcurrentMarkets int
	StatusEvery          int // ticks between status tables, 0 disables
	Account              string
	Params               quoting.Params
}

func (c *Config) setDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = defaultTickInterval
	}
	if c.MarketDeadline <= 0 {
		c.MarketDeadline = defaultMarketDeadline
	}
	if c.PositionsRefresh < defaultPositionsRefresh {
		c.PositionsRefresh = defaultPositionsRefresh
	}
	if c.PositionsTTL <= 0 {
		c.PositionsTTL = defaultPositionsTTL
	}
	if c.PollInterval < defaultPollInterval {
		c.PollInterval = defaultPollInterval
	}
	if c.StaleOrderTimeout == 0 {
		c.StaleOrderTimeout = defaultStaleOrderTimeout
	}
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = defaultDiscoveryInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.MaxConcurrentMarkets <= 0 {
		c.MaxConcurrentMarkets = defaultMaxConcurrent
	}
}

// Deps are the collaborators of the engine. Subscriber, OpenOrders,
// Notifier and Metrics are optional. KillSwitch defaults to the gateway
// when it implements one.
type Deps struct {
	Feed       ports.TopOfBookFeed
	Subscriber ports.BookSubscriber
	Gateway    ports.OrderGateway
	KillSwitch ports.KillSwitch
	OpenOrders ports.OpenOrderLister
	Positions  ports.PositionsProvider
	Markets    ports.MarketSource
	TickSizes  ports.TickSizeProvider
	Recorder   ports.DecisionRecorder
	Notifier   ports.StatusNotifier
	Metrics    ports.Metrics
	Clock      engine.Clock
}

// Engine runs the per-market quoting loop.
type Engine struct {
	cfg       Config
	runID     string
	feed      ports.TopOfBookFeed
	sub       ports.BookSubscriber
	gateway   ports.OrderGateway
	kill      ports.KillSwitch
	openOrds  ports.OpenOrderLister
	positions ports.PositionsProvider
	markets   ports.MarketSource
	ticks     ports.TickSizeProvider
	notifier  ports.StatusNotifier
	metrics   ports.Metrics
	now       engine.Clock

	ledger  *exposureLedger
	exec    *executor
	records *recordQueue

	mu       sync.RWMutex
	registry map[string]*marketState

	posMu              sync.Mutex
	lastSnapshot       *domain.PositionsSnapshot
	fillsSinceSnapshot atomic.Int64

	tickCount atomic.Int64
}

// New creates the engine. The gateway should already be wrapped by engine.Guard.
func New(cfg Config, deps Deps) *Engine {
	cfg.setDefaults()
	if deps.Clock == nil {
		deps.Clock = engine.SystemClock
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.KillSwitch == nil {
		deps.KillSwitch, _ = deps.Gateway.(ports.KillSwitch)
	}

	e := &Engine{
		cfg:       cfg,
		runID:     uuid.NewString(),
		feed:      deps.Feed,
		sub:       deps.Subscriber,
		gateway:   deps.Gateway,
		kill:      deps.KillSwitch,
		openOrds:  deps.OpenOrders,
		positions: deps.Positions,
		markets:   deps.Markets,
		ticks:     deps.TickSizes,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		now:       deps.Clock,
		ledger:    newExposureLedger(),
		records:   newRecordQueue(deps.Recorder, deps.Metrics),
		registry:  make(map[string]*marketState),
	}
	e.exec = &executor{
		runID:   e.runID,
		gateway: deps.Gateway,
		ledger:  e.ledger,
		records: e.records,
		metrics: deps.Metrics,
		caps:    cfg.Params.Caps,
		now:     deps.Clock,
		fills:   &e.fillsSinceSnapshot,
	}
	return e
}

// RunID identifies this process run in traces and order events.
func (e *Engine) RunID() string { return e.runID }

// Start discovers markets, loads the first positions snapshot and cancels
// orders on tracked tokens the engine does not own. Only a discovery
// failure is fatal.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.RefreshMarkets(ctx); err != nil {
		return fmt.Errorf("live.Start: %w", err)
	}
	if err := e.RefreshPositions(ctx, true); err != nil {
		// markets stay unseeded, and unquoted, until a snapshot succeeds
		slog.Warn("live: initial positions snapshot failed", "err", err)
	}
	e.cancelUnrecognized(ctx)
	slog.Info("live: engine started", "run", e.runID, "markets", len(e.snapshotMarkets()))
	return nil
}

// Run executes Start and then the scheduler until ctx is canceled. On exit
// every resting order is canceled with a fresh context.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		e.records.close()
		return err
	}
	defer e.Shutdown()

	tick := time.NewTicker(e.cfg.TickInterval)
	defer tick.Stop()
	poll := time.NewTicker(e.cfg.PollInterval)
	defer poll.Stop()
	pos := time.NewTicker(e.cfg.PositionsRefresh)
	defer pos.Stop()
	disc := time.NewTicker(e.cfg.DiscoveryInterval)
	defer disc.Stop()

	// Pollers run on their own goroutine so a slow gateway never delays a tick.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
				e.PollOrders(ctx)
			case <-pos.C:
				if err := e.RefreshPositions(ctx, false); err != nil {
					slog.Warn("live: positions refresh failed", "err", err)
				}
			case <-disc.C:
				if err := e.RefreshMarkets(ctx); err != nil {
					slog.Warn("live: market discovery failed", "err", err)
				}
			}
		}
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			slog.Info("live: stopping", "run", e.runID)
			return nil
		case <-tick.C:
			e.Tick(ctx)
		}
	}
}

// tickStats counts per-tick outcomes, logged at debug level.
type tickStats struct {
	evaluated, busy, timedOut       atomic.Int64
	placed, canceled, failed, skips atomic.Int64
}

func (s *tickStats) add(r execResult) {
	s.placed.Add(int64(r.placed))
	s.canceled.Add(int64(r.canceled))
	s.failed.Add(int64(r.failed))
	s.skips.Add(int64(r.skipped))
}

func (s *tickStats) log(markets int, took time.Duration) {
	slog.Debug("live: tick",
		"markets", markets,
		"evaluated", s.evaluated.Load(),
		"skip_busy", s.busy.Load(),
		"skip_deadline", s.timedOut.Load(),
		"placed", s.placed.Load(),
		"canceled", s.canceled.Load(),
		"failed", s.failed.Load(),
		"skip_place", s.skips.Load(),
		"took", took.Round(time.Microsecond),
	)
}

// Tick evaluates every tracked market once, concurrently. A market still
// busy from a previous tick or poll is skipped.
func (e *Engine) Tick(ctx context.Context) {
	start := time.Now()
	now := e.now()
	markets := e.snapshotMarkets()

	var stats tickStats
	var g errgroup.Group
	g.SetLimit(e.cfg.MaxConcurrentMarkets)
	for _, st := range markets {
		g.Go(func() error {
			if !st.mu.TryLock() {
				stats.busy.Add(1)
				e.metrics.MarketSkipped("busy")
				return nil
			}
			defer st.mu.Unlock()

			mctx, cancel := context.WithTimeout(ctx, e.cfg.MarketDeadline)
			defer cancel()
			stats.add(e.evaluateMarket(mctx, st, now))
			stats.evaluated.Add(1)
			if errors.Is(mctx.Err(), context.DeadlineExceeded) {
				stats.timedOut.Add(1)
				e.metrics.MarketSkipped("deadline")
			}
			return nil
		})
	}
	_ = g.Wait()

	e.pruneMarkets(now)
	took := time.Since(start)
	e.metrics.ObserveTick(took)
	e.metrics.SetExposure(e.ledger.view().Total().InexactFloat64())
	stats.log(len(markets), took)

	n := e.tickCount.Add(1)
	if e.notifier != nil && e.cfg.StatusEvery > 0 && n%int64(e.cfg.StatusEvery) == 0 {
		if err := e.notifier.NotifyStatus(ctx, e.Status()); err != nil {
			slog.Warn("live: error printing status", "err", err)
		}
	}
}

// evaluateMarket runs one decision for one market. Caller holds st.mu.
func (e *Engine) evaluateMarket(ctx context.Context, st *marketState, now time.Time) execResult {
	m := st.market
	if st.dropped.Load() {
		var res execResult
		for _, o := range domain.Outcomes {
			if st.orders[o] == nil {
				continue
			}
			if err := e.exec.cancel(ctx, st, o, domain.CancelMarketDropped, m.SecondsToEnd(now)); err != nil {
				res.failed++
				continue
			}
			res.canceled++
		}
		st.lastReason = "no longer listed"
		return res
	}

	in := quoting.Input{
		RunID:     e.runID,
		Market:    m,
		Now:       now,
		Seeded:    st.inv.Seeded(),
		Imbalance: st.inv.Imbalance(),
		TopUp:     st.topUp,
		Orders:    st.orders,
		Exposure:  e.ledger.view(),
	}
	if e.kill != nil {
		in.Halted, in.HaltReason = e.kill.KillSwitchEngaged()
	}
	if b, ok := e.feed.TopOfBook(m.UpTokenID); ok {
		in.Up = &b
	}
	if b, ok := e.feed.TopOfBook(m.DownTokenID); ok {
		in.Down = &b
	}
	if quoting.CheckWindow(m, now, e.cfg.Params).InScope {
		for _, o := range domain.Outcomes {
			in.TickSizes[o] = e.tickSize(ctx, m.TokenID(o))
		}
	}

	d := quoting.Evaluate(in, e.cfg.Params)
	for _, v := range d.Violations {
		slog.Error("live: invariant violation", "market", m.Slug, "detail", v)
		e.metrics.InvariantViolation("sizing")
	}

	res := e.exec.apply(ctx, st, d)

	st.lastPhase = d.Phase
	st.lastEdge = d.Trace.Edge
	st.lastEval = now
	if g, failed := d.Trace.FailedGate(); failed {
		st.lastReason = fmt.Sprintf("%s: %s", g.Gate, g.Detail)
	} else if d.Trace.TopUp != "" {
		st.lastReason = d.Trace.TopUp
	} else {
		st.lastReason = ""
	}

	// queued: the trace must outlive an evaluation that hit its deadline
	e.records.decision(d.Trace)
	e.metrics.DecisionMade(m.Series, d.Phase)
	return res
}

func (e *Engine) tickSize(ctx context.Context, tokenID string) decimal.Decimal {
	if e.ticks == nil {
		return e.cfg.Params.DefaultTick
	}
	t, err := e.ticks.TickSize(ctx, tokenID)
	if err != nil || !t.IsPositive() {
		return e.cfg.Params.DefaultTick
	}
	return t
}

// RefreshMarkets merges the discovered markets into the registry. Markets no
// longer reported are flagged as dropped and removed once they have no orders.
func (e *Engine) RefreshMarkets(ctx context.Context) error {
	now := e.now()
	found, err := e.markets.ActiveMarkets(ctx, now)
	if err != nil {
		return fmt.Errorf("live.RefreshMarkets: %w", err)
	}

	seen := make(map[string]bool, len(found))
	var added []*marketState

	e.mu.Lock()
	for _, m := range found {
		if err := m.Validate(); err != nil {
			slog.Warn("live: discovered market rejected", "slug", m.Slug, "err", err)
			continue
		}
		seen[m.ID] = true
		if _, ok := e.registry[m.ID]; ok {
			continue
		}
		st := newMarketState(m)
		e.registry[m.ID] = st
		added = append(added, st)
	}
	for id, st := range e.registry {
		if !seen[id] && st.dropped.CompareAndSwap(false, true) {
			slog.Info("live: market no longer listed", "market", st.market.Slug)
		}
	}
	tokens := e.tokensLocked()
	n := len(e.registry)
	e.mu.Unlock()

	e.posMu.Lock()
	snap := e.lastSnapshot
	e.posMu.Unlock()
	for _, st := range added {
		slog.Info("live: tracking market",
			"market", st.market.Slug,
			"series", st.market.Series,
			"ends", st.market.EndTime.Format("15:04:05"),
		)
		if snap != nil {
			st.mu.Lock()
			e.ingest(st, *snap)
			st.mu.Unlock()
		}
	}

	e.metrics.SetTrackedMarkets(n)
	if e.sub != nil && len(added) > 0 {
		if err := e.sub.Subscribe(ctx, tokens); err != nil {
			slog.Warn("live: feed subscription failed", "err", err)
		}
	}
	return nil
}

func (e *Engine) tokensLocked() []string {
	tokens := make([]string, 0, 2*len(e.registry))
	for _, st := range e.registry {
		tokens = append(tokens, st.market.UpTokenID, st.market.DownTokenID)
	}
	sort.Strings(tokens)
	return tokens
}

// pruneMarkets forgets expired or dropped markets without resting orders.
func (e *Engine) pruneMarkets(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, st := range e.registry {
		if !st.mu.TryLock() {
			continue
		}
		gone := (st.dropped.Load() || st.market.Expired(now)) && !st.hasOrders() && len(st.settling) == 0
		st.mu.Unlock()
		if gone {
			delete(e.registry, id)
			e.ledger.dropMarket(id)
			e.metrics.MarketReleased(st.market.Slug)
			slog.Info("live: market released", "market", st.market.Slug)
		}
	}
}

func (e *Engine) snapshotMarkets() []*marketState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*marketState, 0, len(e.registry))
	for _, st := range e.registry {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].market.EndTime.Before(out[j].market.EndTime)
	})
	return out
}

// cancelUnrecognized cancels open orders on tracked tokens that this run
// did not place.
func (e *Engine) cancelUnrecognized(ctx context.Context) {
	if e.openOrds == nil {
		return
	}
	open, err := e.openOrds.OpenOrders(ctx)
	if err != nil {
		slog.Warn("live: could not list open orders", "err", err)
		return
	}

	byToken := make(map[string]*marketState)
	for _, st := range e.snapshotMarkets() {
		byToken[st.market.UpTokenID] = st
		byToken[st.market.DownTokenID] = st
	}
	for _, o := range open {
		st, ok := byToken[o.TokenID]
		if !ok {
			slog.Error("live: open order on a token with no tracked market",
				"order", o.OrderID, "token", o.TokenID, "price", o.Price.StringFixed(2), "size", o.Size.StringFixed(2))
			e.metrics.InvariantViolation("orphan_order")
			continue
		}
		st.mu.Lock()
		outcome, _ := st.market.OutcomeOf(o.TokenID)
		foreign := o
		foreign.Outcome = outcome
		foreign.MarketID = st.market.ID
		if st.orders[outcome] == nil {
			st.orders[outcome] = &foreign
			if err := e.exec.cancel(ctx, st, outcome, domain.CancelUnrecognized, st.market.SecondsToEnd(e.now())); err != nil {
				// keep it tracked: the leg stays blocked until the poller sees it closed
				e.metrics.InvariantViolation("unrecognized_order")
			}
		}
		st.mu.Unlock()
	}
}

// Shutdown cancels every resting order with a fresh bounded context.
func (e *Engine) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()

	canceled, failed := 0, 0
	for _, st := range e.snapshotMarkets() {
		st.mu.Lock()
		for _, o := range domain.Outcomes {
			if st.orders[o] == nil {
				continue
			}
			if err := e.exec.cancel(ctx, st, o, domain.CancelShutdown, st.market.SecondsToEnd(e.now())); err != nil {
				failed++
				continue
			}
			canceled++
		}
		st.mu.Unlock()
	}
	// read the final fills of what was just canceled before the store closes
	e.PollOrders(ctx)
	e.records.close()
	slog.Info("live: shutdown complete", "canceled", canceled, "failed", failed)
}

// FlushRecords blocks until every queued trace, order event and fill has
// been handed to the recorder.
func (e *Engine) FlushRecords() {
	e.records.flush()
}

// Status returns the operator view of every tracked market.
func (e *Engine) Status() []domain.MarketStatus {
	now := e.now()
	markets := e.snapshotMarkets()
	out := make([]domain.MarketStatus, 0, len(markets))
	for _, st := range markets {
		st.mu.Lock()
		out = append(out, st.status(now))
		st.mu.Unlock()
	}
	return out
}

// Exposure returns the current aggregate exposure.
func (e *Engine) Exposure() domain.ExposureView {
	return e.ledger.view()
}

type nopMetrics struct{}

func (nopMetrics) ObserveTick(time.Duration)                           {}
func (nopMetrics) MarketSkipped(string)                                {}
func (nopMetrics) DecisionMade(domain.Series, domain.Phase)            {}
func (nopMetrics) OrderAction(domain.OrderEventKind, string, bool)     {}
func (nopMetrics) FillObserved(domain.Series, domain.Outcome, float64) {}
func (nopMetrics) InvariantViolation(string)                           {}
func (nopMetrics) SetExposure(float64)                                 {}
func (nopMetrics) SetImbalance(string, float64)                        {}
func (nopMetrics) MarketReleased(string)                               {}
func (nopMetrics) SetTrackedMarkets(int)                               {}
