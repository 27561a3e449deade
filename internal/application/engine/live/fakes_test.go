package live_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Date(2025, 12, 14, 16, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeFeed struct {
	mu    sync.Mutex
	books map[string]domain.TopOfBook
	subs  []string
}

func newFeed() *fakeFeed { return &fakeFeed{books: map[string]domain.TopOfBook{}} }

func (f *fakeFeed) set(token, bid, ask string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.books[token] = domain.TopOfBook{
		TokenID:     token,
		BestBid:     dec(bid),
		BestAsk:     dec(ask),
		BestBidSize: dec("100"),
		BestAskSize: dec("100"),
		UpdatedAt:   at,
	}
}

func (f *fakeFeed) TopOfBook(token string) (domain.TopOfBook, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[token]
	return b, ok
}

func (f *fakeFeed) Subscribe(_ context.Context, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append([]string(nil), tokens...)
	return nil
}

type fakeGateway struct {
	mu        sync.Mutex
	seq       int
	placed    []domain.PlaceOrderRequest
	canceled  []string
	cancelErr error
	statuses  map[string]domain.OrderStatus
	open      []domain.RestingOrder
	onPlace   func() // runs before the placement is recorded, outside the lock
}

func newGateway() *fakeGateway {
	return &fakeGateway{statuses: map[string]domain.OrderStatus{}}
}

func (g *fakeGateway) PlaceLimitOrder(_ context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if g.onPlace != nil {
		g.onPlace()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.placed = append(g.placed, req)
	return domain.PlacedOrder{OrderID: fmt.Sprintf("0x%02d", g.seq), Status: "LIVE"}, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.canceled = append(g.canceled, id)
	return nil
}

func (g *fakeGateway) PollOrderStatus(_ context.Context, id string) (domain.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.statuses[id]; ok {
		return s, nil
	}
	return domain.OrderStatus{OrderID: id, State: domain.OrderStateLive, RawStatus: "LIVE"}, nil
}

func (g *fakeGateway) OpenOrders(_ context.Context) ([]domain.RestingOrder, error) {
	return g.open, nil
}

func (g *fakeGateway) setStatus(s domain.OrderStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[s.OrderID] = s
}

func (g *fakeGateway) placedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.placed)
}

func (g *fakeGateway) lastPlaced() domain.PlaceOrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.placed[len(g.placed)-1]
}

type fakePositions struct {
	mu    sync.Mutex
	clock *testClock
	sizes map[string]decimal.Decimal
	asOf  time.Time // zero means the clock's now
	err   error
	calls int
}

func (p *fakePositions) PositionsSnapshot(_ context.Context, account string) (domain.PositionsSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return domain.PositionsSnapshot{}, p.err
	}
	snap := domain.PositionsSnapshot{Account: account, AsOf: p.clock.Now()}
	if !p.asOf.IsZero() {
		snap.AsOf = p.asOf
	}
	for token, size := range p.sizes {
		snap.Positions = append(snap.Positions, domain.Position{TokenID: token, Size: size, Notional: size.Mul(dec("0.5"))})
	}
	return snap, nil
}

type fakeMarkets struct {
	markets []domain.MarketInstance
}

func (m *fakeMarkets) ActiveMarkets(_ context.Context, _ time.Time) ([]domain.MarketInstance, error) {
	return m.markets, nil
}

// fakeRecorder fails on an expired context, like the SQLite store does.
type fakeRecorder struct {
	mu     sync.Mutex
	traces []domain.DecisionTrace
	events []domain.OrderEvent
	fills  []domain.Fill
}

func (r *fakeRecorder) RecordDecision(ctx context.Context, t domain.DecisionTrace) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.traces = append(r.traces, t)
	return nil
}

func (r *fakeRecorder) RecordOrderEvent(ctx context.Context, ev domain.OrderEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRecorder) RecordFill(ctx context.Context, f domain.Fill) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fills = append(r.fills, f)
	return nil
}

func (r *fakeRecorder) Close() error { return nil }

func (r *fakeRecorder) traceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.traces)
}

func (r *fakeRecorder) cancels(reason domain.CancelReason) []domain.OrderEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.OrderEvent
	for _, ev := range r.events {
		if ev.Kind == domain.OrderEventCancel && ev.Reason == string(reason) {
			out = append(out, ev)
		}
	}
	return out
}

var errGateway = errors.New("gateway unavailable")

// fakeMetrics counts invariant violations and ignores the rest.
type fakeMetrics struct {
	mu         sync.Mutex
	violations map[string]int
}

func (m *fakeMetrics) violationCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.violations[kind]
}

func (m *fakeMetrics) InvariantViolation(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.violations == nil {
		m.violations = map[string]int{}
	}
	m.violations[kind]++
}

func (*fakeMetrics) ObserveTick(time.Duration)                           {}
func (*fakeMetrics) MarketSkipped(string)                                {}
func (*fakeMetrics) DecisionMade(domain.Series, domain.Phase)            {}
func (*fakeMetrics) OrderAction(domain.OrderEventKind, string, bool)     {}
func (*fakeMetrics) FillObserved(domain.Series, domain.Outcome, float64) {}
func (*fakeMetrics) SetExposure(float64)                                 {}
func (*fakeMetrics) SetImbalance(string, float64)                        {}
func (*fakeMetrics) MarketReleased(string)                               {}
func (*fakeMetrics) SetTrackedMarkets(int)                               {}
