package paper

// exchange.go: exchange simulado para paper trading.
//
// Las órdenes se cruzan contra el top of book del feed real:
//   - al colocar, si el ask ya está en o por debajo del precio, se ejecuta
//     al ask hasta el tamaño visible; el resto queda en reposo.
//   - en cada poll, una orden en reposo se ejecuta a su precio límite si el
//     ask bajó hasta ella.
// No hay cola por delante ni impacto de mercado: el resultado es optimista.

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
	"github.com/alejandrodnm/updownmm/internal/ports"
)

type paperOrder struct {
	id       string
	marketID string
	tokenID  string
	price    decimal.Decimal
	size     decimal.Decimal
	matched  decimal.Decimal
	canceled bool
	placedAt time.Time
}

func (o *paperOrder) remaining() decimal.Decimal {
	return o.size.Sub(o.matched)
}

func (o *paperOrder) status() string {
	switch {
	case o.canceled:
		return "CANCELED"
	case !o.remaining().IsPositive():
		return "MATCHED"
	}
	return "LIVE"
}

type holding struct {
	size decimal.Decimal
	cost decimal.Decimal
}

// Exchange implementa ports.OrderGateway, ports.OpenOrderLister y
// ports.PositionsProvider en memoria.
type Exchange struct {
	feed ports.TopOfBookFeed
	now  func() time.Time

	mu       sync.Mutex
	orders   map[string]*paperOrder
	holdings map[string]*holding
}

// NewExchange crea un exchange vacío que lee precios de feed.
func NewExchange(feed ports.TopOfBookFeed, now func() time.Time) *Exchange {
	if now == nil {
		now = time.Now
	}
	return &Exchange{
		feed:     feed,
		now:      now,
		orders:   make(map[string]*paperOrder),
		holdings: make(map[string]*holding),
	}
}

// PlaceLimitOrder registra una orden BUY y la cruza si ya es marketable.
func (x *Exchange) PlaceLimitOrder(_ context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if req.Side != domain.SideBuy {
		return domain.PlacedOrder{}, fmt.Errorf("paper.PlaceLimitOrder: %w: unsupported side %q", domain.ErrExchangeRejected, req.Side)
	}
	if !req.Price.IsPositive() || req.Price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return domain.PlacedOrder{}, fmt.Errorf("paper.PlaceLimitOrder: %w: price %s out of range", domain.ErrExchangeRejected, req.Price)
	}
	if !req.Size.IsPositive() {
		return domain.PlacedOrder{}, fmt.Errorf("paper.PlaceLimitOrder: %w: size %s", domain.ErrExchangeRejected, req.Size)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	o := &paperOrder{
		id:       "paper-" + uuid.NewString(),
		marketID: req.MarketID,
		tokenID:  req.TokenID,
		price:    req.Price,
		size:     req.Size,
		matched:  decimal.Zero,
		placedAt: x.now(),
	}

	book, ok := x.feed.TopOfBook(req.TokenID)
	crosses := ok && book.BestAsk.IsPositive() && book.BestAsk.LessThanOrEqual(req.Price)
	if req.Type == domain.OrderTypeFOK {
		if !crosses || (book.BestAskSize.IsPositive() && book.BestAskSize.LessThan(req.Size)) {
			return domain.PlacedOrder{}, fmt.Errorf("paper.PlaceLimitOrder: %w: FOK order not fillable", domain.ErrExchangeRejected)
		}
	}

	x.orders[o.id] = o
	if crosses {
		qty := o.size
		if book.BestAskSize.IsPositive() && book.BestAskSize.LessThan(qty) {
			qty = book.BestAskSize
		}
		x.fillLocked(o, qty, book.BestAsk)
	}
	if req.Type == domain.OrderTypeFOK {
		o.canceled = o.remaining().IsPositive()
	}

	slog.Debug("paper: order placed",
		"order", o.id,
		"token", req.TokenID,
		"price", req.Price.String(),
		"size", req.Size.String(),
		"matched", o.matched.String(),
	)
	return domain.PlacedOrder{OrderID: o.id, Status: o.status(), Matched: o.matched}, nil
}

// CancelOrder cancela una orden en reposo.
func (x *Exchange) CancelOrder(_ context.Context, orderID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	o, ok := x.orders[orderID]
	if !ok {
		return fmt.Errorf("paper.CancelOrder %s: %w", orderID, domain.ErrOrderNotFound)
	}
	x.matchLocked(o)
	if !o.remaining().IsPositive() {
		return fmt.Errorf("paper.CancelOrder %s: %w: order already matched", orderID, domain.ErrExchangeRejected)
	}
	o.canceled = true
	return nil
}

// PollOrderStatus cruza la orden contra el libro actual y devuelve su estado.
func (x *Exchange) PollOrderStatus(_ context.Context, orderID string) (domain.OrderStatus, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	o, ok := x.orders[orderID]
	if !ok {
		return domain.OrderStatus{}, fmt.Errorf("paper.PollOrderStatus %s: %w", orderID, domain.ErrOrderNotFound)
	}
	x.matchLocked(o)

	raw := o.status()
	state := domain.OrderStateLive
	switch raw {
	case "MATCHED":
		state = domain.OrderStateMatched
	case "CANCELED":
		state = domain.OrderStateCanceled
	}
	return domain.OrderStatus{
		OrderID:       o.id,
		State:         state,
		RawStatus:     raw,
		FilledSize:    o.matched,
		RemainingSize: decimal.Max(o.remaining(), decimal.Zero),
		HasRemaining:  true,
	}, nil
}

// OpenOrders lista las órdenes en reposo.
func (x *Exchange) OpenOrders(_ context.Context) ([]domain.RestingOrder, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	var out []domain.RestingOrder
	for _, o := range x.orders {
		if o.canceled || !o.remaining().IsPositive() {
			continue
		}
		out = append(out, domain.RestingOrder{
			OrderID:  o.id,
			MarketID: o.marketID,
			TokenID:  o.tokenID,
			Side:     domain.SideBuy,
			Price:    o.price,
			Size:     o.size,
			Matched:  o.matched,
			PlacedAt: o.placedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	return out, nil
}

// PositionsSnapshot devuelve las posiciones acumuladas por las fills simuladas.
func (x *Exchange) PositionsSnapshot(_ context.Context, account string) (domain.PositionsSnapshot, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	snap := domain.PositionsSnapshot{Account: account, AsOf: x.now()}
	for token, h := range x.holdings {
		if !h.size.IsPositive() {
			continue
		}
		snap.Positions = append(snap.Positions, domain.Position{
			TokenID:  token,
			Size:     h.size,
			Notional: h.cost,
			AsOf:     snap.AsOf,
		})
	}
	sort.Slice(snap.Positions, func(i, j int) bool { return snap.Positions[i].TokenID < snap.Positions[j].TokenID })
	return snap, nil
}

// matchLocked ejecuta al precio límite lo que el ask actual permite.
func (x *Exchange) matchLocked(o *paperOrder) {
	if o.canceled || !o.remaining().IsPositive() {
		return
	}
	book, ok := x.feed.TopOfBook(o.tokenID)
	if !ok || !book.BestAsk.IsPositive() || book.BestAsk.GreaterThan(o.price) {
		return
	}
	qty := o.remaining()
	if book.BestAskSize.IsPositive() && book.BestAskSize.LessThan(qty) {
		qty = book.BestAskSize
	}
	x.fillLocked(o, qty, o.price)
}

func (x *Exchange) fillLocked(o *paperOrder, qty, price decimal.Decimal) {
	if !qty.IsPositive() {
		return
	}
	o.matched = o.matched.Add(qty)
	h, ok := x.holdings[o.tokenID]
	if !ok {
		h = &holding{size: decimal.Zero, cost: decimal.Zero}
		x.holdings[o.tokenID] = h
	}
	h.size = h.size.Add(qty)
	h.cost = h.cost.Add(qty.Mul(price))

	slog.Info("paper: fill",
		"order", o.id,
		"token", o.tokenID,
		"shares", qty.String(),
		"price", price.String(),
		"cost", fmt.Sprintf("$%.2f", qty.Mul(price).InexactFloat64()),
	)
}
