package polymarket

// marketws.go: feed de top of book vía el canal "market" del WebSocket del CLOB.
//
// Mantiene el mejor bid/ask por token a partir de los mensajes book y
// price_change. Un cambio en el set suscrito cierra la conexión y el loop
// reconecta con el set completo; la reconexión usa una retry policy con
// backoff exponencial sin límite de intentos.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

const (
	defaultPingInterval = 10 * time.Second
	defaultReadTimeout  = 60 * time.Second
	defaultReconnectMin = 500 * time.Millisecond
	defaultReconnectMax = 30 * time.Second
	heartbeatEvery      = 6 // pings
)

// FeedConfig configura el MarketFeed. Los ceros usan los defaults.
type FeedConfig struct {
	URL          string // base wss://..., se añade /ws/market
	PingInterval time.Duration
	ReadTimeout  time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// BookPrimer obtiene un snapshot REST para tokens recién suscritos.
type BookPrimer interface {
	FetchTopOfBooks(ctx context.Context, tokenIDs []string) (map[string]domain.TopOfBook, error)
}

// MarketFeed implementa ports.TopOfBookFeed y ports.BookSubscriber.
type MarketFeed struct {
	cfg    FeedConfig
	url    string
	primer BookPrimer
	now    func() time.Time
	retry  retrypolicy.RetryPolicy[*websocket.Conn]

	mu      sync.RWMutex
	books   map[string]domain.TopOfBook
	assets  []string
	wanted  map[string]bool
	changed chan struct{}

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	messages    atomic.Int64
	bookMsgs    atomic.Int64
	priceMsgs   atomic.Int64
	tradeMsgs   atomic.Int64
	reconnects  atomic.Int64
	lastMessage atomic.Int64 // unix ms
}

// NewMarketFeed crea el feed. primer puede ser nil.
func NewMarketFeed(cfg FeedConfig, primer BookPrimer, now func() time.Time) *MarketFeed {
	if cfg.URL == "" {
		cfg.URL = defaultMarketWSBase
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = defaultReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = max(defaultReconnectMax, cfg.ReconnectMin)
	}
	if now == nil {
		now = time.Now
	}

	f := &MarketFeed{
		cfg:     cfg,
		url:     strings.TrimRight(cfg.URL, "/") + "/ws/market",
		primer:  primer,
		now:     now,
		books:   make(map[string]domain.TopOfBook),
		wanted:  make(map[string]bool),
		changed: make(chan struct{}, 1),
	}
	f.retry = retrypolicy.NewBuilder[*websocket.Conn]().
		WithBackoff(cfg.ReconnectMin, cfg.ReconnectMax).
		WithMaxRetries(-1).
		Build()
	return f
}

// TopOfBook devuelve la última lectura conocida del token.
func (f *MarketFeed) TopOfBook(tokenID string) (domain.TopOfBook, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	b, ok := f.books[tokenID]
	return b, ok
}

// Subscribe reemplaza el set de tokens. Los libros de tokens que salen se descartan.
func (f *MarketFeed) Subscribe(ctx context.Context, tokenIDs []string) error {
	next := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		if id = strings.TrimSpace(id); id != "" {
			next = append(next, id)
		}
	}
	slices.Sort(next)
	next = slices.Compact(next)

	f.mu.Lock()
	if slices.Equal(next, f.assets) {
		f.mu.Unlock()
		return nil
	}
	wanted := make(map[string]bool, len(next))
	var added []string
	for _, id := range next {
		wanted[id] = true
		if !f.wanted[id] {
			added = append(added, id)
		}
	}
	for id := range f.books {
		if !wanted[id] {
			delete(f.books, id)
		}
	}
	f.assets, f.wanted = next, wanted
	f.mu.Unlock()

	slog.Info("feed: subscription changed", "assets", len(next), "added", len(added))
	f.prime(ctx, added)

	select {
	case f.changed <- struct{}{}:
	default:
	}
	f.dropConn()
	return nil
}

// prime carga un snapshot REST sin pisar lecturas más nuevas del WebSocket.
func (f *MarketFeed) prime(ctx context.Context, tokenIDs []string) {
	if f.primer == nil || len(tokenIDs) == 0 {
		return
	}
	books, err := f.primer.FetchTopOfBooks(ctx, tokenIDs)
	if err != nil {
		slog.Warn("feed: book priming failed", "tokens", len(tokenIDs), "err", err)
		return
	}
	at := f.now()
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, b := range books {
		if _, ok := f.books[id]; ok || !f.wanted[id] {
			continue
		}
		b.UpdatedAt = at
		f.books[id] = b
	}
}

// Run mantiene la conexión hasta que ctx se cancela.
func (f *MarketFeed) Run(ctx context.Context) error {
	for {
		assets := f.subscribed()
		if len(assets) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.changed:
				continue
			}
		}

		conn, err := failsafe.With[*websocket.Conn](f.retry).WithContext(ctx).Get(func() (*websocket.Conn, error) {
			return f.dial(ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("feed: connect failed", "err", err)
			continue
		}

		f.session(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (f *MarketFeed) subscribed() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.assets)
}

func (f *MarketFeed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		if ctx.Err() == nil {
			f.reconnects.Add(1)
			slog.Warn("feed: dial failed, retrying", "url", f.url, "err", err)
		}
		return nil, fmt.Errorf("dial %s: %w", f.url, err)
	}
	return conn, nil
}

// session suscribe el set actual y lee hasta error, cierre o cancelación.
func (f *MarketFeed) session(ctx context.Context, conn *websocket.Conn) {
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	defer f.dropConn()

	// Se lee el set después de publicar conn: un Subscribe concurrente o bien
	// entra en este mensaje o bien cierra esta conexión.
	assets := f.subscribed()
	if err := f.write(conn, wsSubscribe{AssetsIDs: assets, Type: "market"}); err != nil {
		slog.Warn("feed: subscribe failed", "err", err)
		return
	}
	slog.Info("feed: connected", "url", f.url, "assets", len(assets))

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.pingLoop(sessCtx, conn)
	go func() {
		<-sessCtx.Done()
		conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("feed: read failed, reconnecting", "err", err)
			}
			return
		}
		f.handle(msg)
	}
}

func (f *MarketFeed) dropConn() {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
}

func (f *MarketFeed) write(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (f *MarketFeed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte("PING"))
			f.writeMu.Unlock()
			if err != nil {
				return
			}
			n++
			if n%heartbeatEvery == 0 {
				f.logHeartbeat()
			}
		}
	}
}

func (f *MarketFeed) logHeartbeat() {
	f.mu.RLock()
	subscribed, known := len(f.assets), len(f.books)
	f.mu.RUnlock()
	lastAgo := "never"
	if ms := f.lastMessage.Load(); ms > 0 {
		lastAgo = time.Since(time.UnixMilli(ms)).Truncate(time.Millisecond).String()
	}
	slog.Debug("feed: heartbeat",
		"subscribed", subscribed,
		"known", known,
		"msgs", f.messages.Load(),
		"book", f.bookMsgs.Load(),
		"priceChange", f.priceMsgs.Load(),
		"lastTrade", f.tradeMsgs.Load(),
		"reconnects", f.reconnects.Load(),
		"lastMsg", lastAgo,
	)
}

// handle procesa un frame: objeto o array de eventos.
func (f *MarketFeed) handle(msg []byte) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return
	}
	f.lastMessage.Store(time.Now().UnixMilli())
	if bytes.EqualFold(msg, []byte("PONG")) || bytes.EqualFold(msg, []byte("PING")) {
		return
	}
	f.messages.Add(1)

	var events []wsEvent
	if msg[0] == '[' {
		if err := json.Unmarshal(msg, &events); err != nil {
			slog.Debug("feed: unparseable frame", "err", err)
			return
		}
	} else {
		var ev wsEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			slog.Debug("feed: unparseable frame", "err", err)
			return
		}
		events = []wsEvent{ev}
	}

	at := f.now()
	for _, ev := range events {
		switch ev.EventType {
		case "book":
			f.bookMsgs.Add(1)
			f.applyBook(ev, at)
		case "price_change":
			f.priceMsgs.Add(1)
			for _, pc := range ev.PriceChanges {
				f.applyPriceChange(pc, at)
			}
		case "last_trade_price":
			// Un trade no confirma el bid/ask: no refresca la frescura del libro.
			f.tradeMsgs.Add(1)
		}
	}
}

func (f *MarketFeed) applyBook(ev wsEvent, at time.Time) {
	bids, asks := ev.Bids, ev.Asks
	if bids == nil {
		bids = ev.Buys
	}
	if asks == nil {
		asks = ev.Sells
	}
	tob := mapTopOfBook(ev.AssetID, bids, asks, at)

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.wanted[ev.AssetID] {
		return
	}
	f.books[ev.AssetID] = tob
}

func (f *MarketFeed) applyPriceChange(pc wsPriceChange, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.wanted[pc.AssetID] {
		return
	}
	b := f.books[pc.AssetID]
	b.TokenID = pc.AssetID
	if v, ok := parseOptionalDecimal(pc.BestBid); ok {
		b.BestBid = v
	}
	if v, ok := parseOptionalDecimal(pc.BestAsk); ok {
		b.BestAsk = v
	}
	if v, ok := parseOptionalDecimal(pc.BestBidSize); ok {
		b.BestBidSize = v
	}
	if v, ok := parseOptionalDecimal(pc.BestAskSize); ok {
		b.BestAskSize = v
	}
	b.UpdatedAt = at
	f.books[pc.AssetID] = b
}
