package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order. The engine only ever buys.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is the CLOB time-in-force.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC"
	OrderTypeFOK OrderType = "FOK"
)

// PlaceReason explains why an order was submitted.
type PlaceReason string

const (
	PlaceQuote     PlaceReason = "QUOTE"
	PlaceReplace   PlaceReason = "REPLACE"
	PlaceTopUp     PlaceReason = "TOP_UP"
	PlaceFastTopUp PlaceReason = "FAST_TOP_UP"
	PlaceTaker     PlaceReason = "TAKER"
)

// Taker returns true for reasons that cross the spread.
func (r PlaceReason) Taker() bool {
	return r == PlaceTopUp || r == PlaceFastTopUp || r == PlaceTaker
}

// CancelReason explains why a resting order was canceled.
type CancelReason string

const (
	CancelBookStale           CancelReason = "BOOK_STALE"
	CancelOutsideTimeWindow   CancelReason = "OUTSIDE_TIME_WINDOW"
	CancelOutsideLifetime     CancelReason = "OUTSIDE_LIFETIME"
	CancelInsufficientEdge    CancelReason = "INSUFFICIENT_EDGE"
	CancelReplacePrice        CancelReason = "REPLACE_PRICE"
	CancelReplaceSize         CancelReason = "REPLACE_SIZE"
	CancelReplacePriceAndSize CancelReason = "REPLACE_PRICE_AND_SIZE"
	CancelStaleTimeout        CancelReason = "STALE_TIMEOUT"
	CancelTopUp               CancelReason = "TOP_UP"
	CancelShutdown            CancelReason = "SHUTDOWN"
	CancelUnrecognized        CancelReason = "UNRECOGNIZED"
	CancelMarketDropped       CancelReason = "MARKET_DROPPED"
)

// PlaceOrderRequest is a limit order ready for the gateway.
type PlaceOrderRequest struct {
	ClientID string // local UUID, used for tracing only
	MarketID string
	TokenID  string
	Side     Side
	Price    decimal.Decimal
	Size     decimal.Decimal // shares
	Type     OrderType
	Reason   PlaceReason
}

// Notional returns price × size in USDC.
func (r PlaceOrderRequest) Notional() decimal.Decimal {
	return r.Price.Mul(r.Size)
}

// PlacedOrder is the gateway acknowledgment of a placement.
type PlacedOrder struct {
	OrderID string
	Status  string
	Matched decimal.Decimal // shares matched immediately, if reported
}

// OrderState is the exchange-side status of an order.
type OrderState string

const (
	OrderStateLive     OrderState = "LIVE"
	OrderStateMatched  OrderState = "MATCHED"
	OrderStateCanceled OrderState = "CANCELED"
	OrderStateUnknown  OrderState = "UNKNOWN"
)

// OrderStatus is the result of polling a single order.
type OrderStatus struct {
	OrderID       string
	State         OrderState
	RawStatus     string
	FilledSize    decimal.Decimal
	RemainingSize decimal.Decimal
	HasRemaining  bool // RemainingSize was reported by the exchange
}

var terminalStatusWords = []string{
	"FILLED", "MATCHED", "CANCELED", "CANCELLED", "EXPIRED",
	"REJECTED", "FAILED", "DONE", "CLOSED",
}

// Terminal reports whether the order can no longer fill.
// size is the originally requested size.
func (s OrderStatus) Terminal(size decimal.Decimal) bool {
	if s.HasRemaining && s.RemainingSize.Sign() <= 0 {
		return true
	}
	if size.IsPositive() && s.FilledSize.GreaterThanOrEqual(size) {
		return true
	}
	if s.State == OrderStateMatched || s.State == OrderStateCanceled {
		return true
	}
	upper := strings.ToUpper(strings.TrimSpace(s.RawStatus))
	if upper == "" {
		return false
	}
	for _, w := range terminalStatusWords {
		if strings.Contains(upper, w) {
			return true
		}
	}
	return false
}

// RestingOrder is the engine's single working order on one token.
type RestingOrder struct {
	OrderID      string
	ClientID     string
	MarketID     string
	TokenID      string
	Outcome      Outcome
	Side         Side
	Price        decimal.Decimal
	Size         decimal.Decimal
	Matched      decimal.Decimal
	PlacedAt     time.Time
	LastPolledAt time.Time
	Reason       PlaceReason
}

// Remaining returns the unfilled shares, never negative.
func (o RestingOrder) Remaining() decimal.Decimal {
	r := o.Size.Sub(o.Matched)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// RemainingNotional returns price × remaining.
func (o RestingOrder) RemainingNotional() decimal.Decimal {
	return o.Price.Mul(o.Remaining())
}

// Age returns how long the order has been working.
func (o RestingOrder) Age(now time.Time) time.Duration {
	return now.Sub(o.PlacedAt)
}

// Fill is an observed execution on one of our orders.
type Fill struct {
	OrderID  string
	MarketID string
	TokenID  string
	Outcome  Outcome
	Price    decimal.Decimal
	Size     decimal.Decimal
	At       time.Time
}

// Notional returns price × size.
func (f Fill) Notional() decimal.Decimal {
	return f.Price.Mul(f.Size)
}

// OrderEventKind distinguishes lifecycle events.
type OrderEventKind string

const (
	OrderEventPlace  OrderEventKind = "PLACE"
	OrderEventCancel OrderEventKind = "CANCEL"
	OrderEventFill   OrderEventKind = "FILL"
)

// OrderEvent is one persisted step of an order's life.
type OrderEvent struct {
	RunID         string
	Kind          OrderEventKind
	Reason        string
	MarketID      string
	Slug          string
	TokenID       string
	Outcome       Outcome
	OrderID       string
	Price         decimal.Decimal
	Size          decimal.Decimal
	SecondsToEnd  int64
	Success       bool
	Error         string
	ReplacedID    string
	ReplacedPrice decimal.Decimal
	ReplacedSize  decimal.Decimal
	OrderAge      time.Duration
	At            time.Time
}
