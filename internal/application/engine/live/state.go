package live

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

// marketState is everything the engine keeps for one market instance.
// mu serializes evaluation, order polling and snapshot ingestion.
type marketState struct {
	mu sync.Mutex

	market   domain.MarketInstance
	inv      domain.Inventory
	topUp    domain.TopUpState
	orders   [2]*domain.RestingOrder
	closed   map[string]*domain.RestingOrder // left the book this run, may still report fills
	settling map[string]bool                 // canceled, final matched size not read yet
	dropped  atomic.Bool                     // discovery stopped listing the market

	lastPhase  domain.Phase
	lastEdge   decimal.Decimal
	lastReason string
	lastEval   time.Time
}

func newMarketState(m domain.MarketInstance) *marketState {
	return &marketState{
		market:    m,
		closed:    make(map[string]*domain.RestingOrder),
		settling:  make(map[string]bool),
		lastPhase: domain.PhaseOutOfScope,
	}
}

// retire moves the working order of a leg to the closed set.
func (st *marketState) retire(o domain.Outcome) *domain.RestingOrder {
	r := st.orders[o]
	if r == nil {
		return nil
	}
	st.orders[o] = nil
	st.closed[r.OrderID] = r
	return r
}

// orderByID returns the tracked order with the given exchange id, if any.
func (st *marketState) orderByID(orderID string) (*domain.RestingOrder, domain.Outcome) {
	for _, o := range domain.Outcomes {
		if r := st.orders[o]; r != nil && r.OrderID == orderID {
			return r, o
		}
	}
	return nil, domain.OutcomeUp
}

// lookup finds an order among the working and the closed ones.
func (st *marketState) lookup(orderID string) (o *domain.RestingOrder, working bool) {
	if r, _ := st.orderByID(orderID); r != nil {
		return r, true
	}
	return st.closed[orderID], false
}

// unsettled returns copies of the canceled orders awaiting a final poll.
func (st *marketState) unsettled() []domain.RestingOrder {
	out := make([]domain.RestingOrder, 0, len(st.settling))
	for id := range st.settling {
		if o := st.closed[id]; o != nil {
			out = append(out, *o)
		}
	}
	return out
}

func (st *marketState) hasOrders() bool {
	return st.orders[domain.OutcomeUp] != nil || st.orders[domain.OutcomeDown] != nil
}

func (st *marketState) status(now time.Time) domain.MarketStatus {
	s := domain.MarketStatus{
		Slug:         st.market.Slug,
		Series:       st.market.Series,
		SecondsToEnd: st.market.SecondsToEnd(now),
		Phase:        st.lastPhase,
		Edge:         st.lastEdge,
		UpShares:     st.inv.UpShares(),
		DownShares:   st.inv.DownShares(),
		LastReason:   st.lastReason,
	}
	if o := st.orders[domain.OutcomeUp]; o != nil {
		cp := *o
		s.UpOrder = &cp
	}
	if o := st.orders[domain.OutcomeDown]; o != nil {
		cp := *o
		s.DownOrder = &cp
	}
	return s
}
