package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownmm/internal/adapters/polymarket"
)

func newTestClient(clob, gamma, data *httptest.Server) *polymarket.Client {
	var ep polymarket.Endpoints
	if clob != nil {
		ep.CLOB = clob.URL
	}
	if gamma != nil {
		ep.Gamma = gamma.URL
	}
	if data != nil {
		ep.Data = data.URL
	}
	return polymarket.NewClient(ep)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

const booksFixture = `[
	{"asset_id": "up-tok",
	 "bids": [{"price": "0.45", "size": "120"}, {"price": "0.47", "size": "30"}],
	 "asks": [{"price": "0.52", "size": "40"}, {"price": "0.49", "size": "15"}]},
	{"asset_id": "down-tok",
	 "bids": [{"price": "0.48", "size": "10"}],
	 "asks": []}
]`

func TestFetchTopOfBooks_Batch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/books", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(booksFixture))
	}))
	defer srv.Close()

	client := newTestClient(srv, nil, nil)
	books, err := client.FetchTopOfBooks(context.Background(), []string{"up-tok", "down-tok"})
	require.NoError(t, err)
	require.Len(t, books, 2)

	up := books["up-tok"]
	assert.True(t, up.BestBid.Equal(dec("0.47")))
	assert.True(t, up.BestBidSize.Equal(dec("30")))
	assert.True(t, up.BestAsk.Equal(dec("0.49")))
	assert.True(t, up.BestAskSize.Equal(dec("15")))
	assert.False(t, up.UpdatedAt.IsZero())

	down := books["down-tok"]
	assert.True(t, down.BestBid.Equal(dec("0.48")))
	assert.True(t, down.BestAsk.IsZero(), "sin asks el lado queda vacío")
}

func TestFetchTopOfBooks_BatchSplitting(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req []map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.LessOrEqual(t, len(req), 20)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]any{})
	}))
	defer srv.Close()

	client := newTestClient(srv, nil, nil)

	// 25 token_ids → 2 requests (batch de 20 + batch de 5)
	tokenIDs := make([]string, 25)
	for i := range tokenIDs {
		tokenIDs[i] = "token_" + strconv.Itoa(i)
	}

	_, err := client.FetchTopOfBooks(context.Background(), tokenIDs)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchTopOfBooks_Empty(t *testing.T) {
	client := newTestClient(nil, nil, nil)
	books, err := client.FetchTopOfBooks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestTokenMeta_TickSize(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/tick-size", r.URL.Path)
		switch r.URL.Query().Get("token_id") {
		case "fine":
			w.Write([]byte(`{"minimum_tick_size": 0.001}`))
		default:
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		}
	}))
	defer srv.Close()

	meta := polymarket.NewTokenMeta(newTestClient(srv, nil, nil), 0, nil)
	ctx := context.Background()

	tick, err := meta.TickSize(ctx, "fine")
	require.NoError(t, err)
	assert.True(t, tick.Equal(dec("0.001")))

	_, err = meta.TickSize(ctx, "fine")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "la segunda lectura sale de caché")

	tick, err = meta.TickSize(ctx, "unknown")
	require.NoError(t, err)
	assert.True(t, tick.Equal(polymarket.DefaultTickSize))

	_, _ = meta.TickSize(ctx, "unknown")
	assert.Equal(t, int32(3), calls.Load(), "el default no se cachea")
}
