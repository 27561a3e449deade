package polymarket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownmm/internal/adapters/polymarket"
)

func TestPositions_PaginatesAndSkipsRedeemable(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions", r.URL.Path)
		assert.Equal(t, "0xfunder", r.URL.Query().Get("user"))
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)

		var rows []map[string]any
		switch offset {
		case "0":
			for i := range 200 {
				rows = append(rows, map[string]any{
					"asset": "tok-" + strconv.Itoa(i), "size": 1, "initialValue": 0.5,
				})
			}
		case "200":
			rows = []map[string]any{
				{"asset": "up", "size": 12.5, "initialValue": 5.75},
				{"asset": "resolved", "size": 3, "initialValue": 1.2, "redeemable": true},
			}
		}
		json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	asOf := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := polymarket.NewPositions(newTestClient(nil, nil, srv), func() time.Time { return asOf })

	snap, err := p.PositionsSnapshot(context.Background(), "0xfunder")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "200"}, offsets)
	assert.Equal(t, asOf, snap.AsOf)
	require.Len(t, snap.Positions, 201)

	last := snap.Positions[200]
	assert.Equal(t, "up", last.TokenID)
	assert.True(t, last.Size.Equal(dec("12.5")))
	assert.True(t, last.Notional.Equal(dec("5.75")))
}

func TestPositions_EmptyAccount(t *testing.T) {
	p := polymarket.NewPositions(newTestClient(nil, nil, nil), nil)
	_, err := p.PositionsSnapshot(context.Background(), "")
	assert.Error(t, err)
}

func TestPositions_ErrorFailsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad user", http.StatusBadRequest)
	}))
	defer srv.Close()

	p := polymarket.NewPositions(newTestClient(nil, nil, srv), nil)
	_, err := p.PositionsSnapshot(context.Background(), "0xfunder")
	assert.Error(t, err)
}
