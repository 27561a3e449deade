package polymarket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(booksFixture))
	}))
	defer srv.Close()

	books, err := newTestClient(srv, nil, nil).FetchTopOfBooks(context.Background(), []string{"up-tok"})
	require.NoError(t, err)
	assert.Contains(t, books, "up-tok")
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token id", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, nil, nil).FetchTopOfBooks(context.Background(), []string{"up-tok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client error 400")
	assert.Equal(t, int32(1), calls.Load())
}
