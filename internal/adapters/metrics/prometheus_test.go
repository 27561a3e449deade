package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownmm/internal/adapters/metrics"
	"github.com/alejandrodnm/updownmm/internal/domain"
	"github.com/alejandrodnm/updownmm/internal/ports"
)

var _ ports.Metrics = (*metrics.Prometheus)(nil)

func TestPrometheus_ExposesEngineCounters(t *testing.T) {
	p := metrics.NewPrometheus()

	p.ObserveTick(40 * time.Millisecond)
	p.MarketSkipped("busy")
	p.DecisionMade(domain.SeriesBTC15m, domain.PhaseQuoting)
	p.OrderAction(domain.OrderEventPlace, "QUOTE", true)
	p.OrderAction(domain.OrderEventCancel, "SHUTDOWN", false)
	p.FillObserved(domain.SeriesBTC15m, domain.OutcomeUp, 7.5)
	p.InvariantViolation("sizing")
	p.SetExposure(123.45)
	p.SetImbalance("btc-updown-15m-1", -2)
	p.SetTrackedMarkets(3)

	srv := httptest.NewServer(p.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `updownmm_order_actions_total{kind="PLACE",ok="true",reason="QUOTE"} 1`)
	assert.Contains(t, out, `updownmm_filled_shares_total{outcome="UP",series="btc-15m"} 7.5`)
	assert.Contains(t, out, `updownmm_invariant_violations_total{kind="sizing"} 1`)
	assert.Contains(t, out, `updownmm_exposure_usd 123.45`)
	assert.Contains(t, out, `updownmm_imbalance_shares{slug="btc-updown-15m-1"} -2`)
	assert.Contains(t, out, `updownmm_tracked_markets 3`)
	assert.Contains(t, out, `updownmm_tick_duration_seconds_count 1`)
	assert.Contains(t, out, "go_goroutines")
}

func TestPrometheus_MarketReleased(t *testing.T) {
	p := metrics.NewPrometheus()
	p.SetImbalance("a", 1)
	p.SetImbalance("b", 2)
	p.MarketReleased("a")

	n, err := testutil.GatherAndCount(p.Gatherer(), "updownmm_imbalance_shares")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
