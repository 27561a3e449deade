package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

const namespace = "updownmm"

// Prometheus implementa ports.Metrics sobre un registry propio.
type Prometheus struct {
	registry *prometheus.Registry

	tickDuration prometheus.Histogram
	skipped      *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	orders       *prometheus.CounterVec
	fills        *prometheus.CounterVec
	violations   *prometheus.CounterVec
	exposure     prometheus.Gauge
	imbalance    *prometheus.GaugeVec
	tracked      prometheus.Gauge
}

// NewPrometheus registra los collectors del engine más los de proceso y runtime.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one engine tick.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2},
		}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "markets_skipped_total",
			Help:      "Market evaluations skipped, by reason.",
		}, []string{"reason"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Market evaluations, by series and resulting phase.",
		}, []string{"series", "phase"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_actions_total",
			Help:      "Order placements and cancellations, by reason and result.",
		}, []string{"kind", "reason", "ok"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filled_shares_total",
			Help:      "Shares bought, by series and outcome.",
		}, []string{"series", "outcome"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invariant_violations_total",
			Help:      "Runtime invariant violations, by kind.",
		}, []string{"kind"}),
		exposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exposure_usd",
			Help:      "Open order notional plus position cost plus unconfirmed fills.",
		}),
		imbalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "imbalance_shares",
			Help:      "Up minus down shares per tracked market.",
		}, []string{"slug"}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_markets",
			Help:      "Markets currently tracked by the engine.",
		}),
	}
	p.registry.MustRegister(
		p.tickDuration, p.skipped, p.decisions, p.orders, p.fills,
		p.violations, p.exposure, p.imbalance, p.tracked,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) ObserveTick(d time.Duration) { p.tickDuration.Observe(d.Seconds()) }

func (p *Prometheus) MarketSkipped(reason string) { p.skipped.WithLabelValues(reason).Inc() }

func (p *Prometheus) DecisionMade(series domain.Series, phase domain.Phase) {
	p.decisions.WithLabelValues(string(series), string(phase)).Inc()
}

func (p *Prometheus) OrderAction(kind domain.OrderEventKind, reason string, ok bool) {
	p.orders.WithLabelValues(string(kind), reason, strconv.FormatBool(ok)).Inc()
}

func (p *Prometheus) FillObserved(series domain.Series, outcome domain.Outcome, shares float64) {
	p.fills.WithLabelValues(string(series), outcome.String()).Add(shares)
}

func (p *Prometheus) InvariantViolation(kind string) { p.violations.WithLabelValues(kind).Inc() }

func (p *Prometheus) SetExposure(usd float64) { p.exposure.Set(usd) }

func (p *Prometheus) SetImbalance(slug string, shares float64) {
	p.imbalance.WithLabelValues(slug).Set(shares)
}

func (p *Prometheus) SetTrackedMarkets(n int) { p.tracked.Set(float64(n)) }

// MarketReleased elimina la serie de un mercado que ya no se sigue.
func (p *Prometheus) MarketReleased(slug string) { p.imbalance.DeleteLabelValues(slug) }

// Gatherer da acceso al registry.
func (p *Prometheus) Gatherer() prometheus.Gatherer { return p.registry }

// Handler expone el registry en formato Prometheus.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Server sirve /metrics mientras el proceso corre.
type Server struct {
	srv *http.Server
}

// NewServer crea el servidor HTTP de métricas en addr (p.ej. ":9464").
func NewServer(addr string, p *Prometheus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start arranca el servidor en background.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics: listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics: server failed", "err", err)
		}
	}()
}

// Stop detiene el servidor.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
