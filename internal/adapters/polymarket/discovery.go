package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	_ "time/tzdata" // America/New_York para los slugs horarios

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

const (
	discoveryLookahead   = 2 * time.Hour
	discoveryConcurrency = 4
	slotSeconds15m       = 900
)

// slugPrefixes mapea cada serie a su prefijo de slug en Gamma.
var slugPrefixes = map[domain.Series]string{
	domain.SeriesBTC15m: "btc-updown-15m-",
	domain.SeriesETH15m: "eth-updown-15m-",
	domain.SeriesBTC1h:  "bitcoin-up-or-down-",
	domain.SeriesETH1h:  "ethereum-up-or-down-",
}

// candidate es un slug generado junto con el inicio teórico de la instancia.
type candidate struct {
	slug   string
	series domain.Series
	start  time.Time
}

// Discovery encuentra las instancias Up/Down activas generando los slugs
// esperados alrededor de now y consultando Gamma /events?slug=.
// El listado genérico /markets no incluye estas series de forma fiable.
type Discovery struct {
	client *Client
	series []domain.Series
	static []domain.MarketInstance
	et     *time.Location
}

// NewDiscovery crea el discovery para las series dadas. static se añade tal cual
// (filtrando las expiradas) a cada resultado.
func NewDiscovery(client *Client, series []domain.Series, static []domain.MarketInstance) (*Discovery, error) {
	et, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("polymarket.NewDiscovery: %w", err)
	}
	if len(series) == 0 {
		series = domain.AllSeries
	}
	return &Discovery{client: client, series: series, static: static, et: et}, nil
}

// ActiveMarkets implementa ports.MarketSource.
func (d *Discovery) ActiveMarkets(ctx context.Context, now time.Time) ([]domain.MarketInstance, error) {
	candidates := d.candidates(now)

	var (
		mu       sync.Mutex
		found    []domain.MarketInstance
		failures int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoveryConcurrency)
	for _, c := range candidates {
		g.Go(func() error {
			m, ok, err := d.fetchEvent(gctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				slog.Debug("discovery: slug lookup failed", "slug", c.slug, "err", err)
				return nil
			}
			if ok {
				found = append(found, m)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(candidates) > 0 && failures == len(candidates) {
		return nil, fmt.Errorf("polymarket.ActiveMarkets: all %d slug lookups failed", failures)
	}

	active := make([]domain.MarketInstance, 0, len(found)+len(d.static))
	seen := make(map[string]bool)
	for _, m := range found {
		if !open(m, now) || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		active = append(active, m)
	}
	for _, m := range d.static {
		if m.Expired(now) || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		active = append(active, m)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].EndTime.Before(active[j].EndTime) })

	slog.Debug("discovery: scan complete",
		"candidates", len(candidates),
		"found", len(found),
		"active", len(active),
		"failures", failures,
	)
	return active, nil
}

// open: la instancia ya empezó, no terminó y termina dentro del horizonte.
func open(m domain.MarketInstance, now time.Time) bool {
	if !m.EndTime.After(now) || !m.EndTime.Before(now.Add(discoveryLookahead)) {
		return false
	}
	start := m.EndTime.Add(-m.Series.HardLifetime())
	return !now.Before(start)
}

func (d *Discovery) candidates(now time.Time) []candidate {
	var out []candidate
	for _, s := range d.series {
		if s.Hourly() {
			out = append(out, d.hourlyCandidates(s, now)...)
		} else {
			out = append(out, quarterCandidates(s, now)...)
		}
	}
	return out
}

// quarterCandidates recorre la rejilla de 900s desde now-30m hasta now+15m.
func quarterCandidates(s domain.Series, now time.Time) []candidate {
	nowSec := now.Unix()
	from := (nowSec - 2*slotSeconds15m) / slotSeconds15m * slotSeconds15m
	to := (nowSec + slotSeconds15m) / slotSeconds15m * slotSeconds15m

	var out []candidate
	for start := from; start <= to; start += slotSeconds15m {
		out = append(out, candidate{
			slug:   slugPrefixes[s] + strconv.FormatInt(start, 10),
			series: s,
			start:  time.Unix(start, 0).UTC(),
		})
	}
	return out
}

// hourlyCandidates cubre de -2h a +1h alrededor de la hora ET actual.
func (d *Discovery) hourlyCandidates(s domain.Series, now time.Time) []candidate {
	hour := now.In(d.et).Truncate(time.Hour)
	// Truncate trabaja sobre tiempo absoluto; ET tiene offsets de hora entera.
	var out []candidate
	for _, delta := range []int{-2, -1, 0, 1} {
		start := hour.Add(time.Duration(delta) * time.Hour)
		out = append(out, candidate{slug: hourlySlug(s, start), series: s, start: start.UTC()})
	}
	return out
}

// hourlySlug produce p.ej. bitcoin-up-or-down-december-14-11am-et.
func hourlySlug(s domain.Series, startET time.Time) string {
	h := startET.Hour() % 12
	if h == 0 {
		h = 12
	}
	ampm := "am"
	if startET.Hour() >= 12 {
		ampm = "pm"
	}
	return fmt.Sprintf("%s%s-%d-%d%s-et",
		slugPrefixes[s],
		strings.ToLower(startET.Month().String()),
		startET.Day(),
		h, ampm,
	)
}

// fetchEvent consulta un slug. ok=false si no existe, está cerrado o no tiene el par Up/Down.
func (d *Discovery) fetchEvent(ctx context.Context, c candidate) (domain.MarketInstance, bool, error) {
	u := fmt.Sprintf("%s/events?slug=%s", d.client.gammaBase, url.QueryEscape(c.slug))
	var events []gammaEvent
	if err := d.client.get(ctx, d.client.gammaLimiter, u, &events); err != nil {
		return domain.MarketInstance{}, false, err
	}
	if len(events) == 0 {
		return domain.MarketInstance{}, false, nil
	}
	m, ok := mapEvent(events[0], c)
	return m, ok, nil
}

// mapEvent extrae el par Up/Down del primer market del evento.
func mapEvent(ev gammaEvent, c candidate) (domain.MarketInstance, bool) {
	if ev.Closed || len(ev.Markets) == 0 {
		return domain.MarketInstance{}, false
	}
	gm := ev.Markets[0]
	if gm.Closed {
		return domain.MarketInstance{}, false
	}

	m := domain.MarketInstance{
		ID:     gm.ConditionID,
		Slug:   ev.Slug,
		Series: c.series,
	}
	if m.ID == "" {
		m.ID = gm.ID
	}
	if m.Slug == "" {
		m.Slug = c.slug
	}

	for i, outcome := range gm.Outcomes {
		if i >= len(gm.ClobTokenIDs) {
			break
		}
		switch strings.ToLower(strings.TrimSpace(outcome)) {
		case "up":
			m.UpTokenID = gm.ClobTokenIDs[i]
		case "down":
			m.DownTokenID = gm.ClobTokenIDs[i]
		}
	}

	m.EndTime = parseTimeString(ev.EndDate)
	if m.EndTime.IsZero() {
		m.EndTime = parseTimeString(gm.EndDate)
	}
	if m.EndTime.IsZero() {
		m.EndTime = c.start.Add(c.series.HardLifetime())
	}

	if err := m.Validate(); err != nil {
		slog.Debug("discovery: event skipped", "slug", m.Slug, "err", err)
		return domain.MarketInstance{}, false
	}
	return m, true
}
