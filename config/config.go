package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/updownmm/internal/adapters/polymarket"
	"github.com/alejandrodnm/updownmm/internal/application/engine"
	"github.com/alejandrodnm/updownmm/internal/application/engine/live"
	"github.com/alejandrodnm/updownmm/internal/domain"
	"github.com/alejandrodnm/updownmm/internal/domain/quoting"
)

// Config es la configuración completa del market maker.
type Config struct {
	Mode       string        `yaml:"mode"` // paper | live
	LiveAck    bool          `yaml:"live_ack"`
	KillSwitch bool          `yaml:"kill_switch"`
	StopFile   string        `yaml:"stop_file"`
	Account    string        `yaml:"account"` // dueño de las posiciones; vacío = funder
	Engine     EngineConfig  `yaml:"engine"`
	Markets    MarketsConfig `yaml:"markets"`
	Quoting    QuotingConfig `yaml:"quoting"`
	API        APIConfig     `yaml:"api"`
	Wallet     WalletConfig  `yaml:"wallet"`
	Feed       FeedConfig    `yaml:"feed"`
	Storage    StorageConfig `yaml:"storage"`
	Metrics    MetricsConfig `yaml:"metrics"`
	Log        LogConfig     `yaml:"log"`
}

// EngineConfig controla el scheduler.
type EngineConfig struct {
	TickIntervalMs           int `yaml:"tick_interval_ms"`
	MarketDeadlineMs         int `yaml:"market_deadline_ms"`
	PollIntervalMs           int `yaml:"poll_interval_ms"`
	PositionsRefreshSeconds  int `yaml:"positions_refresh_seconds"`
	PositionsTTLSeconds      int `yaml:"positions_ttl_seconds"`
	StaleOrderTimeoutSeconds int `yaml:"stale_order_timeout_seconds"` // negativo desactiva
	DiscoveryIntervalSeconds int `yaml:"discovery_interval_seconds"`
	ShutdownTimeoutSeconds   int `yaml:"shutdown_timeout_seconds"`
	MaxConcurrentMarkets     int `yaml:"max_concurrent_markets"`
	StatusEvery              int `yaml:"status_every"` // ticks entre tablas de estado, 0 desactiva
}

// MarketsConfig selecciona las series a descubrir y mercados fijos opcionales.
type MarketsConfig struct {
	Series []string       `yaml:"series"`
	Static []StaticMarket `yaml:"static"`
}

// StaticMarket es una instancia declarada a mano.
type StaticMarket struct {
	ID          string `yaml:"id"`
	Slug        string `yaml:"slug"`
	Series      string `yaml:"series"`
	UpTokenID   string `yaml:"up_token_id"`
	DownTokenID string `yaml:"down_token_id"`
	EndTime     string `yaml:"end_time"` // RFC3339
}

// QuotingConfig refleja quoting.Params con tipos de YAML.
type QuotingConfig struct {
	MinSecondsToEnd           int64                 `yaml:"min_seconds_to_end"`
	MaxSecondsToEnd           int64                 `yaml:"max_seconds_to_end"`
	StaleAfterMs              int                   `yaml:"stale_after_ms"`
	ReplaceThrottleMs         int                   `yaml:"replace_throttle_ms"`
	MinEdge                   float64               `yaml:"min_edge"`
	ImproveTicks              int                   `yaml:"improve_ticks"`
	WideSpread                float64               `yaml:"wide_spread"`
	MaxSkewTicks              int                   `yaml:"max_skew_ticks"`
	ImbalanceSharesForMaxSkew float64               `yaml:"imbalance_shares_for_max_skew"`
	DefaultTick               float64               `yaml:"default_tick"`
	MinPrice                  float64               `yaml:"min_price"`
	MaxPrice                  float64               `yaml:"max_price"`
	MinShares                 float64               `yaml:"min_shares"`
	Sizes                     map[string][]SizeStep `yaml:"sizes"`
	BankrollUSD               float64               `yaml:"bankroll_usd"`
	MaxOrderFraction          float64               `yaml:"max_order_fraction"`
	MaxTotalFraction          float64               `yaml:"max_total_fraction"`
	TakerModeMaxSpread        float64               `yaml:"taker_mode_max_spread"`
	TopUp                     TopUpConfig           `yaml:"top_up"`
	FastTopUp                 FastTopUpConfig       `yaml:"fast_top_up"`
	Taker                     TakerConfig           `yaml:"taker"`
}

// SizeStep es una fila de la tabla de tamaños: shares mientras secondsToEnd <= max.
type SizeStep struct {
	MaxSecondsToEnd int64   `yaml:"max_seconds_to_end"`
	Shares          float64 `yaml:"shares"`
}

type TopUpConfig struct {
	Enabled      bool    `yaml:"enabled"`
	SecondsToEnd int64   `yaml:"seconds_to_end"`
	MinShares    float64 `yaml:"min_shares"`
}

type FastTopUpConfig struct {
	Enabled             bool    `yaml:"enabled"`
	MinShares           float64 `yaml:"min_shares"`
	CooldownSeconds     float64 `yaml:"cooldown_seconds"`
	MinAfterFillSeconds float64 `yaml:"min_after_fill_seconds"`
	MaxAfterFillSeconds float64 `yaml:"max_after_fill_seconds"`
	MinEdge             float64 `yaml:"min_edge"`
}

type TakerConfig struct {
	Enabled   bool    `yaml:"enabled"`
	MaxEdge   float64 `yaml:"max_edge"`
	MaxSpread float64 `yaml:"max_spread"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase     string `yaml:"clob_base"`
	GammaBase    string `yaml:"gamma_base"`
	DataBase     string `yaml:"data_base"`
	MarketWSBase string `yaml:"market_ws_base"`
	PolygonRPC   string `yaml:"polygon_rpc"`
}

// WalletConfig describe la cuenta que firma y la que fondea. La clave privada
// solo se lee del entorno.
type WalletConfig struct {
	PrivateKey    string `yaml:"-"`
	Funder        string `yaml:"funder"`
	SignatureType int    `yaml:"signature_type"` // 0 EOA, 1 proxy, 2 safe
}

// FeedConfig controla el WebSocket de mercado.
type FeedConfig struct {
	PingIntervalSeconds int `yaml:"ping_interval_seconds"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// MetricsConfig controla el endpoint de Prometheus.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // vacío desactiva
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default devuelve la configuración de producción. Load parte de ella, de
// modo que una clave ausente en el YAML conserva su default.
func Default() Config {
	p := quoting.DefaultParams()
	sizes := make(map[string][]SizeStep, len(p.Sizes))
	for series, table := range p.Sizes {
		for _, s := range table {
			sizes[string(series)] = append(sizes[string(series)], SizeStep{
				MaxSecondsToEnd: s.MaxSecondsToEnd,
				Shares:          s.Shares.InexactFloat64(),
			})
		}
	}

	return Config{
		Mode:     string(engine.ModePaper),
		StopFile: "STOP_TRADING",
		Engine: EngineConfig{
			TickIntervalMs:           500,
			MarketDeadlineMs:         400,
			PollIntervalMs:           1000,
			PositionsRefreshSeconds:  5,
			PositionsTTLSeconds:      60,
			StaleOrderTimeoutSeconds: 300,
			DiscoveryIntervalSeconds: 30,
			ShutdownTimeoutSeconds:   10,
			MaxConcurrentMarkets:     8,
			StatusEvery:              20,
		},
		Markets: MarketsConfig{Series: seriesNames(domain.AllSeries)},
		Quoting: QuotingConfig{
			MinSecondsToEnd:           p.MinSecondsToEnd,
			MaxSecondsToEnd:           p.MaxSecondsToEnd,
			StaleAfterMs:              int(p.StaleAfter.Milliseconds()),
			ReplaceThrottleMs:         int(p.ReplaceThrottle.Milliseconds()),
			MinEdge:                   p.MinEdge.InexactFloat64(),
			ImproveTicks:              p.ImproveTicks,
			WideSpread:                p.WideSpread.InexactFloat64(),
			MaxSkewTicks:              p.MaxSkewTicks,
			ImbalanceSharesForMaxSkew: p.ImbalanceSharesForMaxSkew.InexactFloat64(),
			DefaultTick:               p.DefaultTick.InexactFloat64(),
			MinPrice:                  p.MinPrice.InexactFloat64(),
			MaxPrice:                  p.MaxPrice.InexactFloat64(),
			MinShares:                 p.MinShares.InexactFloat64(),
			Sizes:                     sizes,
			BankrollUSD:               p.Caps.BankrollUSD.InexactFloat64(),
			MaxOrderFraction:          p.Caps.MaxOrderFraction.InexactFloat64(),
			MaxTotalFraction:          p.Caps.MaxTotalFraction.InexactFloat64(),
			TakerModeMaxSpread:        p.TakerModeMaxSpread.InexactFloat64(),
			TopUp: TopUpConfig{
				Enabled:      p.TopUp.Enabled,
				SecondsToEnd: p.TopUp.SecondsToEnd,
				MinShares:    p.TopUp.MinShares.InexactFloat64(),
			},
			FastTopUp: FastTopUpConfig{
				Enabled:             p.FastTopUp.Enabled,
				MinShares:           p.FastTopUp.MinShares.InexactFloat64(),
				CooldownSeconds:     p.FastTopUp.Cooldown.Seconds(),
				MinAfterFillSeconds: p.FastTopUp.MinAfterFill.Seconds(),
				MaxAfterFillSeconds: p.FastTopUp.MaxAfterFill.Seconds(),
				MinEdge:             p.FastTopUp.MinEdge.InexactFloat64(),
			},
			Taker: TakerConfig{
				Enabled:   p.Taker.Enabled,
				MaxEdge:   p.Taker.MaxEdge.InexactFloat64(),
				MaxSpread: p.Taker.MaxSpread.InexactFloat64(),
			},
		},
		API: APIConfig{
			CLOBBase:     "https://clob.polymarket.com",
			GammaBase:    "https://gamma-api.polymarket.com",
			DataBase:     "https://data-api.polymarket.com",
			MarketWSBase: "wss://ws-subscriptions-clob.polymarket.com",
			PolygonRPC:   "https://polygon-rpc.com",
		},
		Feed:    FeedConfig{PingIntervalSeconds: 10, ReadTimeoutSeconds: 60},
		Storage: StorageConfig{DSN: "updownmm.db"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)

	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("POLY_PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("POLY_FUNDER"); v != "" {
		cfg.Wallet.Funder = v
	}
	if v := os.Getenv("POLY_SIGNATURE_TYPE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("POLY_SIGNATURE_TYPE: %w", err)
		}
		cfg.Wallet.SignatureType = n
	}
	if v := os.Getenv("POLYGON_RPC_URL"); v != "" {
		cfg.API.PolygonRPC = v
	}
	if v := os.Getenv("MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("KILL_SWITCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KILL_SWITCH: %w", err)
		}
		cfg.KillSwitch = b
	}
	if v := os.Getenv("LIVE_ACK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LIVE_ACK: %w", err)
		}
		cfg.LiveAck = b
	}
	if v := os.Getenv("BANKROLL_USD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BANKROLL_USD: %w", err)
		}
		cfg.Quoting.BankrollUSD = f
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	return nil
}

// setDefaults rellena lo que el YAML dejó vacío explícitamente.
func setDefaults(cfg *Config) {
	def := Default()
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if len(cfg.Markets.Series) == 0 && len(cfg.Markets.Static) == 0 {
		cfg.Markets.Series = def.Markets.Series
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = def.API.CLOBBase
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = def.API.GammaBase
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = def.API.DataBase
	}
	if cfg.API.MarketWSBase == "" {
		cfg.API.MarketWSBase = def.API.MarketWSBase
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = def.Storage.DSN
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
}

// Validate rechaza configuraciones que el engine no puede operar con seguridad.
func (c *Config) Validate() error {
	var errs []string
	fail := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	switch engine.Mode(c.Mode) {
	case engine.ModePaper:
	case engine.ModeLive:
		if c.Wallet.PrivateKey == "" {
			fail("live mode requires POLY_PRIVATE_KEY")
		}
		switch c.Wallet.SignatureType {
		case polymarket.SignatureEOA, polymarket.SignaturePolyProxy, polymarket.SignatureGnosisSafe:
		default:
			fail("wallet.signature_type must be 0, 1 or 2, got %d", c.Wallet.SignatureType)
		}
		if c.Wallet.SignatureType != polymarket.SignatureEOA && c.Wallet.Funder == "" {
			fail("wallet.funder is required for proxy and safe signature types")
		}
	default:
		fail("mode must be paper or live, got %q", c.Mode)
	}

	e := c.Engine
	if e.TickIntervalMs <= 0 {
		fail("engine.tick_interval_ms must be positive")
	}
	if e.MarketDeadlineMs <= 0 || e.MarketDeadlineMs > e.TickIntervalMs {
		fail("engine.market_deadline_ms must be in (0, tick_interval_ms]")
	}
	if e.MaxConcurrentMarkets < 0 || e.StatusEvery < 0 {
		fail("engine.max_concurrent_markets and engine.status_every must not be negative")
	}

	if _, err := c.SeriesList(); err != nil {
		fail("%v", err)
	}
	if _, err := c.StaticMarkets(); err != nil {
		fail("%v", err)
	}

	q := c.Quoting
	if q.MinSecondsToEnd < 0 || q.MinSecondsToEnd >= q.MaxSecondsToEnd {
		fail("quoting: need 0 <= min_seconds_to_end < max_seconds_to_end, got %d..%d", q.MinSecondsToEnd, q.MaxSecondsToEnd)
	}
	if q.MaxSecondsToEnd > int64(time.Hour/time.Second) {
		fail("quoting.max_seconds_to_end %d exceeds the longest market lifetime", q.MaxSecondsToEnd)
	}
	if q.StaleAfterMs <= 0 || q.ReplaceThrottleMs < 0 {
		fail("quoting: stale_after_ms must be positive and replace_throttle_ms not negative")
	}
	if q.MinEdge < 0 || q.ImproveTicks < 0 || q.MaxSkewTicks < 0 {
		fail("quoting: min_edge, improve_ticks and max_skew_ticks must not be negative")
	}
	if q.MaxSkewTicks > 0 && q.ImbalanceSharesForMaxSkew <= 0 {
		fail("quoting.imbalance_shares_for_max_skew must be positive when skew is enabled")
	}
	if q.DefaultTick <= 0 || q.DefaultTick >= 1 {
		fail("quoting.default_tick must be in (0, 1)")
	}
	if q.MinPrice <= 0 || q.MaxPrice >= 1 || q.MinPrice >= q.MaxPrice {
		fail("quoting: need 0 < min_price < max_price < 1")
	}
	if q.MinShares <= 0 {
		fail("quoting.min_shares must be positive")
	}
	if q.BankrollUSD < 0 {
		fail("quoting.bankroll_usd must not be negative")
	}
	if q.MaxOrderFraction < 0 || q.MaxOrderFraction > 1 || q.MaxTotalFraction < 0 || q.MaxTotalFraction > 1 {
		fail("quoting: fractions must be in [0, 1]")
	}
	if q.MaxTotalFraction > 0 && q.MaxOrderFraction > q.MaxTotalFraction {
		fail("quoting.max_order_fraction must not exceed max_total_fraction")
	}
	if ft := q.FastTopUp; ft.Enabled && (ft.MinAfterFillSeconds < 0 || ft.MinAfterFillSeconds > ft.MaxAfterFillSeconds) {
		fail("quoting.fast_top_up: need 0 <= min_after_fill_seconds <= max_after_fill_seconds")
	}
	if q.Taker.Enabled && q.Taker.MaxEdge < 0 {
		fail("quoting.taker.max_edge must not be negative")
	}
	if _, err := c.sizeTables(); err != nil {
		fail("%v", err)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		fail("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		fail("log.format must be text or json, got %q", c.Log.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config.Validate: %s", strings.Join(errs, "; "))
	}
	return nil
}

// IsLive devuelve true en modo live.
func (c *Config) IsLive() bool { return engine.Mode(c.Mode) == engine.ModeLive }

// SeriesList parsea las series configuradas.
func (c *Config) SeriesList() ([]domain.Series, error) {
	out := make([]domain.Series, 0, len(c.Markets.Series))
	for _, s := range c.Markets.Series {
		v, err := domain.ParseSeries(s)
		if err != nil {
			return nil, fmt.Errorf("markets.series: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// StaticMarkets convierte los mercados declarados a mano.
func (c *Config) StaticMarkets() ([]domain.MarketInstance, error) {
	out := make([]domain.MarketInstance, 0, len(c.Markets.Static))
	for i, s := range c.Markets.Static {
		series, err := domain.ParseSeries(s.Series)
		if err != nil {
			return nil, fmt.Errorf("markets.static[%d]: %w", i, err)
		}
		end, err := time.Parse(time.RFC3339, s.EndTime)
		if err != nil {
			return nil, fmt.Errorf("markets.static[%d]: end_time: %w", i, err)
		}
		m := domain.MarketInstance{
			ID:          s.ID,
			Slug:        s.Slug,
			Series:      series,
			UpTokenID:   s.UpTokenID,
			DownTokenID: s.DownTokenID,
			EndTime:     end.UTC(),
		}
		if m.Slug == "" {
			m.Slug = m.ID
		}
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("markets.static[%d]: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (c *Config) sizeTables() (quoting.SizeTables, error) {
	tables := quoting.DefaultSizeTables()
	for name, rows := range c.Quoting.Sizes {
		series, err := domain.ParseSeries(name)
		if err != nil {
			return nil, fmt.Errorf("quoting.sizes: %w", err)
		}
		t := make(quoting.StepTable, 0, len(rows))
		for _, r := range rows {
			t = append(t, quoting.Step{MaxSecondsToEnd: r.MaxSecondsToEnd, Shares: dec(r.Shares)})
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("quoting.sizes[%s]: %w", name, err)
		}
		tables[series] = t
	}
	return tables, nil
}

// Params convierte la sección quoting. Llamar después de Validate.
func (c *Config) Params() quoting.Params {
	q := c.Quoting
	p := quoting.DefaultParams()

	p.MinSecondsToEnd = q.MinSecondsToEnd
	p.MaxSecondsToEnd = q.MaxSecondsToEnd
	p.StaleAfter = ms(q.StaleAfterMs)
	p.ReplaceThrottle = ms(q.ReplaceThrottleMs)
	p.MinEdge = dec(q.MinEdge)
	p.ImproveTicks = q.ImproveTicks
	p.WideSpread = dec(q.WideSpread)
	p.MaxSkewTicks = q.MaxSkewTicks
	p.ImbalanceSharesForMaxSkew = dec(q.ImbalanceSharesForMaxSkew)
	p.DefaultTick = dec(q.DefaultTick)
	p.MinPrice = dec(q.MinPrice)
	p.MaxPrice = dec(q.MaxPrice)
	p.MinShares = dec(q.MinShares)
	if tables, err := c.sizeTables(); err == nil {
		p.Sizes = tables
	}
	p.Caps = quoting.Caps{
		BankrollUSD:      dec(q.BankrollUSD),
		MaxOrderFraction: dec(q.MaxOrderFraction),
		MaxTotalFraction: dec(q.MaxTotalFraction),
	}
	p.TakerModeMaxSpread = dec(q.TakerModeMaxSpread)
	p.TopUp = quoting.TopUpParams{
		Enabled:      q.TopUp.Enabled,
		SecondsToEnd: q.TopUp.SecondsToEnd,
		MinShares:    dec(q.TopUp.MinShares),
	}
	p.FastTopUp = quoting.FastTopUpParams{
		Enabled:      q.FastTopUp.Enabled,
		MinShares:    dec(q.FastTopUp.MinShares),
		Cooldown:     secs(q.FastTopUp.CooldownSeconds),
		MinAfterFill: secs(q.FastTopUp.MinAfterFillSeconds),
		MaxAfterFill: secs(q.FastTopUp.MaxAfterFillSeconds),
		MinEdge:      dec(q.FastTopUp.MinEdge),
	}
	p.Taker = quoting.TakerParams{
		Enabled:   q.Taker.Enabled,
		MaxEdge:   dec(q.Taker.MaxEdge),
		MaxSpread: dec(q.Taker.MaxSpread),
	}
	return p
}

// LiveConfig arma la configuración del engine para la cuenta dada.
func (c *Config) LiveConfig(account string) live.Config {
	e := c.Engine
	stale := time.Duration(e.StaleOrderTimeoutSeconds) * time.Second
	return live.Config{
		TickInterval:         ms(e.TickIntervalMs),
		MarketDeadline:       ms(e.MarketDeadlineMs),
		PositionsRefresh:     time.Duration(e.PositionsRefreshSeconds) * time.Second,
		PositionsTTL:         time.Duration(e.PositionsTTLSeconds) * time.Second,
		PollInterval:         ms(e.PollIntervalMs),
		StaleOrderTimeout:    stale,
		DiscoveryInterval:    time.Duration(e.DiscoveryIntervalSeconds) * time.Second,
		ShutdownTimeout:      time.Duration(e.ShutdownTimeoutSeconds) * time.Second,
		MaxConcurrentMarkets: e.MaxConcurrentMarkets,
		StatusEvery:          e.StatusEvery,
		Account:              account,
		Params:               c.Params(),
	}
}

// GuardConfig arma las puertas de seguridad del gateway.
func (c *Config) GuardConfig() engine.GuardConfig {
	return engine.GuardConfig{
		Mode:       engine.Mode(c.Mode),
		LiveAck:    c.LiveAck,
		KillSwitch: c.KillSwitch,
		StopFile:   c.StopFile,
	}
}

// Endpoints devuelve las URLs de Polymarket.
func (c *Config) Endpoints() polymarket.Endpoints {
	return polymarket.Endpoints{
		CLOB:     c.API.CLOBBase,
		Gamma:    c.API.GammaBase,
		Data:     c.API.DataBase,
		MarketWS: c.API.MarketWSBase,
	}
}

// AuthConfig devuelve la wallet para firmar órdenes.
func (c *Config) AuthConfig() polymarket.AuthConfig {
	return polymarket.AuthConfig{
		PrivateKeyHex: c.Wallet.PrivateKey,
		Funder:        c.Wallet.Funder,
		SignatureType: c.Wallet.SignatureType,
	}
}

// FeedSettings devuelve la configuración del WebSocket de mercado.
func (c *Config) FeedSettings() polymarket.FeedConfig {
	return polymarket.FeedConfig{
		URL:          c.API.MarketWSBase,
		PingInterval: time.Duration(c.Feed.PingIntervalSeconds) * time.Second,
		ReadTimeout:  time.Duration(c.Feed.ReadTimeoutSeconds) * time.Second,
	}
}

func seriesNames(series []domain.Series) []string {
	out := make([]string, len(series))
	for i, s := range series {
		out[i] = string(s)
	}
	return out
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func secs(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
