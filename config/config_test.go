package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/updownmm/config"
	"github.com/alejandrodnm/updownmm/internal/application/engine"
	"github.com/alejandrodnm/updownmm/internal/domain"
	"github.com/alejandrodnm/updownmm/internal/domain/quoting"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// clearEnv aísla el test de las variables del entorno del desarrollador.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"POLY_PRIVATE_KEY", "POLY_FUNDER", "POLY_SIGNATURE_TYPE", "POLYGON_RPC_URL",
		"MODE", "KILL_SWITCH", "LIVE_ACK", "BANKROLL_USD", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_ExampleFileIsValid(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load("config.yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "paper", cfg.Mode)
	assert.False(t, cfg.IsLive())

	series, err := cfg.SeriesList()
	require.NoError(t, err)
	assert.Equal(t, domain.AllSeries, series)

	p := cfg.Params()
	def := quoting.DefaultParams()
	assert.True(t, p.MinEdge.Equal(def.MinEdge))
	assert.True(t, p.WideSpread.Equal(def.WideSpread))
	assert.Equal(t, def.StaleAfter, p.StaleAfter)
	assert.Equal(t, def.FastTopUp.MaxAfterFill, p.FastTopUp.MaxAfterFill)
	size, ok := p.Sizes.BaseSize(domain.SeriesBTC15m, 30)
	require.True(t, ok)
	assert.True(t, size.Equal(decimal.NewFromInt(11)))
}

func TestLoad_MissingKeysKeepDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, "quoting:\n  min_edge: 0.02\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	p := cfg.Params()
	assert.True(t, p.MinEdge.Equal(decimal.RequireFromString("0.02")))
	assert.True(t, p.MaxPrice.Equal(decimal.RequireFromString("0.99")))
	assert.Equal(t, int64(3600), p.MaxSecondsToEnd)

	lc := cfg.LiveConfig("0xabc")
	assert.Equal(t, 500*time.Millisecond, lc.TickInterval)
	assert.Equal(t, 300*time.Second, lc.StaleOrderTimeout)
	assert.Equal(t, "0xabc", lc.Account)
	assert.Equal(t, "updownmm.db", cfg.Storage.DSN)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MODE", "LIVE")
	t.Setenv("LIVE_ACK", "true")
	t.Setenv("KILL_SWITCH", "1")
	t.Setenv("POLY_PRIVATE_KEY", "0xdeadbeef")
	t.Setenv("BANKROLL_USD", "250")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load(writeConfig(t, "mode: paper\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.IsLive())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Params().Caps.BankrollUSD.Equal(decimal.NewFromInt(250)))

	g := cfg.GuardConfig()
	assert.Equal(t, engine.ModeLive, g.Mode)
	assert.True(t, g.LiveAck)
	assert.True(t, g.KillSwitch)
	assert.Equal(t, "STOP_TRADING", g.StopFile)
}

func TestLoad_BadEnvValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("KILL_SWITCH", "maybe")
	_, err := config.Load(writeConfig(t, "mode: paper\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_SizeOverrideAndStaticMarket(t *testing.T) {
	clearEnv(t)
	cfg, err := config.Load(writeConfig(t, `
markets:
  series: [btc-15m]
  static:
    - id: "0xcond"
      series: eth-1h
      up_token_id: "1"
      down_token_id: "2"
      end_time: "2025-01-01T12:00:00Z"
quoting:
  sizes:
    btc-15m:
      - {max_seconds_to_end: 100, shares: 5}
      - {max_seconds_to_end: 900, shares: 7.5}
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	p := cfg.Params()
	size, ok := p.Sizes.BaseSize(domain.SeriesBTC15m, 200)
	require.True(t, ok)
	assert.True(t, size.Equal(decimal.RequireFromString("7.5")))
	// el resto de series conserva la tabla por defecto
	size, ok = p.Sizes.BaseSize(domain.SeriesETH15m, 30)
	require.True(t, ok)
	assert.True(t, size.Equal(decimal.NewFromInt(8)))

	static, err := cfg.StaticMarkets()
	require.NoError(t, err)
	require.Len(t, static, 1)
	assert.Equal(t, "0xcond", static[0].Slug, "sin slug se usa el id")
	assert.Equal(t, domain.SeriesETH1h, static[0].Series)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), static[0].EndTime)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown mode", "mode: yolo\n"},
		{"live without key", "mode: live\n"},
		{"inverted window", "quoting:\n  min_seconds_to_end: 600\n  max_seconds_to_end: 300\n"},
		{"window past lifetime", "quoting:\n  max_seconds_to_end: 7200\n"},
		{"price bounds", "quoting:\n  min_price: 0.9\n  max_price: 0.1\n"},
		{"fraction above one", "quoting:\n  max_order_fraction: 1.5\n"},
		{"order above total", "quoting:\n  max_order_fraction: 0.6\n  max_total_fraction: 0.5\n"},
		{"unsorted sizes", "quoting:\n  sizes:\n    btc-15m:\n      - {max_seconds_to_end: 900, shares: 5}\n      - {max_seconds_to_end: 60, shares: 5}\n"},
		{"unknown series", "markets:\n  series: [doge-5m]\n"},
		{"deadline above tick", "engine:\n  tick_interval_ms: 100\n  market_deadline_ms: 200\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"static without end", "markets:\n  static:\n    - {id: x, series: btc-15m, up_token_id: a, down_token_id: b}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := config.Load(writeConfig(t, tt.yaml))
			require.NoError(t, err)
			assert.Error(t, cfg.Validate())
		})
	}
}
