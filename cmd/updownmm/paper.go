package main

import (
	"log/slog"

	"github.com/alejandrodnm/updownmm/config"
	"github.com/alejandrodnm/updownmm/internal/adapters/paper"
	"github.com/alejandrodnm/updownmm/internal/application/engine"
	"github.com/alejandrodnm/updownmm/internal/application/engine/live"
	"github.com/alejandrodnm/updownmm/internal/ports"
)

const paperAccount = "paper"

// setupPaper simula las órdenes contra el feed real. El exchange simulado
// también es la fuente de posiciones y órdenes abiertas.
func setupPaper(cfg *config.Config, deps live.Deps, feed ports.TopOfBookFeed) (*live.Engine, error) {
	ex := paper.NewExchange(feed, nil)

	deps.Gateway = engine.NewGuard(ex, cfg.GuardConfig())
	deps.OpenOrders = ex
	deps.Positions = ex

	slog.Info("=== PAPER TRADING MODE (simulated fills) ===",
		"bankroll", cfg.Quoting.BankrollUSD,
		"min_edge", cfg.Quoting.MinEdge,
	)
	return live.New(cfg.LiveConfig(paperAccount), deps), nil
}
