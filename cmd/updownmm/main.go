package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/updownmm/config"
	"github.com/alejandrodnm/updownmm/internal/adapters/metrics"
	"github.com/alejandrodnm/updownmm/internal/adapters/notify"
	"github.com/alejandrodnm/updownmm/internal/adapters/polymarket"
	"github.com/alejandrodnm/updownmm/internal/adapters/storage"
	"github.com/alejandrodnm/updownmm/internal/application/engine"
	"github.com/alejandrodnm/updownmm/internal/application/engine/live"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	mode := flag.String("mode", "", "paper|live (overrides config)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	cancelAll := flag.Bool("cancel-all", false, "live: cancel every open order of the account and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *mode != "" {
		cfg.Mode = *mode
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	slog.Info("updownmm starting",
		"config", *configPath,
		"mode", cfg.Mode,
		"series", cfg.Markets.Series,
		"static_markets", len(cfg.Markets.Static),
		"bankroll", cfg.Quoting.BankrollUSD,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *cancelAll {
		if err := runCancelAll(ctx, cfg); err != nil {
			slog.Error("cancel-all failed", "err", err)
			os.Exit(1)
		}
		return
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	prom := metrics.NewPrometheus()
	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, prom)
		srv.Start()
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			srv.Stop(stopCtx)
		}()
	}

	client := polymarket.NewClient(cfg.Endpoints())
	series, _ := cfg.SeriesList()
	static, _ := cfg.StaticMarkets()
	discovery, err := polymarket.NewDiscovery(client, series, static)
	if err != nil {
		slog.Error("failed to create discovery", "err", err)
		os.Exit(1)
	}

	feed := polymarket.NewMarketFeed(cfg.FeedSettings(), client, nil)
	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("feed stopped", "err", err)
		}
	}()

	console := notify.NewConsole()
	deps := live.Deps{
		Feed:       feed,
		Subscriber: feed,
		Markets:    discovery,
		TickSizes:  polymarket.NewTokenMeta(client, 0, nil),
		Recorder:   store,
		Notifier:   console,
		Metrics:    prom,
	}

	var (
		eng     *live.Engine
		started = time.Now().UTC()
	)
	switch engine.Mode(cfg.Mode) {
	case engine.ModeLive:
		eng, err = setupLive(ctx, cfg, deps)
	default:
		eng, err = setupPaper(cfg, deps, feed)
	}
	if err != nil {
		if ctx.Err() != nil {
			slog.Info("startup aborted by user")
			return
		}
		slog.Error("failed to set up engine", "err", err, "mode", cfg.Mode)
		os.Exit(1)
	}

	runErr := eng.Run(ctx)

	summary, err := store.RunSummary(context.Background(), eng.RunID(), started)
	if err != nil {
		slog.Warn("failed to build run summary", "err", err)
	} else {
		console.PrintSummary(summary)
	}

	if runErr != nil {
		slog.Error("engine exited with error", "err", runErr)
		os.Exit(1)
	}
	slog.Info("updownmm stopped cleanly", "run", eng.RunID())
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
