package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/updownmm/config"
	"github.com/alejandrodnm/updownmm/internal/adapters/onchain"
	"github.com/alejandrodnm/updownmm/internal/adapters/polymarket"
	"github.com/alejandrodnm/updownmm/internal/application/engine"
	"github.com/alejandrodnm/updownmm/internal/application/engine/live"
)

// minCollateralUSD es el mínimo exigido cuando no hay caps de bankroll.
var minCollateralUSD = decimal.NewFromInt(1)

// setupLive autentica contra el CLOB, verifica el colateral on-chain y da
// 5 segundos para abortar antes de operar con dinero real.
func setupLive(ctx context.Context, cfg *config.Config, deps live.Deps) (*live.Engine, error) {
	params := cfg.Params()
	perOrder, capped := params.Caps.OrderLimit()
	if !capped {
		perOrder = minCollateralUSD
	}

	fmt.Printf("\n⚠️  LIVE TRADING MODE: REAL MONEY WILL BE SPENT\n")
	fmt.Printf("   Bankroll: $%.2f | Max per order: $%s | Live ack: %v\n",
		cfg.Quoting.BankrollUSD, perOrder.StringFixed(2), cfg.LiveAck)
	fmt.Printf("   Press Ctrl+C within 5 seconds to abort...\n\n")

	abortTimer := time.NewTimer(5 * time.Second)
	select {
	case <-abortTimer.C:
	case <-ctx.Done():
		abortTimer.Stop()
		return nil, ctx.Err()
	}

	gateway, auth, err := newLiveGateway(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("live: authenticated with Polymarket CLOB", "signer", auth.Address(), "funder", auth.Funder())

	if err := checkCollateral(ctx, cfg, auth.Funder(), perOrder); err != nil {
		return nil, err
	}

	account := cfg.Account
	if account == "" {
		account = auth.Funder()
	}

	guard := engine.NewGuard(gateway, cfg.GuardConfig())
	if on, why := guard.KillSwitchEngaged(); on {
		slog.Warn("live: starting with kill switch engaged, no orders will be placed", "reason", why)
	}

	deps.Gateway = guard
	deps.OpenOrders = gateway
	deps.Positions = polymarket.NewPositions(auth.Client, nil)
	deps.TickSizes = gateway.Meta()

	return live.New(cfg.LiveConfig(account), deps), nil
}

// newLiveGateway crea el cliente autenticado y deriva las credenciales L2.
func newLiveGateway(ctx context.Context, cfg *config.Config) (*polymarket.Gateway, *polymarket.AuthClient, error) {
	auth, err := polymarket.NewAuthClient(cfg.Endpoints(), cfg.AuthConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("create auth client: %w", err)
	}
	if err := auth.EnsureCreds(ctx); err != nil {
		return nil, nil, fmt.Errorf("derive API credentials, check POLY_PRIVATE_KEY: %w", err)
	}
	meta := polymarket.NewTokenMeta(auth.Client, 0, nil)
	return polymarket.NewGateway(auth, meta), auth, nil
}

// checkCollateral exige saldo USDC.e y allowance hacia los exchanges de al
// menos una orden completa.
func checkCollateral(ctx context.Context, cfg *config.Config, funder string, perOrder decimal.Decimal) error {
	reader, err := polymarket.NewChainReader(cfg.API.PolygonRPC, funder)
	if err != nil {
		return err
	}
	defer reader.Close()

	balance, err := reader.USDCBalance(ctx)
	if err != nil {
		return fmt.Errorf("read USDC.e balance: %w", err)
	}
	slog.Info("live: on-chain balance", "usdc", "$"+balance.StringFixed(2), "per_order", "$"+perOrder.StringFixed(2))
	if balance.LessThan(perOrder) {
		return fmt.Errorf("USDC.e balance $%s below per-order cap $%s", balance.StringFixed(2), perOrder.StringFixed(2))
	}

	var signer *ecdsa.PrivateKey
	if cfg.Wallet.SignatureType == polymarket.SignatureEOA {
		signer, err = crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.Wallet.PrivateKey), "0x"))
		if err != nil {
			return fmt.Errorf("parse private key: %w", err)
		}
	}
	allowances, err := onchain.NewAllowances(cfg.API.PolygonRPC, funder, signer)
	if err != nil {
		return err
	}
	defer allowances.Close()

	slog.Info("live: checking USDC.e allowances...")
	if err := allowances.Ensure(ctx, perOrder); err != nil {
		return err
	}
	slog.Info("live: allowances verified")
	return nil
}

// runCancelAll cancela todas las órdenes abiertas de la cuenta sin pasar por el engine.
func runCancelAll(ctx context.Context, cfg *config.Config) error {
	if !cfg.IsLive() {
		return fmt.Errorf("-cancel-all requires live mode")
	}
	if !cfg.LiveAck {
		return fmt.Errorf("-cancel-all requires LIVE_ACK=true")
	}
	gateway, _, err := newLiveGateway(ctx, cfg)
	if err != nil {
		return err
	}
	n, err := gateway.CancelAll(ctx)
	if err != nil {
		return err
	}
	slog.Info("live: canceled all open orders", "count", n)
	return nil
}
