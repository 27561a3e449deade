package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/updownmm/internal/domain"
	"github.com/alejandrodnm/updownmm/internal/ports"
)

// Mode distingue el simulador del trading con dinero real.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// Clock devuelve la hora actual. Inyectable en tests.
type Clock func() time.Time

// SystemClock es el reloj de pared en UTC.
func SystemClock() time.Time { return time.Now().UTC() }

// GuardConfig configura las puertas de seguridad sobre el gateway.
type GuardConfig struct {
	Mode       Mode
	LiveAck    bool
	KillSwitch bool
	StopFile   string // si existe, el kill switch está activo
}

// Guard envuelve un OrderGateway con el kill switch y la confirmación de
// live trading. Ningún rechazo se reintenta.
type Guard struct {
	next   ports.OrderGateway
	cfg    GuardConfig
	killed atomic.Bool
}

// NewGuard crea el guard. El kill switch de config queda activado desde el inicio.
func NewGuard(next ports.OrderGateway, cfg GuardConfig) *Guard {
	g := &Guard{next: next, cfg: cfg}
	g.killed.Store(cfg.KillSwitch)
	return g
}

// Engage activa el kill switch en caliente.
func (g *Guard) Engage(reason string) {
	if !g.killed.Swap(true) {
		slog.Warn("guard: kill switch engaged", "reason", reason)
	}
}

// Release desactiva el kill switch de runtime. El stop file sigue mandando.
func (g *Guard) Release() {
	if g.killed.Swap(false) {
		slog.Info("guard: kill switch released")
	}
}

// KillSwitchEngaged devuelve si la colocación de órdenes está bloqueada y por qué.
func (g *Guard) KillSwitchEngaged() (bool, string) {
	if g.killed.Load() {
		return true, "kill switch"
	}
	if g.cfg.StopFile != "" {
		if _, err := os.Stat(g.cfg.StopFile); err == nil {
			return true, "stop file " + g.cfg.StopFile
		}
	}
	return false, ""
}

func (g *Guard) checkAck() error {
	if g.cfg.Mode == ModeLive && !g.cfg.LiveAck {
		return domain.ErrLiveAckMissing
	}
	return nil
}

// PlaceLimitOrder rechaza sin ack o con el kill switch activo.
func (g *Guard) PlaceLimitOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if err := g.checkAck(); err != nil {
		return domain.PlacedOrder{}, err
	}
	if on, why := g.KillSwitchEngaged(); on {
		return domain.PlacedOrder{}, fmt.Errorf("%w: %s", domain.ErrKillSwitch, why)
	}
	return g.next.PlaceLimitOrder(ctx, req)
}

// CancelOrder se permite con el kill switch activo, pero no sin ack en live.
func (g *Guard) CancelOrder(ctx context.Context, orderID string) error {
	if err := g.checkAck(); err != nil {
		return err
	}
	return g.next.CancelOrder(ctx, orderID)
}

// PollOrderStatus es de solo lectura y pasa directo.
func (g *Guard) PollOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	return g.next.PollOrderStatus(ctx, orderID)
}
