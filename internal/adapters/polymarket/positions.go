package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

const (
	positionsPageSize  = 200
	positionsMaxOffset = 2000
)

// Positions lee las posiciones liquidadas de la cuenta desde la Data API.
// Implementa ports.PositionsProvider.
type Positions struct {
	client *Client
	now    func() time.Time
}

// NewPositions crea el provider. now se usa para sellar el snapshot.
func NewPositions(client *Client, now func() time.Time) *Positions {
	if now == nil {
		now = time.Now
	}
	return &Positions{client: client, now: now}
}

// PositionsSnapshot pagina /positions hasta agotar resultados o llegar al offset máximo.
// AsOf es el instante de inicio de la consulta: una fill posterior no puede estar incluida.
func (p *Positions) PositionsSnapshot(ctx context.Context, account string) (domain.PositionsSnapshot, error) {
	if account == "" {
		return domain.PositionsSnapshot{}, fmt.Errorf("polymarket.PositionsSnapshot: empty account")
	}
	snap := domain.PositionsSnapshot{Account: account, AsOf: p.now()}
	skipped := 0

	for offset := 0; offset <= positionsMaxOffset; offset += positionsPageSize {
		q := url.Values{
			"user":   []string{account},
			"limit":  []string{strconv.Itoa(positionsPageSize)},
			"offset": []string{strconv.Itoa(offset)},
		}
		var page []dataPosition
		if err := p.client.get(ctx, p.client.dataLimiter, p.client.dataBase+"/positions?"+q.Encode(), &page); err != nil {
			return domain.PositionsSnapshot{}, fmt.Errorf("polymarket.PositionsSnapshot: offset %d: %w", offset, err)
		}
		for _, raw := range page {
			pos, ok := mapPosition(raw, snap.AsOf)
			if !ok {
				skipped++
				continue
			}
			snap.Positions = append(snap.Positions, pos)
		}
		if len(page) < positionsPageSize {
			break
		}
	}

	slog.Debug("polymarket: positions fetched",
		"account", account,
		"positions", len(snap.Positions),
		"skipped", skipped,
	)
	return snap, nil
}
