package polymarket

// gateway.go: ejecución real de órdenes contra el CLOB.
//
// Implementa ports.OrderGateway y ports.OpenOrderLister usando AuthClient
// para L1/L2. Solo se envían BUY limit (GTC para quotes, FOK si el engine
// lo pide para cruzar el spread).

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alejandrodnm/updownmm/internal/domain"
)

const (
	firstCursor   = "MA=="
	endCursor     = "LTE="
	maxOrderPages = 50
)

// Gateway implementa ports.OrderGateway y ports.OpenOrderLister.
type Gateway struct {
	auth *AuthClient
	meta *TokenMeta
}

// NewGateway crea un Gateway. meta aporta tick size, neg-risk y fee rate por token.
func NewGateway(auth *AuthClient, meta *TokenMeta) *Gateway {
	return &Gateway{auth: auth, meta: meta}
}

// Meta devuelve la caché de metadata compartida con el engine.
func (g *Gateway) Meta() *TokenMeta { return g.meta }

// PlaceLimitOrder firma y envía una orden BUY limit.
func (g *Gateway) PlaceLimitOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	if req.Side != domain.SideBuy {
		return domain.PlacedOrder{}, fmt.Errorf("polymarket.PlaceLimitOrder: unsupported side %q", req.Side)
	}
	if err := g.auth.EnsureCreds(ctx); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("polymarket.PlaceLimitOrder: creds: %w", err)
	}
	creds, err := g.auth.credentials()
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("polymarket.PlaceLimitOrder: %w", err)
	}

	tick, _ := g.meta.TickSize(ctx, req.TokenID)
	negRisk, err := g.meta.NegRisk(ctx, req.TokenID)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("polymarket.PlaceLimitOrder: %w", err)
	}
	feeBps, err := g.meta.FeeRateBps(ctx, req.TokenID)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("polymarket.PlaceLimitOrder: %w", err)
	}

	signed, err := g.auth.buildSignedOrder(req.TokenID, req.Price, req.Size, tick, negRisk, feeBps)
	if err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("polymarket.PlaceLimitOrder: sign: %w", err)
	}

	orderType := req.Type
	if orderType == "" {
		orderType = domain.OrderTypeGTC
	}
	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       req.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(domain.SideBuy),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     creds.APIKey,
		OrderType: string(orderType),
	}

	var resp clobOrderResponse
	if err := g.auth.doL2(ctx, http.MethodPost, "/order", nil, body, &resp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("polymarket.PlaceLimitOrder: %w", classify(err))
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return domain.PlacedOrder{}, fmt.Errorf("polymarket.PlaceLimitOrder: %w: %s", domain.ErrExchangeRejected, resp.ErrorMsg)
	}
	if resp.OrderID == "" {
		return domain.PlacedOrder{}, fmt.Errorf("polymarket.PlaceLimitOrder: %w", domain.ErrNoOrderID)
	}

	// En un BUY, takingAmount son las shares recibidas al instante.
	return domain.PlacedOrder{
		OrderID: resp.OrderID,
		Status:  resp.Status,
		Matched: parseDecimal(resp.TakingAmount),
	}, nil
}

// CancelOrder cancela una orden por su id del CLOB.
func (g *Gateway) CancelOrder(ctx context.Context, orderID string) error {
	if err := g.auth.EnsureCreds(ctx); err != nil {
		return fmt.Errorf("polymarket.CancelOrder: creds: %w", err)
	}

	var resp clobCancelResponse
	if err := g.auth.doL2(ctx, http.MethodDelete, "/order", nil, clobCancelRequest{OrderID: orderID}, &resp); err != nil {
		return fmt.Errorf("polymarket.CancelOrder %s: %w", orderID, classify(err))
	}
	if reason, ok := resp.NotCanceled[orderID]; ok {
		return fmt.Errorf("polymarket.CancelOrder %s: %w: %s", orderID, domain.ErrExchangeRejected, reason)
	}
	return nil
}

// CancelAll cancela todas las órdenes abiertas de la cuenta.
func (g *Gateway) CancelAll(ctx context.Context) (int, error) {
	if err := g.auth.EnsureCreds(ctx); err != nil {
		return 0, fmt.Errorf("polymarket.CancelAll: creds: %w", err)
	}

	var resp clobCancelResponse
	if err := g.auth.doL2(ctx, http.MethodDelete, "/cancel-all", nil, nil, &resp); err != nil {
		return 0, fmt.Errorf("polymarket.CancelAll: %w", classify(err))
	}
	return len(resp.Canceled), nil
}

// PollOrderStatus consulta el estado y el tamaño ejecutado de una orden.
func (g *Gateway) PollOrderStatus(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	if err := g.auth.EnsureCreds(ctx); err != nil {
		return domain.OrderStatus{}, fmt.Errorf("polymarket.PollOrderStatus: creds: %w", err)
	}

	var resp clobOrderLookup
	if err := g.auth.doL2(ctx, http.MethodGet, "/data/order/"+orderID, nil, nil, &resp); err != nil {
		return domain.OrderStatus{}, fmt.Errorf("polymarket.PollOrderStatus %s: %w", orderID, classify(err))
	}
	order := resp.clobOrder
	if resp.Order != nil {
		order = *resp.Order
	}
	if order.ID == "" {
		return domain.OrderStatus{}, fmt.Errorf("polymarket.PollOrderStatus %s: %w", orderID, domain.ErrOrderNotFound)
	}
	return mapOrderStatus(order), nil
}

// OpenOrders lista las órdenes abiertas de la cuenta, paginando por cursor.
func (g *Gateway) OpenOrders(ctx context.Context) ([]domain.RestingOrder, error) {
	if err := g.auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("polymarket.OpenOrders: creds: %w", err)
	}

	var orders []domain.RestingOrder
	cursor := firstCursor
	for page := 0; page < maxOrderPages; page++ {
		var resp clobOrdersResponse
		q := url.Values{"next_cursor": []string{cursor}}
		if err := g.auth.doL2(ctx, http.MethodGet, "/data/orders", q, nil, &resp); err != nil {
			return nil, fmt.Errorf("polymarket.OpenOrders: %w", classify(err))
		}
		for _, o := range resp.Data {
			if o.ID == "" {
				continue
			}
			orders = append(orders, mapRestingOrder(o))
		}
		if resp.NextCursor == "" || resp.NextCursor == endCursor {
			break
		}
		cursor = resp.NextCursor
	}
	return orders, nil
}

// classify marca las respuestas 4xx (salvo 429) como rechazo del exchange.
func classify(err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) && !retryable(apiErr) {
		return fmt.Errorf("%w: %s", domain.ErrExchangeRejected, strings.TrimSpace(apiErr.body))
	}
	return err
}
