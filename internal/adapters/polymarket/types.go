package polymarket

import (
	"bytes"
	"encoding/json"
)

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB API ---

// orderBookRequest es el body del POST /books batch.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse es la respuesta de un item en POST /books.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// clobOrderRequest is the JSON body sent to POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	TakingAmount string `json:"takingAmount"`
	MakingAmount string `json:"makingAmount"`
	Status       string `json:"status"`
	Success      bool   `json:"success"`
}

type clobCancelRequest struct {
	OrderID string `json:"orderID"`
}

type clobCancelResponse struct {
	Canceled    []string          `json:"canceled"`
	NotCanceled map[string]string `json:"not_canceled"`
}

// clobOrder es una orden tal como la devuelven /data/order/{id} y /data/orders.
type clobOrder struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	AssetID      string          `json:"asset_id"`
	Market       string          `json:"market"`
	Side         string          `json:"side"`
	OriginalSize string          `json:"original_size"`
	SizeMatched  string          `json:"size_matched"`
	Price        string          `json:"price"`
	CreatedAt    json.RawMessage `json:"created_at"`
	Outcome      string          `json:"outcome"`
}

// clobOrderLookup acepta la orden plana o envuelta en {"order": ...}.
type clobOrderLookup struct {
	clobOrder
	Order *clobOrder `json:"order"`
}

type clobOrdersResponse struct {
	Data       []clobOrder `json:"data"`
	NextCursor string      `json:"next_cursor"`
}

type clobTickSizeResponse struct {
	MinimumTickSize json.Number `json:"minimum_tick_size"`
}

type clobNegRiskResponse struct {
	NegRisk bool `json:"neg_risk"`
}

type clobFeeRateResponse struct {
	BaseFee int `json:"base_fee"`
}

// --- Data API ---

// dataPosition es una fila de GET /positions de la Data API.
type dataPosition struct {
	Asset        string      `json:"asset"`
	ConditionID  string      `json:"conditionId"`
	Size         json.Number `json:"size"`
	InitialValue json.Number `json:"initialValue"`
	Redeemable   bool        `json:"redeemable"`
	Outcome      string      `json:"outcome"`
	Slug         string      `json:"slug"`
}

// --- Gamma API ---

// gammaEvent es un evento de GET /events?slug=. El par Up/Down vive en Markets[0].
type gammaEvent struct {
	Slug      string        `json:"slug"`
	Closed    bool          `json:"closed"`
	EndDate   string        `json:"endDate"`
	StartDate string        `json:"startDate"`
	Markets   []gammaMarket `json:"markets"`
}

type gammaMarket struct {
	ID           string     `json:"id"`
	ConditionID  string     `json:"conditionId"`
	Slug         string     `json:"slug"`
	EndDate      string     `json:"endDate"`
	Closed       bool       `json:"closed"`
	ClobTokenIDs stringList `json:"clobTokenIds"`
	Outcomes     stringList `json:"outcomes"`
}

// stringList decodifica tanto ["a","b"] como "[\"a\",\"b\"]"; Gamma usa ambos.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*l = nil
		return nil
	}
	if b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		if raw == "" {
			*l = nil
			return nil
		}
		b = []byte(raw)
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

// --- Market WebSocket ---

// wsEvent cubre los mensajes book, price_change y last_trade_price.
type wsEvent struct {
	EventType    string          `json:"event_type"`
	AssetID      string          `json:"asset_id"`
	Bids         []bookEntryRaw  `json:"bids"`
	Asks         []bookEntryRaw  `json:"asks"`
	Buys         []bookEntryRaw  `json:"buys"`
	Sells        []bookEntryRaw  `json:"sells"`
	PriceChanges []wsPriceChange `json:"price_changes"`
	Price        string          `json:"price"`
}

type wsPriceChange struct {
	AssetID     string `json:"asset_id"`
	BestBid     string `json:"best_bid"`
	BestAsk     string `json:"best_ask"`
	BestBidSize string `json:"best_bid_size"`
	BestAskSize string `json:"best_ask_size"`
}

type wsSubscribe struct {
	AssetsIDs []string `json:"assets_ids"`
	Type      string   `json:"type"`
}
