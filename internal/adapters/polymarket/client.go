package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"
)

const (
	defaultCLOBBase     = "https://clob.polymarket.com"
	defaultGammaBase    = "https://gamma-api.polymarket.com"
	defaultDataBase     = "https://data-api.polymarket.com"
	defaultMarketWSBase = "wss://ws-subscriptions-clob.polymarket.com"

	// Rate limits al 60% de los límites reales documentados.
	// CLOB /books: 500/10s → 300/10s → 30/s
	booksRatePerSec = 30
	// Gamma /events: 300/10s → 180/10s → 18/s
	gammaRatePerSec = 18
	// CLOB general (order, tick-size, etc.): 9000/10s → 5400/10s → 540/s
	generalRatePerSec = 540
	// Data API /positions: 200/10s → 120/10s → 12/s
	dataRatePerSec = 12

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
	maxRetryWait  = 4 * time.Second
)

// Endpoints agrupa los base URLs de Polymarket. Los vacíos usan producción.
type Endpoints struct {
	CLOB     string
	Gamma    string
	Data     string
	MarketWS string
}

func (e Endpoints) withDefaults() Endpoints {
	if e.CLOB == "" {
		e.CLOB = defaultCLOBBase
	}
	if e.Gamma == "" {
		e.Gamma = defaultGammaBase
	}
	if e.Data == "" {
		e.Data = defaultDataBase
	}
	if e.MarketWS == "" {
		e.MarketWS = defaultMarketWSBase
	}
	return e
}

// Client es el HTTP client de Polymarket con rate limiting y retries.
type Client struct {
	http         *http.Client
	clobBase     string
	gammaBase    string
	dataBase     string
	clobLimiter  *rate.Limiter
	gammaLimiter *rate.Limiter
	booksLimiter *rate.Limiter
	dataLimiter  *rate.Limiter
	retry        retrypolicy.RetryPolicy[[]byte]
	noRetry      retrypolicy.RetryPolicy[[]byte] // POST de órdenes: un 5xx puede haber creado la orden
}

// NewClient crea un Client con los endpoints dados.
func NewClient(ep Endpoints) *Client {
	ep = ep.withDefaults()
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		clobBase:     ep.CLOB,
		gammaBase:    ep.Gamma,
		dataBase:     ep.Data,
		clobLimiter:  rate.NewLimiter(generalRatePerSec, 50),
		gammaLimiter: rate.NewLimiter(gammaRatePerSec, 10),
		booksLimiter: rate.NewLimiter(booksRatePerSec, 5),
		dataLimiter:  rate.NewLimiter(dataRatePerSec, 5),
		retry:        newRetryPolicy(maxRetries),
		noRetry:      newRetryPolicy(0),
	}
}

// get hace un GET con rate limiting y retries.
func (c *Client) get(ctx context.Context, limiter *rate.Limiter, url string, out any) error {
	body, err := c.do(ctx, limiter, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	return decodeBody(body, out)
}

// post hace un POST JSON con rate limiting y retries.
func (c *Client) post(ctx context.Context, limiter *rate.Limiter, url string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	resp, err := c.do(ctx, limiter, c.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	return decodeBody(resp, out)
}

// newRetryPolicy reintenta errores de red, 429 y 5xx con backoff exponencial.
// Los 4xx y la cancelación del contexto no se reintentan.
func newRetryPolicy(retries int) retrypolicy.RetryPolicy[[]byte] {
	return retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool { return retryable(err) }).
		WithBackoff(baseRetryWait, maxRetryWait).
		WithMaxRetries(retries).
		OnRetry(func(e failsafe.ExecutionEvent[[]byte]) {
			slog.Warn("polymarket: retrying request", "attempt", e.Attempts(), "err", e.LastError())
		}).
		Build()
}

func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status == http.StatusTooManyRequests || apiErr.status >= 500
	}
	return true
}

// do ejecuta una request bajo la policy. build se llama en cada intento para
// que el body y las cabeceras firmadas se regeneren.
func (c *Client) do(ctx context.Context, limiter *rate.Limiter, policy retrypolicy.RetryPolicy[[]byte], build func() (*http.Request, error)) ([]byte, error) {
	return failsafe.With[[]byte](policy).WithContext(ctx).Get(func() ([]byte, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return nil, &apiError{status: resp.StatusCode, body: string(body)}
		}
		return body, nil
	})
}

func decodeBody(body []byte, out any) error {
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// apiError es una respuesta HTTP de error. Solo los 4xx distintos de 429
// significan que el exchange rechazó la request.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	if e.status >= 500 {
		return fmt.Sprintf("server error %d: %s", e.status, e.body)
	}
	return fmt.Sprintf("client error %d: %s", e.status, e.body)
}
