package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Series identifica la familia de un mercado Up/Down (activo + duración).
type Series string

const (
	SeriesBTC15m Series = "btc-15m"
	SeriesETH15m Series = "eth-15m"
	SeriesBTC1h  Series = "btc-1h"
	SeriesETH1h  Series = "eth-1h"
)

// AllSeries lista las series soportadas en orden estable.
var AllSeries = []Series{SeriesBTC15m, SeriesETH15m, SeriesBTC1h, SeriesETH1h}

// ParseSeries valida un nombre de serie proveniente de config o discovery.
func ParseSeries(s string) (Series, error) {
	v := Series(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllSeries {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("domain.ParseSeries: unknown series %q", s)
}

// HardLifetime es la vida máxima de una instancia de la serie.
// Ninguna ventana configurada puede ampliar este límite.
func (s Series) HardLifetime() time.Duration {
	switch s {
	case SeriesBTC1h, SeriesETH1h:
		return time.Hour
	default:
		return 15 * time.Minute
	}
}

// Hourly devuelve true para las series de 1 hora.
func (s Series) Hourly() bool {
	return s == SeriesBTC1h || s == SeriesETH1h
}

// Outcome es una de las dos patas del par.
type Outcome int

const (
	OutcomeUp Outcome = iota
	OutcomeDown
)

func (o Outcome) String() string {
	if o == OutcomeDown {
		return "DOWN"
	}
	return "UP"
}

// Other devuelve la pata opuesta.
func (o Outcome) Other() Outcome {
	if o == OutcomeUp {
		return OutcomeDown
	}
	return OutcomeUp
}

// Outcomes lista ambas patas, Up primero.
var Outcomes = [2]Outcome{OutcomeUp, OutcomeDown}

// MarketInstance es una instancia negociable del par Up/Down.
// Se trata como inmutable: EndTime queda fijado al descubrirla.
type MarketInstance struct {
	ID          string
	Slug        string
	Series      Series
	UpTokenID   string
	DownTokenID string
	EndTime     time.Time
}

// TokenID devuelve el token de la pata indicada.
func (m MarketInstance) TokenID(o Outcome) string {
	if o == OutcomeDown {
		return m.DownTokenID
	}
	return m.UpTokenID
}

// OutcomeOf resuelve la pata a la que pertenece tokenID.
func (m MarketInstance) OutcomeOf(tokenID string) (Outcome, bool) {
	switch tokenID {
	case m.UpTokenID:
		return OutcomeUp, true
	case m.DownTokenID:
		return OutcomeDown, true
	}
	return OutcomeUp, false
}

// SecondsToEnd devuelve los segundos enteros hasta EndTime (floor, puede ser negativo).
func (m MarketInstance) SecondsToEnd(now time.Time) int64 {
	return int64(math.Floor(m.EndTime.Sub(now).Seconds()))
}

// Expired devuelve true una vez pasado EndTime.
func (m MarketInstance) Expired(now time.Time) bool {
	return now.After(m.EndTime)
}

// Validate comprueba que la instancia tenga dos patas distintas y un fin.
func (m MarketInstance) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("market: empty id")
	}
	if m.UpTokenID == "" || m.DownTokenID == "" {
		return fmt.Errorf("market %s: missing token id", m.ID)
	}
	if m.UpTokenID == m.DownTokenID {
		return fmt.Errorf("market %s: up and down share token %s", m.ID, m.UpTokenID)
	}
	if m.EndTime.IsZero() {
		return fmt.Errorf("market %s: missing end time", m.ID)
	}
	return nil
}
