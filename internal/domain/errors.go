package domain

import "errors"

var (
	// ErrKillSwitch rejects a placement while the kill switch is engaged.
	ErrKillSwitch = errors.New("trading disabled by kill switch")
	// ErrLiveAckMissing rejects any live order action without the operator acknowledgment.
	ErrLiveAckMissing = errors.New("live trading not acknowledged")
	// ErrNoOrderID is returned when the exchange accepted a request without an order id.
	ErrNoOrderID = errors.New("order accepted without order id")
	// ErrExchangeRejected wraps an explicit refusal from the exchange (4xx or success=false).
	ErrExchangeRejected = errors.New("rejected by exchange")
	// ErrOrderNotFound is returned when the exchange has no record of an order id.
	ErrOrderNotFound = errors.New("order not found")
)

// Rejected reports whether err is a refusal rather than a transport failure.
func Rejected(err error) bool {
	return errors.Is(err, ErrKillSwitch) || errors.Is(err, ErrLiveAckMissing) || errors.Is(err, ErrExchangeRejected)
}
