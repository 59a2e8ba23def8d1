// Package pacifica implements the signed REST client for the Pacifica
// perpetuals venue: Ed25519 request signing, tick and lot normalization,
// and typed errors that separate rejections from transient faults.
package pacifica

import (
	"errors"
	"fmt"
)

// Order sides in venue terms. A bid opens or adds to a long, an ask to a
// short.
const (
	SideBid = "bid"
	SideAsk = "ask"
)

// ErrCircuitOpen is returned without touching the network while the
// breaker is shedding load.
var ErrCircuitOpen = errors.New("pacifica: circuit open")

// ErrNoKeypair is returned by signing operations when the client was
// built without credentials (read-only or paper mode).
var ErrNoKeypair = errors.New("pacifica: keypair not configured")

// APIError is a non-200 response from the venue. Rejections (4xx) are
// final and must not be retried; 5xx and 429 are transient.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pacifica: api error %d: %s", e.Status, e.Body)
}

// Transient reports whether a retry could plausibly succeed.
func (e *APIError) Transient() bool {
	return e.Status == 429 || e.Status >= 500
}

// IsTransient classifies any error from the client. Network faults and
// timeouts count as transient; typed rejections do not.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrNoKeypair) {
		return false
	}
	return err != nil
}

// OrderAck is the venue's acknowledgement of a submitted order.
type OrderAck struct {
	OrderID       string
	ClientOrderID string
}

// OrderStatus mirrors the venue's order record.
type OrderStatus struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          string
	Status        string
	FilledAmount  float64
	AveragePrice  float64
}

// Position is one open position as reported by the venue. The exchange
// view is authoritative; reconciliation overwrites local state with it.
type Position struct {
	Symbol        string
	Side          string // "long" or "short"
	Amount        float64
	EntryPrice    float64
	MarkPrice     float64
	UnrealizedPnL float64
	Leverage      float64
}

// MarketOrderRequest describes a market order before normalization.
type MarketOrderRequest struct {
	Symbol          string
	Side            string
	Amount          float64
	ReduceOnly      bool
	SlippagePercent float64
	ClientOrderID   string
	StopLoss        float64
	TakeProfit      float64
	EntryPrice      float64
}

// LimitOrderRequest describes a limit order before normalization.
type LimitOrderRequest struct {
	Symbol        string
	Side          string
	Amount        float64
	Price         float64
	ReduceOnly    bool
	ClientOrderID string
}
