package sim

import (
	"errors"
	"fmt"

	"github.com/goquant/tradesim/internal/book"
)

// Kind is the closed set of simulated order types.
type Kind string

const (
	KindMarket     Kind = "market"
	KindLimit      Kind = "limit"
	KindStopLoss   Kind = "stop_loss"
	KindTakeProfit Kind = "take_profit"
)

// Valid reports whether k is a known order kind.
func (k Kind) Valid() bool {
	switch k {
	case KindMarket, KindLimit, KindStopLoss, KindTakeProfit:
		return true
	}
	return false
}

// Status is the order lifecycle state. Pending is the only non-terminal
// state; filled, cancelled and rejected are final and immutable.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// Order is a simulated order. LimitPrice is set for limit orders,
// TriggerPrice for stop-loss and take-profit orders. Reason is populated
// when the order is rejected.
type Order struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         book.Side `json:"side"`
	Kind         Kind      `json:"kind"`
	Quantity     float64   `json:"quantity"`
	LimitPrice   float64   `json:"limit_price,omitempty"`
	TriggerPrice float64   `json:"trigger_price,omitempty"`
	Status       Status    `json:"status"`
	Reason       string    `json:"reason,omitempty"`
	CreatedSeq   uint64    `json:"-"`
	CreatedAtMs  int64     `json:"created_at_ms"`
}

// Fill records an order's execution. Exactly one fill is ever produced per
// order; the record is immutable once emitted.
type Fill struct {
	OrderID      string    `json:"order_id"`
	Symbol       string    `json:"symbol"`
	Side         book.Side `json:"side"`
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price"`
	ImpactBps    float64   `json:"impact_bps"`
	Capped       bool      `json:"capped"`
	TsUnixMillis int64     `json:"ts_unix_millis"`
}

// Rejection records why a pending order moved to the rejected state.
type Rejection struct {
	OrderID      string `json:"order_id"`
	Symbol       string `json:"symbol"`
	Reason       string `json:"reason"`
	TsUnixMillis int64  `json:"ts_unix_millis"`
}

var (
	// ErrOrderNotFound is returned for an unknown order id.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderTerminal is returned when cancelling an order that has
	// already filled, been cancelled, or been rejected.
	ErrOrderTerminal = errors.New("order already in terminal state")
)

// validate checks an order before it is admitted to the pending set.
func (o *Order) validate() error {
	if o.Symbol == "" {
		return errors.New("symbol cannot be empty")
	}
	if !o.Side.Valid() {
		return fmt.Errorf("invalid side %q", o.Side)
	}
	if !o.Kind.Valid() {
		return fmt.Errorf("invalid order kind %q", o.Kind)
	}
	if o.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if o.Kind == KindLimit && o.LimitPrice <= 0 {
		return errors.New("limit order requires a positive limit price")
	}
	if (o.Kind == KindStopLoss || o.Kind == KindTakeProfit) && o.TriggerPrice <= 0 {
		return errors.New("stop and take-profit orders require a positive trigger price")
	}
	return nil
}
