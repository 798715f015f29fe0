package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goquant/tradesim/internal/book"
	"github.com/goquant/tradesim/internal/impact"
)

// Engine evaluates pending orders for one symbol against successive book
// snapshots. It is not safe for concurrent use; the owning pipeline worker
// serializes all access.
type Engine struct {
	symbol        string
	model         *impact.Model
	impactOnLimit bool
	logger        *zap.Logger

	seq     uint64
	pending []*Order         // ascending creation order
	orders  map[string]*Order // all orders ever submitted, by id
}

// NewEngine creates a trigger engine for the given symbol.
func NewEngine(symbol string, model *impact.Model, impactOnLimit bool, logger *zap.Logger) *Engine {
	return &Engine{
		symbol:        symbol,
		model:         model,
		impactOnLimit: impactOnLimit,
		logger:        logger,
		orders:        make(map[string]*Order),
	}
}

// Submit validates an order and adds it to the pending set, assigning its
// id, sequence number and creation timestamp. The returned order is a copy.
func (e *Engine) Submit(o Order) (Order, error) {
	o.Symbol = e.symbol
	if err := o.validate(); err != nil {
		return Order{}, err
	}

	e.seq++
	o.ID = uuid.New().String()
	o.Status = StatusPending
	o.CreatedSeq = e.seq
	o.CreatedAtMs = time.Now().UnixMilli()

	stored := o
	e.pending = append(e.pending, &stored)
	e.orders[stored.ID] = &stored

	return o, nil
}

// Cancel moves a pending order to the cancelled state. Orders already in a
// terminal state return ErrOrderTerminal; unknown ids return
// ErrOrderNotFound.
func (e *Engine) Cancel(id string) (Order, error) {
	o, ok := e.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if o.Status.Terminal() {
		return *o, ErrOrderTerminal
	}

	o.Status = StatusCancelled
	e.removePending(id)
	return *o, nil
}

// Get returns a copy of the order with the given id.
func (e *Engine) Get(id string) (Order, error) {
	o, ok := e.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return *o, nil
}

// Orders returns copies of all known orders, pending and terminal.
func (e *Engine) Orders() []Order {
	out := make([]Order, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, *o)
	}
	return out
}

// PendingCount returns the number of orders still pending.
func (e *Engine) PendingCount() int {
	return len(e.pending)
}

// OnTick scans the pending set against the snapshot in ascending creation
// order and fires every order whose condition is met. Fired orders move to
// filled exactly once and leave the pending set; orders the impact model
// cannot price move to rejected with a recorded reason. The pending set is
// never left half-updated: each order resolves fully before the next is
// examined.
func (e *Engine) OnTick(snap book.Snapshot) ([]Fill, []Rejection) {
	var fills []Fill
	var rejections []Rejection

	remaining := e.pending[:0]
	for _, o := range e.pending {
		if !e.shouldFire(o, snap) {
			remaining = append(remaining, o)
			continue
		}

		fill, err := e.price(o, snap)
		if err != nil {
			o.Status = StatusRejected
			o.Reason = err.Error()
			rejections = append(rejections, Rejection{
				OrderID:      o.ID,
				Symbol:       o.Symbol,
				Reason:       o.Reason,
				TsUnixMillis: snap.LastUpdateMillis,
			})
			e.logger.Warn("order rejected",
				zap.String("order_id", o.ID),
				zap.String("kind", string(o.Kind)),
				zap.String("reason", o.Reason),
			)
			continue
		}

		if o.Status != StatusPending {
			// A fill for a non-pending order means the lifecycle state
			// machine is broken; there is no safe way to continue.
			panic(fmt.Sprintf("sim: fill produced for order %s in state %s", o.ID, o.Status))
		}
		o.Status = StatusFilled
		fills = append(fills, fill)
	}
	e.pending = remaining

	return fills, rejections
}

// shouldFire evaluates the trigger condition for one order kind.
func (e *Engine) shouldFire(o *Order, snap book.Snapshot) bool {
	switch o.Kind {
	case KindMarket:
		return true

	case KindLimit:
		if o.Side == book.SideBuy {
			return snap.BestAsk > 0 && snap.BestAsk <= o.LimitPrice
		}
		return snap.BestBid > 0 && snap.BestBid >= o.LimitPrice

	case KindStopLoss:
		// A sell stop protects a long: fire when the market trades down
		// through the trigger. A buy stop covers a short on the way up.
		if snap.LastPrice <= 0 {
			return false
		}
		if o.Side == book.SideSell {
			return snap.LastPrice <= o.TriggerPrice
		}
		return snap.LastPrice >= o.TriggerPrice

	case KindTakeProfit:
		if snap.LastPrice <= 0 {
			return false
		}
		if o.Side == book.SideSell {
			return snap.LastPrice >= o.TriggerPrice
		}
		return snap.LastPrice <= o.TriggerPrice
	}
	return false
}

// price computes the fill for a firing order. Market, stop and take-profit
// orders execute through the impact model. Limit orders fill at the limit
// price unless impact-on-limit is configured, in which case the impact
// price is used but never improves on the limit.
func (e *Engine) price(o *Order, snap book.Snapshot) (Fill, error) {
	fill := Fill{
		OrderID:      o.ID,
		Symbol:       o.Symbol,
		Side:         o.Side,
		Quantity:     o.Quantity,
		TsUnixMillis: snap.LastUpdateMillis,
	}

	if o.Kind == KindLimit && !e.impactOnLimit {
		fill.Price = o.LimitPrice
		return fill, nil
	}

	est, err := e.model.EstimateFillPrice(o.Side, o.Quantity, snap)
	if err != nil {
		if errors.Is(err, impact.ErrNoDepth) {
			return Fill{}, fmt.Errorf("pricing impossible: %w", err)
		}
		return Fill{}, err
	}

	fill.Price = est.FillPrice
	fill.ImpactBps = est.ImpactBps
	fill.Capped = est.Capped

	if o.Kind == KindLimit {
		// Slippage on a limit fill never prices better than the limit
		// for the taker.
		if o.Side == book.SideBuy && fill.Price < o.LimitPrice {
			fill.Price = o.LimitPrice
		}
		if o.Side == book.SideSell && fill.Price > o.LimitPrice {
			fill.Price = o.LimitPrice
		}
	}

	return fill, nil
}

func (e *Engine) removePending(id string) {
	for i, o := range e.pending {
		if o.ID == id {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}
