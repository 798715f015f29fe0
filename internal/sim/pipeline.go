package sim

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/goquant/tradesim/internal/book"
	"github.com/goquant/tradesim/internal/perf"
	"github.com/goquant/tradesim/internal/portfolio"
)

// EventSink receives the engine's output events: fills, rejected-order
// notices, equity-curve points and latency samples. Sink failures are
// logged and never abort the tick stream.
type EventSink interface {
	RecordFill(f Fill) error
	RecordRejection(r Rejection) error
	RecordEquity(p portfolio.EquityPoint) error
	RecordLatency(stage string, millis float64, tsUnixMillis int64) error
}

// snapshotDepth bounds how many levels per side the trigger scan sees.
const snapshotDepth = 25

type orderResult struct {
	order Order
	err   error
}

type command struct {
	tick *book.Tick

	submit     *Order
	cancelID   string
	getID      string
	listOrders bool

	resp     chan orderResult
	listResp chan []Order
}

// Pipeline owns all mutable state for one symbol: its book, its trigger
// engine and its share of the ledger. Ticks, submissions, cancellations and
// order reads travel through a single bounded channel, so every operation
// observes a consistent state and a cancel racing a firing tick resolves by
// arrival order, exactly one way.
type Pipeline struct {
	symbol  string
	book    *book.Book
	engine  *Engine
	ledger  *portfolio.Ledger
	sink    EventSink
	monitor *perf.Monitor
	logger  *zap.Logger

	cmds      chan command
	tickCount int64
}

// NewPipeline wires a pipeline for one symbol. sink may be nil when no
// journaling is wanted (tests, dry runs).
func NewPipeline(
	symbol string,
	b *book.Book,
	engine *Engine,
	ledger *portfolio.Ledger,
	sink EventSink,
	monitor *perf.Monitor,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		symbol:  symbol,
		book:    b,
		engine:  engine,
		ledger:  ledger,
		sink:    sink,
		monitor: monitor,
		logger:  logger.With(zap.String("symbol", symbol)),
		cmds:    make(chan command, 256),
	}
}

// Symbol returns the pipeline's symbol.
func (p *Pipeline) Symbol() string {
	return p.symbol
}

// Book returns the pipeline's order book for read-only snapshots.
func (p *Pipeline) Book() *book.Book {
	return p.book
}

// Run processes commands until ctx is cancelled. It must be the only
// goroutine touching the engine's pending set.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping",
				zap.Int64("ticks_processed", p.tickCount),
				zap.Int("orders_pending", p.engine.PendingCount()),
			)
			return ctx.Err()
		case cmd := <-p.cmds:
			p.dispatch(cmd)
		}
	}
}

// HandleTick enqueues a tick for processing, blocking if the pipeline is
// backed up. The feed adapter is the only caller.
func (p *Pipeline) HandleTick(ctx context.Context, t book.Tick) error {
	select {
	case p.cmds <- command{tick: &t}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit linearizes an order submission against the tick stream and
// returns the admitted order with its assigned id.
func (p *Pipeline) Submit(ctx context.Context, o Order) (Order, error) {
	resp := make(chan orderResult, 1)
	select {
	case p.cmds <- command{submit: &o, resp: resp}:
	case <-ctx.Done():
		return Order{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.order, r.err
	case <-ctx.Done():
		return Order{}, ctx.Err()
	}
}

// Cancel linearizes a cancellation against the tick stream. If a tick that
// would fill the order is already queued ahead of the cancel, the fill
// wins; otherwise the cancel does. Never both.
func (p *Pipeline) Cancel(ctx context.Context, id string) (Order, error) {
	resp := make(chan orderResult, 1)
	select {
	case p.cmds <- command{cancelID: id, resp: resp}:
	case <-ctx.Done():
		return Order{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.order, r.err
	case <-ctx.Done():
		return Order{}, ctx.Err()
	}
}

// GetOrder returns the order with the given id as the pipeline sees it.
func (p *Pipeline) GetOrder(ctx context.Context, id string) (Order, error) {
	resp := make(chan orderResult, 1)
	select {
	case p.cmds <- command{getID: id, resp: resp}:
	case <-ctx.Done():
		return Order{}, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.order, r.err
	case <-ctx.Done():
		return Order{}, ctx.Err()
	}
}

// Orders returns copies of all orders known to the pipeline.
func (p *Pipeline) Orders(ctx context.Context) ([]Order, error) {
	resp := make(chan []Order, 1)
	select {
	case p.cmds <- command{listOrders: true, listResp: resp}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-resp:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pipeline) dispatch(cmd command) {
	switch {
	case cmd.tick != nil:
		p.processTick(*cmd.tick)
	case cmd.submit != nil:
		o, err := p.engine.Submit(*cmd.submit)
		if err == nil {
			p.logger.Info("order submitted",
				zap.String("order_id", o.ID),
				zap.String("kind", string(o.Kind)),
				zap.String("side", string(o.Side)),
				zap.Float64("quantity", o.Quantity),
			)
		}
		cmd.resp <- orderResult{order: o, err: err}
	case cmd.cancelID != "":
		o, err := p.engine.Cancel(cmd.cancelID)
		if err == nil {
			p.logger.Info("order cancelled", zap.String("order_id", o.ID))
		}
		cmd.resp <- orderResult{order: o, err: err}
	case cmd.getID != "":
		o, err := p.engine.Get(cmd.getID)
		cmd.resp <- orderResult{order: o, err: err}
	case cmd.listOrders:
		cmd.listResp <- p.engine.Orders()
	}
}

func (p *Pipeline) processTick(t book.Tick) {
	start := time.Now()

	if err := p.book.ApplyTick(t); err != nil {
		switch {
		case errors.Is(err, book.ErrStaleTick):
			p.logger.Debug("stale tick dropped", zap.Int64("ts", t.TsUnixMillis))
		case errors.Is(err, book.ErrCrossedBook):
			p.logger.Warn("crossed tick rejected",
				zap.Float64("bid", t.Bid),
				zap.Float64("ask", t.Ask),
			)
		default:
			p.logger.Error("tick rejected", zap.Error(err))
		}
		return
	}
	applyDone := time.Now()

	snap := p.book.Snapshot(snapshotDepth)
	fills, rejections := p.engine.OnTick(snap)
	scanDone := time.Now()

	for _, f := range fills {
		pos, realized := p.ledger.ApplyFill(f.Symbol, f.Side, f.Quantity, f.Price)
		p.logger.Info("order filled",
			zap.String("order_id", f.OrderID),
			zap.String("side", string(f.Side)),
			zap.Float64("quantity", f.Quantity),
			zap.Float64("price", f.Price),
			zap.Float64("impact_bps", f.ImpactBps),
			zap.Bool("capped", f.Capped),
			zap.Float64("position", pos.Quantity),
			zap.Float64("realized_delta", realized),
		)
		p.emitFill(f)
	}
	for _, r := range rejections {
		p.emitRejection(r)
	}

	point := p.ledger.MarkToMarket(p.symbol, snap.Mid(), t.TsUnixMillis)
	p.emitEquity(point)
	ledgerDone := time.Now()

	p.tickCount++
	p.recordLatency(perf.StageBookApply, applyDone.Sub(start), t.TsUnixMillis)
	p.recordLatency(perf.StageTriggerScan, scanDone.Sub(applyDone), t.TsUnixMillis)
	p.recordLatency(perf.StageLedgerUpdate, ledgerDone.Sub(scanDone), t.TsUnixMillis)
	p.recordLatency(perf.StageEndToEnd, ledgerDone.Sub(start), t.TsUnixMillis)
}

func (p *Pipeline) emitFill(f Fill) {
	if p.sink == nil {
		return
	}
	if err := p.sink.RecordFill(f); err != nil {
		p.logger.Error("failed to record fill", zap.String("order_id", f.OrderID), zap.Error(err))
	}
}

func (p *Pipeline) emitRejection(r Rejection) {
	if p.sink == nil {
		return
	}
	if err := p.sink.RecordRejection(r); err != nil {
		p.logger.Error("failed to record rejection", zap.String("order_id", r.OrderID), zap.Error(err))
	}
}

func (p *Pipeline) emitEquity(point portfolio.EquityPoint) {
	if p.sink == nil {
		return
	}
	if err := p.sink.RecordEquity(point); err != nil {
		p.logger.Error("failed to record equity point", zap.Error(err))
	}
}

func (p *Pipeline) recordLatency(stage perf.Stage, d time.Duration, tsUnixMillis int64) {
	if p.monitor != nil {
		p.monitor.Record(stage, d, tsUnixMillis)
	}
	if p.sink == nil {
		return
	}
	millis := float64(d) / float64(time.Millisecond)
	if err := p.sink.RecordLatency(string(stage), millis, tsUnixMillis); err != nil {
		p.logger.Error("failed to record latency sample", zap.Error(err))
	}
}
