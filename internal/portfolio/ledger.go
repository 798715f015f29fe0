package portfolio

import (
	"math"
	"sync"

	"github.com/goquant/tradesim/internal/book"
)

// Position is an open position in one symbol. Quantity is signed: positive
// for long, negative for short. AvgEntryPrice is maintained by the
// weighted-average-cost method.
type Position struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
}

// EquityPoint is one sample on the equity curve.
type EquityPoint struct {
	TsUnixMillis  int64   `json:"ts_unix_millis"`
	Equity        float64 `json:"equity"`
	Cash          float64 `json:"cash"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// State is a point-in-time copy of the whole portfolio.
type State struct {
	Cash          float64             `json:"cash"`
	Positions     map[string]Position `json:"positions"`
	RealizedPnL   float64             `json:"realized_pnl"`
	UnrealizedPnL float64             `json:"unrealized_pnl"`
	FeesPaid      float64             `json:"fees_paid"`
	Equity        float64             `json:"equity"`
}

// Ledger tracks cash, positions and P&L across symbols. It is shared by all
// symbol pipelines, so every mutation runs under one mutex: a single writer
// at a time, per the cash balance being global.
type Ledger struct {
	mu         sync.Mutex
	cash       float64
	positions  map[string]*Position
	lastMid    map[string]float64
	realized   float64
	feesPaid   float64
	takerFee   float64
	curve      []EquityPoint
	curveLimit int
}

// NewLedger creates a ledger with the given starting cash and taker fee
// rate. curveLimit bounds the in-memory equity curve; older points fall off
// the front.
func NewLedger(startingCash, takerFee float64, curveLimit int) *Ledger {
	if curveLimit <= 0 {
		curveLimit = 10000
	}
	return &Ledger{
		cash:       startingCash,
		positions:  make(map[string]*Position),
		lastMid:    make(map[string]float64),
		takerFee:   takerFee,
		curveLimit: curveLimit,
	}
}

// ApplyFill applies an executed fill to cash and position state and returns
// the updated position along with the realized P&L delta. Increasing a
// position updates the weighted average entry; reducing one realizes
// (price - avg) * closed * sign. A fill through zero realizes on the closed
// part and opens the remainder at the fill price.
func (l *Ledger) ApplyFill(symbol string, side book.Side, quantity, price float64) (Position, float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	signedQty := quantity
	if side == book.SideSell {
		signedQty = -quantity
	}

	notional := price * quantity
	fee := notional * l.takerFee
	if side == book.SideBuy {
		l.cash -= notional
	} else {
		l.cash += notional
	}
	l.cash -= fee
	l.feesPaid += fee

	pos, ok := l.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		l.positions[symbol] = pos
	}

	var realizedDelta float64
	switch {
	case pos.Quantity == 0 || sameSign(pos.Quantity, signedQty):
		// Opening or adding: weighted average entry.
		total := math.Abs(pos.Quantity) + quantity
		pos.AvgEntryPrice = (pos.AvgEntryPrice*math.Abs(pos.Quantity) + price*quantity) / total
		pos.Quantity += signedQty

	case math.Abs(signedQty) <= math.Abs(pos.Quantity):
		// Reducing or closing.
		closed := quantity
		realizedDelta = (price - pos.AvgEntryPrice) * closed * sign(pos.Quantity)
		pos.Quantity += signedQty
		if pos.Quantity == 0 {
			pos.AvgEntryPrice = 0
		}

	default:
		// Crossing through zero: realize the closed part, flip the rest.
		closed := math.Abs(pos.Quantity)
		realizedDelta = (price - pos.AvgEntryPrice) * closed * sign(pos.Quantity)
		pos.Quantity += signedQty
		pos.AvgEntryPrice = price
	}

	l.realized += realizedDelta
	if pos.Quantity == 0 {
		delete(l.positions, symbol)
	}

	return *pos, realizedDelta
}

// MarkToMarket records the latest mid price for a symbol, recomputes
// unrealized P&L and equity, and appends one point to the equity curve.
func (l *Ledger) MarkToMarket(symbol string, mid float64, tsUnixMillis int64) EquityPoint {
	l.mu.Lock()
	defer l.mu.Unlock()

	if mid > 0 {
		l.lastMid[symbol] = mid
	}

	point := EquityPoint{
		TsUnixMillis:  tsUnixMillis,
		Cash:          l.cash,
		RealizedPnL:   l.realized,
		UnrealizedPnL: l.unrealizedLocked(),
		Equity:        l.equityLocked(),
	}

	l.curve = append(l.curve, point)
	if len(l.curve) > l.curveLimit {
		l.curve = l.curve[len(l.curve)-l.curveLimit:]
	}

	return point
}

// Equity returns cash plus the market value of all positions at their last
// known mids.
func (l *Ledger) Equity() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.equityLocked()
}

// Snapshot returns a copy of the full portfolio state.
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	positions := make(map[string]Position, len(l.positions))
	for s, p := range l.positions {
		positions[s] = *p
	}
	return State{
		Cash:          l.cash,
		Positions:     positions,
		RealizedPnL:   l.realized,
		UnrealizedPnL: l.unrealizedLocked(),
		FeesPaid:      l.feesPaid,
		Equity:        l.equityLocked(),
	}
}

// EquityCurve returns up to n most recent equity points, oldest first.
// n <= 0 returns the whole retained curve.
func (l *Ledger) EquityCurve(n int) []EquityPoint {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := 0
	if n > 0 && len(l.curve) > n {
		start = len(l.curve) - n
	}
	out := make([]EquityPoint, len(l.curve)-start)
	copy(out, l.curve[start:])
	return out
}

func (l *Ledger) equityLocked() float64 {
	equity := l.cash
	for s, p := range l.positions {
		equity += p.Quantity * l.lastMid[s]
	}
	return equity
}

func (l *Ledger) unrealizedLocked() float64 {
	var pnl float64
	for s, p := range l.positions {
		mid := l.lastMid[s]
		if mid <= 0 {
			continue
		}
		pnl += (mid - p.AvgEntryPrice) * p.Quantity
	}
	return pnl
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
