package book

import "errors"

// Side identifies which side of the market an order or level belongs to.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Level is a single visible price level: price and the quantity resting there.
type Level struct {
	Price float64
	Size  float64
}

// Tick is one normalized market data update for a symbol. Bids and Asks
// carry incremental level updates: a level with Size 0 removes that price
// from the book. Bid and Ask are the feed's view of the best prices after
// this update and are used for validation.
type Tick struct {
	Symbol       string
	Bid          float64
	Ask          float64
	Last         float64
	Volume       float64
	Bids         []Level
	Asks         []Level
	TsUnixMillis int64
}

// Snapshot is an immutable copy of a symbol's book state at a point in time.
type Snapshot struct {
	Symbol           string
	BestBid          float64
	BestAsk          float64
	LastPrice        float64
	Bids             []Level
	Asks             []Level
	LastUpdateMillis int64
}

// Mid returns the mid price, or 0 when either side is empty.
func (s Snapshot) Mid() float64 {
	if s.BestBid <= 0 || s.BestAsk <= 0 {
		return 0
	}
	return (s.BestBid + s.BestAsk) / 2
}

// Spread returns best ask minus best bid, or 0 when either side is empty.
func (s Snapshot) Spread() float64 {
	if s.BestBid <= 0 || s.BestAsk <= 0 {
		return 0
	}
	return s.BestAsk - s.BestBid
}

// SpreadBps returns the spread in basis points relative to the best bid.
func (s Snapshot) SpreadBps() float64 {
	if s.BestBid <= 0 || s.BestAsk <= 0 {
		return 0
	}
	return (s.BestAsk - s.BestBid) / s.BestBid * 10000
}

// Levels returns the levels an incoming order of the given side would
// execute against: asks for a buy, bids for a sell.
func (s Snapshot) Levels(side Side) []Level {
	if side == SideBuy {
		return s.Asks
	}
	return s.Bids
}

// DepthQty returns the total visible quantity on the levels opposing
// an order of the given side.
func (s Snapshot) DepthQty(side Side) float64 {
	var total float64
	for _, lvl := range s.Levels(side) {
		total += lvl.Size
	}
	return total
}

// DepthNotional returns the total price*size notional on the levels
// opposing an order of the given side.
func (s Snapshot) DepthNotional(side Side) float64 {
	var total float64
	for _, lvl := range s.Levels(side) {
		total += lvl.Price * lvl.Size
	}
	return total
}

var (
	// ErrCrossedBook rejects a tick whose best bid exceeds its best ask.
	ErrCrossedBook = errors.New("crossed book: bid above ask")

	// ErrStaleTick rejects a tick older than the last applied update.
	ErrStaleTick = errors.New("stale tick")
)
