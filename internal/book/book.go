package book

import (
	"sync"

	"github.com/google/btree"
)

// bidLess orders the bid side by price descending so Min() is the best bid.
func bidLess(a, b Level) bool {
	return a.Price > b.Price
}

// askLess orders the ask side by price ascending so Min() is the best ask.
func askLess(a, b Level) bool {
	return a.Price < b.Price
}

// Book maintains the visible depth ladder for a single symbol. Ticks carry
// incremental level updates which are applied under the write lock, so a
// reader taking a snapshot never observes a half-applied update.
type Book struct {
	symbol string

	mu         sync.RWMutex
	bids       *btree.BTreeG[Level]
	asks       *btree.BTreeG[Level]
	lastPrice  float64
	lastUpdate int64

	staleCount   int64
	crossedCount int64
}

// New creates an empty book for the given symbol.
func New(symbol string) *Book {
	const degree = 32
	return &Book{
		symbol: symbol,
		bids:   btree.NewG[Level](degree, bidLess),
		asks:   btree.NewG[Level](degree, askLess),
	}
}

// Symbol returns the symbol this book tracks.
func (b *Book) Symbol() string {
	return b.symbol
}

// ApplyTick validates and applies a tick. A tick whose best bid exceeds its
// best ask returns ErrCrossedBook; a tick older than the last applied update
// returns ErrStaleTick. Both leave the book unchanged. Rejections are counted
// but never abort the stream.
func (b *Book) ApplyTick(t Tick) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.Bid > 0 && t.Ask > 0 && t.Bid > t.Ask {
		b.crossedCount++
		return ErrCrossedBook
	}
	if t.TsUnixMillis < b.lastUpdate {
		b.staleCount++
		return ErrStaleTick
	}

	for _, lvl := range t.Bids {
		if lvl.Size > 0 {
			b.bids.ReplaceOrInsert(lvl)
		} else {
			b.bids.Delete(lvl)
		}
	}
	for _, lvl := range t.Asks {
		if lvl.Size > 0 {
			b.asks.ReplaceOrInsert(lvl)
		} else {
			b.asks.Delete(lvl)
		}
	}

	// Remnant levels from earlier updates can cross the new best prices.
	// Drop them so best bid <= best ask always holds after application.
	if t.Ask > 0 {
		for {
			best, ok := b.bids.Min()
			if !ok || best.Price <= t.Ask {
				break
			}
			b.bids.Delete(best)
		}
	}
	if t.Bid > 0 {
		for {
			best, ok := b.asks.Min()
			if !ok || best.Price >= t.Bid {
				break
			}
			b.asks.Delete(best)
		}
	}

	if t.Last > 0 {
		b.lastPrice = t.Last
	} else if bb, ok := b.bids.Min(); ok {
		if ba, ok2 := b.asks.Min(); ok2 {
			b.lastPrice = (bb.Price + ba.Price) / 2
		}
	}
	b.lastUpdate = t.TsUnixMillis

	return nil
}

// Snapshot copies up to depth levels from each side of the book.
// A depth of 0 or less copies the full ladder.
func (b *Book) Snapshot(depth int) Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := Snapshot{
		Symbol:           b.symbol,
		LastPrice:        b.lastPrice,
		LastUpdateMillis: b.lastUpdate,
		Bids:             topLevels(b.bids, depth),
		Asks:             topLevels(b.asks, depth),
	}
	if best, ok := b.bids.Min(); ok {
		snap.BestBid = best.Price
	}
	if best, ok := b.asks.Min(); ok {
		snap.BestAsk = best.Price
	}
	return snap
}

// StaleCount returns the number of stale ticks dropped so far.
func (b *Book) StaleCount() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.staleCount
}

// CrossedCount returns the number of crossed ticks rejected so far.
func (b *Book) CrossedCount() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.crossedCount
}

func topLevels(tree *btree.BTreeG[Level], n int) []Level {
	if n <= 0 {
		n = tree.Len()
	}
	levels := make([]Level, 0, n)
	tree.Ascend(func(lvl Level) bool {
		if len(levels) >= n {
			return false
		}
		levels = append(levels, lvl)
		return true
	})
	return levels
}

// Manager is a thread-safe map of symbol to Book.
type Manager struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewManager creates an empty book manager.
func NewManager() *Manager {
	return &Manager{books: make(map[string]*Book)}
}

// GetOrCreate returns the book for the given symbol, creating one if needed.
func (m *Manager) GetOrCreate(symbol string) *Book {
	m.mu.RLock()
	b, ok := m.books[symbol]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.books[symbol]; ok {
		return b
	}
	b = New(symbol)
	m.books[symbol] = b
	return b
}

// Get returns the book for the given symbol, or nil if none exists.
func (m *Manager) Get(symbol string) *Book {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.books[symbol]
}

// Symbols returns the symbols with a live book.
func (m *Manager) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.books))
	for s := range m.books {
		out = append(out, s)
	}
	return out
}
