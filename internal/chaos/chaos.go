package chaos

import (
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/goquant/tradesim/internal/book"
)

// Chaos injects deterministic faults into a tick stream: dropped ticks,
// stale timestamps and crossed bid/ask pairs. The same seed and input
// sequence always produce the same faults, so chaotic replays stay
// reproducible.
type Chaos struct {
	cfg    *Config
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand

	dropped int64
	staled  int64
	crossed int64
}

// New creates a new Chaos instance
func New(cfg *Config, logger *zap.Logger) *Chaos {
	c := &Chaos{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	if cfg.Profile != "" {
		dropPct, stalePct, crossPct, err := ParseProfile(cfg.Profile)
		if err != nil {
			logger.Warn("failed to parse chaos profile", zap.Error(err))
		} else {
			if dropPct > 0 {
				cfg.DropPct = dropPct
			}
			if stalePct > 0 {
				cfg.StalePct = stalePct
			}
			if crossPct > 0 {
				cfg.CrossPct = crossPct
			}
		}
	}

	return c
}

// Apply possibly mutates or drops one tick. The returned bool is false when
// the tick should be dropped entirely.
func (c *Chaos) Apply(t book.Tick) (book.Tick, bool) {
	if c.cfg == nil || !c.cfg.Enabled {
		return t, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	roll := c.rng.Intn(100)

	switch {
	case roll < c.cfg.DropPct:
		c.dropped++
		c.logger.Debug("chaos: dropping tick", zap.Int64("ts", t.TsUnixMillis))
		return t, false

	case roll < c.cfg.DropPct+c.cfg.StalePct:
		// Push the timestamp into the past so the book's stale-tick
		// policy has something to reject.
		c.staled++
		t.TsUnixMillis -= 60_000
		c.logger.Debug("chaos: staling tick", zap.Int64("ts", t.TsUnixMillis))
		return t, true

	case roll < c.cfg.DropPct+c.cfg.StalePct+c.cfg.CrossPct:
		c.crossed++
		t.Bid, t.Ask = t.Ask, t.Bid
		if t.Bid == t.Ask {
			t.Bid = t.Ask * 1.001
		}
		c.logger.Debug("chaos: crossing tick",
			zap.Float64("bid", t.Bid),
			zap.Float64("ask", t.Ask),
		)
		return t, true
	}

	return t, true
}

// Counts returns how many ticks were dropped, staled and crossed so far.
func (c *Chaos) Counts() (dropped, staled, crossed int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped, c.staled, c.crossed
}
