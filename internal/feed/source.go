package feed

import (
	"context"

	"github.com/goquant/tradesim/internal/book"
)

// Source delivers normalized ticks over a bounded channel, preserving
// per-symbol arrival order. Run blocks until the source stops; Ticks stays
// readable until then.
type Source interface {
	Run(ctx context.Context) error
	Ticks() <-chan book.Tick
}
