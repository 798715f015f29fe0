package impact

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/goquant/tradesim/internal/book"
)

func genSnapshot() *rapid.Generator[book.Snapshot] {
	return rapid.Custom(func(t *rapid.T) book.Snapshot {
		mid := rapid.Float64Range(100, 100000).Draw(t, "mid")
		halfSpread := rapid.Float64Range(0.001, 1).Draw(t, "halfSpread") * mid / 1000
		nLevels := rapid.IntRange(1, 15).Draw(t, "nLevels")

		snap := book.Snapshot{
			Symbol:  "BTC-USDT-SWAP",
			BestBid: mid - halfSpread,
			BestAsk: mid + halfSpread,
		}
		for i := 0; i < nLevels; i++ {
			step := halfSpread * 2 * float64(i)
			size := rapid.Float64Range(0.1, 50).Draw(t, "size")
			snap.Bids = append(snap.Bids, book.Level{Price: snap.BestBid - step, Size: size})
			snap.Asks = append(snap.Asks, book.Level{Price: snap.BestAsk + step, Size: size})
		}
		return snap
	})
}

// Buys never price below the best ask and sells never price above the
// best bid: slippage is always adverse.
func TestProperty_SlippageIsAdverse(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewModel(DefaultParams())
		snap := genSnapshot().Draw(t, "snap")
		qty := rapid.Float64Range(0.01, 100).Draw(t, "qty")

		buy, err := m.EstimateFillPrice(book.SideBuy, qty, snap)
		if err != nil {
			t.Fatalf("buy estimate failed: %v", err)
		}
		if buy.FillPrice < snap.BestAsk {
			t.Fatalf("buy priced %v below best ask %v", buy.FillPrice, snap.BestAsk)
		}

		sell, err := m.EstimateFillPrice(book.SideSell, qty, snap)
		if err != nil {
			t.Fatalf("sell estimate failed: %v", err)
		}
		if sell.FillPrice > snap.BestBid {
			t.Fatalf("sell priced %v above best bid %v", sell.FillPrice, snap.BestBid)
		}
	})
}

// Impact in basis points never decreases with order size on a fixed book.
func TestProperty_ImpactMonotoneInSize(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewModel(DefaultParams())
		snap := genSnapshot().Draw(t, "snap")
		small := rapid.Float64Range(0.01, 50).Draw(t, "small")
		extra := rapid.Float64Range(0.01, 50).Draw(t, "extra")

		a, err := m.EstimateFillPrice(book.SideBuy, small, snap)
		if err != nil {
			t.Fatalf("estimate failed: %v", err)
		}
		b, err := m.EstimateFillPrice(book.SideBuy, small+extra, snap)
		if err != nil {
			t.Fatalf("estimate failed: %v", err)
		}
		if b.ImpactBps < a.ImpactBps {
			t.Fatalf("impact decreased with size: %v bps for %v, %v bps for %v",
				a.ImpactBps, small, b.ImpactBps, small+extra)
		}
	})
}

// The model never reports impact above the configured cap, and flags any
// estimate that hits it.
func TestProperty_ImpactRespectsCap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewModel(DefaultParams())
		snap := genSnapshot().Draw(t, "snap")
		qty := rapid.Float64Range(0.01, 10000).Draw(t, "qty")

		est, err := m.EstimateFillPrice(book.SideBuy, qty, snap)
		if err != nil {
			t.Fatalf("estimate failed: %v", err)
		}
		if est.ImpactBps > m.Params().MaxImpactBps {
			t.Fatalf("impact %v bps above cap %v", est.ImpactBps, m.Params().MaxImpactBps)
		}
		if est.ImpactBps == m.Params().MaxImpactBps && !est.Capped {
			t.Fatalf("estimate at the cap not flagged as capped")
		}
	})
}
