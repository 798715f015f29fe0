package book

import (
	"testing"

	"pgregory.net/rapid"
)

// genTick generates a well-formed tick around a mid price: best bid below
// best ask, level updates consistent with the best prices, monotonically
// increasing timestamps supplied by the caller.
func genTick(ts int64) *rapid.Generator[Tick] {
	return rapid.Custom(func(t *rapid.T) Tick {
		mid := rapid.Float64Range(1000, 100000).Draw(t, "mid")
		halfSpread := rapid.Float64Range(0.01, 5).Draw(t, "halfSpread")
		bid := mid - halfSpread
		ask := mid + halfSpread

		nBids := rapid.IntRange(1, 8).Draw(t, "nBids")
		nAsks := rapid.IntRange(1, 8).Draw(t, "nAsks")

		tick := Tick{
			Symbol:       "BTC-USDT-SWAP",
			Bid:          bid,
			Ask:          ask,
			Last:         mid,
			TsUnixMillis: ts,
		}
		for i := 0; i < nBids; i++ {
			tick.Bids = append(tick.Bids, Level{
				Price: bid - float64(i)*halfSpread,
				Size:  rapid.Float64Range(0, 10).Draw(t, "bidSize"),
			})
		}
		for i := 0; i < nAsks; i++ {
			tick.Asks = append(tick.Asks, Level{
				Price: ask + float64(i)*halfSpread,
				Size:  rapid.Float64Range(0, 10).Draw(t, "askSize"),
			})
		}
		return tick
	})
}

// After any sequence of accepted ticks the ladder stays sorted and
// best bid never exceeds best ask.
func TestProperty_BookStaysOrdered(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := New("BTC-USDT-SWAP")
		n := rapid.IntRange(1, 50).Draw(t, "n")

		for i := 0; i < n; i++ {
			tick := genTick(int64(1000 + i)).Draw(t, "tick")
			if err := b.ApplyTick(tick); err != nil {
				continue
			}
		}

		snap := b.Snapshot(0)
		for i := 1; i < len(snap.Bids); i++ {
			if snap.Bids[i].Price >= snap.Bids[i-1].Price {
				t.Fatalf("bids not strictly descending at %d: %v >= %v",
					i, snap.Bids[i].Price, snap.Bids[i-1].Price)
			}
		}
		for i := 1; i < len(snap.Asks); i++ {
			if snap.Asks[i].Price <= snap.Asks[i-1].Price {
				t.Fatalf("asks not strictly ascending at %d: %v <= %v",
					i, snap.Asks[i].Price, snap.Asks[i-1].Price)
			}
		}
		if snap.BestBid > 0 && snap.BestAsk > 0 && snap.BestBid > snap.BestAsk {
			t.Fatalf("crossed book after accepted ticks: bid %v > ask %v",
				snap.BestBid, snap.BestAsk)
		}
	})
}

// A level update with size zero never survives in the snapshot.
func TestProperty_ZeroSizeLevelsNeverVisible(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := New("BTC-USDT-SWAP")
		n := rapid.IntRange(1, 40).Draw(t, "n")

		for i := 0; i < n; i++ {
			tick := genTick(int64(1000 + i)).Draw(t, "tick")
			if err := b.ApplyTick(tick); err != nil {
				continue
			}
		}

		snap := b.Snapshot(0)
		for _, lvl := range append(snap.Bids, snap.Asks...) {
			if lvl.Size <= 0 {
				t.Fatalf("zero-size level visible at price %v", lvl.Price)
			}
		}
	})
}

// A stale tick is always rejected and leaves best prices untouched.
func TestProperty_StaleTickLeavesBookUnchanged(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		b := New("BTC-USDT-SWAP")

		current := genTick(5000).Draw(t, "current")
		if err := b.ApplyTick(current); err != nil {
			t.Skip("generated tick rejected")
		}
		before := b.Snapshot(0)

		stale := genTick(rapid.Int64Range(0, 4999).Draw(t, "staleTs")).Draw(t, "stale")
		if err := b.ApplyTick(stale); err != ErrStaleTick {
			t.Fatalf("expected stale rejection, got %v", err)
		}

		after := b.Snapshot(0)
		if before.BestBid != after.BestBid || before.BestAsk != after.BestAsk {
			t.Fatalf("stale tick changed best prices: %v/%v -> %v/%v",
				before.BestBid, before.BestAsk, after.BestBid, after.BestAsk)
		}
		if len(before.Bids) != len(after.Bids) || len(before.Asks) != len(after.Asks) {
			t.Fatalf("stale tick changed ladder depth")
		}
	})
}
