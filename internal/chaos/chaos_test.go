package chaos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goquant/tradesim/internal/book"
)

func testTick(ts int64) book.Tick {
	return book.Tick{
		Symbol:       "BTC-USDT-SWAP",
		Bid:          50000,
		Ask:          50010,
		Last:         50005,
		TsUnixMillis: ts,
	}
}

func TestApply_DisabledPassesThrough(t *testing.T) {
	c := New(&Config{Enabled: false, DropPct: 100}, zap.NewNop())

	for i := 0; i < 100; i++ {
		out, keep := c.Apply(testTick(int64(i)))
		assert.True(t, keep)
		assert.Equal(t, testTick(int64(i)), out)
	}

	dropped, staled, crossed := c.Counts()
	assert.Zero(t, dropped)
	assert.Zero(t, staled)
	assert.Zero(t, crossed)
}

func TestApply_DropAll(t *testing.T) {
	c := New(&Config{Enabled: true, DropPct: 100, Seed: 1}, zap.NewNop())

	for i := 0; i < 50; i++ {
		_, keep := c.Apply(testTick(int64(i)))
		assert.False(t, keep)
	}
	dropped, _, _ := c.Counts()
	assert.Equal(t, int64(50), dropped)
}

func TestApply_StaleMovesTimestampBack(t *testing.T) {
	c := New(&Config{Enabled: true, StalePct: 100, Seed: 1}, zap.NewNop())

	out, keep := c.Apply(testTick(100000))
	require.True(t, keep)
	assert.Equal(t, int64(100000-60000), out.TsUnixMillis)
}

func TestApply_CrossSwapsBidAsk(t *testing.T) {
	c := New(&Config{Enabled: true, CrossPct: 100, Seed: 1}, zap.NewNop())

	out, keep := c.Apply(testTick(1000))
	require.True(t, keep)
	assert.Greater(t, out.Bid, out.Ask)
}

func TestApply_DeterministicForSeed(t *testing.T) {
	run := func() []bool {
		c := New(&Config{Enabled: true, DropPct: 30, StalePct: 20, CrossPct: 10, Seed: 7}, zap.NewNop())
		var kept []bool
		for i := 0; i < 200; i++ {
			_, keep := c.Apply(testTick(int64(i)))
			kept = append(kept, keep)
		}
		return kept
	}

	assert.Equal(t, run(), run())
}

func TestNew_ProfileOverridesRates(t *testing.T) {
	c := New(&Config{
		Enabled: true,
		Profile: "drop-pct=100",
		Seed:    1,
	}, zap.NewNop())

	_, keep := c.Apply(testTick(1000))
	assert.False(t, keep)
}

func TestParseProfile(t *testing.T) {
	drop, stale, cross, err := ParseProfile("drop-pct=10,stale-pct=5,cross-pct=2")
	require.NoError(t, err)
	assert.Equal(t, 10, drop)
	assert.Equal(t, 5, stale)
	assert.Equal(t, 2, cross)

	_, _, _, err = ParseProfile("drop-pct=abc")
	assert.Error(t, err)

	drop, stale, cross, err = ParseProfile("")
	require.NoError(t, err)
	assert.Zero(t, drop+stale+cross)
}
