package journal

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goquant/tradesim/internal/book"
	"github.com/goquant/tradesim/internal/msg"
	"github.com/goquant/tradesim/internal/portfolio"
	"github.com/goquant/tradesim/internal/sim"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "journal_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := Open(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func testFill(orderID string) sim.Fill {
	return sim.Fill{
		OrderID:      orderID,
		Symbol:       "BTC-USDT-SWAP",
		Side:         book.SideBuy,
		Quantity:     1,
		Price:        50000,
		ImpactBps:    12.5,
		TsUnixMillis: 1000,
	}
}

func TestRecordFill_PersistsAndEnqueues(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordFill(testFill("ord-1")))

	n, err := store.FillCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err := store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, msg.TopicFills, events[0].Topic)
	assert.Equal(t, "ord-1", events[0].Key)

	var payload msg.FillMsg
	require.NoError(t, json.Unmarshal([]byte(events[0].PayloadJSON), &payload))
	assert.Equal(t, "ord-1", payload.OrderID)
	assert.Equal(t, 50000.0, payload.Price)
	assert.NotEmpty(t, payload.EventID)
}

func TestRecordFill_DuplicateOrderIgnored(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordFill(testFill("ord-1")))
	// A second fill for the same order must not create a second row or a
	// second outbox event.
	require.NoError(t, store.RecordFill(testFill("ord-1")))

	n, err := store.FillCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err := store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRecordRejection_PersistsAndEnqueues(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	r := sim.Rejection{
		OrderID:      "ord-2",
		Symbol:       "BTC-USDT-SWAP",
		Reason:       "pricing impossible: no visible depth on opposing side",
		TsUnixMillis: 1000,
	}
	require.NoError(t, store.RecordRejection(r))
	require.NoError(t, store.RecordRejection(r))

	n, err := store.RejectionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err := store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, msg.TopicRejects, events[0].Topic)
}

func TestRecordEquity_LastEquityReadsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, ok, err := store.LastEquity(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.RecordEquity(portfolio.EquityPoint{
		TsUnixMillis: 1000, Equity: 100000, Cash: 100000,
	}))
	require.NoError(t, store.RecordEquity(portfolio.EquityPoint{
		TsUnixMillis: 2000, Equity: 100500, Cash: 50000,
		RealizedPnL: 200, UnrealizedPnL: 300,
	}))

	last, ok, err := store.LastEquity(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2000), last.TsUnixMillis)
	assert.Equal(t, 100500.0, last.Equity)
	assert.Equal(t, 200.0, last.RealizedPnL)
	assert.Equal(t, 300.0, last.UnrealizedPnL)
}

func TestRecordLatency_ReadBackByStage(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordLatency("book_apply", 0.5, 1000))
	require.NoError(t, store.RecordLatency("book_apply", 0.7, 1001))
	require.NoError(t, store.RecordLatency("end_to_end", 2.0, 1000))

	samples, err := store.LatencySamples(ctx, "book_apply")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.7}, samples)

	samples, err = store.LatencySamples(ctx, "trigger_scan")
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestOutbox_MarkPublished(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordFill(testFill("ord-1")))
	require.NoError(t, store.RecordFill(testFill("ord-2")))

	events, err := store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Events come back oldest first.
	assert.Less(t, events[0].ID, events[1].ID)

	require.NoError(t, store.MarkPublished(ctx, events[0].EventID, time.Now().UnixMilli()))

	remaining, err := store.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, events[1].EventID, remaining[0].EventID)
}

func TestOutbox_LimitRespected(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordLatency("book_apply", 1, int64(i)))
		require.NoError(t, store.RecordFill(testFill("ord-"+string(rune('a'+i)))))
	}

	events, err := store.ListUnpublished(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
