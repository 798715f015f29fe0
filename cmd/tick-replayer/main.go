package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goquant/tradesim/internal/book"
	"github.com/goquant/tradesim/internal/chaos"
	"github.com/goquant/tradesim/internal/logging"
	"github.com/goquant/tradesim/internal/msg"
)

const depthLevels = 10

func main() {
	var (
		count        = flag.Int("count", 500, "Number of ticks to produce")
		intervalMS   = flag.Int("interval-ms", 100, "Delay between ticks in milliseconds")
		seed         = flag.Int64("seed", 42, "Random seed for deterministic generation")
		brokers      = flag.String("brokers", "127.0.0.1:9092", "Kafka broker addresses")
		symbol       = flag.String("symbol", "BTC-USDT-SWAP", "Symbol to generate ticks for")
		startMid     = flag.Float64("mid", 50000.0, "Starting mid price")
		chaosProfile = flag.String("chaos", "", "Fault profile, e.g. drop-pct=10,stale-pct=5,cross-pct=2")
	)
	flag.Parse()

	logger, err := logging.NewLogger("tick-replayer", "info")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	brokerList := parseBrokers(*brokers)
	logger.Info("starting tick replayer",
		zap.Int("count", *count),
		zap.Int("interval_ms", *intervalMS),
		zap.Int64("seed", *seed),
		zap.Strings("brokers", brokerList),
		zap.String("symbol", *symbol),
		zap.String("chaos", *chaosProfile),
	)

	producer, err := msg.NewProducer(brokerList, "tick-replayer", logger)
	if err != nil {
		logger.Fatal("failed to create producer", zap.Error(err))
	}
	defer producer.Close()

	faults := chaos.New(&chaos.Config{
		Enabled: *chaosProfile != "",
		Profile: *chaosProfile,
		Seed:    *seed,
	}, logger)

	// Deterministic RNG for the price walk
	rng := rand.New(rand.NewSource(*seed))

	ctx := context.Background()
	mid := *startMid
	produced := 0
	dropped := 0
	failed := 0

	for i := 0; i < *count; i++ {
		// Bounded random walk around the previous mid
		mid *= 1 + (rng.Float64()-0.5)*0.001
		spread := mid * 0.0001 * (1 + rng.Float64())

		t := book.Tick{
			Symbol:       *symbol,
			Bid:          mid - spread/2,
			Ask:          mid + spread/2,
			Last:         mid,
			Volume:       rng.Float64() * 100,
			TsUnixMillis: time.Now().UnixMilli(),
		}
		for level := 0; level < depthLevels; level++ {
			step := spread * float64(level)
			t.Bids = append(t.Bids, book.Level{
				Price: t.Bid - step,
				Size:  1 + rng.Float64()*10,
			})
			t.Asks = append(t.Asks, book.Level{
				Price: t.Ask + step,
				Size:  1 + rng.Float64()*10,
			})
		}

		t, keep := faults.Apply(t)
		if !keep {
			dropped++
			continue
		}

		if err := producer.ProduceJSON(ctx, msg.TopicMarketTicks, t.Symbol, toTickMsg(t)); err != nil {
			logger.Error("failed to produce tick", zap.Error(err))
			failed++
			continue
		}
		produced++

		if *intervalMS > 0 {
			time.Sleep(time.Duration(*intervalMS) * time.Millisecond)
		}
	}

	chaosDropped, chaosStaled, chaosCrossed := faults.Counts()
	logger.Info("tick replayer completed",
		zap.Int("total", *count),
		zap.Int("produced", produced),
		zap.Int("dropped", dropped),
		zap.Int("failed", failed),
		zap.Int64("chaos_dropped", chaosDropped),
		zap.Int64("chaos_staled", chaosStaled),
		zap.Int64("chaos_crossed", chaosCrossed),
	)
}

func toTickMsg(t book.Tick) msg.TickMsg {
	m := msg.TickMsg{
		EventID:      uuid.New().String(),
		Symbol:       t.Symbol,
		Bid:          t.Bid,
		Ask:          t.Ask,
		Last:         t.Last,
		Volume:       t.Volume,
		TsUnixMillis: t.TsUnixMillis,
	}
	for _, l := range t.Bids {
		m.Bids = append(m.Bids, msg.LevelMsg{Price: l.Price, Size: l.Size})
	}
	for _, l := range t.Asks {
		m.Asks = append(m.Asks, msg.LevelMsg{Price: l.Price, Size: l.Size})
	}
	return m
}

func parseBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
