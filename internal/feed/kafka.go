package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/goquant/tradesim/internal/book"
	"github.com/goquant/tradesim/internal/msg"
)

// KafkaSource consumes TickMsg records from the market ticks topic and
// normalizes them into ticks. Used when replaying recorded or synthetic
// sessions instead of a live websocket.
type KafkaSource struct {
	consumer *msg.Consumer
	logger   *zap.Logger
	ticks    chan book.Tick
}

// NewKafkaSource creates a Kafka-backed tick source.
func NewKafkaSource(brokers []string, group string, logger *zap.Logger) (*KafkaSource, error) {
	consumer, err := msg.NewConsumer(brokers, group, []string{msg.TopicMarketTicks}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create tick consumer: %w", err)
	}
	return &KafkaSource{
		consumer: consumer,
		logger:   logger,
		ticks:    make(chan book.Tick, 1024),
	}, nil
}

// Ticks returns the normalized tick channel.
func (s *KafkaSource) Ticks() <-chan book.Tick {
	return s.ticks
}

// Run consumes until ctx is cancelled. The tick channel is closed on return.
func (s *KafkaSource) Run(ctx context.Context) error {
	defer close(s.ticks)
	defer s.consumer.Close()

	return s.consumer.Run(ctx, func(ctx context.Context, rec msg.Record) error {
		var tickMsg msg.TickMsg
		if err := json.Unmarshal(rec.Value, &tickMsg); err != nil {
			return fmt.Errorf("failed to unmarshal tick: %w", err)
		}

		tick := book.Tick{
			Symbol:       tickMsg.Symbol,
			Bid:          tickMsg.Bid,
			Ask:          tickMsg.Ask,
			Last:         tickMsg.Last,
			Volume:       tickMsg.Volume,
			Bids:         toLevels(tickMsg.Bids),
			Asks:         toLevels(tickMsg.Asks),
			TsUnixMillis: tickMsg.TsUnixMillis,
		}

		select {
		case s.ticks <- tick:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func toLevels(in []msg.LevelMsg) []book.Level {
	if len(in) == 0 {
		return nil
	}
	out := make([]book.Level, len(in))
	for i, l := range in {
		out[i] = book.Level{Price: l.Price, Size: l.Size}
	}
	return out
}
