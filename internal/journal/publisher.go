package journal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goquant/tradesim/internal/msg"
)

// Publisher drains the outbox to Kafka. Events are published at least once:
// a publish that succeeds but fails to be marked is retried and downstream
// consumers deduplicate on event_id.
type Publisher struct {
	store     *Store
	producer  *msg.Producer
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

// NewPublisher creates a new outbox publisher
func NewPublisher(store *Store, producer *msg.Producer, logger *zap.Logger) *Publisher {
	return &Publisher{
		store:     store,
		producer:  producer,
		logger:    logger,
		interval:  250 * time.Millisecond,
		batchSize: 200,
	}
}

// Run starts the publisher loop
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.publishBatch(ctx); err != nil {
				p.logger.Error("failed to publish batch", zap.Error(err))
				// Continue - will retry on next tick
			}
		}
	}
}

// publishBatch publishes a batch of unpublished events
func (p *Publisher) publishBatch(ctx context.Context) error {
	events, err := p.store.ListUnpublished(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list unpublished events: %w", err)
	}

	if len(events) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	published := 0

	for _, event := range events {
		if err := p.producer.ProduceRaw(ctx, event.Topic, event.Key, []byte(event.PayloadJSON)); err != nil {
			p.logger.Error("failed to produce event",
				zap.String("event_id", event.EventID),
				zap.String("topic", event.Topic),
				zap.Error(err),
			)
			// Continue with next event - this one will be retried
			continue
		}

		if err := p.store.MarkPublished(ctx, event.EventID, now); err != nil {
			p.logger.Error("failed to mark event as published",
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			// Worst case we republish; consumers dedupe on event_id
			continue
		}

		published++
	}

	if published > 0 {
		p.logger.Debug("published outbox batch",
			zap.Int("published", published),
			zap.Int("total", len(events)),
		)
	}

	return nil
}
