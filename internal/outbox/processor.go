// Package outbox publishes staged integration events from each shard's
// outbox table to the bus.
package outbox

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"stockflow/internal/events"
	"stockflow/internal/metrics"
	"stockflow/internal/repository"
)

// Processor drains one shard's outbox. Each cycle claims a batch of due
// rows, publishes them in occurrence order and persists every row's outcome
// in a single commit at the end of the cycle. One undeliverable row delays
// only itself: it is rescheduled with backoff and the cycle moves on.
type Processor struct {
	store        repository.OutboxStore
	publisher    events.Publisher
	shard        int
	batchSize    int
	maxRetryWait time.Duration
	clock        func() time.Time
	log          *zap.Logger
}

func NewProcessor(store repository.OutboxStore, publisher events.Publisher, shard, batchSize int, maxRetryWait time.Duration, log *zap.Logger) *Processor {
	return &Processor{
		store:        store,
		publisher:    publisher,
		shard:        shard,
		batchSize:    batchSize,
		maxRetryWait: maxRetryWait,
		clock:        time.Now,
		log:          log.With(zap.Int("shard", shard)),
	}
}

// ProcessOnce runs a single claim-publish-commit cycle and reports how many
// messages were published.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	cycle, err := p.store.BeginCycle(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	defer cycle.Rollback(ctx)

	msgs := cycle.Messages()
	shard := strconv.Itoa(p.shard)
	metrics.OutboxBacklog.WithLabelValues(shard).Set(float64(len(msgs)))
	if len(msgs) == 0 {
		return 0, cycle.Commit(ctx)
	}

	published := 0
	for _, m := range msgs {
		if ctx.Err() != nil {
			break
		}
		headers := map[string]string{events.HeaderEventType: m.Type}
		if err := p.publisher.Publish(ctx, m.Topic, m.AggregateID.String(), m.Payload, headers); err != nil {
			retry := m.RetryCount + 1
			next := p.clock().Add(retryDelay(retry, p.maxRetryWait))
			cycle.MarkFailed(m.ID, retry, next, err.Error())
			metrics.OutboxPublishFailures.WithLabelValues(shard).Inc()
			p.log.Warn("outbox publish failed",
				zap.String("message_id", m.ID.String()),
				zap.String("event_type", m.Type),
				zap.Int("retry_count", retry),
				zap.Time("next_retry_at", next),
				zap.Error(err))
			continue
		}
		cycle.MarkPublished(m.ID, p.clock())
		published++
		metrics.OutboxPublished.WithLabelValues(shard).Inc()
	}

	if err := cycle.Commit(ctx); err != nil {
		// Claims are released on rollback; the batch will be reclaimed and
		// republished, which at-least-once delivery already permits.
		return 0, err
	}
	return published, nil
}

// retryDelay is exponential in the retry count, capped at maxWait.
func retryDelay(retryCount int, maxWait time.Duration) time.Duration {
	if retryCount > 30 {
		return maxWait
	}
	d := time.Duration(1<<uint(retryCount)) * time.Second
	if d > maxWait {
		return maxWait
	}
	return d
}
