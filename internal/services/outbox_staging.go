package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stockflow/internal/domain"
	"stockflow/internal/domain/outbox"
	"stockflow/internal/events"
	"stockflow/internal/uow"
)

// stagedAggregate pairs an aggregate with the id its outbox rows carry.
type stagedAggregate struct {
	id  uuid.UUID
	src domain.EventSource
}

// commitWithOutbox drains the aggregates' buffered domain events into outbox
// rows and commits them together with the session's staged mutations. Event
// buffers are cleared only after the commit succeeds, so a failed commit
// leaves the aggregates re-committable.
func commitWithOutbox(ctx context.Context, sess uow.Session, now time.Time, aggs ...stagedAggregate) error {
	var msgs []outbox.OutboxMessage
	for _, a := range aggs {
		staged, err := stageEvents(a.id, a.src, now)
		if err != nil {
			return err
		}
		msgs = append(msgs, staged...)
	}
	if err := sess.Commit(ctx, msgs); err != nil {
		return err
	}
	for _, a := range aggs {
		a.src.ClearEvents()
	}
	return nil
}

// stageEvents maps each buffered domain event to its integration form and
// wraps it in a wire envelope. Internal-only events are dropped here.
func stageEvents(aggregateID uuid.UUID, src domain.EventSource, now time.Time) ([]outbox.OutboxMessage, error) {
	var msgs []outbox.OutboxMessage
	for _, e := range src.Events() {
		ie, ok := events.MapDomainEvent(e, aggregateID)
		if !ok {
			continue
		}
		body, err := json.Marshal(ie.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", ie.Name, err)
		}
		env := events.Envelope{
			ID:          uuid.New(),
			EventType:   ie.Name,
			AggregateID: aggregateID,
			OccurredAt:  now,
			Payload:     body,
		}
		raw, err := json.Marshal(env)
		if err != nil {
			return nil, fmt.Errorf("marshal %s envelope: %w", ie.Name, err)
		}
		msgs = append(msgs, outbox.OutboxMessage{
			ID:          env.ID,
			AggregateID: aggregateID,
			Type:        ie.Name,
			Payload:     raw,
			Topic:       ie.Topic,
			OccurredAt:  now,
		})
	}
	return msgs, nil
}
