package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockflow/internal/domain/outbox"
)

type outboxRepository struct {
	db DBTX
}

func NewOutboxRepository(db DBTX) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) CreateBatch(ctx context.Context, msgs []outbox.OutboxMessage) error {
	for _, m := range msgs {
		if _, err := r.db.Exec(ctx, `
            INSERT INTO outbox_messages (id, aggregate_id, type, payload, topic, occurred_at, published_at, retry_count, next_retry_at, last_error)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        `,
			m.ID,
			m.AggregateID,
			m.Type,
			m.Payload,
			m.Topic,
			m.OccurredAt,
			m.PublishedAt,
			m.RetryCount,
			m.NextRetryAt,
			m.LastError,
		); err != nil {
			return err
		}
	}
	return nil
}

// PgOutboxStore runs the processor's claim cycle against one shard's pool.
// Due rows are claimed with FOR UPDATE SKIP LOCKED so concurrent processor
// instances over the same shard never double-claim a row; the claim is
// released when the cycle's transaction ends.
type PgOutboxStore struct {
	pool *pgxpool.Pool
}

func NewPgOutboxStore(pool *pgxpool.Pool) *PgOutboxStore {
	return &PgOutboxStore{pool: pool}
}

func (s *PgOutboxStore) BeginCycle(ctx context.Context, batchSize int) (OutboxCycle, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
        SELECT id, aggregate_id, type, payload, topic, occurred_at, published_at, retry_count, next_retry_at, last_error
        FROM outbox_messages
        WHERE published_at IS NULL
          AND (next_retry_at IS NULL OR next_retry_at <= now())
        ORDER BY occurred_at ASC
        LIMIT $1
        FOR UPDATE SKIP LOCKED
    `, batchSize)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	defer rows.Close()

	cycle := &pgOutboxCycle{tx: tx}
	for rows.Next() {
		var m outbox.OutboxMessage
		if err := rows.Scan(
			&m.ID,
			&m.AggregateID,
			&m.Type,
			&m.Payload,
			&m.Topic,
			&m.OccurredAt,
			&m.PublishedAt,
			&m.RetryCount,
			&m.NextRetryAt,
			&m.LastError,
		); err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
		cycle.messages = append(cycle.messages, m)
	}
	if err := rows.Err(); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return cycle, nil
}

type outboxUpdate struct {
	id          uuid.UUID
	publishedAt *time.Time
	retryCount  int
	nextRetryAt *time.Time
	lastError   string
}

type pgOutboxCycle struct {
	tx       pgx.Tx
	messages []outbox.OutboxMessage
	updates  []outboxUpdate
}

func (c *pgOutboxCycle) Messages() []outbox.OutboxMessage {
	return c.messages
}

func (c *pgOutboxCycle) MarkPublished(id uuid.UUID, at time.Time) {
	c.updates = append(c.updates, outboxUpdate{id: id, publishedAt: &at})
}

func (c *pgOutboxCycle) MarkFailed(id uuid.UUID, retryCount int, nextRetryAt time.Time, lastError string) {
	c.updates = append(c.updates, outboxUpdate{
		id:          id,
		retryCount:  retryCount,
		nextRetryAt: &nextRetryAt,
		lastError:   lastError,
	})
}

func (c *pgOutboxCycle) Commit(ctx context.Context) error {
	for _, u := range c.updates {
		var err error
		if u.publishedAt != nil {
			_, err = c.tx.Exec(ctx, `
                UPDATE outbox_messages
                SET published_at = $1, last_error = ''
                WHERE id = $2
            `, u.publishedAt, u.id)
		} else {
			_, err = c.tx.Exec(ctx, `
                UPDATE outbox_messages
                SET retry_count = $1, next_retry_at = $2, last_error = $3
                WHERE id = $4
            `, u.retryCount, u.nextRetryAt, u.lastError, u.id)
		}
		if err != nil {
			_ = c.tx.Rollback(ctx)
			return err
		}
	}
	return c.tx.Commit(ctx)
}

func (c *pgOutboxCycle) Rollback(ctx context.Context) error {
	return c.tx.Rollback(ctx)
}
