package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stockflow/internal/domain/command"
	"stockflow/internal/domain/order"
	"stockflow/internal/domain/outbox"
	"stockflow/internal/domain/stock"
)

// DBTX is the subset of pgx used by repositories. Both a pool and an open
// transaction satisfy it, so the same repository code runs inside a
// unit-of-work transaction or standalone.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type StockRepository interface {
	Get(ctx context.Context, productID uuid.UUID) (*stock.StockItem, error)
	Create(ctx context.Context, item *stock.StockItem) error
	// Update persists the aggregate with an optimistic version check; a
	// concurrent writer surfaces as ErrConcurrencyConflict.
	Update(ctx context.Context, item *stock.StockItem) error
}

type OrderRepository interface {
	Get(ctx context.Context, orderID uuid.UUID) (*order.Order, error)
	Create(ctx context.Context, o *order.Order) error
	Update(ctx context.Context, o *order.Order) error
}

// LedgerRepository is the processed-command ledger of one shard.
type LedgerRepository interface {
	Seen(ctx context.Context, correlationID, commandType string) (bool, error)
	Record(ctx context.Context, row command.ProcessedCommand) error
}

// OutboxRepository stages outbox rows inside the owning transaction.
type OutboxRepository interface {
	CreateBatch(ctx context.Context, msgs []outbox.OutboxMessage) error
}

// OutboxStore is the outbox processor's view of one shard: a claim cycle
// that selects due rows, accumulates per-row results, and persists them all
// together. Row claims are held for the duration of the cycle and released
// at commit or rollback.
type OutboxStore interface {
	BeginCycle(ctx context.Context, batchSize int) (OutboxCycle, error)
}

type OutboxCycle interface {
	Messages() []outbox.OutboxMessage
	MarkPublished(id uuid.UUID, at time.Time)
	MarkFailed(id uuid.UUID, retryCount int, nextRetryAt time.Time, lastError string)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
