package uow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockflow/internal/domain/outbox"
	"stockflow/internal/repository"
	"stockflow/internal/sharding"
)

// Session is one command's transactional window onto a single shard. All
// repositories it exposes share one transaction; Commit persists every
// staged mutation together with the given outbox rows, or nothing at all.
type Session interface {
	Shard() int
	Orders() repository.OrderRepository
	Stock() repository.StockRepository
	Ledger() repository.LedgerRepository
	Commit(ctx context.Context, msgs []outbox.OutboxMessage) error
	// Close releases the session; uncommitted work is rolled back. Safe to
	// call after Commit, so callers can defer it on every exit path.
	Close(ctx context.Context) error
}

// Factory opens sessions bound to the shard that owns a key. A session never
// touches any other shard's store.
type Factory struct {
	pools    []*pgxpool.Pool
	resolver *sharding.Resolver
}

func NewFactory(pools []*pgxpool.Pool, resolver *sharding.Resolver) (*Factory, error) {
	if len(pools) != resolver.ShardCount() {
		return nil, fmt.Errorf("uow: %d pools for %d shards", len(pools), resolver.ShardCount())
	}
	return &Factory{pools: pools, resolver: resolver}, nil
}

// ForKey opens a session on the shard owning key.
func (f *Factory) ForKey(ctx context.Context, key uuid.UUID) (Session, error) {
	return f.ForShard(ctx, f.resolver.ResolveShard(key))
}

// ForShard opens a session on an explicit shard. Used by shard-wide
// maintenance such as the outbox processor.
func (f *Factory) ForShard(ctx context.Context, shard int) (Session, error) {
	if shard < 0 || shard >= len(f.pools) {
		return nil, fmt.Errorf("uow: shard %d out of range", shard)
	}
	tx, err := f.pools[shard].Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("uow: begin on shard %d: %w", shard, err)
	}
	return &pgSession{shard: shard, tx: tx}, nil
}

// Resolver exposes the factory's shard resolver.
func (f *Factory) Resolver() *sharding.Resolver {
	return f.resolver
}

type pgSession struct {
	shard  int
	tx     pgx.Tx
	orders repository.OrderRepository
	stock  repository.StockRepository
	ledger repository.LedgerRepository
	done   bool
}

func (s *pgSession) Shard() int { return s.shard }

func (s *pgSession) Orders() repository.OrderRepository {
	if s.orders == nil {
		s.orders = repository.NewOrderRepository(s.tx)
	}
	return s.orders
}

func (s *pgSession) Stock() repository.StockRepository {
	if s.stock == nil {
		s.stock = repository.NewStockRepository(s.tx)
	}
	return s.stock
}

func (s *pgSession) Ledger() repository.LedgerRepository {
	if s.ledger == nil {
		s.ledger = repository.NewLedgerRepository(s.tx)
	}
	return s.ledger
}

func (s *pgSession) Commit(ctx context.Context, msgs []outbox.OutboxMessage) error {
	if s.done {
		return errors.New("uow: session already closed")
	}
	if len(msgs) > 0 {
		if err := repository.NewOutboxRepository(s.tx).CreateBatch(ctx, msgs); err != nil {
			return err
		}
	}
	if err := s.tx.Commit(ctx); err != nil {
		return err
	}
	s.done = true
	return nil
}

func (s *pgSession) Close(ctx context.Context) error {
	if s.done {
		return nil
	}
	s.done = true
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
