package commands

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockflow/internal/domain/command"
	"stockflow/internal/metrics"
	"stockflow/internal/uow"
	stockflow_errors "stockflow/pkg/errors"
	"stockflow/pkg/logger"
)

// SessionFactory opens a unit-of-work session for a shard key.
type SessionFactory interface {
	ForKey(ctx context.Context, key uuid.UUID) (uow.Session, error)
}

// Bus routes commands to their registered handler through the middleware
// pipeline. It owns session lifecycle: one session per execution, opened on
// the command's shard, released on every exit path. For idempotent commands
// it also enforces the processed-command ledger: checked before the handler
// runs, written inside the same transaction the handler commits.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	factory  SessionFactory
	pipeline HandlerFunc
	clock    func() time.Time
	log      *zap.Logger
}

// NewBus builds a bus with the given decorators; the first middleware is
// outermost. The concurrency retry wrapper must be first so a conflict
// re-runs the whole pipeline, inner logging included.
func NewBus(factory SessionFactory, log *zap.Logger, mw ...Middleware) *Bus {
	b := &Bus{
		handlers: make(map[string]Handler),
		factory:  factory,
		clock:    time.Now,
		log:      log,
	}
	b.pipeline = b.invoke
	for i := len(mw) - 1; i >= 0; i-- {
		b.pipeline = mw[i](b.pipeline)
	}
	return b
}

func (b *Bus) Register(commandType string, handler Handler) {
	b.mu.Lock()
	b.handlers[commandType] = handler
	b.mu.Unlock()
}

// Execute validates and runs one command through the pipeline.
func (b *Bus) Execute(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		metrics.CommandsExecuted.WithLabelValues(cmd.CommandType(), "invalid").Inc()
		return err
	}
	err := b.pipeline(ctx, cmd)
	metrics.CommandsExecuted.WithLabelValues(cmd.CommandType(), outcome(err)).Inc()
	return err
}

func (b *Bus) invoke(ctx context.Context, cmd Command) error {
	b.mu.RLock()
	h, ok := b.handlers[cmd.CommandType()]
	b.mu.RUnlock()
	if !ok {
		return stockflow_errors.ErrHandlerNotFound
	}

	sess, err := b.factory.ForKey(ctx, cmd.ShardKey())
	if err != nil {
		return err
	}
	defer sess.Close(ctx)
	ctx = context.WithValue(ctx, logger.ShardKey, sess.Shard())

	if key := cmd.IdempotencyKey(); key != "" {
		seen, err := sess.Ledger().Seen(ctx, key, cmd.CommandType())
		if err != nil {
			return err
		}
		if seen {
			// Duplicate delivery is not an error; the ledger makes it a no-op.
			metrics.IdempotentShortCircuits.WithLabelValues(cmd.CommandType()).Inc()
			b.log.Debug("command already processed, skipping",
				zap.String("command_type", cmd.CommandType()),
				zap.String("correlation_id", key))
			return nil
		}
		// Staged in the open transaction: it becomes durable only if the
		// handler's own commit succeeds.
		row := command.ProcessedCommand{
			CorrelationID: key,
			CommandType:   cmd.CommandType(),
			ProcessedAt:   b.clock(),
		}
		if err := sess.Ledger().Record(ctx, row); err != nil {
			return err
		}
	}

	return h.Handle(ctx, sess, cmd)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case stockflow_errors.IsInvariantViolation(err):
		return "invariant_violation"
	case stockflow_errors.IsDomainViolation(err):
		return "rejected"
	default:
		return "error"
	}
}
