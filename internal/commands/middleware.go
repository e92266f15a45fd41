package commands

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	stockflow_errors "stockflow/pkg/errors"
	"stockflow/pkg/logger"
)

// ConcurrencyRetry re-runs the whole pipeline below it when a commit loses
// an optimistic-concurrency race. The re-run re-reads the aggregate, so the
// handler always works on fresh state. After maxAttempts the conflict
// propagates as a normal failure. This retry is local and synchronous; the
// durable delayed retry lives in the executor, not here.
func ConcurrencyRetry(maxAttempts int, log *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd Command) error {
			var err error
			for attempt := 1; attempt <= maxAttempts; attempt++ {
				err = next(ctx, cmd)
				if !errors.Is(err, stockflow_errors.ErrConcurrencyConflict) {
					return err
				}
				if attempt < maxAttempts {
					log.Warn("concurrency conflict, retrying command",
						zap.String("command_type", cmd.CommandType()),
						zap.Int("attempt", attempt))
				}
			}
			return err
		}
	}
}

// ExecutionLogging logs every command execution with its duration, carrying
// the correlation id from ctx when the command came off the bus. Sits inside
// ConcurrencyRetry so each retry attempt is logged separately.
func ExecutionLogging(l *logger.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd Command) error {
			start := time.Now()
			err := next(ctx, cmd)
			log := l.WithContext(ctx)
			fields := []zap.Field{
				zap.String("command_type", cmd.CommandType()),
				zap.String("shard_key", cmd.ShardKey().String()),
				zap.Duration("took", time.Since(start)),
			}
			switch {
			case err == nil:
				log.Debug("command executed", fields...)
			case stockflow_errors.IsInvariantViolation(err):
				// Elevated severity: this needs an operator, not a retry.
				log.Error("command hit invariant violation",
					append(fields, zap.Bool("alert", true), zap.Error(err))...)
			case stockflow_errors.IsDomainViolation(err):
				log.Info("command rejected", append(fields, zap.Error(err))...)
			default:
				log.Warn("command failed", append(fields, zap.Error(err))...)
			}
			return err
		}
	}
}
