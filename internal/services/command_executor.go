package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockflow/internal/commands"
	"stockflow/internal/events"
	"stockflow/internal/metrics"
	stockflow_errors "stockflow/pkg/errors"
)

// RetryScheduler parks a failed command for a later attempt.
type RetryScheduler interface {
	ScheduleCommand(ctx context.Context, cmd commands.Command, attempt int, runAt time.Time) error
}

// Executor drives commands that originate from bus deliveries. It classifies
// failures: transient errors are handed to the scheduler for a delayed
// retry, domain rejections and exhausted retries become a terminal failure
// event on the bus, invariant violations are alerted and never retried. A nil
// return means the delivery is fully handled and may be acknowledged.
type Executor struct {
	bus        *commands.Bus
	publisher  events.Publisher
	scheduler  RetryScheduler
	maxRetries int
	backoff    func(attempt int) time.Duration
	clock      func() time.Time
	log        *zap.Logger
}

func NewExecutor(bus *commands.Bus, publisher events.Publisher, scheduler RetryScheduler, maxRetries int, log *zap.Logger) *Executor {
	return &Executor{
		bus:        bus,
		publisher:  publisher,
		scheduler:  scheduler,
		maxRetries: maxRetries,
		backoff:    defaultBackoff,
		clock:      time.Now,
		log:        log,
	}
}

// Execute runs a freshly delivered command.
func (e *Executor) Execute(ctx context.Context, cmd commands.Command) error {
	return e.execute(ctx, cmd, 0)
}

// Resume runs a command the scheduler parked, carrying its attempt counter.
func (e *Executor) Resume(ctx context.Context, cmd commands.Command, attempt int) error {
	return e.execute(ctx, cmd, attempt)
}

func (e *Executor) execute(ctx context.Context, cmd commands.Command, attempt int) error {
	err := e.bus.Execute(ctx, cmd)
	if err == nil {
		return nil
	}

	switch {
	case stockflow_errors.IsInvariantViolation(err):
		// The handler has already committed the frozen state and its
		// critical event. Nothing to retry, nothing more to publish.
		e.log.Error("invariant violation, automation halted",
			zap.String("command_type", cmd.CommandType()),
			zap.Error(err),
			zap.Bool("alert", true))
		metrics.TerminalFailures.WithLabelValues(cmd.CommandType()).Inc()
		return nil

	case !stockflow_errors.IsRetryable(err):
		return e.giveUp(ctx, cmd, err)

	default:
		if attempt+1 >= e.maxRetries {
			return e.giveUp(ctx, cmd, fmt.Errorf("retries exhausted after %d attempts: %w", attempt+1, err))
		}
		runAt := e.clock().Add(e.backoff(attempt))
		if schedErr := e.scheduler.ScheduleCommand(ctx, cmd, attempt+1, runAt); schedErr != nil {
			return fmt.Errorf("schedule retry for %s: %w (original: %v)", cmd.CommandType(), schedErr, err)
		}
		metrics.RetriesScheduled.WithLabelValues(cmd.CommandType()).Inc()
		e.log.Warn("command failed, retry scheduled",
			zap.String("command_type", cmd.CommandType()),
			zap.Int("attempt", attempt+1),
			zap.Time("run_at", runAt),
			zap.Error(err))
		return nil
	}
}

// giveUp publishes the command's terminal failure event, when it has one,
// straight onto the bus. Terminal failures never pass through the outbox:
// there is no committed state change for them to ride along with.
func (e *Executor) giveUp(ctx context.Context, cmd commands.Command, cause error) error {
	metrics.TerminalFailures.WithLabelValues(cmd.CommandType()).Inc()

	reporter, ok := cmd.(commands.FailureReporter)
	if !ok {
		e.log.Info("command terminally failed",
			zap.String("command_type", cmd.CommandType()),
			zap.Error(cause))
		return nil
	}

	eventType, topic, key, payload := reporter.FailureEvent(cause.Error())
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	env := events.Envelope{
		ID:          uuid.New(),
		EventType:   eventType,
		AggregateID: key,
		OccurredAt:  e.clock(),
		Payload:     body,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", eventType, err)
	}
	headers := map[string]string{events.HeaderEventType: eventType}
	if pubErr := e.publisher.Publish(ctx, topic, key.String(), raw, headers); pubErr != nil {
		return fmt.Errorf("publish %s: %w", eventType, pubErr)
	}
	e.log.Info("terminal failure published",
		zap.String("command_type", cmd.CommandType()),
		zap.String("event_type", eventType),
		zap.Error(cause))
	return nil
}

func defaultBackoff(attempt int) time.Duration {
	const maxDelay = 2 * time.Minute
	if attempt > 20 {
		return maxDelay
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxDelay {
		return maxDelay
	}
	return d
}
