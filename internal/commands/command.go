package commands

import (
	"context"

	"github.com/google/uuid"

	"stockflow/internal/uow"
)

// Command is one unit of work against exactly one shard.
type Command interface {
	CommandType() string
	// ShardKey is the entity key that selects the owning shard.
	ShardKey() uuid.UUID
	Validate() error
	// IdempotencyKey is the caller-assigned correlation id, or empty for
	// commands that do not go through the processed-command ledger.
	IdempotencyKey() string
}

// Handler executes a command inside the session the bus opened for it.
// Handlers stage mutations and outbox rows through the session and call
// Session.Commit themselves; the bus guarantees the session is released on
// every exit path.
type Handler interface {
	Handle(ctx context.Context, sess uow.Session, cmd Command) error
}

// HandleFunc adapts an ordinary function to the Handler interface.
type HandleFunc func(ctx context.Context, sess uow.Session, cmd Command) error

func (f HandleFunc) Handle(ctx context.Context, sess uow.Session, cmd Command) error {
	return f(ctx, sess, cmd)
}

// HandlerFunc is the middleware-level shape of command execution.
type HandlerFunc func(ctx context.Context, cmd Command) error

// Middleware decorates command execution. Decorators are applied in a fixed
// order at bus construction; the first middleware passed is outermost.
type Middleware func(next HandlerFunc) HandlerFunc

// FailureReporter is implemented by commands that announce a terminal
// failure on the bus once the executor gives up on them.
type FailureReporter interface {
	FailureEvent(reason string) (eventType, topic string, key uuid.UUID, payload interface{})
}
