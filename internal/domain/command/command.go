package command

import "time"

// ProcessedCommand is one row of the idempotency ledger. The presence of a
// (CorrelationId, CommandType) pair is the sole authority for "already
// executed": it is checked before a handler runs and written in the same
// transaction as the handler's own commit.
type ProcessedCommand struct {
	CorrelationID string
	CommandType   string
	ProcessedAt   time.Time
}

// TableName returns the database table name
func (ProcessedCommand) TableName() string {
	return "processed_commands"
}
