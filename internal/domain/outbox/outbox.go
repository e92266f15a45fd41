package outbox

import (
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is a staged integration event awaiting publication. Rows are
// created in the same shard transaction as the aggregate mutation that raised
// them and are mutated only by the outbox processor. Rows are never deleted:
// a row with PublishedAt set is inert, the audit trail of what was sent.
type OutboxMessage struct {
	ID          uuid.UUID
	AggregateID uuid.UUID
	Type        string
	Payload     []byte
	Topic       string
	OccurredAt  time.Time
	PublishedAt *time.Time
	RetryCount  int
	NextRetryAt *time.Time
	LastError   string
}

// Due reports whether the message is eligible for (re)publication at now.
func (m *OutboxMessage) Due(now time.Time) bool {
	if m.PublishedAt != nil {
		return false
	}
	return m.NextRetryAt == nil || !m.NextRetryAt.After(now)
}

// TableName returns the database table name
func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
