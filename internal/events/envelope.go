package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// HeaderEventType is the bus header carrying the event discriminator used
// for dispatch.
const HeaderEventType = "event-type"

// Envelope is the wire format of every integration event on the bus.
// Payload schemas are versioned, append-only contracts: new optional fields
// may be added, existing fields are never repurposed.
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	EventType   string          `json:"event_type"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}
