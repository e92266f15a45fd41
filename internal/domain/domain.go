package domain

// Event is a domain event raised by an aggregate method. Events accumulate in
// an in-memory buffer on the aggregate and are drained into outbox rows at
// commit time; they are never persisted as part of the aggregate itself.
type Event interface {
	EventName() string
}

// Recorder is the in-memory event buffer embedded in aggregates.
type Recorder struct {
	events []Event
}

// Record appends an event to the buffer.
func (r *Recorder) Record(e Event) {
	r.events = append(r.events, e)
}

// Events returns the buffered events in the order they were recorded.
func (r *Recorder) Events() []Event {
	return r.events
}

// ClearEvents empties the buffer. Called only after the events have been
// committed to the outbox.
func (r *Recorder) ClearEvents() {
	r.events = nil
}

// EventSource is any aggregate that buffers domain events.
type EventSource interface {
	Events() []Event
	ClearEvents()
}
