package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainoutbox "stockflow/internal/domain/outbox"
	"stockflow/internal/repository"
)

// memStore is an in-memory OutboxStore with the same claim semantics as the
// database implementation: cycles see only due rows, and row outcomes become
// visible only at commit.
type memStore struct {
	rows []domainoutbox.OutboxMessage
	now  func() time.Time
}

func (s *memStore) BeginCycle(_ context.Context, batchSize int) (repository.OutboxCycle, error) {
	c := &memCycle{store: s}
	now := s.now()
	for i := range s.rows {
		if len(c.msgs) == batchSize {
			break
		}
		if s.rows[i].Due(now) {
			c.msgs = append(c.msgs, s.rows[i])
		}
	}
	return c, nil
}

func (s *memStore) row(id uuid.UUID) *domainoutbox.OutboxMessage {
	for i := range s.rows {
		if s.rows[i].ID == id {
			return &s.rows[i]
		}
	}
	return nil
}

type memCycle struct {
	store     *memStore
	msgs      []domainoutbox.OutboxMessage
	applied   []func()
	done      bool
	commitErr error
}

func (c *memCycle) Messages() []domainoutbox.OutboxMessage { return c.msgs }

func (c *memCycle) MarkPublished(id uuid.UUID, at time.Time) {
	c.applied = append(c.applied, func() {
		r := c.store.row(id)
		t := at
		r.PublishedAt = &t
		r.LastError = ""
	})
}

func (c *memCycle) MarkFailed(id uuid.UUID, retryCount int, nextRetryAt time.Time, lastError string) {
	c.applied = append(c.applied, func() {
		r := c.store.row(id)
		t := nextRetryAt
		r.RetryCount = retryCount
		r.NextRetryAt = &t
		r.LastError = lastError
	})
}

func (c *memCycle) Commit(context.Context) error {
	if c.commitErr != nil {
		return c.commitErr
	}
	for _, apply := range c.applied {
		apply()
	}
	c.done = true
	return nil
}

func (c *memCycle) Rollback(context.Context) error {
	if !c.done {
		c.applied = nil
	}
	return nil
}

type flakyPublisher struct {
	failures  map[string]int // event type -> remaining failures
	published []string
}

func (p *flakyPublisher) Publish(_ context.Context, _, _ string, payload []byte, headers map[string]string) error {
	eventType := headers["event-type"]
	if p.failures[eventType] > 0 {
		p.failures[eventType]--
		return errors.New("nats timeout")
	}
	p.published = append(p.published, eventType)
	return nil
}

func stagedMessage(eventType string, occurredAt time.Time) domainoutbox.OutboxMessage {
	return domainoutbox.OutboxMessage{
		ID:          uuid.New(),
		AggregateID: uuid.New(),
		Type:        eventType,
		Payload:     []byte(`{}`),
		Topic:       "orders.events",
		OccurredAt:  occurredAt,
	}
}

func newProcessor(store *memStore, pub *flakyPublisher, now func() time.Time) *Processor {
	p := NewProcessor(store, pub, 0, 10, 5*time.Minute, zap.NewNop())
	p.clock = now
	return p
}

func TestProcessOncePublishesDueMessagesInOrder(t *testing.T) {
	base := time.Now()
	store := &memStore{now: func() time.Time { return base }}
	store.rows = []domainoutbox.OutboxMessage{
		stagedMessage("order.created", base.Add(-2*time.Second)),
		stagedMessage("stock.reserved", base.Add(-time.Second)),
	}
	pub := &flakyPublisher{}

	n, err := newProcessor(store, pub, func() time.Time { return base }).ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"order.created", "stock.reserved"}, pub.published)
	for i := range store.rows {
		assert.NotNil(t, store.rows[i].PublishedAt)
	}
}

func TestPublishedMessagesAreNeverResent(t *testing.T) {
	base := time.Now()
	store := &memStore{now: func() time.Time { return base }}
	store.rows = []domainoutbox.OutboxMessage{stagedMessage("order.created", base)}
	pub := &flakyPublisher{}
	proc := newProcessor(store, pub, func() time.Time { return base })

	_, err := proc.ProcessOnce(context.Background())
	require.NoError(t, err)
	_, err = proc.ProcessOnce(context.Background())
	require.NoError(t, err)

	assert.Len(t, pub.published, 1)
}

func TestFailedMessageIsRescheduledWithBackoff(t *testing.T) {
	base := time.Now()
	store := &memStore{now: func() time.Time { return base }}
	store.rows = []domainoutbox.OutboxMessage{
		stagedMessage("order.created", base.Add(-2*time.Second)),
		stagedMessage("stock.reserved", base.Add(-time.Second)),
	}
	pub := &flakyPublisher{failures: map[string]int{"order.created": 1}}

	n, err := newProcessor(store, pub, func() time.Time { return base }).ProcessOnce(context.Background())
	require.NoError(t, err)

	// The healthy message still went out in the same cycle.
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"stock.reserved"}, pub.published)

	failed := store.rows[0]
	require.Nil(t, failed.PublishedAt)
	assert.Equal(t, 1, failed.RetryCount)
	require.NotNil(t, failed.NextRetryAt)
	assert.Equal(t, base.Add(2*time.Second), *failed.NextRetryAt)
	assert.Equal(t, "nats timeout", failed.LastError)
}

func TestNoMessageIsLostAcrossFlakyCycles(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	store := &memStore{now: clock}
	store.rows = []domainoutbox.OutboxMessage{
		stagedMessage("order.created", now),
		stagedMessage("stock.reserved", now),
		stagedMessage("stock.released", now),
	}
	pub := &flakyPublisher{failures: map[string]int{"order.created": 2, "stock.released": 1}}
	proc := newProcessor(store, pub, clock)

	for cycle := 0; cycle < 5; cycle++ {
		_, err := proc.ProcessOnce(context.Background())
		require.NoError(t, err)
		now = now.Add(time.Minute)
	}

	assert.ElementsMatch(t, []string{"order.created", "stock.reserved", "stock.released"}, pub.published)
	for i := range store.rows {
		assert.NotNil(t, store.rows[i].PublishedAt, "row %d must eventually publish", i)
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	maxWait := 5 * time.Minute
	assert.Equal(t, 2*time.Second, retryDelay(1, maxWait))
	assert.Equal(t, 4*time.Second, retryDelay(2, maxWait))
	assert.Equal(t, 256*time.Second, retryDelay(8, maxWait))
	assert.Equal(t, maxWait, retryDelay(9, maxWait))
	assert.Equal(t, maxWait, retryDelay(40, maxWait))
}
