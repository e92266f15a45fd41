package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stockflow/internal/commands"
	"stockflow/internal/domain/stock"
	"stockflow/internal/events"
	"stockflow/internal/uow/uowtest"
)

type publishedMsg struct {
	topic   string
	key     string
	payload []byte
	headers map[string]string
}

type capturePublisher struct {
	msgs []publishedMsg
	err  error
}

func (p *capturePublisher) Publish(_ context.Context, topic, key string, payload []byte, headers map[string]string) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, publishedMsg{topic, key, payload, headers})
	return nil
}

type scheduledTask struct {
	cmd     commands.Command
	attempt int
	runAt   time.Time
}

type captureScheduler struct {
	tasks []scheduledTask
	err   error
}

func (s *captureScheduler) ScheduleCommand(_ context.Context, cmd commands.Command, attempt int, runAt time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.tasks = append(s.tasks, scheduledTask{cmd, attempt, runAt})
	return nil
}

func newExecutorHarness(t *testing.T, maxRetries int) (*Executor, *uowtest.Store, *capturePublisher, *captureScheduler) {
	t.Helper()
	store := uowtest.NewStore()
	bus := commands.NewBus(store, zap.NewNop())
	NewStockService(zap.NewNop()).Register(bus)
	pub := &capturePublisher{}
	sched := &captureScheduler{}
	return NewExecutor(bus, pub, sched, maxRetries, zap.NewNop()), store, pub, sched
}

func TestExecutorSchedulesRetryOnTransientFailure(t *testing.T) {
	exec, store, pub, sched := newExecutorHarness(t, 5)
	productID := uuid.New()
	item, _ := stock.NewStockItem(productID, 10)
	store.Seed(item)
	store.CommitErrs = []error{errors.New("connection reset")}

	err := exec.Execute(context.Background(), commands.ReserveStock{
		ProductID: productID, OrderID: uuid.New(), Quantity: 1, CorrelationID: "c-1",
	})
	require.NoError(t, err, "a scheduled retry is a handled delivery")

	require.Len(t, sched.tasks, 1)
	assert.Equal(t, 1, sched.tasks[0].attempt)
	assert.Empty(t, pub.msgs)
	assert.Equal(t, 0, store.StockItems[productID].ReservedQuantity)
}

func TestExecutorPublishesTerminalFailureOnDomainRejection(t *testing.T) {
	exec, store, pub, sched := newExecutorHarness(t, 5)
	productID := uuid.New()
	item, _ := stock.NewStockItem(productID, 2)
	store.Seed(item)
	orderID := uuid.New()

	err := exec.Execute(context.Background(), commands.ReserveStock{
		ProductID: productID, OrderID: orderID, Quantity: 9, CorrelationID: "c-2",
	})
	require.NoError(t, err)

	assert.Empty(t, sched.tasks, "domain rejections are never retried")
	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, events.TopicInventory, msg.topic)
	assert.Equal(t, orderID.String(), msg.key)
	assert.Equal(t, events.EventTypeStockReservationFail, msg.headers[events.HeaderEventType])

	var env events.Envelope
	require.NoError(t, json.Unmarshal(msg.payload, &env))
	var payload events.StockReservationFailedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, orderID, payload.OrderID)
	require.Len(t, payload.Items, 1)
	assert.Equal(t, productID, payload.Items[0].ProductID)
	assert.NotEmpty(t, payload.Reason)
}

func TestExecutorGivesUpAfterMaxRetries(t *testing.T) {
	exec, store, pub, sched := newExecutorHarness(t, 3)
	productID := uuid.New()
	item, _ := stock.NewStockItem(productID, 10)
	store.Seed(item)
	store.CommitErrs = []error{errors.New("db down")}

	cmd := commands.ReserveStock{ProductID: productID, OrderID: uuid.New(), Quantity: 1, CorrelationID: "c-3"}
	require.NoError(t, exec.Resume(context.Background(), cmd, 2))

	assert.Empty(t, sched.tasks)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, events.EventTypeStockReservationFail, pub.msgs[0].headers[events.HeaderEventType])
}

func TestExecutorHaltsOnInvariantViolation(t *testing.T) {
	exec, store, pub, sched := newExecutorHarness(t, 5)
	productID := uuid.New()
	item, _ := stock.NewStockItem(productID, 10)
	store.Seed(item)

	// Releasing units that were never reserved is a saga divergence.
	err := exec.Execute(context.Background(), commands.ReleaseStock{
		ProductID: productID, OrderID: uuid.New(), Quantity: 1, CorrelationID: "c-4",
	})
	require.NoError(t, err)

	assert.Empty(t, sched.tasks)
	assert.Empty(t, pub.msgs)
}

func TestExecutorSurfacesSchedulerFailure(t *testing.T) {
	exec, store, _, sched := newExecutorHarness(t, 5)
	productID := uuid.New()
	item, _ := stock.NewStockItem(productID, 10)
	store.Seed(item)
	store.CommitErrs = []error{errors.New("db down")}
	sched.err = errors.New("redis down")

	err := exec.Execute(context.Background(), commands.ReserveStock{
		ProductID: productID, OrderID: uuid.New(), Quantity: 1, CorrelationID: "c-5",
	})
	require.Error(t, err, "an unschedulable retry must surface so the delivery is redelivered")
}
