package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stockflow/internal/commands"
	"stockflow/internal/domain/order"
	"stockflow/internal/events"
	"stockflow/internal/uow/uowtest"
	stockflow_errors "stockflow/pkg/errors"
	"stockflow/pkg/logger"
)

func newOrderBus(t *testing.T) (*commands.Bus, *uowtest.Store) {
	t.Helper()
	store := uowtest.NewStore()
	bus := commands.NewBus(store, zap.NewNop())
	NewOrderService(zap.NewNop()).Register(bus)
	NewReservationService(&logger.Logger{Logger: zap.NewNop()}).Register(bus)
	return bus, store
}

func createOrder(t *testing.T, bus *commands.Bus, items []order.ItemQuantity) uuid.UUID {
	t.Helper()
	orderID := uuid.New()
	require.NoError(t, bus.Execute(context.Background(), commands.CreateOrder{OrderID: orderID, Items: items}))
	return orderID
}

func TestCreateOrderStagesCreatedEvent(t *testing.T) {
	bus, store := newOrderBus(t)
	orderID := createOrder(t, bus, []order.ItemQuantity{{ProductID: uuid.New(), Quantity: 2}})

	o := store.Orders[orderID]
	require.NotNil(t, o)
	assert.Equal(t, order.StatusAwaitingReservation, o.Status)
	require.Len(t, store.Outbox, 1)
	assert.Equal(t, events.EventTypeOrderCreated, store.Outbox[0].Type)
	assert.Equal(t, events.TopicOrders, store.Outbox[0].Topic)
}

func TestReservedReportsConfirmOrder(t *testing.T) {
	bus, store := newOrderBus(t)
	p1, p2 := uuid.New(), uuid.New()
	orderID := createOrder(t, bus, []order.ItemQuantity{{ProductID: p1, Quantity: 2}, {ProductID: p2, Quantity: 1}})

	require.NoError(t, bus.Execute(context.Background(), commands.UpdateReservedStock{
		OrderID: orderID, Items: []order.ItemQuantity{{ProductID: p1, Quantity: 2}}, CorrelationID: "r-1",
	}))
	assert.Equal(t, order.StatusAwaitingReservation, store.Orders[orderID].Status)

	require.NoError(t, bus.Execute(context.Background(), commands.UpdateReservedStock{
		OrderID: orderID, Items: []order.ItemQuantity{{ProductID: p2, Quantity: 1}}, CorrelationID: "r-2",
	}))
	assert.Equal(t, order.StatusConfirmed, store.Orders[orderID].Status)

	var types []string
	for _, m := range store.Outbox {
		types = append(types, m.Type)
	}
	assert.Contains(t, types, events.EventTypeOrderConfirmed)
}

func TestMismatchedReportFreezesOrderDurably(t *testing.T) {
	bus, store := newOrderBus(t)
	productID := uuid.New()
	orderID := createOrder(t, bus, []order.ItemQuantity{{ProductID: productID, Quantity: 2}})

	cmd := commands.UpdateReservedStock{
		OrderID: orderID,
		Items:   []order.ItemQuantity{{ProductID: productID, Quantity: 5}},
		CorrelationID: "r-bad",
	}
	err := bus.Execute(context.Background(), cmd)
	require.Error(t, err)
	assert.True(t, stockflow_errors.IsInvariantViolation(err))

	// The freeze is committed even though the command failed.
	o := store.Orders[orderID]
	assert.Equal(t, order.StatusInconsistent, o.Status)
	assert.NotEmpty(t, o.InconsistentReason)
	var types []string
	for _, m := range store.Outbox {
		types = append(types, m.Type)
	}
	assert.Contains(t, types, events.EventTypeOrderInconsistency)

	// Redelivery short-circuits on the ledger instead of re-running the
	// transition against the frozen order.
	require.NoError(t, bus.Execute(context.Background(), cmd))
}

func TestCancelRaceRequestsReleaseExactlyOnce(t *testing.T) {
	bus, store := newOrderBus(t)
	productID := uuid.New()
	orderID := createOrder(t, bus, []order.ItemQuantity{{ProductID: productID, Quantity: 3}})

	require.NoError(t, bus.Execute(context.Background(), commands.CancelOrder{OrderID: orderID}))

	// The reservation report lands after the cancel: items go straight to
	// releasing and a compensating release is requested.
	require.NoError(t, bus.Execute(context.Background(), commands.UpdateReservedStock{
		OrderID: orderID, Items: []order.ItemQuantity{{ProductID: productID, Quantity: 3}}, CorrelationID: "r-race",
	}))

	releaseRequests := 0
	for _, m := range store.Outbox {
		if m.Type == events.EventTypeStockReleaseRequest {
			releaseRequests++
		}
	}
	assert.Equal(t, 1, releaseRequests)
	assert.Equal(t, order.ItemReleasing, store.Orders[orderID].Items[0].Status)

	require.NoError(t, bus.Execute(context.Background(), commands.MarkStockReleased{
		OrderID: orderID, Items: []order.ItemQuantity{{ProductID: productID, Quantity: 3}}, CorrelationID: "r-released",
	}))
	assert.Equal(t, order.ItemReleased, store.Orders[orderID].Items[0].Status)
}

func TestReservationFailureFailsOrder(t *testing.T) {
	bus, store := newOrderBus(t)
	productID := uuid.New()
	orderID := createOrder(t, bus, []order.ItemQuantity{{ProductID: productID, Quantity: 1}})

	require.NoError(t, bus.Execute(context.Background(), commands.MarkStockReservationFailed{
		OrderID: orderID,
		Items:   []order.ItemQuantity{{ProductID: productID, Quantity: 1}},
		Reason:  "insufficient stock",
		CorrelationID: "f-1",
	}))

	assert.Equal(t, order.StatusFailed, store.Orders[orderID].Status)
	var types []string
	for _, m := range store.Outbox {
		types = append(types, m.Type)
	}
	assert.Contains(t, types, events.EventTypeOrderFailed)
}

func TestShipAndReportLost(t *testing.T) {
	bus, store := newOrderBus(t)
	productID := uuid.New()
	orderID := createOrder(t, bus, []order.ItemQuantity{{ProductID: productID, Quantity: 1}})

	require.NoError(t, bus.Execute(context.Background(), commands.UpdateReservedStock{
		OrderID: orderID, Items: []order.ItemQuantity{{ProductID: productID, Quantity: 1}}, CorrelationID: "r-ship",
	}))
	require.NoError(t, bus.Execute(context.Background(), commands.ShipOrder{OrderID: orderID}))
	assert.Equal(t, order.StatusShipped, store.Orders[orderID].Status)

	require.NoError(t, bus.Execute(context.Background(), commands.ReportItemLost{OrderID: orderID, ProductID: productID}))
	assert.Equal(t, order.ItemLost, store.Orders[orderID].Items[0].Status)
}
