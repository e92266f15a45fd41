package order

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/domain"
	stockflow_errors "stockflow/pkg/errors"
)

func newTestOrder(t *testing.T, items ...ItemQuantity) *Order {
	t.Helper()
	o, err := NewOrder(uuid.New(), items)
	require.NoError(t, err)
	o.ClearEvents()
	return o
}

func eventNames(src domain.EventSource) []string {
	var names []string
	for _, e := range src.Events() {
		names = append(names, e.EventName())
	}
	return names
}

func TestNewOrder(t *testing.T) {
	id := uuid.New()
	p1 := uuid.New()
	o, err := NewOrder(id, []ItemQuantity{{ProductID: p1, Quantity: 2}})
	require.NoError(t, err)

	assert.Equal(t, StatusAwaitingReservation, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, ItemPending, o.Items[0].Status)
	assert.Equal(t, []string{"OrderCreated"}, eventNames(o))

	_, err = NewOrder(uuid.New(), nil)
	assert.ErrorIs(t, err, stockflow_errors.ErrInvalidInput)

	_, err = NewOrder(uuid.New(), []ItemQuantity{{ProductID: p1, Quantity: 1}, {ProductID: p1, Quantity: 2}})
	assert.ErrorIs(t, err, stockflow_errors.ErrInvalidInput)
}

func TestConfirmReservedItems_HappyPath(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	o := newTestOrder(t, ItemQuantity{ProductID: p1, Quantity: 2}, ItemQuantity{ProductID: p2, Quantity: 1})

	require.NoError(t, o.ConfirmReservedItems([]ItemQuantity{{ProductID: p1, Quantity: 2}}))
	assert.Equal(t, ItemReserved, o.Items[0].Status)
	assert.Equal(t, StatusAwaitingReservation, o.Status)
	assert.Empty(t, o.Events())

	require.NoError(t, o.ConfirmReservedItems([]ItemQuantity{{ProductID: p2, Quantity: 1}}))
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, []string{"OrderConfirmed"}, eventNames(o))
}

func TestConfirmReservedItems_DuplicateDeliveryIsNoop(t *testing.T) {
	p1 := uuid.New()
	o := newTestOrder(t, ItemQuantity{ProductID: p1, Quantity: 2})

	reported := []ItemQuantity{{ProductID: p1, Quantity: 2}}
	require.NoError(t, o.ConfirmReservedItems(reported))
	o.ClearEvents()

	require.NoError(t, o.ConfirmReservedItems(reported))
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Empty(t, o.Events())
}

func TestConfirmReservedItems_QuantityMismatchFreezesOrder(t *testing.T) {
	p1 := uuid.New()
	o := newTestOrder(t, ItemQuantity{ProductID: p1, Quantity: 2})

	err := o.ConfirmReservedItems([]ItemQuantity{{ProductID: p1, Quantity: 3}})
	require.Error(t, err)
	assert.True(t, stockflow_errors.IsInvariantViolation(err))
	assert.Equal(t, StatusInconsistent, o.Status)
	assert.NotEmpty(t, o.InconsistentReason)
	assert.Equal(t, []string{"OrderInconsistencyDetected"}, eventNames(o))

	// Automation halts: further reports are rejected, not reconciled.
	err = o.ConfirmReservedItems([]ItemQuantity{{ProductID: p1, Quantity: 2}})
	assert.ErrorIs(t, err, stockflow_errors.ErrOrderTerminal)
}

func TestConfirmReservedItems_UnknownProductFreezesOrder(t *testing.T) {
	o := newTestOrder(t, ItemQuantity{ProductID: uuid.New(), Quantity: 2})

	err := o.ConfirmReservedItems([]ItemQuantity{{ProductID: uuid.New(), Quantity: 2}})
	require.Error(t, err)
	assert.True(t, stockflow_errors.IsInvariantViolation(err))
	assert.Equal(t, StatusInconsistent, o.Status)
}

func TestConfirmReservedItems_CancelRaceCompensates(t *testing.T) {
	p1 := uuid.New()
	o := newTestOrder(t, ItemQuantity{ProductID: p1, Quantity: 2})

	require.NoError(t, o.Cancel())
	o.ClearEvents()

	// The reservation report arrives after cancellation: the item moves to
	// Releasing and exactly one release request is raised.
	reported := []ItemQuantity{{ProductID: p1, Quantity: 2}}
	require.NoError(t, o.ConfirmReservedItems(reported))
	assert.Equal(t, ItemReleasing, o.Items[0].Status)

	events := o.Events()
	require.Len(t, events, 1)
	releaseReq, ok := events[0].(ReleaseRequested)
	require.True(t, ok)
	assert.Equal(t, []ItemQuantity{{ProductID: p1, Quantity: 2}}, releaseReq.Items)

	// A retried delivery of the same report must not duplicate the request.
	require.NoError(t, o.ConfirmReservedItems(reported))
	require.Len(t, o.Events(), 1)
}

func TestConfirmReservedItems_FailedRaceCompensates(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	o := newTestOrder(t, ItemQuantity{ProductID: p1, Quantity: 1}, ItemQuantity{ProductID: p2, Quantity: 2})

	// p1's failure terminates the order while p2's reservation is in flight.
	require.NoError(t, o.MarkReservationFailed([]ItemQuantity{{ProductID: p1, Quantity: 1}}, "insufficient stock"))
	require.Equal(t, StatusFailed, o.Status)
	o.ClearEvents()

	// p2's reserved report lands on the failed order: the units must come
	// back, not sit reserved against a dead order.
	reported := []ItemQuantity{{ProductID: p2, Quantity: 2}}
	require.NoError(t, o.ConfirmReservedItems(reported))
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, ItemReleasing, o.Items[1].Status)

	events := o.Events()
	require.Len(t, events, 1)
	releaseReq, ok := events[0].(ReleaseRequested)
	require.True(t, ok)
	assert.Equal(t, []ItemQuantity{{ProductID: p2, Quantity: 2}}, releaseReq.Items)

	// A retried delivery of the same report must not duplicate the request.
	require.NoError(t, o.ConfirmReservedItems(reported))
	require.Len(t, o.Events(), 1)
}

func TestMarkReservationFailed(t *testing.T) {
	p1, p2 := uuid.New(), uuid.New()
	o := newTestOrder(t, ItemQuantity{ProductID: p1, Quantity: 2}, ItemQuantity{ProductID: p2, Quantity: 3})

	// p1 got reserved first, then p2 failed.
	require.NoError(t, o.ConfirmReservedItems([]ItemQuantity{{ProductID: p1, Quantity: 2}}))
	o.ClearEvents()

	require.NoError(t, o.MarkReservationFailed([]ItemQuantity{{ProductID: p2, Quantity: 3}}, "insufficient stock"))
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, ItemReservationFailed, o.Items[1].Status)

	// The already reserved item is compensated.
	assert.Equal(t, ItemReleasing, o.Items[0].Status)
	assert.Equal(t, []string{"OrderFailed", "StockReservationReleaseRequested"}, eventNames(o))
}

func TestMarkReservationFailed_TerminalOrderIsNoop(t *testing.T) {
	p1 := uuid.New()
	o := newTestOrder(t, ItemQuantity{ProductID: p1, Quantity: 2})
	require.NoError(t, o.Cancel())
	o.ClearEvents()

	require.NoError(t, o.MarkReservationFailed([]ItemQuantity{{ProductID: p1, Quantity: 2}}, "late notification"))
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Empty(t, o.Events())
}

func TestCancel(t *testing.T) {
	p1 := uuid.New()
	o := newTestOrder(t, ItemQuantity{ProductID: p1, Quantity: 2})
	require.NoError(t, o.ConfirmReservedItems([]ItemQuantity{{ProductID: p1, Quantity: 2}}))
	o.ClearEvents()

	require.NoError(t, o.Cancel())
	assert.Equal(t, StatusCancelled, o.Status)
	assert.Equal(t, ItemReleasing, o.Items[0].Status)
	assert.Equal(t, []string{"OrderCancelled", "StockReservationReleaseRequested"}, eventNames(o))

	assert.ErrorIs(t, o.Cancel(), stockflow_errors.ErrOrderTerminal)
}

func TestMarkReleased(t *testing.T) {
	p1 := uuid.New()
	o := newTestOrder(t, ItemQuantity{ProductID: p1, Quantity: 2})
	require.NoError(t, o.ConfirmReservedItems([]ItemQuantity{{ProductID: p1, Quantity: 2}}))
	require.NoError(t, o.Cancel())

	o.MarkReleased([]ItemQuantity{{ProductID: p1, Quantity: 2}})
	assert.Equal(t, ItemReleased, o.Items[0].Status)

	// Repeat delivery and unknown product are both no-ops.
	o.MarkReleased([]ItemQuantity{{ProductID: p1, Quantity: 2}})
	o.MarkReleased([]ItemQuantity{{ProductID: uuid.New(), Quantity: 1}})
	assert.Equal(t, ItemReleased, o.Items[0].Status)
}

func TestShipAndLose(t *testing.T) {
	p1 := uuid.New()
	o := newTestOrder(t, ItemQuantity{ProductID: p1, Quantity: 2})

	assert.ErrorIs(t, o.Ship(), stockflow_errors.ErrInvalidTransition)

	require.NoError(t, o.ConfirmReservedItems([]ItemQuantity{{ProductID: p1, Quantity: 2}}))
	require.NoError(t, o.Ship())
	assert.Equal(t, StatusShipped, o.Status)
	assert.Equal(t, ItemShipped, o.Items[0].Status)

	require.NoError(t, o.MarkItemLost(p1))
	assert.Equal(t, ItemLost, o.Items[0].Status)
	assert.ErrorIs(t, o.MarkItemLost(p1), stockflow_errors.ErrInvalidTransition)
}
