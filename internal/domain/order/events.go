package order

import "github.com/google/uuid"

// Created is raised when a new order enters the system. Its integration
// mapping (`order.created`) is what triggers the reservation saga.
type Created struct {
	OrderID uuid.UUID
	Items   []ItemQuantity
}

func (Created) EventName() string { return "OrderCreated" }

// Confirmed is raised when every item reaches Reserved.
type Confirmed struct {
	OrderID uuid.UUID
}

func (Confirmed) EventName() string { return "OrderConfirmed" }

// Failed is raised when a reservation failure marks the order failed.
type Failed struct {
	OrderID uuid.UUID
	Items   []ItemQuantity
	Reason  string
}

func (Failed) EventName() string { return "OrderFailed" }

// Cancelled is raised when the order is aborted by its owner.
type Cancelled struct {
	OrderID uuid.UUID
}

func (Cancelled) EventName() string { return "OrderCancelled" }

// ReleaseRequested asks the inventory side for a compensating release of
// previously reserved items.
type ReleaseRequested struct {
	OrderID uuid.UUID
	Items   []ItemQuantity
}

func (ReleaseRequested) EventName() string { return "StockReservationReleaseRequested" }

// InconsistencyDetected is the critical-severity event raised when the
// inventory-reported reservation does not match the order's own record.
type InconsistencyDetected struct {
	OrderID uuid.UUID
	Reason  string
}

func (InconsistencyDetected) EventName() string { return "OrderInconsistencyDetected" }

// Shipped is raised when a confirmed order leaves the warehouse.
type Shipped struct {
	OrderID uuid.UUID
}

func (Shipped) EventName() string { return "OrderShipped" }
