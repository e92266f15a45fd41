package events

import (
	"github.com/google/uuid"

	"stockflow/internal/domain/order"
)

// Integration event names, format: domain.action. These names are the
// contract between the order and inventory sides of the saga.
const (
	EventTypeOrderCreated         = "order.created"
	EventTypeOrderConfirmed       = "order.confirmed"
	EventTypeOrderFailed          = "order.failed"
	EventTypeOrderCancelled       = "order.cancelled"
	EventTypeOrderShipped         = "order.shipped"
	EventTypeOrderInconsistency   = "order.inconsistency.detected"
	EventTypeStockReserved        = "stock.reserved"
	EventTypeStockReleased        = "stock.released"
	EventTypeStockReleaseRequest  = "stock.reservation.release_requested"
	EventTypeStockReservationFail = "stock.reservation.failed"
)

// Topics. The outbox processor publishes to `{topic}.{aggregate_id}`, so one
// aggregate's events stay ordered on the bus.
const (
	TopicOrders    = "orders.events"
	TopicInventory = "inventory.events"
)

// OrderCreatedPayload carries the full requested item list so the inventory
// side can reserve every line of the order.
type OrderCreatedPayload struct {
	OrderID uuid.UUID            `json:"order_id"`
	Items   []order.ItemQuantity `json:"items"`
}

// StockReservedPayload reports quantities the inventory side has reserved
// for an order.
type StockReservedPayload struct {
	OrderID uuid.UUID            `json:"order_id"`
	Items   []order.ItemQuantity `json:"items"`
}

// StockReleasedPayload confirms a compensating release.
type StockReleasedPayload struct {
	OrderID uuid.UUID            `json:"order_id"`
	Items   []order.ItemQuantity `json:"items"`
}

// StockReleaseRequestedPayload asks inventory to give reserved units back.
type StockReleaseRequestedPayload struct {
	OrderID uuid.UUID            `json:"order_id"`
	Items   []order.ItemQuantity `json:"items"`
}

// StockReservationFailedPayload is the terminal failure report: the failed
// product/quantity pairs plus the reason, enough for a human or a
// compensating process to act.
type StockReservationFailedPayload struct {
	OrderID uuid.UUID            `json:"order_id"`
	Items   []order.ItemQuantity `json:"items"`
	Reason  string               `json:"reason"`
}

// OrderStatusPayload is shared by the plain order lifecycle notifications.
type OrderStatusPayload struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason,omitempty"`
}
