package events

import (
	"github.com/google/uuid"

	"stockflow/internal/domain"
	"stockflow/internal/domain/order"
	"stockflow/internal/domain/stock"
)

// IntegrationEvent is a domain event translated to its public form, ready to
// be wrapped as an outbox message.
type IntegrationEvent struct {
	Name    string
	Topic   string
	Payload interface{}
}

// MapDomainEvent translates a domain event into its integration event.
// Internal-only events return ok=false and are silently dropped; adding new
// internal event variants must never break the outbox writer.
func MapDomainEvent(e domain.Event, aggregateID uuid.UUID) (IntegrationEvent, bool) {
	switch ev := e.(type) {
	case order.Created:
		return IntegrationEvent{
			Name:    EventTypeOrderCreated,
			Topic:   TopicOrders,
			Payload: OrderCreatedPayload{OrderID: ev.OrderID, Items: ev.Items},
		}, true
	case order.Confirmed:
		return IntegrationEvent{
			Name:    EventTypeOrderConfirmed,
			Topic:   TopicOrders,
			Payload: OrderStatusPayload{OrderID: ev.OrderID},
		}, true
	case order.Failed:
		return IntegrationEvent{
			Name:    EventTypeOrderFailed,
			Topic:   TopicOrders,
			Payload: OrderStatusPayload{OrderID: ev.OrderID, Reason: ev.Reason},
		}, true
	case order.Cancelled:
		return IntegrationEvent{
			Name:    EventTypeOrderCancelled,
			Topic:   TopicOrders,
			Payload: OrderStatusPayload{OrderID: ev.OrderID},
		}, true
	case order.ReleaseRequested:
		return IntegrationEvent{
			Name:    EventTypeStockReleaseRequest,
			Topic:   TopicOrders,
			Payload: StockReleaseRequestedPayload{OrderID: ev.OrderID, Items: ev.Items},
		}, true
	case order.InconsistencyDetected:
		return IntegrationEvent{
			Name:    EventTypeOrderInconsistency,
			Topic:   TopicOrders,
			Payload: OrderStatusPayload{OrderID: ev.OrderID, Reason: ev.Reason},
		}, true
	case order.Shipped:
		return IntegrationEvent{
			Name:    EventTypeOrderShipped,
			Topic:   TopicOrders,
			Payload: OrderStatusPayload{OrderID: ev.OrderID},
		}, true
	case stock.Reserved:
		return IntegrationEvent{
			Name:  EventTypeStockReserved,
			Topic: TopicInventory,
			Payload: StockReservedPayload{
				OrderID: ev.OrderID,
				Items:   []order.ItemQuantity{{ProductID: ev.ProductID, Quantity: ev.Quantity}},
			},
		}, true
	case stock.Released:
		return IntegrationEvent{
			Name:  EventTypeStockReleased,
			Topic: TopicInventory,
			Payload: StockReleasedPayload{
				OrderID: ev.OrderID,
				Items:   []order.ItemQuantity{{ProductID: ev.ProductID, Quantity: ev.Quantity}},
			},
		}, true
	default:
		// Internal-only, e.g. stock.Depleted.
		return IntegrationEvent{}, false
	}
}
