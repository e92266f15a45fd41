package commands

import (
	"fmt"

	"github.com/google/uuid"

	"stockflow/internal/domain/order"
	"stockflow/internal/events"
	stockflow_errors "stockflow/pkg/errors"
)

const (
	TypeCreateStockItem = "CreateStockItem"
	TypeReserveStock    = "ReserveStock"
	TypeReleaseStock    = "ReleaseStock"
)

// CreateStockItem provisions inventory for a product on its owning shard.
type CreateStockItem struct {
	ProductID     uuid.UUID `json:"product_id"`
	TotalQuantity int       `json:"total_quantity"`
}

func (c CreateStockItem) CommandType() string    { return TypeCreateStockItem }
func (c CreateStockItem) ShardKey() uuid.UUID    { return c.ProductID }
func (c CreateStockItem) IdempotencyKey() string { return "" }

func (c CreateStockItem) Validate() error {
	if c.ProductID == uuid.Nil {
		return fmt.Errorf("%w: product id required", stockflow_errors.ErrInvalidInput)
	}
	if c.TotalQuantity < 0 {
		return fmt.Errorf("%w: total quantity %d", stockflow_errors.ErrInvalidInput, c.TotalQuantity)
	}
	return nil
}

// ReserveStock holds stock for one order line on the product's shard.
type ReserveStock struct {
	ProductID     uuid.UUID `json:"product_id"`
	OrderID       uuid.UUID `json:"order_id"`
	Quantity      int       `json:"quantity"`
	CorrelationID string    `json:"correlation_id"`
}

func (c ReserveStock) CommandType() string    { return TypeReserveStock }
func (c ReserveStock) ShardKey() uuid.UUID    { return c.ProductID }
func (c ReserveStock) IdempotencyKey() string { return c.CorrelationID }

func (c ReserveStock) Validate() error {
	if c.ProductID == uuid.Nil || c.OrderID == uuid.Nil {
		return fmt.Errorf("%w: product and order ids required", stockflow_errors.ErrInvalidInput)
	}
	if c.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %d", stockflow_errors.ErrInvalidInput, c.Quantity)
	}
	return nil
}

// FailureEvent reports the reservation as terminally failed so the order
// side can fail the order.
func (c ReserveStock) FailureEvent(reason string) (string, string, uuid.UUID, interface{}) {
	return events.EventTypeStockReservationFail, events.TopicInventory, c.OrderID,
		events.StockReservationFailedPayload{
			OrderID: c.OrderID,
			Items:   []order.ItemQuantity{{ProductID: c.ProductID, Quantity: c.Quantity}},
			Reason:  reason,
		}
}

// ReleaseStock is the compensating inverse of ReserveStock.
type ReleaseStock struct {
	ProductID     uuid.UUID `json:"product_id"`
	OrderID       uuid.UUID `json:"order_id"`
	Quantity      int       `json:"quantity"`
	CorrelationID string    `json:"correlation_id"`
}

func (c ReleaseStock) CommandType() string    { return TypeReleaseStock }
func (c ReleaseStock) ShardKey() uuid.UUID    { return c.ProductID }
func (c ReleaseStock) IdempotencyKey() string { return c.CorrelationID }

func (c ReleaseStock) Validate() error {
	if c.ProductID == uuid.Nil || c.OrderID == uuid.Nil {
		return fmt.Errorf("%w: product and order ids required", stockflow_errors.ErrInvalidInput)
	}
	if c.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %d", stockflow_errors.ErrInvalidInput, c.Quantity)
	}
	return nil
}
