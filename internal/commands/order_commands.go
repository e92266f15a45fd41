package commands

import (
	"fmt"

	"github.com/google/uuid"

	"stockflow/internal/domain/order"
	stockflow_errors "stockflow/pkg/errors"
)

const (
	TypeCreateOrder           = "CreateOrder"
	TypeCancelOrder           = "CancelOrder"
	TypeShipOrder             = "ShipOrder"
	TypeReportItemLost        = "ReportItemLost"
	TypeUpdateReservedStock   = "UpdateReservedStock"
	TypeMarkReservationFailed = "MarkStockReservationFailed"
	TypeMarkStockReleased     = "MarkStockReleased"
)

func validateItems(items []order.ItemQuantity) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item required", stockflow_errors.ErrInvalidInput)
	}
	for _, it := range items {
		if it.ProductID == uuid.Nil || it.Quantity <= 0 {
			return fmt.Errorf("%w: item %s quantity %d", stockflow_errors.ErrInvalidInput, it.ProductID, it.Quantity)
		}
	}
	return nil
}

// CreateOrder starts the reservation saga for a new order.
type CreateOrder struct {
	OrderID uuid.UUID            `json:"order_id"`
	Items   []order.ItemQuantity `json:"items"`
}

func (c CreateOrder) CommandType() string    { return TypeCreateOrder }
func (c CreateOrder) ShardKey() uuid.UUID    { return c.OrderID }
func (c CreateOrder) IdempotencyKey() string { return "" }

func (c CreateOrder) Validate() error {
	if c.OrderID == uuid.Nil {
		return fmt.Errorf("%w: order id required", stockflow_errors.ErrInvalidInput)
	}
	return validateItems(c.Items)
}

// CancelOrder aborts an order; reserved items are compensated via release.
type CancelOrder struct {
	OrderID uuid.UUID `json:"order_id"`
}

func (c CancelOrder) CommandType() string    { return TypeCancelOrder }
func (c CancelOrder) ShardKey() uuid.UUID    { return c.OrderID }
func (c CancelOrder) IdempotencyKey() string { return "" }

func (c CancelOrder) Validate() error {
	if c.OrderID == uuid.Nil {
		return fmt.Errorf("%w: order id required", stockflow_errors.ErrInvalidInput)
	}
	return nil
}

// ShipOrder ships a fully reserved order.
type ShipOrder struct {
	OrderID uuid.UUID `json:"order_id"`
}

func (c ShipOrder) CommandType() string    { return TypeShipOrder }
func (c ShipOrder) ShardKey() uuid.UUID    { return c.OrderID }
func (c ShipOrder) IdempotencyKey() string { return "" }

func (c ShipOrder) Validate() error {
	if c.OrderID == uuid.Nil {
		return fmt.Errorf("%w: order id required", stockflow_errors.ErrInvalidInput)
	}
	return nil
}

// ReportItemLost records a shipped item as lost in transit.
type ReportItemLost struct {
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
}

func (c ReportItemLost) CommandType() string    { return TypeReportItemLost }
func (c ReportItemLost) ShardKey() uuid.UUID    { return c.OrderID }
func (c ReportItemLost) IdempotencyKey() string { return "" }

func (c ReportItemLost) Validate() error {
	if c.OrderID == uuid.Nil || c.ProductID == uuid.Nil {
		return fmt.Errorf("%w: order and product ids required", stockflow_errors.ErrInvalidInput)
	}
	return nil
}

// UpdateReservedStock reconciles an inbound stock-reserved report with the
// order's own record. Triggered by bus events, so always idempotent.
type UpdateReservedStock struct {
	OrderID       uuid.UUID            `json:"order_id"`
	Items         []order.ItemQuantity `json:"items"`
	CorrelationID string               `json:"correlation_id"`
}

func (c UpdateReservedStock) CommandType() string    { return TypeUpdateReservedStock }
func (c UpdateReservedStock) ShardKey() uuid.UUID    { return c.OrderID }
func (c UpdateReservedStock) IdempotencyKey() string { return c.CorrelationID }

func (c UpdateReservedStock) Validate() error {
	if c.OrderID == uuid.Nil {
		return fmt.Errorf("%w: order id required", stockflow_errors.ErrInvalidInput)
	}
	return validateItems(c.Items)
}

// MarkStockReservationFailed applies an inbound reservation failure report.
type MarkStockReservationFailed struct {
	OrderID       uuid.UUID            `json:"order_id"`
	Items         []order.ItemQuantity `json:"items"`
	Reason        string               `json:"reason"`
	CorrelationID string               `json:"correlation_id"`
}

func (c MarkStockReservationFailed) CommandType() string    { return TypeMarkReservationFailed }
func (c MarkStockReservationFailed) ShardKey() uuid.UUID    { return c.OrderID }
func (c MarkStockReservationFailed) IdempotencyKey() string { return c.CorrelationID }

func (c MarkStockReservationFailed) Validate() error {
	if c.OrderID == uuid.Nil {
		return fmt.Errorf("%w: order id required", stockflow_errors.ErrInvalidInput)
	}
	return validateItems(c.Items)
}

// MarkStockReleased confirms a compensating release has completed.
type MarkStockReleased struct {
	OrderID       uuid.UUID            `json:"order_id"`
	Items         []order.ItemQuantity `json:"items"`
	CorrelationID string               `json:"correlation_id"`
}

func (c MarkStockReleased) CommandType() string    { return TypeMarkStockReleased }
func (c MarkStockReleased) ShardKey() uuid.UUID    { return c.OrderID }
func (c MarkStockReleased) IdempotencyKey() string { return c.CorrelationID }

func (c MarkStockReleased) Validate() error {
	if c.OrderID == uuid.Nil {
		return fmt.Errorf("%w: order id required", stockflow_errors.ErrInvalidInput)
	}
	return validateItems(c.Items)
}
