package stock

import (
	"fmt"

	"github.com/google/uuid"

	"stockflow/internal/domain"
	stockflow_errors "stockflow/pkg/errors"
)

// StockItem is the inventory record for one product. A product lives on
// exactly one shard; all reservation arithmetic happens inside that shard's
// transaction. Invariant: 0 <= ReservedQuantity <= TotalQuantity.
type StockItem struct {
	domain.Recorder

	ID               uuid.UUID
	TotalQuantity    int
	ReservedQuantity int
	Version          int
}

func NewStockItem(productID uuid.UUID, totalQuantity int) (*StockItem, error) {
	if totalQuantity < 0 {
		return nil, fmt.Errorf("%w: total quantity %d", stockflow_errors.ErrInvalidInput, totalQuantity)
	}
	return &StockItem{ID: productID, TotalQuantity: totalQuantity}, nil
}

// AvailableQuantity is derived, never stored.
func (s *StockItem) AvailableQuantity() int {
	return s.TotalQuantity - s.ReservedQuantity
}

// Reserve holds quantity units for orderID. Reserving beyond availability is
// rejected outright, never clamped.
func (s *StockItem) Reserve(orderID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: reserve quantity %d", stockflow_errors.ErrInvalidInput, quantity)
	}
	if s.AvailableQuantity() < quantity {
		return fmt.Errorf("%w: product %s has %d available, order %s wants %d",
			stockflow_errors.ErrInsufficientStock, s.ID, s.AvailableQuantity(), orderID, quantity)
	}
	s.ReservedQuantity += quantity
	s.Record(Reserved{ProductID: s.ID, OrderID: orderID, Quantity: quantity})
	if s.AvailableQuantity() == 0 {
		s.Record(Depleted{ProductID: s.ID})
	}
	return nil
}

// Release returns quantity units previously reserved for orderID. Releasing
// more than is reserved means the saga's two sides have diverged; that is an
// invariant violation, not a normal failure.
func (s *StockItem) Release(orderID uuid.UUID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: release quantity %d", stockflow_errors.ErrInvalidInput, quantity)
	}
	if quantity > s.ReservedQuantity {
		return stockflow_errors.NewInvariantViolation(s.ID.String(),
			"release of %d exceeds reserved quantity %d (order %s)", quantity, s.ReservedQuantity, orderID)
	}
	s.ReservedQuantity -= quantity
	s.Record(Released{ProductID: s.ID, OrderID: orderID, Quantity: quantity})
	return nil
}
