package stock

import "github.com/google/uuid"

// Reserved is raised when stock is successfully held for an order.
type Reserved struct {
	ProductID uuid.UUID
	OrderID   uuid.UUID
	Quantity  int
}

func (Reserved) EventName() string { return "StockReserved" }

// Released is raised when a previous reservation is returned to the pool.
type Released struct {
	ProductID uuid.UUID
	OrderID   uuid.UUID
	Quantity  int
}

func (Released) EventName() string { return "StockReleased" }

// Depleted is raised when available quantity reaches zero. Internal-only:
// it has no integration event mapping.
type Depleted struct {
	ProductID uuid.UUID
}

func (Depleted) EventName() string { return "StockDepleted" }
