package order

import (
	"fmt"

	"github.com/google/uuid"

	"stockflow/internal/domain"
	stockflow_errors "stockflow/pkg/errors"
)

// Status is the order-level state derived from the saga's progress.
type Status string

const (
	StatusAwaitingReservation Status = "AWAITING_RESERVATION"
	StatusConfirmed           Status = "CONFIRMED"
	StatusFailed              Status = "FAILED"
	StatusCancelled           Status = "CANCELLED"
	StatusShipped             Status = "SHIPPED"
	StatusInconsistent        Status = "INCONSISTENT"
)

// ItemStatus is the per-item reservation state machine.
type ItemStatus string

const (
	ItemPending           ItemStatus = "PENDING"
	ItemReserved          ItemStatus = "RESERVED"
	ItemReservationFailed ItemStatus = "RESERVATION_FAILED"
	ItemReleasing         ItemStatus = "RELEASING"
	ItemReleased          ItemStatus = "RELEASED"
	ItemShipped           ItemStatus = "SHIPPED"
	ItemLost              ItemStatus = "LOST"
)

// OrderItem tracks one product line of an order.
type OrderItem struct {
	ProductID uuid.UUID
	Quantity  int
	Status    ItemStatus
}

// ItemQuantity is a (product, quantity) pair as reported by the inventory
// side of the saga.
type ItemQuantity struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// Order is the order-side aggregate of the stock reservation saga. Its
// overall reservation outcome is always the aggregate of its items'
// statuses; there is no redundant per-order reservation field.
type Order struct {
	domain.Recorder

	ID                 uuid.UUID
	Status             Status
	Items              []OrderItem
	InconsistentReason string
	Version            int
}

func NewOrder(orderID uuid.UUID, items []ItemQuantity) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order needs at least one item", stockflow_errors.ErrInvalidInput)
	}
	o := &Order{ID: orderID, Status: StatusAwaitingReservation}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity %d for product %s", stockflow_errors.ErrInvalidInput, it.Quantity, it.ProductID)
		}
		if o.item(it.ProductID) != nil {
			return nil, fmt.Errorf("%w: duplicate product %s", stockflow_errors.ErrInvalidInput, it.ProductID)
		}
		o.Items = append(o.Items, OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, Status: ItemPending})
	}
	o.Record(Created{OrderID: orderID, Items: items})
	return o, nil
}

func (o *Order) item(productID uuid.UUID) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return &o.Items[i]
		}
	}
	return nil
}

// IsTerminal reports whether the order accepts no further saga transitions.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case StatusFailed, StatusCancelled, StatusShipped, StatusInconsistent:
		return true
	}
	return false
}

// markInconsistent freezes the order for operator remediation and raises the
// critical event. Once inconsistent, no automated reconciliation runs again.
func (o *Order) markInconsistent(reason string) *stockflow_errors.InvariantViolation {
	o.Status = StatusInconsistent
	o.InconsistentReason = reason
	o.Record(InconsistencyDetected{OrderID: o.ID, Reason: reason})
	return stockflow_errors.NewInvariantViolation(o.ID.String(), "%s", reason)
}

// validateReported checks an inventory-reported item set against the order's
// own record. Any unknown product or quantity mismatch means the two services
// have structurally diverged.
func (o *Order) validateReported(reported []ItemQuantity) *stockflow_errors.InvariantViolation {
	if len(reported) == 0 {
		return o.markInconsistent("inventory reported an empty item set")
	}
	for _, r := range reported {
		it := o.item(r.ProductID)
		if it == nil {
			return o.markInconsistent(fmt.Sprintf("inventory reported product %s not present on the order", r.ProductID))
		}
		if it.Quantity != r.Quantity {
			return o.markInconsistent(fmt.Sprintf("inventory reported quantity %d for product %s, order requested %d",
				r.Quantity, r.ProductID, it.Quantity))
		}
	}
	return nil
}

// ConfirmReservedItems applies an inbound stock-reserved report. If the order
// was cancelled or failed before the report arrived, the matching items move
// to Releasing instead and a compensating release is requested. A report that
// does not match the order's own record freezes the order as inconsistent;
// the returned error then wraps an InvariantViolation and the caller must
// still persist the frozen state.
func (o *Order) ConfirmReservedItems(reported []ItemQuantity) error {
	if o.Status == StatusInconsistent {
		return fmt.Errorf("%w: order %s is inconsistent", stockflow_errors.ErrOrderTerminal, o.ID)
	}
	if err := o.validateReported(reported); err != nil {
		return err
	}

	if o.Status == StatusCancelled || o.Status == StatusFailed {
		// Reservation completed after the order already terminated, either
		// by cancel or by an earlier item's failure: request the
		// compensating release for the items that were still pending.
		return o.requestRelease(reported, ItemPending)
	}

	for _, r := range reported {
		it := o.item(r.ProductID)
		if it.Status != ItemPending {
			// Duplicate or late delivery; the status check makes it a no-op.
			continue
		}
		it.Status = ItemReserved
	}
	if o.allItems(ItemReserved) && o.Status == StatusAwaitingReservation {
		o.Status = StatusConfirmed
		o.Record(Confirmed{OrderID: o.ID})
	}
	return nil
}

// MarkReservationFailed applies an inbound reservation-failure report. Late
// or duplicate notifications against a terminal order are tolerated as no-ops.
func (o *Order) MarkReservationFailed(reported []ItemQuantity, reason string) error {
	if o.Status == StatusFailed || o.Status == StatusCancelled {
		return nil
	}
	if o.Status == StatusInconsistent {
		return fmt.Errorf("%w: order %s is inconsistent", stockflow_errors.ErrOrderTerminal, o.ID)
	}
	if err := o.validateReported(reported); err != nil {
		return err
	}

	changed := false
	for _, r := range reported {
		it := o.item(r.ProductID)
		if it.Status != ItemPending {
			continue
		}
		it.Status = ItemReservationFailed
		changed = true
	}
	if !changed {
		return nil
	}

	o.Status = StatusFailed
	o.Record(Failed{OrderID: o.ID, Items: reported, Reason: reason})

	// Items that did get reserved before the failure must be given back.
	return o.releaseReservedItems()
}

// Cancel aborts the order. Items already reserved move to Releasing and a
// compensating release is requested; still-pending items are covered by the
// cancel race path in ConfirmReservedItems when their report arrives.
func (o *Order) Cancel() error {
	if o.IsTerminal() {
		return fmt.Errorf("%w: cannot cancel order %s in status %s", stockflow_errors.ErrOrderTerminal, o.ID, o.Status)
	}
	o.Status = StatusCancelled
	o.Record(Cancelled{OrderID: o.ID})
	return o.releaseReservedItems()
}

// MarkReleased applies an inbound stock-released confirmation. Unknown
// products and repeat deliveries are no-ops.
func (o *Order) MarkReleased(reported []ItemQuantity) {
	for _, r := range reported {
		it := o.item(r.ProductID)
		if it == nil || it.Status != ItemReleasing {
			continue
		}
		it.Status = ItemReleased
	}
}

// Ship moves a fully reserved order to shipped.
func (o *Order) Ship() error {
	if o.Status != StatusConfirmed {
		return fmt.Errorf("%w: order %s in status %s cannot ship", stockflow_errors.ErrInvalidTransition, o.ID, o.Status)
	}
	for i := range o.Items {
		o.Items[i].Status = ItemShipped
	}
	o.Status = StatusShipped
	o.Record(Shipped{OrderID: o.ID})
	return nil
}

// MarkItemLost records a shipped item that never arrived.
func (o *Order) MarkItemLost(productID uuid.UUID) error {
	it := o.item(productID)
	if it == nil {
		return fmt.Errorf("%w: product %s", stockflow_errors.ErrNotFound, productID)
	}
	if it.Status != ItemShipped {
		return fmt.Errorf("%w: item %s is %s, not shipped", stockflow_errors.ErrInvalidTransition, productID, it.Status)
	}
	it.Status = ItemLost
	return nil
}

func (o *Order) allItems(status ItemStatus) bool {
	for i := range o.Items {
		if o.Items[i].Status != status {
			return false
		}
	}
	return true
}

// requestRelease transitions the given items from `from` to Releasing and
// raises a single release request covering everything that actually moved.
// Retried deliveries find nothing left in `from` and raise nothing, which is
// what keeps the compensation event exactly-once per item.
func (o *Order) requestRelease(items []ItemQuantity, from ItemStatus) error {
	var moved []ItemQuantity
	for _, r := range items {
		it := o.item(r.ProductID)
		if it == nil || it.Status != from {
			continue
		}
		it.Status = ItemReleasing
		moved = append(moved, ItemQuantity{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if len(moved) > 0 {
		o.Record(ReleaseRequested{OrderID: o.ID, Items: moved})
	}
	return nil
}

func (o *Order) releaseReservedItems() error {
	var reserved []ItemQuantity
	for i := range o.Items {
		if o.Items[i].Status == ItemReserved {
			reserved = append(reserved, ItemQuantity{ProductID: o.Items[i].ProductID, Quantity: o.Items[i].Quantity})
		}
	}
	if len(reserved) == 0 {
		return nil
	}
	return o.requestRelease(reserved, ItemReserved)
}
