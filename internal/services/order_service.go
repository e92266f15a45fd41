package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stockflow/internal/commands"
	"stockflow/internal/domain/order"
	"stockflow/internal/uow"
	stockflow_errors "stockflow/pkg/errors"
)

// OrderService handles the caller-facing order lifecycle commands. Saga
// reactions to inventory reports live in ReservationService.
type OrderService struct {
	clock func() time.Time
	log   *zap.Logger
}

func NewOrderService(log *zap.Logger) *OrderService {
	return &OrderService{clock: time.Now, log: log}
}

func (s *OrderService) Register(bus *commands.Bus) {
	bus.Register(commands.TypeCreateOrder, commands.HandleFunc(s.handleCreate))
	bus.Register(commands.TypeCancelOrder, commands.HandleFunc(s.handleCancel))
	bus.Register(commands.TypeShipOrder, commands.HandleFunc(s.handleShip))
	bus.Register(commands.TypeReportItemLost, commands.HandleFunc(s.handleItemLost))
}

func (s *OrderService) handleCreate(ctx context.Context, sess uow.Session, cmd commands.Command) error {
	c, ok := cmd.(commands.CreateOrder)
	if !ok {
		return fmt.Errorf("%w: unexpected command %T", stockflow_errors.ErrInvalidInput, cmd)
	}
	o, err := order.NewOrder(c.OrderID, c.Items)
	if err != nil {
		return err
	}
	if err := sess.Orders().Create(ctx, o); err != nil {
		return err
	}
	return commitWithOutbox(ctx, sess, s.clock(), stagedAggregate{o.ID, o})
}

func (s *OrderService) handleCancel(ctx context.Context, sess uow.Session, cmd commands.Command) error {
	c, ok := cmd.(commands.CancelOrder)
	if !ok {
		return fmt.Errorf("%w: unexpected command %T", stockflow_errors.ErrInvalidInput, cmd)
	}
	return s.mutate(ctx, sess, c.OrderID, func(o *order.Order) error {
		return o.Cancel()
	})
}

func (s *OrderService) handleShip(ctx context.Context, sess uow.Session, cmd commands.Command) error {
	c, ok := cmd.(commands.ShipOrder)
	if !ok {
		return fmt.Errorf("%w: unexpected command %T", stockflow_errors.ErrInvalidInput, cmd)
	}
	return s.mutate(ctx, sess, c.OrderID, func(o *order.Order) error {
		return o.Ship()
	})
}

func (s *OrderService) handleItemLost(ctx context.Context, sess uow.Session, cmd commands.Command) error {
	c, ok := cmd.(commands.ReportItemLost)
	if !ok {
		return fmt.Errorf("%w: unexpected command %T", stockflow_errors.ErrInvalidInput, cmd)
	}
	return s.mutate(ctx, sess, c.OrderID, func(o *order.Order) error {
		return o.MarkItemLost(c.ProductID)
	})
}

// mutate loads the order, applies fn and commits the result with whatever
// events fn recorded.
func (s *OrderService) mutate(ctx context.Context, sess uow.Session, orderID uuid.UUID, fn func(*order.Order) error) error {
	o, err := sess.Orders().Get(ctx, orderID)
	if err != nil {
		return err
	}
	if err := fn(o); err != nil {
		return err
	}
	if err := sess.Orders().Update(ctx, o); err != nil {
		return err
	}
	return commitWithOutbox(ctx, sess, s.clock(), stagedAggregate{o.ID, o})
}
