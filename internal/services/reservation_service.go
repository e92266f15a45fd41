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
	"stockflow/pkg/logger"
)

// ReservationService applies inbound inventory reports to the order side of
// the saga. Its commands arrive via bus deliveries, so every one of them is
// idempotent through the processed-command ledger.
type ReservationService struct {
	clock func() time.Time
	log   *logger.Logger
}

func NewReservationService(log *logger.Logger) *ReservationService {
	return &ReservationService{clock: time.Now, log: log}
}

func (s *ReservationService) Register(bus *commands.Bus) {
	bus.Register(commands.TypeUpdateReservedStock, commands.HandleFunc(s.handleReserved))
	bus.Register(commands.TypeMarkReservationFailed, commands.HandleFunc(s.handleReservationFailed))
	bus.Register(commands.TypeMarkStockReleased, commands.HandleFunc(s.handleReleased))
}

func (s *ReservationService) handleReserved(ctx context.Context, sess uow.Session, cmd commands.Command) error {
	c, ok := cmd.(commands.UpdateReservedStock)
	if !ok {
		return fmt.Errorf("%w: unexpected command %T", stockflow_errors.ErrInvalidInput, cmd)
	}
	return s.apply(ctx, sess, c.OrderID, func(o *order.Order) error {
		return o.ConfirmReservedItems(c.Items)
	})
}

func (s *ReservationService) handleReservationFailed(ctx context.Context, sess uow.Session, cmd commands.Command) error {
	c, ok := cmd.(commands.MarkStockReservationFailed)
	if !ok {
		return fmt.Errorf("%w: unexpected command %T", stockflow_errors.ErrInvalidInput, cmd)
	}
	return s.apply(ctx, sess, c.OrderID, func(o *order.Order) error {
		return o.MarkReservationFailed(c.Items, c.Reason)
	})
}

func (s *ReservationService) handleReleased(ctx context.Context, sess uow.Session, cmd commands.Command) error {
	c, ok := cmd.(commands.MarkStockReleased)
	if !ok {
		return fmt.Errorf("%w: unexpected command %T", stockflow_errors.ErrInvalidInput, cmd)
	}
	return s.apply(ctx, sess, c.OrderID, func(o *order.Order) error {
		o.MarkReleased(c.Items)
		return nil
	})
}

// apply loads the order, runs the transition and commits. A transition that
// froze the order as inconsistent still gets committed, frozen state and
// critical event included, before the violation is returned to the caller.
func (s *ReservationService) apply(ctx context.Context, sess uow.Session, orderID uuid.UUID, fn func(*order.Order) error) error {
	o, err := sess.Orders().Get(ctx, orderID)
	if err != nil {
		return err
	}
	if tErr := fn(o); tErr != nil {
		if !stockflow_errors.IsInvariantViolation(tErr) {
			return tErr
		}
		s.log.WithContext(ctx).Error("order frozen as inconsistent",
			zap.String("order_id", o.ID.String()),
			zap.String("reason", o.InconsistentReason),
			zap.Bool("alert", true))
		if err := sess.Orders().Update(ctx, o); err != nil {
			return err
		}
		if err := commitWithOutbox(ctx, sess, s.clock(), stagedAggregate{o.ID, o}); err != nil {
			return err
		}
		return tErr
	}
	if err := sess.Orders().Update(ctx, o); err != nil {
		return err
	}
	return commitWithOutbox(ctx, sess, s.clock(), stagedAggregate{o.ID, o})
}
