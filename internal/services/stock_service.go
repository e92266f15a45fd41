package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stockflow/internal/commands"
	"stockflow/internal/domain/stock"
	"stockflow/internal/uow"
	stockflow_errors "stockflow/pkg/errors"
)

// StockService owns the inventory side of the reservation saga. Every
// handler runs on the shard of the product it touches; a command never spans
// two products.
type StockService struct {
	clock func() time.Time
	log   *zap.Logger
}

func NewStockService(log *zap.Logger) *StockService {
	return &StockService{clock: time.Now, log: log}
}

func (s *StockService) Register(bus *commands.Bus) {
	bus.Register(commands.TypeCreateStockItem, commands.HandleFunc(s.handleCreate))
	bus.Register(commands.TypeReserveStock, commands.HandleFunc(s.handleReserve))
	bus.Register(commands.TypeReleaseStock, commands.HandleFunc(s.handleRelease))
}

func (s *StockService) handleCreate(ctx context.Context, sess uow.Session, cmd commands.Command) error {
	c, ok := cmd.(commands.CreateStockItem)
	if !ok {
		return fmt.Errorf("%w: unexpected command %T", stockflow_errors.ErrInvalidInput, cmd)
	}
	item, err := stock.NewStockItem(c.ProductID, c.TotalQuantity)
	if err != nil {
		return err
	}
	if err := sess.Stock().Create(ctx, item); err != nil {
		return err
	}
	return commitWithOutbox(ctx, sess, s.clock(), stagedAggregate{item.ID, item})
}

func (s *StockService) handleReserve(ctx context.Context, sess uow.Session, cmd commands.Command) error {
	c, ok := cmd.(commands.ReserveStock)
	if !ok {
		return fmt.Errorf("%w: unexpected command %T", stockflow_errors.ErrInvalidInput, cmd)
	}
	item, err := sess.Stock().Get(ctx, c.ProductID)
	if err != nil {
		return err
	}
	if err := item.Reserve(c.OrderID, c.Quantity); err != nil {
		return err
	}
	if err := sess.Stock().Update(ctx, item); err != nil {
		return err
	}
	return commitWithOutbox(ctx, sess, s.clock(), stagedAggregate{item.ID, item})
}

func (s *StockService) handleRelease(ctx context.Context, sess uow.Session, cmd commands.Command) error {
	c, ok := cmd.(commands.ReleaseStock)
	if !ok {
		return fmt.Errorf("%w: unexpected command %T", stockflow_errors.ErrInvalidInput, cmd)
	}
	item, err := sess.Stock().Get(ctx, c.ProductID)
	if err != nil {
		return err
	}
	if err := item.Release(c.OrderID, c.Quantity); err != nil {
		return err
	}
	if err := sess.Stock().Update(ctx, item); err != nil {
		return err
	}
	return commitWithOutbox(ctx, sess, s.clock(), stagedAggregate{item.ID, item})
}
