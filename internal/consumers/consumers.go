// Package consumers binds bus deliveries to commands. Each handler derives
// its command's correlation id from the envelope id, so redeliveries of the
// same event collapse in the processed-command ledger.
package consumers

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"stockflow/internal/commands"
	"stockflow/internal/events"
)

// CommandExecutor is the delivery-side command entry point.
type CommandExecutor interface {
	Execute(ctx context.Context, cmd commands.Command) error
}

// Subscriber registers handlers by event type.
type Subscriber interface {
	Subscribe(eventType string, handler events.Handler)
}

// Register wires the saga's event reactions. Must be called before the bus
// starts consuming.
func Register(bus Subscriber, exec CommandExecutor, log *zap.Logger) {
	c := &consumers{exec: exec, log: log}
	bus.Subscribe(events.EventTypeOrderCreated, c.onOrderCreated)
	bus.Subscribe(events.EventTypeStockReserved, c.onStockReserved)
	bus.Subscribe(events.EventTypeStockReservationFail, c.onReservationFailed)
	bus.Subscribe(events.EventTypeStockReleaseRequest, c.onReleaseRequested)
	bus.Subscribe(events.EventTypeStockReleased, c.onStockReleased)
}

type consumers struct {
	exec CommandExecutor
	log  *zap.Logger
}

// onOrderCreated fans the order out into one reservation per product, each
// on the product's own shard. The per-item correlation id keeps a partially
// processed redelivery from double-reserving the lines that already ran.
func (c *consumers) onOrderCreated(ctx context.Context, env events.Envelope) error {
	var p events.OrderCreatedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("decode %s: %w", env.EventType, err)
	}
	for _, item := range p.Items {
		err := c.exec.Execute(ctx, commands.ReserveStock{
			ProductID:     item.ProductID,
			OrderID:       p.OrderID,
			Quantity:      item.Quantity,
			CorrelationID: fmt.Sprintf("%s:%s", env.ID, item.ProductID),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *consumers) onStockReserved(ctx context.Context, env events.Envelope) error {
	var p events.StockReservedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("decode %s: %w", env.EventType, err)
	}
	return c.exec.Execute(ctx, commands.UpdateReservedStock{
		OrderID:       p.OrderID,
		Items:         p.Items,
		CorrelationID: env.ID.String(),
	})
}

func (c *consumers) onReservationFailed(ctx context.Context, env events.Envelope) error {
	var p events.StockReservationFailedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("decode %s: %w", env.EventType, err)
	}
	return c.exec.Execute(ctx, commands.MarkStockReservationFailed{
		OrderID:       p.OrderID,
		Items:         p.Items,
		Reason:        p.Reason,
		CorrelationID: env.ID.String(),
	})
}

// onReleaseRequested mirrors onOrderCreated: one release per product, on the
// product's shard.
func (c *consumers) onReleaseRequested(ctx context.Context, env events.Envelope) error {
	var p events.StockReleaseRequestedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("decode %s: %w", env.EventType, err)
	}
	for _, item := range p.Items {
		err := c.exec.Execute(ctx, commands.ReleaseStock{
			ProductID:     item.ProductID,
			OrderID:       p.OrderID,
			Quantity:      item.Quantity,
			CorrelationID: fmt.Sprintf("%s:%s", env.ID, item.ProductID),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *consumers) onStockReleased(ctx context.Context, env events.Envelope) error {
	var p events.StockReleasedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("decode %s: %w", env.EventType, err)
	}
	return c.exec.Execute(ctx, commands.MarkStockReleased{
		OrderID:       p.OrderID,
		Items:         p.Items,
		CorrelationID: env.ID.String(),
	})
}
