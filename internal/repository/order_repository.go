package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stockflow/internal/domain/order"
	stockflow_errors "stockflow/pkg/errors"
)

type orderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Get(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	var o order.Order
	err := r.db.QueryRow(ctx, `
        SELECT id, status, inconsistent_reason, version
        FROM orders
        WHERE id = $1
    `, orderID).Scan(&o.ID, &o.Status, &o.InconsistentReason, &o.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", stockflow_errors.ErrNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
        SELECT product_id, quantity, status
        FROM order_items
        WHERE order_id = $1
        ORDER BY position ASC
    `, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it order.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.Status); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO orders (id, status, inconsistent_reason, version)
        VALUES ($1, $2, $3, 0)
    `, o.ID, o.Status, o.InconsistentReason)
	if err != nil {
		return err
	}
	for i, it := range o.Items {
		if _, err := r.db.Exec(ctx, `
            INSERT INTO order_items (order_id, product_id, quantity, status, position)
            VALUES ($1, $2, $3, $4, $5)
        `, o.ID, it.ProductID, it.Quantity, it.Status, i); err != nil {
			return err
		}
	}
	return nil
}

func (r *orderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE orders
        SET status = $1, inconsistent_reason = $2, version = version + 1
        WHERE id = $3 AND version = $4
    `, o.Status, o.InconsistentReason, o.ID, o.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s version %d", stockflow_errors.ErrConcurrencyConflict, o.ID, o.Version)
	}
	o.Version++

	// Quantities are immutable after creation; only item status moves.
	for _, it := range o.Items {
		if _, err := r.db.Exec(ctx, `
            UPDATE order_items
            SET status = $1
            WHERE order_id = $2 AND product_id = $3
        `, it.Status, o.ID, it.ProductID); err != nil {
			return err
		}
	}
	return nil
}
