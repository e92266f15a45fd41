package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"stockflow/internal/domain/stock"
	stockflow_errors "stockflow/pkg/errors"
)

type stockRepository struct {
	db DBTX
}

func NewStockRepository(db DBTX) StockRepository {
	return &stockRepository{db: db}
}

func (r *stockRepository) Get(ctx context.Context, productID uuid.UUID) (*stock.StockItem, error) {
	var item stock.StockItem
	err := r.db.QueryRow(ctx, `
        SELECT id, total_quantity, reserved_quantity, version
        FROM stock_items
        WHERE id = $1
    `, productID).Scan(&item.ID, &item.TotalQuantity, &item.ReservedQuantity, &item.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: stock item %s", stockflow_errors.ErrNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *stockRepository) Create(ctx context.Context, item *stock.StockItem) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO stock_items (id, total_quantity, reserved_quantity, version)
        VALUES ($1, $2, $3, 0)
    `, item.ID, item.TotalQuantity, item.ReservedQuantity)
	return err
}

func (r *stockRepository) Update(ctx context.Context, item *stock.StockItem) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE stock_items
        SET total_quantity = $1, reserved_quantity = $2, version = version + 1
        WHERE id = $3 AND version = $4
    `, item.TotalQuantity, item.ReservedQuantity, item.ID, item.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stock item %s version %d", stockflow_errors.ErrConcurrencyConflict, item.ID, item.Version)
	}
	item.Version++
	return nil
}
