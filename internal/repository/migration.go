package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Every shard store carries the same schema; cross-shard coordination
// happens only via messages, never via cross-shard queries.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS stock_items (
        id uuid PRIMARY KEY,
        total_quantity integer NOT NULL,
        reserved_quantity integer NOT NULL DEFAULT 0,
        version integer NOT NULL DEFAULT 0,
        CONSTRAINT stock_items_reserved_bounds
            CHECK (reserved_quantity >= 0 AND reserved_quantity <= total_quantity)
    )`,
	`CREATE TABLE IF NOT EXISTS orders (
        id uuid PRIMARY KEY,
        status varchar(30) NOT NULL,
        inconsistent_reason text NOT NULL DEFAULT '',
        version integer NOT NULL DEFAULT 0
    )`,
	`CREATE TABLE IF NOT EXISTS order_items (
        order_id uuid NOT NULL REFERENCES orders(id),
        product_id uuid NOT NULL,
        quantity integer NOT NULL,
        status varchar(30) NOT NULL,
        position integer NOT NULL,
        PRIMARY KEY (order_id, product_id)
    )`,
	`CREATE TABLE IF NOT EXISTS outbox_messages (
        id uuid PRIMARY KEY,
        aggregate_id uuid NOT NULL,
        type varchar(100) NOT NULL,
        payload jsonb NOT NULL,
        topic varchar(100) NOT NULL,
        occurred_at timestamptz NOT NULL,
        published_at timestamptz,
        retry_count integer NOT NULL DEFAULT 0,
        next_retry_at timestamptz,
        last_error text NOT NULL DEFAULT ''
    )`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
        ON outbox_messages (occurred_at)
        WHERE published_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS processed_commands (
        correlation_id varchar(200) NOT NULL,
        command_type varchar(100) NOT NULL,
        processed_at timestamptz NOT NULL,
        PRIMARY KEY (correlation_id, command_type)
    )`,
}

// ApplySchema brings one shard's store up to the current schema.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
