package repository

import (
	"context"

	"stockflow/internal/domain/command"
)

type ledgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Seen(ctx context.Context, correlationID, commandType string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM processed_commands
            WHERE correlation_id = $1 AND command_type = $2
        )
    `, correlationID, commandType).Scan(&exists)
	return exists, err
}

func (r *ledgerRepository) Record(ctx context.Context, row command.ProcessedCommand) error {
	_, err := r.db.Exec(ctx, `
        INSERT INTO processed_commands (correlation_id, command_type, processed_at)
        VALUES ($1, $2, $3)
    `, row.CorrelationID, row.CommandType, row.ProcessedAt)
	return err
}
