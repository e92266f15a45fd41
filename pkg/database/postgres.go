package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMinConns        = 2
	defaultMaxConns        = 20
	defaultMaxConnLifetime = 30 * time.Minute
	defaultMaxConnIdleTime = 5 * time.Minute
)

// ConnectShards opens one connection pool per shard DSN, in shard order.
// Shard index i owns dsns[i]; the assignment never changes at runtime.
func ConnectShards(ctx context.Context, dsns []string) ([]*pgxpool.Pool, error) {
	pools := make([]*pgxpool.Pool, 0, len(dsns))
	for i, dsn := range dsns {
		pool, err := connect(ctx, dsn)
		if err != nil {
			for _, p := range pools {
				p.Close()
			}
			return nil, fmt.Errorf("shard %d: %w", i, err)
		}
		pools = append(pools, pool)
	}
	return pools, nil
}

func connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.MinConns = defaultMinConns
	cfg.MaxConns = defaultMaxConns
	cfg.MaxConnLifetime = defaultMaxConnLifetime
	cfg.MaxConnIdleTime = defaultMaxConnIdleTime
	return pgxpool.NewWithConfig(ctx, cfg)
}

// CloseAll closes every shard pool.
func CloseAll(pools []*pgxpool.Pool) {
	for _, p := range pools {
		if p != nil {
			p.Close()
		}
	}
}
