package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stockflow/config"
	"stockflow/internal/repository"
	"stockflow/pkg/database"
	"stockflow/pkg/logger"
)

// Applies the schema to every shard. Safe to run repeatedly; all statements
// are idempotent.
func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	log := l.Logger
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pools, err := database.ConnectShards(ctx, cfg.ShardDSNs)
	if err != nil {
		log.Fatal("connect shards", zap.Error(err))
	}
	defer database.CloseAll(pools)

	for shard, pool := range pools {
		if err := repository.ApplySchema(ctx, pool); err != nil {
			log.Fatal("apply schema", zap.Int("shard", shard), zap.Error(err))
		}
		log.Info("schema applied", zap.Int("shard", shard))
	}
}
