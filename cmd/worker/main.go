package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"stockflow/config"
	"stockflow/internal/commands"
	"stockflow/internal/consumers"
	"stockflow/internal/events"
	"stockflow/internal/outbox"
	"stockflow/internal/redis"
	"stockflow/internal/repository"
	"stockflow/internal/scheduler"
	"stockflow/internal/services"
	"stockflow/internal/sharding"
	"stockflow/internal/uow"
	"stockflow/pkg/database"
	"stockflow/pkg/logger"
)

const concurrencyRetryAttempts = 3

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	log := l.Logger
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pools, err := database.ConnectShards(ctx, cfg.ShardDSNs)
	if err != nil {
		log.Fatal("connect shards", zap.Error(err))
	}
	defer database.CloseAll(pools)

	resolver := sharding.NewResolver(cfg.ShardCount)
	factory, err := uow.NewFactory(pools, resolver)
	if err != nil {
		log.Fatal("build session factory", zap.Error(err))
	}

	nc, js, err := events.ConnectJetStream(cfg.NatsURL, 30*time.Second)
	if err != nil {
		log.Fatal("connect nats", zap.Error(err))
	}
	defer nc.Drain()
	bus := events.NewNatsBus(js, "stockflow-worker", log)

	rdb, err := redis.NewClient(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal("connect redis", zap.Error(err))
	}
	defer rdb.Close()

	cmdBus := commands.NewBus(factory, log,
		commands.ConcurrencyRetry(concurrencyRetryAttempts, log),
		commands.ExecutionLogging(l),
	)
	services.NewStockService(log).Register(cmdBus)
	services.NewOrderService(log).Register(cmdBus)
	services.NewReservationService(l).Register(cmdBus)

	sched := scheduler.NewRedisScheduler(rdb, cfg.SchedulerInterval, log)
	exec := services.NewExecutor(cmdBus, bus, sched, cfg.ExecutorMaxRetries, log)
	go sched.Run(ctx, exec)

	consumers.Register(bus, exec, log)
	if err := bus.Start(events.TopicOrders, events.TopicInventory); err != nil {
		log.Fatal("start bus consumers", zap.Error(err))
	}
	defer bus.Stop()

	procs := make([]*outbox.Processor, len(pools))
	for shard, pool := range pools {
		procs[shard] = outbox.NewProcessor(
			repository.NewPgOutboxStore(pool), bus,
			shard, cfg.OutboxBatchSize, cfg.OutboxMaxRetryWait, log)
	}
	runner := outbox.NewRunner(procs, cfg.OutboxPollInterval, log)
	runner.Start(ctx)

	metricsSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: promhttp.Handler()}
	go func() {
		log.Info("metrics listening", zap.String("port", cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server", zap.Error(err))
		}
	}()

	log.Info("worker started",
		zap.Int("shards", cfg.ShardCount),
		zap.String("nats_url", cfg.NatsURL))

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	runner.Wait()
}
