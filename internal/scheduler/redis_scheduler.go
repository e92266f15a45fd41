// Package scheduler implements the durable delayed-retry queue on a Redis
// sorted set. Members are serialized commands scored by their run-at time;
// a worker survives restarts without losing parked retries.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"stockflow/internal/commands"
)

const defaultKey = "stockflow:scheduled_commands"

// CommandRunner resumes a parked command with its attempt counter.
type CommandRunner interface {
	Resume(ctx context.Context, cmd commands.Command, attempt int) error
}

// task is the wire form of a parked command.
type task struct {
	ID          uuid.UUID       `json:"id"`
	CommandType string          `json:"command_type"`
	Attempt     int             `json:"attempt"`
	Command     json.RawMessage `json:"command"`
}

// RedisScheduler parks commands in a ZSET keyed by run-at time. Due tasks
// are executed before removal, so a crash between the two redelivers the
// task; every parked command is idempotent, which makes that safe.
type RedisScheduler struct {
	rdb      *redis.Client
	key      string
	interval time.Duration
	decoders map[string]func(json.RawMessage) (commands.Command, error)
	log      *zap.Logger
}

func NewRedisScheduler(rdb *redis.Client, interval time.Duration, log *zap.Logger) *RedisScheduler {
	s := &RedisScheduler{
		rdb:      rdb,
		key:      defaultKey,
		interval: interval,
		decoders: make(map[string]func(json.RawMessage) (commands.Command, error)),
		log:      log,
	}
	registerDecoder(s, commands.CreateStockItem{})
	registerDecoder(s, commands.ReserveStock{})
	registerDecoder(s, commands.ReleaseStock{})
	registerDecoder(s, commands.CreateOrder{})
	registerDecoder(s, commands.CancelOrder{})
	registerDecoder(s, commands.ShipOrder{})
	registerDecoder(s, commands.ReportItemLost{})
	registerDecoder(s, commands.UpdateReservedStock{})
	registerDecoder(s, commands.MarkStockReservationFailed{})
	registerDecoder(s, commands.MarkStockReleased{})
	return s
}

func registerDecoder[C commands.Command](s *RedisScheduler, zero C) {
	s.decoders[zero.CommandType()] = func(raw json.RawMessage) (commands.Command, error) {
		var c C
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return c, nil
	}
}

// ScheduleCommand parks cmd to run no earlier than runAt.
func (s *RedisScheduler) ScheduleCommand(ctx context.Context, cmd commands.Command, attempt int, runAt time.Time) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cmd.CommandType(), err)
	}
	member, err := json.Marshal(task{
		ID:          uuid.New(),
		CommandType: cmd.CommandType(),
		Attempt:     attempt,
		Command:     body,
	})
	if err != nil {
		return err
	}
	err = s.rdb.ZAdd(ctx, s.key, redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd scheduled command: %w", err)
	}
	return nil
}

// Run polls for due tasks until ctx is cancelled.
func (s *RedisScheduler) Run(ctx context.Context, runner CommandRunner) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.drainDue(ctx, runner); err != nil && ctx.Err() == nil {
				s.log.Error("scheduler drain failed", zap.Error(err))
			}
		}
	}
}

func (s *RedisScheduler) drainDue(ctx context.Context, runner CommandRunner) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := s.rdb.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil {
		return fmt.Errorf("zrangebyscore: %w", err)
	}
	for _, member := range members {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.runTask(ctx, runner, member); err != nil {
			// Still parked: the member stays due and the next drain picks
			// it up again. Ledger idempotency makes the re-run safe.
			continue
		}
		// Removed only after execution: a crash in between redelivers.
		if err := s.rdb.ZRem(ctx, s.key, member).Err(); err != nil {
			return fmt.Errorf("zrem scheduled command: %w", err)
		}
	}
	return nil
}

// runTask executes one parked command. A nil return means the member may be
// removed: either the command ran (the runner absorbed any terminal outcome)
// or the member is garbage that retrying cannot fix. A Resume failure means
// neither a retry nor a failure event got out, so the member must stay.
func (s *RedisScheduler) runTask(ctx context.Context, runner CommandRunner, member string) error {
	var tk task
	if err := json.Unmarshal([]byte(member), &tk); err != nil {
		s.log.Error("dropping undecodable scheduled task", zap.Error(err))
		return nil
	}
	decode, ok := s.decoders[tk.CommandType]
	if !ok {
		s.log.Error("dropping scheduled task with unknown command type",
			zap.String("command_type", tk.CommandType))
		return nil
	}
	cmd, err := decode(tk.Command)
	if err != nil {
		s.log.Error("dropping undecodable scheduled command",
			zap.String("command_type", tk.CommandType),
			zap.Error(err))
		return nil
	}
	if err := runner.Resume(ctx, cmd, tk.Attempt); err != nil {
		s.log.Error("scheduled command failed to resume, keeping it parked",
			zap.String("command_type", tk.CommandType),
			zap.Int("attempt", tk.Attempt),
			zap.Error(err))
		return err
	}
	return nil
}
