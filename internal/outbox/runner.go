package outbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner drives one processor per shard on its own ticker, so a slow or
// failing shard never stalls the others.
type Runner struct {
	procs    []*Processor
	interval time.Duration
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewRunner(procs []*Processor, interval time.Duration, log *zap.Logger) *Runner {
	return &Runner{procs: procs, interval: interval, log: log}
}

// Start launches the per-shard loops. They stop when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	for _, p := range r.procs {
		r.wg.Add(1)
		go func(p *Processor) {
			defer r.wg.Done()
			r.loop(ctx, p)
		}(p)
	}
}

// Wait blocks until every loop has exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, p *Processor) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("outbox cycle failed", zap.Int("shard", p.shard), zap.Error(err))
			}
		}
	}
}
