package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dahshury/clinic-whatsapp-bot/internal/observability/metrics"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

// Store is the durable queue the pool drains.
type Store interface {
	ClaimOne(ctx context.Context, staleAfter time.Duration) (store.QueueItem, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
	Requeue(ctx context.Context, id int64) error
	Depth(ctx context.Context) (length int, oldestAge float64, err error)
}

// Processor handles one claimed item.
type Processor interface {
	Process(ctx context.Context, item store.QueueItem) error
}

// Config tunes the worker pool.
type Config struct {
	Workers      int
	PollInterval time.Duration
	StaleTTL     time.Duration
	MaxAttempts  int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.StaleTTL <= 0 {
		c.StaleTTL = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	return c
}

// Pool runs a fixed set of workers over the durable queue. Each worker
// claims the oldest workable item, processes it, and finalizes it; claims
// lease the row so a crashed worker's items return after StaleTTL.
type Pool struct {
	store     Store
	processor Processor
	cfg       Config
	metrics   *metrics.Metrics
	logger    *logging.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewPool(s Store, proc Processor, cfg Config, m *metrics.Metrics, logger *logging.Logger) *Pool {
	if m == nil {
		m = metrics.NewForTest()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pool{
		store:     s,
		processor: proc,
		cfg:       cfg.withDefaults(),
		metrics:   m,
		logger:    logger,
	}
}

// Start launches the workers and the depth gauge updater.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			p.run(ctx, worker)
		}(i)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pollDepth(ctx)
	}()
}

// Stop signals the workers and waits for in-flight items to finish.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := p.store.ClaimOne(ctx, p.cfg.StaleTTL)
		if errors.Is(err, store.ErrNotFound) {
			if !sleep(ctx, p.cfg.PollInterval) {
				return
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.metrics.QueueClaimFailures.Inc()
			p.logger.Error("queue claim failed", "worker", worker, "error", err)
			if !sleep(ctx, p.cfg.PollInterval) {
				return
			}
			continue
		}

		p.metrics.QueueClaimed.Inc()
		p.handle(ctx, worker, item)
	}
}

func (p *Pool) handle(ctx context.Context, worker int, item store.QueueItem) {
	err := p.processor.Process(ctx, item)

	// Finalization must not be lost to the shutdown signal.
	finCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err == nil {
		p.metrics.QueueProcessed.Inc()
		if merr := p.store.MarkDone(finCtx, item.ID); merr != nil {
			p.logger.Error("queue mark done failed", "id", item.ID, "error", merr)
		}
		return
	}

	if errors.Is(err, context.Canceled) {
		// Interrupted by shutdown, not a real failure; hand the item back.
		if merr := p.store.Requeue(finCtx, item.ID); merr != nil {
			p.logger.Error("queue requeue on shutdown failed", "id", item.ID, "error", merr)
		}
		return
	}

	p.metrics.QueueProcessingErrors.Inc()
	p.logger.Error("queue item failed", "worker", worker, "id", item.ID, "attempt", item.Attempts, "error", err)

	if item.Attempts >= p.cfg.MaxAttempts {
		if merr := p.store.MarkFailed(finCtx, item.ID); merr != nil {
			p.logger.Error("queue mark failed failed", "id", item.ID, "error", merr)
		}
		return
	}
	if merr := p.store.Requeue(finCtx, item.ID); merr != nil {
		p.logger.Error("queue requeue failed", "id", item.ID, "error", merr)
	}
}

func (p *Pool) pollDepth(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			length, oldest, err := p.store.Depth(ctx)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("queue depth poll failed", "error", err)
				}
				continue
			}
			p.metrics.QueueLength.Set(float64(length))
			p.metrics.QueueOldestAge.Set(oldest)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
