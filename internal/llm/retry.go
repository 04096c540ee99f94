package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/dahshury/clinic-whatsapp-bot/internal/observability/metrics"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

// RetryPolicy retries transient provider failures with exponential backoff
// until a wall-clock budget runs out.
type RetryPolicy struct {
	Min        time.Duration
	Cap        time.Duration
	Multiplier float64
	Budget     time.Duration

	metrics *metrics.Metrics
	logger  *logging.Logger
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy waits 10s, 30s, 90s, ... capped at an hour, giving up
// after budget (3h when zero).
func DefaultRetryPolicy(budget time.Duration, m *metrics.Metrics, logger *logging.Logger) *RetryPolicy {
	if budget <= 0 {
		budget = 3 * time.Hour
	}
	if m == nil {
		m = metrics.NewForTest()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryPolicy{
		Min:        10 * time.Second,
		Cap:        time.Hour,
		Multiplier: 3,
		Budget:     budget,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn, retrying transient errors. function labels the exhaustion
// metric.
func (p *RetryPolicy) Do(ctx context.Context, function string, fn func() error) error {
	deadline := p.now().Add(p.Budget)
	wait := p.Min

	for {
		err := fn()
		if err == nil {
			return nil
		}
		kind := transientKind(err)
		if kind == "" {
			return err
		}

		if p.now().Add(wait).After(deadline) {
			p.metrics.RetryExhausted.WithLabelValues(function, kind).Inc()
			return fmt.Errorf("llm: retry budget exhausted for %s: %w", function, err)
		}

		p.metrics.RetryAttempts.WithLabelValues(kind).Inc()
		p.metrics.RetryLastTimestamp.WithLabelValues(kind).Set(float64(p.now().Unix()))
		p.logger.Warn("retrying provider call", "function", function, "kind", kind, "wait", wait, "error", err)

		if serr := p.sleep(ctx, wait); serr != nil {
			return serr
		}
		wait = time.Duration(float64(wait) * p.Multiplier)
		if wait > p.Cap {
			wait = p.Cap
		}
	}
}
