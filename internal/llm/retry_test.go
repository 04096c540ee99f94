package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryTransientUntilSuccess(t *testing.T) {
	p := DefaultRetryPolicy(time.Hour, nil, nil)
	var waits []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	calls := 0
	err := p.Do(context.Background(), "complete", func() error {
		calls++
		if calls < 3 {
			return &TransientError{Kind: "rate_limit", Err: errors.New("429")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{10 * time.Second, 30 * time.Second}, waits)
}

func TestRetryPermanentErrorNotRetried(t *testing.T) {
	p := DefaultRetryPolicy(time.Hour, nil, nil)
	p.sleep = func(context.Context, time.Duration) error {
		t.Fatal("should not sleep for a permanent error")
		return nil
	}

	calls := 0
	permanent := errors.New("invalid api key")
	err := p.Do(context.Background(), "complete", func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryBudgetExhaustion(t *testing.T) {
	p := DefaultRetryPolicy(time.Minute, nil, nil)
	now := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	p.sleep = func(_ context.Context, d time.Duration) error {
		now = now.Add(d)
		return nil
	}

	calls := 0
	err := p.Do(context.Background(), "complete", func() error {
		calls++
		return &TransientError{Kind: "server_error", Err: errors.New("503")}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget exhausted")
	// 10s then 30s fit in the minute budget; the 90s wait does not.
	assert.Equal(t, 3, calls)
}

func TestRetryWaitCappedAtOneHour(t *testing.T) {
	p := DefaultRetryPolicy(24*time.Hour, nil, nil)
	var waits []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	calls := 0
	_ = p.Do(context.Background(), "complete", func() error {
		calls++
		if calls <= 8 {
			return &TransientError{Kind: "timeout", Err: errors.New("deadline")}
		}
		return nil
	})

	require.NotEmpty(t, waits)
	for _, w := range waits {
		assert.LessOrEqual(t, w, time.Hour)
	}
	assert.Equal(t, time.Hour, waits[len(waits)-1])
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	p := DefaultRetryPolicy(time.Hour, nil, nil)
	p.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, "complete", func() error {
		return &TransientError{Kind: "connection", Err: errors.New("reset")}
	})
	assert.ErrorIs(t, err, context.Canceled)
}
