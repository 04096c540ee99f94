package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	historyKey = "notifications:recent"
	historyMax = 2000
)

// History is the notification ring buffer: newest first, pruned to the last
// historyMax entries.
type History struct {
	rdb *redis.Client
}

func NewHistory(rdb *redis.Client) *History {
	return &History{rdb: rdb}
}

// Add prepends one serialized event and prunes the tail.
func (h *History) Add(ctx context.Context, payload []byte) error {
	pipe := h.rdb.TxPipeline()
	pipe.LPush(ctx, historyKey, payload)
	pipe.LTrim(ctx, historyKey, 0, historyMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("realtime: persist notification: %w", err)
	}
	return nil
}

// Recent returns up to n events, newest first.
func (h *History) Recent(ctx context.Context, n int64) ([]string, error) {
	if n <= 0 || n > historyMax {
		n = historyMax
	}
	out, err := h.rdb.LRange(ctx, historyKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("realtime: read notifications: %w", err)
	}
	return out, nil
}
