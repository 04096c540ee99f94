package realtime

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sysCPUKey    = "system:cpu_percent"
	sysMemKey    = "system:memory_bytes"
	sysSampleTTL = 10 * time.Minute
)

// SystemCache shares the scheduler's process sample with the hub, so
// metrics_updated frames carry CPU/RSS without re-reading /proc.
type SystemCache struct {
	rdb *redis.Client
}

func NewSystemCache(rdb *redis.Client) *SystemCache {
	return &SystemCache{rdb: rdb}
}

// Store writes one sample. Samples expire so a dead scheduler does not serve
// stale readings forever.
func (c *SystemCache) Store(ctx context.Context, cpuPercent, memoryBytes float64) error {
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, sysCPUKey, cpuPercent, sysSampleTTL)
	pipe.Set(ctx, sysMemKey, memoryBytes, sysSampleTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("realtime: store system sample: %w", err)
	}
	return nil
}

// Load returns the latest sample, or an error when none is cached.
func (c *SystemCache) Load(ctx context.Context) (cpuPercent, memoryBytes float64, err error) {
	vals, err := c.rdb.MGet(ctx, sysCPUKey, sysMemKey).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("realtime: load system sample: %w", err)
	}
	cpuPercent, ok1 := parseSample(vals[0])
	memoryBytes, ok2 := parseSample(vals[1])
	if !ok1 || !ok2 {
		return 0, 0, fmt.Errorf("realtime: no system sample cached")
	}
	return cpuPercent, memoryBytes, nil
}

func parseSample(v any) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
