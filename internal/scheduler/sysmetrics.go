package scheduler

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// procSampler reads process CPU and memory from /proc. On platforms without
// procfs the memory figure falls back to the Go runtime and CPU reads zero.
type procSampler struct {
	lastCPUTicks uint64
	lastSample   time.Time
	clockTicks   float64
	pageSize     float64
}

func newProcSampler() *procSampler {
	return &procSampler{
		clockTicks: 100, // USER_HZ on every supported kernel
		pageSize:   float64(os.Getpagesize()),
	}
}

// Sample returns CPU utilization percent since the previous call and the
// resident set size in bytes.
func (s *procSampler) Sample() (cpuPercent, rssBytes float64) {
	rssBytes = s.readRSS()
	now := time.Now()

	ticks, ok := s.readCPUTicks()
	if !ok {
		return 0, rssBytes
	}
	if !s.lastSample.IsZero() && ticks >= s.lastCPUTicks {
		elapsed := now.Sub(s.lastSample).Seconds()
		if elapsed > 0 {
			used := float64(ticks-s.lastCPUTicks) / s.clockTicks
			cpuPercent = used / elapsed * 100
		}
	}
	s.lastCPUTicks = ticks
	s.lastSample = now
	return cpuPercent, rssBytes
}

// readCPUTicks sums utime and stime from /proc/self/stat.
func (s *procSampler) readCPUTicks() (uint64, bool) {
	data, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return 0, false
	}
	// The comm field is parenthesized and may contain spaces; cut past it.
	raw := string(data)
	idx := strings.LastIndexByte(raw, ')')
	if idx < 0 || idx+2 > len(raw) {
		return 0, false
	}
	fields := strings.Fields(raw[idx+2:])
	// After comm: state is field 0, utime is field 11, stime is field 12.
	if len(fields) < 13 {
		return 0, false
	}
	utime, err1 := strconv.ParseUint(fields[11], 10, 64)
	stime, err2 := strconv.ParseUint(fields[12], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return utime + stime, true
}

func (s *procSampler) readRSS() float64 {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return float64(m.Sys)
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0
	}
	pages, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0
	}
	return pages * s.pageSize
}
