// RAM and swap collector. Uses gopsutil for cross-platform memory metrics.
package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/Guliveer/hostpulse/internal/models"
)

// MemorySample is the raw memory probe output. Page fault counters are
// cumulative; the aggregator turns them into rates.
type MemorySample struct {
	Stats       models.MemoryStats
	MinorFaults uint64
	MajorFaults uint64
}

// MemoryCollector collects RAM and swap metrics.
type MemoryCollector struct {
	logger *zap.Logger
}

// NewMemoryCollector creates a new memory collector.
func NewMemoryCollector(logger *zap.Logger) *MemoryCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryCollector{logger: logger}
}

// Name returns the collector identifier.
func (c *MemoryCollector) Name() string { return ProbeMemory }

// Collect gathers virtual memory and swap counters. Swap is optional.
func (c *MemoryCollector) Collect(ctx context.Context) (interface{}, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}

	s := MemorySample{
		Stats: models.MemoryStats{
			TotalBytes:        v.Total,
			UsedBytes:         v.Used,
			AvailableBytes:    v.Available,
			FreeBytes:         v.Free,
			BuffersCacheBytes: v.Buffers + v.Cached,
		},
	}

	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		c.logger.Debug("Swap statistics unavailable", zap.Error(err))
		return s, nil
	}
	s.Stats.SwapTotalBytes = swap.Total
	s.Stats.SwapUsedBytes = swap.Used
	s.MinorFaults = swap.PgFault - swap.PgMajFault
	if swap.PgMajFault > swap.PgFault {
		s.MinorFaults = 0
	}
	s.MajorFaults = swap.PgMajFault
	return s, nil
}

// IsAvailable returns true because memory metrics are available on all platforms.
func (c *MemoryCollector) IsAvailable() bool { return true }
