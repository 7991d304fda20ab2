// CPU collector. Gathers utilisation, frequency and load from gopsutil and
// the cumulative counters the aggregator turns into rates.
package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/load"
	"go.uber.org/zap"
)

// CPUSample is the raw CPU probe output. Counter fields are cumulative since
// boot; the aggregator derives per-second values from consecutive samples.
type CPUSample struct {
	UsageTotalPct  float64
	ThreadsUsage   []float64
	ThreadsFreqMHz []float64
	Cores          int
	LoadAvg        [3]float64
	VoltageVcore   float64

	Interrupts      uint64
	ContextSwitches uint64
	IOWaitSeconds   float64
	IdleSeconds     float64
	TotalSeconds    float64
}

// CPUCollector collects CPU usage metrics.
type CPUCollector struct {
	root   string
	logger *zap.Logger
}

// NewCPUCollector creates a new CPU collector.
func NewCPUCollector(logger *zap.Logger) *CPUCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CPUCollector{logger: logger}
}

// Name returns the collector identifier.
func (c *CPUCollector) Name() string { return ProbeCPU }

// Collect samples CPU state without blocking: utilisation is measured since
// the previous call (gopsutil keeps the last times internally).
func (c *CPUCollector) Collect(ctx context.Context) (interface{}, error) {
	overall, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("cpu percent: %w", err)
	}
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("cpu times: %w", err)
	}

	s := CPUSample{}
	if len(overall) > 0 {
		s.UsageTotalPct = overall[0]
	}
	if len(times) > 0 {
		t := times[0]
		s.IOWaitSeconds = t.Iowait
		s.IdleSeconds = t.Idle
		s.TotalSeconds = t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	}

	// Per-core details are non-fatal.
	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		s.Cores = cores
	}
	if perCore, err := cpu.PercentWithContext(ctx, 0, true); err == nil {
		s.ThreadsUsage = perCore
		if s.Cores == 0 {
			s.Cores = len(perCore)
		}
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil {
		s.ThreadsFreqMHz = threadFrequencies(infos, s.Cores)
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		s.LoadAvg = [3]float64{avg.Load1, avg.Load5, avg.Load15}
	}
	if misc, err := load.MiscWithContext(ctx); err == nil && misc.Ctxt > 0 {
		s.ContextSwitches = uint64(misc.Ctxt)
	}

	if n, err := readInterrupts(c.root); err == nil {
		s.Interrupts = n
	} else {
		c.logger.Debug("Interrupt counter unavailable", zap.Error(err))
	}
	s.VoltageVcore = hwmonVcore(c.root)

	return s, nil
}

// IsAvailable returns true because CPU metrics are available on all platforms.
func (c *CPUCollector) IsAvailable() bool { return true }

// threadFrequencies maps gopsutil CPU info to one frequency per logical CPU.
// Linux reports one entry per logical CPU; other platforms report one entry
// per package, which is replicated across its threads.
func threadFrequencies(infos []cpu.InfoStat, cores int) []float64 {
	if len(infos) == 0 {
		return []float64{}
	}
	if len(infos) >= cores {
		out := make([]float64, len(infos))
		for i, info := range infos {
			out[i] = info.Mhz
		}
		return out
	}
	out := make([]float64, 0, cores)
	for i := 0; i < cores; i++ {
		out = append(out, infos[i*len(infos)/cores].Mhz)
	}
	return out
}
