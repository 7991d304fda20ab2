// Process table collector. Enumerates every process, counts states and
// produces the rows the aggregator ranks into top lists.
package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/Guliveer/hostpulse/internal/models"
)

// normalizedStatuses maps raw gopsutil status strings to a consistent set of
// values used across all platforms.
var normalizedStatuses = map[string]string{
	"running":               "running",
	"sleeping":              "sleeping",
	"idle":                  "idle",
	"stopped":               "stopped",
	"stop":                  "stopped",
	"zombie":                "zombie",
	"wait":                  "sleeping",
	"lock":                  "sleeping",
	"blocked":               "sleeping",
	"sleep":                 "sleeping",
	"disk-sleep":            "sleeping",
	"tracing-stop":          "stopped",
	"dead":                  "zombie",
	"wake-kill":             "sleeping",
	"waking":                "running",
	"parked":                "idle",
	"idle-interrupt":        "idle",
	"suspended":             "stopped",
	"uninterruptible-sleep": "sleeping",
}

// normalizeStatus maps a raw gopsutil status string to a consistent value.
// If the status is empty it infers one from the process's CPU usage:
// CPU > 0 → "running", otherwise "idle".
func normalizeStatus(raw string, cpuPct float64) string {
	if raw != "" {
		key := strings.ToLower(strings.TrimSpace(raw))
		if mapped, ok := normalizedStatuses[key]; ok {
			return mapped
		}
		return key
	}

	// Empty status is common on Windows.
	if cpuPct > 0 {
		return "running"
	}
	return "idle"
}

// ProcessTable is the raw process probe output: every readable process and
// the state census.
type ProcessTable struct {
	Rows     []models.ProcessInfo
	Running  uint32
	Sleeping uint32
	Zombie   uint32
}

// Add counts a process in the given normalized state.
func (t *ProcessTable) Add(row models.ProcessInfo, status string) {
	t.Rows = append(t.Rows, row)
	switch status {
	case "running":
		t.Running++
	case "sleeping":
		t.Sleeping++
	case "zombie":
		t.Zombie++
	}
}

// ProcessCollector collects the process table. It keeps one gopsutil handle
// per PID across calls so CPU usage is measured over the sampling interval.
type ProcessCollector struct {
	handles map[int32]*process.Process
	sem     chan struct{}
	logger  *zap.Logger
}

// NewProcessCollector creates a new process collector.
func NewProcessCollector(logger *zap.Logger) *ProcessCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessCollector{
		handles: make(map[int32]*process.Process),
		sem:     make(chan struct{}, 1),
		logger:  logger,
	}
}

// Name returns the collector identifier.
func (c *ProcessCollector) Name() string { return ProbeProcesses }

// Collect enumerates processes. Individual process errors are skipped so a
// process exiting mid-scan does not fail the whole collection.
func (c *ProcessCollector) Collect(ctx context.Context) (interface{}, error) {
	// An abandoned previous run may still own the handle cache.
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pids: %w", err)
	}

	table := ProcessTable{Rows: make([]models.ProcessInfo, 0, len(pids))}
	seen := make(map[int32]struct{}, len(pids))

	for _, pid := range pids {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p, ok := c.handles[pid]
		if !ok {
			p, err = process.NewProcessWithContext(ctx, pid)
			if err != nil {
				continue
			}
			c.handles[pid] = p
		}
		seen[pid] = struct{}{}

		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		user, _ := p.UsernameWithContext(ctx)
		cpuPct, _ := p.PercentWithContext(ctx, 0)

		var memMB float64
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			memMB = float64(mi.RSS) / (1024 * 1024)
		}

		rawStatus := ""
		if status, err := p.StatusWithContext(ctx); err == nil && len(status) > 0 {
			rawStatus = status[0]
		}

		table.Add(models.ProcessInfo{
			PID:        pid,
			Name:       name,
			User:       user,
			CPUUsage:   cpuPct,
			MemUsageMB: memMB,
		}, normalizeStatus(rawStatus, cpuPct))
	}

	for pid := range c.handles {
		if _, ok := seen[pid]; !ok {
			delete(c.handles, pid)
		}
	}

	return table, nil
}

// IsAvailable returns true because process listing is available on all platforms.
func (c *ProcessCollector) IsAvailable() bool { return true }
