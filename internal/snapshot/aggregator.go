// Package snapshot assembles machine reports. Each tick it fans out to every
// probe, replaces failed sections with sentinels, derives rates from the
// previous successful sample of each domain and ranks the process table.
package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Guliveer/hostpulse/internal/collector"
	"github.com/Guliveer/hostpulse/internal/models"
)

// memoryTolerance is the overage of used+available over total accepted
// before it is worth a debug line.
const memoryTolerance = 64 << 20

// warnInterval limits repeated failure warnings to one per probe.
const warnInterval = time.Minute

// Prober runs every probe for one tick.
type Prober interface {
	CollectAll(ctx context.Context) collector.Results
}

// MetadataSource provides host metadata.
type MetadataSource interface {
	Get(ctx context.Context) (models.Metadata, error)
}

// Options configures an Aggregator.
type Options struct {
	TopN   int
	Now    func() time.Time
	Logger *zap.Logger
}

// Aggregator turns probe results into MachineReports. It is safe for
// concurrent use, though the scheduler calls it from a single goroutine.
type Aggregator struct {
	probes Prober
	meta   MetadataSource
	topN   int
	now    func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	lastTS  int64
	cpu     previous[collector.CPUSample]
	memory  previous[collector.MemorySample]
	network previous[collector.NetworkSample]
	storage previous[collector.StorageSample]
	warn    map[string]*rate.Sometimes

	failures atomic.Uint64
}

// New creates an aggregator over the given probes and metadata source.
func New(probes Prober, meta MetadataSource, opts Options) *Aggregator {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopN
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Aggregator{
		probes: probes,
		meta:   meta,
		topN:   opts.TopN,
		now:    opts.Now,
		logger: opts.Logger,
		warn:   make(map[string]*rate.Sometimes),
	}
}

// Failures returns the number of probe failures absorbed so far.
func (a *Aggregator) Failures() uint64 {
	return a.failures.Load()
}

// Collect produces the report for one tick. It never fails: every probe
// failure degrades its own section only.
func (a *Aggregator) Collect(ctx context.Context) *models.MachineReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	results := a.probes.CollectAll(ctx)

	report := &models.MachineReport{
		Timestamp: a.nextTimestamp(now),
	}

	if md, err := a.meta.Get(ctx); err == nil {
		report.Metadata = md
	} else {
		// Metadata failures are sticky, so every affected report is flagged.
		report.Metadata = models.EmptyMetadata()
		a.failures.Add(1)
		degradedSections.WithLabelValues("metadata").Inc()
		a.logger.Warn("Host metadata unavailable, reporting empty metadata",
			zap.Uint64("total_failures", a.failures.Load()),
			zap.Error(err))
	}

	report.CPU = a.cpuSection(now, results)
	report.Memory = a.memorySection(now, results)
	report.Processes = a.processSection(results)
	report.Network = a.networkSection(now, results)
	report.Storage = a.storageSection(now, results)
	report.Sensors = sectionOf(a, results, collector.ProbeSensors, models.EmptySensors())
	report.Security = sectionOf(a, results, collector.ProbeSecurity, models.SecurityStats{})
	report.Health = sectionOf(a, results, collector.ProbeHealth, models.SystemHealth{})

	reportsAssembled.Inc()
	return report
}

// nextTimestamp returns now in Unix ms, strictly greater than the previous.
func (a *Aggregator) nextTimestamp(now time.Time) int64 {
	ts := now.UnixMilli()
	if ts <= a.lastTS {
		ts = a.lastTS + 1
	}
	a.lastTS = ts
	return ts
}

// lookup returns the typed result of a probe. A missing result for a probe
// that reported an error, or a result of the wrong type, counts as failure.
func lookup[T any](a *Aggregator, results collector.Results, name string) (T, bool) {
	var zero T
	if err, failed := results.Errors[name]; failed {
		a.fail(name, err)
		return zero, false
	}
	data, ok := results.Data[name]
	if !ok {
		// Probe not registered on this platform.
		return zero, false
	}
	v, ok := data.(T)
	if !ok {
		a.fail(name, errUnexpectedType{name: name})
		return zero, false
	}
	return v, true
}

// sectionOf returns a probe result that needs no post-processing.
func sectionOf[T any](a *Aggregator, results collector.Results, name string, sentinel T) T {
	if v, ok := lookup[T](a, results, name); ok {
		return v
	}
	return sentinel
}

type errUnexpectedType struct{ name string }

func (e errUnexpectedType) Error() string {
	return "unexpected result type from probe " + e.name
}

// fail counts a probe failure. Every failure is logged at debug; the warning
// for a given probe is throttled.
func (a *Aggregator) fail(name string, err error) {
	a.failures.Add(1)
	degradedSections.WithLabelValues(name).Inc()
	a.logger.Debug("Probe failed, using sentinel values",
		zap.String("probe", name), zap.Error(err))

	s, ok := a.warn[name]
	if !ok {
		s = &rate.Sometimes{Interval: warnInterval}
		a.warn[name] = s
	}
	s.Do(func() {
		a.logger.Warn("Probe failing, section degraded",
			zap.String("probe", name),
			zap.Uint64("total_failures", a.failures.Load()),
			zap.Error(err))
	})
}

func (a *Aggregator) cpuSection(now time.Time, results collector.Results) models.CPUStats {
	s, ok := lookup[collector.CPUSample](a, results, collector.ProbeCPU)
	if !ok {
		return models.EmptyCPU()
	}

	cores := s.Cores
	if cores <= 0 {
		cores = len(s.ThreadsUsage)
	}
	out := models.CPUStats{
		UsageTotalPct:  clampPct(s.UsageTotalPct),
		ThreadsUsage:   resize(s.ThreadsUsage, cores),
		ThreadsFreqMHz: resize(s.ThreadsFreqMHz, cores),
		IdleTime:       uint64(s.IdleSeconds),
		VoltageVcore:   s.VoltageVcore,
	}
	for i, v := range out.ThreadsUsage {
		out.ThreadsUsage[i] = clampPct(v)
	}
	for i, v := range s.LoadAvg {
		if v > 0 {
			out.LoadAvg[i] = v
		}
	}

	if elapsed := a.cpu.elapsed(now); elapsed > 0 {
		p := a.cpu.value
		out.InterruptsSec = perSecond(p.Interrupts, s.Interrupts, elapsed)
		out.ContextSwitchesSec = perSecond(p.ContextSwitches, s.ContextSwitches, elapsed)
		if dTotal := s.TotalSeconds - p.TotalSeconds; dTotal > 0 {
			out.IOWaitTime = clampPct((s.IOWaitSeconds - p.IOWaitSeconds) / dTotal * 100)
		}
	}
	a.cpu.store(now, s)
	return out
}

func (a *Aggregator) memorySection(now time.Time, results collector.Results) models.MemoryStats {
	s, ok := lookup[collector.MemorySample](a, results, collector.ProbeMemory)
	if !ok {
		return models.MemoryStats{}
	}

	out := s.Stats
	if out.SwapUsedBytes > out.SwapTotalBytes {
		out.SwapUsedBytes = out.SwapTotalBytes
	}
	if out.UsedBytes+out.AvailableBytes > out.TotalBytes+memoryTolerance {
		a.logger.Debug("Memory accounting overage",
			zap.Uint64("used", out.UsedBytes),
			zap.Uint64("available", out.AvailableBytes),
			zap.Uint64("total", out.TotalBytes))
	}

	if elapsed := a.memory.elapsed(now); elapsed > 0 {
		p := a.memory.value
		out.PageFaultsMinorSec = perSecond(p.MinorFaults, s.MinorFaults, elapsed)
		out.PageFaultsMajorSec = perSecond(p.MajorFaults, s.MajorFaults, elapsed)
	}
	a.memory.store(now, s)
	return out
}

func (a *Aggregator) processSection(results collector.Results) models.ProcessStats {
	t, ok := lookup[collector.ProcessTable](a, results, collector.ProbeProcesses)
	if !ok {
		return models.EmptyProcesses()
	}

	total := uint32(len(t.Rows))
	if counted := t.Running + t.Sleeping + t.Zombie; counted > total {
		total = counted
	}
	return models.ProcessStats{
		TotalCount:    total,
		RunningCount:  t.Running,
		SleepingCount: t.Sleeping,
		ZombieCount:   t.Zombie,
		TopCPU:        Rank(t.Rows, a.topN, ByCPU),
		TopMemory:     Rank(t.Rows, a.topN, ByMemory),
	}
}

func (a *Aggregator) networkSection(now time.Time, results collector.Results) models.NetworkStats {
	s, ok := lookup[collector.NetworkSample](a, results, collector.ProbeNetwork)
	if !ok {
		return models.EmptyNetwork()
	}

	out := models.NetworkStats{
		AggregateRxPackets:     s.RxPackets,
		AggregateTxPackets:     s.TxPackets,
		TotalErrors:            s.Errors,
		TotalDrops:             s.Drops,
		InterfaceIPs:           s.InterfaceIPs,
		TCPActiveConnections:   s.TCPActive,
		TCPTimeWaitConnections: s.TCPTimeWait,
		ListeningPorts:         s.ListeningPorts,
	}
	if out.InterfaceIPs == nil {
		out.InterfaceIPs = map[string][]string{}
	}
	if out.ListeningPorts == nil {
		out.ListeningPorts = []uint16{}
	}

	if elapsed := a.network.elapsed(now); elapsed > 0 {
		p := a.network.value
		out.AggregateRxBytesSec = perSecond(p.RxBytes, s.RxBytes, elapsed)
		out.AggregateTxBytesSec = perSecond(p.TxBytes, s.TxBytes, elapsed)
	}
	a.network.store(now, s)
	return out
}

func (a *Aggregator) storageSection(now time.Time, results collector.Results) models.StorageStats {
	s, ok := lookup[collector.StorageSample](a, results, collector.ProbeStorage)
	if !ok {
		return models.EmptyStorage()
	}

	out := models.StorageStats{Partitions: s.Partitions}
	if out.Partitions == nil {
		out.Partitions = []models.PartitionInfo{}
	}

	if elapsed := a.storage.elapsed(now); elapsed > 0 {
		p := a.storage.value
		out.TotalReadBytesSec = perSecond(p.ReadBytes, s.ReadBytes, elapsed)
		out.TotalWriteBytesSec = perSecond(p.WriteBytes, s.WriteBytes, elapsed)
		out.TotalReadIOPS = perSecond(p.ReadOps, s.ReadOps, elapsed)
		out.TotalWriteIOPS = perSecond(p.WriteOps, s.WriteOps, elapsed)

		dReads, okR := delta(p.ReadOps, s.ReadOps)
		dWrites, okW := delta(p.WriteOps, s.WriteOps)
		dTime, okT := delta(p.IOTimeMs, s.IOTimeMs)
		if okR && okW && okT && dReads+dWrites > 0 {
			out.IOLatencyMs = float64(dTime) / float64(dReads+dWrites)
		}
	}
	a.storage.store(now, s)
	return out
}
