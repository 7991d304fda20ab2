// Package collector defines the Collector interface and the probes that
// sample raw host metrics for the snapshot aggregator.
package collector

import "context"

// Probe names. The aggregator looks results up by these keys.
const (
	ProbeCPU       = "cpu"
	ProbeMemory    = "memory"
	ProbeProcesses = "processes"
	ProbeNetwork   = "network"
	ProbeStorage   = "storage"
	ProbeSensors   = "sensors"
	ProbeSecurity  = "security"
	ProbeHealth    = "health"
)

// Collector is the interface that all metric collectors must implement.
// Each collector gathers a specific type of system metric.
type Collector interface {
	// Name returns the unique identifier for this collector.
	Name() string

	// Collect gathers the metric data and returns it.
	// The context carries the per-probe deadline; a collector that ignores
	// it is abandoned by the registry once the deadline passes.
	Collect(ctx context.Context) (interface{}, error)

	// IsAvailable checks if this collector can run on the current platform.
	// Collectors that return false will not be registered.
	IsAvailable() bool
}
