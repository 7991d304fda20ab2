// System health collector. Reports kernel entropy, clock discipline and
// battery state.
package collector

import (
	"context"

	"go.uber.org/zap"

	"github.com/Guliveer/hostpulse/internal/models"
)

// HealthCollector collects kernel health indicators.
type HealthCollector struct {
	root   string
	logger *zap.Logger
}

// NewHealthCollector creates a new health collector.
func NewHealthCollector(logger *zap.Logger) *HealthCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthCollector{logger: logger}
}

// Name returns the collector identifier.
func (c *HealthCollector) Name() string { return ProbeHealth }

// Collect gathers health indicators. Each is best effort.
func (c *HealthCollector) Collect(ctx context.Context) (interface{}, error) {
	var h models.SystemHealth

	if n, err := readEntropy(c.root); err == nil {
		h.EntropyAvail = n
	} else {
		c.logger.Debug("Entropy pool unavailable", zap.Error(err))
	}
	if offset, synced, err := clockStatus(); err == nil {
		h.NTPOffsetMs = offset
		h.NTPSynced = synced
	} else {
		c.logger.Debug("Clock status unavailable", zap.Error(err))
	}
	h.BatteryStatus = batteryStatus(c.root)

	return h, nil
}

// IsAvailable returns true; unsupported indicators stay at zero.
func (c *HealthCollector) IsAvailable() bool { return true }
