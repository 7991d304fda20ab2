// Hardware sensors collector. Gathers thermal readings from gopsutil host
// sensors, fan speeds from hwmon, and falls back to the platform for GPU
// temperature. The CPU temperature is the hottest matching reading, to
// represent the worst-case thermal state.
package collector

import (
	"context"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/Guliveer/hostpulse/internal/models"
	"github.com/Guliveer/hostpulse/internal/platform"
)

// Sensor name substrings used to identify CPU temperature sensors across platforms.
// Linux:  coretemp_core_0_input, k10temp_tctl_input, acpitz_temp1_input, zenpower_tctl_input
// macOS:  TC0P (CPU proximity), TC0D (CPU die), TCXC (CPU core)
// Windows: CPU Package, CPU Core #0, etc.
var cpuSensorKeys = []string{
	"cpu", "core", "package",
	"tctl", "tdie", "k10temp", "coretemp",
	"tc0p", "tc0d", "tcxc",
	"acpitz", "zenpower",
}

// Sensor name substrings used to identify GPU temperature sensors.
var gpuSensorKeys = []string{
	"gpu", "nvidia", "radeon",
	"tg0p", "tg0d",
	"amdgpu", "nouveau",
}

// Sensor name substrings used to identify drive temperature sensors.
var storageSensorKeys = []string{
	"nvme", "drivetemp", "sata", "hdd", "ssd",
}

const (
	minValidTemp = 0.0
	// Readings above this are likely sensor errors.
	maxValidTemp = 150.0
)

// SensorsCollector collects temperatures and fan speeds.
type SensorsCollector struct {
	root     string
	platform platform.Platform
	logger   *zap.Logger
}

// NewSensorsCollector creates a new sensors collector. The platform provides
// the GPU temperature fallback (e.g. nvidia-smi); pass nil to disable it.
func NewSensorsCollector(p platform.Platform, logger *zap.Logger) *SensorsCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SensorsCollector{platform: p, logger: logger}
}

// Name returns the collector identifier.
func (c *SensorsCollector) Name() string { return ProbeSensors }

// Collect gathers sensor readings. Missing sensors are normal on virtual
// machines and produce empty lists rather than an error.
func (c *SensorsCollector) Collect(ctx context.Context) (interface{}, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	if err != nil {
		// gopsutil returns partial readings together with warnings.
		c.logger.Debug("Temperature sensors reported errors", zap.Error(err))
	}

	result := classifyTemperatures(temps)
	result.FanSpeeds = hwmonFans(c.root)

	if result.GPUTemp == 0 {
		result.GPUTemp = c.platformGPUFallback(ctx)
	}
	return result, nil
}

// IsAvailable returns true; the collector reports empty values when sensors
// are unavailable.
func (c *SensorsCollector) IsAvailable() bool { return true }

// classifyTemperatures sorts readings into drive, GPU, core and CPU buckets.
func classifyTemperatures(temps []host.TemperatureStat) models.PhysicalSensors {
	result := models.EmptySensors()

	sorted := make([]host.TemperatureStat, len(temps))
	copy(sorted, temps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SensorKey < sorted[j].SensorKey })

	for _, t := range sorted {
		if !isValidTemperature(t.Temperature) {
			continue
		}
		name := strings.ToLower(t.SensorKey)

		switch {
		case matchesSensor(name, storageSensorKeys):
			result.StorageTemps = append(result.StorageTemps, t.Temperature)
		case matchesSensor(name, gpuSensorKeys):
			if t.Temperature > result.GPUTemp {
				result.GPUTemp = t.Temperature
			}
		case matchesSensor(name, cpuSensorKeys):
			if isCoreSensor(name) {
				result.CoreTemps = append(result.CoreTemps, t.Temperature)
			}
			if t.Temperature > result.CPUTemp {
				result.CPUTemp = t.Temperature
			}
		}
	}
	return result
}

// platformGPUFallback attempts to get GPU temperature from the platform.
// Returns 0 if the platform is not set or the temperature is unavailable.
func (c *SensorsCollector) platformGPUFallback(ctx context.Context) float64 {
	if c.platform == nil {
		return 0
	}
	temp, err := c.platform.GPUTemperature(ctx)
	if err != nil || temp == nil {
		c.logger.Debug("Platform GPU temperature not available", zap.Error(err))
		return 0
	}
	if !isValidTemperature(*temp) {
		c.logger.Debug("Platform GPU temperature out of valid range",
			zap.Float64("temp_c", *temp))
		return 0
	}
	return *temp
}

// isCoreSensor matches per-core readings such as "coretemp_core_0" or
// "cpu core #0", but not the "coretemp_package_id_0" package sensor.
func isCoreSensor(name string) bool {
	return strings.Contains(name, "core_") || strings.Contains(name, "core #")
}

// matchesSensor checks if the sensor name contains any of the given key substrings.
func matchesSensor(name string, keys []string) bool {
	for _, key := range keys {
		if strings.Contains(name, key) {
			return true
		}
	}
	return false
}

// isValidTemperature returns true if the temperature is within a plausible range.
func isValidTemperature(temp float64) bool {
	return temp > minValidTemp && temp <= maxValidTemp
}
