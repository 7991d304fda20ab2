package models

// The constructors below return the documented sentinel value of each
// section: zero numbers and non-nil empty collections. A probe that fails
// degrades its section to exactly this value.

// Metadata sentinels for facts that could not be determined.
const (
	UnknownDistro   = "unknown"
	UnknownTimezone = "Unknown"
	Physical        = "Physical"
)

// EmptyMetadata returns the sentinel metadata section.
func EmptyMetadata() Metadata {
	return Metadata{OSDistro: UnknownDistro, Timezone: UnknownTimezone, Virtualization: Physical}
}

// EmptyCPU returns the sentinel CPU section.
func EmptyCPU() CPUStats {
	return CPUStats{ThreadsUsage: []float64{}, ThreadsFreqMHz: []float64{}}
}

// EmptyProcesses returns the sentinel process section.
func EmptyProcesses() ProcessStats {
	return ProcessStats{TopCPU: []ProcessInfo{}, TopMemory: []ProcessInfo{}}
}

// EmptyNetwork returns the sentinel network section.
func EmptyNetwork() NetworkStats {
	return NetworkStats{InterfaceIPs: map[string][]string{}, ListeningPorts: []uint16{}}
}

// EmptyStorage returns the sentinel storage section.
func EmptyStorage() StorageStats {
	return StorageStats{Partitions: []PartitionInfo{}}
}

// EmptySensors returns the sentinel sensors section.
func EmptySensors() PhysicalSensors {
	return PhysicalSensors{CoreTemps: []float64{}, StorageTemps: []float64{}, FanSpeeds: []uint32{}}
}
