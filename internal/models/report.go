// Package models defines the report structures produced by the agent.
// A MachineReport is assembled once per sampling tick and is never mutated
// after it leaves the aggregator, so it may be shared between goroutines.
package models

// MachineReport is the point-in-time snapshot of one host for a single tick.
type MachineReport struct {
	Metadata  Metadata        `json:"metadata"`
	CPU       CPUStats        `json:"cpu"`
	Memory    MemoryStats     `json:"memory"`
	Processes ProcessStats    `json:"processes"`
	Network   NetworkStats    `json:"network"`
	Storage   StorageStats    `json:"storage"`
	Sensors   PhysicalSensors `json:"sensors"`
	Security  SecurityStats   `json:"security"`
	Health    SystemHealth    `json:"health"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
}

// Metadata holds the identity facts of the host. Everything except Uptime and
// BootTime is computed once per process lifetime.
type Metadata struct {
	MachineID      string `json:"machine_id"`
	Hostname       string `json:"hostname"`
	OSDistro       string `json:"os_distro"`
	KernelVersion  string `json:"kernel_version"`
	Virtualization string `json:"virtualization"`
	Timezone       string `json:"timezone"`
	BIOSVendor     string `json:"bios_vendor"`
	BIOSVersion    string `json:"bios_version"`
	BIOSSerial     string `json:"bios_serial"`
	Uptime         uint64 `json:"uptime"`    // seconds
	BootTime       uint64 `json:"boot_time"` // Unix seconds
}

// CPUStats holds processor utilisation for the tick.
type CPUStats struct {
	UsageTotalPct      float64    `json:"usage_total_pct"`
	LoadAvg            [3]float64 `json:"load_avg"`
	ThreadsUsage       []float64  `json:"threads_usage"`
	ThreadsFreqMHz     []float64  `json:"threads_freq_mhz"`
	InterruptsSec      uint64     `json:"interrupts_sec"`
	ContextSwitchesSec uint64     `json:"context_switches_sec"`
	IOWaitTime         float64    `json:"io_wait_time"` // share of the last interval, percent
	IdleTime           uint64     `json:"idle_time"`    // cumulative idle seconds
	VoltageVcore       float64    `json:"voltage_vcore"`
}

// MemoryStats holds RAM and swap counters in bytes.
type MemoryStats struct {
	TotalBytes         uint64 `json:"total_bytes"`
	UsedBytes          uint64 `json:"used_bytes"`
	AvailableBytes     uint64 `json:"available_bytes"`
	FreeBytes          uint64 `json:"free_bytes"`
	BuffersCacheBytes  uint64 `json:"buffers_cache_bytes"`
	SwapTotalBytes     uint64 `json:"swap_total_bytes"`
	SwapUsedBytes      uint64 `json:"swap_used_bytes"`
	PageFaultsMinorSec uint64 `json:"page_faults_minor_sec"`
	PageFaultsMajorSec uint64 `json:"page_faults_major_sec"`
}

// ProcessStats is the process table census plus the ranked top consumers.
type ProcessStats struct {
	TotalCount    uint32        `json:"total_count"`
	RunningCount  uint32        `json:"running_count"`
	SleepingCount uint32        `json:"sleeping_count"`
	ZombieCount   uint32        `json:"zombie_count"`
	TopCPU        []ProcessInfo `json:"top_cpu"`
	TopMemory     []ProcessInfo `json:"top_memory"`
}

// ProcessInfo is a single process row. It is only valid for the tick that
// produced it.
type ProcessInfo struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	User       string  `json:"user"`
	CPUUsage   float64 `json:"cpu_usage"`
	MemUsageMB float64 `json:"mem_usage_mb"`
}

// NetworkStats holds aggregate interface counters and socket facts.
type NetworkStats struct {
	AggregateRxBytesSec    uint64              `json:"aggregate_rx_bytes_sec"`
	AggregateTxBytesSec    uint64              `json:"aggregate_tx_bytes_sec"`
	AggregateRxPackets     uint64              `json:"aggregate_rx_packets"`
	AggregateTxPackets     uint64              `json:"aggregate_tx_packets"`
	TotalErrors            uint64              `json:"total_errors"`
	TotalDrops             uint64              `json:"total_drops"`
	InterfaceIPs           map[string][]string `json:"interface_ips"`
	TCPActiveConnections   uint32              `json:"tcp_active_connections"`
	TCPTimeWaitConnections uint32              `json:"tcp_time_wait_connections"`
	ListeningPorts         []uint16            `json:"listening_ports"`
}

// StorageStats holds mounted filesystems and aggregate disk throughput.
type StorageStats struct {
	Partitions         []PartitionInfo `json:"partitions"`
	TotalReadBytesSec  uint64          `json:"total_read_bytes_sec"`
	TotalWriteBytesSec uint64          `json:"total_write_bytes_sec"`
	TotalReadIOPS      uint64          `json:"total_read_iops"`
	TotalWriteIOPS     uint64          `json:"total_write_iops"`
	IOLatencyMs        float64         `json:"io_latency_ms"`
}

// PartitionInfo describes one mounted real filesystem.
type PartitionInfo struct {
	MountPoint string  `json:"mount_point"`
	Device     string  `json:"device"`
	FsType     string  `json:"fs_type"`
	UsagePct   float64 `json:"usage_pct"`
	FreeBytes  uint64  `json:"free_bytes"`
	UsedBytes  uint64  `json:"used_bytes"`
	TotalBytes uint64  `json:"total_bytes"`
}

// PhysicalSensors holds hardware sensor readings. Virtual machines usually
// report zero values and empty lists.
type PhysicalSensors struct {
	CPUTemp      float64   `json:"cpu_temp"`
	CoreTemps    []float64 `json:"core_temps"`
	StorageTemps []float64 `json:"storage_temps"`
	FanSpeeds    []uint32  `json:"fan_speeds"`
	GPUTemp      float64   `json:"gpu_temp"`
}

// SecurityStats holds best-effort security posture facts.
type SecurityStats struct {
	LastLogin      string `json:"last_login"`
	FirewallActive bool   `json:"firewall_active"`
	SudoFailures   uint32 `json:"sudo_failures"`
	ActiveUsers    uint32 `json:"active_users"`
}

// SystemHealth holds kernel health indicators.
type SystemHealth struct {
	EntropyAvail  uint32  `json:"entropy_avail"`
	NTPOffsetMs   float64 `json:"ntp_offset_ms"`
	NTPSynced     bool    `json:"ntp_synced"`
	BatteryStatus string  `json:"battery_status"`
}
