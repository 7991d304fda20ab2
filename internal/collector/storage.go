// Storage collector. Gathers per-mount usage and aggregate disk I/O counters.
// Uses gopsutil for cross-platform disk metrics.
package collector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/Guliveer/hostpulse/internal/models"
)

// pseudoFSTypes contains filesystem types that should be excluded from disk metrics.
// These are virtual/system filesystems and network/remote filesystems that don't
// represent local storage devices.
var pseudoFSTypes = map[string]bool{
	// Virtual / system filesystems
	"devfs":         true,
	"autofs":        true,
	"nullfs":        true,
	"tmpfs":         true,
	"sysfs":         true,
	"proc":          true,
	"procfs":        true,
	"devtmpfs":      true,
	"cgroup":        true,
	"cgroup2":       true,
	"overlay":       true,
	"squashfs":      true,
	"fuse.snapfuse": true,
	"nsfs":          true,
	"pstore":        true,
	"debugfs":       true,
	"tracefs":       true,
	"securityfs":    true,
	"configfs":      true,
	"fusectl":       true,
	"mqueue":        true,
	"hugetlbfs":     true,
	"binfmt_misc":   true,
	"efivarfs":      true,
	"bpf":           true,
	"ramfs":         true,

	// Network / remote filesystems
	"nfs":           true,
	"nfs4":          true,
	"cifs":          true,
	"smbfs":         true,
	"fuse.sshfs":    true,
	"fuse.rclone":   true,
	"9p":            true,
	"afs":           true,
	"glusterfs":     true,
	"lustre":        true,
	"ceph":          true,
	"fuse.ceph":     true,
	"fuse.s3fs":     true,
	"fuse.gcsfuse":  true,
	"fuse.blobfuse": true,
	"davfs2":        true,
}

// virtualBlockPrefixes are block devices whose I/O is already counted on the
// devices beneath them, or which are not disks at all.
var virtualBlockPrefixes = []string{"loop", "ram", "dm-", "md", "zram", "sr"}

// isSystemMount returns true for mount points that are macOS system volumes
// or other OS-internal paths that shouldn't be reported.
func isSystemMount(mount string) bool {
	systemPrefixes := []string{
		"/System/Volumes/",
		"/private/var/vm",
		"/snap/",
	}
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(mount, prefix) {
			return true
		}
	}
	return false
}

// StorageSample is the raw storage probe output. I/O counters are cumulative
// sums over physical disks.
type StorageSample struct {
	Partitions []models.PartitionInfo

	ReadBytes  uint64
	WriteBytes uint64
	ReadOps    uint64
	WriteOps   uint64
	IOTimeMs   uint64 // time spent servicing reads and writes
}

// StorageCollector collects partition usage and disk I/O.
type StorageCollector struct {
	logger *zap.Logger
}

// NewStorageCollector creates a new storage collector.
func NewStorageCollector(logger *zap.Logger) *StorageCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageCollector{logger: logger}
}

// Name returns the collector identifier.
func (c *StorageCollector) Name() string { return ProbeStorage }

// Collect gathers usage for all mounted real filesystems and the aggregate
// I/O counters. Inaccessible partitions are skipped.
func (c *StorageCollector) Collect(ctx context.Context) (interface{}, error) {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("partitions: %w", err)
	}

	s := StorageSample{Partitions: []models.PartitionInfo{}}
	seenMounts := map[string]bool{}
	for _, p := range partitions {
		if pseudoFSTypes[p.Fstype] || isSystemMount(p.Mountpoint) || seenMounts[p.Mountpoint] {
			c.logger.Debug("Skipping filesystem",
				zap.String("mount", p.Mountpoint),
				zap.String("fstype", p.Fstype))
			continue
		}

		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || usage.Total == 0 {
			continue
		}
		seenMounts[p.Mountpoint] = true
		s.Partitions = append(s.Partitions, models.PartitionInfo{
			MountPoint: p.Mountpoint,
			Device:     p.Device,
			FsType:     p.Fstype,
			UsagePct:   usage.UsedPercent,
			FreeBytes:  usage.Free,
			UsedBytes:  usage.Used,
			TotalBytes: usage.Total,
		})
	}
	sort.Slice(s.Partitions, func(i, j int) bool {
		return s.Partitions[i].MountPoint < s.Partitions[j].MountPoint
	})

	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("disk io counters: %w", err)
	}
	sumDiskCounters(&s, counters)
	return s, nil
}

// IsAvailable returns true because disk metrics are available on all platforms.
func (c *StorageCollector) IsAvailable() bool { return true }

// sumDiskCounters adds whole-disk counters, skipping partitions of a listed
// disk and virtual block devices.
func sumDiskCounters(s *StorageSample, counters map[string]disk.IOCountersStat) {
	for name, st := range counters {
		if isVirtualBlock(name) || isPartitionOf(name, counters) {
			continue
		}
		s.ReadBytes += st.ReadBytes
		s.WriteBytes += st.WriteBytes
		s.ReadOps += st.ReadCount
		s.WriteOps += st.WriteCount
		s.IOTimeMs += st.ReadTime + st.WriteTime
	}
}

func isVirtualBlock(name string) bool {
	for _, p := range virtualBlockPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// isPartitionOf reports whether name is a partition ("sda1", "nvme0n1p2",
// "mmcblk0p1") of another device in the set.
func isPartitionOf[T any](name string, devices map[string]T) bool {
	for parent := range devices {
		if parent == name || !strings.HasPrefix(name, parent) {
			continue
		}
		suffix := strings.TrimPrefix(strings.TrimPrefix(name, parent), "p")
		if suffix != "" && strings.Trim(suffix, "0123456789") == "" {
			return true
		}
	}
	return false
}
