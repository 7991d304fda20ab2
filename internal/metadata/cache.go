// Package metadata computes the identity facts of the host. Static facts are
// probed exactly once per Cache, lazily on the first Get; uptime and boot
// time are read fresh on every call.
package metadata

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/Guliveer/hostpulse/internal/models"
)

// Sentinels used when a probe fails.
const (
	UnknownDistro   = models.UnknownDistro
	UnknownTimezone = models.UnknownTimezone
	Physical        = models.Physical
)

// Options overrides the probes used by a Cache. Zero values select the
// real system probes.
type Options struct {
	// Root is prepended to every well-known file path (machine id, DMI,
	// timezone, os-release). Empty means "/".
	Root string

	Hostname      func() (string, error)
	Distro        func(ctx context.Context) (string, error)
	KernelVersion func(ctx context.Context) (string, error)
	Uptime        func(ctx context.Context) (uint64, error)
	BootTime      func(ctx context.Context) (uint64, error)

	Logger *zap.Logger
}

// Cache holds the static metadata of one agent process.
type Cache struct {
	opts   Options
	logger *zap.Logger

	once   sync.Once
	static models.Metadata
	err    error
	probes atomic.Int32
}

// New creates a metadata cache. Nothing is probed until the first Get.
func New(opts Options) *Cache {
	if opts.Hostname == nil {
		opts.Hostname = os.Hostname
	}
	if opts.Distro == nil {
		opts.Distro = hostDistro
	}
	if opts.KernelVersion == nil {
		opts.KernelVersion = kernelVersion
	}
	if opts.Uptime == nil {
		opts.Uptime = host.UptimeWithContext
	}
	if opts.BootTime == nil {
		opts.BootTime = host.BootTimeWithContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{opts: opts, logger: logger}
}

// Get returns the host metadata. The static part is identical on every call;
// the returned error is the hostname probe failure, the one probe allowed to
// abort initialisation, and is sticky for the life of the cache.
func (c *Cache) Get(ctx context.Context) (models.Metadata, error) {
	c.once.Do(func() {
		c.static, c.err = c.probe(ctx)
	})
	if c.err != nil {
		return models.Metadata{}, c.err
	}

	md := c.static
	if up, err := c.opts.Uptime(ctx); err == nil {
		md.Uptime = up
	} else {
		c.logger.Debug("Uptime probe failed", zap.Error(err))
	}
	if bt, err := c.opts.BootTime(ctx); err == nil {
		md.BootTime = bt
	} else {
		c.logger.Debug("Boot time probe failed", zap.Error(err))
	}
	return md, nil
}

// Probes reports how many times the static probing ran.
func (c *Cache) Probes() int {
	return int(c.probes.Load())
}

// probe runs every static probe once. Only the hostname may fail.
func (c *Cache) probe(ctx context.Context) (models.Metadata, error) {
	c.probes.Add(1)

	hostname, err := c.opts.Hostname()
	if err != nil {
		return models.Metadata{}, fmt.Errorf("hostname: %w", err)
	}

	md := models.Metadata{
		MachineID:      readMachineID(c.opts.Root),
		Hostname:       trim(hostname),
		OSDistro:       UnknownDistro,
		Virtualization: classifyVendor(readDMI(c.opts.Root, "sys_vendor")),
		Timezone:       readTimezone(c.opts.Root),
		BIOSVendor:     readDMI(c.opts.Root, "bios_vendor"),
		BIOSVersion:    readDMI(c.opts.Root, "bios_version"),
		BIOSSerial:     readDMI(c.opts.Root, "product_serial"),
	}

	distro, err := c.opts.Distro(ctx)
	distro = trim(distro)
	if err != nil || distro == "" {
		if err != nil {
			c.logger.Debug("Distribution lookup failed", zap.Error(err))
		} else {
			c.logger.Debug("Distribution lookup returned no name")
		}
		distro = readOSRelease(c.opts.Root)
	}
	if distro != "" {
		md.OSDistro = distro
	}

	if kernel, err := c.opts.KernelVersion(ctx); err == nil {
		md.KernelVersion = trim(kernel)
	} else {
		c.logger.Debug("Kernel version lookup failed", zap.Error(err))
	}

	c.logger.Info("Host metadata resolved",
		zap.String("machine_id", md.MachineID),
		zap.String("hostname", md.Hostname),
		zap.String("distro", md.OSDistro),
		zap.String("virtualization", md.Virtualization),
		zap.String("timezone", md.Timezone))
	return md, nil
}

// hostDistro formats gopsutil platform information as "<platform> <version>".
func hostDistro(ctx context.Context) (string, error) {
	platform, _, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		return "", err
	}
	if platform == "" {
		return "", fmt.Errorf("empty platform name")
	}
	if version == "" {
		return platform, nil
	}
	return platform + " " + version, nil
}
