//go:build !linux

package metadata

import (
	"context"

	"github.com/shirou/gopsutil/v3/host"
)

func kernelVersion(ctx context.Context) (string, error) {
	return host.KernelVersionWithContext(ctx)
}
