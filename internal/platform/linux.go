//go:build linux

// Linux Platform implementation. Reads netfilter state from procfs and
// nftables, login history from wtmp via last(1) and auth failures from the
// distribution's auth log.
package platform

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// authLogs are checked in order; Debian-family first, then RHEL-family.
var authLogs = []string{"/var/log/auth.log", "/var/log/secure"}

// LinuxPlatform implements Platform for Linux systems.
type LinuxPlatform struct {
	root string
}

// New creates a new Linux platform instance.
func New() Platform {
	return &LinuxPlatform{}
}

// Name returns the platform identifier.
func (p *LinuxPlatform) Name() string { return "linux" }

// FirewallActive reports true when nftables has at least one table or the
// legacy iptables module has registered tables.
func (p *LinuxPlatform) FirewallActive(ctx context.Context) (bool, error) {
	if out, err := exec.CommandContext(ctx, "nft", "list", "tables").Output(); err == nil {
		if strings.TrimSpace(string(out)) != "" {
			return true, nil
		}
	}
	data, err := os.ReadFile(p.root + "/proc/net/ip_tables_names")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return strings.TrimSpace(string(data)) != "", nil
}

// LastLogin returns the newest wtmp entry.
func (p *LinuxPlatform) LastLogin(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "last", "-n", "1", "-w").Output()
	if err != nil {
		return "", err
	}
	return firstLine(string(out), "wtmp begins", "reboot"), nil
}

// SudoFailures counts failed sudo authentications in the auth log.
func (p *LinuxPlatform) SudoFailures(ctx context.Context) (uint32, error) {
	var lastErr error
	for _, path := range authLogs {
		n, err := countSudoFailures(ctx, p.root+path)
		if err == nil {
			return n, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

// GPUTemperature falls back to nvidia-smi; amdgpu and nouveau are already
// covered by hwmon sensors.
func (p *LinuxPlatform) GPUTemperature(ctx context.Context) (*float64, error) {
	return nvidiaSMITemperature(ctx)
}

func countSudoFailures(ctx context.Context, path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var n uint32
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if isSudoFailure(scanner.Text()) {
			n++
		}
	}
	return n, scanner.Err()
}

// isSudoFailure matches the pam_unix and sudo messages for a failed attempt.
func isSudoFailure(line string) bool {
	if !strings.Contains(line, "sudo") {
		return false
	}
	return strings.Contains(line, "authentication failure") ||
		strings.Contains(line, "incorrect password attempt")
}
