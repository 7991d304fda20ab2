//go:build windows

// Windows-specific Platform implementation.
// Uses system commands for Windows-specific metrics.
package platform

import (
	"context"
	"os/exec"
	"strings"
)

// WindowsPlatform implements Platform for Windows systems.
type WindowsPlatform struct{}

// New creates a new Windows platform instance.
func New() Platform {
	return &WindowsPlatform{}
}

// Name returns the platform identifier.
func (p *WindowsPlatform) Name() string { return "windows" }

// FirewallActive reports true when any Windows Firewall profile is on.
func (p *WindowsPlatform) FirewallActive(ctx context.Context) (bool, error) {
	out, err := exec.CommandContext(ctx, "netsh", "advfirewall", "show", "allprofiles", "state").Output()
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		f := strings.Fields(line)
		if len(f) == 2 && strings.EqualFold(f[0], "State") && strings.EqualFold(f[1], "ON") {
			return true, nil
		}
	}
	return false, nil
}

// LastLogin queries the newest interactive logon event (Event ID 4624).
func (p *WindowsPlatform) LastLogin(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "wevtutil", "qe", "Security",
		"/q:*[System[EventID=4624]]", "/c:1", "/rd:true", "/f:text").Output()
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Date:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Date:")), nil
		}
	}
	return "", nil
}

// SudoFailures has no Windows equivalent.
func (p *WindowsPlatform) SudoFailures(ctx context.Context) (uint32, error) {
	return 0, nil
}

// GPUTemperature attempts to read GPU temperature via nvidia-smi.
func (p *WindowsPlatform) GPUTemperature(ctx context.Context) (*float64, error) {
	return nvidiaSMITemperature(ctx)
}
