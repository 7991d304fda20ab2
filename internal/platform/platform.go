// Package platform provides an OS abstraction layer for host facts that
// gopsutil does not expose: firewall state, login history, authentication
// failures and the vendor-tool GPU temperature fallback.
// Each supported OS implements the Platform interface.
package platform

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
)

// Platform provides OS-specific functionality beyond what gopsutil offers.
// Every method is best effort; callers degrade failures to zero values.
type Platform interface {
	// Name returns the platform name (linux, windows, darwin, stub).
	Name() string

	// FirewallActive reports whether a host firewall is enabled.
	FirewallActive(ctx context.Context) (bool, error)

	// LastLogin returns a one-line description of the most recent login.
	LastLogin(ctx context.Context) (string, error)

	// SudoFailures returns the number of failed privilege escalation
	// attempts recorded in the system auth log.
	SudoFailures(ctx context.Context) (uint32, error)

	// GPUTemperature returns GPU temperature if available.
	// Returns nil if GPU temperature cannot be determined.
	GPUTemperature(ctx context.Context) (*float64, error)
}

// nvidiaSMITemperature reads the first GPU temperature via nvidia-smi.
// Returns nil if an NVIDIA GPU or nvidia-smi is not available.
func nvidiaSMITemperature(ctx context.Context) (*float64, error) {
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=temperature.gpu", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil, nil
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	temp, err := strconv.ParseFloat(strings.TrimSpace(first), 64)
	if err != nil {
		return nil, nil
	}
	return &temp, nil
}

// firstLine returns the first non-empty line of out that does not start with
// any of the skip prefixes, with runs of whitespace collapsed.
func firstLine(out string, skip ...string) string {
outer:
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		for _, s := range skip {
			if strings.HasPrefix(line, s) {
				continue outer
			}
		}
		return strings.Join(strings.Fields(line), " ")
	}
	return ""
}
