//go:build !linux && !windows

// Stub Platform implementation for the remaining Unix systems.
// Only the GPU fallback and login history are attempted.
package platform

import (
	"context"
	"os/exec"
)

// StubPlatform is a minimal Platform for operating systems without a
// dedicated implementation.
type StubPlatform struct{}

// New creates a stub platform instance.
func New() Platform {
	return &StubPlatform{}
}

// Name returns the platform identifier.
func (p *StubPlatform) Name() string { return "stub" }

// FirewallActive always reports false.
func (p *StubPlatform) FirewallActive(ctx context.Context) (bool, error) {
	return false, nil
}

// LastLogin returns the newest entry reported by last(1).
func (p *StubPlatform) LastLogin(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "last", "-1").Output()
	if err != nil {
		return "", err
	}
	return firstLine(string(out), "wtmp begins", "reboot"), nil
}

// SudoFailures returns 0.
func (p *StubPlatform) SudoFailures(ctx context.Context) (uint32, error) {
	return 0, nil
}

// GPUTemperature attempts nvidia-smi.
func (p *StubPlatform) GPUTemperature(ctx context.Context) (*float64, error) {
	return nvidiaSMITemperature(ctx)
}
