//go:build !windows

// Package service provides a stub implementation for non-Windows platforms.
// On Linux and macOS the agent runs as a foreground process under the init
// system; the Windows service wrapper is not needed.
package service

import (
	"context"

	"go.uber.org/zap"
)

// AgentService runs the agent directly on non-Windows platforms.
type AgentService struct {
	logger *zap.Logger
	runFn  func(ctx context.Context) error
}

// New creates a stub service wrapper for non-Windows platforms.
func New(logger *zap.Logger, runFn func(ctx context.Context) error) *AgentService {
	return &AgentService{
		logger: logger,
		runFn:  runFn,
	}
}

// IsWindowsService always returns false on non-Windows platforms.
func IsWindowsService() bool {
	return false
}

// Run executes the agent until it returns.
func (s *AgentService) Run() error {
	return s.runFn(context.Background())
}
