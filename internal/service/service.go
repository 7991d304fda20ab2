//go:build windows

// Package service provides Windows Service integration.
// When running as a Windows service, the agent enters the SCM control loop.
// When running from a terminal, it runs in the foreground.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

const serviceName = "HostpulseAgent"

// stopTimeout bounds how long a stop request waits for the agent to spool
// its queue and close the connection.
const stopTimeout = 10 * time.Second

// AgentService implements svc.Handler.
type AgentService struct {
	logger *zap.Logger
	runFn  func(ctx context.Context) error
	err    error
}

// New creates a service wrapper. runFn is called with a context that is
// cancelled when the SCM asks the service to stop.
func New(logger *zap.Logger, runFn func(ctx context.Context) error) *AgentService {
	return &AgentService{
		logger: logger,
		runFn:  runFn,
	}
}

// IsWindowsService checks if the process is running as a Windows service.
func IsWindowsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Run enters the SCM control loop and returns the agent's error, if any.
func (s *AgentService) Run() error {
	if err := svc.Run(serviceName, s); err != nil {
		return err
	}
	return s.err
}

// Execute implements svc.Handler.
func (s *AgentService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.runFn(ctx) }()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	s.logger.Info("Windows service started")

	for {
		select {
		case err := <-done:
			// The agent stopped by itself, which only happens on a fatal error.
			s.err = err
			if err != nil {
				s.logger.Error("Agent exited", zap.Error(err))
				return true, 1
			}
			return false, 0

		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				s.logger.Info("Windows service stopping")
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				select {
				case s.err = <-done:
				case <-time.After(stopTimeout):
					s.logger.Warn("Agent did not stop in time", zap.Duration("timeout", stopTimeout))
				}
				return false, 0
			default:
				s.logger.Warn("Unexpected service control request",
					zap.Uint32("cmd", uint32(c.Cmd)))
			}
		}
	}
}

// Install provides instructions for installing the service.
func Install(exePath string) error {
	return fmt.Errorf("use 'sc create %s binPath= \"%s\"' to install", serviceName, exePath)
}
