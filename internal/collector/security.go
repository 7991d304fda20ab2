// Security posture collector. Combines platform facts with the gopsutil
// logged-in user table.
package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"

	"github.com/Guliveer/hostpulse/internal/models"
	"github.com/Guliveer/hostpulse/internal/platform"
)

// SecurityCollector collects firewall, login and authentication facts.
type SecurityCollector struct {
	platform platform.Platform
	users    func(ctx context.Context) ([]host.UserStat, error)
	logger   *zap.Logger
}

// NewSecurityCollector creates a new security collector.
func NewSecurityCollector(p platform.Platform, logger *zap.Logger) *SecurityCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SecurityCollector{platform: p, users: host.UsersWithContext, logger: logger}
}

// Name returns the collector identifier.
func (c *SecurityCollector) Name() string { return ProbeSecurity }

// Collect gathers every fact independently. It fails only when none of them
// could be read.
func (c *SecurityCollector) Collect(ctx context.Context) (interface{}, error) {
	var (
		s    models.SecurityStats
		errs []error
	)

	if active, err := c.platform.FirewallActive(ctx); err == nil {
		s.FirewallActive = active
	} else {
		errs = append(errs, fmt.Errorf("firewall: %w", err))
	}
	if last, err := c.platform.LastLogin(ctx); err == nil {
		s.LastLogin = last
	} else {
		errs = append(errs, fmt.Errorf("last login: %w", err))
	}
	if n, err := c.platform.SudoFailures(ctx); err == nil {
		s.SudoFailures = n
	} else {
		errs = append(errs, fmt.Errorf("sudo failures: %w", err))
	}
	if users, err := c.users(ctx); err == nil {
		s.ActiveUsers = countUsers(users)
	} else {
		errs = append(errs, fmt.Errorf("users: %w", err))
	}

	if len(errs) == 4 {
		return nil, errors.Join(errs...)
	}
	for _, err := range errs {
		c.logger.Debug("Security fact unavailable", zap.Error(err))
	}
	return s, nil
}

// IsAvailable returns true when a platform implementation is present.
func (c *SecurityCollector) IsAvailable() bool { return c.platform != nil }

// countUsers returns the number of distinct logged-in user names.
func countUsers(users []host.UserStat) uint32 {
	names := map[string]struct{}{}
	for _, u := range users {
		if u.User != "" {
			names[u.User] = struct{}{}
		}
	}
	return uint32(len(names))
}
