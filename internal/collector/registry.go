package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Registry defaults.
const (
	DefaultMaxConcurrency = 8
	DefaultProbeTimeout   = 5 * time.Second
)

// ErrProbeTimeout is recorded for a collector that did not return before its
// deadline.
var ErrProbeTimeout = errors.New("probe timed out")

// Results is the outcome of one CollectAll barrier. Every registered
// collector appears in exactly one of the two maps.
type Results struct {
	Data   map[string]interface{}
	Errors map[string]error
}

// Registry manages all registered collectors and orchestrates concurrent
// collection with bounded parallelism and a per-collector deadline.
type Registry struct {
	collectors     []Collector
	maxConcurrency int
	timeout        time.Duration
	logger         *zap.Logger
}

// NewRegistry creates a new collector registry. Non-positive limits select
// the defaults.
func NewRegistry(logger *zap.Logger, maxConcurrency int, timeout time.Duration) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Registry{
		collectors:     make([]Collector, 0),
		maxConcurrency: maxConcurrency,
		timeout:        timeout,
		logger:         logger,
	}
}

// Register adds a collector if it's available on the current platform.
// Unavailable collectors are logged and skipped.
func (r *Registry) Register(c Collector) {
	if c.IsAvailable() {
		r.collectors = append(r.collectors, c)
		r.logger.Info("Registered collector", zap.String("name", c.Name()))
	} else {
		r.logger.Warn("Collector not available, skipping", zap.String("name", c.Name()))
	}
}

// CollectAll runs all registered collectors concurrently and returns once
// every one of them has finished or timed out. Failed collectors do not
// prevent other collectors from completing.
func (r *Registry) CollectAll(ctx context.Context) Results {
	results := Results{
		Data:   make(map[string]interface{}, len(r.collectors)),
		Errors: make(map[string]error),
	}
	var mu sync.Mutex

	// A plain group: one failing probe must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(r.maxConcurrency)

	for _, c := range r.collectors {
		c := c
		g.Go(func() error {
			data, err := r.run(ctx, c)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results.Errors[c.Name()] = err
				return nil
			}
			results.Data[c.Name()] = data
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// run executes one collector under its deadline. The collector goroutine is
// abandoned on timeout; its late result is discarded.
func (r *Registry) run(ctx context.Context, c Collector) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		data interface{}
		err  error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("collector panic: %v", p)}
			}
		}()
		data, err := c.Collect(ctx)
		done <- outcome{data: data, err: err}
	}()

	var o outcome
	reason := "error"
	select {
	case o = <-done:
	case <-ctx.Done():
		o.err = fmt.Errorf("%w after %s", ErrProbeTimeout, r.timeout)
		reason = "timeout"
	}

	probeDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())
	if o.err != nil {
		probeFailures.WithLabelValues(c.Name(), reason).Inc()
		r.logger.Debug("Collection failed",
			zap.String("collector", c.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(o.err))
		return nil, o.err
	}
	return o.data, nil
}

// Collectors returns a copy of all registered collectors.
func (r *Registry) Collectors() []Collector {
	result := make([]Collector, len(r.collectors))
	copy(result, r.collectors)
	return result
}
