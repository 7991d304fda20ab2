// Package scheduler drives the agent. A sampling loop assembles one report
// per tick into a bounded queue; a send loop keeps the transport connected
// and delivers the queue head by head. The sampling loop never waits on the
// network: when the connection is down the queue evicts its oldest report.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Guliveer/hostpulse/internal/buffer"
	"github.com/Guliveer/hostpulse/internal/models"
	"github.com/Guliveer/hostpulse/internal/transport"
)

// Sampler assembles the report for one tick.
type Sampler interface {
	Collect(ctx context.Context) *models.MachineReport
}

// Transport delivers reports to the collector.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, report *models.MachineReport) error
	State() transport.State
	Shutdown()
}

// Options configures a Scheduler.
type Options struct {
	Interval time.Duration
	// MaxSerializationFailures stops Run after this many consecutive reports
	// failed to encode. Zero disables the limit.
	MaxSerializationFailures int
	// Spool persists unsent reports across restarts. Optional.
	Spool  *buffer.Spool
	Logger *zap.Logger
}

// Scheduler manages periodic sampling and delivery.
type Scheduler struct {
	sampler   Sampler
	transport Transport
	queue     *buffer.Queue
	opts      Options
	logger    *zap.Logger

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// New creates a Scheduler.
func New(sampler Sampler, tr Transport, queue *buffer.Queue, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		sampler:   sampler,
		transport: tr,
		queue:     queue,
		opts:      opts,
		logger:    logger,
	}
}

// Sent returns the number of reports delivered.
func (s *Scheduler) Sent() uint64 { return s.sent.Load() }

// Dropped returns the number of reports discarded by eviction or
// serialization failure.
func (s *Scheduler) Dropped() uint64 { return s.dropped.Load() }

// Run blocks until ctx is cancelled or the transport fails fatally. It
// returns nil on normal cancellation. On the way out the transport is shut
// down and any unsent reports are spooled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.restoreSpool()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.sampleLoop(gctx) })
	g.Go(func() error { return s.sendLoop(gctx) })
	err := g.Wait()

	s.transport.Shutdown()
	s.spoolRemaining()

	s.logger.Info("Scheduler stopped",
		zap.Uint64("sent", s.Sent()),
		zap.Uint64("dropped", s.Dropped()))
	return err
}

// sampleLoop takes one sample immediately, then one per tick. Shutdown is
// observed at tick boundaries.
func (s *Scheduler) sampleLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			s.sample(ctx)
		}
	}
}

// sample runs one tick. A tick that has started is not cut short by
// shutdown: probes keep running until they finish or hit their own timeout.
func (s *Scheduler) sample(ctx context.Context) {
	report := s.sampler.Collect(context.WithoutCancel(ctx))
	if report == nil {
		return
	}
	if old, evicted := s.queue.Push(report); evicted {
		s.dropped.Add(1)
		reportsDropped.WithLabelValues("evicted").Inc()
		s.logger.Warn("Report queue full, dropped oldest report",
			zap.Int64("timestamp", old.Report.Timestamp),
			zap.Int("capacity", s.queue.Capacity()))
	}
	queueLength.Set(float64(s.queue.Len()))
	s.logger.Debug("Collected report", zap.Int64("timestamp", report.Timestamp))
}

// sendLoop delivers queued reports in order. A report leaves the queue only
// when it was sent or can never be sent.
func (s *Scheduler) sendLoop(ctx context.Context) error {
	consecutive := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		if s.transport.State() != transport.Connected {
			if err := s.transport.Connect(ctx); err != nil {
				if transport.IsFatal(err) {
					return fmt.Errorf("connect to collector: %w", err)
				}
				if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
					return nil
				}
				s.logger.Warn("Connect failed", zap.Error(err))
				continue
			}
		}

		item, err := s.queue.Wait(ctx)
		if err != nil {
			return nil
		}

		err = s.transport.Send(ctx, item.Report)
		var serr *transport.SerializationError
		switch {
		case err == nil:
			s.queue.Ack(item.Seq)
			s.sent.Add(1)
			reportsSent.Inc()
			consecutive = 0

		case errors.As(err, &serr):
			s.queue.Ack(item.Seq)
			s.dropped.Add(1)
			reportsDropped.WithLabelValues("serialization").Inc()
			consecutive++
			s.logger.Error("Report could not be serialized, dropping",
				zap.Int64("timestamp", item.Report.Timestamp),
				zap.Int("consecutive", consecutive),
				zap.Error(err))
			if limit := s.opts.MaxSerializationFailures; limit > 0 && consecutive >= limit {
				return fmt.Errorf("%d consecutive reports failed to serialize: %w", consecutive, err)
			}

		case errors.Is(err, transport.ErrClosed):
			return nil

		default:
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("Send failed, report kept for retry",
				zap.Int64("timestamp", item.Report.Timestamp),
				zap.Error(err))
		}
		queueLength.Set(float64(s.queue.Len()))
	}
}

// restoreSpool loads reports left over from a previous run into the queue.
func (s *Scheduler) restoreSpool() {
	if s.opts.Spool == nil {
		return
	}
	reports, err := s.opts.Spool.Drain()
	if err != nil {
		s.logger.Warn("Failed to read spool", zap.Error(err))
		return
	}
	for _, r := range reports {
		if _, evicted := s.queue.Push(r); evicted {
			s.dropped.Add(1)
			reportsDropped.WithLabelValues("evicted").Inc()
		}
	}
	if len(reports) > 0 {
		s.logger.Info("Restored spooled reports", zap.Int("count", len(reports)))
	}
}

// spoolRemaining persists whatever is still queued.
func (s *Scheduler) spoolRemaining() {
	remaining := s.queue.Drain()
	queueLength.Set(0)
	if len(remaining) == 0 {
		return
	}
	if s.opts.Spool == nil {
		s.logger.Warn("Discarding unsent reports", zap.Int("count", len(remaining)))
		return
	}
	if err := s.opts.Spool.Store(remaining); err != nil {
		s.logger.Error("Failed to spool unsent reports",
			zap.Int("count", len(remaining)),
			zap.Error(err))
		return
	}
	s.logger.Info("Spooled unsent reports", zap.Int("count", len(remaining)))
}
