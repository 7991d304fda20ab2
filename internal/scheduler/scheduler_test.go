package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/hostpulse/internal/buffer"
	"github.com/Guliveer/hostpulse/internal/models"
	"github.com/Guliveer/hostpulse/internal/transport"
)

// countingSampler returns reports with timestamps 1, 2, 3... and calls
// onSample after each one.
type countingSampler struct {
	mu       sync.Mutex
	n        int64
	onSample func(n int64)
}

func (s *countingSampler) Collect(ctx context.Context) *models.MachineReport {
	s.mu.Lock()
	s.n++
	n := s.n
	s.mu.Unlock()
	if s.onSample != nil {
		s.onSample(n)
	}
	return &models.MachineReport{Timestamp: n}
}

type fakeTransport struct {
	mu        sync.Mutex
	state     transport.State
	connect   func(ctx context.Context) error
	send      func(r *models.MachineReport) error
	attempted []int64
	sent      []int64
	shutdown  bool
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connect != nil {
		if err := f.connect(ctx); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.state = transport.Connected
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, r *models.MachineReport) error {
	f.mu.Lock()
	f.attempted = append(f.attempted, r.Timestamp)
	f.mu.Unlock()
	if f.send != nil {
		if err := f.send(r); err != nil {
			var ce *transport.ConnectionError
			if errors.As(err, &ce) {
				f.mu.Lock()
				f.state = transport.Disconnected
				f.mu.Unlock()
			}
			return err
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, r.Timestamp)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Shutdown() {
	f.mu.Lock()
	f.shutdown = true
	f.mu.Unlock()
}

func (f *fakeTransport) sentSnapshot() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.sent...)
}

func timestamps(reports []*models.MachineReport) []int64 {
	out := make([]int64, len(reports))
	for i, r := range reports {
		out[i] = r.Timestamp
	}
	return out
}

func TestRunDropsOldestWhileDisconnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sampler := &countingSampler{onSample: func(n int64) {
		if n == 11 {
			cancel()
		}
	}}
	tr := &fakeTransport{connect: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	spool, err := buffer.NewSpool(t.TempDir(), 100, nil)
	require.NoError(t, err)

	s := New(sampler, tr, buffer.NewQueue(10), Options{Interval: time.Millisecond, Spool: spool})
	require.NoError(t, s.Run(ctx))

	assert.True(t, tr.shutdown)
	assert.Equal(t, uint64(1), s.Dropped())

	spooled, err := spool.Drain()
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, timestamps(spooled))
}

func TestRunFlushesMostRecentAfterReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	sampler := &countingSampler{onSample: func(n int64) {
		// The twelfth call runs after the eleventh report was queued.
		if n == 12 {
			close(ready)
		}
		if n >= 12 {
			<-ctx.Done()
		}
	}}
	tr := &fakeTransport{connect: func(ctx context.Context) error {
		select {
		case <-ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	s := New(sampler, tr, buffer.NewQueue(10), Options{Interval: time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(tr.sentSnapshot()) >= 10 },
		2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, tr.sentSnapshot()[:10])
}

func TestRunDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tr := &fakeTransport{}
	s := New(&countingSampler{}, tr, buffer.NewQueue(10), Options{Interval: time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(tr.sentSnapshot()) >= 3 },
		2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	sent := tr.sentSnapshot()
	for i := 1; i < len(sent); i++ {
		assert.Less(t, sent[i-1], sent[i])
	}
	assert.Equal(t, int64(1), sent[0])
}

func TestRunRestoresSpoolFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	spool, err := buffer.NewSpool(t.TempDir(), 10, nil)
	require.NoError(t, err)
	require.NoError(t, spool.Store([]*models.MachineReport{{Timestamp: 100}, {Timestamp: 200}}))

	tr := &fakeTransport{}
	s := New(&countingSampler{}, tr, buffer.NewQueue(10), Options{Interval: time.Hour, Spool: spool})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(tr.sentSnapshot()) == 3 },
		2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{100, 200, 1}, tr.sentSnapshot())
	assert.Zero(t, spool.Count())
}

func TestRunReturnsFatalConnectError(t *testing.T) {
	fatal := &transport.ConnectionError{Class: transport.Fatal, StatusCode: 401, Err: errors.New("unauthorized")}
	tr := &fakeTransport{connect: func(context.Context) error { return fatal }}
	s := New(&countingSampler{}, tr, buffer.NewQueue(10), Options{Interval: time.Hour})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, transport.IsFatal(err))
	assert.True(t, tr.shutdown)
}

func TestRunKeepsHeadAfterSendFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	tr := &fakeTransport{}
	tr.send = func(r *models.MachineReport) error {
		var err error
		once.Do(func() {
			err = &transport.ConnectionError{Class: transport.Transient, Err: errors.New("broken pipe")}
		})
		return err
	}
	s := New(&countingSampler{}, tr, buffer.NewQueue(10), Options{Interval: time.Hour})

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(tr.sentSnapshot()) == 1 },
		2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, []int64{1, 1}, tr.attempted)
	assert.Equal(t, []int64{1}, tr.sent)
}

func TestRunStopsAfterConsecutiveSerializationFailures(t *testing.T) {
	tr := &fakeTransport{send: func(*models.MachineReport) error {
		return &transport.SerializationError{Err: errors.New("unsupported value: NaN")}
	}}
	s := New(&countingSampler{}, tr, buffer.NewQueue(10), Options{
		Interval:                 time.Millisecond,
		MaxSerializationFailures: 3,
	})

	err := s.Run(context.Background())
	var serr *transport.SerializationError
	require.ErrorAs(t, err, &serr)
	assert.GreaterOrEqual(t, s.Dropped(), uint64(3))
	assert.Empty(t, tr.sentSnapshot())
}

// slowSampler takes a fixed time per tick unless its context is cancelled.
type slowSampler struct {
	delay       time.Duration
	started     chan struct{}
	interrupted atomic.Bool
}

func (s *slowSampler) Collect(ctx context.Context) *models.MachineReport {
	close(s.started)
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		s.interrupted.Store(true)
	}
	return &models.MachineReport{Timestamp: 42}
}

func TestShutdownLetsInFlightTickFinish(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sampler := &slowSampler{delay: 200 * time.Millisecond, started: make(chan struct{})}
	tr := &fakeTransport{connect: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	spool, err := buffer.NewSpool(t.TempDir(), 10, nil)
	require.NoError(t, err)

	s := New(sampler, tr, buffer.NewQueue(10), Options{Interval: time.Hour, Spool: spool})
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	<-sampler.started
	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.False(t, sampler.interrupted.Load())
	spooled, err := spool.Drain()
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, timestamps(spooled))
}
