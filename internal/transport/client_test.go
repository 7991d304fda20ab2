package transport

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/hostpulse/internal/models"
	"github.com/Guliveer/hostpulse/internal/wire"
)

type testServer struct {
	*httptest.Server
	conns   chan *websocket.Conn
	headers chan http.Header
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		conns:   make(chan *websocket.Conn, 4),
		headers: make(chan http.Header, 4),
	}
	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.headers <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-ts.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

// fakeDialer records dial times and fails according to fn.
type fakeDialer struct {
	mu    sync.Mutex
	calls []time.Time
	fn    func(n int) (*http.Response, error)
}

func (d *fakeDialer) DialContext(ctx context.Context, _ string, _ http.Header) (*websocket.Conn, *http.Response, error) {
	d.mu.Lock()
	d.calls = append(d.calls, time.Now())
	n := len(d.calls)
	d.mu.Unlock()
	resp, err := d.fn(n)
	return nil, resp, err
}

func (d *fakeDialer) times() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.calls...)
}

func testBackoff() Backoff {
	return Backoff{
		BaseDelay:       50 * time.Millisecond,
		MaxDelay:        time.Second,
		ServerBaseDelay: 120 * time.Millisecond,
		ServerMaxDelay:  time.Second,
		Multiplier:      2,
		Jitter:          0.5,
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, u := range []string{"http://collector:8080/ingest", "collector:8080", "ws://", "::bad"} {
		_, err := New(Options{URL: u})
		assert.True(t, IsFatal(err), u)
	}
}

func TestConnectAndSend(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, Options{URL: ts.wsURL(), Token: "s3cret", Version: "1.2.3", Codec: wire.NewJSON()})

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Connected, c.State())
	assert.Equal(t, uint64(1), c.Attempts())

	h := <-ts.headers
	assert.Equal(t, "Bearer s3cret", h.Get("Authorization"))
	assert.Equal(t, "hostpulse-agent/1.2.3", h.Get("User-Agent"))
	assert.Equal(t, "json", h.Get(HeaderEncoding))
	assert.Len(t, h.Get(HeaderSession), 36)

	server := ts.accept(t)
	report := &models.MachineReport{Timestamp: 1700000000000, Metadata: models.Metadata{Hostname: "node"}}
	require.NoError(t, c.Send(context.Background(), report))

	mt, data, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	got, err := wire.NewJSON().Decode(data)
	require.NoError(t, err)
	assert.Equal(t, report.Timestamp, got.Timestamp)
	assert.Equal(t, "node", got.Metadata.Hostname)
}

func TestSendCBORUsesBinaryFrames(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, Options{URL: ts.wsURL()})
	require.NoError(t, c.Connect(context.Background()))
	server := ts.accept(t)

	require.NoError(t, c.Send(context.Background(), &models.MachineReport{Timestamp: 1}))
	mt, _, err := server.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
}

func TestSendNotConnected(t *testing.T) {
	c := newClient(t, Options{URL: "ws://127.0.0.1:1/ingest"})
	err := c.Send(context.Background(), &models.MachineReport{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendSerializationErrorKeepsConnection(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, Options{URL: ts.wsURL(), Codec: wire.NewJSON()})
	require.NoError(t, c.Connect(context.Background()))
	ts.accept(t)

	bad := &models.MachineReport{CPU: models.CPUStats{UsageTotalPct: math.NaN()}}
	err := c.Send(context.Background(), bad)

	var se *SerializationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Connected, c.State())
}

func TestFatalHandshakeStopsRetrying(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newClient(t, Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Backoff: testBackoff()})
	err := c.Connect(context.Background())

	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, Fatal, ce.Class)
	assert.Equal(t, http.StatusUnauthorized, ce.StatusCode)
	assert.Equal(t, uint64(1), c.Attempts())
	mu.Lock()
	assert.Equal(t, 1, hits)
	mu.Unlock()
	assert.Equal(t, Disconnected, c.State())
}

func TestTransientFailureWaitsForBackoff(t *testing.T) {
	d := &fakeDialer{fn: func(n int) (*http.Response, error) {
		if n < 3 {
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
		}
		return nil, websocket.ErrBadHandshake
	}}
	c := newClient(t, Options{URL: "ws://collector.test/ingest", Backoff: testBackoff(), Dialer: d})

	err := c.Connect(context.Background())
	require.True(t, IsFatal(err))

	calls := d.times()
	require.Len(t, calls, 3)
	assert.GreaterOrEqual(t, calls[1].Sub(calls[0]), 50*time.Millisecond)
	assert.GreaterOrEqual(t, calls[2].Sub(calls[1]), 100*time.Millisecond)
}

func TestServerFailureUsesServerBackoff(t *testing.T) {
	d := &fakeDialer{fn: func(n int) (*http.Response, error) {
		if n == 1 {
			return &http.Response{StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"}, websocket.ErrBadHandshake
		}
		return &http.Response{StatusCode: http.StatusForbidden, Status: "403 Forbidden"}, websocket.ErrBadHandshake
	}}
	c := newClient(t, Options{URL: "wss://collector.test/ingest", Backoff: testBackoff(), Dialer: d})

	err := c.Connect(context.Background())
	require.True(t, IsFatal(err))

	calls := d.times()
	require.Len(t, calls, 2)
	assert.GreaterOrEqual(t, calls[1].Sub(calls[0]), 120*time.Millisecond)
}

func TestShutdownWakesBackoff(t *testing.T) {
	d := &fakeDialer{fn: func(int) (*http.Response, error) {
		return nil, errors.New("network is unreachable")
	}}
	b := testBackoff()
	b.BaseDelay = time.Hour
	b.MaxDelay = time.Hour
	c := newClient(t, Options{URL: "ws://collector.test/ingest", Backoff: b, Dialer: d})

	errCh := make(chan error, 1)
	go func() { errCh <- c.Connect(context.Background()) }()

	require.Eventually(t, func() bool { return len(d.times()) == 1 }, time.Second, 5*time.Millisecond)
	c.Shutdown()
	c.Shutdown()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after Shutdown")
	}
	assert.ErrorIs(t, c.Send(context.Background(), &models.MachineReport{}), ErrClosed)
}

func TestConnectHonoursContext(t *testing.T) {
	d := &fakeDialer{fn: func(int) (*http.Response, error) {
		return nil, errors.New("connection reset by peer")
	}}
	b := testBackoff()
	b.BaseDelay = time.Hour
	b.MaxDelay = time.Hour
	c := newClient(t, Options{URL: "ws://collector.test/ingest", Backoff: b, Dialer: d})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Connect(ctx), context.DeadlineExceeded)
}

func TestRefreshMessageDropsConnection(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, Options{URL: ts.wsURL()})
	require.NoError(t, c.Connect(context.Background()))
	server := ts.accept(t)

	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`{"type":"refresh"}`)))
	require.Eventually(t, func() bool { return c.State() == Disconnected }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, c.Send(context.Background(), &models.MachineReport{}), ErrNotConnected)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, Connected, c.State())
	assert.Equal(t, uint64(2), c.Attempts())
}

func TestServiceRestartCloseDropsConnection(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, Options{URL: ts.wsURL()})
	require.NoError(t, c.Connect(context.Background()))
	server := ts.accept(t)

	msg := websocket.FormatCloseMessage(websocket.CloseServiceRestart, "deploy")
	require.NoError(t, server.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
	require.Eventually(t, func() bool { return c.State() == Disconnected }, 2*time.Second, 10*time.Millisecond)
}

func TestRefreshReconnects(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, Options{URL: ts.wsURL()})
	require.NoError(t, c.Connect(context.Background()))
	first := ts.accept(t)

	require.NoError(t, c.Refresh(context.Background()))
	assert.Equal(t, Connected, c.State())
	ts.accept(t)

	_, _, err := first.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestSendAfterPeerVanishes(t *testing.T) {
	ts := newTestServer(t)
	c := newClient(t, Options{URL: ts.wsURL()})
	require.NoError(t, c.Connect(context.Background()))
	server := ts.accept(t)
	server.Close()

	require.Eventually(t, func() bool {
		err := c.Send(context.Background(), &models.MachineReport{})
		if errors.Is(err, ErrNotConnected) {
			return true
		}
		var ce *ConnectionError
		return errors.As(err, &ce) && ce.Class == Transient
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return c.State() == Disconnected }, 2*time.Second, 10*time.Millisecond)
}

func TestReconnectAfterDroppedSessionWaitsForBackoff(t *testing.T) {
	var (
		mu       sync.Mutex
		sessions int
	)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		sessions++
		mu.Unlock()
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	b := testBackoff()
	b.BaseDelay = 100 * time.Millisecond
	b.Jitter = 0
	c := newClient(t, Options{URL: "ws" + strings.TrimPrefix(srv.URL, "http"), Backoff: b})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	for ctx.Err() == nil {
		if err := c.Connect(ctx); err != nil {
			break
		}
		if err := c.Send(ctx, &models.MachineReport{}); err == nil {
			// The write may land before the peer's close is seen.
			require.Eventually(t, func() bool { return c.State() == Disconnected },
				2*time.Second, time.Millisecond)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, sessions, 2)
	assert.LessOrEqual(t, sessions, 6)
	assert.LessOrEqual(t, c.Attempts(), uint64(6))
}

func TestReconnectDelayGrowsWithFailureStreak(t *testing.T) {
	c := newClient(t, Options{URL: "ws://collector.test/ingest", Backoff: testBackoff()})
	c.jitter = func() float64 { return 0 }
	assert.Zero(t, c.reconnectDelay())

	c.mu.Lock()
	c.streak, c.backoffPending = 3, true
	c.mu.Unlock()
	assert.Equal(t, 200*time.Millisecond, c.reconnectDelay())
}
