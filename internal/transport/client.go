// Package transport owns the persistent websocket connection to the remote
// collector. It implements connect with classified backoff, single-writer
// sends, a control-frame reader per connection and cooperative shutdown.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Guliveer/hostpulse/internal/models"
	"github.com/Guliveer/hostpulse/internal/wire"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second

	// Time allowed to read the next pong from the collector.
	pongWait = 60 * time.Second
	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Largest control message accepted from the collector.
	maxMessageSize = 64 * 1024
)

// Handshake headers.
const (
	HeaderSession  = "X-Hostpulse-Session"
	HeaderEncoding = "X-Hostpulse-Encoding"
)

// State is the connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dialer opens websocket connections. *websocket.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Options configures a Client.
type Options struct {
	URL     string
	Token   string
	Version string
	Codec   wire.Codec
	Backoff Backoff

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// Dialer defaults to a gorilla dialer with HandshakeTimeout.
	Dialer Dialer
	Logger *zap.Logger
}

// session is one live connection and the goroutines attached to it.
type session struct {
	id   string
	conn *websocket.Conn
	done chan struct{}
	once sync.Once

	// healthy is set once a report was written or a pong came back.
	healthy atomic.Bool
}

// Client is a websocket transport to the collector. Send may be called from
// one goroutine at a time; Shutdown and State are safe from anywhere.
type Client struct {
	url    *url.URL
	header http.Header
	codec  wire.Codec
	opts   Options
	logger *zap.Logger

	pongWait   time.Duration
	pingPeriod time.Duration
	jitter     func() float64

	state    atomic.Int32
	attempts atomic.Uint64

	mu  sync.Mutex // guards cur, streak and backoffPending
	cur *session

	// streak counts sessions in a row that failed before proving healthy.
	// backoffPending makes the next Connect wait before its first dial.
	streak         int
	backoffPending bool

	writeMu sync.Mutex // one frame writer at a time

	done      chan struct{}
	closeOnce sync.Once
}

// New validates the options and returns a disconnected client.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, &ConnectionError{Class: Fatal, Err: fmt.Errorf("parse url: %w", err)}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, &ConnectionError{Class: Fatal, Err: fmt.Errorf("unsupported url scheme %q, want ws or wss", u.Scheme)}
	}
	if u.Host == "" {
		return nil, &ConnectionError{Class: Fatal, Err: fmt.Errorf("url %q has no host", opts.URL)}
	}

	if opts.Codec == nil {
		codec, err := wire.NewCBOR()
		if err != nil {
			return nil, err
		}
		opts.Codec = codec
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff()
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}
	header.Set("User-Agent", "hostpulse-agent/"+opts.Version)
	header.Set(HeaderEncoding, opts.Codec.Name())

	c := &Client{
		url:        u,
		header:     header,
		codec:      opts.Codec,
		opts:       opts,
		logger:     logger,
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
		jitter:     rand.Float64,
		done:       make(chan struct{}),
	}
	c.setState(Disconnected)
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() State { return State(c.state.Load()) }

// Attempts returns the number of dial attempts made so far.
func (c *Client) Attempts() uint64 { return c.attempts.Load() }

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
	connectionState.Set(float64(s))
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Connect dials until a connection is established. After a session ended in
// an I/O failure it first waits out the transient backoff for the current
// failure streak. Transient and server failures are retried after their
// class backoff; a fatal failure is returned immediately. It returns
// ErrClosed after Shutdown and ctx.Err() when ctx is cancelled.
func (c *Client) Connect(ctx context.Context) error {
	if c.State() != Connected {
		if delay := c.reconnectDelay(); delay > 0 {
			c.logger.Debug("Waiting before reconnect", zap.Duration("backoff", delay))
			if err := c.wait(ctx, delay); err != nil {
				return err
			}
		}
	}

	attempt := 0
	for {
		if c.closed() {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.State() == Connected {
			return nil
		}

		attempt++
		err := c.dial(ctx)
		if err == nil {
			return nil
		}
		if c.closed() {
			return ErrClosed
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ce := Classify(err, nil)
		if ce.Class == Fatal {
			c.logger.Error("Connection rejected, not retrying",
				zap.String("url", c.url.Redacted()),
				zap.Error(ce))
			return ce
		}

		delay := c.opts.Backoff.Delay(ce.Class, attempt, c.jitter())
		c.logger.Warn("Connection failed, retrying",
			zap.String("class", ce.Class.String()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(ce))

		if err := c.wait(ctx, delay); err != nil {
			return err
		}
	}
}

// reconnectDelay returns the transient backoff owed after a session ended in
// an I/O failure, or 0.
func (c *Client) reconnectDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.backoffPending {
		return 0
	}
	return c.opts.Backoff.Delay(Transient, c.streak, c.jitter())
}

// wait blocks for d unless ctx is cancelled or the client shuts down.
func (c *Client) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// dial performs one handshake attempt.
func (c *Client) dial(ctx context.Context) error {
	c.setState(Connecting)
	c.attempts.Add(1)

	dctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-dctx.Done():
		}
	}()

	id := uuid.NewString()
	header := c.header.Clone()
	header.Set(HeaderSession, id)

	conn, resp, err := c.opts.Dialer.DialContext(dctx, c.url.String(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.setState(Disconnected)
		ce := Classify(err, resp)
		connectAttempts.WithLabelValues(ce.Class.String()).Inc()
		return ce
	}
	connectAttempts.WithLabelValues("success").Inc()

	s := &session{id: id, conn: conn, done: make(chan struct{})}
	c.mu.Lock()
	if c.closed() {
		c.mu.Unlock()
		conn.Close()
		c.setState(Disconnected)
		return ErrClosed
	}
	c.cur = s
	c.backoffPending = false
	c.setState(Connected)
	c.mu.Unlock()

	c.logger.Info("Connected to collector",
		zap.String("url", c.url.Redacted()),
		zap.String("session", id),
		zap.String("encoding", c.codec.Name()))

	go c.readLoop(s)
	go c.pingLoop(s)
	return nil
}

// drop tears down a session once. The client falls back to Disconnected only
// if s is still the current session. A failed session makes the next Connect
// wait out the transient backoff; the streak restarts when the session had
// proven healthy.
func (c *Client) drop(s *session, reason string, failed bool, err error) {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()

		c.mu.Lock()
		if c.cur == s {
			c.cur = nil
			if failed {
				if s.healthy.Load() {
					c.streak = 0
				}
				c.streak++
				c.backoffPending = true
			}
			c.setState(Disconnected)
		}
		c.mu.Unlock()

		c.logger.Info("Connection dropped",
			zap.String("session", s.id),
			zap.String("reason", reason),
			zap.Error(err))
	})
}

// current returns the live session, or nil.
func (c *Client) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// controlMessage is the text frame the collector sends to steer the agent.
type controlMessage struct {
	Type string `json:"type"`
}

// readLoop consumes control frames until the connection fails or the
// collector asks the agent to reconnect.
func (c *Client) readLoop(s *session) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.healthy.Store(true)
		return s.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseServiceRestart, websocket.CloseTryAgainLater):
				c.drop(s, "collector requested reconnect", true, err)
			case isSessionDone(s):
			default:
				c.drop(s, "read failed", true, err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var msg controlMessage
		if json.Unmarshal(data, &msg) == nil && msg.Type == "refresh" {
			c.drop(s, "collector requested refresh", false, nil)
			return
		}
	}
}

// pingLoop keeps the connection alive. Pings are written under the writer
// lock so they never interleave with a report frame.
func (c *Client) pingLoop(s *session) {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.drop(s, "ping failed", true, err)
				return
			}
		}
	}
}

func isSessionDone(s *session) bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Send encodes and writes one report. Encoding failures are returned as
// *SerializationError without touching the connection. A write failure
// drops the connection and returns a transient *ConnectionError.
func (c *Client) Send(ctx context.Context, report *models.MachineReport) error {
	if c.closed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := c.codec.Encode(report)
	if err != nil {
		sendFailures.WithLabelValues("serialization").Inc()
		return &SerializationError{Err: err}
	}

	s := c.current()
	if s == nil || c.State() != Connected {
		return ErrNotConnected
	}

	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	err = s.conn.SetWriteDeadline(deadline)
	if err == nil {
		err = s.conn.WriteMessage(c.codec.MessageType(), data)
	}
	c.writeMu.Unlock()

	if err != nil {
		sendFailures.WithLabelValues("write").Inc()
		c.drop(s, "write failed", true, err)
		return &ConnectionError{Class: Transient, Err: fmt.Errorf("write report: %w", err)}
	}

	s.healthy.Store(true)
	messagesSent.Inc()
	bytesSent.Add(float64(len(data)))
	return nil
}

// Refresh closes the current connection normally and connects again.
func (c *Client) Refresh(ctx context.Context) error {
	c.closeCurrent("refresh")
	return c.Connect(ctx)
}

// closeCurrent sends a normal close frame and drops the live session.
func (c *Client) closeCurrent(reason string) {
	s := c.current()
	if s == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	c.writeMu.Lock()
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
	c.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("Close frame not sent", zap.Error(err))
	}
	c.drop(s, reason, false, nil)
}

// Shutdown stops the client. It wakes any backoff wait, aborts an in-flight
// handshake and closes the live connection. Safe to call more than once.
func (c *Client) Shutdown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		c.mu.Unlock()
		c.closeCurrent("shutdown")
		c.setState(Disconnected)
		c.logger.Info("Transport shut down")
	})
}
