package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Class is the retry class of a connection failure.
type Class int

const (
	// Transient failures (network errors, timeouts, 408) are retried with the
	// base backoff policy.
	Transient Class = iota
	// Server failures (5xx, 429) are retried with the longer server policy.
	Server
	// Fatal failures (auth, protocol, malformed configuration) are never retried.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Server:
		return "server"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

var (
	// ErrNotConnected is returned by Send when there is no live connection.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrClosed is returned once Shutdown has been called.
	ErrClosed = errors.New("transport: closed")
)

// ConnectionError is a classified connect or send failure.
type ConnectionError struct {
	Class      Class
	StatusCode int // handshake HTTP status, 0 when there was no response
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s connection error (HTTP %d): %v", e.Class, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s connection error: %v", e.Class, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SerializationError means a report could not be encoded. The connection is
// unaffected and retrying the same report will fail again.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string { return "serialize report: " + e.Err.Error() }

func (e *SerializationError) Unwrap() error { return e.Err }

// IsFatal reports whether err is a fatal ConnectionError.
func IsFatal(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce) && ce.Class == Fatal
}

// Classify maps a dial error and the optional handshake response to a
// ConnectionError.
func Classify(err error, resp *http.Response) *ConnectionError {
	if err == nil {
		return nil
	}
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return ce
	}

	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		class := Fatal
		switch code := resp.StatusCode; {
		case code >= 500, code == http.StatusTooManyRequests:
			class = Server
		case code == http.StatusRequestTimeout:
			class = Transient
		}
		return &ConnectionError{
			Class:      class,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("handshake rejected with %q: %w", resp.Status, err),
		}
	}

	if errors.Is(err, websocket.ErrBadHandshake) {
		return &ConnectionError{Class: Fatal, Err: err}
	}
	return &ConnectionError{Class: Transient, Err: err}
}
