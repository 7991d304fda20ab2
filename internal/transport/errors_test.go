package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

	tests := []struct {
		name   string
		err    error
		status int
		want   Class
	}{
		{"connection refused", refused, 0, Transient},
		{"eof", io.ErrUnexpectedEOF, 0, Transient},
		{"deadline", context.DeadlineExceeded, 0, Transient},
		{"dns", &net.DNSError{Err: "no such host", Name: "collector.invalid"}, 0, Transient},
		{"internal server error", websocket.ErrBadHandshake, http.StatusInternalServerError, Server},
		{"bad gateway", websocket.ErrBadHandshake, http.StatusBadGateway, Server},
		{"too many requests", websocket.ErrBadHandshake, http.StatusTooManyRequests, Server},
		{"request timeout", websocket.ErrBadHandshake, http.StatusRequestTimeout, Transient},
		{"unauthorized", websocket.ErrBadHandshake, http.StatusUnauthorized, Fatal},
		{"forbidden", websocket.ErrBadHandshake, http.StatusForbidden, Fatal},
		{"not found", websocket.ErrBadHandshake, http.StatusNotFound, Fatal},
		{"plain http ok", websocket.ErrBadHandshake, http.StatusOK, Fatal},
		{"bad handshake without response", websocket.ErrBadHandshake, 0, Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.status != 0 {
				resp = &http.Response{StatusCode: tt.status, Status: http.StatusText(tt.status)}
			}
			ce := Classify(tt.err, resp)
			require.NotNil(t, ce)
			assert.Equal(t, tt.want, ce.Class)
			assert.Equal(t, tt.status, ce.StatusCode)
			assert.ErrorIs(t, ce, tt.err)
		})
	}
}

func TestClassifyKeepsExistingClass(t *testing.T) {
	orig := &ConnectionError{Class: Server, Err: errors.New("overloaded")}
	assert.Same(t, orig, Classify(fmt.Errorf("wrapped: %w", orig), nil))
	assert.Nil(t, Classify(nil, nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(fmt.Errorf("connect: %w", &ConnectionError{Class: Fatal, Err: io.EOF})))
	assert.False(t, IsFatal(&ConnectionError{Class: Transient, Err: io.EOF}))
	assert.False(t, IsFatal(ErrClosed))
}

func TestSerializationErrorUnwraps(t *testing.T) {
	inner := errors.New("json: unsupported value: NaN")
	err := error(&SerializationError{Err: inner})
	var se *SerializationError
	assert.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, inner)
}

func TestBackoff(t *testing.T) {
	b := DefaultBackoff()

	tests := []struct {
		class   Class
		attempt int
		want    time.Duration
	}{
		{Transient, 1, 2 * time.Second},
		{Transient, 2, 4 * time.Second},
		{Transient, 4, 16 * time.Second},
		{Transient, 5, 30 * time.Second},
		{Transient, 50, 30 * time.Second},
		{Server, 1, 5 * time.Second},
		{Server, 3, 20 * time.Second},
		{Server, 10, 2 * time.Minute},
		{Transient, 0, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.class, tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.want, b.Min(tt.class, tt.attempt))
		})
	}
}

func TestBackoffJitterOnlyAdds(t *testing.T) {
	b := DefaultBackoff()
	for _, r := range []float64{0, 0.25, 0.5, 0.999} {
		d := b.Delay(Transient, 1, r)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 2*time.Second+200*time.Millisecond)
	}
}
