// Package wire defines the on-the-wire representation of machine reports.
// Every report travels inside a versioned Envelope, encoded by a Codec.
package wire

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Guliveer/hostpulse/internal/models"
)

// Version is the envelope version written by this agent.
const Version = 1

// KindMachineReport is the envelope kind for a MachineReport payload.
const KindMachineReport = "machine_report"

// ErrUnsupportedVersion is returned when decoding an envelope of a version
// this agent does not understand.
var ErrUnsupportedVersion = errors.New("unsupported envelope version")

// Envelope wraps a report with the protocol version and send time.
type Envelope struct {
	V      int                  `json:"v" cbor:"v"`
	Kind   string               `json:"kind" cbor:"kind"`
	SentAt int64                `json:"sent_at" cbor:"sent_at"` // Unix milliseconds
	Report models.MachineReport `json:"report" cbor:"report"`
}

// Codec serialises reports for a single encoding.
type Codec interface {
	// Name is the value advertised in the encoding handshake header.
	Name() string
	// MessageType is the websocket frame type the encoding is sent in.
	MessageType() int
	Encode(report *models.MachineReport) ([]byte, error)
	Decode(data []byte) (*models.MachineReport, error)
}

// New returns the codec registered under name ("cbor" or "json").
// An empty name selects CBOR.
func New(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "cbor":
		return NewCBOR()
	case "json":
		return NewJSON(), nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
}

// newEnvelope builds the envelope for a report about to be sent.
func newEnvelope(report *models.MachineReport, sentAt int64) Envelope {
	return Envelope{
		V:      Version,
		Kind:   KindMachineReport,
		SentAt: sentAt,
		Report: *report,
	}
}

// unwrap validates a decoded envelope and returns its report.
func unwrap(env *Envelope) (*models.MachineReport, error) {
	if env.V != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.V)
	}
	if env.Kind != KindMachineReport {
		return nil, fmt.Errorf("unexpected envelope kind %q", env.Kind)
	}
	report := env.Report
	return &report, nil
}

// frameTypes maps codec names to websocket frame types.
var frameTypes = map[string]int{
	"cbor": websocket.BinaryMessage,
	"json": websocket.TextMessage,
}
