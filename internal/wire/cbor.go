package wire

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Guliveer/hostpulse/internal/models"
)

// CBOR encodes envelopes with core deterministic encoding (RFC 8949 §4.2.1),
// so identical reports always produce identical bytes.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
	now func() time.Time
}

// NewCBOR builds the CBOR codec.
func NewCBOR() (*CBOR, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encode mode: %w", err)
	}
	dec, err := cbor.DecOptions{
		MaxArrayElements: 1 << 20,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decode mode: %w", err)
	}
	return &CBOR{enc: enc, dec: dec, now: time.Now}, nil
}

func (c *CBOR) Name() string     { return "cbor" }
func (c *CBOR) MessageType() int { return frameTypes["cbor"] }

// Encode wraps the report in an envelope and marshals it.
func (c *CBOR) Encode(report *models.MachineReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("cbor encode: nil report")
	}
	data, err := c.enc.Marshal(newEnvelope(report, c.now().UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}
	return data, nil
}

// Decode unmarshals an envelope and returns its report.
func (c *CBOR) Decode(data []byte) (*models.MachineReport, error) {
	var env Envelope
	if err := c.dec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("cbor decode: %w", err)
	}
	return unwrap(&env)
}
