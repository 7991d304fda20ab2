package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Guliveer/hostpulse/internal/models"
)

// JSON encodes envelopes as UTF-8 JSON text frames.
type JSON struct {
	now func() time.Time
}

// NewJSON builds the JSON codec.
func NewJSON() *JSON {
	return &JSON{now: time.Now}
}

func (j *JSON) Name() string     { return "json" }
func (j *JSON) MessageType() int { return frameTypes["json"] }

// Encode wraps the report in an envelope and marshals it.
func (j *JSON) Encode(report *models.MachineReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("json encode: nil report")
	}
	data, err := json.Marshal(newEnvelope(report, j.now().UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}
	return data, nil
}

// Decode unmarshals an envelope and returns its report.
func (j *JSON) Decode(data []byte) (*models.MachineReport, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return unwrap(&env)
}
