package streams

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope is the JSON document stored under the "envelope" field of every
// stream entry.
type Envelope struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	PayloadVersion string          `json:"payload_version"`
	OccurredAt     time.Time       `json:"occurred_at"`
	TraceID        string          `json:"trace_id,omitempty"`
	Data           json.RawMessage `json:"data"`
}

// check reports the first missing header field and defaults OccurredAt.
func (e *Envelope) check() error {
	var missing string
	switch {
	case e.EventID == "":
		missing = "event_id"
	case e.EventType == "":
		missing = "event_type"
	case e.PayloadVersion == "":
		missing = "payload_version"
	case len(e.Data) == 0 || string(e.Data) == "null":
		missing = "data"
	}
	if missing != "" {
		return fmt.Errorf("envelope: %s is required", missing)
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return nil
}

func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.EventType, err)
	}
	return nil
}

// UnmarshalEnvelope parses a stored envelope and checks its header.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if len(b) == 0 {
		return env, errors.New("envelope: empty entry")
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("envelope: %w", err)
	}
	if err := env.check(); err != nil {
		return env, err
	}
	return env, nil
}
