package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Ring/internal/domain"
	"github.com/rs/xid"
)

// Envelope is one signaling frame. Body is kind-specific and relayed verbatim.
type Envelope struct {
	Type Event           `json:"type"`
	ID   string          `json:"id,omitempty"`
	From domain.UserID   `json:"from,omitempty"`
	To   domain.UserID   `json:"to,omitempty"`
	Body json.RawMessage `json:"body,omitempty"`
}

// NewEnvelope builds an envelope with a fresh id and body marshalled as JSON.
func NewEnvelope(t Event, to domain.UserID, body any) (*Envelope, error) {
	env := &Envelope{Type: t, ID: xid.New().String(), To: to}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", t, err)
		}
		env.Body = b
	}
	return env, nil
}

// Decode parses a frame. It does not check the event type.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", domain.ErrMalformedMessage)
	}
	return &env, nil
}

// Encode marshals the envelope for the wire.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeBody unmarshals Body into v.
func (e *Envelope) DecodeBody(v any) error {
	if len(e.Body) == 0 {
		return fmt.Errorf("%w: %s without body", domain.ErrMalformedMessage, e.Type)
	}
	if err := json.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("%w: %s body: %v", domain.ErrMalformedMessage, e.Type, err)
	}
	return nil
}
