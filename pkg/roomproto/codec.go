package roomproto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownType  = errors.New("unknown message type")
	ErrBadPayload   = errors.New("malformed message")
	ErrMissingField = errors.New("missing required field")
)

// validator is implemented by payloads with required fields.
type validator interface {
	validate() error
}

// Envelope is the frame exchanged on the socket.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound is a typed message waiting to be framed.
type Outbound struct {
	Type string
	Data any
}

// Marshal frames an outbound message.
func (o Outbound) Marshal() ([]byte, error) {
	data, err := json.Marshal(o.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", o.Type, err)
	}
	return json.Marshal(Envelope{Type: o.Type, Data: data})
}

// Decode parses a raw frame into one of the inbound message structs.
// Unknown types and unknown fields are rejected.
func Decode(raw []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	var msg any
	switch env.Type {
	case TypeIdentify:
		msg = &Identify{}
	case TypeSetName:
		msg = &SetName{}
	case TypeSetTimeControl, TypeProposeStart:
		msg = &TimeControl{}
	case TypeCancelStart:
		msg = &CancelStart{}
	case TypeRespondStart:
		msg = &RespondStart{}
	case TypeMove:
		msg = &Move{}
	case TypeForfeit:
		msg = &Forfeit{}
	case TypeStart:
		msg = &Start{}
	case TypeHardReset:
		msg = &HardReset{}
	default:
		return env.Type, nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err := decodeStrict(env.Data, msg); err != nil {
		return env.Type, nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Type, err)
	}
	if v, ok := msg.(validator); ok {
		if err := v.validate(); err != nil {
			return env.Type, nil, fmt.Errorf("%s: %w", env.Type, err)
		}
	}
	return env.Type, msg, nil
}

func decodeStrict(data json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}

// ErrorText maps a decode error to the message sent back to the client.
func ErrorText(err error) string {
	switch {
	case errors.Is(err, ErrUnknownType):
		return "Unknown message type"
	case errors.Is(err, ErrMissingField):
		return "Missing required field"
	case err == nil:
		return ""
	default:
		return "Malformed message"
	}
}
