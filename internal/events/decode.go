package events

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses a text frame into an Envelope. The frame must be a JSON
// object with a known type and a non-null object data field. All failures
// wrap ErrDecode.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrDecode)
	}
	if !env.Type.Known() {
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrDecode, env.Type)
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Envelope{}, fmt.Errorf("%w: missing data for %s", ErrDecode, env.Type)
	}
	if data[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: data for %s is not an object", ErrDecode, env.Type)
	}

	env.Data = data
	return env, nil
}

// Encode renders an envelope back to its wire form.
func Encode(t EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(Envelope{Type: t, Data: data})
}
