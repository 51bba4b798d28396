package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrUnknownMessage is returned by contracts for a message they do not handle.
var ErrUnknownMessage = errors.New("unknown message")

// Wrap encodes body as a single-variant message: {"name": body}.
func Wrap(name string, body interface{}) (json.RawMessage, error) {
	if body == nil {
		body = struct{}{}
	}
	inner, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}
	return json.Marshal(map[string]json.RawMessage{name: inner})
}

// MustWrap is Wrap for bodies that always marshal.
func MustWrap(name string, body interface{}) json.RawMessage {
	raw, err := Wrap(name, body)
	if err != nil {
		panic(err)
	}
	return raw
}

// Unwrap splits a single-variant message into its name and body.
func Unwrap(raw []byte) (string, json.RawMessage, error) {
	var variants map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&variants); err != nil {
		return "", nil, fmt.Errorf("decode message: %w", err)
	}
	if len(variants) != 1 {
		return "", nil, fmt.Errorf("decode message: expected one variant, got %d", len(variants))
	}
	for name, body := range variants {
		if len(body) == 0 || string(body) == "null" {
			body = json.RawMessage("{}")
		}
		return name, body, nil
	}
	return "", nil, fmt.Errorf("decode message: empty")
}

// Decode unmarshals a message body, rejecting unknown fields.
func Decode(body []byte, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// Hex renders payload bytes for logs and journals.
func Hex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hexutil.Encode(b)
}

// Unknown builds the error for an unhandled variant.
func Unknown(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownMessage, name)
}
