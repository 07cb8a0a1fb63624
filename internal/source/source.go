package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"energy-meter/internal/meter"
)

// Sink receives untyped reading records from a source.
type Sink interface {
	Ingest(ctx context.Context, raw map[string]any) (meter.Result, error)
}

// ErrEmptyPayload is returned by Decode for blank input.
var ErrEmptyPayload = errors.New("empty payload")

// Decode parses one JSON object. Numbers are kept as json.Number so that
// validation sees exactly what the device sent.
func Decode(payload []byte) (map[string]any, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode reading: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode reading: payload is not a JSON object")
	}
	if dec.More() {
		return nil, fmt.Errorf("decode reading: trailing data after object")
	}
	return raw, nil
}
