package meter

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Wire names of the required reading fields.
const (
	FieldVoltageRMS = "voltage_rms"
	FieldCurrentRMS = "current_rms"
	FieldPower      = "power"
)

// ErrValidation is matched by every reading validation failure.
var ErrValidation = errors.New("invalid reading")

// MissingFieldError reports a required field that is absent, null or not numeric.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *MissingFieldError) Is(target error) bool { return target == ErrValidation }

// InvalidFieldError reports a numeric field outside the accepted domain.
type InvalidFieldError struct {
	Field string
	Value float64
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("field %q has invalid value %v", e.Field, e.Value)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *InvalidFieldError) Is(target error) bool { return target == ErrValidation }

// Reading is one instantaneous sample stamped with its ingestion time.
type Reading struct {
	Timestamp  time.Time `json:"timestamp"`
	VoltageRMS float64   `json:"voltage_rms"`
	CurrentRMS float64   `json:"current_rms"`
	Power      float64   `json:"power"`
}

// ParseReading validates an untyped record and stamps it with now.
// Zero is a legitimate value for every field.
func ParseReading(raw map[string]any, now time.Time) (Reading, error) {
	voltage, err := numberField(raw, FieldVoltageRMS)
	if err != nil {
		return Reading{}, err
	}
	current, err := numberField(raw, FieldCurrentRMS)
	if err != nil {
		return Reading{}, err
	}
	power, err := numberField(raw, FieldPower)
	if err != nil {
		return Reading{}, err
	}
	return Reading{
		Timestamp:  now,
		VoltageRMS: voltage,
		CurrentRMS: current,
		Power:      power,
	}, nil
}

func numberField(raw map[string]any, field string) (float64, error) {
	value, ok := raw[field]
	if !ok || value == nil {
		return 0, &MissingFieldError{Field: field}
	}
	f, ok := toFloat(value)
	if !ok {
		return 0, &MissingFieldError{Field: field}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, &InvalidFieldError{Field: field, Value: f}
	}
	return f, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
