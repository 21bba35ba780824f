package protocol

import (
	"fmt"

	"github.com/flashbots/maskagg/masking"
)

// ConfigurationError reports an invalid session configuration.
// It is always raised before any network action.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return "configuration error: " + e.Field + ": " + e.Reason
}

func configErrorf(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FormatError reports a payload that does not follow the wire grammar.
type FormatError struct {
	Payload string
	Reason  string
}

func (e *FormatError) Error() string {
	payload := e.Payload
	if len(payload) > 64 {
		payload = payload[:64] + "..."
	}
	return fmt.Sprintf("format error: %s (payload %q)", e.Reason, payload)
}

// RangeError reports a reading, mask or blinded value outside its bounds.
type RangeError struct {
	What  string
	Value int64
	Range masking.Range
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range error: %s %d outside %s", e.What, e.Value, e.Range)
}

func checkRange(what string, v int64, r masking.Range) error {
	if r.Contains(v) {
		return nil
	}
	return &RangeError{What: what, Value: v, Range: r}
}
