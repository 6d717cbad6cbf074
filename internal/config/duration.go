package config

import (
	"fmt"
	"strings"
	"time"
)

// FieldError ties a config problem to its dotted key.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Err.Error() }
func (e *FieldError) Unwrap() error { return e.Err }

// ParseDurationField parses a Go duration. Empty means 0; negatives are
// rejected.
func ParseDurationField(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, &FieldError{Field: field, Err: fmt.Errorf("invalid duration %q: %w", raw, err)}
	case d < 0:
		return 0, &FieldError{Field: field, Err: fmt.Errorf("duration %s is negative", d)}
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
