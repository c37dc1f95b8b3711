package module

import (
	"fmt"
	"strconv"
	"strings"
)

// Values is the raw (string-typed) settings map handed to a module's
// parser, merging manifest defaults with stored overrides.
type Values map[string]string

// ParseError reports a single settings validation failure, keyed by the
// offending setting name (spec.md §4.3 "raising a validation error").
type ParseError struct {
	Module string
	Key    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("module %s: setting %q: %s", e.Module, e.Key, e.Reason)
}

// String returns v[key], or def if absent/empty.
func (v Values) String(key, def string) string {
	if s, ok := v[key]; ok && s != "" {
		return s
	}
	return def
}

// RequireString returns v[key], erroring if it is absent or empty.
func (v Values) RequireString(module, key string) (string, error) {
	s, ok := v[key]
	if !ok || s == "" {
		return "", &ParseError{Module: module, Key: key, Reason: "required"}
	}
	return s, nil
}

// Bool coerces a string-encoded boolean, tolerant of "true"/"false"/"1"/"0"
// (spec.md §4.3: "must tolerate string-encoded booleans").
func (v Values) Bool(module, key string, def bool) (bool, error) {
	s, ok := v[key]
	if !ok || s == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, &ParseError{Module: module, Key: key, Reason: fmt.Sprintf("not a valid boolean: %q", s)}
	}
}

// Int coerces a string-encoded integer.
func (v Values) Int(module, key string, def int) (int, error) {
	s, ok := v[key]
	if !ok || s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &ParseError{Module: module, Key: key, Reason: fmt.Sprintf("not a valid integer: %q", s)}
	}
	return n, nil
}

// PositiveInt coerces a string-encoded strictly-positive integer, for
// settings like poll intervals or concurrency limits that must reject
// zero/negative values (spec.md §8 "zero/negative thresholds where
// disallowed ⇒ raise").
func (v Values) PositiveInt(module, key string, def int) (int, error) {
	n, err := v.Int(module, key, def)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, &ParseError{Module: module, Key: key, Reason: fmt.Sprintf("must be positive, got %d", n)}
	}
	return n, nil
}

// Float coerces a string-encoded float.
func (v Values) Float(module, key string, def float64) (float64, error) {
	s, ok := v[key]
	if !ok || s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &ParseError{Module: module, Key: key, Reason: fmt.Sprintf("not a valid number: %q", s)}
	}
	return f, nil
}
