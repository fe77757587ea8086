package pseudotype

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed marks a stored composite value that could not be decoded.
var ErrMalformed = errors.New("malformed composite value")

// Decode parses a stored composite value of the given kind. On failure it
// returns the raw value unchanged together with an error wrapping
// ErrMalformed; callers treat that as a warning, not a row failure.
// Scalars and NULL are returned as they are.
func Decode(raw any, kind Kind) (any, error) {
	if raw == nil || kind == Scalar {
		return raw, nil
	}

	var text string
	switch v := raw.(type) {
	case string:
		text = v
	case []byte:
		text = string(v)
	default:
		return raw, fmt.Errorf("%w: %s column holds %T", ErrMalformed, kind, raw)
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return raw, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if dec.More() {
		return raw, fmt.Errorf("%w: trailing data", ErrMalformed)
	}

	switch kind {
	case Array:
		if _, ok := out.([]any); !ok {
			return raw, fmt.Errorf("%w: want array, got %T", ErrMalformed, out)
		}
	case Object:
		if _, ok := out.(map[string]any); !ok {
			return raw, fmt.Errorf("%w: want object, got %T", ErrMalformed, out)
		}
	}
	return out, nil
}

// Encode serializes a structured value for storage. Map keys come out
// sorted, so unchanged data encodes to identical bytes on every run.
// Strings (including values that failed to decode) pass through.
func Encode(v any) (any, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode composite value: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Structured reports whether v is a decoded composite.
func Structured(v any) bool {
	switch v.(type) {
	case []any, map[string]any, []string:
		return true
	}
	return false
}
