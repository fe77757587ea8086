package pseudotype

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedConversion is returned when no rule exists between two kinds.
// The value is passed through untouched.
var ErrUnsupportedConversion = errors.New("unsupported pseudotype conversion")

// Convert adapts a decoded value copied between columns of different kinds.
// A scalar becomes a one-element array unless it already holds a JSON array;
// an array becomes its first element, or "" when empty.
func Convert(v any, from, to Kind) (any, error) {
	if v == nil || from == to {
		return v, nil
	}

	switch {
	case from == Scalar && to == Array:
		if s, ok := v.(string); ok && looksLikeArray(s) {
			if decoded, err := Decode(s, Array); err == nil {
				return decoded, nil
			}
		}
		return []any{stringify(v)}, nil

	case from == Array && to == Scalar:
		arr, ok := v.([]any)
		if !ok {
			// Decode failed earlier; retry on the raw text.
			decoded, err := Decode(v, Array)
			if err != nil {
				return v, nil
			}
			arr = decoded.([]any)
		}
		if len(arr) == 0 {
			return "", nil
		}
		return arr[0], nil
	}

	return v, fmt.Errorf("%w: %s -> %s", ErrUnsupportedConversion, from, to)
}

func looksLikeArray(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]")
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v)
}
