package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"

	"db-migrate/internal/pseudotype"
	"db-migrate/internal/schema"
)

// Cast target types accepted by the cast transform.
const (
	TypeInteger = "integer"
	TypeReal    = "real"
	TypeText    = "text"
	TypeBoolean = "boolean"
)

func registerBuiltins(r *Registry) {
	mustRegister(r, "identity", identity, exactColumns(1))
	mustRegister(r, "constant", constant, requireParam("value"))
	mustRegister(r, "cast", castValue, validateCast)
}

func mustRegister(r *Registry, name string, fn Func, validate Validator) {
	if err := r.RegisterValidated(name, fn, validate); err != nil {
		panic(err)
	}
}

func identity(row schema.Row, call Call) (any, error) {
	return call.Column(row, 0), nil
}

func constant(_ schema.Row, call Call) (any, error) {
	v, _ := call.Param("value")
	return v, nil
}

func castValue(row schema.Row, call Call) (any, error) {
	typ, _ := call.Param("type")
	return Cast(call.Column(row, 0), fmt.Sprint(typ))
}

func validateCast(columns []string, params map[string]any) error {
	if err := exactColumns(1)(columns, params); err != nil {
		return err
	}
	typ, ok := params["type"]
	if !ok {
		return errors.New(`missing param "type"`)
	}
	switch fmt.Sprint(typ) {
	case TypeInteger, TypeReal, TypeText, TypeBoolean:
		return nil
	}
	return fmt.Errorf("unsupported cast type %v", typ)
}

func requireParam(name string) Validator {
	return func(_ []string, params map[string]any) error {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("missing param %q", name)
		}
		return nil
	}
}

// Cast converts a scalar to the named storage type. NULL stays NULL.
// Values that cannot be represented fail with ErrCast.
func Cast(v any, typ string) (any, error) {
	v = normalize(v)
	if v == nil {
		return nil, nil
	}

	var (
		out any
		err error
	)
	switch typ {
	case TypeInteger:
		out, err = toInt(v)
	case TypeReal:
		out, err = toFloat(v)
	case TypeText:
		out, err = toText(v)
	case TypeBoolean:
		out, err = toBool(v)
	default:
		return nil, fmt.Errorf("%w: unsupported type %q", ErrCast, typ)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v to %s", ErrCast, v, typ)
	}
	return out, nil
}

// normalize folds driver and decoder representations into plain scalars.
func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return strings.TrimSpace(string(t))
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	}
	return v
}

// toInt reads strings as base-10 numbers; fractional values truncate
// toward zero and must fit in an int64.
func toInt(v any) (int64, error) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return 0, errors.New("empty string")
		}
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("not a decimal number: %q", t)
		}
		return truncate(f)
	case float64:
		return truncate(t)
	case float32:
		return truncate(float64(t))
	}
	return cast.ToInt64E(v)
}

func truncate(f float64) (int64, error) {
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%v is out of integer range", f)
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	if s, ok := v.(string); ok && s == "" {
		return 0, errors.New("empty string")
	}
	return cast.ToFloat64E(v)
}

func toText(v any) (string, error) {
	if pseudotype.Structured(v) {
		enc, err := pseudotype.Encode(v)
		if err != nil {
			return "", err
		}
		return enc.(string), nil
	}
	return cast.ToStringE(v)
}

// toBool yields 1 or 0, SQLite's boolean storage.
func toBool(v any) (int64, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(s) {
		case "yes", "y", "on":
			return 1, nil
		case "no", "n", "off":
			return 0, nil
		}
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return 0, err
	}
	if b {
		return 1, nil
	}
	return 0, nil
}
