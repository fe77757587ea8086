package transform

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"db-migrate/internal/pseudotype"
	"db-migrate/internal/schema"
)

// timestampLayouts are tried in order by extract_date.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// RegisterStandard adds the helper transforms used by typical descriptors.
func RegisterStandard(r *Registry) error {
	var errs []error
	add := func(name string, fn Func, validate Validator) {
		errs = append(errs, r.RegisterValidated(name, fn, validate))
	}

	add("count_array", countArray, exactColumns(1))
	add("first_element", firstElement, exactColumns(1))
	add("wrap_array", wrapArray, exactColumns(1))
	add("title", title, exactColumns(1))
	add("extract_date", extractDate, exactColumns(1))
	add("combine", combine, minColumns(1))
	add("coerce_int", lenient(TypeInteger), exactColumns(1))
	add("coerce_float", lenient(TypeReal), exactColumns(1))
	add("coerce_bool", lenient(TypeBoolean), exactColumns(1))

	return errors.Join(errs...)
}

// asArray accepts a decoded array or its stored text.
func asArray(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case string, []byte:
		decoded, err := pseudotype.Decode(t, pseudotype.Array)
		if err != nil {
			return nil, err
		}
		return decoded.([]any), nil
	}
	return nil, fmt.Errorf("not an array: %T", v)
}

func countArray(row schema.Row, call Call) (any, error) {
	v := call.Column(row, 0)
	if v == nil {
		return int64(0), nil
	}
	arr, err := asArray(v)
	if err != nil {
		return nil, err
	}
	return int64(len(arr)), nil
}

func firstElement(row schema.Row, call Call) (any, error) {
	v := call.Column(row, 0)
	if v == nil {
		return nil, nil
	}
	arr, err := asArray(v)
	if err != nil {
		return nil, err
	}
	if len(arr) == 0 {
		return nil, nil
	}
	return arr[0], nil
}

func wrapArray(row schema.Row, call Call) (any, error) {
	v := call.Column(row, 0)
	if v == nil {
		return nil, nil
	}
	if arr, err := asArray(v); err == nil {
		return arr, nil
	}
	return []any{v}, nil
}

var titleCaser = cases.Title(language.Und)

func title(row schema.Row, call Call) (any, error) {
	v := call.Column(row, 0)
	if v == nil {
		return nil, nil
	}
	s, err := toText(normalize(v))
	if err != nil {
		return nil, err
	}
	return titleCaser.String(s), nil
}

func extractDate(row schema.Row, call Call) (any, error) {
	v := normalize(call.Column(row, 0))
	if v == nil || v == "" {
		return nil, nil
	}
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02"), nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a timestamp", ErrCast, v)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not a timestamp", ErrCast, s)
}

// combine joins the non-NULL inputs with params.separator (default " ").
func combine(row schema.Row, call Call) (any, error) {
	sep := " "
	if p, ok := call.Param("separator"); ok {
		sep = fmt.Sprint(p)
	}

	var parts []string
	for i := range call.Columns {
		v := normalize(call.Column(row, i))
		if v == nil || v == "" {
			continue
		}
		s, err := toText(v)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return strings.Join(parts, sep), nil
}

// lenient casts and turns failures into NULL.
func lenient(typ string) Func {
	return func(row schema.Row, call Call) (any, error) {
		v, err := Cast(call.Column(row, 0), typ)
		if err != nil {
			return nil, nil
		}
		return v, nil
	}
}
