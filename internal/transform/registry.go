package transform

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"db-migrate/internal/schema"
)

var (
	// ErrUnknownTransform is returned for names nobody registered.
	ErrUnknownTransform = errors.New("unknown transform")

	// ErrCast marks a value that cannot be converted to the requested type.
	ErrCast = errors.New("cast failed")
)

// Call is one bound use of a transform: its declared input columns and the
// literal parameters written next to it.
type Call struct {
	Name    string
	Columns []string
	Params  map[string]any
}

// Column returns the i-th input value of the row.
func (c Call) Column(row schema.Row, i int) any {
	if i < 0 || i >= len(c.Columns) {
		return nil
	}
	return row[c.Columns[i]]
}

// Param returns a literal parameter.
func (c Call) Param(name string) (any, bool) {
	v, ok := c.Params[name]
	return v, ok
}

// Func computes a target value from a decoded source row. It must only
// read the call's columns and parameters and must not perform I/O.
type Func func(row schema.Row, call Call) (any, error)

// Validator checks a call's shape at descriptor load time.
type Validator func(columns []string, params map[string]any) error

type entry struct {
	fn       Func
	validate Validator
}

// TransformError reports a transform that failed for a single row.
type TransformError struct {
	Name   string
	Column string // target column
	Err    error
}

func (e *TransformError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("transform %s (column %s): %v", e.Name, e.Column, e.Err)
	}
	return fmt.Sprintf("transform %s: %v", e.Name, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// Registry maps transform names to functions. It is filled before the
// descriptor is loaded and only read afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry returns a registry holding the built-in transforms.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]entry)}
	registerBuiltins(r)
	return r
}

// Register adds a custom transform. Names are unique.
func (r *Registry) Register(name string, fn Func) error {
	return r.RegisterValidated(name, fn, nil)
}

// RegisterValidated adds a transform with a load-time shape check.
func (r *Registry) RegisterValidated(name string, fn Func, validate Validator) error {
	if name == "" {
		return errors.New("transform name is empty")
	}
	if fn == nil {
		return fmt.Errorf("transform %s: nil function", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("transform %s already registered", name)
	}
	r.entries[name] = entry{fn: fn, validate: validate}
	return nil
}

// Names lists registered transforms alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check validates a reference found in a descriptor.
func (r *Registry) Check(name string, columns []string, params map[string]any) error {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s (available: %s)", ErrUnknownTransform, name, strings.Join(r.Names(), ", "))
	}
	if e.validate == nil {
		return nil
	}
	if err := e.validate(columns, params); err != nil {
		return fmt.Errorf("transform %s: %w", name, err)
	}
	return nil
}

// Apply runs a transform for one row. Errors and panics come back as
// *TransformError.
func (r *Registry) Apply(call Call, row schema.Row) (value any, err error) {
	r.mu.RLock()
	e, ok := r.entries[call.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, &TransformError{Name: call.Name, Err: ErrUnknownTransform}
	}

	defer func() {
		if p := recover(); p != nil {
			value = nil
			err = &TransformError{Name: call.Name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	value, err = e.fn(row, call)
	if err != nil {
		var te *TransformError
		if errors.As(err, &te) {
			return nil, err
		}
		return nil, &TransformError{Name: call.Name, Err: err}
	}
	return value, nil
}

// exactColumns is a Validator for transforms with fixed arity.
func exactColumns(n int) Validator {
	return func(columns []string, _ map[string]any) error {
		if len(columns) != n {
			return fmt.Errorf("takes %d column(s), got %d", n, len(columns))
		}
		return nil
	}
}

func minColumns(n int) Validator {
	return func(columns []string, _ map[string]any) error {
		if len(columns) < n {
			return fmt.Errorf("takes at least %d column(s), got %d", n, len(columns))
		}
		return nil
	}
}
