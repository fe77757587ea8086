package schema

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTableMissing indicates a table absent from a live database.
	ErrTableMissing = errors.New("table not found")

	// ErrColumnMissing indicates a column absent from a live or declared schema.
	ErrColumnMissing = errors.New("column not found")

	// ErrInvalidDescriptor indicates a malformed or contradictory descriptor.
	ErrInvalidDescriptor = errors.New("invalid descriptor")
)

// ConfigError reports a descriptor problem. It is fatal for the whole run.
type ConfigError struct {
	Table  string
	Column string
	Err    error
}

func (e *ConfigError) Error() string {
	switch {
	case e.Table != "" && e.Column != "":
		return fmt.Sprintf("config: table %s column %s: %v", e.Table, e.Column, e.Err)
	case e.Table != "":
		return fmt.Sprintf("config: table %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(table, column, format string, args ...any) *ConfigError {
	return &ConfigError{Table: table, Column: column, Err: fmt.Errorf("%w: %s", ErrInvalidDescriptor, fmt.Sprintf(format, args...))}
}

// SchemaError reports a live schema that disagrees with the descriptor for
// one table. The table is skipped; the run goes on.
type SchemaError struct {
	Table    string
	Problems []string
	Err      error
}

func (e *SchemaError) Error() string {
	if len(e.Problems) == 0 {
		return fmt.Sprintf("schema: table %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("schema: table %s: %s", e.Table, strings.Join(e.Problems, "; "))
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}
