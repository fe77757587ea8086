package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotNull marks a row whose NOT NULL target column resolved to NULL.
	ErrNotNull = errors.New("NOT NULL column resolved to NULL")

	// ErrUnsupportedValue marks a resolved value that can be neither bound
	// nor stored as JSON.
	ErrUnsupportedValue = errors.New("unsupported value type")

	// ErrInterrupted is recorded on tables never started because the run was cancelled.
	ErrInterrupted = errors.New("interrupted")

	// ErrAttachmentMissing marks an attachment absent from the source tree.
	ErrAttachmentMissing = errors.New("attachment missing")

	// ErrAttachmentOversized marks an attachment above the size ceiling that
	// nothing shrank.
	ErrAttachmentOversized = errors.New("attachment oversized")
)

// DatabaseError is a read or write failure that rolled a whole table back.
type DatabaseError struct {
	Table string
	Op    string // read, begin, insert, commit
	Row   string
	Err   error
}

func (e *DatabaseError) Error() string {
	if e.Row != "" {
		return fmt.Sprintf("database: table %s %s (row %s): %v", e.Table, e.Op, e.Row, e.Err)
	}
	return fmt.Sprintf("database: table %s %s: %v", e.Table, e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// AttachmentError is a non-fatal finding about one row's file.
type AttachmentError struct {
	Table string
	Row   string
	Path  string
	Err   error
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attachment: table %s row %s %s: %v", e.Table, e.Row, e.Path, e.Err)
}

func (e *AttachmentError) Unwrap() error {
	return e.Err
}
