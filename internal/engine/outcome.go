package engine

import (
	"errors"
	"fmt"
	"time"

	"db-migrate/internal/pseudotype"
)

// Status is the overall result of a run.
type Status int

const (
	StatusCompleted Status = iota
	StatusPartiallyFailed
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "Completed"
	case StatusPartiallyFailed:
		return "PartiallyFailed"
	case StatusAborted:
		return "Aborted"
	}
	return "Unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Process exit codes per status.
const (
	ExitCompleted       = 0
	ExitFailure         = 1
	ExitPartiallyFailed = 2
	ExitAborted         = 3
)

// ExitCode maps a status to the process exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusCompleted:
		return ExitCompleted
	case StatusPartiallyFailed:
		return ExitPartiallyFailed
	}
	return ExitAborted
}

// State is the orchestrator's lifecycle position.
type State string

const (
	StatePending    State = "pending"
	StateValidating State = "validating"
	StateMigrating  State = "migrating"
	StateFinished   State = "finished"
)

// TableStatus is the fate of one table.
type TableStatus string

const (
	TablePending    TableStatus = "pending"
	TableCommitted  TableStatus = "committed"
	TableRolledBack TableStatus = "rolled_back"
	TableSkipped    TableStatus = "skipped"
	TablePlanned    TableStatus = "planned" // dry run
)

const (
	maxWarnings           = 50
	maxConversionExamples = 3
)

// RowFailure is a row left out of the target, with the reason.
type RowFailure struct {
	Row    string `json:"row"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
}

// Warning is a soft problem that did not stop the row.
type Warning struct {
	Row     string `json:"row"`
	Column  string `json:"column"`
	Message string `json:"message"`
}

// ConversionExample shows one value before and after a kind conversion.
type ConversionExample struct {
	Row    string `json:"row"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// Conversion summarizes kind conversions applied to a column.
type Conversion struct {
	Column      string              `json:"column"`
	From        string              `json:"from"`
	To          string              `json:"to"`
	Count       int                 `json:"count"`
	Unsupported bool                `json:"unsupported,omitempty"`
	Examples    []ConversionExample `json:"examples"`
}

// Finding is a non-fatal attachment problem attached to a row.
type Finding struct {
	Row    string `json:"row"`
	Column string `json:"column"`
	Path   string `json:"path"`
	Size   int64  `json:"size,omitempty"`
	Reason string `json:"reason"`
}

// TableOutcome is the per-table part of the report. The row migrator writes
// to it only through the Recorder interface.
type TableOutcome struct {
	Table        string             `json:"table"`
	Source       string             `json:"source"`
	Status       TableStatus        `json:"status"`
	Read         int                `json:"read"`
	Written      int                `json:"written"`
	Failed       int                `json:"failed"`
	Failures     []RowFailure       `json:"failures,omitempty"`
	WarningCount int                `json:"warning_count"`
	Warnings     []Warning          `json:"warnings,omitempty"`
	Conversions  []*Conversion      `json:"conversions,omitempty"`
	Actions      []AttachmentAction `json:"attachment_actions,omitempty"`
	Findings     []Finding          `json:"attachment_findings,omitempty"`
	Orphans      []string           `json:"orphaned_attachments,omitempty"`
	Error        string             `json:"error,omitempty"`
	Duration     time.Duration      `json:"duration_ns"`
	Err          error              `json:"-"`
	conversions  map[string]*Conversion
}

// Recorder receives per-row results while a table is migrated.
type Recorder interface {
	RowRead()
	RowWritten()
	RowFailed(row, column string, err error)
	Warn(row, column string, err error)
	Converted(row, column string, from, to pseudotype.Kind, before, after any, err error)
}

var _ Recorder = (*TableOutcome)(nil)

func newTableOutcome(table, source string) *TableOutcome {
	return &TableOutcome{Table: table, Source: source, Status: TablePending}
}

func (o *TableOutcome) RowRead()    { o.Read++ }
func (o *TableOutcome) RowWritten() { o.Written++ }

func (o *TableOutcome) RowFailed(row, column string, err error) {
	o.Failed++
	o.Failures = append(o.Failures, RowFailure{Row: row, Column: column, Reason: err.Error()})
}

func (o *TableOutcome) Warn(row, column string, err error) {
	o.WarningCount++
	if len(o.Warnings) < maxWarnings {
		o.Warnings = append(o.Warnings, Warning{Row: row, Column: column, Message: err.Error()})
	}
}

// Converted tracks a kind conversion. A non-nil err means no rule applied
// and the value went through unchanged.
func (o *TableOutcome) Converted(row, column string, from, to pseudotype.Kind, before, after any, err error) {
	if o.conversions == nil {
		o.conversions = make(map[string]*Conversion)
	}
	c, ok := o.conversions[column]
	if !ok {
		c = &Conversion{Column: column, From: from.String(), To: to.String()}
		o.conversions[column] = c
		o.Conversions = append(o.Conversions, c)
	}
	c.Count++
	if err != nil {
		c.Unsupported = true
	}
	if len(c.Examples) < maxConversionExamples {
		c.Examples = append(c.Examples, ConversionExample{Row: row, Before: before, After: after})
	}
}

// skip marks a table that never ran.
func (o *TableOutcome) skip(err error) {
	o.Status = TableSkipped
	o.Err = err
	o.Error = err.Error()
}

// rollBack discards the table's writes from the counts.
func (o *TableOutcome) rollBack(err error) {
	o.Status = TableRolledBack
	o.Written = 0
	o.Actions = nil
	o.Findings = nil
	o.Err = err
	o.Error = err.Error()
}

func (o *TableOutcome) addFinding(a AttachmentAction, err error) {
	o.Findings = append(o.Findings, Finding{
		Row:    a.Row,
		Column: a.Column,
		Path:   a.displayPath(),
		Size:   a.Size,
		Reason: err.Error(),
	})
}

// Clean reports a committed table with no row failures or attachment findings.
func (o *TableOutcome) Clean() bool {
	return (o.Status == TableCommitted || o.Status == TablePlanned) && o.Failed == 0 && len(o.Findings) == 0
}

// RunOutcome is the report of one run.
type RunOutcome struct {
	ID       string          `json:"id"`
	State    State           `json:"state"`
	Status   Status          `json:"status"`
	DryRun   bool            `json:"dry_run"`
	Reason   string          `json:"reason,omitempty"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
	Warnings []string        `json:"warnings,omitempty"`
	Tables   []*TableOutcome `json:"tables"`
	Err      error           `json:"-"`
}

// Table returns the outcome of a target table.
func (r *RunOutcome) Table(name string) *TableOutcome {
	for _, t := range r.Tables {
		if t.Table == name {
			return t
		}
	}
	return nil
}

// Totals sums row counts across tables.
func (r *RunOutcome) Totals() (read, written, failed int) {
	for _, t := range r.Tables {
		read += t.Read
		written += t.Written
		failed += t.Failed
	}
	return read, written, failed
}

// abort ends the run as Aborted.
func (r *RunOutcome) abort(err error) {
	r.Err = err
	r.Reason = err.Error()
}

// finish derives the final status from the table outcomes.
func (r *RunOutcome) finish() {
	r.State = StateFinished
	r.Finished = time.Now()

	if r.Err != nil {
		r.Status = StatusAborted
		return
	}
	status := StatusCompleted
	for _, t := range r.Tables {
		switch {
		case t.Status == TableRolledBack:
			r.Status = StatusAborted
			if r.Reason == "" {
				r.Reason = fmt.Sprintf("table %s rolled back", t.Table)
			}
			return
		case !t.Clean():
			status = StatusPartiallyFailed
		}
	}
	r.Status = status
}

// Interrupted reports whether the run stopped on cancellation.
func (r *RunOutcome) Interrupted() bool {
	return errors.Is(r.Err, ErrInterrupted)
}
