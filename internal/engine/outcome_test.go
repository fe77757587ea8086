package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-migrate/internal/pseudotype"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		status Status
		name   string
		code   int
	}{
		{StatusCompleted, "Completed", 0},
		{StatusPartiallyFailed, "PartiallyFailed", 2},
		{StatusAborted, "Aborted", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.status.String())
			assert.Equal(t, tt.code, tt.status.ExitCode())
		})
	}
}

func TestRunOutcome_Finish(t *testing.T) {
	committed := func(name string) *TableOutcome {
		o := newTableOutcome(name, name)
		o.Status = TableCommitted
		return o
	}

	t.Run("all clean", func(t *testing.T) {
		r := &RunOutcome{Tables: []*TableOutcome{committed("a"), committed("b")}}
		r.finish()
		assert.Equal(t, StatusCompleted, r.Status)
		assert.Equal(t, StateFinished, r.State)
		assert.Empty(t, r.Reason)
	})

	t.Run("row failure", func(t *testing.T) {
		b := committed("b")
		b.RowFailed("1", "qty", errors.New("bad"))
		r := &RunOutcome{Tables: []*TableOutcome{committed("a"), b}}
		r.finish()
		assert.Equal(t, StatusPartiallyFailed, r.Status)
	})

	t.Run("attachment finding", func(t *testing.T) {
		a := committed("a")
		a.addFinding(AttachmentAction{Row: "1", Column: "photo", RelPath: "a/instances/1/x.jpg"}, ErrAttachmentMissing)
		r := &RunOutcome{Tables: []*TableOutcome{a}}
		r.finish()
		assert.Equal(t, StatusPartiallyFailed, r.Status)
		assert.Equal(t, "a/instances/1/x.jpg", a.Findings[0].Path)
	})

	t.Run("skipped table", func(t *testing.T) {
		s := newTableOutcome("s", "s")
		s.skip(errors.New("optional"))
		r := &RunOutcome{Tables: []*TableOutcome{committed("a"), s}}
		r.finish()
		assert.Equal(t, StatusPartiallyFailed, r.Status)
	})

	t.Run("rollback aborts", func(t *testing.T) {
		b := committed("b")
		b.RowWritten()
		b.rollBack(&DatabaseError{Table: "b", Op: "insert", Err: errors.New("UNIQUE constraint failed")})
		r := &RunOutcome{Tables: []*TableOutcome{committed("a"), b}}
		r.finish()
		assert.Equal(t, StatusAborted, r.Status)
		assert.Equal(t, "table b rolled back", r.Reason)
		assert.Zero(t, b.Written)
	})

	t.Run("fatal error", func(t *testing.T) {
		r := &RunOutcome{Tables: []*TableOutcome{committed("a")}}
		r.abort(ErrInterrupted)
		r.finish()
		assert.Equal(t, StatusAborted, r.Status)
		assert.True(t, r.Interrupted())
		assert.Equal(t, "interrupted", r.Reason)
	})

	t.Run("dry run", func(t *testing.T) {
		p := newTableOutcome("a", "a")
		p.Status = TablePlanned
		r := &RunOutcome{Tables: []*TableOutcome{p}}
		r.finish()
		assert.Equal(t, StatusCompleted, r.Status)
	})
}

func TestTableOutcome_Caps(t *testing.T) {
	o := newTableOutcome("t", "t")
	for i := 0; i < maxWarnings+5; i++ {
		o.Warn(fmt.Sprint(i), "c", errors.New("w"))
	}
	assert.Equal(t, maxWarnings+5, o.WarningCount)
	assert.Len(t, o.Warnings, maxWarnings)

	for i := 0; i < 5; i++ {
		o.Converted(fmt.Sprint(i), "tags", pseudotype.Scalar, pseudotype.Array, "x", []any{"x"}, nil)
	}
	o.Converted("9", "other", pseudotype.Object, pseudotype.Array, "{}", "{}", pseudotype.ErrUnsupportedConversion)

	require.Len(t, o.Conversions, 2)
	tags := o.Conversions[0]
	assert.Equal(t, "tags", tags.Column)
	assert.Equal(t, 5, tags.Count)
	assert.Len(t, tags.Examples, maxConversionExamples)
	assert.False(t, tags.Unsupported)
	assert.True(t, o.Conversions[1].Unsupported)
}

func TestRunOutcome_JSON(t *testing.T) {
	o := newTableOutcome("items", "items_v1")
	o.Status = TableCommitted
	o.RowRead()
	o.RowWritten()
	r := &RunOutcome{ID: "run-1", Tables: []*TableOutcome{o}}
	r.finish()

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Completed", got["status"])
	assert.Equal(t, "finished", got["state"])

	tables := got["tables"].([]any)
	require.Len(t, tables, 1)
	table := tables[0].(map[string]any)
	assert.Equal(t, "committed", table["status"])
	assert.Equal(t, "items_v1", table["source"])
	assert.EqualValues(t, 1, table["written"])
}
