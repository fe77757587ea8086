package schema

import (
	"fmt"
	"strings"
)

// Compare checks a table plan against the live source and target tables.
// A nil live table means the table is absent. It returns nil when the live
// databases can serve the plan.
func Compare(plan *TablePlan, source, target *Table) *SchemaError {
	var problems []string

	if source == nil {
		problems = append(problems, fmt.Sprintf("source table %s not found", plan.SourceName))
	}
	if target == nil {
		problems = append(problems, fmt.Sprintf("target table %s not found", plan.Name))
	}
	if len(problems) > 0 {
		return &SchemaError{Table: plan.Name, Problems: problems, Err: ErrTableMissing}
	}

	for _, name := range plan.Source.ColumnNames() {
		if source.Column(name) == nil {
			problems = append(problems, fmt.Sprintf("source column %s not found", name))
		}
	}

	mapped := make(map[string]bool, len(plan.Mapping.Entries))
	for _, e := range plan.Mapping.Entries {
		mapped[e.Target] = true
		if target.Column(e.Target) == nil {
			problems = append(problems, fmt.Sprintf("target column %s not found", e.Target))
		}
	}

	// A live NOT NULL column nobody fills would fail every insert.
	for _, c := range target.Columns {
		if mapped[c.Name] || c.IsNullable || c.Default != nil {
			continue
		}
		if c.IsPK && c.Affinity == "integer" && len(target.PrimaryKey()) == 1 {
			continue // rowid alias, SQLite assigns it
		}
		problems = append(problems, fmt.Sprintf("target column %s is NOT NULL without default and unmapped", c.Name))
	}

	if len(problems) > 0 {
		return &SchemaError{Table: plan.Name, Problems: problems, Err: ErrColumnMissing}
	}
	return nil
}

// ColumnDiff lists columns present on only one side of a table pair.
type ColumnDiff struct {
	Table      string
	SourceOnly []string
	TargetOnly []string
}

func (d ColumnDiff) Empty() bool {
	return len(d.SourceOnly) == 0 && len(d.TargetOnly) == 0
}

func (d ColumnDiff) String() string {
	var parts []string
	if len(d.SourceOnly) > 0 {
		parts = append(parts, "source only: "+strings.Join(d.SourceOnly, ", "))
	}
	if len(d.TargetOnly) > 0 {
		parts = append(parts, "target only: "+strings.Join(d.TargetOnly, ", "))
	}
	return strings.Join(parts, "; ")
}

// DiffColumns compares live column sets, preserving each side's column order.
func DiffColumns(table string, source, target *Table) ColumnDiff {
	diff := ColumnDiff{Table: table}
	if source == nil || target == nil {
		return diff
	}
	for _, c := range source.Columns {
		if target.Column(c.Name) == nil {
			diff.SourceOnly = append(diff.SourceOnly, c.Name)
		}
	}
	for _, c := range target.Columns {
		if source.Column(c.Name) == nil {
			diff.TargetOnly = append(diff.TargetOnly, c.Name)
		}
	}
	return diff
}
