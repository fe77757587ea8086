package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"db-migrate/internal/dialect"
	"db-migrate/internal/pseudotype"
	"db-migrate/internal/schema"
	"db-migrate/internal/transform"
)

// RowIDColumn orders tables that declare no key and have no primary key.
const RowIDColumn = "rowid"

// TableJob is everything the row migrator needs for one table.
type TableJob struct {
	Plan        *schema.TablePlan
	Live        *schema.Table // live target table
	OrderBy     []string      // source ordering columns, RowIDColumn for implicit order
	Limit       int
	SourceKinds pseudotype.Map
	TargetKinds pseudotype.Map
}

// Migrator copies rows of one table at a time from source to target.
type Migrator struct {
	Source   schema.Queryer
	Target   *sql.DB
	Dialect  dialect.Dialect
	Registry *transform.Registry
	Logger   *slog.Logger
	OnRow    func(table string)
}

// MigrateTable streams source rows in key order, builds target rows and
// inserts them inside one transaction. Rows that fail to transform are
// recorded and skipped. A database error rolls the whole table back and is
// returned as *DatabaseError; the rows written are only valid when the
// error is nil.
func (m *Migrator) MigrateTable(ctx context.Context, job TableJob, rec Recorder) ([]MigratedRow, error) {
	plan := job.Plan
	d := m.Dialect
	logger := m.logger().With("table", plan.Name)

	readCols := readColumns(plan, job.OrderBy)
	query := d.SelectQuery(plan.SourceName, readCols, m.orderExprs(job.OrderBy), job.Limit)
	logger.Debug("reading source", "query", query)

	rows, err := m.Source.QueryContext(ctx, query)
	if err != nil {
		return nil, &DatabaseError{Table: plan.Name, Op: "read", Err: err}
	}
	defer rows.Close()

	tx, err := m.Target.BeginTx(ctx, nil)
	if err != nil {
		return nil, &DatabaseError{Table: plan.Name, Op: "begin", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := d.BeforeTable(ctx, tx, plan.Name); err != nil {
		return nil, &DatabaseError{Table: plan.Name, Op: "begin", Err: err}
	}

	targets := plan.Mapping.Targets()
	stmt, err := tx.PrepareContext(ctx, d.InsertQuery(plan.Name, targets))
	if err != nil {
		return nil, &DatabaseError{Table: plan.Name, Op: "insert", Err: err}
	}
	defer stmt.Close()

	var migrated []MigratedRow
	for rows.Next() {
		src, id, err := scanRow(rows, readCols, job.OrderBy)
		if err != nil {
			return nil, &DatabaseError{Table: plan.Name, Op: "read", Err: err}
		}
		rec.RowRead()

		target, values, column, err := m.buildRow(job, id, src, rec)
		if err != nil {
			logger.Info("row skipped", "row", id, "column", column, "error", err)
			rec.RowFailed(id, column, err)
			m.progress(plan.Name)
			continue
		}

		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			logger.Warn("insert failed, rolling back table", "row", id, "error", err)
			return nil, &DatabaseError{Table: plan.Name, Op: "insert", Row: id, Err: err}
		}
		rec.RowWritten()
		migrated = append(migrated, MigratedRow{ID: id, Source: src, Target: target})
		m.progress(plan.Name)
	}
	if err := rows.Err(); err != nil {
		return nil, &DatabaseError{Table: plan.Name, Op: "read", Err: err}
	}

	if err := d.AfterTable(ctx, tx, plan.Name); err != nil {
		return nil, &DatabaseError{Table: plan.Name, Op: "commit", Err: err}
	}
	if err := tx.Commit(); err != nil {
		// SQLite may keep the transaction open after a failed COMMIT.
		_, _ = m.Target.ExecContext(ctx, "ROLLBACK")
		return nil, &DatabaseError{Table: plan.Name, Op: "commit", Err: err}
	}
	committed = true

	logger.Info("table committed", "rows", len(migrated))
	return migrated, nil
}

// buildRow resolves every mapped target column. It returns the decoded
// target row, the encoded insert values in target order and, on failure,
// the column that failed.
func (m *Migrator) buildRow(job TableJob, id string, src schema.Row, rec Recorder) (schema.Row, []any, string, error) {
	plan := job.Plan

	// Decode composites once; transforms see structured values.
	decoded := make(schema.Row, len(src))
	for col, raw := range src {
		decoded[col] = raw
	}
	for _, col := range plan.Source.ColumnNames() {
		if !job.SourceKinds.Composite(col) {
			continue
		}
		v, err := pseudotype.Decode(src[col], job.SourceKinds.Kind(col))
		if err != nil {
			rec.Warn(id, col, err)
		}
		decoded[col] = v
	}

	target := make(schema.Row, len(plan.Mapping.Entries))
	values := make([]any, 0, len(plan.Mapping.Entries))
	for _, e := range plan.Mapping.Entries {
		var v any
		switch e.Kind {
		case schema.MapCopy:
			v = decoded[e.Source]
			from, to := job.SourceKinds.Kind(e.Source), job.TargetKinds.Kind(e.Target)
			if from != to && v != nil {
				converted, err := pseudotype.Convert(v, from, to)
				rec.Converted(id, e.Target, from, to, v, converted, err)
				if err != nil {
					rec.Warn(id, e.Target, err)
				}
				v = converted
			}

		case schema.MapLiteral:
			v = e.Literal

		case schema.MapTransform:
			out, err := m.Registry.Apply(transform.Call{Name: e.Transform, Columns: e.Columns, Params: e.Params}, decoded)
			if err != nil {
				var te *transform.TransformError
				if errors.As(err, &te) {
					te.Column = e.Target
				}
				return nil, nil, e.Target, err
			}
			v = out
		}

		if v == nil && m.notNull(job, e.Target) {
			return nil, nil, e.Target, fmt.Errorf("%w: %s", ErrNotNull, e.Target)
		}
		target[e.Target] = v

		if job.TargetKinds.Composite(e.Target) || pseudotype.Structured(v) {
			enc, err := pseudotype.Encode(v)
			if err != nil {
				return nil, nil, e.Target, err
			}
			v = enc
		}
		stored, err := storedValue(v)
		if err != nil {
			return nil, nil, e.Target, err
		}
		values = append(values, stored)
	}
	return target, values, "", nil
}

func (m *Migrator) notNull(job TableJob, column string) bool {
	if def, ok := job.Plan.Target.Column(column); ok && def.NotNull {
		return true
	}
	if job.Live != nil {
		if c := job.Live.Column(column); c != nil && !c.IsNullable {
			return true
		}
	}
	return false
}

func (m *Migrator) orderExprs(orderBy []string) []string {
	exprs := make([]string, len(orderBy))
	for i, c := range orderBy {
		if c == RowIDColumn {
			exprs[i] = c
			continue
		}
		exprs[i] = m.Dialect.QuoteIdent(c)
	}
	return exprs
}

func (m *Migrator) progress(table string) {
	if m.OnRow != nil {
		m.OnRow(table)
	}
}

func (m *Migrator) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// readColumns lists the declared source columns followed by any ordering
// column the declaration leaves out (rowid, an undeclared primary key).
func readColumns(plan *schema.TablePlan, orderBy []string) []string {
	cols := plan.Source.ColumnNames()
	for _, c := range orderBy {
		if _, declared := plan.Source.Column(c); !declared {
			cols = append(cols, c)
		}
	}
	return cols
}

// scanRow reads one source row and derives its identifier from the
// ordering key. The rowid helper column is not part of the returned row.
func scanRow(rows *sql.Rows, cols []string, orderBy []string) (schema.Row, string, error) {
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, "", err
	}

	row := make(schema.Row, len(cols))
	for i, c := range cols {
		row[c] = vals[i]
	}

	parts := make([]string, len(orderBy))
	for i, c := range orderBy {
		parts[i] = formatID(row[c])
	}
	delete(row, RowIDColumn)
	return row, strings.Join(parts, ","), nil
}

func formatID(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v)
}

// storedValue prepares a resolved value for insertion. Values the drivers
// cannot bind, such as typed slices or maps from custom transforms, are
// stored as JSON.
func storedValue(v any) (any, error) {
	v = driverValue(v)
	if _, err := driver.DefaultParameterConverter.ConvertValue(v); err == nil {
		return v, nil
	}
	enc, err := pseudotype.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	return enc, nil
}

// driverValue converts decoder-only types to values SQLite drivers accept.
func driverValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	}
	return v
}
