// Package seed fills tables with synthetic rows so a migration can be
// rehearsed without production data.
package seed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"db-migrate/internal/dialect"
	"db-migrate/internal/pseudotype"
	"db-migrate/internal/schema"
)

// Result is the outcome of seeding one table.
type Result struct {
	Table     string
	Requested int
	Inserted  int // verified by counting rows before and after
	Failed    int
	Err       error
}

// Status summarizes the result for reports.
func (r Result) Status() string {
	switch {
	case r.Err != nil:
		return "ERROR"
	case r.Inserted < r.Requested:
		return "MISSING DATA"
	}
	return "OK"
}

// Seeder inserts generated rows, one transaction per table.
type Seeder struct {
	DB        *sql.DB
	Dialect   dialect.Dialect
	Generator *Generator
	Logger    *slog.Logger
	OnRow     func(table string)
}

// Seed fills every named table with count rows. Tables are visited parents
// first so foreign key columns can reuse keys inserted earlier in the run.
// A failing table is reported in its Result; the others still run.
func (s *Seeder) Seed(ctx context.Context, names []string, count int) ([]Result, error) {
	live, err := schema.Analyze(ctx, s.DB, s.Dialect, names)
	if err != nil {
		return nil, err
	}

	pool := make(map[string]keySet)
	var results []Result
	for _, name := range parentsFirst(names, live) {
		res := Result{Table: name, Requested: count}
		t, ok := live[name]
		if !ok {
			res.Err = fmt.Errorf("%w: %s", schema.ErrTableMissing, name)
			results = append(results, res)
			continue
		}

		before, err := s.count(ctx, name)
		if err != nil {
			return results, err
		}
		res.Failed, res.Err = s.seedTable(ctx, t, count, pool)
		after, err := s.count(ctx, name)
		if err != nil {
			return results, err
		}
		res.Inserted = after - before

		if res.Err != nil {
			s.logger().Warn("seeding failed", "table", name, "error", res.Err)
		} else if err := s.collectKeys(ctx, t, pool); err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Seeder) seedTable(ctx context.Context, t *schema.Table, count int, pool map[string]keySet) (int, error) {
	d := s.Dialect
	kinds, err := pseudotype.Resolve(ctx, s.DB, d, t.Name)
	if err != nil {
		return 0, err
	}

	cols := insertColumns(t)
	if len(cols) == 0 {
		return 0, fmt.Errorf("table %s has no insertable columns", t.Name)
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if err := d.BeforeTable(ctx, tx, t.Name); err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, d.InsertQuery(t.Name, names))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted, failed := 0, 0
	for attempt := 0; inserted < count && attempt < count*10; attempt++ {
		values := make([]any, len(cols))
		for i, c := range cols {
			values[i] = s.value(t, c, kinds, pool, attempt)
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			failed++
			s.logger().Debug("seed insert failed", "table", t.Name, "attempt", attempt, "error", err)
			continue
		}
		inserted++
		if s.OnRow != nil {
			s.OnRow(t.Name)
		}
	}

	if err := d.AfterTable(ctx, tx, t.Name); err != nil {
		return failed, err
	}
	if err := tx.Commit(); err != nil {
		return failed, err
	}
	if inserted == 0 && count > 0 {
		return failed, errors.New("no row could be inserted")
	}
	return failed, nil
}

// value picks a parent key for foreign key columns and generates the rest.
func (s *Seeder) value(t *schema.Table, c *schema.Column, kinds pseudotype.Map, pool map[string]keySet, index int) any {
	for _, fk := range t.ForeignKeys {
		if fk.Column != c.Name {
			continue
		}
		k := pool[fk.RefTable]
		if len(k.values) > 0 && (fk.RefColumn == "" || fk.RefColumn == k.column) {
			return k.values[index%len(k.values)]
		}
		if c.IsNullable {
			return nil
		}
	}
	return s.Generator.Value(c, kinds.Kind(c.Name))
}

// collectKeys remembers the referenced key values of a seeded table.
func (s *Seeder) collectKeys(ctx context.Context, t *schema.Table, pool map[string]keySet) error {
	column, key := RowIDKey, RowIDKey
	if pk := t.PrimaryKey(); len(pk) == 1 {
		column, key = pk[0], s.Dialect.QuoteIdent(pk[0])
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", key, s.Dialect.QuoteIdent(t.Name), key))
	if err != nil {
		return fmt.Errorf("collect keys of %s: %w", t.Name, err)
	}
	defer rows.Close()

	k := keySet{column: column}
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return err
		}
		k.values = append(k.values, v)
	}
	pool[t.Name] = k
	return rows.Err()
}

func (s *Seeder) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, s.Dialect.CountQuery(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *Seeder) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// keySet holds the key values of a seeded table.
type keySet struct {
	column string
	values []any
}

// RowIDKey is referenced when a table has no single-column primary key.
const RowIDKey = "rowid"

// insertColumns leaves out a lone INTEGER primary key, which SQLite assigns
// from the rowid.
func insertColumns(t *schema.Table) []*schema.Column {
	pk := t.PrimaryKey()
	var cols []*schema.Column
	for _, c := range t.Columns {
		if len(pk) == 1 && c.IsPK && c.Affinity == "integer" {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

// parentsFirst orders names so referenced tables come before the tables
// referencing them. Ties keep the given order; cycles fall back to it.
func parentsFirst(all []string, live map[string]*schema.Table) []string {
	wanted := make(map[string]bool, len(all))
	var names []string
	for _, n := range all {
		if !wanted[n] {
			wanted[n] = true
			names = append(names, n)
		}
	}

	done := make(map[string]bool, len(names))
	var out []string
	for len(out) < len(names) {
		progress := false
		for _, n := range names {
			if done[n] || !depsDone(live[n], wanted, done) {
				continue
			}
			done[n] = true
			out = append(out, n)
			progress = true
		}
		if !progress {
			for _, n := range names {
				if !done[n] {
					done[n] = true
					out = append(out, n)
				}
			}
		}
	}
	return out
}

func depsDone(t *schema.Table, wanted, done map[string]bool) bool {
	if t == nil {
		return true
	}
	for _, dep := range t.Dependencies {
		if wanted[dep] && !done[dep] {
			return false
		}
	}
	return true
}
