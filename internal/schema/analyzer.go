package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"db-migrate/internal/dialect"
)

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ---------------------------------------------------------------------
// 1. Table discovery
// ---------------------------------------------------------------------

// ListTables returns the user tables of a database. Application metadata
// tables (leading underscore) and Android locale tables (L__ prefix) are
// left out.
func ListTables(ctx context.Context, db Queryer, d dialect.Dialect) ([]string, error) {
	rows, err := db.QueryContext(ctx, d.GetTablesQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, "L__") {
			continue
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return names, nil
}

// ---------------------------------------------------------------------
// 2. Schema Analysis Logic
// ---------------------------------------------------------------------

// AnalyzeTable introspects one table. It returns (nil, nil) when the table
// does not exist.
func AnalyzeTable(ctx context.Context, db Queryer, d dialect.Dialect, name string) (*Table, error) {
	colRows, err := db.QueryContext(ctx, d.GetColumnsQuery(name))
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", name, err)
	}
	defer colRows.Close()

	t := &Table{Name: name, Dependencies: []string{}}
	for colRows.Next() {
		var (
			cid     int
			cName   string
			cType   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := colRows.Scan(&cid, &cName, &cType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column (table: %s): %w", name, err)
		}
		col := &Column{
			Name:       cName,
			DataType:   cType,
			Affinity:   d.NormalizeType(cType),
			IsNullable: notNull == 0,
			IsPK:       pk > 0,
			PKIndex:    pk,
		}
		if dflt.Valid {
			v := dflt.String
			col.Default = &v
		}
		t.Columns = append(t.Columns, col)
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns of %s: %w", name, err)
	}
	// PRAGMA table_info yields no rows for an unknown table.
	if len(t.Columns) == 0 {
		return nil, nil
	}

	fkRows, err := db.QueryContext(ctx, d.GetForeignKeysQuery(name))
	if err != nil {
		return nil, fmt.Errorf("failed to query foreign keys of %s: %w", name, err)
	}
	defer fkRows.Close()

	for fkRows.Next() {
		var (
			id, seq                   int
			refTable, from            string
			to                        sql.NullString
			onUpdate, onDelete, match string
		)
		if err := fkRows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key (table: %s): %w", name, err)
		}
		if refTable == name {
			continue
		}
		t.ForeignKeys = append(t.ForeignKeys, &ForeignKey{Column: from, RefTable: refTable, RefColumn: to.String})
		if !contains(t.Dependencies, refTable) {
			t.Dependencies = append(t.Dependencies, refTable)
		}
	}
	if err := fkRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating foreign keys of %s: %w", name, err)
	}

	return t, nil
}

// Analyze introspects the named tables, keeping the given order. Missing
// tables are absent from the result map.
func Analyze(ctx context.Context, db Queryer, d dialect.Dialect, names []string) (map[string]*Table, error) {
	out := make(map[string]*Table, len(names))
	for _, n := range names {
		t, err := AnalyzeTable(ctx, db, d, n)
		if err != nil {
			return nil, err
		}
		if t != nil {
			out[n] = t
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------
// 3. Declaration order check
// ---------------------------------------------------------------------

// OrderViolation is a table declared before a table it references.
type OrderViolation struct {
	Table      string
	References string
}

// CheckDeclarationOrder reports tables whose foreign keys point at tables
// migrated later in the given order. Tables outside the order are ignored.
func CheckDeclarationOrder(order []string, live map[string]*Table) []OrderViolation {
	position := make(map[string]int, len(order))
	for i, n := range order {
		position[n] = i
	}

	var out []OrderViolation
	for i, n := range order {
		t, ok := live[n]
		if !ok {
			continue
		}
		for _, dep := range t.Dependencies {
			if p, declared := position[dep]; declared && p > i {
				out = append(out, OrderViolation{Table: n, References: dep})
			}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
