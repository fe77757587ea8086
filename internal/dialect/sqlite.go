package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
)

// SQLiteDialect carries the SQL shared by every SQLite driver. The driver
// flavours below only differ in registration name and DSN parameters.
type SQLiteDialect struct{}

// ModerncDialect targets modernc.org/sqlite (pure Go, registered as "sqlite").
type ModerncDialect struct{ SQLiteDialect }

// CgoDialect targets github.com/mattn/go-sqlite3 (registered as "sqlite3").
type CgoDialect struct{ SQLiteDialect }

func (d *ModerncDialect) DriverName() string { return "sqlite" }

// modernc applies each _pragma on every new connection.
func (d *ModerncDialect) DSN(path string, readOnly bool) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout("+defaultBusyTimeout+")")
	if readOnly {
		params.Add("_pragma", "query_only(1)")
	}
	return path + "?" + params.Encode()
}

func (d *CgoDialect) DriverName() string { return "sqlite3" }

func (d *CgoDialect) DSN(path string, readOnly bool) string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", defaultBusyTimeout)
	if readOnly {
		params.Set("mode", "ro")
		params.Set("_query_only", "true")
	} else {
		params.Set("_txlock", "immediate")
	}
	return "file:" + path + "?" + params.Encode()
}

func (d *SQLiteDialect) GetTablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}

// GetColumnsQuery yields cid, name, type, notnull, dflt_value, pk.
func (d *SQLiteDialect) GetColumnsQuery(table string) string {
	return fmt.Sprintf("PRAGMA table_info(%s)", d.QuoteIdent(table))
}

// GetForeignKeysQuery yields id, seq, table, from, to, on_update, on_delete, match.
func (d *SQLiteDialect) GetForeignKeysQuery(table string) string {
	return fmt.Sprintf("PRAGMA foreign_key_list(%s)", d.QuoteIdent(table))
}

// GetColumnDefinitionsQuery reads the per-table column metadata kept by the
// application next to its data tables.
func (d *SQLiteDialect) GetColumnDefinitionsQuery() string {
	return `SELECT _element_key, _element_type, COALESCE(_list_child_element_keys, '') FROM _column_definitions WHERE _table_id = ? ORDER BY _element_key`
}

// TableExistsQuery takes the table name as its only argument.
func (d *SQLiteDialect) TableExistsQuery() string {
	return `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
}

// BeforeTable defers foreign key enforcement so rows of one batch may
// reference each other in any order.
func (d *SQLiteDialect) BeforeTable(ctx context.Context, tx *sql.Tx, tableName string) error {
	_, err := tx.ExecContext(ctx, "PRAGMA defer_foreign_keys = ON")
	return err
}

// AfterTable reports foreign key violations left by the batch while the
// transaction can still be rolled back. A failed COMMIT would leave the
// connection inside the transaction.
func (d *SQLiteDialect) AfterTable(ctx context.Context, tx *sql.Tx, tableName string) error {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_check(%s)", d.QuoteIdent(tableName)))
	if err != nil {
		return err
	}
	defer rows.Close()

	if rows.Next() {
		var (
			child, parent string
			rowid         sql.NullInt64
			fkid          int
		)
		if err := rows.Scan(&child, &rowid, &parent, &fkid); err != nil {
			return err
		}
		return fmt.Errorf("FOREIGN KEY constraint failed: %s rowid %d references missing %s row", child, rowid.Int64, parent)
	}
	return rows.Err()
}

func (d *SQLiteDialect) InsertQuery(table string, cols []string) string {
	vals := placeholders(len(cols), d.Placeholder)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.QuoteIdent(table), quoteList(d.QuoteIdent, cols), vals)
}

// SelectQuery orders by the given expressions verbatim; callers pass quoted
// identifiers or "rowid".
func (d *SQLiteDialect) SelectQuery(table string, cols []string, orderBy []string, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", quoteList(d.QuoteIdent, cols), d.QuoteIdent(table))
	if len(orderBy) > 0 {
		fmt.Fprintf(&b, " ORDER BY %s", strings.Join(orderBy, ", "))
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	return b.String()
}

func (d *SQLiteDialect) CountQuery(table string) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", d.QuoteIdent(table))
}

func (d *SQLiteDialect) DeleteQuery(table string) string {
	return fmt.Sprintf("DELETE FROM %s", d.QuoteIdent(table))
}

func (d *SQLiteDialect) Placeholder(index int) string {
	return "?"
}

func (d *SQLiteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// NormalizeType reduces a declared type to its SQLite affinity
// (https://www.sqlite.org/datatype3.html, section 3.1).
func (d *SQLiteDialect) NormalizeType(sqlType string) string {
	t := strings.ToUpper(sqlType)
	switch {
	case strings.Contains(t, "INT"):
		return "integer"
	case strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"), strings.Contains(t, "TEXT"):
		return "text"
	case t == "", strings.Contains(t, "BLOB"):
		return "blob"
	case strings.Contains(t, "REAL"), strings.Contains(t, "FLOA"), strings.Contains(t, "DOUB"):
		return "real"
	default:
		return "numeric"
	}
}
