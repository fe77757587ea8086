package dialect

import (
	"context"
	"database/sql"
)

// Dialect abstracts driver-specific SQLite operations.
type Dialect interface {
	// Driver registration name passed to sql.Open.
	DriverName() string
	// DSN builds a connection string for a database file.
	DSN(path string, readOnly bool) string

	// Metadata Queries (Schema Introspection)
	GetTablesQuery() string
	GetColumnsQuery(table string) string
	GetForeignKeysQuery(table string) string
	GetColumnDefinitionsQuery() string
	TableExistsQuery() string

	// Execution Hooks (Table Level)
	BeforeTable(ctx context.Context, tx *sql.Tx, tableName string) error
	AfterTable(ctx context.Context, tx *sql.Tx, tableName string) error

	// Query Generation
	InsertQuery(table string, cols []string) string
	SelectQuery(table string, cols []string, orderBy []string, limit int) string
	CountQuery(table string) string
	DeleteQuery(table string) string
	Placeholder(index int) string // Returns ?
	QuoteIdent(name string) string

	// Helpers
	NormalizeType(sqlType string) string
}
