package schema_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"db-migrate/internal/dialect"
	"db-migrate/internal/schema"
)

func openTestDB(t *testing.T, ddl ...string) (*sql.DB, dialect.Dialect) {
	t.Helper()
	d := dialect.GetDialect("sqlite")
	db, err := dialect.OpenSQLite(d, filepath.Join(t.TempDir(), "test.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range ddl {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db, d
}

func TestListTables_SkipsMetadataAndLocaleTables(t *testing.T) {
	db, d := openTestDB(t,
		`CREATE TABLE items (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE _column_definitions (_table_id TEXT, _element_key TEXT, _element_type TEXT, _list_child_element_keys TEXT)`,
		`CREATE TABLE L__items (id INTEGER)`,
		`CREATE TABLE customers (id INTEGER PRIMARY KEY)`,
	)

	names, err := schema.ListTables(context.Background(), db, d)
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "items"}, names)
}

func TestAnalyzeTable(t *testing.T) {
	db, d := openTestDB(t,
		`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE orders (
			shop TEXT NOT NULL,
			number INTEGER NOT NULL,
			customer_id INTEGER REFERENCES customers(id),
			parent_number INTEGER,
			status VARCHAR(10) NOT NULL DEFAULT 'new',
			total REAL,
			PRIMARY KEY (shop, number),
			FOREIGN KEY (shop, parent_number) REFERENCES orders(shop, number)
		)`,
	)
	ctx := context.Background()

	orders, err := schema.AnalyzeTable(ctx, db, d, "orders")
	require.NoError(t, err)
	require.NotNil(t, orders)

	assert.Equal(t, []string{"shop", "number", "customer_id", "parent_number", "status", "total"}, orders.ColumnNames())
	assert.Equal(t, []string{"shop", "number"}, orders.PrimaryKey())

	status := orders.Column("status")
	require.NotNil(t, status)
	assert.Equal(t, "VARCHAR(10)", status.DataType)
	assert.Equal(t, "text", status.Affinity)
	assert.False(t, status.IsNullable)
	require.NotNil(t, status.Default)
	assert.Equal(t, "'new'", *status.Default)

	assert.Equal(t, "real", orders.Column("total").Affinity)
	assert.True(t, orders.Column("total").IsNullable)
	assert.Nil(t, orders.Column("absent"))

	// Self references are not dependencies.
	assert.Equal(t, []string{"customers"}, orders.Dependencies)
	require.Len(t, orders.ForeignKeys, 1)
	assert.Equal(t, "customer_id", orders.ForeignKeys[0].Column)
	assert.Equal(t, "id", orders.ForeignKeys[0].RefColumn)

	missing, err := schema.AnalyzeTable(ctx, db, d, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAnalyze_SkipsMissingTables(t *testing.T) {
	db, d := openTestDB(t, `CREATE TABLE items (id INTEGER PRIMARY KEY)`)

	live, err := schema.Analyze(context.Background(), db, d, []string{"items", "gone"})
	require.NoError(t, err)
	assert.Contains(t, live, "items")
	assert.NotContains(t, live, "gone")
}

func TestCheckDeclarationOrder(t *testing.T) {
	live := map[string]*schema.Table{
		"users":       {Name: "users", Dependencies: []string{}},
		"orders":      {Name: "orders", Dependencies: []string{"users"}},
		"order_items": {Name: "order_items", Dependencies: []string{"orders", "products"}},
	}

	assert.Empty(t, schema.CheckDeclarationOrder([]string{"users", "orders", "order_items"}, live))

	got := schema.CheckDeclarationOrder([]string{"order_items", "orders", "users"}, live)
	assert.Equal(t, []schema.OrderViolation{
		{Table: "order_items", References: "orders"},
		{Table: "orders", References: "users"},
	}, got)
}
