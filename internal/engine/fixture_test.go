package engine_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"db-migrate/internal/dialect"
	"db-migrate/internal/engine"
	"db-migrate/internal/logging"
	"db-migrate/internal/schema"
	"db-migrate/internal/transform"
)

const columnDefinitionsDDL = `CREATE TABLE _column_definitions (_table_id TEXT, _element_key TEXT, _element_type TEXT, _list_child_element_keys TEXT)`

// fixture is a source/target pair of SQLite files in a temp dir.
type fixture struct {
	t        *testing.T
	dir      string
	d        dialect.Dialect
	source   *sql.DB
	target   *sql.DB
	registry *transform.Registry
}

func newFixture(t *testing.T, sourceSQL, targetSQL []string) *fixture {
	t.Helper()
	f := &fixture{t: t, dir: t.TempDir(), d: dialect.GetDialect("sqlite")}

	srcPath := filepath.Join(f.dir, "source.db")
	seed, err := dialect.OpenSQLite(f.d, srcPath, false)
	require.NoError(t, err)
	execAll(t, seed, sourceSQL)
	require.NoError(t, seed.Close())

	f.source, err = dialect.OpenSQLite(f.d, srcPath, true)
	require.NoError(t, err)
	t.Cleanup(func() { f.source.Close() })

	f.target = f.newTarget("target.db", targetSQL)

	f.registry = transform.NewRegistry()
	require.NoError(t, transform.RegisterStandard(f.registry))
	return f
}

// newTarget creates and opens a fresh target database.
func (f *fixture) newTarget(name string, ddl []string) *sql.DB {
	f.t.Helper()
	db, err := dialect.OpenSQLite(f.d, filepath.Join(f.dir, name), false)
	require.NoError(f.t, err)
	f.t.Cleanup(func() { db.Close() })
	execAll(f.t, db, ddl)
	return db
}

func execAll(t *testing.T, db *sql.DB, stmts []string) {
	t.Helper()
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}

func (f *fixture) load(doc string) *schema.Descriptor {
	f.t.Helper()
	desc, err := schema.Load(strings.NewReader(doc), f.registry)
	require.NoError(f.t, err)
	return desc
}

func (f *fixture) run(ctx context.Context, desc *schema.Descriptor, opts engine.Options) *engine.RunOutcome {
	f.t.Helper()
	return f.runOn(ctx, f.target, desc, opts)
}

func (f *fixture) runOn(ctx context.Context, target *sql.DB, desc *schema.Descriptor, opts engine.Options) *engine.RunOutcome {
	f.t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	o := &engine.Orchestrator{
		Source:     f.source,
		Target:     target,
		Dialect:    f.d,
		Descriptor: desc,
		Registry:   f.registry,
	}
	out := o.Run(ctx, opts)
	require.NotNil(f.t, out)
	return out
}

// dump returns every row of a table in rowid order.
func dump(t *testing.T, db *sql.DB, table string) [][]any {
	t.Helper()
	rows, err := db.Query(`SELECT * FROM "` + table + `" ORDER BY rowid`)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		out = append(out, vals)
	}
	require.NoError(t, rows.Err())
	return out
}

// recordingApplier remembers every action it was given.
type recordingApplier struct {
	actions []engine.AttachmentAction
	fail    error
}

func (a *recordingApplier) Apply(_ context.Context, action engine.AttachmentAction) error {
	a.actions = append(a.actions, action)
	return a.fail
}
