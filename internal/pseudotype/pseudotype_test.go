package pseudotype_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"db-migrate/internal/dialect"
	"db-migrate/internal/logging"
	"db-migrate/internal/pseudotype"
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

func TestResolve(t *testing.T) {
	db, d := openTestDB(t,
		`CREATE TABLE _column_definitions (_table_id TEXT, _element_key TEXT, _element_type TEXT, _list_child_element_keys TEXT)`,
		`INSERT INTO _column_definitions VALUES
			('items', 'name', 'string', NULL),
			('items', 'tags', 'array', '["tags_items"]'),
			('items', 'tags_items', 'string', NULL),
			('items', 'location', 'object', 'location_lat,location_lng'),
			('other', 'tags', 'string', NULL)`,
	)
	ctx := logging.ContextWithLogger(context.Background(), logging.Discard())

	m, err := pseudotype.Resolve(ctx, db, d, "items")
	require.NoError(t, err)
	require.Len(t, m, 4)

	assert.Equal(t, pseudotype.Array, m.Kind("tags"))
	assert.Equal(t, []string{"tags_items"}, m["tags"].Children)
	assert.Equal(t, pseudotype.Object, m.Kind("location"))
	assert.Equal(t, []string{"location_lat", "location_lng"}, m["location"].Children)
	assert.Equal(t, "string", m["name"].ElementType)
	assert.False(t, m.Composite("name"))
	assert.True(t, m.Composite("location"))
	assert.False(t, m.Composite("not_in_metadata"))

	other, err := pseudotype.Resolve(ctx, db, d, "other")
	require.NoError(t, err)
	assert.False(t, other.Composite("tags"))
}

func TestResolve_NoMetadataTable(t *testing.T) {
	db, d := openTestDB(t, `CREATE TABLE items (id INTEGER)`)
	ctx := logging.ContextWithLogger(context.Background(), logging.Discard())

	m, err := pseudotype.Resolve(ctx, db, d, "items")
	require.NoError(t, err)
	assert.Empty(t, m)
	assert.Equal(t, pseudotype.Scalar, m.Kind("anything"))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, pseudotype.Array, pseudotype.KindOf("array"))
	assert.Equal(t, pseudotype.Object, pseudotype.KindOf(" Object "))
	assert.Equal(t, pseudotype.Scalar, pseudotype.KindOf("integer"))
	assert.Equal(t, pseudotype.Scalar, pseudotype.KindOf(""))
	assert.Equal(t, "array", pseudotype.Array.String())
}

func TestDecode(t *testing.T) {
	v, err := pseudotype.Decode(`["a","b"]`, pseudotype.Array)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, v)

	v, err = pseudotype.Decode([]byte(`{"lat":1.5}`), pseudotype.Object)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"lat": json.Number("1.5")}, v)

	v, err = pseudotype.Decode(nil, pseudotype.Array)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = pseudotype.Decode("plain", pseudotype.Scalar)
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
}

func TestDecode_MalformedReturnsRaw(t *testing.T) {
	for _, raw := range []any{`not json`, `{"a":1}`, `["a"] trailing`, int64(5), `[1,`} {
		v, err := pseudotype.Decode(raw, pseudotype.Array)
		assert.ErrorIs(t, err, pseudotype.ErrMalformed, "%v", raw)
		assert.Equal(t, raw, v)
	}
}

func TestEncode(t *testing.T) {
	v, err := pseudotype.Encode([]any{"a<b", json.Number("2")})
	require.NoError(t, err)
	assert.Equal(t, `["a<b",2]`, v)

	v, err = pseudotype.Encode(map[string]any{"z": 1, "a": []any{}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[],"z":1}`, v)

	v, err = pseudotype.Encode("already encoded")
	require.NoError(t, err)
	assert.Equal(t, "already encoded", v)

	v, err = pseudotype.Encode(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRoundTrip(t *testing.T) {
	stored := []string{
		`[]`,
		`["a","b"]`,
		`[1,2.5,-3]`,
		`{"a":{"b":[true,null]},"c":"x"}`,
		`["ünïcode","<tag>"]`,
	}
	for _, s := range stored {
		kind := pseudotype.Array
		if s[0] == '{' {
			kind = pseudotype.Object
		}
		decoded, err := pseudotype.Decode(s, kind)
		require.NoError(t, err, s)

		encoded, err := pseudotype.Encode(decoded)
		require.NoError(t, err)
		assert.Equal(t, s, encoded)

		again, err := pseudotype.Decode(encoded, kind)
		require.NoError(t, err)
		assert.Equal(t, decoded, again)
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		from, to pseudotype.Kind
		want     any
	}{
		{"scalar to array wraps", "red", pseudotype.Scalar, pseudotype.Array, []any{"red"}},
		{"integer to array wraps as text", int64(7), pseudotype.Scalar, pseudotype.Array, []any{"7"}},
		{"json text to array decodes", `["a","b"]`, pseudotype.Scalar, pseudotype.Array, []any{"a", "b"}},
		{"array to scalar first element", []any{"x", "y"}, pseudotype.Array, pseudotype.Scalar, "x"},
		{"empty array to scalar", []any{}, pseudotype.Array, pseudotype.Scalar, ""},
		{"raw array text to scalar", `["q"]`, pseudotype.Array, pseudotype.Scalar, "q"},
		{"nil stays nil", nil, pseudotype.Scalar, pseudotype.Array, nil},
		{"same kind", "v", pseudotype.Array, pseudotype.Array, "v"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pseudotype.Convert(tt.in, tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := pseudotype.Convert(map[string]any{"a": 1}, pseudotype.Object, pseudotype.Array)
	assert.ErrorIs(t, err, pseudotype.ErrUnsupportedConversion)
	assert.Equal(t, map[string]any{"a": 1}, got)
}

func TestStructured(t *testing.T) {
	assert.True(t, pseudotype.Structured([]any{}))
	assert.True(t, pseudotype.Structured(map[string]any{}))
	assert.False(t, pseudotype.Structured("[]"))
	assert.False(t, pseudotype.Structured(int64(1)))
}
