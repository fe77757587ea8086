package schema_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-migrate/internal/schema"
)

func TestCompare(t *testing.T) {
	desc, err := schema.Load(strings.NewReader(itemsDescriptor), stubChecker{})
	require.NoError(t, err)
	plan := desc.Table("items")

	src, d := openTestDB(t, `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT, tags TEXT, legacy TEXT)`)
	ctx := context.Background()
	source, err := schema.AnalyzeTable(ctx, src, d, "items")
	require.NoError(t, err)

	analyzeTarget := func(ddl string) *schema.Table {
		db, d := openTestDB(t, ddl)
		live, err := schema.AnalyzeTable(ctx, db, d, "items")
		require.NoError(t, err)
		return live
	}

	t.Run("matching", func(t *testing.T) {
		target := analyzeTarget(`CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT NOT NULL, tag_count INTEGER, status TEXT, photo_uriFragment TEXT, extra TEXT)`)
		assert.Nil(t, schema.Compare(plan, source, target))
	})

	t.Run("missing tables", func(t *testing.T) {
		serr := schema.Compare(plan, nil, nil)
		require.NotNil(t, serr)
		assert.ErrorIs(t, serr, schema.ErrTableMissing)
		assert.Len(t, serr.Problems, 2)
	})

	t.Run("missing mapped target column", func(t *testing.T) {
		target := analyzeTarget(`CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT, status TEXT)`)
		serr := schema.Compare(plan, source, target)
		require.NotNil(t, serr)
		assert.ErrorIs(t, serr, schema.ErrColumnMissing)
		assert.Equal(t, []string{"target column tag_count not found"}, serr.Problems)
	})

	t.Run("unmapped live not null", func(t *testing.T) {
		target := analyzeTarget(`CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT, tag_count INTEGER, status TEXT, owner TEXT NOT NULL, kind TEXT NOT NULL DEFAULT 'x')`)
		serr := schema.Compare(plan, source, target)
		require.NotNil(t, serr)
		assert.Equal(t, []string{"target column owner is NOT NULL without default and unmapped"}, serr.Problems)
		assert.Contains(t, serr.Error(), "schema: table items")
	})

	t.Run("missing declared source column", func(t *testing.T) {
		oldSrc, d := openTestDB(t, `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT, tags TEXT)`)
		source, err := schema.AnalyzeTable(ctx, oldSrc, d, "items")
		require.NoError(t, err)
		target := analyzeTarget(`CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT, tag_count INTEGER, status TEXT)`)

		serr := schema.Compare(plan, source, target)
		require.NotNil(t, serr)
		assert.Equal(t, []string{"source column legacy not found"}, serr.Problems)
	})
}

func TestDiffColumns(t *testing.T) {
	ctx := context.Background()
	src, d := openTestDB(t, `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT, tags TEXT)`)
	dst, _ := openTestDB(t, `CREATE TABLE items (id INTEGER PRIMARY KEY, label TEXT, tags TEXT, tag_count INTEGER)`)

	source, err := schema.AnalyzeTable(ctx, src, d, "items")
	require.NoError(t, err)
	target, err := schema.AnalyzeTable(ctx, dst, d, "items")
	require.NoError(t, err)

	diff := schema.DiffColumns("items", source, target)
	assert.False(t, diff.Empty())
	assert.Equal(t, []string{"name"}, diff.SourceOnly)
	assert.Equal(t, []string{"label", "tag_count"}, diff.TargetOnly)
	assert.Equal(t, "source only: name; target only: label, tag_count", diff.String())

	assert.True(t, schema.DiffColumns("items", source, source).Empty())
	assert.True(t, schema.DiffColumns("items", nil, target).Empty())
}
