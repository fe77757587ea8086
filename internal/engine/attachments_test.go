package engine_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-migrate/internal/engine"
	"db-migrate/internal/schema"
)

func TestSanitizeInstanceID(t *testing.T) {
	assert.Equal(t, "uuid_6f1c_22", engine.SanitizeInstanceID("uuid:6f1c-22"))
	assert.Equal(t, "plain", engine.SanitizeInstanceID("plain"))
	assert.Equal(t, "survey/instances/uuid_1/a.jpg", engine.AttachmentPath("survey", "uuid:1", "a.jpg"))
}

func TestReconcile(t *testing.T) {
	dir := t.TempDir()
	srcRoot := filepath.Join(dir, "src")
	dstRoot := filepath.Join(dir, "dst")

	write := func(rel string, data []byte) {
		p := filepath.Join(srcRoot, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, data, 0o644))
	}
	write("old/instances/uuid_1/front.jpg", []byte("front"))
	write("old/instances/uuid_1/empty.jpg", nil)
	require.NoError(t, os.MkdirAll(filepath.Join(srcRoot, "old", "instances", "uuid_1", "folder"), 0o755))

	plan := &schema.TablePlan{
		Name:           "new",
		SourceName:     "old",
		InstanceColumn: "_id",
		Attachments:    []string{"front_uriFragment", "back_uriFragment"},
	}
	row := func(id string, front, back any) engine.MigratedRow {
		return engine.MigratedRow{
			ID:     id,
			Source: schema.Row{"_id": "uuid:1"},
			Target: schema.Row{"front_uriFragment": front, "back_uriFragment": back},
		}
	}
	rows := []engine.MigratedRow{
		row("r1", "front.jpg", "back.jpg"),
		row("r2", "empty.jpg", nil),
		row("r3", "folder", ""),
		row("r4", "https://example.com/x.jpg", "/etc/passwd"),
		row("r5", "../escape.jpg", []byte("front.jpg")),
	}

	r := &engine.Reconciler{SourceRoot: srcRoot, TargetRoot: dstRoot}
	actions := r.Reconcile(plan, rows)

	type summary struct {
		Row    string
		Kind   engine.ActionKind
		Reason string
	}
	var got []summary
	for _, a := range actions {
		got = append(got, summary{a.Row, a.Kind, a.Reason})
	}
	assert.Equal(t, []summary{
		{"r1", engine.ActionCopy, ""},
		{"r1", engine.ActionMissing, "file not found"},
		{"r2", engine.ActionMissing, "empty file"},
		{"r3", engine.ActionMissing, "path is a directory"},
		{"r4", engine.ActionMissing, "not a local relative path"},
		{"r4", engine.ActionMissing, "not a local relative path"},
		{"r5", engine.ActionMissing, "not a local relative path"},
		{"r5", engine.ActionCopy, ""},
	}, got)

	cp := actions[0]
	assert.Equal(t, "front_uriFragment", cp.Column)
	assert.Equal(t, "new/instances/uuid_1/front.jpg", cp.RelPath)
	assert.Equal(t, filepath.Join(srcRoot, "old", "instances", "uuid_1", "front.jpg"), cp.Src)
	assert.Equal(t, filepath.Join(dstRoot, "new", "instances", "uuid_1", "front.jpg"), cp.Dst)
	assert.Equal(t, int64(5), cp.Size)

	assert.Equal(t, "old/instances/uuid_1/back.jpg", actions[1].RelPath)
}

func TestReconcile_InstanceIDFromTargetFirst(t *testing.T) {
	dir := t.TempDir()
	plan := &schema.TablePlan{Name: "t", SourceName: "t", InstanceColumn: "_id", Attachments: []string{"f"}}
	rows := []engine.MigratedRow{
		{ID: "1", Source: schema.Row{"_id": "old"}, Target: schema.Row{"_id": "new", "f": "a.jpg"}},
		{ID: "2", Source: schema.Row{}, Target: schema.Row{"f": "b.jpg"}},
	}

	actions := (&engine.Reconciler{SourceRoot: dir, TargetRoot: dir}).Reconcile(plan, rows)

	require.Len(t, actions, 2)
	assert.Equal(t, "t/instances/new/a.jpg", actions[0].RelPath)
	assert.Equal(t, engine.ActionMissing, actions[1].Kind)
	assert.Equal(t, "row has no instance id", actions[1].Reason)
}

func TestReconcile_Oversized(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "t", "instances", "7", "big.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, make([]byte, 2048), 0o644))

	plan := &schema.TablePlan{Name: "t", SourceName: "t", InstanceColumn: "id", Attachments: []string{"f"}}
	rows := []engine.MigratedRow{{ID: "7", Target: schema.Row{"id": int64(7), "f": "big.png"}}}

	actions := (&engine.Reconciler{SourceRoot: dir, TargetRoot: dir, MaxBytes: 1024}).Reconcile(plan, rows)
	require.Len(t, actions, 2)
	assert.Equal(t, engine.ActionCopy, actions[0].Kind)
	assert.Equal(t, engine.ActionOversized, actions[1].Kind)
	assert.Equal(t, int64(2048), actions[1].Size)

	actions = (&engine.Reconciler{SourceRoot: dir, TargetRoot: dir, MaxBytes: 4096}).Reconcile(plan, rows)
	assert.Len(t, actions, 1)
}

func TestOrphans(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{
		"old/instances/uuid_1/front.jpg",
		"old/instances/uuid_1/stale.jpg",
		"old/instances/uuid_9/b.jpg",
		"other/instances/uuid_1/c.jpg",
	} {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	plan := &schema.TablePlan{Name: "new", SourceName: "old", InstanceColumn: "_id", Attachments: []string{"front_uriFragment"}}
	r := &engine.Reconciler{SourceRoot: root, TargetRoot: t.TempDir()}
	actions := r.Reconcile(plan, []engine.MigratedRow{{
		ID:     "r1",
		Source: schema.Row{"_id": "uuid:1"},
		Target: schema.Row{"front_uriFragment": "front.jpg"},
	}})
	require.Len(t, actions, 1)

	orphans, err := r.Orphans(plan, actions)
	require.NoError(t, err)
	assert.Equal(t, []string{"old/instances/uuid_1/stale.jpg", "old/instances/uuid_9/b.jpg"}, orphans)

	orphans, err = r.Orphans(&schema.TablePlan{Name: "none", SourceName: "none"}, nil)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}
