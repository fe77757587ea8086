package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"db-migrate/internal/schema"
)

// ActionKind says what should happen to one attachment file.
type ActionKind string

const (
	ActionCopy      ActionKind = "copy"
	ActionMissing   ActionKind = "missing"
	ActionOversized ActionKind = "oversized"
)

// AttachmentAction is one step computed for a migrated row. Paths are
// absolute; RelPath is the table/instances/id/file form.
type AttachmentAction struct {
	Kind    ActionKind `json:"kind"`
	Row     string     `json:"row"`
	Column  string     `json:"column"`
	RelPath string     `json:"rel_path"`
	Src     string     `json:"src,omitempty"`
	Dst     string     `json:"dst,omitempty"`
	Size    int64      `json:"size,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

func (a AttachmentAction) displayPath() string {
	switch {
	case a.Kind == ActionOversized && a.Dst != "":
		return a.Dst
	case a.Src != "":
		return a.Src
	}
	return a.RelPath
}

// Applier performs attachment actions: file copy, resize and pruning.
type Applier interface {
	Apply(ctx context.Context, action AttachmentAction) error
}

// MigratedRow is a row that reached the target table.
type MigratedRow struct {
	ID     string
	Source schema.Row
	Target schema.Row
}

// Reconciler derives attachment actions for migrated rows. Each database
// keeps its files under <root>/<table>/instances/<instance id>/<file>.
type Reconciler struct {
	SourceRoot string
	TargetRoot string
	MaxBytes   int64 // 0 disables the oversized check
}

// SanitizeInstanceID turns a row instance id into a directory name.
func SanitizeInstanceID(id string) string {
	return strings.NewReplacer(":", "_", "-", "_").Replace(id)
}

// AttachmentPath is the relative location of one attachment file.
func AttachmentPath(table, instanceID, file string) string {
	return path.Join(table, "instances", SanitizeInstanceID(instanceID), file)
}

// Reconcile computes the actions for the attachment columns of rows, in row
// order and then plan column order. The instance id is preserved between
// source and target trees.
func (r *Reconciler) Reconcile(plan *schema.TablePlan, rows []MigratedRow) []AttachmentAction {
	var actions []AttachmentAction
	for _, row := range rows {
		for _, col := range plan.Attachments {
			file, ok := attachmentValue(row.Target[col])
			if !ok {
				continue
			}
			actions = append(actions, r.reconcileOne(plan, row, col, file)...)
		}
	}
	return actions
}

func (r *Reconciler) reconcileOne(plan *schema.TablePlan, row MigratedRow, col, file string) []AttachmentAction {
	base := AttachmentAction{Row: row.ID, Column: col}

	instance := instanceID(plan.InstanceColumn, row)
	if instance == "" {
		base.Kind = ActionMissing
		base.RelPath = file
		base.Reason = "row has no instance id"
		return []AttachmentAction{base}
	}

	rel, ok := localPath(file)
	if !ok {
		base.Kind = ActionMissing
		base.RelPath = file
		base.Reason = "not a local relative path"
		return []AttachmentAction{base}
	}

	srcRel := AttachmentPath(plan.SourceName, instance, rel)
	dstRel := AttachmentPath(plan.Name, instance, rel)
	base.RelPath = srcRel
	base.Src = filepath.Join(r.SourceRoot, filepath.FromSlash(srcRel))

	info, err := os.Stat(base.Src)
	switch {
	case err != nil:
		base.Kind = ActionMissing
		base.Reason = "file not found"
		return []AttachmentAction{base}
	case info.IsDir():
		base.Kind = ActionMissing
		base.Reason = "path is a directory"
		return []AttachmentAction{base}
	case info.Size() == 0:
		base.Kind = ActionMissing
		base.Reason = "empty file"
		return []AttachmentAction{base}
	}

	cp := base
	cp.Kind = ActionCopy
	cp.RelPath = dstRel
	cp.Dst = filepath.Join(r.TargetRoot, filepath.FromSlash(dstRel))
	cp.Size = info.Size()
	out := []AttachmentAction{cp}

	if r.MaxBytes > 0 && info.Size() > r.MaxBytes {
		big := cp
		big.Kind = ActionOversized
		big.Reason = fmt.Sprintf("exceeds %d bytes", r.MaxBytes)
		out = append(out, big)
	}
	return out
}

// Orphans lists the files under <source root>/<source table>/instances that
// none of actions accounts for, as slash paths relative to the source root.
// Files of rows that did not migrate show up here too. A table without an
// instances directory has no orphans.
func (r *Reconciler) Orphans(plan *schema.TablePlan, actions []AttachmentAction) ([]string, error) {
	referenced := make(map[string]bool, len(actions))
	for _, a := range actions {
		if a.Src != "" {
			referenced[filepath.Clean(a.Src)] = true
		}
	}

	dir := filepath.Join(r.SourceRoot, plan.SourceName, "instances")
	var orphans []string
	err := filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if entry.IsDir() || referenced[filepath.Clean(p)] {
			return nil
		}
		rel, err := filepath.Rel(r.SourceRoot, p)
		if err != nil {
			return err
		}
		orphans = append(orphans, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return orphans, nil
}

func attachmentValue(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// instanceID prefers the target row so renamed id columns still resolve.
func instanceID(column string, row MigratedRow) string {
	for _, r := range []schema.Row{row.Target, row.Source} {
		if v, ok := r[column]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

// localPath accepts relative slash paths that stay inside the instance dir.
func localPath(file string) (string, bool) {
	if strings.Contains(file, "://") || strings.HasPrefix(file, "/") || strings.Contains(file, "\\") {
		return "", false
	}
	clean := path.Clean(file)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}
