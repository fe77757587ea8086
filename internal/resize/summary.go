package resize

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// DirSize totals the files of one table directory of an attachment tree.
type DirSize struct {
	Table string
	Files int
	Bytes int64
}

// Average returns the mean file size.
func (d DirSize) Average() int64 {
	if d.Files == 0 {
		return 0
	}
	return d.Bytes / int64(d.Files)
}

// Summarize walks root and totals files per top-level table directory,
// sorted by table name. A missing root yields no rows.
func Summarize(root string) ([]DirSize, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []DirSize
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		size := DirSize{Table: e.Name()}
		err := filepath.WalkDir(filepath.Join(root, e.Name()), func(_ string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			size.Files++
			size.Bytes += info.Size()
			return nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, size)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Table < out[j].Table })
	return out, nil
}
