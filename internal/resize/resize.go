// Package resize performs attachment actions on disk: it copies files into
// the target tree and shrinks oversized images.
package resize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/image/draw"

	"db-migrate/internal/engine"
)

const (
	DefaultMaxDimension = 1024
	DefaultQuality      = 85
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrStillOversized    = errors.New("still oversized after resize")
)

// Options configures a FileApplier.
type Options struct {
	MaxDimension int    // longest side in pixels after a resize
	Quality      int    // JPEG quality, 1-100
	MaxBytes     int64  // size ceiling checked after a resize, 0 to skip
	BackupDir    string // originals are kept here before shrinking, empty to skip
	Logger       *slog.Logger
}

// FileApplier implements engine.Applier on the local filesystem.
type FileApplier struct {
	opts Options
}

var _ engine.Applier = (*FileApplier)(nil)

func NewFileApplier(opts Options) *FileApplier {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &FileApplier{opts: opts}
}

// Apply copies or shrinks one attachment. Missing actions need no work.
func (a *FileApplier) Apply(_ context.Context, action engine.AttachmentAction) error {
	switch action.Kind {
	case engine.ActionCopy:
		if err := CopyFile(action.Src, action.Dst); err != nil {
			return err
		}
		a.opts.Logger.Debug("attachment copied", "path", action.Dst)
		return nil

	case engine.ActionOversized:
		return a.shrink(action)
	}
	return nil
}

func (a *FileApplier) shrink(action engine.AttachmentAction) error {
	if a.opts.BackupDir != "" {
		backup := filepath.Join(a.opts.BackupDir, filepath.FromSlash(action.RelPath))
		if err := CopyFile(action.Dst, backup); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	}

	res, err := Shrink(action.Dst, a.opts.MaxDimension, a.opts.Quality)
	if err != nil {
		return err
	}
	a.opts.Logger.Info("attachment resized",
		"path", action.Dst,
		"before", humanize.IBytes(uint64(res.Before)),
		"after", humanize.IBytes(uint64(res.After)),
		"width", res.Width,
		"height", res.Height)

	if a.opts.MaxBytes > 0 && res.After > a.opts.MaxBytes {
		return fmt.Errorf("%w: %s", ErrStillOversized, humanize.IBytes(uint64(res.After)))
	}
	return nil
}

// Result describes one shrunk image.
type Result struct {
	Before, After int64
	Width, Height int
}

// Shrink rescales a JPEG or PNG in place so its longest side is at most
// maxDim. JPEGs are always re-encoded at quality; smaller PNGs are left alone.
func Shrink(path string, maxDim, quality int) (Result, error) {
	var res Result

	format := formatOf(path)
	if format == "" {
		return res, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return res, err
	}
	res.Before = info.Size()

	src, err := decode(path)
	if err != nil {
		return res, err
	}

	b := src.Bounds()
	w, h := fit(b.Dx(), b.Dy(), maxDim)
	res.Width, res.Height = w, h

	if w == b.Dx() && h == b.Dy() && format == "png" {
		res.After = res.Before
		return res, nil
	}

	var img image.Image = src
	if w != b.Dx() || h != b.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		img = dst
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".resize-*")
	if err != nil {
		return res, err
	}
	defer os.Remove(tmp.Name())
	_ = tmp.Chmod(info.Mode().Perm())

	if format == "jpeg" {
		err = jpeg.Encode(tmp, img, &jpeg.Options{Quality: quality})
	} else {
		err = png.Encode(tmp, img)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return res, fmt.Errorf("encode %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return res, err
	}
	if info, err := os.Stat(path); err == nil {
		res.After = info.Size()
	}
	return res, nil
}

// fit scales w x h down to fit within maxDim, keeping the aspect ratio.
func fit(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "jpeg"
	case ".png":
		return "png"
	}
	return ""
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// CopyFile copies src to dst, creating parent directories. The destination
// is replaced atomically.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	_ = tmp.Chmod(0o644)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
