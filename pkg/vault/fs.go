package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrisonrobin/todovault/pkg/model"
	"github.com/natefinch/atomic"
)

// FS is a Storage backed by a directory on disk.
type FS struct {
	root string
}

// NewFS returns storage rooted at dir.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault path %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault %s: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault path %s is not a directory", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute vault directory.
func (v *FS) Root() string { return v.root }

// Abs maps a vault path to an absolute filesystem path.
func (v *FS) Abs(p string) string {
	return filepath.Join(v.root, filepath.FromSlash(Clean(p)))
}

// Rel maps an absolute filesystem path back to a vault path. It reports
// false for paths outside the vault.
func (v *FS) Rel(abs string) (string, bool) {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return Clean(filepath.ToSlash(rel)), true
}

func (v *FS) ListDocuments(ctx context.Context, root string) ([]model.Document, error) {
	start := v.Abs(root)
	var docs []model.Document
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == start && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != start && hidden(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if hidden(d.Name()) || !IsDocument(d.Name()) {
			return nil
		}
		rel, _ := v.Rel(p)
		doc, err := v.read(p, rel)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents under %q: %w", root, err)
	}
	return docs, nil
}

func (v *FS) ReadDocument(ctx context.Context, p string) (model.Document, error) {
	if err := ctx.Err(); err != nil {
		return model.Document{}, err
	}
	return v.read(v.Abs(p), Clean(p))
}

func (v *FS) read(abs, rel string) (model.Document, error) {
	raw, err := os.ReadFile(abs)
	if err != nil {
		return model.Document{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return model.Document{}, err
	}
	return model.NewDocument(rel, raw, info.ModTime()), nil
}

func (v *FS) WriteDocument(ctx context.Context, p string, content []byte) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	abs := v.Abs(p)
	if err := atomic.WriteFile(abs, bytes.NewReader(content)); err != nil {
		return time.Time{}, fmt.Errorf("failed to write %s: %w", p, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (v *FS) DeleteDocument(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(v.Abs(p)); err != nil {
		return fmt.Errorf("failed to delete %s: %w", p, err)
	}
	return nil
}

func (v *FS) FolderExists(ctx context.Context, p string) (bool, error) {
	info, err := os.Stat(v.Abs(p))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (v *FS) CreateFolder(ctx context.Context, p string) error {
	if err := os.MkdirAll(v.Abs(p), 0755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", p, err)
	}
	return nil
}
