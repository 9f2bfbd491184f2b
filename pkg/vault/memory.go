package vault

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/harrisonrobin/todovault/pkg/model"
)

// Memory is an in-memory Storage. It records every write and delete so
// callers can assert on side effects.
type Memory struct {
	// Now stamps modification times. Defaults to time.Now.
	Now func() time.Time
	// FailWrites makes WriteDocument fail for the listed paths.
	FailWrites map[string]error

	mu      sync.Mutex
	files   map[string]memFile
	folders map[string]bool
	writes  []string
	deletes []string
}

type memFile struct {
	content []byte
	modTime time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		files:   make(map[string]memFile),
		folders: map[string]bool{"": true},
	}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Seed stores a file with an explicit modification time, creating its
// folders. Seeding is not recorded as a write.
func (m *Memory) Seed(p string, content string, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = Clean(p)
	m.mkdirAll(path.Dir(p))
	m.files[p] = memFile{content: []byte(content), modTime: modTime}
}

// Touch bumps the modification time of an existing file.
func (m *Memory) Touch(p string, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = Clean(p)
	if f, ok := m.files[p]; ok {
		f.modTime = modTime
		m.files[p] = f
	}
}

// Writes returns the paths written so far, in order.
func (m *Memory) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

// Deletes returns the paths deleted so far, in order.
func (m *Memory) Deletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

// Paths returns every stored file path, sorted.
func (m *Memory) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Content returns the raw bytes of p.
func (m *Memory) Content(p string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[Clean(p)]
	return string(f.content), ok
}

func (m *Memory) mkdirAll(dir string) {
	for dir != "." && dir != "/" && dir != "" {
		m.folders[dir] = true
		dir = path.Dir(dir)
	}
}

func (m *Memory) ListDocuments(ctx context.Context, root string) ([]model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	root = Clean(root)

	var paths []string
	for p := range m.files {
		if !under(p, root) || !IsDocument(p) || hiddenPath(p) {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	docs := make([]model.Document, 0, len(paths))
	for _, p := range paths {
		f := m.files[p]
		docs = append(docs, model.NewDocument(p, f.content, f.modTime))
	}
	return docs, nil
}

func hiddenPath(p string) bool {
	for p != "." && p != "" {
		if hidden(path.Base(p)) {
			return true
		}
		p = path.Dir(p)
	}
	return false
}

func (m *Memory) ReadDocument(ctx context.Context, p string) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = Clean(p)
	f, ok := m.files[p]
	if !ok {
		return model.Document{}, &fs.PathError{Op: "read", Path: p, Err: fs.ErrNotExist}
	}
	return model.NewDocument(p, f.content, f.modTime), nil
}

func (m *Memory) WriteDocument(ctx context.Context, p string, content []byte) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = Clean(p)
	if err, ok := m.FailWrites[p]; ok {
		return time.Time{}, fmt.Errorf("failed to write %s: %w", p, err)
	}
	if dir := path.Dir(p); dir != "." && !m.folders[dir] {
		return time.Time{}, fmt.Errorf("failed to write %s: %w", p, &fs.PathError{Op: "write", Path: dir, Err: fs.ErrNotExist})
	}
	mod := m.now()
	m.files[p] = memFile{content: append([]byte(nil), content...), modTime: mod}
	m.writes = append(m.writes, p)
	return mod, nil
}

func (m *Memory) DeleteDocument(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = Clean(p)
	if _, ok := m.files[p]; !ok {
		return fmt.Errorf("failed to delete %s: %w", p, fs.ErrNotExist)
	}
	delete(m.files, p)
	m.deletes = append(m.deletes, p)
	return nil
}

func (m *Memory) FolderExists(ctx context.Context, p string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.folders[Clean(p)], nil
}

func (m *Memory) CreateFolder(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAll(Clean(p))
	return nil
}
