// Package watch turns filesystem events in the vault into engine
// notifications.
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/harrisonrobin/todovault/pkg/vault"
)

// DefaultIgnoreWindow is how long events for a path are dropped after the
// engine itself writes it.
const DefaultIgnoreWindow = 2 * time.Second

// Handler receives vault-relative document paths.
type Handler interface {
	OnDocumentModified(p string)
	OnDocumentDeleted(p string)
}

// Watcher watches the sync root recursively.
type Watcher struct {
	vault   *vault.FS
	root    string
	handler Handler
	logger  *log.Logger
	window  time.Duration
	now     func() time.Time

	watcher *fsnotify.Watcher

	mu     sync.Mutex
	ignore map[string]time.Time
}

// New creates a watcher for root, a folder inside v.
func New(v *vault.FS, root string, h Handler, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[watch] ", log.LstdFlags)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		vault:   v,
		root:    vault.Clean(root),
		handler: h,
		logger:  logger,
		window:  DefaultIgnoreWindow,
		now:     time.Now,
		watcher: fw,
		ignore:  make(map[string]time.Time),
	}, nil
}

// Ignore drops events for p for the ignore window.
func (w *Watcher) Ignore(p string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	for path, until := range w.ignore {
		if now.After(until) {
			delete(w.ignore, path)
		}
	}
	w.ignore[vault.Clean(p)] = now.Add(w.window)
}

func (w *Watcher) ignored(p string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	until, ok := w.ignore[p]
	return ok && !w.now().After(until)
}

// Run watches until ctx is cancelled. The sync root is created if it does
// not exist yet.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	start := w.vault.Abs(w.root)
	if err := os.MkdirAll(start, 0755); err != nil {
		return fmt.Errorf("failed to create sync root: %w", err)
	}
	if err := w.addDirs(start); err != nil {
		return fmt.Errorf("failed to watch %s: %w", start, err)
	}
	w.logger.Printf("Watching %s", start)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("Warning: watcher error: %v", err)
		}
	}
}

// addDirs adds root and its subdirectories, skipping hidden ones.
func (w *Watcher) addDirs(root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") && p != root {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, ok := w.vault.Rel(event.Name)
	if !ok || hiddenPath(rel) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirs(event.Name); err != nil {
				w.logger.Printf("Warning: failed to watch %s: %v", rel, err)
			}
			return
		}
	}
	if !vault.IsDocument(rel) || w.ignored(rel) {
		return
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.handler.OnDocumentModified(rel)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename reports the old name; the new one arrives as a Create.
		w.handler.OnDocumentDeleted(rel)
	}
}

func hiddenPath(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
