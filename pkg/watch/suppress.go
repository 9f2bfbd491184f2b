package watch

import (
	"context"
	"time"

	"github.com/harrisonrobin/todovault/pkg/vault"
)

// Suppress wraps storage so that the watcher ignores the events caused by
// writes and deletes made through it.
func Suppress(storage vault.Storage, w *Watcher) vault.Storage {
	return &suppressed{Storage: storage, w: w}
}

type suppressed struct {
	vault.Storage
	w *Watcher
}

func (s *suppressed) WriteDocument(ctx context.Context, p string, content []byte) (time.Time, error) {
	s.w.Ignore(p)
	return s.Storage.WriteDocument(ctx, p, content)
}

func (s *suppressed) DeleteDocument(ctx context.Context, p string) error {
	s.w.Ignore(p)
	return s.Storage.DeleteDocument(ctx, p)
}
