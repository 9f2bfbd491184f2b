// Package vault stores documents in a hierarchical folder namespace.
//
// Paths are slash-separated and relative to the vault root. Only Markdown
// files are considered documents.
package vault

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/harrisonrobin/todovault/pkg/model"
)

// Ext is the extension of document files.
const Ext = ".md"

// Storage is what the sync core needs from the document store.
type Storage interface {
	// ListDocuments returns every document under root in lexical path order.
	// A missing root yields no documents.
	ListDocuments(ctx context.Context, root string) ([]model.Document, error)
	ReadDocument(ctx context.Context, p string) (model.Document, error)
	// WriteDocument creates or replaces p and returns its new modification
	// time. The parent folder must exist.
	WriteDocument(ctx context.Context, p string, content []byte) (time.Time, error)
	DeleteDocument(ctx context.Context, p string) error
	FolderExists(ctx context.Context, p string) (bool, error)
	// CreateFolder creates p and any missing parents.
	CreateFolder(ctx context.Context, p string) error
}

// Clean normalizes a vault path: slash-separated, no leading slash, no dot
// segments.
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// IsDocument reports whether p names a document file.
func IsDocument(p string) bool {
	return strings.EqualFold(path.Ext(p), Ext)
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// under reports whether p lies inside root. An empty root contains
// everything.
func under(p, root string) bool {
	if root == "" {
		return true
	}
	return p == root || strings.HasPrefix(p, root+"/")
}
