// Package local mirrors the synced documents found in the vault.
//
// The mirror is never persisted. Scan rebuilds it from storage, and the
// engine patches it with Put and RemovePath as it writes documents.
package local

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/harrisonrobin/todovault/pkg/model"
	"github.com/harrisonrobin/todovault/pkg/vault"
)

// Duplicate records two documents claiming the same entity during one scan.
// Kept is the later-scanned path, which wins.
type Duplicate struct {
	Kind    model.Kind
	ID      string
	Kept    string
	Dropped string
}

// Options configure a State.
type Options struct {
	// Root is the vault folder holding synced documents.
	Root string
	// ScopeTag, when set, restricts the mirror to documents tagged with it.
	ScopeTag string
	Logger   *log.Logger
}

type ref struct {
	kind model.Kind
	id   string
}

// State is the local mirror. It is not safe for concurrent use.
type State struct {
	storage  vault.Storage
	root     string
	scopeTag string
	logger   *log.Logger

	docs       map[model.Kind]map[string]model.Document
	paths      map[string]ref
	duplicates []Duplicate
	lastScan   time.Time
}

func New(storage vault.Storage, opts Options) *State {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[local] ", log.LstdFlags)
	}
	s := &State{
		storage:  storage,
		root:     vault.Clean(opts.Root),
		scopeTag: opts.ScopeTag,
		logger:   logger,
	}
	s.reset()
	return s
}

func (s *State) reset() {
	s.docs = map[model.Kind]map[string]model.Document{
		model.KindTask:    {},
		model.KindProject: {},
		model.KindSection: {},
	}
	s.paths = make(map[string]ref)
	s.duplicates = nil
}

// Root returns the vault folder the mirror covers.
func (s *State) Root() string { return s.root }

// InScope reports whether doc belongs to the mirror.
func (s *State) InScope(doc model.Document) bool {
	if doc.EntityID == "" || doc.Kind == "" {
		return false
	}
	if s.scopeTag != "" && !doc.HasTag(s.scopeTag) {
		return false
	}
	return true
}

// Scan rebuilds the mirror from storage. Documents are visited in lexical
// path order, so the later of two duplicates always wins.
func (s *State) Scan(ctx context.Context, now time.Time) error {
	docs, err := s.storage.ListDocuments(ctx, s.root)
	if err != nil {
		return fmt.Errorf("failed to scan %q: %w", s.root, err)
	}

	s.reset()
	for _, doc := range docs {
		if doc.EntityID != "" && doc.Kind == "" {
			kind, _ := doc.Properties.GetString(model.KeyType)
			s.logger.Printf("Warning: ignoring %s: unknown todoist_type %q", doc.Path, kind)
			continue
		}
		if !s.InScope(doc) {
			continue
		}
		if prev, ok := s.docs[doc.Kind][doc.EntityID]; ok && prev.Path != doc.Path {
			dup := Duplicate{Kind: doc.Kind, ID: doc.EntityID, Kept: doc.Path, Dropped: prev.Path}
			s.duplicates = append(s.duplicates, dup)
			s.logger.Printf("Warning: duplicate documents for %s %s: keeping %s, ignoring %s", dup.Kind, dup.ID, dup.Kept, dup.Dropped)
			delete(s.paths, prev.Path)
		}
		s.docs[doc.Kind][doc.EntityID] = doc
		s.paths[doc.Path] = ref{kind: doc.Kind, id: doc.EntityID}
	}
	s.lastScan = now
	return nil
}

// LastScan returns when Scan last completed.
func (s *State) LastScan() time.Time { return s.lastScan }

// Duplicates returns the anomalies found by the last scan.
func (s *State) Duplicates() []Duplicate {
	return append([]Duplicate(nil), s.duplicates...)
}

// Get returns the document mirroring the given entity.
func (s *State) Get(kind model.Kind, id string) (model.Document, bool) {
	doc, ok := s.docs[kind][id]
	return doc, ok
}

func (s *State) Task(id string) (model.Document, bool)    { return s.Get(model.KindTask, id) }
func (s *State) Project(id string) (model.Document, bool) { return s.Get(model.KindProject, id) }
func (s *State) Section(id string) (model.Document, bool) { return s.Get(model.KindSection, id) }

// ByPath returns the document stored at p.
func (s *State) ByPath(p string) (model.Document, bool) {
	r, ok := s.paths[vault.Clean(p)]
	if !ok {
		return model.Document{}, false
	}
	return s.Get(r.kind, r.id)
}

// All returns every document of a kind, sorted by path.
func (s *State) All(kind model.Kind) []model.Document {
	out := make([]model.Document, 0, len(s.docs[kind]))
	for _, doc := range s.docs[kind] {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// ModifiedSince returns the documents of a kind modified after t, sorted by
// path.
func (s *State) ModifiedSince(kind model.Kind, t time.Time) []model.Document {
	var out []model.Document
	for _, doc := range s.All(kind) {
		if doc.ModTime.After(t) {
			out = append(out, doc)
		}
	}
	return out
}

// Put inserts or replaces the document for doc's entity. A previous path for
// the same entity is forgotten.
func (s *State) Put(doc model.Document) {
	if doc.EntityID == "" || doc.Kind == "" {
		return
	}
	doc.Path = vault.Clean(doc.Path)
	if prev, ok := s.docs[doc.Kind][doc.EntityID]; ok && prev.Path != doc.Path {
		delete(s.paths, prev.Path)
	}
	if r, ok := s.paths[doc.Path]; ok && (r.kind != doc.Kind || r.id != doc.EntityID) {
		delete(s.docs[r.kind], r.id)
	}
	s.docs[doc.Kind][doc.EntityID] = doc
	s.paths[doc.Path] = ref{kind: doc.Kind, id: doc.EntityID}
}

// RemovePath forgets the document stored at p and returns it.
func (s *State) RemovePath(p string) (model.Document, bool) {
	p = vault.Clean(p)
	r, ok := s.paths[p]
	if !ok {
		return model.Document{}, false
	}
	doc := s.docs[r.kind][r.id]
	delete(s.paths, p)
	delete(s.docs[r.kind], r.id)
	return doc, true
}

// Counts returns the number of mirrored documents per kind.
func (s *State) Counts() map[string]int {
	return map[string]int{
		"tasks":    len(s.docs[model.KindTask]),
		"projects": len(s.docs[model.KindProject]),
		"sections": len(s.docs[model.KindSection]),
	}
}
