package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestClean(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"/Todoist/":       "Todoist",
		"Todoist/./a.md":  "Todoist/a.md",
		`Todoist\Inbox`:   "Todoist/Inbox",
		"a/../b/_task.md": "b/_task.md",
	}
	for in, want := range tests {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFSRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	v, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}

	if err := v.CreateFolder(ctx, "Todoist/Inbox"); err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	ok, err := v.FolderExists(ctx, "Todoist/Inbox")
	if err != nil || !ok {
		t.Fatalf("FolderExists = %v, %v", ok, err)
	}

	content := "---\ntodoist_id: \"1\"\n---\nbody\n"
	mod, err := v.WriteDocument(ctx, "Todoist/Inbox/b.md", []byte(content))
	if err != nil {
		t.Fatalf("WriteDocument failed: %v", err)
	}
	if mod.IsZero() {
		t.Errorf("Expected a modification time")
	}
	if _, err := v.WriteDocument(ctx, "Todoist/Inbox/a.md", []byte("---\ntodoist_id: \"2\"\n---\n")); err != nil {
		t.Fatalf("WriteDocument failed: %v", err)
	}

	// Noise the listing must skip.
	os.MkdirAll(filepath.Join(dir, "Todoist", ".trash"), 0755)
	os.WriteFile(filepath.Join(dir, "Todoist", ".trash", "c.md"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "Todoist", "notes.txt"), []byte("x"), 0644)

	docs, err := v.ListDocuments(ctx, "Todoist")
	if err != nil {
		t.Fatalf("ListDocuments failed: %v", err)
	}
	var paths []string
	for _, d := range docs {
		paths = append(paths, d.Path)
	}
	want := []string{"Todoist/Inbox/a.md", "Todoist/Inbox/b.md"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("ListDocuments mismatch (-want +got):\n%s", diff)
	}

	doc, err := v.ReadDocument(ctx, "Todoist/Inbox/b.md")
	if err != nil {
		t.Fatalf("ReadDocument failed: %v", err)
	}
	if doc.EntityID != "1" || doc.Body != "body\n" {
		t.Errorf("ReadDocument = %+v", doc)
	}

	if err := v.DeleteDocument(ctx, "Todoist/Inbox/b.md"); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if _, err := v.ReadDocument(ctx, "Todoist/Inbox/b.md"); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist after delete, got %v", err)
	}
}

func TestFSMissingRoot(t *testing.T) {
	v, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	docs, err := v.ListDocuments(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Expected no error for a missing root, got %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("Expected no documents, got %d", len(docs))
	}
}

func TestFSRel(t *testing.T) {
	dir := t.TempDir()
	v, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS failed: %v", err)
	}
	rel, ok := v.Rel(filepath.Join(v.Root(), "Todoist", "a.md"))
	if !ok || rel != "Todoist/a.md" {
		t.Errorf("Rel = %q, %v", rel, ok)
	}
	if _, ok := v.Rel(filepath.Dir(v.Root())); ok {
		t.Errorf("Expected a path outside the vault to be rejected")
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.Now = func() time.Time { return now }

	if _, err := m.WriteDocument(ctx, "Todoist/x.md", []byte("x")); err == nil {
		t.Errorf("Expected a write into a missing folder to fail")
	}
	if err := m.CreateFolder(ctx, "Todoist/Inbox"); err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	if ok, _ := m.FolderExists(ctx, "Todoist"); !ok {
		t.Errorf("Expected parent folder to exist")
	}
	mod, err := m.WriteDocument(ctx, "Todoist/Inbox/x.md", []byte("x"))
	if err != nil {
		t.Fatalf("WriteDocument failed: %v", err)
	}
	if !mod.Equal(now) {
		t.Errorf("Expected mtime %v, got %v", now, mod)
	}

	m.Seed("Todoist/.hidden/y.md", "y", now)
	m.Seed("Other/z.md", "z", now)
	docs, _ := m.ListDocuments(ctx, "Todoist")
	if len(docs) != 1 || docs[0].Path != "Todoist/Inbox/x.md" {
		t.Errorf("ListDocuments = %+v", docs)
	}
	if diff := cmp.Diff([]string{"Todoist/Inbox/x.md"}, m.Writes()); diff != "" {
		t.Errorf("Writes mismatch (-want +got):\n%s", diff)
	}
}
