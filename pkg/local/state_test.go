package local

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/harrisonrobin/todovault/pkg/model"
	"github.com/harrisonrobin/todovault/pkg/vault"
)

func doc(id, kind string, extra ...string) string {
	lines := []string{"---", `todoist_id: "` + id + `"`}
	if kind != "" {
		lines = append(lines, "todoist_type: "+kind)
	}
	lines = append(lines, extra...)
	lines = append(lines, "---", "")
	return strings.Join(lines, "\n")
}

func TestScan(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := vault.NewMemory()
	store.Seed("Todoist/Inbox/_project.md", doc("p1", "project"), base)
	store.Seed("Todoist/Inbox/Later/_section.md", doc("s1", "section"), base)
	store.Seed("Todoist/Inbox/Buy milk.md", doc("t1", ""), base.Add(time.Hour))
	store.Seed("Todoist/Inbox/notes.md", "# just notes\n", base)
	store.Seed("Todoist/Inbox/odd.md", doc("x", "label"), base)
	store.Seed("Elsewhere/t2.md", doc("t2", "task"), base)

	var buf bytes.Buffer
	s := New(store, Options{Root: "Todoist", Logger: log.New(&buf, "", 0)})
	if err := s.Scan(context.Background(), base); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := map[string]int{"tasks": 1, "projects": 1, "sections": 1}
	if diff := cmp.Diff(want, s.Counts()); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.Task("t2"); ok {
		t.Errorf("Document outside the root was mirrored")
	}
	if d, ok := s.ByPath("Todoist/Inbox/Buy milk.md"); !ok || d.EntityID != "t1" {
		t.Errorf("ByPath = %+v, %v", d, ok)
	}
	if !strings.Contains(buf.String(), "unknown todoist_type") {
		t.Errorf("Expected a warning for an unknown type, got %q", buf.String())
	}

	mod := s.ModifiedSince(model.KindTask, base)
	if len(mod) != 1 || mod[0].EntityID != "t1" {
		t.Errorf("ModifiedSince = %+v", mod)
	}
	if len(s.ModifiedSince(model.KindProject, base)) != 0 {
		t.Errorf("Project modified at the watermark must not count")
	}
}

func TestScanDuplicatesLastWins(t *testing.T) {
	store := vault.NewMemory()
	now := time.Now()
	store.Seed("Todoist/b/copy.md", doc("t1", "task"), now)
	store.Seed("Todoist/a/orig.md", doc("t1", "task"), now)

	s := New(store, Options{Root: "Todoist", Logger: log.New(&bytes.Buffer{}, "", 0)})
	if err := s.Scan(context.Background(), now); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	d, _ := s.Task("t1")
	if d.Path != "Todoist/b/copy.md" {
		t.Errorf("Expected the lexically later document to win, got %s", d.Path)
	}
	want := []Duplicate{{Kind: model.KindTask, ID: "t1", Kept: "Todoist/b/copy.md", Dropped: "Todoist/a/orig.md"}}
	if diff := cmp.Diff(want, s.Duplicates()); diff != "" {
		t.Errorf("Duplicates mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.ByPath("Todoist/a/orig.md"); ok {
		t.Errorf("The losing duplicate should not be reachable by path")
	}
}

func TestScanScopeTag(t *testing.T) {
	store := vault.NewMemory()
	now := time.Now()
	store.Seed("T/in.md", doc("t1", "task", "tags:", "  - todoist"), now)
	store.Seed("T/out.md", doc("t2", "task"), now)

	s := New(store, Options{Root: "T", ScopeTag: "todoist"})
	if err := s.Scan(context.Background(), now); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if _, ok := s.Task("t1"); !ok {
		t.Errorf("Tagged document should be mirrored")
	}
	if _, ok := s.Task("t2"); ok {
		t.Errorf("Untagged document should be ignored")
	}
}

func TestPutAndRemove(t *testing.T) {
	s := New(vault.NewMemory(), Options{Root: "T"})
	first := model.Document{Path: "T/a.md", EntityID: "t1", Kind: model.KindTask}
	s.Put(first)

	moved := first
	moved.Path = "T/b.md"
	s.Put(moved)
	if _, ok := s.ByPath("T/a.md"); ok {
		t.Errorf("Old path still indexed after Put moved the entity")
	}

	removed, ok := s.RemovePath("T/b.md")
	if !ok || removed.EntityID != "t1" {
		t.Errorf("RemovePath = %+v, %v", removed, ok)
	}
	if _, ok := s.Task("t1"); ok {
		t.Errorf("Entity still present after RemovePath")
	}
	if _, ok := s.RemovePath("T/b.md"); ok {
		t.Errorf("Second RemovePath should report nothing")
	}
}
