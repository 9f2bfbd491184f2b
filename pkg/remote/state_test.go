package remote

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/harrisonrobin/todovault/pkg/model"
)

func TestReplayFullResets(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New()
	s.Replay(model.Payload{
		SyncToken: "tok1",
		FullSync:  true,
		Projects:  []model.Project{{ID: "p1", Name: "Inbox"}},
		Tasks:     []model.Task{{ID: "t1", Content: "old", ProjectID: "p1"}},
	}, now)

	s.Replay(model.Payload{
		SyncToken: "tok2",
		FullSync:  true,
		Projects:  []model.Project{{ID: "p2", Name: "Work"}},
	}, now.Add(time.Hour))

	if _, ok := s.Task("t1"); ok {
		t.Errorf("Expected t1 to be dropped by a full replay")
	}
	if _, ok := s.Project("p1"); ok {
		t.Errorf("Expected p1 to be dropped by a full replay")
	}
	if _, ok := s.Project("p2"); !ok {
		t.Errorf("Expected p2 after full replay")
	}
	if s.SyncToken != "tok2" {
		t.Errorf("Expected token tok2, got %q", s.SyncToken)
	}
	if !s.LastFullSync.Equal(now.Add(time.Hour)) {
		t.Errorf("LastFullSync = %v", s.LastFullSync)
	}
}

func TestReplayIncremental(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New()
	s.Replay(model.Payload{
		SyncToken: "a",
		FullSync:  true,
		Tasks: []model.Task{
			{ID: "t1", Content: "one"},
			{ID: "t2", Content: "two"},
		},
	}, now)

	s.Replay(model.Payload{
		Tasks: []model.Task{
			{ID: "t1", Content: "one, edited"},
			{ID: "t2", IsDeleted: true},
			{ID: "t3", Content: "three"},
			{ID: "t3", Content: "three, later"},
		},
	}, now.Add(time.Minute))

	var got []string
	for _, task := range s.AllTasks() {
		got = append(got, task.ID+"="+task.Content)
	}
	want := []string{"t1=one, edited", "t3=three, later"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AllTasks mismatch (-want +got):\n%s", diff)
	}
	if s.SyncToken != "a" {
		t.Errorf("Empty token must not replace %q, got %q", "a", s.SyncToken)
	}
	if !s.LastIncrementalSync.Equal(now.Add(time.Minute)) {
		t.Errorf("LastIncrementalSync = %v", s.LastIncrementalSync)
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	now := time.Now()
	p := model.Payload{
		SyncToken: "x",
		Projects:  []model.Project{{ID: "p1", Name: "Inbox"}},
		Sections:  []model.Section{{ID: "s1", Name: "Later", ProjectID: "p1"}},
		Tasks:     []model.Task{{ID: "t1", Content: "a", ProjectID: "p1"}},
	}
	once := New()
	once.Replay(p, now)
	twice := New()
	twice.Replay(p, now)
	twice.Replay(p, now)

	if diff := cmp.Diff(once.Counts(), twice.Counts()); diff != "" {
		t.Errorf("Replaying twice changed counts (-once +twice):\n%s", diff)
	}
}

func TestArchivedProjectHidden(t *testing.T) {
	s := New()
	s.Replay(model.Payload{Projects: []model.Project{{ID: "p1", Name: "Old", IsArchived: true}}}, time.Now())
	if _, ok := s.Project("p1"); ok {
		t.Errorf("Archived project should be hidden")
	}
	if len(s.AllProjects()) != 0 {
		t.Errorf("Expected no visible projects, got %d", len(s.AllProjects()))
	}
}

func TestNeedsFullSync(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New()
	if !s.NeedsFullSync(now) {
		t.Errorf("Fresh state must need a full sync")
	}
	s.SyncToken = "abc"
	s.LastFullSync = now.Add(-time.Hour)
	if s.NeedsFullSync(now) {
		t.Errorf("Recent full sync should allow incremental")
	}
	s.LastFullSync = now.Add(-25 * time.Hour)
	if !s.NeedsFullSync(now) {
		t.Errorf("Stale full sync should force a full one")
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "remote.json")

	missing, err := Load(path)
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if missing.SyncToken != InitialToken {
		t.Errorf("Expected initial token, got %q", missing.SyncToken)
	}

	now := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	s := New()
	s.Replay(model.Payload{
		SyncToken: "tok",
		FullSync:  true,
		Projects:  []model.Project{{ID: "p1", Name: "Inbox"}},
		Tasks:     []model.Task{{ID: "t1", Content: "a", ProjectID: "p1", Due: &model.Due{Date: "2025-02-10"}}},
	}, now)
	s.LastRun = now

	if err := s.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SyncToken != "tok" || !loaded.LastRun.Equal(now) || !loaded.LastFullSync.Equal(now) {
		t.Errorf("Loaded state lost metadata: %+v", loaded)
	}
	task, ok := loaded.Task("t1")
	if !ok || task.Due == nil || task.Due.Date != "2025-02-10" {
		t.Errorf("Loaded task mismatch: %+v", task)
	}
}
