package agenda

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/todovault/pkg/index"
	"github.com/harrisonrobin/todovault/pkg/model"
)

// fakeCalendar serves the slice of the Calendar API the mirror uses.
type fakeCalendar struct {
	mu      sync.Mutex
	events  map[string]*calendar.Event
	next    int
	inserts int
	patches int
	deletes int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: make(map[string]*calendar.Event)}
}

func (f *fakeCalendar) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/me/calendarList", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, calendar.CalendarList{Items: []*calendar.CalendarListEntry{
			{Id: "other", Summary: "Work"},
			{Id: "cal-tasks", Summary: "Tasks"},
		}})
	})
	mux.HandleFunc("GET /calendars/{cal}/events", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		want := r.URL.Query().Get("privateExtendedProperty")
		var items []*calendar.Event
		for _, ev := range f.events {
			if want == TaskIDProperty+"="+ev.ExtendedProperties.Private[TaskIDProperty] {
				items = append(items, ev)
			}
		}
		writeJSON(w, calendar.Events{Items: items})
	})
	mux.HandleFunc("POST /calendars/{cal}/events", func(w http.ResponseWriter, r *http.Request) {
		var ev calendar.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.next++
		f.inserts++
		ev.Id = fmt.Sprintf("ev%d", f.next)
		f.events[ev.Id] = &ev
		f.mu.Unlock()
		writeJSON(w, ev)
	})
	mux.HandleFunc("GET /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ev, ok := f.events[r.PathValue("id")]
		f.mu.Unlock()
		if !ok {
			notFound(w)
			return
		}
		writeJSON(w, ev)
	})
	mux.HandleFunc("PATCH /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		ev, ok := f.events[r.PathValue("id")]
		if !ok {
			notFound(w)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(ev); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.patches++
		writeJSON(w, ev)
	})
	mux.HandleFunc("DELETE /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		if _, ok := f.events[id]; !ok {
			notFound(w)
			return
		}
		delete(f.events, id)
		f.deletes++
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, `{"error":{"code":404,"message":"Not Found"}}`)
}

var testNow = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func openMirror(t *testing.T, fake *fakeCalendar, idx *index.EventIndex) *Mirror {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	m, err := Open(context.Background(), srv.Client(), Options{
		Calendar:      "Tasks",
		Index:         idx,
		Logger:        log.New(io.Discard, "", 0),
		Now:           func() time.Time { return testNow },
		ClientOptions: []option.ClientOption{option.WithEndpoint(srv.URL + "/")},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return m
}

func newIndex(t *testing.T) *index.EventIndex {
	t.Helper()
	idx, err := index.Open(filepath.Join(t.TempDir(), "events.json"))
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func sampleTasks() ([]model.Task, []model.Project) {
	projects := []model.Project{{ID: "p1", Name: "Home", Color: "red"}}
	tasks := []model.Task{
		{ID: "t1", Content: "Pay rent", ProjectID: "p1", Due: &model.Due{Date: "2025-02-01"}},
		{ID: "t2", Content: "Done already", ProjectID: "p1", Checked: true, Due: &model.Due{Date: "2025-02-01"}},
		{ID: "t3", Content: "Someday", ProjectID: "p1"},
		{ID: "t4", Content: "Call", ProjectID: "p1", Due: &model.Due{Date: "2025-02-02", Datetime: "2025-02-02T15:00:00Z"}},
	}
	return tasks, projects
}

func TestOpenUnknownCalendar(t *testing.T) {
	srv := httptest.NewServer(newFakeCalendar().handler())
	defer srv.Close()
	_, err := Open(context.Background(), srv.Client(), Options{
		Calendar:      "Nope",
		Index:         newIndex(t),
		ClientOptions: []option.ClientOption{option.WithEndpoint(srv.URL + "/")},
	})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected calendar not found, got %v", err)
	}
}

func TestMirrorCreatesOnlyOpenDatedTasks(t *testing.T) {
	fake := newFakeCalendar()
	idx := newIndex(t)
	m := openMirror(t, fake, idx)
	tasks, projects := sampleTasks()

	if err := m.MirrorTasks(context.Background(), tasks, projects); err != nil {
		t.Fatalf("MirrorTasks failed: %v", err)
	}
	if fake.inserts != 2 {
		t.Fatalf("Expected 2 inserts, got %d", fake.inserts)
	}

	allDay := fake.events[idx.Get("t1")]
	if allDay == nil {
		t.Fatalf("t1 not indexed")
	}
	if allDay.Start.Date != "2025-02-01" || allDay.End.Date != "2025-02-02" {
		t.Errorf("Unexpected all-day range %+v - %+v", allDay.Start, allDay.End)
	}
	if allDay.ColorId != "11" {
		t.Errorf("Expected red project to map to 11, got %q", allDay.ColorId)
	}

	timed := fake.events[idx.Get("t4")]
	if timed == nil || timed.End.DateTime != "2025-02-02T15:30:00Z" {
		t.Errorf("Unexpected timed event %+v", timed)
	}
	if idx.Get("t2") != "" || idx.Get("t3") != "" {
		t.Errorf("Closed or undated tasks were indexed")
	}

	reopened, err := index.Open(idx.Path)
	if err != nil || reopened.Get("t1") == "" {
		t.Errorf("Index was not saved: %v", err)
	}
}

func TestMirrorPatchesOnlyChanges(t *testing.T) {
	fake := newFakeCalendar()
	idx := newIndex(t)
	m := openMirror(t, fake, idx)
	tasks, projects := sampleTasks()
	ctx := context.Background()

	if err := m.MirrorTasks(ctx, tasks, projects); err != nil {
		t.Fatal(err)
	}
	if err := m.MirrorTasks(ctx, tasks, projects); err != nil {
		t.Fatal(err)
	}
	if fake.inserts != 2 || fake.patches != 0 {
		t.Fatalf("Unchanged tasks caused writes: inserts %d patches %d", fake.inserts, fake.patches)
	}

	tasks[0].Content = "Pay rent (March)"
	if err := m.MirrorTasks(ctx, tasks, projects); err != nil {
		t.Fatal(err)
	}
	if fake.patches != 1 {
		t.Errorf("Expected 1 patch, got %d", fake.patches)
	}
	if got := fake.events[idx.Get("t1")].Summary; got != "Pay rent (March)" {
		t.Errorf("Expected patched summary, got %q", got)
	}
}

func TestMirrorDeletesClosedAndGoneTasks(t *testing.T) {
	fake := newFakeCalendar()
	idx := newIndex(t)
	m := openMirror(t, fake, idx)
	tasks, projects := sampleTasks()
	ctx := context.Background()

	if err := m.MirrorTasks(ctx, tasks, projects); err != nil {
		t.Fatal(err)
	}

	tasks[0].Checked = true
	if err := m.MirrorTasks(ctx, tasks[:1], projects); err != nil {
		t.Fatal(err)
	}
	if fake.deletes != 2 || len(fake.events) != 0 {
		t.Errorf("Expected both events deleted, deletes %d remaining %d", fake.deletes, len(fake.events))
	}
	if ids := idx.TaskIDs(); len(ids) != 0 {
		t.Errorf("Expected empty index, got %v", ids)
	}
}

func TestMirrorToleratesEventDeletedInCalendar(t *testing.T) {
	fake := newFakeCalendar()
	idx := newIndex(t)
	m := openMirror(t, fake, idx)
	tasks, projects := sampleTasks()
	ctx := context.Background()

	if err := m.MirrorTasks(ctx, tasks, projects); err != nil {
		t.Fatal(err)
	}
	delete(fake.events, idx.Get("t1"))

	if err := m.MirrorTasks(ctx, nil, projects); err != nil {
		t.Errorf("Deleting an already removed event failed: %v", err)
	}
}

func TestMirrorFindsEventWithoutIndex(t *testing.T) {
	fake := newFakeCalendar()
	tasks, projects := sampleTasks()
	ctx := context.Background()

	if err := openMirror(t, fake, newIndex(t)).MirrorTasks(ctx, tasks, projects); err != nil {
		t.Fatal(err)
	}

	fresh := newIndex(t)
	if err := openMirror(t, fake, fresh).MirrorTasks(ctx, tasks, projects); err != nil {
		t.Fatal(err)
	}
	if fake.inserts != 2 {
		t.Errorf("Lost index caused duplicate events: %d inserts", fake.inserts)
	}
	if fresh.Get("t1") == "" {
		t.Errorf("Existing event was not re-indexed")
	}
}

func TestOverdueSummary(t *testing.T) {
	m := &Mirror{now: func() time.Time { return testNow }}
	overdue := model.Task{ID: "x", Content: "Renew", Due: &model.Due{Date: "2025-01-05"}}
	ev, ok := m.eventFor(overdue, "")
	if !ok || ev.Summary != "! Renew" {
		t.Errorf("Expected overdue prefix, got %+v", ev)
	}

	today := model.Task{ID: "y", Content: "Today", Due: &model.Due{Date: "2025-01-10"}}
	ev, _ = m.eventFor(today, "")
	if ev.Summary != "Today" {
		t.Errorf("Task due today marked overdue: %q", ev.Summary)
	}
}

func TestEventPatchComparesInstants(t *testing.T) {
	existing := &calendar.Event{
		Summary: "A",
		Start:   &calendar.EventDateTime{DateTime: "2025-02-02T16:00:00+01:00"},
		End:     &calendar.EventDateTime{DateTime: "2025-02-02T16:30:00+01:00"},
	}
	target := &calendar.Event{
		Summary: "A",
		Start:   &calendar.EventDateTime{DateTime: "2025-02-02T15:00:00Z"},
		End:     &calendar.EventDateTime{DateTime: "2025-02-02T15:30:00Z"},
	}
	if p := eventPatch(existing, target); p != nil {
		t.Errorf("Same instants in different zones produced a patch: %+v", p)
	}

	target.Description = "note"
	p := eventPatch(existing, target)
	if p == nil || p.Description != "note" || p.Start != nil {
		t.Errorf("Expected description-only patch, got %+v", p)
	}
}
