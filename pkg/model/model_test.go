package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestampUnmarshal(t *testing.T) {
	input := `{"id":"1","content":"x","updated_at":"2025-03-01T10:20:30.123456Z"}`
	var task Task
	if err := json.Unmarshal([]byte(input), &task); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	want := time.Date(2025, 3, 1, 10, 20, 30, 123456000, time.UTC)
	if !task.UpdatedAt.Equal(want) {
		t.Errorf("Expected UpdatedAt %v, got %v", want, task.UpdatedAt.Time)
	}

	var empty Task
	if err := json.Unmarshal([]byte(`{"id":"2","updated_at":null}`), &empty); err != nil {
		t.Fatalf("Unmarshal of null timestamp failed: %v", err)
	}
	if !empty.UpdatedAt.IsZero() {
		t.Errorf("Expected zero UpdatedAt, got %v", empty.UpdatedAt.Time)
	}

	if err := json.Unmarshal([]byte(`{"updated_at":"yesterday"}`), &empty); err == nil {
		t.Errorf("Expected an error for an unrecognized timestamp")
	}
}

func TestDueTime(t *testing.T) {
	allDay := &Due{Date: "2025-05-04"}
	got, ok := allDay.Time()
	if !ok || got.Year() != 2025 || got.Month() != time.May || got.Day() != 4 || got.Hour() != 0 {
		t.Errorf("all-day due parsed as %v, %v", got, ok)
	}

	timed := &Due{Date: "2025-05-04", Datetime: "2025-05-04T15:30:00Z"}
	got, ok = timed.Time()
	if !ok || !got.Equal(time.Date(2025, 5, 4, 15, 30, 0, 0, time.UTC)) {
		t.Errorf("timed due parsed as %v, %v", got, ok)
	}
	if timed.Value() != "2025-05-04T15:30:00Z" {
		t.Errorf("Expected Value to prefer datetime, got %q", timed.Value())
	}

	var none *Due
	if _, ok := none.Time(); ok {
		t.Errorf("nil due reported a time")
	}
}

func TestNewDocumentAndReadTask(t *testing.T) {
	raw := "---\ntodoist_id: \"77\"\npriority: 3\nlast_sync: \"2025-01-02T03:04:05Z\"\nlabels: [a, b]\ntags:\n  - todoist\n---\n# Water the plants\n- [x] done\n"
	doc := NewDocument("Inbox/Water.md", []byte(raw), time.Unix(100, 0))

	if doc.EntityID != "77" || doc.Kind != KindTask {
		t.Fatalf("Expected task 77, got %q/%q", doc.EntityID, doc.Kind)
	}
	if !doc.LastSync().Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("LastSync = %v", doc.LastSync())
	}
	if !doc.HasTag("todoist") || doc.HasTag("other") {
		t.Errorf("HasTag gave the wrong answer")
	}

	local := ReadTask(doc)
	if local.Title == nil || *local.Title != "Water the plants" {
		t.Errorf("Expected heading fallback title, got %v", local.Title)
	}
	if local.Completed == nil || !*local.Completed {
		t.Errorf("Expected checkbox completion, got %v", local.Completed)
	}
	if local.Priority == nil || *local.Priority != 3 {
		t.Errorf("Expected priority 3, got %v", local.Priority)
	}
	if !local.HasLabels || len(local.Labels) != 2 {
		t.Errorf("Expected two labels, got %v", local.Labels)
	}
	if local.Due != nil {
		t.Errorf("Expected no due date, got %q", *local.Due)
	}
}

func TestLastSyncUnparseable(t *testing.T) {
	doc := NewDocument("x.md", []byte("---\ntodoist_id: \"1\"\nlast_sync: \"soon\"\n---\n"), time.Time{})
	if !doc.LastSync().IsZero() {
		t.Errorf("Expected zero LastSync for garbage, got %v", doc.LastSync())
	}
}

func TestTaskFrontmatterRespectsFields(t *testing.T) {
	fm := TaskFrontmatter{
		Base:     Base{EntityID: "9", SyncStatus: StatusSynced},
		Title:    "Pay rent",
		Priority: 4,
		Due:      "2025-06-01",
		Labels:   []string{"money"},
	}

	props := fm.Properties(Fields{Content: true})
	if _, ok := props["priority"]; ok {
		t.Errorf("priority written while disabled")
	}
	if _, ok := props["labels"]; ok {
		t.Errorf("labels written while disabled")
	}
	if title, _ := props.GetString("title"); title != "Pay rent" {
		t.Errorf("Expected title, got %q", title)
	}
	if kind, _ := props.GetString(KeyType); kind != "task" {
		t.Errorf("Expected todoist_type task, got %q", kind)
	}
}
