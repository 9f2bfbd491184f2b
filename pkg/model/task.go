package model

import (
	"fmt"
	"strings"
	"time"
)

// Timestamp is a remote time value. The remote API mixes layouts, and an
// empty or null value decodes to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses s with any of the layouts the remote uses.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// UnmarshalJSON implements the json.Unmarshaler interface for Timestamp.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		ts.Time = time.Time{}
		return nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	ts.Time = t
	return nil
}

// MarshalJSON implements the json.Marshaler interface for Timestamp.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.Time.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + ts.Time.UTC().Format(time.RFC3339Nano) + `"`), nil
}

// Due is a task due date. Datetime is set only for tasks with a time of day.
type Due struct {
	Date        string `json:"date"`
	Datetime    string `json:"datetime,omitempty"`
	String      string `json:"string,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	IsRecurring bool   `json:"is_recurring"`
}

// Value returns the most precise representation of the due date.
func (d *Due) Value() string {
	if d == nil {
		return ""
	}
	if d.Datetime != "" {
		return d.Datetime
	}
	return d.Date
}

// Time parses the due date. All-day dates resolve to midnight local time.
func (d *Due) Time() (time.Time, bool) {
	if d == nil {
		return time.Time{}, false
	}
	if d.Datetime != "" {
		if t, err := time.Parse(time.RFC3339, d.Datetime); err == nil {
			return t, true
		}
		if t, err := time.ParseInLocation("2006-01-02T15:04:05", d.Datetime, time.Local); err == nil {
			return t, true
		}
	}
	if d.Date != "" {
		if t, err := time.ParseInLocation("2006-01-02", d.Date, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Task is a remote task. Priority runs from 1 (normal) to 4 (urgent).
type Task struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Description string    `json:"description"`
	Checked     bool      `json:"checked"`
	Priority    int       `json:"priority"`
	Due         *Due      `json:"due"`
	Labels      []string  `json:"labels"`
	ParentID    string    `json:"parent_id"`
	ProjectID   string    `json:"project_id"`
	SectionID   string    `json:"section_id"`
	UpdatedAt   Timestamp `json:"updated_at"`
	IsDeleted   bool      `json:"is_deleted"`
}
