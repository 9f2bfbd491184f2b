// Package agenda mirrors open, dated tasks into a Google Calendar.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/todovault/pkg/colors"
	"github.com/harrisonrobin/todovault/pkg/index"
	"github.com/harrisonrobin/todovault/pkg/model"
)

// TaskIDProperty is the private extended property that tags each event
// with its task.
const TaskIDProperty = "todoist_id"

const defaultDuration = 30 * time.Minute

// Scopes are the OAuth scopes the mirror needs.
var Scopes = []string{calendar.CalendarEventsScope, calendar.CalendarReadonlyScope}

// Mirror keeps one calendar in step with the remote tasks.
type Mirror struct {
	srv        *calendar.Service
	calendarID string
	index      *index.EventIndex
	logger     *log.Logger
	now        func() time.Time
}

// Options configures Open.
type Options struct {
	// Calendar is the summary of the target calendar, or "primary".
	Calendar string
	Index    *index.EventIndex
	Logger   *log.Logger
	Now      func() time.Time
	// ClientOptions are passed to the calendar service after the HTTP client.
	ClientOptions []option.ClientOption
}

// Open resolves the calendar by name and returns a mirror for it.
func Open(ctx context.Context, client *http.Client, opts Options) (*Mirror, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[agenda] ", log.LstdFlags)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Index == nil {
		return nil, errors.New("agenda: event index is required")
	}

	clientOpts := append([]option.ClientOption{option.WithHTTPClient(client)}, opts.ClientOptions...)
	srv, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create calendar service: %w", err)
	}

	calendarID := opts.Calendar
	if calendarID != "primary" {
		list, err := srv.CalendarList.List().Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("unable to retrieve calendar list: %w", err)
		}
		calendarID = ""
		for _, item := range list.Items {
			if item.Summary == opts.Calendar {
				calendarID = item.Id
				break
			}
		}
		if calendarID == "" {
			return nil, fmt.Errorf("calendar '%s' not found", opts.Calendar)
		}
	}

	return &Mirror{
		srv:        srv,
		calendarID: calendarID,
		index:      opts.Index,
		logger:     opts.Logger,
		now:        opts.Now,
	}, nil
}

// MirrorTasks creates or patches an event for every open task with a due
// date and deletes the events of tasks that were closed, lost their date or
// are gone. Failures are collected so one bad task does not stop the rest.
func (m *Mirror) MirrorTasks(ctx context.Context, tasks []model.Task, projects []model.Project) error {
	projectColor := make(map[string]string, len(projects))
	for _, p := range projects {
		projectColor[p.ID] = p.Color
	}

	var errs []error
	live := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		if t.Checked || t.IsDeleted || t.Due == nil {
			continue
		}
		target, ok := m.eventFor(t, projectColor[t.ProjectID])
		if !ok {
			m.logger.Printf("Warning: task %s has an unreadable due date %q", t.ID, t.Due.Value())
			continue
		}
		live[t.ID] = true
		if err := m.syncEvent(ctx, t.ID, target); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", t.ID, err))
		}
	}

	for _, id := range m.index.TaskIDs() {
		if live[id] {
			continue
		}
		if err := m.deleteEvent(ctx, m.index.Get(id)); err != nil {
			errs = append(errs, fmt.Errorf("task %s: %w", id, err))
			continue
		}
		m.index.Remove(id)
	}

	if err := m.index.Save(); err != nil {
		errs = append(errs, fmt.Errorf("saving event index: %w", err))
	}
	return errors.Join(errs...)
}

func (m *Mirror) syncEvent(ctx context.Context, taskID string, target *calendar.Event) error {
	var existing *calendar.Event
	if eventID := m.index.Get(taskID); eventID != "" {
		ev, err := m.srv.Events.Get(m.calendarID, eventID).Context(ctx).Do()
		if err == nil && ev.Status != "cancelled" {
			existing = ev
		}
	}
	if existing == nil {
		ev, err := m.findByTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("error searching for event: %w", err)
		}
		existing = ev
	}

	if existing != nil {
		patch := eventPatch(existing, target)
		if patch == nil {
			m.index.Set(taskID, existing.Id)
			return nil
		}
		updated, err := m.srv.Events.Patch(m.calendarID, existing.Id, patch).Context(ctx).Do()
		if err != nil {
			return err
		}
		m.index.Set(taskID, updated.Id)
		return nil
	}

	created, err := m.srv.Events.Insert(m.calendarID, target).Context(ctx).Do()
	if err != nil {
		return err
	}
	m.index.Set(taskID, created.Id)
	return nil
}

func (m *Mirror) findByTask(ctx context.Context, taskID string) (*calendar.Event, error) {
	events, err := m.srv.Events.List(m.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", TaskIDProperty, taskID)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	for _, ev := range events.Items {
		if ev.Status != "cancelled" {
			return ev, nil
		}
	}
	return nil, nil
}

// deleteEvent treats an event that is already gone as deleted.
func (m *Mirror) deleteEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return nil
	}
	err := m.srv.Events.Delete(m.calendarID, eventID).Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return nil
	}
	return err
}

// eventFor converts a task into the event it should appear as. Timed tasks
// get a short block; date-only tasks an all-day event. Overdue tasks are
// prefixed with "!".
func (m *Mirror) eventFor(t model.Task, projectColor string) (*calendar.Event, bool) {
	due, ok := t.Due.Time()
	if !ok {
		return nil, false
	}
	timed := t.Due.Datetime != ""

	end := due.AddDate(0, 0, 1)
	if timed {
		end = due
	}
	summary := t.Content
	if end.Before(m.now()) {
		summary = "! " + summary
	}

	ev := &calendar.Event{
		Summary:     summary,
		Description: t.Description,
		ColorId:     colors.EventColor(projectColor),
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{TaskIDProperty: t.ID},
		},
	}
	if timed {
		ev.Start = &calendar.EventDateTime{DateTime: due.Format(time.RFC3339)}
		ev.End = &calendar.EventDateTime{DateTime: due.Add(defaultDuration).Format(time.RFC3339)}
	} else {
		ev.Start = &calendar.EventDateTime{Date: due.Format("2006-01-02")}
		ev.End = &calendar.EventDateTime{Date: due.AddDate(0, 0, 1).Format("2006-01-02")}
	}
	return ev, true
}

// eventPatch returns the fields of target that differ from existing, or nil
// when the event is current.
func eventPatch(existing, target *calendar.Event) *calendar.Event {
	patch := &calendar.Event{}
	needsUpdate := false

	if existing.Summary != target.Summary {
		patch.Summary = target.Summary
		needsUpdate = true
	}
	if existing.Description != target.Description {
		patch.Description = target.Description
		if target.Description == "" {
			patch.NullFields = append(patch.NullFields, "Description")
		}
		needsUpdate = true
	}
	if existing.ColorId != target.ColorId {
		patch.ColorId = target.ColorId
		if target.ColorId == "" {
			patch.NullFields = append(patch.NullFields, "ColorId")
		}
		needsUpdate = true
	}
	if !sameTime(existing.Start, target.Start) || !sameTime(existing.End, target.End) {
		patch.Start = target.Start
		patch.End = target.End
		needsUpdate = true
	}

	if needsUpdate {
		return patch
	}
	return nil
}

func sameTime(a, b *calendar.EventDateTime) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Date != "" || b.Date != "" {
		return a.Date == b.Date
	}
	at, errA := time.Parse(time.RFC3339, a.DateTime)
	bt, errB := time.Parse(time.RFC3339, b.DateTime)
	if errA != nil || errB != nil {
		return a.DateTime == b.DateTime
	}
	return at.Equal(bt)
}
