package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/harrisonrobin/todovault/pkg/model"
	"github.com/harrisonrobin/todovault/pkg/todoist"
)

// push sends local edits to the remote: first the queued live edits, then
// any document modified since the last run that was never queued.
func (e *Engine) push(ctx context.Context, r *run) {
	seen := make(map[string]bool)
	for _, q := range e.queued() {
		seen[q.path] = true
		if doc, ok := e.local.ByPath(q.path); ok {
			e.pushDocument(ctx, r, doc)
		}
		e.dequeue(q)
	}

	last := e.remote.LastRun
	if last.IsZero() {
		return
	}
	for _, kind := range []model.Kind{model.KindProject, model.KindTask} {
		for _, doc := range e.local.ModifiedSince(kind, last) {
			if seen[doc.Path] || !editedAfterSync(doc) {
				continue
			}
			e.pushDocument(ctx, r, doc)
		}
	}
}

// editedAfterSync reports whether doc changed after the engine last wrote
// it. Documents that were never stamped count as edited.
func editedAfterSync(doc model.Document) bool {
	ls := doc.LastSync()
	return ls.IsZero() || doc.ModTime.After(ls.Add(editSlack))
}

func (e *Engine) pushDocument(ctx context.Context, r *run, doc model.Document) {
	var (
		changed bool
		err     error
	)
	switch doc.Kind {
	case model.KindTask:
		changed, err = e.pushTask(ctx, doc)
	case model.KindProject:
		changed, err = e.pushProject(ctx, doc)
	default:
		return
	}
	if err != nil {
		r.result.Failed++
		e.logger.Printf("Warning: failed to push %s %s from %s: %v", doc.Kind, doc.EntityID, doc.Path, err)
		return
	}
	if !changed {
		return
	}

	r.result.Pushed++
	r.pushed[entityKey{doc.Kind, doc.EntityID}] = true
	stamped, err := e.mat.Stamp(ctx, doc, e.opts.Now())
	if err != nil {
		r.result.Failed++
		e.logger.Printf("Warning: %v", &StorageError{Op: "stamp", Path: doc.Path, Err: err})
		return
	}
	e.local.Put(stamped)
}

func (e *Engine) pushTask(ctx context.Context, doc model.Document) (bool, error) {
	t, ok := e.remote.Task(doc.EntityID)
	if !ok {
		e.logger.Printf("Warning: %s refers to unknown task %s, not pushing", doc.Path, doc.EntityID)
		return false, nil
	}
	lt := model.ReadTask(doc)
	f := e.opts.Fields

	var u todoist.TaskUpdate
	if f.Content {
		if lt.Title != nil && *lt.Title != "" && *lt.Title != t.Content {
			u.Content = lt.Title
		}
		if lt.Description != nil && trimText(*lt.Description) != trimText(t.Description) {
			u.Description = lt.Description
		}
	}
	if f.Priority && lt.Priority != nil && *lt.Priority >= 1 && *lt.Priority <= 4 && *lt.Priority != t.Priority {
		u.Priority = lt.Priority
	}
	if f.DueDate && lt.Due != nil && *lt.Due != t.Due.Value() {
		u.Due = lt.Due
	}
	if f.Labels && lt.HasLabels && !sameSet(lt.Labels, t.Labels) {
		labels := lt.Labels
		u.Labels = &labels
	}
	completion := lt.Completed != nil && *lt.Completed != t.Checked

	if !completion && u.IsEmpty() {
		return false, nil
	}
	if e.opts.DryRun {
		e.logger.Printf("[dry-run] would push task %s from %s", t.ID, doc.Path)
		return true, nil
	}
	if completion {
		if err := e.client.SetTaskCompletion(ctx, t.ID, *lt.Completed); err != nil {
			return false, &TransportError{Op: "set task completion", Err: err}
		}
	}
	if err := e.client.UpdateTaskFields(ctx, t.ID, u); err != nil {
		return false, &TransportError{Op: "update task", Err: err}
	}
	return true, nil
}

func (e *Engine) pushProject(ctx context.Context, doc model.Document) (bool, error) {
	p, ok := e.remote.Project(doc.EntityID)
	if !ok {
		e.logger.Printf("Warning: %s refers to unknown project %s, not pushing", doc.Path, doc.EntityID)
		return false, nil
	}
	lp := model.ReadProject(doc)

	var u todoist.ProjectUpdate
	if lp.Name != nil && *lp.Name != "" && *lp.Name != p.Name {
		u.Name = lp.Name
	}
	if lp.Color != nil && *lp.Color != "" && *lp.Color != p.Color {
		u.Color = lp.Color
	}
	if lp.Favorite != nil && *lp.Favorite != p.IsFavorite {
		u.IsFavorite = lp.Favorite
	}
	if u.IsEmpty() {
		return false, nil
	}
	if e.opts.DryRun {
		e.logger.Printf("[dry-run] would push project %s from %s", p.ID, doc.Path)
		return true, nil
	}
	if err := e.client.UpdateProjectFields(ctx, p.ID, u); err != nil {
		return false, &TransportError{Op: "update project", Err: err}
	}
	return true, nil
}

// trimText drops the trailing newlines the document codec does not keep.
func trimText(s string) string {
	return strings.TrimRight(s, "\r\n")
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}
