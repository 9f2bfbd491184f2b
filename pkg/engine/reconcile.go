package engine

import (
	"context"

	"github.com/harrisonrobin/todovault/pkg/materialize"
	"github.com/harrisonrobin/todovault/pkg/model"
)

// reconcile writes the remote mirror into the vault. Projects go first, then
// sections, then tasks, since a document's folder depends on its parents.
func (e *Engine) reconcile(ctx context.Context, r *run) {
	for _, p := range e.remote.AllProjects() {
		e.reconcileProject(ctx, r, p)
	}
	for _, s := range e.remote.AllSections() {
		e.reconcileSection(ctx, r, s)
	}
	for _, t := range e.remote.AllTasks() {
		e.reconcileTask(ctx, r, t)
	}
}

// decide applies the three-way rule: no document means create, a remote
// change newer than the document's last_sync means update, anything else
// is a skip. A document that was never stamped is always updated.
// fieldsDiffer covers the kinds whose remote timestamp is weak.
func decide(exists bool, doc model.Document, updatedAt model.Timestamp, fieldsDiffer bool) decision {
	switch {
	case !exists:
		return decisionCreate
	case doc.LastSync().IsZero():
		return decisionUpdate
	case updatedAt.After(doc.LastSync()):
		return decisionUpdate
	case fieldsDiffer:
		return decisionUpdate
	}
	return decisionSkip
}

func (e *Engine) reconcileProject(ctx context.Context, r *run, p model.Project) {
	doc, exists := e.local.Project(p.ID)
	differ := exists && !r.pushed[entityKey{model.KindProject, p.ID}] && projectDiffers(doc, p)
	d := decide(exists, doc, p.UpdatedAt, differ)
	if d == decisionSkip {
		r.result.count(model.KindProject, d)
		return
	}
	written, err := e.mat.Project(ctx, p, doc.Path)
	e.apply(r, model.KindProject, p.ID, d, written, err)
}

func (e *Engine) reconcileSection(ctx context.Context, r *run, s model.Section) {
	proj, ok := e.remote.Project(s.ProjectID)
	if !ok {
		e.logger.Printf("Warning: section %s belongs to unknown project %s, skipping", s.ID, s.ProjectID)
		r.result.count(model.KindSection, decisionSkip)
		return
	}
	doc, exists := e.local.Section(s.ID)
	differ := exists && !r.pushed[entityKey{model.KindSection, s.ID}] &&
		(propDiffers(doc, "name", s.Name) || propDiffers(doc, "project", proj.Name))
	d := decide(exists, doc, s.UpdatedAt, differ)
	if d == decisionSkip {
		r.result.count(model.KindSection, d)
		return
	}
	parents := materialize.Parents{ProjectName: proj.Name}
	if pd, ok := e.local.Project(proj.ID); ok {
		parents.ProjectPath = pd.Path
	}
	written, err := e.mat.Section(ctx, s, parents, doc.Path)
	e.apply(r, model.KindSection, s.ID, d, written, err)
}

func (e *Engine) reconcileTask(ctx context.Context, r *run, t model.Task) {
	proj, ok := e.remote.Project(t.ProjectID)
	if !ok {
		e.logger.Printf("Warning: task %s belongs to unknown project %s, skipping", t.ID, t.ProjectID)
		r.result.count(model.KindTask, decisionSkip)
		return
	}
	parents := materialize.Parents{ProjectName: proj.Name}
	if pd, ok := e.local.Project(proj.ID); ok {
		parents.ProjectPath = pd.Path
	}
	if t.SectionID != "" {
		if sec, ok := e.remote.Section(t.SectionID); ok {
			parents.SectionName = sec.Name
			if sd, ok := e.local.Section(sec.ID); ok {
				parents.SectionPath = sd.Path
			}
		}
	}

	doc, exists := e.local.Task(t.ID)
	differ := exists && !r.pushed[entityKey{model.KindTask, t.ID}] && e.parentsDiffer(doc, parents)
	d := decide(exists, doc, t.UpdatedAt, differ)
	if d == decisionSkip {
		r.result.count(model.KindTask, d)
		return
	}
	written, err := e.mat.Task(ctx, t, parents, doc.Path)
	e.apply(r, model.KindTask, t.ID, d, written, err)
}

// apply records the outcome of a create or update.
func (e *Engine) apply(r *run, kind model.Kind, id string, d decision, doc model.Document, err error) {
	if err != nil {
		r.result.Failed++
		e.logger.Printf("Warning: %v", &StorageError{Op: d.String() + " " + string(kind) + " " + id, Err: err})
		return
	}
	e.local.Put(doc)
	r.result.count(kind, d)
}

func projectDiffers(doc model.Document, p model.Project) bool {
	lp := model.ReadProject(doc)
	if lp.Name == nil || *lp.Name != p.Name {
		return true
	}
	if lp.Color == nil || *lp.Color != p.Color {
		return true
	}
	return lp.Favorite == nil || *lp.Favorite != p.IsFavorite
}

func propDiffers(doc model.Document, key, want string) bool {
	s, ok := doc.Properties.GetString(key)
	return !ok || s != want
}

// parentsDiffer reports whether a task document still names a project or
// section that has since been renamed. Only mirrored properties count.
func (e *Engine) parentsDiffer(doc model.Document, parents materialize.Parents) bool {
	if e.opts.Fields.Project && propDiffers(doc, "project", parents.ProjectName) {
		return true
	}
	return e.opts.Fields.Section && parents.SectionName != "" && propDiffers(doc, "section", parents.SectionName)
}

// prune deletes the documents of entities the remote reported deleted in
// this run's payload.
func (e *Engine) prune(ctx context.Context, r *run) {
	for _, key := range r.tombstones {
		doc, ok := e.local.Get(key.kind, key.id)
		if !ok {
			continue
		}
		if err := e.mat.Delete(ctx, doc.Path); err != nil {
			r.result.Failed++
			e.logger.Printf("Warning: %v", &StorageError{Op: "delete", Path: doc.Path, Err: err})
			continue
		}
		e.local.RemovePath(doc.Path)
		r.result.Deleted++
	}
}
