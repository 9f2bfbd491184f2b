// Package materialize turns remote entities into vault documents.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path"
	"time"

	"github.com/harrisonrobin/todovault/pkg/frontmatter"
	"github.com/harrisonrobin/todovault/pkg/model"
	"github.com/harrisonrobin/todovault/pkg/util"
	"github.com/harrisonrobin/todovault/pkg/vault"
)

const (
	projectFile = "_project" + vault.Ext
	sectionFile = "_section" + vault.Ext
)

// Options configure a Materializer.
type Options struct {
	Root     string
	ScopeTag string
	Fields   model.Fields
	DryRun   bool
	Logger   *log.Logger
	// Now stamps last_sync and dry-run results. Defaults to time.Now.
	Now func() time.Time
}

// Parents carries what a document's placement depends on. The *Path fields
// hold the existing documents of the parents, when there are any.
type Parents struct {
	ProjectName string
	ProjectPath string
	SectionName string
	SectionPath string
}

// Materializer writes entity documents to storage.
type Materializer struct {
	storage vault.Storage
	opts    Options
	logger  *log.Logger
}

func New(storage vault.Storage, opts Options) *Materializer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Root = vault.Clean(opts.Root)
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[materialize] ", log.LstdFlags)
	}
	return &Materializer{storage: storage, opts: opts, logger: logger}
}

// Task materializes t. When existingPath is set the document stays there.
func (m *Materializer) Task(ctx context.Context, t model.Task, parents Parents, existingPath string) (model.Document, error) {
	fm := model.TaskFrontmatter{
		Title:       t.Content,
		Description: t.Description,
		Completed:   t.Checked,
		Priority:    t.Priority,
		Due:         t.Due.Value(),
		Labels:      t.Labels,
		Project:     parents.ProjectName,
		ProjectID:   t.ProjectID,
		Section:     parents.SectionName,
		SectionID:   t.SectionID,
		ParentID:    t.ParentID,
	}
	if parents.SectionName == "" {
		fm.SectionID = ""
	}

	p := existingPath
	if p == "" {
		dir := m.projectFolder(parents)
		if parents.SectionName != "" {
			dir = m.sectionFolder(parents)
		}
		var err error
		p, err = m.freePath(ctx, dir, util.SanitizeName(t.Content), t.ID)
		if err != nil {
			return model.Document{}, err
		}
	}
	return m.write(ctx, p, t.ID, func(base model.Base) frontmatter.Properties {
		fm.Base = base
		return fm.Properties(m.opts.Fields)
	}, taskKeys(m.opts.Fields))
}

// Project materializes p as <root>/<project>/_project.md.
func (m *Materializer) Project(ctx context.Context, p model.Project, existingPath string) (model.Document, error) {
	fm := model.ProjectFrontmatter{
		Name:     p.Name,
		Color:    p.Color,
		Favorite: p.IsFavorite,
		ParentID: p.ParentID,
	}
	target := existingPath
	if target == "" {
		var err error
		target, err = m.freeFolderPath(ctx, m.opts.Root, util.SanitizeName(p.Name), projectFile, p.ID)
		if err != nil {
			return model.Document{}, err
		}
	}
	return m.write(ctx, target, p.ID, func(base model.Base) frontmatter.Properties {
		fm.Base = base
		return fm.Properties()
	}, []string{"name", "color", "favorite", "parent_id"})
}

// Section materializes s as <root>/<project>/<section>/_section.md.
func (m *Materializer) Section(ctx context.Context, s model.Section, parents Parents, existingPath string) (model.Document, error) {
	fm := model.SectionFrontmatter{
		Name:      s.Name,
		Project:   parents.ProjectName,
		ProjectID: s.ProjectID,
	}
	target := existingPath
	if target == "" {
		var err error
		target, err = m.freeFolderPath(ctx, m.projectFolder(parents), util.SanitizeName(s.Name), sectionFile, s.ID)
		if err != nil {
			return model.Document{}, err
		}
	}
	return m.write(ctx, target, s.ID, func(base model.Base) frontmatter.Properties {
		fm.Base = base
		return fm.Properties()
	}, []string{"name", "project", "project_id"})
}

// Delete removes the document at p.
func (m *Materializer) Delete(ctx context.Context, p string) error {
	if m.opts.DryRun {
		m.logger.Printf("[dry-run] would delete %s", p)
		return nil
	}
	return m.storage.DeleteDocument(ctx, p)
}

// Stamp marks doc as synced at now. Under dry-run only the returned copy
// is stamped.
func (m *Materializer) Stamp(ctx context.Context, doc model.Document, now time.Time) (model.Document, error) {
	props := doc.Properties.Clone()
	props[model.KeyLastSync] = frontmatter.String(now.UTC().Format(time.RFC3339Nano))
	props[model.KeySyncStatus] = frontmatter.String(string(model.StatusSynced))
	doc.Properties = props

	if m.opts.DryRun {
		doc.ModTime = now
		return doc, nil
	}
	mod, err := m.storage.WriteDocument(ctx, doc.Path, doc.Content())
	if err != nil {
		return doc, err
	}
	doc.ModTime = mod
	return doc, nil
}

func (m *Materializer) projectFolder(parents Parents) string {
	if parents.ProjectPath != "" {
		return path.Dir(parents.ProjectPath)
	}
	return path.Join(m.opts.Root, util.SanitizeName(parents.ProjectName))
}

func (m *Materializer) sectionFolder(parents Parents) string {
	if parents.SectionPath != "" {
		return path.Dir(parents.SectionPath)
	}
	return path.Join(m.projectFolder(parents), util.SanitizeName(parents.SectionName))
}

// freePath picks dir/name.md, falling back to dir/name_<id>.md when another
// entity's file already sits there.
func (m *Materializer) freePath(ctx context.Context, dir, name, id string) (string, error) {
	p := path.Join(dir, name+vault.Ext)
	taken, err := m.takenByOther(ctx, p, id)
	if err != nil {
		return "", err
	}
	if taken {
		p = path.Join(dir, name+"_"+id+vault.Ext)
	}
	return p, nil
}

// freeFolderPath is freePath for entities that own a folder.
func (m *Materializer) freeFolderPath(ctx context.Context, parent, name, file, id string) (string, error) {
	p := path.Join(parent, name, file)
	taken, err := m.takenByOther(ctx, p, id)
	if err != nil {
		return "", err
	}
	if taken {
		p = path.Join(parent, name+"_"+id, file)
	}
	return p, nil
}

func (m *Materializer) takenByOther(ctx context.Context, p, id string) (bool, error) {
	doc, err := m.storage.ReadDocument(ctx, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return doc.EntityID != id, nil
}

// write renders the entity's properties over whatever the existing document
// at p holds. The existing body and unknown keys survive; managed keys the
// new rendering leaves out are removed.
func (m *Materializer) write(ctx context.Context, p, id string, render func(model.Base) frontmatter.Properties, managed []string) (model.Document, error) {
	now := m.opts.Now()

	var existing model.Document
	found := false
	if doc, err := m.storage.ReadDocument(ctx, p); err == nil {
		existing, found = doc, true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return model.Document{}, fmt.Errorf("failed to read %s: %w", p, err)
	}

	base := model.Base{
		EntityID:   id,
		SyncStatus: model.StatusSynced,
		LastSync:   now,
		Tags:       m.tags(existing),
	}
	rendered := render(base)

	props := rendered
	body := ""
	if found {
		props = existing.Properties.Clone()
		for _, k := range managed {
			delete(props, k)
		}
		for k, v := range rendered {
			props[k] = v
		}
		body = existing.Body
	}

	doc := model.Document{Path: p, EntityID: id, Properties: props, Body: body}
	kind, _ := props.GetString(model.KeyType)
	doc.Kind, _ = model.ParseKind(kind)

	if m.opts.DryRun {
		doc.ModTime = now
		return doc, nil
	}

	dir := path.Dir(p)
	if dir != "." {
		exists, err := m.storage.FolderExists(ctx, dir)
		if err != nil {
			return model.Document{}, err
		}
		if !exists {
			if err := m.storage.CreateFolder(ctx, dir); err != nil {
				return model.Document{}, err
			}
		}
	}
	mod, err := m.storage.WriteDocument(ctx, p, doc.Content())
	if err != nil {
		return model.Document{}, err
	}
	doc.ModTime = mod
	return doc, nil
}

func (m *Materializer) tags(existing model.Document) []string {
	tags, _ := existing.Properties.GetList(model.KeyTags)
	if m.opts.ScopeTag == "" || existing.HasTag(m.opts.ScopeTag) {
		return tags
	}
	return append(tags, m.opts.ScopeTag)
}

func taskKeys(f model.Fields) []string {
	keys := []string{"completed", "parent_id"}
	if f.Content {
		keys = append(keys, "title", "description")
	}
	if f.Priority {
		keys = append(keys, "priority")
	}
	if f.DueDate {
		keys = append(keys, "due")
	}
	if f.Labels {
		keys = append(keys, "labels")
	}
	if f.Project {
		keys = append(keys, "project", "project_id")
	}
	if f.Section {
		keys = append(keys, "section", "section_id")
	}
	return keys
}
