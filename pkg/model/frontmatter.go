package model

import (
	"slices"
	"strings"
	"time"

	"github.com/harrisonrobin/todovault/pkg/frontmatter"
)

// Fields selects which optional task properties are mirrored.
type Fields struct {
	Content  bool
	DueDate  bool
	Priority bool
	Labels   bool
	Project  bool
	Section  bool
}

// AllFields enables every optional task property.
func AllFields() Fields {
	return Fields{Content: true, DueDate: true, Priority: true, Labels: true, Project: true, Section: true}
}

// Base holds the properties every synced document carries.
type Base struct {
	EntityID   string
	Kind       Kind
	SyncStatus SyncStatus
	LastSync   time.Time
	Tags       []string
}

func (b Base) apply(p frontmatter.Properties) {
	p[KeyID] = frontmatter.String(b.EntityID)
	p[KeyType] = frontmatter.String(string(b.Kind))
	if !b.LastSync.IsZero() {
		p[KeyLastSync] = frontmatter.String(b.LastSync.UTC().Format(time.RFC3339Nano))
	}
	if b.SyncStatus != "" {
		p[KeySyncStatus] = frontmatter.String(string(b.SyncStatus))
	}
	if len(b.Tags) > 0 {
		p[KeyTags] = frontmatter.List(slices.Clone(b.Tags))
	}
}

// TaskFrontmatter is the property set written for a task document.
type TaskFrontmatter struct {
	Base
	Title       string
	Description string
	Completed   bool
	Priority    int
	Due         string
	Labels      []string
	Project     string
	ProjectID   string
	Section     string
	SectionID   string
	ParentID    string
}

// Properties renders f, leaving out the fields that are switched off.
func (f TaskFrontmatter) Properties(fields Fields) frontmatter.Properties {
	p := make(frontmatter.Properties)
	f.Base.Kind = KindTask
	f.Base.apply(p)

	if fields.Content {
		p["title"] = frontmatter.String(f.Title)
		if f.Description != "" {
			p["description"] = frontmatter.String(f.Description)
		}
	}
	p["completed"] = frontmatter.Bool(f.Completed)
	if fields.Priority {
		p["priority"] = frontmatter.Int(int64(f.Priority))
	}
	if fields.DueDate && f.Due != "" {
		p["due"] = frontmatter.String(f.Due)
	}
	if fields.Labels {
		p["labels"] = frontmatter.List(append([]string{}, f.Labels...))
	}
	if fields.Project {
		p["project"] = frontmatter.String(f.Project)
		p["project_id"] = frontmatter.String(f.ProjectID)
	}
	if fields.Section && f.SectionID != "" {
		p["section"] = frontmatter.String(f.Section)
		p["section_id"] = frontmatter.String(f.SectionID)
	}
	if f.ParentID != "" {
		p["parent_id"] = frontmatter.String(f.ParentID)
	}
	return p
}

// ProjectFrontmatter is the property set written for a project document.
type ProjectFrontmatter struct {
	Base
	Name     string
	Color    string
	Favorite bool
	ParentID string
}

func (f ProjectFrontmatter) Properties() frontmatter.Properties {
	p := make(frontmatter.Properties)
	f.Base.Kind = KindProject
	f.Base.apply(p)
	p["name"] = frontmatter.String(f.Name)
	p["color"] = frontmatter.String(f.Color)
	p["favorite"] = frontmatter.Bool(f.Favorite)
	if f.ParentID != "" {
		p["parent_id"] = frontmatter.String(f.ParentID)
	}
	return p
}

// SectionFrontmatter is the property set written for a section document.
type SectionFrontmatter struct {
	Base
	Name      string
	Project   string
	ProjectID string
}

func (f SectionFrontmatter) Properties() frontmatter.Properties {
	p := make(frontmatter.Properties)
	f.Base.Kind = KindSection
	f.Base.apply(p)
	p["name"] = frontmatter.String(f.Name)
	p["project"] = frontmatter.String(f.Project)
	p["project_id"] = frontmatter.String(f.ProjectID)
	return p
}

// LocalTask is a task as the user left it in the vault. Nil fields are absent
// from the document.
type LocalTask struct {
	ID          string
	Title       *string
	Description *string
	Completed   *bool
	Priority    *int
	Due         *string
	Labels      []string
	HasLabels   bool
}

// ReadTask extracts the editable task fields from doc. The title falls back
// to the first heading of the body, completion to the body's checkboxes.
func ReadTask(doc Document) LocalTask {
	p := doc.Properties
	t := LocalTask{ID: doc.EntityID}

	if s, ok := p.GetString("title"); ok {
		t.Title = &s
	} else if s, ok := frontmatter.FirstHeading(doc.Body); ok {
		t.Title = &s
	}
	if s, ok := p.GetString("description"); ok {
		t.Description = &s
	}
	if b, ok := p.GetBool("completed"); ok {
		t.Completed = &b
	} else if strings.Contains(doc.Body, "[ ]") || frontmatter.IsChecked(doc.Body) {
		b := frontmatter.IsChecked(doc.Body)
		t.Completed = &b
	}
	if i, ok := p.GetInt("priority"); ok {
		n := int(i)
		t.Priority = &n
	}
	if s, ok := p.GetString("due"); ok {
		t.Due = &s
	}
	t.Labels, t.HasLabels = p.GetList("labels")
	return t
}

// LocalProject is a project as the user left it in the vault.
type LocalProject struct {
	ID       string
	Name     *string
	Color    *string
	Favorite *bool
}

// ReadProject extracts the editable project fields from doc.
func ReadProject(doc Document) LocalProject {
	p := doc.Properties
	out := LocalProject{ID: doc.EntityID}
	if s, ok := p.GetString("name"); ok {
		out.Name = &s
	}
	if s, ok := p.GetString("color"); ok {
		out.Color = &s
	}
	if b, ok := p.GetBool("favorite"); ok {
		out.Favorite = &b
	}
	return out
}
