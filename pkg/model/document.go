package model

import (
	"time"

	"github.com/harrisonrobin/todovault/pkg/frontmatter"
)

// Property keys shared by every synced document.
const (
	KeyID         = "todoist_id"
	KeyType       = "todoist_type"
	KeyLastSync   = "last_sync"
	KeySyncStatus = "sync_status"
	KeyTags       = "tags"
)

// Kind discriminates the entity a document mirrors.
type Kind string

const (
	KindTask    Kind = "task"
	KindProject Kind = "project"
	KindSection Kind = "section"
)

// ParseKind maps a todoist_type value to a Kind. An empty value means task.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case "", KindTask:
		return KindTask, true
	case KindProject:
		return KindProject, true
	case KindSection:
		return KindSection, true
	}
	return "", false
}

// SyncStatus records whether a document matches the remote.
type SyncStatus string

const (
	StatusSynced   SyncStatus = "synced"
	StatusModified SyncStatus = "modified"
)

// Document is a vault file that mirrors one entity.
type Document struct {
	Path       string
	EntityID   string
	Kind       Kind
	Properties frontmatter.Properties
	Body       string
	ModTime    time.Time
}

// NewDocument parses raw file content. A document without frontmatter or
// without an entity id has an empty EntityID.
func NewDocument(path string, raw []byte, modTime time.Time) Document {
	props, body, _ := frontmatter.Parse(raw)
	doc := Document{
		Path:       path,
		Properties: props,
		Body:       body,
		ModTime:    modTime,
	}
	doc.EntityID, _ = props.GetString(KeyID)
	kindValue, _ := props.GetString(KeyType)
	if kind, ok := ParseKind(kindValue); ok {
		doc.Kind = kind
	}
	return doc
}

// Content renders the document back to bytes.
func (d Document) Content() []byte {
	return frontmatter.Compose(d.Properties, d.Body)
}

// LastSync returns the last_sync marker. Missing or unparseable markers read
// as the zero time, i.e. never synced.
func (d Document) LastSync() time.Time {
	s, ok := d.Properties.GetString(KeyLastSync)
	if !ok {
		return time.Time{}
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// HasTag reports whether the tags property contains tag.
func (d Document) HasTag(tag string) bool {
	tags, _ := d.Properties.GetList(KeyTags)
	for _, t := range tags {
		if t == tag || t == "#"+tag {
			return true
		}
	}
	return false
}
