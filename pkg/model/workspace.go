package model

// Project is a remote project.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Color      string    `json:"color"`
	ParentID   string    `json:"parent_id"`
	IsFavorite bool      `json:"is_favorite"`
	IsArchived bool      `json:"is_archived"`
	IsDeleted  bool      `json:"is_deleted"`
	UpdatedAt  Timestamp `json:"updated_at"`
}

// Section groups tasks inside a project.
type Section struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ProjectID  string    `json:"project_id"`
	IsArchived bool      `json:"is_archived"`
	IsDeleted  bool      `json:"is_deleted"`
	UpdatedAt  Timestamp `json:"updated_at"`
}

// Label is read-only here; labels are never written as documents.
type Label struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	IsDeleted bool   `json:"is_deleted"`
}

// Payload is one batch of remote changes. A full payload carries the
// complete workspace; an incremental one only what changed since the token
// it was requested with.
type Payload struct {
	SyncToken string    `json:"sync_token"`
	FullSync  bool      `json:"full_sync"`
	Projects  []Project `json:"projects"`
	Tasks     []Task    `json:"items"`
	Sections  []Section `json:"sections"`
	Labels    []Label   `json:"labels"`
}

// Size returns the number of records in p.
func (p Payload) Size() int {
	return len(p.Projects) + len(p.Tasks) + len(p.Sections) + len(p.Labels)
}
