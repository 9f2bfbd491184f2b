// Package remote holds the in-memory mirror of the remote workspace.
//
// The mirror changes only by replaying remote payloads. Local edits never
// touch it directly: they become remote commands, and their effect arrives
// with the next fetch.
package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/harrisonrobin/todovault/pkg/model"
	"github.com/natefinch/atomic"
)

// InitialToken is the sync token of a mirror that has never synced.
const InitialToken = "*"

// FullSyncMaxAge forces a full sync once the last one is older than this,
// even when incremental syncs keep succeeding.
const FullSyncMaxAge = 24 * time.Hour

// State is the remote mirror. It is not safe for concurrent use; the engine
// confines all access to one run at a time.
type State struct {
	Tasks    map[string]model.Task    `json:"tasks"`
	Projects map[string]model.Project `json:"projects"`
	Sections map[string]model.Section `json:"sections"`
	Labels   map[string]model.Label   `json:"labels"`

	SyncToken           string    `json:"sync_token"`
	LastFullSync        time.Time `json:"last_full_sync"`
	LastIncrementalSync time.Time `json:"last_incremental_sync"`
	// LastRun is when the last complete sync run finished. Documents modified
	// after it are treated as local edits.
	LastRun time.Time `json:"last_run"`
}

// New returns an empty mirror holding the initial token.
func New() *State {
	s := &State{SyncToken: InitialToken}
	s.reset()
	return s
}

func (s *State) reset() {
	s.Tasks = make(map[string]model.Task)
	s.Projects = make(map[string]model.Project)
	s.Sections = make(map[string]model.Section)
	s.Labels = make(map[string]model.Label)
}

// NeedsFullSync reports whether the next fetch must be a full one.
func (s *State) NeedsFullSync(now time.Time) bool {
	if s.SyncToken == "" || s.SyncToken == InitialToken {
		return true
	}
	if s.LastFullSync.IsZero() {
		return true
	}
	return now.Sub(s.LastFullSync) > FullSyncMaxAge
}

// Replay merges a payload into the mirror. A full payload replaces the
// mirror's contents. Deleted records are removed; everything else is upserted
// by id, the last record for an id winning.
func (s *State) Replay(p model.Payload, now time.Time) {
	if p.FullSync {
		s.reset()
	}

	for _, proj := range p.Projects {
		if proj.IsDeleted {
			delete(s.Projects, proj.ID)
			continue
		}
		s.Projects[proj.ID] = proj
	}
	for _, sec := range p.Sections {
		if sec.IsDeleted {
			delete(s.Sections, sec.ID)
			continue
		}
		s.Sections[sec.ID] = sec
	}
	for _, task := range p.Tasks {
		if task.IsDeleted {
			delete(s.Tasks, task.ID)
			continue
		}
		s.Tasks[task.ID] = task
	}
	for _, label := range p.Labels {
		if label.IsDeleted {
			delete(s.Labels, label.ID)
			continue
		}
		s.Labels[label.ID] = label
	}

	if p.SyncToken != "" {
		s.SyncToken = p.SyncToken
	}
	if p.FullSync {
		s.LastFullSync = now
	} else {
		s.LastIncrementalSync = now
	}
}

// Task returns a non-deleted task.
func (s *State) Task(id string) (model.Task, bool) {
	t, ok := s.Tasks[id]
	if !ok || t.IsDeleted {
		return model.Task{}, false
	}
	return t, true
}

// Project returns a non-deleted, non-archived project.
func (s *State) Project(id string) (model.Project, bool) {
	p, ok := s.Projects[id]
	if !ok || p.IsDeleted || p.IsArchived {
		return model.Project{}, false
	}
	return p, true
}

// Section returns a non-deleted section.
func (s *State) Section(id string) (model.Section, bool) {
	sec, ok := s.Sections[id]
	if !ok || sec.IsDeleted {
		return model.Section{}, false
	}
	return sec, true
}

// AllTasks returns the non-deleted tasks sorted by id.
func (s *State) AllTasks() []model.Task {
	out := make([]model.Task, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		if !t.IsDeleted {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllProjects returns the non-deleted, non-archived projects sorted by id.
func (s *State) AllProjects() []model.Project {
	out := make([]model.Project, 0, len(s.Projects))
	for _, p := range s.Projects {
		if !p.IsDeleted && !p.IsArchived {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllSections returns the non-deleted sections sorted by id.
func (s *State) AllSections() []model.Section {
	out := make([]model.Section, 0, len(s.Sections))
	for _, sec := range s.Sections {
		if !sec.IsDeleted {
			out = append(out, sec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllLabels returns the non-deleted labels sorted by id.
func (s *State) AllLabels() []model.Label {
	out := make([]model.Label, 0, len(s.Labels))
	for _, l := range s.Labels {
		if !l.IsDeleted {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Counts returns the number of visible entities per kind.
func (s *State) Counts() map[string]int {
	return map[string]int{
		"tasks":    len(s.AllTasks()),
		"projects": len(s.AllProjects()),
		"sections": len(s.AllSections()),
		"labels":   len(s.AllLabels()),
	}
}

// Load reads a mirror saved by Save. A missing file yields an empty mirror.
func Load(path string) (*State, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, err
	}
	defer f.Close()

	s := New()
	if err := json.NewDecoder(f).Decode(s); err != nil {
		return nil, fmt.Errorf("failed to decode remote state %s: %w", path, err)
	}
	if s.Tasks == nil {
		s.Tasks = make(map[string]model.Task)
	}
	if s.Projects == nil {
		s.Projects = make(map[string]model.Project)
	}
	if s.Sections == nil {
		s.Sections = make(map[string]model.Section)
	}
	if s.Labels == nil {
		s.Labels = make(map[string]model.Label)
	}
	if s.SyncToken == "" {
		s.SyncToken = InitialToken
	}
	return s, nil
}

// Save writes the mirror to path atomically.
func (s *State) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(path, bytes.NewReader(data))
}
