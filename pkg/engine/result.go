package engine

import (
	"fmt"
	"time"

	"github.com/harrisonrobin/todovault/pkg/model"
)

// Counts are the reconcile decisions for one entity kind.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Result is the outcome of one engine operation.
type Result struct {
	Op      string `json:"op"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	DryRun  bool   `json:"dry_run"`

	FullSync bool `json:"full_sync"`
	Created  int  `json:"created"`
	Updated  int  `json:"updated"`
	Skipped  int  `json:"skipped"`
	Deleted  int  `json:"deleted"`
	Pushed   int  `json:"pushed"`
	// Fetched counts the records in the remote payload before validation.
	Fetched int `json:"fetched"`
	// Dropped counts remote records rejected by validation.
	Dropped int `json:"dropped"`
	// Failed counts entities whose write or push failed.
	Failed     int                   `json:"failed"`
	Duplicates int                   `json:"duplicates"`
	Kinds      map[model.Kind]Counts `json:"kinds"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type decision int

const (
	decisionCreate decision = iota
	decisionUpdate
	decisionSkip
)

func (d decision) String() string {
	switch d {
	case decisionCreate:
		return "create"
	case decisionUpdate:
		return "update"
	}
	return "skip"
}

func (r *Result) count(kind model.Kind, d decision) {
	if r.Kinds == nil {
		r.Kinds = make(map[model.Kind]Counts)
	}
	c := r.Kinds[kind]
	switch d {
	case decisionCreate:
		c.Created++
		r.Created++
	case decisionUpdate:
		c.Updated++
		r.Updated++
	default:
		c.Skipped++
		r.Skipped++
	}
	r.Kinds[kind] = c
}

func (r *Result) summary() string {
	s := fmt.Sprintf("created %d, updated %d, skipped %d, pushed %d", r.Created, r.Updated, r.Skipped, r.Pushed)
	if r.Deleted > 0 {
		s += fmt.Sprintf(", deleted %d", r.Deleted)
	}
	if r.Dropped > 0 {
		s += fmt.Sprintf(", dropped %d invalid", r.Dropped)
	}
	if r.DryRun {
		s += " (dry run)"
	}
	return s
}
