// Package validate drops malformed remote records before they reach the
// remote state.
package validate

import (
	"fmt"
	"strings"

	"github.com/harrisonrobin/todovault/pkg/model"
)

// Error describes one dropped record.
type Error struct {
	Kind   model.Kind
	ID     string
	Reason string
}

func (e *Error) Error() string {
	id := e.ID
	if id == "" {
		id = "<no id>"
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Kind, id, e.Reason)
}

// Task checks a single task. Tombstones only need an id.
func Task(t model.Task) error {
	switch {
	case strings.TrimSpace(t.ID) == "":
		return &Error{Kind: model.KindTask, Reason: "missing id"}
	case t.IsDeleted:
		return nil
	case t.ProjectID == "":
		return &Error{Kind: model.KindTask, ID: t.ID, Reason: "missing project id"}
	case strings.TrimSpace(t.Content) == "":
		return &Error{Kind: model.KindTask, ID: t.ID, Reason: "empty content"}
	case t.Priority < 1 || t.Priority > 4:
		return &Error{Kind: model.KindTask, ID: t.ID, Reason: fmt.Sprintf("priority %d out of range", t.Priority)}
	}
	return nil
}

// Project checks a single project.
func Project(p model.Project) error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return &Error{Kind: model.KindProject, Reason: "missing id"}
	case p.IsDeleted:
		return nil
	case strings.TrimSpace(p.Name) == "":
		return &Error{Kind: model.KindProject, ID: p.ID, Reason: "empty name"}
	}
	return nil
}

// Section checks a single section.
func Section(s model.Section) error {
	switch {
	case strings.TrimSpace(s.ID) == "":
		return &Error{Kind: model.KindSection, Reason: "missing id"}
	case s.IsDeleted:
		return nil
	case s.ProjectID == "":
		return &Error{Kind: model.KindSection, ID: s.ID, Reason: "missing project id"}
	}
	return nil
}

// Label checks a single label.
func Label(l model.Label) error {
	switch {
	case strings.TrimSpace(l.ID) == "":
		return &Error{Kind: "label", Reason: "missing id"}
	case l.IsDeleted:
		return nil
	case strings.TrimSpace(l.Name) == "":
		return &Error{Kind: "label", ID: l.ID, Reason: "empty name"}
	}
	return nil
}

// Payload returns p without its malformed records, plus one error per record
// that was dropped.
func Payload(p model.Payload) (model.Payload, []error) {
	var errs []error
	out := model.Payload{SyncToken: p.SyncToken, FullSync: p.FullSync}

	for _, proj := range p.Projects {
		if err := Project(proj); err != nil {
			errs = append(errs, err)
			continue
		}
		out.Projects = append(out.Projects, proj)
	}
	for _, sec := range p.Sections {
		if err := Section(sec); err != nil {
			errs = append(errs, err)
			continue
		}
		out.Sections = append(out.Sections, sec)
	}
	for _, task := range p.Tasks {
		if err := Task(task); err != nil {
			errs = append(errs, err)
			continue
		}
		out.Tasks = append(out.Tasks, task)
	}
	for _, label := range p.Labels {
		if err := Label(label); err != nil {
			errs = append(errs, err)
			continue
		}
		out.Labels = append(out.Labels, label)
	}

	return out, errs
}
