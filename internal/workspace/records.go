package workspace

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/crewflo/crewflo/internal/schema"
	"github.com/crewflo/crewflo/internal/syncstore"
)

// AddProject appends p, assigning an id and the planning status when unset.
func (w *Workspace) AddProject(p schema.Project) (schema.Project, error) {
	if err := w.checkWritable(); err != nil {
		return p, err
	}
	if p.ID == "" {
		p.ID = schema.NewID("p")
	}
	if p.Status == "" {
		p.Status = schema.StatusPlanning
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid project: %w", err)
	}
	if err := addRecord(w.Projects, p, p.ID, projectID); err != nil {
		return p, err
	}
	return p, nil
}

// UpdateProject replaces the project with the same id.
func (w *Workspace) UpdateProject(p schema.Project) error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}
	return replaceRecord(w.Projects, p, p.ID, projectID)
}

// DeleteProject removes a project. Tasks referencing it are kept.
func (w *Workspace) DeleteProject(id string) error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	return removeRecord(w.Projects, id, projectID)
}

// AddSupplier appends s, assigning an id and a palette color when unset.
func (w *Workspace) AddSupplier(s schema.Supplier) (schema.Supplier, error) {
	if err := w.checkWritable(); err != nil {
		return s, err
	}
	if s.ID == "" {
		s.ID = schema.NewID("s")
	}
	if s.Color == "" {
		s.Color = schema.ColorFor(len(w.Suppliers.Read()))
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("invalid supplier: %w", err)
	}
	if err := addRecord(w.Suppliers, s, s.ID, supplierID); err != nil {
		return s, err
	}
	return s, nil
}

// UpdateSupplier replaces the supplier with the same id.
func (w *Workspace) UpdateSupplier(s schema.Supplier) error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid supplier: %w", err)
	}
	return replaceRecord(w.Suppliers, s, s.ID, supplierID)
}

// DeleteSupplier removes a supplier. Tasks referencing it are kept and show
// up with an unknown supplier.
func (w *Workspace) DeleteSupplier(id string) error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	return removeRecord(w.Suppliers, id, supplierID)
}

// AddTask appends t after checking that its project and supplier exist.
func (w *Workspace) AddTask(t schema.Task) (schema.Task, error) {
	if err := w.checkWritable(); err != nil {
		return t, err
	}
	if t.ID == "" {
		t.ID = schema.NewID("t")
	}
	if err := w.validateTask(&t); err != nil {
		return t, err
	}
	if err := addRecord(w.Tasks, t, t.ID, taskID); err != nil {
		return t, err
	}
	return t, nil
}

// UpdateTask replaces the task with the same id.
func (w *Workspace) UpdateTask(t schema.Task) error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	if err := w.validateTask(&t); err != nil {
		return err
	}
	return replaceRecord(w.Tasks, t, t.ID, taskID)
}

// DeleteTask removes a task.
func (w *Workspace) DeleteTask(id string) error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	return removeRecord(w.Tasks, id, taskID)
}

func (w *Workspace) validateTask(t *schema.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}
	if schema.FindProject(w.Projects.Read(), t.ProjectID) == nil {
		return fmt.Errorf("invalid task: project %s: %w", t.ProjectID, ErrNotFound)
	}
	if schema.FindSupplier(w.Suppliers.Read(), t.SupplierID) == nil {
		return fmt.Errorf("invalid task: supplier %s: %w", t.SupplierID, ErrNotFound)
	}
	return nil
}

func projectID(p *schema.Project) string   { return p.ID }
func supplierID(s *schema.Supplier) string { return s.ID }
func taskID(t *schema.Task) string         { return t.ID }

func indexOf[T any](items []T, id string, idOf func(*T) string) int {
	for i := range items {
		if idOf(&items[i]) == id {
			return i
		}
	}
	return -1
}

// Each helper builds a new slice so that undo snapshots and readers of the
// previous value never observe the change.

func addRecord[T any](c *syncstore.Coordinator[[]T], rec T, id string, idOf func(*T) string) error {
	if indexOf(c.Read(), id, idOf) >= 0 {
		return fmt.Errorf("record %s already exists", id)
	}
	c.Write(func(cur []T) []T {
		next := make([]T, 0, len(cur)+1)
		next = append(next, cur...)
		return append(next, rec)
	})
	return nil
}

func replaceRecord[T any](c *syncstore.Coordinator[[]T], rec T, id string, idOf func(*T) string) error {
	if indexOf(c.Read(), id, idOf) < 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	c.Write(func(cur []T) []T {
		next := make([]T, len(cur))
		copy(next, cur)
		if i := indexOf(next, id, idOf); i >= 0 {
			next[i] = rec
		}
		return next
	})
	return nil
}

func removeRecord[T any](c *syncstore.Coordinator[[]T], id string, idOf func(*T) string) error {
	if indexOf(c.Read(), id, idOf) < 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	c.Write(func(cur []T) []T {
		next := make([]T, 0, len(cur))
		for i := range cur {
			if idOf(&cur[i]) != id {
				next = append(next, cur[i])
			}
		}
		return next
	})
	return nil
}

// MailtoLink builds a mailto: URL that sends the schedule to every supplier
// address in bcc.
func MailtoLink(suppliers []schema.Supplier, now time.Time) string {
	var emails []string
	for i := range suppliers {
		emails = append(emails, suppliers[i].Emails()...)
	}

	subject := "Site Schedule - " + now.Format("2006-01-02")
	body := "Hello,\n\nPlease find attached the updated site schedule.\n\nThanks,\nCrewFlo"

	return fmt.Sprintf("mailto:?bcc=%s&subject=%s&body=%s",
		strings.Join(emails, ","), escapeComponent(subject), escapeComponent(body))
}

// escapeComponent percent-encodes s for a mailto query, spaces as %20.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
