package schema

import (
	"fmt"
	"strings"
	"time"
)

// Task assigns a supplier to a project for a time range.
type Task struct {
	ID          string    `json:"id" yaml:"id"`
	ProjectID   string    `json:"projectId" yaml:"projectId"`
	SupplierID  string    `json:"supplierId" yaml:"supplierId"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Notes       string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	Start       time.Time `json:"start" yaml:"start"`
	End         time.Time `json:"end" yaml:"end"`
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.ProjectID == "" {
		return fmt.Errorf("projectId is required")
	}
	if t.SupplierID == "" {
		return fmt.Errorf("supplierId is required")
	}
	if t.Start.IsZero() || t.End.IsZero() {
		return fmt.Errorf("start and end are required")
	}
	if !t.End.After(t.Start) {
		return fmt.Errorf("end (%s) must be after start (%s)",
			t.End.Format(time.RFC3339), t.Start.Format(time.RFC3339))
	}
	return nil
}

// Overlaps reports whether t and o share any instant. Touching intervals
// (one ends exactly when the other starts) do not overlap.
func (t *Task) Overlaps(o *Task) bool {
	return t.Start.Before(o.End) && t.End.After(o.Start)
}

// Duration returns End - Start.
func (t *Task) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

// FindTask returns the task with the given id, or nil.
func FindTask(tasks []Task, id string) *Task {
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i]
		}
	}
	return nil
}

// Conflict is a derived record: two tasks booking the same supplier at
// overlapping times.
type Conflict struct {
	TaskA        Task   `json:"taskA"`
	TaskB        Task   `json:"taskB"`
	SupplierName string `json:"supplierName"`
	Message      string `json:"message"`
}
