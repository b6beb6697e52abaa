package schema

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ProjectStatus is the lifecycle stage of a construction project.
type ProjectStatus string

const (
	StatusPlanning  ProjectStatus = "planning"
	StatusActive    ProjectStatus = "active"
	StatusCompleted ProjectStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s ProjectStatus) Valid() bool {
	switch s {
	case StatusPlanning, StatusActive, StatusCompleted:
		return true
	}
	return false
}

// ParseProjectStatus converts user input to a ProjectStatus.
func ParseProjectStatus(s string) (ProjectStatus, error) {
	st := ProjectStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown project status %q (want planning, active or completed)", s)
	}
	return st, nil
}

// Project is a construction site.
type Project struct {
	ID      string        `json:"id" yaml:"id"`
	Name    string        `json:"name" yaml:"name"`
	Address string        `json:"address" yaml:"address"`
	Status  ProjectStatus `json:"status" yaml:"status"`
}

// Validate checks if the Project has valid field values.
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !p.Status.Valid() {
		return fmt.Errorf("invalid status %q", p.Status)
	}
	return nil
}

// NewID returns a fresh identifier with the given prefix, e.g. "t-1b9d6bcd".
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// FindProject returns the project with the given id, or nil.
func FindProject(projects []Project, id string) *Project {
	for i := range projects {
		if projects[i].ID == id {
			return &projects[i]
		}
	}
	return nil
}
