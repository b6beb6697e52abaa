// Package conflict finds double-booked suppliers.
package conflict

import (
	"fmt"

	"github.com/crewflo/crewflo/internal/schema"
)

// UnknownName stands in for a supplier or project that no longer exists.
const UnknownName = "Unknown"

// DateLayout formats the conflict date in messages.
const DateLayout = "2006-01-02"

// Detect compares every unordered pair of tasks and reports those that book
// the same supplier over overlapping intervals. The result follows task order:
// pair (i, j) with i < j, TaskA being the earlier entry of the list.
func Detect(tasks []schema.Task, suppliers []schema.Supplier, projects []schema.Project) []schema.Conflict {
	var found []schema.Conflict

	for i := 0; i < len(tasks); i++ {
		for j := i + 1; j < len(tasks); j++ {
			a, b := &tasks[i], &tasks[j]
			if a.SupplierID != b.SupplierID || !a.Overlaps(b) {
				continue
			}

			found = append(found, schema.Conflict{
				TaskA:        *a,
				TaskB:        *b,
				SupplierName: supplierName(suppliers, a.SupplierID),
				Message: fmt.Sprintf(`Conflict between "%s" and "%s" on %s`,
					projectName(projects, a.ProjectID),
					projectName(projects, b.ProjectID),
					a.Start.Format(DateLayout)),
			})
		}
	}
	return found
}

// ForTask reports whether the task with id appears in any conflict.
func ForTask(conflicts []schema.Conflict, id string) bool {
	for _, c := range conflicts {
		if c.TaskA.ID == id || c.TaskB.ID == id {
			return true
		}
	}
	return false
}

// BySupplier groups conflicts by supplier name.
func BySupplier(conflicts []schema.Conflict) map[string][]schema.Conflict {
	out := make(map[string][]schema.Conflict)
	for _, c := range conflicts {
		out[c.SupplierName] = append(out[c.SupplierName], c)
	}
	return out
}

func supplierName(suppliers []schema.Supplier, id string) string {
	if s := schema.FindSupplier(suppliers, id); s != nil && s.Name != "" {
		return s.Name
	}
	return UnknownName
}

func projectName(projects []schema.Project, id string) string {
	if p := schema.FindProject(projects, id); p != nil && p.Name != "" {
		return p.Name
	}
	return UnknownName
}
