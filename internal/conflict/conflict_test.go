package conflict

import (
	"testing"
	"time"

	"github.com/crewflo/crewflo/internal/schema"
)

func at(hour int) time.Time {
	return time.Date(2026, 5, 4, hour, 0, 0, 0, time.UTC)
}

func task(id, project, supplier string, start, end int) schema.Task {
	return schema.Task{
		ID:         id,
		ProjectID:  project,
		SupplierID: supplier,
		Title:      id,
		Start:      at(start),
		End:        at(end),
	}
}

var (
	testProjects = []schema.Project{
		{ID: "p1", Name: "Résidence Lacroix"},
		{ID: "p2", Name: "Condos Centre-Ville"},
	}
	testSuppliers = []schema.Supplier{
		{ID: "s1", Name: "Électricité Pro"},
		{ID: "s2", Name: "Plomberie Express"},
	}
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name  string
		tasks []schema.Task
		want  int
	}{
		{
			name:  "overlapping same supplier",
			tasks: []schema.Task{task("a", "p1", "s1", 8, 12), task("b", "p2", "s1", 10, 14)},
			want:  1,
		},
		{
			name:  "touching intervals",
			tasks: []schema.Task{task("a", "p1", "s1", 8, 12), task("b", "p2", "s1", 12, 14)},
			want:  0,
		},
		{
			name:  "different suppliers",
			tasks: []schema.Task{task("a", "p1", "s1", 8, 12), task("b", "p2", "s2", 8, 12)},
			want:  0,
		},
		{
			name: "three way overlap",
			tasks: []schema.Task{
				task("a", "p1", "s1", 8, 16),
				task("b", "p2", "s1", 9, 10),
				task("c", "p1", "s1", 11, 12),
			},
			want: 2,
		},
		{
			name:  "no tasks",
			tasks: nil,
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.tasks, testSuppliers, testProjects)
			if len(got) != tt.want {
				t.Errorf("Detect() found %d conflicts, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDetect_Record(t *testing.T) {
	tasks := []schema.Task{task("a", "p1", "s1", 8, 12), task("b", "p2", "s1", 10, 14)}

	got := Detect(tasks, testSuppliers, testProjects)
	if len(got) != 1 {
		t.Fatalf("Detect() found %d conflicts, want 1", len(got))
	}

	c := got[0]
	if c.TaskA.ID != "a" || c.TaskB.ID != "b" {
		t.Errorf("pair = (%s, %s), want (a, b)", c.TaskA.ID, c.TaskB.ID)
	}
	if c.SupplierName != "Électricité Pro" {
		t.Errorf("SupplierName = %q", c.SupplierName)
	}
	want := `Conflict between "Résidence Lacroix" and "Condos Centre-Ville" on 2026-05-04`
	if c.Message != want {
		t.Errorf("Message = %q, want %q", c.Message, want)
	}
}

func TestDetect_MissingReferences(t *testing.T) {
	tasks := []schema.Task{task("a", "gone", "s9", 8, 12), task("b", "p1", "s9", 10, 14)}

	got := Detect(tasks, testSuppliers, testProjects)
	if len(got) != 1 {
		t.Fatalf("Detect() found %d conflicts, want 1", len(got))
	}
	if got[0].SupplierName != UnknownName {
		t.Errorf("SupplierName = %q, want %q", got[0].SupplierName, UnknownName)
	}
	want := `Conflict between "Unknown" and "Résidence Lacroix" on 2026-05-04`
	if got[0].Message != want {
		t.Errorf("Message = %q, want %q", got[0].Message, want)
	}
}

func TestForTask(t *testing.T) {
	tasks := []schema.Task{
		task("a", "p1", "s1", 8, 12),
		task("b", "p2", "s1", 10, 14),
		task("c", "p2", "s2", 10, 14),
	}
	conflicts := Detect(tasks, testSuppliers, testProjects)

	for id, want := range map[string]bool{"a": true, "b": true, "c": false} {
		if got := ForTask(conflicts, id); got != want {
			t.Errorf("ForTask(%s) = %v, want %v", id, got, want)
		}
	}
}

func TestBySupplier(t *testing.T) {
	tasks := []schema.Task{
		task("a", "p1", "s1", 8, 12),
		task("b", "p2", "s1", 10, 14),
		task("c", "p1", "s2", 8, 12),
		task("d", "p2", "s2", 9, 10),
	}
	groups := BySupplier(Detect(tasks, testSuppliers, testProjects))
	if len(groups) != 2 || len(groups["Plomberie Express"]) != 1 {
		t.Errorf("BySupplier() = %v", groups)
	}
}
