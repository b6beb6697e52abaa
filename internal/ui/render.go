package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/crewflo/crewflo/internal/conflict"
	"github.com/crewflo/crewflo/internal/schema"
)

// TimeLayout is used for task times in listings.
const TimeLayout = "2006-01-02 15:04"

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return accentStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...)
}

// ProjectTable lists projects.
func ProjectTable(projects []schema.Project) string {
	t := newTable("ID", "NAME", "ADDRESS", "STATUS")
	for _, p := range projects {
		t.Row(p.ID, p.Name, p.Address, string(p.Status))
	}
	return t.Render()
}

// SupplierTable lists suppliers in their palette color.
func SupplierTable(suppliers []schema.Supplier) string {
	t := newTable("ID", "NAME", "TRADE", "EMAIL")
	for _, s := range suppliers {
		t.Row(s.ID, RenderSupplier(s.Name, s.Color), s.Trade, s.Email)
	}
	return t.Render()
}

// TaskTable lists tasks, flagging the ones involved in a conflict.
func TaskTable(tasks []schema.Task, suppliers []schema.Supplier, projects []schema.Project, loc *time.Location) string {
	conflicts := conflict.Detect(tasks, suppliers, projects)

	t := newTable("", "ID", "TITLE", "PROJECT", "SUPPLIER", "START", "END")
	for _, task := range tasks {
		flag := ""
		if conflict.ForTask(conflicts, task.ID) {
			flag = RenderFail("!")
		}

		project := conflict.UnknownName
		if p := schema.FindProject(projects, task.ProjectID); p != nil {
			project = p.Name
		}
		supplier := conflict.UnknownName
		if s := schema.FindSupplier(suppliers, task.SupplierID); s != nil {
			supplier = RenderSupplier(s.Name, s.Color)
		}

		t.Row(flag, task.ID, task.Title, project, supplier,
			task.Start.In(loc).Format(TimeLayout), task.End.In(loc).Format(TimeLayout))
	}
	return t.Render()
}

// ConflictReport renders the conflict banner, or "" when there are none.
func ConflictReport(conflicts []schema.Conflict) string {
	if len(conflicts) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(RenderFail(fmt.Sprintf("Schedule conflicts detected (%d)", len(conflicts))))
	b.WriteString("\n")
	for _, c := range conflicts {
		fmt.Fprintf(&b, "  • %s: %s\n", lipgloss.NewStyle().Bold(true).Render(c.SupplierName), c.Message)
	}
	return b.String()
}
