package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewflo/crewflo/internal/conflict"
	"github.com/crewflo/crewflo/internal/schema"
	"github.com/crewflo/crewflo/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"tasks"},
	GroupID: "data",
	Short:   "Schedule tasks",
	Long: `A task books one supplier on one project between a start and an end
time. Two tasks of the same supplier whose times overlap are a conflict.

Times accept "2026-03-02 08:00", RFC 3339, or phrases such as
"next monday 8am". --end also accepts a duration relative to --start,
e.g. "4h".`,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in start order",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		projectRef, _ := cmd.Flags().GetString("project")
		supplierRef, _ := cmd.Flags().GetString("supplier")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		s := mustOpenSession(false)
		defer s.close()

		projects := s.ws.Projects.Read()
		suppliers := s.ws.Suppliers.Read()
		tasks := s.ws.Tasks.Read()

		if projectRef != "" {
			p, err := findProject(projects, projectRef)
			if err != nil {
				s.fail("%v", err)
			}
			tasks = filterTasks(tasks, func(t *schema.Task) bool { return t.ProjectID == p.ID })
		}
		if supplierRef != "" {
			sup, err := findSupplier(suppliers, supplierRef)
			if err != nil {
				s.fail("%v", err)
			}
			tasks = filterTasks(tasks, func(t *schema.Task) bool { return t.SupplierID == sup.ID })
		}
		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Start.Before(tasks[j].Start) })

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(tasks); err != nil {
				s.fail("%v", err)
			}
			return
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks")
			return
		}
		fmt.Println(ui.TaskTable(tasks, suppliers, projects, time.Local))
		if report := ui.ConflictReport(s.ws.Conflicts()); report != "" {
			fmt.Print("\n" + report)
		}
	},
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Book a supplier on a project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		projectRef, _ := cmd.Flags().GetString("project")
		supplierRef, _ := cmd.Flags().GetString("supplier")
		startRaw, _ := cmd.Flags().GetString("start")
		endRaw, _ := cmd.Flags().GetString("end")
		description, _ := cmd.Flags().GetString("description")
		notes, _ := cmd.Flags().GetString("notes")

		start, end, err := parseSpan(startRaw, endRaw, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		s := mustOpenSession(false)

		p, err := findProject(s.ws.Projects.Read(), projectRef)
		if err != nil {
			s.fail("%v", err)
		}
		sup, err := findSupplier(s.ws.Suppliers.Read(), supplierRef)
		if err != nil {
			s.fail("%v", err)
		}

		task, err := s.ws.AddTask(schema.Task{
			ProjectID:   p.ID,
			SupplierID:  sup.ID,
			Title:       args[0],
			Description: description,
			Notes:       notes,
			Start:       start,
			End:         end,
		})
		if err != nil {
			s.fail("%v", err)
		}
		conflicts := s.ws.Conflicts()
		s.close()

		fmt.Printf("%s Added task %s (%s)\n", ui.RenderPass("✓"), task.Title, ui.RenderMuted(task.ID))
		printTaskConflicts(conflicts, task.ID)
	},
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpenSession(false)

		found := schema.FindTask(s.ws.Tasks.Read(), args[0])
		if found == nil {
			s.fail("no task with id %s", args[0])
		}
		task := *found

		if cmd.Flags().Changed("title") {
			task.Title, _ = cmd.Flags().GetString("title")
		}
		if cmd.Flags().Changed("description") {
			task.Description, _ = cmd.Flags().GetString("description")
		}
		if cmd.Flags().Changed("notes") {
			task.Notes, _ = cmd.Flags().GetString("notes")
		}
		if cmd.Flags().Changed("project") {
			ref, _ := cmd.Flags().GetString("project")
			p, err := findProject(s.ws.Projects.Read(), ref)
			if err != nil {
				s.fail("%v", err)
			}
			task.ProjectID = p.ID
		}
		if cmd.Flags().Changed("supplier") {
			ref, _ := cmd.Flags().GetString("supplier")
			sup, err := findSupplier(s.ws.Suppliers.Read(), ref)
			if err != nil {
				s.fail("%v", err)
			}
			task.SupplierID = sup.ID
		}
		if err := applyTimes(cmd, &task); err != nil {
			s.fail("%v", err)
		}

		if err := s.ws.UpdateTask(task); err != nil {
			s.fail("%v", err)
		}
		conflicts := s.ws.Conflicts()
		s.close()

		fmt.Printf("%s Updated task %s\n", ui.RenderPass("✓"), task.Title)
		printTaskConflicts(conflicts, task.ID)
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpenSession(false)

		task := schema.FindTask(s.ws.Tasks.Read(), args[0])
		if task == nil {
			s.fail("no task with id %s", args[0])
		}
		if !confirm(fmt.Sprintf("Delete task %q?", task.Title)) {
			s.close()
			fmt.Println("Cancelled")
			return
		}
		title := task.Title
		if err := s.ws.DeleteTask(task.ID); err != nil {
			s.fail("%v", err)
		}
		s.close()

		fmt.Printf("%s Deleted task %s\n", ui.RenderPass("✓"), title)
	},
}

// applyTimes updates Start and End from --start and --end. Moving only the
// start keeps the task's duration.
func applyTimes(cmd *cobra.Command, task *schema.Task) error {
	startChanged := cmd.Flags().Changed("start")
	endChanged := cmd.Flags().Changed("end")
	startRaw, _ := cmd.Flags().GetString("start")
	endRaw, _ := cmd.Flags().GetString("end")

	switch {
	case startChanged && endChanged:
		start, end, err := parseSpan(startRaw, endRaw, time.Now())
		if err != nil {
			return err
		}
		task.Start, task.End = start, end
	case startChanged:
		start, err := parseTime(startRaw, time.Now())
		if err != nil {
			return err
		}
		d := task.Duration()
		task.Start, task.End = start, start.Add(d)
	case endChanged:
		rfc := task.Start.Format(time.RFC3339)
		_, end, err := parseSpan(rfc, endRaw, task.Start)
		if err != nil {
			return err
		}
		task.End = end
	}
	return nil
}

func printTaskConflicts(conflicts []schema.Conflict, taskID string) {
	if !conflict.ForTask(conflicts, taskID) {
		return
	}
	var mine []schema.Conflict
	for _, c := range conflicts {
		if c.TaskA.ID == taskID || c.TaskB.ID == taskID {
			mine = append(mine, c)
		}
	}
	fmt.Print(ui.ConflictReport(mine))
}

func filterTasks(tasks []schema.Task, keep func(*schema.Task) bool) []schema.Task {
	var out []schema.Task
	for i := range tasks {
		if keep(&tasks[i]) {
			out = append(out, tasks[i])
		}
	}
	return out
}

func init() {
	taskListCmd.Flags().String("project", "", "Only tasks of this project (id or name)")
	taskListCmd.Flags().String("supplier", "", "Only tasks of this supplier (id or name)")
	taskListCmd.Flags().Bool("json", false, "Output JSON")

	for _, c := range []*cobra.Command{taskAddCmd, taskUpdateCmd} {
		c.Flags().String("project", "", "Project id or name")
		c.Flags().String("supplier", "", "Supplier id or name")
		c.Flags().String("start", "", "Start time")
		c.Flags().String("end", "", "End time or duration after start")
		c.Flags().String("description", "", "Description")
		c.Flags().String("notes", "", "Notes")
	}
	taskUpdateCmd.Flags().String("title", "", "New title")
	_ = taskAddCmd.MarkFlagRequired("project")
	_ = taskAddCmd.MarkFlagRequired("supplier")
	_ = taskAddCmd.MarkFlagRequired("start")
	_ = taskAddCmd.MarkFlagRequired("end")

	taskCmd.AddCommand(taskListCmd, taskAddCmd, taskUpdateCmd, taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}
