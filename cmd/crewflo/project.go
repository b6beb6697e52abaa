package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewflo/crewflo/internal/schema"
	"github.com/crewflo/crewflo/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"projects"},
	GroupID: "data",
	Short:   "Manage construction projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpenSession(false)
		defer s.close()

		projects := s.ws.Projects.Read()
		if len(projects) == 0 {
			fmt.Printf("No projects yet. Add one with 'crewflo project add <name>'\n")
			return
		}
		fmt.Println(ui.ProjectTable(projects))
	},
}

var projectAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		address, _ := cmd.Flags().GetString("address")
		statusFlag, _ := cmd.Flags().GetString("status")

		status, err := schema.ParseProjectStatus(statusFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		s := mustOpenSession(false)
		p, err := s.ws.AddProject(schema.Project{Name: args[0], Address: address, Status: status})
		if err != nil {
			s.fail("%v", err)
		}
		s.close()

		fmt.Printf("%s Added project %s (%s)\n", ui.RenderPass("✓"), p.Name, ui.RenderMuted(p.ID))
	},
}

var projectUpdateCmd = &cobra.Command{
	Use:   "update <id|name>",
	Short: "Change a project's name, address or status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpenSession(false)

		found, err := findProject(s.ws.Projects.Read(), args[0])
		if err != nil {
			s.fail("%v", err)
		}
		p := *found

		if cmd.Flags().Changed("name") {
			p.Name, _ = cmd.Flags().GetString("name")
		}
		if cmd.Flags().Changed("address") {
			p.Address, _ = cmd.Flags().GetString("address")
		}
		if cmd.Flags().Changed("status") {
			raw, _ := cmd.Flags().GetString("status")
			if p.Status, err = schema.ParseProjectStatus(raw); err != nil {
				s.fail("%v", err)
			}
		}

		if err := s.ws.UpdateProject(p); err != nil {
			s.fail("%v", err)
		}
		s.close()

		fmt.Printf("%s Updated project %s\n", ui.RenderPass("✓"), p.Name)
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <id|name>",
	Short: "Delete a project",
	Long: `Delete a project. Tasks booked on it are kept and show an unknown
project until they are moved or deleted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpenSession(false)

		p, err := findProject(s.ws.Projects.Read(), args[0])
		if err != nil {
			s.fail("%v", err)
		}
		if !confirm(fmt.Sprintf("Delete project %q?", p.Name)) {
			s.close()
			fmt.Println("Cancelled")
			return
		}
		name := p.Name
		if err := s.ws.DeleteProject(p.ID); err != nil {
			s.fail("%v", err)
		}
		s.close()

		fmt.Printf("%s Deleted project %s\n", ui.RenderPass("✓"), name)
	},
}

func init() {
	projectAddCmd.Flags().String("address", "", "Site address")
	projectAddCmd.Flags().String("status", string(schema.StatusPlanning), "planning, active or completed")

	projectUpdateCmd.Flags().String("name", "", "New name")
	projectUpdateCmd.Flags().String("address", "", "New address")
	projectUpdateCmd.Flags().String("status", "", "planning, active or completed")

	projectCmd.AddCommand(projectListCmd, projectAddCmd, projectUpdateCmd, projectDeleteCmd)
	rootCmd.AddCommand(projectCmd)
}
