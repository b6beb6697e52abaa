package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewflo/crewflo/internal/ui"
	"github.com/crewflo/crewflo/internal/workspace"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "sync",
	Short:   "Write a backup of all projects, suppliers and tasks",
	Long: `Write a backup file. Without a file name the backup is written to the
current directory as CrewFlo_Backup_<company>_<date>.json. A .yaml or .yml
extension selects YAML; "-" writes JSON to stdout.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpenSession(false)
		backup := s.ws.Export()
		s.close()

		path := workspace.BackupFilename(backup.CompanyID, time.Now())
		if len(args) == 1 {
			path = args[0]
		}

		if path == "-" {
			if err := workspace.EncodeBackup(os.Stdout, backup, workspace.FormatJSON); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing backup: %v\n", err)
				os.Exit(1)
			}
			return
		}

		if err := writeBackup(path, backup); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing backup: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Backup written to %s\n", ui.RenderPass("✓"), path)
		fmt.Printf("   Projects: %d  Suppliers: %d  Tasks: %d\n",
			len(backup.Projects), len(backup.Suppliers), len(backup.Tasks))
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "sync",
	Short:   "Replace all data with the contents of a backup",
	Long: `Replace projects, suppliers and tasks with the contents of a backup
file. In cloud mode the imported data is pushed to the server and reaches
every connected device.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		backup, err := workspace.DecodeBackup(f, workspace.FormatFromPath(args[0]))
		_ = f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		title := fmt.Sprintf("Replace all data with %s (%d projects, %d suppliers, %d tasks)?",
			filepath.Base(args[0]), len(backup.Projects), len(backup.Suppliers), len(backup.Tasks))
		if !confirm(title) {
			fmt.Println("Cancelled")
			return
		}

		s := mustOpenSession(false)
		if err := s.ws.Import(backup); err != nil {
			s.fail("%v", err)
		}
		s.close()

		fmt.Printf("%s Imported %s\n", ui.RenderPass("✓"), args[0])
	},
}

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "sync",
	Short:   "Delete all local data",
	Long: `Delete every local snapshot, for all companies. Data on the sync
server is not touched: the next command fetches it again, or starts over
with the demo data when working locally.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if !confirm("Delete all local data?") {
			fmt.Println("Cancelled")
			return
		}

		s, err := prepareSession(false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening workspace: %v\n", err)
			os.Exit(1)
		}
		if err := s.ws.Reset(); err != nil {
			s.fail("%v", err)
		}
		s.close()

		fmt.Printf("%s Local data deleted\n", ui.RenderPass("✓"))
	},
}

func writeBackup(path string, backup *workspace.Backup) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := workspace.EncodeBackup(f, backup, workspace.FormatFromPath(path)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd, resetCmd)
}
