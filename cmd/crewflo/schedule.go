package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewflo/crewflo/internal/conflict"
	"github.com/crewflo/crewflo/internal/ui"
	"github.com/crewflo/crewflo/internal/workspace"
)

var undoCmd = &cobra.Command{
	Use:     "undo",
	GroupID: "data",
	Short:   "Undo the most recent change",
	Long: `Restore the collection (projects, suppliers or tasks) that was changed
most recently to its previous value. Each collection remembers its last
20 values; the history lives in the current process, so undo reverts
changes made by this invocation or by a running 'crewflo watch'.

With --steps N, up to N changes are undone.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		steps, _ := cmd.Flags().GetInt("steps")
		if steps < 1 {
			fmt.Fprintf(os.Stderr, "Error: --steps must be positive\n")
			os.Exit(1)
		}

		s := mustOpenSession(false)
		undone := 0
		for i := 0; i < steps; i++ {
			key, err := s.ws.GlobalUndo()
			if err != nil {
				s.fail("%v", err)
			}
			if key == "" {
				break
			}
			fmt.Printf("%s Restored %s\n", ui.RenderPass("↶"), collectionName(key))
			undone++
		}
		s.close()

		if undone == 0 {
			fmt.Println("Nothing to undo")
		}
	},
}

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	GroupID: "data",
	Short:   "List suppliers booked twice at the same time",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		s := mustOpenSession(false)
		conflicts := s.ws.Conflicts()
		s.close()

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if conflicts == nil {
				fmt.Println("[]")
				return
			}
			_ = enc.Encode(conflicts)
			return
		}
		if len(conflicts) == 0 {
			fmt.Printf("%s No scheduling conflicts\n", ui.RenderPass("✓"))
			return
		}
		fmt.Print(ui.ConflictReport(conflicts))

		bySupplier := conflict.BySupplier(conflicts)
		names := make([]string, 0, len(bySupplier))
		for name := range bySupplier {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Printf("\nPer supplier:\n")
		for _, name := range names {
			fmt.Printf("  %s: %d\n", name, len(bySupplier[name]))
		}
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show storage mode, company and sync state",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpenSession(false)
		defer s.close()

		ws := s.ws
		company := ws.CompanyID()
		if company == "" {
			company = ui.RenderMuted("(none)")
		}

		fmt.Printf("\n%s CrewFlo status\n\n", ui.RenderAccent("●"))
		if ws.IsCloud() {
			fmt.Printf("   Mode:      cloud (%s)\n", settings.Remote.URL)
		} else {
			fmt.Printf("   Mode:      local only\n")
		}
		fmt.Printf("   Company:   %s\n", company)
		fmt.Printf("   Role:      %s\n", settings.Role)
		fmt.Printf("   Data:      %s\n", settings.LocalDir())
		fmt.Printf("   Sync:      %s\n\n", ui.RenderStatus(string(ws.GlobalStatus())))

		fmt.Printf("   Projects:  %d\n", len(ws.Projects.Read()))
		fmt.Printf("   Suppliers: %d\n", len(ws.Suppliers.Read()))
		fmt.Printf("   Tasks:     %d\n", len(ws.Tasks.Read()))
		if n := len(ws.Conflicts()); n > 0 {
			fmt.Printf("   Conflicts: %s\n", ui.RenderFail(fmt.Sprint(n)))
		}
		fmt.Println()
	},
}

var emailCmd = &cobra.Command{
	Use:     "email",
	GroupID: "data",
	Short:   "Print a mailto: link addressed to every supplier",
	Long: `Print a mailto: link that sends the site schedule to every supplier
email address in bcc. Pass the link to your mail client, e.g.

  xdg-open "$(crewflo email)"`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpenSession(false)
		suppliers := s.ws.Suppliers.Read()
		s.close()

		fmt.Println(workspace.MailtoLink(suppliers, time.Now()))
	},
}

// collectionName turns a collection key, scoped or not, into a display name.
func collectionName(key string) string {
	if i := strings.LastIndex(key, "crewflo_"); i >= 0 {
		return key[i+len("crewflo_"):]
	}
	return key
}

func init() {
	undoCmd.Flags().Int("steps", 1, "Number of changes to undo")
	conflictsCmd.Flags().Bool("json", false, "Output JSON")

	rootCmd.AddCommand(undoCmd, conflictsCmd, statusCmd, emailCmd)
}
