package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewflo/crewflo/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Fetch the latest data from the sync server",
	Long: `Fetch every collection from the sync server and report the result.

With --push the local snapshots are sent to the server instead, replacing
what is stored there. Use it after working offline: changes that could not
be synced are kept locally, but the next fetch would replace them.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		push, _ := cmd.Flags().GetBool("push")

		if !settings.CloudEnabled() {
			fmt.Printf("%s Cloud sync is not configured\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'crewflo cloud setup' to connect a sync server\n")
			return
		}

		s, err := prepareSession(false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening workspace: %v\n", err)
			os.Exit(1)
		}
		ws := s.ws

		// Captured before Start replaces them with the remote documents.
		projects := ws.Projects.Read()
		suppliers := ws.Suppliers.Read()
		tasks := ws.Tasks.Read()

		ctx := context.Background()
		if err := s.backend.Ping(ctx); err != nil {
			s.fail("sync server unreachable: %v", err)
		}
		if err := ws.Start(ctx); err != nil {
			s.fail("%v", err)
		}
		if !push {
			s.warnDiscarded()
		}

		if push {
			if ws.ReadOnly() {
				s.fail("read-only access, cannot push")
			}
			ws.Projects.Set(projects)
			ws.Suppliers.Set(suppliers)
			ws.Tasks.Set(tasks)
			fmt.Printf("%s Pushing local data to %s...\n", ui.RenderAccent("↑"), settings.Remote.URL)
		} else {
			fmt.Printf("%s Fetching from %s...\n", ui.RenderAccent("↓"), settings.Remote.URL)
		}

		flushCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := ws.Flush(flushCtx); err != nil {
			s.fail("sync failed: %v", err)
		}

		fmt.Printf("%s In sync\n", ui.RenderPass("✓"))
		fmt.Printf("   Projects: %d  Suppliers: %d  Tasks: %d\n",
			len(ws.Projects.Read()), len(ws.Suppliers.Read()), len(ws.Tasks.Read()))
		s.close()
	},
}

func init() {
	syncCmd.Flags().Bool("push", false, "Send local data to the server, replacing the remote copy")
	rootCmd.AddCommand(syncCmd)
}
