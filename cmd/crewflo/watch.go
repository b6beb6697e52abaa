package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewflo/crewflo/internal/remote"
	"github.com/crewflo/crewflo/internal/syncstore"
	"github.com/crewflo/crewflo/internal/ui"
	"github.com/crewflo/crewflo/internal/workspace"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Stay connected and show changes as they happen",
	Long: `Keep the workspace open, follow the sync server's realtime feed and
pick up changes written by other crewflo processes on this machine.

Commands read from stdin:
  undo      undo the most recent change
  sync      re-fetch everything and retry pending writes
  status    print the save status and counts
  quit      exit

Sending SIGUSR1 has the same effect as 'sync', e.g. after the machine
wakes up.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening workspace: %v\n", err)
			os.Exit(1)
		}
		defer s.close()

		ws := s.ws
		events := mergeEvents(ws)

		mode := "local"
		if ws.IsCloud() {
			mode = settings.Remote.URL
		}
		fmt.Printf("%s Watching %s (%s). Type 'quit' or press Ctrl+C to stop.\n",
			ui.RenderAccent("●"), companyLabel(ws.CompanyID()), mode)
		printSummary(ws)

		lines := make(chan string)
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- strings.TrimSpace(scanner.Text())
			}
			close(lines)
		}()

		resume := resumeSignals()
		defer signal.Stop(resume)

		for {
			select {
			case <-ctx.Done():
				fmt.Println()
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				printEvent(ws, ev)
			case <-resume:
				resumeWorkspace(ctx, ws)
			case line, ok := <-lines:
				if !ok {
					// stdin closed: keep following the feed until interrupted
					lines = nil
					continue
				}
				switch line {
				case "":
				case "undo", "u":
					key, err := ws.GlobalUndo()
					switch {
					case err != nil:
						fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					case key == "":
						fmt.Println("Nothing to undo")
					default:
						fmt.Printf("%s Restored %s\n", ui.RenderPass("↶"), collectionName(key))
					}
				case "sync", "s":
					resumeWorkspace(ctx, ws)
				case "status":
					printSummary(ws)
				case "quit", "q", "exit":
					return
				default:
					fmt.Printf("Unknown command %q (undo, sync, status, quit)\n", line)
				}
			}
		}
	},
}

// collectionEvent is a coordinator event tagged with its collection.
type collectionEvent struct {
	name string
	syncstore.Event
}

// mergeEvents fans the event channels of the three collections into one.
// The merged channel closes once every coordinator is closed.
func mergeEvents(ws *workspace.Workspace) <-chan collectionEvent {
	out := make(chan collectionEvent, 16)
	sources := map[string]func() (<-chan syncstore.Event, func()){
		"projects":  ws.Projects.Events,
		"suppliers": ws.Suppliers.Events,
		"tasks":     ws.Tasks.Events,
	}

	done := make(chan struct{}, len(sources))
	for name, subscribe := range sources {
		ch, _ := subscribe()
		go func(name string, ch <-chan syncstore.Event) {
			for ev := range ch {
				out <- collectionEvent{name: name, Event: ev}
			}
			done <- struct{}{}
		}(name, ch)
	}
	go func() {
		for range sources {
			<-done
		}
		close(out)
	}()
	return out
}

func printEvent(ws *workspace.Workspace, ev collectionEvent) {
	stamp := ui.RenderMuted(time.Now().Format("15:04:05"))
	switch ev.Kind {
	case syncstore.EventStatus:
		fmt.Printf("%s %-9s %s\n", stamp, ev.name, ui.RenderStatus(string(ev.Status)))
	case syncstore.EventValue:
		if ev.Source == remote.SourceLocal {
			return
		}
		origin := "another device"
		if ev.Source == remote.SourceDisk {
			origin = "another process"
		}
		fmt.Printf("%s %-9s updated by %s\n", stamp, ev.name, origin)
		if report := ui.ConflictReport(ws.Conflicts()); report != "" {
			fmt.Print(report)
		}
	}
}

func printSummary(ws *workspace.Workspace) {
	fmt.Printf("   %d projects, %d suppliers, %d tasks, sync %s\n",
		len(ws.Projects.Read()), len(ws.Suppliers.Read()), len(ws.Tasks.Read()),
		ui.RenderStatus(string(ws.GlobalStatus())))
	if report := ui.ConflictReport(ws.Conflicts()); report != "" {
		fmt.Print(report)
	}
}

func resumeWorkspace(ctx context.Context, ws *workspace.Workspace) {
	fmt.Printf("%s Resyncing...\n", ui.RenderAccent("↻"))
	if err := ws.Resume(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s Resync incomplete: %v\n", ui.RenderWarn("⚠"), err)
	}
}

func companyLabel(companyID string) string {
	if companyID == "" {
		return "the global workspace"
	}
	return companyID
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
