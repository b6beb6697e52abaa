package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/crewflo/crewflo/internal/config"
	"github.com/crewflo/crewflo/internal/ui"
	"github.com/crewflo/crewflo/internal/workspace"
)

var cloudCmd = &cobra.Command{
	Use:     "cloud",
	GroupID: "sync",
	Short:   "Connect to or disconnect from a sync server",
}

var cloudSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Connect to a sync server",
	Long: `Store the sync server URL, API key and company id in the settings file.

The company id scopes all data: devices using the same id share the same
projects, suppliers and tasks. Without --company a new id is generated.

When run in a terminal without flags, a form asks for the values.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		url, _ := cmd.Flags().GetString("url")
		key, _ := cmd.Flags().GetString("key")
		company, _ := cmd.Flags().GetString("company")
		role, _ := cmd.Flags().GetString("role")

		if url == "" && key == "" && term.IsTerminal(int(os.Stdin.Fd())) {
			url, key, company = settings.Remote.URL, settings.Remote.Key, settings.CompanyID
			if err := cloudForm(&url, &key, &company); err != nil {
				fmt.Println("Cancelled")
				return
			}
		}
		if strings.TrimSpace(company) == "" {
			company = config.GenerateCompanyID(settings.CompanyID)
		}
		if err := settings.ConnectCloud(url, key, company); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if role != "" {
			settings.Role = strings.ToLower(role)
		}

		if err := checkRemote(settings); err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot reach sync server: %v\n", err)
			os.Exit(1)
		}
		if err := config.Save(settings); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving settings: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Connected to %s\n", ui.RenderPass("✓"), settings.Remote.URL)
		fmt.Printf("   Company: %s\n", settings.CompanyID)
		fmt.Printf("   Role:    %s\n", settings.Role)
		fmt.Printf("   Settings: %s\n", settings.File)
		if settings.Remote.FromEnv {
			fmt.Printf("   Server URL and key come from the environment and were not saved\n")
		}
	},
}

var cloudDisconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Switch back to local-only storage",
	Long: `Forget the sync server and company id. Local snapshots of the company
stay on disk; the global local workspace is used from now on.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if !settings.CloudEnabled() && settings.CompanyID == "" {
			fmt.Println("Not connected")
			return
		}
		if !confirm("Disconnect from the sync server?") {
			fmt.Println("Cancelled")
			return
		}
		settings.DisconnectCloud()
		if err := config.Save(settings); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving settings: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Disconnected, working locally\n", ui.RenderPass("✓"))
		if settings.Remote.FromEnv {
			fmt.Printf("%s CREWFLO_REMOTE_URL and CREWFLO_REMOTE_KEY are still set\n", ui.RenderWarn("⚠"))
		}
	},
}

var cloudCompaniesCmd = &cobra.Command{
	Use:   "companies",
	Short: "List the company ids stored on the sync server",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		b, err := newBackend(settings)
		if err != nil || b == nil {
			fmt.Fprintf(os.Stderr, "Error: cloud sync is not configured\n")
			os.Exit(1)
		}
		defer b.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		keys, err := b.Keys(ctx, "")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		companies := companiesFromKeys(keys)
		if len(companies) == 0 {
			fmt.Println("No companies on the server yet")
			return
		}
		for _, c := range companies {
			marker := " "
			if c == settings.CompanyID {
				marker = ui.RenderAccent("*")
			}
			fmt.Printf("%s %s\n", marker, c)
		}
	},
}

// companiesFromKeys extracts the tenant prefixes of the task collection
// keys, e.g. "Acme-4KQ9ZT" from "Acme-4KQ9ZT_crewflo_tasks".
func companiesFromKeys(keys []string) []string {
	suffix := "_" + workspace.KeyTasks
	var out []string
	for _, k := range keys {
		if company, ok := strings.CutSuffix(k, suffix); ok && company != "" {
			out = append(out, company)
		}
	}
	sort.Strings(out)
	return out
}

func cloudForm(url, key, company *string) error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Sync server URL").
				Description("Or file:<path> to share a sync database on this machine").
				Placeholder("https://sync.example.com").
				Value(url),
			huh.NewInput().
				Title("API key").
				EchoMode(huh.EchoModePassword).
				Value(key).
				Validate(func(s string) error {
					if _, ok := config.RemoteFile(strings.TrimSpace(*url)); ok {
						return nil
					}
					if len(strings.TrimSpace(s)) < config.MinKeyLength {
						return fmt.Errorf("at least %d characters", config.MinKeyLength)
					}
					return nil
				}),
			huh.NewInput().
				Title("Company id").
				Description("Leave empty to create a new company").
				Value(company),
		),
	).Run()
}

// checkRemote verifies that the configured server accepts the key.
func checkRemote(s *config.Settings) error {
	b, err := newBackend(s)
	if err != nil {
		return err
	}
	if b == nil {
		return config.ErrInvalidRemote
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_, err = b.Keys(ctx, s.CompanyID)
	return err
}

func init() {
	cloudSetupCmd.Flags().String("url", "", "Sync server URL")
	cloudSetupCmd.Flags().String("key", "", "API key")
	cloudSetupCmd.Flags().String("company", "", "Company id to join")
	cloudSetupCmd.Flags().String("role", "", "admin or viewer")

	cloudCmd.AddCommand(cloudSetupCmd, cloudDisconnectCmd, cloudCompaniesCmd)
	rootCmd.AddCommand(cloudCmd)
}
