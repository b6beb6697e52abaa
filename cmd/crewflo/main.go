package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crewflo/crewflo/internal/config"
	"github.com/crewflo/crewflo/internal/localstore"
	"github.com/crewflo/crewflo/internal/logging"
	"github.com/crewflo/crewflo/internal/remote"
	"github.com/crewflo/crewflo/internal/syncstore"
	"github.com/crewflo/crewflo/internal/ui"
	"github.com/crewflo/crewflo/internal/workspace"
)

var (
	dataDirFlag    string
	configFileFlag string
	verboseFlag    bool
	yesFlag        bool

	settings *config.Settings
	sink     *logging.Sink
)

var rootCmd = &cobra.Command{
	Use:   "crewflo",
	Short: "Construction site scheduling for small contractors",
	Long: `CrewFlo plans construction projects, the suppliers working on them and
the tasks that book a supplier on a project for a time range.

Data is stored locally first. When a sync server is configured with
'crewflo cloud setup', every change is also pushed to the server and
changes made by other devices are pulled in.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		s, err := config.Load(config.Options{DataDir: dataDirFlag, ConfigFile: configFileFlag})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		if verboseFlag {
			s.Log.Verbose = true
		}
		settings = s
		sink = logging.Open(logging.Options{
			File:       s.Log.File,
			MaxSizeMB:  s.Log.MaxSizeMB,
			MaxBackups: s.Log.MaxBackups,
			MaxAgeDays: s.Log.MaxAgeDays,
			Verbose:    s.Log.Verbose,
		})
		ui.Init(os.Stdout)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if sink != nil {
			_ = sink.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Schedule:"},
		&cobra.Group{ID: "sync", Title: "Sync & backup:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (default ~/.crewflo)")
	rootCmd.PersistentFlags().StringVar(&configFileFlag, "config", "", "Settings file (default <data-dir>/crewflo.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log sync activity to stderr")
	rootCmd.PersistentFlags().BoolVarP(&yesFlag, "yes", "y", false, "Answer yes to confirmation prompts")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// logger returns a component logger on the shared sink.
func logger(component string) *log.Logger {
	if sink == nil {
		return log.New(os.Stderr, "["+component+"] ", log.LstdFlags)
	}
	return sink.Logger(component)
}

// syncConfig converts the sync settings.
func syncConfig(s *config.Settings, watchLocal bool) *syncstore.Config {
	c := syncstore.DefaultConfig()
	c.MaxRetries = s.Sync.MaxRetries
	c.BackoffUnit = s.Sync.BackoffUnit
	c.WriteTimeout = s.Sync.WriteTimeout
	c.KeepaliveInterval = s.Sync.KeepaliveInterval
	c.ReconnectDelay = s.Sync.ReconnectDelay
	c.SavedLinger = s.Sync.SavedLinger
	c.WatchLocal = watchLocal
	c.Logger = logger("sync")
	return c
}

// backend is what the CLI needs from a sync server connection.
type backend interface {
	remote.Backend
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// newBackend returns the configured sync backend, nil when cloud mode is
// off. A file: URL opens the sync database directly, for machines sharing
// a disk instead of running 'crewflo serve'.
func newBackend(s *config.Settings) (backend, error) {
	if !s.CloudEnabled() {
		return nil, nil
	}
	if path, ok := config.RemoteFile(s.Remote.URL); ok {
		ctx, cancel := context.WithTimeout(context.Background(), s.Sync.WriteTimeout)
		defer cancel()
		b, err := remote.OpenLocal(ctx, path, logger("remote"))
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	c, err := remote.NewClient(remote.ClientConfig{
		BaseURL: s.Remote.URL,
		APIKey:  s.Remote.Key,
		Logger:  logger("remote"),
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// session is an opened and started workspace plus what it was built from.
type session struct {
	ws      *workspace.Workspace
	local   *localstore.FileStore
	backend backend
	timeout time.Duration
}

// openSession opens the workspace of the configured company and starts its
// coordinators.
func openSession(ctx context.Context, watchLocal bool) (*session, error) {
	s, err := prepareSession(watchLocal)
	if err != nil {
		return nil, err
	}
	if err := s.ws.Start(ctx); err != nil {
		s.close()
		return nil, err
	}
	s.warnDiscarded()
	return s, nil
}

// warnDiscarded tells the user when Start replaced local changes that an
// earlier command could not sync.
func (s *session) warnDiscarded() {
	for _, key := range s.ws.Discarded() {
		fmt.Fprintf(os.Stderr, "%s Unsynced local changes to %s were replaced by the server copy\n",
			ui.RenderWarn("⚠"), collectionName(key))
		fmt.Fprintf(os.Stderr, "   The replaced copy is kept in %s\n", s.local.Path(syncstore.DiscardedKey(key)))
	}
}

// prepareSession opens the workspace from local snapshots without
// contacting the server.
func prepareSession(watchLocal bool) (*session, error) {
	local, err := localstore.Open(settings.LocalDir())
	if err != nil {
		return nil, err
	}

	b, err := newBackend(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync client: %w", err)
	}

	opts := workspace.Options{
		CompanyID: settings.CompanyID,
		Local:     local,
		Sync:      syncConfig(settings, watchLocal),
		ReadOnly:  !config.CanEdit(settings.Role),
		Logger:    logger("workspace"),
	}
	if b != nil {
		opts.Backend = b
	}

	ws, err := workspace.Open(opts)
	if err != nil {
		if b != nil {
			_ = b.Close()
		}
		return nil, err
	}

	return &session{ws: ws, local: local, backend: b, timeout: flushTimeout(settings.Sync)}, nil
}

// flushTimeout covers every attempt of a persist loop and the backoff
// between them.
func flushTimeout(s config.SyncSettings) time.Duration {
	attempts := time.Duration(s.MaxRetries + 1)
	backoff := s.BackoffUnit * time.Duration((1<<(s.MaxRetries+1))-2)
	return attempts*s.WriteTimeout + backoff + time.Second
}

// mustOpenSession is openSession for commands that cannot continue without
// a workspace.
func mustOpenSession(watchLocal bool) *session {
	s, err := openSession(context.Background(), watchLocal)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening workspace: %v\n", err)
		os.Exit(1)
	}
	return s
}

// close waits for pending remote writes, then releases everything. A write
// that could not reach the server stays in the local snapshot until
// 'crewflo sync --push'.
func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.ws.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s Changes saved locally but not synced: %v\n", ui.RenderWarn("⚠"), err)
		fmt.Fprintf(os.Stderr, "   Run 'crewflo sync --push' once the server is reachable\n")
	}
	if err := s.ws.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing workspace: %v\n", err)
	}
	if s.backend != nil {
		_ = s.backend.Close()
	}
}

// fail prints err and exits, closing s first.
func (s *session) fail(format string, args ...any) {
	s.close()
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
