// Package config loads CrewFlo settings.
//
// Sources, highest priority first:
//
//	CREWFLO_* environment variables (a .env file in the working directory
//	is loaded into the environment first)
//	<data dir>/crewflo.toml, or the file given with --config
//	built-in defaults
//
// Keys use dots for nesting; the matching environment variable replaces dots
// with underscores, e.g. remote.url is CREWFLO_REMOTE_URL.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileName is the settings file looked up in the data directory.
const FileName = "crewflo.toml"

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "CREWFLO"

// MinKeyLength is the shortest remote key accepted for cloud mode.
const MinKeyLength = 20

// FileScheme prefixes a remote URL that names a sync database on this
// machine instead of a server, e.g. "file:/srv/crewflo/server.db".
const FileScheme = "file:"

// Roles.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// ErrInvalidRemote is returned when the remote URL or key is unusable.
var ErrInvalidRemote = errors.New("config: invalid remote configuration")

// Settings is the resolved configuration.
type Settings struct {
	DataDir   string
	CompanyID string
	Role      string

	Remote    RemoteSettings
	Log       LogSettings
	Sync      SyncSettings
	Server    ServerSettings
	Assistant AssistantSettings

	// File is the settings file that was read, or would be written by Save.
	File string
}

// RemoteSettings points at a crewflo server.
type RemoteSettings struct {
	URL string
	Key string
	// FromEnv is set when both URL and Key come from the environment.
	// Save never writes them to the file in that case.
	FromEnv bool
}

// LogSettings configures the log output.
type LogSettings struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Verbose    bool
}

// SyncSettings tunes the sync coordinators.
type SyncSettings struct {
	MaxRetries        int
	BackoffUnit       time.Duration
	WriteTimeout      time.Duration
	KeepaliveInterval time.Duration
	ReconnectDelay    time.Duration
	SavedLinger       time.Duration
}

// ServerSettings configures `crewflo serve`.
type ServerSettings struct {
	Addr string
	DB   string
	Key  string
}

// AssistantSettings configures `crewflo ask`.
type AssistantSettings struct {
	APIKey string
	Model  string
}

// Options controls where Load looks.
type Options struct {
	// DataDir overrides data_dir
	DataDir string
	// ConfigFile overrides <data dir>/crewflo.toml
	ConfigFile string
	// EnvFile is loaded into the environment when it exists. Defaults to ".env".
	EnvFile string
}

// DefaultDataDir returns ~/.crewflo, or ./.crewflo when the home directory
// is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crewflo"
	}
	return filepath.Join(home, ".crewflo")
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("company_id", "")
	v.SetDefault("role", RoleAdmin)
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.key", "")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.verbose", false)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.backoff_unit", time.Second)
	v.SetDefault("sync.write_timeout", 10*time.Second)
	v.SetDefault("sync.keepalive_interval", 4*time.Minute)
	v.SetDefault("sync.reconnect_delay", 5*time.Second)
	v.SetDefault("sync.saved_linger", 2*time.Second)
	v.SetDefault("server.addr", ":8787")
	v.SetDefault("server.db", "")
	v.SetDefault("server.key", "")
	v.SetDefault("assistant.api_key", "")
	v.SetDefault("assistant.model", "claude-sonnet-4-5")
}

// Load resolves settings from defaults, the settings file and the
// environment.
func Load(opts Options) (*Settings, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// load .env if it exists (ignore if it does not)
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.DataDir != "" {
		v.Set("data_dir", opts.DataDir)
	}

	file := opts.ConfigFile
	if file == "" {
		file = filepath.Join(v.GetString("data_dir"), FileName)
	}
	if _, err := os.Stat(file); err == nil {
		v.SetConfigFile(file)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat %s: %w", file, err)
	}

	s := &Settings{
		DataDir:   v.GetString("data_dir"),
		CompanyID: strings.TrimSpace(v.GetString("company_id")),
		Role:      strings.ToLower(strings.TrimSpace(v.GetString("role"))),
		File:      file,
		Remote: RemoteSettings{
			URL: strings.TrimSpace(v.GetString("remote.url")),
			Key: strings.TrimSpace(v.GetString("remote.key")),
		},
		Log: LogSettings{
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Verbose:    v.GetBool("log.verbose"),
		},
		Sync: SyncSettings{
			MaxRetries:        v.GetInt("sync.max_retries"),
			BackoffUnit:       v.GetDuration("sync.backoff_unit"),
			WriteTimeout:      v.GetDuration("sync.write_timeout"),
			KeepaliveInterval: v.GetDuration("sync.keepalive_interval"),
			ReconnectDelay:    v.GetDuration("sync.reconnect_delay"),
			SavedLinger:       v.GetDuration("sync.saved_linger"),
		},
		Server: ServerSettings{
			Addr: v.GetString("server.addr"),
			DB:   v.GetString("server.db"),
			Key:  v.GetString("server.key"),
		},
		Assistant: AssistantSettings{
			APIKey: v.GetString("assistant.api_key"),
			Model:  v.GetString("assistant.model"),
		},
	}

	s.Remote.FromEnv = os.Getenv(EnvPrefix+"_REMOTE_URL") != "" && os.Getenv(EnvPrefix+"_REMOTE_KEY") != ""
	if s.Server.DB == "" {
		s.Server.DB = filepath.Join(s.DataDir, "server.db")
	}
	if s.Role == "" {
		s.Role = RoleAdmin
	}
	return s, nil
}

// ValidateRemote checks a remote URL and key the way cloud setup does.
// A file: URL needs no key.
func ValidateRemote(url, key string) error {
	if path, ok := RemoteFile(url); ok {
		if path == "" {
			return fmt.Errorf("%w: file url needs a database path", ErrInvalidRemote)
		}
		return nil
	}
	if !strings.HasPrefix(url, "http") {
		return fmt.Errorf("%w: url must start with http", ErrInvalidRemote)
	}
	if len(key) < MinKeyLength {
		return fmt.Errorf("%w: key must be at least %d characters", ErrInvalidRemote, MinKeyLength)
	}
	return nil
}

// RemoteFile returns the database path of a file: remote URL.
func RemoteFile(url string) (string, bool) {
	path, ok := strings.CutPrefix(url, FileScheme)
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(path, "//"), true
}

// CloudEnabled reports whether a usable remote is configured.
func (s *Settings) CloudEnabled() bool {
	return ValidateRemote(s.Remote.URL, s.Remote.Key) == nil
}

// CanEdit reports whether role may mutate data. Only admins can.
func CanEdit(role string) bool {
	return strings.EqualFold(strings.TrimSpace(role), RoleAdmin)
}

// LocalDir is where collection snapshots are stored.
func (s *Settings) LocalDir() string {
	return filepath.Join(s.DataDir, "local")
}
