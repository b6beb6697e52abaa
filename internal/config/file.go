package config

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// fileSettings is the on-disk shape of crewflo.toml. Durations are written
// as Go duration strings ("5s") which viper parses back.
type fileSettings struct {
	CompanyID string         `toml:"company_id,omitempty"`
	Role      string         `toml:"role,omitempty"`
	Remote    *fileRemote    `toml:"remote,omitempty"`
	Log       *fileLog       `toml:"log,omitempty"`
	Sync      *fileSync      `toml:"sync,omitempty"`
	Server    *fileServer    `toml:"server,omitempty"`
	Assistant *fileAssistant `toml:"assistant,omitempty"`
}

type fileRemote struct {
	URL string `toml:"url"`
	Key string `toml:"key"`
}

type fileLog struct {
	File      string `toml:"file,omitempty"`
	MaxSizeMB int    `toml:"max_size_mb,omitempty"`
	Verbose   bool   `toml:"verbose,omitempty"`
}

type fileSync struct {
	MaxRetries        int    `toml:"max_retries"`
	BackoffUnit       string `toml:"backoff_unit"`
	WriteTimeout      string `toml:"write_timeout"`
	KeepaliveInterval string `toml:"keepalive_interval"`
	ReconnectDelay    string `toml:"reconnect_delay"`
	SavedLinger       string `toml:"saved_linger"`
}

type fileServer struct {
	Addr string `toml:"addr,omitempty"`
	DB   string `toml:"db,omitempty"`
	Key  string `toml:"key,omitempty"`
}

type fileAssistant struct {
	APIKey string `toml:"api_key,omitempty"`
	Model  string `toml:"model,omitempty"`
}

// Save writes s to s.File. Remote credentials coming from the environment
// are not written.
func Save(s *Settings) error {
	if s.File == "" {
		return fmt.Errorf("settings file path is empty")
	}

	out := fileSettings{
		CompanyID: s.CompanyID,
		Role:      s.Role,
		Log: &fileLog{
			File:      s.Log.File,
			MaxSizeMB: s.Log.MaxSizeMB,
			Verbose:   s.Log.Verbose,
		},
		Sync: &fileSync{
			MaxRetries:        s.Sync.MaxRetries,
			BackoffUnit:       s.Sync.BackoffUnit.String(),
			WriteTimeout:      s.Sync.WriteTimeout.String(),
			KeepaliveInterval: s.Sync.KeepaliveInterval.String(),
			ReconnectDelay:    s.Sync.ReconnectDelay.String(),
			SavedLinger:       s.Sync.SavedLinger.String(),
		},
		Server: &fileServer{Addr: s.Server.Addr, DB: s.Server.DB, Key: s.Server.Key},
	}
	if !s.Remote.FromEnv && (s.Remote.URL != "" || s.Remote.Key != "") {
		out.Remote = &fileRemote{URL: s.Remote.URL, Key: s.Remote.Key}
	}
	if s.Assistant.APIKey != "" || s.Assistant.Model != "" {
		out.Assistant = &fileAssistant{APIKey: s.Assistant.APIKey, Model: s.Assistant.Model}
	}

	if err := os.MkdirAll(filepath.Dir(s.File), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.File), ".crewflo-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := toml.NewEncoder(tmp).Encode(out); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.File); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.File, err)
	}
	return nil
}

// ConnectCloud validates and stores remote credentials and the company id.
func (s *Settings) ConnectCloud(url, key, companyID string) error {
	url, key = strings.TrimSpace(url), strings.TrimSpace(key)
	if s.Remote.FromEnv {
		// Credentials are pinned by the environment; only the scope changes.
		url, key = s.Remote.URL, s.Remote.Key
	}
	if err := ValidateRemote(url, key); err != nil {
		return err
	}
	s.Remote.URL = url
	s.Remote.Key = key
	s.CompanyID = strings.TrimSpace(companyID)
	return nil
}

// DisconnectCloud drops the stored credentials and company id.
func (s *Settings) DisconnectCloud() {
	if !s.Remote.FromEnv {
		s.Remote.URL = ""
		s.Remote.Key = ""
	}
	s.CompanyID = ""
}

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateCompanyID derives a fresh company id from the current one: the
// letters of its prefix (up to the first '-'), or "Equipe", followed by six
// random characters, e.g. "Acme-4KQ9ZT".
func GenerateCompanyID(current string) string {
	prefix := strings.Split(current, "-")[0]
	var b strings.Builder
	for _, r := range prefix {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if clean == "" {
		clean = "Equipe"
	}
	return clean + "-" + randomString(6)
}

func randomString(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand failed: %v", err))
		}
		out[i] = idAlphabet[v.Int64()]
	}
	return string(out)
}
