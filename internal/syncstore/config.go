package syncstore

import (
	"log"
	"os"
	"time"
)

// Config holds coordinator tuning.
type Config struct {
	// MaxRetries is how many times a failed remote write is retried
	MaxRetries int

	// BackoffUnit scales the retry delay: retry n waits 2^n * BackoffUnit
	BackoffUnit time.Duration

	// WriteTimeout bounds a single remote upsert attempt
	WriteTimeout time.Duration

	// KeepaliveInterval is how often an idle coordinator pings the remote
	KeepaliveInterval time.Duration

	// ReconnectDelay is the wait before re-opening a dropped realtime channel
	ReconnectDelay time.Duration

	// SavedLinger is how long status stays "saved" before returning to
	// "idle". Zero keeps it at "saved".
	SavedLinger time.Duration

	// HistoryLimit is the undo depth
	HistoryLimit int

	// WatchLocal reloads the value when another process rewrites the local
	// snapshot. Only effective with a *localstore.FileStore.
	WatchLocal bool

	// Logger for coordinator activity
	Logger *log.Logger

	// Now returns the current time (tests override it)
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:        3,
		BackoffUnit:       time.Second,
		WriteTimeout:      10 * time.Second,
		KeepaliveInterval: 4 * time.Minute,
		ReconnectDelay:    5 * time.Second,
		SavedLinger:       2 * time.Second,
		HistoryLimit:      DefaultHistoryLimit,
		Logger:            log.New(os.Stderr, "[sync] ", log.LstdFlags),
		Now:               time.Now,
	}
}

// withDefaults fills zero fields from DefaultConfig. The receiver is not
// modified.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.BackoffUnit <= 0 {
		out.BackoffUnit = d.BackoffUnit
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = d.WriteTimeout
	}
	if out.KeepaliveInterval <= 0 {
		out.KeepaliveInterval = d.KeepaliveInterval
	}
	if out.ReconnectDelay <= 0 {
		out.ReconnectDelay = d.ReconnectDelay
	}
	if out.SavedLinger < 0 {
		out.SavedLinger = 0
	}
	if out.HistoryLimit <= 0 {
		out.HistoryLimit = d.HistoryLimit
	}
	if out.Logger == nil {
		out.Logger = d.Logger
	}
	if out.Now == nil {
		out.Now = d.Now
	}
	return &out
}

// retryDelay returns the wait before retry n (1-based).
func (c *Config) retryDelay(n int) time.Duration {
	return (time.Duration(1) << uint(n)) * c.BackoffUnit
}
