// Package remote implements the cloud side of CrewFlo synchronization.
//
// The remote contract is a single table keyed by the scoped collection key:
//
//	crewflo_sync(key TEXT PRIMARY KEY, data TEXT, updated_at TEXT)
//
// Each row holds one whole JSON document. Writes are upserts that replace
// the document; the realtime feed pushes the new document to every
// subscriber whose key filter matches.
//
// Components:
//
//	DB            SQLite-backed table (ncruces/go-sqlite3)
//	Hub           realtime fan-out, filtered by key
//	Server        HTTP + WebSocket front for DB and Hub
//	Client        Store + Feed over HTTP/WebSocket, used by client processes
//	LocalBackend  Store + Feed over an in-process DB and Hub
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Fetch when no row exists for the key.
	ErrNotFound = errors.New("remote: document not found")

	// ErrUnauthorized is returned when the server rejects the API key.
	ErrUnauthorized = errors.New("remote: unauthorized")
)

// Source tells where a Change came from.
type Source string

const (
	// SourceRemote marks a change pushed by the realtime feed or fetched
	// from the remote table.
	SourceRemote Source = "remote"
	// SourceLocal marks a change authored by this process.
	SourceLocal Source = "local"
	// SourceDisk marks a snapshot written by another process sharing the
	// local data directory.
	SourceDisk Source = "disk"
)

// Change is one document-updated event delivered by a Feed.
type Change struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
	Source    Source          `json:"-"`
}

// Store reads and writes whole documents by key.
type Store interface {
	// Fetch returns the document stored under key, or ErrNotFound.
	Fetch(ctx context.Context, key string) (json.RawMessage, error)
	// Upsert replaces the document stored under key.
	Upsert(ctx context.Context, key string, data json.RawMessage) error
}

// Feed delivers realtime document updates.
type Feed interface {
	// Subscribe opens a subscription for key. The changes channel is closed
	// when the subscription ends; a non-nil error is sent on errs first when
	// it ended abnormally. Cancelling ctx ends the subscription.
	Subscribe(ctx context.Context, key string) (changes <-chan Change, errs <-chan error, err error)
}

// Backend is a Store that also offers a Feed.
type Backend interface {
	Store
	Feed
	// ClientID identifies this process in the Origin of its own writes.
	ClientID() string
}
