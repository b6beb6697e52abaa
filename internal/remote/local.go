package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// errSubscriptionDropped reports that the hub ended a subscription it was
// not asked to end (slow consumer or hub shutdown).
var errSubscriptionDropped = errors.New("remote: subscription dropped")

// LocalBackend is a Backend over an in-process DB and Hub. Several backends
// may share one DB and Hub; each gets its own client id, which makes them
// behave like separate client processes.
//
// Processes sharing a database file through OpenLocal each have their own
// hub, so they see each other's writes on fetch and keepalive only.
type LocalBackend struct {
	db       *DB
	hub      *Hub
	clientID string
	owned    bool
}

// NewLocalBackend creates a backend with a fresh client id. The caller keeps
// ownership of db and hub.
func NewLocalBackend(db *DB, hub *Hub) *LocalBackend {
	return &LocalBackend{db: db, hub: hub, clientID: uuid.NewString()}
}

// OpenLocal opens the sync database at path, creating it and its schema when
// missing. Close releases the database.
func OpenLocal(ctx context.Context, path string, logger *log.Logger) (*LocalBackend, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	b := NewLocalBackend(db, NewHub(logger))
	b.owned = true
	return b, nil
}

// Close shuts down the hub and database opened by OpenLocal. It does nothing
// for backends built with NewLocalBackend.
func (b *LocalBackend) Close() error {
	if !b.owned {
		return nil
	}
	b.owned = false
	b.hub.Close()
	return b.db.Close()
}

// Keys lists the stored keys starting with prefix.
func (b *LocalBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	return b.db.Keys(ctx, prefix)
}

// Ping checks that the database answers.
func (b *LocalBackend) Ping(ctx context.Context) error {
	return b.db.Ping(ctx)
}

// ClientID implements Backend.
func (b *LocalBackend) ClientID() string {
	return b.clientID
}

// Fetch implements Store.
func (b *LocalBackend) Fetch(ctx context.Context, key string) (json.RawMessage, error) {
	row, err := b.db.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return row.Data, nil
}

// Upsert implements Store and publishes the new document on the hub.
func (b *LocalBackend) Upsert(ctx context.Context, key string, data json.RawMessage) error {
	row, err := b.db.Upsert(ctx, key, data)
	if err != nil {
		return err
	}
	b.hub.Publish(Change{Key: key, Data: row.Data, Origin: b.clientID, UpdatedAt: row.UpdatedAt})
	return nil
}

// Subscribe implements Feed.
func (b *LocalBackend) Subscribe(ctx context.Context, key string) (<-chan Change, <-chan error, error) {
	if key == "" {
		return nil, nil, fmt.Errorf("key cannot be empty")
	}

	sub := b.hub.Subscribe(key)
	changes := make(chan Change)
	errs := make(chan error, 1)

	go func() {
		defer close(changes)
		defer sub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case change, ok := <-sub.C:
				if !ok {
					errs <- errSubscriptionDropped
					return
				}
				change.Source = SourceRemote
				select {
				case changes <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return changes, errs, nil
}
