// Package workspace composes the three CrewFlo collections.
//
// A Workspace owns one sync coordinator per collection, all scoped to the
// same tenant, and implements the operations that span collections: global
// undo, aggregated save status, conflict detection, backup and reset.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/crewflo/crewflo/internal/conflict"
	"github.com/crewflo/crewflo/internal/localstore"
	"github.com/crewflo/crewflo/internal/remote"
	"github.com/crewflo/crewflo/internal/schema"
	"github.com/crewflo/crewflo/internal/syncstore"
)

// Collection base keys. The tenant prefix is added by localstore.ScopedKey.
const (
	KeyProjects  = "crewflo_projects"
	KeySuppliers = "crewflo_suppliers"
	KeyTasks     = "crewflo_tasks"
)

var (
	// ErrReadOnly is returned by mutations on a read-only workspace.
	ErrReadOnly = errors.New("workspace: read-only access")

	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = errors.New("workspace: record not found")
)

// Options configures Open.
type Options struct {
	// CompanyID scopes every key. Empty means the unscoped global keys.
	CompanyID string

	// Local is where snapshots are persisted (required)
	Local localstore.Store

	// Backend enables cloud mode when non-nil
	Backend remote.Backend

	// Sync tunes the coordinators. Nil uses syncstore.DefaultConfig.
	Sync *syncstore.Config

	// ReadOnly rejects every mutation with ErrReadOnly
	ReadOnly bool

	// Now seeds the demo task and timestamps backups
	Now func() time.Time

	// Logger for workspace activity
	Logger *log.Logger
}

// Workspace holds the projects, suppliers and tasks of one tenant.
type Workspace struct {
	Projects  *syncstore.Coordinator[[]schema.Project]
	Suppliers *syncstore.Coordinator[[]schema.Supplier]
	Tasks     *syncstore.Coordinator[[]schema.Task]

	companyID string
	local     localstore.Store
	backend   remote.Backend
	readOnly  bool
	now       func() time.Time
	logger    *log.Logger
}

// Open builds the three coordinators, each seeded from its local snapshot
// or the demo data. Call Start to connect them to the remote side.
func Open(opts Options) (*Workspace, error) {
	if opts.Local == nil {
		return nil, fmt.Errorf("local store is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	w := &Workspace{
		companyID: opts.CompanyID,
		local:     opts.Local,
		backend:   opts.Backend,
		readOnly:  opts.ReadOnly,
		now:       opts.Now,
		logger:    opts.Logger,
	}

	var err error
	w.Projects, err = syncstore.New(w.key(KeyProjects), schema.DefaultProjects(), opts.Local, opts.Backend, opts.Sync)
	if err != nil {
		return nil, fmt.Errorf("failed to open projects: %w", err)
	}
	w.Suppliers, err = syncstore.New(w.key(KeySuppliers), schema.DefaultSuppliers(), opts.Local, opts.Backend, opts.Sync)
	if err != nil {
		_ = w.Projects.Close()
		return nil, fmt.Errorf("failed to open suppliers: %w", err)
	}
	w.Tasks, err = syncstore.New(w.key(KeyTasks), schema.DefaultTasks(opts.Now()), opts.Local, opts.Backend, opts.Sync)
	if err != nil {
		_ = w.Projects.Close()
		_ = w.Suppliers.Close()
		return nil, fmt.Errorf("failed to open tasks: %w", err)
	}
	return w, nil
}

func (w *Workspace) key(base string) string {
	return localstore.ScopedKey(w.companyID, base)
}

// CompanyID returns the tenant scope.
func (w *Workspace) CompanyID() string {
	return w.companyID
}

// IsCloud reports whether the workspace syncs with a remote backend.
func (w *Workspace) IsCloud() bool {
	return w.backend != nil
}

// ReadOnly reports whether mutations are rejected.
func (w *Workspace) ReadOnly() bool {
	return w.readOnly
}

func (w *Workspace) checkWritable() error {
	if w.readOnly {
		return ErrReadOnly
	}
	return nil
}

// Start loads remote state and opens the realtime feed of every collection.
func (w *Workspace) Start(ctx context.Context) error {
	if err := w.Projects.Start(ctx); err != nil {
		return fmt.Errorf("projects: %w", err)
	}
	if err := w.Suppliers.Start(ctx); err != nil {
		return fmt.Errorf("suppliers: %w", err)
	}
	if err := w.Tasks.Start(ctx); err != nil {
		return fmt.Errorf("tasks: %w", err)
	}
	return nil
}

// Discarded returns the keys of the collections whose unsynced local
// changes were replaced by the remote document on Start.
func (w *Workspace) Discarded() []string {
	var keys []string
	if w.Projects.Discarded() {
		keys = append(keys, w.Projects.Key())
	}
	if w.Suppliers.Discarded() {
		keys = append(keys, w.Suppliers.Key())
	}
	if w.Tasks.Discarded() {
		keys = append(keys, w.Tasks.Key())
	}
	return keys
}

// Resume re-fetches every collection and flushes pending writes.
func (w *Workspace) Resume(ctx context.Context) error {
	return errors.Join(
		w.Projects.Resume(ctx),
		w.Suppliers.Resume(ctx),
		w.Tasks.Resume(ctx),
	)
}

// Flush waits for in-flight remote writes of every collection.
func (w *Workspace) Flush(ctx context.Context) error {
	return errors.Join(
		w.Projects.Flush(ctx),
		w.Suppliers.Flush(ctx),
		w.Tasks.Flush(ctx),
	)
}

// Close stops every coordinator.
func (w *Workspace) Close() error {
	return errors.Join(
		w.Projects.Close(),
		w.Suppliers.Close(),
		w.Tasks.Close(),
	)
}

// CanUndo reports whether any collection has history.
func (w *Workspace) CanUndo() bool {
	return w.Projects.CanUndo() || w.Suppliers.CanUndo() || w.Tasks.CanUndo()
}

// GlobalUndo undoes the most recently modified collection that has history.
// Ties go to tasks, then projects, then suppliers. It returns the base key
// of the collection that was undone, or "" when nothing was.
func (w *Workspace) GlobalUndo() (string, error) {
	if err := w.checkWritable(); err != nil {
		return "", err
	}

	candidates := []struct {
		key  string
		coll interface {
			CanUndo() bool
			LastModified() time.Time
			Undo() bool
		}
	}{
		{KeyTasks, w.Tasks},
		{KeyProjects, w.Projects},
		{KeySuppliers, w.Suppliers},
	}

	best := -1
	var latest time.Time
	for i, c := range candidates {
		if !c.coll.CanUndo() {
			continue
		}
		if mod := c.coll.LastModified(); best < 0 || mod.After(latest) {
			best, latest = i, mod
		}
	}
	if best < 0 {
		return "", nil
	}
	if !candidates[best].coll.Undo() {
		return "", nil
	}
	return candidates[best].key, nil
}

// GlobalStatus merges the three collection statuses.
func (w *Workspace) GlobalStatus() syncstore.Status {
	return MergeStatus(w.Projects.Status(), w.Suppliers.Status(), w.Tasks.Status())
}

// MergeStatus returns the most significant status: error, then saving, then
// saved, then idle.
func MergeStatus(statuses ...syncstore.Status) syncstore.Status {
	rank := map[syncstore.Status]int{
		syncstore.StatusIdle:   0,
		syncstore.StatusSaved:  1,
		syncstore.StatusSaving: 2,
		syncstore.StatusError:  3,
	}
	out := syncstore.StatusIdle
	for _, s := range statuses {
		if rank[s] > rank[out] {
			out = s
		}
	}
	return out
}

// Conflicts runs the conflict detector over the current collections.
func (w *Workspace) Conflicts() []schema.Conflict {
	return conflict.Detect(w.Tasks.Read(), w.Suppliers.Read(), w.Projects.Read())
}

// Reset wipes the local snapshots of every collection. Remote data is left
// untouched. The workspace must be closed and reopened afterwards, which
// brings back the remote documents or the demo data.
func (w *Workspace) Reset() error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	if err := w.local.Clear(); err != nil {
		return fmt.Errorf("failed to clear local data: %w", err)
	}
	w.logger.Printf("cleared local data for %s", displayCompany(w.companyID))
	return nil
}

func displayCompany(companyID string) string {
	if companyID == "" {
		return "Global"
	}
	return companyID
}
