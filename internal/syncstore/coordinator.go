// Package syncstore keeps one collection consistent across the local
// snapshot, the in-memory value and the remote table.
//
// A Coordinator is local-first: every mutation is applied in memory and
// saved to local storage before the remote write is even attempted. The
// remote write runs in the background with retry and exponential backoff,
// while a realtime subscription pulls in changes made by other clients.
//
//	Write ──► memory ──► local snapshot ──► upsert (retry 2s, 4s, 8s)
//	                                           │
//	feed ◄──────────── other clients ◄─────────┘
//
// Undo history holds encoded snapshots and only ever records mutations made
// through Write, Set or Undo. Values that arrive from the remote side or from
// another process sharing the data directory never enter it.
package syncstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/crewflo/crewflo/internal/localstore"
	"github.com/crewflo/crewflo/internal/remote"
)

var (
	// ErrClosed is returned by operations on a closed coordinator.
	ErrClosed = errors.New("syncstore: coordinator closed")

	// ErrPersistFailed is returned by Flush when the remote write gave up
	// and the value is still pending.
	ErrPersistFailed = errors.New("syncstore: remote write failed")
)

// Status describes the remote persistence state of a collection.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// EventKind distinguishes coordinator events.
type EventKind int

const (
	// EventStatus reports a status transition.
	EventStatus EventKind = iota
	// EventValue reports that the current value changed.
	EventValue
)

// Event is sent to listeners registered with Events.
type Event struct {
	Key    string
	Kind   EventKind
	Status Status
	Source remote.Source
}

// Coordinator owns one collection of type T.
type Coordinator[T any] struct {
	key     string
	local   localstore.Store
	backend remote.Backend
	config  *Config
	logger  *log.Logger
	history *History

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	value        T
	encoded      []byte
	lastModified time.Time
	status       Status
	lastErr      error
	pending      []byte
	writeGen     uint64
	cancelWrite  context.CancelFunc
	persistDone  chan struct{}
	statusSeq    uint64
	lingerTimer  *time.Timer
	watcher      *localstore.Watcher
	started      bool
	closed       bool

	// unsynced mirrors the marker left on disk while a write has not
	// reached the remote table. It survives the process.
	unsynced  bool
	discarded bool

	listenMu        sync.Mutex
	listeners       map[int]chan Event
	nextListener    int
	listenersClosed bool
}

// New creates a coordinator for key, seeded from the local snapshot when one
// exists and decodes cleanly, otherwise from initial. A nil backend runs the
// coordinator in offline mode.
func New[T any](key string, initial T, local localstore.Store, backend remote.Backend, config *Config) (*Coordinator[T], error) {
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}
	if local == nil {
		return nil, fmt.Errorf("local store cannot be nil")
	}

	encoded, err := json.Marshal(initial)
	if err != nil {
		return nil, fmt.Errorf("failed to encode initial value: %w", err)
	}

	cfg := config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator[T]{
		key:       key,
		local:     local,
		backend:   backend,
		config:    cfg,
		logger:    cfg.Logger,
		history:   NewHistory(cfg.HistoryLimit),
		ctx:       ctx,
		cancel:    cancel,
		value:     initial,
		encoded:   encoded,
		status:    StatusIdle,
		listeners: make(map[int]chan Event),
	}
	c.loadLocal()
	if backend != nil {
		_, c.unsynced, _ = local.Load(unsyncedKey(key))
	}
	return c, nil
}

func (c *Coordinator[T]) loadLocal() {
	data, ok, err := c.local.Load(c.key)
	if err != nil {
		c.logger.Printf("failed to read local snapshot %s: %v", c.key, err)
		return
	}
	if !ok {
		return
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Printf("ignoring corrupt local snapshot %s: %v", c.key, err)
		return
	}
	c.value = v
	c.encoded = data
}

// unsyncedKey marks a collection whose last local write has not been
// confirmed by the remote table.
func unsyncedKey(key string) string {
	return key + ".unsynced"
}

// DiscardedKey is where a snapshot replaced by the remote document on start
// is kept.
func DiscardedKey(key string) string {
	return key + ".discarded"
}

// Key returns the scoped storage key.
func (c *Coordinator[T]) Key() string {
	return c.key
}

// IsCloud reports whether a remote backend is attached.
func (c *Coordinator[T]) IsCloud() bool {
	return c.backend != nil
}

// Read returns the current value. Callers must treat it as read-only;
// mutations go through Write.
func (c *Coordinator[T]) Read() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Status returns the current persistence status.
func (c *Coordinator[T]) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the error of the last failed remote attempt, if any.
func (c *Coordinator[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Pending reports whether a value is waiting to reach the remote table.
func (c *Coordinator[T]) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// CanUndo reports whether Undo has a snapshot to restore.
func (c *Coordinator[T]) CanUndo() bool {
	return c.history.Len() > 0
}

// Discarded reports whether Start replaced local changes that never reached
// the remote table. The replaced snapshot is kept in the local store under
// DiscardedKey.
func (c *Coordinator[T]) Discarded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discarded
}

// LastModified returns the time of the last local mutation, zero if none.
func (c *Coordinator[T]) LastModified() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastModified
}

// Start opens the realtime subscription, loads remote state, seeds the
// remote row when it does not exist yet and starts the keepalive. Changes
// arriving during the initial fetch are applied after it. A failing initial
// fetch is logged, not returned: the coordinator keeps working offline until
// the feed reconnects.
func (c *Coordinator[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("coordinator for %s already started", c.key)
	}
	c.started = true
	c.mu.Unlock()

	if c.config.WatchLocal {
		if fs, ok := c.local.(*localstore.FileStore); ok {
			c.startWatcher(fs)
		}
	}

	if c.backend == nil {
		return nil
	}

	changes, errs, subErr := c.backend.Subscribe(c.ctx, c.key)

	if err := c.refresh(ctx, true); err != nil {
		c.logger.Printf("initial fetch of %s failed: %v", c.key, err)
	}

	c.wg.Add(2)
	go c.subscribeLoop(changes, errs, subErr)
	go c.keepaliveLoop()
	return nil
}

// Write applies update to the current value. The new value is saved locally
// before Write returns; the remote write happens in the background. update
// must return a new value rather than mutate its argument, and must not call
// back into the coordinator.
func (c *Coordinator[T]) Write(update func(T) T) {
	c.mu.Lock()
	next := update(c.value)
	data, err := json.Marshal(next)
	if err != nil {
		c.mu.Unlock()
		c.logger.Printf("dropping write to %s: %v", c.key, err)
		return
	}
	c.history.Push(c.encoded)
	c.commitLocked(next, data)
	c.mu.Unlock()

	c.emit(Event{Key: c.key, Kind: EventValue, Source: remote.SourceLocal})
}

// Set replaces the current value.
func (c *Coordinator[T]) Set(v T) {
	c.Write(func(T) T { return v })
}

// Undo restores the most recent snapshot through the full persist path.
// It returns false when there is nothing to undo.
func (c *Coordinator[T]) Undo() bool {
	c.mu.Lock()
	snap, ok := c.history.Pop()
	if !ok {
		c.mu.Unlock()
		return false
	}

	var v T
	if err := json.Unmarshal(snap, &v); err != nil {
		c.mu.Unlock()
		c.logger.Printf("discarding undo snapshot for %s: %v", c.key, err)
		return false
	}
	c.commitLocked(v, snap)
	c.mu.Unlock()

	c.emit(Event{Key: c.key, Kind: EventValue, Source: remote.SourceLocal})
	return true
}

func (c *Coordinator[T]) commitLocked(v T, data []byte) {
	c.value = v
	c.encoded = data
	c.lastModified = c.config.Now()

	if err := c.local.Save(c.key, data); err != nil {
		c.logger.Printf("failed to save local snapshot %s: %v", c.key, err)
	}
	c.schedulePersistLocked(data)
}

// Resume re-fetches the remote document and flushes any pending write.
// Call it when the process regains attention after being idle.
func (c *Coordinator[T]) Resume(ctx context.Context) error {
	if c.backend == nil {
		return nil
	}

	err := c.refresh(ctx, false)

	c.mu.Lock()
	if c.pending != nil {
		c.schedulePersistLocked(c.pending)
	}
	c.mu.Unlock()
	return err
}

// Flush waits until no remote write is in flight. It returns
// ErrPersistFailed when the last write gave up and is still pending.
func (c *Coordinator[T]) Flush(ctx context.Context) error {
	for {
		c.mu.Lock()
		done := c.persistDone
		pending := c.pending != nil
		lastErr := c.lastErr
		c.mu.Unlock()

		if done == nil {
			if pending {
				if lastErr != nil {
					return fmt.Errorf("%w: %s: %v", ErrPersistFailed, c.key, lastErr)
				}
				return fmt.Errorf("%w: %s", ErrPersistFailed, c.key)
			}
			return nil
		}

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the subscription, keepalive, local watcher and any retry
// loop. A write still waiting for a retry is abandoned; it remains in the
// local snapshot.
func (c *Coordinator[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.lingerTimer != nil {
		c.lingerTimer.Stop()
		c.lingerTimer = nil
	}
	w := c.watcher
	c.mu.Unlock()

	c.cancel()

	var err error
	if w != nil {
		err = w.Stop()
	}
	c.wg.Wait()

	c.listenMu.Lock()
	for id, ch := range c.listeners {
		close(ch)
		delete(c.listeners, id)
	}
	c.listenersClosed = true
	c.listenMu.Unlock()

	return err
}

// Events registers a listener for status and value changes. Slow listeners
// miss events rather than block the coordinator. Call the returned function
// to unregister.
func (c *Coordinator[T]) Events() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	c.listenMu.Lock()
	if c.listenersClosed {
		c.listenMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = ch
	c.listenMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.listenMu.Lock()
			defer c.listenMu.Unlock()
			if l, ok := c.listeners[id]; ok {
				delete(c.listeners, id)
				close(l)
			}
		})
	}
}

func (c *Coordinator[T]) emit(ev Event) {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	if c.listenersClosed {
		return
	}
	for _, ch := range c.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (c *Coordinator[T]) setStatusLocked(s Status) {
	c.statusSeq++
	if c.lingerTimer != nil {
		c.lingerTimer.Stop()
		c.lingerTimer = nil
	}

	if c.status != s {
		c.status = s
		c.emit(Event{Key: c.key, Kind: EventStatus, Status: s})
	}

	if s == StatusSaved && c.config.SavedLinger > 0 && !c.closed {
		seq := c.statusSeq
		c.lingerTimer = time.AfterFunc(c.config.SavedLinger, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.statusSeq == seq && c.status == StatusSaved && !c.closed {
				c.setStatusLocked(StatusIdle)
			}
		})
	}
}

// schedulePersistLocked starts a retry loop for data, cancelling any older
// loop.
func (c *Coordinator[T]) schedulePersistLocked(data []byte) {
	if c.backend == nil || c.closed {
		return
	}

	if c.cancelWrite != nil {
		c.cancelWrite()
	}
	c.writeGen++
	gen := c.writeGen

	ctx, cancel := context.WithCancel(c.ctx)
	done := make(chan struct{})
	c.cancelWrite = cancel
	c.persistDone = done
	c.pending = data
	c.lastErr = nil
	c.markUnsyncedLocked(true)
	c.setStatusLocked(StatusSaving)

	c.wg.Add(1)
	go c.persist(ctx, gen, data, done)
}

func (c *Coordinator[T]) persist(ctx context.Context, gen uint64, data []byte, done chan struct{}) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		if c.persistDone == done {
			c.persistDone = nil
		}
		c.mu.Unlock()
		close(done)
	}()

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.config.retryDelay(attempt)):
			case <-ctx.Done():
				return
			}
		}

		err := c.upsert(ctx, data)
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		if gen != c.writeGen {
			c.mu.Unlock()
			return
		}
		if err == nil {
			c.finishWriteLocked()
			c.pending = nil
			c.lastErr = nil
			c.markUnsyncedLocked(false)
			c.setStatusLocked(StatusSaved)
			c.mu.Unlock()
			return
		}

		c.lastErr = err
		if attempt >= c.config.MaxRetries {
			c.finishWriteLocked()
			c.setStatusLocked(StatusError)
			c.mu.Unlock()
			c.logger.Printf("giving up on %s after %d attempts: %v", c.key, attempt+1, err)
			return
		}
		c.mu.Unlock()

		c.logger.Printf("write to %s failed (attempt %d/%d), retrying in %v: %v",
			c.key, attempt+1, c.config.MaxRetries+1, c.config.retryDelay(attempt+1), err)
	}
}

func (c *Coordinator[T]) finishWriteLocked() {
	if c.cancelWrite != nil {
		c.cancelWrite()
		c.cancelWrite = nil
	}
}

func (c *Coordinator[T]) markUnsyncedLocked(on bool) {
	if c.unsynced == on {
		return
	}
	var err error
	if on {
		err = c.local.Save(unsyncedKey(c.key), []byte("true"))
	} else {
		err = c.local.Delete(unsyncedKey(c.key))
	}
	if err != nil {
		c.logger.Printf("failed to update sync marker of %s: %v", c.key, err)
		return
	}
	c.unsynced = on
}

func (c *Coordinator[T]) upsert(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
	defer cancel()
	return c.backend.Upsert(ctx, c.key, data)
}

// refresh fetches the remote document and applies it. A missing row is
// seeded with the current value.
func (c *Coordinator[T]) refresh(ctx context.Context, markSaved bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.WriteTimeout)
	defer cancel()

	gen := c.generation()
	data, err := c.backend.Fetch(ctx, c.key)
	if errors.Is(err, remote.ErrNotFound) {
		c.mu.Lock()
		if c.pending == nil {
			c.schedulePersistLocked(c.encoded)
		}
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		return err
	}

	c.applyRemote(data, markSaved, gen)
	return nil
}

func (c *Coordinator[T]) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeGen
}

// applyRemote makes a remote document current without recording history.
// While a local write is pending the document is skipped: the pending write
// replaces it on the remote side, and a document read before the latest
// local write (gen older than writeGen) is stale. A local snapshot left
// unsynced by an earlier process is copied aside before it is replaced.
func (c *Coordinator[T]) applyRemote(data []byte, markSaved bool, gen uint64) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Printf("ignoring undecodable remote document %s: %v", c.key, err)
		return
	}

	c.mu.Lock()
	if c.pending != nil || gen != c.writeGen {
		c.mu.Unlock()
		return
	}

	changed := !bytes.Equal(data, c.encoded)
	if changed && c.unsynced {
		if err := c.local.Save(DiscardedKey(c.key), c.encoded); err != nil {
			c.logger.Printf("failed to keep unsynced snapshot of %s: %v", c.key, err)
		}
		c.discarded = true
		c.logger.Printf("unsynced local changes to %s replaced by the remote document", c.key)
	}
	c.markUnsyncedLocked(false)
	if changed {
		c.value = v
		c.encoded = append([]byte(nil), data...)
		if err := c.local.Save(c.key, c.encoded); err != nil {
			c.logger.Printf("failed to save local snapshot %s: %v", c.key, err)
		}
	}
	if markSaved {
		c.setStatusLocked(StatusSaved)
	}
	c.mu.Unlock()

	if changed {
		c.emit(Event{Key: c.key, Kind: EventValue, Source: remote.SourceRemote})
	}
}

// subscribeLoop consumes the subscription opened by Start and reopens it
// after ReconnectDelay whenever it ends.
func (c *Coordinator[T]) subscribeLoop(changes <-chan remote.Change, errs <-chan error, err error) {
	defer c.wg.Done()

	reconnected := false
	for {
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Printf("failed to subscribe to %s: %v", c.key, err)
		} else {
			if reconnected {
				// Catch up on whatever changed while disconnected.
				if err := c.Resume(c.ctx); err != nil {
					c.logger.Printf("failed to refresh %s after reconnect: %v", c.key, err)
				}
			}
			c.consume(changes, errs)
		}

		if c.ctx.Err() != nil {
			return
		}
		select {
		case <-time.After(c.config.ReconnectDelay):
		case <-c.ctx.Done():
			return
		}
		changes, errs, err = c.backend.Subscribe(c.ctx, c.key)
		reconnected = true
	}
}

func (c *Coordinator[T]) consume(changes <-chan remote.Change, errs <-chan error) {
	clientID := c.backend.ClientID()
	for change := range changes {
		if change.Key != c.key {
			continue
		}
		if change.Origin != "" && change.Origin == clientID {
			continue
		}
		c.applyRemote(change.Data, true, c.generation())
	}

	select {
	case err := <-errs:
		if err != nil && c.ctx.Err() == nil {
			c.logger.Printf("realtime channel for %s closed: %v; reconnecting in %v", c.key, err, c.config.ReconnectDelay)
		}
	default:
	}
}

func (c *Coordinator[T]) keepaliveLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.poll()
		}
	}
}

// poll keeps the connection warm and applies whatever the feed may have
// missed. Errors are ignored; the next tick tries again.
func (c *Coordinator[T]) poll() {
	ctx, cancel := context.WithTimeout(c.ctx, c.config.WriteTimeout)
	defer cancel()

	gen := c.generation()
	data, err := c.backend.Fetch(ctx, c.key)
	if err != nil {
		return
	}
	c.applyRemote(data, false, gen)
}

func (c *Coordinator[T]) startWatcher(fs *localstore.FileStore) {
	w, err := localstore.NewWatcher(fs)
	if err != nil {
		c.logger.Printf("local watch for %s disabled: %v", c.key, err)
		return
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		c.logger.Printf("local watch for %s disabled: %v", c.key, err)
		return
	}

	c.mu.Lock()
	c.watcher = w
	c.mu.Unlock()

	c.wg.Add(1)
	go c.watchLocal(w)
}

func (c *Coordinator[T]) watchLocal(w *localstore.Watcher) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case change, ok := <-w.Changes():
			if !ok {
				return
			}
			if change.Key != c.key || change.Deleted {
				continue
			}
			c.applyLocal(change.Data)
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			c.logger.Printf("local watch error for %s: %v", c.key, err)
		}
	}
}

// applyLocal takes a snapshot written by another process sharing the data
// directory. It is already on disk and, in cloud mode, already remote.
func (c *Coordinator[T]) applyLocal(data []byte) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return
	}

	c.mu.Lock()
	if bytes.Equal(data, c.encoded) {
		c.mu.Unlock()
		return
	}
	c.value = v
	c.encoded = append([]byte(nil), data...)
	c.mu.Unlock()

	c.emit(Event{Key: c.key, Kind: EventValue, Source: remote.SourceDisk})
}
