package syncstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/crewflo/crewflo/internal/localstore"
	"github.com/crewflo/crewflo/internal/remote"
)

const testKey = "Acme_crewflo_tasks"

var errFlaky = errors.New("flaky: upsert failed")

// flakyBackend wraps a Backend, failing upserts, fetches or subscriptions
// on demand and letting tests drop the realtime subscription.
type flakyBackend struct {
	remote.Backend

	mu           sync.Mutex
	failures     int // remaining failures; negative fails forever
	attempts     int
	fetches      int
	fetchErr     error
	afterFetch   func() // runs once, after the first fetch has read the row
	subscribeErr error
	subscribes   int
	cancels      []context.CancelFunc
}

func (f *flakyBackend) Fetch(ctx context.Context, key string) (json.RawMessage, error) {
	f.mu.Lock()
	f.fetches++
	fetchErr := f.fetchErr
	hook := f.afterFetch
	f.afterFetch = nil
	f.mu.Unlock()

	if fetchErr != nil {
		return nil, fetchErr
	}
	data, err := f.Backend.Fetch(ctx, key)
	if hook != nil {
		hook()
	}
	return data, err
}

func (f *flakyBackend) Upsert(ctx context.Context, key string, data json.RawMessage) error {
	f.mu.Lock()
	f.attempts++
	fail := f.failures != 0
	if f.failures > 0 {
		f.failures--
	}
	f.mu.Unlock()

	if fail {
		return errFlaky
	}
	return f.Backend.Upsert(ctx, key, data)
}

func (f *flakyBackend) Subscribe(ctx context.Context, key string) (<-chan remote.Change, <-chan error, error) {
	f.mu.Lock()
	subscribeErr := f.subscribeErr
	f.mu.Unlock()
	if subscribeErr != nil {
		return nil, nil, subscribeErr
	}

	ctx, cancel := context.WithCancel(ctx)
	changes, errs, err := f.Backend.Subscribe(ctx, key)
	if err != nil {
		cancel()
		return nil, nil, err
	}

	f.mu.Lock()
	f.subscribes++
	f.cancels = append(f.cancels, cancel)
	f.mu.Unlock()
	return changes, errs, nil
}

func (f *flakyBackend) setFailures(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
}

func (f *flakyBackend) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *flakyBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func (f *flakyBackend) counts() (attempts, subscribes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts, f.subscribes
}

func (f *flakyBackend) dropFeed() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cancel := range f.cancels {
		cancel()
	}
	f.cancels = nil
}

type testEnv struct {
	db  *remote.DB
	hub *remote.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := remote.OpenDB(filepath.Join(t.TempDir(), "sync.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	hub := remote.NewHub(quietLogger())
	t.Cleanup(func() {
		hub.Close()
		_ = db.Close()
	})
	return &testEnv{db: db, hub: hub}
}

func (e *testEnv) backend() *remote.LocalBackend {
	return remote.NewLocalBackend(e.db, e.hub)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logger = quietLogger()
	cfg.BackoffUnit = time.Millisecond
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.WriteTimeout = 2 * time.Second
	cfg.SavedLinger = 0
	return cfg
}

func openStore(t *testing.T) *localstore.FileStore {
	t.Helper()
	store, err := localstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("localstore.Open() failed: %v", err)
	}
	return store
}

func newCoordinator(t *testing.T, store localstore.Store, backend remote.Backend, cfg *Config) *Coordinator[[]string] {
	t.Helper()
	c, err := New(testKey, []string{}, store, backend, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func flush(t *testing.T, c *Coordinator[[]string]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
}

func appendItem(item string) func([]string) []string {
	return func(cur []string) []string {
		next := make([]string, 0, len(cur)+1)
		next = append(next, cur...)
		return append(next, item)
	}
}

func TestNew_SeedsFromLocalSnapshot(t *testing.T) {
	store := openStore(t)
	if err := store.Save(testKey, []byte(`["stored"]`)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	c := newCoordinator(t, store, nil, testConfig())
	if got := c.Read(); !reflect.DeepEqual(got, []string{"stored"}) {
		t.Errorf("Read() = %v, want [stored]", got)
	}
}

func TestNew_CorruptSnapshotFallsBackToInitial(t *testing.T) {
	store := openStore(t)
	if err := os.WriteFile(store.Path(testKey), []byte(`{broken`), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	c := newCoordinator(t, store, nil, testConfig())
	if got := c.Read(); len(got) != 0 {
		t.Errorf("Read() = %v, want initial value", got)
	}
}

func TestNew_RejectsEmptyKey(t *testing.T) {
	if _, err := New("", 0, openStore(t), nil, nil); err == nil {
		t.Fatal("New() should reject an empty key")
	}
}

func TestCoordinator_OfflineWriteIsLocalOnly(t *testing.T) {
	store := openStore(t)
	c := newCoordinator(t, store, nil, testConfig())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	c.Write(appendItem("a"))

	data, ok, err := store.Load(testKey)
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if string(data) != `["a"]` {
		t.Errorf("local snapshot = %s, want [\"a\"]", data)
	}
	if c.IsCloud() {
		t.Error("IsCloud() should be false without a backend")
	}
	if c.Status() != StatusIdle {
		t.Errorf("Status() = %s, want idle in offline mode", c.Status())
	}
	flush(t, c)
}

func TestCoordinator_UndoKeepsTwentySnapshots(t *testing.T) {
	store := openStore(t)
	c, err := New(testKey, 0, store, nil, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer c.Close()

	if c.CanUndo() {
		t.Fatal("CanUndo() should be false before any write")
	}

	for i := 1; i <= 25; i++ {
		c.Set(i)
	}

	for i := 0; i < DefaultHistoryLimit; i++ {
		if !c.Undo() {
			t.Fatalf("Undo() #%d returned false", i+1)
		}
	}
	if c.Undo() {
		t.Fatal("Undo() beyond the history limit should return false")
	}
	if got := c.Read(); got != 5 {
		t.Errorf("Read() after undoing everything = %d, want 5", got)
	}

	data, _, _ := store.Load(testKey)
	if string(data) != "5" {
		t.Errorf("local snapshot after undo = %s, want 5", data)
	}
}

func TestCoordinator_UndoUpdatesLastModified(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	cfg := testConfig()
	cfg.Now = func() time.Time { return now }

	c := newCoordinator(t, openStore(t), nil, cfg)
	if !c.LastModified().IsZero() {
		t.Fatal("LastModified() should be zero before any write")
	}

	c.Write(appendItem("a"))
	if !c.LastModified().Equal(now) {
		t.Fatalf("LastModified() = %v, want %v", c.LastModified(), now)
	}

	now = now.Add(time.Minute)
	c.Undo()
	if !c.LastModified().Equal(now) {
		t.Errorf("LastModified() after Undo = %v, want %v", c.LastModified(), now)
	}
	if got := c.Read(); len(got) != 0 {
		t.Errorf("Read() after Undo = %v, want empty", got)
	}
}

func TestCoordinator_StartSeedsMissingRemoteRow(t *testing.T) {
	env := newTestEnv(t)
	store := openStore(t)
	if err := store.Save(testKey, []byte(`["local"]`)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	c := newCoordinator(t, store, env.backend(), testConfig())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	flush(t, c)

	row, err := env.db.Get(context.Background(), testKey)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(row.Data) != `["local"]` {
		t.Errorf("remote row = %s, want seeded local value", row.Data)
	}
	if c.CanUndo() {
		t.Error("seeding must not record history")
	}
}

func TestCoordinator_StartPrefersRemoteDocument(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.db.Upsert(context.Background(), testKey, []byte(`["remote"]`)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	store := openStore(t)
	if err := store.Save(testKey, []byte(`["local"]`)); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	c := newCoordinator(t, store, env.backend(), testConfig())
	if got := c.Read(); !reflect.DeepEqual(got, []string{"local"}) {
		t.Fatalf("Read() before Start = %v, want local snapshot", got)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if got := c.Read(); !reflect.DeepEqual(got, []string{"remote"}) {
		t.Errorf("Read() after Start = %v, want remote document", got)
	}
	data, _, _ := store.Load(testKey)
	if string(data) != `["remote"]` {
		t.Errorf("local snapshot = %s, want remote document", data)
	}
	if c.CanUndo() {
		t.Error("remote load must not record history")
	}
	if c.Status() != StatusSaved {
		t.Errorf("Status() after loading the remote document = %s, want saved", c.Status())
	}
	if c.Discarded() {
		t.Error("Discarded() should be false without unsynced local changes")
	}
}

func TestCoordinator_StartAppliesChangeMadeDuringFetch(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.db.Upsert(context.Background(), testKey, []byte(`["old"]`)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	writer := env.backend()
	backend := &flakyBackend{Backend: env.backend()}
	backend.afterFetch = func() {
		if err := writer.Upsert(context.Background(), testKey, []byte(`["new"]`)); err != nil {
			t.Errorf("Upsert() failed: %v", err)
		}
	}

	cfg := testConfig()
	cfg.KeepaliveInterval = time.Hour
	c := newCoordinator(t, openStore(t), backend, cfg)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	waitFor(t, "change written during the initial fetch", func() bool {
		return reflect.DeepEqual(c.Read(), []string{"new"})
	})
}

func TestCoordinator_KeepaliveFetchesPeriodically(t *testing.T) {
	env := newTestEnv(t)
	backend := &flakyBackend{Backend: env.backend(), subscribeErr: errors.New("feed unavailable")}
	cfg := testConfig()
	cfg.KeepaliveInterval = 5 * time.Millisecond
	cfg.ReconnectDelay = time.Hour

	c := newCoordinator(t, openStore(t), backend, cfg)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	flush(t, c)

	start := backend.fetchCount()
	waitFor(t, "keepalive fetches", func() bool { return backend.fetchCount() >= start+2 })

	// Without a feed the keepalive is the only way to see other clients.
	writer := env.backend()
	if err := writer.Upsert(context.Background(), testKey, []byte(`["polled"]`)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	waitFor(t, "keepalive to apply the remote row", func() bool {
		return reflect.DeepEqual(c.Read(), []string{"polled"})
	})
	if c.CanUndo() {
		t.Error("keepalive must not record history")
	}
}

func TestCoordinator_KeepaliveIgnoresFetchErrors(t *testing.T) {
	env := newTestEnv(t)
	backend := &flakyBackend{Backend: env.backend()}
	cfg := testConfig()
	cfg.KeepaliveInterval = 5 * time.Millisecond

	store := openStore(t)
	c := newCoordinator(t, store, backend, cfg)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	c.Write(appendItem("siding"))
	flush(t, c)

	status := c.Status()
	events, stop := c.Events()
	defer stop()

	backend.setFetchErr(errors.New("fetch failed"))
	start := backend.fetchCount()
	waitFor(t, "failing keepalive fetches", func() bool { return backend.fetchCount() >= start+3 })

	if c.Status() != status {
		t.Errorf("Status() = %s, want unchanged %s", c.Status(), status)
	}
	if c.Err() != nil {
		t.Errorf("Err() = %v, keepalive errors must not surface", c.Err())
	}
	if got := c.Read(); !reflect.DeepEqual(got, []string{"siding"}) {
		t.Errorf("Read() = %v, want unchanged value", got)
	}
	select {
	case ev := <-events:
		t.Errorf("unexpected event %+v after failing keepalive", ev)
	default:
	}
	data, _, _ := store.Load(testKey)
	if string(data) != `["siding"]` {
		t.Errorf("local snapshot = %s, want unchanged", data)
	}
}

func TestCoordinator_StartKeepsUnsyncedSnapshotAside(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.db.Upsert(context.Background(), testKey, []byte(`["remote"]`)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	store := openStore(t)

	// A first process writes while the server rejects every upsert.
	backend := &flakyBackend{Backend: env.backend(), failures: -1}
	first, err := New(testKey, []string{}, store, backend, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	first.Write(appendItem("offline"))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := first.Flush(ctx); !errors.Is(err, ErrPersistFailed) {
		t.Fatalf("Flush() error = %v, want ErrPersistFailed", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// The next process starts against the remote row.
	c := newCoordinator(t, store, env.backend(), testConfig())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if got := c.Read(); !reflect.DeepEqual(got, []string{"remote"}) {
		t.Errorf("Read() = %v, want remote document", got)
	}
	if !c.Discarded() {
		t.Fatal("Discarded() should report the replaced unsynced snapshot")
	}
	data, ok, err := store.Load(DiscardedKey(testKey))
	if err != nil || !ok {
		t.Fatalf("discarded snapshot missing: ok=%v err=%v", ok, err)
	}
	if string(data) != `["offline"]` {
		t.Errorf("discarded snapshot = %s, want [\"offline\"]", data)
	}

	// The marker is gone once the remote document has been applied.
	again := newCoordinator(t, store, env.backend(), testConfig())
	if err := again.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if again.Discarded() {
		t.Error("a synced snapshot must not be reported as discarded")
	}
}

func TestCoordinator_SyncedWriteLeavesNoMarker(t *testing.T) {
	env := newTestEnv(t)
	store := openStore(t)

	c := newCoordinator(t, store, env.backend(), testConfig())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	c.Write(appendItem("tiling"))
	flush(t, c)

	if _, ok, _ := store.Load(unsyncedKey(testKey)); ok {
		t.Error("unsynced marker should be removed after a successful write")
	}
}

func TestCoordinator_RemoteChangesReachOtherClients(t *testing.T) {
	env := newTestEnv(t)

	a := newCoordinator(t, openStore(t), env.backend(), testConfig())
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("a.Start() failed: %v", err)
	}
	flush(t, a)

	storeB := openStore(t)
	b := newCoordinator(t, storeB, env.backend(), testConfig())
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("b.Start() failed: %v", err)
	}
	flush(t, b)

	waitFor(t, "both subscriptions", func() bool { return env.hub.SubscriberCount(testKey) == 2 })

	events, stop := a.Events()
	defer stop()

	a.Write(appendItem("framing"))
	flush(t, a)

	waitFor(t, "b to receive the change", func() bool {
		return reflect.DeepEqual(b.Read(), []string{"framing"})
	})

	if b.CanUndo() {
		t.Error("remote change must not enter history")
	}
	if b.Status() != StatusSaved {
		t.Errorf("b.Status() = %s, want saved", b.Status())
	}
	data, _, _ := storeB.Load(testKey)
	if string(data) != `["framing"]` {
		t.Errorf("b local snapshot = %s", data)
	}

	// a must ignore the echo of its own write.
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case ev := <-events:
			if ev.Kind == EventValue && ev.Source == remote.SourceRemote {
				t.Fatal("a applied the echo of its own write")
			}
			continue
		default:
		}
		break
	}
	if !a.CanUndo() {
		t.Error("a should be able to undo its own write")
	}
}

func TestCoordinator_RetriesThenReportsError(t *testing.T) {
	env := newTestEnv(t)
	backend := &flakyBackend{Backend: env.backend(), failures: -1}
	store := openStore(t)

	c := newCoordinator(t, store, backend, testConfig())
	c.Write(appendItem("roofing"))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Flush(ctx); !errors.Is(err, ErrPersistFailed) {
		t.Fatalf("Flush() error = %v, want ErrPersistFailed", err)
	}

	if attempts, _ := backend.counts(); attempts != 4 {
		t.Errorf("upsert attempts = %d, want 1 + 3 retries", attempts)
	}
	if c.Status() != StatusError {
		t.Errorf("Status() = %s, want error", c.Status())
	}
	if !c.Pending() {
		t.Error("failed write should stay pending")
	}
	if !errors.Is(c.Err(), errFlaky) {
		t.Errorf("Err() = %v, want errFlaky", c.Err())
	}
	if got := c.Read(); !reflect.DeepEqual(got, []string{"roofing"}) {
		t.Errorf("Read() = %v, local value must not roll back", got)
	}

	backend.setFailures(0)
	if err := c.Resume(ctx); err != nil {
		t.Fatalf("Resume() failed: %v", err)
	}
	flush(t, c)

	row, err := env.db.Get(ctx, testKey)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(row.Data) != `["roofing"]` {
		t.Errorf("remote row = %s, want flushed pending write", row.Data)
	}
	if c.Status() != StatusSaved {
		t.Errorf("Status() after resume = %s, want saved", c.Status())
	}
}

func TestCoordinator_RetryRecovers(t *testing.T) {
	env := newTestEnv(t)
	backend := &flakyBackend{Backend: env.backend(), failures: 2}

	c := newCoordinator(t, openStore(t), backend, testConfig())
	c.Write(appendItem("paint"))
	flush(t, c)

	if attempts, _ := backend.counts(); attempts != 3 {
		t.Errorf("upsert attempts = %d, want 3", attempts)
	}
	if c.Status() != StatusSaved {
		t.Errorf("Status() = %s, want saved", c.Status())
	}
}

func TestCoordinator_NewerWriteSupersedesRetry(t *testing.T) {
	env := newTestEnv(t)
	backend := &flakyBackend{Backend: env.backend(), failures: 1}
	cfg := testConfig()
	cfg.BackoffUnit = time.Hour

	c := newCoordinator(t, openStore(t), backend, cfg)
	c.Write(appendItem("first"))
	waitFor(t, "first attempt", func() bool {
		attempts, _ := backend.counts()
		return attempts == 1
	})

	c.Write(appendItem("second"))
	flush(t, c)

	row, err := env.db.Get(context.Background(), testKey)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if string(row.Data) != `["first","second"]` {
		t.Errorf("remote row = %s", row.Data)
	}
	if attempts, _ := backend.counts(); attempts != 2 {
		t.Errorf("upsert attempts = %d, want 2", attempts)
	}
}

func TestCoordinator_SavedLingerReturnsToIdle(t *testing.T) {
	env := newTestEnv(t)
	cfg := testConfig()
	cfg.SavedLinger = 20 * time.Millisecond

	c := newCoordinator(t, openStore(t), env.backend(), cfg)
	statuses, stop := c.Events()
	defer stop()

	c.Write(appendItem("x"))
	flush(t, c)
	waitFor(t, "idle status", func() bool { return c.Status() == StatusIdle })

	var seen []Status
	for len(statuses) > 0 {
		ev := <-statuses
		if ev.Kind == EventStatus {
			seen = append(seen, ev.Status)
		}
	}
	want := []Status{StatusSaving, StatusSaved, StatusIdle}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("status transitions = %v, want %v", seen, want)
	}
}

func TestCoordinator_ReconnectsAfterDrop(t *testing.T) {
	env := newTestEnv(t)
	backend := &flakyBackend{Backend: env.backend()}

	c := newCoordinator(t, openStore(t), backend, testConfig())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	flush(t, c)
	waitFor(t, "subscription", func() bool { return env.hub.SubscriberCount(testKey) == 1 })

	backend.dropFeed()
	waitFor(t, "resubscription", func() bool {
		_, subscribes := backend.counts()
		return subscribes >= 2 && env.hub.SubscriberCount(testKey) == 1
	})

	writer := env.backend()
	if err := writer.Upsert(context.Background(), testKey, []byte(`["late"]`)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	waitFor(t, "change after reconnect", func() bool {
		return reflect.DeepEqual(c.Read(), []string{"late"})
	})
}

func TestCoordinator_WatchesOtherProcesses(t *testing.T) {
	dir := t.TempDir()
	storeA, err := localstore.Open(dir)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	storeB, err := localstore.Open(dir)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	cfg := testConfig()
	cfg.WatchLocal = true

	a := newCoordinator(t, storeA, nil, cfg)
	b := newCoordinator(t, storeB, nil, cfg)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	a.Write(appendItem("drywall"))

	waitFor(t, "b to pick up a's snapshot", func() bool {
		return reflect.DeepEqual(b.Read(), []string{"drywall"})
	})
	if b.CanUndo() {
		t.Error("snapshot from another process must not enter history")
	}
}

func TestCoordinator_CloseIsIdempotent(t *testing.T) {
	c, err := New(testKey, []string{}, openStore(t), nil, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	events, _ := c.Events()

	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}
	if _, ok := <-events; ok {
		t.Error("Close() should close listener channels")
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want ErrClosed", err)
	}
}
