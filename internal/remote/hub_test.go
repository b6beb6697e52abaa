package remote

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestHub_FiltersByKey(t *testing.T) {
	hub := NewHub(quietLogger())
	defer hub.Close()

	tasks := hub.Subscribe("crewflo_tasks")
	projects := hub.Subscribe("crewflo_projects")
	defer tasks.Close()
	defer projects.Close()

	hub.Publish(Change{Key: "crewflo_tasks", Data: []byte(`[]`)})

	select {
	case change := <-tasks.C:
		if change.Key != "crewflo_tasks" {
			t.Errorf("got change for %s", change.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("tasks subscriber did not receive change")
	}

	select {
	case change := <-projects.C:
		t.Fatalf("projects subscriber received %s change", change.Key)
	default:
	}
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub(quietLogger())
	defer hub.Close()

	sub := hub.Subscribe("k")
	for i := 0; i < subscriberBuffer+1; i++ {
		hub.Publish(Change{Key: "k"})
	}

	if n := hub.SubscriberCount("k"); n != 0 {
		t.Fatalf("SubscriberCount() = %d, want slow subscriber dropped", n)
	}

	drained := 0
	for range sub.C {
		drained++
	}
	if drained != subscriberBuffer {
		t.Errorf("drained %d buffered changes, want %d", drained, subscriberBuffer)
	}
	sub.Close()
}

func TestHub_CloseEndsSubscriptions(t *testing.T) {
	hub := NewHub(quietLogger())
	sub := hub.Subscribe("k")

	hub.Close()

	if _, ok := <-sub.C; ok {
		t.Fatal("subscription channel should be closed")
	}
	sub.Close()

	late := hub.Subscribe("k")
	if _, ok := <-late.C; ok {
		t.Fatal("subscribing to a closed hub should yield a closed channel")
	}
}

func TestHub_SubscribeAfterCloseCanBeClosed(t *testing.T) {
	hub := NewHub(quietLogger())
	hub.Close()

	sub := hub.Subscribe("k")
	if _, ok := <-sub.C; ok {
		t.Fatal("subscription channel should be closed")
	}

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("Close() on a subscription from a closed hub panicked: %v", r)
		}
	}()
	sub.Close()
	sub.Close()
}

func TestLocalBackend_PublishesOwnOrigin(t *testing.T) {
	db := setupTestDB(t)
	hub := NewHub(quietLogger())
	defer hub.Close()

	writer := NewLocalBackend(db, hub)
	reader := NewLocalBackend(db, hub)
	if writer.ClientID() == reader.ClientID() {
		t.Fatal("backends should get distinct client ids")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, _, err := reader.Subscribe(ctx, "k")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	if err := writer.Upsert(ctx, "k", []byte(`["x"]`)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	select {
	case change := <-changes:
		if change.Origin != writer.ClientID() {
			t.Errorf("Origin = %q, want writer id", change.Origin)
		}
		if change.Source != SourceRemote {
			t.Errorf("Source = %q, want remote", change.Source)
		}
		if string(change.Data) != `["x"]` {
			t.Errorf("Data = %s", change.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change")
	}

	data, err := reader.Fetch(ctx, "k")
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if string(data) != `["x"]` {
		t.Errorf("Fetch() = %s", data)
	}
}

func TestLocalBackend_SubscriptionDropReportsError(t *testing.T) {
	db := setupTestDB(t)
	hub := NewHub(quietLogger())
	backend := NewLocalBackend(db, hub)

	changes, errs, err := backend.Subscribe(context.Background(), "k")
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	hub.Close()

	select {
	case err := <-errs:
		if err == nil {
			t.Fatal("expected a non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for subscription error")
	}
	for range changes {
	}
}

func TestOpenLocal_SharesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "server.db")
	ctx := context.Background()

	a, err := OpenLocal(ctx, path, quietLogger())
	if err != nil {
		t.Fatalf("OpenLocal() failed: %v", err)
	}
	defer a.Close()
	b, err := OpenLocal(ctx, path, quietLogger())
	if err != nil {
		t.Fatalf("second OpenLocal() failed: %v", err)
	}
	defer b.Close()

	if err := a.Ping(ctx); err != nil {
		t.Fatalf("Ping() failed: %v", err)
	}
	if err := a.Upsert(ctx, "Acme_crewflo_tasks", []byte(`["x"]`)); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	data, err := b.Fetch(ctx, "Acme_crewflo_tasks")
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if string(data) != `["x"]` {
		t.Errorf("Fetch() = %s", data)
	}
	keys, err := b.Keys(ctx, "Acme_")
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	if len(keys) != 1 || keys[0] != "Acme_crewflo_tasks" {
		t.Errorf("Keys() = %v", keys)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
	if err := a.Ping(ctx); err == nil {
		t.Error("Ping() after Close should fail")
	}
}

func TestLocalBackend_CloseLeavesSharedDB(t *testing.T) {
	db := setupTestDB(t)
	hub := NewHub(quietLogger())
	defer hub.Close()

	b := NewLocalBackend(db, hub)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("shared database closed by backend: %v", err)
	}
}
