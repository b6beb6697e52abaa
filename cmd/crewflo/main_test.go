package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crewflo/crewflo/internal/config"
	"github.com/crewflo/crewflo/internal/localstore"
	"github.com/crewflo/crewflo/internal/remote"
	"github.com/crewflo/crewflo/internal/schema"
	"github.com/crewflo/crewflo/internal/workspace"
)

func TestParseTime(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-04 08:30", time.Date(2026, 3, 4, 8, 30, 0, 0, time.UTC)},
		{"2026-03-04T08:30", time.Date(2026, 3, 4, 8, 30, 0, 0, time.UTC)},
		{"2026-03-04", time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"2026-03-04T08:30:00Z", time.Date(2026, 3, 4, 8, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseTime(tt.in, base)
		if err != nil {
			t.Errorf("parseTime(%q) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	got, err := parseTime("tomorrow", base)
	if err != nil {
		t.Fatalf("parseTime(tomorrow) failed: %v", err)
	}
	if y, m, d := got.Date(); y != 2026 || m != time.March || d != 3 {
		t.Errorf("parseTime(tomorrow) = %v, want March 3", got)
	}

	for _, bad := range []string{"", "   ", "qwzx"} {
		if _, err := parseTime(bad, base); err == nil {
			t.Errorf("parseTime(%q) should fail", bad)
		}
	}
}

func TestParseSpan(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	start, end, err := parseSpan("2026-03-02 08:00", "4h", base)
	if err != nil {
		t.Fatalf("parseSpan() failed: %v", err)
	}
	if end.Sub(start) != 4*time.Hour {
		t.Errorf("span = %v, want 4h", end.Sub(start))
	}

	start, end, err = parseSpan("2026-03-02 08:00", "2026-03-03 17:00", base)
	if err != nil {
		t.Fatalf("parseSpan() failed: %v", err)
	}
	if !start.Equal(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2026, 3, 3, 17, 0, 0, 0, time.UTC)) {
		t.Errorf("span = %v - %v", start, end)
	}
}

func TestFindByName(t *testing.T) {
	suppliers := []schema.Supplier{
		{ID: "s1", Name: "Jean Électricité"},
		{ID: "s2", Name: "Plomberie Pro"},
		{ID: "s3", Name: "plomberie pro"},
	}

	if s, err := findSupplier(suppliers, "s1"); err != nil || s.ID != "s1" {
		t.Errorf("by id = %v, %v", s, err)
	}
	if s, err := findSupplier(suppliers, "jean électricité"); err != nil || s.ID != "s1" {
		t.Errorf("by name = %v, %v", s, err)
	}
	if _, err := findSupplier(suppliers, "Plomberie Pro"); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("duplicate name error = %v", err)
	}
	if _, err := findSupplier(suppliers, "nobody"); err == nil {
		t.Error("unknown name should fail")
	}

	projects := []schema.Project{{ID: "p1", Name: "Rénovation Cuisine"}}
	if p, err := findProject(projects, "RÉNOVATION CUISINE"); err != nil || p.ID != "p1" {
		t.Errorf("project by name = %v, %v", p, err)
	}
}

func TestCheckColor(t *testing.T) {
	if err := checkColor(""); err != nil {
		t.Errorf("empty color: %v", err)
	}
	if err := checkColor("teal"); err != nil {
		t.Errorf("teal: %v", err)
	}
	if err := checkColor("beige"); err == nil {
		t.Error("beige should be rejected")
	}
}

func TestCompaniesFromKeys(t *testing.T) {
	keys := []string{
		"crewflo_tasks",
		"Zeta-AAAAAA_crewflo_tasks",
		"Zeta-AAAAAA_crewflo_projects",
		"Acme-4KQ9ZT_crewflo_tasks",
		"Acme-4KQ9ZT_crewflo_suppliers",
	}
	got := companiesFromKeys(keys)
	want := []string{"Acme-4KQ9ZT", "Zeta-AAAAAA"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("companiesFromKeys() = %v, want %v", got, want)
	}
}

func TestFlushTimeout(t *testing.T) {
	s := config.SyncSettings{MaxRetries: 3, BackoffUnit: time.Second, WriteTimeout: 10 * time.Second}
	// 4 attempts of 10s, then 2s + 4s + 8s of backoff, plus a second of slack.
	if got, want := flushTimeout(s), 55*time.Second; got != want {
		t.Errorf("flushTimeout() = %v, want %v", got, want)
	}
}

func TestCollectionName(t *testing.T) {
	if got := collectionName(workspace.KeyTasks); got != "tasks" {
		t.Errorf("collectionName() = %q", got)
	}
	if got := collectionName("Acme-4KQ9ZT_crewflo_suppliers"); got != "suppliers" {
		t.Errorf("collectionName() of a scoped key = %q", got)
	}
}

func TestNewBackend(t *testing.T) {
	s := &config.Settings{Sync: config.SyncSettings{WriteTimeout: 5 * time.Second}}
	if b, err := newBackend(s); err != nil || b != nil {
		t.Fatalf("newBackend() offline = %v, %v, want nil", b, err)
	}

	s.Remote.URL = "https://sync.example.com"
	s.Remote.Key = strings.Repeat("k", config.MinKeyLength)
	b, err := newBackend(s)
	if err != nil {
		t.Fatalf("newBackend() failed: %v", err)
	}
	if _, ok := b.(*remote.Client); !ok {
		t.Errorf("newBackend() = %T, want *remote.Client", b)
	}
	_ = b.Close()

	s.Remote.URL = "file:" + filepath.Join(t.TempDir(), "server.db")
	s.Remote.Key = ""
	b, err = newBackend(s)
	if err != nil {
		t.Fatalf("newBackend() with file url failed: %v", err)
	}
	defer b.Close()
	if _, ok := b.(*remote.LocalBackend); !ok {
		t.Fatalf("newBackend() = %T, want *remote.LocalBackend", b)
	}
	if err := b.Ping(context.Background()); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
}

// TestAddProjectCommand_FileRemote syncs through a sync database named by a
// file: remote URL.
func TestAddProjectCommand_FileRemote(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "shared", "server.db")
	t.Setenv("CREWFLO_REMOTE_URL", "file:"+dbPath)
	for _, key := range []string{"CREWFLO_REMOTE_KEY", "CREWFLO_COMPANY_ID", "CREWFLO_ROLE"} {
		t.Setenv(key, "")
	}

	rootCmd.SetArgs([]string{"--data-dir", dir, "project", "add", "Véranda Leroy"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	backend, err := remote.OpenLocal(context.Background(), dbPath, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("OpenLocal() failed: %v", err)
	}
	defer backend.Close()

	data, err := backend.Fetch(context.Background(), workspace.KeyProjects)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if !strings.Contains(string(data), "Véranda Leroy") {
		t.Errorf("remote projects = %s, want the new project", data)
	}
}

// TestAddProjectCommand runs a command end to end against a temp data dir.
func TestAddProjectCommand(t *testing.T) {
	dir := t.TempDir()
	for _, key := range []string{"CREWFLO_REMOTE_URL", "CREWFLO_REMOTE_KEY", "CREWFLO_COMPANY_ID", "CREWFLO_ROLE"} {
		t.Setenv(key, "")
	}

	rootCmd.SetArgs([]string{"--data-dir", dir, "project", "add", "Extension Garage", "--address", "12 rue des Lilas"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	store, err := localstore.Open(filepath.Join(dir, "local"))
	if err != nil {
		t.Fatalf("localstore.Open() failed: %v", err)
	}
	data, ok, err := store.Load(workspace.KeyProjects)
	if err != nil || !ok {
		t.Fatalf("projects snapshot missing: ok=%v err=%v", ok, err)
	}

	var projects []schema.Project
	if err := json.Unmarshal(data, &projects); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	var found *schema.Project
	for i := range projects {
		if projects[i].Name == "Extension Garage" {
			found = &projects[i]
		}
	}
	if found == nil {
		t.Fatalf("project not saved: %+v", projects)
	}
	if found.Address != "12 rue des Lilas" || found.Status != schema.StatusPlanning {
		t.Errorf("saved project = %+v", found)
	}
	if len(projects) != len(schema.DefaultProjects())+1 {
		t.Errorf("got %d projects, want demo data plus one", len(projects))
	}
}
