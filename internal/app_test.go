package internal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valter-silva-au/brain/internal/cli"
	"github.com/valter-silva-au/brain/internal/core"
	"github.com/valter-silva-au/brain/pkg/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// newKnowledgeBase writes a small corpus: Jane works on Growth, which is
// owned by Sam.
func newKnowledgeBase(t *testing.T, config string) string {
	t.Helper()
	base := t.TempDir()
	if config != "" {
		writeFile(t, filepath.Join(base, core.ConfigFileName), config)
	}
	writeFile(t, filepath.Join(base, "entity", "person", "jane-doe.md"), `---
type: person
name: Jane Doe
aliases: [Jane]
created: 2025-01-01
relationships:
  works_on:
    - Growth Project
---
Jane runs the acquisition funnel.
`)
	writeFile(t, filepath.Join(base, "entity", "project", "growth.md"), `---
type: project
name: Growth Project
status: active
created: 2025-01-02
relationships:
  owner:
    - entity/person/sam
---
`)
	writeFile(t, filepath.Join(base, "entity", "person", "sam.md"), `---
type: person
name: Sam Lee
created: 2025-01-03
---
`)
	return base
}

func TestResolveBasePath_BrainHomeSet(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("BRAIN_HOME", tmpDir)

	got := ResolveBasePath()
	if got != tmpDir {
		t.Errorf("ResolveBasePath() = %q, want %q", got, tmpDir)
	}
}

func TestResolveBasePath_FindsBrainConfig(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "entity", "person")
	if err := os.MkdirAll(subDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(tmpDir, core.ConfigFileName), "query:\n  limit: 5\n")

	origDir, _ := os.Getwd()
	defer func() { _ = os.Chdir(origDir) }()
	if err := os.Chdir(subDir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BRAIN_HOME", "")

	// Resolve symlinks so macOS /private/var temp dirs compare equal.
	want, _ := filepath.EvalSymlinks(tmpDir)
	got, _ := filepath.EvalSymlinks(ResolveBasePath())
	if got != want {
		t.Errorf("ResolveBasePath() = %q, want %q (should find .brainconfig in parent)", got, want)
	}
}

func TestResolveBasePath_FallbackToCwd(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	defer func() { _ = os.Chdir(origDir) }()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BRAIN_HOME", "")

	want, _ := filepath.EvalSymlinks(tmpDir)
	got, _ := filepath.EvalSymlinks(ResolveBasePath())
	if got != want {
		t.Errorf("ResolveBasePath() = %q, want %q (should fall back to cwd)", got, want)
	}
}

func TestNewApp_WiresServices(t *testing.T) {
	base := newKnowledgeBase(t, "")
	app, err := NewApp(base)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	defer app.Close()

	if app.BasePath != base {
		t.Errorf("app.BasePath = %q, want %q", app.BasePath, base)
	}
	if app.Query == nil || app.Temporal == nil || app.Recorder == nil || app.EventStore == nil || app.StatsCalc == nil {
		t.Fatalf("expected all services wired: %+v", app)
	}
	if cli.QueryEngine == nil || cli.EventStore == nil || cli.Config != app.Config {
		t.Error("CLI variables not wired")
	}
	if _, err := os.Stat(filepath.Join(base, ".brain", "events.jsonl")); err != nil {
		t.Errorf("expected default jsonl event log: %v", err)
	}
}

func TestNewApp_QueryAcrossGraph(t *testing.T) {
	app, err := NewApp(newKnowledgeBase(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	opts := core.DefaultQueryOptions()
	opts.Depth = 2
	res, err := app.Query.Query("Jane", opts)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	ids := map[string]bool{}
	for _, r := range res.Results {
		ids[r.EntityID] = true
	}
	for _, want := range []string{"entity/person/jane-doe", "entity/project/growth", "entity/person/sam"} {
		if !ids[want] {
			t.Errorf("expected %s in results, got %+v", want, res.Results)
		}
	}
}

func TestNewApp_RecordThenReconstruct(t *testing.T) {
	base := newKnowledgeBase(t, "events:\n  backend: sqlite\nactor: tester\n")
	app, err := NewApp(base)
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	if _, err := os.Stat(filepath.Join(base, ".brain", "events.db")); err != nil {
		t.Errorf("expected sqlite event db: %v", err)
	}

	event, err := app.Recorder.Record(core.RecordRequest{
		EntityID: "entity/project/growth",
		Set:      map[string]any{"status": "paused"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if event.Actor != "tester" {
		t.Errorf("actor = %q, want configured actor", event.Actor)
	}

	current, err := app.Entities.Get("entity/project/growth")
	if err != nil {
		t.Fatal(err)
	}
	if current.Status() != "paused" {
		t.Errorf("status on disk = %q, want paused", current.Status())
	}

	before, err := app.Temporal.GetEntityAt("entity/project/growth", event.Timestamp.Add(-1))
	if err != nil {
		t.Fatal(err)
	}
	if before == nil || before.Metadata["status"] != "active" {
		t.Errorf("snapshot before the change = %+v, want status active", before)
	}
}

func TestNewApp_InvalidConfig(t *testing.T) {
	base := newKnowledgeBase(t, "query:\n  decay: 1.5\n")

	_, err := NewApp(base)
	if err == nil || !strings.Contains(err.Error(), "query.decay") {
		t.Errorf("expected decay validation error, got %v", err)
	}
}

func TestNewApp_EventLogUnavailable(t *testing.T) {
	base := newKnowledgeBase(t, "")
	// A regular file where the .brain directory should be.
	writeFile(t, filepath.Join(base, ".brain"), "not a directory")

	app, err := NewApp(base)
	if err != nil {
		t.Fatalf("NewApp() should degrade, got error %v", err)
	}
	defer app.Close()

	if app.EventStore != nil || app.Temporal != nil || app.Recorder != nil {
		t.Error("expected history services to be disabled")
	}
	if app.Query == nil {
		t.Error("query engine should still be wired")
	}
}

func TestEventsPath(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.BrainConfig
		want string
	}{
		{"jsonl default", models.BrainConfig{Backend: models.BackendJSONL}, filepath.Join("/kb", ".brain", "events.jsonl")},
		{"sqlite default", models.BrainConfig{Backend: models.BackendSQLite}, filepath.Join("/kb", ".brain", "events.db")},
		{"relative override", models.BrainConfig{EventsPath: "log/ev.jsonl"}, filepath.Join("/kb", "log", "ev.jsonl")},
		{"absolute override", models.BrainConfig{EventsPath: "/var/brain/ev.db"}, "/var/brain/ev.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EventsPath("/kb", &tt.cfg); got != tt.want {
				t.Errorf("EventsPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenEventStore_UnknownBackend(t *testing.T) {
	_, err := OpenEventStore("postgres", filepath.Join(t.TempDir(), "x"))
	if err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestEntityAdapter_TranslatesNotFound(t *testing.T) {
	app, err := NewApp(newKnowledgeBase(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()

	adapter := &entityAdapter{store: app.Entities}
	_, err = adapter.Get("entity/person/nobody")
	if !errors.Is(err, core.ErrEntityNotFound) {
		t.Errorf("expected core.ErrEntityNotFound, got %v", err)
	}

	list, err := adapter.List()
	if err != nil || len(list) != 3 {
		t.Errorf("List() = %d entities, err %v", len(list), err)
	}
}
