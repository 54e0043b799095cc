package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valter-silva-au/brain/pkg/models"
)

// --- Helper ---

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// --- LoadConfig tests ---

func TestLoadConfig_Defaults_WhenNoFile(t *testing.T) {
	t.Setenv("USER", "tester")
	cm := NewConfigurationManager(t.TempDir())

	cfg, err := cm.LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Query.Limit != 10 {
		t.Errorf("Query.Limit = %d, want 10", cfg.Query.Limit)
	}
	if cfg.Query.Decay != 0.5 {
		t.Errorf("Query.Decay = %v, want 0.5", cfg.Query.Decay)
	}
	if cfg.Query.Depth != 1 {
		t.Errorf("Query.Depth = %d, want 1", cfg.Query.Depth)
	}
	if !cfg.Query.Graph {
		t.Error("Query.Graph = false, want true")
	}
	if cfg.EntitiesDir != "entity" {
		t.Errorf("EntitiesDir = %q, want %q", cfg.EntitiesDir, "entity")
	}
	if cfg.Backend != models.BackendJSONL {
		t.Errorf("Backend = %q, want %q", cfg.Backend, models.BackendJSONL)
	}
	if cfg.ServerAddr != DefaultServerAddr {
		t.Errorf("ServerAddr = %q, want %q", cfg.ServerAddr, DefaultServerAddr)
	}
	if cfg.Actor != "tester" {
		t.Errorf("Actor = %q, want fallback to $USER", cfg.Actor)
	}
}

func TestLoadConfig_ReadsBrainconfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".brainconfig", `
query:
  limit: 25
  decay: 0.7
  depth: 3
  graph: false
entities:
  dir: records
events:
  backend: SQLite
  path: /tmp/brain-events.db
server:
  addr: ":9000"
actor: alice
`)

	cfg, err := NewConfigurationManager(dir).LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Query.Limit != 25 || cfg.Query.Decay != 0.7 || cfg.Query.Depth != 3 || cfg.Query.Graph {
		t.Errorf("Query = %+v", cfg.Query)
	}
	if cfg.EntitiesDir != "records" {
		t.Errorf("EntitiesDir = %q", cfg.EntitiesDir)
	}
	if cfg.Backend != models.BackendSQLite {
		t.Errorf("Backend = %q, want sqlite", cfg.Backend)
	}
	if cfg.EventsPath != "/tmp/brain-events.db" {
		t.Errorf("EventsPath = %q", cfg.EventsPath)
	}
	if cfg.ServerAddr != ":9000" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.Actor != "alice" {
		t.Errorf("Actor = %q", cfg.Actor)
	}
}

func TestLoadConfig_PartialConfig_FillsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".brainconfig", "query:\n  depth: 2\n")

	cfg, err := NewConfigurationManager(dir).LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Query.Depth != 2 {
		t.Errorf("Query.Depth = %d, want 2", cfg.Query.Depth)
	}
	if cfg.Query.Limit != 10 || cfg.Query.Decay != 0.5 || !cfg.Query.Graph {
		t.Errorf("defaults not applied: %+v", cfg.Query)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".brainconfig", "query:\n  limit: 5\n")
	t.Setenv("BRAIN_QUERY_LIMIT", "42")

	cfg, err := NewConfigurationManager(dir).LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Query.Limit != 42 {
		t.Errorf("Query.Limit = %d, want 42", cfg.Query.Limit)
	}
}

func TestLoadConfig_InvalidYAML_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".brainconfig", "query: [unclosed\n")

	if _, err := NewConfigurationManager(dir).LoadConfig(); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

// --- ValidateConfig tests ---

func TestValidateConfig_Defaults(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())
	if err := cm.ValidateConfig(DefaultConfig()); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidateConfig_NilConfig_ReturnsError(t *testing.T) {
	cm := NewConfigurationManager(t.TempDir())
	if err := cm.ValidateConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestValidateConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*models.BrainConfig)
		want   string
	}{
		{"zero limit", func(c *models.BrainConfig) { c.Query.Limit = 0 }, "query.limit"},
		{"zero decay", func(c *models.BrainConfig) { c.Query.Decay = 0 }, "query.decay"},
		{"decay above one", func(c *models.BrainConfig) { c.Query.Decay = 1.2 }, "query.decay"},
		{"depth zero", func(c *models.BrainConfig) { c.Query.Depth = 0 }, "query.depth"},
		{"depth too large", func(c *models.BrainConfig) { c.Query.Depth = 6 }, "query.depth"},
		{"empty entities dir", func(c *models.BrainConfig) { c.EntitiesDir = " " }, "entities.dir"},
		{"unknown backend", func(c *models.BrainConfig) { c.Backend = "postgres" }, "events.backend"},
	}

	cm := NewConfigurationManager(t.TempDir())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cm.ValidateConfig(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateConfig_AccumulatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Query.Limit = -1
	cfg.Backend = "csv"

	err := NewConfigurationManager(t.TempDir()).ValidateConfig(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "query.limit") || !strings.Contains(err.Error(), "events.backend") {
		t.Errorf("expected both problems reported, got %q", err)
	}
}
