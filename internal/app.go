// Package internal provides the App struct that wires all components of the
// Brain system together and initializes the CLI layer.
package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/brain/internal/cli"
	"github.com/valter-silva-au/brain/internal/core"
	"github.com/valter-silva-au/brain/internal/logger"
	"github.com/valter-silva-au/brain/internal/observability"
	"github.com/valter-silva-au/brain/internal/storage"
	"github.com/valter-silva-au/brain/pkg/models"
)

// dataDir holds Brain's own files under the base path.
const dataDir = ".brain"

// App holds all service dependencies for the Brain system.
type App struct {
	BasePath string
	Config   *models.BrainConfig

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	Entities storage.EntityStore
	Resolver *storage.AliasResolver
	Index    *storage.KeywordIndex

	// Core services
	Graph    core.GraphExpander
	Query    core.QueryEngine
	Temporal core.TemporalQuerier
	Recorder core.EventRecorder

	// Observability. EventStore, StatsCalc and Recorder stay nil when the
	// event log cannot be opened; queries keep working without history.
	EventStore observability.EventStore
	StatsCalc  observability.StatsCalculator
}

// NewApp creates and wires all components of the Brain system. basePath is
// the knowledge base root: the directory holding .brainconfig and the
// entities directory.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app.Config = cfg

	// --- Storage layer ---
	app.Entities = storage.NewEntityStore(basePath, cfg.EntitiesDir)
	app.Resolver = storage.NewAliasResolver(app.Entities)
	app.Index = storage.NewKeywordIndex(app.Entities)
	entities := &entityAdapter{store: app.Entities}

	// --- Observability ---
	eventsPath := EventsPath(basePath, cfg)
	app.EventStore, err = OpenEventStore(cfg.Backend, eventsPath)
	if err != nil {
		logger.Warn("event log unavailable, history commands disabled: %v", err)
		app.EventStore = nil
	} else {
		app.StatsCalc = observability.NewStatsCalculator(app.EventStore)
		logger.Debug("event log opened: backend=%s path=%s", cfg.Backend, eventsPath)
	}

	// --- Core services ---
	app.Graph = core.NewGraphTraversal(entities, app.Resolver)
	app.Query = core.NewQueryEngine(app.Index, app.Graph, entities, app.Resolver)
	if app.EventStore != nil {
		app.Temporal = core.NewTemporalReconstructor(entities, app.EventStore)
		app.Recorder = core.NewEventRecorder(entities, app.EventStore, cfg.Actor)
	}

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.QueryEngine = app.Query
	cli.Resolver = app.Resolver
	cli.Entities = entities
	cli.Temporal = app.Temporal
	cli.Recorder = app.Recorder
	cli.EventStore = app.EventStore
	cli.StatsCalc = app.StatsCalc

	return app, nil
}

// Close releases resources held by the App, such as the event log handle.
// It is safe to call Close on an App whose EventStore is nil.
func (a *App) Close() error {
	if a.EventStore != nil {
		return a.EventStore.Close()
	}
	return nil
}

// EventsPath returns where the event log lives: the configured events path
// (relative paths are taken from basePath), otherwise a backend-specific
// file under .brain.
func EventsPath(basePath string, cfg *models.BrainConfig) string {
	if cfg.EventsPath != "" {
		if filepath.IsAbs(cfg.EventsPath) {
			return cfg.EventsPath
		}
		return filepath.Join(basePath, cfg.EventsPath)
	}
	name := "events.jsonl"
	if cfg.Backend == models.BackendSQLite {
		name = "events.db"
	}
	return filepath.Join(basePath, dataDir, name)
}

// OpenEventStore opens the event log for the given backend.
func OpenEventStore(backend models.EventBackend, path string) (observability.EventStore, error) {
	switch backend {
	case models.BackendSQLite:
		return observability.NewSQLiteEventStore(path)
	case models.BackendJSONL, "":
		return observability.NewJSONLEventStore(path)
	default:
		return nil, fmt.Errorf("unknown event backend %q", backend)
	}
}

// ResolveBasePath determines the knowledge base root. It checks the
// BRAIN_HOME env var, then walks up from the current directory looking for
// .brainconfig, then falls back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv("BRAIN_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}

// --- Adapters ---

// entityAdapter adapts storage.EntityStore to core.EntityReadWriter,
// translating storage.ErrNotFound into core.ErrEntityNotFound.
type entityAdapter struct {
	store storage.EntityStore
}

func (a *entityAdapter) Get(id string) (*models.Entity, error) {
	e, err := a.store.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", core.ErrEntityNotFound, id)
	}
	return e, err
}

func (a *entityAdapter) List() ([]models.Entity, error) {
	return a.store.List()
}

func (a *entityAdapter) Put(entity *models.Entity) error {
	return a.store.Put(entity)
}
