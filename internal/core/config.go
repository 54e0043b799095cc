// Package core contains the business logic for Brain: relationship graph
// traversal, the combined keyword and graph query, temporal reconstruction
// from the event log, event recording and configuration.
package core

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/brain/pkg/models"
)

// ConfigFileName is the per-knowledge-base configuration file.
const ConfigFileName = ".brainconfig"

// DefaultServerAddr is the address the HTTP API listens on by default.
const DefaultServerAddr = "127.0.0.1:7788"

// ConfigurationManager defines the interface for loading and validating
// the knowledge base configuration (.brainconfig).
type ConfigurationManager interface {
	LoadConfig() (*models.BrainConfig, error)
	ValidateConfig(cfg *models.BrainConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	// basePath is the knowledge base root where .brainconfig resides.
	basePath string
}

// NewConfigurationManager creates a new ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a BrainConfig populated with the defaults.
func DefaultConfig() *models.BrainConfig {
	return &models.BrainConfig{
		Query: models.QueryDefaults{
			Limit: DefaultLimit,
			Decay: DefaultDecay,
			Depth: DefaultDepth,
			Graph: true,
		},
		EntitiesDir: "entity",
		Backend:     models.BackendJSONL,
		ServerAddr:  DefaultServerAddr,
	}
}

// LoadConfig reads .brainconfig from the base path. A missing file yields
// the defaults. Environment variables prefixed BRAIN_ override file values
// (BRAIN_QUERY_LIMIT, BRAIN_EVENTS_BACKEND, ...).
func (cm *viperConfigManager) LoadConfig() (*models.BrainConfig, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("brain")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("query.limit", cfg.Query.Limit)
	v.SetDefault("query.decay", cfg.Query.Decay)
	v.SetDefault("query.depth", cfg.Query.Depth)
	v.SetDefault("query.graph", cfg.Query.Graph)
	v.SetDefault("entities.dir", cfg.EntitiesDir)
	v.SetDefault("events.backend", string(cfg.Backend))
	v.SetDefault("events.path", "")
	v.SetDefault("server.addr", cfg.ServerAddr)
	v.SetDefault("actor", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	cfg.Query.Limit = v.GetInt("query.limit")
	cfg.Query.Decay = v.GetFloat64("query.decay")
	cfg.Query.Depth = v.GetInt("query.depth")
	cfg.Query.Graph = v.GetBool("query.graph")
	cfg.EntitiesDir = v.GetString("entities.dir")
	cfg.Backend = models.EventBackend(strings.ToLower(v.GetString("events.backend")))
	cfg.EventsPath = v.GetString("events.path")
	cfg.ServerAddr = v.GetString("server.addr")
	cfg.Actor = v.GetString("actor")
	if cfg.Actor == "" {
		cfg.Actor = os.Getenv("USER")
	}

	return cfg, nil
}

var validBackends = map[models.EventBackend]bool{
	models.BackendJSONL:  true,
	models.BackendSQLite: true,
}

// ValidateConfig checks the configuration for invalid values and returns
// one error listing every problem found.
func (cm *viperConfigManager) ValidateConfig(cfg *models.BrainConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.Query.Limit < 1 {
		errs = append(errs, fmt.Sprintf("query.limit must be at least 1, got %d", cfg.Query.Limit))
	}

	if math.IsNaN(cfg.Query.Decay) || cfg.Query.Decay <= 0 || cfg.Query.Decay > 1 {
		errs = append(errs, fmt.Sprintf("query.decay %v is invalid, must be in (0, 1]", cfg.Query.Decay))
	}

	if cfg.Query.Depth < 1 || cfg.Query.Depth > MaxDepth {
		errs = append(errs, fmt.Sprintf(
			"query.depth %d is invalid, must be between 1 and %d",
			cfg.Query.Depth, MaxDepth,
		))
	}

	if strings.TrimSpace(cfg.EntitiesDir) == "" {
		errs = append(errs, "entities.dir must not be empty")
	}

	if !validBackends[cfg.Backend] {
		errs = append(errs, fmt.Sprintf(
			"events.backend %q is invalid, must be one of: jsonl, sqlite",
			cfg.Backend,
		))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}
