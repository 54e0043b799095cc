package models

// EventBackend selects the physical format of the event log.
type EventBackend string

const (
	BackendJSONL  EventBackend = "jsonl"
	BackendSQLite EventBackend = "sqlite"
)

// QueryDefaults holds the default query parameters.
type QueryDefaults struct {
	Limit int     `yaml:"limit" mapstructure:"limit"`
	Decay float64 `yaml:"decay" mapstructure:"decay"`
	Depth int     `yaml:"depth" mapstructure:"depth"`
	Graph bool    `yaml:"graph" mapstructure:"graph"`
}

// BrainConfig holds settings read from .brainconfig via Viper.
type BrainConfig struct {
	Query       QueryDefaults `yaml:"query" mapstructure:"query"`
	EntitiesDir string        `yaml:"entities_dir" mapstructure:"entities_dir"`
	Backend     EventBackend  `yaml:"events_backend" mapstructure:"events_backend"`
	EventsPath  string        `yaml:"events_path,omitempty" mapstructure:"events_path"`
	ServerAddr  string        `yaml:"server_addr" mapstructure:"server_addr"`
	Actor       string        `yaml:"actor,omitempty" mapstructure:"actor"`
}
