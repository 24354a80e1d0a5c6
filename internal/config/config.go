package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for SearchHarvest.
type Config struct {
	Browser    BrowserConfig    `mapstructure:"browser"    yaml:"browser"`
	Extraction ExtractionConfig `mapstructure:"extraction" yaml:"extraction"`
	Storage    StorageConfig    `mapstructure:"storage"    yaml:"storage"`
	Merge      MergeConfig      `mapstructure:"merge"      yaml:"merge"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
}

// BrowserConfig controls the Chromium process behind each session.
type BrowserConfig struct {
	Headless   bool          `mapstructure:"headless"    yaml:"headless"`
	Bin        string        `mapstructure:"bin"         yaml:"bin"`
	NoSandbox  bool          `mapstructure:"no_sandbox"  yaml:"no_sandbox"`
	Stealth    bool          `mapstructure:"stealth"     yaml:"stealth"`
	WindowSize string        `mapstructure:"window_size" yaml:"window_size"`
	UserAgent  string        `mapstructure:"user_agent"  yaml:"user_agent"`
	IdleWindow time.Duration `mapstructure:"idle_window" yaml:"idle_window"`
}

// ExtractionConfig controls the pagination engine and the batch runner.
type ExtractionConfig struct {
	Concurrency        int           `mapstructure:"concurrency"         yaml:"concurrency"`
	MaxPages           int           `mapstructure:"max_pages"           yaml:"max_pages"`
	MaxRetries         int           `mapstructure:"max_retries"         yaml:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"         yaml:"retry_delay"`
	NavigationTimeout  time.Duration `mapstructure:"navigation_timeout"  yaml:"navigation_timeout"`
	InteractionTimeout time.Duration `mapstructure:"interaction_timeout" yaml:"interaction_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"        yaml:"idle_timeout"`
	ActionInterval     time.Duration `mapstructure:"action_interval"     yaml:"action_interval"`
	SnapshotOnFailure  bool          `mapstructure:"snapshot_on_failure" yaml:"snapshot_on_failure"`
	SchemaFile         string        `mapstructure:"schema_file"         yaml:"schema_file"`
}

// StorageConfig controls where results are written.
type StorageConfig struct {
	OutputPath string      `mapstructure:"output_path" yaml:"output_path"`
	Mongo      MongoConfig `mapstructure:"mongo"       yaml:"mongo"`
}

// MongoConfig enables the MongoDB sink.
type MongoConfig struct {
	Enabled  bool          `mapstructure:"enabled"  yaml:"enabled"`
	URI      string        `mapstructure:"uri"      yaml:"uri"`
	Database string        `mapstructure:"database" yaml:"database"`
	Timeout  time.Duration `mapstructure:"timeout"  yaml:"timeout"`
}

// MergeConfig controls the merge/export stage.
type MergeConfig struct {
	DataFile      string   `mapstructure:"data_file"      yaml:"data_file"`
	RequiredField string   `mapstructure:"required_field" yaml:"required_field"`
	SourceField   string   `mapstructure:"source_field"   yaml:"source_field"`
	URLFields     []string `mapstructure:"url_fields"     yaml:"url_fields"`
	Separator     string   `mapstructure:"separator"      yaml:"separator"`
	DedupKey      string   `mapstructure:"dedup_key"      yaml:"dedup_key"`
	Format        string   `mapstructure:"format"         yaml:"format"`
	OutputFile    string   `mapstructure:"output_file"    yaml:"output_file"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:   true,
			Stealth:    true,
			WindowSize: "1920,1080",
			IdleWindow: 500 * time.Millisecond,
		},
		Extraction: ExtractionConfig{
			Concurrency:        2,
			MaxPages:           50,
			MaxRetries:         2,
			RetryDelay:         1 * time.Second,
			NavigationTimeout:  30 * time.Second,
			InteractionTimeout: 10 * time.Second,
			IdleTimeout:        20 * time.Second,
			ActionInterval:     2 * time.Second,
			SnapshotOnFailure:  true,
			SchemaFile:         "web_search_schema.json",
		},
		Storage: StorageConfig{
			OutputPath: "./output",
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "searchharvest",
				Timeout:  10 * time.Second,
			},
		},
		Merge: MergeConfig{
			DataFile:      "extracted_data.json",
			RequiredField: "address",
			SourceField:   "source_url",
			URLFields:     []string{"property_image_urls", "brochure_doc_urls"},
			Separator:     ",",
			Format:        "csv",
			OutputFile:    "merged_properties",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
