package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
// CLI flags are applied by the caller after Load returns.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("SEARCHHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("searchharvest")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".searchharvest"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides work for
// keys the config file does not mention.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.bin", cfg.Browser.Bin)
	v.SetDefault("browser.no_sandbox", cfg.Browser.NoSandbox)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)
	v.SetDefault("browser.window_size", cfg.Browser.WindowSize)
	v.SetDefault("browser.user_agent", cfg.Browser.UserAgent)
	v.SetDefault("browser.idle_window", cfg.Browser.IdleWindow)

	v.SetDefault("extraction.concurrency", cfg.Extraction.Concurrency)
	v.SetDefault("extraction.max_pages", cfg.Extraction.MaxPages)
	v.SetDefault("extraction.max_retries", cfg.Extraction.MaxRetries)
	v.SetDefault("extraction.retry_delay", cfg.Extraction.RetryDelay)
	v.SetDefault("extraction.navigation_timeout", cfg.Extraction.NavigationTimeout)
	v.SetDefault("extraction.interaction_timeout", cfg.Extraction.InteractionTimeout)
	v.SetDefault("extraction.idle_timeout", cfg.Extraction.IdleTimeout)
	v.SetDefault("extraction.action_interval", cfg.Extraction.ActionInterval)
	v.SetDefault("extraction.snapshot_on_failure", cfg.Extraction.SnapshotOnFailure)
	v.SetDefault("extraction.schema_file", cfg.Extraction.SchemaFile)

	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.mongo.enabled", cfg.Storage.Mongo.Enabled)
	v.SetDefault("storage.mongo.uri", cfg.Storage.Mongo.URI)
	v.SetDefault("storage.mongo.database", cfg.Storage.Mongo.Database)
	v.SetDefault("storage.mongo.timeout", cfg.Storage.Mongo.Timeout)

	v.SetDefault("merge.data_file", cfg.Merge.DataFile)
	v.SetDefault("merge.required_field", cfg.Merge.RequiredField)
	v.SetDefault("merge.source_field", cfg.Merge.SourceField)
	v.SetDefault("merge.url_fields", cfg.Merge.URLFields)
	v.SetDefault("merge.separator", cfg.Merge.Separator)
	v.SetDefault("merge.dedup_key", cfg.Merge.DedupKey)
	v.SetDefault("merge.format", cfg.Merge.Format)
	v.SetDefault("merge.output_file", cfg.Merge.OutputFile)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
