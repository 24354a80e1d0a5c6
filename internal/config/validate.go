package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Extraction.Concurrency < 1 {
		return fmt.Errorf("extraction.concurrency must be >= 1, got %d", cfg.Extraction.Concurrency)
	}
	if cfg.Extraction.Concurrency > 64 {
		return fmt.Errorf("extraction.concurrency must be <= 64, got %d", cfg.Extraction.Concurrency)
	}
	if cfg.Extraction.MaxPages < 1 {
		return fmt.Errorf("extraction.max_pages must be >= 1, got %d", cfg.Extraction.MaxPages)
	}
	if cfg.Extraction.MaxRetries < 0 {
		return fmt.Errorf("extraction.max_retries must be >= 0, got %d", cfg.Extraction.MaxRetries)
	}
	if cfg.Extraction.RetryDelay < 0 {
		return fmt.Errorf("extraction.retry_delay must be >= 0")
	}
	if cfg.Extraction.NavigationTimeout <= 0 {
		return fmt.Errorf("extraction.navigation_timeout must be > 0")
	}
	if cfg.Extraction.InteractionTimeout <= 0 {
		return fmt.Errorf("extraction.interaction_timeout must be > 0")
	}
	if cfg.Extraction.IdleTimeout <= 0 {
		return fmt.Errorf("extraction.idle_timeout must be > 0")
	}
	if cfg.Extraction.ActionInterval < 0 {
		return fmt.Errorf("extraction.action_interval must be >= 0")
	}
	if cfg.Extraction.SchemaFile == "" {
		return fmt.Errorf("extraction.schema_file must not be empty")
	}
	if cfg.Browser.IdleWindow <= 0 {
		return fmt.Errorf("browser.idle_window must be > 0")
	}

	if cfg.Storage.OutputPath == "" {
		return fmt.Errorf("storage.output_path must not be empty")
	}
	if cfg.Storage.Mongo.Enabled {
		u, err := url.Parse(cfg.Storage.Mongo.URI)
		if err != nil {
			return fmt.Errorf("invalid storage.mongo.uri: %w", err)
		}
		if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
			return fmt.Errorf("storage.mongo.uri scheme must be mongodb or mongodb+srv, got %q", u.Scheme)
		}
		if cfg.Storage.Mongo.Database == "" {
			return fmt.Errorf("storage.mongo.database must not be empty")
		}
	}

	if cfg.Merge.DataFile == "" {
		return fmt.Errorf("merge.data_file must not be empty")
	}
	if cfg.Merge.RequiredField == "" {
		return fmt.Errorf("merge.required_field must not be empty")
	}
	validFormats := map[string]bool{"csv": true, "jsonl": true}
	if !validFormats[cfg.Merge.Format] {
		return fmt.Errorf("merge.format %q is not supported (valid: csv, jsonl)", cfg.Merge.Format)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}
