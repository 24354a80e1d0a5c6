package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"extraction.concurrency":        func(c *Config) { c.Extraction.Concurrency = 0 },
		"extraction.max_pages":          func(c *Config) { c.Extraction.MaxPages = 0 },
		"extraction.max_retries":        func(c *Config) { c.Extraction.MaxRetries = -1 },
		"extraction.navigation_timeout": func(c *Config) { c.Extraction.NavigationTimeout = 0 },
		"merge.format":                  func(c *Config) { c.Merge.Format = "xml" },
		"logging.level":                 func(c *Config) { c.Logging.Level = "trace" },
		"storage.mongo.uri":             func(c *Config) { c.Storage.Mongo.Enabled = true; c.Storage.Mongo.URI = "http://db" },
	}
	for field, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		err := Validate(cfg)
		if err == nil {
			t.Errorf("%s: expected validation error", field)
			continue
		}
		if !strings.Contains(err.Error(), field) {
			t.Errorf("%s: error should name the field, got %v", field, err)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searchharvest.yaml")
	body := `
extraction:
  max_pages: 7
  retry_delay: 250ms
merge:
  format: jsonl
  url_fields: [photos]
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Extraction.MaxPages != 7 {
		t.Errorf("expected max_pages 7, got %d", cfg.Extraction.MaxPages)
	}
	if cfg.Extraction.RetryDelay != 250*time.Millisecond {
		t.Errorf("expected retry_delay 250ms, got %s", cfg.Extraction.RetryDelay)
	}
	if cfg.Merge.Format != "jsonl" {
		t.Errorf("expected jsonl format, got %q", cfg.Merge.Format)
	}
	if len(cfg.Merge.URLFields) != 1 || cfg.Merge.URLFields[0] != "photos" {
		t.Errorf("unexpected url_fields %v", cfg.Merge.URLFields)
	}
	// untouched keys keep defaults
	if cfg.Merge.RequiredField != "address" {
		t.Errorf("expected default required field, got %q", cfg.Merge.RequiredField)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SEARCHHARVEST_EXTRACTION_CONCURRENCY", "5")
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Extraction.Concurrency != 5 {
		t.Errorf("expected env override 5, got %d", cfg.Extraction.Concurrency)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}
