package main

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/IshaanNene/SearchHarvest/internal/config"
	"github.com/IshaanNene/SearchHarvest/internal/observability"
	"github.com/IshaanNene/SearchHarvest/internal/storage"
	"github.com/IshaanNene/SearchHarvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverSites(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "zeta", "web_search_schema.json"), "{}")
	writeFile(t, filepath.Join(root, "alpha", "web_search_schema.json"), "{}")
	writeFile(t, filepath.Join(root, "other", "notes.txt"), "")

	sites, err := discoverSites(root, "web_search_schema.json")
	if err != nil {
		t.Fatalf("discover error: %v", err)
	}
	if want := []string{"alpha", "zeta"}; !reflect.DeepEqual(sites, want) {
		t.Errorf("expected %v, got %v", want, sites)
	}
}

func TestPendingSites(t *testing.T) {
	root := t.TempDir()
	files := storage.NewResultFileStore(root, testLogger)
	ctx := context.Background()

	done := &types.Result{SiteKey: "alpha", State: types.StateDone, URLs: []string{"https://a.test/1"}, URLCount: 1}
	failed := &types.Result{SiteKey: "beta", State: types.StateError, URLs: []string{}, Error: "boom"}
	for _, r := range []*types.Result{done, failed} {
		if err := files.SaveResult(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got := pendingSites(files, []string{"alpha", "beta", "gamma"}, testLogger)
	if want := []string{"beta", "gamma"}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRunMergeWritesCSV(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alpha", "extracted_data.json"), `[
  {"address": "1 Main St", "source_url": "https://www.alpha.com/a/b",
   "property_image_urls": ["//cdn.alpha.com/x.jpg", "/img/y.jpg"]},
  {"address": "", "source_url": "https://www.alpha.com/a/c"}
]`)

	cfg := config.DefaultConfig()
	cfg.Storage.OutputPath = root
	metrics := observability.NewMetrics(testLogger)

	if err := runMerge(context.Background(), cfg, nil, metrics, testLogger); err != nil {
		t.Fatalf("merge error: %v", err)
	}

	f, err := os.Open(filepath.Join(root, cfg.Merge.OutputFile+".csv"))
	if err != nil {
		t.Fatalf("expected csv output: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and one record, got %d rows", len(rows))
	}
	if want := []string{"address", "property_image_urls", "source_url"}; !reflect.DeepEqual(rows[0], want) {
		t.Errorf("expected header %v, got %v", want, rows[0])
	}
	if rows[1][1] != "https://cdn.alpha.com/x.jpg,https://www.alpha.com/img/y.jpg" {
		t.Errorf("unexpected url cell %q", rows[1][1])
	}
	if metrics.RecordsStored.Load() != 1 {
		t.Errorf("expected 1 stored record, got %d", metrics.RecordsStored.Load())
	}
}

func TestRunMergeNothingToMerge(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.OutputPath = t.TempDir()
	if err := runMerge(context.Background(), cfg, nil, observability.NewMetrics(testLogger), testLogger); err == nil {
		t.Error("expected an error when no sources exist")
	}
}
