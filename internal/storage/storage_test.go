package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/SearchHarvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func sampleRecords() []*types.Record {
	return []*types.Record{
		types.NewRecord("a/extracted_data.json", map[string]any{
			"address":             "1 Main St",
			"price":               json.Number("250000"),
			"property_image_urls": []any{"https://x.com/1.jpg", "https://x.com/2.jpg"},
		}),
		types.NewRecord("b/extracted_data.json", map[string]any{
			"address": "2 High St",
			"rooms":   json.Number("3.5"),
		}),
	}
}

func TestCSVStorage(t *testing.T) {
	dir := t.TempDir()
	columns := []string{"address", "price", "property_image_urls", "rooms"}
	s, err := NewDatasetStorage("csv", dir, "merged_properties", columns, ",", testLogger)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if err := s.Store(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("store error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "merged_properties.csv"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	want := [][]string{
		columns,
		{"1 Main St", "250000", "https://x.com/1.jpg,https://x.com/2.jpg", ""},
		{"2 High St", "", "", "3.5"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("csv rows = %q\nwant %q", rows, want)
	}
}

func TestJSONLStorage(t *testing.T) {
	dir := t.TempDir()
	s, err := NewDatasetStorage("jsonl", dir, "merged_properties", nil, ",", testLogger)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if err := s.Store(context.Background(), sampleRecords()); err != nil {
		t.Fatalf("store error: %v", err)
	}
	s.Close()

	body, err := os.ReadFile(filepath.Join(dir, "merged_properties.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	// numbers keep their literal form
	if !strings.Contains(lines[0], `"price":250000`) || !strings.Contains(lines[1], `"rooms":3.5`) {
		t.Errorf("unexpected jsonl output:\n%s", body)
	}
}

func TestNewDatasetStorageUnknownFormat(t *testing.T) {
	if _, err := NewDatasetStorage("xml", t.TempDir(), "x", nil, ",", testLogger); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestResultFileStore(t *testing.T) {
	root := t.TempDir()
	store := NewResultFileStore(root, testLogger)

	res := &types.Result{
		SiteKey:    "shop",
		RunID:      "run-1",
		State:      types.StateDone,
		StopReason: types.StopLastPage,
		Pages:      2,
		URLs:       []string{"https://shop.test/1", "https://shop.test/2"},
		URLCount:   2,
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	}
	if err := store.SaveResult(context.Background(), res); err != nil {
		t.Fatalf("save error: %v", err)
	}

	doc, err := LoadResult(filepath.Join(root, "shop", ResultJSONFile))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	got, ok := doc["shop"]
	if !ok {
		t.Fatalf("expected document keyed by site, got %v", doc)
	}
	if got.State != types.StateDone || got.StopReason != types.StopLastPage || len(got.URLs) != 2 {
		t.Errorf("unexpected round-tripped result %+v", got)
	}

	text, err := os.ReadFile(filepath.Join(root, "shop", ResultTextFile))
	if err != nil {
		t.Fatal(err)
	}
	if string(text) != "https://shop.test/1\nhttps://shop.test/2\n" {
		t.Errorf("unexpected url list %q", text)
	}

	raw, _ := os.ReadFile(filepath.Join(root, "shop", ResultJSONFile))
	if !strings.Contains(string(raw), `"status": "done"`) {
		t.Errorf("status should be written by name:\n%s", raw)
	}
}

func TestWriteSnapshot(t *testing.T) {
	store := NewResultFileStore(t.TempDir(), testLogger)
	html := "<html><body>results</body></html>"

	path, err := store.WriteSnapshot(context.Background(), "shop", 3, html)
	if err != nil {
		t.Fatalf("snapshot error: %v", err)
	}
	if filepath.Base(path) != "page-003.html.br" {
		t.Errorf("unexpected snapshot name %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	body, err := io.ReadAll(brotli.NewReader(f))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(body) != html {
		t.Errorf("snapshot content mismatch: %q", body)
	}
}

func TestBSONValue(t *testing.T) {
	if v := bsonValue(json.Number("42")); v != int64(42) {
		t.Errorf("expected int64 42, got %#v", v)
	}
	if v := bsonValue(json.Number("4.5")); v != 4.5 {
		t.Errorf("expected float 4.5, got %#v", v)
	}
	list := bsonValue([]any{json.Number("1"), "x"}).([]any)
	if list[0] != int64(1) || list[1] != "x" {
		t.Errorf("unexpected list conversion %#v", list)
	}
}

type stubResultStore struct {
	name  string
	err   error
	saved int
}

func (s *stubResultStore) SaveResult(context.Context, *types.Result) error {
	s.saved++
	return s.err
}
func (s *stubResultStore) Close() error { return nil }
func (s *stubResultStore) Name() string { return s.name }

func TestMultiResultStore(t *testing.T) {
	failing := &stubResultStore{name: "bad", err: errors.New("down")}
	ok := &stubResultStore{name: "good"}
	m := NewMultiResultStore([]ResultStore{failing, ok}, testLogger)

	err := m.SaveResult(context.Background(), &types.Result{SiteKey: "x"})
	if err == nil {
		t.Error("expected the first backend error")
	}
	if ok.saved != 1 {
		t.Error("a failing backend must not stop the others")
	}
}
