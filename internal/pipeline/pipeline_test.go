package pipeline

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/IshaanNene/SearchHarvest/internal/config"
	"github.com/IshaanNene/SearchHarvest/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newRecord(fields map[string]any) *types.Record {
	return types.NewRecord("site/extracted_data.json", fields)
}

func TestPipelineFromConfig(t *testing.T) {
	p := FromConfig(config.DefaultConfig().Merge, testLogger)

	rec := newRecord(map[string]any{
		"address":    "1 Main St",
		"source_url": "https://www.site.com/listing/7",
		"image_urls": []any{"//cdn.site.com/a.jpg", "", "/b.jpg", nil},
		"price":      "100",
	})
	result, err := p.Process(rec)
	if err != nil {
		t.Fatalf("pipeline error: %v", err)
	}
	if result == nil {
		t.Fatal("record with address should be kept")
	}

	images, _ := result.Get("image_urls")
	list, ok := images.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("expected 2 normalized images, got %#v", images)
	}
	if list[0] != "https://cdn.site.com/a.jpg" || list[1] != "https://www.site.com/b.jpg" {
		t.Errorf("unexpected normalized images %v", list)
	}
	if result.GetString("source_url") != "https://www.site.com/listing/7" {
		t.Error("source_url must not be rewritten")
	}

	dropped, _ := p.Process(newRecord(map[string]any{"address": nil}))
	if dropped != nil {
		t.Error("record with null address should be dropped")
	}
	if p.Dropped()["required_fields"] != 1 {
		t.Errorf("expected one drop at required_fields, got %v", p.Dropped())
	}
}

func TestRequiredFieldsMiddleware(t *testing.T) {
	m := &RequiredFieldsMiddleware{Fields: []string{"address"}}

	result, err := m.Process(newRecord(map[string]any{"address": "Hauptstr. 1"}))
	if err != nil || result == nil {
		t.Error("record with required field should pass")
	}

	for name, fields := range map[string]map[string]any{
		"missing": {"price": "1"},
		"null":    {"address": nil},
		"empty":   {"address": ""},
		"blank":   {"address": "   "},
		"no list": {"address": []any{}},
	} {
		if result, _ := m.Process(newRecord(fields)); result != nil {
			t.Errorf("%s address should be dropped", name)
		}
	}

	// non-string values count as present
	if result, _ := m.Process(newRecord(map[string]any{"address": 0})); result == nil {
		t.Error("numeric address should pass")
	}
}

func TestURLNormalizeMiddleware(t *testing.T) {
	m := &URLNormalizeMiddleware{Fields: []string{"photo"}, Suffix: DefaultURLFieldSuffix, SourceField: "source_url"}

	rec := newRecord(map[string]any{
		"source_url":      "https://www.site.com/a/b",
		"photo":           "img.jpg",
		"floor_plan_urls": []string{"/plan.pdf", " "},
		"description":     "/not/a/url/field",
	})
	result, _ := m.Process(rec)

	if got := result.GetString("photo"); got != "https://www.site.com/a/img.jpg" {
		t.Errorf("unexpected photo %q", got)
	}
	plans, _ := result.Get("floor_plan_urls")
	if p, ok := plans.([]string); !ok || len(p) != 1 || p[0] != "https://www.site.com/plan.pdf" {
		t.Errorf("unexpected floor plans %#v", plans)
	}
	if got := result.GetString("description"); got != "/not/a/url/field" {
		t.Errorf("non-url fields must stay verbatim, got %q", got)
	}
}

func TestURLNormalizeWithoutSource(t *testing.T) {
	m := &URLNormalizeMiddleware{Suffix: DefaultURLFieldSuffix, SourceField: "source_url"}
	rec := newRecord(map[string]any{"image_urls": []any{"relative.jpg", "https://x.org/y.jpg"}})

	result, _ := m.Process(rec)
	images, _ := result.Get("image_urls")
	list := images.([]any)
	if list[0] != "relative.jpg" || list[1] != "https://x.org/y.jpg" {
		t.Errorf("unresolvable entries should be kept as is, got %v", list)
	}
}

func TestDedupMiddleware(t *testing.T) {
	m := NewDedupMiddleware("source_url")

	result, err := m.Process(newRecord(map[string]any{"source_url": "https://example.com/page1"}))
	if err != nil || result == nil {
		t.Fatal("first record should pass dedup")
	}

	result, _ = m.Process(newRecord(map[string]any{"source_url": "https://example.com/page1"}))
	if result != nil {
		t.Error("duplicate record should be dropped (nil result)")
	}

	result, err = m.Process(newRecord(map[string]any{"source_url": "https://example.com/page2"}))
	if err != nil || result == nil {
		t.Fatal("different key should pass dedup")
	}

	result, _ = m.Process(newRecord(map[string]any{"address": "no key"}))
	if result == nil {
		t.Error("records without the key should pass")
	}
}

type failingMiddleware struct{}

func (failingMiddleware) Name() string { return "explode" }
func (failingMiddleware) Process(*types.Record) (*types.Record, error) {
	return nil, errors.New("boom")
}

func TestPipelineError(t *testing.T) {
	p := New(testLogger)
	p.Use(failingMiddleware{})

	_, err := p.Process(newRecord(map[string]any{"address": "x"}))
	var pe *types.PipelineError
	if !errors.As(err, &pe) || pe.Stage != "explode" {
		t.Fatalf("expected PipelineError at explode, got %v", err)
	}
	if p.Len() != 1 || p.Stages()[0] != "explode" {
		t.Errorf("unexpected stages %v", p.Stages())
	}
}
