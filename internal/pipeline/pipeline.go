// Package pipeline runs merge records through an ordered chain of
// middleware that can rewrite or drop them.
package pipeline

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/IshaanNene/SearchHarvest/internal/config"
	"github.com/IshaanNene/SearchHarvest/internal/types"
)

// Middleware processes a record and returns the (possibly modified) record.
// Return nil to drop the record from the pipeline.
type Middleware interface {
	// Name returns the middleware's identifier.
	Name() string

	// Process transforms a record. Return nil to drop the record.
	Process(rec *types.Record) (*types.Record, error)
}

// Pipeline chains middleware processors together.
type Pipeline struct {
	middlewares []Middleware
	logger      *slog.Logger

	mu      sync.Mutex
	dropped map[string]int
}

// New creates a new Pipeline.
func New(logger *slog.Logger) *Pipeline {
	return &Pipeline{
		logger:  logger.With("component", "pipeline"),
		dropped: make(map[string]int),
	}
}

// FromConfig builds the merge chain: required field, URL normalization,
// then optional dedup.
func FromConfig(cfg config.MergeConfig, logger *slog.Logger) *Pipeline {
	p := New(logger)
	p.Use(&RequiredFieldsMiddleware{Fields: []string{cfg.RequiredField}})
	p.Use(&URLNormalizeMiddleware{
		Fields:      cfg.URLFields,
		Suffix:      DefaultURLFieldSuffix,
		SourceField: cfg.SourceField,
	})
	if cfg.DedupKey != "" {
		p.Use(NewDedupMiddleware(cfg.DedupKey))
	}
	return p
}

// Use adds a middleware to the pipeline chain.
func (p *Pipeline) Use(mw Middleware) {
	p.middlewares = append(p.middlewares, mw)
	p.logger.Debug("middleware added", "name", mw.Name(), "position", len(p.middlewares))
}

// Process runs the record through all middleware in order.
func (p *Pipeline) Process(rec *types.Record) (*types.Record, error) {
	current := rec

	for _, mw := range p.middlewares {
		result, err := mw.Process(current)
		if err != nil {
			return nil, &types.PipelineError{
				Stage:  mw.Name(),
				Record: current,
				Err:    err,
			}
		}
		if result == nil {
			p.mu.Lock()
			p.dropped[mw.Name()]++
			p.mu.Unlock()
			p.logger.Debug("record dropped", "stage", mw.Name(), "source", rec.Source)
			return nil, nil
		}
		current = result
	}

	return current, nil
}

// Len returns the number of middleware in the chain.
func (p *Pipeline) Len() int {
	return len(p.middlewares)
}

// Dropped returns how many records each stage dropped.
func (p *Pipeline) Dropped() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.dropped))
	for k, v := range p.dropped {
		out[k] = v
	}
	return out
}

// Stages returns the middleware names in chain order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.middlewares))
	for i, mw := range p.middlewares {
		names[i] = mw.Name()
	}
	return names
}

// --- Built-in Middleware ---

// RequiredFieldsMiddleware drops records whose required fields are
// missing, null, blank or an empty list.
type RequiredFieldsMiddleware struct {
	Fields []string
}

func (m *RequiredFieldsMiddleware) Name() string { return "required_fields" }

func (m *RequiredFieldsMiddleware) Process(rec *types.Record) (*types.Record, error) {
	for _, field := range m.Fields {
		val, ok := rec.Get(field)
		if !ok || isBlank(val) {
			return nil, nil
		}
	}
	return rec, nil
}

func isBlank(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	}
	return false
}

// DedupMiddleware drops records whose key field repeats an earlier one.
// Records without the key pass through.
type DedupMiddleware struct {
	mu   sync.Mutex
	seen map[string]struct{}
	key  string
}

func NewDedupMiddleware(key string) *DedupMiddleware {
	return &DedupMiddleware{
		seen: make(map[string]struct{}),
		key:  key,
	}
}

func (m *DedupMiddleware) Name() string { return "dedup" }

func (m *DedupMiddleware) Process(rec *types.Record) (*types.Record, error) {
	val, ok := rec.Get(m.key)
	if !ok || isBlank(val) {
		return rec, nil
	}
	key := strings.TrimSpace(types.FormatCell(val, "\x00"))

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.seen[key]; exists {
		return nil, nil
	}
	m.seen[key] = struct{}{}
	return rec, nil
}

// sortedKeys is shared by middleware that iterate fields.
func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
