package pipeline

import (
	"strings"

	"github.com/IshaanNene/SearchHarvest/internal/types"
	"github.com/IshaanNene/SearchHarvest/internal/urlnorm"
)

// DefaultURLFieldSuffix marks list fields that hold URLs.
const DefaultURLFieldSuffix = "_urls"

// URLNormalizeMiddleware makes URL-bearing fields absolute against the
// record's own source page. A field is URL-bearing when it is listed in
// Fields or its name ends with Suffix. Blank entries are removed; entries
// that cannot be resolved are kept as they are.
type URLNormalizeMiddleware struct {
	Fields      []string
	Suffix      string
	SourceField string
}

func (m *URLNormalizeMiddleware) Name() string { return "url_normalize" }

func (m *URLNormalizeMiddleware) Process(rec *types.Record) (*types.Record, error) {
	source := rec.GetString(m.SourceField)

	for _, key := range sortedKeys(rec.Fields) {
		if !m.isURLField(key) {
			continue
		}
		switch val := rec.Fields[key].(type) {
		case string:
			rec.Set(key, normalizeOne(val, source))
		case []any:
			out := make([]any, 0, len(val))
			for _, entry := range val {
				s, ok := entry.(string)
				if !ok {
					if entry != nil {
						out = append(out, entry)
					}
					continue
				}
				if strings.TrimSpace(s) == "" {
					continue
				}
				out = append(out, normalizeOne(s, source))
			}
			rec.Set(key, out)
		case []string:
			out := make([]string, 0, len(val))
			for _, s := range val {
				if strings.TrimSpace(s) == "" {
					continue
				}
				out = append(out, normalizeOne(s, source))
			}
			rec.Set(key, out)
		}
	}
	return rec, nil
}

func (m *URLNormalizeMiddleware) isURLField(name string) bool {
	if name == m.SourceField {
		return false
	}
	for _, f := range m.Fields {
		if f == name {
			return true
		}
	}
	return m.Suffix != "" && strings.HasSuffix(name, m.Suffix)
}

func normalizeOne(raw, source string) string {
	if abs, ok := urlnorm.Normalize(raw, source); ok {
		return abs
	}
	return raw
}
