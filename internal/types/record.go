package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is one extracted detail-page record read from a per-site
// extraction document.
type Record struct {
	// Fields stores the record's key-value data exactly as decoded.
	Fields map[string]any

	// Source is the file the record was read from.
	Source string
}

// NewRecord creates a Record around fields decoded from source.
func NewRecord(source string, fields map[string]any) *Record {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Record{Fields: fields, Source: source}
}

// Set sets a field value.
func (r *Record) Set(key string, value any) {
	r.Fields[key] = value
}

// Get retrieves a field value.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.Fields[key]
	return v, ok
}

// GetString retrieves a field value as a string.
func (r *Record) GetString(key string) string {
	v, ok := r.Fields[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// ToFlatMap renders every field as a single string cell. Lists are joined
// with sep; null renders as the empty string.
func (r *Record) ToFlatMap(sep string) map[string]string {
	flat := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		flat[k] = FormatCell(v, sep)
	}
	return flat
}

// FormatCell renders a decoded JSON value as one tabular cell.
func FormatCell(v any, sep string) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	case []string:
		return strings.Join(val, sep)
	case []any:
		parts := make([]string, 0, len(val))
		for _, e := range val {
			if e == nil {
				continue
			}
			parts = append(parts, FormatCell(e, sep))
		}
		return strings.Join(parts, sep)
	case float64, int, int64:
		return fmt.Sprint(val)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}
