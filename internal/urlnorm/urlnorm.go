// Package urlnorm turns the relative link forms found on arbitrary sites
// into absolute URLs.
package urlnorm

import (
	"net/url"
	"strings"
)

// Normalize makes raw absolute against source, the page it was found on.
//
//   - "http://..." or "https://..." is returned unchanged
//   - "//host/path" takes the scheme of source
//   - "/path" takes the scheme and host of source
//   - anything else is resolved relative to source
//
// ok is false when raw is blank or cannot be made absolute.
func Normalize(raw, source string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if hasHTTPScheme(raw) {
		return raw, true
	}

	base, err := url.Parse(strings.TrimSpace(source))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", false
	}

	switch {
	case strings.HasPrefix(raw, "//"):
		return base.Scheme + ":" + raw, true
	case strings.HasPrefix(raw, "/"):
		return base.Scheme + "://" + base.Host + raw, true
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

// NormalizeAll normalizes every entry, dropping the ones Normalize rejects.
func NormalizeAll(raws []string, source string) []string {
	out := make([]string, 0, len(raws))
	for _, raw := range raws {
		if abs, ok := Normalize(raw, source); ok {
			out = append(out, abs)
		}
	}
	return out
}

func hasHTTPScheme(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
