package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// LinkSet collects absolute detail URLs. URLs differing only in scheme or
// host case, or in an explicit default port, count once; the first spelling
// seen is kept. Path, query and fragment are significant.
type LinkSet struct {
	mu   sync.RWMutex
	seen map[string]string
}

// NewLinkSet creates a LinkSet with the given estimated capacity.
func NewLinkSet(estimatedCapacity int) *LinkSet {
	return &LinkSet{
		seen: make(map[string]string, estimatedCapacity),
	}
}

// Add records absURL and reports whether it was new.
func (s *LinkSet) Add(absURL string) bool {
	key := hashURL(linkKey(absURL))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = absURL
	return true
}

// Contains reports whether absURL is present.
func (s *LinkSet) Contains(absURL string) bool {
	key := hashURL(linkKey(absURL))

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[key]
	return ok
}

// Len returns the number of unique URLs.
func (s *LinkSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// Sorted returns the collected URLs in lexical order.
func (s *LinkSet) Sorted() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	urls := make([]string, 0, len(s.seen))
	for _, u := range s.seen {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// linkKey is the identity of an absolute URL:
// - lowercases scheme and host
// - removes default ports (80 for http, 443 for https)
// Everything after the host is kept byte for byte.
func linkKey(absURL string) string {
	u, err := url.Parse(absURL)
	if err != nil || u.Host == "" {
		return absURL
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if (scheme == "http" && strings.HasSuffix(host, ":80")) || (scheme == "https" && strings.HasSuffix(host, ":443")) {
		host = host[:strings.LastIndex(host, ":")]
	}

	_, rest, ok := strings.Cut(absURL, "://")
	if !ok {
		return absURL
	}
	if u.User != nil {
		_, rest, _ = strings.Cut(rest, "@")
	}
	rest, ok = strings.CutPrefix(rest, u.Host)
	if !ok {
		return absURL
	}
	return scheme + "://" + host + rest
}

// hashURL creates a compact hash of a URL string.
func hashURL(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:16])
}

// fingerprint hashes the raw hrefs seen on one result page, independent of
// their order on the page.
func fingerprint(hrefs []string) string {
	sorted := append([]string(nil), hrefs...)
	sort.Strings(sorted)
	h := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(h[:16])
}
