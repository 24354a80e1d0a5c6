package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/SearchHarvest/internal/types"
)

// File names inside a site directory.
const (
	ResultJSONFile = "extracted_urls.json"
	ResultTextFile = "extracted_urls.txt"
	SnapshotDir    = "snapshots"
)

// ResultFileStore writes one directory per site under root:
//
//	<root>/<site>/extracted_urls.json   {"<site>": result}
//	<root>/<site>/extracted_urls.txt    one URL per line
//	<root>/<site>/snapshots/page-NNN.html.br
type ResultFileStore struct {
	root   string
	logger *slog.Logger
}

// NewResultFileStore creates a ResultFileStore rooted at root.
func NewResultFileStore(root string, logger *slog.Logger) *ResultFileStore {
	return &ResultFileStore{
		root:   root,
		logger: logger.With("component", "result_store"),
	}
}

func (s *ResultFileStore) Name() string { return "file" }

// SiteDir returns the directory holding a site's files.
func (s *ResultFileStore) SiteDir(siteKey string) string {
	return filepath.Join(s.root, siteKey)
}

// SaveResult writes the result document and the plain URL list.
func (s *ResultFileStore) SaveResult(_ context.Context, r *types.Result) error {
	dir := s.SiteDir(r.SiteKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("create site dir: %w", err)}
	}

	doc := map[string]*types.Result{r.SiteKey: r}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("encode result: %w", err)}
	}
	if err := writeFileAtomic(filepath.Join(dir, ResultJSONFile), append(body, '\n')); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}

	f, err := os.Create(filepath.Join(dir, ResultTextFile))
	if err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	w := bufio.NewWriter(f)
	for _, u := range r.URLs {
		fmt.Fprintln(w, u)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return &types.StorageError{Backend: s.Name(), Err: err}
	}
	if err := f.Close(); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: err}
	}

	s.logger.Info("result written", "site", r.SiteKey, "status", r.State, "urls", len(r.URLs), "dir", dir)
	return nil
}

// WriteSnapshot stores brotli-compressed page markup and returns its path.
func (s *ResultFileStore) WriteSnapshot(_ context.Context, siteKey string, page int, html string) (string, error) {
	dir := filepath.Join(s.SiteDir(siteKey), SnapshotDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}
	path := filepath.Join(dir, fmt.Sprintf("page-%03d.html.br", page))

	f, err := os.Create(path)
	if err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}
	w := brotli.NewWriterLevel(f, brotli.DefaultCompression)
	if _, err := w.Write([]byte(html)); err != nil {
		f.Close()
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}
	if err := w.Close(); err != nil {
		f.Close()
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &types.StorageError{Backend: s.Name(), Err: err}
	}

	s.logger.Debug("snapshot written", "site", siteKey, "page", page, "path", path)
	return path, nil
}

func (s *ResultFileStore) Close() error { return nil }

// LoadResult reads a result document written by SaveResult.
func LoadResult(path string) (map[string]*types.Result, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]*types.Result
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", path, err)
	}
	return doc, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
