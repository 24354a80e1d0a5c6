// Package merge combines per-site extraction documents into one table.
package merge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/IshaanNene/SearchHarvest/internal/config"
	"github.com/IshaanNene/SearchHarvest/internal/observability"
	"github.com/IshaanNene/SearchHarvest/internal/pipeline"
	"github.com/IshaanNene/SearchHarvest/internal/types"
)

// Dataset is the merged output. Columns is the sorted union of the field
// names of every kept record.
type Dataset struct {
	Columns []string
	Records []*types.Record
}

// Rows renders every record against Columns. Missing fields are empty and
// list values are joined with sep.
func (d *Dataset) Rows(sep string) [][]string {
	rows := make([][]string, len(d.Records))
	for i, rec := range d.Records {
		flat := rec.ToFlatMap(sep)
		row := make([]string, len(d.Columns))
		for j, col := range d.Columns {
			row[j] = flat[col]
		}
		rows[i] = row
	}
	return rows
}

// SourceReport describes one input document.
type SourceReport struct {
	Dir     string
	Path    string
	Records int
	Kept    int
	Dropped int
	Err     error
}

// Report summarizes a merge.
type Report struct {
	Sources []SourceReport
	Kept    int
	Dropped int
}

// Skipped returns the sources that could not be read.
func (r *Report) Skipped() []SourceReport {
	var out []SourceReport
	for _, s := range r.Sources {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Merger reads extraction documents and runs their records through the
// merge pipeline.
type Merger struct {
	cfg     config.MergeConfig
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a Merger.
func New(cfg config.MergeConfig, metrics *observability.Metrics, logger *slog.Logger) *Merger {
	return &Merger{
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "merge"),
	}
}

// Discover returns every directory directly under root that holds a
// dataFile, sorted.
func Discover(root, dataFile string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*", dataFile))
	if err != nil {
		return nil, fmt.Errorf("discover sources: %w", err)
	}
	dirs := make([]string, 0, len(matches))
	for _, m := range matches {
		dirs = append(dirs, filepath.Dir(m))
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Merge reads one document per directory. Unreadable or malformed
// documents are logged and skipped; only cancellation returns an error.
func (m *Merger) Merge(ctx context.Context, dirs []string) (*Dataset, *Report, error) {
	p := pipeline.FromConfig(m.cfg, m.logger)
	ds := &Dataset{}
	report := &Report{}
	columns := make(map[string]struct{})

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		src := SourceReport{Dir: dir, Path: filepath.Join(dir, m.cfg.DataFile)}
		objects, err := readSource(src.Path)
		if err != nil {
			src.Err = &types.SourceError{Path: src.Path, Err: err}
			m.metrics.SourcesSkipped.Add(1)
			m.logger.Warn("skipping merge source", "path", src.Path, "error", err)
			report.Sources = append(report.Sources, src)
			continue
		}
		m.metrics.SourcesMerged.Add(1)

		for _, obj := range objects {
			src.Records++
			rec, err := p.Process(types.NewRecord(src.Path, obj))
			if err != nil {
				m.logger.Warn("record rejected", "path", src.Path, "error", err)
				src.Dropped++
				continue
			}
			if rec == nil {
				src.Dropped++
				continue
			}
			src.Kept++
			ds.Records = append(ds.Records, rec)
			for k := range rec.Fields {
				columns[k] = struct{}{}
			}
		}

		report.Kept += src.Kept
		report.Dropped += src.Dropped
		m.metrics.RecordsKept.Add(int64(src.Kept))
		m.metrics.RecordsDropped.Add(int64(src.Dropped))
		m.logger.Info("merged source",
			"path", src.Path,
			"records", src.Records,
			"kept", src.Kept,
			"dropped", src.Dropped,
		)
		report.Sources = append(report.Sources, src)
	}

	ds.Columns = make([]string, 0, len(columns))
	for k := range columns {
		ds.Columns = append(ds.Columns, k)
	}
	sort.Strings(ds.Columns)

	m.logger.Info("merge complete",
		"sources", len(dirs),
		"skipped", len(report.Skipped()),
		"kept", report.Kept,
		"dropped", report.Dropped,
		"columns", len(ds.Columns),
	)
	return ds, report, nil
}

var errNotAList = errors.New("document is not a list of records")

// readSource decodes a document that must be a JSON array. Numbers keep
// their literal form; entries that are not objects are ignored.
func readSource(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	list, ok := doc.([]any)
	if !ok {
		return nil, errNotAList
	}

	objects := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if obj, ok := entry.(map[string]any); ok {
			objects = append(objects, obj)
		}
	}
	return objects, nil
}
