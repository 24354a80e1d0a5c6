package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters for extraction and merge runs.
type Metrics struct {
	// Extraction
	SessionsStarted   atomic.Int64
	SessionsDone      atomic.Int64
	SessionsFailed    atomic.Int64
	ActiveSessions    atomic.Int32
	PagesVisited      atomic.Int64
	LinksCollected    atomic.Int64
	LinksDuplicate    atomic.Int64
	LinksRejected     atomic.Int64
	StepRetries       atomic.Int64
	SnapshotsCaptured atomic.Int64

	// Merge
	SourcesMerged  atomic.Int64
	SourcesSkipped atomic.Int64
	RecordsKept    atomic.Int64
	RecordsDropped atomic.Int64
	RecordsStored  atomic.Int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger.With("component", "metrics"),
	}
}

type sample struct {
	name  string
	help  string
	kind  string
	value int64
}

func (m *Metrics) samples() []sample {
	return []sample{
		{"searchharvest_sessions_started_total", "Extraction sessions started", "counter", m.SessionsStarted.Load()},
		{"searchharvest_sessions_done_total", "Extraction sessions finished in done state", "counter", m.SessionsDone.Load()},
		{"searchharvest_sessions_failed_total", "Extraction sessions finished in error state", "counter", m.SessionsFailed.Load()},
		{"searchharvest_active_sessions", "Currently open browser sessions", "gauge", int64(m.ActiveSessions.Load())},
		{"searchharvest_pages_visited_total", "Result pages visited", "counter", m.PagesVisited.Load()},
		{"searchharvest_links_collected_total", "Unique detail links collected", "counter", m.LinksCollected.Load()},
		{"searchharvest_links_duplicate_total", "Detail links already collected", "counter", m.LinksDuplicate.Load()},
		{"searchharvest_links_rejected_total", "Detail links with unusable href", "counter", m.LinksRejected.Load()},
		{"searchharvest_step_retries_total", "Browser steps retried after a timeout", "counter", m.StepRetries.Load()},
		{"searchharvest_snapshots_total", "Failure snapshots written", "counter", m.SnapshotsCaptured.Load()},
		{"searchharvest_merge_sources_total", "Merge sources read", "counter", m.SourcesMerged.Load()},
		{"searchharvest_merge_sources_skipped_total", "Merge sources skipped", "counter", m.SourcesSkipped.Load()},
		{"searchharvest_records_kept_total", "Records kept by merge", "counter", m.RecordsKept.Load()},
		{"searchharvest_records_dropped_total", "Records dropped by merge", "counter", m.RecordsDropped.Load()},
		{"searchharvest_records_stored_total", "Records written to storage", "counter", m.RecordsStored.Load()},
	}
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, s := range m.samples() {
		fmt.Fprintf(w, "# HELP %s %s\n", s.name, s.help)
		fmt.Fprintf(w, "# TYPE %s %s\n", s.name, s.kind)
		fmt.Fprintf(w, "%s %d\n", s.name, s.value)
	}
}

// StartServer serves the metrics and /health endpoints until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	return nil
}

// Snapshot returns all metrics as a map keyed without the exposition prefix.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"sessions_started": m.SessionsStarted.Load(),
		"sessions_done":    m.SessionsDone.Load(),
		"sessions_failed":  m.SessionsFailed.Load(),
		"pages_visited":    m.PagesVisited.Load(),
		"links_collected":  m.LinksCollected.Load(),
		"links_duplicate":  m.LinksDuplicate.Load(),
		"links_rejected":   m.LinksRejected.Load(),
		"step_retries":     m.StepRetries.Load(),
		"sources_merged":   m.SourcesMerged.Load(),
		"sources_skipped":  m.SourcesSkipped.Load(),
		"records_kept":     m.RecordsKept.Load(),
		"records_dropped":  m.RecordsDropped.Load(),
		"records_stored":   m.RecordsStored.Load(),
	}
}
