package observability

import (
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func TestServeHTTP(t *testing.T) {
	m := NewMetrics(testLogger)
	m.PagesVisited.Add(3)
	m.ActiveSessions.Add(1)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "searchharvest_pages_visited_total 3") {
		t.Errorf("expected pages counter in output:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE searchharvest_active_sessions gauge") {
		t.Errorf("expected active sessions to be a gauge:\n%s", body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics(testLogger)
	m.RecordsDropped.Add(2)
	if got := m.Snapshot()["records_dropped"]; got != 2 {
		t.Errorf("expected 2 dropped records, got %d", got)
	}
}
