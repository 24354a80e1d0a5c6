package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/IshaanNene/SearchHarvest/internal/observability"
	"github.com/IshaanNene/SearchHarvest/internal/types"
)

type memorySink struct {
	mu      sync.Mutex
	results map[string]*types.Result
	ctxErrs []error
	bounded int
}

func (s *memorySink) SaveResult(ctx context.Context, r *types.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.results == nil {
		s.results = make(map[string]*types.Result)
	}
	s.results[r.SiteKey] = r
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	if _, ok := ctx.Deadline(); ok {
		s.bounded++
	}
	return nil
}

func TestRunnerIsolatesFailures(t *testing.T) {
	e, m := newTestEngine(testOptions())

	var (
		mu       sync.Mutex
		launched []*fakePage
	)
	launch := func(ctx context.Context) (Session, error) {
		mu.Lock()
		defer mu.Unlock()
		p := newFakePage(threePageSite())
		launched = append(launched, p)
		return p, nil
	}

	sink := &memorySink{}
	r := NewRunner(e, launch, sink, 2, m, testLogger)

	loadErr := &types.ValidationError{Field: "search_page_url", Reason: "missing"}
	broken := testSchema()
	broken.SearchPageURL = "https://shop.test/gone"

	jobs := []Job{
		{SiteKey: "alpha", Schema: testSchema()},
		{SiteKey: "bad-schema", Err: loadErr},
		{SiteKey: "broken", Schema: broken},
		{SiteKey: "beta", Schema: testSchema()},
	}
	results := r.Run(context.Background(), jobs)

	if len(results) != len(jobs) {
		t.Fatalf("expected %d results, got %d", len(jobs), len(results))
	}
	for i, job := range jobs {
		if results[i].SiteKey != job.SiteKey {
			t.Errorf("result %d is for %q, want %q", i, results[i].SiteKey, job.SiteKey)
		}
	}

	if results[0].State != types.StateDone || results[3].State != types.StateDone {
		t.Errorf("healthy jobs should finish: %s, %s", results[0].State, results[3].State)
	}
	if !errors.Is(results[1].Err, types.ErrInvalidSchema) {
		t.Errorf("expected schema error to be carried, got %v", results[1].Err)
	}
	if results[2].State != types.StateError || !errors.Is(results[2].Err, types.ErrBrowserFailure) {
		t.Errorf("expected broken job to fail with browser error, got %s %v", results[2].State, results[2].Err)
	}

	// the schema error never opens a browser
	if len(launched) != 3 {
		t.Errorf("expected 3 sessions, got %d", len(launched))
	}
	for _, p := range launched {
		if !p.closed {
			t.Error("every session must be closed")
		}
	}
	if m.ActiveSessions.Load() != 0 {
		t.Errorf("expected no active sessions, got %d", m.ActiveSessions.Load())
	}
	if len(sink.results) != len(jobs) {
		t.Errorf("sink should receive every result, got %d", len(sink.results))
	}
}

func TestRunnerLaunchFailure(t *testing.T) {
	e, _ := newTestEngine(testOptions())
	launchErr := &types.BrowserError{Op: "launch", Err: errors.New("no chromium")}
	launch := func(ctx context.Context) (Session, error) { return nil, launchErr }

	r := NewRunner(e, launch, nil, 1, observability.NewMetrics(testLogger), testLogger)
	results := r.Run(context.Background(), []Job{{SiteKey: "alpha", Schema: testSchema()}})

	if results[0].State != types.StateError || !errors.Is(results[0].Err, types.ErrBrowserFailure) {
		t.Errorf("expected launch failure result, got %s %v", results[0].State, results[0].Err)
	}
	if results[0].URLs == nil {
		t.Error("failed results should carry an empty url list, not nil")
	}
}

func TestRunnerSavesAfterCancel(t *testing.T) {
	e, m := newTestEngine(testOptions())
	ctx, cancel := context.WithCancel(context.Background())

	launch := func(context.Context) (Session, error) {
		// interrupted while the session is starting
		cancel()
		return newFakePage(threePageSite()), nil
	}
	sink := &memorySink{}
	r := NewRunner(e, launch, sink, 1, m, testLogger)

	results := r.Run(ctx, []Job{{SiteKey: "alpha", Schema: testSchema()}, {SiteKey: "beta", Schema: testSchema()}})

	if results[0].State != types.StateError || !errors.Is(results[0].Err, context.Canceled) {
		t.Errorf("expected cancelled result, got %s %v", results[0].State, results[0].Err)
	}
	if len(sink.results) != 2 {
		t.Fatalf("expected both results saved, got %d", len(sink.results))
	}
	for i, err := range sink.ctxErrs {
		if err != nil {
			t.Errorf("save %d got a cancelled context: %v", i, err)
		}
	}
	if sink.bounded != 2 {
		t.Errorf("expected every save to carry a deadline, got %d", sink.bounded)
	}
}
