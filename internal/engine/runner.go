package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/SearchHarvest/internal/observability"
	"github.com/IshaanNene/SearchHarvest/internal/schema"
	"github.com/IshaanNene/SearchHarvest/internal/types"
)

// SaveTimeout bounds one ResultSink.SaveResult call.
const SaveTimeout = 10 * time.Second

// Session is a Page that owns browser resources.
type Session interface {
	Page
	Close() error
}

// Launcher opens a fresh, isolated session for one job.
type Launcher func(ctx context.Context) (Session, error)

// ResultSink receives every finished Result.
type ResultSink interface {
	SaveResult(ctx context.Context, r *types.Result) error
}

// Job is one site to extract. Err carries a schema load failure; such a
// job is reported as failed without opening a browser.
type Job struct {
	SiteKey string
	Schema  *schema.SearchSchema
	Err     error
}

// Runner runs jobs concurrently, each in its own session. One job failing
// never stops the others.
type Runner struct {
	engine      *Engine
	launch      Launcher
	sink        ResultSink
	concurrency int
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewRunner creates a Runner. sink may be nil.
func NewRunner(engine *Engine, launch Launcher, sink ResultSink, concurrency int, metrics *observability.Metrics, logger *slog.Logger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		engine:      engine,
		launch:      launch,
		sink:        sink,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logger.With("component", "runner"),
	}
}

// Run executes all jobs and returns their results in job order.
func (r *Runner) Run(ctx context.Context, jobs []Job) []*types.Result {
	results := make([]*types.Result, len(jobs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res := r.runJob(ctx, job)
			results[i] = res
			r.save(ctx, res)
			return nil
		})
	}
	_ = g.Wait()

	done := 0
	for _, res := range results {
		if res.State == types.StateDone {
			done++
		}
	}
	r.logger.Info("batch finished", "jobs", len(jobs), "done", done, "failed", len(jobs)-done)
	return results
}

func (r *Runner) runJob(ctx context.Context, job Job) *types.Result {
	if job.Err != nil {
		return r.failed(job.SiteKey, job.Err)
	}
	if err := ctx.Err(); err != nil {
		return r.failed(job.SiteKey, err)
	}

	return r.withSession(ctx, job.SiteKey, func(sess Session) *types.Result {
		return r.engine.Run(ctx, sess, job.SiteKey, job.Schema)
	})
}

// withSession launches a session, runs fn and always closes the session.
func (r *Runner) withSession(ctx context.Context, siteKey string, fn func(Session) *types.Result) *types.Result {
	r.metrics.SessionsStarted.Add(1)
	sess, err := r.launch(ctx)
	if err != nil {
		return r.failed(siteKey, err)
	}
	r.metrics.ActiveSessions.Add(1)
	defer func() {
		r.metrics.ActiveSessions.Add(-1)
		if err := sess.Close(); err != nil {
			r.logger.Warn("session close reported errors", "site", siteKey, "error", err)
		}
	}()
	return fn(sess)
}

// save hands res to the sink even after ctx is cancelled, so an
// interrupted run still records its partial result.
func (r *Runner) save(ctx context.Context, res *types.Result) {
	if r.sink == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), SaveTimeout)
	defer cancel()
	if err := r.sink.SaveResult(saveCtx, res); err != nil {
		r.logger.Error("failed to save result", "site", res.SiteKey, "error", err)
	}
}

func (r *Runner) failed(siteKey string, err error) *types.Result {
	r.metrics.SessionsFailed.Add(1)
	r.logger.Error("job failed before extraction", "site", siteKey, "error", err)
	now := time.Now()
	return &types.Result{
		SiteKey:    siteKey,
		RunID:      uuid.NewString(),
		State:      types.StateError,
		URLs:       []string{},
		Error:      err.Error(),
		Err:        err,
		StartedAt:  now,
		FinishedAt: now,
	}
}
