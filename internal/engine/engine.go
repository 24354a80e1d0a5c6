// Package engine drives a search through a site's result pages using a
// selector schema and collects the detail-page links it finds.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/SearchHarvest/internal/config"
	"github.com/IshaanNene/SearchHarvest/internal/locator"
	"github.com/IshaanNene/SearchHarvest/internal/observability"
	"github.com/IshaanNene/SearchHarvest/internal/schema"
	"github.com/IshaanNene/SearchHarvest/internal/types"
	"github.com/IshaanNene/SearchHarvest/internal/urlnorm"
)

// Page is the browser surface the engine needs. *browser.Session
// implements it.
type Page interface {
	locator.Querier
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Click(ctx context.Context, el locator.Element, timeout time.Duration) error
	WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error
	URL(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
}

// SnapshotWriter stores the page markup at the moment a session failed.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, siteKey string, page int, html string) (string, error)
}

// Options bounds a session.
type Options struct {
	MaxPages           int
	MaxRetries         int
	RetryDelay         time.Duration
	NavigationTimeout  time.Duration
	InteractionTimeout time.Duration
	IdleTimeout        time.Duration
	ActionInterval     time.Duration
	SnapshotOnFailure  bool
}

// OptionsFromConfig maps the extraction config section onto Options.
func OptionsFromConfig(cfg config.ExtractionConfig) Options {
	return Options{
		MaxPages:           cfg.MaxPages,
		MaxRetries:         cfg.MaxRetries,
		RetryDelay:         cfg.RetryDelay,
		NavigationTimeout:  cfg.NavigationTimeout,
		InteractionTimeout: cfg.InteractionTimeout,
		IdleTimeout:        cfg.IdleTimeout,
		ActionInterval:     cfg.ActionInterval,
		SnapshotOnFailure:  cfg.SnapshotOnFailure,
	}
}

// Engine runs extraction sessions. It holds no per-session state and is
// safe to share between concurrent sessions.
type Engine struct {
	opts      Options
	resolver  *locator.Resolver
	metrics   *observability.Metrics
	snapshots SnapshotWriter
	logger    *slog.Logger
}

// New creates an Engine.
func New(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	return &Engine{
		opts:     opts,
		resolver: locator.NewResolver(logger),
		metrics:  metrics,
		logger:   logger.With("component", "engine"),
	}
}

// SetSnapshotWriter enables failure snapshots.
func (e *Engine) SetSnapshotWriter(w SnapshotWriter) {
	e.snapshots = w
}

// session is the state of one run.
type session struct {
	e       *Engine
	page    Page
	schema  *schema.SearchSchema
	result  *types.Result
	links   *LinkSet
	limiter *rate.Limiter
	logger  *slog.Logger

	state       types.SessionState
	pageNum     int
	fingerprint string
}

// Run executes one session against page and always returns a Result.
// A failed session keeps the links collected before the failure.
func (e *Engine) Run(ctx context.Context, page Page, siteKey string, s *schema.SearchSchema) *types.Result {
	runID := uuid.NewString()
	limit := rate.Inf
	if e.opts.ActionInterval > 0 {
		limit = rate.Every(e.opts.ActionInterval)
	}

	sess := &session{
		e:       e,
		page:    page,
		schema:  s,
		links:   NewLinkSet(64),
		limiter: rate.NewLimiter(limit, 1),
		logger:  e.logger.With("site", siteKey, "run_id", runID),
		state:   types.StateStart,
		pageNum: 1,
		result: &types.Result{
			SiteKey:   siteKey,
			RunID:     runID,
			StartedAt: time.Now(),
		},
	}

	sess.logger.Info("extraction started", "url", s.SearchPageURL, "max_pages", e.opts.MaxPages)
	for !sess.state.Terminal() {
		next, err := sess.step(ctx)
		if err != nil {
			sess.fail(ctx, err)
			break
		}
		if next != sess.state {
			sess.logger.Debug("transition", "from", sess.state, "to", next, "page", sess.pageNum)
		}
		sess.state = next
	}
	return sess.finish()
}

func (s *session) step(ctx context.Context) (types.SessionState, error) {
	switch s.state {
	case types.StateStart:
		return s.submitSearch(ctx)
	case types.StateSearchSubmitted:
		return s.awaitResults(ctx)
	case types.StatePageReady:
		return s.extractLinks(ctx)
	case types.StateExtractedLinks:
		return s.advance(ctx)
	case types.StateNextPage:
		return s.awaitNextPage(ctx)
	default:
		return s.state, fmt.Errorf("no transition from state %s", s.state)
	}
}

// submitSearch opens the search page and clicks the submit control.
func (s *session) submitSearch(ctx context.Context) (types.SessionState, error) {
	err := s.withRetry(ctx, "navigate", func(ctx context.Context) error {
		if err := s.pace(ctx); err != nil {
			return err
		}
		return s.page.Navigate(ctx, s.schema.SearchPageURL, s.e.opts.NavigationTimeout)
	})
	if err != nil {
		return types.StateError, err
	}

	var submit *locator.Resolution
	err = s.withRetry(ctx, "resolve submit", func(ctx context.Context) error {
		var err error
		submit, err = s.resolve(ctx, s.schema.SubmitButton)
		return err
	})
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return types.StateError, &types.SchemaMismatchError{Selector: s.schema.SubmitButton.Label(), Err: err}
		}
		return types.StateError, err
	}

	err = s.withRetry(ctx, "click submit", func(ctx context.Context) error {
		if err := s.pace(ctx); err != nil {
			return err
		}
		return s.page.Click(ctx, submit.Element, s.e.opts.InteractionTimeout)
	})
	if err != nil {
		return types.StateError, err
	}
	s.logger.Info("search submitted", "strategy", submit.Strategy)
	return types.StateSearchSubmitted, nil
}

func (s *session) awaitResults(ctx context.Context) (types.SessionState, error) {
	if err := s.awaitIdle(ctx); err != nil {
		return types.StateError, err
	}
	return types.StatePageReady, nil
}

// extractLinks collects every detail link on the current page. A page
// without detail links is not an error.
func (s *session) extractLinks(ctx context.Context) (types.SessionState, error) {
	var els []locator.Element
	err := s.withRetry(ctx, "resolve detail links", func(ctx context.Context) error {
		stepCtx, cancel := context.WithTimeout(ctx, s.e.opts.InteractionTimeout)
		defer cancel()
		var err error
		els, _, err = s.e.resolver.ResolveAll(stepCtx, s.page, s.schema.DetailPageLink)
		return s.stepError(ctx, stepCtx, "resolve", s.schema.DetailPageLink.Label(), err)
	})
	switch {
	case errors.Is(err, types.ErrNotFound):
		s.logger.Warn("no detail links on page", "page", s.pageNum, "error", err)
	case err != nil:
		return types.StateError, err
	}

	pageURL, err := s.page.URL(ctx)
	if err != nil {
		return types.StateError, err
	}

	var hrefs []string
	added, dupes, rejected := 0, 0, 0
	for _, el := range els {
		href, ok, err := el.Attribute(ctx, "href")
		if err != nil {
			if ctx.Err() != nil {
				return types.StateError, ctx.Err()
			}
			s.logger.Debug("failed to read href", "error", err)
			rejected++
			continue
		}
		if !ok || !usableHref(href) {
			rejected++
			continue
		}
		hrefs = append(hrefs, href)

		abs, ok := urlnorm.Normalize(href, pageURL)
		if !ok {
			rejected++
			continue
		}
		if s.links.Add(abs) {
			added++
		} else {
			dupes++
		}
	}

	s.e.metrics.PagesVisited.Add(1)
	s.e.metrics.LinksCollected.Add(int64(added))
	s.e.metrics.LinksDuplicate.Add(int64(dupes))
	s.e.metrics.LinksRejected.Add(int64(rejected))
	s.logger.Info("page extracted",
		"page", s.pageNum,
		"links", len(els),
		"new", added,
		"duplicate", dupes,
		"rejected", rejected,
		"total", s.links.Len(),
	)

	fp := fingerprint(hrefs)
	if s.pageNum > 1 && fp == s.fingerprint {
		s.logger.Warn("pagination stalled, page content unchanged after next", "page", s.pageNum)
		s.result.StopReason = types.StopStalledPagination
		return types.StateDone, nil
	}
	s.fingerprint = fp
	return types.StateExtractedLinks, nil
}

// advance clicks the next-page control, or ends the session when there is
// none to click.
func (s *session) advance(ctx context.Context) (types.SessionState, error) {
	if s.pageNum >= s.e.opts.MaxPages {
		s.logger.Info("page limit reached", "max_pages", s.e.opts.MaxPages)
		s.result.StopReason = types.StopMaxPages
		return types.StateDone, nil
	}

	var next *locator.Resolution
	err := s.withRetry(ctx, "resolve next", func(ctx context.Context) error {
		var err error
		next, err = s.resolve(ctx, s.schema.NextPageButton)
		return err
	})
	if errors.Is(err, types.ErrNotFound) {
		s.logger.Info("last page reached", "page", s.pageNum)
		s.result.StopReason = types.StopLastPage
		return types.StateDone, nil
	}
	if err != nil {
		return types.StateError, err
	}

	usable, err := next.Element.Interactable(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return types.StateError, ctx.Err()
		}
		s.logger.Debug("interactability check failed, clicking anyway", "error", err)
		usable = true
	}
	if !usable {
		s.logger.Info("next control present but not interactable", "page", s.pageNum)
		s.result.StopReason = types.StopNextNotInteractable
		return types.StateDone, nil
	}

	err = s.withRetry(ctx, "click next", func(ctx context.Context) error {
		if err := s.pace(ctx); err != nil {
			return err
		}
		return s.page.Click(ctx, next.Element, s.e.opts.InteractionTimeout)
	})
	if err != nil {
		return types.StateError, err
	}
	return types.StateNextPage, nil
}

func (s *session) awaitNextPage(ctx context.Context) (types.SessionState, error) {
	if err := s.awaitIdle(ctx); err != nil {
		return types.StateError, err
	}
	s.pageNum++
	return types.StatePageReady, nil
}

func (s *session) awaitIdle(ctx context.Context) error {
	return s.withRetry(ctx, "wait idle", func(ctx context.Context) error {
		return s.page.WaitForNetworkIdle(ctx, s.e.opts.IdleTimeout)
	})
}

// resolve runs single-element resolution under the interaction timeout.
func (s *session) resolve(ctx context.Context, sel schema.ElementSelector) (*locator.Resolution, error) {
	stepCtx, cancel := context.WithTimeout(ctx, s.e.opts.InteractionTimeout)
	defer cancel()
	res, err := s.e.resolver.Resolve(stepCtx, s.page, sel)
	return res, s.stepError(ctx, stepCtx, "resolve", sel.Label(), err)
}

// stepError turns an expired step deadline into an interaction timeout.
func (s *session) stepError(parent, step context.Context, op, target string, err error) error {
	if err == nil || parent.Err() != nil || step.Err() == nil {
		return err
	}
	return &types.TimeoutError{
		Kind:    types.ErrInteractionTimeout,
		Op:      op,
		Target:  target,
		Timeout: s.e.opts.InteractionTimeout,
		Err:     err,
	}
}

func (s *session) pace(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

// withRetry retries fn on per-step timeouts with exponential backoff.
// Every other error is returned at once.
func (s *session) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	delay := s.e.opts.RetryDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil || !types.IsRetryable(err) || attempt >= s.e.opts.MaxRetries || ctx.Err() != nil {
			return err
		}

		s.e.metrics.StepRetries.Add(1)
		s.logger.Warn("step timed out, retrying",
			"op", op,
			"attempt", attempt+1,
			"max_retries", s.e.opts.MaxRetries,
			"delay", delay,
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}

func (s *session) fail(ctx context.Context, err error) {
	s.state = types.StateError
	s.result.Err = err
	s.result.Error = err.Error()
	s.logger.Error("extraction failed",
		"page", s.pageNum,
		"collected", s.links.Len(),
		"error", err,
	)

	if !s.e.opts.SnapshotOnFailure || s.e.snapshots == nil || ctx.Err() != nil {
		return
	}
	html, herr := s.page.HTML(ctx)
	if herr != nil {
		s.logger.Warn("could not capture failure snapshot", "error", herr)
		return
	}
	path, werr := s.e.snapshots.WriteSnapshot(ctx, s.result.SiteKey, s.pageNum, html)
	if werr != nil {
		s.logger.Warn("could not write failure snapshot", "error", werr)
		return
	}
	s.e.metrics.SnapshotsCaptured.Add(1)
	s.result.Snapshot = path
}

func (s *session) finish() *types.Result {
	r := s.result
	r.State = s.state
	r.Pages = s.pageNum
	r.URLs = s.links.Sorted()
	r.URLCount = len(r.URLs)
	r.FinishedAt = time.Now()

	if r.State == types.StateDone {
		s.e.metrics.SessionsDone.Add(1)
	} else {
		s.e.metrics.SessionsFailed.Add(1)
	}
	s.logger.Info("extraction finished",
		"status", r.State,
		"stop_reason", r.StopReason,
		"pages", r.Pages,
		"urls", r.URLCount,
		"duration", r.Duration().Round(time.Millisecond),
	)
	return r
}

// usableHref rejects anchors that do not lead to a page.
func usableHref(href string) bool {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return false
	}
	lower := strings.ToLower(href)
	return !strings.HasPrefix(lower, "javascript:") && !strings.HasPrefix(href, "JSHandle@")
}
