// Package browser owns one Chromium process, one incognito context and one
// page per extraction session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/SearchHarvest/internal/config"
	"github.com/IshaanNene/SearchHarvest/internal/locator"
	"github.com/IshaanNene/SearchHarvest/internal/types"
)

// Session is a scoped browser: process, isolated context and page. All
// of them are released by Close, which is safe to call more than once and
// also runs when the context passed to Open is cancelled.
type Session struct {
	launcher  *launcher.Launcher
	browser   *rod.Browser
	incognito *rod.Browser
	page      *rod.Page

	idleWindow time.Duration
	logger     *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	stop      func() bool
}

// Open launches a browser and prepares a blank page in a fresh incognito
// context. On any failure everything acquired so far is released.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *slog.Logger) (s *Session, err error) {
	s = &Session{
		idleWindow: cfg.IdleWindow,
		logger:     logger.With("component", "browser_session"),
	}
	defer func() {
		if err != nil {
			_ = s.Close()
			s = nil
		}
	}()

	s.launcher = newLauncher(cfg)
	controlURL, err := s.launcher.Launch()
	if err != nil {
		return s, &types.BrowserError{Op: "launch", Err: err}
	}

	s.browser = rod.New().ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		return s, &types.BrowserError{Op: "connect", Err: err}
	}

	s.incognito, err = s.browser.Incognito()
	if err != nil {
		return s, &types.BrowserError{Op: "create context", Err: err}
	}

	if cfg.Stealth {
		s.page, err = stealth.Page(s.incognito)
	} else {
		s.page, err = s.incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return s, &types.BrowserError{Op: "open page", Err: err}
	}

	if cfg.UserAgent != "" {
		err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent})
		if err != nil {
			s.logger.Warn("failed to set user agent", "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return s, err
	}
	s.stop = context.AfterFunc(ctx, func() {
		s.logger.Debug("context cancelled, tearing down session")
		_ = s.Close()
	})

	s.logger.Info("browser session ready",
		"headless", cfg.Headless,
		"stealth", cfg.Stealth,
	)
	return s, nil
}

// newLauncher starts from the same flag set the crawler fetcher used.
func newLauncher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().
		Headless(cfg.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled")

	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	if cfg.WindowSize != "" {
		l = l.Set("window-size", cfg.WindowSize)
	}
	return l
}

// Close releases page, context, browser and process in that order.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.stop != nil {
			s.stop()
		}

		var errs []error
		if s.page != nil {
			if err := s.page.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close page: %w", err))
			}
		}
		if s.incognito != nil {
			if err := s.incognito.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close context: %w", err))
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Debug("browser session closed", "error", s.closeErr)
	})
	return s.closeErr
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.page.Context(stepCtx)
	if err := p.Navigate(url); err != nil {
		return s.fail(ctx, stepCtx, "navigate", url, timeout, types.ErrNavigationTimeout, err)
	}
	if err := p.WaitLoad(); err != nil {
		return s.fail(ctx, stepCtx, "navigate", url, timeout, types.ErrNavigationTimeout, err)
	}
	s.logger.Debug("navigated", "url", url)
	return nil
}

// Click scrolls el into view and clicks it once.
func (s *Session) Click(ctx context.Context, el locator.Element, timeout time.Duration) error {
	e, ok := el.(*element)
	if !ok {
		return &types.BrowserError{Op: "click", Err: fmt.Errorf("element %T does not belong to a browser session", el)}
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := e.el.Context(stepCtx)
	_ = target.ScrollIntoView()
	if err := target.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return s.fail(ctx, stepCtx, "click", e.describe(), timeout, types.ErrInteractionTimeout, err)
	}
	return nil
}

// WaitForNetworkIdle waits for the load event and then for a window with
// no new network requests.
func (s *Session) WaitForNetworkIdle(ctx context.Context, timeout time.Duration) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := s.page.Context(stepCtx)
	if err := p.WaitLoad(); err != nil {
		return s.fail(ctx, stepCtx, "wait idle", "page", timeout, types.ErrNavigationTimeout, err)
	}
	p.WaitRequestIdle(s.idleWindow, nil, nil, nil)()
	if err := stepCtx.Err(); err != nil {
		return s.fail(ctx, stepCtx, "wait idle", "page", timeout, types.ErrNavigationTimeout, err)
	}
	return nil
}

// QueryAll implements locator.Querier against the live page.
func (s *Session) QueryAll(ctx context.Context, loc locator.Locator) ([]locator.Element, error) {
	if s.closed.Load() {
		return nil, types.ErrSessionClosed
	}

	p := s.page.Context(ctx)
	var (
		found rod.Elements
		err   error
	)
	switch loc.Strategy {
	case locator.StrategyXPath:
		found, err = p.ElementsX(loc.Expr)
	case locator.StrategyCSS:
		found, err = p.Elements(loc.Expr)
	default:
		return nil, fmt.Errorf("unsupported locator strategy %s", loc.Strategy)
	}
	if err != nil {
		return nil, err
	}

	els := make([]locator.Element, len(found))
	for i, el := range found {
		els[i] = &element{el: el}
	}
	return els, nil
}

// URL returns the page's current address.
func (s *Session) URL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", &types.BrowserError{Op: "page info", Err: err}
	}
	return info.URL, nil
}

// HTML returns the current page markup.
func (s *Session) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", &types.BrowserError{Op: "page html", Err: err}
	}
	return html, nil
}

// fail maps a rod error to the error taxonomy. Caller cancellation wins
// over a step deadline; a step deadline becomes a typed timeout.
func (s *Session) fail(parent, step context.Context, op, target string, timeout time.Duration, kind, err error) error {
	if perr := parent.Err(); perr != nil {
		return fmt.Errorf("%s %s: %w", op, target, perr)
	}
	if s.closed.Load() {
		return &types.BrowserError{Op: op, Err: types.ErrSessionClosed}
	}
	if errors.Is(err, context.DeadlineExceeded) || step.Err() != nil {
		return &types.TimeoutError{Kind: kind, Op: op, Target: target, Timeout: timeout, Err: err}
	}
	return &types.BrowserError{Op: op, Err: err}
}

type element struct {
	el *rod.Element
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e *element) Interactable(ctx context.Context) (bool, error) {
	el := e.el.Context(ctx)
	visible, err := el.Visible()
	if err != nil || !visible {
		return false, err
	}
	disabled, err := el.Disabled()
	if err != nil || disabled {
		return false, err
	}
	aria, err := el.Attribute("aria-disabled")
	if err != nil {
		return false, err
	}
	return aria == nil || *aria != "true", nil
}

func (e *element) describe() string {
	return e.el.String()
}
