package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrInvalidSchema      = errors.New("invalid schema")
	ErrNotFound           = errors.New("element not found")
	ErrNavigationTimeout  = errors.New("navigation timed out")
	ErrInteractionTimeout = errors.New("interaction timed out")
	ErrSchemaMismatch     = errors.New("schema does not match page")
	ErrBrowserFailure     = errors.New("browser failure")
	ErrSessionClosed      = errors.New("browser session closed")
	ErrInvalidSource      = errors.New("invalid merge source")
)

// ValidationError reports a malformed schema document. Field is a dotted
// path such as "next_page_button.xpath".
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidSchema, e.Err}
	}
	return []error{ErrInvalidSchema}
}

// NotFoundError is a locator resolution miss. Attempts lists one line per
// strategy that was tried (or skipped).
type NotFoundError struct {
	Selector string
	Attempts []string
}

func (e *NotFoundError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("element %q not found", e.Selector)
	}
	return fmt.Sprintf("element %q not found (%s)", e.Selector, strings.Join(e.Attempts, "; "))
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TimeoutError is a per-step deadline hit inside the browser. Kind is
// ErrNavigationTimeout or ErrInteractionTimeout.
type TimeoutError struct {
	Kind    error
	Op      string
	Target  string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: %v after %s", e.Op, e.Target, e.Kind, e.Timeout)
}

func (e *TimeoutError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// SchemaMismatchError means a required control never resolved on the page.
type SchemaMismatchError struct {
	Selector string
	Err      error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch on %q: %v", e.Selector, e.Err)
}

func (e *SchemaMismatchError) Unwrap() []error { return []error{ErrSchemaMismatch, e.Err} }

// BrowserError wraps unexpected engine-level failures (crashed page, error
// page navigation, protocol errors).
type BrowserError struct {
	Op  string
	Err error
}

func (e *BrowserError) Error() string {
	return fmt.Sprintf("browser %s: %v", e.Op, e.Err)
}

func (e *BrowserError) Unwrap() []error { return []error{ErrBrowserFailure, e.Err} }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SourceError describes a merge input that was skipped.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("merge source %s: %v", e.Path, e.Err)
}

func (e *SourceError) Unwrap() []error { return []error{ErrInvalidSource, e.Err} }

// PipelineError wraps errors that occur in the record pipeline.
type PipelineError struct {
	Stage  string
	Record *Record
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient per-step timeout.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNavigationTimeout) || errors.Is(err, ErrInteractionTimeout)
}
