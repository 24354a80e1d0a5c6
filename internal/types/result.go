package types

import (
	"fmt"
	"time"
)

// SessionState is a state of the extraction state machine.
type SessionState int

const (
	StateStart SessionState = iota
	StateSearchSubmitted
	StatePageReady
	StateExtractedLinks
	StateNextPage
	StateDone
	StateError
)

var stateNames = map[SessionState]string{
	StateStart:           "start",
	StateSearchSubmitted: "search_submitted",
	StatePageReady:       "page_ready",
	StateExtractedLinks:  "extracted_links",
	StateNextPage:        "next_page",
	StateDone:            "done",
	StateError:           "error",
}

func (s SessionState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == StateDone || s == StateError
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionState) UnmarshalText(b []byte) error {
	for state, name := range stateNames {
		if name == string(b) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// StopReason explains why a session reached StateDone.
type StopReason string

const (
	StopLastPage            StopReason = "last_page"
	StopMaxPages            StopReason = "max_pages"
	StopStalledPagination   StopReason = "stalled_pagination"
	StopNextNotInteractable StopReason = "next_not_interactable"
)

// Result is the outcome of one extraction session. URLs are kept on
// failure too: a partial crawl is still returned.
type Result struct {
	SiteKey    string       `json:"site"`
	RunID      string       `json:"run_id"`
	State      SessionState `json:"status"`
	StopReason StopReason   `json:"stop_reason,omitempty"`
	Pages      int          `json:"pages"`
	URLCount   int          `json:"url_count"`
	URLs       []string     `json:"urls"`
	Error      string       `json:"error,omitempty"`
	Snapshot   string       `json:"snapshot,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`

	// Err is the cause behind Error, for errors.Is checks.
	Err error `json:"-"`
}

// Duration returns how long the session ran.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
