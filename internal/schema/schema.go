// Package schema models a site's search-interaction contract: which
// elements submit the search, advance the result pages and link to detail
// pages, and where the search form lives.
package schema

import "strings"

// Placeholder is the value schema generators emit for a locator they could
// not determine.
const Placeholder = "-"

// ElementSelector identifies one interactive element on a page.
type ElementSelector struct {
	ID          string `json:"id"`
	XPath       string `json:"xpath"`
	CSSSelector string `json:"css_selector"`
	Index       int    `json:"index"`
	Description string `json:"element_description,omitempty"`
}

// HasXPath reports whether the xpath locator is usable.
func (s ElementSelector) HasXPath() bool { return usable(s.XPath) }

// HasCSS reports whether the css locator is usable.
func (s ElementSelector) HasCSS() bool { return usable(s.CSSSelector) }

// Label returns a human-readable name for log lines.
func (s ElementSelector) Label() string {
	if s.Description != "" {
		return s.ID + " (" + s.Description + ")"
	}
	return s.ID
}

// SearchSchema is the validated interaction contract for one website.
// It is never mutated after Load returns.
type SearchSchema struct {
	SubmitButton   ElementSelector `json:"submit_button"`
	NextPageButton ElementSelector `json:"next_page_button"`
	DetailPageLink ElementSelector `json:"detail_page_link"`
	SearchPageURL  string          `json:"search_page_url"`

	// Warnings lists locators dropped at load time because they did not
	// compile while the other locator of the same element did.
	Warnings []string `json:"-"`
}

// IsPlaceholder reports whether a locator value means "strategy not usable".
func IsPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == Placeholder
}

func usable(v string) bool { return !IsPlaceholder(v) }
