package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"

	"github.com/IshaanNene/SearchHarvest/internal/types"
)

// rawSelector mirrors ElementSelector with pointer fields so that absent
// keys can be told apart from zero values.
type rawSelector struct {
	ID          *string `json:"id"`
	XPath       *string `json:"xpath"`
	CSSSelector *string `json:"css_selector"`
	Index       *int    `json:"index"`
	Description *string `json:"element_description"`
}

type rawSchema struct {
	SubmitButton   *rawSelector `json:"submit_button"`
	NextPageButton *rawSelector `json:"next_page_button"`
	DetailPageLink *rawSelector `json:"detail_page_link"`
	SearchPageURL  *string      `json:"search_page_url"`
}

// LoadFile reads and validates a schema document from disk.
func LoadFile(path string) (*SearchSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return s, nil
}

// Load reads and validates a schema document from r.
func Load(r io.Reader) (*SearchSchema, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a schema document. It fails on the first
// problem with a *types.ValidationError naming the offending field.
func Parse(data []byte) (*SearchSchema, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &types.ValidationError{Field: "$", Reason: "empty document"}
	}

	var raw rawSchema
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &types.ValidationError{Field: "$", Reason: "malformed JSON", Err: err}
	}

	out := &SearchSchema{}
	var err error
	if out.SubmitButton, err = buildSelector("submit_button", raw.SubmitButton, &out.Warnings); err != nil {
		return nil, err
	}
	if out.NextPageButton, err = buildSelector("next_page_button", raw.NextPageButton, &out.Warnings); err != nil {
		return nil, err
	}
	if out.DetailPageLink, err = buildSelector("detail_page_link", raw.DetailPageLink, &out.Warnings); err != nil {
		return nil, err
	}

	if raw.SearchPageURL == nil {
		return nil, &types.ValidationError{Field: "search_page_url", Reason: "is required"}
	}
	out.SearchPageURL = strings.TrimSpace(*raw.SearchPageURL)
	if err := ValidateURL(out.SearchPageURL); err != nil {
		return nil, &types.ValidationError{Field: "search_page_url", Reason: "not an absolute http(s) URL", Err: err}
	}

	return out, nil
}

// buildSelector validates one element. A locator that does not compile is
// blanked, with a note in warnings, when the other locator compiles; with
// no valid locator left the element is rejected.
func buildSelector(field string, raw *rawSelector, warnings *[]string) (ElementSelector, error) {
	if raw == nil {
		return ElementSelector{}, &types.ValidationError{Field: field, Reason: "is required"}
	}

	sel := ElementSelector{ID: field}
	if raw.ID != nil && strings.TrimSpace(*raw.ID) != "" {
		sel.ID = strings.TrimSpace(*raw.ID)
	}
	if raw.XPath != nil {
		sel.XPath = strings.TrimSpace(*raw.XPath)
	}
	if raw.CSSSelector != nil {
		sel.CSSSelector = strings.TrimSpace(*raw.CSSSelector)
	}
	if raw.Index != nil {
		if *raw.Index < 0 {
			return ElementSelector{}, &types.ValidationError{
				Field:  field + ".index",
				Reason: fmt.Sprintf("must be >= 0, got %d", *raw.Index),
			}
		}
		sel.Index = *raw.Index
	}
	if raw.Description != nil {
		sel.Description = *raw.Description
	}

	if !sel.HasXPath() && !sel.HasCSS() {
		return ElementSelector{}, &types.ValidationError{
			Field:  field,
			Reason: "needs a usable xpath or css_selector",
		}
	}

	var xpathErr, cssErr error
	if sel.HasXPath() {
		_, xpathErr = xpath.Compile(sel.XPath)
	}
	if sel.HasCSS() {
		_, cssErr = cascadia.Compile(sel.CSSSelector)
	}
	xpathOK := sel.HasXPath() && xpathErr == nil
	cssOK := sel.HasCSS() && cssErr == nil

	if xpathErr != nil {
		if !cssOK {
			return ElementSelector{}, &types.ValidationError{Field: field + ".xpath", Reason: "invalid xpath", Err: xpathErr}
		}
		*warnings = append(*warnings, fmt.Sprintf("%s.xpath %q ignored: %v", field, sel.XPath, xpathErr))
		sel.XPath = ""
	}
	if cssErr != nil {
		if !xpathOK {
			return ElementSelector{}, &types.ValidationError{Field: field + ".css_selector", Reason: "invalid css selector", Err: cssErr}
		}
		*warnings = append(*warnings, fmt.Sprintf("%s.css_selector %q ignored: %v", field, sel.CSSSelector, cssErr))
		sel.CSSSelector = ""
	}

	return sel, nil
}

// ValidateURL checks that rawURL is an absolute http or https URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
