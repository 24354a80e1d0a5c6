// Package locator resolves schema selectors to live page elements, trying
// each locator strategy in a fixed priority order.
package locator

import (
	"context"

	"github.com/IshaanNene/SearchHarvest/internal/schema"
)

// Strategy is a locator kind.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyXPath
	StrategyCSS
)

func (s Strategy) String() string {
	switch s {
	case StrategyXPath:
		return "xpath"
	case StrategyCSS:
		return "css"
	default:
		return "none"
	}
}

// Locator is one concrete query against a page.
type Locator struct {
	Strategy Strategy
	Expr     string
}

func (l Locator) String() string { return l.Strategy.String() + "=" + l.Expr }

// Element is a handle to a matched node.
type Element interface {
	// Attribute returns the named attribute and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)

	// Interactable reports whether the element is visible and not disabled.
	Interactable(ctx context.Context) (bool, error)
}

// Querier evaluates a locator against the current page state.
type Querier interface {
	// QueryAll returns every match in document order. Zero matches is not
	// an error.
	QueryAll(ctx context.Context, loc Locator) ([]Element, error)
}

// Candidates returns the usable locators of sel in priority order:
// xpath first, then css. Placeholders are omitted.
func Candidates(sel schema.ElementSelector) []Locator {
	var out []Locator
	if sel.HasXPath() {
		out = append(out, Locator{Strategy: StrategyXPath, Expr: sel.XPath})
	}
	if sel.HasCSS() {
		out = append(out, Locator{Strategy: StrategyCSS, Expr: sel.CSSSelector})
	}
	return out
}
