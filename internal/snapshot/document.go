// Package snapshot evaluates schema locators against saved HTML instead of
// a live browser. It backs the offline "validate" command and reads the
// brotli-compressed page captures written when an extraction fails.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/IshaanNene/SearchHarvest/internal/locator"
)

// Document is a parsed HTML page that answers locator queries.
type Document struct {
	root *html.Node
	doc  *goquery.Document
	url  string
}

// Parse builds a Document from raw HTML. pageURL is the address the HTML
// was captured from and may be empty.
func Parse(body, pageURL string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{
		root: root,
		doc:  goquery.NewDocumentFromNode(root),
		url:  pageURL,
	}, nil
}

// LoadFile reads a saved page. Files ending in ".br" are brotli-decoded.
func LoadFile(path, pageURL string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".br") {
		r = brotli.NewReader(f)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	return Parse(string(body), pageURL)
}

// URL returns the page address the document was captured from.
func (d *Document) URL() string { return d.url }

// QueryAll implements locator.Querier.
func (d *Document) QueryAll(ctx context.Context, loc locator.Locator) ([]locator.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var nodes []*html.Node
	switch loc.Strategy {
	case locator.StrategyXPath:
		found, err := htmlquery.QueryAll(d.root, loc.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", loc.Expr, err)
		}
		for _, n := range found {
			// attribute matches come back as detached synthetic nodes
			if n.Type == html.ElementNode && n.Parent != nil {
				nodes = append(nodes, n)
			}
		}
	case locator.StrategyCSS:
		sel, err := cascadia.Compile(loc.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid css selector %q: %w", loc.Expr, err)
		}
		nodes = d.doc.FindMatcher(sel).Nodes
	default:
		return nil, fmt.Errorf("unsupported locator strategy %s", loc.Strategy)
	}

	els := make([]locator.Element, len(nodes))
	for i, n := range nodes {
		els[i] = &Element{node: n}
	}
	return els, nil
}

// Element is a node inside a Document.
type Element struct {
	node *html.Node
}

// Attribute implements locator.Element.
func (e *Element) Attribute(_ context.Context, name string) (string, bool, error) {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true, nil
		}
	}
	return "", false, nil
}

// Interactable treats an element as usable unless it, or an ancestor, is
// hidden, or the element itself is disabled.
func (e *Element) Interactable(_ context.Context) (bool, error) {
	sel := goquery.NewDocumentFromNode(e.node).Selection
	if _, ok := sel.Attr("disabled"); ok {
		return false, nil
	}
	if v, _ := sel.Attr("aria-disabled"); v == "true" {
		return false, nil
	}
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if hidden(n) {
			return false, nil
		}
	}
	return true, nil
}

func hidden(n *html.Node) bool {
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "style":
			style := strings.ReplaceAll(strings.ToLower(a.Val), " ", "")
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		}
	}
	return false
}
