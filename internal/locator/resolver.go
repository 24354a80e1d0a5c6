package locator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/SearchHarvest/internal/schema"
	"github.com/IshaanNene/SearchHarvest/internal/types"
)

// Resolution is a successful single-element resolution.
type Resolution struct {
	Element  Element
	Strategy Strategy
	Matches  int
}

// Resolver turns schema selectors into elements.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{
		logger: logger.With("component", "locator"),
	}
}

// Resolve finds the element at sel.Index using the first strategy that
// yields any match. An index past the end of that strategy's matches is a
// miss, reported as *types.NotFoundError.
func (r *Resolver) Resolve(ctx context.Context, q Querier, sel schema.ElementSelector) (*Resolution, error) {
	els, strategy, attempts, err := r.query(ctx, q, sel)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, &types.NotFoundError{Selector: sel.ID, Attempts: attempts}
	}
	if sel.Index >= len(els) {
		attempts = append(attempts, fmt.Sprintf("%s: index %d out of range (%d matches)", strategy, sel.Index, len(els)))
		return nil, &types.NotFoundError{Selector: sel.ID, Attempts: attempts}
	}

	r.logger.Debug("element resolved",
		"selector", sel.Label(),
		"strategy", strategy,
		"matches", len(els),
		"index", sel.Index,
	)
	return &Resolution{Element: els[sel.Index], Strategy: strategy, Matches: len(els)}, nil
}

// ResolveAll returns every match of the first strategy that yields any.
// Index is ignored.
func (r *Resolver) ResolveAll(ctx context.Context, q Querier, sel schema.ElementSelector) ([]Element, Strategy, error) {
	els, strategy, attempts, err := r.query(ctx, q, sel)
	if err != nil {
		return nil, StrategyNone, err
	}
	if len(els) == 0 {
		return nil, StrategyNone, &types.NotFoundError{Selector: sel.ID, Attempts: attempts}
	}
	return els, strategy, nil
}

// query walks the candidates. Only context cancellation aborts the walk;
// a failing strategy falls through to the next one.
func (r *Resolver) query(ctx context.Context, q Querier, sel schema.ElementSelector) ([]Element, Strategy, []string, error) {
	candidates := Candidates(sel)
	if len(candidates) == 0 {
		return nil, StrategyNone, []string{"no usable locator"}, nil
	}

	var attempts []string
	for _, loc := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, StrategyNone, attempts, err
		}

		els, err := q.QueryAll(ctx, loc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, StrategyNone, attempts, ctxErr
			}
			r.logger.Debug("locator failed", "selector", sel.ID, "locator", loc.String(), "error", err)
			attempts = append(attempts, fmt.Sprintf("%s: %v", loc.Strategy, err))
			continue
		}
		if len(els) == 0 {
			attempts = append(attempts, fmt.Sprintf("%s: no matches", loc.Strategy))
			continue
		}
		return els, loc.Strategy, attempts, nil
	}
	return nil, StrategyNone, attempts, nil
}
