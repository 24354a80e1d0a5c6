package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/SearchHarvest/internal/locator"
	"github.com/IshaanNene/SearchHarvest/internal/schema"
	"github.com/IshaanNene/SearchHarvest/internal/snapshot"
	"github.com/IshaanNene/SearchHarvest/internal/types"
	"github.com/IshaanNene/SearchHarvest/internal/urlnorm"
)

// validateCmd creates the "validate" subcommand. With --html it also
// resolves every selector against a saved page.
func validateCmd() *cobra.Command {
	var (
		htmlFile string
		pageURL  string
	)

	cmd := &cobra.Command{
		Use:   "validate <schema.json>",
		Short: "Check a search schema, optionally against a saved page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)

			s, err := schema.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Schema %s is valid\n", args[0])
			fmt.Printf("  Search page:  %s\n", s.SearchPageURL)
			fmt.Printf("  Submit:       %s\n", s.SubmitButton.Label())
			fmt.Printf("  Next page:    %s\n", s.NextPageButton.Label())
			fmt.Printf("  Detail link:  %s\n", s.DetailPageLink.Label())
			for _, w := range s.Warnings {
				fmt.Printf("  Warning:      %s\n", w)
			}

			if htmlFile == "" {
				return nil
			}
			if pageURL == "" {
				pageURL = s.SearchPageURL
			}
			doc, err := snapshot.LoadFile(htmlFile, pageURL)
			if err != nil {
				return err
			}
			return checkAgainst(cmd.Context(), doc, s, logger)
		},
	}

	cmd.Flags().StringVar(&htmlFile, "html", "", "saved page (.html or .html.br) to resolve selectors against")
	cmd.Flags().StringVar(&pageURL, "url", "", "address the page was saved from (default: search_page_url)")

	return cmd
}

func checkAgainst(ctx context.Context, doc *snapshot.Document, s *schema.SearchSchema, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r := locator.NewResolver(logger)

	fmt.Printf("\nAgainst %s:\n", doc.URL())
	for _, sel := range []schema.ElementSelector{s.SubmitButton, s.NextPageButton} {
		res, err := r.Resolve(ctx, doc, sel)
		var nf *types.NotFoundError
		switch {
		case errors.As(err, &nf):
			fmt.Printf("  %-18s not found (%v)\n", sel.ID, nf.Attempts)
			continue
		case err != nil:
			return err
		}
		interactable, _ := res.Element.Interactable(ctx)
		fmt.Printf("  %-18s %s, %d matches, interactable=%v\n", sel.ID, res.Strategy, res.Matches, interactable)
	}

	els, strategy, err := r.ResolveAll(ctx, doc, s.DetailPageLink)
	var nf *types.NotFoundError
	switch {
	case errors.As(err, &nf):
		fmt.Printf("  %-18s not found (%v)\n", s.DetailPageLink.ID, nf.Attempts)
		return nil
	case err != nil:
		return err
	}
	fmt.Printf("  %-18s %s, %d matches\n", s.DetailPageLink.ID, strategy, len(els))
	for _, el := range els {
		href, ok, err := el.Attribute(ctx, "href")
		if err != nil || !ok {
			continue
		}
		if abs, ok := urlnorm.Normalize(href, doc.URL()); ok {
			fmt.Printf("    %s\n", abs)
		}
	}
	return nil
}
