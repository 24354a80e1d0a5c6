package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/SearchHarvest/internal/browser"
	"github.com/IshaanNene/SearchHarvest/internal/config"
	"github.com/IshaanNene/SearchHarvest/internal/engine"
	"github.com/IshaanNene/SearchHarvest/internal/schema"
	"github.com/IshaanNene/SearchHarvest/internal/storage"
	"github.com/IshaanNene/SearchHarvest/internal/types"
)

// extractCmd creates the "extract" subcommand.
func extractCmd() *cobra.Command {
	var (
		concurrency int
		maxPages    int
		headful     bool
		noStealth   bool
		skipDone    bool
	)

	cmd := &cobra.Command{
		Use:   "extract [site...]",
		Short: "Collect detail-page links for one or more sites",
		Long: `Runs the search schema of each site through a fresh browser session
and writes <output>/<site>/extracted_urls.json. With no arguments every
directory under the output root that holds a schema file is processed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(func(cfg *config.Config) {
				if cmd.Flags().Changed("concurrency") {
					cfg.Extraction.Concurrency = concurrency
				}
				if cmd.Flags().Changed("max-pages") {
					cfg.Extraction.MaxPages = maxPages
				}
				if headful {
					cfg.Browser.Headless = false
				}
				if noStealth {
					cfg.Browser.Stealth = false
				}
			})
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)

			ctx, cancel := signalContext(logger)
			defer cancel()

			return runExtract(ctx, cfg, args, skipDone, logger)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent browser sessions")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum result pages per site")
	cmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	cmd.Flags().BoolVar(&noStealth, "no-stealth", false, "disable stealth page patches")
	cmd.Flags().BoolVar(&skipDone, "skip-done", false, "skip sites whose last run finished")

	return cmd
}

func runExtract(ctx context.Context, cfg *config.Config, sites []string, skipDone bool, logger *slog.Logger) error {
	metrics := startMetrics(ctx, cfg, logger)

	if len(sites) == 0 {
		found, err := discoverSites(cfg.Storage.OutputPath, cfg.Extraction.SchemaFile)
		if err != nil {
			return err
		}
		sites = found
	}
	if len(sites) == 0 {
		return fmt.Errorf("no %s found under %s", cfg.Extraction.SchemaFile, cfg.Storage.OutputPath)
	}

	files := storage.NewResultFileStore(cfg.Storage.OutputPath, logger)
	if skipDone {
		sites = pendingSites(files, sites, logger)
		if len(sites) == 0 {
			fmt.Println("All sites already extracted.")
			return nil
		}
	}
	sinks := []storage.ResultStore{files}
	if cfg.Storage.Mongo.Enabled {
		mongoStore, err := storage.NewMongoResultStore(ctx, cfg.Storage.Mongo, logger)
		if err != nil {
			return fmt.Errorf("init mongodb: %w", err)
		}
		sinks = append(sinks, mongoStore)
	}
	sink := storage.NewMultiResultStore(sinks, logger)
	defer sink.Close()

	jobs := make([]engine.Job, len(sites))
	for i, site := range sites {
		path := filepath.Join(files.SiteDir(site), cfg.Extraction.SchemaFile)
		s, err := schema.LoadFile(path)
		jobs[i] = engine.Job{SiteKey: site, Schema: s, Err: err}
		if err != nil {
			logger.Error("invalid schema", "site", site, "path", path, "error", err)
			continue
		}
		for _, w := range s.Warnings {
			logger.Warn("schema locator dropped", "site", site, "detail", w)
		}
	}

	eng := engine.New(engine.OptionsFromConfig(cfg.Extraction), metrics, logger)
	eng.SetSnapshotWriter(files)

	launch := func(ctx context.Context) (engine.Session, error) {
		s, err := browser.Open(ctx, cfg.Browser, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	runner := engine.NewRunner(eng, launch, sink, cfg.Extraction.Concurrency, metrics, logger)

	logger.Info("starting extraction",
		"sites", len(jobs),
		"concurrency", cfg.Extraction.Concurrency,
		"max_pages", cfg.Extraction.MaxPages,
	)
	results := runner.Run(ctx, jobs)

	fmt.Printf("\n=== Extraction Complete ===\n")
	failed := 0
	for _, r := range results {
		status := r.State.String()
		if r.StopReason != "" {
			status += " (" + string(r.StopReason) + ")"
		}
		fmt.Printf("  %-24s %-32s pages=%-3d urls=%d\n", r.SiteKey, status, r.Pages, r.URLCount)
		if r.State != types.StateDone {
			failed++
			fmt.Printf("  %-24s error: %s\n", "", r.Error)
		}
	}
	snap := metrics.Snapshot()
	fmt.Printf("\nLinks collected: %d (duplicates %d, rejected %d)\n",
		snap["links_collected"], snap["links_duplicate"], snap["links_rejected"])
	fmt.Printf("Step retries:    %d\n", snap["step_retries"])

	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sites failed", failed, len(results))
	}
	return nil
}

// discoverSites lists the directories under root holding a schema file.
func discoverSites(root, schemaFile string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*", schemaFile))
	if err != nil {
		return nil, fmt.Errorf("discover sites: %w", err)
	}
	sites := make([]string, 0, len(matches))
	for _, m := range matches {
		sites = append(sites, filepath.Base(filepath.Dir(m)))
	}
	sort.Strings(sites)
	return sites, nil
}

// pendingSites drops sites whose saved result reached done.
func pendingSites(files *storage.ResultFileStore, sites []string, logger *slog.Logger) []string {
	pending := sites[:0:0]
	for _, site := range sites {
		prev, err := storage.LoadResult(filepath.Join(files.SiteDir(site), storage.ResultJSONFile))
		if err == nil {
			if r, ok := prev[site]; ok && r.State == types.StateDone {
				logger.Info("skipping finished site", "site", site, "urls", r.URLCount)
				continue
			}
		}
		pending = append(pending, site)
	}
	return pending
}
