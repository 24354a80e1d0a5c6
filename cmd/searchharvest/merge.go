package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/SearchHarvest/internal/config"
	"github.com/IshaanNene/SearchHarvest/internal/merge"
	"github.com/IshaanNene/SearchHarvest/internal/observability"
	"github.com/IshaanNene/SearchHarvest/internal/storage"
)

// mergeCmd creates the "merge" subcommand.
func mergeCmd() *cobra.Command {
	var (
		format    string
		outFile   string
		dedupKey  string
		separator string
	)

	cmd := &cobra.Command{
		Use:   "merge [dir...]",
		Short: "Merge per-site detail records into one dataset",
		Long: `Reads <dir>/extracted_data.json for every directory given (or every
site directory under the output root), drops records without the required
field, normalizes URL fields against each record's source page and writes
one CSV or JSONL file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(func(cfg *config.Config) {
				if format != "" {
					cfg.Merge.Format = format
				}
				if outFile != "" {
					cfg.Merge.OutputFile = outFile
				}
				if dedupKey != "" {
					cfg.Merge.DedupKey = dedupKey
				}
				if cmd.Flags().Changed("separator") {
					cfg.Merge.Separator = separator
				}
			})
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)

			ctx, cancel := signalContext(logger)
			defer cancel()

			metrics := startMetrics(ctx, cfg, logger)
			return runMerge(ctx, cfg, args, metrics, logger)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "output format (csv, jsonl)")
	cmd.Flags().StringVar(&outFile, "out-file", "", "output file name without extension")
	cmd.Flags().StringVar(&dedupKey, "dedup-key", "", "drop records repeating this field's value")
	cmd.Flags().StringVar(&separator, "separator", ",", "separator for list values in CSV cells")

	return cmd
}

func runMerge(ctx context.Context, cfg *config.Config, dirs []string, metrics *observability.Metrics, logger *slog.Logger) error {
	if len(dirs) == 0 {
		found, err := merge.Discover(cfg.Storage.OutputPath, cfg.Merge.DataFile)
		if err != nil {
			return err
		}
		dirs = found
	}
	if len(dirs) == 0 {
		return fmt.Errorf("no %s found under %s", cfg.Merge.DataFile, cfg.Storage.OutputPath)
	}

	ds, report, err := merge.New(cfg.Merge, metrics, logger).Merge(ctx, dirs)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Merge Complete ===\n")
	for _, src := range report.Sources {
		if src.Err != nil {
			fmt.Printf("  %-40s skipped: %v\n", src.Dir, src.Err)
			continue
		}
		fmt.Printf("  %-40s records=%-5d kept=%-5d dropped=%d\n", src.Dir, src.Records, src.Kept, src.Dropped)
	}
	fmt.Printf("\nKept: %d  Dropped: %d  Skipped sources: %d\n", report.Kept, report.Dropped, len(report.Skipped()))

	if len(ds.Records) == 0 {
		logger.Warn("no records survived the merge, nothing written")
		return nil
	}

	file, err := storage.NewDatasetStorage(cfg.Merge.Format, cfg.Storage.OutputPath, cfg.Merge.OutputFile, ds.Columns, cfg.Merge.Separator, logger)
	if err != nil {
		return err
	}
	backends := []storage.Storage{file}
	if cfg.Storage.Mongo.Enabled {
		mongoStore, err := storage.NewMongoStorage(ctx, cfg.Storage.Mongo, logger)
		if err != nil {
			_ = file.Close()
			return fmt.Errorf("init mongodb: %w", err)
		}
		backends = append(backends, mongoStore)
	}
	store := storage.NewMultiStorage(backends, logger)

	if err := store.Store(ctx, ds.Records); err != nil {
		_ = store.Close()
		return err
	}
	if err := store.Close(); err != nil {
		return err
	}
	metrics.RecordsStored.Add(int64(len(ds.Records)))

	fmt.Printf("Wrote %d records (%d columns) as %s to %s\n",
		len(ds.Records), len(ds.Columns), cfg.Merge.Format, cfg.Storage.OutputPath)
	return nil
}
