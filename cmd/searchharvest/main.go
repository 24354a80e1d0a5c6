package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/SearchHarvest/internal/config"
	"github.com/IshaanNene/SearchHarvest/internal/observability"
)

var (
	cfgFile    string
	verbose    bool
	outputPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "searchharvest",
		Short: "SearchHarvest: schema-driven search result harvester",
		Long: `SearchHarvest drives a browser through a site's search form using a
per-site selector schema, follows pagination to the last result page and
collects the detail-page links. A second stage merges the per-site detail
extraction files into one CSV or JSONL dataset.

Layout under the output directory:
  <site>/web_search_schema.json   selector schema (input)
  <site>/extracted_urls.json      collected links and run status
  <site>/extracted_data.json      detail records (merge input)`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputPath, "output", "o", "", "output root directory (default from config)")

	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(mergeCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads, overrides and validates configuration.
func loadConfig(overrides func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if overrides != nil {
		overrides(cfg)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setupLogger creates a structured logger.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down...", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// startMetrics serves metrics when enabled.
func startMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) *observability.Metrics {
	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		if err := metrics.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}
	return metrics
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("SearchHarvest %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(nil)
			if err != nil {
				return err
			}
			fmt.Printf("Browser:\n")
			fmt.Printf("  Headless:            %v\n", cfg.Browser.Headless)
			fmt.Printf("  Stealth:             %v\n", cfg.Browser.Stealth)
			fmt.Printf("  Window Size:         %s\n", cfg.Browser.WindowSize)
			fmt.Printf("  Idle Window:         %s\n", cfg.Browser.IdleWindow)

			fmt.Printf("\nExtraction:\n")
			fmt.Printf("  Concurrency:         %d\n", cfg.Extraction.Concurrency)
			fmt.Printf("  Max Pages:           %d\n", cfg.Extraction.MaxPages)
			fmt.Printf("  Max Retries:         %d\n", cfg.Extraction.MaxRetries)
			fmt.Printf("  Retry Delay:         %s\n", cfg.Extraction.RetryDelay)
			fmt.Printf("  Navigation Timeout:  %s\n", cfg.Extraction.NavigationTimeout)
			fmt.Printf("  Interaction Timeout: %s\n", cfg.Extraction.InteractionTimeout)
			fmt.Printf("  Idle Timeout:        %s\n", cfg.Extraction.IdleTimeout)
			fmt.Printf("  Action Interval:     %s\n", cfg.Extraction.ActionInterval)
			fmt.Printf("  Schema File:         %s\n", cfg.Extraction.SchemaFile)

			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Output Path:         %s\n", cfg.Storage.OutputPath)
			fmt.Printf("  MongoDB:             %v\n", cfg.Storage.Mongo.Enabled)
			if cfg.Storage.Mongo.Enabled {
				fmt.Printf("  MongoDB Database:    %s\n", cfg.Storage.Mongo.Database)
			}

			fmt.Printf("\nMerge:\n")
			fmt.Printf("  Data File:           %s\n", cfg.Merge.DataFile)
			fmt.Printf("  Required Field:      %s\n", cfg.Merge.RequiredField)
			fmt.Printf("  URL Fields:          %v\n", cfg.Merge.URLFields)
			fmt.Printf("  Format:              %s\n", cfg.Merge.Format)

			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:             %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:                %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}
