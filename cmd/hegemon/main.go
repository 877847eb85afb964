// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/hegemon"
	"github.com/poiesic/hegemon/ai"
	"github.com/poiesic/hegemon/chunk"
	"github.com/poiesic/hegemon/config"
	"github.com/poiesic/hegemon/core"
	"github.com/poiesic/hegemon/export"
	"github.com/poiesic/hegemon/ingestion"
	"github.com/poiesic/hegemon/retrieval"
	"github.com/poiesic/hegemon/service"
	"github.com/poiesic/hegemon/sources"
)

// tickEvery is how often the scheduler checks for due sources. The
// per-source cadence lives in the config; this only bounds tick latency.
const tickEvery = time.Minute

func main() {
	app := &cli.App{
		Name:  "hegemon",
		Usage: "Market hegemony prediction pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config YAML (embedded defaults when omitted)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the ingestion scheduler and prediction HTTP server",
				Action: serveCommand,
			},
			{
				Name:   "ingest",
				Usage:  "Run a single ingestion tick and exit",
				Action: ingestCommand,
			},
			{
				Name:   "backfill",
				Usage:  "Embed chunks for stored documents that are missing them",
				Action: backfillCommand,
			},
			{
				Name:   "export",
				Usage:  "Export stored data as JSON Lines to stdout",
				Action: exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "what",
						Usage: "What to export: documents, chunks, or training",
						Value: "documents",
					},
					&cli.StringSliceFlag{
						Name:  "company",
						Usage: "Restrict the export to these company codes",
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Restrict the export to one document type (disclosure, news, market)",
					},
					&cli.TimestampFlag{
						Name:   "since",
						Usage:  "Exclude items older than this instant",
						Layout: time.RFC3339,
					},
					&cli.BoolFlag{
						Name:  "vectors",
						Usage: "Include embedding vectors in chunk exports",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadConfig resolves the --config flag, falling back to the embedded
// defaults when no path is given.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.Default()
}

func openDatabase(cfg *config.Config) (*hegemon.Database, error) {
	aiConfig := ai.NewConfig(
		ai.WithEmbeddingHost(cfg.AI.EmbeddingHost),
		ai.WithGeneratorHost(cfg.AI.GeneratorHost),
		ai.WithEmbeddingModel(cfg.AI.EmbeddingModel),
		ai.WithGeneratorModel(cfg.AI.GeneratorModel),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	return hegemon.NewDatabase(cfg.Storage.Path,
		hegemon.WithAIConfig(aiConfig),
		hegemon.WithRoster(cfg.Roster()),
	)
}

// buildConnectors assembles the enabled source connectors from config.
func buildConnectors(cfg *config.Config, registry *core.Registry) []sources.Connector {
	var connectors []sources.Connector

	if cfg.Sources.Disclosures.Enabled {
		apiKey := os.Getenv(cfg.Sources.Disclosures.APIKeyEnv)
		if apiKey == "" {
			slog.Warn("disclosure source enabled but API key env is empty",
				"env", cfg.Sources.Disclosures.APIKeyEnv)
		}
		connectors = append(connectors,
			sources.NewDisclosureConnector(cfg.Sources.Disclosures.BaseURL, apiKey, registry))
	}

	if cfg.Sources.News.Enabled && len(cfg.Sources.News.Feeds) > 0 {
		feeds := make([]sources.CompanyFeed, len(cfg.Sources.News.Feeds))
		for i, feed := range cfg.Sources.News.Feeds {
			feeds[i] = sources.CompanyFeed{CompanyCode: feed.CompanyCode, URL: feed.URL}
		}
		connectors = append(connectors, sources.NewFeedConnector(feeds))
	}

	if cfg.Sources.Market.Enabled && cfg.Sources.Market.BaseURL != "" {
		connectors = append(connectors,
			sources.NewMarketConnector(cfg.Sources.Market.BaseURL, registry))
	}

	return connectors
}

func schedulerOptions(cfg *config.Config) ([]ingestion.Option, error) {
	splitter, err := chunk.NewSplitter(cfg.Chunking.Window, cfg.Chunking.Stride)
	if err != nil {
		return nil, fmt.Errorf("invalid chunking configuration: %w", err)
	}
	return []ingestion.Option{
		ingestion.WithPoolSize(cfg.Ingestion.Concurrency),
		ingestion.WithRetryPolicy(cfg.Ingestion.RetryAttempts, cfg.Ingestion.RetryBase.Std()),
		ingestion.WithInterval(core.DocTypeDisclosure, cfg.Ingestion.Intervals.Disclosure.Std()),
		ingestion.WithInterval(core.DocTypeNews, cfg.Ingestion.Intervals.News.Std()),
		ingestion.WithInterval(core.DocTypeMarket, cfg.Ingestion.Intervals.Market.Std()),
		ingestion.WithSplitter(splitter),
	}, nil
}

func retrievalOptions(cfg *config.Config) []retrieval.Option {
	return []retrieval.Option{
		retrieval.WithParams(retrieval.Params{
			TopK:      cfg.Retrieval.TopK,
			OverFetch: cfg.Retrieval.OverFetch,
			HalfLife:  cfg.Retrieval.HalfLife.Std(),
			MinScore:  cfg.Retrieval.MinScore,
		}),
	}
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	connectors := buildConnectors(cfg, db.Registry())
	if len(connectors) == 0 {
		slog.Warn("no sources enabled; serving predictions over existing data only")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(connectors) > 0 {
		opts, err := schedulerOptions(cfg)
		if err != nil {
			return err
		}
		scheduler, err := db.NewScheduler(connectors, opts...)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		defer scheduler.Release()

		go func() {
			if err := scheduler.Run(ctx, tickEvery); err != nil && ctx.Err() == nil {
				slog.Error("scheduler stopped", "err", err)
			}
		}()
	}

	server, err := db.NewServer(retrievalOptions(cfg), nil,
		service.WithTimeout(cfg.Server.RequestTimeout.Std()))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	return server.Serve(ctx, addr)
}

func ingestCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	connectors := buildConnectors(cfg, db.Registry())
	if len(connectors) == 0 {
		return fmt.Errorf("no sources enabled")
	}

	opts, err := schedulerOptions(cfg)
	if err != nil {
		return err
	}
	scheduler, err := db.NewScheduler(connectors, opts...)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	defer scheduler.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	record, err := scheduler.Tick(ctx)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	if record == nil {
		fmt.Fprintln(os.Stderr, "No sources due")
		return nil
	}

	fmt.Fprintf(os.Stderr, "Run %d finished: %s\n", record.RunId, record.Status)
	for id, stats := range record.Sources {
		fmt.Fprintf(os.Stderr, "  %s: fetched=%d new=%d skipped=%d failed=%d",
			id, stats.Fetched, stats.New, stats.Skipped, stats.Failed)
		if stats.Err != "" {
			fmt.Fprintf(os.Stderr, " err=%s", stats.Err)
		}
		fmt.Fprintln(os.Stderr)
	}
	return nil
}

func backfillCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	splitter, err := chunk.NewSplitter(cfg.Chunking.Window, cfg.Chunking.Stride)
	if err != nil {
		return fmt.Errorf("invalid chunking configuration: %w", err)
	}

	backfiller, err := db.NewBackfiller(splitter)
	if err != nil {
		return fmt.Errorf("failed to create backfiller: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := backfiller.Run(ctx)
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Backfill finished: %d documents visited, %d chunks embedded\n",
		result.Documents, result.Written)
	return nil
}

func exportCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	companies := c.StringSlice("company")

	if c.String("what") == "training" {
		exporter, err := db.NewTrainingExporter(retrievalOptions(cfg), nil)
		if err != nil {
			return fmt.Errorf("failed to create training exporter: %w", err)
		}
		written, err := exporter.Export(ctx, os.Stdout, companies)
		if err != nil {
			return fmt.Errorf("training export failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d training pairs\n", written)
		return nil
	}

	filter := export.Filter{
		CompanyCodes:   companies,
		IncludeVectors: c.Bool("vectors"),
	}
	if name := c.String("type"); name != "" {
		docType, err := core.ParseDocType(name)
		if err != nil {
			return fmt.Errorf("invalid document type %q", name)
		}
		filter.Types = []core.DocType{docType}
	}
	if since := c.Timestamp("since"); since != nil {
		filter.From = *since
	}

	exporter, err := db.NewExporter()
	if err != nil {
		return fmt.Errorf("failed to create exporter: %w", err)
	}

	var written int
	switch c.String("what") {
	case "documents":
		written, err = exporter.Documents(ctx, os.Stdout, filter)
	case "chunks":
		written, err = exporter.Chunks(ctx, os.Stdout, filter)
	default:
		return fmt.Errorf("unknown export target %q: must be documents, chunks, or training", c.String("what"))
	}
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Exported %d records\n", written)
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
