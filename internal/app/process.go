package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/cli"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/config"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/db"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/fetch"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/logging"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/pipeline"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/worker"
)

const maxProcessCycles = 50

func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")
	sourceLimit := fs.Int("source-limit", 50, "Maximum active sources to fetch")
	batchLimit := fs.Int("batch-limit", 500, "Per-stage batch size per cycle")
	skipFetch := fs.Bool("skip-fetch", false, "Skip the fetch stage and only drain pending work")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *sourceLimit <= 0 || *batchLimit <= 0 {
		fmt.Fprintln(os.Stderr, "--source-limit and --batch-limit must be > 0")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("process command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	tracker := worker.NewTracker(pool, logger)
	runID, err := startRun(ctx, tracker, logger, "process_bot")
	if err != nil {
		logger.Error().Err(err).Msg("start process run failed")
		fmt.Fprintf(os.Stderr, "Failed to start run: %v\n", err)
		return 1
	}

	counters, processErr := processOnce(ctx, pool, tracker, runID, cfg, logger, processOptions{
		SourceLimit: *sourceLimit,
		BatchLimit:  *batchLimit,
		SkipFetch:   *skipFetch,
	})
	finishRun(ctx, tracker, logger, runID, counters, processErr)
	if processErr != nil {
		logger.Error().Err(processErr).Msg("process failed")
		fmt.Fprintf(os.Stderr, "Process failed: %v\n", processErr)
		return 1
	}

	logger.Info().Interface("counters", counters).Msg("process completed")
	fmt.Printf("process fetched=%d extracted=%d normalized=%d deduped=%d cycles=%d\n",
		counters["fetched"], counters["extract_processed"], counters["normalize_processed"],
		counters["dedup_processed"], counters["cycles"])
	return 0
}

type processOptions struct {
	SourceLimit int
	BatchLimit  int
	SkipFetch   bool
}

// processOnce runs one fetch pass and then cycles the extract, normalize and
// dedup stages until all three report an empty batch.
func processOnce(ctx context.Context, pool *db.Pool, tracker *worker.Tracker, runID int64, cfg *config.Config, logger zerolog.Logger, opts processOptions) (map[string]int, error) {
	counters := map[string]int{}

	if !opts.SkipFetch {
		fetchSvc := fetch.NewService(pool, logger, fetchOptions(cfg))
		fetchResult, err := fetchSvc.FetchSources(ctx, opts.SourceLimit)
		mergeCounters(counters, "", fetchResult.Counters())
		if err != nil {
			return counters, fmt.Errorf("fetch stage: %w", err)
		}
	}

	svc := pipeline.NewService(pool, logger, aiClient(cfg))
	progress := runProgress(ctx, tracker, logger, runID)
	for cycle := 1; cycle <= maxProcessCycles; cycle++ {
		counters["cycles"] = cycle

		extractResult, err := svc.ExtractPending(ctx, opts.BatchLimit)
		mergeCounters(counters, "extract_", extractResult.Counters())
		if err != nil {
			return counters, fmt.Errorf("extract stage: %w", err)
		}

		normalizeResult, err := svc.NormalizePending(ctx, opts.BatchLimit)
		mergeCounters(counters, "normalize_", normalizeResult.Counters())
		if err != nil {
			return counters, fmt.Errorf("normalize stage: %w", err)
		}

		dedupResult, err := svc.DedupPending(ctx, dedupOptions(cfg, opts.BatchLimit))
		mergeCounters(counters, "dedup_", dedupResult.Counters())
		if err != nil {
			return counters, fmt.Errorf("dedup stage: %w", err)
		}

		progress(cycle, maxProcessCycles)

		if extractResult.Processed == 0 && normalizeResult.Processed == 0 && dedupResult.Processed == 0 {
			break
		}
	}
	return counters, nil
}

func mergeCounters(into map[string]int, prefix string, from map[string]int) {
	for key, value := range from {
		into[prefix+key] += value
	}
}
