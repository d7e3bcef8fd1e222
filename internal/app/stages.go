package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/ai"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/cli"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/config"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/db"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/fetch"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/logging"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/pipeline"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/worker"
)

// startRun opens the worker run wrapping one stage batch.
func startRun(ctx context.Context, tracker *worker.Tracker, logger zerolog.Logger, bot string) (int64, error) {
	runID, err := tracker.Start(ctx, bot)
	if err != nil {
		return 0, err
	}
	if err := tracker.MarkRunning(ctx, runID); err != nil {
		logger.Warn().Err(err).Int64("run_id", runID).Msg("mark running failed")
	}
	return runID, nil
}

// finishRun closes the run: failed on a stage-level error, finished otherwise.
// Per-item soft failures arrive inside counters and never fail the run.
func finishRun(ctx context.Context, tracker *worker.Tracker, logger zerolog.Logger, runID int64, counters map[string]int, runErr error) {
	status := worker.StatusFinished
	message := ""
	if runErr != nil {
		status = worker.StatusFailed
		message = runErr.Error()
	}
	if err := tracker.Finish(ctx, runID, status, counters, message); err != nil {
		logger.Error().Err(err).Int64("run_id", runID).Msg("finish run failed")
	}
}

// runProgress adapts tracker progress reporting into a stage callback.
// Reporting failures are logged and never interrupt the batch.
func runProgress(ctx context.Context, tracker *worker.Tracker, logger zerolog.Logger, runID int64) func(processed, total int) {
	return func(processed, total int) {
		if err := tracker.ReportProgress(ctx, runID, worker.BatchProgress(processed, total)); err != nil {
			logger.Warn().Err(err).Int64("run_id", runID).Msg("report progress failed")
		}
	}
}

func fetchOptions(cfg *config.Config) fetch.Options {
	return fetch.Options{
		Timeout:           cfg.FetchTimeout,
		BodyByteLimit:     cfg.FetchBodyLimit,
		HostDelay:         cfg.FetchHostDelay,
		RequestsPerSecond: cfg.FetchRequestsPerS,
	}
}

func dedupOptions(cfg *config.Config, limit int) pipeline.DedupOptions {
	return pipeline.DedupOptions{
		Limit:         limit,
		Window:        time.Duration(cfg.DedupWindowHours) * time.Hour,
		Threshold:     cfg.DedupThreshold,
		EscalateFloor: &cfg.DedupEscalateFloor,
		AIBlendWeight: &cfg.DedupAIBlendWeight,
		Weights: pipeline.Weights{
			Title:    cfg.DedupTitleWeight,
			Location: cfg.DedupLocationWeight,
			Time:     cfg.DedupTimeWeight,
		},
	}
}

func aiClient(cfg *config.Config) *ai.Client {
	return ai.NewClient(ai.Options{
		Endpoint:       cfg.AIEndpoint,
		RequestTimeout: cfg.AIRequestTimeout,
	})
}

func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	limit := fs.Int("limit", 50, "Maximum active sources to fetch")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
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
		logger.Error().Err(err).Msg("fetch command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	tracker := worker.NewTracker(pool, logger)
	runID, err := startRun(ctx, tracker, logger, "fetch_bot")
	if err != nil {
		logger.Error().Err(err).Msg("start fetch run failed")
		fmt.Fprintf(os.Stderr, "Failed to start run: %v\n", err)
		return 1
	}

	opts := fetchOptions(cfg)
	opts.OnProgress = runProgress(ctx, tracker, logger, runID)
	svc := fetch.NewService(pool, logger, opts)
	result, err := svc.FetchSources(ctx, *limit)
	finishRun(ctx, tracker, logger, runID, result.Counters(), err)
	if err != nil {
		logger.Error().Err(err).Int("limit", *limit).Msg("fetch failed")
		fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("limit", *limit).
		Int("sources", result.Sources).
		Int("fetched", result.Fetched).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("fetch completed")
	fmt.Printf("fetch sources=%d fetched=%d skipped=%d errors=%d limit=%d\n",
		result.Sources, result.Fetched, result.Skipped, result.Errors, *limit)
	return 0
}

func runExtract(args []string) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	limit := fs.Int("limit", 200, "Maximum pending raw items to extract")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
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
		logger.Error().Err(err).Msg("extract command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	tracker := worker.NewTracker(pool, logger)
	runID, err := startRun(ctx, tracker, logger, "extract_bot")
	if err != nil {
		logger.Error().Err(err).Msg("start extract run failed")
		fmt.Fprintf(os.Stderr, "Failed to start run: %v\n", err)
		return 1
	}

	svc := pipeline.NewService(pool, logger, aiClient(cfg))
	svc.OnProgress(runProgress(ctx, tracker, logger, runID))
	result, err := svc.ExtractPending(ctx, *limit)
	finishRun(ctx, tracker, logger, runID, result.Counters(), err)
	if err != nil {
		logger.Error().Err(err).Int("limit", *limit).Msg("extract failed")
		fmt.Fprintf(os.Stderr, "Extract failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("limit", *limit).
		Int("processed", result.Processed).
		Int("inserted", result.Inserted).
		Int("skipped", result.Skipped).
		Int("rejected", result.Rejected).
		Int("ai_extracted", result.AIExtracted).
		Int("errors", result.Errors).
		Msg("extract completed")
	fmt.Printf("extract processed=%d inserted=%d skipped=%d rejected=%d errors=%d limit=%d\n",
		result.Processed, result.Inserted, result.Skipped, result.Rejected, result.Errors, *limit)
	return 0
}

func runNormalize(args []string) int {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	limit := fs.Int("limit", 1000, "Maximum pending raw events to normalize")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
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
		logger.Error().Err(err).Msg("normalize command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	tracker := worker.NewTracker(pool, logger)
	runID, err := startRun(ctx, tracker, logger, "normalize_bot")
	if err != nil {
		logger.Error().Err(err).Msg("start normalize run failed")
		fmt.Fprintf(os.Stderr, "Failed to start run: %v\n", err)
		return 1
	}

	svc := pipeline.NewService(pool, logger, nil)
	svc.OnProgress(runProgress(ctx, tracker, logger, runID))
	result, err := svc.NormalizePending(ctx, *limit)
	finishRun(ctx, tracker, logger, runID, result.Counters(), err)
	if err != nil {
		logger.Error().Err(err).Int("limit", *limit).Msg("normalize failed")
		fmt.Fprintf(os.Stderr, "Normalize failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("limit", *limit).
		Int("processed", result.Processed).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("rejected", result.Rejected).
		Msg("normalize completed")
	fmt.Printf("normalize processed=%d created=%d skipped=%d rejected=%d limit=%d\n",
		result.Processed, result.Created, result.Skipped, result.Rejected, *limit)
	return 0
}

func runDedup(args []string) int {
	fs := flag.NewFlagSet("dedup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	limit := fs.Int("limit", 1000, "Maximum unchecked candidates to deduplicate")
	noAI := fs.Bool("no-ai", false, "Disable AI escalation for borderline scores")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
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
		logger.Error().Err(err).Msg("dedup command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	tracker := worker.NewTracker(pool, logger)
	runID, err := startRun(ctx, tracker, logger, "dedup_bot")
	if err != nil {
		logger.Error().Err(err).Msg("start dedup run failed")
		fmt.Fprintf(os.Stderr, "Failed to start run: %v\n", err)
		return 1
	}

	var capability ai.Capability
	if !*noAI {
		capability = aiClient(cfg)
	}
	svc := pipeline.NewService(pool, logger, capability)
	svc.OnProgress(runProgress(ctx, tracker, logger, runID))
	result, err := svc.DedupPending(ctx, dedupOptions(cfg, *limit))
	finishRun(ctx, tracker, logger, runID, result.Counters(), err)
	if err != nil {
		logger.Error().Err(err).Int("limit", *limit).Msg("dedup failed")
		fmt.Fprintf(os.Stderr, "Dedup failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("limit", *limit).
		Int("processed", result.Processed).
		Int("duplicates", result.Duplicates).
		Int("canonical", result.Canonical).
		Int("skipped_no_city", result.SkippedNoCity).
		Int("escalated", result.Escalated).
		Int("escalation_errors", result.EscalationErrors).
		Msg("dedup completed")
	fmt.Printf("dedup processed=%d duplicates=%d canonical=%d skipped=%d escalated=%d limit=%d\n",
		result.Processed, result.Duplicates, result.Canonical, result.SkippedNoCity, result.Escalated, *limit)
	return 0
}
