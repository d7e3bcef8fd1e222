package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/db"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/globaltime"
)

// Run statuses. A run with partial item failures still finishes as
// StatusFinished with non-zero error counters; StatusFailed is reserved for
// stage-level failures that abort the batch.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

const maxErrorMessageLength = 4000

// Tracker persists the lifecycle of one pipeline stage execution. Every stage
// wraps its batch loop with exactly one Start/Finish pair.
type Tracker struct {
	pool   *db.Pool
	logger zerolog.Logger
}

func NewTracker(pool *db.Pool, logger zerolog.Logger) *Tracker {
	return &Tracker{
		pool:   pool,
		logger: logger,
	}
}

// Start inserts a pending run for the given bot and returns its ID.
func (t *Tracker) Start(ctx context.Context, bot string) (int64, error) {
	if t == nil || t.pool == nil {
		return 0, fmt.Errorf("worker tracker is not initialized")
	}
	bot = strings.TrimSpace(bot)
	if bot == "" {
		return 0, fmt.Errorf("bot name is required")
	}

	const q = `
INSERT INTO events.worker_runs (run_uuid, bot, status, progress, started_at, updated_at)
VALUES ($1, $2, $3, 0, $4, $4)
RETURNING worker_run_id
`
	now := globaltime.UTC()
	var runID int64
	if err := t.pool.QueryRow(ctx, q, uuid.NewString(), bot, StatusPending, now).Scan(&runID); err != nil {
		return 0, fmt.Errorf("insert worker run for bot=%s: %w", bot, err)
	}
	return runID, nil
}

// MarkRunning transitions a pending run to running.
func (t *Tracker) MarkRunning(ctx context.Context, runID int64) error {
	const q = `
UPDATE events.worker_runs
SET status = $2, updated_at = $3
WHERE worker_run_id = $1 AND finished_at IS NULL
`
	if _, err := t.pool.Exec(ctx, q, runID, StatusRunning, globaltime.UTC()); err != nil {
		return fmt.Errorf("mark worker run %d running: %w", runID, err)
	}
	return nil
}

// ReportProgress records batch progress. The value is clamped to [0, 100] and
// never lowered within a run.
func (t *Tracker) ReportProgress(ctx context.Context, runID int64, percent int) error {
	const q = `
UPDATE events.worker_runs
SET progress = GREATEST(progress, $2), updated_at = $3
WHERE worker_run_id = $1 AND finished_at IS NULL
`
	if _, err := t.pool.Exec(ctx, q, runID, clampProgress(percent), globaltime.UTC()); err != nil {
		return fmt.Errorf("report worker run %d progress: %w", runID, err)
	}
	return nil
}

// Finish closes a run with its final status and counters. Finished runs are
// immutable: the WHERE clause refuses a second finish.
func (t *Tracker) Finish(ctx context.Context, runID int64, status string, counters map[string]int, errorMessage string) error {
	switch status {
	case StatusFinished, StatusFailed:
	default:
		return fmt.Errorf("invalid final status %q", status)
	}

	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal worker run counters: %w", err)
	}

	var message *string
	if trimmed := strings.TrimSpace(errorMessage); trimmed != "" {
		if len(trimmed) > maxErrorMessageLength {
			trimmed = trimmed[:maxErrorMessageLength]
		}
		message = &trimmed
	}

	const q = `
UPDATE events.worker_runs
SET
	status = $2,
	progress = CASE WHEN $2 = 'finished' THEN 100 ELSE progress END,
	counters = $3::jsonb,
	error_message = $4,
	finished_at = $5,
	updated_at = $5
WHERE worker_run_id = $1 AND finished_at IS NULL
`
	tag, err := t.pool.Exec(ctx, q, runID, status, string(countersJSON), message, globaltime.UTC())
	if err != nil {
		return fmt.Errorf("finish worker run %d: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		t.logger.Warn().Int64("run_id", runID).Msg("finish called on already-finished worker run")
	}
	return nil
}

func clampProgress(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	default:
		return percent
	}
}

// BatchProgress converts a processed/total pair into a percentage for
// ReportProgress.
func BatchProgress(processed, total int) int {
	if total <= 0 {
		return 100
	}
	return clampProgress(processed * 100 / total)
}
