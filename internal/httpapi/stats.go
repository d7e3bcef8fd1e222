package httpapi

import (
	"context"
	"fmt"
	"time"
)

type statsResponse struct {
	Sources         int64            `json:"sources"`
	RawItems        int64            `json:"raw_items"`
	EventRaws       int64            `json:"event_raws"`
	Candidates      int64            `json:"candidates"`
	Duplicates      int64            `json:"duplicates"`
	PendingDedup    int64            `json:"pending_dedup"`
	RunningRuns     int64            `json:"running_runs"`
	LastFetchedAt   *time.Time       `json:"last_fetched_at,omitempty"`
	LastRunFinished *time.Time       `json:"last_run_finished,omitempty"`
	RawItemStates   map[string]int64 `json:"raw_item_states"`
	RunStatuses     map[string]int64 `json:"run_statuses"`
}

func (s *Server) queryStats(ctx context.Context) (*statsResponse, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM events.sources WHERE status = 'active'),
	(SELECT COUNT(*) FROM events.raw_items),
	(SELECT COUNT(*) FROM events.event_raws),
	(SELECT COUNT(*) FROM events.event_candidates),
	(SELECT COUNT(*) FROM events.event_candidates WHERE duplicate_of_id IS NOT NULL),
	(SELECT COUNT(*) FROM events.event_candidates WHERE dedup_checked_at IS NULL),
	(SELECT COUNT(*) FROM events.worker_runs WHERE status = 'running'),
	(SELECT MAX(fetched_at) FROM events.raw_items),
	(SELECT MAX(finished_at) FROM events.worker_runs)
`
	stats := &statsResponse{
		RawItemStates: map[string]int64{},
		RunStatuses:   map[string]int64{},
	}
	if err := s.pool.QueryRow(ctx, q).Scan(
		&stats.Sources,
		&stats.RawItems,
		&stats.EventRaws,
		&stats.Candidates,
		&stats.Duplicates,
		&stats.PendingDedup,
		&stats.RunningRuns,
		&stats.LastFetchedAt,
		&stats.LastRunFinished,
	); err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}

	if err := s.fillGroupedCounts(ctx,
		"SELECT processing_state, COUNT(*) FROM events.raw_items GROUP BY processing_state",
		stats.RawItemStates,
	); err != nil {
		return nil, err
	}
	if err := s.fillGroupedCounts(ctx,
		"SELECT status, COUNT(*) FROM events.worker_runs GROUP BY status",
		stats.RunStatuses,
	); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Server) fillGroupedCounts(ctx context.Context, query string, out map[string]int64) error {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("select grouped counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scan grouped count: %w", err)
		}
		out[key] = count
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate grouped counts: %w", err)
	}
	return nil
}
