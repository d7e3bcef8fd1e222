package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/db"
)

type runListFilter struct {
	Bot      string
	Status   string
	Page     int
	PageSize int
}

type runListItem struct {
	RunUUID      string         `json:"run_uuid"`
	Bot          string         `json:"bot"`
	Status       string         `json:"status"`
	Progress     int            `json:"progress"`
	Counters     map[string]int `json:"counters,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

func (s *Server) queryRunList(ctx context.Context, filter runListFilter) (int64, []runListItem, error) {
	where := "WHERE 1=1"
	args := []any{}
	argPos := 1
	if filter.Bot != "" {
		where += fmt.Sprintf(" AND bot = $%d", argPos)
		args = append(args, filter.Bot)
		argPos++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}

	countQuery := "SELECT COUNT(*) FROM events.worker_runs " + where
	var total int64
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("count worker runs: %w", err)
	}

	listQuery := fmt.Sprintf(`
SELECT run_uuid, bot, status, progress, counters, error_message, started_at, finished_at
FROM events.worker_runs
%s
ORDER BY started_at DESC, worker_run_id DESC
LIMIT $%d OFFSET $%d
`, where, argPos, argPos+1)
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := s.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return 0, nil, fmt.Errorf("select worker runs: %w", err)
	}
	defer rows.Close()

	runs := make([]runListItem, 0, filter.PageSize)
	for rows.Next() {
		item, err := scanRunItem(rows)
		if err != nil {
			return 0, nil, err
		}
		runs = append(runs, item)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("iterate worker runs: %w", err)
	}
	return total, runs, nil
}

func (s *Server) queryRunDetail(ctx context.Context, runUUID string) (*runListItem, error) {
	const q = `
SELECT run_uuid, bot, status, progress, counters, error_message, started_at, finished_at
FROM events.worker_runs
WHERE run_uuid = $1
`
	item, err := scanRunItem(s.pool.QueryRow(ctx, q, runUUID))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

type runScanner interface {
	Scan(dest ...any) error
}

func scanRunItem(row runScanner) (runListItem, error) {
	var item runListItem
	var countersJSON []byte
	if err := row.Scan(
		&item.RunUUID,
		&item.Bot,
		&item.Status,
		&item.Progress,
		&countersJSON,
		&item.ErrorMessage,
		&item.StartedAt,
		&item.FinishedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return runListItem{}, err
		}
		return runListItem{}, fmt.Errorf("scan worker run: %w", err)
	}
	if len(countersJSON) > 0 {
		// Counters are written by us; a decode failure is a data bug, not a
		// request failure.
		_ = json.Unmarshal(countersJSON, &item.Counters)
	}
	return item, nil
}
