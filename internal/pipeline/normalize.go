package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/db"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/globaltime"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/metrics"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/sanitize"
)

// Typed normalization failure reasons, persisted verbatim on the raw event.
const (
	ReasonMissingTitle     = "missing_title"
	ReasonMissingStartTime = "missing_start_time"
)

// NormalizeResult tallies one normalization batch.
type NormalizeResult struct {
	Processed int
	Created   int
	Skipped   int
	Rejected  int
}

func (r NormalizeResult) Counters() map[string]int {
	return map[string]int{
		"processed": r.Processed,
		"created":   r.Created,
		"skipped":   r.Skipped,
		"rejected":  r.Rejected,
	}
}

type eventRawPendingRow struct {
	EventRawID   int64
	Title        string
	Description  string
	LocationText string
	Venue        string
	EventURL     string
	ImageURL     *string
	StartAt      *time.Time
	EndAt        *time.Time
	SourceKey    string
	CityKey      *string
}

// candidatePayload is the validated, candidate-shaped view of a raw event.
type candidatePayload struct {
	Title        string
	Description  string
	StartTimeUTC time.Time
	EndTimeUTC   *time.Time
	LocationText string
	URL          string
	ImageURL     *string
	SourceKey    string
	CityKey      *string
}

// NormalizePending promotes pending raw events to event candidates one at a
// time. A raw event that fails validation is marked error_norm with its typed
// reason and the batch continues.
func (s *Service) NormalizePending(ctx context.Context, limit int) (NormalizeResult, error) {
	if s == nil || s.pool == nil {
		return NormalizeResult{}, fmt.Errorf("pipeline service is not initialized")
	}

	var result NormalizeResult
	for result.Processed < limit {
		tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
		if err != nil {
			return result, fmt.Errorf("begin normalize tx: %w", err)
		}

		row, found, err := claimOnePendingEventRawTx(ctx, tx)
		if err != nil {
			_ = tx.Rollback(ctx)
			return result, err
		}
		if !found {
			if err := tx.Commit(ctx); err != nil {
				_ = tx.Rollback(ctx)
				return result, fmt.Errorf("commit empty normalize tx: %w", err)
			}
			break
		}

		payload, reason := buildCandidatePayload(row)
		if reason != "" {
			if err := markEventRawTx(ctx, tx, row.EventRawID, "error_norm", &reason); err != nil {
				_ = tx.Rollback(ctx)
				return result, err
			}
			if err := tx.Commit(ctx); err != nil {
				_ = tx.Rollback(ctx)
				return result, fmt.Errorf("commit normalize tx: %w", err)
			}
			result.Processed++
			s.reportProgress(result.Processed, limit)
			result.Rejected++
			metrics.ItemsProcessed.WithLabelValues("normalize_bot").Inc()
			metrics.ItemErrors.WithLabelValues("normalize_bot", reason).Inc()
			s.logger.Debug().
				Int64("event_raw_id", row.EventRawID).
				Str("reason", reason).
				Msg("raw event rejected during normalization")
			continue
		}

		created, err := insertCandidateTx(ctx, tx, row.EventRawID, payload)
		if err != nil {
			_ = tx.Rollback(ctx)
			return result, err
		}
		if err := markEventRawTx(ctx, tx, row.EventRawID, "normalized", nil); err != nil {
			_ = tx.Rollback(ctx)
			return result, err
		}

		if err := tx.Commit(ctx); err != nil {
			_ = tx.Rollback(ctx)
			return result, fmt.Errorf("commit normalize tx: %w", err)
		}

		result.Processed++
		s.reportProgress(result.Processed, limit)
		if created {
			result.Created++
		} else {
			result.Skipped++
		}
		metrics.ItemsProcessed.WithLabelValues("normalize_bot").Inc()
	}
	return result, nil
}

// buildCandidatePayload validates and shapes one raw event. The returned
// reason is empty on success and one of the typed reason constants otherwise.
func buildCandidatePayload(row eventRawPendingRow) (candidatePayload, string) {
	title := sanitize.StripNullBytes(strings.TrimSpace(row.Title))
	if title == "" {
		return candidatePayload{}, ReasonMissingTitle
	}
	if row.StartAt == nil {
		return candidatePayload{}, ReasonMissingStartTime
	}

	payload := candidatePayload{
		Title:        title,
		Description:  sanitize.StripNullBytes(strings.TrimSpace(row.Description)),
		StartTimeUTC: row.StartAt.UTC(),
		LocationText: mergeLocation(row.Venue, row.LocationText),
		URL:          sanitize.StripNullBytes(strings.TrimSpace(row.EventURL)),
		SourceKey:    row.SourceKey,
		CityKey:      row.CityKey,
	}
	if row.EndAt != nil {
		end := row.EndAt.UTC()
		payload.EndTimeUTC = &end
	}
	if row.ImageURL != nil && strings.TrimSpace(*row.ImageURL) != "" {
		image := sanitize.StripNullBytes(strings.TrimSpace(*row.ImageURL))
		payload.ImageURL = &image
	}
	return payload, ""
}

// mergeLocation joins venue and free-form location text, dropping whichever
// half is already contained in the other.
func mergeLocation(venue, locationText string) string {
	venue = sanitize.StripNullBytes(strings.TrimSpace(venue))
	locationText = sanitize.StripNullBytes(strings.TrimSpace(locationText))

	switch {
	case venue == "":
		return locationText
	case locationText == "":
		return venue
	case strings.Contains(strings.ToLower(locationText), strings.ToLower(venue)):
		return locationText
	case strings.Contains(strings.ToLower(venue), strings.ToLower(locationText)):
		return venue
	default:
		return venue + ", " + locationText
	}
}

func claimOnePendingEventRawTx(ctx context.Context, tx db.Tx) (eventRawPendingRow, bool, error) {
	const q = `
SELECT
	er.event_raw_id,
	er.title,
	er.description,
	er.location_text,
	er.venue,
	er.event_url,
	er.image_url,
	er.start_at,
	er.end_at,
	s.source_key,
	s.city_key
FROM events.event_raws er
JOIN events.sources s
	ON s.source_id = er.source_id
WHERE er.processing_state = 'pending'
ORDER BY er.event_raw_id
LIMIT 1
FOR UPDATE OF er SKIP LOCKED
`

	var row eventRawPendingRow
	err := tx.QueryRow(ctx, q).Scan(
		&row.EventRawID,
		&row.Title,
		&row.Description,
		&row.LocationText,
		&row.Venue,
		&row.EventURL,
		&row.ImageURL,
		&row.StartAt,
		&row.EndAt,
		&row.SourceKey,
		&row.CityKey,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return eventRawPendingRow{}, false, nil
		}
		return eventRawPendingRow{}, false, fmt.Errorf("claim event_raw: %w", err)
	}
	return row, true, nil
}

func insertCandidateTx(ctx context.Context, tx db.Tx, eventRawID int64, payload candidatePayload) (bool, error) {
	const q = `
INSERT INTO events.event_candidates (
	event_raw_id,
	title,
	description,
	start_time_utc,
	end_time_utc,
	location_text,
	url,
	image_url,
	source_key,
	city_key,
	state,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'candidate', $11, $11)
ON CONFLICT (event_raw_id) DO NOTHING
`
	tag, err := tx.Exec(ctx, q,
		eventRawID,
		payload.Title,
		payload.Description,
		payload.StartTimeUTC,
		payload.EndTimeUTC,
		payload.LocationText,
		payload.URL,
		payload.ImageURL,
		payload.SourceKey,
		payload.CityKey,
		globaltime.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert event_candidate: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func markEventRawTx(ctx context.Context, tx db.Tx, eventRawID int64, state string, reason *string) error {
	const q = `
UPDATE events.event_raws
SET processing_state = $2,
	processing_error = $3,
	updated_at = $4
WHERE event_raw_id = $1
`
	if _, err := tx.Exec(ctx, q, eventRawID, state, reason, globaltime.UTC()); err != nil {
		return fmt.Errorf("mark event_raw %s: %w", state, err)
	}
	return nil
}
