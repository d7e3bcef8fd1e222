package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/ai"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/db"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/feeds"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/globaltime"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/langdetect"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/metrics"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/sanitize"
	payloadschema "github.com/kulmetehan/turkish-diaspora-app-sub002/schema"
)

// ExtractResult tallies one extraction batch.
type ExtractResult struct {
	Processed   int
	Inserted    int
	Skipped     int
	Rejected    int
	AIExtracted int
	Errors      int
}

func (r ExtractResult) Counters() map[string]int {
	return map[string]int{
		"processed":    r.Processed,
		"inserted":     r.Inserted,
		"skipped":      r.Skipped,
		"rejected":     r.Rejected,
		"ai_extracted": r.AIExtracted,
		"errors":       r.Errors,
	}
}

type rawItemRow struct {
	RawItemID    int64
	SourceKey    string
	PageURL      *string
	ResponseBody []byte
	AttemptCount int
	SourceID     int64
	BaseURL      string
	Selectors    json.RawMessage
}

// ExtractPending claims pending raw items one at a time, decodes each payload
// with the source's configured decoder and writes one event_raws row per
// decoded entry. A payload that cannot be decoded marks its raw item
// error_extract and never aborts the batch.
func (s *Service) ExtractPending(ctx context.Context, limit int) (ExtractResult, error) {
	if s == nil || s.pool == nil {
		return ExtractResult{}, fmt.Errorf("pipeline service is not initialized")
	}

	var result ExtractResult
	for result.Processed < limit {
		tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
		if err != nil {
			return result, fmt.Errorf("begin extract tx: %w", err)
		}

		row, found, err := claimOnePendingRawItemTx(ctx, tx)
		if err != nil {
			_ = tx.Rollback(ctx)
			return result, err
		}
		if !found {
			if err := tx.Commit(ctx); err != nil {
				_ = tx.Rollback(ctx)
				return result, fmt.Errorf("commit empty extract tx: %w", err)
			}
			break
		}

		outcome, err := s.extractOneTx(ctx, tx, row)
		if err != nil {
			_ = tx.Rollback(ctx)
			return result, err
		}

		if err := tx.Commit(ctx); err != nil {
			_ = tx.Rollback(ctx)
			return result, fmt.Errorf("commit extract tx: %w", err)
		}

		result.Processed++
		s.reportProgress(result.Processed, limit)
		result.Inserted += outcome.inserted
		result.Skipped += outcome.skipped
		result.Rejected += outcome.rejected
		if outcome.aiExtracted {
			result.AIExtracted++
		}
		metrics.ItemsProcessed.WithLabelValues("extract_bot").Inc()
		if outcome.failed {
			result.Errors++
			metrics.ItemErrors.WithLabelValues("extract_bot", "extract").Inc()
		}
	}
	return result, nil
}

type extractOutcome struct {
	inserted    int
	skipped     int
	rejected    int
	aiExtracted bool
	failed      bool
}

func (s *Service) extractOneTx(ctx context.Context, tx db.Tx, row rawItemRow) (extractOutcome, error) {
	var outcome extractOutcome

	decoder, sel, err := feeds.ForSelectors(row.Selectors)
	if err != nil {
		outcome.failed = true
		return outcome, markRawItemErrorTx(ctx, tx, row, fmt.Errorf("resolve decoder: %w", err))
	}

	src := feeds.SourceInfo{Key: row.SourceKey, BaseURL: row.BaseURL}
	now := globaltime.UTC()

	entries, rejected, err := decoder.Decode(row.ResponseBody, src, now)
	if err != nil {
		outcome.failed = true
		return outcome, markRawItemErrorTx(ctx, tx, row, fmt.Errorf("decode %s payload: %w", decoder.Format(), err))
	}
	outcome.rejected = len(rejected)
	for _, rej := range rejected {
		s.logger.Debug().
			Str("source", row.SourceKey).
			Int("entry", rej.Index).
			Str("reason", rej.Reason).
			Msg("entry rejected during decode")
	}

	pageText := ""
	if len(entries) == 0 && sel.UseAIExtract && s.ai != nil {
		pageText = s.readPageText(row)
		entries, err = s.extractWithAI(ctx, row, pageText)
		if err != nil {
			outcome.failed = true
			return outcome, markRawItemErrorTx(ctx, tx, row, fmt.Errorf("ai extract: %w", err))
		}
		outcome.aiExtracted = true
	}

	for _, entry := range entries {
		san := sanitize.Entry(entry, row.BaseURL)
		if san.Title == "" {
			outcome.rejected++
			continue
		}
		if san.Snippet == "" && decoder.Format() == feeds.FormatHTML {
			// Selector-less description: fall back to the readable page text.
			if pageText == "" {
				pageText = s.readPageText(row)
			}
			san.Snippet = sanitize.TruncateSnippet(pageText, sanitize.SnippetBudget)
		}
		if san.ComplianceWarning {
			s.logger.Warn().
				Str("source", row.SourceKey).
				Str("title", san.Title).
				Msg("entry text looks like a full article")
		}

		inserted, err := insertEventRawTx(ctx, tx, row, entry, san, now)
		if err != nil {
			return outcome, err
		}
		if inserted {
			outcome.inserted++
		} else {
			outcome.skipped++
		}
	}

	return outcome, markRawItemExtractedTx(ctx, tx, row, rejected)
}

func (s *Service) extractWithAI(ctx context.Context, row rawItemRow, pageText string) ([]feeds.Entry, error) {
	pageURL := ""
	if row.PageURL != nil {
		pageURL = *row.PageURL
	}
	if strings.TrimSpace(pageText) == "" {
		return nil, fmt.Errorf("no readable page text for source=%s", row.SourceKey)
	}

	payloads, meta, err := s.ai.ExtractStructured(ctx, ai.PromptContext{
		SourceKey: row.SourceKey,
		PageURL:   pageURL,
		PageText:  pageText,
	})
	if err != nil {
		metrics.AIEscalations.WithLabelValues("extract_error").Inc()
		return nil, err
	}
	metrics.AIEscalations.WithLabelValues("extract_ok").Inc()
	s.logger.Info().
		Str("source", row.SourceKey).
		Str("model", meta.Model).
		Float64("latency_ms", meta.LatencyMS).
		Int("events", len(payloads)).
		Msg("ai extraction returned")

	entries := make([]feeds.Entry, 0, len(payloads))
	for i, payload := range payloads {
		item, err := payloadschema.ValidateEventItemPayload(payload)
		if err != nil {
			s.logger.Warn().
				Err(err).
				Str("source", row.SourceKey).
				Int("entry", i).
				Msg("ai event payload rejected")
			continue
		}
		entries = append(entries, entryFromEventItem(item, pageURL))
	}
	return entries, nil
}

// entryFromEventItem converts a schema-validated AI event into the decoder
// entry shape so the rest of the stage treats both paths identically.
func entryFromEventItem(item *payloadschema.EventItem, pageURL string) feeds.Entry {
	entry := feeds.Entry{
		Title:       item.Title,
		URL:         pageURL,
		PublishedAt: globaltime.UTC(),
	}
	if item.Description != nil {
		entry.Snippet = *item.Description
	}
	if item.Venue != nil {
		entry.Venue = *item.Venue
	}
	if item.LocationText != nil {
		entry.LocationText = *item.LocationText
	}
	if item.EventURL != nil && strings.TrimSpace(*item.EventURL) != "" {
		entry.URL = *item.EventURL
	}
	if item.ImageURL != nil {
		entry.ImageURL = *item.ImageURL
	}
	if item.StartAt != nil {
		if t, err := time.Parse(time.RFC3339, *item.StartAt); err == nil {
			utc := t.UTC()
			entry.StartAt = &utc
		}
	}
	if item.EndAt != nil {
		if t, err := time.Parse(time.RFC3339, *item.EndAt); err == nil {
			utc := t.UTC()
			entry.EndAt = &utc
		}
	}
	return entry
}

func (s *Service) readPageText(row rawItemRow) string {
	if len(row.ResponseBody) == 0 {
		return ""
	}
	page := row.BaseURL
	if row.PageURL != nil && *row.PageURL != "" {
		page = *row.PageURL
	}
	pageURL, err := url.Parse(page)
	if err != nil {
		return ""
	}

	article, err := readability.FromReader(bytes.NewReader(row.ResponseBody), pageURL)
	if err != nil {
		s.logger.Debug().Err(err).Str("source", row.SourceKey).Msg("readability parse failed")
		return ""
	}
	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return ""
	}
	text := sanitize.StripNullBytes(strings.TrimSpace(rendered.String()))
	if text == "" {
		text = sanitize.StripNullBytes(strings.TrimSpace(article.Excerpt()))
	}
	return text
}

func claimOnePendingRawItemTx(ctx context.Context, tx db.Tx) (rawItemRow, bool, error) {
	const q = `
SELECT
	ri.raw_item_id,
	ri.source_key,
	ri.page_url,
	ri.response_body,
	ri.attempt_count,
	s.source_id,
	s.base_url,
	s.selectors
FROM events.raw_items ri
JOIN events.sources s
	ON s.source_key = ri.source_key
WHERE ri.processing_state = 'pending'
ORDER BY ri.raw_item_id
LIMIT 1
FOR UPDATE OF ri SKIP LOCKED
`

	var row rawItemRow
	err := tx.QueryRow(ctx, q).Scan(
		&row.RawItemID,
		&row.SourceKey,
		&row.PageURL,
		&row.ResponseBody,
		&row.AttemptCount,
		&row.SourceID,
		&row.BaseURL,
		&row.Selectors,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return rawItemRow{}, false, nil
		}
		return rawItemRow{}, false, fmt.Errorf("claim raw_item: %w", err)
	}
	return row, true, nil
}

func insertEventRawTx(ctx context.Context, tx db.Tx, row rawItemRow, entry feeds.Entry, san sanitize.Result, now time.Time) (bool, error) {
	hash := ingestHash(row.SourceKey, entry.URL, san.Title)
	language := langdetect.DetectISO6391(san.Title + " " + san.Snippet)
	if language == "" {
		language = "und"
	}

	var imageURL *string
	if san.ImageURL != "" {
		imageURL = &san.ImageURL
	}

	const q = `
INSERT INTO events.event_raws (
	source_id,
	raw_item_id,
	title,
	description,
	location_text,
	venue,
	event_url,
	image_url,
	language,
	start_at,
	end_at,
	ingest_hash,
	processing_state,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'pending', $13, $13)
ON CONFLICT (ingest_hash) DO NOTHING
`
	tag, err := tx.Exec(ctx, q,
		row.SourceID,
		row.RawItemID,
		san.Title,
		san.Snippet,
		sanitize.StripMarkup(entry.LocationText),
		sanitize.StripMarkup(entry.Venue),
		sanitize.StripNullBytes(entry.URL),
		imageURL,
		language,
		entry.StartAt,
		entry.EndAt,
		hash,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("insert event_raw: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ingestHash identifies an event by its immutable ingest coordinates, so a
// re-fetched page re-inserting the same entries is a no-op.
func ingestHash(sourceKey, eventURL, title string) []byte {
	normalizedTitle := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	sum := sha256.Sum256([]byte(sourceKey + "\n" + eventURL + "\n" + normalizedTitle))
	return sum[:]
}

func markRawItemExtractedTx(ctx context.Context, tx db.Tx, row rawItemRow, rejected []feeds.EntryError) error {
	var errorsJSON *string
	if len(rejected) > 0 {
		reasons := make([]string, 0, len(rejected))
		for _, rej := range rejected {
			reasons = append(reasons, rej.Error())
		}
		encoded, err := json.Marshal(map[string]any{"rejected_entries": reasons})
		if err != nil {
			return fmt.Errorf("marshal rejected entries: %w", err)
		}
		text := string(encoded)
		errorsJSON = &text
	}

	const q = `
UPDATE events.raw_items
SET processing_state = 'extracted',
	processing_errors = $2::jsonb,
	attempt_count = attempt_count + 1
WHERE raw_item_id = $1
`
	if _, err := tx.Exec(ctx, q, row.RawItemID, errorsJSON); err != nil {
		return fmt.Errorf("mark raw_item extracted: %w", err)
	}
	return nil
}

func markRawItemErrorTx(ctx context.Context, tx db.Tx, row rawItemRow, cause error) error {
	encoded, err := json.Marshal(map[string]string{"error": cause.Error()})
	if err != nil {
		return fmt.Errorf("marshal extract error: %w", err)
	}

	const q = `
UPDATE events.raw_items
SET processing_state = 'error_extract',
	processing_errors = $2::jsonb,
	attempt_count = attempt_count + 1
WHERE raw_item_id = $1
`
	if _, err := tx.Exec(ctx, q, row.RawItemID, string(encoded)); err != nil {
		return fmt.Errorf("mark raw_item error: %w", err)
	}
	return nil
}
