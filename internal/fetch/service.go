package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/db"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/globaltime"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/metrics"
)

const (
	DefaultTimeout   = 12 * time.Second
	DefaultBodyLimit = 2 * 1024 * 1024
	DefaultHostDelay = 1500 * time.Millisecond

	defaultUserAgent = "events-pipeline/1.0 (+https://github.com/kulmetehan/turkish-diaspora-app-sub002)"
)

// Options controls HTTP behavior for source fetching. OnProgress, when set,
// is invoked after every attempted source with the processed count and the
// batch size.
type Options struct {
	Timeout           time.Duration
	BodyByteLimit     int64
	HostDelay         time.Duration
	RequestsPerSecond float64
	UserAgent         string
	HTTPClient        *http.Client
	OnProgress        func(processed, total int)
}

type Service struct {
	pool       *db.Pool
	logger     zerolog.Logger
	limiter    *HostLimiter
	httpClient *http.Client
	opts       Options
}

// Result tallies one fetch batch.
type Result struct {
	Sources int
	Fetched int
	Skipped int
	Errors  int
}

func (r Result) Counters() map[string]int {
	return map[string]int{
		"sources": r.Sources,
		"fetched": r.Fetched,
		"skipped": r.Skipped,
		"errors":  r.Errors,
	}
}

type sourceRow struct {
	SourceKey    string
	ListURL      string
	FetchDelayMS int
}

func NewService(pool *db.Pool, logger zerolog.Logger, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BodyByteLimit <= 0 {
		opts.BodyByteLimit = DefaultBodyLimit
	}
	if opts.HostDelay <= 0 {
		opts.HostDelay = DefaultHostDelay
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Service{
		pool:       pool,
		logger:     logger,
		limiter:    NewHostLimiter(opts.RequestsPerSecond, 1),
		httpClient: httpClient,
		opts:       opts,
	}
}

// FetchSources fetches each active source's list URL once, sequentially, and
// records one raw item per fetch. Per-source failures are recorded as
// error_fetch rows and never abort the batch.
func (s *Service) FetchSources(ctx context.Context, limit int) (Result, error) {
	if s == nil || s.pool == nil {
		return Result{}, fmt.Errorf("fetch service is not initialized")
	}
	if limit <= 0 {
		return Result{}, nil
	}

	sources, err := s.loadActiveSources(ctx, limit)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for i, source := range sources {
		result.Sources++

		if i > 0 {
			delay := s.opts.HostDelay
			if source.FetchDelayMS > 0 {
				delay = time.Duration(source.FetchDelayMS) * time.Millisecond
			}
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}

		inserted, fetchErr := s.fetchOne(ctx, source)
		if fetchErr != nil {
			result.Errors++
			metrics.ItemErrors.WithLabelValues("fetch_bot", "fetch").Inc()
			s.logger.Warn().
				Err(fetchErr).
				Str("source", source.SourceKey).
				Str("url", source.ListURL).
				Msg("source fetch failed")
			if recordErr := s.recordFetchError(ctx, source, fetchErr); recordErr != nil {
				return result, recordErr
			}
			s.reportProgress(result.Sources, len(sources))
			continue
		}

		metrics.ItemsProcessed.WithLabelValues("fetch_bot").Inc()
		if inserted {
			result.Fetched++
		} else {
			result.Skipped++
		}
		s.reportProgress(result.Sources, len(sources))
	}
	return result, nil
}

func (s *Service) reportProgress(processed, total int) {
	if s.opts.OnProgress != nil {
		s.opts.OnProgress(processed, total)
	}
}

func (s *Service) loadActiveSources(ctx context.Context, limit int) ([]sourceRow, error) {
	const q = `
SELECT source_key, list_url, fetch_delay_ms
FROM events.sources
WHERE status = 'active'
ORDER BY source_id
LIMIT $1
`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("select active sources: %w", err)
	}
	defer rows.Close()

	sources := make([]sourceRow, 0, limit)
	for rows.Next() {
		var row sourceRow
		if err := rows.Scan(&row.SourceKey, &row.ListURL, &row.FetchDelayMS); err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		sources = append(sources, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return sources, nil
}

func (s *Service) fetchOne(ctx context.Context, source sourceRow) (bool, error) {
	if err := s.limiter.WaitURL(ctx, source.ListURL); err != nil {
		return false, fmt.Errorf("rate limit wait: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, source.ListURL, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/json, text/html;q=0.9, */*;q=0.8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.BodyByteLimit))
	if err != nil {
		return false, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	hash := sha256.Sum256(body)
	headersJSON := headerSubsetJSON(resp.Header)

	const q = `
INSERT INTO events.raw_items (
	source_key,
	page_url,
	http_status,
	response_headers,
	response_body,
	content_hash,
	processing_state,
	attempt_count,
	fetched_at,
	created_at
)
VALUES ($1, $2, $3, $4::jsonb, $5, $6, 'pending', 0, $7, $7)
ON CONFLICT (source_key, content_hash) DO NOTHING
`
	tag, err := s.pool.Exec(ctx, q,
		source.SourceKey,
		source.ListURL,
		resp.StatusCode,
		headersJSON,
		body,
		hash[:],
		globaltime.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert raw item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Service) recordFetchError(ctx context.Context, source sourceRow, cause error) error {
	errorsJSON, err := json.Marshal(map[string]string{"error": cause.Error()})
	if err != nil {
		return fmt.Errorf("marshal fetch error: %w", err)
	}

	const q = `
INSERT INTO events.raw_items (
	source_key,
	page_url,
	processing_state,
	processing_errors,
	attempt_count,
	fetched_at,
	created_at
)
VALUES ($1, $2, 'error_fetch', $3::jsonb, 1, $4, $4)
`
	if _, err := s.pool.Exec(ctx, q, source.SourceKey, source.ListURL, string(errorsJSON), globaltime.UTC()); err != nil {
		return fmt.Errorf("record fetch error for source=%s: %w", source.SourceKey, err)
	}
	return nil
}

func headerSubsetJSON(header http.Header) string {
	subset := map[string]string{}
	for _, key := range []string{"Content-Type", "ETag", "Last-Modified", "Cache-Control"} {
		if value := header.Get(key); value != "" {
			subset[key] = value
		}
	}
	encoded, err := json.Marshal(subset)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}
