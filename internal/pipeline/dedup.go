package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/db"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/globaltime"
	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/metrics"
)

const (
	DefaultDedupWindow   = 48 * time.Hour
	DefaultThreshold     = 0.82
	DefaultEscalateFloor = 0.70
	DefaultAIBlendWeight = 0.25

	skipReasonNoCity = "no_city_key"
)

// DedupOptions tune one dedup batch. Zero values fall back to the defaults
// above; Weights falls back to DefaultWeights. EscalateFloor and AIBlendWeight
// are pointers because zero is a meaningful configured value for both; nil
// means unset.
type DedupOptions struct {
	Limit         int
	Window        time.Duration
	Threshold     float64
	EscalateFloor *float64
	AIBlendWeight *float64
	Weights       Weights
}

func (o *DedupOptions) applyDefaults() {
	if o.Window <= 0 {
		o.Window = DefaultDedupWindow
	}
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.EscalateFloor == nil {
		floor := DefaultEscalateFloor
		o.EscalateFloor = &floor
	}
	if o.AIBlendWeight == nil {
		weight := DefaultAIBlendWeight
		o.AIBlendWeight = &weight
	}
	if o.Weights == (Weights{}) {
		o.Weights = DefaultWeights
	}
}

// DedupResult tallies one dedup batch.
type DedupResult struct {
	Processed        int
	Duplicates       int
	Canonical        int
	SkippedNoCity    int
	Escalated        int
	EscalationErrors int
}

func (r DedupResult) Counters() map[string]int {
	return map[string]int{
		"processed":         r.Processed,
		"duplicates":        r.Duplicates,
		"canonical":         r.Canonical,
		"skipped_no_city":   r.SkippedNoCity,
		"escalated":         r.Escalated,
		"escalation_errors": r.EscalationErrors,
	}
}

type dedupCandidateRow struct {
	ID           int64
	Title        string
	Description  string
	LocationText string
	CityKey      *string
	StartTimeUTC time.Time
}

type partnerRow struct {
	ID           int64
	Title        string
	Description  string
	LocationText string
	StartTimeUTC time.Time
}

type match struct {
	Partner partnerRow
	Score   float64
}

// DedupPending claims unchecked candidates one at a time and resolves each to
// either canonical or a duplicate of its best-scoring partner. Partners are
// other open candidates in the same city within the time window; candidates
// already resolved as duplicates never serve as partners, so duplicate links
// always point at a canonical row.
func (s *Service) DedupPending(ctx context.Context, opts DedupOptions) (DedupResult, error) {
	if s == nil || s.pool == nil {
		return DedupResult{}, fmt.Errorf("pipeline service is not initialized")
	}
	opts.applyDefaults()

	var result DedupResult
	for result.Processed < opts.Limit {
		tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
		if err != nil {
			return result, fmt.Errorf("begin dedup tx: %w", err)
		}

		cand, found, err := claimOneUncheckedCandidateTx(ctx, tx)
		if err != nil {
			_ = tx.Rollback(ctx)
			return result, err
		}
		if !found {
			if err := tx.Commit(ctx); err != nil {
				_ = tx.Rollback(ctx)
				return result, fmt.Errorf("commit empty dedup tx: %w", err)
			}
			break
		}

		outcome, err := s.dedupOneTx(ctx, tx, cand, opts)
		if err != nil {
			_ = tx.Rollback(ctx)
			return result, err
		}

		if err := tx.Commit(ctx); err != nil {
			_ = tx.Rollback(ctx)
			return result, fmt.Errorf("commit dedup tx: %w", err)
		}

		result.Processed++
		s.reportProgress(result.Processed, opts.Limit)
		metrics.ItemsProcessed.WithLabelValues("dedup_bot").Inc()
		switch {
		case outcome.skipped:
			result.SkippedNoCity++
			metrics.DedupDecisions.WithLabelValues("skipped_no_city").Inc()
		case outcome.duplicate:
			result.Duplicates++
			metrics.DedupDecisions.WithLabelValues("duplicate").Inc()
		default:
			result.Canonical++
			metrics.DedupDecisions.WithLabelValues("canonical").Inc()
		}
		if outcome.escalated {
			result.Escalated++
		}
		if outcome.escalationFailed {
			result.EscalationErrors++
		}
	}
	return result, nil
}

type dedupOutcome struct {
	skipped          bool
	duplicate        bool
	escalated        bool
	escalationFailed bool
}

func (s *Service) dedupOneTx(ctx context.Context, tx db.Tx, cand dedupCandidateRow, opts DedupOptions) (dedupOutcome, error) {
	var outcome dedupOutcome

	if cand.CityKey == nil || *cand.CityKey == "" {
		outcome.skipped = true
		s.logger.Debug().
			Int64("candidate", cand.ID).
			Msg("dedup skipped: no city scope")
		return outcome, markDedupSkippedTx(ctx, tx, cand.ID, skipReasonNoCity)
	}

	partners, err := loadDedupPartnersTx(ctx, tx, cand, *cand.CityKey, opts.Window)
	if err != nil {
		return outcome, err
	}

	best, ok := bestMatch(cand, partners, opts.Window, opts.Weights)
	if !ok {
		return outcome, markCanonicalTx(ctx, tx, cand.ID)
	}

	score, escalated, escalationFailed := s.escalateScore(ctx, cand, best.Partner, best.Score, opts)
	outcome.escalated = escalated
	outcome.escalationFailed = escalationFailed

	if isDuplicateScore(score, opts.Threshold) {
		outcome.duplicate = true
		s.logger.Info().
			Int64("candidate", cand.ID).
			Int64("duplicate_of", best.Partner.ID).
			Float64("score", score).
			Msg("candidate resolved as duplicate")
		return outcome, markDuplicateTx(ctx, tx, cand.ID, best.Partner.ID, score)
	}
	return outcome, markCanonicalTx(ctx, tx, cand.ID)
}

// escalateScore blends in an AI pairwise judgment when the composite score
// falls inside the escalation band. A failed AI call keeps the deterministic
// score unchanged.
func (s *Service) escalateScore(ctx context.Context, cand dedupCandidateRow, partner partnerRow, score float64, opts DedupOptions) (float64, bool, bool) {
	if score < *opts.EscalateFloor || isDuplicateScore(score, opts.Threshold) || s.ai == nil {
		return score, false, false
	}

	aiScore, err := s.ai.CompareSimilarity(ctx,
		pairwiseText(cand.Title, cand.Description),
		pairwiseText(partner.Title, partner.Description),
	)
	if err != nil {
		metrics.AIEscalations.WithLabelValues("compare_error").Inc()
		s.logger.Warn().
			Err(err).
			Int64("candidate", cand.ID).
			Int64("partner", partner.ID).
			Msg("similarity escalation failed")
		return score, true, true
	}
	metrics.AIEscalations.WithLabelValues("compare_ok").Inc()
	return BlendAIScore(score, aiScore, *opts.AIBlendWeight), true, false
}

// isDuplicateScore applies the decision threshold. The boundary is inclusive:
// a score exactly at the threshold resolves as duplicate.
func isDuplicateScore(score, threshold float64) bool {
	return score >= threshold
}

// bestMatch scores the candidate against every partner and returns the
// highest-scoring one. Partners arrive ordered by id, and only a strictly
// greater score displaces the current best, so ties resolve to the lowest id.
func bestMatch(cand dedupCandidateRow, partners []partnerRow, window time.Duration, weights Weights) (match, bool) {
	var best match
	found := false
	for _, partner := range partners {
		score := CompositeScore(
			SequenceRatio(cand.Title, partner.Title),
			locationSimilarity(cand.LocationText, partner.LocationText),
			TimeProximity(cand.StartTimeUTC, partner.StartTimeUTC, window),
			weights,
		)
		if !found || score > best.Score {
			best = match{Partner: partner, Score: score}
			found = true
		}
	}
	return best, found
}

// locationSimilarity is the sequence ratio over location text, except that a
// pair of empty locations is no evidence of sameness and scores zero.
func locationSimilarity(a, b string) float64 {
	if normalizeForMatch(a) == "" && normalizeForMatch(b) == "" {
		return 0
	}
	return SequenceRatio(a, b)
}

func pairwiseText(title, description string) string {
	if description == "" {
		return title
	}
	return title + "\n" + description
}

func claimOneUncheckedCandidateTx(ctx context.Context, tx db.Tx) (dedupCandidateRow, bool, error) {
	const q = `
SELECT
	event_candidate_id,
	title,
	description,
	location_text,
	city_key,
	start_time_utc
FROM events.event_candidates
WHERE dedup_checked_at IS NULL
	AND duplicate_of_id IS NULL
	AND state = 'candidate'
ORDER BY event_candidate_id
LIMIT 1
FOR UPDATE SKIP LOCKED
`

	var row dedupCandidateRow
	err := tx.QueryRow(ctx, q).Scan(
		&row.ID,
		&row.Title,
		&row.Description,
		&row.LocationText,
		&row.CityKey,
		&row.StartTimeUTC,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return dedupCandidateRow{}, false, nil
		}
		return dedupCandidateRow{}, false, fmt.Errorf("claim event_candidate: %w", err)
	}
	return row, true, nil
}

func loadDedupPartnersTx(ctx context.Context, tx db.Tx, cand dedupCandidateRow, cityKey string, window time.Duration) ([]partnerRow, error) {
	const q = `
SELECT
	event_candidate_id,
	title,
	description,
	location_text,
	start_time_utc
FROM events.event_candidates
WHERE event_candidate_id <> $1
	AND city_key = $2
	AND duplicate_of_id IS NULL
	AND state <> 'rejected'
	AND start_time_utc BETWEEN $3 AND $4
ORDER BY event_candidate_id
`
	rows, err := tx.Query(ctx, q,
		cand.ID,
		cityKey,
		cand.StartTimeUTC.Add(-window),
		cand.StartTimeUTC.Add(window),
	)
	if err != nil {
		return nil, fmt.Errorf("select dedup partners: %w", err)
	}
	defer rows.Close()

	var partners []partnerRow
	for rows.Next() {
		var partner partnerRow
		if err := rows.Scan(
			&partner.ID,
			&partner.Title,
			&partner.Description,
			&partner.LocationText,
			&partner.StartTimeUTC,
		); err != nil {
			return nil, fmt.Errorf("scan dedup partner: %w", err)
		}
		partners = append(partners, partner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dedup partners: %w", err)
	}
	return partners, nil
}

func markDuplicateTx(ctx context.Context, tx db.Tx, candidateID, partnerID int64, score float64) error {
	const q = `
UPDATE events.event_candidates
SET duplicate_of_id = $2,
	duplicate_score = $3,
	dedup_checked_at = $4,
	dedup_skip_reason = NULL,
	updated_at = $4
WHERE event_candidate_id = $1
`
	if _, err := tx.Exec(ctx, q, candidateID, partnerID, score, globaltime.UTC()); err != nil {
		return fmt.Errorf("mark candidate duplicate: %w", err)
	}
	return nil
}

func markCanonicalTx(ctx context.Context, tx db.Tx, candidateID int64) error {
	const q = `
UPDATE events.event_candidates
SET duplicate_of_id = NULL,
	duplicate_score = NULL,
	dedup_checked_at = $2,
	dedup_skip_reason = NULL,
	updated_at = $2
WHERE event_candidate_id = $1
`
	if _, err := tx.Exec(ctx, q, candidateID, globaltime.UTC()); err != nil {
		return fmt.Errorf("mark candidate canonical: %w", err)
	}
	return nil
}

func markDedupSkippedTx(ctx context.Context, tx db.Tx, candidateID int64, reason string) error {
	const q = `
UPDATE events.event_candidates
SET dedup_checked_at = $2,
	dedup_skip_reason = $3,
	updated_at = $2
WHERE event_candidate_id = $1
`
	if _, err := tx.Exec(ctx, q, candidateID, globaltime.UTC(), reason); err != nil {
		return fmt.Errorf("mark candidate dedup-skipped: %w", err)
	}
	return nil
}
