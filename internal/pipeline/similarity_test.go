package pipeline

import (
	"math"
	"testing"
	"time"
)

func TestSequenceRatioIdentical(t *testing.T) {
	t.Parallel()

	if got := SequenceRatio("Iftar Gathering Rotterdam", "Iftar Gathering Rotterdam"); got != 1 {
		t.Fatalf("expected 1 for identical titles, got %f", got)
	}
	if got := SequenceRatio("", ""); got != 1 {
		t.Fatalf("expected 1 for two empty strings, got %f", got)
	}
}

func TestSequenceRatioDisjoint(t *testing.T) {
	t.Parallel()

	if got := SequenceRatio("abc", "xyz"); got != 0 {
		t.Fatalf("expected 0 for disjoint strings, got %f", got)
	}
	if got := SequenceRatio("something", ""); got != 0 {
		t.Fatalf("expected 0 against empty string, got %f", got)
	}
}

func TestSequenceRatioSymmetric(t *testing.T) {
	t.Parallel()

	a := "Grote Iftar Rotterdam 2026"
	b := "Iftar Rotterdam (groot)"
	if left, right := SequenceRatio(a, b), SequenceRatio(b, a); math.Abs(left-right) > 1e-12 {
		t.Fatalf("ratio not symmetric: %f vs %f", left, right)
	}
}

func TestSequenceRatioNormalizesCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	if got := SequenceRatio("  Iftar   Avond  ", "iftar avond"); got != 1 {
		t.Fatalf("expected case/whitespace-insensitive match, got %f", got)
	}
}

func TestTimeProximity(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	window := 48 * time.Hour

	if got := TimeProximity(base, base, window); got != 1 {
		t.Fatalf("expected 1 at zero delta, got %f", got)
	}
	if got := TimeProximity(base, base.Add(24*time.Hour), window); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("expected 0.5 at half-window delta, got %f", got)
	}
	if got := TimeProximity(base, base.Add(72*time.Hour), window); got != 0 {
		t.Fatalf("expected 0 beyond the window, got %f", got)
	}
	if got := TimeProximity(base.Add(24*time.Hour), base, window); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("expected order-invariant proximity, got %f", got)
	}
}

func TestCompositeScoreClamped(t *testing.T) {
	t.Parallel()

	if got := CompositeScore(1, 1, 1, DefaultWeights); got != 1 {
		t.Fatalf("expected 1 for perfect components, got %f", got)
	}
	if got := CompositeScore(2, 2, 2, DefaultWeights); got != 1 {
		t.Fatalf("expected clamp to 1, got %f", got)
	}
	if got := CompositeScore(-1, 0, 0, DefaultWeights); got != 0 {
		t.Fatalf("expected clamp to 0, got %f", got)
	}
}

func TestCompositeScoreWeighting(t *testing.T) {
	t.Parallel()

	got := CompositeScore(0.5, 1, 0, DefaultWeights)
	want := 0.6*0.5 + 0.2*1
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %f, got %f", want, got)
	}
}

func TestBlendAIScore(t *testing.T) {
	t.Parallel()

	got := BlendAIScore(0.8, 0.4, 0.25)
	want := 0.75*0.8 + 0.25*0.4
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("expected %f, got %f", want, got)
	}
	if got := BlendAIScore(0.8, 5, 0.25); got != 1 {
		t.Fatalf("expected blend clamped to 1, got %f", got)
	}
}

func TestBestMatchPrefersHighestScore(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	cand := dedupCandidateRow{
		ID:           10,
		Title:        "Iftar avond Rotterdam",
		LocationText: "Centrum Moskee, Rotterdam",
		StartTimeUTC: start,
	}
	partners := []partnerRow{
		{ID: 1, Title: "Halloween party", LocationText: "Club X", StartTimeUTC: start.Add(40 * time.Hour)},
		{ID: 2, Title: "Iftar avond Rotterdam", LocationText: "Centrum Moskee, Rotterdam", StartTimeUTC: start.Add(30 * time.Minute)},
	}

	best, ok := bestMatch(cand, partners, 48*time.Hour, DefaultWeights)
	if !ok {
		t.Fatal("expected a best match")
	}
	if best.Partner.ID != 2 {
		t.Fatalf("expected partner 2, got %d", best.Partner.ID)
	}
	if best.Score < DefaultThreshold {
		t.Fatalf("expected near-identical pair above threshold, got %f", best.Score)
	}
}

func TestBestMatchTieResolvesToLowestID(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	cand := dedupCandidateRow{
		ID:           99,
		Title:        "Kermes bazaar",
		LocationText: "Fatih Moskee",
		StartTimeUTC: start,
	}
	partners := []partnerRow{
		{ID: 3, Title: "Kermes bazaar", LocationText: "Fatih Moskee", StartTimeUTC: start},
		{ID: 7, Title: "Kermes bazaar", LocationText: "Fatih Moskee", StartTimeUTC: start},
	}

	best, ok := bestMatch(cand, partners, 48*time.Hour, DefaultWeights)
	if !ok {
		t.Fatal("expected a best match")
	}
	if best.Partner.ID != 3 {
		t.Fatalf("expected tie to resolve to lowest id 3, got %d", best.Partner.ID)
	}
}

func TestBestMatchNoPartners(t *testing.T) {
	t.Parallel()

	if _, ok := bestMatch(dedupCandidateRow{}, nil, 48*time.Hour, DefaultWeights); ok {
		t.Fatal("expected no match for empty partner set")
	}
}

func TestLocationSimilarityEmptyPairScoresZero(t *testing.T) {
	t.Parallel()

	if got := locationSimilarity("", ""); got != 0 {
		t.Fatalf("expected 0 for two empty locations, got %f", got)
	}
	if got := locationSimilarity("Fatih Moskee", "Fatih Moskee"); got != 1 {
		t.Fatalf("expected 1 for identical locations, got %f", got)
	}
}

func TestDuplicateThresholdBoundaryInclusive(t *testing.T) {
	t.Parallel()

	if !isDuplicateScore(0.82, DefaultThreshold) {
		t.Fatal("score exactly at the threshold must resolve as duplicate")
	}
	if isDuplicateScore(0.8199, DefaultThreshold) {
		t.Fatal("score just below the threshold must stay canonical")
	}
	if !isDuplicateScore(1.0, DefaultThreshold) {
		t.Fatal("perfect score must resolve as duplicate")
	}
}

func TestBestMatchNeverChainsThroughResolvedDuplicates(t *testing.T) {
	t.Parallel()

	// Candidate 3 is near-identical to candidate 2, but 2 was already resolved
	// as a duplicate of candidate 1. The partner query excludes rows with a
	// duplicate_of_id, so only candidate 1 is offered and 3 is scored against
	// the canonical row alone.
	start := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	canonical := partnerRow{
		ID:           1,
		Title:        "Tarkan concert",
		LocationText: "Ahoy, Rotterdam",
		StartTimeUTC: start,
	}
	cand := dedupCandidateRow{
		ID:           3,
		Title:        "Grote iftar avond programma",
		LocationText: "Fatih Moskee, Rotterdam",
		StartTimeUTC: start,
	}

	best, ok := bestMatch(cand, []partnerRow{canonical}, DefaultDedupWindow, DefaultWeights)
	if !ok {
		t.Fatal("expected the canonical partner to be scored")
	}
	if best.Partner.ID != canonical.ID {
		t.Fatalf("expected partner %d, got %d", canonical.ID, best.Partner.ID)
	}
	if isDuplicateScore(best.Score, DefaultThreshold) {
		t.Fatalf("dissimilar candidate must stay canonical, got score %f", best.Score)
	}
}

func TestCompositeScoreNearIdenticalEvents(t *testing.T) {
	t.Parallel()

	titleSim := SequenceRatio("Grote Iftar Avond", "grote iftar avond")
	locationSim := SequenceRatio("Fatih Moskee, Rotterdam", "Fatih Moskee Rotterdam")
	start := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	timeSim := TimeProximity(start, start.Add(time.Hour), DefaultDedupWindow)

	score := CompositeScore(titleSim, locationSim, timeSim, DefaultWeights)
	if score < DefaultThreshold {
		t.Fatalf("near-identical events should score as duplicates, got %f", score)
	}
}

func TestCompositeScoreUnrelatedEvents(t *testing.T) {
	t.Parallel()

	titleSim := SequenceRatio("Tarkan concert", "Iftar avond")
	locationSim := SequenceRatio("Ahoy, Rotterdam", "Centrum Moskee, Utrecht")
	start := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	timeSim := TimeProximity(start, start.Add(72*time.Hour), DefaultDedupWindow)

	score := CompositeScore(titleSim, locationSim, timeSim, DefaultWeights)
	if score >= DefaultThreshold {
		t.Fatalf("unrelated events should stay canonical, got %f", score)
	}
}
