package pipeline

import (
	"testing"
	"time"
)

func TestBuildCandidatePayloadMissingTitle(t *testing.T) {
	t.Parallel()

	start := time.Now().UTC()
	_, reason := buildCandidatePayload(eventRawPendingRow{
		Title:   "   ",
		StartAt: &start,
	})
	if reason != ReasonMissingTitle {
		t.Fatalf("expected %q, got %q", ReasonMissingTitle, reason)
	}
}

func TestBuildCandidatePayloadMissingStartTime(t *testing.T) {
	t.Parallel()

	_, reason := buildCandidatePayload(eventRawPendingRow{
		Title: "Kermes",
	})
	if reason != ReasonMissingStartTime {
		t.Fatalf("expected %q, got %q", ReasonMissingStartTime, reason)
	}
}

func TestBuildCandidatePayloadSuccess(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("CET", 3600)
	start := time.Date(2026, 3, 10, 19, 0, 0, 0, loc)
	end := start.Add(3 * time.Hour)
	city := "rotterdam"
	image := "https://example.org/kermes.jpg"

	payload, reason := buildCandidatePayload(eventRawPendingRow{
		Title:        "  Kermes\x00 bazaar  ",
		Description:  "Jaarlijkse kermes.",
		Venue:        "Fatih Moskee",
		LocationText: "Rotterdam",
		EventURL:     "https://example.org/kermes",
		ImageURL:     &image,
		StartAt:      &start,
		EndAt:        &end,
		SourceKey:    "fatih",
		CityKey:      &city,
	})
	if reason != "" {
		t.Fatalf("unexpected rejection reason %q", reason)
	}
	if payload.Title != "Kermes bazaar" {
		t.Fatalf("expected cleaned title, got %q", payload.Title)
	}
	if payload.StartTimeUTC.Location() != time.UTC {
		t.Fatalf("expected UTC start time, got %v", payload.StartTimeUTC.Location())
	}
	if payload.StartTimeUTC.Hour() != 18 {
		t.Fatalf("expected 18:00 UTC, got %d", payload.StartTimeUTC.Hour())
	}
	if payload.EndTimeUTC == nil || !payload.EndTimeUTC.After(payload.StartTimeUTC) {
		t.Fatal("expected end time after start time")
	}
	if payload.LocationText != "Fatih Moskee, Rotterdam" {
		t.Fatalf("expected merged location, got %q", payload.LocationText)
	}
	if payload.CityKey == nil || *payload.CityKey != "rotterdam" {
		t.Fatal("expected city key carried over")
	}
	if payload.ImageURL == nil || *payload.ImageURL != image {
		t.Fatal("expected image URL carried over")
	}
}

func TestMergeLocation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		venue    string
		location string
		want     string
	}{
		{"both empty", "", "", ""},
		{"venue only", "Fatih Moskee", "", "Fatih Moskee"},
		{"location only", "", "Rotterdam", "Rotterdam"},
		{"venue inside location", "Fatih Moskee", "fatih moskee, Rotterdam", "fatih moskee, Rotterdam"},
		{"location inside venue", "Fatih Moskee Rotterdam", "rotterdam", "Fatih Moskee Rotterdam"},
		{"distinct halves", "Fatih Moskee", "Rotterdam", "Fatih Moskee, Rotterdam"},
	}
	for _, tc := range cases {
		if got := mergeLocation(tc.venue, tc.location); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}
