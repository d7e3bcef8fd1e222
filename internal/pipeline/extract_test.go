package pipeline

import (
	"bytes"
	"testing"

	payloadschema "github.com/kulmetehan/turkish-diaspora-app-sub002/schema"
)

func TestIngestHashStable(t *testing.T) {
	t.Parallel()

	a := ingestHash("fatih", "https://example.org/kermes", "Kermes Bazaar")
	b := ingestHash("fatih", "https://example.org/kermes", "  kermes   BAZAAR ")
	if !bytes.Equal(a, b) {
		t.Fatal("expected title normalization to produce identical hashes")
	}
}

func TestIngestHashDistinguishesCoordinates(t *testing.T) {
	t.Parallel()

	base := ingestHash("fatih", "https://example.org/kermes", "Kermes")
	if bytes.Equal(base, ingestHash("other", "https://example.org/kermes", "Kermes")) {
		t.Fatal("expected source key to affect the hash")
	}
	if bytes.Equal(base, ingestHash("fatih", "https://example.org/other", "Kermes")) {
		t.Fatal("expected URL to affect the hash")
	}
	if bytes.Equal(base, ingestHash("fatih", "https://example.org/kermes", "Iftar")) {
		t.Fatal("expected title to affect the hash")
	}
}

func TestEntryFromEventItem(t *testing.T) {
	t.Parallel()

	description := "Jaarlijkse kermes."
	venue := "Fatih Moskee"
	eventURL := "https://example.org/kermes"
	startAt := "2026-03-10T19:00:00+01:00"

	entry := entryFromEventItem(&payloadschema.EventItem{
		Title:       "Kermes",
		Description: &description,
		Venue:       &venue,
		EventURL:    &eventURL,
		StartAt:     &startAt,
	}, "https://example.org/agenda")

	if entry.Title != "Kermes" || entry.Snippet != description || entry.Venue != venue {
		t.Fatalf("unexpected entry mapping: %+v", entry)
	}
	if entry.URL != eventURL {
		t.Fatalf("expected event URL to win over page URL, got %q", entry.URL)
	}
	if entry.StartAt == nil {
		t.Fatal("expected start time parsed")
	}
	if entry.StartAt.UTC().Hour() != 18 {
		t.Fatalf("expected 18:00 UTC, got %d", entry.StartAt.UTC().Hour())
	}
}

func TestEntryFromEventItemFallsBackToPageURL(t *testing.T) {
	t.Parallel()

	entry := entryFromEventItem(&payloadschema.EventItem{Title: "Kermes"}, "https://example.org/agenda")
	if entry.URL != "https://example.org/agenda" {
		t.Fatalf("expected page URL fallback, got %q", entry.URL)
	}
	if entry.StartAt != nil || entry.EndAt != nil {
		t.Fatal("expected no event times without payload fields")
	}
}
