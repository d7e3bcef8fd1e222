package feeds

import (
	"testing"
	"time"
)

const atomSample = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Vereniging Agenda</title>
  <entry>
    <title>Turkse Filmavond</title>
    <id>urn:event:film-2026</id>
    <link rel="self" href="https://example.org/feed/entries/1"/>
    <link rel="alternate" href="https://example.org/events/filmavond"/>
    <link rel="enclosure" type="image/png" href="/img/film.png"/>
    <summary>Vertoning met nagesprek.</summary>
    <published>2026-04-02T19:30:00+02:00</published>
  </entry>
  <entry>
    <title>Ledenvergadering</title>
    <updated>2026-04-10T10:00:00Z</updated>
  </entry>
</feed>`

func TestAtomDecode(t *testing.T) {
	t.Parallel()

	src := SourceInfo{Key: "vereniging", BaseURL: "https://example.org"}
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	entries, rejected, err := (&atomDecoder{}).Decode([]byte(atomSample), src, now)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(rejected) != 0 {
		t.Fatalf("expected no rejections, got %d", len(rejected))
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.URL != "https://example.org/events/filmavond" {
		t.Fatalf("expected alternate link preferred, got %q", first.URL)
	}
	if !first.PublishedAt.Equal(time.Date(2026, 4, 2, 17, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected published in UTC, got %v", first.PublishedAt)
	}
	if len(first.Enclosures) != 1 || first.Enclosures[0].URL != "https://example.org/img/film.png" {
		t.Fatalf("expected absolutized enclosure, got %+v", first.Enclosures)
	}

	second := entries[1]
	if second.URL != "https://example.org" {
		t.Fatalf("expected base URL fallback, got %q", second.URL)
	}
	if !second.PublishedAt.Equal(time.Date(2026, 4, 10, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected updated date fallback, got %v", second.PublishedAt)
	}
}

func TestDetectFeedFormat(t *testing.T) {
	t.Parallel()

	if got := DetectFeedFormat([]byte(rssSample)); got != FormatRSS {
		t.Fatalf("expected rss, got %q", got)
	}
	if got := DetectFeedFormat([]byte(atomSample)); got != FormatAtom {
		t.Fatalf("expected atom, got %q", got)
	}
	if got := DetectFeedFormat([]byte(`<html><body>no feed</body></html>`)); got != "" {
		t.Fatalf("expected no detection for html, got %q", got)
	}
}

func TestFeedSniffDecoder(t *testing.T) {
	t.Parallel()

	src := SourceInfo{Key: "any", BaseURL: "https://example.org"}
	now := time.Now().UTC()

	entries, _, err := (&feedSniffDecoder{}).Decode([]byte(atomSample), src, now)
	if err != nil {
		t.Fatalf("sniff decode of atom failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 atom entries, got %d", len(entries))
	}

	entries, _, err = (&feedSniffDecoder{}).Decode([]byte(rssSample), src, now)
	if err != nil {
		t.Fatalf("sniff decode of rss failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 rss entries, got %d", len(entries))
	}
}
