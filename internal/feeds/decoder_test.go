package feeds

import (
	"testing"
	"time"
)

func TestForSelectorsKnownFormats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw    string
		format string
	}{
		{`{"format":"rss"}`, FormatRSS},
		{`{"format":"atom"}`, FormatAtom},
		{`{"format":"html","item_selector":".event"}`, FormatHTML},
		{`{"format":"json","items_path":"events"}`, FormatJSON},
		{`{"format":"json_ld"}`, FormatJSONLD},
	}
	for _, tc := range cases {
		decoder, _, err := ForSelectors([]byte(tc.raw))
		if err != nil {
			t.Fatalf("ForSelectors(%s) failed: %v", tc.raw, err)
		}
		if decoder.Format() != tc.format {
			t.Fatalf("expected format %s, got %s", tc.format, decoder.Format())
		}
	}
}

func TestForSelectorsEmptyDefaultsToSniffing(t *testing.T) {
	t.Parallel()

	decoder, _, err := ForSelectors(nil)
	if err != nil {
		t.Fatalf("ForSelectors(nil) failed: %v", err)
	}
	if decoder.Format() != "feed" {
		t.Fatalf("expected sniffing decoder, got %s", decoder.Format())
	}
}

func TestForSelectorsRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	if _, _, err := ForSelectors([]byte(`{"format":"csv"}`)); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestForSelectorsHTMLRequiresItemSelectorOrAI(t *testing.T) {
	t.Parallel()

	if _, _, err := ForSelectors([]byte(`{"format":"html"}`)); err == nil {
		t.Fatal("expected error for html selectors without item_selector")
	}
	if _, _, err := ForSelectors([]byte(`{"format":"html","use_ai_extract":true}`)); err != nil {
		t.Fatalf("expected ai-extract html selectors to be accepted: %v", err)
	}
}

func TestResolveEntryURLFallbackChain(t *testing.T) {
	t.Parallel()

	src := SourceInfo{Key: "fatih", BaseURL: "https://example.org/agenda"}

	if got := resolveEntryURL("https://example.org/a", "https://example.org/b", "", "title", src); got != "https://example.org/a" {
		t.Fatalf("expected primary link to win, got %q", got)
	}
	if got := resolveEntryURL("", "https://example.org/b", "", "title", src); got != "https://example.org/b" {
		t.Fatalf("expected alternate link fallback, got %q", got)
	}
	if got := resolveEntryURL("", "", "https://example.org/guid", "title", src); got != "https://example.org/guid" {
		t.Fatalf("expected URL-shaped guid fallback, got %q", got)
	}
	if got := resolveEntryURL("", "", "not-a-url-guid", "title", src); got != src.BaseURL {
		t.Fatalf("expected base URL fallback for titled entry, got %q", got)
	}
	if got := resolveEntryURL("", "", "", "", src); got != "" {
		t.Fatalf("expected empty result without title or locator, got %q", got)
	}
}

func TestAbsolutize(t *testing.T) {
	t.Parallel()

	base := "https://example.org/agenda/"
	if got := absolutize("/events/1", base); got != "https://example.org/events/1" {
		t.Fatalf("expected relative path resolved, got %q", got)
	}
	if got := absolutize("//cdn.example.org/img.jpg", base); got != "https://cdn.example.org/img.jpg" {
		t.Fatalf("expected protocol-relative upgraded to https, got %q", got)
	}
	if got := absolutize("https://other.org/x", base); got != "https://other.org/x" {
		t.Fatalf("expected absolute URL untouched, got %q", got)
	}
	if got := absolutize("/events/1", "not a base"); got != "" {
		t.Fatalf("expected empty result for unusable base, got %q", got)
	}
}

func TestResolveEntryDateFallbacks(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	got := resolveEntryDate("Tue, 10 Mar 2026 09:00:00 +0100", "", now)
	if got.Hour() != 8 || !got.Equal(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected published date in UTC, got %v", got)
	}

	got = resolveEntryDate("", "2026-03-09T10:00:00Z", now)
	if !got.Equal(time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected updated date fallback, got %v", got)
	}

	if got := resolveEntryDate("garbage", "also garbage", now); !got.Equal(now) {
		t.Fatalf("expected now fallback, got %v", got)
	}
}
