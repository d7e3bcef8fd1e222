package feeds

import (
	"testing"
	"time"
)

const htmlListSample = `<!DOCTYPE html>
<html><body>
<div class="agenda">
  <article class="event">
    <h3 class="event-title">Kermes Bazaar</h3>
    <a class="event-link" href="/events/kermes">Meer info</a>
    <span class="event-date">2026-03-14</span>
    <p class="event-snippet">Kermes met eten en kraampjes.</p>
    <span class="event-venue">Fatih Moskee</span>
    <img class="event-image" src="//cdn.example.org/kermes.jpg"/>
  </article>
  <article class="event">
    <a class="event-link" href="/events/naamloos">Zonder titel</a>
  </article>
  <article class="event">
    <p>lege kaart</p>
  </article>
</div>
</body></html>`

func htmlTestSelectors() Selectors {
	return Selectors{
		Format:          FormatHTML,
		ItemSelector:    "article.event",
		TitleSelector:   ".event-title",
		URLSelector:     "a.event-link",
		DateSelector:    ".event-date",
		DateLayout:      "2006-01-02",
		SnippetSelector: ".event-snippet",
		VenueSelector:   ".event-venue",
		ImageSelector:   "img.event-image",
	}
}

func TestHTMLDecode(t *testing.T) {
	t.Parallel()

	src := SourceInfo{Key: "fatih", BaseURL: "https://example.org"}
	decoder := &htmlDecoder{sel: htmlTestSelectors()}

	entries, rejected, err := decoder.Decode([]byte(htmlListSample), src, time.Now().UTC())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if len(rejected) != 1 {
		t.Fatalf("expected 1 rejected entry, got %d", len(rejected))
	}

	first := entries[0]
	if first.Title != "Kermes Bazaar" {
		t.Fatalf("unexpected title %q", first.Title)
	}
	if first.URL != "https://example.org/events/kermes" {
		t.Fatalf("expected resolved event URL, got %q", first.URL)
	}
	if first.StartAt == nil || !first.StartAt.Equal(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected start date from selector, got %v", first.StartAt)
	}
	if first.Venue != "Fatih Moskee" {
		t.Fatalf("unexpected venue %q", first.Venue)
	}
	if first.ImageURL != "https://cdn.example.org/kermes.jpg" {
		t.Fatalf("expected https-upgraded image, got %q", first.ImageURL)
	}

	// Link without a title still resolves through the href.
	if entries[1].URL != "https://example.org/events/naamloos" {
		t.Fatalf("expected href-resolved URL, got %q", entries[1].URL)
	}
}

func TestHTMLDecodeAIOnlySourceYieldsNothing(t *testing.T) {
	t.Parallel()

	decoder := &htmlDecoder{sel: Selectors{Format: FormatHTML, UseAIExtract: true}}
	entries, rejected, err := decoder.Decode([]byte(htmlListSample), SourceInfo{}, time.Now().UTC())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(entries) != 0 || len(rejected) != 0 {
		t.Fatalf("expected empty result for ai-only source, got %d/%d", len(entries), len(rejected))
	}
}
