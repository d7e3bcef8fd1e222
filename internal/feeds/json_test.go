package feeds

import (
	"testing"
	"time"
)

const jsonSample = `{
  "data": {
    "events": [
      {
        "title": "Kermes Bazaar",
        "url": "https://example.org/events/kermes",
        "description": "Jaarlijkse kermes.",
        "venue": "Fatih Moskee",
        "location": "Rotterdam",
        "image": "/img/kermes.jpg",
        "start_at": "2026-03-14T11:00:00Z",
        "end_at": "2026-03-14T18:00:00Z"
      },
      {"note": "geen titel of url"},
      "not-an-object"
    ]
  }
}`

func TestJSONDecode(t *testing.T) {
	t.Parallel()

	src := SourceInfo{Key: "fatih", BaseURL: "https://example.org"}
	decoder := &jsonDecoder{sel: Selectors{Format: FormatJSON, ItemsPath: "data.events"}}

	entries, rejected, err := decoder.Decode([]byte(jsonSample), src, time.Now().UTC())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if len(rejected) != 2 {
		t.Fatalf("expected 2 rejected items, got %d", len(rejected))
	}

	entry := entries[0]
	if entry.Title != "Kermes Bazaar" || entry.Venue != "Fatih Moskee" || entry.LocationText != "Rotterdam" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.ImageURL != "https://example.org/img/kermes.jpg" {
		t.Fatalf("expected absolutized image, got %q", entry.ImageURL)
	}
	if entry.StartAt == nil || entry.EndAt == nil || !entry.EndAt.After(*entry.StartAt) {
		t.Fatalf("expected event times parsed, got %v/%v", entry.StartAt, entry.EndAt)
	}
}

func TestJSONDecodeBadItemsPath(t *testing.T) {
	t.Parallel()

	decoder := &jsonDecoder{sel: Selectors{Format: FormatJSON, ItemsPath: "data.missing"}}
	if _, _, err := decoder.Decode([]byte(jsonSample), SourceInfo{}, time.Now()); err == nil {
		t.Fatal("expected error for missing items path")
	}
}

const jsonLDSample = `<!DOCTYPE html>
<html><head>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@graph": [
    {
      "@type": "Event",
      "name": "Iftar Avond",
      "url": "/events/iftar",
      "startDate": "2026-03-10T18:30:00+01:00",
      "location": {
        "name": "Centrum Moskee",
        "address": {
          "streetAddress": "Hoogstraat 1",
          "addressLocality": "Rotterdam"
        }
      },
      "image": ["https://cdn.example.org/iftar.jpg"]
    },
    {"@type": "Organization", "name": "Moskee"}
  ]
}
</script>
</head><body></body></html>`

func TestJSONLDDecode(t *testing.T) {
	t.Parallel()

	src := SourceInfo{Key: "centrum", BaseURL: "https://example.org"}
	entries, rejected, err := (&jsonLDDecoder{}).Decode([]byte(jsonLDSample), src, time.Now().UTC())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(rejected) != 0 {
		t.Fatalf("expected no rejections, got %d", len(rejected))
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 event (organization filtered), got %d", len(entries))
	}

	entry := entries[0]
	if entry.Title != "Iftar Avond" || entry.Venue != "Centrum Moskee" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.URL != "https://example.org/events/iftar" {
		t.Fatalf("expected resolved URL, got %q", entry.URL)
	}
	if entry.LocationText != "Hoogstraat 1, Rotterdam" {
		t.Fatalf("expected flattened address, got %q", entry.LocationText)
	}
	if entry.StartAt == nil || !entry.StartAt.Equal(time.Date(2026, 3, 10, 17, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected start time in UTC, got %v", entry.StartAt)
	}
	if entry.ImageURL != "https://cdn.example.org/iftar.jpg" {
		t.Fatalf("unexpected image %q", entry.ImageURL)
	}
}
