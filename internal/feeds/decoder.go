package feeds

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Formats accepted in a source's selectors blob.
const (
	FormatRSS    = "rss"
	FormatAtom   = "atom"
	FormatHTML   = "html"
	FormatJSON   = "json"
	FormatJSONLD = "json_ld"
)

// Selectors is the format tag plus format-specific field paths configured per
// source. It is data, not logic: the decoder it selects is fixed at load time.
type Selectors struct {
	Format string `json:"format"`

	// html
	ItemSelector    string `json:"item_selector,omitempty"`
	TitleSelector   string `json:"title_selector,omitempty"`
	URLSelector     string `json:"url_selector,omitempty"`
	DateSelector    string `json:"date_selector,omitempty"`
	DateLayout      string `json:"date_layout,omitempty"`
	SnippetSelector string `json:"snippet_selector,omitempty"`
	ImageSelector   string `json:"image_selector,omitempty"`
	VenueSelector   string `json:"venue_selector,omitempty"`

	// json
	ItemsPath    string `json:"items_path,omitempty"`
	TitleField   string `json:"title_field,omitempty"`
	URLField     string `json:"url_field,omitempty"`
	DateField    string `json:"date_field,omitempty"`
	SnippetField string `json:"snippet_field,omitempty"`
	ImageField   string `json:"image_field,omitempty"`
	VenueField   string `json:"venue_field,omitempty"`

	// When true the extraction stage escalates pages with no decodable
	// entries to the AI extraction capability.
	UseAIExtract bool `json:"use_ai_extract,omitempty"`
}

// SourceInfo is the slice of the source registry a decoder needs.
type SourceInfo struct {
	Key     string
	BaseURL string
}

// Enclosure is a typed media link attached to a feed entry.
type Enclosure struct {
	URL  string
	Type string
}

// Entry is the loosely-typed intermediate record every decoder produces.
// PublishedAt is always resolved (published, then updated, then now); StartAt
// and EndAt are only set by formats that carry event times.
type Entry struct {
	Title         string
	URL           string
	GUID          string
	Snippet       string
	ContentBlocks []string
	Venue         string
	LocationText  string
	ImageURL      string
	MediaURLs     []string
	Enclosures    []Enclosure
	PublishedAt   time.Time
	StartAt       *time.Time
	EndAt         *time.Time
}

// EntryError records a single rejected entry; the batch continues around it.
type EntryError struct {
	Index  int
	Reason string
}

func (e EntryError) Error() string {
	return fmt.Sprintf("entry %d rejected: %s", e.Index, e.Reason)
}

// Decoder turns one raw payload into entries. Implementations form a closed
// set selected once per source by ForSelectors.
type Decoder interface {
	Format() string
	Decode(body []byte, src SourceInfo, now time.Time) ([]Entry, []EntryError, error)
}

// ForSelectors returns the decoder for a source's configured format.
func ForSelectors(raw json.RawMessage) (Decoder, Selectors, error) {
	var sel Selectors
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &sel); err != nil {
			return nil, Selectors{}, fmt.Errorf("decode selectors: %w", err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(sel.Format)) {
	case FormatRSS:
		return &rssDecoder{}, sel, nil
	case FormatAtom:
		return &atomDecoder{}, sel, nil
	case "", "feed":
		// Ambiguous configuration: sniff per payload with RSS-first fallback.
		return &feedSniffDecoder{}, sel, nil
	case FormatHTML:
		if strings.TrimSpace(sel.ItemSelector) == "" && !sel.UseAIExtract {
			return nil, Selectors{}, fmt.Errorf("html selectors require item_selector or use_ai_extract")
		}
		return &htmlDecoder{sel: sel}, sel, nil
	case FormatJSON:
		return &jsonDecoder{sel: sel}, sel, nil
	case FormatJSONLD:
		return &jsonLDDecoder{}, sel, nil
	default:
		return nil, Selectors{}, fmt.Errorf("unsupported selectors format %q", sel.Format)
	}
}

// resolveEntryURL applies the locator fallback chain: primary link, alternate
// link, entry identifier, finally the source base URL when a title exists.
func resolveEntryURL(primary, alternate, guid, title string, src SourceInfo) string {
	for _, candidate := range []string{primary, alternate} {
		if absolute := absolutize(candidate, src.BaseURL); absolute != "" {
			return absolute
		}
	}
	if looksLikeURL(guid) {
		if absolute := absolutize(guid, src.BaseURL); absolute != "" {
			return absolute
		}
	}
	if strings.TrimSpace(title) != "" {
		return strings.TrimSpace(src.BaseURL)
	}
	return ""
}

func looksLikeURL(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "http://") ||
		strings.HasPrefix(trimmed, "https://") ||
		strings.HasPrefix(trimmed, "//")
}

// absolutize resolves a possibly-relative reference against the base URL and
// upgrades protocol-relative references to https.
func absolutize(raw, base string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "//") {
		trimmed = "https:" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if parsed.IsAbs() {
		return parsed.String()
	}

	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return ""
	}
	return baseURL.ResolveReference(parsed).String()
}

var feedDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// resolveEntryDate falls back from published to updated to now; it never
// fails the entry.
func resolveEntryDate(published, updated string, now time.Time) time.Time {
	if ts, ok := parseFeedTime(published); ok {
		return ts
	}
	if ts, ok := parseFeedTime(updated); ok {
		return ts
	}
	return now.UTC()
}

func parseFeedTime(value string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range feedDateLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
