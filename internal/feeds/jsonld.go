package feeds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// jsonLDDecoder extracts schema.org Event objects from the ld+json script
// blocks embedded in a page.
type jsonLDDecoder struct{}

func (d *jsonLDDecoder) Format() string { return FormatJSONLD }

type ldEvent struct {
	Type        any        `json:"@type"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	Image       any        `json:"image"`
	StartDate   string     `json:"startDate"`
	EndDate     string     `json:"endDate"`
	Location    ldLocation `json:"location"`
}

type ldLocation struct {
	Name    string `json:"name"`
	Address any    `json:"address"`
}

func (d *jsonLDDecoder) Decode(body []byte, src SourceInfo, now time.Time) ([]Entry, []EntryError, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html payload: %w", err)
	}

	var entries []Entry
	var rejected []EntryError
	index := 0
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, script *goquery.Selection) {
		for _, event := range decodeLDEvents([]byte(script.Text())) {
			entry, mapErr := mapLDEvent(event, src, now)
			if mapErr != nil {
				rejected = append(rejected, EntryError{Index: index, Reason: mapErr.Error()})
			} else {
				entries = append(entries, entry)
			}
			index++
		}
	})
	return entries, rejected, nil
}

// decodeLDEvents tolerates the three shapes ld+json blocks come in: a single
// object, an array of objects, or a @graph wrapper.
func decodeLDEvents(raw []byte) []ldEvent {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}

	var single ldEvent
	if err := json.Unmarshal(trimmed, &single); err == nil && isLDEventType(single.Type) {
		return []ldEvent{single}
	}

	var list []ldEvent
	if err := json.Unmarshal(trimmed, &list); err == nil {
		return filterLDEvents(list)
	}

	var graph struct {
		Graph []ldEvent `json:"@graph"`
	}
	if err := json.Unmarshal(trimmed, &graph); err == nil {
		return filterLDEvents(graph.Graph)
	}
	return nil
}

func filterLDEvents(list []ldEvent) []ldEvent {
	events := make([]ldEvent, 0, len(list))
	for _, candidate := range list {
		if isLDEventType(candidate.Type) {
			events = append(events, candidate)
		}
	}
	return events
}

func isLDEventType(value any) bool {
	switch typed := value.(type) {
	case string:
		return strings.Contains(strings.ToLower(typed), "event")
	case []any:
		for _, element := range typed {
			if text, ok := element.(string); ok && strings.Contains(strings.ToLower(text), "event") {
				return true
			}
		}
	}
	return false
}

func mapLDEvent(event ldEvent, src SourceInfo, now time.Time) (Entry, error) {
	title := strings.TrimSpace(event.Name)
	entryURL := resolveEntryURL(event.URL, "", "", title, src)
	if title == "" && entryURL == "" {
		return Entry{}, fmt.Errorf("no title and no resolvable locator")
	}

	entry := Entry{
		Title:       title,
		URL:         entryURL,
		Snippet:     strings.TrimSpace(event.Description),
		Venue:       strings.TrimSpace(event.Location.Name),
		PublishedAt: now.UTC(),
	}
	if entry.Snippet != "" {
		entry.ContentBlocks = append(entry.ContentBlocks, entry.Snippet)
	}
	if address := flattenLDAddress(event.Location.Address); address != "" {
		entry.LocationText = address
	}
	if image := firstLDImage(event.Image); image != "" {
		if absolute := absolutize(image, src.BaseURL); absolute != "" {
			entry.ImageURL = absolute
		}
	}
	if ts, ok := parseFeedTime(event.StartDate); ok {
		entry.StartAt = &ts
	}
	if ts, ok := parseFeedTime(event.EndDate); ok {
		entry.EndAt = &ts
	}
	return entry, nil
}

func flattenLDAddress(address any) string {
	switch typed := address.(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]any:
		parts := make([]string, 0, 4)
		for _, key := range []string{"streetAddress", "postalCode", "addressLocality", "addressCountry"} {
			if value, ok := typed[key].(string); ok && strings.TrimSpace(value) != "" {
				parts = append(parts, strings.TrimSpace(value))
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func firstLDImage(image any) string {
	switch typed := image.(type) {
	case string:
		return strings.TrimSpace(typed)
	case []any:
		for _, element := range typed {
			if text, ok := element.(string); ok && strings.TrimSpace(text) != "" {
				return strings.TrimSpace(text)
			}
		}
	case map[string]any:
		if value, ok := typed["url"].(string); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
