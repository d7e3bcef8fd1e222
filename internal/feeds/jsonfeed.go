package feeds

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type jsonDecoder struct {
	sel Selectors
}

func (d *jsonDecoder) Format() string { return FormatJSON }

func (d *jsonDecoder) Decode(body []byte, src SourceInfo, now time.Time) ([]Entry, []EntryError, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, nil, fmt.Errorf("decode json payload: %w", err)
	}

	items, err := itemsAtPath(root, d.sel.ItemsPath)
	if err != nil {
		return nil, nil, err
	}

	entries := make([]Entry, 0, len(items))
	var rejected []EntryError
	for i, rawItem := range items {
		item, ok := rawItem.(map[string]any)
		if !ok {
			rejected = append(rejected, EntryError{Index: i, Reason: "item is not an object"})
			continue
		}

		title := stringField(item, firstNonEmpty(d.sel.TitleField, "title"))
		href := stringField(item, firstNonEmpty(d.sel.URLField, "url"))
		entryURL := resolveEntryURL(href, "", stringField(item, "id"), title, src)
		if title == "" && entryURL == "" {
			rejected = append(rejected, EntryError{Index: i, Reason: "no title and no resolvable locator"})
			continue
		}

		entry := Entry{
			Title:       title,
			URL:         entryURL,
			GUID:        stringField(item, "id"),
			Snippet:     stringField(item, firstNonEmpty(d.sel.SnippetField, "description")),
			Venue:       stringField(item, firstNonEmpty(d.sel.VenueField, "venue")),
			PublishedAt: now.UTC(),
		}
		if entry.Snippet != "" {
			entry.ContentBlocks = append(entry.ContentBlocks, entry.Snippet)
		}
		if location := stringField(item, "location"); location != "" {
			entry.LocationText = location
		}
		if image := stringField(item, firstNonEmpty(d.sel.ImageField, "image")); image != "" {
			if absolute := absolutize(image, src.BaseURL); absolute != "" {
				entry.ImageURL = absolute
			}
		}
		if raw := stringField(item, firstNonEmpty(d.sel.DateField, "start_at")); raw != "" {
			if ts, ok := parseFeedTime(raw); ok {
				entry.StartAt = &ts
			}
		}
		if raw := stringField(item, "end_at"); raw != "" {
			if ts, ok := parseFeedTime(raw); ok {
				entry.EndAt = &ts
			}
		}

		entries = append(entries, entry)
	}
	return entries, rejected, nil
}

// itemsAtPath walks a dot-separated object path ("data.events") and returns
// the array found there. An empty path expects the root to be the array.
func itemsAtPath(root any, path string) ([]any, error) {
	current := root
	trimmed := strings.TrimSpace(path)
	if trimmed != "" {
		for _, segment := range strings.Split(trimmed, ".") {
			object, ok := current.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("items path %q does not resolve to an object", path)
			}
			current, ok = object[segment]
			if !ok {
				return nil, fmt.Errorf("items path %q missing segment %q", path, segment)
			}
		}
	}

	items, ok := current.([]any)
	if !ok {
		return nil, fmt.Errorf("items path %q does not resolve to an array", path)
	}
	return items, nil
}

func stringField(item map[string]any, field string) string {
	if strings.TrimSpace(field) == "" {
		return ""
	}
	value, ok := item[field]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
