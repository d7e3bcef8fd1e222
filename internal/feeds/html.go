package feeds

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

type htmlDecoder struct {
	sel Selectors
}

func (d *htmlDecoder) Format() string { return FormatHTML }

func (d *htmlDecoder) Decode(body []byte, src SourceInfo, now time.Time) ([]Entry, []EntryError, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("parse html payload: %w", err)
	}
	if strings.TrimSpace(d.sel.ItemSelector) == "" {
		// AI-extract-only source: the extraction stage owns this page.
		return nil, nil, nil
	}

	var entries []Entry
	var rejected []EntryError
	doc.Find(d.sel.ItemSelector).Each(func(i int, item *goquery.Selection) {
		entry, mapErr := d.mapItem(item, src, now)
		if mapErr != nil {
			rejected = append(rejected, EntryError{Index: i, Reason: mapErr.Error()})
			return
		}
		entries = append(entries, entry)
	})
	return entries, rejected, nil
}

func (d *htmlDecoder) mapItem(item *goquery.Selection, src SourceInfo, now time.Time) (Entry, error) {
	title := selectionText(item, d.sel.TitleSelector)

	var href string
	if link := scopedSelection(item, d.sel.URLSelector); link != nil {
		if value, ok := link.Attr("href"); ok {
			href = value
		}
	}
	entryURL := resolveEntryURL(href, "", "", title, src)
	if title == "" && entryURL == "" {
		return Entry{}, fmt.Errorf("no title and no resolvable locator")
	}

	entry := Entry{
		Title:       title,
		URL:         entryURL,
		PublishedAt: now.UTC(),
	}

	if snippet := selectionText(item, d.sel.SnippetSelector); snippet != "" {
		entry.Snippet = snippet
		if html, err := scopedSelection(item, d.sel.SnippetSelector).Html(); err == nil && strings.TrimSpace(html) != "" {
			entry.ContentBlocks = append(entry.ContentBlocks, html)
		} else {
			entry.ContentBlocks = append(entry.ContentBlocks, snippet)
		}
	}

	if venue := selectionText(item, d.sel.VenueSelector); venue != "" {
		entry.Venue = venue
	}

	if dateText := selectionText(item, d.sel.DateSelector); dateText != "" {
		if ts, ok := parseSelectorTime(dateText, d.sel.DateLayout); ok {
			entry.StartAt = &ts
		}
	}

	if image := scopedSelection(item, d.sel.ImageSelector); image != nil {
		if value, ok := image.Attr("src"); ok {
			if absolute := absolutize(value, src.BaseURL); absolute != "" {
				entry.ImageURL = absolute
			}
		}
	}

	return entry, nil
}

func scopedSelection(item *goquery.Selection, selector string) *goquery.Selection {
	trimmed := strings.TrimSpace(selector)
	if trimmed == "" {
		return nil
	}
	found := item.Find(trimmed).First()
	if found.Length() == 0 {
		return nil
	}
	return found
}

func selectionText(item *goquery.Selection, selector string) string {
	found := scopedSelection(item, selector)
	if found == nil {
		return ""
	}
	return strings.Join(strings.Fields(found.Text()), " ")
}

func parseSelectorTime(value, layout string) (time.Time, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, false
	}
	if strings.TrimSpace(layout) != "" {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return ts.UTC(), true
		}
	}
	return parseFeedTime(trimmed)
}
