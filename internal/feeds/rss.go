package feeds

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title     string    `xml:"title"`
	Generator string    `xml:"generator"`
	Items     []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string         `xml:"title"`
	Link        string         `xml:"link"`
	GUID        rssGUID        `xml:"guid"`
	Description string         `xml:"description"`
	Content     string         `xml:"encoded"`
	PubDate     string         `xml:"pubDate"`
	DCDate      string         `xml:"date"`
	Enclosures  []rssEnclosure `xml:"enclosure"`
	Media       []rssMedia     `xml:"content"`
	Thumbnails  []rssMedia     `xml:"thumbnail"`
}

type rssGUID struct {
	Value       string `xml:",chardata"`
	IsPermaLink string `xml:"isPermaLink,attr"`
}

type rssEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

type rssMedia struct {
	URL    string `xml:"url,attr"`
	Medium string `xml:"medium,attr"`
	Type   string `xml:"type,attr"`
}

type rssDecoder struct{}

func (d *rssDecoder) Format() string { return FormatRSS }

func (d *rssDecoder) Decode(body []byte, src SourceInfo, now time.Time) ([]Entry, []EntryError, error) {
	var doc rssDocument
	if err := unmarshalLenientXML(body, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode rss payload: %w", err)
	}
	if len(doc.Channel.Items) == 0 && doc.XMLName.Local != "rss" {
		return nil, nil, fmt.Errorf("payload is not an rss document")
	}

	entries := make([]Entry, 0, len(doc.Channel.Items))
	var rejected []EntryError
	for i, item := range doc.Channel.Items {
		entry, err := mapRSSItem(item, src, now)
		if err != nil {
			rejected = append(rejected, EntryError{Index: i, Reason: err.Error()})
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rejected, nil
}

func mapRSSItem(item rssItem, src SourceInfo, now time.Time) (Entry, error) {
	title := strings.TrimSpace(item.Title)
	entryURL := resolveEntryURL(item.Link, "", item.GUID.Value, title, src)
	if title == "" && entryURL == "" {
		return Entry{}, fmt.Errorf("no title and no resolvable locator")
	}

	entry := Entry{
		Title:       title,
		URL:         entryURL,
		GUID:        strings.TrimSpace(item.GUID.Value),
		PublishedAt: resolveEntryDate(item.PubDate, item.DCDate, now),
	}
	if snippet := strings.TrimSpace(item.Description); snippet != "" {
		entry.Snippet = snippet
		entry.ContentBlocks = append(entry.ContentBlocks, snippet)
	}
	if content := strings.TrimSpace(item.Content); content != "" {
		entry.ContentBlocks = append(entry.ContentBlocks, content)
	}
	for _, enc := range item.Enclosures {
		if absolute := absolutize(enc.URL, src.BaseURL); absolute != "" {
			entry.Enclosures = append(entry.Enclosures, Enclosure{URL: absolute, Type: strings.TrimSpace(enc.Type)})
		}
	}
	for _, media := range append(item.Media, item.Thumbnails...) {
		if media.Medium != "" && media.Medium != "image" && !strings.HasPrefix(media.Type, "image/") {
			continue
		}
		if absolute := absolutize(media.URL, src.BaseURL); absolute != "" {
			entry.MediaURLs = append(entry.MediaURLs, absolute)
		}
	}
	return entry, nil
}
