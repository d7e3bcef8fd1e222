package feeds

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

type atomDocument struct {
	XMLName   xml.Name    `xml:"feed"`
	Generator string      `xml:"generator"`
	Entries   []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title     string     `xml:"title"`
	ID        string     `xml:"id"`
	Links     []atomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type atomDecoder struct{}

func (d *atomDecoder) Format() string { return FormatAtom }

func (d *atomDecoder) Decode(body []byte, src SourceInfo, now time.Time) ([]Entry, []EntryError, error) {
	var doc atomDocument
	if err := unmarshalLenientXML(body, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode atom payload: %w", err)
	}
	if len(doc.Entries) == 0 && doc.XMLName.Local != "feed" {
		return nil, nil, fmt.Errorf("payload is not an atom document")
	}

	entries := make([]Entry, 0, len(doc.Entries))
	var rejected []EntryError
	for i, item := range doc.Entries {
		entry, err := mapAtomEntry(item, src, now)
		if err != nil {
			rejected = append(rejected, EntryError{Index: i, Reason: err.Error()})
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rejected, nil
}

func mapAtomEntry(item atomEntry, src SourceInfo, now time.Time) (Entry, error) {
	title := strings.TrimSpace(item.Title)

	var primary, alternate string
	for _, link := range item.Links {
		rel := strings.ToLower(strings.TrimSpace(link.Rel))
		switch rel {
		case "", "self":
			if primary == "" {
				primary = link.Href
			}
		case "alternate":
			if alternate == "" {
				alternate = link.Href
			}
		case "enclosure":
			// handled below; keep scanning for the main locator
		}
	}
	// Atom's alternate relation is the canonical entry page; prefer it over a
	// bare self link.
	if alternate != "" {
		primary, alternate = alternate, primary
	}

	entryURL := resolveEntryURL(primary, alternate, item.ID, title, src)
	if title == "" && entryURL == "" {
		return Entry{}, fmt.Errorf("no title and no resolvable locator")
	}

	entry := Entry{
		Title:       title,
		URL:         entryURL,
		GUID:        strings.TrimSpace(item.ID),
		PublishedAt: resolveEntryDate(item.Published, item.Updated, now),
	}
	if summary := strings.TrimSpace(item.Summary); summary != "" {
		entry.Snippet = summary
		entry.ContentBlocks = append(entry.ContentBlocks, summary)
	}
	if content := strings.TrimSpace(item.Content); content != "" {
		entry.ContentBlocks = append(entry.ContentBlocks, content)
	}
	for _, link := range item.Links {
		if strings.EqualFold(strings.TrimSpace(link.Rel), "enclosure") {
			if absolute := absolutize(link.Href, src.BaseURL); absolute != "" {
				entry.Enclosures = append(entry.Enclosures, Enclosure{URL: absolute, Type: strings.TrimSpace(link.Type)})
			}
		}
	}
	return entry, nil
}
