package feeds

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// DetectFeedFormat classifies an XML payload as rss or atom, or returns ""
// when the payload gives no usable signal. Public feeds frequently mislabel
// themselves, so detection is ordered: the explicit root marker first, then
// generator metadata, then nothing (callers fall back to trying both
// mappings).
func DetectFeedFormat(body []byte) string {
	if format := detectByRootElement(body); format != "" {
		return format
	}
	return detectByGenerator(body)
}

func detectByRootElement(body []byte) string {
	decoder := newLenientXMLDecoder(body)
	for {
		token, err := decoder.Token()
		if err != nil {
			return ""
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		switch strings.ToLower(start.Name.Local) {
		case "rss":
			for _, attr := range start.Attr {
				if strings.EqualFold(attr.Name.Local, "version") && strings.HasPrefix(attr.Value, "2") {
					return FormatRSS
				}
			}
			return FormatRSS
		case "feed":
			return FormatAtom
		case "rdf":
			// RDF feeds map onto the RSS item shape well enough.
			return FormatRSS
		default:
			return ""
		}
	}
}

func detectByGenerator(body []byte) string {
	var probe struct {
		Generator        string `xml:"generator"`
		ChannelGenerator string `xml:"channel>generator"`
	}
	if err := unmarshalLenientXML(body, &probe); err != nil {
		return ""
	}
	generator := strings.ToLower(probe.Generator + " " + probe.ChannelGenerator)
	switch {
	case strings.Contains(generator, "atom"):
		return FormatAtom
	case strings.Contains(generator, "rss"), strings.Contains(generator, "wordpress"):
		return FormatRSS
	default:
		return ""
	}
}

// feedSniffDecoder handles sources configured without an explicit feed
// format: detect, then try the RSS mapping, then the Atom mapping.
type feedSniffDecoder struct{}

func (d *feedSniffDecoder) Format() string { return "feed" }

func (d *feedSniffDecoder) Decode(body []byte, src SourceInfo, now time.Time) ([]Entry, []EntryError, error) {
	ordered := []Decoder{&rssDecoder{}, &atomDecoder{}}
	if DetectFeedFormat(body) == FormatAtom {
		ordered = []Decoder{&atomDecoder{}, &rssDecoder{}}
	}

	var firstErr error
	for _, decoder := range ordered {
		entries, rejected, err := decoder.Decode(body, src, now)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if len(entries) > 0 || len(rejected) > 0 {
			return entries, rejected, nil
		}
	}
	if firstErr != nil {
		return nil, nil, fmt.Errorf("payload matched neither rss nor atom: %w", firstErr)
	}
	return nil, nil, nil
}

func unmarshalLenientXML(body []byte, out any) error {
	return newLenientXMLDecoder(body).Decode(out)
}

func newLenientXMLDecoder(body []byte) *xml.Decoder {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	decoder.Strict = false
	decoder.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	return decoder
}
