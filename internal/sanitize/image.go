package sanitize

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/feeds"
)

// extractImageURL picks a representative image in priority order: structured
// media attachments, then enclosures with an image MIME type, then the first
// image tag embedded in the body text.
func extractImageURL(entry feeds.Entry, baseURL string) string {
	if strings.TrimSpace(entry.ImageURL) != "" {
		return normalizeImageURL(entry.ImageURL, baseURL)
	}

	for _, media := range entry.MediaURLs {
		if normalized := normalizeImageURL(media, baseURL); normalized != "" {
			return normalized
		}
	}

	for _, enclosure := range entry.Enclosures {
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(enclosure.Type)), "image/") {
			continue
		}
		if normalized := normalizeImageURL(enclosure.URL, baseURL); normalized != "" {
			return normalized
		}
	}

	for _, block := range entry.ContentBlocks {
		if embedded := firstEmbeddedImage(block); embedded != "" {
			if normalized := normalizeImageURL(embedded, baseURL); normalized != "" {
				return normalized
			}
		}
	}

	return ""
}

func firstEmbeddedImage(block string) string {
	if !strings.Contains(strings.ToLower(block), "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(block)))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img").First().Attr("src")
	return strings.TrimSpace(src)
}

// normalizeImageURL resolves relative references against the source base URL
// and upgrades protocol-relative URLs to https.
func normalizeImageURL(raw, baseURL string) string {
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
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return ""
		}
		return parsed.String()
	}

	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return ""
	}
	return base.ResolveReference(parsed).String()
}
