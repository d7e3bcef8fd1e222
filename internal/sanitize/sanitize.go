package sanitize

import (
	"bytes"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/kulmetehan/turkish-diaspora-app-sub002/internal/feeds"
)

const (
	// SnippetBudget bounds stored snippets for licensing compliance.
	SnippetBudget    = 360
	TruncationMarker = "…"

	fullArticleMinChars      = 1200
	fullArticleMinSentences  = 25
	fullArticleMaxParagraphs = 5
)

// Result is the sanitized view of one feed/page entry.
type Result struct {
	Title   string
	Snippet string
	// ComplianceWarning flags text that looks like a fully reproduced
	// article rather than a summary. It never blocks ingestion; editorial
	// follow-up is manual.
	ComplianceWarning bool
	ImageURL          string
}

// Entry sanitizes a decoded entry: stripped title, bounded plain-text
// snippet, compliance heuristics and a best-effort image URL.
func Entry(entry feeds.Entry, baseURL string) Result {
	title := StripMarkup(entry.Title)

	rawText := entry.Snippet
	if joined := strings.Join(entry.ContentBlocks, "\n"); strings.TrimSpace(joined) != "" {
		rawText = joined
	}
	stripped := StripMarkup(rawText)

	return Result{
		Title:             title,
		Snippet:           TruncateSnippet(stripped, SnippetBudget),
		ComplianceWarning: looksLikeFullArticle(stripped, countParagraphBlocks(entry.ContentBlocks)),
		ImageURL:          extractImageURL(entry, baseURL),
	}
}

// StripMarkup reduces possibly-HTML text to collapsed plain text.
func StripMarkup(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	text := trimmed
	if strings.ContainsAny(trimmed, "<&") {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(trimmed)))
		if err == nil {
			text = doc.Text()
		}
	}
	return StripNullBytes(collapseWhitespace(text))
}

// StripNullBytes removes NUL sequences that Postgres text columns reject.
func StripNullBytes(input string) string {
	if !strings.Contains(input, "\x00") {
		return input
	}
	return strings.ReplaceAll(input, "\x00", "")
}

// TruncateSnippet bounds text to the character budget, cutting on a rune
// boundary and appending the truncation marker.
func TruncateSnippet(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}

	cut := budget - len([]rune(TruncationMarker))
	if cut < 1 {
		cut = 1
	}
	truncated := strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace)
	return truncated + TruncationMarker
}

func looksLikeFullArticle(stripped string, paragraphBlocks int) bool {
	if len([]rune(stripped)) > fullArticleMinChars {
		return true
	}
	if countSentences(stripped) > fullArticleMinSentences {
		return true
	}
	return paragraphBlocks > fullArticleMaxParagraphs
}

func countSentences(text string) int {
	count := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			count++
		}
	}
	return count
}

func countParagraphBlocks(blocks []string) int {
	count := 0
	for _, block := range blocks {
		if tagged := strings.Count(strings.ToLower(block), "<p"); tagged > 0 {
			count += tagged
			continue
		}
		for _, segment := range strings.Split(block, "\n\n") {
			if strings.TrimSpace(segment) != "" {
				count++
			}
		}
	}
	return count
}

func collapseWhitespace(input string) string {
	return strings.Join(strings.Fields(input), " ")
}
