// Package bodytext reduces HTML mail bodies to readable plain text for
// summary and forward bodies.
package bodytext

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extractor converts HTML mail bodies to plain text
type Extractor struct {
	whitespaceRegex *regexp.Regexp
	newlineRegex    *regexp.Regexp
	invisibleRegex  *regexp.Regexp
}

// NewExtractor creates a new extractor
func NewExtractor() *Extractor {
	return &Extractor{
		whitespaceRegex: regexp.MustCompile(`[^\S\n]+`),
		newlineRegex:    regexp.MustCompile(`\n{3,}`),
		// Remove invisible Unicode characters (zero-width spaces, etc.)
		invisibleRegex: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{2060}-\x{2064}\x{206A}-\x{206F}]+`),
	}
}

// Extract converts HTML to clean plain text
func (e *Extractor) Extract(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	// Remove non-content elements
	doc.Find("script, style, head, meta, link").Remove()

	// Add newlines before block elements
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := doc.Text()
	text = e.invisibleRegex.ReplaceAllString(text, "")
	text = e.whitespaceRegex.ReplaceAllString(text, " ")

	// Trim each line and drop empty ones
	lines := strings.Split(text, "\n")
	var cleanLines []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanLines = append(cleanLines, line)
		}
	}
	text = strings.Join(cleanLines, "\n")
	text = e.newlineRegex.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}

// BestEffort returns the text body when present, otherwise the extracted
// HTML body, otherwise the raw HTML stripped of markup failures
func (e *Extractor) BestEffort(textBody, htmlBody string) string {
	if strings.TrimSpace(textBody) != "" {
		return strings.TrimSpace(textBody)
	}
	extracted, err := e.Extract(htmlBody)
	if err != nil {
		return strings.TrimSpace(htmlBody)
	}
	return extracted
}
