package content

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Mode selects how visible text is pulled out of page markup
type Mode string

const (
	// ModeBody keeps every visible text node under <body>.
	ModeBody Mode = "body"
	// ModeReadability keeps only the main article content, falling back to ModeBody.
	ModeReadability Mode = "readability"
)

// ParseMode maps a config value to a Mode. Unknown values yield ModeBody.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeReadability)) {
		return ModeReadability
	}
	return ModeBody
}

// Extractor defines an interface for extracting plain text from HTML content
type Extractor interface {
	ExtractText(htmlContent string) (string, error)
}

// BodyExtractor implements Extractor with ExtractText
type BodyExtractor struct{}

// ExtractText returns the collapsed visible body text
func (BodyExtractor) ExtractText(htmlContent string) (string, error) {
	return ExtractText(htmlContent)
}

// ReadabilityExtractor implements Extractor with ExtractArticleText
type ReadabilityExtractor struct{}

// ExtractText returns the collapsed main-article text
func (ReadabilityExtractor) ExtractText(htmlContent string) (string, error) {
	return ExtractArticleText(htmlContent)
}

// NewExtractor returns the Extractor for mode.
func NewExtractor(mode Mode) Extractor {
	if mode == ModeReadability {
		return ReadabilityExtractor{}
	}
	return BodyExtractor{}
}

// stripSelector lists elements whose text is never visible.
const stripSelector = "script, style, noscript, template"

// blockElements get a separating space around their text so adjacent
// paragraphs, list items and cells don't run together.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "option": true, "p": true, "pre": true,
	"section": true, "table": true, "td": true, "th": true, "tr": true, "ul": true,
}

// ExtractText removes script and style markup, takes the visible text of
// <body> (or of the whole document when there is no body) and collapses all
// whitespace runs into single spaces.
func ExtractText(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	return documentText(doc), nil
}

// ExtractArticleText extracts the main article text with readability.
// Pages readability can't make sense of fall back to ExtractText.
func ExtractArticleText(htmlContent string) (string, error) {
	article, err := readability.FromReader(strings.NewReader(htmlContent), nil)
	if err == nil {
		if text := CollapseWhitespace(article.TextContent); text != "" {
			return text, nil
		}
	}
	return ExtractText(htmlContent)
}

// Normalize turns a raw response body into single-line plain text. Feeds are
// rendered through gofeed, everything else is treated as HTML in the given mode.
// contentType is used both for feed detection and for charset decoding.
func Normalize(body []byte, contentType string, mode Mode) (string, error) {
	if IsFeed(body, contentType) {
		return FeedText(body)
	}

	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		// Unknown charset label: read the bytes as they are.
		r = bytes.NewReader(body)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decode body: %w", err)
	}

	return NewExtractor(mode).ExtractText(string(decoded))
}

// CollapseWhitespace replaces every run of whitespace, newlines included,
// with a single space and trims the result.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func documentText(doc *goquery.Document) string {
	doc.Find(stripSelector).Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var sb strings.Builder
	for _, n := range root.Nodes {
		writeText(&sb, n)
	}
	return CollapseWhitespace(sb.String())
}

func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode, html.DocumentNode:
	default:
		return
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		sb.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
	if block {
		sb.WriteByte(' ')
	}
}
