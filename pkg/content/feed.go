package content

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// IsFeed reports whether a response is an RSS, Atom or JSON feed rather than
// an HTML page. Generic XML content types are confirmed by sniffing the body.
func IsFeed(body []byte, contentType string) bool {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "rss"), strings.Contains(ct, "atom"), strings.Contains(ct, "feed+json"):
		return true
	case strings.Contains(ct, "html"):
		return false
	case strings.Contains(ct, "xml"), ct == "":
		return gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown
	default:
		return false
	}
}

// FeedText renders a feed as its title followed by each item's title and
// description text, in feed order, collapsed to a single line.
func FeedText(body []byte) (string, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse feed: %w", err)
	}

	parts := []string{feed.Title}
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		parts = append(parts, item.Title)
		if item.Description != "" {
			// Descriptions routinely carry markup.
			desc, err := ExtractText(item.Description)
			if err != nil {
				desc = item.Description
			}
			parts = append(parts, desc)
		}
	}
	return CollapseWhitespace(strings.Join(parts, " ")), nil
}
