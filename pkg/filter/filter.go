// Package filter validates and de-duplicates target URLs before they are
// stored.
package filter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned by filters that reject a URL outright instead of
// dropping it.
var ErrInvalidURL = errors.New("invalid url")

// Filter defines the interface for URL filtering
type Filter interface {
	ShouldKeep(ctx context.Context, url string) (bool, error)
}

// FilterURLs applies all filters to a list of URLs
func FilterURLs(ctx context.Context, urls []string, filters ...Filter) ([]string, error) {
	filtered := make([]string, 0, len(urls))

	for _, urlStr := range urls {
		keep := true
		for _, f := range filters {
			shouldKeep, err := f.ShouldKeep(ctx, urlStr)
			if err != nil {
				return nil, fmt.Errorf("filter error for URL %s: %w", urlStr, err)
			}
			if !shouldKeep {
				keep = false
				break
			}
		}
		if keep {
			filtered = append(filtered, urlStr)
		}
	}

	return filtered, nil
}

// BlankFilter drops empty or whitespace-only URLs. Optional form fields such
// as a competitor's shop page arrive this way.
type BlankFilter struct{}

// NewBlankFilter creates a new blank URL filter
func NewBlankFilter() *BlankFilter {
	return &BlankFilter{}
}

// ShouldKeep returns false for blank URLs
func (f *BlankFilter) ShouldKeep(_ context.Context, urlStr string) (bool, error) {
	return strings.TrimSpace(urlStr) != "", nil
}

// HTTPURLFilter rejects anything that is not an absolute http or https URL.
type HTTPURLFilter struct{}

// NewHTTPURLFilter creates a new absolute URL filter
func NewHTTPURLFilter() *HTTPURLFilter {
	return &HTTPURLFilter{}
}

// ShouldKeep returns ErrInvalidURL for relative, hostless or non-http URLs
func (f *HTTPURLFilter) ShouldKeep(_ context.Context, urlStr string) (bool, error) {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false, fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if parsed.Host == "" {
		return false, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return true, nil
}

// SeenFilter drops URLs already kept by an earlier call on the same filter.
type SeenFilter struct {
	seen map[string]bool
}

// NewSeenFilter creates a filter pre-loaded with known URLs
func NewSeenFilter(known ...string) *SeenFilter {
	f := &SeenFilter{seen: make(map[string]bool, len(known))}
	for _, u := range known {
		f.seen[u] = true
	}
	return f
}

// ShouldKeep returns false if URL is already in the seen set, and records it otherwise
func (f *SeenFilter) ShouldKeep(_ context.Context, urlStr string) (bool, error) {
	if f.seen[urlStr] {
		return false, nil
	}
	f.seen[urlStr] = true
	return true, nil
}
