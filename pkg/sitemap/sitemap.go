// Package sitemap lists page URLs from XML sitemaps and sitemap indexes.
package sitemap

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sneakpeak/pkg/httpclient"
)

// maxIndexDepth bounds how many sitemap index levels are followed.
const maxIndexDepth = 2

// Entry represents a single URL entry from a sitemap
type Entry struct {
	Location   string // URL of the page
	LastMod    string // Last modification date (optional)
	Priority   string // Priority value (optional)
	ChangeFreq string // Change frequency (optional)
}

// urlSet represents a regular sitemap structure
type urlSet struct {
	XMLName xml.Name   `xml:"urlset"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Location   string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	Priority   string `xml:"priority,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
}

// sitemapIndex represents a sitemap index structure
type sitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []sitemapRef `xml:"sitemap"`
}

type sitemapRef struct {
	Location string `xml:"loc"`
}

// Parser handles sitemap parsing operations
type Parser struct {
	client *httpclient.HTTPClient
}

// NewParser creates a parser. A nil client uses a browser identity with a
// 30s timeout.
func NewParser(client *httpclient.HTTPClient) *Parser {
	if client == nil {
		client = httpclient.NewClient(httpclient.BrowserClient, 30*time.Second)
	}
	return &Parser{client: client}
}

// ParseFromURL fetches a sitemap and returns its entries. Sitemap indexes
// are followed; a child sitemap that fails is skipped as long as at least one
// child succeeds.
func (p *Parser) ParseFromURL(ctx context.Context, sitemapURL string) ([]Entry, error) {
	return p.parse(ctx, sitemapURL, 0)
}

func (p *Parser) parse(ctx context.Context, sitemapURL string, depth int) ([]Entry, error) {
	resp, err := p.client.Get(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sitemap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// Read first few bytes to detect sitemap type
	peekBuffer := make([]byte, 512)
	n, err := io.ReadFull(resp.Body, peekBuffer)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read sitemap: %w", err)
	}

	head := string(peekBuffer[:n])
	reader := io.MultiReader(strings.NewReader(head), resp.Body)

	if !strings.Contains(head, "sitemapindex") {
		return parseSitemap(reader)
	}

	if depth >= maxIndexDepth {
		return nil, fmt.Errorf("sitemap index nested deeper than %d levels", maxIndexDepth)
	}
	sitemapURLs, err := parseSitemapIndex(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sitemap index: %w", err)
	}
	if len(sitemapURLs) == 0 {
		return nil, fmt.Errorf("sitemap index contained no sitemap URLs")
	}

	var (
		allEntries []Entry
		errs       []error
	)
	for _, child := range sitemapURLs {
		entries, err := p.parse(ctx, child, depth+1)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", child, err))
			continue
		}
		allEntries = append(allEntries, entries...)
	}
	if len(allEntries) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return allEntries, nil
}

func parseSitemapIndex(reader io.Reader) ([]string, error) {
	var index sitemapIndex
	if err := xml.NewDecoder(reader).Decode(&index); err != nil {
		return nil, fmt.Errorf("failed to decode sitemap index XML: %w", err)
	}

	urls := make([]string, 0, len(index.Sitemaps))
	for _, ref := range index.Sitemaps {
		if loc := strings.TrimSpace(ref.Location); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}

func parseSitemap(reader io.Reader) ([]Entry, error) {
	var set urlSet
	if err := xml.NewDecoder(reader).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode sitemap XML: %w", err)
	}

	entries := make([]Entry, 0, len(set.URLs))
	for _, u := range set.URLs {
		loc := strings.TrimSpace(u.Location)
		if loc == "" {
			continue
		}
		entries = append(entries, Entry{
			Location:   loc,
			LastMod:    u.LastMod,
			Priority:   u.Priority,
			ChangeFreq: u.ChangeFreq,
		})
	}
	return entries, nil
}
