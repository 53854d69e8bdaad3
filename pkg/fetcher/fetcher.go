// Package fetcher retrieves a target page and normalises it to plain text.
//
// Fetch performs exactly one GET per call. Retrying is left to the caller
// (in practice: the next scheduled detection cycle).
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sneakpeak/pkg/content"
	"sneakpeak/pkg/httpclient"
)

// Config configures the fetcher.
type Config struct {
	// Timeout bounds the whole request including the body read. Default: 30s.
	Timeout time.Duration
	// MaxBytes caps the body read. Default: 10MB.
	MaxBytes int64
	// Mode selects body or readability text extraction.
	Mode content.Mode
	// ClientType selects the request identity. Default: httpclient.BrowserClient.
	ClientType httpclient.ClientType
	// Transport overrides the HTTP transport (nil uses the default).
	Transport http.RoundTripper
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10 * 1024 * 1024
	}
	if c.Mode == "" {
		c.Mode = content.ModeBody
	}
	if c.ClientType == "" {
		c.ClientType = httpclient.BrowserClient
	}
}

// Page is the normalised result of a successful fetch.
type Page struct {
	URL        string
	StatusCode int
	Text       string
	FetchedAt  time.Time
}

// FetchError is the only error type Fetch returns. Reason is meant for
// humans: the HTTP status text for bad responses, or the transport error.
type FetchError struct {
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the fetch exceeded its deadline.
func (e *FetchError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Fetcher performs single HTTP GETs with a browser identity.
type Fetcher struct {
	client *httpclient.HTTPClient
	config Config
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		// The per-request context carries the deadline; no client timeout on top.
		client: httpclient.NewClientWithTransport(cfg.ClientType, 0, cfg.Transport),
		config: cfg,
	}
}

// Fetch retrieves url and returns its visible text. Any failure (bad URL,
// transport error, redirect loop, timeout, non-2xx status, unreadable body, panic while
// extracting) comes back as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (page *Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			page = nil
			err = &FetchError{URL: url, Reason: fmt.Sprintf("panic while fetching: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	resp, err := f.client.Get(ctx, url)
	if err != nil {
		return nil, transportError(ctx, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Reason:     "Failed to fetch URL: " + statusText(resp),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes))
	if err != nil {
		return nil, transportError(ctx, url, fmt.Errorf("read body: %w", err))
	}

	text, err := content.Normalize(body, resp.Header.Get("Content-Type"), f.config.Mode)
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, Reason: err.Error(), Err: err}
	}

	return &Page{
		URL:        url,
		StatusCode: resp.StatusCode,
		Text:       text,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

func transportError(ctx context.Context, url string, err error) *FetchError {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return &FetchError{URL: url, Reason: err.Error(), Err: err}
}

// statusText prefers the server's reason phrase, falling back to the
// standard text for the code.
func statusText(resp *http.Response) string {
	code := fmt.Sprintf("%d", resp.StatusCode)
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, code)); text != "" {
		return text
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return code
}
