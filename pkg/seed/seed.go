// Package seed reads the YAML file that defines projects, competitors and
// their monitored pages.
//
//	projects:
//	  - name: Running shoes
//	    competitors:
//	      - name: Acme
//	        homepage: https://acme.example
//	        shop: https://acme.example/shop
//	        pdps:
//	          - https://acme.example/p/trail-2
//	        pdp_sitemap:
//	          url: https://acme.example/sitemap.xml
//	          match: /p/
//	          limit: 20
//
// IDs may be given explicitly. Missing IDs are derived from names and URLs,
// so seeding the same file twice yields the same rows.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"sneakpeak/pkg/domain"
	"sneakpeak/pkg/filter"
	"sneakpeak/pkg/sitemap"
)

// ErrInvalid wraps every validation failure of a seed file.
var ErrInvalid = errors.New("invalid seed file")

// namespace scopes derived IDs to sneakpeak seed files.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://sneakpeak.local/seed"))

// File is the top-level document.
type File struct {
	Projects []Project `yaml:"projects"`
}

// Project is one project entry.
type Project struct {
	ID          string       `yaml:"id,omitempty"`
	Name        string       `yaml:"name"`
	Competitors []Competitor `yaml:"competitors"`
}

// Competitor is one competitor entry. Homepage and Shop are optional.
type Competitor struct {
	ID       string   `yaml:"id,omitempty"`
	Name     string   `yaml:"name"`
	Homepage string   `yaml:"homepage,omitempty"`
	Shop     string   `yaml:"shop,omitempty"`
	PDPs     []string `yaml:"pdps,omitempty"`
	// PDPSitemap adds product pages listed in a sitemap.
	PDPSitemap *SitemapSource `yaml:"pdp_sitemap,omitempty"`
}

// SitemapSource selects product pages from a sitemap. Match is a regular
// expression applied to each URL; Limit caps the number of pages kept.
type SitemapSource struct {
	URL   string `yaml:"url"`
	Match string `yaml:"match,omitempty"`
	Limit int    `yaml:"limit,omitempty"`
}

// SitemapLister lists the URLs of a sitemap.
type SitemapLister interface {
	ParseFromURL(ctx context.Context, sitemapURL string) ([]sitemap.Entry, error)
}

// BuildOption configures Build.
type BuildOption func(*builder)

// WithSitemapLister enables pdp_sitemap entries.
func WithSitemapLister(l SitemapLister) BuildOption {
	return func(b *builder) {
		b.sitemaps = l
	}
}

type builder struct {
	sitemaps SitemapLister
}

// Load reads and parses the seed file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file File
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return &file, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return &file, nil
}

// Build validates the file and converts it to the domain tree. Blank
// homepage, shop and PDP entries are skipped; any other URL must be an
// absolute http(s) URL. A URL listed twice for the same competitor is kept
// once.
func (f *File) Build(ctx context.Context, opts ...BuildOption) ([]domain.Project, error) {
	b := &builder{}
	for _, opt := range opts {
		opt(b)
	}

	projects := make([]domain.Project, 0, len(f.Projects))
	for i, p := range f.Projects {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: project %d: name is required", ErrInvalid, i+1)
		}
		project := domain.Project{ID: p.ID, Name: name}
		if project.ID == "" {
			project.ID = stableID("project", name)
		}

		for j, c := range p.Competitors {
			competitor, err := b.competitor(ctx, project.ID, c)
			if err != nil {
				return nil, fmt.Errorf("%w: project %q competitor %d: %w", ErrInvalid, name, j+1, err)
			}
			project.Competitors = append(project.Competitors, competitor)
		}
		projects = append(projects, project)
	}
	return projects, nil
}

func (b *builder) competitor(ctx context.Context, projectID string, c Competitor) (domain.Competitor, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return domain.Competitor{}, errors.New("name is required")
	}
	competitor := domain.Competitor{ID: c.ID, Name: name, ProjectID: projectID}
	if competitor.ID == "" {
		competitor.ID = stableID("competitor", projectID, name)
	}

	pdps := c.PDPs
	if c.PDPSitemap != nil {
		discovered, err := b.sitemapPDPs(ctx, *c.PDPSitemap)
		if err != nil {
			return domain.Competitor{}, fmt.Errorf("pdp_sitemap: %w", err)
		}
		pdps = append(append([]string(nil), pdps...), discovered...)
	}

	seen := filter.NewSeenFilter()
	pages := []struct {
		pageType domain.PageType
		urls     []string
	}{
		{domain.PageTypeHomepage, []string{c.Homepage}},
		{domain.PageTypeShop, []string{c.Shop}},
		{domain.PageTypePDP, pdps},
	}
	for _, page := range pages {
		urls, err := filter.FilterURLs(ctx, page.urls, filter.NewBlankFilter(), filter.NewHTTPURLFilter(), seen)
		if err != nil {
			return domain.Competitor{}, fmt.Errorf("%s: %w", page.pageType, err)
		}
		for _, u := range urls {
			u = strings.TrimSpace(u)
			competitor.Targets = append(competitor.Targets, domain.Target{
				ID:           stableID("target", competitor.ID, string(page.pageType), u),
				URL:          u,
				PageType:     page.pageType,
				CompetitorID: competitor.ID,
			})
		}
	}
	return competitor, nil
}

func (b *builder) sitemapPDPs(ctx context.Context, src SitemapSource) ([]string, error) {
	if b.sitemaps == nil {
		return nil, errors.New("sitemap discovery is not enabled")
	}
	if strings.TrimSpace(src.URL) == "" {
		return nil, errors.New("url is required")
	}
	var match *regexp.Regexp
	if src.Match != "" {
		re, err := regexp.Compile(src.Match)
		if err != nil {
			return nil, fmt.Errorf("match: %w", err)
		}
		match = re
	}

	entries, err := b.sitemaps.ParseFromURL(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	// Non-http locations are dropped rather than failing the whole seed.
	valid := filter.NewHTTPURLFilter()
	var urls []string
	for _, e := range entries {
		if match != nil && !match.MatchString(e.Location) {
			continue
		}
		if ok, _ := valid.ShouldKeep(ctx, e.Location); !ok {
			continue
		}
		urls = append(urls, e.Location)
		if src.Limit > 0 && len(urls) == src.Limit {
			break
		}
	}
	return urls, nil
}

func stableID(parts ...string) string {
	return uuid.NewSHA1(namespace, []byte(strings.Join(parts, "\x00"))).String()
}
