package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"sneakpeak/pkg/domain"
	"sneakpeak/pkg/report"
)

// RenderedMessage is a digest ready to send.
type RenderedMessage struct {
	Subject string
	Text    string
	HTML    string
}

type digestView struct {
	Title    string
	Projects []projectView
}

type projectView struct {
	Name        string
	Competitors []competitorView
}

type competitorView struct {
	Name  string
	Pages []pageView
}

type pageView struct {
	PageType domain.PageType
	URL      string
	Lines    []string
}

// HTMLEmailRenderer renders the digest as HTML with a plain text fallback.
type HTMLEmailRenderer struct {
	tmpl *template.Template
}

// NewHTMLEmailRenderer creates a renderer with the digest template.
func NewHTMLEmailRenderer() *HTMLEmailRenderer {
	t := template.Must(template.New("digest").Parse(digestHTMLTemplate))
	return &HTMLEmailRenderer{tmpl: t}
}

// Render groups entries by project and competitor and renders both bodies.
func (r *HTMLEmailRenderer) Render(entries []domain.ReportEntry) (*RenderedMessage, error) {
	view := buildView(entries)

	var htmlBuf bytes.Buffer
	if err := r.tmpl.Execute(&htmlBuf, view); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &RenderedMessage{
		Subject: DigestSubject,
		Text:    renderPlainText(view),
		HTML:    htmlBuf.String(),
	}, nil
}

func buildView(entries []domain.ReportEntry) digestView {
	view := digestView{Title: DigestSubject}
	for _, pg := range report.Group(entries) {
		pv := projectView{Name: pg.Name}
		for _, cg := range pg.Competitors {
			cv := competitorView{Name: cg.Name}
			for _, e := range cg.Entries {
				cv.Pages = append(cv.Pages, pageView{
					PageType: e.PageType,
					URL:      e.URL,
					Lines:    strings.Split(e.DiffContent, "\n"),
				})
			}
			pv.Competitors = append(pv.Competitors, cv)
		}
		view.Projects = append(view.Projects, pv)
	}
	return view
}

func renderPlainText(view digestView) string {
	var sb strings.Builder

	sb.WriteString(view.Title + "\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n")

	for _, p := range view.Projects {
		sb.WriteString(fmt.Sprintf("\nProject: %s\n", p.Name))
		for _, c := range p.Competitors {
			sb.WriteString(fmt.Sprintf("  Competitor: %s\n", c.Name))
			for _, page := range c.Pages {
				sb.WriteString(fmt.Sprintf("    %s (%s):\n", page.PageType, page.URL))
				for _, line := range page.Lines {
					sb.WriteString("      " + line + "\n")
				}
			}
		}
	}

	return sb.String()
}
