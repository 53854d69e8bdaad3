package domain

// PageType classifies a monitored page. The competitor form writes one of the
// constants below, but values read from storage are preserved as-is.
type PageType string

const (
	PageTypeHomepage PageType = "Homepage"
	PageTypeShop     PageType = "Shop"
	PageTypePDP      PageType = "PDP"
)

// Project groups the competitors a user tracks
type Project struct {
	ID          string       `bson:"_id" json:"id"`
	Name        string       `bson:"name" json:"name"`
	Competitors []Competitor `bson:"-" json:"competitors,omitempty"`
}

// Competitor belongs to a Project and owns the monitored Targets
type Competitor struct {
	ID        string   `bson:"_id" json:"id"`
	Name      string   `bson:"name" json:"name"`
	ProjectID string   `bson:"project_id" json:"project_id"`
	Targets   []Target `bson:"-" json:"targets,omitempty"`
}

// Target is a single monitored URL
type Target struct {
	ID           string   `bson:"_id" json:"id"`
	URL          string   `bson:"url" json:"url"`
	PageType     PageType `bson:"page_type" json:"page_type"`
	CompetitorID string   `bson:"competitor_id" json:"competitor_id"`
}

// TargetRef is one row of the flattened Project → Competitor → Target
// enumeration. It carries the organisational identity needed to build a
// ReportEntry without another lookup.
type TargetRef struct {
	ProjectID      string
	ProjectName    string
	CompetitorID   string
	CompetitorName string
	Target         Target
}

// Flatten walks projects depth-first and returns one TargetRef per target,
// preserving the order of the input slices.
func Flatten(projects []Project) []TargetRef {
	var refs []TargetRef
	for _, p := range projects {
		for _, c := range p.Competitors {
			for _, t := range c.Targets {
				if t.CompetitorID == "" {
					t.CompetitorID = c.ID
				}
				refs = append(refs, TargetRef{
					ProjectID:      p.ID,
					ProjectName:    p.Name,
					CompetitorID:   c.ID,
					CompetitorName: c.Name,
					Target:         t,
				})
			}
		}
	}
	return refs
}
