package db

import (
	"time"

	"github.com/google/uuid"

	"sneakpeak/pkg/domain"
)

func newID() string {
	return uuid.NewString()
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// assignIDs fills missing project, competitor and target IDs in place and
// links children to their parents.
func assignIDs(projects []domain.Project) {
	for i := range projects {
		p := &projects[i]
		if p.ID == "" {
			p.ID = newID()
		}
		for j := range p.Competitors {
			c := &p.Competitors[j]
			if c.ID == "" {
				c.ID = newID()
			}
			c.ProjectID = p.ID
			for k := range c.Targets {
				t := &c.Targets[k]
				if t.ID == "" {
					t.ID = newID()
				}
				t.CompetitorID = c.ID
			}
		}
	}
}

func newSnapshot(targetID string, content *string, status domain.SnapshotStatus, at time.Time) *domain.Snapshot {
	if status == domain.SnapshotFailed {
		content = nil
	}
	return &domain.Snapshot{
		ID:        newID(),
		TargetID:  targetID,
		Content:   content,
		Status:    status,
		CreatedAt: at.UTC(),
	}
}
