package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/supabase-community/postgrest-go"
	supabase "github.com/supabase-community/supabase-go"

	"sneakpeak/pkg/domain"
)

const projectTreeColumns = "id,name,competitors(id,name,project_id,targets(id,url,page_type,competitor_id))"

// SupabaseRESTStore implements Store through the PostgREST API when only the
// project URL and key are configured.
type SupabaseRESTStore struct {
	client  *supabase.Client
	now     func() time.Time
	timeout time.Duration
}

// DefaultRESTTimeout bounds a single PostgREST request.
const DefaultRESTTimeout = 30 * time.Second

// NewSupabaseRESTStore wraps an initialised SDK client.
func NewSupabaseRESTStore(client *supabase.Client) *SupabaseRESTStore {
	return &SupabaseRESTStore{client: client, now: utcNow, timeout: DefaultRESTTimeout}
}

// SetTimeout overrides the per-request bound. Zero leaves ctx as the only bound.
func (s *SupabaseRESTStore) SetTimeout(d time.Duration) {
	s.timeout = d
}

// exec runs one SDK call and returns early once ctx or the request timeout
// ends. postgrest-go has no context-aware execute, so an abandoned request
// finishes in the background and its result is discarded.
func (s *SupabaseRESTStore) exec(ctx context.Context, call func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- call()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListTargets loads the project tree with one nested select.
func (s *SupabaseRESTStore) ListTargets(ctx context.Context) ([]domain.TargetRef, error) {
	var projects []domain.Project
	err := s.exec(ctx, func() error {
		_, err := s.client.From("projects").
			Select(projectTreeColumns, "", false).
			Order("name", &postgrest.OrderOpts{Ascending: true}).
			ExecuteTo(&projects)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	sortProjectTree(projects)
	return domain.Flatten(projects), nil
}

// GetLatestSuccessfulSnapshot returns (nil, nil) when no successful snapshot exists.
func (s *SupabaseRESTStore) GetLatestSuccessfulSnapshot(ctx context.Context, targetID string) (*domain.Snapshot, error) {
	var snaps []domain.Snapshot
	err := s.exec(ctx, func() error {
		_, err := s.client.From("snapshots").
			Select("id,target_id,content,status,created_at", "", false).
			Eq("target_id", targetID).
			Eq("status", string(domain.SnapshotSuccess)).
			Order("created_at", &postgrest.OrderOpts{Ascending: false}).
			Limit(1, "").
			ExecuteTo(&snaps)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("latest snapshot for target %s: %w", targetID, err)
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	snap := snaps[0]
	snap.CreatedAt = snap.CreatedAt.UTC()
	return &snap, nil
}

// InsertSnapshot appends a snapshot row.
func (s *SupabaseRESTStore) InsertSnapshot(ctx context.Context, targetID string, content *string, status domain.SnapshotStatus) (*domain.Snapshot, error) {
	snap := newSnapshot(targetID, content, status, s.now())
	err := s.exec(ctx, func() error {
		_, _, err := s.client.From("snapshots").Insert(snap, false, "", "minimal", "").Execute()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert snapshot for target %s: %w", targetID, err)
	}
	return snap, nil
}

// InsertChange appends a change row.
func (s *SupabaseRESTStore) InsertChange(ctx context.Context, snapshotID, diffText string) (*domain.Change, error) {
	change := &domain.Change{ID: newID(), SnapshotID: snapshotID, DiffContent: diffText}
	err := s.exec(ctx, func() error {
		_, _, err := s.client.From("changes").Insert(change, false, "", "minimal", "").Execute()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert change for snapshot %s: %w", snapshotID, err)
	}
	return change, nil
}

// SeedProjects upserts the project tree table by table.
func (s *SupabaseRESTStore) SeedProjects(ctx context.Context, projects []domain.Project) error {
	assignIDs(projects)

	var (
		competitors []domain.Competitor
		targets     []domain.Target
	)
	rows := make([]domain.Project, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, domain.Project{ID: p.ID, Name: p.Name})
		for _, c := range p.Competitors {
			competitors = append(competitors, domain.Competitor{ID: c.ID, Name: c.Name, ProjectID: c.ProjectID})
			targets = append(targets, c.Targets...)
		}
	}

	for _, batch := range []struct {
		table string
		rows  any
		n     int
	}{
		{"projects", rows, len(rows)},
		{"competitors", competitors, len(competitors)},
		{"targets", targets, len(targets)},
	} {
		if batch.n == 0 {
			continue
		}
		err := s.exec(ctx, func() error {
			_, _, err := s.client.From(batch.table).Insert(batch.rows, true, "id", "minimal", "").Execute()
			return err
		})
		if err != nil {
			return fmt.Errorf("seed %s: %w", batch.table, err)
		}
	}
	return nil
}

// Close is a no-op; the REST client holds no connections.
func (s *SupabaseRESTStore) Close() error {
	return nil
}

func sortProjectTree(projects []domain.Project) {
	sort.SliceStable(projects, func(i, j int) bool {
		if projects[i].Name != projects[j].Name {
			return projects[i].Name < projects[j].Name
		}
		return projects[i].ID < projects[j].ID
	})
	for pi := range projects {
		comps := projects[pi].Competitors
		sort.SliceStable(comps, func(i, j int) bool {
			if comps[i].Name != comps[j].Name {
				return comps[i].Name < comps[j].Name
			}
			return comps[i].ID < comps[j].ID
		})
		for ci := range comps {
			targets := comps[ci].Targets
			sort.SliceStable(targets, func(i, j int) bool {
				if targets[i].URL != targets[j].URL {
					return targets[i].URL < targets[j].URL
				}
				return targets[i].ID < targets[j].ID
			})
		}
	}
}
