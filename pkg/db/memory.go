package db

import (
	"context"
	"sync"
	"time"

	"sneakpeak/pkg/domain"
)

// MemoryStore is a mutex-guarded in-process Store. It backs dry runs and tests.
type MemoryStore struct {
	mu        sync.Mutex
	projects  []domain.Project
	snapshots []domain.Snapshot
	changes   []domain.Change
	now       func() time.Time

	// Failure hooks. A non-nil hook's error is returned instead of performing
	// the operation.
	ListTargetsErr    error
	LatestSnapshotErr func(targetID string) error
	InsertSnapshotErr func(targetID string, status domain.SnapshotStatus) error
	InsertChangeErr   func(snapshotID string) error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: utcNow}
}

// SetClock overrides the clock used for snapshot timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SeedProjects replaces projects with matching IDs and appends the rest.
func (m *MemoryStore) SeedProjects(_ context.Context, projects []domain.Project) error {
	assignIDs(projects)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range projects {
		replaced := false
		for i := range m.projects {
			if m.projects[i].ID == p.ID {
				m.projects[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			m.projects = append(m.projects, p)
		}
	}
	return nil
}

// ListTargets returns targets ordered by project name, competitor name and
// URL, like the SQL stores.
func (m *MemoryStore) ListTargets(_ context.Context) ([]domain.TargetRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListTargetsErr != nil {
		return nil, m.ListTargetsErr
	}

	projects := make([]domain.Project, len(m.projects))
	for i, p := range m.projects {
		comps := make([]domain.Competitor, len(p.Competitors))
		for j, c := range p.Competitors {
			c.Targets = append([]domain.Target(nil), c.Targets...)
			comps[j] = c
		}
		p.Competitors = comps
		projects[i] = p
	}
	sortProjectTree(projects)
	return domain.Flatten(projects), nil
}

// GetLatestSuccessfulSnapshot returns the newest Success snapshot, ties going
// to the later insert.
func (m *MemoryStore) GetLatestSuccessfulSnapshot(_ context.Context, targetID string) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LatestSnapshotErr != nil {
		if err := m.LatestSnapshotErr(targetID); err != nil {
			return nil, err
		}
	}

	var latest *domain.Snapshot
	for i := range m.snapshots {
		s := &m.snapshots[i]
		if s.TargetID != targetID || s.Status != domain.SnapshotSuccess {
			continue
		}
		if latest == nil || !s.CreatedAt.Before(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

// InsertSnapshot appends a snapshot.
func (m *MemoryStore) InsertSnapshot(_ context.Context, targetID string, content *string, status domain.SnapshotStatus) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertSnapshotErr != nil {
		if err := m.InsertSnapshotErr(targetID, status); err != nil {
			return nil, err
		}
	}

	var stored *string
	if content != nil {
		c := *content
		stored = &c
	}
	snap := newSnapshot(targetID, stored, status, m.now())
	m.snapshots = append(m.snapshots, *snap)
	return snap, nil
}

// InsertChange appends a change.
func (m *MemoryStore) InsertChange(_ context.Context, snapshotID, diffText string) (*domain.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertChangeErr != nil {
		if err := m.InsertChangeErr(snapshotID); err != nil {
			return nil, err
		}
	}

	change := domain.Change{ID: newID(), SnapshotID: snapshotID, DiffContent: diffText}
	m.changes = append(m.changes, change)
	return &change, nil
}

// Snapshots returns the snapshots recorded for a target in insertion order.
func (m *MemoryStore) Snapshots(targetID string) []domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Snapshot
	for _, s := range m.snapshots {
		if s.TargetID == targetID {
			out = append(out, s)
		}
	}
	return out
}

// Changes returns every recorded change in insertion order.
func (m *MemoryStore) Changes() []domain.Change {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Change(nil), m.changes...)
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
