package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"sneakpeak/pkg/domain"
)

// Driver names understood by NewSQLStore.
const (
	DriverPgx    = "pgx"
	DriverSQLite = "sqlite"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

func dialectFor(driverName string) dialect {
	switch driverName {
	case DriverSQLite, "sqlite3":
		return dialectSQLite
	default:
		return dialectPostgres
	}
}

// sqliteTimeLayout is fixed-width so lexical order equals time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLStore implements Store over any database/sql backend. Queries are
// written with ? placeholders and rebound for the driver.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
	now     func() time.Time
}

// SQLStoreOption configures a SQLStore.
type SQLStoreOption func(*SQLStore)

// WithClock overrides the clock used for snapshot timestamps.
func WithClock(now func() time.Time) SQLStoreOption {
	return func(s *SQLStore) {
		s.now = now
	}
}

// NewSQLStore wraps the provider's handle. driverName picks the placeholder
// style and timestamp encoding.
func NewSQLStore(provider DBProvider, driverName string, opts ...SQLStoreOption) (*SQLStore, error) {
	if provider == nil || provider.DB() == nil {
		return nil, ErrNotConnected
	}
	s := &SQLStore{
		db:      sqlx.NewDb(provider.DB(), driverName),
		dialect: dialectFor(driverName),
		now:     utcNow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type targetRow struct {
	ProjectID      string `db:"project_id"`
	ProjectName    string `db:"project_name"`
	CompetitorID   string `db:"competitor_id"`
	CompetitorName string `db:"competitor_name"`
	TargetID       string `db:"target_id"`
	URL            string `db:"url"`
	PageType       string `db:"page_type"`
}

const listTargetsQuery = `
SELECT p.id AS project_id, p.name AS project_name,
       c.id AS competitor_id, c.name AS competitor_name,
       t.id AS target_id, t.url, t.page_type
FROM projects p
JOIN competitors c ON c.project_id = p.id
JOIN targets t ON t.competitor_id = c.id
ORDER BY p.name, p.id, c.name, c.id, t.url, t.id`

// ListTargets returns every target joined with its competitor and project.
func (s *SQLStore) ListTargets(ctx context.Context) ([]domain.TargetRef, error) {
	var rows []targetRow
	if err := s.db.SelectContext(ctx, &rows, listTargetsQuery); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	refs := make([]domain.TargetRef, 0, len(rows))
	for _, r := range rows {
		refs = append(refs, domain.TargetRef{
			ProjectID:      r.ProjectID,
			ProjectName:    r.ProjectName,
			CompetitorID:   r.CompetitorID,
			CompetitorName: r.CompetitorName,
			Target: domain.Target{
				ID:           r.TargetID,
				URL:          r.URL,
				PageType:     domain.PageType(r.PageType),
				CompetitorID: r.CompetitorID,
			},
		})
	}
	return refs, nil
}

type snapshotRow struct {
	ID        string         `db:"id"`
	TargetID  string         `db:"target_id"`
	Content   sql.NullString `db:"content"`
	Status    string         `db:"status"`
	CreatedAt dbTime         `db:"created_at"`
}

func (r snapshotRow) toDomain() *domain.Snapshot {
	snap := &domain.Snapshot{
		ID:        r.ID,
		TargetID:  r.TargetID,
		Status:    domain.SnapshotStatus(r.Status),
		CreatedAt: time.Time(r.CreatedAt),
	}
	if r.Content.Valid {
		content := r.Content.String
		snap.Content = &content
	}
	return snap
}

const latestSnapshotQuery = `
SELECT id, target_id, content, status, created_at
FROM snapshots
WHERE target_id = ? AND status = ?
ORDER BY created_at DESC
LIMIT 1`

// GetLatestSuccessfulSnapshot returns (nil, nil) when the target has no
// successful snapshot.
func (s *SQLStore) GetLatestSuccessfulSnapshot(ctx context.Context, targetID string) (*domain.Snapshot, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(latestSnapshotQuery), targetID, string(domain.SnapshotSuccess))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot for target %s: %w", targetID, err)
	}
	return row.toDomain(), nil
}

const insertSnapshotQuery = `
INSERT INTO snapshots (id, target_id, content, status, created_at)
VALUES (?, ?, ?, ?, ?)`

// InsertSnapshot appends a snapshot with an application-assigned ID and timestamp.
func (s *SQLStore) InsertSnapshot(ctx context.Context, targetID string, content *string, status domain.SnapshotStatus) (*domain.Snapshot, error) {
	snap := newSnapshot(targetID, content, status, s.now())

	var contentArg any
	if snap.Content != nil {
		contentArg = *snap.Content
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(insertSnapshotQuery),
		snap.ID, snap.TargetID, contentArg, string(snap.Status), s.timeArg(snap.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert snapshot for target %s: %w", targetID, err)
	}
	return snap, nil
}

const insertChangeQuery = `
INSERT INTO changes (id, snapshot_id, diff_content)
VALUES (?, ?, ?)`

// InsertChange records a change against a snapshot.
func (s *SQLStore) InsertChange(ctx context.Context, snapshotID, diffText string) (*domain.Change, error) {
	change := &domain.Change{ID: newID(), SnapshotID: snapshotID, DiffContent: diffText}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(insertChangeQuery), change.ID, change.SnapshotID, change.DiffContent); err != nil {
		return nil, fmt.Errorf("insert change for snapshot %s: %w", snapshotID, err)
	}
	return change, nil
}

// SeedProjects inserts projects, competitors and targets in one transaction.
// Rows whose ID already exists are left untouched.
func (s *SQLStore) SeedProjects(ctx context.Context, projects []domain.Project) error {
	assignIDs(projects)

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range projects {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO projects (id, name) VALUES (?, ?) ON CONFLICT (id) DO NOTHING`), p.ID, p.Name); err != nil {
			return fmt.Errorf("insert project %q: %w", p.Name, err)
		}
		for _, c := range p.Competitors {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO competitors (id, name, project_id) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`), c.ID, c.Name, c.ProjectID); err != nil {
				return fmt.Errorf("insert competitor %q: %w", c.Name, err)
			}
			for _, t := range c.Targets {
				if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO targets (id, url, page_type, competitor_id) VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`), t.ID, t.URL, string(t.PageType), t.CompetitorID); err != nil {
					return fmt.Errorf("insert target %q: %w", t.URL, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLStore) timeArg(t time.Time) any {
	if s.dialect == dialectSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// dbTime scans timestamps stored natively or as text.
type dbTime time.Time

var dbTimeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*t = dbTime(v.UTC())
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		*t = dbTime(time.Time{})
		return nil
	default:
		return fmt.Errorf("scan time: unsupported type %T", src)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range dbTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = dbTime(parsed.UTC())
			return nil
		}
	}
	return fmt.Errorf("scan time: unrecognised format %q", s)
}
