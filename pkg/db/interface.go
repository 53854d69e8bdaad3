package db

import (
	"context"
	"database/sql"
	"errors"

	"sneakpeak/pkg/domain"
)

// ErrNotConnected is returned when a store is built over a client whose
// connection has not been established.
var ErrNotConnected = errors.New("database not connected")

// DBProvider is an interface for database clients that provide access to a sql.DB handle.
// This allows PostgresClient, SupabaseClient and SQLiteClient to back the same SQLStore.
type DBProvider interface {
	DB() *sql.DB
}

// TargetRepository enumerates the monitored pages.
type TargetRepository interface {
	// ListTargets returns every target, ordered Project → Competitor → Target.
	ListTargets(ctx context.Context) ([]domain.TargetRef, error)
}

// SnapshotRepository reads and appends to the snapshot log.
type SnapshotRepository interface {
	// GetLatestSuccessfulSnapshot returns the most recent Success snapshot for
	// the target, or (nil, nil) when there is none.
	GetLatestSuccessfulSnapshot(ctx context.Context, targetID string) (*domain.Snapshot, error)
	// InsertSnapshot appends a snapshot. content must be nil for a Failed snapshot.
	InsertSnapshot(ctx context.Context, targetID string, content *string, status domain.SnapshotStatus) (*domain.Snapshot, error)
}

// ChangeRepository records detected changes.
type ChangeRepository interface {
	InsertChange(ctx context.Context, snapshotID, diffText string) (*domain.Change, error)
}

// Store is the full persistence surface used by the pipeline.
type Store interface {
	TargetRepository
	SnapshotRepository
	ChangeRepository
	Close() error
}

// Seeder loads a target set into a store.
type Seeder interface {
	SeedProjects(ctx context.Context, projects []domain.Project) error
}

// Migrator creates the schema on backends that need one.
type Migrator interface {
	Migrate(ctx context.Context) error
}
