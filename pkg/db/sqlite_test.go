package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sneakpeak/pkg/domain"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	client := NewSQLiteClient(SQLiteConfig{Path: MemoryDSN})
	require.NoError(t, client.Connect(ctx))
	t.Cleanup(func() { _ = client.Close() })

	store, err := client.Store(WithClock(stepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestSQLiteClient_RequiresPath(t *testing.T) {
	err := NewSQLiteClient(SQLiteConfig{}).Connect(context.Background())
	assert.Error(t, err)

	_, err = NewSQLiteClient(SQLiteConfig{Path: MemoryDSN}).Store()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	store := newSQLiteStore(t)
	assert.NoError(t, store.Migrate(context.Background()))
}

func TestSQLiteStore_ListTargetsOrder(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.SeedProjects(ctx, sampleProjects()))

	refs, err := store.ListTargets(ctx)
	require.NoError(t, err)

	var got []string
	for _, r := range refs {
		got = append(got, r.ProjectName+"/"+r.CompetitorName+"/"+r.Target.URL)
	}
	assert.Equal(t, []string{
		"Alpha/Acme/https://acme.example/",
		"Alpha/Acme/https://acme.example/shop",
		"Beta/Zed Shop/https://zed.example/",
	}, got)
	assert.Equal(t, domain.PageTypeShop, refs[1].Target.PageType)
	assert.Equal(t, "c-acme", refs[1].Target.CompetitorID)
}

func TestSQLiteStore_SeedTwiceDoesNotDuplicate(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.SeedProjects(ctx, sampleProjects()))
	require.NoError(t, store.SeedProjects(ctx, sampleProjects()))

	refs, err := store.ListTargets(ctx)
	require.NoError(t, err)
	assert.Len(t, refs, 3)
}

func TestSQLiteStore_LatestSuccessfulSnapshot(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.SeedProjects(ctx, sampleProjects()))

	none, err := store.GetLatestSuccessfulSnapshot(ctx, "t-acme-home")
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = store.InsertSnapshot(ctx, "t-acme-home", strPtr("Price: $10"), domain.SnapshotSuccess)
	require.NoError(t, err)
	second, err := store.InsertSnapshot(ctx, "t-acme-home", strPtr("Price: $12"), domain.SnapshotSuccess)
	require.NoError(t, err)
	failed, err := store.InsertSnapshot(ctx, "t-acme-home", nil, domain.SnapshotFailed)
	require.NoError(t, err)
	assert.Nil(t, failed.Content)

	latest, err := store.GetLatestSuccessfulSnapshot(ctx, "t-acme-home")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, "Price: $12", latest.Text())
	assert.True(t, second.CreatedAt.Equal(latest.CreatedAt))

	other, err := store.GetLatestSuccessfulSnapshot(ctx, "t-zed-home")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSQLiteStore_InsertChange(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, store.SeedProjects(ctx, sampleProjects()))

	snap, err := store.InsertSnapshot(ctx, "t-acme-home", strPtr("Price: $12"), domain.SnapshotSuccess)
	require.NoError(t, err)

	change, err := store.InsertChange(ctx, snap.ID, "Removed: \"$10\"\nAdded: \"$12\"")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, change.SnapshotID)

	var stored string
	require.NoError(t, store.db.GetContext(ctx, &stored, "SELECT diff_content FROM changes WHERE id = ?", change.ID))
	assert.Equal(t, change.DiffContent, stored)
}
