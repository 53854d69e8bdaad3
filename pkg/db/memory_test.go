package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sneakpeak/pkg/domain"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetClock(stepClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, store.SeedProjects(ctx, sampleProjects()))

	refs, err := store.ListTargets(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	var order []string
	for _, r := range refs {
		order = append(order, r.ProjectName+"/"+r.CompetitorName+"/"+r.Target.URL)
	}
	assert.Equal(t, []string{
		"Alpha/Acme/https://acme.example/",
		"Alpha/Acme/https://acme.example/shop",
		"Beta/Zed Shop/https://zed.example/",
	}, order)

	content := "v1"
	first, err := store.InsertSnapshot(ctx, "t-zed-home", &content, domain.SnapshotSuccess)
	require.NoError(t, err)
	content = "mutated"
	assert.Equal(t, "v1", first.Text(), "content is copied")

	_, err = store.InsertSnapshot(ctx, "t-zed-home", nil, domain.SnapshotFailed)
	require.NoError(t, err)

	latest, err := store.GetLatestSuccessfulSnapshot(ctx, "t-zed-home")
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)
	assert.Len(t, store.Snapshots("t-zed-home"), 2)

	_, err = store.InsertChange(ctx, first.ID, `Added: "x"`)
	require.NoError(t, err)
	assert.Len(t, store.Changes(), 1)
}

func TestMemoryStore_FailureHooks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("boom")

	store.ListTargetsErr = boom
	_, err := store.ListTargets(ctx)
	assert.ErrorIs(t, err, boom)

	store.InsertSnapshotErr = func(targetID string, _ domain.SnapshotStatus) error {
		if targetID == "bad" {
			return boom
		}
		return nil
	}
	_, err = store.InsertSnapshot(ctx, "bad", nil, domain.SnapshotFailed)
	assert.ErrorIs(t, err, boom)
	_, err = store.InsertSnapshot(ctx, "good", nil, domain.SnapshotFailed)
	assert.NoError(t, err)
	assert.Empty(t, store.Snapshots("bad"))
}

func TestSeedAssignsIDs(t *testing.T) {
	projects := []domain.Project{{Name: "P", Competitors: []domain.Competitor{{Name: "C", Targets: []domain.Target{{URL: "https://x.example"}}}}}}
	assignIDs(projects)

	p := projects[0]
	c := p.Competitors[0]
	tg := c.Targets[0]
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, p.ID, c.ProjectID)
	assert.Equal(t, c.ID, tg.CompetitorID)
	assert.NotEmpty(t, tg.ID)
}
