package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sneakpeak/pkg/db"
	"sneakpeak/pkg/domain"
	"sneakpeak/pkg/fetcher"
	"sneakpeak/pkg/metrics"
)

// stubFetcher serves canned page text per URL.
type stubFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	panics map[string]bool
	calls  []string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{pages: map[string]string{}, errs: map[string]error{}, panics: map[string]bool{}}
}

func (f *stubFetcher) set(url, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = text
	delete(f.errs, url)
}

func (f *stubFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*fetcher.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	text, ok := f.pages[url]
	err := f.errs[url]
	panics := f.panics[url]
	f.mu.Unlock()

	if panics {
		panic("fetcher exploded")
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &fetcher.FetchError{URL: url, StatusCode: 404, Reason: "Failed to fetch URL: Not Found"}
	}
	return &fetcher.Page{URL: url, StatusCode: 200, Text: text, FetchedAt: time.Now()}, nil
}

// recordingNotifier captures every Notify call.
type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]domain.ReportEntry
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, entries []domain.ReportEntry, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, append([]domain.ReportEntry(nil), entries...))
	return n.err
}

const (
	homeURL = "https://acme.example/"
	shopURL = "https://acme.example/shop"
	pdpURL  = "https://acme.example/p/1"
)

func seededStore(t *testing.T) *db.MemoryStore {
	t.Helper()
	store := db.NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	n := 0
	store.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		n++
		return base.Add(time.Duration(n) * time.Minute)
	})
	require.NoError(t, store.SeedProjects(context.Background(), []domain.Project{{
		ID:   "p1",
		Name: "Shoes",
		Competitors: []domain.Competitor{{
			ID:   "c1",
			Name: "Acme",
			Targets: []domain.Target{
				{ID: "t-home", URL: homeURL, PageType: domain.PageTypeHomepage},
				{ID: "t-shop", URL: shopURL, PageType: domain.PageTypeShop},
				{ID: "t-pdp", URL: pdpURL, PageType: domain.PageTypePDP},
			},
		}},
	}}))
	return store
}

func newOrchestrator(t *testing.T, store db.Store, f PageFetcher, n *recordingNotifier, workers int) *Orchestrator {
	t.Helper()
	o, err := New(Config{
		Store:     store,
		Fetcher:   f,
		Notifier:  n,
		Recipient: "ops@example.com",
		Workers:   workers,
	})
	require.NoError(t, err)
	return o
}

func TestNew_RequiresStoreAndFetcher(t *testing.T) {
	_, err := New(Config{Fetcher: newStubFetcher()})
	assert.Error(t, err)
	_, err = New(Config{Store: db.NewMemoryStore()})
	assert.Error(t, err)
}

func TestRunDetectionCycle_FirstRunStoresBaselineOnly(t *testing.T) {
	store := seededStore(t)
	f := newStubFetcher()
	f.set(homeURL, "Welcome to our store Price: $10")
	f.set(shopURL, "Shop all")
	f.set(pdpURL, "Widget $5")
	n := &recordingNotifier{}

	res, err := newOrchestrator(t, store, f, n, 1).RunDetectionCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Targets)
	assert.Equal(t, 3, res.Succeeded)
	assert.Zero(t, res.Changes)
	assert.Empty(t, res.Entries)
	assert.False(t, res.Notified)
	assert.Empty(t, n.calls)
	assert.Empty(t, store.Changes())

	snaps := store.Snapshots("t-home")
	require.Len(t, snaps, 1)
	assert.Equal(t, domain.SnapshotSuccess, snaps[0].Status)
	assert.Equal(t, "Welcome to our store Price: $10", snaps[0].Text())
}

func TestRunDetectionCycle_PriceChange(t *testing.T) {
	store := seededStore(t)
	f := newStubFetcher()
	f.set(homeURL, "Welcome to our store Price: $10")
	f.set(shopURL, "Shop all")
	f.set(pdpURL, "Widget $5")
	n := &recordingNotifier{}
	o := newOrchestrator(t, store, f, n, 1)

	_, err := o.RunDetectionCycle(context.Background())
	require.NoError(t, err)

	f.set(homeURL, "Welcome to our store Price: $12")
	res, err := o.RunDetectionCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Changes)
	assert.True(t, res.Notified)

	changes := store.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, "Removed: \"$10\"\nAdded: \"$12\"", changes[0].DiffContent)

	snaps := store.Snapshots("t-home")
	require.Len(t, snaps, 2)
	assert.Equal(t, snaps[1].ID, changes[0].SnapshotID, "change attaches to the newer snapshot")

	require.Len(t, n.calls, 1)
	assert.Equal(t, []domain.ReportEntry{{
		ProjectName:    "Shoes",
		CompetitorName: "Acme",
		URL:            homeURL,
		PageType:       domain.PageTypeHomepage,
		DiffContent:    "Removed: \"$10\"\nAdded: \"$12\"",
	}}, n.calls[0])
}

func TestRunDetectionCycle_IdenticalContent(t *testing.T) {
	store := seededStore(t)
	f := newStubFetcher()
	f.set(homeURL, "Same")
	f.set(shopURL, "Same")
	f.set(pdpURL, "Same")
	n := &recordingNotifier{}
	o := newOrchestrator(t, store, f, n, 2)

	for i := 0; i < 2; i++ {
		_, err := o.RunDetectionCycle(context.Background())
		require.NoError(t, err)
	}

	assert.Len(t, store.Snapshots("t-home"), 2)
	assert.Empty(t, store.Changes())
	assert.Empty(t, n.calls)
}

func TestRunDetectionCycle_FetchFailureInMiddle(t *testing.T) {
	for _, workers := range []int{1, 3} {
		store := seededStore(t)
		f := newStubFetcher()
		f.set(homeURL, "Home")
		f.fail(shopURL, &fetcher.FetchError{URL: shopURL, Reason: "dial tcp: connection refused"})
		f.set(pdpURL, "PDP")

		res, err := newOrchestrator(t, store, f, &recordingNotifier{}, workers).RunDetectionCycle(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, res.Succeeded, "workers=%d", workers)
		assert.Equal(t, 1, res.Failed)

		for id, status := range map[string]domain.SnapshotStatus{
			"t-home": domain.SnapshotSuccess,
			"t-shop": domain.SnapshotFailed,
			"t-pdp":  domain.SnapshotSuccess,
		} {
			snaps := store.Snapshots(id)
			require.Len(t, snaps, 1, id)
			assert.Equal(t, status, snaps[0].Status, id)
		}
		assert.Nil(t, store.Snapshots("t-shop")[0].Content)
	}
}

func TestRunDetectionCycle_RedirectLoopStoresFailedSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	}))
	defer server.Close()

	store := db.NewMemoryStore()
	require.NoError(t, store.SeedProjects(context.Background(), []domain.Project{{
		ID:   "p1",
		Name: "Shoes",
		Competitors: []domain.Competitor{{
			ID:      "c1",
			Name:    "Acme",
			Targets: []domain.Target{{ID: "t-loop", URL: server.URL, PageType: domain.PageTypeHomepage}},
		}},
	}}))
	n := &recordingNotifier{}
	o := newOrchestrator(t, store, fetcher.New(fetcher.Config{Timeout: time.Second}), n, 1)

	for i := 0; i < 2; i++ {
		res, err := o.RunDetectionCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
		assert.Zero(t, res.Succeeded)
	}

	snaps := store.Snapshots("t-loop")
	require.Len(t, snaps, 2)
	for _, snap := range snaps {
		assert.Equal(t, domain.SnapshotFailed, snap.Status)
		assert.Nil(t, snap.Content)
	}
	assert.Empty(t, store.Changes())
	assert.Empty(t, n.calls)
}

func TestRunDetectionCycle_FailedSnapshotIsNotABaseline(t *testing.T) {
	store := seededStore(t)
	f := newStubFetcher()
	f.set(homeURL, "Price: $10")
	f.set(shopURL, "Shop")
	f.set(pdpURL, "PDP")
	n := &recordingNotifier{}
	o := newOrchestrator(t, store, f, n, 1)

	_, err := o.RunDetectionCycle(context.Background())
	require.NoError(t, err)

	f.fail(homeURL, errors.New("timeout"))
	_, err = o.RunDetectionCycle(context.Background())
	require.NoError(t, err)

	f.set(homeURL, "Price: $12")
	res, err := o.RunDetectionCycle(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, res.Changes)
	assert.Equal(t, "Removed: \"$10\"\nAdded: \"$12\"", res.Entries[0].DiffContent)
}

func TestRunDetectionCycle_SameCompetitorEntriesStayInVisitOrder(t *testing.T) {
	for _, workers := range []int{1, 4} {
		store := seededStore(t)
		f := newStubFetcher()
		f.set(homeURL, "Home v1")
		f.set(shopURL, "Shop v1")
		f.set(pdpURL, "PDP v1")
		n := &recordingNotifier{}
		o := newOrchestrator(t, store, f, n, workers)

		_, err := o.RunDetectionCycle(context.Background())
		require.NoError(t, err)

		f.set(homeURL, "Home v2")
		f.set(shopURL, "Shop v2")
		f.set(pdpURL, "PDP v2")
		res, err := o.RunDetectionCycle(context.Background())
		require.NoError(t, err)

		require.Len(t, n.calls, 1)
		var urls []string
		for _, e := range n.calls[0] {
			urls = append(urls, e.URL)
			assert.Equal(t, "Acme", e.CompetitorName)
		}
		assert.Equal(t, []string{homeURL, pdpURL, shopURL}, urls, "workers=%d", workers)
		assert.Equal(t, 3, res.Changes)
	}
}

func TestRunDetectionCycle_EnumerationFailure(t *testing.T) {
	store := seededStore(t)
	store.ListTargetsErr = errors.New("relation \"projects\" does not exist")
	f := newStubFetcher()

	res, err := newOrchestrator(t, store, f, &recordingNotifier{}, 1).RunDetectionCycle(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrEnumerate)
	assert.Contains(t, err.Error(), "projects")
	assert.Empty(t, f.calls)
}

func TestRunDetectionCycle_NoTargets(t *testing.T) {
	f := newStubFetcher()
	n := &recordingNotifier{}
	res, err := newOrchestrator(t, db.NewMemoryStore(), f, n, 1).RunDetectionCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Targets)
	assert.Empty(t, f.calls)
	assert.Empty(t, n.calls)
}

func TestRunDetectionCycle_SnapshotWriteFailureSkipsTarget(t *testing.T) {
	store := seededStore(t)
	f := newStubFetcher()
	f.set(homeURL, "v1")
	f.set(shopURL, "v1")
	f.set(pdpURL, "v1")
	n := &recordingNotifier{}
	o := newOrchestrator(t, store, f, n, 1)
	_, err := o.RunDetectionCycle(context.Background())
	require.NoError(t, err)

	store.InsertSnapshotErr = func(targetID string, _ domain.SnapshotStatus) error {
		if targetID == "t-home" {
			return errors.New("disk full")
		}
		return nil
	}
	f.set(homeURL, "v2")
	f.set(shopURL, "v2")

	res, err := o.RunDetectionCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.PersistFailures)
	assert.Equal(t, 1, res.Changes, "only the shop change is reported")
	assert.Len(t, store.Snapshots("t-home"), 1)
	assert.Len(t, store.Snapshots("t-shop"), 2)
}

func TestRunDetectionCycle_PriorLookupErrorTreatedAsNone(t *testing.T) {
	store := seededStore(t)
	f := newStubFetcher()
	f.set(homeURL, "v1")
	f.set(shopURL, "v1")
	f.set(pdpURL, "v1")
	o := newOrchestrator(t, store, f, &recordingNotifier{}, 1)
	_, err := o.RunDetectionCycle(context.Background())
	require.NoError(t, err)

	store.LatestSnapshotErr = func(string) error { return errors.New("read timeout") }
	f.set(homeURL, "v2")

	res, err := o.RunDetectionCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Changes)
	assert.Len(t, store.Snapshots("t-home"), 2)
}

func TestRunDetectionCycle_ChangeWriteFailureStillReported(t *testing.T) {
	store := seededStore(t)
	f := newStubFetcher()
	f.set(homeURL, "v1")
	f.set(shopURL, "v1")
	f.set(pdpURL, "v1")
	n := &recordingNotifier{}
	o := newOrchestrator(t, store, f, n, 1)
	_, err := o.RunDetectionCycle(context.Background())
	require.NoError(t, err)

	store.InsertChangeErr = func(string) error { return errors.New("constraint violation") }
	f.set(homeURL, "v2")

	res, err := o.RunDetectionCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.PersistFailures)
	assert.Equal(t, 1, res.Changes)
	assert.Empty(t, store.Changes())
	require.Len(t, n.calls, 1)
}

func TestRunDetectionCycle_NotifierErrorDoesNotFailRun(t *testing.T) {
	store := seededStore(t)
	f := newStubFetcher()
	f.set(homeURL, "v1")
	f.set(shopURL, "v1")
	f.set(pdpURL, "v1")
	n := &recordingNotifier{err: errors.New("smtp down")}
	o := newOrchestrator(t, store, f, n, 1)
	_, err := o.RunDetectionCycle(context.Background())
	require.NoError(t, err)

	f.set(homeURL, "v2")
	res, err := o.RunDetectionCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Notified)
	assert.Len(t, n.calls, 1)
	assert.Len(t, store.Changes(), 1)
}

func TestRunDetectionCycle_PanicIsolatedToTarget(t *testing.T) {
	store := seededStore(t)
	f := newStubFetcher()
	f.set(homeURL, "v1")
	f.set(pdpURL, "v1")
	f.panics[shopURL] = true

	res, err := newOrchestrator(t, store, f, &recordingNotifier{}, 2).RunDetectionCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, store.Snapshots("t-home"), 1)
	assert.Len(t, store.Snapshots("t-pdp"), 1)
	assert.Empty(t, store.Snapshots("t-shop"))
}

// blockingFetcher holds every fetch until release is closed.
type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *blockingFetcher) Fetch(_ context.Context, url string) (*fetcher.Page, error) {
	f.once.Do(func() { close(f.started) })
	<-f.release
	return &fetcher.Page{URL: url, Text: "x"}, nil
}

func TestRunDetectionCycle_RejectsOverlappingRuns(t *testing.T) {
	store := seededStore(t)
	f := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	o := newOrchestrator(t, store, f, &recordingNotifier{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := o.RunDetectionCycle(context.Background())
		done <- err
	}()
	<-f.started

	_, err := o.RunDetectionCycle(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(f.release)
	require.NoError(t, <-done)

	_, err = o.RunDetectionCycle(context.Background())
	assert.NoError(t, err, "a finished run releases the guard")
}

func TestRunDetectionCycle_RecordsMetrics(t *testing.T) {
	store := seededStore(t)
	f := newStubFetcher()
	f.set(homeURL, "v1")
	f.set(shopURL, "v1")
	m := metrics.NewMetrics(prometheus.NewRegistry())

	o, err := New(Config{Store: store, Fetcher: f, Notifier: &recordingNotifier{}, Metrics: m})
	require.NoError(t, err)
	_, err = o.RunDetectionCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(metrics.OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("Success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("Failed")))
}
