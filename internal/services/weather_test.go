package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-cache/internal/api"
	"weather-cache/internal/logging"
	"weather-cache/internal/storage"
	"weather-cache/internal/testutil"
)

var londonDoc = json.RawMessage(`{"name":"London","main":{"temp":283.15}}`)

type fixture struct {
	store   *testutil.Store
	audit   *testutil.AuditLog
	fetcher *testutil.Fetcher
	now     time.Time
	svc     *WeatherService
}

func newFixture(t *testing.T, dedupe bool) *fixture {
	t.Helper()

	f := &fixture{
		store:   testutil.NewStore(),
		audit:   &testutil.AuditLog{},
		fetcher: &testutil.Fetcher{Doc: londonDoc},
		now:     time.Unix(1_700_000_000, 0),
	}
	clock := func() time.Time { return f.now }
	f.store.Now = clock
	f.svc = NewWeatherService(Config{
		Window:         10 * time.Minute,
		DedupeInflight: dedupe,
		Now:            clock,
	}, f.store, f.audit, f.fetcher, nil, logging.Discard())
	return f
}

// waitForRecords polls until the audit log holds n records.
func waitForRecords(t *testing.T, log *testutil.AuditLog, n int) {
	t.Helper()
	err := retry.Do(
		func() error {
			if got := len(log.Records()); got != n {
				return fmt.Errorf("have %d audit records, want %d", got, n)
			}
			return nil
		},
		retry.Attempts(50),
		retry.Delay(20*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
	)
	require.NoError(t, err)
}

func TestCheckFresh_Miss(t *testing.T) {
	f := newFixture(t, false)

	doc, ok := f.svc.CheckFresh(context.Background(), "London")
	assert.False(t, ok)
	assert.Nil(t, doc)
}

func TestCheckFresh_WindowBoundary(t *testing.T) {
	f := newFixture(t, false)
	created := f.now
	f.store.Seed(storage.ArtifactKey("london", created), londonDoc, created)

	f.now = created.Add(10 * time.Minute)
	doc, ok := f.svc.CheckFresh(context.Background(), "London")
	require.True(t, ok, "an artifact exactly one window old is still fresh")
	assert.JSONEq(t, string(londonDoc), string(doc))

	f.now = created.Add(10*time.Minute + time.Second)
	_, ok = f.svc.CheckFresh(context.Background(), "London")
	assert.False(t, ok, "one second past the window is stale")
}

func TestCheckFresh_ReturnsNewest(t *testing.T) {
	f := newFixture(t, false)
	older := f.now.Add(-5 * time.Minute)
	newer := f.now.Add(-time.Minute)
	f.store.Seed(storage.ArtifactKey("london", older), json.RawMessage(`{"v":1}`), older)
	f.store.Seed(storage.ArtifactKey("london", newer), json.RawMessage(`{"v":2}`), newer)
	f.store.Seed(storage.ArtifactKey("london_ontario", f.now), json.RawMessage(`{"v":3}`), f.now)

	doc, ok := f.svc.CheckFresh(context.Background(), "london")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":2}`, string(doc))
}

func TestCheckFresh_StoreFailuresAreMisses(t *testing.T) {
	f := newFixture(t, false)
	f.store.Seed(storage.ArtifactKey("london", f.now), londonDoc, f.now)

	f.store.ListErr = errors.New("connection refused")
	_, ok := f.svc.CheckFresh(context.Background(), "London")
	assert.False(t, ok)

	f.store.ListErr = nil
	f.store.GetErr = errors.New("access denied")
	_, ok = f.svc.CheckFresh(context.Background(), "London")
	assert.False(t, ok)
}

func TestFetchFresh_PropagatesProviderErrors(t *testing.T) {
	f := newFixture(t, false)

	f.fetcher.Err = api.ErrCityNotFound
	_, err := f.svc.FetchFresh(context.Background(), "Qwxzplonia")
	assert.ErrorIs(t, err, api.ErrCityNotFound)

	f.fetcher.Err = fmt.Errorf("weather returned 503: %w", api.ErrUpstreamUnavailable)
	_, err = f.svc.FetchFresh(context.Background(), "London")
	assert.ErrorIs(t, err, api.ErrUpstreamUnavailable)
}

func TestFetchFresh_PassesTrimmedName(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.FetchFresh(context.Background(), "  New York, US ")
	require.NoError(t, err)
	assert.Equal(t, []string{"New York, US"}, f.fetcher.Calls())
}

func TestPersist_StoresThenAudits(t *testing.T) {
	f := newFixture(t, false)

	f.svc.Persist(context.Background(), "New York, US", londonDoc)

	records := f.audit.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "new_york_us", records[0].City)
	assert.Equal(t, "s3://test-bucket/new_york_us_1700000000.json", records[0].S3FileURL)
	assert.Equal(t, int64(1_700_000_000), records[0].Timestamp)
	assert.Equal(t, 1, f.store.Len())
}

func TestPersist_StoreFailureSkipsAudit(t *testing.T) {
	f := newFixture(t, false)
	f.store.PutErr = errors.New("bucket gone")

	f.svc.Persist(context.Background(), "London", londonDoc)

	assert.Empty(t, f.audit.Records())
	assert.Equal(t, 0, f.store.Len())
}

func TestPersist_AuditFailureKeepsArtifact(t *testing.T) {
	f := newFixture(t, false)
	f.audit.Err = errors.New("table missing")

	f.svc.Persist(context.Background(), "London", londonDoc)

	assert.Equal(t, 1, f.store.Len())
	_, ok := f.svc.CheckFresh(context.Background(), "London")
	assert.True(t, ok, "the artifact is usable even without an audit record")
}

func TestPersistAsync_SurvivesCallerCancellation(t *testing.T) {
	f := newFixture(t, false)
	f.store.PutGate = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	f.svc.PersistAsync(ctx, "London", londonDoc)
	cancel()

	close(f.store.PutGate)
	waitForRecords(t, f.audit, 1)
	require.NoError(t, f.svc.Wait(context.Background()))
}

func TestWait_BoundedByContext(t *testing.T) {
	f := newFixture(t, false)
	f.store.PutGate = make(chan struct{})
	defer close(f.store.PutGate)

	f.svc.PersistAsync(context.Background(), "London", londonDoc)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.svc.Wait(ctx), context.DeadlineExceeded)
}

func TestLondonScenario(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, ok := f.svc.CheckFresh(ctx, "London")
	require.False(t, ok)

	doc, err := f.svc.FetchFresh(ctx, "London")
	require.NoError(t, err)
	assert.JSONEq(t, string(londonDoc), string(doc))

	f.svc.PersistAsync(ctx, "London", doc)
	waitForRecords(t, f.audit, 1)

	f.now = f.now.Add(3 * time.Minute)
	cached, ok := f.svc.CheckFresh(ctx, " london ")
	require.True(t, ok)
	assert.JSONEq(t, string(londonDoc), string(cached))
	assert.Len(t, f.fetcher.Calls(), 1, "the second request is served from the store")
	assert.Len(t, f.audit.Records(), 1)
}

func TestUnknownCityScenario(t *testing.T) {
	f := newFixture(t, false)
	f.fetcher.Err = api.ErrCityNotFound
	ctx := context.Background()

	_, ok := f.svc.CheckFresh(ctx, "Qwxzplonia")
	require.False(t, ok)

	_, err := f.svc.FetchFresh(ctx, "Qwxzplonia")
	require.ErrorIs(t, err, api.ErrCityNotFound)

	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.audit.Records())
}

func concurrentFetches(t *testing.T, f *fixture) {
	t.Helper()
	f.fetcher.Entered = make(chan struct{}, 2)
	f.fetcher.Release = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := f.svc.FetchFresh(context.Background(), "London")
			assert.NoError(t, err)
			assert.JSONEq(t, string(londonDoc), string(doc))
		}()
	}

	<-f.fetcher.Entered
	time.Sleep(50 * time.Millisecond)
	close(f.fetcher.Release)
	wg.Wait()
}

func TestFetchFresh_ConcurrentMissesFetchIndependently(t *testing.T) {
	f := newFixture(t, false)
	concurrentFetches(t, f)
	assert.Len(t, f.fetcher.Calls(), 2)
}

func TestFetchFresh_DedupeInflight(t *testing.T) {
	f := newFixture(t, true)
	concurrentFetches(t, f)
	assert.Len(t, f.fetcher.Calls(), 1)
}

func TestClose(t *testing.T) {
	f := newFixture(t, false)
	f.svc.Close()
	assert.True(t, f.fetcher.Closed())
}
