package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"repo-catalog-sync/internal/cache"
	"repo-catalog-sync/internal/database"
	"repo-catalog-sync/internal/enricher"
	custom_errors "repo-catalog-sync/internal/errors"
	"repo-catalog-sync/internal/model"
)

// MockStore is a mock of the database.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateRepositories(ctx context.Context, arg []database.CreateRepositoryParams) ([]database.Repository, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).([]database.Repository), args.Error(1)
}
func (m *MockStore) CreateRepository(ctx context.Context, arg database.CreateRepositoryParams) (database.Repository, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(database.Repository), args.Error(1)
}
func (m *MockStore) DeleteRepositoryByName(ctx context.Context, name string) (int64, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockStore) GetRepositoryByName(ctx context.Context, name string) (database.Repository, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(database.Repository), args.Error(1)
}
func (m *MockStore) ListRepositories(ctx context.Context) ([]database.Repository, error) {
	args := m.Called(ctx)
	return args.Get(0).([]database.Repository), args.Error(1)
}
func (m *MockStore) ListRepositoryNames(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockStore) UpsertRepository(ctx context.Context, arg database.UpsertRepositoryParams) (database.UpsertRepositoryRow, error) {
	args := m.Called(ctx, arg)
	return args.Get(0).(database.UpsertRepositoryRow), args.Error(1)
}

type fakeHost struct {
	names   []string
	err     error
	cleared bool
}

func (h *fakeHost) ListRepositoryNames(ctx context.Context) ([]string, error) {
	return h.names, h.err
}
func (h *fakeHost) ClearCache() { h.cleared = true }
func (h *fakeHost) CacheStats() cache.Stats {
	return cache.Stats{TotalEntries: 3, Namespaces: map[cache.Namespace]int{cache.General: 3}}
}

type fakeCatalog struct {
	names []string
	err   error
}

func (c *fakeCatalog) ListActiveRepositoryNames(ctx context.Context) ([]string, error) {
	return c.names, c.err
}

type fakeQuality struct {
	projects map[string]bool
	err      error
}

func (q *fakeQuality) ProjectExists(ctx context.Context, name string) (bool, error) {
	return q.projects[name], q.err
}

type fakeEnricher struct {
	mu       sync.Mutex
	facts    map[string]enricher.Facts
	oneErr   error
	calls    [][]string
	oneCalls int
}

func (e *fakeEnricher) Enrich(ctx context.Context, names []string) map[string]enricher.Facts {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, names)
	out := make(map[string]enricher.Facts, len(names))
	for _, n := range names {
		out[n] = e.facts[n]
	}
	return out
}

func (e *fakeEnricher) EnrichOne(ctx context.Context, name string) (enricher.Facts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.oneCalls++
	return e.facts[name], e.oneErr
}

type fixture struct {
	store    *MockStore
	host     *fakeHost
	catalog  *fakeCatalog
	quality  *fakeQuality
	enricher *fakeEnricher
	syncer   *Syncer
	pauses   int
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		store:    new(MockStore),
		host:     &fakeHost{},
		catalog:  &fakeCatalog{},
		quality:  &fakeQuality{projects: map[string]bool{}},
		enricher: &fakeEnricher{facts: map[string]enricher.Facts{}},
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := NewSyncer(f.store, f.host, f.catalog, f.quality, f.enricher, logger, Options{BatchPause: time.Second})
	require.NoError(t, err)
	s.sleep = func(ctx context.Context, d time.Duration) error {
		f.pauses++
		return nil
	}
	f.syncer = s
	return f
}

func TestSyncer_Sync_NoChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.host.names = []string{"a", "b"}
	f.store.On("ListRepositoryNames", ctx).Return([]string{"b", "a"}, nil)

	result, err := f.syncer.Sync(ctx, 10)

	require.NoError(t, err)
	assert.Equal(t, model.StatusNoChanges, result.Status)
	assert.Empty(t, result.Added)
	assert.Empty(t, result.Removed)
	assert.Zero(t, result.AddedCount)
	assert.Zero(t, result.RemovedCount)
	assert.Empty(t, f.enricher.calls)
	f.store.AssertNotCalled(t, "DeleteRepositoryByName", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "CreateRepository", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "CreateRepositories", mock.Anything, mock.Anything)
	f.store.AssertExpectations(t)
}

func TestSyncer_Sync_EndToEndExample(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.host.names = []string{"a", "c"}
	f.catalog.names = []string{"c"}
	f.enricher.facts["c"] = enricher.Facts{Contributors: []string{"alice"}, HasRunCI: true, TechDocs: true}

	f.store.On("ListRepositoryNames", ctx).Return([]string{"a", "b"}, nil)
	f.store.On("DeleteRepositoryByName", ctx, "b").Return(int64(1), nil).Once()
	f.store.On("CreateRepository", ctx, mock.MatchedBy(func(p database.CreateRepositoryParams) bool {
		return p.Name == "c" &&
			p.CatalogStatus.Active && p.CatalogStatus.TechDocs &&
			p.SourceHostStatus.Active &&
			!p.QualityStatus.Active &&
			assert.ObjectsAreEqual([]string{"alice"}, p.Contributors)
	})).Return(database.Repository{ID: 3, Name: "c"}, nil).Once()

	result, err := f.syncer.Sync(ctx, 10)

	require.NoError(t, err)
	assert.Equal(t, model.StatusUpdated, result.Status)
	assert.Equal(t, []string{"c"}, result.Added)
	assert.Equal(t, []string{"b"}, result.Removed)
	assert.Equal(t, 1, result.AddedCount)
	assert.Equal(t, 1, result.RemovedCount)
	f.store.AssertNotCalled(t, "DeleteRepositoryByName", ctx, "a")
	f.store.AssertExpectations(t)
}

func TestSyncer_Sync_ChunkedInsertion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 25; i++ {
		f.host.names = append(f.host.names, fmt.Sprintf("repo-%02d", i))
	}

	f.store.On("ListRepositoryNames", ctx).Return([]string{}, nil)
	f.store.On("CreateRepositories", ctx, mock.Anything).Return([]database.Repository{}, nil).Times(3)

	result, err := f.syncer.Sync(ctx, 10)

	require.NoError(t, err)
	assert.Equal(t, 25, result.AddedCount)
	require.Len(t, f.enricher.calls, 3)
	assert.Len(t, f.enricher.calls[0], 10)
	assert.Len(t, f.enricher.calls[1], 10)
	assert.Len(t, f.enricher.calls[2], 5)
	assert.Equal(t, 2, f.pauses)

	var sizes []int
	for _, call := range f.store.Calls {
		if call.Method == "CreateRepositories" {
			sizes = append(sizes, len(call.Arguments.Get(1).([]database.CreateRepositoryParams)))
		}
	}
	assert.Equal(t, []int{10, 10, 5}, sizes)
	f.store.AssertExpectations(t)
}

func TestSyncer_Sync_SourceFailuresDegrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.host.names = []string{"a", "new"}
	f.catalog.err = &custom_errors.RemoteError{Source: "catalog", Status: 503, Body: "down"}
	f.quality.err = errors.New("timeout")

	f.store.On("ListRepositoryNames", ctx).Return([]string{"a"}, nil)
	f.store.On("CreateRepository", ctx, mock.MatchedBy(func(p database.CreateRepositoryParams) bool {
		return p.Name == "new" && !p.CatalogStatus.Active && !p.QualityStatus.Active
	})).Return(database.Repository{}, nil).Once()

	result, err := f.syncer.Sync(ctx, 10)

	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, result.Added)
	f.store.AssertExpectations(t)
}

func TestSyncer_Sync_SourceHostFailureStillPrunes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.host.err = &custom_errors.RemoteError{Source: "github", Status: 502}

	f.store.On("ListRepositoryNames", ctx).Return([]string{"a"}, nil)
	f.store.On("DeleteRepositoryByName", ctx, "a").Return(int64(1), nil).Once()

	result, err := f.syncer.Sync(ctx, 10)

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.Removed)
	f.store.AssertExpectations(t)
}

func TestSyncer_Sync_StoreFailureAbortsRemainingBatches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 25; i++ {
		f.host.names = append(f.host.names, fmt.Sprintf("repo-%02d", i))
	}
	dbErr := errors.New("connection refused")

	f.store.On("ListRepositoryNames", ctx).Return([]string{}, nil)
	f.store.On("CreateRepositories", ctx, mock.Anything).Return([]database.Repository{}, nil).Once()
	f.store.On("CreateRepositories", ctx, mock.Anything).Return([]database.Repository(nil), dbErr).Once()

	_, err := f.syncer.Sync(ctx, 10)

	var storeErr *custom_errors.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, dbErr)
	assert.Len(t, f.enricher.calls, 2, "third batch is never enriched")
	f.store.AssertNumberOfCalls(t, "CreateRepositories", 2)
}

func TestSyncer_Sync_DeleteFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.host.names = []string{"new"}

	f.store.On("ListRepositoryNames", ctx).Return([]string{"old"}, nil)
	f.store.On("DeleteRepositoryByName", ctx, "old").Return(int64(0), errors.New("locked")).Once()

	_, err := f.syncer.Sync(ctx, 10)

	var storeErr *custom_errors.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Empty(t, f.enricher.calls, "no enrichment after a failed delete")
}

func TestSyncer_Sync_TwiceWithoutChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.host.names = []string{"a", "b"}

	f.store.On("ListRepositoryNames", ctx).Return([]string{"a"}, nil).Once()
	f.store.On("CreateRepository", ctx, mock.Anything).Return(database.Repository{}, nil).Once()
	f.store.On("ListRepositoryNames", ctx).Return([]string{"a", "b"}, nil).Once()

	first, err := f.syncer.Sync(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, model.StatusUpdated, first.Status)

	second, err := f.syncer.Sync(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoChanges, second.Status)
	f.store.AssertExpectations(t)
}

func TestSyncer_Sync_InvalidBatchSize(t *testing.T) {
	f := newFixture(t)

	for _, size := range []int{0, 51} {
		_, err := f.syncer.Sync(context.Background(), size)
		var validationErr *custom_errors.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	}
	f.store.AssertNotCalled(t, "ListRepositoryNames", mock.Anything)
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name           string
		hosted, stored []string
		added, removed []string
	}{
		{"identical sets", []string{"a", "b"}, []string{"b", "a"}, []string{}, []string{}},
		{"disjoint", []string{"x", "y"}, []string{"a"}, []string{"x", "y"}, []string{"a"}},
		{"preserves enumeration order", []string{"c", "a", "d"}, []string{"z", "a", "y"}, []string{"c", "d"}, []string{"z", "y"}},
		{"duplicates collapse", []string{"c", "c"}, []string{"b", "b"}, []string{"c"}, []string{"b"}},
		{"empty inputs", nil, nil, []string{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, removed := diff(tt.hosted, tt.stored)
			assert.Equal(t, tt.added, added)
			assert.Equal(t, tt.removed, removed)

			removedSet := toSet(removed)
			for _, a := range added {
				_, overlap := removedSet[a]
				assert.False(t, overlap, "additions and removals must not overlap")
			}
		})
	}
}

func TestSyncer_SyncOne(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown repository is not found", func(t *testing.T) {
		f := newFixture(t)
		f.host.names = []string{"a"}

		_, err := f.syncer.SyncOne(ctx, "x")

		assert.ErrorIs(t, err, custom_errors.ErrNotFound)
		assert.Equal(t, 404, custom_errors.StatusCode(err))
		assert.Zero(t, f.enricher.oneCalls)
		assert.Empty(t, f.store.Calls)
	})

	t.Run("creates a new record", func(t *testing.T) {
		f := newFixture(t)
		f.host.names = []string{"a"}
		f.catalog.names = []string{"a"}
		f.quality.projects["a"] = true
		f.enricher.facts["a"] = enricher.Facts{Contributors: []string{"bob"}, HasRunCI: true}

		now := time.Now()
		f.store.On("UpsertRepository", ctx, mock.MatchedBy(func(p database.UpsertRepositoryParams) bool {
			return p.Name == "a" && p.CatalogStatus.Active && p.QualityStatus.Active && p.SourceHostStatus.Active
		})).Return(database.UpsertRepositoryRow{
			ID:           7,
			Name:         "a",
			Contributors: []string{"bob"},
			CreatedAt:    pgtype.Timestamptz{Time: now, Valid: true},
			Inserted:     true,
		}, nil).Once()

		result, err := f.syncer.SyncOne(ctx, "a")

		require.NoError(t, err)
		assert.Equal(t, model.StatusCreated, result.Status)
		assert.Equal(t, int64(7), result.Repository.ID)
		assert.Nil(t, result.Repository.UpdatedAt)
		assert.Equal(t, 1, f.enricher.oneCalls)
		assert.Empty(t, f.enricher.calls, "single path never uses the batch enricher")
		f.store.AssertExpectations(t)
	})

	t.Run("updates an existing record", func(t *testing.T) {
		f := newFixture(t)
		f.host.names = []string{"a"}
		f.catalog.err = &custom_errors.ConfigurationError{Integration: "catalog", Setting: "CATALOG_URL"}

		f.store.On("UpsertRepository", ctx, mock.Anything).Return(database.UpsertRepositoryRow{
			ID:        7,
			Name:      "a",
			UpdatedAt: pgtype.Timestamptz{Time: time.Now(), Valid: true},
		}, nil).Once()

		result, err := f.syncer.SyncOne(ctx, "a")

		require.NoError(t, err)
		assert.Equal(t, model.StatusUpdated, result.Status)
		assert.NotNil(t, result.Repository.UpdatedAt)
		assert.Equal(t, []string{}, result.Repository.Contributors)
	})

	t.Run("enrichment failure is returned", func(t *testing.T) {
		f := newFixture(t)
		f.host.names = []string{"a"}
		f.enricher.oneErr = &custom_errors.RemoteError{Source: "github", Status: 403, Body: "forbidden"}

		_, err := f.syncer.SyncOne(ctx, "a")

		assert.Equal(t, 403, custom_errors.StatusCode(err))
		f.store.AssertNotCalled(t, "UpsertRepository", mock.Anything, mock.Anything)
	})

	t.Run("store failure is a store error", func(t *testing.T) {
		f := newFixture(t)
		f.host.names = []string{"a"}
		f.store.On("UpsertRepository", ctx, mock.Anything).Return(database.UpsertRepositoryRow{}, errors.New("disk full")).Once()

		_, err := f.syncer.SyncOne(ctx, "a")

		var storeErr *custom_errors.StoreError
		assert.ErrorAs(t, err, &storeErr)
	})
}

func TestSyncer_ListAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.store.On("ListRepositories", ctx).Return([]database.Repository{
		{ID: 1, Name: "a", Contributors: []string{"alice"}, CatalogStatus: &model.CatalogStatus{Active: true}, CreatedAt: pgtype.Timestamptz{Time: created, Valid: true}},
		{ID: 2, Name: "b"},
	}, nil).Once()

	repos, err := f.syncer.ListAll(ctx)

	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "a", repos[0].Name)
	assert.True(t, repos[0].Catalog.Active)
	assert.Equal(t, created, repos[0].CreatedAt)
	assert.Equal(t, []string{}, repos[1].Contributors)
	assert.Nil(t, repos[1].Catalog)
}

func TestSyncer_ListNames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.On("ListRepositoryNames", ctx).Return([]string(nil), nil).Once()

	names, err := f.syncer.ListNames(ctx)

	require.NoError(t, err)
	assert.Equal(t, []string{}, names)

	f.store.On("ListRepositoryNames", ctx).Return([]string(nil), errors.New("boom")).Once()
	_, err = f.syncer.ListNames(ctx)
	var storeErr *custom_errors.StoreError
	assert.ErrorAs(t, err, &storeErr)
}

func TestSyncer_Cache(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, 3, f.syncer.CacheStats().TotalEntries)
	f.syncer.ClearCache()
	assert.True(t, f.host.cleared)
}

func TestSyncer_StartDisabled(t *testing.T) {
	f := newFixture(t)

	done := make(chan struct{})
	go func() {
		f.syncer.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return immediately without an interval")
	}
}

func TestNewSyncer_RejectsInvalidBatchSize(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	_, err := NewSyncer(new(MockStore), &fakeHost{}, &fakeCatalog{}, &fakeQuality{}, &fakeEnricher{}, logger, Options{BatchSize: 100})
	assert.Error(t, err)
}
