package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"repo-catalog-sync/internal/cache"
	"repo-catalog-sync/internal/database"
	"repo-catalog-sync/internal/enricher"
	custom_errors "repo-catalog-sync/internal/errors"
	"repo-catalog-sync/internal/limiter"
	"repo-catalog-sync/internal/model"
)

const (
	DefaultBatchSize = 10
	MaxBatchSize     = 50
)

// SourceHost lists the organization's repositories and owns the response cache.
type SourceHost interface {
	ListRepositoryNames(ctx context.Context) ([]string, error)
	ClearCache()
	CacheStats() cache.Stats
}

// Catalog lists repositories registered as active services.
type Catalog interface {
	ListActiveRepositoryNames(ctx context.Context) ([]string, error)
}

// QualityPlatform reports whether a repository is registered as a project.
type QualityPlatform interface {
	ProjectExists(ctx context.Context, name string) (bool, error)
}

// Enricher fetches per-repository facts.
type Enricher interface {
	Enrich(ctx context.Context, names []string) map[string]enricher.Facts
	EnrichOne(ctx context.Context, name string) (enricher.Facts, error)
}

// Options tunes the engine.
type Options struct {
	// Concurrency caps simultaneous quality-platform lookups.
	Concurrency int
	// BatchPause is the pause between insert batches.
	BatchPause time.Duration
	// BatchSize is used by the periodic sync loop.
	BatchSize int
	// Interval enables the periodic sync loop when positive.
	Interval time.Duration
}

// Syncer reconciles the stored repositories with the source host, the catalog and the
// quality platform.
type Syncer struct {
	store    database.Store
	host     SourceHost
	catalog  Catalog
	quality  QualityPlatform
	enricher Enricher
	logger   *slog.Logger

	concurrency int
	pause       time.Duration
	batchSize   int
	interval    time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(store database.Store, host SourceHost, catalog Catalog, quality QualityPlatform, e Enricher, logger *slog.Logger, opts Options) (*Syncer, error) {
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if err := validateBatchSize(opts.BatchSize); err != nil {
		return nil, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = limiter.DefaultConcurrency
	}

	return &Syncer{
		store:       store,
		host:        host,
		catalog:     catalog,
		quality:     quality,
		enricher:    e,
		logger:      logger,
		concurrency: opts.Concurrency,
		pause:       opts.BatchPause,
		batchSize:   opts.BatchSize,
		interval:    opts.Interval,
		sleep:       enricher.Sleep,
	}, nil
}

// Start runs a sync every interval until ctx is done. It returns immediately when no
// interval is configured.
func (s *Syncer) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Periodic sync disabled")
		return
	}

	s.logger.Info("Starting syncer", "interval", s.interval.String(), "batch_size", s.batchSize)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runSyncCycle(ctx) // Initial sync

	for {
		select {
		case <-ticker.C:
			s.runSyncCycle(ctx)
		case <-ctx.Done():
			s.logger.Info("Syncer shutting down", "reason", ctx.Err())
			return
		}
	}
}

func (s *Syncer) runSyncCycle(ctx context.Context) {
	result, err := s.Sync(ctx, s.batchSize)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("Sync cycle failed", "error", err)
		}
		return
	}
	s.logger.Info("Sync cycle finished", "status", result.Status, "added", result.AddedCount, "removed", result.RemovedCount)
}

// ListAll returns every stored repository.
func (s *Syncer) ListAll(ctx context.Context) ([]model.Repository, error) {
	rows, err := s.store.ListRepositories(ctx)
	if err != nil {
		return nil, &custom_errors.StoreError{Op: "list repositories", Err: err}
	}

	repos := make([]model.Repository, 0, len(rows))
	for _, row := range rows {
		repos = append(repos, toModel(row))
	}
	return repos, nil
}

// ListNames returns the names of every stored repository.
func (s *Syncer) ListNames(ctx context.Context) ([]string, error) {
	names, err := s.store.ListRepositoryNames(ctx)
	if err != nil {
		return nil, &custom_errors.StoreError{Op: "list repository names", Err: err}
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// ClearCache drops every cached source-host response.
func (s *Syncer) ClearCache() {
	s.host.ClearCache()
}

// CacheStats reports the source-host response cache contents.
func (s *Syncer) CacheStats() cache.Stats {
	return s.host.CacheStats()
}

// Sync reconciles the store with the source host. Source fetch failures degrade that
// source to an empty set; only store failures are returned.
func (s *Syncer) Sync(ctx context.Context, batchSize int) (*model.SyncResult, error) {
	if err := validateBatchSize(batchSize); err != nil {
		return nil, err
	}

	stored, hosted, active := s.fetchSources(ctx)

	added, removed := diff(hosted, stored)
	if len(added) == 0 && len(removed) == 0 {
		s.logger.Info("Repositories already in sync", "count", len(stored))
		return &model.SyncResult{
			Status:  model.StatusNoChanges,
			Added:   []string{},
			Removed: []string{},
		}, nil
	}

	s.logger.Info("Repository changes detected", "added", len(added), "removed", len(removed))

	// Deletions go first and finish before any enrichment starts.
	for _, name := range removed {
		if _, err := s.store.DeleteRepositoryByName(ctx, name); err != nil {
			return nil, &custom_errors.StoreError{Op: "delete " + name, Err: err}
		}
		s.logger.Info("Deleted repository", "repo", name)
	}

	activeSet := toSet(active)
	chunks := limiter.Chunk(added, batchSize)
	for i, chunk := range chunks {
		logger := s.logger.With("batch", i+1, "of", len(chunks))

		facts := s.enricher.Enrich(ctx, chunk)
		registered := s.qualityMembership(ctx, chunk)

		params := make([]database.CreateRepositoryParams, 0, len(chunk))
		for _, name := range chunk {
			_, inCatalog := activeSet[name]
			params = append(params, buildParams(name, facts[name], inCatalog, registered[name]))
		}

		if err := s.insertBatch(ctx, params); err != nil {
			return nil, err
		}
		logger.Info("Inserted repositories", "count", len(params))

		if i == len(chunks)-1 {
			break
		}
		if err := s.sleep(ctx, s.pause); err != nil {
			return nil, err
		}
	}

	return &model.SyncResult{
		Status:       model.StatusUpdated,
		Added:        added,
		Removed:      removed,
		AddedCount:   len(added),
		RemovedCount: len(removed),
	}, nil
}

// fetchSources reads the three name sets concurrently. A failed read is logged and
// yields an empty set.
func (s *Syncer) fetchSources(ctx context.Context) (stored, hosted, active []string) {
	var g errgroup.Group

	g.Go(func() error {
		names, err := s.store.ListRepositoryNames(ctx)
		if err != nil {
			s.logger.Warn("Failed to read stored repositories, treating as empty", "error", err)
			return nil
		}
		stored = names
		return nil
	})
	g.Go(func() error {
		names, err := s.host.ListRepositoryNames(ctx)
		if err != nil {
			s.logger.Warn("Failed to list source-host repositories, treating as empty", "error", err)
			return nil
		}
		hosted = names
		return nil
	})
	g.Go(func() error {
		names, err := s.catalog.ListActiveRepositoryNames(ctx)
		if errors.Is(err, custom_errors.ErrNotConfigured) {
			s.logger.Debug("Catalog integration disabled", "error", err)
			return nil
		}
		if err != nil {
			s.logger.Warn("Failed to list catalog repositories, treating as empty", "error", err)
			return nil
		}
		active = names
		return nil
	})

	_ = g.Wait() // every source degrades instead of failing
	return stored, hosted, active
}

func (s *Syncer) qualityMembership(ctx context.Context, names []string) map[string]bool {
	results := limiter.Map(ctx, s.concurrency, names, s.quality.ProjectExists)

	registered := make(map[string]bool, len(names))
	for i, name := range names {
		if results[i].Err != nil {
			s.logger.Warn("Quality platform lookup failed, using default", "repo", name, "error", results[i].Err)
			continue
		}
		registered[name] = results[i].Value
	}
	return registered
}

func (s *Syncer) insertBatch(ctx context.Context, params []database.CreateRepositoryParams) error {
	var err error
	if len(params) == 1 {
		_, err = s.store.CreateRepository(ctx, params[0])
	} else {
		_, err = s.store.CreateRepositories(ctx, params)
	}
	if err != nil {
		return &custom_errors.StoreError{Op: fmt.Sprintf("insert %d repositories", len(params)), Err: err}
	}
	return nil
}

// SyncOne refreshes a single repository, creating it when it is not stored yet.
func (s *Syncer) SyncOne(ctx context.Context, name string) (*model.SyncOneResult, error) {
	logger := s.logger.With("repo", name)

	hosted, err := s.host.ListRepositoryNames(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(hosted, name) {
		return nil, &custom_errors.NotFoundError{Resource: "repository", Name: name}
	}

	var (
		facts      enricher.Facts
		inCatalog  bool
		registered bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := s.enricher.EnrichOne(gctx, name)
		if err != nil {
			return err
		}
		facts = f
		return nil
	})
	g.Go(func() error {
		active, err := s.catalog.ListActiveRepositoryNames(gctx)
		if errors.Is(err, custom_errors.ErrNotConfigured) {
			return nil
		}
		if err != nil {
			return err
		}
		inCatalog = slices.Contains(active, name)
		return nil
	})
	g.Go(func() error {
		exists, err := s.quality.ProjectExists(gctx, name)
		if err != nil {
			return err
		}
		registered = exists
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p := buildParams(name, facts, inCatalog, registered)
	row, err := s.store.UpsertRepository(ctx, database.UpsertRepositoryParams(p))
	if err != nil {
		return nil, &custom_errors.StoreError{Op: "upsert " + name, Err: err}
	}

	status := model.StatusUpdated
	if row.Inserted {
		status = model.StatusCreated
	}
	logger.Info("Synced repository", "status", status)

	return &model.SyncOneResult{
		Status:     status,
		Repository: toModel(upsertRowToRepository(row)),
	}, nil
}

func validateBatchSize(n int) error {
	if n < 1 || n > MaxBatchSize {
		return &custom_errors.ValidationError{
			Field:   "batch_size",
			Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxBatchSize, n),
		}
	}
	return nil
}

// diff returns the names only in hosted (in hosted order) and the names only in stored
// (in stored order).
func diff(hosted, stored []string) (added, removed []string) {
	hostedSet := toSet(hosted)
	storedSet := toSet(stored)

	added = []string{}
	seen := make(map[string]struct{}, len(hosted))
	for _, name := range hosted {
		if _, ok := storedSet[name]; ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		added = append(added, name)
	}

	removed = []string{}
	clear(seen)
	for _, name := range stored {
		if _, ok := hostedSet[name]; ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		removed = append(removed, name)
	}

	return added, removed
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func buildParams(name string, f enricher.Facts, inCatalog, registered bool) database.CreateRepositoryParams {
	contributors := f.Contributors
	if contributors == nil {
		contributors = []string{}
	}

	return database.CreateRepositoryParams{
		Name:         name,
		Contributors: contributors,
		CatalogStatus: &model.CatalogStatus{
			Active:        inCatalog,
			TechDocs:      f.TechDocs,
			QualityGate:   f.QualityGate,
			CIAnnotation:  f.CIAnnotation,
			Observability: f.Observability,
		},
		SourceHostStatus: &model.SourceHostStatus{Active: f.HasRunCI},
		QualityStatus:    &model.QualityPlatformStatus{Active: registered},
	}
}

func upsertRowToRepository(row database.UpsertRepositoryRow) database.Repository {
	return database.Repository{
		ID:               row.ID,
		Name:             row.Name,
		Contributors:     row.Contributors,
		CatalogStatus:    row.CatalogStatus,
		SourceHostStatus: row.SourceHostStatus,
		QualityStatus:    row.QualityStatus,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

// toModel translates a database row to our internal model.Repository.
func toModel(row database.Repository) model.Repository {
	repo := model.Repository{
		ID:              row.ID,
		Name:            row.Name,
		Contributors:    row.Contributors,
		Catalog:         row.CatalogStatus,
		SourceHost:      row.SourceHostStatus,
		QualityPlatform: row.QualityStatus,
		CreatedAt:       row.CreatedAt.Time,
	}
	if repo.Contributors == nil {
		repo.Contributors = []string{}
	}
	if row.UpdatedAt.Valid {
		updated := row.UpdatedAt.Time
		repo.UpdatedAt = &updated
	}
	return repo
}
