// Package enricher fetches the per-repository facts stored alongside each repository:
// contributors, CI activity, documentation and catalog annotations, and quality-gate
// configuration.
package enricher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"repo-catalog-sync/internal/limiter"
)

const (
	DefaultChunkSize  = 10
	DefaultChunkPause = time.Second
)

// Markers searched for in catalog descriptors and code search.
const (
	ciAnnotationMarker     = "github.com/project-slug"
	observabilityMarker    = "datadoghq.com/graph-token"
	qualityProjectKey      = "sonarqube.org/project-key"
	qualityOrganizationKey = "sonarqube.org/organization-key"
)

var (
	techDocsFiles = []string{"mkdocs.yml", "mkdocs.yaml"}
	catalogFiles  = []string{"catalog-info.yaml", "catalog-info.yml"}
)

// Fact names used in logs and Facts.Degraded.
const (
	FactContributors = "contributors"
	FactCI           = "ci"
	FactMarkerFiles  = "marker_files"
	FactQualityGate  = "quality_gate"
)

// SourceHost is the subset of the source-host adapter the enricher needs.
type SourceHost interface {
	Organization() string
	ListContributors(ctx context.Context, name string) ([]string, error)
	HasRanCI(ctx context.Context, name string) (bool, error)
	GetFileContent(ctx context.Context, name, path string) (string, bool, error)
	CodeSearchCount(ctx context.Context, query string) (int, error)
}

// Facts is everything the enricher learns about one repository.
type Facts struct {
	Contributors  []string
	HasRunCI      bool
	TechDocs      bool
	CIAnnotation  bool
	Observability bool
	QualityGate   bool

	// Degraded lists the facts that fell back to their default because a fetch failed.
	Degraded []string
}

// Options tunes batch enrichment.
type Options struct {
	Concurrency int
	ChunkSize   int
	ChunkPause  time.Duration
}

// Enricher fetches Facts from the source host.
type Enricher struct {
	host   SourceHost
	opts   Options
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates an Enricher. Zero options fall back to package defaults.
func New(host SourceHost, opts Options, logger *slog.Logger) *Enricher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = limiter.DefaultConcurrency
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkPause < 0 {
		opts.ChunkPause = 0
	}

	return &Enricher{
		host:   host,
		opts:   opts,
		logger: logger,
		sleep:  Sleep,
	}
}

// Enrich fetches facts for every name. Names are processed in chunks with a pause
// between chunks. A failed fetch degrades that one fact to its default and is logged;
// it never fails the batch.
func (e *Enricher) Enrich(ctx context.Context, names []string) map[string]Facts {
	facts := make(map[string]Facts, len(names))

	chunks := limiter.Chunk(names, e.opts.ChunkSize)
	for i, chunk := range chunks {
		e.logger.Debug("Enriching chunk", "chunk", i+1, "of", len(chunks), "size", len(chunk))
		e.enrichChunk(ctx, chunk, facts)

		if i == len(chunks)-1 {
			break
		}
		if err := e.sleep(ctx, e.opts.ChunkPause); err != nil {
			e.logger.Warn("Enrichment interrupted between chunks", "error", err, "enriched", len(facts), "requested", len(names))
			break
		}
	}

	return facts
}

func (e *Enricher) enrichChunk(ctx context.Context, chunk []string, out map[string]Facts) {
	var (
		contributors []limiter.Result[[]string]
		ci           []limiter.Result[bool]
		markers      []limiter.Result[markerFacts]
		quality      []limiter.Result[bool]
	)

	// Each category is capped separately; categories run side by side.
	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		contributors = limiter.Map(ctx, e.opts.Concurrency, chunk, e.host.ListContributors)
	}()
	go func() {
		defer wg.Done()
		ci = limiter.Map(ctx, e.opts.Concurrency, chunk, e.host.HasRanCI)
	}()
	go func() {
		defer wg.Done()
		markers = limiter.Map(ctx, e.opts.Concurrency, chunk, e.checkMarkerFiles)
	}()
	go func() {
		defer wg.Done()
		quality = limiter.Map(ctx, e.opts.Concurrency, chunk, e.hasQualityGate)
	}()
	wg.Wait()

	for i, name := range chunk {
		f := Facts{Contributors: []string{}}
		logger := e.logger.With("repo", name)

		if r := contributors[i]; r.Err != nil {
			f.degrade(logger, FactContributors, r.Err)
		} else if r.Value != nil {
			f.Contributors = r.Value
		}

		if r := ci[i]; r.Err != nil {
			f.degrade(logger, FactCI, r.Err)
		} else {
			f.HasRunCI = r.Value
		}

		// Marker results are partial on error: files that were read still count.
		m := markers[i]
		f.TechDocs = m.Value.techDocs
		f.CIAnnotation = m.Value.ciAnnotation
		f.Observability = m.Value.observability
		if m.Err != nil {
			f.degrade(logger, FactMarkerFiles, m.Err)
		}

		if r := quality[i]; r.Err != nil {
			f.degrade(logger, FactQualityGate, r.Err)
		} else {
			f.QualityGate = r.Value
		}

		out[name] = f
	}
}

func (f *Facts) degrade(logger *slog.Logger, fact string, err error) {
	logger.Warn("Fact fetch failed, using default", "fact", fact, "error", err)
	f.Degraded = append(f.Degraded, fact)
}

// EnrichOne fetches facts for a single repository. Unlike Enrich, the first failed
// fetch is returned to the caller.
func (e *Enricher) EnrichOne(ctx context.Context, name string) (Facts, error) {
	var f Facts

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		contributors, err := e.host.ListContributors(gctx, name)
		if err != nil {
			return fmt.Errorf("%s: %w", FactContributors, err)
		}
		f.Contributors = contributors
		return nil
	})
	g.Go(func() error {
		ran, err := e.host.HasRanCI(gctx, name)
		if err != nil {
			return fmt.Errorf("%s: %w", FactCI, err)
		}
		f.HasRunCI = ran
		return nil
	})
	g.Go(func() error {
		m, err := e.checkMarkerFiles(gctx, name)
		if err != nil {
			return fmt.Errorf("%s: %w", FactMarkerFiles, err)
		}
		f.TechDocs = m.techDocs
		f.CIAnnotation = m.ciAnnotation
		f.Observability = m.observability
		return nil
	})
	g.Go(func() error {
		gate, err := e.hasQualityGate(gctx, name)
		if err != nil {
			return fmt.Errorf("%s: %w", FactQualityGate, err)
		}
		f.QualityGate = gate
		return nil
	})

	if err := g.Wait(); err != nil {
		return Facts{}, err
	}
	if f.Contributors == nil {
		f.Contributors = []string{}
	}
	return f, nil
}

type markerFacts struct {
	techDocs      bool
	ciAnnotation  bool
	observability bool
}

type file struct {
	content string
	found   bool
}

// checkMarkerFiles reads the documentation configs and catalog descriptors in one
// concurrent fan-out. The returned facts reflect every file that could be read, even
// when err is non-nil.
func (e *Enricher) checkMarkerFiles(ctx context.Context, name string) (markerFacts, error) {
	paths := make([]string, 0, len(techDocsFiles)+len(catalogFiles))
	paths = append(paths, techDocsFiles...)
	paths = append(paths, catalogFiles...)

	results := limiter.Map(ctx, len(paths), paths, func(ctx context.Context, path string) (file, error) {
		content, found, err := e.host.GetFileContent(ctx, name, path)
		return file{content: content, found: found}, err
	})

	var (
		m    markerFacts
		errs []error
	)
	for i, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", paths[i], r.Err))
			continue
		}
		if !r.Value.found {
			continue
		}
		if i < len(techDocsFiles) {
			m.techDocs = true
			continue
		}
		if strings.Contains(r.Value.content, ciAnnotationMarker) {
			m.ciAnnotation = true
		}
		if strings.Contains(r.Value.content, observabilityMarker) {
			m.observability = true
		}
	}

	return m, errors.Join(errs...)
}

// hasQualityGate looks for either quality annotation with a single code search.
func (e *Enricher) hasQualityGate(ctx context.Context, name string) (bool, error) {
	query := fmt.Sprintf(`repo:%s/%s "%s" OR "%s" in:file`, e.host.Organization(), name, qualityProjectKey, qualityOrganizationKey)
	count, err := e.host.CodeSearchCount(ctx, query)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
