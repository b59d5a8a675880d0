// Package search fans a query out to every enabled paper source, filters the
// merged records for relevance, deduplicates them and reports statistics.
package search

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/papersources"
)

// DefaultTimeout bounds a whole aggregated search.
const DefaultTimeout = 120 * time.Second

// SourceSearcher runs a set of sources concurrently.
// *papersources.Registry satisfies it.
type SourceSearcher interface {
	SearchSources(ctx context.Context, filters domain.SearchFilters, rc papersources.RuntimeConfig, sourceTypes []domain.SourceType) []papersources.SourceResult
}

// RuntimeResolver produces the per-search runtime configuration. It must not
// fail: missing settings resolve to defaults.
type RuntimeResolver interface {
	Resolve(ctx context.Context) papersources.RuntimeConfig
}

// Recorder receives search metrics. *observability.Metrics satisfies it.
type Recorder interface {
	RecordSearchStarted()
	RecordSearchCompleted(total, errorCount int, durationSeconds float64)
	RecordSourceSearch(source string, paperCount int, durationSeconds float64, errorKind string)
	RecordMergeStats(relevanceRemoved, duplicatesRemoved int)
}

// Config holds orchestrator settings.
type Config struct {
	// Timeout bounds the whole search. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Service is the search aggregation engine.
type Service struct {
	sources  SourceSearcher
	resolver RuntimeResolver
	recorder Recorder
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewService creates a search service. recorder may be nil.
func NewService(cfg Config, sources SourceSearcher, resolver RuntimeResolver, recorder Recorder, logger zerolog.Logger) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		sources:  sources,
		resolver: resolver,
		recorder: recorder,
		timeout:  timeout,
		logger:   logger.With().Str("component", "search").Logger(),
	}
}

// Search runs one aggregated search.
//
// Only invalid filters produce an error. Source failures, disabled sources
// and cancellation are reported in Meta.Errors of a successful response.
func (s *Service) Search(ctx context.Context, filters domain.SearchFilters) (*Response, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	logger := observability.FromContext(ctx, s.logger).With().Str("query", filters.OriginalQuery).Logger()
	if s.recorder != nil {
		s.recorder.RecordSearchStarted()
	}

	rc := s.resolver.Resolve(ctx)
	active := activeSources(rc)
	if len(active) == 0 {
		logger.Warn().Msg("search skipped, no sources enabled")
		resp := emptyResponse(domain.ErrNoSourcesEnabled.Error())
		s.recordCompleted(resp, start)
		return resp, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results := s.sources.SearchSources(ctx, filters, rc, active)

	var raw Meta
	raw.Errors = []string{}
	var collected []*domain.Paper
	for _, result := range results {
		papers := s.ownRecords(logger, result)
		raw.SetRaw(result.Source, len(papers))
		collected = append(collected, papers...)

		errorKind := ""
		if result.Error != nil {
			errorKind = string(domain.ClassifyError(result.Error))
			raw.Errors = append(raw.Errors, domain.FormatSourceError(result.Source, result.Error))
			logger.Warn().
				Err(result.Error).
				Str("source", string(result.Source)).
				Str("kind", errorKind).
				Int("partial", len(papers)).
				Msg("source search failed")
		}
		if s.recorder != nil {
			s.recorder.RecordSourceSearch(string(result.Source), len(papers), result.Duration.Seconds(), errorKind)
		}
	}

	resp := Assemble(collected, filters.ConceptGroups(), raw)
	if s.recorder != nil {
		s.recorder.RecordMergeStats(resp.Meta.RelevanceRemoved, resp.Meta.DuplicatesRemoved)
	}
	s.recordCompleted(resp, start)

	logger.Info().
		Int("raw", resp.Meta.RawTotal()).
		Int("relevance_removed", resp.Meta.RelevanceRemoved).
		Int("duplicates_removed", resp.Meta.DuplicatesRemoved).
		Int("total", resp.Meta.Total).
		Int("errors", len(resp.Meta.Errors)).
		Dur("duration", time.Since(start)).
		Msg("search completed")

	return resp, nil
}

func (s *Service) recordCompleted(resp *Response, start time.Time) {
	if s.recorder != nil {
		s.recorder.RecordSearchCompleted(resp.Meta.Total, len(resp.Meta.Errors), time.Since(start).Seconds())
	}
}

// ownRecords drops nil records and records tagged with a source other than
// the adapter that returned them.
func (s *Service) ownRecords(logger zerolog.Logger, result papersources.SourceResult) []*domain.Paper {
	kept := make([]*domain.Paper, 0, len(result.Papers))
	rogue := 0
	for _, p := range result.Papers {
		if p == nil {
			continue
		}
		if p.Source != result.Source {
			rogue++
			continue
		}
		kept = append(kept, p)
	}
	if rogue > 0 {
		logger.Warn().
			Str("source", string(result.Source)).
			Int("dropped", rogue).
			Msg("dropped records tagged with a foreign source")
	}
	return kept
}

// activeSources returns the enabled adapter sources in canonical order.
func activeSources(rc papersources.RuntimeConfig) []domain.SourceType {
	var active []domain.SourceType
	for _, st := range domain.AdapterSources() {
		if rc.IsEnabled(st) {
			active = append(active, st)
		}
	}
	return active
}
