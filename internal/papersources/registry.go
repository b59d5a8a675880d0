package papersources

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/helixir/paper-search-service/internal/domain"
)

// SourceResult is what one adapter produced during a fan-out. Papers may be
// a partial list when Error is set.
type SourceResult struct {
	Source   domain.SourceType
	Papers   []*domain.Paper
	Error    error
	Duration time.Duration
}

// Registry maps source tags to adapters. Registration and lookups may run
// concurrently with searches.
type Registry struct {
	mu      sync.RWMutex
	sources map[domain.SourceType]PaperSource
}

func NewRegistry() *Registry {
	return &Registry{sources: make(map[domain.SourceType]PaperSource)}
}

// Register installs source under its tag, replacing any earlier adapter.
func (r *Registry) Register(source PaperSource) {
	r.mu.Lock()
	r.sources[source.SourceType()] = source
	r.mu.Unlock()
}

// Get returns nil for an unregistered tag.
func (r *Registry) Get(st domain.SourceType) PaperSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[st]
}

// AllSources returns a snapshot of the adapters in merge-priority order.
func (r *Registry) AllSources() []PaperSource {
	r.mu.RLock()
	all := slices.Collect(maps.Values(r.sources))
	r.mu.RUnlock()

	slices.SortFunc(all, func(a, b PaperSource) int {
		return cmp.Compare(a.SourceType().Priority(), b.SourceType().Priority())
	})
	return all
}

// SearchSources runs every registered adapter named in sourceTypes in its
// own goroutine and waits for all of them. Results keep the order of
// sourceTypes with unregistered tags left out. Adapter failures, panics
// included, are carried in the results and never abort the other sources.
func (r *Registry) SearchSources(ctx context.Context, filters domain.SearchFilters, rc RuntimeConfig, sourceTypes []domain.SourceType) []SourceResult {
	r.mu.RLock()
	picked := make([]PaperSource, 0, len(sourceTypes))
	for _, st := range sourceTypes {
		if s, ok := r.sources[st]; ok {
			picked = append(picked, s)
		}
	}
	r.mu.RUnlock()

	if len(picked) == 0 {
		return nil
	}

	results := make([]SourceResult, len(picked))
	var g errgroup.Group
	for i, s := range picked {
		g.Go(func() error {
			results[i] = runSource(ctx, s, filters, rc)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// runSource calls one adapter and turns a panic into a domain.PanicError.
func runSource(ctx context.Context, s PaperSource, filters domain.SearchFilters, rc RuntimeConfig) (res SourceResult) {
	res.Source = s.SourceType()
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if v := recover(); v != nil {
			res.Papers = nil
			res.Error = &domain.PanicError{Source: s.Name(), Value: v}
		}
	}()

	res.Papers, res.Error = s.Search(ctx, filters, rc)
	return res
}
