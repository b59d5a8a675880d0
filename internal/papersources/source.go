// Package papersources provides interfaces and types for bibliographic source adapters.
//
// Each upstream index (Semantic Scholar, OpenAlex, arXiv, Crossref, CORE)
// implements the PaperSource interface, allowing the search orchestrator to
// query every enabled source concurrently with a unified API.
//
// Example usage:
//
//	source := openalex.New(cfg, logger)
//	filters := domain.NewSearchFilters("federated learning, sepsis", nil, nil, nil)
//	papers, err := source.Search(ctx, filters, runtimeConfig)
package papersources

import (
	"context"

	"github.com/helixir/paper-search-service/internal/domain"
)

// PaperSource defines the interface that every source adapter implements.
type PaperSource interface {
	// Search queries the source for papers matching the filters.
	//
	// The returned papers are always usable, even when err is non-nil: a
	// failure after some pages were fetched yields the partial records
	// together with the error. Every returned record carries the adapter's
	// own source tag and already satisfies filters.Accepts.
	//
	// Implementations should:
	//   - Respect context cancellation
	//   - Page with the shared Pager
	//   - Read API keys, contact email and proxy from rc
	Search(ctx context.Context, filters domain.SearchFilters, rc RuntimeConfig) ([]*domain.Paper, error)

	// SourceType returns the source tag stamped on every produced record.
	SourceType() domain.SourceType

	// Name returns a human-readable name for logging and metrics.
	Name() string
}

// FilterAccepted drops records rejected by filters.Accepts and normalizes the rest.
func FilterAccepted(papers []*domain.Paper, filters domain.SearchFilters) []*domain.Paper {
	kept := papers[:0]
	for _, p := range papers {
		if p == nil {
			continue
		}
		p.Normalize()
		if filters.Accepts(p) {
			kept = append(kept, p)
		}
	}
	return kept
}
