package search

import (
	"github.com/helixir/paper-search-service/internal/dedup"
	"github.com/helixir/paper-search-service/internal/domain"
)

// Meta carries the provenance and quality statistics of one search.
//
// The counts always satisfy
//
//	RawTotal() == RelevanceRemoved + DuplicatesRemoved + Total
type Meta struct {
	RawSemantic       int      `json:"raw_semantic"`
	RawOpenAlex       int      `json:"raw_openalex"`
	RawArXiv          int      `json:"raw_arxiv"`
	RawCrossref       int      `json:"raw_crossref"`
	RawCORE           int      `json:"raw_core"`
	RelevanceRemoved  int      `json:"relevance_removed"`
	DuplicatesRemoved int      `json:"duplicates_removed"`
	Total             int      `json:"total"`
	Errors            []string `json:"errors"`
}

// Response is the merged result of one search.
type Response struct {
	Results []*domain.Paper `json:"results"`
	Meta    Meta            `json:"meta"`
}

// SetRaw stores the raw count for an adapter source. Other tags are ignored.
func (m *Meta) SetRaw(source domain.SourceType, n int) {
	switch source {
	case domain.SourceTypeSemantic:
		m.RawSemantic = n
	case domain.SourceTypeOpenAlex:
		m.RawOpenAlex = n
	case domain.SourceTypeArXiv:
		m.RawArXiv = n
	case domain.SourceTypeCrossref:
		m.RawCrossref = n
	case domain.SourceTypeCORE:
		m.RawCORE = n
	}
}

// Raw returns the raw count recorded for source.
func (m Meta) Raw(source domain.SourceType) int {
	switch source {
	case domain.SourceTypeSemantic:
		return m.RawSemantic
	case domain.SourceTypeOpenAlex:
		return m.RawOpenAlex
	case domain.SourceTypeArXiv:
		return m.RawArXiv
	case domain.SourceTypeCrossref:
		return m.RawCrossref
	case domain.SourceTypeCORE:
		return m.RawCORE
	}
	return 0
}

// RawTotal sums the raw counts of every adapter source.
func (m Meta) RawTotal() int {
	return m.RawSemantic + m.RawOpenAlex + m.RawArXiv + m.RawCrossref + m.RawCORE
}

// emptyResponse returns a response with no records and the given errors.
func emptyResponse(errs ...string) *Response {
	if errs == nil {
		errs = []string{}
	}
	return &Response{Results: []*domain.Paper{}, Meta: Meta{Errors: errs}}
}

// Assemble runs the relevance filter and deduplication over the collected
// records and fills in the merge statistics. raw must already carry the
// per-source counts and errors.
func Assemble(papers []*domain.Paper, groups [][]string, raw Meta) *Response {
	relevant := FilterRelevant(papers, groups)
	unique := dedup.Deduplicate(relevant)

	meta := raw
	if meta.Errors == nil {
		meta.Errors = []string{}
	}
	meta.RelevanceRemoved = len(papers) - len(relevant)
	meta.DuplicatesRemoved = len(relevant) - len(unique)
	meta.Total = len(unique)

	return &Response{Results: unique, Meta: meta}
}
