package domain

import (
	"regexp"
	"strings"
)

// Year bounds accepted by search filters.
const (
	MinFilterYear = 1900
	MaxFilterYear = 2100

	// MaxQueryLength is the longest accepted query, in characters.
	MaxQueryLength = 1000
)

// commaRun matches a comma with any surrounding whitespace.
var commaRun = regexp.MustCompile(`\s*,\s*`)

// SearchFilters is the input to every adapter.
//
// Query is the flattened form sent upstream. OriginalQuery keeps the
// comma-delimited concept groups as the user typed them; it drives the
// relevance filter and the low-yield retry policy.
type SearchFilters struct {
	Query         string
	OriginalQuery string
	YearStart     *int
	YearEnd       *int
	MinCitations  *int
}

// NewSearchFilters builds filters from a raw user query.
func NewSearchFilters(rawQuery string, yearStart, yearEnd, minCitations *int) SearchFilters {
	return SearchFilters{
		Query:         FlattenQuery(rawQuery),
		OriginalQuery: strings.TrimSpace(rawQuery),
		YearStart:     yearStart,
		YearEnd:       yearEnd,
		MinCitations:  minCitations,
	}
}

// FlattenQuery turns comma separators into spaces and collapses whitespace.
func FlattenQuery(raw string) string {
	return CollapseWhitespace(commaRun.ReplaceAllString(raw, " "))
}

// ParseConceptGroups splits a query on commas into lowercased concept groups,
// each a list of whitespace-separated tokens. Empty groups are skipped.
func ParseConceptGroups(query string) [][]string {
	var groups [][]string
	for _, part := range strings.Split(strings.ToLower(query), ",") {
		tokens := strings.Fields(part)
		if len(tokens) > 0 {
			groups = append(groups, tokens)
		}
	}
	return groups
}

// ConceptGroups returns the concept groups of the original query. When the
// original query yields none, the flattened query forms a single group.
func (f SearchFilters) ConceptGroups() [][]string {
	source := f.OriginalQuery
	if source == "" {
		source = f.Query
	}
	if groups := ParseConceptGroups(source); len(groups) > 0 {
		return groups
	}
	if tokens := strings.Fields(strings.ToLower(f.Query)); len(tokens) > 0 {
		return [][]string{tokens}
	}
	return nil
}

// IsMultiConcept reports whether the original query holds two or more concept groups.
func (f SearchFilters) IsMultiConcept() bool {
	return len(f.ConceptGroups()) > 1
}

// Validate checks the filter bounds.
func (f SearchFilters) Validate() error {
	if strings.TrimSpace(f.Query) == "" {
		return NewValidationError("query", "query is required")
	}
	if len([]rune(strings.TrimSpace(f.OriginalQuery))) > MaxQueryLength {
		return NewValidationError("query", "must be at most 1000 characters")
	}
	for field, year := range map[string]*int{"year_start": f.YearStart, "year_end": f.YearEnd} {
		if year != nil && (*year < MinFilterYear || *year > MaxFilterYear) {
			return NewValidationError(field, "must be between 1900 and 2100")
		}
	}
	if f.YearStart != nil && f.YearEnd != nil && *f.YearStart > *f.YearEnd {
		return NewValidationError("year_start", "must not be after year_end")
	}
	if f.MinCitations != nil && *f.MinCitations < 0 {
		return NewValidationError("min_citations", "must not be negative")
	}
	return nil
}

// Accepts applies the client-side safety net shared by every adapter.
// Records with an unknown year pass the year bounds.
func (f SearchFilters) Accepts(p *Paper) bool {
	if p.Year != nil {
		if f.YearStart != nil && *p.Year < *f.YearStart {
			return false
		}
		if f.YearEnd != nil && *p.Year > *f.YearEnd {
			return false
		}
	}
	if f.MinCitations != nil && *f.MinCitations > 0 && p.CitationCount < *f.MinCitations {
		return false
	}
	return true
}
