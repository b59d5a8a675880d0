package search

import (
	"strings"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Matches reports whether p carries evidence for every concept group: at
// least one token of each group must occur in the lowercased title or
// abstract. A query without commas forms a single group, so any one of its
// words is enough.
func Matches(p *domain.Paper, groups [][]string) bool {
	if len(groups) == 0 {
		return true
	}
	text := p.SearchText()
	for _, group := range groups {
		if !containsAny(text, group) {
			return false
		}
	}
	return true
}

func containsAny(text string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(text, token) {
			return true
		}
	}
	return false
}

// FilterRelevant returns the records of papers that match groups, preserving
// their order. The input slice is not modified.
func FilterRelevant(papers []*domain.Paper, groups [][]string) []*domain.Paper {
	kept := make([]*domain.Paper, 0, len(papers))
	for _, p := range papers {
		if Matches(p, groups) {
			kept = append(kept, p)
		}
	}
	return kept
}
