package papersources

import (
	"context"
	"errors"
	"strings"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Low-yield retry defaults.
const (
	DefaultRetryAttempts     = 3
	DefaultLowYieldThreshold = 100
)

// QueryStrategy selects how an adapter phrases the query on a given attempt.
type QueryStrategy int

const (
	// StrategyFlattened sends the flattened query as-is.
	StrategyFlattened QueryStrategy = iota + 1

	// StrategyPhraseOR ORs the concept groups, each as a phrase.
	StrategyPhraseOR

	// StrategyTokenOR ORs every individual token.
	StrategyTokenOR
)

// StrategyForAttempt returns the strategy used on the 1-based attempt.
func StrategyForAttempt(attempt int) QueryStrategy {
	switch {
	case attempt <= 1:
		return StrategyFlattened
	case attempt == 2:
		return StrategyPhraseOR
	default:
		return StrategyTokenOR
	}
}

// RetryPolicy broadens a multi-concept query when it returns too few results.
type RetryPolicy struct {
	// Attempts is the maximum number of attempts, including the first.
	Attempts int

	// Threshold is the result count below which another attempt is made.
	Threshold int
}

// DefaultRetryPolicy returns the policy used by arXiv and OpenAlex.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  DefaultRetryAttempts,
		Threshold: DefaultLowYieldThreshold,
	}
}

// ShouldRetry reports whether another attempt should follow attempt, which
// returned count records. Single-concept queries are never retried.
func (p RetryPolicy) ShouldRetry(filters domain.SearchFilters, count, attempt int) bool {
	if !filters.IsMultiConcept() {
		return false
	}
	return count < p.Threshold && attempt < p.Attempts
}

// AttemptFunc runs one search attempt using the given strategy.
type AttemptFunc func(ctx context.Context, strategy QueryStrategy) ([]*domain.Paper, error)

// Run executes attempts until the yield is sufficient or attempts run out and
// returns the largest result set seen, with the error that accompanied it.
// Earlier attempts win ties. An attempt that ended rate limited or with the
// upstream unavailable stops the run, since a broader query hits the same
// outage.
func (p RetryPolicy) Run(ctx context.Context, filters domain.SearchFilters, attempt AttemptFunc) ([]*domain.Paper, error) {
	var best []*domain.Paper
	var bestErr error

	for n := 1; ; n++ {
		papers, err := attempt(ctx, StrategyForAttempt(n))
		if n == 1 || len(papers) > len(best) {
			best, bestErr = papers, err
		}
		if ctx.Err() != nil || upstreamDown(err) || !p.ShouldRetry(filters, len(papers), n) {
			break
		}
	}

	return best, bestErr
}

func upstreamDown(err error) bool {
	return errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrServiceUnavailable)
}

// AlternativeTerms returns the terms an adapter ORs together for strategy.
// Phrase terms for multi-word groups are double-quoted. It returns nil for
// StrategyFlattened.
func AlternativeTerms(filters domain.SearchFilters, strategy QueryStrategy) []string {
	groups := filters.ConceptGroups()

	switch strategy {
	case StrategyPhraseOR:
		terms := make([]string, 0, len(groups))
		for _, g := range groups {
			phrase := strings.Join(g, " ")
			if len(g) > 1 {
				phrase = `"` + phrase + `"`
			}
			terms = append(terms, phrase)
		}
		return terms
	case StrategyTokenOR:
		var terms []string
		seen := make(map[string]bool)
		for _, g := range groups {
			for _, tok := range g {
				if !seen[tok] {
					seen[tok] = true
					terms = append(terms, tok)
				}
			}
		}
		return terms
	default:
		return nil
	}
}
