package papersources

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
)

func papersN(n int) []*domain.Paper {
	out := make([]*domain.Paper, n)
	for i := range out {
		out[i] = &domain.Paper{Title: "p"}
	}
	return out
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	policy := DefaultRetryPolicy()
	multi := domain.NewSearchFilters("federated learning, sepsis", nil, nil, nil)
	single := domain.NewSearchFilters("federated learning", nil, nil, nil)

	tests := []struct {
		name     string
		filters  domain.SearchFilters
		count    int
		attempt  int
		expected bool
	}{
		{name: "multi concept low yield", filters: multi, count: 12, attempt: 1, expected: true},
		{name: "second attempt still low", filters: multi, count: 12, attempt: 2, expected: true},
		{name: "attempts exhausted", filters: multi, count: 12, attempt: 3, expected: false},
		{name: "enough results", filters: multi, count: 100, attempt: 1, expected: false},
		{name: "single concept never retries", filters: single, count: 0, attempt: 1, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, policy.ShouldRetry(tt.filters, tt.count, tt.attempt))
		})
	}
}

func TestRetryPolicy_Run(t *testing.T) {
	multi := domain.NewSearchFilters("federated learning, sepsis", nil, nil, nil)

	t.Run("returns largest attempt", func(t *testing.T) {
		var strategies []QueryStrategy
		yields := map[QueryStrategy]int{StrategyFlattened: 12, StrategyPhraseOR: 340, StrategyTokenOR: 200}

		papers, err := DefaultRetryPolicy().Run(context.Background(), multi, func(_ context.Context, s QueryStrategy) ([]*domain.Paper, error) {
			strategies = append(strategies, s)
			return papersN(yields[s]), nil
		})

		require.NoError(t, err)
		assert.Len(t, papers, 340)
		assert.Equal(t, []QueryStrategy{StrategyFlattened, StrategyPhraseOR}, strategies)
	})

	t.Run("all attempts low keeps the best", func(t *testing.T) {
		yields := map[QueryStrategy]int{StrategyFlattened: 5, StrategyPhraseOR: 40, StrategyTokenOR: 30}
		calls := 0

		papers, err := DefaultRetryPolicy().Run(context.Background(), multi, func(_ context.Context, s QueryStrategy) ([]*domain.Paper, error) {
			calls++
			return papersN(yields[s]), nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Len(t, papers, 40)
	})

	t.Run("single concept runs once", func(t *testing.T) {
		calls := 0
		single := domain.NewSearchFilters("sepsis", nil, nil, nil)

		papers, _ := DefaultRetryPolicy().Run(context.Background(), single, func(context.Context, QueryStrategy) ([]*domain.Paper, error) {
			calls++
			return papersN(3), nil
		})

		assert.Equal(t, 1, calls)
		assert.Len(t, papers, 3)
	})

	t.Run("failed first attempt is replaced by a better one", func(t *testing.T) {
		papers, err := DefaultRetryPolicy().Run(context.Background(), multi, func(_ context.Context, s QueryStrategy) ([]*domain.Paper, error) {
			if s == StrategyFlattened {
				return nil, errors.New("timeout")
			}
			return papersN(150), nil
		})

		require.NoError(t, err)
		assert.Len(t, papers, 150)
	})

	t.Run("upstream outage is not retried", func(t *testing.T) {
		outages := map[string]error{
			"rate limited":        fmt.Errorf("max retries exhausted: %w", domain.NewRateLimitError("arXiv", time.Second)),
			"service unavailable": domain.NewExternalAPIError("arXiv", 503, "max retries exhausted", domain.ErrServiceUnavailable),
		}
		for name, outage := range outages {
			t.Run(name, func(t *testing.T) {
				calls := 0
				papers, err := DefaultRetryPolicy().Run(context.Background(), multi, func(context.Context, QueryStrategy) ([]*domain.Paper, error) {
					calls++
					return papersN(2), outage
				})

				assert.ErrorIs(t, err, outage)
				assert.Len(t, papers, 2)
				assert.Equal(t, 1, calls)
			})
		}
	})

	t.Run("stops when context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0

		_, err := DefaultRetryPolicy().Run(ctx, multi, func(context.Context, QueryStrategy) ([]*domain.Paper, error) {
			calls++
			cancel()
			return nil, context.Canceled
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestAlternativeTerms(t *testing.T) {
	filters := domain.NewSearchFilters("Federated Learning, sepsis, learning", nil, nil, nil)

	assert.Nil(t, AlternativeTerms(filters, StrategyFlattened))
	assert.Equal(t, []string{`"federated learning"`, "sepsis", "learning"}, AlternativeTerms(filters, StrategyPhraseOR))
	assert.Equal(t, []string{"federated", "learning", "sepsis"}, AlternativeTerms(filters, StrategyTokenOR))
}

func TestStrategyForAttempt(t *testing.T) {
	assert.Equal(t, StrategyFlattened, StrategyForAttempt(1))
	assert.Equal(t, StrategyPhraseOR, StrategyForAttempt(2))
	assert.Equal(t, StrategyTokenOR, StrategyForAttempt(3))
	assert.Equal(t, StrategyTokenOR, StrategyForAttempt(7))
}
