package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

type fakeSource struct {
	source domain.SourceType
	search func(ctx context.Context, filters domain.SearchFilters, rc papersources.RuntimeConfig) ([]*domain.Paper, error)
}

func (f *fakeSource) Search(ctx context.Context, filters domain.SearchFilters, rc papersources.RuntimeConfig) ([]*domain.Paper, error) {
	return f.search(ctx, filters, rc)
}

func (f *fakeSource) SourceType() domain.SourceType { return f.source }

func (f *fakeSource) Name() string { return f.source.DisplayName() }

func returning(papers []*domain.Paper, err error) func(context.Context, domain.SearchFilters, papersources.RuntimeConfig) ([]*domain.Paper, error) {
	return func(context.Context, domain.SearchFilters, papersources.RuntimeConfig) ([]*domain.Paper, error) {
		return papers, err
	}
}

type staticResolver papersources.RuntimeConfig

func (r staticResolver) Resolve(context.Context) papersources.RuntimeConfig {
	return papersources.RuntimeConfig(r)
}

type fakeRecorder struct {
	mu        sync.Mutex
	started   int
	completed int
	sources   map[string]string
	relevance int
	dupes     int
}

func (r *fakeRecorder) RecordSearchStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
}

func (r *fakeRecorder) RecordSearchCompleted(int, int, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

func (r *fakeRecorder) RecordSourceSearch(source string, _ int, _ float64, errorKind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sources == nil {
		r.sources = make(map[string]string)
	}
	r.sources[source] = errorKind
}

func (r *fakeRecorder) RecordMergeStats(relevanceRemoved, duplicatesRemoved int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relevance += relevanceRemoved
	r.dupes += duplicatesRemoved
}

// papersFor builds n records for source whose titles all mention the query words.
func papersFor(source domain.SourceType, n int) []*domain.Paper {
	out := make([]*domain.Paper, 0, n)
	for i := range n {
		out = append(out, &domain.Paper{
			Title:   fmt.Sprintf("Sepsis study %s %d", source, i),
			Source:  source,
			Authors: []domain.Author{},
		})
	}
	return out
}

func newTestService(t *testing.T, rc papersources.RuntimeConfig, recorder Recorder, sources ...*fakeSource) *Service {
	t.Helper()
	registry := papersources.NewRegistry()
	for _, s := range sources {
		registry.Register(s)
	}
	return NewService(Config{}, registry, staticResolver(rc), recorder, zerolog.Nop())
}

func allEnabled() papersources.RuntimeConfig {
	return papersources.RuntimeConfig{EnabledSources: domain.DefaultEnabledSources()}
}

func assertStatistics(t *testing.T, resp *Response) {
	t.Helper()
	assert.Equal(t, resp.Meta.RawTotal(), resp.Meta.RelevanceRemoved+resp.Meta.DuplicatesRemoved+resp.Meta.Total)
	assert.Len(t, resp.Results, resp.Meta.Total)
}

func TestService_Search_PartialFailure(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{}
	svc := newTestService(t, allEnabled(), recorder,
		&fakeSource{source: domain.SourceTypeSemantic, search: returning(papersFor(domain.SourceTypeSemantic, 10), nil)},
		&fakeSource{source: domain.SourceTypeOpenAlex, search: returning(papersFor(domain.SourceTypeOpenAlex, 8), nil)},
		&fakeSource{source: domain.SourceTypeArXiv, search: returning(nil, domain.NewExternalAPIError("arXiv", http.StatusServiceUnavailable, "down", nil))},
	)

	resp, err := svc.Search(context.Background(), domain.NewSearchFilters("sepsis", nil, nil, nil))
	require.NoError(t, err)

	require.Len(t, resp.Meta.Errors, 1)
	assert.True(t, strings.HasPrefix(resp.Meta.Errors[0], "arXiv: UpstreamUnavailable - "), resp.Meta.Errors[0])
	assert.Equal(t, 10, resp.Meta.RawSemantic)
	assert.Equal(t, 8, resp.Meta.RawOpenAlex)
	assert.Equal(t, 0, resp.Meta.RawArXiv)
	assert.LessOrEqual(t, resp.Meta.Total, 18)
	assertStatistics(t, resp)

	assert.Equal(t, 1, recorder.started)
	assert.Equal(t, 1, recorder.completed)
	assert.Equal(t, "UpstreamUnavailable", recorder.sources["arxiv"])
	assert.Equal(t, "", recorder.sources["semantic"])
}

func TestService_Search_PartialRecordsStillCount(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, allEnabled(), nil,
		&fakeSource{source: domain.SourceTypeCrossref, search: returning(papersFor(domain.SourceTypeCrossref, 3), domain.NewRateLimitError("Crossref", time.Second))},
	)

	resp, err := svc.Search(context.Background(), domain.NewSearchFilters("sepsis", nil, nil, nil))
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Meta.RawCrossref)
	assert.Equal(t, 3, resp.Meta.Total)
	require.Len(t, resp.Meta.Errors, 1)
	assert.True(t, strings.HasPrefix(resp.Meta.Errors[0], "Crossref: RateLimited - "))
	assertStatistics(t, resp)
}

func TestService_Search_NoSourcesEnabled(t *testing.T) {
	t.Parallel()

	called := false
	svc := newTestService(t, papersources.RuntimeConfig{}, nil,
		&fakeSource{source: domain.SourceTypeSemantic, search: func(context.Context, domain.SearchFilters, papersources.RuntimeConfig) ([]*domain.Paper, error) {
			called = true
			return nil, nil
		}},
	)

	resp, err := svc.Search(context.Background(), domain.NewSearchFilters("sepsis", nil, nil, nil))
	require.NoError(t, err)

	assert.False(t, called)
	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
	assert.Equal(t, 0, resp.Meta.Total)
	assert.Equal(t, []string{"no search sources are enabled"}, resp.Meta.Errors)
}

func TestService_Search_OnlyEnabledSourcesRun(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var ran []domain.SourceType
	track := func(st domain.SourceType) *fakeSource {
		return &fakeSource{source: st, search: func(context.Context, domain.SearchFilters, papersources.RuntimeConfig) ([]*domain.Paper, error) {
			mu.Lock()
			ran = append(ran, st)
			mu.Unlock()
			return papersFor(st, 1), nil
		}}
	}

	rc := papersources.RuntimeConfig{EnabledSources: []domain.SourceType{domain.SourceTypeCORE, domain.SourceTypeArXiv, domain.SourceTypeManual}}
	svc := newTestService(t, rc, nil,
		track(domain.SourceTypeSemantic), track(domain.SourceTypeArXiv), track(domain.SourceTypeCORE),
	)

	resp, err := svc.Search(context.Background(), domain.NewSearchFilters("sepsis", nil, nil, nil))
	require.NoError(t, err)

	assert.ElementsMatch(t, []domain.SourceType{domain.SourceTypeArXiv, domain.SourceTypeCORE}, ran)
	assert.Equal(t, 0, resp.Meta.RawSemantic)
	assert.Equal(t, 1, resp.Meta.RawArXiv)
	assert.Equal(t, 1, resp.Meta.RawCORE)
}

func TestService_Search_DropsForeignSourceRecords(t *testing.T) {
	t.Parallel()

	rogue := papersFor(domain.SourceTypeSemantic, 2)
	mixed := append(papersFor(domain.SourceTypeOpenAlex, 3), rogue...)
	mixed = append(mixed, nil)

	rc := papersources.RuntimeConfig{EnabledSources: []domain.SourceType{domain.SourceTypeOpenAlex}}
	svc := newTestService(t, rc, nil,
		&fakeSource{source: domain.SourceTypeOpenAlex, search: returning(mixed, nil)},
	)

	resp, err := svc.Search(context.Background(), domain.NewSearchFilters("sepsis", nil, nil, nil))
	require.NoError(t, err)

	assert.Equal(t, 3, resp.Meta.RawOpenAlex)
	assert.Equal(t, 0, resp.Meta.RawSemantic)
	for _, p := range resp.Results {
		assert.Equal(t, domain.SourceTypeOpenAlex, p.Source)
	}
	assertStatistics(t, resp)
}

func TestService_Search_MergesAcrossSources(t *testing.T) {
	t.Parallel()

	crossref := &domain.Paper{Title: "Federated learning for sepsis", Source: domain.SourceTypeCrossref, ExternalID: "10.1/x"}
	semantic := &domain.Paper{Title: "Federated Learning for Sepsis", Source: domain.SourceTypeSemantic, ExternalID: "10.1/X"}
	offTopic := &domain.Paper{Title: "Sepsis biomarkers", Source: domain.SourceTypeCrossref}

	svc := newTestService(t, allEnabled(), nil,
		&fakeSource{source: domain.SourceTypeCrossref, search: returning([]*domain.Paper{crossref, offTopic}, nil)},
		&fakeSource{source: domain.SourceTypeSemantic, search: returning([]*domain.Paper{semantic}, nil)},
	)

	resp, err := svc.Search(context.Background(), domain.NewSearchFilters("federated learning, sepsis", nil, nil, nil))
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	assert.Same(t, semantic, resp.Results[0])
	assert.Equal(t, 1, resp.Meta.RelevanceRemoved)
	assert.Equal(t, 1, resp.Meta.DuplicatesRemoved)
	assertStatistics(t, resp)
}

func TestService_Search_PanickingSource(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, allEnabled(), nil,
		&fakeSource{source: domain.SourceTypeCORE, search: func(context.Context, domain.SearchFilters, papersources.RuntimeConfig) ([]*domain.Paper, error) {
			panic("boom")
		}},
		&fakeSource{source: domain.SourceTypeOpenAlex, search: returning(papersFor(domain.SourceTypeOpenAlex, 2), nil)},
	)

	resp, err := svc.Search(context.Background(), domain.NewSearchFilters("sepsis", nil, nil, nil))
	require.NoError(t, err)

	require.Len(t, resp.Meta.Errors, 1)
	assert.True(t, strings.HasPrefix(resp.Meta.Errors[0], "CORE: Panic - "))
	assert.Equal(t, 2, resp.Meta.Total)
}

func TestService_Search_Cancellation(t *testing.T) {
	t.Parallel()

	blocking := func(ctx context.Context, _ domain.SearchFilters, _ papersources.RuntimeConfig) ([]*domain.Paper, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	svc := newTestService(t, allEnabled(), nil,
		&fakeSource{source: domain.SourceTypeArXiv, search: blocking},
		&fakeSource{source: domain.SourceTypeCrossref, search: blocking},
	)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	done := make(chan *Response, 1)
	go func() {
		resp, err := svc.Search(ctx, domain.NewSearchFilters("sepsis", nil, nil, nil))
		assert.NoError(t, err)
		done <- resp
	}()

	select {
	case resp := <-done:
		require.Len(t, resp.Meta.Errors, 2)
		for _, e := range resp.Meta.Errors {
			assert.Contains(t, e, ": Canceled - ")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("search did not observe cancellation")
	}
}

func TestService_Search_Timeout(t *testing.T) {
	t.Parallel()

	registry := papersources.NewRegistry()
	registry.Register(&fakeSource{source: domain.SourceTypeSemantic, search: func(ctx context.Context, _ domain.SearchFilters, _ papersources.RuntimeConfig) ([]*domain.Paper, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	svc := NewService(Config{Timeout: 20 * time.Millisecond}, registry, staticResolver(allEnabled()), nil, zerolog.Nop())

	resp, err := svc.Search(context.Background(), domain.NewSearchFilters("sepsis", nil, nil, nil))
	require.NoError(t, err)

	require.Len(t, resp.Meta.Errors, 1)
	assert.True(t, strings.HasPrefix(resp.Meta.Errors[0], "Semantic Scholar: Timeout - "))
}

func TestService_Search_InvalidFilters(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, allEnabled(), nil)

	_, err := svc.Search(context.Background(), domain.NewSearchFilters("   ", nil, nil, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = svc.Search(context.Background(), domain.NewSearchFilters("x", domain.IntPtr(2020), domain.IntPtr(2010), nil))
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestService_Search_PassesRuntimeConfig(t *testing.T) {
	t.Parallel()

	rc := papersources.RuntimeConfig{
		EnabledSources: []domain.SourceType{domain.SourceTypeCORE},
		CoreAPIKey:     "core-key",
		ProxyURL:       "http://proxy:3128",
	}
	var got papersources.RuntimeConfig
	svc := newTestService(t, rc, nil,
		&fakeSource{source: domain.SourceTypeCORE, search: func(_ context.Context, _ domain.SearchFilters, rc papersources.RuntimeConfig) ([]*domain.Paper, error) {
			got = rc
			return nil, nil
		}},
	)

	_, err := svc.Search(context.Background(), domain.NewSearchFilters("sepsis", nil, nil, nil))
	require.NoError(t, err)

	assert.Equal(t, "core-key", got.CoreAPIKey)
	assert.Equal(t, "http://proxy:3128", got.ProxyURL)
}
