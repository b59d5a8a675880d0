package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper search service.
// Metrics are organized by subsystem: aggregated searches, per-source
// searches, merge statistics, upstream HTTP requests and library hand-offs.
// All counters and histograms are registered via promauto with the default
// Prometheus registry.
type Metrics struct {
	// SearchesStarted counts aggregated searches that passed validation.
	SearchesStarted prometheus.Counter

	// SearchesCompleted counts aggregated searches that returned a response.
	SearchesCompleted prometheus.Counter

	// SearchesWithErrors counts aggregated searches that carried at least one source error.
	SearchesWithErrors prometheus.Counter

	// SearchDuration tracks aggregated search duration.
	SearchDuration prometheus.Histogram

	// ResultsPerSearch tracks the final record count per search.
	ResultsPerSearch prometheus.Histogram

	// SourceSearches counts adapter invocations by source and outcome.
	SourceSearches *prometheus.CounterVec

	// SourceErrors counts adapter errors by source and error kind.
	SourceErrors *prometheus.CounterVec

	// SourceSearchDuration tracks adapter wall time by source.
	SourceSearchDuration *prometheus.HistogramVec

	// PapersBySource counts raw records returned per source.
	PapersBySource *prometheus.CounterVec

	// RelevanceRemoved counts records dropped by the relevance filter.
	RelevanceRemoved prometheus.Counter

	// DuplicatesRemoved counts records merged away by deduplication.
	DuplicatesRemoved prometheus.Counter

	// SourceRequestsTotal counts upstream HTTP requests.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed upstream HTTP requests.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration tracks upstream HTTP request duration.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts 429 responses from upstreams.
	SourceRateLimited *prometheus.CounterVec

	// LibraryImports counts library hand-offs by outcome.
	LibraryImports *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Aggregated searches
		SearchesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of aggregated searches started",
		}),
		SearchesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of aggregated searches completed",
		}),
		SearchesWithErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_with_errors_total",
			Help:      "Total number of aggregated searches that reported source errors",
		}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of aggregated searches in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		ResultsPerSearch: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "results_per_search",
			Help:      "Number of merged records returned per search",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 13),
		}),

		// Per-source searches
		SourceSearches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_searches_total",
			Help:      "Total number of adapter searches by source and outcome",
		}, []string{"source", "outcome"}),
		SourceErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Total number of adapter errors by source and kind",
		}, []string{"source", "kind"}),
		SourceSearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_search_duration_seconds",
			Help:      "Duration of adapter searches in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"source"}),
		PapersBySource: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_by_source_total",
			Help:      "Total raw records returned by each source",
		}, []string{"source"}),

		// Merge statistics
		RelevanceRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_relevance_removed_total",
			Help:      "Total records removed by the relevance filter",
		}),
		DuplicatesRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_duplicates_removed_total",
			Help:      "Total records removed by deduplication",
		}),

		// Upstream HTTP
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to paper sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to paper sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to paper sources in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from paper sources",
		}, []string{"source"}),

		// Library
		LibraryImports: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "library_imports_total",
			Help:      "Total number of library hand-offs by outcome",
		}, []string{"outcome"}),
	}
}

// RecordSearchStarted records that an aggregated search has started.
func (m *Metrics) RecordSearchStarted() {
	m.SearchesStarted.Inc()
}

// RecordSearchCompleted records a finished aggregated search.
func (m *Metrics) RecordSearchCompleted(total, errorCount int, durationSeconds float64) {
	m.SearchesCompleted.Inc()
	m.SearchDuration.Observe(durationSeconds)
	m.ResultsPerSearch.Observe(float64(total))
	if errorCount > 0 {
		m.SearchesWithErrors.Inc()
	}
}

// RecordSourceSearch records one adapter invocation. An empty errorKind
// means the adapter finished cleanly.
func (m *Metrics) RecordSourceSearch(source string, paperCount int, durationSeconds float64, errorKind string) {
	outcome := "success"
	if errorKind != "" {
		outcome = "error"
		m.SourceErrors.WithLabelValues(source, errorKind).Inc()
	}
	m.SourceSearches.WithLabelValues(source, outcome).Inc()
	m.SourceSearchDuration.WithLabelValues(source).Observe(durationSeconds)
	m.PapersBySource.WithLabelValues(source).Add(float64(paperCount))
}

// RecordMergeStats records the relevance and deduplication removals of one search.
func (m *Metrics) RecordMergeStats(relevanceRemoved, duplicatesRemoved int) {
	m.RelevanceRemoved.Add(float64(relevanceRemoved))
	m.DuplicatesRemoved.Add(float64(duplicatesRemoved))
}

// RecordSourceRequest records a request to a paper source.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to a paper source.
func (m *Metrics) RecordSourceRequestFailed(source, endpoint, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordLibraryImport records a library hand-off outcome.
func (m *Metrics) RecordLibraryImport(outcome string) {
	m.LibraryImports.WithLabelValues(outcome).Inc()
}
