package openalex

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

const (
	// Defaults for zero Config fields.
	DefaultBaseURL   = "https://api.openalex.org"
	// The polite pool (requests carrying mailto) tolerates this rate.
	DefaultRateLimit = 10.0
	DefaultBurstSize = 10
	DefaultTimeout   = 60 * time.Second

	// firstCursor starts OpenAlex cursor pagination.
	firstCursor = "*"

	// openAlexIDPrefix is the URL prefix for OpenAlex IDs.
	openAlexIDPrefix = "https://openalex.org/"

	// maxPerPage is the OpenAlex per_page ceiling.
	maxPerPage = 200
)

// Config tunes the OpenAlex adapter. Zero fields take the package defaults.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	BurstSize int

	Pager papersources.PagerConfig
	// Retry broadens multi-concept queries that come back nearly empty.
	Retry papersources.RetryPolicy
	// Recorder is optional.
	Recorder papersources.RequestRecorder
}

func (c *Config) applyDefaults() {
	c.BaseURL = cmp.Or(c.BaseURL, DefaultBaseURL)
	c.Timeout = cmp.Or(c.Timeout, DefaultTimeout)
	c.RateLimit = cmp.Or(c.RateLimit, DefaultRateLimit)
	c.BurstSize = cmp.Or(c.BurstSize, DefaultBurstSize)
	c.Retry.Attempts = cmp.Or(c.Retry.Attempts, papersources.DefaultRetryAttempts)
	c.Retry.Threshold = cmp.Or(c.Retry.Threshold, papersources.DefaultLowYieldThreshold)
}

// Client implements the papersources.PaperSource interface for OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	pager      *papersources.Pager
	logger     zerolog.Logger
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeOpenAlex),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		Recorder:  cfg.Recorder,
	})

	return NewWithHTTPClient(cfg, httpClient, logger)
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		pager:      papersources.NewPager(cfg.Pager),
		logger:     logger.With().Str("component", "openalex").Logger(),
	}
}

// Search queries OpenAlex, following next_cursor until the result set or
// the pager budget is exhausted. Multi-concept queries that yield too few
// records are broadened by the retry policy.
func (c *Client) Search(ctx context.Context, filters domain.SearchFilters, rc papersources.RuntimeConfig) ([]*domain.Paper, error) {
	start := time.Now()

	papers, err := c.config.Retry.Run(ctx, filters, func(ctx context.Context, strategy papersources.QueryStrategy) ([]*domain.Paper, error) {
		query := buildQuery(filters, strategy)
		papers, err := c.pager.Collect(ctx, firstCursor, func(ctx context.Context, cursor string, limit int) (papersources.Page, error) {
			return c.fetchPage(ctx, query, filters, rc, cursor, limit)
		})
		c.logger.Debug().
			Int("strategy", int(strategy)).
			Str("query", query).
			Int("count", len(papers)).
			Msg("openalex attempt finished")
		return papers, err
	})

	if err != nil {
		c.logger.Warn().Err(err).Int("count", len(papers)).Msg("openalex search stopped early")
	}
	c.logger.Info().
		Int("count", len(papers)).
		Dur("duration", time.Since(start)).
		Msg("openalex search completed")

	return papers, err
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeOpenAlex
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return domain.SourceTypeOpenAlex.DisplayName()
}

// fetchPage requests one cursor page and converts it.
func (c *Client) fetchPage(ctx context.Context, query string, filters domain.SearchFilters, rc papersources.RuntimeConfig, cursor string, limit int) (papersources.Page, error) {
	searchURL, err := c.buildSearchURL(query, filters, rc, cursor, limit)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("creating request: %w", err)
	}
	if rc.ContactEmail != "" {
		req.Header.Set("User-Agent", "PaperSearchService/1.0 (mailto:"+rc.ContactEmail+")")
	}

	resp, err := c.httpClient.DoWithProxy(req, rc.ProxyURL)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return papersources.Page{}, domain.NewExternalAPIError(c.Name(), resp.StatusCode, string(body), nil)
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return papersources.Page{}, domain.NewMalformedResponseError(c.Name(), err)
	}

	papers := make([]*domain.Paper, 0, len(searchResp.Results))
	for i := range searchResp.Results {
		papers = append(papers, workToPaper(&searchResp.Results[i]))
	}

	return papersources.Page{
		Papers:  papersources.FilterAccepted(papers, filters),
		Fetched: len(searchResp.Results),
		Next:    searchResp.Meta.NextCursor,
	}, nil
}

// buildQuery phrases the search text for the given strategy.
func buildQuery(filters domain.SearchFilters, strategy papersources.QueryStrategy) string {
	terms := papersources.AlternativeTerms(filters, strategy)
	if len(terms) == 0 {
		return filters.Query
	}
	return strings.Join(terms, " OR ")
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(query string, filters domain.SearchFilters, rc papersources.RuntimeConfig, cursor string, limit int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/works"

	params := url.Values{}
	params.Set("search", query)
	params.Set("per_page", strconv.Itoa(min(limit, maxPerPage)))
	params.Set("cursor", cursor)

	if f := buildFilters(filters); len(f) > 0 {
		params.Set("filter", strings.Join(f, ","))
	}

	// Add mailto for polite pool
	if rc.ContactEmail != "" {
		params.Set("mailto", rc.ContactEmail)
	}

	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

// buildFilters constructs the filter query string components.
func buildFilters(filters domain.SearchFilters) []string {
	var out []string

	switch {
	case filters.YearStart != nil && filters.YearEnd != nil:
		out = append(out, fmt.Sprintf("publication_year:%d-%d", *filters.YearStart, *filters.YearEnd))
	case filters.YearStart != nil:
		out = append(out, fmt.Sprintf("publication_year:>%d", *filters.YearStart-1))
	case filters.YearEnd != nil:
		out = append(out, fmt.Sprintf("publication_year:<%d", *filters.YearEnd+1))
	}

	if filters.MinCitations != nil && *filters.MinCitations > 0 {
		out = append(out, fmt.Sprintf("cited_by_count:>%d", *filters.MinCitations-1))
	}

	return out
}

// workToPaper converts an OpenAlex Work to a domain Paper.
func workToPaper(work *Work) *domain.Paper {
	externalID := domain.NormalizeDOI(work.DOI)
	if externalID == "" {
		externalID = domain.NormalizeDOI(work.IDs.DOI)
	}
	if externalID == "" {
		externalID = normalizeOpenAlexID(work.ID)
	}
	if externalID == "" {
		externalID = normalizeOpenAlexID(work.IDs.OpenAlex)
	}

	authors := make([]domain.Author, 0, len(work.Authorships))
	for _, authorship := range work.Authorships {
		if name := strings.TrimSpace(authorship.Author.DisplayName); name != "" {
			authors = append(authors, domain.Author{Name: name})
		}
	}

	title := work.Title
	if title == "" {
		title = work.DisplayName
	}

	var venue string
	if work.PrimaryLocation != nil && work.PrimaryLocation.Source != nil {
		venue = work.PrimaryLocation.Source.DisplayName
	}

	var pdfURL string
	if work.BestOALocation != nil && work.BestOALocation.PDFURL != "" {
		pdfURL = work.BestOALocation.PDFURL
	} else if work.PrimaryLocation != nil {
		pdfURL = work.PrimaryLocation.PDFURL
	}

	var year *int
	if work.PublicationYear > 0 {
		year = domain.IntPtr(work.PublicationYear)
	}

	return &domain.Paper{
		Title:         title,
		Abstract:      reconstructAbstract(work.AbstractInvertedIndex),
		Year:          year,
		CitationCount: work.CitedByCount,
		Venue:         venue,
		Authors:       authors,
		Source:        domain.SourceTypeOpenAlex,
		ExternalID:    externalID,
		PDFURL:        pdfURL,
	}
}

// normalizeOpenAlexID extracts the short ID from full OpenAlex URLs.
func normalizeOpenAlexID(id string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), openAlexIDPrefix))
}

// maxAbstractWords bounds the positions accepted from one inverted index.
const maxAbstractWords = 100_000

// reconstructAbstract rebuilds plain text from OpenAlex's word to positions
// index. Oversized indexes yield "".
func reconstructAbstract(index map[string][]int) string {
	n := 0
	for _, positions := range index {
		n += len(positions)
	}
	if n == 0 || n > maxAbstractWords {
		return ""
	}

	type slot struct {
		pos  int
		word string
	}
	slots := make([]slot, 0, n)
	for word, positions := range index {
		for _, pos := range positions {
			slots = append(slots, slot{pos, word})
		}
	}
	slices.SortFunc(slots, func(a, b slot) int { return cmp.Compare(a.pos, b.pos) })

	words := make([]string, len(slots))
	for i, sl := range slots {
		words[i] = sl.word
	}
	return strings.Join(words, " ")
}
