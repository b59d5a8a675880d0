package arxiv

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

const (
	// Defaults for zero Config fields.
	DefaultBaseURL   = "http://export.arxiv.org/api"
	// arXiv asks for three seconds between requests.
	DefaultRateLimit = 1.0 / 3.0
	DefaultBurstSize = 1
	DefaultTimeout   = 30 * time.Second

	// fieldPrefix scopes every term to all searchable fields.
	fieldPrefix = "all:"
)

// Config tunes the arXiv adapter. Zero fields take the package defaults.
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

// Client implements the papersources.PaperSource interface for arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	pager      *papersources.Pager
	logger     zerolog.Logger
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeArXiv),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		Recorder:  cfg.Recorder,
	})

	return NewWithHTTPClient(cfg, httpClient, logger)
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		pager:      papersources.NewPager(cfg.Pager),
		logger:     logger.With().Str("component", "arxiv").Logger(),
	}
}

// Search queries arXiv with start/max_results paging. arXiv has no citation
// data, so a positive citation minimum could never be met and the feed is
// not queried at all.
func (c *Client) Search(ctx context.Context, filters domain.SearchFilters, rc papersources.RuntimeConfig) ([]*domain.Paper, error) {
	if filters.MinCitations != nil && *filters.MinCitations > 0 {
		c.logger.Debug().Int("min_citations", *filters.MinCitations).Msg("arxiv skipped: no citation counts upstream")
		return nil, nil
	}

	start := time.Now()

	papers, err := c.config.Retry.Run(ctx, filters, func(ctx context.Context, strategy papersources.QueryStrategy) ([]*domain.Paper, error) {
		query := buildQuery(filters, strategy)
		papers, err := c.pager.Collect(ctx, papersources.OffsetCursor(0), func(ctx context.Context, cursor string, limit int) (papersources.Page, error) {
			return c.fetchPage(ctx, query, filters, rc, papersources.ParseOffset(cursor), limit)
		})
		c.logger.Debug().
			Int("strategy", int(strategy)).
			Str("query", query).
			Int("count", len(papers)).
			Msg("arxiv attempt finished")
		return papers, err
	})

	if err != nil {
		c.logger.Warn().Err(err).Int("count", len(papers)).Msg("arxiv search stopped early")
	}
	c.logger.Info().
		Int("count", len(papers)).
		Dur("duration", time.Since(start)).
		Msg("arxiv search completed")

	return papers, err
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return domain.SourceTypeArXiv.DisplayName()
}

// fetchPage requests one page of the Atom feed.
func (c *Client) fetchPage(ctx context.Context, query string, filters domain.SearchFilters, rc papersources.RuntimeConfig, offset, limit int) (papersources.Page, error) {
	searchURL, err := c.buildSearchURL(query, offset, limit)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/atom+xml")

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
	parser := &atom.Parser{}
	feed, err := parser.Parse(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return papersources.Page{}, domain.NewMalformedResponseError(c.Name(), err)
	}

	papers := make([]*domain.Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if entry != nil {
			papers = append(papers, entryToPaper(entry))
		}
	}

	page := papersources.Page{
		Papers:  papersources.FilterAccepted(papers, filters),
		Fetched: len(feed.Entries),
	}
	next := offset + len(feed.Entries)
	if total, ok := totalResults(feed); !ok || next < total {
		page.Next = papersources.OffsetCursor(next)
	}
	return page, nil
}

// buildQuery phrases search_query for the given strategy, scoping every
// term with the all: field prefix.
func buildQuery(filters domain.SearchFilters, strategy papersources.QueryStrategy) string {
	terms := papersources.AlternativeTerms(filters, strategy)
	if len(terms) == 0 {
		return fieldPrefix + filters.Query
	}

	scoped := make([]string, len(terms))
	for i, term := range terms {
		scoped[i] = fieldPrefix + term
	}
	return strings.Join(scoped, " OR ")
}

// buildSearchURL constructs the query URL.
func (c *Client) buildSearchURL(query string, offset, limit int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", strconv.Itoa(offset))
	params.Set("max_results", strconv.Itoa(limit))
	params.Set("sortBy", "relevance")
	params.Set("sortOrder", "descending")

	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

// entryToPaper converts an Atom entry to a domain Paper.
func entryToPaper(entry *atom.Entry) *domain.Paper {
	externalID := domain.NormalizeDOI(entryDOI(entry))
	if externalID == "" {
		externalID = arxivID(entry.ID)
	}

	authors := make([]domain.Author, 0, len(entry.Authors))
	for _, person := range entry.Authors {
		if person == nil {
			continue
		}
		if name := strings.TrimSpace(person.Name); name != "" {
			authors = append(authors, domain.Author{Name: name})
		}
	}

	return &domain.Paper{
		Title:         domain.CollapseWhitespace(entry.Title),
		Abstract:      domain.CollapseWhitespace(entry.Summary),
		Year:          publishedYear(entry),
		CitationCount: 0,
		Venue:         primaryCategory(entry),
		Authors:       authors,
		Source:        domain.SourceTypeArXiv,
		ExternalID:    externalID,
		PDFURL:        pdfLink(entry),
	}
}
