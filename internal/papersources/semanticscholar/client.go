package semanticscholar

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

const (
	// Defaults for zero Config fields.
	DefaultBaseURL   = "https://api.semanticscholar.org/graph/v1"
	// Unauthenticated traffic shares a pool, so keep this conservative.
	DefaultRateLimit = 1.0
	DefaultBurstSize = 1
	DefaultTimeout   = 60 * time.Second

	// apiKeyHeader is the header name for the Semantic Scholar API key.
	apiKeyHeader = "x-api-key"

	// searchFields lists the fields requested for every paper.
	searchFields = "title,abstract,year,citationCount,venue,authors,externalIds,openAccessPdf"
)

// Config tunes the Semantic Scholar adapter. Zero fields take the package defaults.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	BurstSize int

	Pager papersources.PagerConfig
	// Recorder is optional.
	Recorder papersources.RequestRecorder
}

// Client is a Semantic Scholar API client that implements papersources.PaperSource.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	pager      *papersources.Pager
	logger     zerolog.Logger
}

// NewClient creates a new Semantic Scholar client with the given configuration.
// If httpClient is nil, a new HTTP client is created using the config settings.
func NewClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger) *Client {
	cfg.BaseURL = cmp.Or(cfg.BaseURL, DefaultBaseURL)
	cfg.Timeout = cmp.Or(cfg.Timeout, DefaultTimeout)
	cfg.RateLimit = cmp.Or(cfg.RateLimit, DefaultRateLimit)
	cfg.BurstSize = cmp.Or(cfg.BurstSize, DefaultBurstSize)

	if httpClient == nil {
		httpClient = papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:    string(domain.SourceTypeSemantic),
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			BurstSize: cfg.BurstSize,
			Recorder:  cfg.Recorder,
		})
	}

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		pager:      papersources.NewPager(cfg.Pager),
		logger:     logger.With().Str("component", "semanticscholar").Logger(),
	}
}

// Search pages through the relevance search endpoint with offset/limit.
// Year and citation filters are applied server-side and re-checked locally.
func (c *Client) Search(ctx context.Context, filters domain.SearchFilters, rc papersources.RuntimeConfig) ([]*domain.Paper, error) {
	start := time.Now()

	papers, err := c.pager.Collect(ctx, papersources.OffsetCursor(0), func(ctx context.Context, cursor string, limit int) (papersources.Page, error) {
		return c.fetchPage(ctx, filters, rc, papersources.ParseOffset(cursor), limit)
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("count", len(papers)).Msg("semantic scholar search stopped early")
	}

	c.logger.Info().
		Int("count", len(papers)).
		Dur("duration", time.Since(start)).
		Msg("semantic scholar search completed")

	return papers, err
}

// SourceType returns the source type identifier for Semantic Scholar.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemantic
}

// Name returns the human-readable name of this paper source.
func (c *Client) Name() string {
	return domain.SourceTypeSemantic.DisplayName()
}

// fetchPage requests one offset page.
func (c *Client) fetchPage(ctx context.Context, filters domain.SearchFilters, rc papersources.RuntimeConfig, offset, limit int) (papersources.Page, error) {
	searchURL, err := c.buildSearchURL(filters, offset, limit)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if rc.SemanticScholarAPIKey != "" {
		req.Header.Set(apiKeyHeader, rc.SemanticScholarAPIKey)
	}

	resp, err := c.httpClient.DoWithProxy(req, rc.ProxyURL)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("executing search request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.handleErrorResponse(resp); err != nil {
		return papersources.Page{}, err
	}

	// Limit body to 10MB to prevent resource exhaustion.
	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return papersources.Page{}, domain.NewMalformedResponseError(c.Name(), err)
	}

	page := papersources.Page{
		Papers:  papersources.FilterAccepted(c.convertToPapers(searchResp.Data), filters),
		Fetched: len(searchResp.Data),
	}
	if next := offset + len(searchResp.Data); next < searchResp.Total {
		page.Next = papersources.OffsetCursor(next)
	}
	return page, nil
}

// buildSearchURL constructs the search API URL with query parameters.
func (c *Client) buildSearchURL(filters domain.SearchFilters, offset, limit int) (string, error) {
	searchURL, err := url.Parse(strings.TrimRight(c.config.BaseURL, "/") + "/paper/search")
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	q := url.Values{}
	q.Set("query", filters.Query)
	q.Set("fields", searchFields)
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(limit))

	switch {
	case filters.YearStart != nil && filters.YearEnd != nil:
		q.Set("year", fmt.Sprintf("%d-%d", *filters.YearStart, *filters.YearEnd))
	case filters.YearStart != nil:
		q.Set("year", fmt.Sprintf("%d-", *filters.YearStart))
	case filters.YearEnd != nil:
		q.Set("year", fmt.Sprintf("-%d", *filters.YearEnd))
	}

	if filters.MinCitations != nil && *filters.MinCitations > 0 {
		q.Set("minCitationCount", strconv.Itoa(*filters.MinCitations))
	}

	searchURL.RawQuery = q.Encode()
	return searchURL.String(), nil
}

// handleErrorResponse checks for API errors and returns appropriate error types.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read the error body (limit to 1MB to prevent resource exhaustion)
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(c.Name(), resp.StatusCode, "failed to read error response", err)
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		if message == "" {
			message = string(body)
		}
		return domain.NewExternalAPIError(c.Name(), resp.StatusCode, message, nil)
	}

	return domain.NewExternalAPIError(c.Name(), resp.StatusCode, string(body), nil)
}

// convertToPapers converts a slice of API paper results to domain papers.
func (c *Client) convertToPapers(results []PaperResult) []*domain.Paper {
	papers := make([]*domain.Paper, 0, len(results))
	for _, result := range results {
		papers = append(papers, convertToPaper(result))
	}
	return papers
}

// convertToPaper converts a single API paper result to a domain paper.
func convertToPaper(result PaperResult) *domain.Paper {
	externalID := result.PaperID
	if result.ExternalIDs != nil && result.ExternalIDs.DOI != "" {
		externalID = result.ExternalIDs.DOI
	}

	var pdfURL string
	if result.OpenAccessPDF != nil {
		pdfURL = result.OpenAccessPDF.URL
	}

	return &domain.Paper{
		Title:         result.Title,
		Abstract:      result.Abstract,
		Year:          result.Year,
		CitationCount: result.CitationCount,
		Venue:         result.Venue,
		Authors:       convertAuthors(result.Authors),
		Source:        domain.SourceTypeSemantic,
		ExternalID:    externalID,
		PDFURL:        pdfURL,
	}
}

// convertAuthors converts API authors to domain authors, skipping unnamed entries.
func convertAuthors(apiAuthors []Author) []domain.Author {
	authors := make([]domain.Author, 0, len(apiAuthors))
	for _, a := range apiAuthors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, domain.Author{Name: name})
		}
	}
	return authors
}
