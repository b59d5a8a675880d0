package core

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
	DefaultBaseURL   = "https://api.core.ac.uk/v3"
	DefaultRateLimit = 2.0
	DefaultBurstSize = 2
	DefaultTimeout   = 60 * time.Second
)

// Config tunes the CORE adapter. Zero fields take the package defaults.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	BurstSize int

	Pager papersources.PagerConfig
	// Recorder is optional.
	Recorder papersources.RequestRecorder
}

func (c *Config) applyDefaults() {
	c.BaseURL = cmp.Or(c.BaseURL, DefaultBaseURL)
	c.Timeout = cmp.Or(c.Timeout, DefaultTimeout)
	c.RateLimit = cmp.Or(c.RateLimit, DefaultRateLimit)
	c.BurstSize = cmp.Or(c.BurstSize, DefaultBurstSize)
}

// Client implements papersources.PaperSource for CORE.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	pager      *papersources.Pager
	logger     zerolog.Logger
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new CORE client.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeCORE),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		Recorder:  cfg.Recorder,
	})

	return NewWithHTTPClient(cfg, httpClient, logger)
}

// NewWithHTTPClient creates a new CORE client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		pager:      papersources.NewPager(cfg.Pager),
		logger:     logger.With().Str("component", "core").Logger(),
	}
}

// Search pages through /search/works with offset/limit. It returns no
// records and no error when the runtime config carries no CORE key.
func (c *Client) Search(ctx context.Context, filters domain.SearchFilters, rc papersources.RuntimeConfig) ([]*domain.Paper, error) {
	if rc.CoreAPIKey == "" {
		c.logger.Warn().Msg("core api key is not set, skipping core search")
		return nil, nil
	}

	start := time.Now()
	query := buildQuery(filters)

	papers, err := c.pager.Collect(ctx, papersources.OffsetCursor(0), func(ctx context.Context, cursor string, limit int) (papersources.Page, error) {
		return c.fetchPage(ctx, query, filters, rc, papersources.ParseOffset(cursor), limit)
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("count", len(papers)).Msg("core search stopped early")
	}

	c.logger.Info().
		Int("count", len(papers)).
		Dur("duration", time.Since(start)).
		Msg("core search completed")

	return papers, err
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeCORE
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return domain.SourceTypeCORE.DisplayName()
}

func (c *Client) fetchPage(ctx context.Context, query string, filters domain.SearchFilters, rc papersources.RuntimeConfig, offset, limit int) (papersources.Page, error) {
	searchURL, err := c.buildSearchURL(query, offset, limit)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+rc.CoreAPIKey)

	resp, err := c.httpClient.DoWithProxy(req, rc.ProxyURL)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return papersources.Page{}, domain.NewExternalAPIError(c.Name(), resp.StatusCode, string(body), nil)
	}

	var searchResp SearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&searchResp); err != nil {
		return papersources.Page{}, domain.NewMalformedResponseError(c.Name(), err)
	}

	papers := make([]*domain.Paper, 0, len(searchResp.Results))
	for i := range searchResp.Results {
		papers = append(papers, workToPaper(&searchResp.Results[i]))
	}

	page := papersources.Page{
		Papers:  papersources.FilterAccepted(papers, filters),
		Fetched: len(searchResp.Results),
	}
	if next := offset + len(searchResp.Results); next < searchResp.TotalHits {
		page.Next = papersources.OffsetCursor(next)
	}
	return page, nil
}

// buildQuery appends the year bounds to the query in CORE's query language.
func buildQuery(filters domain.SearchFilters) string {
	var b strings.Builder
	b.WriteString(filters.Query)
	if filters.YearStart != nil {
		fmt.Fprintf(&b, " AND yearPublished>=%d", *filters.YearStart)
	}
	if filters.YearEnd != nil {
		fmt.Fprintf(&b, " AND yearPublished<=%d", *filters.YearEnd)
	}
	return b.String()
}

func (c *Client) buildSearchURL(query string, offset, limit int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/search/works"

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

// workToPaper converts a CORE work to a domain Paper.
func workToPaper(work *Work) *domain.Paper {
	externalID := ""
	for _, id := range work.Identifiers {
		if strings.HasPrefix(string(id), "10.") {
			externalID = string(id)
			break
		}
	}
	if externalID == "" {
		externalID = domain.NormalizeDOI(work.DOI)
	}
	if externalID == "" {
		externalID = string(work.ID)
	}

	authors := make([]domain.Author, 0, len(work.Authors))
	for _, a := range work.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, domain.Author{Name: name})
		}
	}

	var venue string
	if work.Journal != nil {
		venue = string(*work.Journal)
	}

	return &domain.Paper{
		Title:         work.Title,
		Abstract:      work.Abstract,
		Year:          work.YearPublished,
		CitationCount: work.CitationCount,
		Venue:         venue,
		Authors:       authors,
		Source:        domain.SourceTypeCORE,
		ExternalID:    externalID,
		PDFURL:        work.DownloadURL,
	}
}
