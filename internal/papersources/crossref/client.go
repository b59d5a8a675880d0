package crossref

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/papersources"
)

const (
	// Defaults for zero Config fields.
	DefaultBaseURL   = "https://api.crossref.org"
	DefaultRateLimit = 5.0
	DefaultBurstSize = 5
	DefaultTimeout   = 60 * time.Second
)

// markupTag matches JATS/XML tags embedded in Crossref abstracts.
var markupTag = regexp.MustCompile(`<[^>]+>`)

// Config tunes the Crossref adapter. Zero fields take the package defaults.
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

// Client implements papersources.PaperSource for Crossref.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	pager      *papersources.Pager
	logger     zerolog.Logger
}

var _ papersources.PaperSource = (*Client)(nil)

// New creates a new Crossref client.
func New(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeCrossref),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		Recorder:  cfg.Recorder,
	})

	return NewWithHTTPClient(cfg, httpClient, logger)
}

// NewWithHTTPClient creates a new Crossref client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		pager:      papersources.NewPager(cfg.Pager),
		logger:     logger.With().Str("component", "crossref").Logger(),
	}
}

// Search pages through /works with offset/rows.
func (c *Client) Search(ctx context.Context, filters domain.SearchFilters, rc papersources.RuntimeConfig) ([]*domain.Paper, error) {
	start := time.Now()

	papers, err := c.pager.Collect(ctx, papersources.OffsetCursor(0), func(ctx context.Context, cursor string, limit int) (papersources.Page, error) {
		return c.fetchPage(ctx, filters, rc, papersources.ParseOffset(cursor), limit)
	})
	if err != nil {
		c.logger.Warn().Err(err).Int("count", len(papers)).Msg("crossref search stopped early")
	}

	c.logger.Info().
		Int("count", len(papers)).
		Dur("duration", time.Since(start)).
		Msg("crossref search completed")

	return papers, err
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeCrossref
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return domain.SourceTypeCrossref.DisplayName()
}

func (c *Client) fetchPage(ctx context.Context, filters domain.SearchFilters, rc papersources.RuntimeConfig, offset, limit int) (papersources.Page, error) {
	searchURL, err := c.buildSearchURL(filters, rc, offset, limit)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return papersources.Page{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
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

	var worksResp WorksResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&worksResp); err != nil {
		return papersources.Page{}, domain.NewMalformedResponseError(c.Name(), err)
	}

	items := worksResp.Message.Items
	papers := make([]*domain.Paper, 0, len(items))
	for i := range items {
		papers = append(papers, workToPaper(&items[i]))
	}

	page := papersources.Page{
		Papers:  papersources.FilterAccepted(papers, filters),
		Fetched: len(items),
	}
	if next := offset + len(items); next < worksResp.Message.TotalResults {
		page.Next = papersources.OffsetCursor(next)
	}
	return page, nil
}

func (c *Client) buildSearchURL(filters domain.SearchFilters, rc papersources.RuntimeConfig, offset, limit int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/works"

	params := url.Values{}
	params.Set("query", filters.Query)
	params.Set("rows", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("sort", "relevance")
	params.Set("order", "desc")

	var parts []string
	if filters.YearStart != nil {
		parts = append(parts, fmt.Sprintf("from-pub-date:%d", *filters.YearStart))
	}
	if filters.YearEnd != nil {
		parts = append(parts, fmt.Sprintf("until-pub-date:%d", *filters.YearEnd))
	}
	if len(parts) > 0 {
		params.Set("filter", strings.Join(parts, ","))
	}

	if rc.ContactEmail != "" {
		params.Set("mailto", rc.ContactEmail)
	}

	baseURL.RawQuery = params.Encode()
	return baseURL.String(), nil
}

// workToPaper converts a Crossref work to a domain Paper.
func workToPaper(work *Work) *domain.Paper {
	var title string
	if len(work.Title) > 0 {
		title = work.Title[0]
	}

	var venue string
	if len(work.ContainerTitle) > 0 {
		venue = work.ContainerTitle[0]
	}

	year := work.Published.Year()
	if year == nil {
		year = work.Issued.Year()
	}

	authors := make([]domain.Author, 0, len(work.Author))
	for _, a := range work.Author {
		name := strings.TrimSpace(a.Given + " " + a.Family)
		if name == "" {
			name = strings.TrimSpace(a.Name)
		}
		if name != "" {
			authors = append(authors, domain.Author{Name: name})
		}
	}

	var pdfURL string
	for _, link := range work.Link {
		if link.ContentType == "application/pdf" {
			pdfURL = link.URL
			break
		}
	}

	externalID := domain.NormalizeDOI(work.DOI)
	if externalID == "" {
		externalID = strings.TrimSpace(work.DOI)
	}

	return &domain.Paper{
		Title:         title,
		Abstract:      stripMarkup(work.Abstract),
		Year:          year,
		CitationCount: work.IsReferencedByCount,
		Venue:         venue,
		Authors:       authors,
		Source:        domain.SourceTypeCrossref,
		ExternalID:    externalID,
		PDFURL:        pdfURL,
	}
}

// stripMarkup removes JATS tags and unescapes entities.
func stripMarkup(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(markupTag.ReplaceAllString(s, " ")))
}
