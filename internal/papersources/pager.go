package papersources

import (
	"context"
	"strconv"
	"time"

	"github.com/helixir/paper-search-service/internal/domain"
)

// Pagination defaults shared by every adapter.
const (
	DefaultPageSize   = 100
	DefaultMaxResults = 1000
	DefaultPageDelay  = 500 * time.Millisecond
)

// PagerConfig bounds how many raw items an adapter fetches per search.
type PagerConfig struct {
	// PageSize is the number of items requested per page.
	PageSize int

	// MaxResults caps the raw items fetched across all pages.
	MaxResults int

	// PageDelay is the pause between consecutive page requests.
	PageDelay time.Duration
}

func (c *PagerConfig) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxResults <= 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.PageDelay < 0 {
		c.PageDelay = 0
	}
}

// Page is one upstream page after conversion.
type Page struct {
	// Papers are the converted records that passed the filters.
	Papers []*domain.Paper

	// Fetched is the number of raw items the upstream returned.
	Fetched int

	// Next is the cursor for the following page. Empty means no more pages.
	Next string
}

// PageFunc fetches the page at cursor with at most limit items.
type PageFunc func(ctx context.Context, cursor string, limit int) (Page, error)

// Pager walks an upstream result set page by page.
type Pager struct {
	config PagerConfig
}

// NewPager creates a pager, applying defaults for zero fields.
func NewPager(cfg PagerConfig) *Pager {
	cfg.applyDefaults()
	return &Pager{config: cfg}
}

// Config returns the effective pager configuration.
func (p *Pager) Config() PagerConfig {
	return p.config
}

// Collect fetches pages starting at first until the upstream is exhausted,
// a short page arrives or MaxResults raw items have been fetched.
//
// On error the records gathered so far are returned along with it.
func (p *Pager) Collect(ctx context.Context, first string, fetch PageFunc) ([]*domain.Paper, error) {
	var papers []*domain.Paper
	cursor := first
	fetched := 0

	for fetched < p.config.MaxResults {
		limit := min(p.config.PageSize, p.config.MaxResults-fetched)

		page, err := fetch(ctx, cursor, limit)
		papers = append(papers, page.Papers...)
		if err != nil {
			return papers, err
		}

		fetched += page.Fetched
		if page.Fetched == 0 || page.Fetched < limit || page.Next == "" || fetched >= p.config.MaxResults {
			break
		}

		if err := p.wait(ctx); err != nil {
			return papers, err
		}
		cursor = page.Next
	}

	return papers, nil
}

// wait sleeps for the page delay, respecting context cancellation.
func (p *Pager) wait(ctx context.Context) error {
	if p.config.PageDelay == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(p.config.PageDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// OffsetCursor encodes a numeric offset as a page cursor.
func OffsetCursor(offset int) string {
	return strconv.Itoa(offset)
}

// ParseOffset decodes an offset cursor. An empty or invalid cursor is offset 0.
func ParseOffset(cursor string) int {
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}
