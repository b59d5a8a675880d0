// Package semanticscholar implements papersources.PaperSource over the
// Semantic Scholar Graph API relevance search, paging by offset.
//
// API Documentation: https://api.semanticscholar.org/api-docs/
package semanticscholar

// SearchResponse is one page of /graph/v1/paper/search.
type SearchResponse struct {
	Total  int           `json:"total"`
	Offset int           `json:"offset"`
	Next   int           `json:"next"` // 0 on the last page
	Data   []PaperResult `json:"data"`
}

// PaperResult carries the fields requested through searchFields.
type PaperResult struct {
	PaperID       string         `json:"paperId"`
	Title         string         `json:"title"`
	Abstract      string         `json:"abstract"`
	Year          *int           `json:"year"`
	Venue         string         `json:"venue"`
	Authors       []Author       `json:"authors"`
	CitationCount int            `json:"citationCount"`
	OpenAccessPDF *OpenAccessPDF `json:"openAccessPdf,omitempty"`
	ExternalIDs   *ExternalIDs   `json:"externalIds,omitempty"`
}

// ExternalIDs holds the cross-index identifiers; only the DOI is used.
type ExternalIDs struct {
	DOI string `json:"DOI,omitempty"`
}

// Author is a paper author.
type Author struct {
	Name string `json:"name"`
}

// OpenAccessPDF points at a free full text.
type OpenAccessPDF struct {
	URL string `json:"url,omitempty"`
}

// ErrorResponse is the body of a non-2xx reply. The API uses either field.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
