// Package crossref provides a client for the Crossref REST API.
//
// Every Crossref work carries a DOI, which makes it a strong identity
// source for deduplication. Requests identify the caller through the
// "polite pool" convention (mailto parameter and User-Agent).
//
// API Documentation: https://api.crossref.org/swagger-ui/index.html
package crossref

// WorksResponse is the envelope returned by GET /works.
type WorksResponse struct {
	Status  string  `json:"status"`
	Message Message `json:"message"`
}

// Message holds one page of works.
type Message struct {
	TotalResults int    `json:"total-results"`
	ItemsPerPage int    `json:"items-per-page"`
	Items        []Work `json:"items"`
}

// Work is a single Crossref work record.
type Work struct {
	DOI                 string   `json:"DOI"`
	Title               []string `json:"title"`
	Abstract            string   `json:"abstract"`
	ContainerTitle      []string `json:"container-title"`
	IsReferencedByCount int      `json:"is-referenced-by-count"`
	Author              []Author `json:"author"`
	Published           *Date    `json:"published"`
	Issued              *Date    `json:"issued"`
	Link                []Link   `json:"link"`
	Type                string   `json:"type"`
}

// Author is a contributor on a work.
type Author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
	Name   string `json:"name"`
}

// Date is a Crossref partial date. DateParts is [[year, month, day]] with
// trailing parts optional and any part possibly null.
type Date struct {
	DateParts [][]*int `json:"date-parts"`
}

// Year returns the first date part, if present.
func (d *Date) Year() *int {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 {
		return nil
	}
	return d.DateParts[0][0]
}

// Link is a full-text link.
type Link struct {
	URL         string `json:"URL"`
	ContentType string `json:"content-type"`
}
