// Package openalex implements papersources.PaperSource over the OpenAlex
// /works endpoint with cursor pagination and polite-pool identification.
//
// API Documentation: https://docs.openalex.org/
package openalex

// SearchResponse is one page of /works.
type SearchResponse struct {
	Meta    Meta   `json:"meta"`
	Results []Work `json:"results"`
}

// Meta carries the total hit count and the cursor of the next page.
type Meta struct {
	Count      int    `json:"count"`
	NextCursor string `json:"next_cursor"`
}

// Work is a single OpenAlex work.
type Work struct {
	ID              string       `json:"id"`
	DOI             string       `json:"doi"`
	Title           string       `json:"title"`
	DisplayName     string       `json:"display_name"`
	PublicationYear int          `json:"publication_year"`
	CitedByCount    int          `json:"cited_by_count"`
	Authorships     []Authorship `json:"authorships"`
	PrimaryLocation *Location    `json:"primary_location"`
	BestOALocation  *Location    `json:"best_oa_location"`
	IDs             IDs          `json:"ids"`

	// AbstractInvertedIndex maps each word to its positions in the abstract.
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
}

type Authorship struct {
	Author AuthorInfo `json:"author"`
}

type AuthorInfo struct {
	DisplayName string `json:"display_name"`
}

// Location is a place the work is hosted; Source is its venue.
type Location struct {
	Source *Source `json:"source"`
	PDFURL string  `json:"pdf_url"`
}

type Source struct {
	DisplayName string `json:"display_name"`
}

// IDs holds the work's identifiers in URL form.
type IDs struct {
	OpenAlex string `json:"openalex"`
	DOI      string `json:"doi"`
}
