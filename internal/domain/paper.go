package domain

import (
	"strings"
)

// UntitledPaper is the title given to records whose source omits one.
const UntitledPaper = "Untitled"

// doiPrefix marks an external identifier as a DOI.
const doiPrefix = "10."

// Author represents a paper author as reported by the source.
type Author struct {
	Name string `json:"name"`
}

// Paper is the canonical record for one discovered paper as seen by one source.
// Records are created fresh per search and are never persisted by the engine.
type Paper struct {
	Title         string     `json:"title"`
	Abstract      string     `json:"abstract,omitempty"`
	Year          *int       `json:"year"`
	CitationCount int        `json:"citation_count"`
	Venue         string     `json:"venue,omitempty"`
	Authors       []Author   `json:"authors"`
	Source        SourceType `json:"source"`
	ExternalID    string     `json:"external_id,omitempty"`
	PDFURL        string     `json:"pdf_url,omitempty"`
}

// Normalize enforces the record invariants: a non-empty title, collapsed
// whitespace in free text, a non-negative citation count and a non-nil
// author list.
func (p *Paper) Normalize() {
	p.Title = CollapseWhitespace(p.Title)
	if p.Title == "" {
		p.Title = UntitledPaper
	}
	p.Abstract = CollapseWhitespace(p.Abstract)
	p.Venue = strings.TrimSpace(p.Venue)
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	p.PDFURL = strings.TrimSpace(p.PDFURL)
	if p.CitationCount < 0 {
		p.CitationCount = 0
	}
	if p.Authors == nil {
		p.Authors = []Author{}
	}
}

// DOIKey returns the lowercased DOI identity key, or "" when the external
// identifier is not a DOI.
func (p *Paper) DOIKey() string {
	id := strings.ToLower(strings.TrimSpace(p.ExternalID))
	if !strings.HasPrefix(id, doiPrefix) {
		return ""
	}
	return id
}

// SearchText returns the lowercased title and abstract joined by a space.
func (p *Paper) SearchText() string {
	return strings.ToLower(p.Title) + " " + strings.ToLower(p.Abstract)
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// NormalizeDOI strips resolver prefixes from a DOI and trims it.
// It returns "" when raw does not hold a DOI.
func NormalizeDOI(raw string) string {
	doi := strings.TrimSpace(raw)
	if doi == "" {
		return ""
	}
	lower := strings.ToLower(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			doi = doi[len(prefix):]
			break
		}
	}
	doi = strings.TrimSpace(doi)
	if !strings.HasPrefix(doi, doiPrefix) {
		return ""
	}
	return doi
}

// CollapseWhitespace trims s and replaces every whitespace run with one space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
