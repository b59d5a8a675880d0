// Package core provides a client for the CORE v3 open access search API.
//
// CORE requires an API key, sent as a bearer token. Without a key the
// adapter is a no-op.
//
// API Documentation: https://api.core.ac.uk/docs/v3
package core

import (
	"bytes"
	"encoding/json"
	"strings"
)

// SearchResponse is the response from GET /v3/search/works.
type SearchResponse struct {
	TotalHits int    `json:"totalHits"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	Results   []Work `json:"results"`
}

// Work is a single CORE output.
type Work struct {
	ID            flexString   `json:"id"`
	Title         string       `json:"title"`
	Abstract      string       `json:"abstract"`
	YearPublished *int         `json:"yearPublished"`
	CitationCount int          `json:"citationCount"`
	Authors       []Author     `json:"authors"`
	DOI           string       `json:"doi"`
	Identifiers   []flexString `json:"identifiers"`
	DownloadURL   string       `json:"downloadUrl"`
	Journal       *flexString  `json:"journal"`
}

// Author is an author of a CORE work.
type Author struct {
	Name string `json:"name"`
}

// flexString accepts a JSON string, a number, or an object carrying one of
// the fields identifier or title. CORE is inconsistent about these shapes
// across record types.
type flexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	case '{':
		var obj struct {
			Identifier string `json:"identifier"`
			Title      string `json:"title"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if obj.Identifier != "" {
			*f = flexString(strings.TrimSpace(obj.Identifier))
		} else {
			*f = flexString(strings.TrimSpace(obj.Title))
		}
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*f = flexString(n.String())
	}
	return nil
}
