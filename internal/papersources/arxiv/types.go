// Package arxiv provides a client for the arXiv Atom query API.
//
// Responses are Atom feeds carrying OpenSearch paging elements and
// arXiv-specific extension elements (doi, primary_category). Feeds are
// parsed with gofeed's Atom parser; extension elements are looked up by
// local name so the namespace prefix chosen by the upstream does not matter.
//
// API Documentation: https://info.arxiv.org/help/api/user-manual.html
package arxiv

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"
)

// Extension element names used by the arXiv feed.
const (
	extTotalResults    = "totalResults"
	extDOI             = "doi"
	extPrimaryCategory = "primary_category"
)

// versionSuffix matches the trailing version of an arXiv identifier ("v2").
var versionSuffix = regexp.MustCompile(`v\d+$`)

// findExtension returns the first extension element with the given local
// name under any namespace prefix.
func findExtension(exts ext.Extensions, name string) (ext.Extension, bool) {
	for _, byName := range exts {
		if values := byName[name]; len(values) > 0 {
			return values[0], true
		}
	}
	return ext.Extension{}, false
}

// totalResults reads opensearch:totalResults from the feed. ok is false when
// the element is missing or not a number.
func totalResults(feed *atom.Feed) (int, bool) {
	e, found := findExtension(feed.Extensions, extTotalResults)
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(e.Value))
	if err != nil {
		return 0, false
	}
	return n, true
}

// entryDOI returns the arxiv:doi element of an entry, if any.
func entryDOI(entry *atom.Entry) string {
	e, found := findExtension(entry.Extensions, extDOI)
	if !found {
		return ""
	}
	return strings.TrimSpace(e.Value)
}

// primaryCategory returns the term of arxiv:primary_category.
func primaryCategory(entry *atom.Entry) string {
	e, found := findExtension(entry.Extensions, extPrimaryCategory)
	if !found {
		return ""
	}
	return e.Attrs["term"]
}

// arxivID extracts the versionless identifier from an entry id such as
// "http://arxiv.org/abs/2301.12345v1" or "http://arxiv.org/abs/hep-th/9901001v2".
func arxivID(raw string) string {
	id := strings.TrimSpace(raw)
	if i := strings.Index(id, "/abs/"); i >= 0 {
		id = id[i+len("/abs/"):]
	} else if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return versionSuffix.ReplaceAllString(id, "")
}

// pdfLink picks the PDF link of an entry.
func pdfLink(entry *atom.Entry) string {
	for _, link := range entry.Links {
		if link == nil {
			continue
		}
		if link.Type == "application/pdf" || (link.Rel == "related" && link.Title == "pdf") {
			return link.Href
		}
	}
	return ""
}

// publishedYear returns the year of the published timestamp.
func publishedYear(entry *atom.Entry) *int {
	if entry.PublishedParsed != nil {
		y := entry.PublishedParsed.Year()
		return &y
	}
	if len(entry.Published) >= 4 {
		if y, err := strconv.Atoi(entry.Published[:4]); err == nil {
			return &y
		}
	}
	return nil
}
