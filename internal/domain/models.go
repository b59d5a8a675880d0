// Package domain provides the core types shared by the paper search service:
// the canonical paper record, source tags and their priority, search filters,
// persisted user settings and the error taxonomy.
package domain

import "strings"

// SourceType identifies the bibliographic source that produced a record.
// These values are part of the public API and are stored in user settings.
type SourceType string

const (
	SourceTypeSemantic SourceType = "semantic"
	SourceTypeOpenAlex SourceType = "openalex"
	SourceTypeArXiv    SourceType = "arxiv"
	SourceTypeCrossref SourceType = "crossref"
	SourceTypeCORE     SourceType = "core"
	SourceTypeManual   SourceType = "manual"
)

// UnknownSourcePriority is the rank given to tags outside the priority table.
const UnknownSourcePriority = 99

// sourcePriority is the fixed merge precedence used by deduplication.
// Lower numbers win.
var sourcePriority = map[SourceType]int{
	SourceTypeSemantic: 1,
	SourceTypeCrossref: 2,
	SourceTypeArXiv:    3,
	SourceTypeOpenAlex: 4,
	SourceTypeCORE:     5,
	SourceTypeManual:   6,
}

var sourceDisplayNames = map[SourceType]string{
	SourceTypeSemantic: "Semantic Scholar",
	SourceTypeOpenAlex: "OpenAlex",
	SourceTypeArXiv:    "arXiv",
	SourceTypeCrossref: "Crossref",
	SourceTypeCORE:     "CORE",
	SourceTypeManual:   "Manual",
}

// AdapterSources returns the source tags that are backed by a search adapter,
// in their canonical order.
func AdapterSources() []SourceType {
	return []SourceType{
		SourceTypeSemantic,
		SourceTypeOpenAlex,
		SourceTypeArXiv,
		SourceTypeCrossref,
		SourceTypeCORE,
	}
}

// DefaultEnabledSources returns the sources enabled when no settings are stored.
func DefaultEnabledSources() []SourceType {
	return AdapterSources()
}

// IsValidSourceType reports whether s is a known source tag, including manual.
func IsValidSourceType(s SourceType) bool {
	_, ok := sourcePriority[s]
	return ok
}

// IsAdapterSource reports whether s is served by a search adapter.
func IsAdapterSource(s SourceType) bool {
	return IsValidSourceType(s) && s != SourceTypeManual
}

// ParseSourceType trims and lowercases raw and returns the matching tag.
func ParseSourceType(raw string) (SourceType, bool) {
	st := SourceType(strings.ToLower(strings.TrimSpace(raw)))
	if !IsValidSourceType(st) {
		return "", false
	}
	return st, true
}

// Priority returns the merge rank of the source. Lower ranks win collisions.
func (s SourceType) Priority() int {
	if p, ok := sourcePriority[s]; ok {
		return p
	}
	return UnknownSourcePriority
}

// DisplayName returns the human-readable source name used in error messages.
func (s SourceType) DisplayName() string {
	if name, ok := sourceDisplayNames[s]; ok {
		return name
	}
	return string(s)
}

// RawCountKey returns the statistics key holding the source's raw result count.
func (s SourceType) RawCountKey() string {
	return "raw_" + string(s)
}
