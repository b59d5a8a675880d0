package papersources

import (
	"slices"

	"github.com/helixir/paper-search-service/internal/domain"
)

// RuntimeConfig is the per-search snapshot of keys, contact email, proxy and
// enabled sources. It is resolved once per search and passed to every adapter.
type RuntimeConfig struct {
	SemanticScholarAPIKey string
	CoreAPIKey            string
	ContactEmail          string
	// ProxyURL is empty unless the proxy is enabled and configured.
	ProxyURL       string
	EnabledSources []domain.SourceType
}

// IsEnabled reports whether st is in the enabled list.
func (rc RuntimeConfig) IsEnabled(st domain.SourceType) bool {
	return slices.Contains(rc.EnabledSources, st)
}
