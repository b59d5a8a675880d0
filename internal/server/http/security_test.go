package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/search"
)

// Queries are opaque text. Injection payloads must reach the searcher
// unchanged and never be interpreted by the HTTP layer.
func TestSearch_InjectionPayloadsAreOpaque(t *testing.T) {
	payloads := []string{
		"'; DROP TABLE user_settings; --",
		"1 OR 1=1",
		"<script>alert('xss')</script>",
		"{{7*7}}",
		"../../etc/passwd",
		"\u0000null byte",
	}

	for _, payload := range payloads {
		t.Run(payload, func(t *testing.T) {
			var got string
			searcher := &mockSearcher{
				searchFn: func(_ context.Context, filters domain.SearchFilters) (*search.Response, error) {
					got = filters.OriginalQuery
					return &search.Response{Results: []*domain.Paper{}, Meta: search.Meta{Errors: []string{}}}, nil
				},
			}
			srv := newTestHTTPServer(searcher, nil, nil, nil)

			body, _ := json.Marshal(map[string]string{"query": payload})
			rr := serveHTTP(srv, jsonRequest(http.MethodPost, "/api/v1/search", string(body)))

			if rr.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
			}
			if got != payload {
				t.Errorf("expected payload to reach searcher unchanged, got %q", got)
			}
		})
	}
}
