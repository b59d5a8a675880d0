package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/settings"
)

const maxRequestBodySize = 1 << 20 // 1 MiB limit for request bodies

var errBodyTooLarge = errors.New("request body too large")

// searchPapers handles POST /api/v1/search.
// Once the body validates the response is always 200; per-source failures
// are reported in meta.errors.
func (s *Server) searchPapers(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	req.Query = strings.TrimSpace(req.Query)
	if err := s.validate.Struct(req); err != nil {
		writeDomainError(w, translateValidation(err))
		return
	}

	filters := domain.NewSearchFilters(req.Query, req.YearStart, req.YearEnd, req.MinCitations)
	if err := filters.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	resp, err := s.searcher.Search(r.Context(), filters)
	if err != nil {
		logger := observability.FromContext(r.Context(), s.logger)
		logger.Warn().Err(err).Msg("search rejected")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// getSettings handles GET /api/v1/system/settings.
func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusServiceUnavailable, "settings store is not configured")
		return
	}

	current, err := s.settings.Get(r.Context())
	if err != nil {
		logger := observability.FromContext(r.Context(), s.logger)
		logger.Error().Err(err).Msg("failed to load settings")
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settings.NewView(current))
}

// updateSettings handles PUT /api/v1/system/settings.
func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusServiceUnavailable, "settings store is not configured")
		return
	}

	var req settings.UpdateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	updated, err := s.settings.Update(r.Context(), req)
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidInput) {
			logger := observability.FromContext(r.Context(), s.logger)
			logger.Error().Err(err).Msg("failed to update settings")
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settings.NewView(updated))
}

// importPaper handles POST /api/v1/library/papers.
func (s *Server) importPaper(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeError(w, http.StatusServiceUnavailable, "library is not configured")
		return
	}

	var req importPaperRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Paper == nil {
		writeDomainError(w, domain.NewValidationError("paper", "paper is required"))
		return
	}

	accepted, err := s.library.Publish(r.Context(), req.Paper, req.Tags)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, accepted)
}

// decodeBody reads and decodes a JSON request body into v. On failure it
// writes the error response and returns false.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()

	body, err := readBody(r.Body)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON in request body")
		return false
	}
	return true
}

// readBody reads at most maxRequestBodySize bytes.
func readBody(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxRequestBodySize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxRequestBodySize {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// writeDomainError maps domain errors to HTTP status codes and writes a JSON
// error response. Internal error details are not leaked to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
