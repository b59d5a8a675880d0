package domain

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Sentinels matched with errors.Is. The structured errors below unwrap to them.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrMalformedResponse  = errors.New("malformed response")
	ErrNoSourcesEnabled   = errors.New("no search sources are enabled")
	ErrInternalError      = errors.New("internal error")
)

// ErrorKind is the coarse failure category reported in per-source error strings.
type ErrorKind string

const (
	ErrorKindTimeout             ErrorKind = "Timeout"
	ErrorKindRateLimited         ErrorKind = "RateLimited"
	ErrorKindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	ErrorKindMalformedResponse   ErrorKind = "MalformedResponse"
	ErrorKindCanceled            ErrorKind = "Canceled"
	ErrorKindPanic               ErrorKind = "Panic"
	ErrorKindError               ErrorKind = "Error"
)

// ValidationError names the request field that was rejected. Its Error text
// is what API clients see.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NotFoundError reports a missing row of Entity keyed by ID.
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return e.Entity + " not found: " + e.ID
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// RateLimitError is returned once an upstream keeps answering 429.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Source: source, RetryAfter: retryAfter}
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// ExternalAPIError is a non-success upstream response. StatusCode drives
// ClassifyError; Cause is usually one of the sentinels.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{Source: source, StatusCode: statusCode, Message: message, Cause: cause}
}

func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

func (e *ExternalAPIError) Unwrap() error { return e.Cause }

// PanicError carries a value recovered from a panicking adapter.
type PanicError struct {
	Source string
	Value  any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Source, e.Value)
}

// NewMalformedResponseError wraps a decode failure from source.
func NewMalformedResponseError(source string, cause error) error {
	return fmt.Errorf("%s: %w: %w", source, ErrMalformedResponse, cause)
}

// ClassifyError maps an adapter failure to its ErrorKind.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return ErrorKindPanic
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorKindTimeout
	}
	if errors.Is(err, ErrRateLimited) {
		return ErrorKindRateLimited
	}
	if errors.Is(err, ErrMalformedResponse) {
		return ErrorKindMalformedResponse
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var xmlErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.As(err, &xmlErr) {
		return ErrorKindMalformedResponse
	}

	var apiErr *ExternalAPIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ErrorKindRateLimited
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return ErrorKindUpstreamUnavailable
		}
	}
	if errors.Is(err, ErrServiceUnavailable) {
		return ErrorKindUpstreamUnavailable
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrorKindUpstreamUnavailable
	}
	return ErrorKindError
}

// FormatSourceError renders the per-source error string returned to clients.
func FormatSourceError(source SourceType, err error) string {
	return fmt.Sprintf("%s: %s - %s", source.DisplayName(), ClassifyError(err), err.Error())
}
