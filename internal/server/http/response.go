package httpserver

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/paper-search-service/internal/domain"
)

// searchRequest is the JSON request body for POST /api/v1/search.
type searchRequest struct {
	Query        string `json:"query" validate:"required,max=1000"`
	YearStart    *int   `json:"year_start" validate:"omitempty,gte=1900,lte=2100"`
	YearEnd      *int   `json:"year_end" validate:"omitempty,gte=1900,lte=2100"`
	MinCitations *int   `json:"min_citations" validate:"omitempty,gte=0"`
}

// importPaperRequest is the JSON request body for POST /api/v1/library/papers.
type importPaperRequest struct {
	Paper *domain.Paper `json:"paper"`
	Tags  string        `json:"tags"`
}

// newValidator returns a validator that reports JSON field names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// translateValidation converts the first validator failure into a domain
// validation error.
func translateValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return domain.NewValidationError("body", "invalid request")
	}

	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return domain.NewValidationError(field, field+" is required")
	case "max":
		return domain.NewValidationError(field, "must be at most "+fe.Param()+" characters")
	case "gte", "lte":
		if field == "min_citations" {
			return domain.NewValidationError(field, "must not be negative")
		}
		return domain.NewValidationError(field, "must be between 1900 and 2100")
	default:
		return domain.NewValidationError(field, "is invalid")
	}
}
