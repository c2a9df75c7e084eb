package validation

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lorrc/testit-reports/internal/core/domain"
	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
)

// Validator validates request data
type Validator struct {
	errors *apperrors.ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: apperrors.NewValidationErrors(),
	}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return v.errors.HasErrors()
}

// Errors returns the validation errors
func (v *Validator) Errors() *apperrors.ValidationErrors {
	return v.errors
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.errors.Add(field, "This field is required")
	}
	return v
}

// Date validates a YYYY-MM-DD value. Empty is handled by Required.
func (v *Validator) Date(field, value string) *Validator {
	if value == "" {
		return v
	}
	if _, err := time.Parse(domain.DateLayout, value); err != nil {
		v.errors.Add(field, "Must be a date in YYYY-MM-DD format")
	}
	return v
}

// ParseDateRange reads the startDate and endDate query parameters. Missing
// or malformed values are reported as field errors; an inverted range or
// one longer than maxDays is rejected with the matching domain error.
func ParseDateRange(r *http.Request, maxDays int) (domain.DateRange, error) {
	start := strings.TrimSpace(r.URL.Query().Get("startDate"))
	end := strings.TrimSpace(r.URL.Query().Get("endDate"))

	v := NewValidator()
	v.Required("startDate", start).Date("startDate", start)
	v.Required("endDate", end).Date("endDate", end)
	if v.HasErrors() {
		return domain.DateRange{}, v.Errors()
	}

	dr, err := domain.ParseDateRange(start, end)
	if err != nil {
		return domain.DateRange{}, err
	}
	if maxDays > 0 && dr.Days() > maxDays {
		return domain.DateRange{}, fmt.Errorf("%w: %d days requested, at most %d allowed", apperrors.ErrDateRangeTooLong, dr.Days(), maxDays)
	}
	return dr, nil
}

// ParseIDParam parses a positive integer path parameter.
func ParseIDParam(r *http.Request, key string) (int64, error) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewBadRequestError(apperrors.ErrBadRequest, fmt.Sprintf("Invalid %s", key))
	}
	return id, nil
}

// ParseIntQueryParam safely parses an integer query parameter
func ParseIntQueryParam(r *http.Request, key string, defaultValue int) int {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil || value < 0 {
		return defaultValue
	}

	return value
}
