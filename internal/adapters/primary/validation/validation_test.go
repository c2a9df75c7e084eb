package validation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
)

func TestParseDateRange(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		maxDays    int
		wantDays   int
		wantErr    error
		wantFields []string
	}{
		{"single day", "startDate=2024-01-10&endDate=2024-01-10", 31, 1, nil, nil},
		{"month", "startDate=2024-01-01&endDate=2024-01-31", 31, 31, nil, nil},
		{"no limit", "startDate=2020-01-01&endDate=2024-01-01", 0, 1462, nil, nil},
		{"missing both", "", 31, 0, nil, []string{"startDate", "endDate"}},
		{"malformed end", "startDate=2024-01-10&endDate=10.01.2024", 31, 0, nil, []string{"endDate"}},
		{"inverted", "startDate=2024-01-10&endDate=2024-01-09", 31, 0, apperrors.ErrInvalidDateRange, nil},
		{"too long", "startDate=2024-01-01&endDate=2024-02-01", 31, 0, apperrors.ErrDateRangeTooLong, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			dr, err := ParseDateRange(req, tt.maxDays)

			switch {
			case tt.wantFields != nil:
				var verrs *apperrors.ValidationErrors
				require.ErrorAs(t, err, &verrs)
				for _, f := range tt.wantFields {
					assert.Contains(t, verrs.Errors, f)
				}
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantDays, dr.Days())
			}
		})
	}
}

func TestParseIDParam(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"42", 42, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("projectID", tt.raw)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			got, err := ParseIDParam(req, "projectID")
			if tt.wantErr {
				var appErr *apperrors.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
