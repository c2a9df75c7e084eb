package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lorrc/testit-reports/internal/adapters/primary/validation"
	"github.com/lorrc/testit-reports/internal/core/domain"
	"github.com/lorrc/testit-reports/internal/core/ports"
)

// CollectionRunResponse is the JSON form of a collection run log entry.
type CollectionRunResponse struct {
	ID                  uuid.UUID  `json:"id"`
	ProjectID           int64      `json:"projectId"`
	StartDate           string     `json:"startDate"`
	EndDate             string     `json:"endDate"`
	Trigger             string     `json:"trigger"`
	Status              string     `json:"status"`
	PointsRecorded      int        `json:"pointsRecorded"`
	CaseCountersWritten int        `json:"caseCountersWritten"`
	RunCountersWritten  int        `json:"runCountersWritten"`
	Error               *string    `json:"error,omitempty"`
	StartedAt           time.Time  `json:"startedAt"`
	FinishedAt          *time.Time `json:"finishedAt,omitempty"`
}

func toCollectionRunResponse(run *domain.CollectionRun) CollectionRunResponse {
	return CollectionRunResponse{
		ID:                  run.ID,
		ProjectID:           run.ProjectID,
		StartDate:           run.StartDate.Format(domain.DateLayout),
		EndDate:             run.EndDate.Format(domain.DateLayout),
		Trigger:             string(run.Trigger),
		Status:              string(run.Status),
		PointsRecorded:      run.PointsRecorded,
		CaseCountersWritten: run.CaseCountersWritten,
		RunCountersWritten:  run.RunCountersWritten,
		Error:               run.Error,
		StartedAt:           run.StartedAt,
		FinishedAt:          run.FinishedAt,
	}
}

// StatisticsHandler serves the per-project reports.
type StatisticsHandler struct {
	stats        ports.StatisticsService
	maxRangeDays int
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewStatisticsHandler creates a new StatisticsHandler.
func NewStatisticsHandler(
	stats ports.StatisticsService,
	maxRangeDays int,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *StatisticsHandler {
	return &StatisticsHandler{
		stats:        stats,
		maxRangeDays: maxRangeDays,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "statistics"),
	}
}

// RegisterRoutes registers the read-only statistics routes.
func (h *StatisticsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/projects/{projectID}", h.HandleGetProjectStatistics)
	r.Get("/projects/{projectID}/runs", h.HandleListRuns)
}

// HandleGetProjectStatistics handles GET /statistics/projects/{projectID}.
func (h *StatisticsHandler) HandleGetProjectStatistics(w http.ResponseWriter, r *http.Request) {
	projectID, err := validation.ParseIDParam(r, "projectID")
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	dr, err := validation.ParseDateRange(r, h.maxRangeDays)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	stats, err := h.stats.GetProjectStatistics(r.Context(), projectID, dr)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.DebugContext(r.Context(), "statistics served",
		"project_id", projectID,
		"range", dr.String(),
		"users", len(stats.UserStatistics),
	)
	WriteSuccess(w, stats)
}

// HandleListRuns handles GET /statistics/projects/{projectID}/runs.
func (h *StatisticsHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	projectID, err := validation.ParseIDParam(r, "projectID")
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	runs, err := h.stats.ListCollectionRuns(r.Context(), projectID, validation.ParseIntQueryParam(r, "limit", 0))
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	out := make([]CollectionRunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toCollectionRunResponse(run))
	}
	WriteList(w, out)
}
