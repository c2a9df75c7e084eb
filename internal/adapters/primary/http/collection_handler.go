package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	mw "github.com/lorrc/testit-reports/internal/adapters/primary/http/middleware"
	"github.com/lorrc/testit-reports/internal/adapters/primary/validation"
	"github.com/lorrc/testit-reports/internal/core/domain"
	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
	"github.com/lorrc/testit-reports/internal/core/ports"
	"github.com/lorrc/testit-reports/internal/infrastructure/logging"
)

// TestITTokenHeader carries the caller's own TestIT credential.
const TestITTokenHeader = "X-TestIT-Token"

// BackgroundRunner executes accepted requests after the response has been
// written. Work is cancelled when the runner's context ends and Wait blocks
// until it has drained.
type BackgroundRunner struct {
	ctx     context.Context
	timeout time.Duration
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewBackgroundRunner creates a runner bound to ctx. Each job gets at most
// timeout to finish.
func NewBackgroundRunner(ctx context.Context, timeout time.Duration, logger *slog.Logger) *BackgroundRunner {
	return &BackgroundRunner{ctx: ctx, timeout: timeout, logger: logger}
}

// Go runs fn in the background. The job keeps the request's log context
// but not its cancellation.
func (b *BackgroundRunner) Go(reqCtx context.Context, name string, fn func(ctx context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx := context.WithoutCancel(reqCtx)
		var cancel context.CancelFunc
		if b.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, b.timeout)
		} else {
			ctx, cancel = context.WithCancel(ctx)
		}
		defer cancel()
		stop := context.AfterFunc(b.ctx, cancel)
		defer stop()

		logger := logging.LoggerFromContext(ctx, b.logger).With("job", name)
		defer func() {
			if p := recover(); p != nil {
				logging.LogPanic(logger, p)
			}
		}()

		if err := fn(ctx); err != nil {
			logger.Error("background job failed", "error", err)
		}
	}()
}

// Wait blocks until every job has returned or ctx is done.
func (b *BackgroundRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CollectionHandler exposes the manual collection triggers.
type CollectionHandler struct {
	scheduler    ports.SchedulerService
	groundTruth  ports.GroundTruthStore
	runner       *BackgroundRunner
	defaultToken string
	maxRangeDays int
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// CollectionHandlerConfig holds the request limits of the trigger routes.
type CollectionHandlerConfig struct {
	DefaultToken string
	MaxRangeDays int
}

// NewCollectionHandler creates a new CollectionHandler.
func NewCollectionHandler(
	cfg CollectionHandlerConfig,
	scheduler ports.SchedulerService,
	groundTruth ports.GroundTruthStore,
	runner *BackgroundRunner,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *CollectionHandler {
	return &CollectionHandler{
		scheduler:    scheduler,
		groundTruth:  groundTruth,
		runner:       runner,
		defaultToken: strings.TrimSpace(cfg.DefaultToken),
		maxRangeDays: cfg.MaxRangeDays,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "collection"),
	}
}

// RegisterRoutes registers the trigger routes. Fleet-wide operations need
// the admin role.
func (h *CollectionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/projects/{projectID}/collect", h.HandleCollectProject)
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireAdmin)
		r.Post("/collect-all", h.HandleCollectAll)
		r.Post("/usernames/refresh", h.HandleRefreshUsernames)
	})
}

// CollectionAcceptedResponse acknowledges a background collection.
type CollectionAcceptedResponse struct {
	ProjectID *int64 `json:"projectId,omitempty"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// HandleCollectProject handles POST /statistics/projects/{projectID}/collect.
func (h *CollectionHandler) HandleCollectProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := validation.ParseIDParam(r, "projectID")
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	dr, err := validation.ParseDateRange(r, h.maxRangeDays)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	token := strings.TrimSpace(r.Header.Get(TestITTokenHeader))
	if token == "" && !h.scheduler.DefaultCredentialConfigured() {
		h.errorHandler.Handle(w, r, apperrors.ErrMissingCredential)
		return
	}

	ctx := logging.WithProjectID(r.Context(), projectID)
	h.runner.Go(ctx, "collect_project", func(ctx context.Context) error {
		res, err := h.scheduler.CollectProject(ctx, projectID, token, dr)
		if err != nil {
			return err
		}
		h.logger.InfoContext(ctx, "manual collection finished",
			"status", res.Status,
			"range", dr.String(),
		)
		return nil
	})

	WriteAccepted(w, "Statistics collection started", CollectionAcceptedResponse{
		ProjectID: &projectID,
		StartDate: dr.Start.Format(domain.DateLayout),
		EndDate:   dr.End.Format(domain.DateLayout),
	})
}

// HandleCollectAll handles POST /statistics/collect-all.
func (h *CollectionHandler) HandleCollectAll(w http.ResponseWriter, r *http.Request) {
	dr, err := validation.ParseDateRange(r, h.maxRangeDays)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	if !h.scheduler.DefaultCredentialConfigured() {
		h.errorHandler.Handle(w, r, apperrors.ErrMissingCredential)
		return
	}
	// Best effort: a race with another trigger is caught by CollectAll and logged.
	if h.scheduler.Running() {
		h.errorHandler.Handle(w, r, apperrors.ErrCollectionRunning)
		return
	}

	h.runner.Go(r.Context(), "collect_all", func(ctx context.Context) error {
		fleet, err := h.scheduler.CollectAll(ctx, dr, domain.TriggerFleet)
		if err != nil {
			return err
		}
		h.logger.InfoContext(ctx, "manual fleet collection finished",
			"projects", fleet.Projects,
			"succeeded", fleet.Succeeded,
			"partial", fleet.Partial,
			"failed", fleet.Failed,
			"skipped", fleet.Skipped,
		)
		return nil
	})

	WriteAccepted(w, "Statistics collection started for all projects", CollectionAcceptedResponse{
		StartDate: dr.Start.Format(domain.DateLayout),
		EndDate:   dr.End.Format(domain.DateLayout),
	})
}

// RefreshUsernamesResponse reports a username refresh.
type RefreshUsernamesResponse struct {
	RowsUpdated int    `json:"rowsUpdated"`
	Warning     string `json:"warning,omitempty"`
}

// HandleRefreshUsernames handles POST /statistics/usernames/refresh. Partial
// failures are reported alongside the number of rows that were updated.
func (h *CollectionHandler) HandleRefreshUsernames(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get(TestITTokenHeader))
	if token == "" {
		token = h.defaultToken
	}
	if token == "" {
		h.errorHandler.Handle(w, r, apperrors.ErrMissingCredential)
		return
	}

	n, err := h.groundTruth.RefreshUsernames(r.Context(), token)
	if err != nil && n == 0 {
		h.errorHandler.Handle(w, r, err)
		return
	}

	resp := RefreshUsernamesResponse{RowsUpdated: n}
	if err != nil {
		h.logger.WarnContext(r.Context(), "username refresh incomplete", "error", err)
		resp.Warning = "some users could not be updated"
	}
	WriteSuccess(w, resp)
}
