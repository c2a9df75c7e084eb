package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lorrc/testit-reports/internal/core/domain"
	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
	"github.com/lorrc/testit-reports/internal/core/ports"
	"github.com/lorrc/testit-reports/internal/infrastructure/logging"
)

// CollectionService runs both aggregators for one project and date range.
type CollectionService struct {
	projects    ports.ProjectRepository
	workItems   ports.WorkItemAggregator
	testRuns    ports.TestRunAggregator
	runs        ports.CollectionRunRepository
	broadcaster ports.EventBroadcaster
	metrics     ports.CollectionMetrics
	clock       quartz.Clock
	logger      *slog.Logger
}

var _ ports.CollectionService = (*CollectionService)(nil)

// NewCollectionService creates a new collection orchestrator.
func NewCollectionService(
	projects ports.ProjectRepository,
	workItems ports.WorkItemAggregator,
	testRuns ports.TestRunAggregator,
	runs ports.CollectionRunRepository,
	broadcaster ports.EventBroadcaster,
	metrics ports.CollectionMetrics,
	clock quartz.Clock,
	logger *slog.Logger,
) ports.CollectionService {
	return &CollectionService{
		projects:    projects,
		workItems:   workItems,
		testRuns:    testRuns,
		runs:        runs,
		broadcaster: broadcaster,
		metrics:     metrics,
		clock:       clock,
		logger:      logger,
	}
}

// Collect loads the project and, when it is eligible, aggregates work items
// and test runs concurrently. Aggregator failures are contained in the
// result; the returned error is reserved for problems before any work starts.
// Running it twice over the same range leaves the same rows behind.
func (s *CollectionService) Collect(ctx context.Context, req domain.CollectionRequest) (*domain.CollectionResult, error) {
	project, err := s.projects.GetByID(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithProjectID(ctx, project.ID)

	result := &domain.CollectionResult{
		RunID:     uuid.New(),
		ProjectID: project.ID,
		Range:     req.Range,
		Trigger:   req.Trigger,
		StartedAt: s.clock.Now().UTC(),
	}

	switch {
	case !project.IsActive():
		result.SkipReason = fmt.Sprintf("project status is %s", project.Status)
		s.logger.WarnContext(ctx, "skipping project", "reason", result.SkipReason)
		return s.skip(result), nil
	case !project.HasExternalID():
		result.SkipReason = "project has no TestIT id"
		s.logger.ErrorContext(ctx, "skipping project", "reason", result.SkipReason)
		return s.skip(result), nil
	}

	if strings.TrimSpace(req.Token) == "" {
		return nil, apperrors.ErrMissingCredential
	}

	ctx = logging.WithRunID(ctx, result.RunID.String())
	s.logger.InfoContext(ctx, "collection started",
		"project", project.Name,
		"range", req.Range.String(),
		"trigger", req.Trigger,
	)
	result.Status = domain.CollectionRunning
	s.startRun(ctx, result)

	// The aggregators write disjoint tables and each owns its failure.
	var g errgroup.Group
	g.Go(func() error {
		result.WorkItemsErr = contain(ctx, s.logger, "work item aggregation", func() error {
			n, err := s.workItems.AggregateWorkItems(ctx, project, req.Token, req.Range)
			result.CaseCountersWritten = n
			return err
		})
		return nil
	})
	g.Go(func() error {
		result.TestRunsErr = contain(ctx, s.logger, "test run aggregation", func() error {
			agg, err := s.testRuns.AggregateTestRuns(ctx, project, req.Token, req.Range)
			result.Runs = agg
			return err
		})
		return nil
	})
	_ = g.Wait()

	result.FinishedAt = s.clock.Now().UTC()
	result.Status = result.ResolveStatus()
	s.finishRun(ctx, result)

	attrs := []any{
		"status", result.Status,
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"case_counters", result.CaseCountersWritten,
		"run_counters", result.Runs.CountersWritten,
		"points_recorded", result.Runs.PointsRecorded,
	}
	if err := result.Err(); err != nil {
		s.logger.WarnContext(ctx, "collection finished with errors", append(attrs, "error", err)...)
	} else {
		s.logger.InfoContext(ctx, "collection finished", attrs...)
	}
	return result, nil
}

func (s *CollectionService) skip(result *domain.CollectionResult) *domain.CollectionResult {
	result.Status = domain.CollectionSkipped
	result.FinishedAt = result.StartedAt
	s.metrics.ObserveRun(result.Trigger, result.Status, 0)
	return result
}

func (s *CollectionService) startRun(ctx context.Context, result *domain.CollectionResult) {
	run := &domain.CollectionRun{
		ID:        result.RunID,
		ProjectID: result.ProjectID,
		StartDate: result.Range.Start,
		EndDate:   result.Range.End,
		Trigger:   result.Trigger,
		Status:    domain.CollectionRunning,
		StartedAt: result.StartedAt,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.logger.ErrorContext(ctx, "failed to record collection run", "error", err)
	}
	s.publish(ctx, domain.EventCollectionStarted, result)
}

func (s *CollectionService) finishRun(ctx context.Context, result *domain.CollectionResult) {
	finished := result.FinishedAt
	run := &domain.CollectionRun{
		ID:                  result.RunID,
		Status:              result.Status,
		PointsRecorded:      result.Runs.PointsRecorded,
		CaseCountersWritten: result.CaseCountersWritten,
		RunCountersWritten:  result.Runs.CountersWritten,
		FinishedAt:          &finished,
	}
	if err := result.Err(); err != nil {
		msg := err.Error()
		run.Error = &msg
	}
	// The run context may already be cancelled.
	if err := s.runs.Finish(context.WithoutCancel(ctx), run); err != nil {
		s.logger.ErrorContext(ctx, "failed to close collection run", "error", err)
	}

	s.metrics.ObserveRun(result.Trigger, result.Status, result.FinishedAt.Sub(result.StartedAt))
	s.metrics.AddPointsRecorded(result.Runs.PointsRecorded)
	s.metrics.AddCountersWritten("case", result.CaseCountersWritten)
	s.metrics.AddCountersWritten("run", result.Runs.CountersWritten)

	eventType := domain.EventCollectionCompleted
	if result.Status == domain.CollectionFailed {
		eventType = domain.EventCollectionFailed
	}
	s.publish(ctx, eventType, result)
}

func (s *CollectionService) publish(ctx context.Context, eventType domain.EventType, result *domain.CollectionResult) {
	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Broadcast(domain.NewCollectionEvent(eventType, result)); err != nil {
		s.logger.WarnContext(ctx, "failed to broadcast collection event", "event", eventType, "error", err)
	}
}

// contain runs fn, reporting a panic as an error of the stage.
func contain(ctx context.Context, logger *slog.Logger, stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(logging.LoggerFromContext(ctx, logger).With("stage", stage), r)
			err = fmt.Errorf("%s: panic: %v", stage, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return nil
}
