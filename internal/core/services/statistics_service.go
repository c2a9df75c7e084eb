package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/lorrc/testit-reports/internal/core/domain"
	"github.com/lorrc/testit-reports/internal/core/ports"
)

const (
	defaultRunListLimit = 20
	maxRunListLimit     = 200
)

// StatisticsService reads the aggregates back for reporting.
type StatisticsService struct {
	projects    ports.ProjectRepository
	caseCounts  ports.CaseCounterRepository
	runCounts   ports.RunCounterRepository
	groundTruth ports.GroundTruthStore
	runs        ports.CollectionRunRepository
}

var _ ports.StatisticsService = (*StatisticsService)(nil)

func NewStatisticsService(
	projects ports.ProjectRepository,
	caseCounts ports.CaseCounterRepository,
	runCounts ports.RunCounterRepository,
	groundTruth ports.GroundTruthStore,
	runs ports.CollectionRunRepository,
) ports.StatisticsService {
	return &StatisticsService{
		projects:    projects,
		caseCounts:  caseCounts,
		runCounts:   runCounts,
		groundTruth: groundTruth,
		runs:        runs,
	}
}

// GetProjectStatistics builds the per-user report for a project. Created and
// modified totals are summed from the case counters; passed and failed
// totals are counted straight from ground truth.
func (s *StatisticsService) GetProjectStatistics(ctx context.Context, projectID int64, r domain.DateRange) (*domain.ProjectStatistics, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var (
		cases             []*domain.DailyCaseCounter
		runs              []*domain.DailyRunCounter
		created, modified int
		passed, failed    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cases, err = s.caseCounts.ListByProject(gctx, projectID, r)
		return wrapErr("list case counters", err)
	})
	g.Go(func() (err error) {
		runs, err = s.runCounts.ListByProject(gctx, projectID, r)
		return wrapErr("list run counters", err)
	})
	g.Go(func() (err error) {
		created, modified, err = s.caseCounts.Totals(gctx, projectID, r)
		return wrapErr("sum case counters", err)
	})
	g.Go(func() (err error) {
		passed, err = s.groundTruth.CountByStatus(gctx, domain.CountFilter{ProjectID: projectID, Range: r, Status: domain.PointStatusPassed})
		return wrapErr("count passed points", err)
	})
	g.Go(func() (err error) {
		failed, err = s.groundTruth.CountByStatus(gctx, domain.CountFilter{ProjectID: projectID, Range: r, Status: domain.PointStatusFailed})
		return wrapErr("count failed points", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := domain.NewStatisticsBuilder()
	for _, c := range cases {
		b.AddCaseCounter(c)
	}
	for _, c := range runs {
		b.AddRunCounter(c)
	}

	return &domain.ProjectStatistics{
		ProjectID:          project.ID,
		ProjectName:        project.Name,
		StartDate:          r.Start.Format(domain.DateLayout),
		EndDate:            r.End.Format(domain.DateLayout),
		UserStatistics:     b.Users(),
		TotalCreatedCount:  created,
		TotalModifiedCount: modified,
		TotalPassedCount:   passed,
		TotalFailedCount:   failed,
	}, nil
}

// ListCollectionRuns returns the most recent runs of a project.
func (s *StatisticsService) ListCollectionRuns(ctx context.Context, projectID int64, limit int) ([]*domain.CollectionRun, error) {
	if _, err := s.projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	if limit > maxRunListLimit {
		limit = maxRunListLimit
	}
	return s.runs.ListByProject(ctx, projectID, limit)
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
