package ports

import (
	"context"

	"github.com/lorrc/testit-reports/internal/core/domain"
)

// GroundTruthStore defines the port for recording and counting test points.
type GroundTruthStore interface {
	// Record upserts a point. A persistence failure is logged and reported
	// as ok=false so callers can continue with the rest of the batch.
	Record(ctx context.Context, point *domain.GroundTruthPoint) (stored *domain.GroundTruthPoint, ok bool)
	CountByStatus(ctx context.Context, filter domain.CountFilter) (int, error)
	RefreshUsernames(ctx context.Context, token string) (int, error)
}

// WorkItemAggregator computes DailyCaseCounter rows for a project.
type WorkItemAggregator interface {
	AggregateWorkItems(ctx context.Context, project *domain.Project, token string, r domain.DateRange) (written int, err error)
}

// TestRunAggregator records test points and recomputes DailyRunCounter rows.
type TestRunAggregator interface {
	AggregateTestRuns(ctx context.Context, project *domain.Project, token string, r domain.DateRange) (domain.RunAggregation, error)
}

// CollectionService defines the port for collecting one project.
type CollectionService interface {
	Collect(ctx context.Context, req domain.CollectionRequest) (*domain.CollectionResult, error)
}

// SchedulerService defines the port for scheduled and manual triggers.
type SchedulerService interface {
	RunScheduled(ctx context.Context)
	CollectAll(ctx context.Context, r domain.DateRange, trigger domain.CollectionTrigger) (*domain.FleetResult, error)
	CollectProject(ctx context.Context, projectID int64, token string, r domain.DateRange) (*domain.CollectionResult, error)
	DefaultCredentialConfigured() bool
	// Running reports whether a fleet collection is in progress.
	Running() bool
}

// StatisticsService defines the port for reading the aggregates.
type StatisticsService interface {
	GetProjectStatistics(ctx context.Context, projectID int64, r domain.DateRange) (*domain.ProjectStatistics, error)
	ListCollectionRuns(ctx context.Context, projectID int64, limit int) ([]*domain.CollectionRun, error)
}
