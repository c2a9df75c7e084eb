package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/testit-reports/internal/core/domain"
)

// ProjectRepository gives read access to the projects owned by the
// project management side of the system.
type ProjectRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Project, error)
	ListActive(ctx context.Context) ([]*domain.Project, error)
}

// GroundTruthRepository persists one row per TestIT test point.
type GroundTruthRepository interface {
	// Upsert inserts the point, or updates status and date of the existing
	// row with the same external point id. Attribution is never rewritten.
	Upsert(ctx context.Context, point *domain.GroundTruthPoint) (*domain.GroundTruthPoint, error)
	GetByExternalID(ctx context.Context, externalPointID uuid.UUID) (*domain.GroundTruthPoint, error)
	CountByStatus(ctx context.Context, filter domain.CountFilter) (int, error)
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
	UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (int64, error)
}

// CaseCounterRepository stores DailyCaseCounter rows.
type CaseCounterRepository interface {
	// Replace writes the counter, overwriting any previous value for the
	// same (project, user, date).
	Replace(ctx context.Context, counter *domain.DailyCaseCounter) error
	ListByProject(ctx context.Context, projectID int64, r domain.DateRange) ([]*domain.DailyCaseCounter, error)
	Totals(ctx context.Context, projectID int64, r domain.DateRange) (created, modified int, err error)
}

// RunCounterRepository stores DailyRunCounter rows.
type RunCounterRepository interface {
	// Recompute counts passed and failed ground truth points for the key
	// and upserts the counter in one atomic step. It returns nil without
	// writing anything when both counts are zero.
	Recompute(ctx context.Context, projectID int64, userID uuid.UUID, username string, date time.Time) (*domain.DailyRunCounter, error)
	ListByProject(ctx context.Context, projectID int64, r domain.DateRange) ([]*domain.DailyRunCounter, error)
}

// CollectionRunRepository keeps the log of orchestrator runs.
type CollectionRunRepository interface {
	Create(ctx context.Context, run *domain.CollectionRun) error
	Finish(ctx context.Context, run *domain.CollectionRun) error
	ListByProject(ctx context.Context, projectID int64, limit int) ([]*domain.CollectionRun, error)
}
