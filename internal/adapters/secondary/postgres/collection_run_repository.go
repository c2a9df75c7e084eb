package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/testit-reports/internal/core/domain"
	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
	"github.com/lorrc/testit-reports/internal/core/ports"
	"github.com/lorrc/testit-reports/internal/core/utils"
)

type CollectionRunRepository struct {
	pool *pgxpool.Pool
}

var _ ports.CollectionRunRepository = (*CollectionRunRepository)(nil)

func NewCollectionRunRepository(pool *pgxpool.Pool) ports.CollectionRunRepository {
	return &CollectionRunRepository{pool: pool}
}

func (r *CollectionRunRepository) Create(ctx context.Context, run *domain.CollectionRun) error {
	const query = `
INSERT INTO collection_runs (id, project_id, start_date, end_date, trigger, status, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

	_, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		utils.ToUUID(run.ID),
		run.ProjectID,
		utils.ToDate(run.StartDate),
		utils.ToDate(run.EndDate),
		string(run.Trigger),
		string(run.Status),
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create collection run: %w", err)
	}
	return nil
}

func (r *CollectionRunRepository) Finish(ctx context.Context, run *domain.CollectionRun) error {
	const query = `
UPDATE collection_runs
SET status = $2,
    points_recorded = $3,
    case_counters_written = $4,
    run_counters_written = $5,
    error = $6,
    finished_at = $7
WHERE id = $1
`

	tag, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		utils.ToUUID(run.ID),
		string(run.Status),
		run.PointsRecorded,
		run.CaseCountersWritten,
		run.RunCountersWritten,
		utils.ToNullString(run.Error),
		utils.ToNullTimestamp(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("finish collection run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *CollectionRunRepository) ListByProject(ctx context.Context, projectID int64, limit int) ([]*domain.CollectionRun, error) {
	if limit <= 0 {
		limit = 20
	}

	const query = `
SELECT id, project_id, start_date, end_date, trigger, status,
       points_recorded, case_counters_written, run_counters_written,
       error, started_at, finished_at
FROM collection_runs
WHERE project_id = $1
ORDER BY started_at DESC
LIMIT $2
`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.CollectionRun
	for rows.Next() {
		var (
			run        domain.CollectionRun
			id         pgtype.UUID
			startDate  pgtype.Date
			endDate    pgtype.Date
			trigger    string
			status     string
			errText    pgtype.Text
			startedAt  pgtype.Timestamptz
			finishedAt pgtype.Timestamptz
		)
		if err := rows.Scan(
			&id, &run.ProjectID, &startDate, &endDate, &trigger, &status,
			&run.PointsRecorded, &run.CaseCountersWritten, &run.RunCountersWritten,
			&errText, &startedAt, &finishedAt,
		); err != nil {
			return nil, err
		}
		run.ID = utils.FromUUID(id)
		run.StartDate = utils.FromDate(startDate)
		run.EndDate = utils.FromDate(endDate)
		run.Trigger = domain.CollectionTrigger(trigger)
		run.Status = domain.CollectionStatus(status)
		run.Error = utils.FromNullString(errText)
		run.StartedAt = startedAt.Time
		run.FinishedAt = utils.FromNullTimestamp(finishedAt)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
