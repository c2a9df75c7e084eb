package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/testit-reports/internal/core/domain"
	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
	"github.com/lorrc/testit-reports/internal/core/ports"
	"github.com/lorrc/testit-reports/internal/core/utils"
)

// GroundTruthRepository stores test points in test_point_results.
type GroundTruthRepository struct {
	pool *pgxpool.Pool
}

var _ ports.GroundTruthRepository = (*GroundTruthRepository)(nil)

func NewGroundTruthRepository(pool *pgxpool.Pool) ports.GroundTruthRepository {
	return &GroundTruthRepository{pool: pool}
}

const pointColumns = `id, project_id, test_plan_id, test_point_id, testit_user_id, testit_username, status, date, created_at, updated_at`

func scanPoint(row pgx.Row) (*domain.GroundTruthPoint, error) {
	var (
		p         domain.GroundTruthPoint
		planID    pgtype.UUID
		pointID   pgtype.UUID
		userID    pgtype.UUID
		username  pgtype.Text
		date      pgtype.Date
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&p.ID, &p.ProjectID, &planID, &pointID, &userID, &username, &p.Status, &date, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.TestPlanID = utils.FromUUID(planID)
	p.ExternalPointID = utils.FromUUID(pointID)
	p.UserID = utils.FromUUID(userID)
	p.Username = utils.FromString(username)
	p.Date = utils.FromDate(date)
	p.CreatedAt = createdAt.Time
	p.UpdatedAt = updatedAt.Time
	return &p, nil
}

func (r *GroundTruthRepository) Upsert(ctx context.Context, point *domain.GroundTruthPoint) (*domain.GroundTruthPoint, error) {
	// Attribution columns are left alone on conflict.
	query := `
INSERT INTO test_point_results (project_id, test_plan_id, test_point_id, testit_user_id, testit_username, status, date)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (test_point_id) DO UPDATE
SET status = EXCLUDED.status,
    date = EXCLUDED.date,
    updated_at = NOW()
RETURNING ` + pointColumns

	stored, err := scanPoint(GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		point.ProjectID,
		utils.ToUUID(point.TestPlanID),
		utils.ToUUID(point.ExternalPointID),
		utils.ToUUID(point.UserID),
		utils.ToString(point.Username),
		point.Status,
		utils.ToDate(point.Date),
	))
	if err != nil {
		return nil, fmt.Errorf("upsert test point %s: %w", point.ExternalPointID, err)
	}
	return stored, nil
}

func (r *GroundTruthRepository) GetByExternalID(ctx context.Context, externalPointID uuid.UUID) (*domain.GroundTruthPoint, error) {
	query := `SELECT ` + pointColumns + ` FROM test_point_results WHERE test_point_id = $1`

	p, err := scanPoint(GetDBTX(ctx, r.pool).QueryRow(ctx, query, utils.ToUUID(externalPointID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *GroundTruthRepository) CountByStatus(ctx context.Context, filter domain.CountFilter) (int, error) {
	const query = `
SELECT COUNT(*)
FROM test_point_results
WHERE project_id = $1
  AND status = $2
  AND date BETWEEN $3 AND $4
  AND ($5::uuid IS NULL OR testit_user_id = $5::uuid)
`

	var count int
	err := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		filter.ProjectID,
		filter.Status,
		utils.ToDate(filter.Range.Start),
		utils.ToDate(filter.Range.End),
		utils.ToNullUUID(filter.UserID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s points for project %d: %w", filter.Status, filter.ProjectID, err)
	}
	return count, nil
}

func (r *GroundTruthRepository) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	const query = `SELECT DISTINCT testit_user_id FROM test_point_results ORDER BY testit_user_id`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, utils.FromUUID(id))
	}
	return ids, rows.Err()
}

func (r *GroundTruthRepository) UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (int64, error) {
	const query = `
UPDATE test_point_results
SET testit_username = $2, updated_at = NOW()
WHERE testit_user_id = $1
  AND testit_username IS DISTINCT FROM $2
`

	tag, err := GetDBTX(ctx, r.pool).Exec(ctx, query, utils.ToUUID(userID), username)
	if err != nil {
		return 0, fmt.Errorf("update username for %s: %w", userID, err)
	}
	return tag.RowsAffected(), nil
}
