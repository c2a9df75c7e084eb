package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lorrc/testit-reports/internal/core/domain"
	"github.com/lorrc/testit-reports/internal/core/ports"
	"github.com/lorrc/testit-reports/internal/core/utils"
)

// CaseCounterRepository stores test_case_statistics rows.
type CaseCounterRepository struct {
	pool *pgxpool.Pool
}

var _ ports.CaseCounterRepository = (*CaseCounterRepository)(nil)

func NewCaseCounterRepository(pool *pgxpool.Pool) ports.CaseCounterRepository {
	return &CaseCounterRepository{pool: pool}
}

func (r *CaseCounterRepository) Replace(ctx context.Context, c *domain.DailyCaseCounter) error {
	const query = `
INSERT INTO test_case_statistics (project_id, testit_user_id, testit_username, date, created_count, modified_count)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (project_id, testit_user_id, date) DO UPDATE
SET testit_username = EXCLUDED.testit_username,
    created_count = EXCLUDED.created_count,
    modified_count = EXCLUDED.modified_count,
    updated_at = NOW()
RETURNING id
`

	err := GetDBTX(ctx, r.pool).QueryRow(ctx, query,
		c.ProjectID,
		utils.ToUUID(c.UserID),
		utils.ToString(c.Username),
		utils.ToDate(c.Date),
		c.CreatedCount,
		c.ModifiedCount,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("replace case counter (%d, %s, %s): %w",
			c.ProjectID, c.UserID, c.Date.Format(domain.DateLayout), err)
	}
	return nil
}

func (r *CaseCounterRepository) ListByProject(ctx context.Context, projectID int64, dr domain.DateRange) ([]*domain.DailyCaseCounter, error) {
	const query = `
SELECT id, project_id, testit_user_id, testit_username, date, created_count, modified_count
FROM test_case_statistics
WHERE project_id = $1 AND date BETWEEN $2 AND $3
ORDER BY date, testit_username
`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, projectID, utils.ToDate(dr.Start), utils.ToDate(dr.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []*domain.DailyCaseCounter
	for rows.Next() {
		var (
			c        domain.DailyCaseCounter
			userID   pgtype.UUID
			username pgtype.Text
			date     pgtype.Date
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &userID, &username, &date, &c.CreatedCount, &c.ModifiedCount); err != nil {
			return nil, err
		}
		c.UserID = utils.FromUUID(userID)
		c.Username = utils.FromString(username)
		c.Date = utils.FromDate(date)
		counters = append(counters, &c)
	}
	return counters, rows.Err()
}

func (r *CaseCounterRepository) Totals(ctx context.Context, projectID int64, dr domain.DateRange) (int, int, error) {
	const query = `
SELECT COALESCE(SUM(created_count), 0), COALESCE(SUM(modified_count), 0)
FROM test_case_statistics
WHERE project_id = $1 AND date BETWEEN $2 AND $3
`

	var created, modified int
	err := GetDBTX(ctx, r.pool).QueryRow(ctx, query, projectID, utils.ToDate(dr.Start), utils.ToDate(dr.End)).
		Scan(&created, &modified)
	if err != nil {
		return 0, 0, err
	}
	return created, modified, nil
}

// RunCounterRepository stores test_run_statistics rows.
type RunCounterRepository struct {
	pool *pgxpool.Pool
	tm   *TransactionManager
}

var _ ports.RunCounterRepository = (*RunCounterRepository)(nil)

func NewRunCounterRepository(pool *pgxpool.Pool, tm *TransactionManager) ports.RunCounterRepository {
	return &RunCounterRepository{pool: pool, tm: tm}
}

const runCounterColumns = `id, project_id, testit_user_id, testit_username, date, passed_count, failed_count`

func scanRunCounter(row pgx.Row) (*domain.DailyRunCounter, error) {
	var (
		c        domain.DailyRunCounter
		userID   pgtype.UUID
		username pgtype.Text
		date     pgtype.Date
	)
	if err := row.Scan(&c.ID, &c.ProjectID, &userID, &username, &date, &c.PassedCount, &c.FailedCount); err != nil {
		return nil, err
	}
	c.UserID = utils.FromUUID(userID)
	c.Username = utils.FromString(username)
	c.Date = utils.FromDate(date)
	return &c, nil
}

// Recompute derives the counter from test_point_results and upserts it in
// the same statement. The HAVING clause yields no row, and so no write,
// when both counts are zero. An advisory lock on the key keeps concurrent
// recomputations of the same (project, user, date) from interleaving.
func (r *RunCounterRepository) Recompute(ctx context.Context, projectID int64, userID uuid.UUID, username string, date time.Time) (*domain.DailyRunCounter, error) {
	query := `
INSERT INTO test_run_statistics (project_id, testit_user_id, testit_username, date, passed_count, failed_count)
SELECT $1::bigint, $2::uuid, $3::text, $4::date,
       COUNT(*) FILTER (WHERE status = $5),
       COUNT(*) FILTER (WHERE status = $6)
FROM test_point_results
WHERE project_id = $1::bigint
  AND testit_user_id = $2::uuid
  AND date = $4::date
HAVING COUNT(*) FILTER (WHERE status IN ($5, $6)) > 0
ON CONFLICT (project_id, testit_user_id, date) DO UPDATE
SET testit_username = EXCLUDED.testit_username,
    passed_count = EXCLUDED.passed_count,
    failed_count = EXCLUDED.failed_count,
    updated_at = NOW()
RETURNING ` + runCounterColumns

	key := fmt.Sprintf("test_run_statistics:%d:%s:%s", projectID, userID, date.Format(domain.DateLayout))

	var counter *domain.DailyRunCounter
	err := r.tm.WithKeyLock(ctx, key, func(ctx context.Context, tx pgx.Tx) error {
		c, err := scanRunCounter(tx.QueryRow(ctx, query,
			projectID,
			utils.ToUUID(userID),
			utils.ToString(username),
			utils.ToDate(date),
			domain.PointStatusPassed,
			domain.PointStatusFailed,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		counter = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recompute run counter %s: %w", key, err)
	}
	return counter, nil
}

func (r *RunCounterRepository) ListByProject(ctx context.Context, projectID int64, dr domain.DateRange) ([]*domain.DailyRunCounter, error) {
	query := `SELECT ` + runCounterColumns + `
FROM test_run_statistics
WHERE project_id = $1 AND date BETWEEN $2 AND $3
ORDER BY date, testit_username`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, projectID, utils.ToDate(dr.Start), utils.ToDate(dr.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counters []*domain.DailyRunCounter
	for rows.Next() {
		c, err := scanRunCounter(rows)
		if err != nil {
			return nil, err
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}
