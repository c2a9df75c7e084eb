package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/lorrc/testit-reports/internal/core/domain"
	"github.com/lorrc/testit-reports/internal/core/ports"
)

// GroundTruthService keeps one authoritative row per TestIT test point.
type GroundTruthService struct {
	repo     ports.GroundTruthRepository
	resolver ports.UsernameResolver
	logger   *slog.Logger
}

var _ ports.GroundTruthStore = (*GroundTruthService)(nil)

// NewGroundTruthService creates a new ground truth service.
func NewGroundTruthService(
	repo ports.GroundTruthRepository,
	resolver ports.UsernameResolver,
	logger *slog.Logger,
) ports.GroundTruthStore {
	return &GroundTruthService{
		repo:     repo,
		resolver: resolver,
		logger:   logger,
	}
}

// Record upserts the point. Failures are logged and reported through ok so
// the caller can move on to the next point.
func (s *GroundTruthService) Record(ctx context.Context, point *domain.GroundTruthPoint) (*domain.GroundTruthPoint, bool) {
	stored, err := s.repo.Upsert(ctx, point)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record test point",
			"test_point_id", point.ExternalPointID,
			"test_plan_id", point.TestPlanID,
			"error", err,
		)
		return nil, false
	}
	return stored, true
}

func (s *GroundTruthService) CountByStatus(ctx context.Context, filter domain.CountFilter) (int, error) {
	return s.repo.CountByStatus(ctx, filter)
}

// RefreshUsernames re-resolves the display name of every user with stored
// points and returns the number of rows rewritten. Users that still resolve
// to a placeholder keep whatever name they already have.
func (s *GroundTruthService) RefreshUsernames(ctx context.Context, token string) (int, error) {
	userIDs, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	// A cached name would defeat the refresh.
	if f, ok := s.resolver.(interface{ Forget() }); ok {
		f.Forget()
	}

	var (
		updated int64
		errs    *multierror.Error
	)
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			errs = multierror.Append(errs, err)
			break
		}
		name := s.resolver.ResolveUsername(ctx, token, userID)
		if name == domain.PlaceholderUsername(userID) {
			continue
		}
		n, err := s.repo.UpdateUsername(ctx, userID, name)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		updated += n
	}

	s.logger.InfoContext(ctx, "usernames refreshed",
		"users", len(userIDs),
		"rows_updated", updated,
	)
	return int(updated), errs.ErrorOrNil()
}
