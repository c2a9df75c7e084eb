package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lorrc/testit-reports/internal/core/domain"
	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
	"github.com/lorrc/testit-reports/internal/core/ports"
)

// TestRunAggregatorConfig bounds the work one aggregation may fan out to.
type TestRunAggregatorConfig struct {
	PlanConcurrency int
	PointPageSize   int
}

// TestRunAggregator records the test points of the plans in range into the
// ground truth store and recomputes the daily run counters they touch.
type TestRunAggregator struct {
	client   ports.TestManagementClient
	store    ports.GroundTruthStore
	counters ports.RunCounterRepository
	resolver ports.UsernameResolver
	clock    quartz.Clock
	cfg      TestRunAggregatorConfig
	logger   *slog.Logger
}

var _ ports.TestRunAggregator = (*TestRunAggregator)(nil)

func NewTestRunAggregator(
	cfg TestRunAggregatorConfig,
	client ports.TestManagementClient,
	store ports.GroundTruthStore,
	counters ports.RunCounterRepository,
	resolver ports.UsernameResolver,
	clock quartz.Clock,
	logger *slog.Logger,
) ports.TestRunAggregator {
	if cfg.PlanConcurrency < 1 {
		cfg.PlanConcurrency = 1
	}
	if cfg.PointPageSize < 1 {
		cfg.PointPageSize = 1000
	}
	return &TestRunAggregator{
		client:   client,
		store:    store,
		counters: counters,
		resolver: resolver,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// AggregateTestRuns processes every plan in range. Failing to list plans
// aborts the call; a plan whose points cannot be fetched is logged, counted
// and skipped.
func (a *TestRunAggregator) AggregateTestRuns(ctx context.Context, project *domain.Project, token string, r domain.DateRange) (domain.RunAggregation, error) {
	var total domain.RunAggregation
	if !project.HasExternalID() {
		return total, apperrors.ErrProjectNotCollectable
	}

	plans, err := a.client.GetProjectTestPlans(ctx, token, *project.ExternalID)
	if err != nil {
		a.logger.ErrorContext(ctx, "test plan fetch failed", "error", err)
		return total, fmt.Errorf("%w: list test plans: %w", apperrors.ErrUpstreamUnavailable, err)
	}
	inScope := domain.FilterPlans(plans, r, project.IncludeAllTestPlans)
	total.PlansFetched = len(plans)
	total.PlansInScope = len(inScope)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(a.cfg.PlanConcurrency)
	for _, plan := range inScope {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := a.aggregatePlan(ctx, project, token, plan)
			mu.Lock()
			total.Merge(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	a.logger.InfoContext(ctx, "test runs aggregated",
		"range", r.String(),
		"include_all_plans", project.IncludeAllTestPlans,
		"plans_fetched", total.PlansFetched,
		"plans_in_scope", total.PlansInScope,
		"plans_failed", total.PlansFailed,
		"points_recorded", total.PointsRecorded,
		"points_rejected", total.PointsRejected,
		"points_unassigned", total.PointsUnassigned,
		"counters_written", total.CountersWritten,
		"counters_suppressed", total.CountersSuppressed,
	)
	return total, ctx.Err()
}

func (a *TestRunAggregator) aggregatePlan(ctx context.Context, project *domain.Project, token string, plan domain.TestPlan) domain.RunAggregation {
	var res domain.RunAggregation

	points, err := a.fetchPoints(ctx, token, plan.ID)
	if err != nil {
		a.logger.WarnContext(ctx, "skipping test plan, points unavailable",
			"test_plan_id", plan.ID,
			"test_plan", plan.Name,
			"error", err,
		)
		res.PlansFailed = 1
		return res
	}

	date := domain.PlanEffectiveDate(plan, a.clock.Now())

	names := make(map[uuid.UUID]string)
	var users []uuid.UUID
	for _, p := range points {
		userID, ok := domain.AttributedUser(p)
		if !ok {
			res.PointsUnassigned++
			continue
		}
		name, seen := names[userID]
		if !seen {
			name = a.resolver.ResolveUsername(ctx, token, userID)
			names[userID] = name
			users = append(users, userID)
		}

		_, ok = a.store.Record(ctx, &domain.GroundTruthPoint{
			ProjectID:       project.ID,
			TestPlanID:      plan.ID,
			ExternalPointID: p.ID,
			UserID:          userID,
			Username:        name,
			Status:          domain.NormalizeStatus(p),
			Date:            date,
		})
		if !ok {
			res.PointsRejected++
			continue
		}
		res.PointsRecorded++
	}

	for _, userID := range users {
		counter, err := a.counters.Recompute(ctx, project.ID, userID, names[userID], date)
		if err != nil {
			a.logger.ErrorContext(ctx, "failed to recompute run counter",
				"testit_user_id", userID,
				"date", date.Format(domain.DateLayout),
				"error", err,
			)
			continue
		}
		if counter == nil {
			res.CountersSuppressed++
			continue
		}
		res.CountersWritten++
	}
	return res
}

// fetchPoints pages through a plan's points until TestIT returns a short page.
func (a *TestRunAggregator) fetchPoints(ctx context.Context, token string, planID uuid.UUID) ([]domain.TestPoint, error) {
	filter := domain.TestPointFilter{TestPlanIDs: []uuid.UUID{planID}}
	size := a.cfg.PointPageSize

	var all []domain.TestPoint
	for skip := 0; ; skip += size {
		page, err := a.client.SearchTestPoints(ctx, token, filter, skip, size)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < size {
			return all, nil
		}
	}
}
