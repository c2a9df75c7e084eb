package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/testit-reports/internal/core/domain"
	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
	"github.com/lorrc/testit-reports/internal/core/mocks"
	"github.com/lorrc/testit-reports/internal/core/ports"
	"github.com/lorrc/testit-reports/internal/core/services"
)

type runFixture struct {
	client   *mocks.MockTestManagementClient
	truth    *memGroundTruth
	counters *memRunCounters
	clock    *quartz.Mock
	project  *domain.Project
	agg      ports.TestRunAggregator
}

func newRunFixture(t *testing.T, cfg services.TestRunAggregatorConfig, names staticResolver) *runFixture {
	t.Helper()
	f := &runFixture{
		client:  mocks.NewMockTestManagementClient(),
		truth:   newMemGroundTruth(),
		clock:   quartz.NewMock(t),
		project: &domain.Project{ID: 7, ExternalID: ptr(uuid.New()), Status: domain.ProjectStatusActive},
	}
	f.counters = newMemRunCounters(f.truth)
	f.clock.Set(time.Date(2024, 1, 20, 15, 0, 0, 0, time.UTC))

	store := services.NewGroundTruthService(f.truth, names, testLogger())
	f.agg = services.NewTestRunAggregator(cfg, f.client, store, f.counters, names, f.clock, testLogger())
	return f
}

func (f *runFixture) plans(plans ...domain.TestPlan) {
	f.client.On("GetProjectTestPlans", mock.Anything, "token", *f.project.ExternalID).Return(plans, nil)
}

func (f *runFixture) points(planID uuid.UUID, skip int, points []domain.TestPoint, err error) *mock.Call {
	filter := domain.TestPointFilter{TestPlanIDs: []uuid.UUID{planID}}
	if err != nil {
		return f.client.On("SearchTestPoints", mock.Anything, "token", filter, skip, mock.Anything).Return(nil, err)
	}
	return f.client.On("SearchTestPoints", mock.Anything, "token", filter, skip, mock.Anything).Return(points, nil)
}

func point(status string, modifier, creator *uuid.UUID) domain.TestPoint {
	p := domain.TestPoint{ID: uuid.New(), ModifiedByID: modifier, CreatedByID: creator}
	if status != "" {
		p.Status = ptr(status)
	}
	return p
}

func TestTestRunAggregator_RecordsAndRecomputes(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f := newRunFixture(t, services.TestRunAggregatorConfig{PlanConcurrency: 2, PointPageSize: 100},
		staticResolver{alice: "Alice", bob: "Bob"})

	completed := domain.TestPlan{ID: uuid.New(), Name: "completed", CreatedDate: at("2024-01-01T09:00:00Z"), CompletedOn: at("2024-01-10T18:00:00Z")}
	createdOnly := domain.TestPlan{ID: uuid.New(), Name: "created", CreatedDate: at("2024-01-11T09:00:00Z")}
	undated := domain.TestPlan{ID: uuid.New(), Name: "undated"}
	outOfRange := domain.TestPlan{ID: uuid.New(), Name: "old", CompletedOn: at("2023-12-31T23:59:59Z")}
	f.plans(completed, createdOnly, undated, outOfRange)

	f.points(completed.ID, 0, []domain.TestPoint{
		point(domain.PointStatusPassed, &alice, &bob),
		point(domain.PointStatusPassed, nil, &alice),
		point(domain.PointStatusFailed, nil, &bob),
		point(domain.PointStatusPassed, nil, nil),
	}, nil)
	f.points(createdOnly.ID, 0, []domain.TestPoint{
		{ID: uuid.New(), CreatedByID: &alice, StatusModel: &domain.StatusModel{Code: domain.PointStatusFailed}},
	}, nil)
	f.points(undated.ID, 0, []domain.TestPoint{point(domain.PointStatusPassed, &bob, nil)}, nil)

	r, err := domain.NewDateRange(day("2024-01-10"), day("2024-01-11"))
	require.NoError(t, err)

	res, err := f.agg.AggregateTestRuns(ctx, f.project, "token", r)
	require.NoError(t, err)

	assert.Equal(t, 4, res.PlansFetched)
	assert.Equal(t, 3, res.PlansInScope)
	assert.Equal(t, 5, res.PointsRecorded)
	assert.Equal(t, 1, res.PointsUnassigned)
	assert.Equal(t, 4, res.CountersWritten)
	assert.Zero(t, res.PlansFailed)

	rows, err := f.counters.ListByProject(ctx, f.project.ID, domain.DateRange{Start: day("2024-01-01"), End: day("2024-01-31")})
	require.NoError(t, err)

	want := []*domain.DailyRunCounter{
		{ProjectID: 7, UserID: alice, Username: "Alice", Date: day("2024-01-10"), PassedCount: 2},
		{ProjectID: 7, UserID: bob, Username: "Bob", Date: day("2024-01-10"), FailedCount: 1},
		{ProjectID: 7, UserID: alice, Username: "Alice", Date: day("2024-01-11"), FailedCount: 1},
		// Undated plans fall back to the current day.
		{ProjectID: 7, UserID: bob, Username: "Bob", Date: day("2024-01-20"), PassedCount: 1},
	}
	sortCounters := cmpopts.SortSlices(func(a, b *domain.DailyRunCounter) bool {
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Username < b.Username
	})
	if diff := cmp.Diff(want, rows, sortCounters, cmpopts.IgnoreFields(domain.DailyRunCounter{}, "ID")); diff != "" {
		t.Errorf("run counters mismatch (-want +got):\n%s", diff)
	}
	f.client.AssertNotCalled(t, "SearchTestPoints", mock.Anything, "token",
		domain.TestPointFilter{TestPlanIDs: []uuid.UUID{outOfRange.ID}}, mock.Anything, mock.Anything)
}

func TestTestRunAggregator_Idempotent(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	f := newRunFixture(t, services.TestRunAggregatorConfig{PlanConcurrency: 1, PointPageSize: 100}, staticResolver{alice: "Alice"})

	plan := domain.TestPlan{ID: uuid.New(), CompletedOn: at("2024-01-10T12:00:00Z")}
	f.plans(plan)
	f.points(plan.ID, 0, []domain.TestPoint{
		point(domain.PointStatusPassed, &alice, nil),
		point(domain.PointStatusFailed, &alice, nil),
	}, nil)

	r := domain.SingleDay(day("2024-01-10"))
	_, err := f.agg.AggregateTestRuns(ctx, f.project, "token", r)
	require.NoError(t, err)
	first, _ := f.counters.ListByProject(ctx, f.project.ID, r)

	_, err = f.agg.AggregateTestRuns(ctx, f.project, "token", r)
	require.NoError(t, err)
	second, _ := f.counters.ListByProject(ctx, f.project.ID, r)

	assert.Equal(t, 2, f.truth.len())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run changed counters (-first +second):\n%s", diff)
	}
}

func TestTestRunAggregator_SelfCorrects(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	f := newRunFixture(t, services.TestRunAggregatorConfig{PlanConcurrency: 1, PointPageSize: 100}, staticResolver{alice: "Alice"})

	plan := domain.TestPlan{ID: uuid.New(), CompletedOn: at("2024-01-10T12:00:00Z")}
	f.plans(plan)

	p := point(domain.PointStatusFailed, &alice, nil)
	f.points(plan.ID, 0, []domain.TestPoint{p}, nil).Once()

	r := domain.SingleDay(day("2024-01-10"))
	_, err := f.agg.AggregateTestRuns(ctx, f.project, "token", r)
	require.NoError(t, err)

	rerun := p
	rerun.Status = ptr(domain.PointStatusPassed)
	f.points(plan.ID, 0, []domain.TestPoint{rerun}, nil).Once()

	_, err = f.agg.AggregateTestRuns(ctx, f.project, "token", r)
	require.NoError(t, err)

	rows, _ := f.counters.ListByProject(ctx, f.project.ID, r)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].PassedCount)
	assert.Equal(t, 0, rows[0].FailedCount)
	assert.Equal(t, 1, f.truth.len())
}

func TestTestRunAggregator_SuppressesZeroCounters(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	f := newRunFixture(t, services.TestRunAggregatorConfig{PlanConcurrency: 1, PointPageSize: 100}, staticResolver{alice: "Alice"})

	plan := domain.TestPlan{ID: uuid.New(), CompletedOn: at("2024-01-10T12:00:00Z")}
	f.plans(plan)
	f.points(plan.ID, 0, []domain.TestPoint{
		point("Blocked", &alice, nil),
		point("", &alice, nil),
	}, nil)

	r := domain.SingleDay(day("2024-01-10"))
	res, err := f.agg.AggregateTestRuns(ctx, f.project, "token", r)
	require.NoError(t, err)

	assert.Equal(t, 2, res.PointsRecorded)
	assert.Equal(t, 1, res.CountersSuppressed)
	assert.Zero(t, res.CountersWritten)

	rows, _ := f.counters.ListByProject(ctx, f.project.ID, r)
	assert.Empty(t, rows)

	stored, err := f.truth.CountByStatus(ctx, domain.CountFilter{ProjectID: 7, Range: r, Status: domain.PointStatusUnknown})
	require.NoError(t, err)
	assert.Equal(t, 1, stored, "points without any status are stored as Unknown")
}

func TestTestRunAggregator_PlanFailureIsContained(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	f := newRunFixture(t, services.TestRunAggregatorConfig{PlanConcurrency: 2, PointPageSize: 100}, staticResolver{alice: "Alice"})

	broken := domain.TestPlan{ID: uuid.New(), CompletedOn: at("2024-01-10T12:00:00Z")}
	healthy := domain.TestPlan{ID: uuid.New(), CompletedOn: at("2024-01-10T13:00:00Z")}
	f.plans(broken, healthy)
	f.points(broken.ID, 0, nil, errors.New("503"))
	f.points(healthy.ID, 0, []domain.TestPoint{point(domain.PointStatusPassed, &alice, nil)}, nil)

	res, err := f.agg.AggregateTestRuns(ctx, f.project, "token", domain.SingleDay(day("2024-01-10")))
	require.NoError(t, err)
	assert.Equal(t, 1, res.PlansFailed)
	assert.Equal(t, 1, res.PointsRecorded)
	assert.Equal(t, 1, res.CountersWritten)
}

func TestTestRunAggregator_PlanListFailureAborts(t *testing.T) {
	f := newRunFixture(t, services.TestRunAggregatorConfig{}, staticResolver{})
	f.client.On("GetProjectTestPlans", mock.Anything, "token", *f.project.ExternalID).Return(nil, errors.New("connection refused"))

	_, err := f.agg.AggregateTestRuns(context.Background(), f.project, "token", domain.SingleDay(day("2024-01-10")))
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	f.client.AssertNotCalled(t, "SearchTestPoints", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTestRunAggregator_IncludeAllTestPlans(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	f := newRunFixture(t, services.TestRunAggregatorConfig{PlanConcurrency: 1, PointPageSize: 100}, staticResolver{alice: "Alice"})
	f.project.IncludeAllTestPlans = true

	old := domain.TestPlan{ID: uuid.New(), CompletedOn: at("2023-06-01T12:00:00Z")}
	f.plans(old)
	f.points(old.ID, 0, []domain.TestPoint{point(domain.PointStatusPassed, &alice, nil)}, nil)

	res, err := f.agg.AggregateTestRuns(ctx, f.project, "token", domain.SingleDay(day("2024-01-10")))
	require.NoError(t, err)
	assert.Equal(t, 1, res.PlansInScope)

	rows, _ := f.counters.ListByProject(ctx, f.project.ID, domain.SingleDay(day("2023-06-01")))
	require.Len(t, rows, 1, "the plan's own date is used, not the requested range")
}

func TestTestRunAggregator_PagesThroughPoints(t *testing.T) {
	ctx := context.Background()
	alice := uuid.New()
	f := newRunFixture(t, services.TestRunAggregatorConfig{PlanConcurrency: 1, PointPageSize: 2}, staticResolver{alice: "Alice"})

	plan := domain.TestPlan{ID: uuid.New(), CompletedOn: at("2024-01-10T12:00:00Z")}
	f.plans(plan)
	f.points(plan.ID, 0, []domain.TestPoint{
		point(domain.PointStatusPassed, &alice, nil),
		point(domain.PointStatusPassed, &alice, nil),
	}, nil).Once()
	f.points(plan.ID, 2, []domain.TestPoint{point(domain.PointStatusFailed, &alice, nil)}, nil).Once()

	res, err := f.agg.AggregateTestRuns(ctx, f.project, "token", domain.SingleDay(day("2024-01-10")))
	require.NoError(t, err)
	assert.Equal(t, 3, res.PointsRecorded)
	f.client.AssertExpectations(t)
}

func TestTestRunAggregator_RejectsProjectWithoutExternalID(t *testing.T) {
	f := newRunFixture(t, services.TestRunAggregatorConfig{}, staticResolver{})
	f.project.ExternalID = nil

	_, err := f.agg.AggregateTestRuns(context.Background(), f.project, "token", domain.SingleDay(day("2024-01-10")))
	assert.ErrorIs(t, err, apperrors.ErrProjectNotCollectable)
}
