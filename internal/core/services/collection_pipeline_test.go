package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/testit-reports/internal/core/domain"
	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
	"github.com/lorrc/testit-reports/internal/core/mocks"
	"github.com/lorrc/testit-reports/internal/core/services"
)

// pipeline wires the real services over in-memory storage and TestIT.
type pipeline struct {
	truth     *memGroundTruth
	cases     *memCaseCounters
	runs      *memRunCounters
	runLog    *memRunLog
	scheduler *services.SchedulerService
}

func newPipeline(t *testing.T, client *memTestIT, projects *memProjects) *pipeline {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, 1, 11, 1, 0, 0, 0, time.UTC))

	broadcaster := mocks.NewMockEventBroadcaster()
	broadcaster.On("Broadcast", mock.Anything).Return(nil).Maybe()
	metrics := mocks.NewMockCollectionMetrics()
	metrics.On("ObserveRun", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	metrics.On("AddPointsRecorded", mock.Anything).Return().Maybe()
	metrics.On("AddCountersWritten", mock.Anything, mock.Anything).Return().Maybe()

	p := &pipeline{
		truth:  newMemGroundTruth(),
		cases:  newMemCaseCounters(),
		runLog: newMemRunLog(),
	}
	p.runs = newMemRunCounters(p.truth)

	resolver := services.NewCachedUsernameResolver(client, time.Hour, testLogger())
	store := services.NewGroundTruthService(p.truth, resolver, testLogger())
	workItems := services.NewWorkItemAggregator(client, p.cases, resolver, testLogger())
	testRuns := services.NewTestRunAggregator(services.TestRunAggregatorConfig{PlanConcurrency: 2, PointPageSize: 50},
		client, store, p.runs, resolver, clock, testLogger())
	collector := services.NewCollectionService(projects, workItems, testRuns, p.runLog, broadcaster, metrics, clock, testLogger())
	p.scheduler = services.NewSchedulerService(services.SchedulerConfig{
		Cron:               "0 0 1 * * *",
		DefaultToken:       "default",
		ProjectConcurrency: 3,
		RunTimeout:         time.Minute,
	}, projects, collector, clock, testLogger())
	return p
}

func (p *pipeline) snapshot(t *testing.T, projectIDs []int64, r domain.DateRange) (map[int64][]*domain.DailyCaseCounter, map[int64][]*domain.DailyRunCounter) {
	t.Helper()
	ctx := context.Background()
	cases := make(map[int64][]*domain.DailyCaseCounter)
	runs := make(map[int64][]*domain.DailyRunCounter)
	for _, id := range projectIDs {
		c, err := p.cases.ListByProject(ctx, id, r)
		require.NoError(t, err)
		cases[id] = c
		rc, err := p.runs.ListByProject(ctx, id, r)
		require.NoError(t, err)
		runs[id] = rc
	}
	return cases, runs
}

func TestCollectAll_IsolatesProjectsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := domain.SingleDay(day("2024-01-10"))
	tester := uuid.New()

	client := newMemTestIT()
	client.names[tester] = "Tess"

	var projectList []*domain.Project
	for id := int64(1); id <= 3; id++ {
		externalID := uuid.New()
		projectList = append(projectList, &domain.Project{
			ID: id, Name: "project", ExternalID: &externalID, Status: domain.ProjectStatusActive,
		})

		plan := domain.TestPlan{ID: uuid.New(), Name: "nightly", CompletedOn: at("2024-01-10T18:00:00Z")}
		data := &testitProject{
			created: []domain.WorkItem{{ID: uuid.New(), CreatedByID: &tester, CreatedDate: at("2024-01-10T09:00:00Z")}},
			plans:   []domain.TestPlan{plan},
			points: map[uuid.UUID][]domain.TestPoint{plan.ID: {
				point(domain.PointStatusPassed, &tester, nil),
				point(domain.PointStatusFailed, &tester, nil),
			}},
		}
		if id == 2 {
			data.planErr = errors.New("502 bad gateway")
		}
		client.projects[externalID] = data
	}

	p := newPipeline(t, client, newMemProjects(projectList...))
	ids := []int64{1, 2, 3}

	fleet, err := p.scheduler.CollectAll(ctx, r, domain.TriggerFleet)
	require.NoError(t, err)
	assert.Equal(t, 3, fleet.Projects)
	assert.Equal(t, 2, fleet.Succeeded)
	assert.Equal(t, 1, fleet.Partial)
	assert.Zero(t, fleet.Failed)
	require.Error(t, fleet.Err)
	assert.Contains(t, fleet.Err.Error(), "project 2")
	assert.ErrorIs(t, fleet.Err, apperrors.ErrUpstreamUnavailable)

	cases, runs := p.snapshot(t, ids, r)
	for _, id := range []int64{1, 3} {
		require.Len(t, runs[id], 1, "project %d", id)
		assert.Equal(t, 1, runs[id][0].PassedCount)
		assert.Equal(t, 1, runs[id][0].FailedCount)
		assert.Equal(t, "Tess", runs[id][0].Username)
		require.Len(t, cases[id], 1, "project %d", id)
	}
	assert.Empty(t, runs[2], "plan listing failed, no run counters")
	require.Len(t, cases[2], 1, "work items still aggregated")
	assert.Equal(t, 1, cases[2][0].CreatedCount)
	assert.Equal(t, 4, p.truth.len())

	_, err = p.scheduler.CollectAll(ctx, r, domain.TriggerFleet)
	require.NoError(t, err)

	casesAgain, runsAgain := p.snapshot(t, ids, r)
	if diff := cmp.Diff(cases, casesAgain); diff != "" {
		t.Errorf("case counters changed on second run (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(runs, runsAgain); diff != "" {
		t.Errorf("run counters changed on second run (-first +second):\n%s", diff)
	}
	assert.Equal(t, 4, p.truth.len())

	logged, err := p.runLog.ListByProject(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, logged, 2)
	for _, run := range logged {
		assert.Equal(t, domain.CollectionPartial, run.Status)
		assert.NotNil(t, run.Error)
	}
}
