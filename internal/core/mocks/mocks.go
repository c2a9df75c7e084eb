package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/lorrc/testit-reports/internal/core/domain"
	"github.com/lorrc/testit-reports/internal/core/ports"
)

// MockProjectRepository is a mock implementation of ports.ProjectRepository
type MockProjectRepository struct {
	mock.Mock
}

var _ ports.ProjectRepository = (*MockProjectRepository)(nil)

func NewMockProjectRepository() *MockProjectRepository {
	return &MockProjectRepository{}
}

func (m *MockProjectRepository) GetByID(ctx context.Context, id int64) (*domain.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Project), args.Error(1)
}

func (m *MockProjectRepository) ListActive(ctx context.Context) ([]*domain.Project, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Project), args.Error(1)
}

// MockGroundTruthRepository is a mock implementation of ports.GroundTruthRepository
type MockGroundTruthRepository struct {
	mock.Mock
}

var _ ports.GroundTruthRepository = (*MockGroundTruthRepository)(nil)

func NewMockGroundTruthRepository() *MockGroundTruthRepository {
	return &MockGroundTruthRepository{}
}

func (m *MockGroundTruthRepository) Upsert(ctx context.Context, point *domain.GroundTruthPoint) (*domain.GroundTruthPoint, error) {
	args := m.Called(ctx, point)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GroundTruthPoint), args.Error(1)
}

func (m *MockGroundTruthRepository) GetByExternalID(ctx context.Context, externalPointID uuid.UUID) (*domain.GroundTruthPoint, error) {
	args := m.Called(ctx, externalPointID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GroundTruthPoint), args.Error(1)
}

func (m *MockGroundTruthRepository) CountByStatus(ctx context.Context, filter domain.CountFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *MockGroundTruthRepository) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockGroundTruthRepository) UpdateUsername(ctx context.Context, userID uuid.UUID, username string) (int64, error) {
	args := m.Called(ctx, userID, username)
	return args.Get(0).(int64), args.Error(1)
}

// MockCaseCounterRepository is a mock implementation of ports.CaseCounterRepository
type MockCaseCounterRepository struct {
	mock.Mock
}

var _ ports.CaseCounterRepository = (*MockCaseCounterRepository)(nil)

func NewMockCaseCounterRepository() *MockCaseCounterRepository {
	return &MockCaseCounterRepository{}
}

func (m *MockCaseCounterRepository) Replace(ctx context.Context, counter *domain.DailyCaseCounter) error {
	args := m.Called(ctx, counter)
	return args.Error(0)
}

func (m *MockCaseCounterRepository) ListByProject(ctx context.Context, projectID int64, r domain.DateRange) ([]*domain.DailyCaseCounter, error) {
	args := m.Called(ctx, projectID, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DailyCaseCounter), args.Error(1)
}

func (m *MockCaseCounterRepository) Totals(ctx context.Context, projectID int64, r domain.DateRange) (int, int, error) {
	args := m.Called(ctx, projectID, r)
	return args.Int(0), args.Int(1), args.Error(2)
}

// MockRunCounterRepository is a mock implementation of ports.RunCounterRepository
type MockRunCounterRepository struct {
	mock.Mock
}

var _ ports.RunCounterRepository = (*MockRunCounterRepository)(nil)

func NewMockRunCounterRepository() *MockRunCounterRepository {
	return &MockRunCounterRepository{}
}

func (m *MockRunCounterRepository) Recompute(ctx context.Context, projectID int64, userID uuid.UUID, username string, date time.Time) (*domain.DailyRunCounter, error) {
	args := m.Called(ctx, projectID, userID, username, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DailyRunCounter), args.Error(1)
}

func (m *MockRunCounterRepository) ListByProject(ctx context.Context, projectID int64, r domain.DateRange) ([]*domain.DailyRunCounter, error) {
	args := m.Called(ctx, projectID, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DailyRunCounter), args.Error(1)
}

// MockCollectionRunRepository is a mock implementation of ports.CollectionRunRepository
type MockCollectionRunRepository struct {
	mock.Mock
}

var _ ports.CollectionRunRepository = (*MockCollectionRunRepository)(nil)

func NewMockCollectionRunRepository() *MockCollectionRunRepository {
	return &MockCollectionRunRepository{}
}

func (m *MockCollectionRunRepository) Create(ctx context.Context, run *domain.CollectionRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockCollectionRunRepository) Finish(ctx context.Context, run *domain.CollectionRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockCollectionRunRepository) ListByProject(ctx context.Context, projectID int64, limit int) ([]*domain.CollectionRun, error) {
	args := m.Called(ctx, projectID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CollectionRun), args.Error(1)
}

// MockTestManagementClient is a mock implementation of ports.TestManagementClient
type MockTestManagementClient struct {
	mock.Mock
}

var _ ports.TestManagementClient = (*MockTestManagementClient)(nil)

func NewMockTestManagementClient() *MockTestManagementClient {
	return &MockTestManagementClient{}
}

func (m *MockTestManagementClient) SearchWorkItems(ctx context.Context, token string, filter domain.WorkItemFilter) ([]domain.WorkItem, error) {
	args := m.Called(ctx, token, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.WorkItem), args.Error(1)
}

func (m *MockTestManagementClient) GetProjectTestPlans(ctx context.Context, token string, projectID uuid.UUID) ([]domain.TestPlan, error) {
	args := m.Called(ctx, token, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TestPlan), args.Error(1)
}

func (m *MockTestManagementClient) SearchTestPoints(ctx context.Context, token string, filter domain.TestPointFilter, skip, take int) ([]domain.TestPoint, error) {
	args := m.Called(ctx, token, filter, skip, take)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.TestPoint), args.Error(1)
}

func (m *MockTestManagementClient) GetUserName(ctx context.Context, token string, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, token, userID)
	return args.String(0), args.Error(1)
}

// MockUsernameResolver is a mock implementation of ports.UsernameResolver
type MockUsernameResolver struct {
	mock.Mock
}

var _ ports.UsernameResolver = (*MockUsernameResolver)(nil)

func NewMockUsernameResolver() *MockUsernameResolver {
	return &MockUsernameResolver{}
}

func (m *MockUsernameResolver) ResolveUsername(ctx context.Context, token string, userID uuid.UUID) string {
	args := m.Called(ctx, token, userID)
	return args.String(0)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

var _ ports.EventBroadcaster = (*MockEventBroadcaster)(nil)

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(event domain.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockCollectionMetrics is a mock implementation of ports.CollectionMetrics
type MockCollectionMetrics struct {
	mock.Mock
}

var _ ports.CollectionMetrics = (*MockCollectionMetrics)(nil)

func NewMockCollectionMetrics() *MockCollectionMetrics {
	return &MockCollectionMetrics{}
}

func (m *MockCollectionMetrics) ObserveRun(trigger domain.CollectionTrigger, status domain.CollectionStatus, duration time.Duration) {
	m.Called(trigger, status, duration)
}

func (m *MockCollectionMetrics) AddPointsRecorded(n int) {
	m.Called(n)
}

func (m *MockCollectionMetrics) AddCountersWritten(kind string, n int) {
	m.Called(kind, n)
}

// MockGroundTruthStore is a mock implementation of ports.GroundTruthStore
type MockGroundTruthStore struct {
	mock.Mock
}

var _ ports.GroundTruthStore = (*MockGroundTruthStore)(nil)

func NewMockGroundTruthStore() *MockGroundTruthStore {
	return &MockGroundTruthStore{}
}

func (m *MockGroundTruthStore) Record(ctx context.Context, point *domain.GroundTruthPoint) (*domain.GroundTruthPoint, bool) {
	args := m.Called(ctx, point)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.GroundTruthPoint), args.Bool(1)
}

func (m *MockGroundTruthStore) CountByStatus(ctx context.Context, filter domain.CountFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *MockGroundTruthStore) RefreshUsernames(ctx context.Context, token string) (int, error) {
	args := m.Called(ctx, token)
	return args.Int(0), args.Error(1)
}

// MockWorkItemAggregator is a mock implementation of ports.WorkItemAggregator
type MockWorkItemAggregator struct {
	mock.Mock
}

var _ ports.WorkItemAggregator = (*MockWorkItemAggregator)(nil)

func NewMockWorkItemAggregator() *MockWorkItemAggregator {
	return &MockWorkItemAggregator{}
}

func (m *MockWorkItemAggregator) AggregateWorkItems(ctx context.Context, project *domain.Project, token string, r domain.DateRange) (int, error) {
	args := m.Called(ctx, project, token, r)
	return args.Int(0), args.Error(1)
}

// MockTestRunAggregator is a mock implementation of ports.TestRunAggregator
type MockTestRunAggregator struct {
	mock.Mock
}

var _ ports.TestRunAggregator = (*MockTestRunAggregator)(nil)

func NewMockTestRunAggregator() *MockTestRunAggregator {
	return &MockTestRunAggregator{}
}

func (m *MockTestRunAggregator) AggregateTestRuns(ctx context.Context, project *domain.Project, token string, r domain.DateRange) (domain.RunAggregation, error) {
	args := m.Called(ctx, project, token, r)
	return args.Get(0).(domain.RunAggregation), args.Error(1)
}

// MockCollectionService is a mock implementation of ports.CollectionService
type MockCollectionService struct {
	mock.Mock
}

var _ ports.CollectionService = (*MockCollectionService)(nil)

func NewMockCollectionService() *MockCollectionService {
	return &MockCollectionService{}
}

func (m *MockCollectionService) Collect(ctx context.Context, req domain.CollectionRequest) (*domain.CollectionResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CollectionResult), args.Error(1)
}

// MockSchedulerService is a mock implementation of ports.SchedulerService
type MockSchedulerService struct {
	mock.Mock
}

var _ ports.SchedulerService = (*MockSchedulerService)(nil)

func NewMockSchedulerService() *MockSchedulerService {
	return &MockSchedulerService{}
}

func (m *MockSchedulerService) RunScheduled(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockSchedulerService) CollectAll(ctx context.Context, r domain.DateRange, trigger domain.CollectionTrigger) (*domain.FleetResult, error) {
	args := m.Called(ctx, r, trigger)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FleetResult), args.Error(1)
}

func (m *MockSchedulerService) CollectProject(ctx context.Context, projectID int64, token string, r domain.DateRange) (*domain.CollectionResult, error) {
	args := m.Called(ctx, projectID, token, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CollectionResult), args.Error(1)
}

func (m *MockSchedulerService) DefaultCredentialConfigured() bool {
	return m.Called().Bool(0)
}

func (m *MockSchedulerService) Running() bool {
	return m.Called().Bool(0)
}

// MockStatisticsService is a mock implementation of ports.StatisticsService
type MockStatisticsService struct {
	mock.Mock
}

var _ ports.StatisticsService = (*MockStatisticsService)(nil)

func NewMockStatisticsService() *MockStatisticsService {
	return &MockStatisticsService{}
}

func (m *MockStatisticsService) GetProjectStatistics(ctx context.Context, projectID int64, r domain.DateRange) (*domain.ProjectStatistics, error) {
	args := m.Called(ctx, projectID, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ProjectStatistics), args.Error(1)
}

func (m *MockStatisticsService) ListCollectionRuns(ctx context.Context, projectID int64, limit int) ([]*domain.CollectionRun, error) {
	args := m.Called(ctx, projectID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CollectionRun), args.Error(1)
}
