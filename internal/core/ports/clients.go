package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/testit-reports/internal/core/domain"
)

// TestManagementClient is the subset of the TestIT API the pipeline uses.
// Every call takes the credential to authenticate with.
type TestManagementClient interface {
	SearchWorkItems(ctx context.Context, token string, filter domain.WorkItemFilter) ([]domain.WorkItem, error)
	GetProjectTestPlans(ctx context.Context, token string, projectID uuid.UUID) ([]domain.TestPlan, error)
	SearchTestPoints(ctx context.Context, token string, filter domain.TestPointFilter, skip, take int) ([]domain.TestPoint, error)
	GetUserName(ctx context.Context, token string, userID uuid.UUID) (string, error)
}

// UsernameResolver turns a TestIT user id into a display name. It never
// fails: when no name can be found it returns a placeholder.
type UsernameResolver interface {
	ResolveUsername(ctx context.Context, token string, userID uuid.UUID) string
}

// EventBroadcaster defines the port for broadcasting real-time events.
type EventBroadcaster interface {
	Broadcast(event domain.Event) error
}

// CollectionMetrics records collection outcomes.
type CollectionMetrics interface {
	ObserveRun(trigger domain.CollectionTrigger, status domain.CollectionStatus, duration time.Duration)
	AddPointsRecorded(n int)
	AddCountersWritten(kind string, n int)
}
