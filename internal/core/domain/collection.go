package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// CollectionTrigger records what started a collection run.
type CollectionTrigger string

const (
	TriggerScheduled CollectionTrigger = "SCHEDULED"
	TriggerManual    CollectionTrigger = "MANUAL"
	TriggerFleet     CollectionTrigger = "MANUAL_ALL"
)

// CollectionStatus is the outcome of a collection run.
type CollectionStatus string

const (
	CollectionRunning   CollectionStatus = "RUNNING"
	CollectionCompleted CollectionStatus = "COMPLETED"
	CollectionPartial   CollectionStatus = "PARTIAL"
	CollectionFailed    CollectionStatus = "FAILED"
	CollectionSkipped   CollectionStatus = "SKIPPED"
)

// CollectionRequest asks for one project to be collected over a range.
type CollectionRequest struct {
	ProjectID int64
	Token     string
	Range     DateRange
	Trigger   CollectionTrigger
}

// RunAggregation summarises one test run aggregator call.
type RunAggregation struct {
	PlansFetched       int
	PlansInScope       int
	PlansFailed        int
	PointsRecorded     int
	PointsRejected     int
	PointsUnassigned   int
	CountersWritten    int
	CountersSuppressed int
}

// Merge folds the outcome of one plan into the total.
func (a *RunAggregation) Merge(o RunAggregation) {
	a.PlansFailed += o.PlansFailed
	a.PointsRecorded += o.PointsRecorded
	a.PointsRejected += o.PointsRejected
	a.PointsUnassigned += o.PointsUnassigned
	a.CountersWritten += o.CountersWritten
	a.CountersSuppressed += o.CountersSuppressed
}

// CollectionResult is what the orchestrator reports for one project.
type CollectionResult struct {
	RunID      uuid.UUID
	ProjectID  int64
	Range      DateRange
	Trigger    CollectionTrigger
	Status     CollectionStatus
	SkipReason string

	CaseCountersWritten int
	Runs                RunAggregation

	WorkItemsErr error
	TestRunsErr  error

	StartedAt  time.Time
	FinishedAt time.Time
}

// Skipped reports whether the project was not eligible for collection.
func (r *CollectionResult) Skipped() bool {
	return r.Status == CollectionSkipped
}

// Err joins the aggregator errors, if any.
func (r *CollectionResult) Err() error {
	return errors.Join(r.WorkItemsErr, r.TestRunsErr)
}

// ResolveStatus derives the final status from the aggregator errors.
func (r *CollectionResult) ResolveStatus() CollectionStatus {
	switch {
	case r.WorkItemsErr != nil && r.TestRunsErr != nil:
		return CollectionFailed
	case r.WorkItemsErr != nil || r.TestRunsErr != nil:
		return CollectionPartial
	default:
		return CollectionCompleted
	}
}

// CollectionRun is the persisted log entry of one orchestrator run.
type CollectionRun struct {
	ID                  uuid.UUID
	ProjectID           int64
	StartDate           time.Time
	EndDate             time.Time
	Trigger             CollectionTrigger
	Status              CollectionStatus
	PointsRecorded      int
	CaseCountersWritten int
	RunCountersWritten  int
	Error               *string
	StartedAt           time.Time
	FinishedAt          *time.Time
}

// FleetResult summarises a collection over every active project.
type FleetResult struct {
	Range     DateRange
	Trigger   CollectionTrigger
	Projects  int
	Succeeded int
	Partial   int
	Failed    int
	Skipped   int
	Results   []*CollectionResult

	// Err aggregates the per-project failures. It is informational: a
	// fleet run never fails because one of its projects did.
	Err error
}
