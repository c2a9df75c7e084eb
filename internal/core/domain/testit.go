package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkItemTypeTestCases is the TestIT work item type counted by the
// work item aggregator.
const WorkItemTypeTestCases = "TestCases"

// WorkItem is the subset of a TestIT work item the pipeline reads.
type WorkItem struct {
	ID           uuid.UUID
	CreatedByID  *uuid.UUID
	ModifiedByID *uuid.UUID
	CreatedDate  *time.Time
	ModifiedDate *time.Time
}

// TestPlan is the subset of a TestIT test plan the pipeline reads.
type TestPlan struct {
	ID          uuid.UUID
	Name        string
	Status      string
	CreatedDate *time.Time
	StartedOn   *time.Time
	CompletedOn *time.Time
}

// StatusModel is the nested status descriptor attached to newer TestIT
// test point payloads.
type StatusModel struct {
	ID   string
	Name string
	Code string
}

// TestPoint is one executable instance of a test case inside a plan.
type TestPoint struct {
	ID           uuid.UUID
	Status       *string
	StatusModel  *StatusModel
	CreatedByID  *uuid.UUID
	ModifiedByID *uuid.UUID
	ProjectID    *uuid.UUID
}

// TimeWindow is an instant range filter sent to TestIT.
type TimeWindow struct {
	From time.Time
	To   time.Time
}

// WorkItemFilter selects work items by project, type and one date window.
type WorkItemFilter struct {
	ProjectIDs   []uuid.UUID
	Types        []string
	CreatedDate  *TimeWindow
	ModifiedDate *TimeWindow
}

// TestPointFilter selects the test points of a set of plans.
type TestPointFilter struct {
	TestPlanIDs       []uuid.UUID
	WorkItemIsDeleted bool
}
