package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Test point statuses the pipeline gives meaning to. Any other value is
// stored verbatim and simply never counted.
const (
	PointStatusPassed  = "Passed"
	PointStatusFailed  = "Failed"
	PointStatusUnknown = "Unknown"
)

// GroundTruthPoint is the single authoritative record of a TestIT test
// point's latest known status. There is exactly one per ExternalPointID.
type GroundTruthPoint struct {
	ID              int64
	ProjectID       int64
	TestPlanID      uuid.UUID
	ExternalPointID uuid.UUID
	UserID          uuid.UUID
	Username        string
	Status          string
	Date            time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CountFilter selects ground truth rows for a status count. A nil UserID
// counts every user of the project.
type CountFilter struct {
	ProjectID int64
	UserID    *uuid.UUID
	Range     DateRange
	Status    string
}

// NormalizeStatus picks the point's status whenever TestIT sent one, even a
// blank one. Only an absent status falls back to the status model code and
// then to PointStatusUnknown.
func NormalizeStatus(p TestPoint) string {
	if p.Status != nil {
		return *p.Status
	}
	if p.StatusModel != nil && strings.TrimSpace(p.StatusModel.Code) != "" {
		return p.StatusModel.Code
	}
	return PointStatusUnknown
}

// AttributedUser returns the user credited with a point: the last modifier,
// else the creator. ok is false when neither is known.
func AttributedUser(p TestPoint) (userID uuid.UUID, ok bool) {
	if p.ModifiedByID != nil && *p.ModifiedByID != uuid.Nil {
		return *p.ModifiedByID, true
	}
	if p.CreatedByID != nil && *p.CreatedByID != uuid.Nil {
		return *p.CreatedByID, true
	}
	return uuid.Nil, false
}

// PlanEffectiveDate is the day every point of the plan is bucketed under:
// completion, else creation, else now.
func PlanEffectiveDate(plan TestPlan, now time.Time) time.Time {
	switch {
	case plan.CompletedOn != nil:
		return Day(*plan.CompletedOn)
	case plan.CreatedDate != nil:
		return Day(*plan.CreatedDate)
	default:
		return Day(now)
	}
}

// PlanInRange decides whether a plan belongs to a collection run. Plans
// without any date are always in range.
func PlanInRange(plan TestPlan, r DateRange) bool {
	switch {
	case plan.CompletedOn != nil:
		return r.Contains(*plan.CompletedOn)
	case plan.CreatedDate != nil:
		return r.Contains(*plan.CreatedDate)
	default:
		return true
	}
}

// FilterPlans keeps the plans in range, or all of them when includeAll is set.
func FilterPlans(plans []TestPlan, r DateRange, includeAll bool) []TestPlan {
	if includeAll {
		return plans
	}
	kept := make([]TestPlan, 0, len(plans))
	for _, plan := range plans {
		if PlanInRange(plan, r) {
			kept = append(kept, plan)
		}
	}
	return kept
}

// PlaceholderUsername derives a display name from a TestIT user id when no
// real name is available.
func PlaceholderUsername(userID uuid.UUID) string {
	return "User " + userID.String()[:8]
}
