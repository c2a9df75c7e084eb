package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// DailyCaseCounter holds the number of test cases a user created and
// modified in a project on one day. Each collection replaces it entirely.
type DailyCaseCounter struct {
	ID            int64
	ProjectID     int64
	UserID        uuid.UUID
	Username      string
	Date          time.Time
	CreatedCount  int
	ModifiedCount int
}

// DailyRunCounter holds the passed and failed test points attributed to a
// user in a project on one day. It is always recomputed from ground truth.
type DailyRunCounter struct {
	ID          int64
	ProjectID   int64
	UserID      uuid.UUID
	Username    string
	Date        time.Time
	PassedCount int
	FailedCount int
}

// UserDay is the (user, calendar day) grouping key shared by both counters.
type UserDay struct {
	UserID uuid.UUID
	Date   time.Time
}

// CountWorkItems groups items by the user and day returned by pick and
// counts them. Items for which pick reports no user or no date are ignored.
func CountWorkItems(items []WorkItem, pick func(WorkItem) (*uuid.UUID, *time.Time)) map[UserDay]int {
	counts := make(map[UserDay]int)
	for _, item := range items {
		userID, at := pick(item)
		if userID == nil || at == nil {
			continue
		}
		counts[UserDay{UserID: *userID, Date: Day(*at)}]++
	}
	return counts
}

// ByCreation attributes a work item to its creator on its creation day.
func ByCreation(item WorkItem) (*uuid.UUID, *time.Time) {
	return item.CreatedByID, item.CreatedDate
}

// ByModification attributes a work item to its last modifier on its
// modification day.
func ByModification(item WorkItem) (*uuid.UUID, *time.Time) {
	return item.ModifiedByID, item.ModifiedDate
}

// BuildCaseCounters merges created and modified groupings into one counter
// per key seen on either side. Missing sides count as zero. The result is
// ordered by date, then user.
func BuildCaseCounters(projectID int64, created, modified []WorkItem) []*DailyCaseCounter {
	createdCounts := CountWorkItems(created, ByCreation)
	modifiedCounts := CountWorkItems(modified, ByModification)

	keys := make(map[UserDay]struct{}, len(createdCounts)+len(modifiedCounts))
	for k := range createdCounts {
		keys[k] = struct{}{}
	}
	for k := range modifiedCounts {
		keys[k] = struct{}{}
	}

	counters := make([]*DailyCaseCounter, 0, len(keys))
	for k := range keys {
		counters = append(counters, &DailyCaseCounter{
			ProjectID:     projectID,
			UserID:        k.UserID,
			Date:          k.Date,
			CreatedCount:  createdCounts[k],
			ModifiedCount: modifiedCounts[k],
		})
	}

	sort.Slice(counters, func(i, j int) bool {
		if !counters[i].Date.Equal(counters[j].Date) {
			return counters[i].Date.Before(counters[j].Date)
		}
		return counters[i].UserID.String() < counters[j].UserID.String()
	})
	return counters
}
