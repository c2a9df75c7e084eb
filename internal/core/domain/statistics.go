package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ProjectStatistics is the report served for one project and date range.
type ProjectStatistics struct {
	ProjectID          int64             `json:"projectId"`
	ProjectName        string            `json:"projectName"`
	StartDate          string            `json:"startDate"`
	EndDate            string            `json:"endDate"`
	UserStatistics     []*UserStatistics `json:"userStatistics"`
	TotalCreatedCount  int               `json:"totalCreatedCount"`
	TotalModifiedCount int               `json:"totalModifiedCount"`
	TotalPassedCount   int               `json:"totalPassedCount"`
	TotalFailedCount   int               `json:"totalFailedCount"`
}

// UserStatistics aggregates one user's counters over the report range.
type UserStatistics struct {
	UserID          uuid.UUID          `json:"userId"`
	Username        string             `json:"username"`
	CreatedCount    int                `json:"createdCount"`
	ModifiedCount   int                `json:"modifiedCount"`
	PassedCount     int                `json:"passedCount"`
	FailedCount     int                `json:"failedCount"`
	DailyStatistics []*DailyStatistics `json:"dailyStatistics"`
}

// DailyStatistics is one day of a user's counters.
type DailyStatistics struct {
	Date          string `json:"date"`
	CreatedCount  int    `json:"createdCount"`
	ModifiedCount int    `json:"modifiedCount"`
	PassedCount   int    `json:"passedCount"`
	FailedCount   int    `json:"failedCount"`
}

// StatisticsBuilder merges case and run counters into per-user reports.
type StatisticsBuilder struct {
	users map[uuid.UUID]*UserStatistics
	days  map[uuid.UUID]map[time.Time]*DailyStatistics
}

func NewStatisticsBuilder() *StatisticsBuilder {
	return &StatisticsBuilder{
		users: make(map[uuid.UUID]*UserStatistics),
		days:  make(map[uuid.UUID]map[time.Time]*DailyStatistics),
	}
}

func (b *StatisticsBuilder) entry(userID uuid.UUID, username string, date time.Time) (*UserStatistics, *DailyStatistics) {
	user, ok := b.users[userID]
	if !ok {
		user = &UserStatistics{UserID: userID, Username: username}
		b.users[userID] = user
		b.days[userID] = make(map[time.Time]*DailyStatistics)
	}
	date = Day(date)
	day, ok := b.days[userID][date]
	if !ok {
		day = &DailyStatistics{Date: date.Format(DateLayout)}
		b.days[userID][date] = day
	}
	return user, day
}

// AddCaseCounter adds a created/modified row.
func (b *StatisticsBuilder) AddCaseCounter(c *DailyCaseCounter) {
	user, day := b.entry(c.UserID, c.Username, c.Date)
	user.CreatedCount += c.CreatedCount
	user.ModifiedCount += c.ModifiedCount
	day.CreatedCount = c.CreatedCount
	day.ModifiedCount = c.ModifiedCount
}

// AddRunCounter adds a passed/failed row.
func (b *StatisticsBuilder) AddRunCounter(c *DailyRunCounter) {
	user, day := b.entry(c.UserID, c.Username, c.Date)
	user.PassedCount += c.PassedCount
	user.FailedCount += c.FailedCount
	day.PassedCount = c.PassedCount
	day.FailedCount = c.FailedCount
}

// Users returns the per-user reports ordered by username, each with its
// days in chronological order.
func (b *StatisticsBuilder) Users() []*UserStatistics {
	out := make([]*UserStatistics, 0, len(b.users))
	for userID, user := range b.users {
		dates := make([]time.Time, 0, len(b.days[userID]))
		for d := range b.days[userID] {
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

		user.DailyStatistics = make([]*DailyStatistics, 0, len(dates))
		for _, d := range dates {
			user.DailyStatistics = append(user.DailyStatistics, b.days[userID][d])
		}
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}
