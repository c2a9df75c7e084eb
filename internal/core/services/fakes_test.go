package services_test

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/testit-reports/internal/core/domain"
	apperrors "github.com/lorrc/testit-reports/internal/core/errors"
	"github.com/lorrc/testit-reports/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

type counterKey struct {
	projectID int64
	userID    uuid.UUID
	date      time.Time
}

// memGroundTruth mirrors the postgres upsert semantics in memory.
type memGroundTruth struct {
	mu     sync.Mutex
	nextID int64
	points map[uuid.UUID]*domain.GroundTruthPoint
}

var _ ports.GroundTruthRepository = (*memGroundTruth)(nil)

func newMemGroundTruth() *memGroundTruth {
	return &memGroundTruth{points: make(map[uuid.UUID]*domain.GroundTruthPoint)}
}

func (m *memGroundTruth) Upsert(_ context.Context, p *domain.GroundTruthPoint) (*domain.GroundTruthPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.points[p.ExternalPointID]; ok {
		existing.Status = p.Status
		existing.Date = p.Date
		cp := *existing
		return &cp, nil
	}
	m.nextID++
	stored := *p
	stored.ID = m.nextID
	m.points[p.ExternalPointID] = &stored
	cp := stored
	return &cp, nil
}

func (m *memGroundTruth) GetByExternalID(_ context.Context, id uuid.UUID) (*domain.GroundTruthPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memGroundTruth) CountByStatus(_ context.Context, f domain.CountFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked(f), nil
}

func (m *memGroundTruth) countLocked(f domain.CountFilter) int {
	n := 0
	for _, p := range m.points {
		if p.ProjectID != f.ProjectID || p.Status != f.Status || !f.Range.Contains(p.Date) {
			continue
		}
		if f.UserID != nil && p.UserID != *f.UserID {
			continue
		}
		n++
	}
	return n
}

func (m *memGroundTruth) ListUserIDs(context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, p := range m.points {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			ids = append(ids, p.UserID)
		}
	}
	return ids, nil
}

func (m *memGroundTruth) UpdateUsername(_ context.Context, userID uuid.UUID, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.points {
		if p.UserID == userID && p.Username != username {
			p.Username = username
			n++
		}
	}
	return n, nil
}

func (m *memGroundTruth) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}

// memRunCounters recomputes from a memGroundTruth like the SQL statement does.
type memRunCounters struct {
	truth *memGroundTruth

	mu     sync.Mutex
	nextID int64
	rows   map[counterKey]*domain.DailyRunCounter
}

var _ ports.RunCounterRepository = (*memRunCounters)(nil)

func newMemRunCounters(truth *memGroundTruth) *memRunCounters {
	return &memRunCounters{truth: truth, rows: make(map[counterKey]*domain.DailyRunCounter)}
}

func (m *memRunCounters) Recompute(_ context.Context, projectID int64, userID uuid.UUID, username string, date time.Time) (*domain.DailyRunCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.truth.mu.Lock()
	f := domain.CountFilter{ProjectID: projectID, UserID: &userID, Range: domain.SingleDay(date)}
	f.Status = domain.PointStatusPassed
	passed := m.truth.countLocked(f)
	f.Status = domain.PointStatusFailed
	failed := m.truth.countLocked(f)
	m.truth.mu.Unlock()

	if passed == 0 && failed == 0 {
		return nil, nil
	}
	key := counterKey{projectID, userID, domain.Day(date)}
	row, ok := m.rows[key]
	if !ok {
		m.nextID++
		row = &domain.DailyRunCounter{ID: m.nextID, ProjectID: projectID, UserID: userID, Date: key.date}
		m.rows[key] = row
	}
	row.Username = username
	row.PassedCount = passed
	row.FailedCount = failed
	cp := *row
	return &cp, nil
}

func (m *memRunCounters) ListByProject(_ context.Context, projectID int64, r domain.DateRange) ([]*domain.DailyRunCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.DailyRunCounter
	for k, row := range m.rows {
		if k.projectID == projectID && r.Contains(k.date) {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}

// memCaseCounters keeps the last written value per key.
type memCaseCounters struct {
	mu     sync.Mutex
	rows   map[counterKey]*domain.DailyCaseCounter
	failOn map[uuid.UUID]error
}

var _ ports.CaseCounterRepository = (*memCaseCounters)(nil)

func newMemCaseCounters() *memCaseCounters {
	return &memCaseCounters{rows: make(map[counterKey]*domain.DailyCaseCounter)}
}

func (m *memCaseCounters) Replace(_ context.Context, c *domain.DailyCaseCounter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[c.UserID]; err != nil {
		return err
	}
	cp := *c
	m.rows[counterKey{c.ProjectID, c.UserID, domain.Day(c.Date)}] = &cp
	return nil
}

func (m *memCaseCounters) ListByProject(_ context.Context, projectID int64, r domain.DateRange) ([]*domain.DailyCaseCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.DailyCaseCounter
	for k, row := range m.rows {
		if k.projectID == projectID && r.Contains(k.date) {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out, nil
}

func (m *memCaseCounters) Totals(ctx context.Context, projectID int64, r domain.DateRange) (int, int, error) {
	rows, _ := m.ListByProject(ctx, projectID, r)
	created, modified := 0, 0
	for _, row := range rows {
		created += row.CreatedCount
		modified += row.ModifiedCount
	}
	return created, modified, nil
}

// staticResolver answers from a fixed map and falls back to the placeholder.
type staticResolver map[uuid.UUID]string

func (s staticResolver) ResolveUsername(_ context.Context, _ string, userID uuid.UUID) string {
	if name, ok := s[userID]; ok {
		return name
	}
	return domain.PlaceholderUsername(userID)
}

// memProjects serves a fixed project list.
type memProjects struct {
	byID map[int64]*domain.Project
}

var _ ports.ProjectRepository = (*memProjects)(nil)

func newMemProjects(projects ...*domain.Project) *memProjects {
	m := &memProjects{byID: make(map[int64]*domain.Project, len(projects))}
	for _, p := range projects {
		m.byID[p.ID] = p
	}
	return m
}

func (m *memProjects) GetByID(_ context.Context, id int64) (*domain.Project, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, apperrors.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProjects) ListActive(context.Context) ([]*domain.Project, error) {
	var out []*domain.Project
	for _, p := range m.byID {
		if p.Status == domain.ProjectStatusActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// memRunLog records every collection run it is handed.
type memRunLog struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.CollectionRun
}

var _ ports.CollectionRunRepository = (*memRunLog)(nil)

func newMemRunLog() *memRunLog {
	return &memRunLog{runs: make(map[uuid.UUID]*domain.CollectionRun)}
}

func (m *memRunLog) Create(_ context.Context, run *domain.CollectionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *memRunLog) Finish(_ context.Context, run *domain.CollectionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.runs[run.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	stored.Status = run.Status
	stored.PointsRecorded = run.PointsRecorded
	stored.CaseCountersWritten = run.CaseCountersWritten
	stored.RunCountersWritten = run.RunCountersWritten
	stored.Error = run.Error
	stored.FinishedAt = run.FinishedAt
	return nil
}

func (m *memRunLog) ListByProject(_ context.Context, projectID int64, limit int) ([]*domain.CollectionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.CollectionRun
	for _, run := range m.runs {
		if run.ProjectID == projectID {
			cp := *run
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// testitProject is what memTestIT serves for one TestIT project.
type testitProject struct {
	created  []domain.WorkItem
	modified []domain.WorkItem
	plans    []domain.TestPlan
	planErr  error
	points   map[uuid.UUID][]domain.TestPoint
}

// memTestIT answers TestIT calls from canned per-project data.
type memTestIT struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*testitProject
	names    map[uuid.UUID]string
}

var _ ports.TestManagementClient = (*memTestIT)(nil)

func newMemTestIT() *memTestIT {
	return &memTestIT{
		projects: make(map[uuid.UUID]*testitProject),
		names:    make(map[uuid.UUID]string),
	}
}

func (m *memTestIT) SearchWorkItems(_ context.Context, _ string, f domain.WorkItemFilter) ([]domain.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WorkItem
	for _, id := range f.ProjectIDs {
		p, ok := m.projects[id]
		if !ok {
			continue
		}
		if f.CreatedDate != nil {
			out = append(out, p.created...)
		}
		if f.ModifiedDate != nil {
			out = append(out, p.modified...)
		}
	}
	return out, nil
}

func (m *memTestIT) GetProjectTestPlans(_ context.Context, _ string, projectID uuid.UUID) ([]domain.TestPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if p.planErr != nil {
		return nil, p.planErr
	}
	return p.plans, nil
}

func (m *memTestIT) SearchTestPoints(_ context.Context, _ string, f domain.TestPointFilter, skip, _ int) ([]domain.TestPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if skip > 0 {
		return nil, nil
	}
	var out []domain.TestPoint
	for _, p := range m.projects {
		for _, planID := range f.TestPlanIDs {
			out = append(out, p.points[planID]...)
		}
	}
	return out, nil
}

func (m *memTestIT) GetUserName(_ context.Context, _ string, userID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.names[userID]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	return name, nil
}
