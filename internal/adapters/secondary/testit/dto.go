package testit

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/testit-reports/internal/core/domain"
)

// filterTimeLayout is the instant format TestIT expects in range filters.
const filterTimeLayout = "2006-01-02T15:04:05.000Z"

// Timestamp decodes TestIT dates, which come either with an offset or as a
// bare local date-time that is treated as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("testit: unrecognised timestamp %q", s)
}

func (t *Timestamp) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

type dateRangeDTO struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func newDateRangeDTO(w *domain.TimeWindow) *dateRangeDTO {
	if w == nil {
		return nil
	}
	return &dateRangeDTO{
		From: w.From.UTC().Format(filterTimeLayout),
		To:   w.To.UTC().Format(filterTimeLayout),
	}
}

type workItemFilterDTO struct {
	ProjectIDs   []uuid.UUID   `json:"projectIds,omitempty"`
	Types        []string      `json:"types,omitempty"`
	CreatedDate  *dateRangeDTO `json:"createdDate,omitempty"`
	ModifiedDate *dateRangeDTO `json:"modifiedDate,omitempty"`
}

type workItemSearchRequest struct {
	Filter workItemFilterDTO `json:"filter"`
}

func newWorkItemSearchRequest(f domain.WorkItemFilter) workItemSearchRequest {
	return workItemSearchRequest{Filter: workItemFilterDTO{
		ProjectIDs:   f.ProjectIDs,
		Types:        f.Types,
		CreatedDate:  newDateRangeDTO(f.CreatedDate),
		ModifiedDate: newDateRangeDTO(f.ModifiedDate),
	}}
}

type workItemDTO struct {
	ID           uuid.UUID  `json:"id"`
	CreatedByID  *uuid.UUID `json:"createdById"`
	ModifiedByID *uuid.UUID `json:"modifiedById"`
	CreatedDate  *Timestamp `json:"createdDate"`
	ModifiedDate *Timestamp `json:"modifiedDate"`
}

func (d workItemDTO) toDomain() domain.WorkItem {
	return domain.WorkItem{
		ID:           d.ID,
		CreatedByID:  d.CreatedByID,
		ModifiedByID: d.ModifiedByID,
		CreatedDate:  d.CreatedDate.ptr(),
		ModifiedDate: d.ModifiedDate.ptr(),
	}
}

type testPlanDTO struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	CreatedDate *Timestamp `json:"createdDate"`
	StartedOn   *Timestamp `json:"startedOn"`
	CompletedOn *Timestamp `json:"completedOn"`
}

func (d testPlanDTO) toDomain() domain.TestPlan {
	return domain.TestPlan{
		ID:          d.ID,
		Name:        d.Name,
		Status:      d.Status,
		CreatedDate: d.CreatedDate.ptr(),
		StartedOn:   d.StartedOn.ptr(),
		CompletedOn: d.CompletedOn.ptr(),
	}
}

type testPointSearchRequest struct {
	TestPlanIDs       []uuid.UUID `json:"testPlanIds"`
	WorkItemIsDeleted bool        `json:"workItemIsDeleted"`
}

type statusModelDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

type testPointDTO struct {
	ID           uuid.UUID       `json:"id"`
	Status       *string         `json:"status"`
	StatusModel  *statusModelDTO `json:"statusModel"`
	CreatedByID  *uuid.UUID      `json:"createdById"`
	ModifiedByID *uuid.UUID      `json:"modifiedById"`
	ProjectID    *uuid.UUID      `json:"projectId"`
}

func (d testPointDTO) toDomain() domain.TestPoint {
	p := domain.TestPoint{
		ID:           d.ID,
		Status:       d.Status,
		CreatedByID:  d.CreatedByID,
		ModifiedByID: d.ModifiedByID,
		ProjectID:    d.ProjectID,
	}
	if d.StatusModel != nil {
		p.StatusModel = &domain.StatusModel{
			ID:   d.StatusModel.ID,
			Name: d.StatusModel.Name,
			Code: d.StatusModel.Code,
		}
	}
	return p
}

type userDTO struct {
	ID          uuid.UUID `json:"id"`
	UserName    string    `json:"userName"`
	DisplayName string    `json:"displayName"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
}

// name picks the most readable name TestIT has for the user.
func (d userDTO) name() string {
	if s := strings.TrimSpace(d.DisplayName); s != "" {
		return s
	}
	if s := strings.TrimSpace(strings.TrimSpace(d.FirstName) + " " + strings.TrimSpace(d.LastName)); s != "" {
		return s
	}
	return strings.TrimSpace(d.UserName)
}
