package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProjectStatus is the lifecycle state of a tracked project.
type ProjectStatus string

const (
	ProjectStatusActive  ProjectStatus = "ACTIVE"
	ProjectStatusPaused  ProjectStatus = "PAUSED"
	ProjectStatusDeleted ProjectStatus = "DELETED"
)

// IsValid checks if the status is one of the known values.
func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectStatusActive, ProjectStatusPaused, ProjectStatusDeleted:
		return true
	}
	return false
}

// Project is a unit of work tracked in TestIT. It is owned by the project
// management side of the system and read-only to the statistics pipeline.
type Project struct {
	ID          int64
	ExternalID  *uuid.UUID
	Name        string
	Description string
	Status      ProjectStatus

	// IncludeAllTestPlans makes the run aggregator ignore plan dates and
	// process every plan of the project on each collection.
	IncludeAllTestPlans bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the project is eligible for collection.
func (p *Project) IsActive() bool {
	return p.Status == ProjectStatusActive
}

// HasExternalID reports whether the project is linked to a TestIT project.
func (p *Project) HasExternalID() bool {
	return p.ExternalID != nil && *p.ExternalID != uuid.Nil
}

// Collectable reports whether statistics can be collected for the project.
func (p *Project) Collectable() bool {
	return p.IsActive() && p.HasExternalID()
}
