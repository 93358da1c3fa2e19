package model

import (
	"time"

	"github.com/google/uuid"
)

// TemperatureObservation is an immutable cold-chain reading attached to a
// container. Observations are audit trail: never updated or deleted.
type TemperatureObservation struct {
	BaseModel
	ClinicID    uuid.UUID `gorm:"type:uuid;not null;index" json:"clinic_id"`
	ContainerID uuid.UUID `gorm:"type:uuid;not null;index" json:"container_id"`

	ValueC     float64   `gorm:"not null" json:"value_c"`
	Location   string    `gorm:"type:varchar(255)" json:"location"`
	InRange    bool      `gorm:"not null" json:"in_range"`
	RecordedAt time.Time `gorm:"not null;index" json:"recorded_at"`
	RecordedBy string    `gorm:"type:varchar(255)" json:"recorded_by"`
}

// TemperatureExcursion is one continuous out-of-range window for a container.
// An open window has no EndedAt.
type TemperatureExcursion struct {
	BaseModel
	ClinicID    uuid.UUID `gorm:"type:uuid;not null;index" json:"clinic_id"`
	ContainerID uuid.UUID `gorm:"type:uuid;not null;index" json:"container_id"`

	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	LastSeenAt time.Time  `gorm:"not null" json:"last_seen_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Duration measures the window against now while open, or its closed span.
func (e *TemperatureExcursion) Duration(now time.Time) time.Duration {
	if e.EndedAt != nil {
		return e.EndedAt.Sub(e.StartedAt)
	}
	return now.Sub(e.StartedAt)
}
