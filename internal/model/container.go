package model

import (
	"time"

	"github.com/google/uuid"
)

type ContainerStatus string

const (
	ContainerUnopened    ContainerStatus = "UNOPENED"
	ContainerInUse       ContainerStatus = "IN_USE"
	ContainerDepleted    ContainerStatus = "DEPLETED"
	ContainerExpired     ContainerStatus = "EXPIRED"
	ContainerDisposed    ContainerStatus = "DISPOSED"
	ContainerQuarantined ContainerStatus = "QUARANTINED"
	ContainerRecalled    ContainerStatus = "RECALLED"
)

// Container is a multi-dose perishable unit (injectable vial). Its status is
// never stored: it is derived on every read from the flags below, the dose
// counters and the clock, so a stale persisted classification cannot leak
// usable doses.
type Container struct {
	BaseModel
	ClinicID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"clinic_id" validate:"uuid_required"`
	StockItemID *uuid.UUID `gorm:"type:uuid;index" json:"stock_item_id,omitempty"`

	Medication string    `gorm:"type:varchar(255);not null" json:"medication" validate:"required"`
	LotNumber  string    `gorm:"type:varchar(100);not null" json:"lot_number" validate:"required"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at" validate:"required"`

	// Beyond-use window, counted from the moment the container is opened.
	OpenedAt       *time.Time `json:"opened_at,omitempty"`
	BeyondUseHours int        `gorm:"not null;default:0" json:"beyond_use_hours" validate:"required,gt=0"`

	DosesPerContainer int `gorm:"not null" json:"doses_per_container" validate:"required,gt=0"`
	DosesUsed         int `gorm:"not null;default:0" json:"doses_used"`

	// Irreversible flags
	Disposed      bool       `gorm:"not null;default:false" json:"disposed"`
	DisposeReason string     `gorm:"type:text" json:"dispose_reason,omitempty"`
	DisposedAt    *time.Time `json:"disposed_at,omitempty"`
	Recalled      bool       `gorm:"not null;default:false" json:"recalled"`
	Quarantined   bool       `gorm:"not null;default:false" json:"quarantined"`

	// Cold-chain band and excursion budget for the medication.
	MinTempC            float64 `gorm:"not null;default:2" json:"min_temp_c"`
	MaxTempC            float64 `gorm:"not null;default:8" json:"max_temp_c"`
	MaxExcursionMinutes int     `gorm:"not null;default:0" json:"max_excursion_minutes"`
	// Accumulated minutes from closed excursion windows.
	ExcursionMinutes int `gorm:"not null;default:0" json:"excursion_minutes"`

	// Marker set once by the sweep when time expiry is first observed,
	// so dashboards are notified exactly once.
	ExpiryNotedAt *time.Time `json:"expiry_noted_at,omitempty"`

	// Derived on read, never persisted.
	Status ContainerStatus `gorm:"-" json:"status"`
}

func (c *Container) DosesRemaining() int {
	return c.DosesPerContainer - c.DosesUsed
}

// BeyondUseAt is nil until the container is opened.
func (c *Container) BeyondUseAt() *time.Time {
	if c.OpenedAt == nil {
		return nil
	}
	bud := c.OpenedAt.Add(time.Duration(c.BeyondUseHours) * time.Hour)
	return &bud
}

// StatusAt is the pure derivation of container status from stored facts and
// the supplied clock. Precedence: disposed > recalled > quarantined >
// time-expired > depleted > in-use > unopened.
func (c *Container) StatusAt(now time.Time) ContainerStatus {
	switch {
	case c.Disposed:
		return ContainerDisposed
	case c.Recalled:
		return ContainerRecalled
	case c.Quarantined:
		return ContainerQuarantined
	case now.After(c.ExpiresAt):
		return ContainerExpired
	}
	if bud := c.BeyondUseAt(); bud != nil && now.After(*bud) {
		return ContainerExpired
	}
	if c.OpenedAt != nil {
		if c.DosesRemaining() <= 0 {
			return ContainerDepleted
		}
		return ContainerInUse
	}
	return ContainerUnopened
}

// Usable re-evaluates everything at call time; it never trusts a stale
// classification.
func (c *Container) Usable(now time.Time) bool {
	s := c.StatusAt(now)
	return s == ContainerUnopened || s == ContainerInUse
}

func (c *Container) InBand(valueC float64) bool {
	return valueC >= c.MinTempC && valueC <= c.MaxTempC
}
