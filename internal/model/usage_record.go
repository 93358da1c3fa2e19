package model

import "github.com/google/uuid"

type UsageKind string

const (
	UsageSale UsageKind = "SALE"
	UsageDose UsageKind = "DOSE"
	UsageLab  UsageKind = "LAB"
)

// UsageRecord is the append-only record of a dose administered or stock sold.
// Rows are permanent audit trail and are never mutated.
type UsageRecord struct {
	BaseModel
	ClinicID uuid.UUID `gorm:"type:uuid;not null;index" json:"clinic_id"`
	Kind     UsageKind `gorm:"type:varchar(10);not null" json:"kind"`

	StockItemID   *uuid.UUID `gorm:"type:uuid;index" json:"stock_item_id,omitempty"`
	ContainerID   *uuid.UUID `gorm:"type:uuid;index" json:"container_id,omitempty"`
	ReservationID *uuid.UUID `gorm:"type:uuid;index" json:"reservation_id,omitempty"`

	Quantity       int    `gorm:"not null" json:"quantity"`
	RecipientRef   string `gorm:"type:varchar(100)" json:"recipient_ref"`
	AdministeredBy string `gorm:"type:varchar(255);not null" json:"administered_by"`
	Note           string `gorm:"type:text" json:"note,omitempty"`
}
