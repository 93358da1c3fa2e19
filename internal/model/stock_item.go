package model

import "github.com/google/uuid"

type ItemCategory string

const (
	CategoryFrame       ItemCategory = "FRAME"
	CategoryContactLens ItemCategory = "CONTACT_LENS"
	CategoryReagent     ItemCategory = "REAGENT"
	CategoryInjectable  ItemCategory = "INJECTABLE"
)

// StockItem is the ledger entry for one SKU within one clinic.
// Invariant: Available() = TotalStock - Reserved >= 0 at all times.
// TotalStock equals the remaining quantity summed over ACTIVE batches;
// the two are cross-checked at every mutating boundary.
type StockItem struct {
	BaseModel
	ClinicID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_stock_items_clinic_sku" json:"clinic_id" validate:"uuid_required"`
	SKU      string       `gorm:"type:varchar(50);not null;uniqueIndex:idx_stock_items_clinic_sku" json:"sku" validate:"required"`
	Name     string       `gorm:"type:varchar(255);not null" json:"name" validate:"required"`
	Category ItemCategory `gorm:"type:varchar(20);not null" json:"category" validate:"required,oneof=FRAME CONTACT_LENS REAGENT INJECTABLE"`
	Unit     string       `gorm:"type:varchar(20)" json:"unit"`

	TotalStock   int `gorm:"not null;default:0" json:"total_stock"`
	Reserved     int `gorm:"not null;default:0" json:"reserved"`
	ReorderLevel int `gorm:"not null;default:0" json:"reorder_level"`

	Batches      []Batch       `json:"batches,omitempty"`
	Reservations []Reservation `json:"reservations,omitempty"`
}

// Available is the quantity open for new holds.
func (s *StockItem) Available() int {
	return s.TotalStock - s.Reserved
}
