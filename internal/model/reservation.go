package model

import "github.com/google/uuid"

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "HELD"
	ReservationFulfilled ReservationStatus = "FULFILLED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// Reservation is a temporary hold on StockItem quantity pending order
// completion. It terminates through exactly one of fulfill or release.
type Reservation struct {
	BaseModel
	ClinicID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"clinic_id"`
	StockItemID uuid.UUID  `gorm:"type:uuid;not null;index" json:"stock_item_id"`
	StockItem   *StockItem `json:"stock_item,omitempty"`

	// Opaque order/workflow reference, stored as a foreign key only.
	OrderRef string `gorm:"type:varchar(100);not null;index" json:"order_ref"`

	Quantity   int               `gorm:"not null" json:"quantity"`
	ReservedBy string            `gorm:"type:varchar(255);not null" json:"reserved_by"`
	Status     ReservationStatus `gorm:"type:varchar(10);not null;default:HELD" json:"status"`
}
