package model

import (
	"time"

	"github.com/google/uuid"
)

type BatchStatus string

const (
	BatchActive   BatchStatus = "ACTIVE"
	BatchExpired  BatchStatus = "EXPIRED"
	BatchDisposed BatchStatus = "DISPOSED"
	BatchRecalled BatchStatus = "RECALLED"
)

// Batch is one received lot under a StockItem. Non-active batches
// contribute nothing to available stock.
type Batch struct {
	BaseModel
	ClinicID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"clinic_id"`
	StockItemID uuid.UUID  `gorm:"type:uuid;not null;index" json:"stock_item_id" validate:"uuid_required"`
	StockItem   *StockItem `json:"stock_item,omitempty" validate:"-"`

	LotNumber         string    `gorm:"type:varchar(100);not null" json:"lot_number" validate:"required"`
	QuantityReceived  int       `gorm:"not null" json:"quantity_received" validate:"required,gt=0"`
	QuantityRemaining int       `gorm:"not null" json:"quantity_remaining"`
	ReceivedAt        time.Time `gorm:"not null;index" json:"received_at"`
	ExpiresAt         time.Time `gorm:"not null;index" json:"expires_at" validate:"required"`

	Status        BatchStatus `gorm:"type:varchar(10);not null;default:ACTIVE" json:"status"`
	DisposeReason string      `gorm:"type:text" json:"dispose_reason,omitempty"`
}

// EffectiveStatus derives the batch status from stored facts and the clock.
// A stored-active batch past its expiration reads as EXPIRED even before the
// sweep has persisted the flip.
func (b *Batch) EffectiveStatus(now time.Time) BatchStatus {
	if b.Status != BatchActive {
		return b.Status
	}
	if now.After(b.ExpiresAt) {
		return BatchExpired
	}
	return BatchActive
}

// Consumable reports whether the batch may satisfy FEFO allocation at now.
func (b *Batch) Consumable(now time.Time) bool {
	return b.EffectiveStatus(now) == BatchActive && b.QuantityRemaining > 0
}
