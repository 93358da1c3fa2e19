package repository

import (
	"github.com/xtm888/medflow-clinic-sub003/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UsageRepository is append-only: there is deliberately no update or delete.
type UsageRepository interface {
	Create(tx *gorm.DB, u *model.UsageRecord) error
	ListByItem(clinicID, itemID uuid.UUID) ([]model.UsageRecord, error)
	ListByContainer(clinicID, containerID uuid.UUID) ([]model.UsageRecord, error)
}

type usageRepo struct {
	db *gorm.DB
}

func NewUsageRepo(db *gorm.DB) UsageRepository {
	return &usageRepo{db}
}

func (r *usageRepo) Create(tx *gorm.DB, u *model.UsageRecord) error {
	return tx.Create(u).Error
}

func (r *usageRepo) ListByItem(clinicID, itemID uuid.UUID) ([]model.UsageRecord, error) {
	var out []model.UsageRecord
	err := r.db.
		Where("clinic_id = ? AND stock_item_id = ?", clinicID, itemID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

func (r *usageRepo) ListByContainer(clinicID, containerID uuid.UUID) ([]model.UsageRecord, error) {
	var out []model.UsageRecord
	err := r.db.
		Where("clinic_id = ? AND container_id = ?", clinicID, containerID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}
