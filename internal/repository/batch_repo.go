package repository

import (
	"time"

	"github.com/xtm888/medflow-clinic-sub003/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BatchRepository interface {
	Create(tx *gorm.DB, batch *model.Batch) error
	FindByID(clinicID, id uuid.UUID) (*model.Batch, error)
	FindByItem(clinicID, itemID uuid.UUID) ([]model.Batch, error)
	LockByID(tx *gorm.DB, clinicID, id uuid.UUID) (*model.Batch, error)
	// LockActiveByItem returns stored-active batches in FEFO order:
	// expiration ascending, received date as tie-break.
	LockActiveByItem(tx *gorm.DB, itemID uuid.UUID) ([]model.Batch, error)
	ActiveStoredTotal(tx *gorm.DB, itemID uuid.UUID) (int, error)
	DecrementRemaining(tx *gorm.DB, id uuid.UUID, qty int, actor string) (bool, error)
	SetStatus(tx *gorm.DB, id uuid.UUID, status model.BatchStatus, reason, actor string) error
	DueForExpiry(now time.Time, limit int) ([]model.Batch, error)
	ExpiringWithin(clinicID uuid.UUID, until time.Time) ([]model.Batch, error)
}

type batchRepo struct {
	db *gorm.DB
}

func NewBatchRepo(db *gorm.DB) BatchRepository {
	return &batchRepo{db}
}

func (r *batchRepo) Create(tx *gorm.DB, batch *model.Batch) error {
	return tx.Create(batch).Error
}

func (r *batchRepo) FindByID(clinicID, id uuid.UUID) (*model.Batch, error) {
	var b model.Batch
	err := r.db.First(&b, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *batchRepo) FindByItem(clinicID, itemID uuid.UUID) ([]model.Batch, error) {
	var batches []model.Batch
	err := r.db.
		Where("clinic_id = ? AND stock_item_id = ?", clinicID, itemID).
		Order("expires_at ASC, received_at ASC").
		Find(&batches).Error
	return batches, err
}

func (r *batchRepo) LockByID(tx *gorm.DB, clinicID, id uuid.UUID) (*model.Batch, error) {
	var b model.Batch
	err := forUpdate(tx).First(&b, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *batchRepo) LockActiveByItem(tx *gorm.DB, itemID uuid.UUID) ([]model.Batch, error) {
	var batches []model.Batch
	err := forUpdate(tx).
		Where("stock_item_id = ? AND status = ?", itemID, model.BatchActive).
		Order("expires_at ASC, received_at ASC").
		Find(&batches).Error
	return batches, err
}

func (r *batchRepo) ActiveStoredTotal(tx *gorm.DB, itemID uuid.UUID) (int, error) {
	var total int
	err := tx.Model(&model.Batch{}).
		Where("stock_item_id = ? AND status = ?", itemID, model.BatchActive).
		Select("COALESCE(SUM(quantity_remaining), 0)").
		Scan(&total).Error
	return total, err
}

// DecrementRemaining draws qty from the lot with the remaining-quantity guard
// in the statement; false means the lot no longer covers the draw.
func (r *batchRepo) DecrementRemaining(tx *gorm.DB, id uuid.UUID, qty int, actor string) (bool, error) {
	res := tx.Model(&model.Batch{}).
		Where("id = ? AND status = ? AND quantity_remaining >= ?", id, model.BatchActive, qty).
		Updates(map[string]interface{}{
			"quantity_remaining": gorm.Expr("quantity_remaining - ?", qty),
			"updated_by":         actor,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *batchRepo) SetStatus(tx *gorm.DB, id uuid.UUID, status model.BatchStatus, reason, actor string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_by": actor,
	}
	if reason != "" {
		updates["dispose_reason"] = reason
	}
	return tx.Model(&model.Batch{}).Where("id = ?", id).Updates(updates).Error
}

func (r *batchRepo) DueForExpiry(now time.Time, limit int) ([]model.Batch, error) {
	var batches []model.Batch
	q := r.db.
		Where("status = ? AND expires_at <= ?", model.BatchActive, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&batches).Error
	return batches, err
}

func (r *batchRepo) ExpiringWithin(clinicID uuid.UUID, until time.Time) ([]model.Batch, error) {
	var batches []model.Batch
	err := r.db.
		Where("clinic_id = ? AND status = ? AND expires_at <= ? AND quantity_remaining > 0",
			clinicID, model.BatchActive, until).
		Order("expires_at ASC").
		Find(&batches).Error
	return batches, err
}
