package repository

import (
	"github.com/xtm888/medflow-clinic-sub003/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StockItemRepository interface {
	Create(item *model.StockItem) error
	FindAll(clinicID uuid.UUID) ([]model.StockItem, error)
	FindByID(clinicID, id uuid.UUID) (*model.StockItem, error)
	FindBySKU(clinicID uuid.UUID, sku string) (*model.StockItem, error)
	LockByID(tx *gorm.DB, clinicID, id uuid.UUID) (*model.StockItem, error)
	AdjustCounts(tx *gorm.DB, id uuid.UUID, totalDelta, reservedDelta int, actor string) (bool, error)
}

type stockItemRepo struct {
	db *gorm.DB
}

func NewStockItemRepo(db *gorm.DB) StockItemRepository {
	return &stockItemRepo{db}
}

func (r *stockItemRepo) Create(item *model.StockItem) error {
	return r.db.Create(item).Error
}

func (r *stockItemRepo) FindAll(clinicID uuid.UUID) ([]model.StockItem, error) {
	var items []model.StockItem
	err := r.db.Where("clinic_id = ?", clinicID).Order("sku ASC").Find(&items).Error
	return items, err
}

func (r *stockItemRepo) FindByID(clinicID, id uuid.UUID) (*model.StockItem, error) {
	var item model.StockItem
	err := r.db.First(&item, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *stockItemRepo) FindBySKU(clinicID uuid.UUID, sku string) (*model.StockItem, error) {
	var item model.StockItem
	err := r.db.First(&item, "clinic_id = ? AND sku = ?", clinicID, sku).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *stockItemRepo) LockByID(tx *gorm.DB, clinicID, id uuid.UUID) (*model.StockItem, error) {
	var item model.StockItem
	err := forUpdate(tx).First(&item, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// AdjustCounts applies ledger deltas with the invariant guard compiled into
// the UPDATE itself: the row only changes when the resulting counts keep
// available >= 0 and reserved >= 0. Returns false when the guard rejected the
// write, so two racing callers can never both pass a stale read check.
func (r *stockItemRepo) AdjustCounts(tx *gorm.DB, id uuid.UUID, totalDelta, reservedDelta int, actor string) (bool, error) {
	res := tx.Model(&model.StockItem{}).
		Where("id = ?", id).
		Where("total_stock + ? - (reserved + ?) >= 0", totalDelta, reservedDelta).
		Where("reserved + ? >= 0", reservedDelta).
		Where("total_stock + ? >= 0", totalDelta).
		Updates(map[string]interface{}{
			"total_stock": gorm.Expr("total_stock + ?", totalDelta),
			"reserved":    gorm.Expr("reserved + ?", reservedDelta),
			"updated_by":  actor,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
