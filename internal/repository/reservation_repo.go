package repository

import (
	"time"

	"github.com/xtm888/medflow-clinic-sub003/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReservationRepository interface {
	Create(tx *gorm.DB, r *model.Reservation) error
	FindByID(clinicID, id uuid.UUID) (*model.Reservation, error)
	FindByOrderRef(clinicID uuid.UUID, orderRef string) ([]model.Reservation, error)
	LockByID(tx *gorm.DB, clinicID, id uuid.UUID) (*model.Reservation, error)
	// Transition flips status only when the stored status still matches from;
	// false means another terminal call won the race.
	Transition(tx *gorm.DB, id uuid.UUID, from, to model.ReservationStatus, actor string) (bool, error)
	StaleHeld(before time.Time, limit int) ([]model.Reservation, error)
}

type reservationRepo struct {
	db *gorm.DB
}

func NewReservationRepo(db *gorm.DB) ReservationRepository {
	return &reservationRepo{db}
}

func (r *reservationRepo) Create(tx *gorm.DB, res *model.Reservation) error {
	return tx.Create(res).Error
}

func (r *reservationRepo) FindByID(clinicID, id uuid.UUID) (*model.Reservation, error) {
	var res model.Reservation
	err := r.db.First(&res, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepo) FindByOrderRef(clinicID uuid.UUID, orderRef string) ([]model.Reservation, error) {
	var out []model.Reservation
	err := r.db.
		Where("clinic_id = ? AND order_ref = ?", clinicID, orderRef).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *reservationRepo) LockByID(tx *gorm.DB, clinicID, id uuid.UUID) (*model.Reservation, error) {
	var res model.Reservation
	err := forUpdate(tx).First(&res, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *reservationRepo) Transition(tx *gorm.DB, id uuid.UUID, from, to model.ReservationStatus, actor string) (bool, error) {
	res := tx.Model(&model.Reservation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_by": actor,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *reservationRepo) StaleHeld(before time.Time, limit int) ([]model.Reservation, error) {
	var out []model.Reservation
	q := r.db.
		Where("status = ? AND created_at < ?", model.ReservationHeld, before).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
