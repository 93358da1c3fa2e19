package repository

import (
	"time"

	"github.com/xtm888/medflow-clinic-sub003/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ContainerRepository interface {
	Create(c *model.Container) error
	FindByID(clinicID, id uuid.UUID) (*model.Container, error)
	FindByClinic(clinicID uuid.UUID) ([]model.Container, error)
	LockByID(tx *gorm.DB, clinicID, id uuid.UUID) (*model.Container, error)
	Save(tx *gorm.DB, c *model.Container) error
	// NewlyExpired lists live containers whose shelf life or beyond-use
	// window lapsed and which the sweep has not yet noted.
	NewlyExpired(now time.Time, limit int) ([]model.Container, error)
}

type containerRepo struct {
	db *gorm.DB
}

func NewContainerRepo(db *gorm.DB) ContainerRepository {
	return &containerRepo{db}
}

func (r *containerRepo) Create(c *model.Container) error {
	return r.db.Create(c).Error
}

func (r *containerRepo) FindByID(clinicID, id uuid.UUID) (*model.Container, error) {
	var c model.Container
	err := r.db.First(&c, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *containerRepo) FindByClinic(clinicID uuid.UUID) ([]model.Container, error) {
	var out []model.Container
	err := r.db.Where("clinic_id = ?", clinicID).Order("expires_at ASC").Find(&out).Error
	return out, err
}

func (r *containerRepo) LockByID(tx *gorm.DB, clinicID, id uuid.UUID) (*model.Container, error) {
	var c model.Container
	err := forUpdate(tx).First(&c, "id = ? AND clinic_id = ?", id, clinicID).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *containerRepo) Save(tx *gorm.DB, c *model.Container) error {
	return tx.Save(c).Error
}

func (r *containerRepo) NewlyExpired(now time.Time, limit int) ([]model.Container, error) {
	// Beyond-use arithmetic is dialect-specific SQL, so candidates are
	// narrowed in the query and the derived status decides in Go.
	var candidates []model.Container
	err := r.db.
		Where("disposed = ? AND expiry_noted_at IS NULL", false).
		Where(r.db.Where("expires_at <= ?", now).Or("opened_at IS NOT NULL")).
		Find(&candidates).Error
	if err != nil {
		return nil, err
	}

	var out []model.Container
	for _, c := range candidates {
		if c.StatusAt(now) != model.ContainerExpired {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type ObservationRepository interface {
	Create(tx *gorm.DB, o *model.TemperatureObservation) error
	ListByContainer(clinicID, containerID uuid.UUID) ([]model.TemperatureObservation, error)
	OpenExcursion(tx *gorm.DB, containerID uuid.UUID) (*model.TemperatureExcursion, error)
	CreateExcursion(tx *gorm.DB, e *model.TemperatureExcursion) error
	SaveExcursion(tx *gorm.DB, e *model.TemperatureExcursion) error
}

type observationRepo struct {
	db *gorm.DB
}

func NewObservationRepo(db *gorm.DB) ObservationRepository {
	return &observationRepo{db}
}

func (r *observationRepo) Create(tx *gorm.DB, o *model.TemperatureObservation) error {
	return tx.Create(o).Error
}

func (r *observationRepo) ListByContainer(clinicID, containerID uuid.UUID) ([]model.TemperatureObservation, error) {
	var out []model.TemperatureObservation
	err := r.db.
		Where("clinic_id = ? AND container_id = ?", clinicID, containerID).
		Order("recorded_at DESC").
		Find(&out).Error
	return out, err
}

func (r *observationRepo) OpenExcursion(tx *gorm.DB, containerID uuid.UUID) (*model.TemperatureExcursion, error) {
	var e model.TemperatureExcursion
	err := forUpdate(tx).
		Where("container_id = ? AND ended_at IS NULL", containerID).
		First(&e).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *observationRepo) CreateExcursion(tx *gorm.DB, e *model.TemperatureExcursion) error {
	return tx.Create(e).Error
}

func (r *observationRepo) SaveExcursion(tx *gorm.DB, e *model.TemperatureExcursion) error {
	return tx.Save(e).Error
}
