package service

import (
	"time"

	"github.com/xtm888/medflow-clinic-sub003/internal/events"
	"github.com/xtm888/medflow-clinic-sub003/internal/metrics"
	"github.com/xtm888/medflow-clinic-sub003/internal/model"
	"github.com/xtm888/medflow-clinic-sub003/internal/repository"
	"github.com/xtm888/medflow-clinic-sub003/internal/ws"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type DoseInput struct {
	ClinicID     uuid.UUID `validate:"uuid_required"`
	ContainerID  uuid.UUID `validate:"uuid_required"`
	Actor        string    `validate:"required"`
	RecipientRef string    `validate:"required"`
	Note         string
}

type ContainerService interface {
	CreateContainer(c *model.Container, actor string) error
	GetContainer(clinicID, containerID uuid.UUID) (*model.Container, error)
	ListContainers(clinicID uuid.UUID) ([]model.Container, error)
	Open(clinicID, containerID uuid.UUID, actor string) (*model.Container, error)
	RecordDose(in DoseInput) (*model.UsageRecord, error)
	Dispose(clinicID, containerID uuid.UUID, reason, actor string) error
	Recall(clinicID, containerID uuid.UUID, actor string) error
	UsageHistory(clinicID, containerID uuid.UUID) ([]model.UsageRecord, error)
}

type containerService struct {
	db         *gorm.DB
	containers repository.ContainerRepository
	usage      repository.UsageRepository
	wsHub      *ws.Hub
	pub        *events.Publisher
	log        *zap.Logger
	now        func() time.Time
}

func NewContainerService(
	db *gorm.DB,
	containers repository.ContainerRepository,
	usage repository.UsageRepository,
	hub *ws.Hub,
	pub *events.Publisher,
	log *zap.Logger,
) ContainerService {
	return &containerService{
		db:         db,
		containers: containers,
		usage:      usage,
		wsHub:      hub,
		pub:        pub,
		log:        log,
		now:        time.Now,
	}
}

func (s *containerService) CreateContainer(c *model.Container, actor string) error {
	if err := validateInput(c); err != nil {
		return err
	}
	c.CreatedBy = actor
	c.UpdatedBy = actor
	if err := s.containers.Create(c); err != nil {
		return err
	}
	c.Status = c.StatusAt(s.now())
	return nil
}

func (s *containerService) GetContainer(clinicID, containerID uuid.UUID) (*model.Container, error) {
	c, err := s.containers.FindByID(clinicID, containerID)
	if err != nil {
		return nil, ErrNotFound
	}
	c.Status = c.StatusAt(s.now())
	return c, nil
}

func (s *containerService) ListContainers(clinicID uuid.UUID) ([]model.Container, error) {
	list, err := s.containers.FindByClinic(clinicID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range list {
		list[i].Status = list[i].StatusAt(now)
	}
	return list, nil
}

// Open starts the beyond-use clock. Opening is one-shot: a container with
// openedAt already set fails ErrAlreadyOpened whatever its other state.
func (s *containerService) Open(clinicID, containerID uuid.UUID, actor string) (*model.Container, error) {
	var container *model.Container
	err := s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.containers.LockByID(tx, clinicID, containerID)
		if err != nil {
			return ErrNotFound
		}
		if c.OpenedAt != nil {
			return ErrAlreadyOpened
		}
		now := s.now()
		if c.StatusAt(now) != model.ContainerUnopened {
			return ErrInvalidState
		}

		c.OpenedAt = &now
		c.UpdatedBy = actor
		if err := s.containers.Save(tx, c); err != nil {
			return err
		}
		container = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	container.Status = container.StatusAt(s.now())
	s.wsHub.BroadcastEvent(ws.Event{
		Type:   "container_update",
		Action: "container_opened",
		Data: map[string]interface{}{
			"container_id":  container.ID,
			"medication":    container.Medication,
			"beyond_use_at": container.BeyondUseAt(),
		},
	})
	return container, nil
}

// RecordDose draws one dose. Every gate is re-evaluated at call time from
// stored facts: quarantine and recall override everything, then shelf
// expiration, then the beyond-use window, then remaining doses.
func (s *containerService) RecordDose(in DoseInput) (*model.UsageRecord, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	var record *model.UsageRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.containers.LockByID(tx, in.ClinicID, in.ContainerID)
		if err != nil {
			return ErrNotFound
		}
		now := s.now()

		switch c.StatusAt(now) {
		case model.ContainerDisposed, model.ContainerRecalled, model.ContainerQuarantined:
			return ErrInvalidState
		case model.ContainerUnopened:
			return ErrInvalidState
		case model.ContainerExpired:
			if bud := c.BeyondUseAt(); bud != nil && now.After(*bud) {
				return ErrBeyondUseDate
			}
			return ErrInvalidState
		case model.ContainerDepleted:
			return ErrNoDosesRemaining
		}

		c.DosesUsed++
		c.UpdatedBy = in.Actor
		if err := s.containers.Save(tx, c); err != nil {
			return err
		}

		cid := c.ID
		record = &model.UsageRecord{
			ClinicID:       in.ClinicID,
			Kind:           model.UsageDose,
			ContainerID:    &cid,
			StockItemID:    c.StockItemID,
			Quantity:       1,
			RecipientRef:   in.RecipientRef,
			AdministeredBy: in.Actor,
			Note:           in.Note,
		}
		record.CreatedBy = in.Actor
		record.UpdatedBy = in.Actor
		return s.usage.Create(tx, record)
	})
	if err != nil {
		return nil, err
	}

	metrics.DosesRecordedTotal.Inc()
	return record, nil
}

// Dispose is terminal and irreversible. A second dispose reports
// ErrInvalidState rather than silently succeeding.
func (s *containerService) Dispose(clinicID, containerID uuid.UUID, reason, actor string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.containers.LockByID(tx, clinicID, containerID)
		if err != nil {
			return ErrNotFound
		}
		if c.Disposed {
			return ErrInvalidState
		}

		now := s.now()
		c.Disposed = true
		c.DisposeReason = reason
		c.DisposedAt = &now
		c.UpdatedBy = actor
		return s.containers.Save(tx, c)
	})
}

func (s *containerService) UsageHistory(clinicID, containerID uuid.UUID) ([]model.UsageRecord, error) {
	if _, err := s.containers.FindByID(clinicID, containerID); err != nil {
		return nil, ErrNotFound
	}
	return s.usage.ListByContainer(clinicID, containerID)
}

// Recall quarantines the container and sets the irreversible recalled flag.
// Recalling an already recalled container is a no-op.
func (s *containerService) Recall(clinicID, containerID uuid.UUID, actor string) error {
	var container *model.Container
	err := s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.containers.LockByID(tx, clinicID, containerID)
		if err != nil {
			return ErrNotFound
		}
		if c.Disposed {
			return ErrInvalidState
		}
		if c.Recalled {
			return nil
		}

		c.Recalled = true
		c.Quarantined = true
		c.UpdatedBy = actor
		if err := s.containers.Save(tx, c); err != nil {
			return err
		}
		container = c
		return nil
	})
	if err != nil {
		return err
	}

	if container != nil {
		s.pub.ContainerQuarantined(clinicID.String(), containerID.String(), "recall")
		s.wsHub.BroadcastEvent(ws.Event{
			Type:    "container_update",
			Action:  "container_recalled",
			Data:    map[string]interface{}{"container_id": containerID, "medication": container.Medication},
			Message: "container recalled and quarantined",
		})
	}
	return nil
}
