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

type TemperatureInput struct {
	ClinicID    uuid.UUID `validate:"uuid_required"`
	ContainerID uuid.UUID `validate:"uuid_required"`
	ValueC      float64
	Location    string
	Actor       string `validate:"required"`
}

// TemperatureResult reports what one reading did to the container. Disposal
// on excursion-budget overflow is a recommendation only; the engine never
// disposes on its own.
type TemperatureResult struct {
	Observation         *model.TemperatureObservation `json:"observation"`
	Quarantined         bool                          `json:"quarantined"`
	ExcursionMinutes    int                           `json:"excursion_minutes"`
	DisposalRecommended bool                          `json:"disposal_recommended"`
}

type ColdChainService interface {
	RecordTemperature(in TemperatureInput) (*TemperatureResult, error)
	Observations(clinicID, containerID uuid.UUID) ([]model.TemperatureObservation, error)
}

type coldChainService struct {
	db           *gorm.DB
	containers   repository.ContainerRepository
	observations repository.ObservationRepository
	wsHub        *ws.Hub
	pub          *events.Publisher
	log          *zap.Logger
	now          func() time.Time
}

func NewColdChainService(
	db *gorm.DB,
	containers repository.ContainerRepository,
	observations repository.ObservationRepository,
	hub *ws.Hub,
	pub *events.Publisher,
	log *zap.Logger,
) ColdChainService {
	return &coldChainService{
		db:           db,
		containers:   containers,
		observations: observations,
		wsHub:        hub,
		pub:          pub,
		log:          log,
		now:          time.Now,
	}
}

// RecordTemperature classifies the reading against the container's band.
// One out-of-range value quarantines immediately, whatever else is true of
// the container, and opens or extends an excursion window. An in-range
// reading closes any open window and banks its minutes.
func (s *coldChainService) RecordTemperature(in TemperatureInput) (*TemperatureResult, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	var (
		result    *TemperatureResult
		container *model.Container
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.containers.LockByID(tx, in.ClinicID, in.ContainerID)
		if err != nil {
			return ErrNotFound
		}
		container = c
		now := s.now()
		inRange := c.InBand(in.ValueC)

		obs := &model.TemperatureObservation{
			ClinicID:    in.ClinicID,
			ContainerID: c.ID,
			ValueC:      in.ValueC,
			Location:    in.Location,
			InRange:     inRange,
			RecordedAt:  now,
			RecordedBy:  in.Actor,
		}
		obs.CreatedBy = in.Actor
		obs.UpdatedBy = in.Actor
		if err := s.observations.Create(tx, obs); err != nil {
			return err
		}

		open, err := s.observations.OpenExcursion(tx, c.ID)
		if err != nil {
			return err
		}

		cumulative := time.Duration(c.ExcursionMinutes) * time.Minute
		dirty := false

		if inRange {
			if open != nil {
				// Close the window and bank its span.
				open.EndedAt = &now
				open.LastSeenAt = now
				open.UpdatedBy = in.Actor
				if err := s.observations.SaveExcursion(tx, open); err != nil {
					return err
				}
				c.ExcursionMinutes += int(open.Duration(now).Minutes())
				cumulative = time.Duration(c.ExcursionMinutes) * time.Minute
				dirty = true
			}
		} else {
			if !c.Quarantined {
				c.Quarantined = true
				dirty = true
				metrics.QuarantinesTotal.Inc()
			}
			if open == nil {
				open = &model.TemperatureExcursion{
					ClinicID:    in.ClinicID,
					ContainerID: c.ID,
					StartedAt:   now,
					LastSeenAt:  now,
				}
				open.CreatedBy = in.Actor
				open.UpdatedBy = in.Actor
				if err := s.observations.CreateExcursion(tx, open); err != nil {
					return err
				}
			} else {
				open.LastSeenAt = now
				open.UpdatedBy = in.Actor
				if err := s.observations.SaveExcursion(tx, open); err != nil {
					return err
				}
			}
			cumulative += open.Duration(now)
		}

		if dirty {
			c.UpdatedBy = in.Actor
			if err := s.containers.Save(tx, c); err != nil {
				return err
			}
		}

		result = &TemperatureResult{
			Observation:      obs,
			Quarantined:      c.Quarantined,
			ExcursionMinutes: int(cumulative.Minutes()),
		}
		if c.MaxExcursionMinutes > 0 && result.ExcursionMinutes > c.MaxExcursionMinutes {
			result.DisposalRecommended = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Observation.InRange {
		s.pub.ContainerQuarantined(in.ClinicID.String(), in.ContainerID.String(), "temperature excursion")
		s.wsHub.BroadcastEvent(ws.Event{
			Type:   "cold_chain",
			Action: "container_quarantined",
			Data: map[string]interface{}{
				"container_id": in.ContainerID,
				"medication":   container.Medication,
				"value_c":      in.ValueC,
				"location":     in.Location,
			},
			Message: "out-of-range temperature reading",
		})
	}
	if result.DisposalRecommended {
		s.log.Warn("excursion budget exceeded, disposal recommended",
			zap.String("container_id", in.ContainerID.String()),
			zap.Int("excursion_minutes", result.ExcursionMinutes),
			zap.Int("max_minutes", container.MaxExcursionMinutes),
		)
		s.pub.DisposalRecommended(in.ClinicID.String(), in.ContainerID.String(),
			result.ExcursionMinutes, container.MaxExcursionMinutes)
		s.wsHub.BroadcastEvent(ws.Event{
			Type:   "cold_chain",
			Action: "disposal_recommended",
			Data: map[string]interface{}{
				"container_id":      in.ContainerID,
				"excursion_minutes": result.ExcursionMinutes,
			},
			Message: "cumulative excursion time exceeds allowance; confirm disposal",
		})
	}
	return result, nil
}

func (s *coldChainService) Observations(clinicID, containerID uuid.UUID) ([]model.TemperatureObservation, error) {
	return s.observations.ListByContainer(clinicID, containerID)
}
