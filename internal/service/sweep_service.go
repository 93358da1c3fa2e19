package service

import (
	"time"

	"github.com/xtm888/medflow-clinic-sub003/internal/metrics"
	"github.com/xtm888/medflow-clinic-sub003/internal/model"
	"github.com/xtm888/medflow-clinic-sub003/internal/repository"
	"github.com/xtm888/medflow-clinic-sub003/internal/ws"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sweepBatchLimit = 500

// SweepResult counts what one pass reclassified.
type SweepResult struct {
	BatchesExpired       int `json:"batches_expired"`
	ContainersExpired    int `json:"containers_expired"`
	ReservationsReleased int `json:"reservations_released"`
}

// SweepService is the background pass that aligns stored classifications
// with the clock. It only reclassifies; it never consumes quantities. Each
// entity is handled in its own short transaction, so a sweep racing a live
// reserve/dose simply makes the later committer fail its guard.
type SweepService struct {
	db         *gorm.DB
	items      repository.StockItemRepository
	batches    repository.BatchRepository
	holds      repository.ReservationRepository
	containers repository.ContainerRepository
	wsHub      *ws.Hub
	log        *zap.Logger

	Interval time.Duration
	// ReservationTTL > 0 enables auto-release of abandoned holds.
	ReservationTTL time.Duration

	now func() time.Time
}

func NewSweepService(
	db *gorm.DB,
	items repository.StockItemRepository,
	batches repository.BatchRepository,
	holds repository.ReservationRepository,
	containers repository.ContainerRepository,
	hub *ws.Hub,
	log *zap.Logger,
	interval, reservationTTL time.Duration,
) *SweepService {
	return &SweepService{
		db:             db,
		items:          items,
		batches:        batches,
		holds:          holds,
		containers:     containers,
		wsHub:          hub,
		log:            log,
		Interval:       interval,
		ReservationTTL: reservationTTL,
		now:            time.Now,
	}
}

// Run loops until quit closes. Independent of request traffic.
func (s *SweepService) Run(quit <-chan struct{}) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			res := s.SweepOnce()
			if res.BatchesExpired+res.ContainersExpired+res.ReservationsReleased > 0 {
				s.log.Info("expiration sweep pass",
					zap.Int("batches_expired", res.BatchesExpired),
					zap.Int("containers_expired", res.ContainersExpired),
					zap.Int("reservations_released", res.ReservationsReleased),
				)
			}
		}
	}
}

func (s *SweepService) SweepOnce() SweepResult {
	var res SweepResult
	res.BatchesExpired = s.sweepBatches()
	res.ContainersExpired = s.sweepContainers()
	if s.ReservationTTL > 0 {
		res.ReservationsReleased = s.sweepStaleHolds()
	}
	return res
}

func (s *SweepService) sweepBatches() int {
	now := s.now()
	due, err := s.batches.DueForExpiry(now, sweepBatchLimit)
	if err != nil {
		s.log.Error("sweep: listing due batches failed", zap.Error(err))
		return 0
	}

	flipped := 0
	for _, b := range due {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			batch, err := s.batches.LockByID(tx, b.ClinicID, b.ID)
			if err != nil {
				return err
			}
			// Re-check under the lock; a manual markExpired may have won.
			if batch.Status != model.BatchActive || !s.now().After(batch.ExpiresAt) {
				return nil
			}

			ok, err := s.items.AdjustCounts(tx, batch.StockItemID, -batch.QuantityRemaining, 0, "sweep")
			if err != nil {
				return err
			}
			if !ok {
				// Holds exist against the decayed stock. Leave the stored row
				// alone (readers already derive EXPIRED) and surface loudly.
				metrics.IntegrityFaultsTotal.Inc()
				return ErrIntegrity
			}
			if err := s.batches.SetStatus(tx, batch.ID, model.BatchExpired, "", "sweep"); err != nil {
				return err
			}
			flipped++
			return nil
		})
		if err != nil {
			s.log.Error("sweep: batch expiry failed",
				zap.String("batch_id", b.ID.String()),
				zap.String("lot_number", b.LotNumber),
				zap.Error(err),
			)
		}
	}
	if flipped > 0 {
		metrics.SweepReclassifiedTotal.WithLabelValues("batch").Add(float64(flipped))
	}
	return flipped
}

// sweepContainers notes freshly lapsed containers exactly once. Container
// status itself is derived on read, so this pass exists for visibility, not
// correctness.
func (s *SweepService) sweepContainers() int {
	now := s.now()
	lapsed, err := s.containers.NewlyExpired(now, sweepBatchLimit)
	if err != nil {
		s.log.Error("sweep: listing lapsed containers failed", zap.Error(err))
		return 0
	}

	noted := 0
	for _, c := range lapsed {
		container := c
		err := s.db.Transaction(func(tx *gorm.DB) error {
			locked, err := s.containers.LockByID(tx, container.ClinicID, container.ID)
			if err != nil {
				return err
			}
			if locked.ExpiryNotedAt != nil || locked.StatusAt(s.now()) != model.ContainerExpired {
				return nil
			}
			ts := s.now()
			locked.ExpiryNotedAt = &ts
			locked.UpdatedBy = "sweep"
			if err := s.containers.Save(tx, locked); err != nil {
				return err
			}
			noted++
			return nil
		})
		if err != nil {
			s.log.Error("sweep: noting container expiry failed",
				zap.String("container_id", container.ID.String()),
				zap.Error(err),
			)
			continue
		}
		s.wsHub.BroadcastEvent(ws.Event{
			Type:    "container_update",
			Action:  "container_expired",
			Data:    map[string]interface{}{"container_id": container.ID, "medication": container.Medication},
			Message: "container past expiration or beyond-use date",
		})
	}
	if noted > 0 {
		metrics.SweepReclassifiedTotal.WithLabelValues("container").Add(float64(noted))
	}
	return noted
}

// sweepStaleHolds auto-releases reservations abandoned past the TTL so
// forgotten orders stop pinning capacity.
func (s *SweepService) sweepStaleHolds() int {
	cutoff := s.now().Add(-s.ReservationTTL)
	stale, err := s.holds.StaleHeld(cutoff, sweepBatchLimit)
	if err != nil {
		s.log.Error("sweep: listing stale holds failed", zap.Error(err))
		return 0
	}

	released := 0
	for _, h := range stale {
		hold := h
		err := s.db.Transaction(func(tx *gorm.DB) error {
			ok, err := s.holds.Transition(tx, hold.ID, model.ReservationHeld, model.ReservationReleased, "sweep")
			if err != nil {
				return err
			}
			if !ok {
				// Terminated by its owner in the meantime.
				return nil
			}
			ok, err = s.items.AdjustCounts(tx, hold.StockItemID, 0, -hold.Quantity, "sweep")
			if err != nil {
				return err
			}
			if !ok {
				metrics.IntegrityFaultsTotal.Inc()
				return ErrIntegrity
			}
			released++
			return nil
		})
		if err != nil {
			s.log.Error("sweep: auto-release failed",
				zap.String("reservation_id", hold.ID.String()),
				zap.Error(err),
			)
		}
	}
	if released > 0 {
		metrics.SweepReclassifiedTotal.WithLabelValues("reservation").Add(float64(released))
		metrics.ReservationsTotal.WithLabelValues("released").Add(float64(released))
	}
	return released
}
