package service

import (
	"errors"
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

type ReceiveBatchInput struct {
	ClinicID   uuid.UUID `validate:"uuid_required"`
	ItemID     uuid.UUID `validate:"uuid_required"`
	LotNumber  string    `validate:"required"`
	Quantity   int       `validate:"required,gt=0"`
	ExpiresAt  time.Time `validate:"required"`
	ReceivedAt time.Time
	Actor      string `validate:"required"`
}

type ConsumeInput struct {
	ClinicID     uuid.UUID `validate:"uuid_required"`
	ItemID       uuid.UUID `validate:"uuid_required"`
	Quantity     int       `validate:"required,gt=0"`
	Actor        string    `validate:"required"`
	RecipientRef string
	Note         string
}

type BatchService interface {
	ReceiveBatch(in ReceiveBatchInput) (*model.Batch, error)
	ConsumeFEFO(in ConsumeInput) ([]BatchAllocation, error)
	MarkExpired(clinicID, batchID uuid.UUID, actor string) error
	DisposeBatch(clinicID, batchID uuid.UUID, reason, actor string) error
	RecallBatch(clinicID, batchID uuid.UUID, reason, actor string) error
	ListBatches(clinicID, itemID uuid.UUID) ([]model.Batch, error)
	ExpiringSoon(clinicID uuid.UUID, within time.Duration) ([]model.Batch, error)
}

type batchService struct {
	db      *gorm.DB
	items   repository.StockItemRepository
	batches repository.BatchRepository
	usage   repository.UsageRepository
	wsHub   *ws.Hub
	pub     *events.Publisher
	log     *zap.Logger
	now     func() time.Time
}

func NewBatchService(
	db *gorm.DB,
	items repository.StockItemRepository,
	batches repository.BatchRepository,
	usage repository.UsageRepository,
	hub *ws.Hub,
	pub *events.Publisher,
	log *zap.Logger,
) BatchService {
	return &batchService{
		db:      db,
		items:   items,
		batches: batches,
		usage:   usage,
		wsHub:   hub,
		pub:     pub,
		log:     log,
		now:     time.Now,
	}
}

// ReceiveBatch books a new lot in and raises the ledger by the same quantity
// in one transaction, keeping the two totals in lockstep.
func (s *batchService) ReceiveBatch(in ReceiveBatchInput) (*model.Batch, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = s.now()
	}

	var (
		batch *model.Batch
		item  *model.StockItem
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		item, err = s.items.LockByID(tx, in.ClinicID, in.ItemID)
		if err != nil {
			return ErrNotFound
		}
		if err := checkLedgerIntegrity(tx, s.batches, item, s.log); err != nil {
			return err
		}

		batch = &model.Batch{
			ClinicID:          in.ClinicID,
			StockItemID:       item.ID,
			LotNumber:         in.LotNumber,
			QuantityReceived:  in.Quantity,
			QuantityRemaining: in.Quantity,
			ReceivedAt:        in.ReceivedAt,
			ExpiresAt:         in.ExpiresAt,
			Status:            model.BatchActive,
		}
		batch.CreatedBy = in.Actor
		batch.UpdatedBy = in.Actor
		if err := s.batches.Create(tx, batch); err != nil {
			return err
		}

		ok, err := s.items.AdjustCounts(tx, item.ID, in.Quantity, 0, in.Actor)
		if err != nil {
			return err
		}
		if !ok {
			return ErrIntegrity
		}
		item.TotalStock += in.Quantity
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.pub.StockChanged(in.ClinicID.String(), item.ID.String(), item.TotalStock, item.Reserved)
	s.wsHub.BroadcastEvent(ws.Event{
		Type:   "stock_update",
		Action: "batch_received",
		Data: map[string]interface{}{
			"stock_item_id": item.ID,
			"sku":           item.SKU,
			"batch_id":      batch.ID,
			"lot_number":    batch.LotNumber,
			"quantity":      in.Quantity,
			"expires_at":    batch.ExpiresAt,
		},
	})
	return batch, nil
}

// ConsumeFEFO draws unreserved stock directly (lab reagents, walk-in sales),
// earliest expiration first. The active-lot total decides sufficiency; a
// disagreeing ledger is an integrity fault, never silently reconciled.
func (s *batchService) ConsumeFEFO(in ConsumeInput) ([]BatchAllocation, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	var (
		allocations []BatchAllocation
		item        *model.StockItem
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		item, err = s.items.LockByID(tx, in.ClinicID, in.ItemID)
		if err != nil {
			return ErrNotFound
		}
		if err := checkLedgerIntegrity(tx, s.batches, item, s.log); err != nil {
			return err
		}

		allocations, err = fefoAllocate(tx, s.batches, item.ID, in.Quantity, s.now(), in.Actor)
		if err != nil {
			return err
		}

		// Direct consumption must not eat into held reservations.
		ok, err := s.items.AdjustCounts(tx, item.ID, -in.Quantity, 0, in.Actor)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientStock
		}
		item.TotalStock -= in.Quantity

		record := &model.UsageRecord{
			ClinicID:       in.ClinicID,
			Kind:           model.UsageLab,
			StockItemID:    &item.ID,
			Quantity:       in.Quantity,
			RecipientRef:   in.RecipientRef,
			AdministeredBy: in.Actor,
			Note:           in.Note,
		}
		record.CreatedBy = in.Actor
		record.UpdatedBy = in.Actor
		return s.usage.Create(tx, record)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			metrics.StockRefusalsTotal.Inc()
		}
		return nil, err
	}

	s.pub.StockChanged(in.ClinicID.String(), item.ID.String(), item.TotalStock, item.Reserved)
	s.wsHub.BroadcastEvent(ws.Event{
		Type:   "stock_update",
		Action: "stock_consumed",
		Data: map[string]interface{}{
			"stock_item_id": item.ID,
			"sku":           item.SKU,
			"quantity":      in.Quantity,
			"total_stock":   item.TotalStock,
		},
	})
	return allocations, nil
}

// MarkExpired persists the expired classification for a lot and removes its
// remaining quantity from the ledger. Idempotent: a repeat call is a no-op,
// tolerating races between manual action and the background sweep.
func (s *batchService) MarkExpired(clinicID, batchID uuid.UUID, actor string) error {
	return s.terminalTransition(clinicID, batchID, model.BatchExpired, "", actor)
}

// DisposeBatch removes a lot permanently. Idempotent on repeat disposal.
func (s *batchService) DisposeBatch(clinicID, batchID uuid.UUID, reason, actor string) error {
	return s.terminalTransition(clinicID, batchID, model.BatchDisposed, reason, actor)
}

// RecallBatch pulls a lot from circulation pending investigation.
func (s *batchService) RecallBatch(clinicID, batchID uuid.UUID, reason, actor string) error {
	return s.terminalTransition(clinicID, batchID, model.BatchRecalled, reason, actor)
}

func (s *batchService) terminalTransition(clinicID, batchID uuid.UUID, to model.BatchStatus, reason, actor string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		batch, err := s.batches.LockByID(tx, clinicID, batchID)
		if err != nil {
			return ErrNotFound
		}
		if batch.Status == to {
			// Second terminal call of the same kind is a tolerated no-op.
			return nil
		}

		ledgerDelta := 0
		if batch.Status == model.BatchActive {
			// Leaving active removes the lot's remaining units from the ledger.
			ledgerDelta = -batch.QuantityRemaining
		} else if to != model.BatchDisposed {
			// Expired/recalled lots may still be disposed; anything else is forbidden.
			return ErrInvalidState
		}

		if ledgerDelta != 0 {
			ok, err := s.items.AdjustCounts(tx, batch.StockItemID, ledgerDelta, 0, actor)
			if err != nil {
				return err
			}
			if !ok {
				// Holds exist against stock that just decayed. Refuse rather
				// than break available >= 0 or mask the mismatch.
				metrics.IntegrityFaultsTotal.Inc()
				s.log.Error("batch transition would break ledger invariant",
					zap.String("batch_id", batch.ID.String()),
					zap.String("to", string(to)),
					zap.Int("remaining", batch.QuantityRemaining),
				)
				return ErrIntegrity
			}
		}
		return s.batches.SetStatus(tx, batch.ID, to, reason, actor)
	})
}

func (s *batchService) ListBatches(clinicID, itemID uuid.UUID) ([]model.Batch, error) {
	return s.batches.FindByItem(clinicID, itemID)
}

// ExpiringSoon lists lots with remaining stock that lapse within the window,
// for dashboards and reorder planning.
func (s *batchService) ExpiringSoon(clinicID uuid.UUID, within time.Duration) ([]model.Batch, error) {
	return s.batches.ExpiringWithin(clinicID, s.now().Add(within))
}
