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

type ReserveInput struct {
	ClinicID uuid.UUID `validate:"uuid_required"`
	ItemID   uuid.UUID `validate:"uuid_required"`
	Quantity int       `validate:"required,gt=0"`
	OrderRef string    `validate:"required"`
	Actor    string    `validate:"required"`
}

type SaleContext struct {
	Actor        string `validate:"required"`
	RecipientRef string
	Note         string
}

type ReservationService interface {
	Reserve(in ReserveInput) (*model.Reservation, error)
	Release(clinicID, reservationID uuid.UUID, actor string) error
	Fulfill(clinicID, reservationID uuid.UUID, sale SaleContext) (*model.UsageRecord, error)
	GetReservation(clinicID, reservationID uuid.UUID) (*model.Reservation, error)
	ReservationsForOrder(clinicID uuid.UUID, orderRef string) ([]model.Reservation, error)
}

type reservationService struct {
	db       *gorm.DB
	items    repository.StockItemRepository
	batches  repository.BatchRepository
	holds    repository.ReservationRepository
	usage    repository.UsageRepository
	wsHub    *ws.Hub
	pub      *events.Publisher
	log      *zap.Logger
	now      func() time.Time
}

func NewReservationService(
	db *gorm.DB,
	items repository.StockItemRepository,
	batches repository.BatchRepository,
	holds repository.ReservationRepository,
	usage repository.UsageRepository,
	hub *ws.Hub,
	pub *events.Publisher,
	log *zap.Logger,
) ReservationService {
	return &reservationService{
		db:      db,
		items:   items,
		batches: batches,
		holds:   holds,
		usage:   usage,
		wsHub:   hub,
		pub:     pub,
		log:     log,
		now:     time.Now,
	}
}

// Reserve places an all-or-nothing hold. The availability check and the
// reserved increment run inside one transaction against the locked item row;
// the guarded UPDATE re-checks the invariant at write time, so two racing
// reserves can never both succeed on the same last units. First committer
// wins, later callers fail fast with ErrInsufficientStock.
func (s *reservationService) Reserve(in ReserveInput) (*model.Reservation, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}

	var (
		hold *model.Reservation
		item *model.StockItem
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		item, err = s.items.LockByID(tx, in.ClinicID, in.ItemID)
		if err != nil {
			return ErrNotFound
		}
		if item.Available() < in.Quantity {
			return ErrInsufficientStock
		}

		ok, err := s.items.AdjustCounts(tx, item.ID, 0, in.Quantity, in.Actor)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientStock
		}
		item.Reserved += in.Quantity

		hold = &model.Reservation{
			ClinicID:    in.ClinicID,
			StockItemID: item.ID,
			OrderRef:    in.OrderRef,
			Quantity:    in.Quantity,
			ReservedBy:  in.Actor,
			Status:      model.ReservationHeld,
		}
		hold.CreatedBy = in.Actor
		hold.UpdatedBy = in.Actor
		return s.holds.Create(tx, hold)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			metrics.StockRefusalsTotal.Inc()
		}
		return nil, err
	}

	metrics.ReservationsTotal.WithLabelValues("created").Inc()
	s.pub.ReservationCreated(in.ClinicID.String(), item.ID.String(), hold.ID.String(), in.OrderRef, in.Quantity)
	s.wsHub.BroadcastEvent(ws.Event{
		Type:   "stock_update",
		Action: "reservation_created",
		Data: map[string]interface{}{
			"stock_item_id":  item.ID,
			"sku":            item.SKU,
			"reservation_id": hold.ID,
			"quantity":       in.Quantity,
			"available":      item.Available(),
		},
	})
	return hold, nil
}

// Release returns a held quantity to availability. A reservation that already
// terminated reports ErrInvalidState; there is no silent no-op decrement.
func (s *reservationService) Release(clinicID, reservationID uuid.UUID, actor string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		hold, err := s.holds.LockByID(tx, clinicID, reservationID)
		if err != nil {
			return ErrNotFound
		}
		if hold.Status != model.ReservationHeld {
			return ErrInvalidState
		}

		ok, err := s.holds.Transition(tx, hold.ID, model.ReservationHeld, model.ReservationReleased, actor)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidState
		}

		ok, err = s.items.AdjustCounts(tx, hold.StockItemID, 0, -hold.Quantity, actor)
		if err != nil {
			return err
		}
		if !ok {
			// Reserved would underflow: the ledger no longer matches the hold.
			metrics.IntegrityFaultsTotal.Inc()
			s.log.Error("release would underflow reserved count",
				zap.String("reservation_id", hold.ID.String()),
				zap.Int("quantity", hold.Quantity),
			)
			return ErrIntegrity
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.ReservationsTotal.WithLabelValues("released").Inc()
	return nil
}

// Fulfill turns a hold into consumption: reserved and totalStock drop
// together, lots are drawn down FEFO inside the same transaction, and the
// sale lands in the append-only usage trail.
func (s *reservationService) Fulfill(clinicID, reservationID uuid.UUID, sale SaleContext) (*model.UsageRecord, error) {
	if err := validateInput(&sale); err != nil {
		return nil, err
	}

	var (
		record *model.UsageRecord
		item   *model.StockItem
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		hold, err := s.holds.LockByID(tx, clinicID, reservationID)
		if err != nil {
			return ErrNotFound
		}
		if hold.Status != model.ReservationHeld {
			return ErrInvalidState
		}

		item, err = s.items.LockByID(tx, clinicID, hold.StockItemID)
		if err != nil {
			return ErrNotFound
		}
		if err := checkLedgerIntegrity(tx, s.batches, item, s.log); err != nil {
			return err
		}

		ok, err := s.holds.Transition(tx, hold.ID, model.ReservationHeld, model.ReservationFulfilled, sale.Actor)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidState
		}

		ok, err = s.items.AdjustCounts(tx, item.ID, -hold.Quantity, -hold.Quantity, sale.Actor)
		if err != nil {
			return err
		}
		if !ok {
			metrics.IntegrityFaultsTotal.Inc()
			s.log.Error("fulfill would underflow ledger counts",
				zap.String("reservation_id", hold.ID.String()),
				zap.Int("quantity", hold.Quantity),
			)
			return ErrIntegrity
		}
		item.TotalStock -= hold.Quantity
		item.Reserved -= hold.Quantity

		// Lots that expired since the hold was taken make this fail
		// deterministically instead of consuming stale stock.
		if _, err := fefoAllocate(tx, s.batches, item.ID, hold.Quantity, s.now(), sale.Actor); err != nil {
			return err
		}

		rid := hold.ID
		record = &model.UsageRecord{
			ClinicID:       clinicID,
			Kind:           model.UsageSale,
			StockItemID:    &item.ID,
			ReservationID:  &rid,
			Quantity:       hold.Quantity,
			RecipientRef:   sale.RecipientRef,
			AdministeredBy: sale.Actor,
			Note:           sale.Note,
		}
		record.CreatedBy = sale.Actor
		record.UpdatedBy = sale.Actor
		return s.usage.Create(tx, record)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			metrics.StockRefusalsTotal.Inc()
		}
		return nil, err
	}

	metrics.ReservationsTotal.WithLabelValues("fulfilled").Inc()
	s.pub.StockChanged(clinicID.String(), item.ID.String(), item.TotalStock, item.Reserved)
	s.wsHub.BroadcastEvent(ws.Event{
		Type:   "stock_update",
		Action: "reservation_fulfilled",
		Data: map[string]interface{}{
			"stock_item_id":  item.ID,
			"sku":            item.SKU,
			"reservation_id": reservationID,
			"total_stock":    item.TotalStock,
			"available":      item.Available(),
		},
	})
	return record, nil
}

func (s *reservationService) GetReservation(clinicID, reservationID uuid.UUID) (*model.Reservation, error) {
	hold, err := s.holds.FindByID(clinicID, reservationID)
	if err != nil {
		return nil, ErrNotFound
	}
	return hold, nil
}

// ReservationsForOrder lists every hold taken under one opaque order
// reference; an order may span several items.
func (s *reservationService) ReservationsForOrder(clinicID uuid.UUID, orderRef string) ([]model.Reservation, error) {
	return s.holds.FindByOrderRef(clinicID, orderRef)
}
