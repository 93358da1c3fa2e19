package service

import (
	"time"

	"github.com/xtm888/medflow-clinic-sub003/internal/model"
	"github.com/xtm888/medflow-clinic-sub003/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ItemWithStock is a StockItem enriched with its lots and derived figures
// for listing surfaces.
type ItemWithStock struct {
	model.StockItem
	Available     int           `json:"available"`
	Batches       []model.Batch `json:"batches"`
	NearestExpiry *time.Time    `json:"nearest_expiry,omitempty"`
}

type StockItemService interface {
	CreateItem(item *model.StockItem, actor string) error
	GetItem(clinicID, itemID uuid.UUID) (*ItemWithStock, error)
	ListItems(clinicID uuid.UUID) ([]ItemWithStock, error)
	UsageHistory(clinicID, itemID uuid.UUID) ([]model.UsageRecord, error)
}

type stockItemService struct {
	db      *gorm.DB
	items   repository.StockItemRepository
	batches repository.BatchRepository
	usage   repository.UsageRepository
	log     *zap.Logger
	now     func() time.Time
}

func NewStockItemService(db *gorm.DB, items repository.StockItemRepository, batches repository.BatchRepository, usage repository.UsageRepository, log *zap.Logger) StockItemService {
	return &stockItemService{db: db, items: items, batches: batches, usage: usage, log: log, now: time.Now}
}

func (s *stockItemService) CreateItem(item *model.StockItem, actor string) error {
	if err := validateInput(item); err != nil {
		return err
	}
	// Stock always enters through receiveBatch; a fresh SKU starts empty.
	item.TotalStock = 0
	item.Reserved = 0

	if existing, _ := s.items.FindBySKU(item.ClinicID, item.SKU); existing != nil && existing.ID != uuid.Nil {
		return &ValidationError{Field: "SKU", Tag: "unique"}
	}

	item.CreatedBy = actor
	item.UpdatedBy = actor
	return s.items.Create(item)
}

func (s *stockItemService) GetItem(clinicID, itemID uuid.UUID) (*ItemWithStock, error) {
	item, err := s.items.FindByID(clinicID, itemID)
	if err != nil {
		return nil, ErrNotFound
	}
	batches, err := s.batches.FindByItem(clinicID, item.ID)
	if err != nil {
		return nil, err
	}
	return s.enrich(item, batches), nil
}

func (s *stockItemService) ListItems(clinicID uuid.UUID) ([]ItemWithStock, error) {
	items, err := s.items.FindAll(clinicID)
	if err != nil {
		return nil, err
	}
	out := make([]ItemWithStock, 0, len(items))
	for i := range items {
		batches, err := s.batches.FindByItem(clinicID, items[i].ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *s.enrich(&items[i], batches))
	}
	return out, nil
}

// UsageHistory is the append-only consumption trail for one SKU, newest first.
func (s *stockItemService) UsageHistory(clinicID, itemID uuid.UUID) ([]model.UsageRecord, error) {
	if _, err := s.items.FindByID(clinicID, itemID); err != nil {
		return nil, ErrNotFound
	}
	return s.usage.ListByItem(clinicID, itemID)
}

func (s *stockItemService) enrich(item *model.StockItem, batches []model.Batch) *ItemWithStock {
	now := s.now()
	enriched := &ItemWithStock{
		StockItem: *item,
		Available: item.Available(),
		Batches:   batches,
	}
	for i := range batches {
		b := &batches[i]
		if !b.Consumable(now) {
			continue
		}
		if enriched.NearestExpiry == nil || b.ExpiresAt.Before(*enriched.NearestExpiry) {
			exp := b.ExpiresAt
			enriched.NearestExpiry = &exp
		}
	}
	return enriched
}
