package service

import (
	"time"

	"github.com/xtm888/medflow-clinic-sub003/internal/metrics"
	"github.com/xtm888/medflow-clinic-sub003/internal/model"
	"github.com/xtm888/medflow-clinic-sub003/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BatchAllocation is one lot drawdown produced by FEFO selection.
type BatchAllocation struct {
	Batch    model.Batch `json:"batch"`
	Quantity int         `json:"quantity"`
}

// fefoAllocate draws qty from the earliest-expiring consumable lots of the
// item, inside the caller's transaction. All-or-nothing: when the consumable
// total cannot cover qty nothing is drawn and ErrInsufficientStock returns,
// regardless of what the ledger claims.
func fefoAllocate(tx *gorm.DB, batches repository.BatchRepository, itemID uuid.UUID, qty int, now time.Time, actor string) ([]BatchAllocation, error) {
	lots, err := batches.LockActiveByItem(tx, itemID)
	if err != nil {
		return nil, err
	}

	consumable := 0
	for _, b := range lots {
		if b.Consumable(now) {
			consumable += b.QuantityRemaining
		}
	}
	if consumable < qty {
		return nil, ErrInsufficientStock
	}

	remaining := qty
	var out []BatchAllocation
	for _, b := range lots {
		if remaining == 0 {
			break
		}
		if !b.Consumable(now) {
			continue
		}
		take := b.QuantityRemaining
		if take > remaining {
			take = remaining
		}
		ok, err := batches.DecrementRemaining(tx, b.ID, take, actor)
		if err != nil {
			return nil, err
		}
		if !ok {
			// The lot moved under our lock; treat as corruption, not a retry.
			return nil, ErrIntegrity
		}
		b.QuantityRemaining -= take
		out = append(out, BatchAllocation{Batch: b, Quantity: take})
		remaining -= take
	}
	return out, nil
}

// checkLedgerIntegrity cross-checks the stored-active lot total against the
// ledger for a freshly locked item. A mismatch is logged at high severity and
// fails the operation; it is never silently reconciled.
func checkLedgerIntegrity(tx *gorm.DB, batches repository.BatchRepository, item *model.StockItem, log *zap.Logger) error {
	total, err := batches.ActiveStoredTotal(tx, item.ID)
	if err != nil {
		return err
	}
	if total != item.TotalStock {
		metrics.IntegrityFaultsTotal.Inc()
		log.Error("ledger and batch totals disagree",
			zap.String("stock_item_id", item.ID.String()),
			zap.String("sku", item.SKU),
			zap.Int("ledger_total", item.TotalStock),
			zap.Int("batch_total", total),
		)
		return ErrIntegrity
	}
	return nil
}
