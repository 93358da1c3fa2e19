package service

import (
	"testing"
	"time"

	"github.com/xtm888/medflow-clinic-sub003/internal/model"
	"github.com/xtm888/medflow-clinic-sub003/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// testEnv wires the whole engine against an in-memory store. A single
// connection serializes writers the way row locks do on Postgres, so the
// concurrency tests exercise the real transaction paths.
type testEnv struct {
	db *gorm.DB

	items         repository.StockItemRepository
	batchRepo     repository.BatchRepository
	holds         repository.ReservationRepository
	containerRepo repository.ContainerRepository

	itemSvc      *stockItemService
	batchSvc     *batchService
	reservations *reservationService
	containers   *containerService
	coldChain    *coldChainService
	sweeper      *SweepService

	clinic uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.StockItem{},
		&model.Batch{},
		&model.Reservation{},
		&model.Container{},
		&model.TemperatureObservation{},
		&model.TemperatureExcursion{},
		&model.UsageRecord{},
	))

	log := zap.NewNop()
	items := repository.NewStockItemRepo(db)
	batches := repository.NewBatchRepo(db)
	holds := repository.NewReservationRepo(db)
	containers := repository.NewContainerRepo(db)
	observations := repository.NewObservationRepo(db)
	usage := repository.NewUsageRepo(db)

	env := &testEnv{
		db:            db,
		items:         items,
		batchRepo:     batches,
		holds:         holds,
		containerRepo: containers,
		clinic:        uuid.New(),
	}
	env.itemSvc = NewStockItemService(db, items, batches, usage, log).(*stockItemService)
	env.batchSvc = NewBatchService(db, items, batches, usage, nil, nil, log).(*batchService)
	env.reservations = NewReservationService(db, items, batches, holds, usage, nil, nil, log).(*reservationService)
	env.containers = NewContainerService(db, containers, usage, nil, nil, log).(*containerService)
	env.coldChain = NewColdChainService(db, containers, observations, nil, nil, log).(*coldChainService)
	env.sweeper = NewSweepService(db, items, batches, holds, containers, nil, log, time.Minute, 0)
	return env
}

// setNow pins the engine clock for every service in the env.
func (e *testEnv) setNow(now time.Time) {
	clock := func() time.Time { return now }
	e.itemSvc.now = clock
	e.batchSvc.now = clock
	e.reservations.now = clock
	e.containers.now = clock
	e.coldChain.now = clock
	e.sweeper.now = clock
}

func (e *testEnv) newItem(t *testing.T, sku string) *model.StockItem {
	t.Helper()
	item := &model.StockItem{
		ClinicID: e.clinic,
		SKU:      sku,
		Name:     "Test " + sku,
		Category: model.CategoryReagent,
		Unit:     "pcs",
	}
	require.NoError(t, e.itemSvc.CreateItem(item, "tester"))
	return item
}

func (e *testEnv) receive(t *testing.T, itemID uuid.UUID, lot string, qty int, expiresAt time.Time) *model.Batch {
	t.Helper()
	batch, err := e.batchSvc.ReceiveBatch(ReceiveBatchInput{
		ClinicID:  e.clinic,
		ItemID:    itemID,
		LotNumber: lot,
		Quantity:  qty,
		ExpiresAt: expiresAt,
		Actor:     "tester",
	})
	require.NoError(t, err)
	return batch
}

func (e *testEnv) reloadItem(t *testing.T, id uuid.UUID) *model.StockItem {
	t.Helper()
	item, err := e.items.FindByID(e.clinic, id)
	require.NoError(t, err)
	return item
}

func (e *testEnv) reloadBatch(t *testing.T, id uuid.UUID) *model.Batch {
	t.Helper()
	batch, err := e.batchRepo.FindByID(e.clinic, id)
	require.NoError(t, err)
	return batch
}

func (e *testEnv) newContainer(t *testing.T, doses, budHours int, expiresAt time.Time) *model.Container {
	t.Helper()
	c := &model.Container{
		ClinicID:            e.clinic,
		Medication:          "Test Medication",
		LotNumber:           "LOT-C1",
		ExpiresAt:           expiresAt,
		BeyondUseHours:      budHours,
		DosesPerContainer:   doses,
		MinTempC:            2,
		MaxTempC:            8,
		MaxExcursionMinutes: 60,
	}
	require.NoError(t, e.containers.CreateContainer(c, "tester"))
	return c
}
