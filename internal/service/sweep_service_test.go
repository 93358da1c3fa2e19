package service

import (
	"testing"
	"time"

	"github.com/xtm888/medflow-clinic-sub003/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepReclassifiesLapsedBatches(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	item := env.newItem(t, "REAGENT-200")
	lapsed := env.receive(t, item.ID, "LOT-A", 5, base.AddDate(0, 0, 7))
	fresh := env.receive(t, item.ID, "LOT-B", 3, base.AddDate(0, 6, 0))

	env.setNow(base.AddDate(0, 0, 8))
	res := env.sweeper.SweepOnce()
	assert.Equal(t, 1, res.BatchesExpired)

	got := env.reloadBatch(t, lapsed.ID)
	assert.Equal(t, model.BatchExpired, got.Status)
	// Reclassification removes the decayed units from the ledger but never
	// touches the lot's own remaining quantity.
	assert.Equal(t, 5, got.QuantityRemaining)
	assert.Equal(t, model.BatchActive, env.reloadBatch(t, fresh.ID).Status)
	assert.Equal(t, 3, env.reloadItem(t, item.ID).TotalStock)

	// A second pass finds nothing left to do.
	res = env.sweeper.SweepOnce()
	assert.Zero(t, res.BatchesExpired)
}

func TestSweepLeavesBatchAloneWhenHoldsPinStock(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	item := env.newItem(t, "REAGENT-201")
	batch := env.receive(t, item.ID, "LOT-A", 5, base.AddDate(0, 0, 7))
	_, err := env.reservations.Reserve(ReserveInput{
		ClinicID: env.clinic, ItemID: item.ID, Quantity: 5, OrderRef: "ORD-3001", Actor: "alice",
	})
	require.NoError(t, err)

	env.setNow(base.AddDate(0, 0, 8))
	res := env.sweeper.SweepOnce()
	assert.Zero(t, res.BatchesExpired)

	// The stored row stays put so nothing silently breaks the hold; readers
	// already derive EXPIRED from the clock.
	got := env.reloadBatch(t, batch.ID)
	assert.Equal(t, model.BatchActive, got.Status)
	assert.Equal(t, model.BatchExpired, got.EffectiveStatus(env.sweeper.now()))
	ledger := env.reloadItem(t, item.ID)
	assert.Equal(t, 5, ledger.TotalStock)
	assert.Equal(t, 5, ledger.Reserved)
}

func TestSweepNotesLapsedContainerExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	c := env.newContainer(t, 10, 4, base.AddDate(0, 0, 7))
	_, err := env.containers.Open(env.clinic, c.ID, "nurse-1")
	require.NoError(t, err)

	// Beyond-use window lapses long before shelf life.
	env.setNow(base.Add(5 * time.Hour))
	res := env.sweeper.SweepOnce()
	assert.Equal(t, 1, res.ContainersExpired)

	got, err := env.containers.GetContainer(env.clinic, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExpiryNotedAt)
	assert.Equal(t, model.ContainerExpired, got.Status)

	res = env.sweeper.SweepOnce()
	assert.Zero(t, res.ContainersExpired)
}

func TestSweepSkipsDisposedContainers(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	c := env.newContainer(t, 10, 4, base.AddDate(0, 0, 1))
	require.NoError(t, env.containers.Dispose(env.clinic, c.ID, "damaged", "nurse-1"))

	env.setNow(base.AddDate(0, 0, 2))
	res := env.sweeper.SweepOnce()
	assert.Zero(t, res.ContainersExpired)
}

func TestSweepAutoReleasesAbandonedHolds(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	item := env.newItem(t, "REAGENT-202")
	env.receive(t, item.ID, "LOT-A", 5, base.AddDate(0, 6, 0))
	hold, err := env.reservations.Reserve(ReserveInput{
		ClinicID: env.clinic, ItemID: item.ID, Quantity: 3, OrderRef: "ORD-3002", Actor: "alice",
	})
	require.NoError(t, err)

	// Age the hold past the TTL.
	require.NoError(t, env.db.Model(&model.Reservation{}).
		Where("id = ?", hold.ID).
		Update("created_at", base.Add(-2*time.Hour)).Error)

	env.sweeper.ReservationTTL = 30 * time.Minute
	res := env.sweeper.SweepOnce()
	assert.Equal(t, 1, res.ReservationsReleased)

	updated, err := env.reservations.GetReservation(env.clinic, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationReleased, updated.Status)
	ledger := env.reloadItem(t, item.ID)
	assert.Equal(t, 0, ledger.Reserved)
	assert.Equal(t, 5, ledger.Available())
}

func TestSweepStaleHoldsDisabledByDefault(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	item := env.newItem(t, "REAGENT-203")
	env.receive(t, item.ID, "LOT-A", 5, base.AddDate(0, 6, 0))
	hold, err := env.reservations.Reserve(ReserveInput{
		ClinicID: env.clinic, ItemID: item.ID, Quantity: 3, OrderRef: "ORD-3003", Actor: "alice",
	})
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&model.Reservation{}).
		Where("id = ?", hold.ID).
		Update("created_at", base.Add(-48*time.Hour)).Error)

	res := env.sweeper.SweepOnce()
	assert.Zero(t, res.ReservationsReleased)

	updated, err := env.reservations.GetReservation(env.clinic, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationHeld, updated.Status)
}
