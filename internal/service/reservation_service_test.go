package service

import (
	"sync"
	"testing"
	"time"

	"github.com/xtm888/medflow-clinic-sub003/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveHoldsStockWithoutConsumingIt(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	item := env.newItem(t, "REAGENT-001")
	env.receive(t, item.ID, "LOT-A", 5, base.AddDate(0, 6, 0))

	hold, err := env.reservations.Reserve(ReserveInput{
		ClinicID: env.clinic,
		ItemID:   item.ID,
		Quantity: 3,
		OrderRef: "ORD-1001",
		Actor:    "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, model.ReservationHeld, hold.Status)

	got := env.reloadItem(t, item.ID)
	assert.Equal(t, 5, got.TotalStock)
	assert.Equal(t, 3, got.Reserved)
	assert.Equal(t, 2, got.Available())
}

func TestReserveRefusesBeyondAvailable(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	item := env.newItem(t, "REAGENT-002")
	env.receive(t, item.ID, "LOT-A", 5, base.AddDate(0, 6, 0))

	_, err := env.reservations.Reserve(ReserveInput{
		ClinicID: env.clinic,
		ItemID:   item.ID,
		Quantity: 6,
		OrderRef: "ORD-1002",
		Actor:    "alice",
	})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// A refused reserve leaves no trace.
	got := env.reloadItem(t, item.ID)
	assert.Equal(t, 0, got.Reserved)
	var count int64
	env.db.Model(&model.Reservation{}).Count(&count)
	assert.Zero(t, count)
}

func TestReserveValidatesInput(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reservations.Reserve(ReserveInput{
		ClinicID: env.clinic,
		ItemID:   uuid.New(),
		Quantity: 0,
		OrderRef: "ORD-1003",
		Actor:    "alice",
	})
	assert.True(t, IsValidation(err))

	_, err = env.reservations.Reserve(ReserveInput{
		ClinicID: env.clinic,
		ItemID:   uuid.New(),
		Quantity: -2,
		OrderRef: "ORD-1003",
		Actor:    "alice",
	})
	assert.True(t, IsValidation(err))
}

func TestReserveUnknownItem(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reservations.Reserve(ReserveInput{
		ClinicID: env.clinic,
		ItemID:   uuid.New(),
		Quantity: 1,
		OrderRef: "ORD-1004",
		Actor:    "alice",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReleaseReturnsQuantityExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	item := env.newItem(t, "REAGENT-003")
	env.receive(t, item.ID, "LOT-A", 5, base.AddDate(0, 6, 0))

	hold, err := env.reservations.Reserve(ReserveInput{
		ClinicID: env.clinic, ItemID: item.ID, Quantity: 3, OrderRef: "ORD-1005", Actor: "alice",
	})
	require.NoError(t, err)

	require.NoError(t, env.reservations.Release(env.clinic, hold.ID, "alice"))
	got := env.reloadItem(t, item.ID)
	assert.Equal(t, 0, got.Reserved)
	assert.Equal(t, 5, got.Available())

	// Double release must not decrement reserved a second time.
	err = env.reservations.Release(env.clinic, hold.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState)
	got = env.reloadItem(t, item.ID)
	assert.Equal(t, 0, got.Reserved)
}

func TestFulfillConsumesHeldStock(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	item := env.newItem(t, "REAGENT-004")
	batch := env.receive(t, item.ID, "LOT-A", 5, base.AddDate(0, 6, 0))

	hold, err := env.reservations.Reserve(ReserveInput{
		ClinicID: env.clinic, ItemID: item.ID, Quantity: 3, OrderRef: "ORD-1006", Actor: "alice",
	})
	require.NoError(t, err)

	record, err := env.reservations.Fulfill(env.clinic, hold.ID, SaleContext{
		Actor:        "alice",
		RecipientRef: "patient-77",
	})
	require.NoError(t, err)
	assert.Equal(t, model.UsageSale, record.Kind)
	assert.Equal(t, 3, record.Quantity)

	// totalStock and reserved drop together; available is unchanged by the sale.
	got := env.reloadItem(t, item.ID)
	assert.Equal(t, 2, got.TotalStock)
	assert.Equal(t, 0, got.Reserved)
	assert.Equal(t, 2, got.Available())

	// FEFO drew the units from the lot.
	assert.Equal(t, 2, env.reloadBatch(t, batch.ID).QuantityRemaining)

	updated, err := env.reservations.GetReservation(env.clinic, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationFulfilled, updated.Status)

	// Fulfilling again is a reported error, not a second decrement.
	_, err = env.reservations.Fulfill(env.clinic, hold.ID, SaleContext{Actor: "alice"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestFulfillFailsWhenLotsExpiredSinceHold(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	item := env.newItem(t, "REAGENT-005")
	batch := env.receive(t, item.ID, "LOT-A", 5, base.AddDate(0, 0, 10))

	hold, err := env.reservations.Reserve(ReserveInput{
		ClinicID: env.clinic, ItemID: item.ID, Quantity: 3, OrderRef: "ORD-1007", Actor: "alice",
	})
	require.NoError(t, err)

	// The only lot lapses while the hold sits unfulfilled.
	env.setNow(base.AddDate(0, 0, 20))

	_, err = env.reservations.Fulfill(env.clinic, hold.ID, SaleContext{Actor: "alice"})
	require.ErrorIs(t, err, ErrInsufficientStock)

	// Everything rolled back: hold still held, counts and lot untouched.
	updated, err := env.reservations.GetReservation(env.clinic, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationHeld, updated.Status)
	got := env.reloadItem(t, item.ID)
	assert.Equal(t, 5, got.TotalStock)
	assert.Equal(t, 3, got.Reserved)
	assert.Equal(t, 5, env.reloadBatch(t, batch.ID).QuantityRemaining)
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	item := env.newItem(t, "REAGENT-006")
	env.receive(t, item.ID, "LOT-A", 10, base.AddDate(0, 6, 0))

	const callers = 8
	const perCall = 3

	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.reservations.Reserve(ReserveInput{
				ClinicID: env.clinic,
				ItemID:   item.ID,
				Quantity: perCall,
				OrderRef: "ORD-CC-" + uuid.NewString(),
				Actor:    "alice",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded, refused := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		default:
			require.ErrorIs(t, err, ErrInsufficientStock)
			refused++
		}
	}

	// floor(10/3) holds fit; every other caller is refused cleanly.
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, callers-3, refused)

	got := env.reloadItem(t, item.ID)
	assert.Equal(t, 9, got.Reserved)
	assert.GreaterOrEqual(t, got.Available(), 0)
}
