package service

import (
	"testing"
	"time"

	"github.com/xtm888/medflow-clinic-sub003/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStartsBeyondUseClockOnce(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	c := env.newContainer(t, 10, 4, base.AddDate(0, 6, 0))

	opened, err := env.containers.Open(env.clinic, c.ID, "nurse-1")
	require.NoError(t, err)
	require.NotNil(t, opened.OpenedAt)
	assert.Equal(t, model.ContainerInUse, opened.Status)
	require.NotNil(t, opened.BeyondUseAt())
	assert.Equal(t, base.Add(4*time.Hour), *opened.BeyondUseAt())

	_, err = env.containers.Open(env.clinic, c.ID, "nurse-1")
	assert.ErrorIs(t, err, ErrAlreadyOpened)
}

func TestOpenRefusesLapsedContainer(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	c := env.newContainer(t, 10, 4, base.AddDate(0, 0, 1))
	env.setNow(base.AddDate(0, 0, 2))

	_, err := env.containers.Open(env.clinic, c.ID, "nurse-1")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRecordDoseCountsDownToDepletion(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	c := env.newContainer(t, 3, 24, base.AddDate(0, 6, 0))
	_, err := env.containers.Open(env.clinic, c.ID, "nurse-1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		record, err := env.containers.RecordDose(DoseInput{
			ClinicID:     env.clinic,
			ContainerID:  c.ID,
			Actor:        "nurse-1",
			RecipientRef: "patient-12",
		})
		require.NoError(t, err)
		assert.Equal(t, model.UsageDose, record.Kind)
		assert.Equal(t, 1, record.Quantity)
	}

	got, err := env.containers.GetContainer(env.clinic, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.DosesRemaining())
	assert.Equal(t, model.ContainerDepleted, got.Status)

	_, err = env.containers.RecordDose(DoseInput{
		ClinicID: env.clinic, ContainerID: c.ID, Actor: "nurse-1", RecipientRef: "patient-12",
	})
	assert.ErrorIs(t, err, ErrNoDosesRemaining)

	trail, err := env.containers.UsageHistory(env.clinic, c.ID)
	require.NoError(t, err)
	assert.Len(t, trail, 3)
}

func TestRecordDoseRefusesPastBeyondUseDate(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	c := env.newContainer(t, 10, 4, base.AddDate(0, 6, 0))
	_, err := env.containers.Open(env.clinic, c.ID, "nurse-1")
	require.NoError(t, err)

	// One minute past the window, with doses left and shelf life to spare.
	env.setNow(base.Add(4*time.Hour + time.Minute))

	_, err = env.containers.RecordDose(DoseInput{
		ClinicID: env.clinic, ContainerID: c.ID, Actor: "nurse-1", RecipientRef: "patient-12",
	})
	assert.ErrorIs(t, err, ErrBeyondUseDate)
}

func TestRecordDoseRequiresOpenContainer(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	c := env.newContainer(t, 10, 4, base.AddDate(0, 6, 0))

	_, err := env.containers.RecordDose(DoseInput{
		ClinicID: env.clinic, ContainerID: c.ID, Actor: "nurse-1", RecipientRef: "patient-12",
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDisposeIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	c := env.newContainer(t, 10, 4, base.AddDate(0, 6, 0))
	require.NoError(t, env.containers.Dispose(env.clinic, c.ID, "dropped on floor", "nurse-1"))

	got, err := env.containers.GetContainer(env.clinic, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContainerDisposed, got.Status)
	assert.Equal(t, "dropped on floor", got.DisposeReason)

	assert.ErrorIs(t, env.containers.Dispose(env.clinic, c.ID, "again", "nurse-1"), ErrInvalidState)

	_, err = env.containers.RecordDose(DoseInput{
		ClinicID: env.clinic, ContainerID: c.ID, Actor: "nurse-1", RecipientRef: "patient-12",
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRecallQuarantinesAndSticks(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	env.setNow(base)

	c := env.newContainer(t, 10, 24, base.AddDate(0, 6, 0))
	_, err := env.containers.Open(env.clinic, c.ID, "nurse-1")
	require.NoError(t, err)

	require.NoError(t, env.containers.Recall(env.clinic, c.ID, "pharmacist"))
	// Recalling twice is a tolerated no-op.
	require.NoError(t, env.containers.Recall(env.clinic, c.ID, "pharmacist"))

	got, err := env.containers.GetContainer(env.clinic, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ContainerRecalled, got.Status)
	assert.True(t, got.Quarantined)

	_, err = env.containers.RecordDose(DoseInput{
		ClinicID: env.clinic, ContainerID: c.ID, Actor: "nurse-1", RecipientRef: "patient-12",
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}
