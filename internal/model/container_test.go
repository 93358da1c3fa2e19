package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContainerStatusDerivation(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	opened := base.Add(-time.Hour)
	shelf := base.AddDate(0, 6, 0)

	cases := []struct {
		name string
		c    Container
		want ContainerStatus
	}{
		{
			name: "unopened",
			c:    Container{ExpiresAt: shelf, BeyondUseHours: 4, DosesPerContainer: 10},
			want: ContainerUnopened,
		},
		{
			name: "in use within window",
			c:    Container{ExpiresAt: shelf, OpenedAt: &opened, BeyondUseHours: 4, DosesPerContainer: 10, DosesUsed: 3},
			want: ContainerInUse,
		},
		{
			name: "depleted",
			c:    Container{ExpiresAt: shelf, OpenedAt: &opened, BeyondUseHours: 4, DosesPerContainer: 10, DosesUsed: 10},
			want: ContainerDepleted,
		},
		{
			name: "shelf expiry before opening",
			c:    Container{ExpiresAt: base.Add(-time.Minute), BeyondUseHours: 4, DosesPerContainer: 10},
			want: ContainerExpired,
		},
		{
			name: "beyond-use window lapsed with doses left",
			c:    Container{ExpiresAt: shelf, OpenedAt: &opened, BeyondUseHours: 1, DosesPerContainer: 10, DosesUsed: 2},
			want: ContainerExpired,
		},
		{
			name: "quarantine overrides expiry and doses",
			c:    Container{ExpiresAt: base.Add(-time.Minute), OpenedAt: &opened, BeyondUseHours: 1, DosesPerContainer: 10, DosesUsed: 10, Quarantined: true},
			want: ContainerQuarantined,
		},
		{
			name: "recall overrides quarantine",
			c:    Container{ExpiresAt: shelf, Recalled: true, Quarantined: true, BeyondUseHours: 4, DosesPerContainer: 10},
			want: ContainerRecalled,
		},
		{
			name: "disposed overrides everything",
			c:    Container{ExpiresAt: base.Add(-time.Minute), Disposed: true, Recalled: true, Quarantined: true, BeyondUseHours: 4, DosesPerContainer: 10},
			want: ContainerDisposed,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.c.StatusAt(base))
		})
	}
}

func TestContainerUsable(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	opened := base.Add(-time.Hour)

	fresh := Container{ExpiresAt: base.AddDate(0, 1, 0), OpenedAt: &opened, BeyondUseHours: 4, DosesPerContainer: 10}
	assert.True(t, fresh.Usable(base))

	lapsed := fresh
	lapsed.BeyondUseHours = 1
	assert.False(t, lapsed.Usable(base))
}

func TestBeyondUseAtNilUntilOpened(t *testing.T) {
	c := Container{BeyondUseHours: 4}
	assert.Nil(t, c.BeyondUseAt())

	opened := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.OpenedAt = &opened
	got := c.BeyondUseAt()
	assert.NotNil(t, got)
	assert.Equal(t, opened.Add(4*time.Hour), *got)
}
