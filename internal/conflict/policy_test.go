package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"parkease-api-go/internal/clock"
	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/store"
	"parkease-api-go/internal/store/memory"
	"parkease-api-go/internal/store/storetest"
)

func TestCheck(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	clk := clock.NewManual(now)
	window := domain.TimeWindow{Start: now, End: now.Add(time.Hour)}

	s := memory.New()
	open := storetest.NewPool("owner", 2)
	full := storetest.NewPool("owner", 1)
	full.AvailableUnits = 0
	inactive := storetest.NewPool("owner", 2)
	inactive.IsActive = false
	for _, p := range []*domain.Pool{open, full, inactive} {
		require.NoError(t, s.CreatePool(ctx, p))
	}

	busy := storetest.NewBooking(open, "user", "BUSY")
	busy.EndTime = now.Add(30 * time.Minute)
	stale := storetest.NewBooking(open, "user", "STALE")
	stale.EndTime = now.Add(-time.Minute)
	done := storetest.NewBooking(open, "user", "DONE")
	done.Status = domain.StatusCompleted
	require.NoError(t, s.InPool(ctx, open.ID, func(tx store.Tx) error {
		for _, b := range []*domain.Booking{busy, stale, done} {
			if err := tx.InsertBooking(ctx, b); err != nil {
				return err
			}
		}
		return nil
	}))

	policy := NewPolicy(s, clk)

	tests := []struct {
		name      string
		poolID    string
		vehicle   string
		expectErr error
	}{
		{name: "eligible", poolID: open.ID, vehicle: "FREE"},
		{name: "missing pool", poolID: "nope", vehicle: "FREE", expectErr: domain.ErrPoolInactiveOrMissing},
		{name: "inactive pool", poolID: inactive.ID, vehicle: "FREE", expectErr: domain.ErrPoolInactiveOrMissing},
		{name: "full pool", poolID: full.ID, vehicle: "FREE", expectErr: domain.ErrNoAvailableUnits},
		{name: "vehicle active elsewhere", poolID: open.ID, vehicle: "BUSY", expectErr: domain.ErrVehicleHasActiveBooking},
		{name: "expired booking does not block", poolID: open.ID, vehicle: "STALE"},
		{name: "terminal booking does not block", poolID: open.ID, vehicle: "DONE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := policy.Check(ctx, tt.poolID, tt.vehicle, window)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.poolID, pool.ID)
		})
	}
}

func TestVehicleBlockEndsAtEndTime(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	clk := clock.NewManual(now)
	s := memory.New()
	p := storetest.NewPool("owner", 2)
	require.NoError(t, s.CreatePool(ctx, p))
	b := storetest.NewBooking(p, "user", "V")
	b.EndTime = now.Add(time.Minute)
	require.NoError(t, s.InPool(ctx, p.ID, func(tx store.Tx) error {
		return tx.InsertBooking(ctx, b)
	}))

	policy := NewPolicy(s, clk)
	active, err := policy.VehicleActiveBookings(ctx, "V")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	clk.Set(b.EndTime)
	active, err = policy.VehicleActiveBookings(ctx, "V")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCheckVehicleInTransaction(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	clk := clock.NewManual(now)
	s := memory.New()
	first := storetest.NewPool("owner", 2)
	second := storetest.NewPool("owner", 2)
	require.NoError(t, s.CreatePool(ctx, first))
	require.NoError(t, s.CreatePool(ctx, second))
	policy := NewPolicy(s, clk)

	require.NoError(t, s.InPool(ctx, first.ID, func(tx store.Tx) error {
		if err := policy.CheckVehicle(ctx, tx, "V"); err != nil {
			return err
		}
		return tx.InsertBooking(ctx, storetest.NewBooking(first, "user", "V"))
	}))

	err := s.InPool(ctx, second.ID, func(tx store.Tx) error {
		return policy.CheckVehicle(ctx, tx, "V")
	})
	assert.ErrorIs(t, err, domain.ErrVehicleHasActiveBooking)

	err = s.InPool(ctx, second.ID, func(tx store.Tx) error {
		return policy.CheckVehicle(ctx, tx, "OTHER")
	})
	assert.NoError(t, err)
}
