package booking

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"parkease-api-go/internal/api/middleware"
	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/store"
)

func TestCreatePoolValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		input     PoolInput
		expectErr error
	}{
		{
			name:  "valid",
			input: PoolInput{Name: "Lot A", Address: "1 Main", PricePerHour: 3, TotalUnits: 4},
		},
		{
			name:      "missing name",
			input:     PoolInput{Address: "1 Main", TotalUnits: 4},
			expectErr: domain.ErrMissingField,
		},
		{
			name:      "zero units",
			input:     PoolInput{Name: "Lot A", Address: "1 Main", TotalUnits: 0},
			expectErr: domain.ErrInvalidPool,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := f.engine.CreatePool(ctx, "owner", tt.input)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input.TotalUnits, p.AvailableUnits)
			assert.True(t, p.IsActive)
			assert.Equal(t, "owner", p.OwnerID)
		})
	}
}

func TestReviseCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pool(t, "owner", 3)
	for _, v := range []string{"A", "B"} {
		_, err := f.engine.CreateBooking(ctx, request("user", p.ID, v))
		require.NoError(t, err)
	}

	_, err := f.engine.ReviseCapacity(ctx, "owner", p.ID, 1)
	assert.ErrorIs(t, err, domain.ErrCapacityBelowActive)
	got, err := f.store.GetPool(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TotalUnits, "failed revision leaves the pool unchanged")
	assert.Equal(t, 1, got.AvailableUnits)

	_, err = f.engine.ReviseCapacity(ctx, "intruder", p.ID, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	revised, err := f.engine.ReviseCapacity(ctx, "owner", p.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, revised.TotalUnits)
	assert.Equal(t, 8, revised.AvailableUnits)

	revised, err = f.engine.ReviseCapacity(ctx, "owner", p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, revised.AvailableUnits)

	_, err = f.engine.ReviseCapacity(ctx, "owner", "missing", 2)
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)
}

func TestUpdatePool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pool(t, "owner", 2)
	f.clock.Advance(time.Minute)

	name := "  Renamed Garage "
	price := 7.5
	units := 4
	updated, err := f.engine.UpdatePool(ctx, "owner", p.ID, domain.PoolUpdate{
		Name:         &name,
		PricePerHour: &price,
		TotalUnits:   &units,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed Garage", updated.Name)
	assert.Equal(t, 7.5, updated.PricePerHour)
	assert.Equal(t, 4, updated.AvailableUnits)
	assert.Equal(t, p.Address, updated.Address)
	assert.Equal(t, testNow.Add(time.Minute), updated.UpdatedAt)

	blank := ""
	_, err = f.engine.UpdatePool(ctx, "owner", p.ID, domain.PoolUpdate{Name: &blank, TotalUnits: &units})
	assert.ErrorIs(t, err, domain.ErrMissingField)
	got, err := f.store.GetPool(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed Garage", got.Name, "invalid edits roll back as a unit")
}

func TestSetPoolActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pool(t, "owner", 2)

	b, err := f.engine.CreateBooking(ctx, request("user", p.ID, "V"))
	require.NoError(t, err)

	_, err = f.engine.SetPoolActive(ctx, "owner", p.ID, false)
	assert.ErrorIs(t, err, domain.ErrPoolHasActiveBookings)

	_, err = f.engine.SetPoolActive(ctx, "user", p.ID, false)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.engine.CancelBooking(ctx, "user", b.ID)
	require.NoError(t, err)

	got, err := f.engine.SetPoolActive(ctx, "owner", p.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = f.engine.SetPoolActive(ctx, "owner", p.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestDeletePool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pool(t, "owner", 2)

	b, err := f.engine.CreateBooking(ctx, request("user", p.ID, "V"))
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.DeletePool(ctx, "owner", p.ID), domain.ErrPoolHasActiveBookings)
	assert.ErrorIs(t, f.engine.DeletePool(ctx, "user", p.ID), domain.ErrForbidden)

	_, err = f.engine.CompleteBooking(ctx, b.ID, domain.TriggerClient, "user")
	require.NoError(t, err)

	require.NoError(t, f.engine.DeletePool(ctx, "owner", p.ID))
	_, err = f.store.GetPool(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)

	history, err := f.store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, history.Status)

	assert.ErrorIs(t, f.engine.DeletePool(ctx, "owner", p.ID), domain.ErrPoolNotFound)
}

func TestAuditPools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	healthy := f.pool(t, "owner", 2)
	drifted := f.pool(t, "owner", 2)
	_, err := f.engine.CreateBooking(ctx, request("user", drifted.ID, "V"))
	require.NoError(t, err)

	require.NoError(t, f.store.InPool(ctx, drifted.ID, func(tx store.Tx) error {
		p, _ := tx.Pool(ctx)
		p.AvailableUnits = 2
		return tx.SavePool(ctx, p)
	}))

	repaired, err := f.engine.AuditPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.Equal(t, 1, f.available(t, drifted.ID))
	assert.Equal(t, 2, f.available(t, healthy.ID))
	assert.Equal(t, 1.0, gaugeValue(t, middleware.ActiveBookings))
}

func TestAuditPoolsSetsActiveGaugeFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pool(t, "owner", 3)
	replica := NewEngine(f.store, nil, f.clock, zap.NewNop())

	_, err := f.engine.CreateBooking(ctx, request("user", p.ID, "A"))
	require.NoError(t, err)
	_, err = replica.CreateBooking(ctx, request("user", p.ID, "B"))
	require.NoError(t, err)
	b, err := f.engine.CreateBooking(ctx, request("user", p.ID, "C"))
	require.NoError(t, err)
	_, err = f.engine.CancelBooking(ctx, "user", b.ID)
	require.NoError(t, err)

	middleware.ActiveBookings.Set(-4)
	_, err = f.engine.AuditPools(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, gaugeValue(t, middleware.ActiveBookings))
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, g.Write(m))
	return m.GetGauge().GetValue()
}
