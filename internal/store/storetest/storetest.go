// Package storetest holds behavioural tests every store.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/store"
)

var errAbort = errors.New("abort")

// Run exercises s against the store contract. s must start empty.
func Run(t *testing.T, s store.Store) {
	ctx := context.Background()

	t.Run("pool lifecycle", func(t *testing.T) {
		owner := "owner-" + uuid.NewString()
		p := NewPool(owner, 3)
		require.NoError(t, s.CreatePool(ctx, p))

		got, err := s.GetPool(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.Name, got.Name)
		assert.Equal(t, 3, got.AvailableUnits)

		owned, err := s.ListPools(ctx, store.PoolFilter{OwnerID: owner})
		require.NoError(t, err)
		assert.Len(t, owned, 1)

		_, err = s.GetPool(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrPoolNotFound)
	})

	t.Run("in pool commits on success", func(t *testing.T) {
		p := NewPool("owner-b", 2)
		require.NoError(t, s.CreatePool(ctx, p))
		b := NewBooking(p, "user-1", "V-1")

		err := s.InPool(ctx, p.ID, func(tx store.Tx) error {
			pool, err := tx.Pool(ctx)
			if err != nil {
				return err
			}
			pool.AvailableUnits--
			if err := tx.SavePool(ctx, pool); err != nil {
				return err
			}
			if err := tx.InsertBooking(ctx, b); err != nil {
				return err
			}
			n, err := tx.CountConfirmed(ctx)
			if err != nil {
				return err
			}
			assert.Equal(t, 1, n, "staged insert is counted")
			return nil
		})
		require.NoError(t, err)

		got, err := s.GetPool(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.AvailableUnits)

		gotB, err := s.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusConfirmed, gotB.Status)
		assert.Equal(t, "V-1", gotB.VehicleID)
	})

	t.Run("in pool rolls back on error", func(t *testing.T) {
		p := NewPool("owner-c", 2)
		require.NoError(t, s.CreatePool(ctx, p))
		b := NewBooking(p, "user-1", "V-2")

		err := s.InPool(ctx, p.ID, func(tx store.Tx) error {
			pool, _ := tx.Pool(ctx)
			pool.AvailableUnits--
			_ = tx.SavePool(ctx, pool)
			_ = tx.InsertBooking(ctx, b)
			return errAbort
		})
		assert.ErrorIs(t, err, errAbort)

		got, err := s.GetPool(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.AvailableUnits)

		_, err = s.GetBooking(ctx, b.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("in pool on missing pool", func(t *testing.T) {
		called := false
		err := s.InPool(ctx, uuid.NewString(), func(store.Tx) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, domain.ErrPoolNotFound)
		assert.False(t, called)
	})

	t.Run("in booking transitions", func(t *testing.T) {
		p := NewPool("owner-d", 1)
		p.AvailableUnits = 0
		require.NoError(t, s.CreatePool(ctx, p))
		b := NewBooking(p, "user-2", "V-3")
		require.NoError(t, s.InPool(ctx, p.ID, func(tx store.Tx) error {
			return tx.InsertBooking(ctx, b)
		}))

		err := s.InBooking(ctx, b.ID, func(tx store.Tx, cur *domain.Booking) error {
			assert.Equal(t, b.ID, cur.ID)
			cur.Status = domain.StatusCompleted
			if err := tx.SaveBooking(ctx, cur); err != nil {
				return err
			}
			n, err := tx.CountConfirmed(ctx)
			if err != nil {
				return err
			}
			assert.Equal(t, 0, n, "staged update is counted")
			return nil
		})
		require.NoError(t, err)

		got, err := s.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, got.Status)

		err = s.InBooking(ctx, uuid.NewString(), func(store.Tx, *domain.Booking) error { return nil })
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("in booking after pool deleted", func(t *testing.T) {
		p := NewPool("owner-e", 1)
		require.NoError(t, s.CreatePool(ctx, p))
		b := NewBooking(p, "user-3", "V-4")
		b.Status = domain.StatusCancelled
		require.NoError(t, s.InPool(ctx, p.ID, func(tx store.Tx) error {
			return tx.InsertBooking(ctx, b)
		}))
		require.NoError(t, s.InPool(ctx, p.ID, func(tx store.Tx) error {
			return tx.DeletePool(ctx)
		}))

		_, err := s.GetPool(ctx, p.ID)
		assert.ErrorIs(t, err, domain.ErrPoolNotFound)

		err = s.InBooking(ctx, b.ID, func(tx store.Tx, cur *domain.Booking) error {
			_, err := tx.Pool(ctx)
			return err
		})
		assert.ErrorIs(t, err, domain.ErrPoolNotFound)
	})

	t.Run("list bookings filters", func(t *testing.T) {
		p := NewPool("owner-f", 5)
		require.NoError(t, s.CreatePool(ctx, p))
		now := time.Now().UTC().Truncate(time.Second)
		user := "user-" + uuid.NewString()
		vehicle := "VF-" + uuid.NewString()

		active := NewBooking(p, user, vehicle)
		active.EndTime = now.Add(time.Hour)
		expired := NewBooking(p, user, "VF-"+uuid.NewString())
		expired.StartTime = now.Add(-2 * time.Hour)
		expired.EndTime = now.Add(-time.Hour)
		other := NewBooking(p, "user-"+uuid.NewString(), vehicle)
		other.Status = domain.StatusCancelled
		require.NoError(t, s.InPool(ctx, p.ID, func(tx store.Tx) error {
			for _, b := range []*domain.Booking{active, expired, other} {
				if err := tx.InsertBooking(ctx, b); err != nil {
					return err
				}
			}
			return nil
		}))

		byUser, err := s.ListBookings(ctx, store.BookingFilter{RequesterID: user})
		require.NoError(t, err)
		assert.Len(t, byUser, 2)

		vehicleActive, err := s.ListBookings(ctx, store.BookingFilter{
			VehicleID: vehicle,
			ActiveAt:  now,
		})
		require.NoError(t, err)
		require.Len(t, vehicleActive, 1)
		assert.Equal(t, active.ID, vehicleActive[0].ID)

		due, err := s.ListBookings(ctx, store.BookingFilter{
			PoolIDs:   []string{p.ID},
			ExpiredAt: now,
		})
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, expired.ID, due[0].ID)

		none, err := s.ListBookings(ctx, store.BookingFilter{PoolIDs: []string{}})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("active vehicle bookings", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		vehicle := "VA-" + uuid.NewString()
		first := NewPool("owner-v", 2)
		second := NewPool("owner-v", 2)
		require.NoError(t, s.CreatePool(ctx, first))
		require.NoError(t, s.CreatePool(ctx, second))

		require.NoError(t, s.InPool(ctx, first.ID, func(tx store.Tx) error {
			n, err := tx.ActiveVehicleBookings(ctx, vehicle, now)
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			if err := tx.InsertBooking(ctx, NewBooking(first, "user-v", vehicle)); err != nil {
				return err
			}
			n, err = tx.ActiveVehicleBookings(ctx, vehicle, now)
			require.NoError(t, err)
			assert.Equal(t, 1, n, "staged insert counts")
			return nil
		}))

		// visible from a transaction on another pool
		require.NoError(t, s.InPool(ctx, second.ID, func(tx store.Tx) error {
			n, err := tx.ActiveVehicleBookings(ctx, vehicle, now)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			n, err = tx.ActiveVehicleBookings(ctx, vehicle, now.Add(2*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 0, n, "ended bookings do not count")
			return nil
		}))
	})

	t.Run("vehicle check serializes across pools", func(t *testing.T) {
		const replicas = 8
		vehicle := "VS-" + uuid.NewString()
		pools := make([]*domain.Pool, replicas)
		for i := range pools {
			pools[i] = NewPool("owner-s", 1)
			require.NoError(t, s.CreatePool(ctx, pools[i]))
		}

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			confirmed int
		)
		start := make(chan struct{})
		for _, p := range pools {
			wg.Add(1)
			go func(p *domain.Pool) {
				defer wg.Done()
				<-start
				err := s.InPool(ctx, p.ID, func(tx store.Tx) error {
					n, err := tx.ActiveVehicleBookings(ctx, vehicle, time.Now().UTC())
					if err != nil {
						return err
					}
					if n > 0 {
						return domain.ErrVehicleHasActiveBooking
					}
					return tx.InsertBooking(ctx, NewBooking(p, "user-s", vehicle))
				})
				if err == nil {
					mu.Lock()
					confirmed++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, domain.ErrVehicleHasActiveBooking)
			}(p)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, 1, confirmed)
		active, err := s.ListBookings(ctx, store.BookingFilter{VehicleID: vehicle, ActiveAt: time.Now().UTC()})
		require.NoError(t, err)
		assert.Len(t, active, 1)
	})
}

// NewPool returns an active pool with every unit free.
func NewPool(ownerID string, total int) *domain.Pool {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Pool{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Name:           "Lot " + ownerID,
		Address:        "1 Test Way",
		PricePerHour:   2,
		TotalUnits:     total,
		AvailableUnits: total,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewBooking returns a confirmed one-hour booking in p.
func NewBooking(p *domain.Pool, requesterID, vehicleID string) *domain.Booking {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Booking{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		PoolID:      p.ID,
		StartTime:   now,
		EndTime:     now.Add(time.Hour),
		VehicleID:   vehicleID,
		TotalCost:   p.PricePerHour,
		Status:      domain.StatusConfirmed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
