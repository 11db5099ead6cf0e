// Package conflict holds the business-rule checks a booking request must pass
// before any capacity is reserved.
package conflict

import (
	"context"
	"errors"

	"parkease-api-go/internal/clock"
	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/store"
)

// Policy checks pool eligibility and vehicle exclusivity.
type Policy struct {
	store store.Store
	clock clock.Clock
}

// NewPolicy creates a conflict policy reading from s.
func NewPolicy(s store.Store, clk clock.Clock) *Policy {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Policy{store: s, clock: clk}
}

// Check runs the pre-reservation checks and returns the pool as read. Both
// checks are advisory fast paths: the capacity manager repeats availability
// under the pool lock and CheckVehicle repeats exclusivity inside the
// reserving transaction.
func (p *Policy) Check(ctx context.Context, poolID, vehicleID string, _ domain.TimeWindow) (*domain.Pool, error) {
	pool, err := p.store.GetPool(ctx, poolID)
	if errors.Is(err, domain.ErrPoolNotFound) {
		return nil, domain.ErrPoolInactiveOrMissing
	}
	if err != nil {
		return nil, err
	}
	if !pool.IsActive {
		return nil, domain.ErrPoolInactiveOrMissing
	}
	if !pool.IsAvailable() {
		return nil, domain.ErrNoAvailableUnits
	}

	active, err := p.VehicleActiveBookings(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, domain.ErrVehicleHasActiveBooking
	}
	return pool, nil
}

// VehicleActiveBookings lists confirmed bookings for vehicleID that have not
// yet ended. Expired-but-unswept bookings do not count.
func (p *Policy) VehicleActiveBookings(ctx context.Context, vehicleID string) ([]*domain.Booking, error) {
	return p.store.ListBookings(ctx, store.BookingFilter{
		VehicleID: vehicleID,
		ActiveAt:  p.clock.Now(),
		Limit:     1,
	})
}

// CheckVehicle enforces vehicle exclusivity inside a pool transaction. The
// store keeps the vehicle locked until tx ends, so no other transaction on
// any pool can confirm the same vehicle before this one commits.
func (p *Policy) CheckVehicle(ctx context.Context, tx store.Tx, vehicleID string) error {
	n, err := tx.ActiveVehicleBookings(ctx, vehicleID, p.clock.Now())
	if err != nil {
		return err
	}
	if n > 0 {
		return domain.ErrVehicleHasActiveBooking
	}
	return nil
}
