// Package store defines the persistence contract shared by the in-memory and
// Postgres backends. All writes that touch a pool's counters go through a Tx
// obtained from InPool or InBooking, which holds that pool's lock for the
// duration of the callback and commits only if the callback returns nil.
package store

import (
	"context"
	"time"

	"parkease-api-go/internal/domain"
)

// Tx is a unit of work scoped to one pool. Writes are not visible to other
// readers until the surrounding InPool or InBooking call commits.
type Tx interface {
	// Pool returns the locked pool, or domain.ErrPoolNotFound if it was deleted.
	Pool(ctx context.Context) (*domain.Pool, error)
	SavePool(ctx context.Context, p *domain.Pool) error
	DeletePool(ctx context.Context) error
	// CountConfirmed counts confirmed bookings in the pool, staged writes included.
	CountConfirmed(ctx context.Context) (int, error)
	// ActiveVehicleBookings locks vehicleID until the transaction ends, then
	// counts its confirmed bookings, on any pool, that are active at now.
	// Staged writes of this transaction are included.
	ActiveVehicleBookings(ctx context.Context, vehicleID string, now time.Time) (int, error)
	InsertBooking(ctx context.Context, b *domain.Booking) error
	SaveBooking(ctx context.Context, b *domain.Booking) error
}

// PoolFilter narrows ListPools. Zero values match everything.
type PoolFilter struct {
	OwnerID    string
	ActiveOnly bool
}

// BookingFilter narrows ListBookings. Zero values match everything.
type BookingFilter struct {
	RequesterID string
	PoolIDs     []string
	VehicleID   string
	Status      domain.BookingStatus
	// ActiveAt keeps bookings for which domain.Booking.IsActiveAt holds.
	ActiveAt time.Time
	// ExpiredAt keeps bookings for which domain.Booking.IsExpiredAt holds.
	ExpiredAt time.Time
	Limit     int
}

// Store is the persistence backend.
type Store interface {
	CreatePool(ctx context.Context, p *domain.Pool) error
	GetPool(ctx context.Context, id string) (*domain.Pool, error)
	ListPools(ctx context.Context, f PoolFilter) ([]*domain.Pool, error)

	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]*domain.Booking, error)

	// InPool locks poolID and runs fn. Returns domain.ErrPoolNotFound if the
	// pool does not exist.
	InPool(ctx context.Context, poolID string, fn func(tx Tx) error) error
	// InBooking locks the booking's pool, re-reads the booking under that lock
	// and runs fn. Returns domain.ErrNotFound if the booking does not exist.
	InBooking(ctx context.Context, bookingID string, fn func(tx Tx, b *domain.Booking) error) error

	Ping(ctx context.Context) error
	Close() error
}

// MatchPool reports whether p satisfies f.
func (f PoolFilter) MatchPool(p *domain.Pool) bool {
	if f.OwnerID != "" && p.OwnerID != f.OwnerID {
		return false
	}
	if f.ActiveOnly && !p.IsActive {
		return false
	}
	return true
}

// MatchBooking reports whether b satisfies f.
func (f BookingFilter) MatchBooking(b *domain.Booking) bool {
	if f.RequesterID != "" && b.RequesterID != f.RequesterID {
		return false
	}
	if f.VehicleID != "" && b.VehicleID != f.VehicleID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if !f.ActiveAt.IsZero() && !b.IsActiveAt(f.ActiveAt) {
		return false
	}
	if !f.ExpiredAt.IsZero() && !b.IsExpiredAt(f.ExpiredAt) {
		return false
	}
	if f.PoolIDs != nil {
		found := false
		for _, id := range f.PoolIDs {
			if id == b.PoolID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
