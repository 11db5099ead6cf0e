package booking

import (
	"context"
	"sort"

	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/store"
)

// statusOrder ranks statuses for the owner booking list.
var statusOrder = map[domain.BookingStatus]int{
	domain.StatusConfirmed: 0,
	domain.StatusCompleted: 1,
	domain.StatusCancelled: 2,
}

// ListPoolsForActor returns an owner's own pools, or every active pool for a user.
func (e *Engine) ListPoolsForActor(ctx context.Context, actor domain.Actor) ([]*domain.Pool, error) {
	f := store.PoolFilter{ActiveOnly: true}
	if actor.IsOwner() {
		f = store.PoolFilter{OwnerID: actor.ID}
	}
	pools, err := e.store.ListPools(ctx, f)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pools, func(i, j int) bool {
		return pools[i].CreatedAt.After(pools[j].CreatedAt)
	})
	return pools, nil
}

// GetPool returns a pool visible to actor: any active pool, or any pool the
// actor owns.
func (e *Engine) GetPool(ctx context.Context, actor domain.Actor, poolID string) (*domain.Pool, error) {
	p, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive && p.OwnerID != actor.ID {
		return nil, domain.ErrPoolNotFound
	}
	return p, nil
}

// ListBookingsForActor returns a user's own bookings newest first, or for an
// owner every booking across their pools grouped by status. Bookings of
// deleted pools are left out of both lists.
func (e *Engine) ListBookingsForActor(ctx context.Context, actor domain.Actor) ([]*domain.Booking, error) {
	if !actor.IsOwner() {
		bookings, err := e.store.ListBookings(ctx, store.BookingFilter{RequesterID: actor.ID})
		if err != nil {
			return nil, err
		}
		bookings, err = e.dropOrphaned(ctx, bookings)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(bookings, func(i, j int) bool {
			return bookings[i].StartTime.After(bookings[j].StartTime)
		})
		return bookings, nil
	}

	pools, err := e.store.ListPools(ctx, store.PoolFilter{OwnerID: actor.ID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(pools))
	for _, p := range pools {
		ids = append(ids, p.ID)
	}
	bookings, err := e.store.ListBookings(ctx, store.BookingFilter{PoolIDs: ids})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(bookings, func(i, j int) bool {
		si, sj := statusOrder[bookings[i].Status], statusOrder[bookings[j].Status]
		if si != sj {
			return si < sj
		}
		return bookings[i].StartTime.After(bookings[j].StartTime)
	})
	return bookings, nil
}

// dropOrphaned removes bookings whose pool has been deleted.
func (e *Engine) dropOrphaned(ctx context.Context, bookings []*domain.Booking) ([]*domain.Booking, error) {
	if len(bookings) == 0 {
		return bookings, nil
	}
	pools, err := e.store.ListPools(ctx, store.PoolFilter{})
	if err != nil {
		return nil, err
	}
	exists := make(map[string]struct{}, len(pools))
	for _, p := range pools {
		exists[p.ID] = struct{}{}
	}
	kept := bookings[:0]
	for _, b := range bookings {
		if _, ok := exists[b.PoolID]; ok {
			kept = append(kept, b)
		}
	}
	return kept, nil
}

// GetBooking returns a booking to its requester or the owner of its pool.
func (e *Engine) GetBooking(ctx context.Context, actor domain.Actor, bookingID string) (*domain.Booking, error) {
	b, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.RequesterID == actor.ID {
		return b, nil
	}
	if actor.IsOwner() {
		p, err := e.store.GetPool(ctx, b.PoolID)
		if err == nil && p.OwnerID == actor.ID {
			return b, nil
		}
	}
	return nil, domain.ErrForbidden.WithMessage("not authorized to view this booking")
}

// ExpiredBookings lists confirmed bookings whose end time is before now.
func (e *Engine) ExpiredBookings(ctx context.Context) ([]*domain.Booking, error) {
	return e.store.ListBookings(ctx, store.BookingFilter{
		ExpiredAt: e.clock.Now(),
	})
}

// Ping checks the backing store.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}
