package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"parkease-api-go/internal/domain"
)

func TestListPoolsForActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.pool(t, "owner-1", 1)
	f.clock.Advance(time.Minute)
	second := f.pool(t, "owner-1", 1)
	other := f.pool(t, "owner-2", 1)
	_, err := f.engine.SetPoolActive(ctx, "owner-2", other.ID, false)
	require.NoError(t, err)

	owned, err := f.engine.ListPoolsForActor(ctx, domain.Actor{ID: "owner-1", Role: domain.RoleOwner})
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, second.ID, owned[0].ID, "newest first")
	assert.Equal(t, first.ID, owned[1].ID)

	visible, err := f.engine.ListPoolsForActor(ctx, domain.Actor{ID: "user", Role: domain.RoleUser})
	require.NoError(t, err)
	assert.Len(t, visible, 2, "inactive pools are hidden from users")

	_, err = f.engine.GetPool(ctx, domain.Actor{ID: "user", Role: domain.RoleUser}, other.ID)
	assert.ErrorIs(t, err, domain.ErrPoolNotFound)

	got, err := f.engine.GetPool(ctx, domain.Actor{ID: "owner-2", Role: domain.RoleOwner}, other.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestListBookingsForActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pool(t, "owner", 5)
	otherPool := f.pool(t, "someone-else", 5)

	early := request("user", p.ID, "A")
	late := request("user", p.ID, "B")
	late.Window.Start = late.Window.Start.Add(time.Hour)
	late.Window.End = late.Window.End.Add(time.Hour)

	b1, err := f.engine.CreateBooking(ctx, early)
	require.NoError(t, err)
	b2, err := f.engine.CreateBooking(ctx, late)
	require.NoError(t, err)
	_, err = f.engine.CreateBooking(ctx, request("user-2", otherPool.ID, "C"))
	require.NoError(t, err)
	_, err = f.engine.CancelBooking(ctx, "user", b2.ID)
	require.NoError(t, err)

	mine, err := f.engine.ListBookingsForActor(ctx, domain.Actor{ID: "user", Role: domain.RoleUser})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, b2.ID, mine[0].ID, "newest start first")

	owners, err := f.engine.ListBookingsForActor(ctx, domain.Actor{ID: "owner", Role: domain.RoleOwner})
	require.NoError(t, err)
	require.Len(t, owners, 2)
	assert.Equal(t, b1.ID, owners[0].ID, "confirmed bookings first")
	assert.Equal(t, domain.StatusCancelled, owners[1].Status)

	none, err := f.engine.ListBookingsForActor(ctx, domain.Actor{ID: "new-owner", Role: domain.RoleOwner})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListBookingsOmitsDeletedPools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gone := f.pool(t, "owner", 2)
	kept := f.pool(t, "owner", 2)

	old, err := f.engine.CreateBooking(ctx, request("user", gone.ID, "A"))
	require.NoError(t, err)
	_, err = f.engine.CancelBooking(ctx, "user", old.ID)
	require.NoError(t, err)
	live, err := f.engine.CreateBooking(ctx, request("user", kept.ID, "B"))
	require.NoError(t, err)
	require.NoError(t, f.engine.DeletePool(ctx, "owner", gone.ID))

	tests := []struct {
		name  string
		actor domain.Actor
	}{
		{name: "user", actor: domain.Actor{ID: "user", Role: domain.RoleUser}},
		{name: "owner", actor: domain.Actor{ID: "owner", Role: domain.RoleOwner}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.engine.ListBookingsForActor(ctx, tt.actor)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, live.ID, got[0].ID)
		})
	}

	b, err := f.engine.GetBooking(ctx, domain.Actor{ID: "user", Role: domain.RoleUser}, old.ID)
	require.NoError(t, err, "history stays readable by id")
	assert.Equal(t, domain.StatusCancelled, b.Status)
}

func TestGetBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pool(t, "owner", 1)
	b, err := f.engine.CreateBooking(ctx, request("user", p.ID, "V"))
	require.NoError(t, err)

	tests := []struct {
		name      string
		actor     domain.Actor
		id        string
		expectErr error
	}{
		{name: "requester", actor: domain.Actor{ID: "user", Role: domain.RoleUser}, id: b.ID},
		{name: "pool owner", actor: domain.Actor{ID: "owner", Role: domain.RoleOwner}, id: b.ID},
		{name: "other owner", actor: domain.Actor{ID: "rival", Role: domain.RoleOwner}, id: b.ID, expectErr: domain.ErrForbidden},
		{name: "other user", actor: domain.Actor{ID: "user-2", Role: domain.RoleUser}, id: b.ID, expectErr: domain.ErrForbidden},
		{name: "missing", actor: domain.Actor{ID: "user", Role: domain.RoleUser}, id: "nope", expectErr: domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.engine.GetBooking(ctx, tt.actor, tt.id)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, b.ID, got.ID)
		})
	}
}

func TestExpiredBookings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pool(t, "owner", 3)
	b, err := f.engine.CreateBooking(ctx, request("user", p.ID, "V"))
	require.NoError(t, err)

	expired, err := f.engine.ExpiredBookings(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired)

	f.clock.Set(b.EndTime)
	expired, err = f.engine.ExpiredBookings(ctx)
	require.NoError(t, err)
	assert.Empty(t, expired, "endTime == now is not expired yet")

	f.clock.Set(b.EndTime.Add(time.Second))
	expired, err = f.engine.ExpiredBookings(ctx)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, b.ID, expired[0].ID)
}
