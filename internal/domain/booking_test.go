package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingTransitions(t *testing.T) {
	tests := []struct {
		name       string
		from       BookingStatus
		transition Transition
		expectTo   BookingStatus
		expectUnit bool
		expectErr  error
	}{
		{
			name:       "confirmed to cancelled",
			from:       StatusConfirmed,
			transition: TransitionCancel,
			expectTo:   StatusCancelled,
			expectUnit: true,
		},
		{
			name:       "confirmed to completed",
			from:       StatusConfirmed,
			transition: TransitionComplete,
			expectTo:   StatusCompleted,
			expectUnit: true,
		},
		{
			name:       "cancelled is terminal",
			from:       StatusCancelled,
			transition: TransitionComplete,
			expectErr:  ErrAlreadyTerminal,
		},
		{
			name:       "completed is terminal",
			from:       StatusCompleted,
			transition: TransitionCancel,
			expectErr:  ErrAlreadyTerminal,
		},
		{
			name:       "unknown transition",
			from:       StatusConfirmed,
			transition: Transition("extend"),
			expectErr:  ErrInvalidTransition,
		},
		{
			name:       "unknown status",
			from:       BookingStatus("pending"),
			transition: TransitionCancel,
			expectErr:  ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			to, releases, err := tt.from.Next(tt.transition)
			if tt.expectErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectTo, to)
			assert.Equal(t, tt.expectUnit, releases)
		})
	}
}

func TestBookingStatusPredicates(t *testing.T) {
	assert.False(t, StatusConfirmed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, BookingStatus("bogus").IsTerminal())

	assert.True(t, StatusConfirmed.HoldsUnit())
	assert.False(t, StatusCompleted.HoldsUnit())
}

func TestBookingActivity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := &Booking{
		Status:    StatusConfirmed,
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	}

	assert.True(t, b.IsActiveAt(now))
	assert.False(t, b.IsExpiredAt(now))

	b.EndTime = now
	assert.False(t, b.IsActiveAt(now), "endTime == now no longer blocks the vehicle")
	assert.False(t, b.IsExpiredAt(now), "endTime == now is not yet swept")

	b.EndTime = now.Add(-time.Minute)
	assert.True(t, b.IsExpiredAt(now))

	b.Status = StatusCancelled
	assert.False(t, b.IsExpiredAt(now))
	assert.False(t, b.IsActiveAt(now.Add(-2*time.Hour)))
}

func TestParseTimeWindow(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		expectErr error
		hours     float64
	}{
		{
			name:  "two hour window",
			start: "2026-03-01T10:00:00Z",
			end:   "2026-03-01T12:00:00Z",
			hours: 2,
		},
		{
			name:  "offsets are honoured",
			start: "2026-03-01T10:00:00+02:00",
			end:   "2026-03-01T09:30:00Z",
			hours: 1.5,
		},
		{
			name:      "missing end",
			start:     "2026-03-01T10:00:00Z",
			expectErr: ErrMissingField,
		},
		{
			name:      "garbage start",
			start:     "tomorrow",
			end:       "2026-03-01T12:00:00Z",
			expectErr: ErrInvalidTimeWindow,
		},
		{
			name:      "end equals start",
			start:     "2026-03-01T10:00:00Z",
			end:       "2026-03-01T10:00:00Z",
			expectErr: ErrInvalidTimeWindow,
		},
		{
			name:      "end before start",
			start:     "2026-03-01T12:00:00Z",
			end:       "2026-03-01T10:00:00Z",
			expectErr: ErrInvalidTimeWindow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ParseTimeWindow(tt.start, tt.end)
			if tt.expectErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.hours, w.Hours(), 1e-9)
		})
	}
}

func TestTimeWindowCost(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	w := TimeWindow{Start: start, End: start.Add(90 * time.Minute)}

	assert.InDelta(t, 6.0, w.Cost(4), 1e-9)
	assert.InDelta(t, 0.0, w.Cost(0), 1e-9)
}

func TestBookingRequestValidate(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	req := BookingRequest{
		RequesterID: "u1",
		PoolID:      "p1",
		VehicleID:   "KA-01-1234",
		Window:      TimeWindow{Start: start, End: start.Add(time.Hour)},
	}
	require.NoError(t, req.Validate())

	noVehicle := req
	noVehicle.VehicleID = ""
	assert.ErrorIs(t, noVehicle.Validate(), ErrMissingField)

	inverted := req
	inverted.Window = TimeWindow{Start: start, End: start.Add(-time.Hour)}
	assert.ErrorIs(t, inverted.Validate(), ErrInvalidTimeWindow)
}
