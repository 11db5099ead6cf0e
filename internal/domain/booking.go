package domain

import (
	"strings"
	"time"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// Transition names an edge of the booking state machine.
type Transition string

const (
	TransitionCancel   Transition = "cancel"
	TransitionComplete Transition = "complete"
)

// Trigger identifies who drove a completion.
type Trigger string

const (
	TriggerClient  Trigger = "client"
	TriggerSweeper Trigger = "sweeper"
)

type transitionRule struct {
	to           BookingStatus
	releasesUnit bool
}

// transitions is the single source of truth for allowed booking moves.
// A state with no outgoing edges is terminal.
var transitions = map[BookingStatus]map[Transition]transitionRule{
	StatusConfirmed: {
		TransitionCancel:   {to: StatusCancelled, releasesUnit: true},
		TransitionComplete: {to: StatusCompleted, releasesUnit: true},
	},
	StatusCancelled: {},
	StatusCompleted: {},
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s BookingStatus) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// HoldsUnit reports whether a booking in this state occupies a pool unit.
func (s BookingStatus) HoldsUnit() bool {
	return s == StatusConfirmed
}

// Next resolves transition t from s. It returns the target state and whether
// the move must give a unit back to the pool.
func (s BookingStatus) Next(t Transition) (BookingStatus, bool, error) {
	rules, known := transitions[s]
	if !known {
		return "", false, ErrInvalidTransition.WithMessage("unknown booking status " + string(s))
	}
	if len(rules) == 0 {
		return "", false, ErrAlreadyTerminal.WithMessage("booking is already " + string(s))
	}
	rule, ok := rules[t]
	if !ok {
		return "", false, ErrInvalidTransition.WithMessage("cannot " + string(t) + " a " + string(s) + " booking")
	}
	return rule.to, rule.releasesUnit, nil
}

// Booking is a time-bounded reservation of one unit in a pool.
type Booking struct {
	ID          string        `json:"id" db:"id"`
	RequesterID string        `json:"requester_id" db:"requester_id"`
	PoolID      string        `json:"pool_id" db:"pool_id"`
	StartTime   time.Time     `json:"start_time" db:"start_time"`
	EndTime     time.Time     `json:"end_time" db:"end_time"`
	VehicleID   string        `json:"vehicle_id" db:"vehicle_id"`
	TotalCost   float64       `json:"total_cost" db:"total_cost"`
	Status      BookingStatus `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// IsActiveAt reports whether the booking still blocks its vehicle at now.
func (b *Booking) IsActiveAt(now time.Time) bool {
	return b.Status == StatusConfirmed && b.EndTime.After(now)
}

// IsExpiredAt reports whether the sweeper should complete the booking.
func (b *Booking) IsExpiredAt(now time.Time) bool {
	return b.Status == StatusConfirmed && b.EndTime.Before(now)
}

// Clone returns a copy safe to mutate.
func (b *Booking) Clone() *Booking {
	c := *b
	return &c
}

// BookingRequest is the input to booking creation.
type BookingRequest struct {
	RequesterID string
	PoolID      string
	VehicleID   string
	Window      TimeWindow
}

// Validate validates the identifying fields of a booking request
func (r *BookingRequest) Validate() error {
	if strings.TrimSpace(r.RequesterID) == "" {
		return ErrMissingField.WithMessage("requester_id is required")
	}
	if strings.TrimSpace(r.PoolID) == "" {
		return ErrMissingField.WithMessage("pool_id is required")
	}
	if strings.TrimSpace(r.VehicleID) == "" {
		return ErrMissingField.WithMessage("vehicle_id is required")
	}
	return r.Window.Validate()
}

// TimeWindow is a half-open [Start, End) reservation interval.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// ParseTimeWindow parses RFC 3339 timestamps.
func ParseTimeWindow(start, end string) (TimeWindow, error) {
	if start == "" || end == "" {
		return TimeWindow{}, ErrMissingField.WithMessage("start_time and end_time are required")
	}
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return TimeWindow{}, ErrInvalidTimeWindow.WithMessage("invalid start_time format")
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return TimeWindow{}, ErrInvalidTimeWindow.WithMessage("invalid end_time format")
	}
	w := TimeWindow{Start: s, End: e}
	return w, w.Validate()
}

// Validate checks End > Start.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return ErrInvalidTimeWindow.WithMessage("start_time and end_time are required")
	}
	if !w.End.After(w.Start) {
		return ErrInvalidTimeWindow
	}
	return nil
}

// Hours is the window length in fractional hours.
func (w TimeWindow) Hours() float64 {
	return w.End.Sub(w.Start).Hours()
}

// Cost prices the window at pricePerHour.
func (w TimeWindow) Cost(pricePerHour float64) float64 {
	return w.Hours() * pricePerHour
}
