package domain

import (
	"fmt"
	"strings"
	"time"
)

// Pool is one parking facility offering TotalUnits interchangeable spots.
// AvailableUnits is only ever written by the capacity manager.
type Pool struct {
	ID             string    `json:"id" db:"id"`
	OwnerID        string    `json:"owner_id" db:"owner_id"`
	Name           string    `json:"name" db:"name"`
	Address        string    `json:"address" db:"address"`
	Latitude       float64   `json:"latitude" db:"latitude"`
	Longitude      float64   `json:"longitude" db:"longitude"`
	PricePerHour   float64   `json:"price_per_hour" db:"price_per_hour"`
	Description    string    `json:"description" db:"description"`
	TotalUnits     int       `json:"total_units" db:"total_units"`
	AvailableUnits int       `json:"available_units" db:"available_units"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// IsAvailable reports whether at least one unit is free.
func (p *Pool) IsAvailable() bool {
	return p.AvailableUnits > 0
}

// OccupiedUnits is the number of units held by confirmed bookings.
func (p *Pool) OccupiedUnits() int {
	return p.TotalUnits - p.AvailableUnits
}

// Validate validates owner-supplied pool data
func (p *Pool) Validate() error {
	if strings.TrimSpace(p.OwnerID) == "" {
		return ErrMissingField.WithMessage("owner_id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrMissingField.WithMessage("name is required")
	}
	if strings.TrimSpace(p.Address) == "" {
		return ErrMissingField.WithMessage("address is required")
	}
	if p.TotalUnits <= 0 {
		return ErrInvalidPool.WithMessage("total_units must be a positive integer")
	}
	if p.PricePerHour < 0 {
		return ErrInvalidPool.WithMessage("price_per_hour cannot be negative")
	}
	return nil
}

// CheckInvariant verifies the counters against the number of confirmed bookings.
func (p *Pool) CheckInvariant(confirmed int) error {
	if p.AvailableUnits < 0 || p.AvailableUnits > p.TotalUnits {
		return fmt.Errorf("pool %s: available_units %d outside [0, %d]", p.ID, p.AvailableUnits, p.TotalUnits)
	}
	if p.OccupiedUnits() != confirmed {
		return fmt.Errorf("pool %s: occupied units %d != confirmed bookings %d", p.ID, p.OccupiedUnits(), confirmed)
	}
	return nil
}

// Clone returns a copy safe to mutate.
func (p *Pool) Clone() *Pool {
	c := *p
	return &c
}

// PoolUpdate carries the owner-editable pool fields. Nil fields are left unchanged.
type PoolUpdate struct {
	Name         *string
	Address      *string
	PricePerHour *float64
	Description  *string
	TotalUnits   *int
}
