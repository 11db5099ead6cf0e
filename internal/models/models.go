package models

import (
	"time"

	"parkease-api-go/internal/domain"
)

type CreatePoolRequest struct {
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	PricePerHour float64 `json:"price_per_hour"`
	Description  string  `json:"description,omitempty"`
	TotalUnits   int     `json:"total_units"`
}

// UpdatePoolRequest carries optional edits; omitted fields are unchanged.
type UpdatePoolRequest struct {
	Name         *string  `json:"name,omitempty"`
	Address      *string  `json:"address,omitempty"`
	PricePerHour *float64 `json:"price_per_hour,omitempty"`
	Description  *string  `json:"description,omitempty"`
	TotalUnits   *int     `json:"total_units,omitempty"`
}

type ReviseCapacityRequest struct {
	TotalUnits *int `json:"total_units"`
}

type SetPoolActiveRequest struct {
	IsActive *bool `json:"is_active"`
}

// CreateBookingRequest uses RFC 3339 timestamps for the window.
type CreateBookingRequest struct {
	PoolID    string `json:"pool_id"`
	VehicleID string `json:"vehicle_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type PoolResponse struct {
	*domain.Pool
	IsAvailable bool `json:"is_available"`
}

type PoolListResponse struct {
	Pools []PoolResponse `json:"pools"`
}

type BookingListResponse struct {
	Bookings []*domain.Booking `json:"bookings"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type StatusResponse struct {
	Status    string    `json:"status"`
	IsLeader  bool      `json:"is_leader"`
	Store     string    `json:"store"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPoolResponse decorates p with its derived fields.
func NewPoolResponse(p *domain.Pool) PoolResponse {
	return PoolResponse{Pool: p, IsAvailable: p.IsAvailable()}
}
