package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/models"
)

// BookingService is the booking surface of the engine.
type BookingService interface {
	CreateBooking(ctx context.Context, req domain.BookingRequest) (*domain.Booking, error)
	CancelBooking(ctx context.Context, actorID, bookingID string) (*domain.Booking, error)
	CompleteBooking(ctx context.Context, bookingID string, trigger domain.Trigger, actorID string) (*domain.Booking, error)
	ListBookingsForActor(ctx context.Context, actor domain.Actor) ([]*domain.Booking, error)
	GetBooking(ctx context.Context, actor domain.Actor, bookingID string) (*domain.Booking, error)
}

// BookingHandler handles booking endpoints
type BookingHandler struct {
	bookings BookingService
	logger   *zap.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingService, logger *zap.Logger) *BookingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingHandler{
		bookings: bookings,
		logger:   logger,
	}
}

// Create handles POST /api/v1/bookings
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode create booking request", zap.Error(err))
		respondBadBody(w)
		return
	}

	window, err := domain.ParseTimeWindow(req.StartTime, req.EndTime)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	b, err := h.bookings.CreateBooking(r.Context(), domain.BookingRequest{
		RequesterID: actor.ID,
		PoolID:      req.PoolID,
		VehicleID:   req.VehicleID,
		Window:      window,
	})
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, b)
}

// List handles GET /api/v1/bookings
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	bookings, err := h.bookings.ListBookingsForActor(r.Context(), actor)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	if bookings == nil {
		bookings = []*domain.Booking{}
	}
	respondWithJSON(w, http.StatusOK, models.BookingListResponse{Bookings: bookings})
}

// Get handles GET /api/v1/bookings/{id}
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	b, err := h.bookings.GetBooking(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, b)
}

// Cancel handles PATCH /api/v1/bookings/{id}/cancel
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	b, err := h.bookings.CancelBooking(r.Context(), actor.ID, chi.URLParam(r, "id"))
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, b)
}

// Complete handles PATCH /api/v1/bookings/{id}/complete
func (h *BookingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	b, err := h.bookings.CompleteBooking(r.Context(), chi.URLParam(r, "id"), domain.TriggerClient, actor.ID)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, b)
}
