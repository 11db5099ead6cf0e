package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"parkease-api-go/internal/booking"
	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/models"
)

// PoolService is the pool lifecycle surface of the booking engine.
type PoolService interface {
	CreatePool(ctx context.Context, ownerID string, in booking.PoolInput) (*domain.Pool, error)
	UpdatePool(ctx context.Context, ownerID, poolID string, upd domain.PoolUpdate) (*domain.Pool, error)
	ReviseCapacity(ctx context.Context, ownerID, poolID string, newTotal int) (*domain.Pool, error)
	SetPoolActive(ctx context.Context, ownerID, poolID string, active bool) (*domain.Pool, error)
	DeletePool(ctx context.Context, ownerID, poolID string) error
	ListPoolsForActor(ctx context.Context, actor domain.Actor) ([]*domain.Pool, error)
	GetPool(ctx context.Context, actor domain.Actor, poolID string) (*domain.Pool, error)
}

// PoolHandler handles parking pool endpoints
type PoolHandler struct {
	pools  PoolService
	logger *zap.Logger
}

// NewPoolHandler creates a new pool handler
func NewPoolHandler(pools PoolService, logger *zap.Logger) *PoolHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolHandler{
		pools:  pools,
		logger: logger,
	}
}

// List handles GET /api/v1/pools
func (h *PoolHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	pools, err := h.pools.ListPoolsForActor(r.Context(), actor)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}

	resp := models.PoolListResponse{Pools: make([]models.PoolResponse, 0, len(pools))}
	for _, p := range pools {
		resp.Pools = append(resp.Pools, models.NewPoolResponse(p))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/pools/{id}
func (h *PoolHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(w, r)
	if !ok {
		return
	}

	p, err := h.pools.GetPool(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewPoolResponse(p))
}

// Create handles POST /api/v1/pools
func (h *PoolHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := ownerOf(w, r)
	if !ok {
		return
	}

	var req models.CreatePoolRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode create pool request", zap.Error(err))
		respondBadBody(w)
		return
	}

	p, err := h.pools.CreatePool(r.Context(), actor.ID, booking.PoolInput{
		Name:         req.Name,
		Address:      req.Address,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		PricePerHour: req.PricePerHour,
		Description:  req.Description,
		TotalUnits:   req.TotalUnits,
	})
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, models.NewPoolResponse(p))
}

// Update handles PUT /api/v1/pools/{id}
func (h *PoolHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := ownerOf(w, r)
	if !ok {
		return
	}

	var req models.UpdatePoolRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode update pool request", zap.Error(err))
		respondBadBody(w)
		return
	}

	p, err := h.pools.UpdatePool(r.Context(), actor.ID, chi.URLParam(r, "id"), domain.PoolUpdate{
		Name:         req.Name,
		Address:      req.Address,
		PricePerHour: req.PricePerHour,
		Description:  req.Description,
		TotalUnits:   req.TotalUnits,
	})
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewPoolResponse(p))
}

// ReviseCapacity handles PUT /api/v1/pools/{id}/capacity
func (h *PoolHandler) ReviseCapacity(w http.ResponseWriter, r *http.Request) {
	actor, ok := ownerOf(w, r)
	if !ok {
		return
	}

	var req models.ReviseCapacityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode capacity request", zap.Error(err))
		respondBadBody(w)
		return
	}
	if req.TotalUnits == nil {
		respondWithError(w, http.StatusBadRequest, domain.ErrMissingField.Code, "total_units is required")
		return
	}

	p, err := h.pools.ReviseCapacity(r.Context(), actor.ID, chi.URLParam(r, "id"), *req.TotalUnits)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewPoolResponse(p))
}

// SetActive handles PATCH /api/v1/pools/{id}/active
func (h *PoolHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := ownerOf(w, r)
	if !ok {
		return
	}

	var req models.SetPoolActiveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode pool status request", zap.Error(err))
		respondBadBody(w)
		return
	}
	if req.IsActive == nil {
		respondWithError(w, http.StatusBadRequest, domain.ErrMissingField.Code, "is_active is required")
		return
	}

	p, err := h.pools.SetPoolActive(r.Context(), actor.ID, chi.URLParam(r, "id"), *req.IsActive)
	if err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewPoolResponse(p))
}

// Delete handles DELETE /api/v1/pools/{id}
func (h *PoolHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := ownerOf(w, r)
	if !ok {
		return
	}

	if err := h.pools.DeletePool(r.Context(), actor.ID, chi.URLParam(r, "id")); err != nil {
		respondWithDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
