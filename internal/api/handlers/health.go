package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"parkease-api-go/internal/models"
)

// Pinger is a dependency that must be reachable for the instance to serve.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LeaderChecker reports whether this instance runs the sweeper.
type LeaderChecker interface {
	IsLeader() bool
}

// HealthHandler handles health and readiness checks
type HealthHandler struct {
	store  Pinger
	redis  Pinger
	leader LeaderChecker
	logger *zap.Logger
	now    func() time.Time
}

// NewHealthHandler creates a new health handler. redis and leader may be nil.
func NewHealthHandler(store, redis Pinger, leader LeaderChecker, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		store:  store,
		redis:  redis,
		leader: leader,
		logger: logger,
		now:    time.Now,
	}
}

// HandleHealth handles GET /api/v1/health (liveness probe)
// Returns 200 unconditionally. Liveness must not depend on the store or
// Redis, otherwise an outage cascades into pod restarts.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, models.HealthResponse{Status: "ok"})
}

// HandleReady handles GET /api/v1/ready (readiness probe)
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Error("readiness check failed: store unavailable", zap.Error(err))
		respondWithError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "service unavailable")
		return
	}
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			h.logger.Error("readiness check failed: redis unavailable", zap.Error(err))
			respondWithError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "service unavailable")
			return
		}
	}

	resp := models.StatusResponse{
		Status:    "ready",
		Store:     "ok",
		Timestamp: h.now().UTC(),
	}
	if h.leader != nil {
		resp.IsLeader = h.leader.IsLeader()
	}
	respondWithJSON(w, http.StatusOK, resp)
}
