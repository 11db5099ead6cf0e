package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"parkease-api-go/internal/auth"
	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/models"
)

const (
	codeInternal    = "INTERNAL"
	codeInvalidBody = "INVALID_BODY"
)

var kindStatus = map[domain.Kind]int{
	domain.KindValidation:    http.StatusBadRequest,
	domain.KindConflict:      http.StatusConflict,
	domain.KindCapacity:      http.StatusConflict,
	domain.KindAuthorization: http.StatusForbidden,
	domain.KindState:         http.StatusConflict,
	domain.KindNotFound:      http.StatusNotFound,
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondWithError sends an error JSON response
func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondWithJSON(w, status, models.ErrorResponse{Error: message, Code: code})
}

// respondWithDomainError maps err to its HTTP status. Anything that is not a
// domain error is logged and reported as a generic 500.
func respondWithDomainError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if de, ok := domain.AsError(err); ok {
		status, known := kindStatus[de.Kind]
		if known {
			respondWithError(w, status, de.Code, de.Message)
			return
		}
	}

	logger.Error("request failed", zap.Error(err))
	respondWithError(w, http.StatusInternalServerError, codeInternal, "internal server error")
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondBadBody reports a body that is not valid JSON for the endpoint.
func respondBadBody(w http.ResponseWriter) {
	respondWithError(w, http.StatusBadRequest, codeInvalidBody, "invalid request body")
}

// actorOf returns the authenticated actor, writing 401 when absent.
func actorOf(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "UNAUTHENTICATED", auth.ErrUnauthenticated.Error())
	}
	return actor, ok
}

// ownerOf is actorOf restricted to the owner role.
func ownerOf(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := actorOf(w, r)
	if !ok {
		return actor, false
	}
	if !actor.IsOwner() {
		respondWithError(w, http.StatusForbidden, domain.ErrForbidden.Code, "only pool owners may manage pools")
		return actor, false
	}
	return actor, true
}
