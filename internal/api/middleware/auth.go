package middleware

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"parkease-api-go/internal/auth"
	"parkease-api-go/internal/models"
)

// Authenticate resolves the caller and stores it in the request context.
// Requests without a valid actor get 401. Paths in skip bypass the check.
func Authenticate(resolver auth.Resolver, logger *zap.Logger, skip ...string) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	open := make(map[string]bool, len(skip))
	for _, p := range skip {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := resolver.Resolve(r)
			if err != nil {
				logger.Debug("unauthenticated request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: message, Code: code})
}
