package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"parkease-api-go/internal/auth"
)

// probePaths are logged at debug level only.
var probePaths = map[string]bool{
	"/api/v1/health":  true,
	"/api/v1/ready":   true,
	"/api/v1/metrics": true,
}

// Logger returns a middleware that logs HTTP requests
func Logger(logger *zap.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			path := r.URL.Path

			if probePaths[path] {
				logger.Debug("HTTP request",
					zap.String("method", r.Method),
					zap.String("path", path),
					zap.Int("status", wrapped.statusCode),
					zap.Duration("duration", duration),
				)
				return
			}

			logger.Info("HTTP request",
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", path),
				zap.String("actor_id", r.Header.Get(auth.HeaderActorID)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", duration),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
