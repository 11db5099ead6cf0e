package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"parkease-api-go/internal/auth"
)

// LimiterStore keeps one token bucket per key and forgets idle keys.
type LimiterStore struct {
	mu           sync.Mutex
	entries      map[string]*limiterEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLimiterStore creates a store allowing rps requests per second per key
// with the given burst.
func NewLimiterStore(rps float64, burst int) *LimiterStore {
	return &LimiterStore{
		entries:      make(map[string]*limiterEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
}

// Allow consumes one token for key.
func (s *LimiterStore) Allow(key string) bool {
	now := s.now()

	s.mu.Lock()
	ent, ok := s.entries[key]
	if !ok {
		ent = &limiterEntry{lim: rate.NewLimiter(s.rps, s.burst)}
		s.entries[key] = ent
	}
	ent.lastSeen = now
	s.mu.Unlock()

	return ent.lim.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (s *LimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Cleanup drops keys not seen within the idle TTL.
func (s *LimiterStore) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor runs Cleanup periodically until ctx is done.
func (s *LimiterStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// RateLimit rejects requests over the per-actor budget with 429. Requests
// without an actor in context are keyed by remote address.
func RateLimit(store *LimiterStore, logger *zap.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if actor, ok := auth.ActorFrom(r.Context()); ok {
				key = "actor:" + actor.ID
			}

			if !store.Allow(key) {
				RateLimitedTotal.Inc()
				logger.Warn("rate limit exceeded",
					zap.String("key", key),
					zap.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
