// Package sweeper runs the background expiry loop that completes confirmed
// bookings once their end time has passed, plus a slower capacity audit.
// When leader election is enabled only the leader replica sweeps.
package sweeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"parkease-api-go/internal/api/middleware"
	"parkease-api-go/internal/config"
	"parkease-api-go/internal/domain"
)

// Engine is the subset of the booking engine the sweeper drives.
type Engine interface {
	ExpiredBookings(ctx context.Context) ([]*domain.Booking, error)
	CompleteBooking(ctx context.Context, bookingID string, trigger domain.Trigger, actorID string) (*domain.Booking, error)
	AuditPools(ctx context.Context) (int, error)
}

// TickResult summarizes one sweep.
type TickResult struct {
	Found     int
	Completed int
	Skipped   int
	Failed    int
}

// Sweeper completes expired bookings on a fixed interval.
type Sweeper struct {
	engine    Engine
	k8sClient kubernetes.Interface
	config    *config.Config
	logger    *zap.Logger
	isLeader  atomic.Bool

	restartBackoff   time.Duration
	onLostLeadership func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a sweeper. k8sClient may be nil when leader election is disabled.
func New(engine Engine, k8sClient kubernetes.Interface, cfg *config.Config, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		engine:           engine,
		k8sClient:        k8sClient,
		config:           cfg,
		logger:           logger,
		restartBackoff:   time.Second,
		onLostLeadership: signalShutdown,
	}
}

// IsLeader returns true if this instance is currently sweeping.
func (s *Sweeper) IsLeader() bool {
	return s.isLeader.Load()
}

// Start runs the sweeper in the background until Stop is called or ctx is
// cancelled. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		if err := s.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("sweeper exited", zap.Error(err))
		}
	}()
}

// Stop stops scheduling new ticks and waits for an in-flight tick to finish
// or for ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		s.logger.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLeaderWorkload runs the sweep and audit loops until ctx is cancelled.
func (s *Sweeper) runLeaderWorkload(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.safeGo(ctx, "expirySweep", func() { s.runSweepLoop(ctx) })
	}()

	if s.config.AuditInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.safeGo(ctx, "capacityAudit", func() { s.runAuditLoop(ctx) })
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// runSweepLoop sweeps once immediately, then on every tick.
func (s *Sweeper) runSweepLoop(ctx context.Context) {
	s.logger.Info("Expiry sweeper started", zap.Duration("interval", s.config.SweepInterval))

	s.sweep(ctx)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one tick detached from ctx so shutdown lets it finish; the
// tick is bounded by SweepTickTimeout instead.
func (s *Sweeper) sweep(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.tickTimeout())
	defer cancel()
	s.Tick(tickCtx)
}

// Tick completes every confirmed booking whose end time has passed. Each
// booking is handled independently; failures are logged and skipped.
func (s *Sweeper) Tick(ctx context.Context) TickResult {
	middleware.SweeperRunsTotal.Inc()

	var result TickResult
	expired, err := s.engine.ExpiredBookings(ctx)
	if err != nil {
		s.logger.Error("failed to list expired bookings", zap.Error(err))
		return result
	}
	result.Found = len(expired)

	for _, b := range expired {
		if ctx.Err() != nil {
			s.logger.Warn("sweep tick timed out, deferring remaining bookings",
				zap.Int("remaining", result.Found-result.Completed-result.Skipped-result.Failed),
			)
			break
		}

		_, err := s.engine.CompleteBooking(ctx, b.ID, domain.TriggerSweeper, "")
		switch {
		case err == nil:
			result.Completed++
			middleware.SweeperCompletedTotal.Inc()
		case errors.Is(err, domain.ErrAlreadyTerminal), errors.Is(err, domain.ErrNotFound):
			// Cancelled or completed by a client since the listing.
			result.Skipped++
		default:
			result.Failed++
			middleware.SweeperFailuresTotal.Inc()
			s.logger.Warn("failed to complete expired booking",
				zap.String("booking_id", b.ID),
				zap.String("pool_id", b.PoolID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Expiry sweep finished",
		zap.Int("found", result.Found),
		zap.Int("completed", result.Completed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result
}

// runAuditLoop periodically repairs pool counters that drifted from the
// confirmed booking count.
func (s *Sweeper) runAuditLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.AuditInterval)
	defer ticker.Stop()

	s.logger.Info("Capacity audit started", zap.Duration("interval", s.config.AuditInterval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Capacity audit stopped")
			return
		case <-ticker.C:
			auditCtx, cancel := context.WithTimeout(ctx, s.tickTimeout())
			repaired, err := s.engine.AuditPools(auditCtx)
			cancel()
			if err != nil {
				s.logger.Warn("capacity audit failed", zap.Error(err))
				continue
			}
			if repaired > 0 {
				s.logger.Error("capacity audit repaired drifted pools", zap.Int("repaired", repaired))
			}
		}
	}
}

func (s *Sweeper) tickTimeout() time.Duration {
	if s.config.SweepTickTimeout > 0 {
		return s.config.SweepTickTimeout
	}
	return s.config.SweepInterval
}

// safeGo wraps a goroutine function with panic recovery, logging, and
// automatic restart with exponential backoff.  If the function panics or
// returns, it is restarted after an increasing delay (capped at 30s).
// The loop exits only when ctx is cancelled.
func (s *Sweeper) safeGo(ctx context.Context, name string, fn func()) {
	const maxBackoff = 30 * time.Second
	backoff := s.restartBackoff

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					middleware.PanicsRecoveredTotal.Inc()
					s.logger.Error("background goroutine panicked, restarting",
						zap.String("goroutine", name),
						zap.Any("panic", r),
						zap.Duration("backoff", backoff),
					)
				}
			}()
			fn()
		}()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			s.logger.Info("restarting background goroutine",
				zap.String("goroutine", name),
			)
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
