// Package capacity owns every write to a pool's unit counters. All methods
// take a store.Tx, so the caller already holds the pool's lock and the check
// and the write happen atomically.
package capacity

import (
	"context"

	"go.uber.org/zap"
	"parkease-api-go/internal/api/middleware"
	"parkease-api-go/internal/clock"
	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/store"
)

// Manager reserves, releases and revises pool units.
type Manager struct {
	clock  clock.Clock
	logger *zap.Logger
}

// NewManager creates a new capacity manager.
func NewManager(clk clock.Clock, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Manager{
		clock:  clk,
		logger: logger,
	}
}

// Reserve takes one unit from the locked pool. It fails with
// domain.ErrInsufficientCapacity when no unit is free.
func (m *Manager) Reserve(ctx context.Context, tx store.Tx) (*domain.Pool, error) {
	pool, err := tx.Pool(ctx)
	if err != nil {
		return nil, err
	}
	if pool.AvailableUnits <= 0 {
		return nil, domain.ErrInsufficientCapacity
	}

	pool.AvailableUnits--
	pool.UpdatedAt = m.clock.Now()
	if err := tx.SavePool(ctx, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// Release gives one unit back, never exceeding TotalUnits. A release that
// would overflow means the counters already drifted; it is logged and
// counted but does not fail the caller.
func (m *Manager) Release(ctx context.Context, tx store.Tx) (*domain.Pool, error) {
	pool, err := tx.Pool(ctx)
	if err != nil {
		return nil, err
	}

	if pool.AvailableUnits >= pool.TotalUnits {
		m.logger.Error("capacity invariant violated: release on a fully available pool",
			zap.String("pool_id", pool.ID),
			zap.Int("total_units", pool.TotalUnits),
			zap.Int("available_units", pool.AvailableUnits),
		)
		middleware.CapacityInvariantViolationsTotal.WithLabelValues("release").Inc()
		return pool, nil
	}

	pool.AvailableUnits++
	pool.UpdatedAt = m.clock.Now()
	if err := tx.SavePool(ctx, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// Revise sets TotalUnits to newTotal. The occupied count is recounted from
// confirmed bookings rather than carried over from the old counters.
func (m *Manager) Revise(ctx context.Context, tx store.Tx, newTotal int) (*domain.Pool, error) {
	if newTotal <= 0 {
		return nil, domain.ErrInvalidPool.WithMessage("total_units must be a positive integer")
	}

	pool, err := tx.Pool(ctx)
	if err != nil {
		return nil, err
	}
	active, err := tx.CountConfirmed(ctx)
	if err != nil {
		return nil, err
	}
	if newTotal < active {
		return nil, domain.ErrCapacityBelowActive
	}

	if pool.OccupiedUnits() != active {
		m.logger.Error("capacity invariant violated: occupied units drifted from confirmed bookings",
			zap.String("pool_id", pool.ID),
			zap.Int("occupied_units", pool.OccupiedUnits()),
			zap.Int("confirmed_bookings", active),
		)
		middleware.CapacityInvariantViolationsTotal.WithLabelValues("revise").Inc()
	}

	pool.TotalUnits = newTotal
	pool.AvailableUnits = newTotal - active
	pool.UpdatedAt = m.clock.Now()
	if err := tx.SavePool(ctx, pool); err != nil {
		return nil, err
	}
	return pool, nil
}

// Audit recomputes AvailableUnits from the confirmed booking count and
// repairs the pool if they disagree. It reports whether a repair was made.
func (m *Manager) Audit(ctx context.Context, tx store.Tx) (bool, error) {
	pool, err := tx.Pool(ctx)
	if err != nil {
		return false, err
	}
	active, err := tx.CountConfirmed(ctx)
	if err != nil {
		return false, err
	}
	if pool.CheckInvariant(active) == nil {
		return false, nil
	}

	want := pool.TotalUnits - active
	if want < 0 {
		want = 0
	}
	m.logger.Error("capacity invariant violated: repairing pool counters",
		zap.String("pool_id", pool.ID),
		zap.Int("total_units", pool.TotalUnits),
		zap.Int("available_units", pool.AvailableUnits),
		zap.Int("confirmed_bookings", active),
		zap.Int("repaired_available_units", want),
	)
	middleware.CapacityInvariantViolationsTotal.WithLabelValues("audit").Inc()

	pool.AvailableUnits = want
	pool.UpdatedAt = m.clock.Now()
	if err := tx.SavePool(ctx, pool); err != nil {
		return false, err
	}
	return true, nil
}
