package booking

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"parkease-api-go/internal/api/middleware"
	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/store"
)

// PoolInput is the owner-supplied data for a new pool.
type PoolInput struct {
	Name         string
	Address      string
	Latitude     float64
	Longitude    float64
	PricePerHour float64
	Description  string
	TotalUnits   int
}

// CreatePool registers a new active pool with every unit free.
func (e *Engine) CreatePool(ctx context.Context, ownerID string, in PoolInput) (*domain.Pool, error) {
	now := e.clock.Now()
	p := &domain.Pool{
		ID:             e.newID(),
		OwnerID:        ownerID,
		Name:           strings.TrimSpace(in.Name),
		Address:        strings.TrimSpace(in.Address),
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		PricePerHour:   in.PricePerHour,
		Description:    in.Description,
		TotalUnits:     in.TotalUnits,
		AvailableUnits: in.TotalUnits,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := e.store.CreatePool(ctx, p); err != nil {
		return nil, err
	}

	e.logger.Info("pool created",
		zap.String("pool_id", p.ID),
		zap.String("owner_id", ownerID),
		zap.Int("total_units", p.TotalUnits),
	)
	return p, nil
}

// ReviseCapacity sets a pool's TotalUnits. It fails with
// domain.ErrCapacityBelowActive if newTotal is below the confirmed count.
func (e *Engine) ReviseCapacity(ctx context.Context, ownerID, poolID string, newTotal int) (*domain.Pool, error) {
	return e.UpdatePool(ctx, ownerID, poolID, domain.PoolUpdate{TotalUnits: &newTotal})
}

// UpdatePool applies owner edits. A TotalUnits change goes through the
// capacity manager in the same transaction as the other fields.
func (e *Engine) UpdatePool(ctx context.Context, ownerID, poolID string, upd domain.PoolUpdate) (*domain.Pool, error) {
	ctx, span := e.tracer.Start(ctx, "pool.update",
		trace.WithAttributes(attribute.String("pool.id", poolID)),
	)
	defer span.End()

	var result *domain.Pool
	err := e.store.InPool(ctx, poolID, func(tx store.Tx) error {
		pool, err := tx.Pool(ctx)
		if err != nil {
			return err
		}
		if pool.OwnerID != ownerID {
			return domain.ErrForbidden.WithMessage("only the pool owner may edit this pool")
		}

		if upd.TotalUnits != nil {
			if pool, err = e.capacity.Revise(ctx, tx, *upd.TotalUnits); err != nil {
				return err
			}
		}
		if upd.Name != nil {
			pool.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Address != nil {
			pool.Address = strings.TrimSpace(*upd.Address)
		}
		if upd.PricePerHour != nil {
			pool.PricePerHour = *upd.PricePerHour
		}
		if upd.Description != nil {
			pool.Description = *upd.Description
		}
		if err := pool.Validate(); err != nil {
			return err
		}
		pool.UpdatedAt = e.clock.Now()
		if err := tx.SavePool(ctx, pool); err != nil {
			return err
		}
		result = pool
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	e.logger.Info("pool updated",
		zap.String("pool_id", result.ID),
		zap.Int("total_units", result.TotalUnits),
		zap.Int("available_units", result.AvailableUnits),
	)
	return result, nil
}

// SetPoolActive toggles pool visibility. Deactivation is refused while the
// pool has confirmed bookings.
func (e *Engine) SetPoolActive(ctx context.Context, ownerID, poolID string, active bool) (*domain.Pool, error) {
	var result *domain.Pool
	err := e.store.InPool(ctx, poolID, func(tx store.Tx) error {
		pool, err := tx.Pool(ctx)
		if err != nil {
			return err
		}
		if pool.OwnerID != ownerID {
			return domain.ErrForbidden.WithMessage("only the pool owner may change pool status")
		}
		if !active {
			if err := e.requireNoActiveBookings(ctx, tx, "deactivate"); err != nil {
				return err
			}
		}

		pool.IsActive = active
		pool.UpdatedAt = e.clock.Now()
		if err := tx.SavePool(ctx, pool); err != nil {
			return err
		}
		result = pool
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("pool status changed",
		zap.String("pool_id", poolID),
		zap.Bool("is_active", active),
	)
	return result, nil
}

// DeletePool removes a pool with no confirmed bookings. Its terminal
// bookings are kept.
func (e *Engine) DeletePool(ctx context.Context, ownerID, poolID string) error {
	err := e.store.InPool(ctx, poolID, func(tx store.Tx) error {
		pool, err := tx.Pool(ctx)
		if err != nil {
			return err
		}
		if pool.OwnerID != ownerID {
			return domain.ErrForbidden.WithMessage("only the pool owner may delete this pool")
		}
		if err := e.requireNoActiveBookings(ctx, tx, "delete"); err != nil {
			return err
		}
		return tx.DeletePool(ctx)
	})
	if err != nil {
		return err
	}

	e.logger.Info("pool deleted", zap.String("pool_id", poolID))
	return nil
}

func (e *Engine) requireNoActiveBookings(ctx context.Context, tx store.Tx, action string) error {
	active, err := tx.CountConfirmed(ctx)
	if err != nil {
		return err
	}
	if active > 0 {
		return domain.ErrPoolHasActiveBookings.WithMessage("cannot " + action + " a parking pool with active bookings")
	}
	return nil
}

// AuditPools checks every pool's counters against its confirmed bookings
// and repairs drift. It returns the number of pools repaired and sets the
// active bookings gauge from the confirmed counts it saw.
func (e *Engine) AuditPools(ctx context.Context) (int, error) {
	pools, err := e.store.ListPools(ctx, store.PoolFilter{})
	if err != nil {
		return 0, err
	}

	repaired, confirmed := 0, 0
	for _, p := range pools {
		if ctx.Err() != nil {
			return repaired, ctx.Err()
		}
		err := e.store.InPool(ctx, p.ID, func(tx store.Tx) error {
			fixed, err := e.capacity.Audit(ctx, tx)
			if err != nil {
				return err
			}
			if fixed {
				repaired++
			}
			n, err := tx.CountConfirmed(ctx)
			if err != nil {
				return err
			}
			confirmed += n
			return nil
		})
		if err != nil && !errors.Is(err, domain.ErrPoolNotFound) {
			e.logger.Warn("pool audit failed",
				zap.String("pool_id", p.ID),
				zap.Error(err),
			)
		}
	}
	middleware.ActiveBookings.Set(float64(confirmed))
	return repaired, nil
}
