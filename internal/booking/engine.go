// Package booking is the reservation engine: it creates bookings against
// pool capacity and drives every booking state transition.
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"parkease-api-go/internal/api/middleware"
	"parkease-api-go/internal/capacity"
	"parkease-api-go/internal/clock"
	"parkease-api-go/internal/conflict"
	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/lock"
	"parkease-api-go/internal/store"
)

// Engine implements booking creation, cancellation, completion and pool
// capacity management.
type Engine struct {
	store    store.Store
	capacity *capacity.Manager
	conflict *conflict.Policy
	vehicles lock.Locker
	clock    clock.Clock
	logger   *zap.Logger
	tracer   trace.Tracer
	newID    func() string
}

// NewEngine creates a new booking engine. vehicles queues same-vehicle
// requests before they reach the store, which makes the final exclusivity
// check under its own vehicle lock. It defaults to an in-process KeyedMutex.
func NewEngine(s store.Store, vehicles lock.Locker, clk clock.Clock, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if vehicles == nil {
		vehicles = lock.NewKeyedMutex()
	}
	return &Engine{
		store:    s,
		capacity: capacity.NewManager(clk, logger),
		conflict: conflict.NewPolicy(s, clk),
		vehicles: vehicles,
		clock:    clk,
		logger:   logger,
		tracer:   otel.Tracer("parkease/booking"),
		newID:    uuid.NewString,
	}
}

// CreateBooking reserves one unit in req.PoolID for req.VehicleID.
//
// Steps:
//  1. Validate the request and time window
//  2. Take the vehicle lock to queue requests for the same vehicle
//  3. Run the advisory conflict checks (pool eligibility, vehicle exclusivity)
//  4. In the pool transaction: re-check the vehicle under the store's vehicle
//     lock, reserve a unit, price the window, insert the booking
//
// Step 4 commits as one unit, so a failed insert never leaves a unit withheld,
// and exclusivity holds across replicas whatever the vehicle lock backend.
func (e *Engine) CreateBooking(ctx context.Context, req domain.BookingRequest) (*domain.Booking, error) {
	ctx, span := e.tracer.Start(ctx, "booking.create",
		trace.WithAttributes(
			attribute.String("pool.id", req.PoolID),
			attribute.String("requester.id", req.RequesterID),
		),
	)
	defer span.End()

	b, err := e.createBooking(ctx, req)
	if err != nil {
		outcome := outcomeFor(err)
		middleware.BookingsTotal.WithLabelValues(outcome).Inc()
		recordSpanError(span, err)
		if outcome == "error" {
			e.logger.Error("booking creation failed",
				zap.String("pool_id", req.PoolID),
				zap.String("vehicle_id", req.VehicleID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	middleware.BookingsTotal.WithLabelValues("confirmed").Inc()
	span.SetAttributes(attribute.String("booking.id", b.ID))
	e.logger.Info("booking confirmed",
		zap.String("booking_id", b.ID),
		zap.String("pool_id", b.PoolID),
		zap.String("vehicle_id", b.VehicleID),
		zap.Float64("total_cost", b.TotalCost),
	)
	return b, nil
}

func (e *Engine) createBooking(ctx context.Context, req domain.BookingRequest) (*domain.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock, err := e.vehicles.Lock(ctx, req.VehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire vehicle lock: %w", err)
	}
	defer unlock()

	if _, err := e.conflict.Check(ctx, req.PoolID, req.VehicleID, req.Window); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	b := &domain.Booking{
		ID:          e.newID(),
		RequesterID: req.RequesterID,
		PoolID:      req.PoolID,
		StartTime:   req.Window.Start.UTC(),
		EndTime:     req.Window.End.UTC(),
		VehicleID:   req.VehicleID,
		Status:      domain.StatusConfirmed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = e.store.InPool(ctx, req.PoolID, func(tx store.Tx) error {
		current, err := tx.Pool(ctx)
		if err != nil {
			return err
		}
		if !current.IsActive {
			return domain.ErrPoolInactiveOrMissing
		}
		if err := e.conflict.CheckVehicle(ctx, tx, req.VehicleID); err != nil {
			return err
		}

		pool, err := e.capacity.Reserve(ctx, tx)
		if errors.Is(err, domain.ErrInsufficientCapacity) {
			return domain.ErrNoAvailableUnits
		}
		if err != nil {
			return err
		}

		b.TotalCost = req.Window.Cost(pool.PricePerHour)
		return tx.InsertBooking(ctx, b)
	})
	if errors.Is(err, domain.ErrPoolNotFound) {
		return nil, domain.ErrPoolInactiveOrMissing
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CancelBooking cancels a confirmed booking. Only the requester or the owner
// of the booking's pool may cancel.
func (e *Engine) CancelBooking(ctx context.Context, actorID, bookingID string) (*domain.Booking, error) {
	return e.transition(ctx, transitionRequest{
		bookingID:      bookingID,
		transition:     domain.TransitionCancel,
		trigger:        string(domain.TriggerClient),
		authorizeFirst: true,
		authorize: func(b *domain.Booking, pool *domain.Pool) error {
			if b.RequesterID == actorID {
				return nil
			}
			if pool != nil && pool.OwnerID == actorID {
				return nil
			}
			return domain.ErrForbidden.WithMessage("only the requester or the pool owner may cancel this booking")
		},
	})
}

// CompleteBooking completes a confirmed booking. Client-triggered completion
// is restricted to the requester; the sweeper may complete any booking.
func (e *Engine) CompleteBooking(ctx context.Context, bookingID string, trigger domain.Trigger, actorID string) (*domain.Booking, error) {
	return e.transition(ctx, transitionRequest{
		bookingID:  bookingID,
		transition: domain.TransitionComplete,
		trigger:    string(trigger),
		authorize: func(b *domain.Booking, _ *domain.Pool) error {
			switch trigger {
			case domain.TriggerSweeper:
				return nil
			case domain.TriggerClient:
				if b.RequesterID == actorID {
					return nil
				}
				return domain.ErrForbidden.WithMessage("only the requester may complete this booking")
			default:
				return domain.ErrInvalidTransition.WithMessage("unknown completion trigger " + string(trigger))
			}
		},
	})
}

type transitionRequest struct {
	bookingID  string
	transition domain.Transition
	trigger    string
	// authorize receives a nil pool when the pool has been deleted.
	authorize func(b *domain.Booking, pool *domain.Pool) error
	// authorizeFirst runs authorize before the terminal-state check.
	authorizeFirst bool
}

// transition applies a state change to the booking under its pool's lock.
// The status flip and the capacity release commit together.
func (e *Engine) transition(ctx context.Context, req transitionRequest) (*domain.Booking, error) {
	trigger := req.trigger
	ctx, span := e.tracer.Start(ctx, "booking."+string(req.transition),
		trace.WithAttributes(
			attribute.String("booking.id", req.bookingID),
			attribute.String("trigger", trigger),
		),
	)
	defer span.End()

	var result *domain.Booking
	err := e.store.InBooking(ctx, req.bookingID, func(tx store.Tx, b *domain.Booking) error {
		pool, err := tx.Pool(ctx)
		if errors.Is(err, domain.ErrPoolNotFound) {
			pool = nil
		} else if err != nil {
			return err
		}

		if req.authorizeFirst {
			if err := req.authorize(b, pool); err != nil {
				return err
			}
		}
		to, releasesUnit, err := b.Status.Next(req.transition)
		if err != nil {
			return err
		}
		if !req.authorizeFirst {
			if err := req.authorize(b, pool); err != nil {
				return err
			}
		}
		b.Status = to
		b.UpdatedAt = e.clock.Now()
		if err := tx.SaveBooking(ctx, b); err != nil {
			return err
		}

		if releasesUnit {
			_, err := e.capacity.Release(ctx, tx)
			switch {
			case errors.Is(err, domain.ErrPoolNotFound):
				e.logger.Warn("releasing unit on a deleted pool, skipping",
					zap.String("booking_id", b.ID),
					zap.String("pool_id", b.PoolID),
				)
			case err != nil:
				return err
			}
		}
		result = b
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	middleware.BookingTransitionsTotal.WithLabelValues(string(result.Status), trigger).Inc()
	e.logger.Info("booking transitioned",
		zap.String("booking_id", result.ID),
		zap.String("pool_id", result.PoolID),
		zap.String("status", string(result.Status)),
		zap.String("trigger", trigger),
	)
	return result, nil
}

func outcomeFor(err error) string {
	de, ok := domain.AsError(err)
	if !ok {
		return "error"
	}
	switch {
	case errors.Is(de, domain.ErrNoAvailableUnits):
		return "no_capacity"
	case de.Kind == domain.KindValidation:
		return "invalid"
	default:
		return "conflict"
	}
}

func recordSpanError(span trace.Span, err error) {
	if de, ok := domain.AsError(err); ok {
		span.SetAttributes(attribute.String("error.code", de.Code))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
