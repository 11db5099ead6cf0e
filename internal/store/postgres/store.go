// Package postgres is the durable store backend. Each pool transaction takes
// SELECT ... FOR UPDATE on the pool row so concurrent reservations against the
// same pool serialize in the database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/store"
)

const uniqueViolation = "23505"

const poolColumns = `id, owner_id, name, address, latitude, longitude, price_per_hour,
	description, total_units, available_units, is_active, created_at, updated_at`

const bookingColumns = `id, requester_id, pool_id, start_time, end_time, vehicle_id,
	total_cost, status, created_at, updated_at`

// Store is a store.Store backed by Postgres.
type Store struct {
	client *Client
	tracer trace.Tracer
}

// NewStore wraps an open client.
func NewStore(client *Client) *Store {
	return &Store{
		client: client,
		tracer: otel.Tracer("parkease/store"),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) CreatePool(ctx context.Context, p *domain.Pool) error {
	_, err := s.client.db.NamedExecContext(ctx, `
		INSERT INTO pools (`+poolColumns+`)
		VALUES (:id, :owner_id, :name, :address, :latitude, :longitude, :price_per_hour,
			:description, :total_units, :available_units, :is_active, :created_at, :updated_at)
	`, p)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("pool %s already exists", p.ID)
		}
		return fmt.Errorf("insert pool: %w", err)
	}
	return nil
}

func (s *Store) GetPool(ctx context.Context, id string) (*domain.Pool, error) {
	var p domain.Pool
	err := s.client.db.GetContext(ctx, &p, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return &p, nil
}

func (s *Store) ListPools(ctx context.Context, f store.PoolFilter) ([]*domain.Pool, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		where = append(where, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if f.ActiveOnly {
		where = append(where, "is_active")
	}

	query := `SELECT ` + poolColumns + ` FROM pools`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var rows []domain.Pool
	if err := s.client.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	out := make([]*domain.Pool, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (s *Store) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	var b domain.Booking
	err := s.client.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &b, nil
}

func (s *Store) ListBookings(ctx context.Context, f store.BookingFilter) ([]*domain.Booking, error) {
	if f.PoolIDs != nil && len(f.PoolIDs) == 0 {
		return []*domain.Booking{}, nil
	}

	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.RequesterID != "" {
		add("requester_id = $%d", f.RequesterID)
	}
	if f.PoolIDs != nil {
		add("pool_id = ANY($%d)", pq.Array(f.PoolIDs))
	}
	if f.VehicleID != "" {
		add("vehicle_id = $%d", f.VehicleID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	// ActiveAt and ExpiredAt mirror domain.Booking.IsActiveAt / IsExpiredAt.
	if !f.ActiveAt.IsZero() {
		add("status = '"+string(domain.StatusConfirmed)+"' AND end_time > $%d", f.ActiveAt)
	}
	if !f.ExpiredAt.IsZero() {
		add("status = '"+string(domain.StatusConfirmed)+"' AND end_time < $%d", f.ExpiredAt)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY end_time ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []domain.Booking
	if err := s.client.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make([]*domain.Booking, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

func (s *Store) InPool(ctx context.Context, poolID string, fn func(tx store.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "store.in_pool",
		trace.WithAttributes(attribute.String("pool.id", poolID)),
	)
	defer span.End()

	return s.inTx(ctx, span, func(sqlTx *sqlx.Tx) error {
		locked, err := lockPool(ctx, sqlTx, poolID)
		if err != nil {
			return err
		}
		if !locked {
			return domain.ErrPoolNotFound
		}
		return fn(&tx{tx: sqlTx, poolID: poolID})
	})
}

func (s *Store) InBooking(ctx context.Context, bookingID string, fn func(tx store.Tx, b *domain.Booking) error) error {
	ctx, span := s.tracer.Start(ctx, "store.in_booking",
		trace.WithAttributes(attribute.String("booking.id", bookingID)),
	)
	defer span.End()

	return s.inTx(ctx, span, func(sqlTx *sqlx.Tx) error {
		var poolID string
		err := sqlTx.GetContext(ctx, &poolID, `SELECT pool_id FROM bookings WHERE id = $1`, bookingID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup booking pool: %w", err)
		}
		span.SetAttributes(attribute.String("pool.id", poolID))

		// Pool row first, then booking row: same order as InPool.
		if _, err := lockPool(ctx, sqlTx, poolID); err != nil {
			return err
		}

		var b domain.Booking
		err = sqlTx.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID)
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}
		return fn(&tx{tx: sqlTx, poolID: poolID}, &b)
	})
}

func (s *Store) inTx(ctx context.Context, span trace.Span, fn func(*sqlx.Tx) error) error {
	sqlTx, err := s.client.db.BeginTxx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		if _, isDomain := domain.AsError(err); !isDomain {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) Close() error {
	return s.client.Close()
}

func lockPool(ctx context.Context, sqlTx *sqlx.Tx, poolID string) (bool, error) {
	var id string
	err := sqlTx.GetContext(ctx, &id, `SELECT id FROM pools WHERE id = $1 FOR UPDATE`, poolID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lock pool: %w", err)
	}
	return true, nil
}

type tx struct {
	tx     *sqlx.Tx
	poolID string
}

func (t *tx) Pool(ctx context.Context) (*domain.Pool, error) {
	var p domain.Pool
	err := t.tx.GetContext(ctx, &p, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, t.poolID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPoolNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return &p, nil
}

func (t *tx) SavePool(ctx context.Context, p *domain.Pool) error {
	if p.ID != t.poolID {
		return fmt.Errorf("pool %s is outside transaction scope %s", p.ID, t.poolID)
	}
	res, err := t.tx.NamedExecContext(ctx, `
		UPDATE pools SET
			name = :name,
			address = :address,
			latitude = :latitude,
			longitude = :longitude,
			price_per_hour = :price_per_hour,
			description = :description,
			total_units = :total_units,
			available_units = :available_units,
			is_active = :is_active,
			updated_at = :updated_at
		WHERE id = :id
	`, p)
	if err != nil {
		return fmt.Errorf("update pool: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrPoolNotFound
	}
	return nil
}

func (t *tx) DeletePool(ctx context.Context) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM pools WHERE id = $1`, t.poolID); err != nil {
		return fmt.Errorf("delete pool: %w", err)
	}
	return nil
}

func (t *tx) CountConfirmed(ctx context.Context) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM bookings WHERE pool_id = $1 AND status = $2`,
		t.poolID, string(domain.StatusConfirmed),
	)
	if err != nil {
		return 0, fmt.Errorf("count confirmed bookings: %w", err)
	}
	return n, nil
}

// ActiveVehicleBookings takes a transaction-scoped advisory lock on the
// vehicle before counting, so two transactions on different pools cannot both
// see the vehicle as free.
func (t *tx) ActiveVehicleBookings(ctx context.Context, vehicleID string, now time.Time) (int, error) {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, vehicleLockKey(vehicleID)); err != nil {
		return 0, fmt.Errorf("lock vehicle: %w", err)
	}

	var n int
	err := t.tx.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM bookings WHERE vehicle_id = $1 AND status = $2 AND end_time > $3`,
		vehicleID, string(domain.StatusConfirmed), now,
	)
	if err != nil {
		return 0, fmt.Errorf("count vehicle bookings: %w", err)
	}
	return n, nil
}

func vehicleLockKey(vehicleID string) string {
	return "parkease:vehicle:" + vehicleID
}

func (t *tx) InsertBooking(ctx context.Context, b *domain.Booking) error {
	if b.PoolID != t.poolID {
		return fmt.Errorf("booking %s belongs to pool %s, not %s", b.ID, b.PoolID, t.poolID)
	}
	_, err := t.tx.NamedExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (:id, :requester_id, :pool_id, :start_time, :end_time, :vehicle_id,
			:total_cost, :status, :created_at, :updated_at)
	`, b)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("booking %s already exists", b.ID)
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (t *tx) SaveBooking(ctx context.Context, b *domain.Booking) error {
	if b.PoolID != t.poolID {
		return fmt.Errorf("booking %s belongs to pool %s, not %s", b.ID, b.PoolID, t.poolID)
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3`,
		string(b.Status), b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
