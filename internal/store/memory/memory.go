// Package memory is an in-process store backend. Pool transactions are
// serialized by a per-pool mutex and writes are staged until commit. A
// transaction that checks a vehicle also holds that vehicle's mutex until it
// commits or aborts.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/lock"
	"parkease-api-go/internal/store"
)

// Store is a store.Store held entirely in memory.
type Store struct {
	poolLocks    *lock.KeyedMutex
	vehicleLocks *lock.KeyedMutex

	mu       sync.RWMutex
	pools    map[string]*domain.Pool
	bookings map[string]*domain.Booking
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		poolLocks:    lock.NewKeyedMutex(),
		vehicleLocks: lock.NewKeyedMutex(),
		pools:        make(map[string]*domain.Pool),
		bookings:     make(map[string]*domain.Booking),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) CreatePool(_ context.Context, p *domain.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pools[p.ID]; exists {
		return fmt.Errorf("pool %s already exists", p.ID)
	}
	s.pools[p.ID] = p.Clone()
	return nil
}

func (s *Store) GetPool(_ context.Context, id string) (*domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[id]
	if !ok {
		return nil, domain.ErrPoolNotFound
	}
	return p.Clone(), nil
}

func (s *Store) ListPools(_ context.Context, f store.PoolFilter) ([]*domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Pool, 0)
	for _, p := range s.pools {
		if f.MatchPool(p) {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (s *Store) GetBooking(_ context.Context, id string) (*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *Store) ListBookings(_ context.Context, f store.BookingFilter) ([]*domain.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Booking, 0)
	for _, b := range s.bookings {
		if f.MatchBooking(b) {
			out = append(out, b.Clone())
			if f.Limit > 0 && len(out) >= f.Limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) InPool(ctx context.Context, poolID string, fn func(tx store.Tx) error) error {
	unlock, err := s.poolLocks.Lock(ctx, poolID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.RLock()
	_, ok := s.pools[poolID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrPoolNotFound
	}

	tx := newTx(s, poolID)
	defer tx.release()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) InBooking(ctx context.Context, bookingID string, fn func(tx store.Tx, b *domain.Booking) error) error {
	s.mu.RLock()
	b, ok := s.bookings[bookingID]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrNotFound
	}
	poolID := b.PoolID

	unlock, err := s.poolLocks.Lock(ctx, poolID)
	if err != nil {
		return err
	}
	defer unlock()

	// Re-read under the pool lock; a concurrent transition may have committed.
	s.mu.RLock()
	current := s.bookings[bookingID].Clone()
	s.mu.RUnlock()

	tx := newTx(s, poolID)
	defer tx.release()
	if err := fn(tx, current); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// tx stages writes for one pool until commit.
type tx struct {
	s      *Store
	poolID string

	pool        *domain.Pool
	poolDeleted bool
	inserts     []*domain.Booking
	updates     map[string]*domain.Booking

	vehicles map[string]func()
}

func newTx(s *Store, poolID string) *tx {
	return &tx{
		s:        s,
		poolID:   poolID,
		updates:  make(map[string]*domain.Booking),
		vehicles: make(map[string]func()),
	}
}

// release drops vehicle locks taken by the transaction. It runs after commit.
func (t *tx) release() {
	for id, unlock := range t.vehicles {
		unlock()
		delete(t.vehicles, id)
	}
}

func (t *tx) Pool(context.Context) (*domain.Pool, error) {
	if t.poolDeleted {
		return nil, domain.ErrPoolNotFound
	}
	if t.pool != nil {
		return t.pool.Clone(), nil
	}
	t.s.mu.RLock()
	p, ok := t.s.pools[t.poolID]
	t.s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrPoolNotFound
	}
	return p.Clone(), nil
}

func (t *tx) SavePool(_ context.Context, p *domain.Pool) error {
	if p.ID != t.poolID {
		return fmt.Errorf("pool %s is outside transaction scope %s", p.ID, t.poolID)
	}
	if t.poolDeleted {
		return domain.ErrPoolNotFound
	}
	t.pool = p.Clone()
	return nil
}

func (t *tx) DeletePool(context.Context) error {
	t.poolDeleted = true
	t.pool = nil
	return nil
}

func (t *tx) CountConfirmed(context.Context) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	count := 0
	for id, b := range t.s.bookings {
		if b.PoolID != t.poolID {
			continue
		}
		if staged, ok := t.updates[id]; ok {
			b = staged
		}
		if b.Status.HoldsUnit() {
			count++
		}
	}
	for _, b := range t.inserts {
		if b.Status.HoldsUnit() {
			count++
		}
	}
	return count, nil
}

func (t *tx) ActiveVehicleBookings(ctx context.Context, vehicleID string, now time.Time) (int, error) {
	if _, held := t.vehicles[vehicleID]; !held {
		unlock, err := t.s.vehicleLocks.Lock(ctx, vehicleID)
		if err != nil {
			return 0, err
		}
		t.vehicles[vehicleID] = unlock
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	count := 0
	for id, b := range t.s.bookings {
		if staged, ok := t.updates[id]; ok {
			b = staged
		}
		if b.VehicleID == vehicleID && b.IsActiveAt(now) {
			count++
		}
	}
	for _, b := range t.inserts {
		if b.VehicleID == vehicleID && b.IsActiveAt(now) {
			count++
		}
	}
	return count, nil
}

func (t *tx) InsertBooking(_ context.Context, b *domain.Booking) error {
	if b.PoolID != t.poolID {
		return fmt.Errorf("booking %s belongs to pool %s, not %s", b.ID, b.PoolID, t.poolID)
	}
	t.s.mu.RLock()
	_, exists := t.s.bookings[b.ID]
	t.s.mu.RUnlock()
	if exists {
		return fmt.Errorf("booking %s already exists", b.ID)
	}
	for _, staged := range t.inserts {
		if staged.ID == b.ID {
			return fmt.Errorf("booking %s already exists", b.ID)
		}
	}
	t.inserts = append(t.inserts, b.Clone())
	return nil
}

func (t *tx) SaveBooking(_ context.Context, b *domain.Booking) error {
	if b.PoolID != t.poolID {
		return fmt.Errorf("booking %s belongs to pool %s, not %s", b.ID, b.PoolID, t.poolID)
	}
	t.s.mu.RLock()
	_, exists := t.s.bookings[b.ID]
	t.s.mu.RUnlock()
	if !exists {
		return domain.ErrNotFound
	}
	t.updates[b.ID] = b.Clone()
	return nil
}

func (t *tx) commit() error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	switch {
	case t.poolDeleted:
		delete(t.s.pools, t.poolID)
	case t.pool != nil:
		t.s.pools[t.poolID] = t.pool
	}
	for _, b := range t.inserts {
		t.s.bookings[b.ID] = b
	}
	for id, b := range t.updates {
		t.s.bookings[id] = b
	}
	return nil
}
