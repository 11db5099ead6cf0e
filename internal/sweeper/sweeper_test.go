package sweeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"parkease-api-go/internal/booking"
	"parkease-api-go/internal/clock"
	"parkease-api-go/internal/config"
	"parkease-api-go/internal/domain"
	"parkease-api-go/internal/store/memory"
)

type fakeEngine struct {
	mu        sync.Mutex
	expired   []*domain.Booking
	results   map[string]error
	completed []string
	listCalls int32
	audits    int32

	// block, when set, holds CompleteBooking until closed.
	block   chan struct{}
	entered chan struct{}
	panics  int32
}

func (f *fakeEngine) ExpiredBookings(ctx context.Context) ([]*domain.Booking, error) {
	if atomic.AddInt32(&f.listCalls, 1) <= atomic.LoadInt32(&f.panics) {
		panic("store exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expired, nil
}

func (f *fakeEngine) CompleteBooking(ctx context.Context, id string, trigger domain.Trigger, actorID string) (*domain.Booking, error) {
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if trigger != domain.TriggerSweeper {
		return nil, errors.New("wrong trigger")
	}
	f.completed = append(f.completed, id)
	if err := f.results[id]; err != nil {
		return nil, err
	}
	return &domain.Booking{ID: id, Status: domain.StatusCompleted}, nil
}

func (f *fakeEngine) AuditPools(ctx context.Context) (int, error) {
	atomic.AddInt32(&f.audits, 1)
	return 0, nil
}

func (f *fakeEngine) completedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.completed...)
}

func testConfig() *config.Config {
	return &config.Config{
		SweepInterval:    time.Hour,
		SweepTickTimeout: 5 * time.Second,
	}
}

func TestTickProcessesEachBookingIndependently(t *testing.T) {
	engine := &fakeEngine{
		expired: []*domain.Booking{{ID: "ok-1"}, {ID: "gone"}, {ID: "broken"}, {ID: "ok-2"}},
		results: map[string]error{
			"gone":   domain.ErrAlreadyTerminal,
			"broken": errors.New("connection reset"),
		},
	}
	s := New(engine, nil, testConfig(), zap.NewNop())

	result := s.Tick(context.Background())

	assert.Equal(t, TickResult{Found: 4, Completed: 2, Skipped: 1, Failed: 1}, result)
	assert.Equal(t, []string{"ok-1", "gone", "broken", "ok-2"}, engine.completedIDs())
}

func TestRunSweepsImmediately(t *testing.T) {
	engine := &fakeEngine{expired: []*domain.Booking{{ID: "b1"}}}
	s := New(engine, nil, testConfig(), nil)

	s.Start(context.Background())
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		return len(engine.completedIDs()) == 1
	}, time.Second, 5*time.Millisecond, "first tick must not wait a full interval")
	assert.True(t, s.IsLeader())
}

func TestRunSweepsEveryInterval(t *testing.T) {
	engine := &fakeEngine{}
	cfg := testConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	s := New(engine, nil, cfg, nil)

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&engine.listCalls) >= 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsLeader())
	calls := atomic.LoadInt32(&engine.listCalls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, atomic.LoadInt32(&engine.listCalls), "no ticks after Stop")
}

func TestStopLetsInFlightTickFinish(t *testing.T) {
	engine := &fakeEngine{
		expired: []*domain.Booking{{ID: "slow"}},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s := New(engine, nil, testConfig(), nil)
	s.Start(context.Background())

	select {
	case <-engine.entered:
	case <-time.After(time.Second):
		t.Fatal("tick never started")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a tick was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(engine.block)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after tick finished")
	}
	assert.Equal(t, []string{"slow"}, engine.completedIDs(), "in-flight completion was not cancelled")
}

func TestStopRespectsDeadline(t *testing.T) {
	engine := &fakeEngine{
		expired: []*domain.Booking{{ID: "stuck"}},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	s := New(engine, nil, testConfig(), nil)
	s.Start(context.Background())
	<-engine.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
	close(engine.block)
}

func TestPanicRestartsLoop(t *testing.T) {
	engine := &fakeEngine{panics: 1, expired: []*domain.Booking{{ID: "b1"}}}
	s := New(engine, nil, testConfig(), nil)
	s.restartBackoff = 5 * time.Millisecond

	s.Start(context.Background())
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		return len(engine.completedIDs()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAuditLoopRuns(t *testing.T) {
	engine := &fakeEngine{}
	cfg := testConfig()
	cfg.AuditInterval = 5 * time.Millisecond
	s := New(engine, nil, cfg, nil)

	s.Start(context.Background())
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&engine.audits) >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestSweeperCompletesExpiredBooking(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	clk := clock.NewManual(now)
	engine := booking.NewEngine(memory.New(), nil, clk, nil)

	pool, err := engine.CreatePool(ctx, "owner", booking.PoolInput{
		Name: "Lot", Address: "Street", PricePerHour: 2, TotalUnits: 2,
	})
	require.NoError(t, err)
	b, err := engine.CreateBooking(ctx, domain.BookingRequest{
		RequesterID: "user",
		PoolID:      pool.ID,
		VehicleID:   "V",
		Window:      domain.TimeWindow{Start: now, End: now.Add(time.Hour)},
	})
	require.NoError(t, err)

	s := New(engine, nil, testConfig(), nil)
	assert.Equal(t, 0, s.Tick(ctx).Completed)

	clk.Set(b.EndTime.Add(time.Second))
	result := s.Tick(ctx)
	assert.Equal(t, 1, result.Completed)

	actor := domain.Actor{ID: "user", Role: domain.RoleUser}
	got, err := engine.GetBooking(ctx, actor, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	p, err := engine.GetPool(ctx, actor, pool.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.AvailableUnits)

	assert.Equal(t, TickResult{}, s.Tick(ctx), "completed bookings are not swept twice")
}
