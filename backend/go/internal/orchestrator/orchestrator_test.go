package orchestrator

import (
	"DayPilot/backend/go/internal/models"
	"DayPilot/backend/go/internal/store"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var t0 = time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC)

type failingJournal struct{}

func (failingJournal) AppendExecution(context.Context, models.AgentRunRecord) error {
	return errors.New("mongo down")
}

func (failingJournal) AppendResolution(context.Context, models.ResolutionLogEntry) error {
	return errors.New("mongo down")
}

func newTestOrchestrator(t *testing.T, clock *fakeClock) (*Orchestrator, *store.Store, *store.MemoryJournal) {
	t.Helper()
	journal := store.NewMemoryJournal()
	st := store.New(store.NewMemoryKV(), journal)
	return New(st, WithClock(clock), WithTick(time.Minute)), st, journal
}

func noop(context.Context) (map[string]interface{}, error) { return nil, nil }

func TestRunPhase_RejectsWhileRunning(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, newFakeClock(t0))
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, o.Register(Phase{Name: "planner", Enabled: true, Exclusive: true, Run: func(context.Context) (map[string]interface{}, error) {
		close(started)
		<-release
		return map[string]interface{}{"entries": 3}, nil
	}}))

	done := make(chan models.AgentRunRecord)
	go func() {
		rec, _ := o.RunPhase(context.Background(), "planner")
		done <- rec
	}()
	<-started

	_, err := o.RunPhase(context.Background(), "planner")
	assert.ErrorIs(t, err, ErrPhaseRunning)
	assert.True(t, o.Phases()[0].Running)

	close(release)
	rec := <-done
	assert.Equal(t, models.RunStatusSuccess, rec.Status)
	assert.Equal(t, 3, rec.Metadata["entries"])

	m := o.Metrics()
	assert.Equal(t, int64(1), m.TotalRuns)
	assert.Equal(t, int64(1), m.Rejected)
	assert.Equal(t, int64(1), m.Phases["planner"].Rejected)
	assert.False(t, o.Phases()[0].Running)
}

func TestRunPhase_SingleFlightUnderOverlappingTriggers(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, newFakeClock(t0))
	var active, maxActive int32
	require.NoError(t, o.Register(Phase{Name: "collector", Enabled: true, Exclusive: true, Run: func(context.Context) (map[string]interface{}, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil, nil
	}}))

	var wg sync.WaitGroup
	var accepted, rejected int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.RunPhase(context.Background(), "collector")
			if errors.Is(err, ErrPhaseRunning) {
				atomic.AddInt64(&rejected, 1)
			} else {
				atomic.AddInt64(&accepted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	m := o.Metrics()
	assert.Equal(t, accepted, m.TotalRuns)
	assert.Equal(t, rejected, m.Rejected)
	assert.Equal(t, int64(50), m.TotalRuns+m.Rejected)
}

func TestRunPhase_UnknownPhase(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, newFakeClock(t0))
	_, err := o.RunPhase(context.Background(), "dreaming")
	assert.ErrorIs(t, err, ErrUnknownPhase)
}

func TestRunPhase_ErrorsAndPanicsBecomeRecords(t *testing.T) {
	o, st, journal := newTestOrchestrator(t, newFakeClock(t0))
	require.NoError(t, o.Register(
		Phase{Name: "executor", Enabled: true, Exclusive: true, Run: func(context.Context) (map[string]interface{}, error) {
			return nil, models.ErrDataUnavailable
		}},
		Phase{Name: "reviewer", Enabled: true, Exclusive: true, Run: func(context.Context) (map[string]interface{}, error) {
			panic("nil map")
		}},
	))

	rec, err := o.RunPhase(context.Background(), "executor")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusError, rec.Status)
	assert.Contains(t, rec.Error, "data unavailable")

	rec, err = o.RunPhase(context.Background(), "reviewer")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCriticalError, rec.Status)
	assert.Contains(t, rec.Error, "panicked")

	assert.Len(t, journal.Executions(), 2)
	var m models.RunnerMetrics
	found, err := st.GetState(context.Background(), store.KeyRunnerMetrics, &m)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), m.TotalRuns)
	assert.Equal(t, int64(2), m.Errors)
	assert.Equal(t, int64(0), m.Successful)
}

func TestRunPhase_LogFailureDoesNotEscape(t *testing.T) {
	o := New(store.New(store.NewMemoryKV(), failingJournal{}), WithClock(newFakeClock(t0)))
	require.NoError(t, o.Register(Phase{Name: "collector", Enabled: true, Exclusive: true, Run: noop}))

	rec, err := o.RunPhase(context.Background(), "collector")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, rec.Status)
	assert.Equal(t, int64(1), o.Metrics().Successful)
}

func TestRegister_RejectsDuplicatesAndRunningScheduler(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, newFakeClock(t0))
	require.NoError(t, o.Register(Phase{Name: "collector", Run: noop}))
	assert.Error(t, o.Register(Phase{Name: "collector", Run: noop}))
	assert.Error(t, o.Register(Phase{Name: "planner"}))

	require.NoError(t, o.Start(context.Background()))
	assert.ErrorIs(t, o.Register(Phase{Name: "late", Run: noop}), ErrSchedulerRunning)
	require.NoError(t, o.Stop(context.Background()))
}

func TestScheduler_DispatchesDuePhases(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := newFakeClock(t0)
	o, st, _ := newTestOrchestrator(t, clock)
	var collector, planner, disabled int32
	counter := func(n *int32) PhaseFunc {
		return func(context.Context) (map[string]interface{}, error) {
			atomic.AddInt32(n, 1)
			return nil, nil
		}
	}
	require.NoError(t, o.Register(
		Phase{Name: "collector", Every: 15 * time.Minute, Enabled: true, Exclusive: true, Run: counter(&collector)},
		Phase{Name: "planner", Every: time.Hour, Enabled: true, Exclusive: true, Run: counter(&planner)},
		Phase{Name: "fullWorkflow", Every: time.Minute, Enabled: false, Exclusive: true, Run: counter(&disabled)},
	))

	require.NoError(t, o.Start(context.Background()))
	assert.ErrorIs(t, o.Start(context.Background()), ErrSchedulerRunning)
	assert.True(t, o.Running())

	clock.Advance(15 * time.Minute)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&collector) == 1 }, time.Second, time.Millisecond)

	clock.Advance(45 * time.Minute)
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&collector) == 2 && atomic.LoadInt32(&planner) == 1
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return o.Metrics().TotalRuns == 3 }, time.Second, time.Millisecond)

	require.NoError(t, o.Stop(context.Background()))
	assert.False(t, o.Running())
	assert.Equal(t, int32(0), atomic.LoadInt32(&disabled))

	clock.Advance(time.Hour)
	assert.Equal(t, int32(2), atomic.LoadInt32(&collector), "no phase fires after Stop")

	var health models.SystemHealth
	found, err := st.GetState(context.Background(), store.KeySystemHealth, &health)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "stopped", health.Status)
	assert.Equal(t, "disabled", health.Phases["fullWorkflow"])

	var m models.RunnerMetrics
	found, err = st.GetState(context.Background(), store.KeyRunnerMetrics, &m)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(3), m.TotalRuns)
}

func TestStop_WaitsForInFlightPhase(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clock := newFakeClock(t0)
	o, _, _ := newTestOrchestrator(t, clock)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, o.Register(Phase{Name: "reviewer", Every: time.Minute, Enabled: true, Exclusive: true,
		Run: func(ctx context.Context) (map[string]interface{}, error) {
			close(started)
			<-release
			return nil, ctx.Err()
		}}))

	require.NoError(t, o.Start(context.Background()))
	clock.Advance(time.Minute)
	<-started

	stopped := make(chan error)
	go func() { stopped <- o.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a phase was still running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-stopped)

	m := o.Metrics()
	assert.Equal(t, int64(1), m.Successful, "stopping does not cancel the in-flight phase")
}

func TestStop_BoundedByContext(t *testing.T) {
	clock := newFakeClock(t0)
	o, _, _ := newTestOrchestrator(t, clock)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, o.Register(Phase{Name: "planner", Every: time.Minute, Enabled: true, Exclusive: true,
		Run: func(context.Context) (map[string]interface{}, error) {
			close(started)
			<-release
			return nil, nil
		}}))
	require.NoError(t, o.Start(context.Background()))
	clock.Advance(time.Minute)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, o.Stop(ctx), context.DeadlineExceeded)

	close(release)
	require.Eventually(t, func() bool { return o.Metrics().Successful == 1 }, time.Second, time.Millisecond)
}

func TestStop_TimedOutPhaseDoesNotBlockNextStop(t *testing.T) {
	clock := newFakeClock(t0)
	o, _, _ := newTestOrchestrator(t, clock)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	require.NoError(t, o.Register(Phase{Name: "planner", Every: time.Minute, Enabled: true, Exclusive: true,
		Run: func(context.Context) (map[string]interface{}, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				close(started)
				<-release
			}
			return nil, nil
		}}))
	require.NoError(t, o.Start(context.Background()))
	clock.Advance(time.Minute)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, o.Stop(ctx), context.DeadlineExceeded)

	// 上一轮遗留的阶段仍在运行，新一轮的 Stop 只等待自己派发的阶段
	require.NoError(t, o.Start(context.Background()))
	stopped := make(chan error, 1)
	go func() { stopped <- o.Stop(context.Background()) }()
	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("stop waited for a phase dispatched before the restart")
	}

	close(release)
	require.Eventually(t, func() bool { return o.Metrics().Successful == 1 }, time.Second, time.Millisecond)
}

func TestHealth_ReportsDependencies(t *testing.T) {
	st := store.New(store.NewMemoryKV(), store.NewMemoryJournal())
	o := New(st, WithClock(newFakeClock(t0)),
		WithHealthCheck("redis", func(context.Context) error { return nil }),
		WithHealthCheck("kafka", func(context.Context) error { return errors.New("no brokers") }),
	)
	require.NoError(t, o.Register(Phase{Name: "collector", Enabled: true, Run: noop}))

	h := o.Health(context.Background())
	assert.Equal(t, "stopped", h.Status)
	assert.Equal(t, "idle", h.Phases["collector"])
	assert.Equal(t, "ok", h.Dependencies["redis"])
	assert.Equal(t, "unhealthy: no brokers", h.Dependencies["kafka"])
}
