package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polywhaler/internal/domain"
	"github.com/alejandrodnm/polywhaler/internal/ports"
)

// schedFeed controla las respuestas de FetchCandidates ciclo a ciclo.
type schedFeed struct {
	fetches int
	opps    []domain.Opportunity
	errs    []error // consumidos por orden; nil = éxito
	picks   []domain.Pick
}

func (f *schedFeed) FetchCandidates(context.Context, ports.CandidateQuery) ([]domain.Opportunity, error) {
	f.fetches++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.opps, nil
}

func (f *schedFeed) ReportPick(_ context.Context, pick domain.Pick) error {
	f.picks = append(f.picks, pick)
	return nil
}

// pruneLedger cuenta las llamadas a Prune encima del fakeLedger.
type pruneLedger struct {
	fakeLedger
	prunes int
}

func (l *pruneLedger) Prune(context.Context, time.Time) (int, error) {
	l.prunes++
	return 0, nil
}

type schedFixture struct {
	scheduler *Scheduler
	feed      *schedFeed
	ledger    *pruneLedger
	executor  *fakeExecutor
	clock     time.Time
}

func newSchedFixture(t *testing.T, cfg SchedulerConfig) *schedFixture {
	t.Helper()
	gate, err := NewTimeGate("", "", "UTC")
	require.NoError(t, err)

	f := &schedFixture{
		feed:     &schedFeed{},
		ledger:   &pruneLedger{fakeLedger: *newFakeLedger()},
		executor: &fakeExecutor{},
		clock:    time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
	}
	f.ledger.live = map[string]bool{}

	pipeline := NewPipeline(defaultPipelineConfig(), f.ledger, f.executor, &fakeTradeLog{}, f.feed, gate)
	f.scheduler = NewScheduler(cfg, f.feed, pipeline, NewGovernor(0), gate, f.ledger, nil, "paper")
	f.scheduler.now = func() time.Time { return f.clock }
	f.scheduler.rand = func() float64 { return 0.5 } // jitter neutro
	return f
}

func defaultSchedConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:    20 * time.Second,
		JitterRatio: 0.2,
		BackoffBase: 2 * time.Second,
		BackoffMax:  120 * time.Second,
		StopOnBlock: true,
		Query:       ports.CandidateQuery{WindowMinutes: 5, MinGrade: domain.GradeA, Limit: 15},
	}
}

func TestBackoffDelaySequence(t *testing.T) {
	base := 2 * time.Second
	max := 120 * time.Second

	want := []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 64 * time.Second,
		120 * time.Second, 120 * time.Second,
	}
	for i, expected := range want {
		got := backoffDelay(base, max, i+1)
		assert.Equal(t, expected, got, "failures=%d", i+1)
	}
}

func TestJitteredIntervalBounds(t *testing.T) {
	interval := 20 * time.Second
	ratio := 0.2

	assert.Equal(t, 16*time.Second, jitteredInterval(interval, ratio, 0))
	assert.Equal(t, interval, jitteredInterval(interval, ratio, 0.5))

	// Cualquier muestra uniforme cae en [interval·0.8, interval·1.2].
	for i := 0; i <= 100; i++ {
		u := float64(i) / 100
		d := jitteredInterval(interval, ratio, u)
		assert.GreaterOrEqual(t, d, 16*time.Second, "u=%f", u)
		assert.LessOrEqual(t, d, 24*time.Second, "u=%f", u)
	}

	assert.Equal(t, interval, jitteredInterval(interval, 0, 0.9))
}

func TestSchedulerCycleHappyPath(t *testing.T) {
	f := newSchedFixture(t, defaultSchedConfig())
	f.feed.opps = []domain.Opportunity{sampleOpp(f.clock)}

	delay, stop := f.scheduler.cycle(context.Background())

	require.NoError(t, stop)
	assert.Equal(t, 20*time.Second, delay) // jitter neutro con u=0.5
	assert.Equal(t, 1, f.feed.fetches)
	assert.Len(t, f.executor.orders, 1)
	assert.Equal(t, 1, f.ledger.prunes)

	st := f.scheduler.Status()
	assert.Equal(t, 1, st.Cycles)
	assert.Equal(t, 1, st.Dispatched)
	assert.Equal(t, 0, st.ConsecutiveFailures)
}

func TestSchedulerBackoffGrowsAndResets(t *testing.T) {
	f := newSchedFixture(t, defaultSchedConfig())
	f.feed.errs = []error{
		errors.New("timeout"),
		errors.New("timeout"),
		errors.New("timeout"),
		nil,
	}

	delays := make([]time.Duration, 0, 4)
	for i := 0; i < 4; i++ {
		d, stop := f.scheduler.cycle(context.Background())
		require.NoError(t, stop)
		delays = append(delays, d)
	}

	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second,
		20 * time.Second, // éxito: vuelta al intervalo base
	}, delays)
	assert.Equal(t, 0, f.scheduler.Status().ConsecutiveFailures)
}

func TestSchedulerBackoffDelayIsJittered(t *testing.T) {
	f := newSchedFixture(t, defaultSchedConfig())
	f.scheduler.rand = func() float64 { return 0 } // extremo inferior
	f.feed.errs = []error{errors.New("timeout")}

	delay, stop := f.scheduler.cycle(context.Background())

	require.NoError(t, stop)
	// Backoff base 2s con jitter ±0.2 y u=0: 2s·0.8.
	assert.Equal(t, 1600*time.Millisecond, delay)
}

func TestSchedulerStopsOnBlockWhenConfigured(t *testing.T) {
	f := newSchedFixture(t, defaultSchedConfig())
	f.feed.errs = []error{fmt.Errorf("GET /candidates: 403 (ray 8a2f): %w", ports.ErrBlocked)}

	_, stop := f.scheduler.cycle(context.Background())

	require.Error(t, stop)
	assert.ErrorIs(t, stop, ports.ErrBlocked)
}

func TestSchedulerBacksOffOnBlockWhenStopDisabled(t *testing.T) {
	cfg := defaultSchedConfig()
	cfg.StopOnBlock = false
	f := newSchedFixture(t, cfg)
	f.feed.errs = []error{fmt.Errorf("GET /candidates: 403: %w", ports.ErrBlocked)}

	delay, stop := f.scheduler.cycle(context.Background())

	require.NoError(t, stop)
	assert.Equal(t, 2*time.Second, delay)
	assert.Equal(t, 1, f.scheduler.Status().ConsecutiveFailures)
}

func TestSchedulerGovernorDenialSkipsFetch(t *testing.T) {
	f := newSchedFixture(t, defaultSchedConfig())
	f.scheduler.governor = NewGovernor(1)

	_, stop := f.scheduler.cycle(context.Background())
	require.NoError(t, stop)
	assert.Equal(t, 1, f.feed.fetches)

	// Segundo ciclo dentro de la misma hora: presupuesto agotado.
	f.clock = f.clock.Add(20 * time.Second)
	delay, stop := f.scheduler.cycle(context.Background())
	require.NoError(t, stop)
	assert.Equal(t, 1, f.feed.fetches, "fetch no debe ejecutarse sin presupuesto")
	assert.Equal(t, 20*time.Second, delay)
}

func TestSchedulerClosedGateSkipsFetch(t *testing.T) {
	cfg := defaultSchedConfig()
	f := newSchedFixture(t, cfg)

	gate, err := NewTimeGate("09:00", "10:00", "UTC")
	require.NoError(t, err)
	f.scheduler.gate = gate

	// El reloj del fixture marca las 12:00 UTC: fuera de ventana.
	delay, stop := f.scheduler.cycle(context.Background())

	require.NoError(t, stop)
	assert.Zero(t, f.feed.fetches)
	assert.Equal(t, 20*time.Second, delay)
}

func TestSchedulerRunStopsOnContextCancel(t *testing.T) {
	cfg := defaultSchedConfig()
	cfg.Interval = 5 * time.Millisecond
	cfg.JitterRatio = 0
	f := newSchedFixture(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.scheduler.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.Equal(t, StateStopped, f.scheduler.Status().State)
	assert.GreaterOrEqual(t, f.feed.fetches, 1)
}

func TestRunnerExposesStopOnBlock(t *testing.T) {
	cfg := defaultSchedConfig()
	cfg.Interval = 5 * time.Millisecond
	cfg.JitterRatio = 0
	f := newSchedFixture(t, cfg)
	f.feed.errs = []error{fmt.Errorf("GET /candidates: 403 (ray 8a2f): %w", ports.ErrBlocked)}

	r := NewRunner(f.scheduler)
	require.True(t, r.Start(context.Background()))

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("runner did not finish after stop-on-block")
	}

	assert.ErrorIs(t, r.Err(), ports.ErrBlocked)
	assert.False(t, r.Running())
	assert.Equal(t, StateStopped, f.scheduler.Status().State)
}

func TestRunnerStartStopIdempotent(t *testing.T) {
	cfg := defaultSchedConfig()
	cfg.Interval = 5 * time.Millisecond
	cfg.JitterRatio = 0
	f := newSchedFixture(t, cfg)
	r := NewRunner(f.scheduler)

	assert.False(t, r.Stop(), "stop sin start no hace nada")
	assert.True(t, r.Start(context.Background()))
	assert.False(t, r.Start(context.Background()), "segundo start es no-op")
	assert.True(t, r.Running())

	assert.True(t, r.Stop())
	assert.False(t, r.Running())
	assert.False(t, r.Stop())
}
