package bot

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/alejandrodnm/polywhaler/internal/domain"
	"github.com/alejandrodnm/polywhaler/internal/ports"
)

// SchedulerConfig gobierna la cadencia del loop de polling.
type SchedulerConfig struct {
	Interval    time.Duration // cadencia base entre ciclos
	JitterRatio float64       // ±ratio aplicado al intervalo base
	BackoffBase time.Duration
	BackoffMax  time.Duration
	StopOnBlock bool // ante ErrBlocked: parar en vez de reintentar

	Query ports.CandidateQuery
}

// Scheduler ejecuta el loop de ciclos: gate → governor → fetch →
// pipeline → notify → prune → sleep. Single-goroutine: todo el estado
// mutable vive detrás de su mutex solo para que el control server
// pueda leer Status de forma concurrente.
type Scheduler struct {
	cfg      SchedulerConfig
	feed     ports.FeedProvider
	pipeline *Pipeline
	governor *Governor
	gate     *TimeGate
	ledger   ports.Ledger
	notifier ports.Notifier
	mode     string

	now  func() time.Time
	rand func() float64

	mu     sync.Mutex
	status Status
}

// NewScheduler cablea el scheduler con sus colaboradores. now y la
// fuente de aleatoriedad son reales; los tests los sustituyen.
func NewScheduler(
	cfg SchedulerConfig,
	feed ports.FeedProvider,
	pipeline *Pipeline,
	governor *Governor,
	gate *TimeGate,
	ledger ports.Ledger,
	notifier ports.Notifier,
	mode string,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		feed:     feed,
		pipeline: pipeline,
		governor: governor,
		gate:     gate,
		ledger:   ledger,
		notifier: notifier,
		mode:     mode,
		now:      time.Now,
		rand:     rand.Float64,
		status:   Status{State: StateIdle, Mode: mode, GateEnabled: gate.Enabled()},
	}
}

// Run ejecuta ciclos hasta que el contexto se cancele o una política
// de stop (StopOnBlock) lo pare. Siempre devuelve el motivo de parada.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler started",
		"interval", s.cfg.Interval,
		"jitter", s.cfg.JitterRatio,
		"mode", s.mode,
	)

	for {
		delay, stop := s.cycle(ctx)
		if stop != nil {
			s.setState(StateStopped, stop.Error())
			slog.Warn("scheduler stopped", "cause", stop)
			return stop
		}

		s.setState(StateSleeping, "")
		if err := s.sleep(ctx, delay); err != nil {
			s.setState(StateStopped, "context cancelled")
			return err
		}
	}
}

// cycle corre un ciclo completo y devuelve cuánto dormir después.
// Un error no-nil en el segundo retorno para el scheduler.
func (s *Scheduler) cycle(ctx context.Context) (time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	s.status.LastCycle = now
	s.status.Cycles++
	s.mu.Unlock()

	// Fuera de ventana no se quema presupuesto de llamadas.
	if !s.gate.IsOpen(now) {
		slog.Debug("trading window closed, skipping cycle")
		return s.jittered(), nil
	}

	if !s.governor.TryAcquire(now) {
		slog.Warn("hourly call budget exhausted, skipping cycle",
			"in_window", s.governor.InWindow(now))
		return s.jittered(), nil
	}

	s.setState(StatePolling, "")
	opps, err := s.feed.FetchCandidates(ctx, s.cfg.Query)
	if err != nil {
		if errors.Is(err, ports.ErrBlocked) && s.cfg.StopOnBlock {
			return 0, err
		}
		backoff := s.failureBackoff()
		slog.Error("candidate fetch failed",
			"err", err, "backoff", backoff)
		return backoff, nil
	}
	s.resetFailures()

	s.setState(StateEvaluating, "")
	outcomes := s.pipeline.Process(ctx, opps, now)

	dispatched := 0
	for _, out := range outcomes {
		if out.Decision == domain.DecisionDispatched {
			dispatched++
		}
	}
	s.mu.Lock()
	s.status.Dispatched += dispatched
	s.mu.Unlock()

	if s.notifier != nil && len(outcomes) > 0 {
		if err := s.notifier.NotifyCycle(ctx, outcomes); err != nil {
			slog.Warn("cycle notification failed", "err", err)
		}
	}

	if pruned, err := s.ledger.Prune(ctx, now); err != nil {
		slog.Warn("ledger prune failed", "err", err)
	} else if pruned > 0 {
		slog.Debug("pruned expired ledger entries", "count", pruned)
	}

	slog.Info("cycle complete",
		"candidates", len(opps),
		"dispatched", dispatched,
	)
	return s.jittered(), nil
}

// failureBackoff incrementa el contador de fallos consecutivos y
// devuelve el retraso exponencial correspondiente, con el mismo jitter
// que los sleeps normales: los reintentos tampoco deben ser predecibles.
func (s *Scheduler) failureBackoff() time.Duration {
	s.mu.Lock()
	s.status.ConsecutiveFailures++
	d := backoffDelay(s.cfg.BackoffBase, s.cfg.BackoffMax, s.status.ConsecutiveFailures)
	s.status.CurrentBackoff = d.String()
	s.mu.Unlock()
	return jitteredInterval(d, s.cfg.JitterRatio, s.rand())
}

func (s *Scheduler) resetFailures() {
	s.mu.Lock()
	s.status.ConsecutiveFailures = 0
	s.status.CurrentBackoff = ""
	s.mu.Unlock()
}

// jittered devuelve el intervalo base con jitter uniforme ±ratio.
func (s *Scheduler) jittered() time.Duration {
	return jitteredInterval(s.cfg.Interval, s.cfg.JitterRatio, s.rand())
}

// Status devuelve una instantánea del estado del scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.CallsInWindow = s.governor.InWindow(s.now())
	return st
}

func (s *Scheduler) setState(state State, cause string) {
	s.mu.Lock()
	s.status.State = state
	s.status.StopCause = cause
	s.mu.Unlock()
}

// sleep espera d respetando la cancelación del contexto.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// backoffDelay calcula min(base·2^(failures-1), max) para failures >= 1.
func backoffDelay(base, max time.Duration, failures int) time.Duration {
	if failures < 1 {
		return base
	}
	d := base
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// jitteredInterval aplica jitter uniforme ±ratio al intervalo base.
// u es una muestra uniforme en [0, 1).
func jitteredInterval(interval time.Duration, ratio, u float64) time.Duration {
	if ratio <= 0 {
		return interval
	}
	factor := 1 + (2*u-1)*ratio
	return time.Duration(float64(interval) * factor)
}
