package bot

import (
	"context"
	"log/slog"
	"sync"
)

// Runner gestiona el ciclo de vida del scheduler para el control
// server: arranca la goroutine del loop y la para de forma idempotente.
type Runner struct {
	scheduler *Scheduler

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	runErr  error
}

// NewRunner envuelve un scheduler ya construido.
func NewRunner(scheduler *Scheduler) *Runner {
	return &Runner{scheduler: scheduler}
}

// Start lanza el loop si no está corriendo ya. Devuelve true si lo
// arrancó, false si ya corría.
func (r *Runner) Start(parent context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}

	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true

	done := r.done
	go func() {
		err := r.scheduler.Run(ctx)
		if err != nil && ctx.Err() == nil {
			slog.Error("scheduler exited", "err", err)
		}
		r.mu.Lock()
		r.runErr = err
		r.running = false
		r.mu.Unlock()
		close(done)
	}()
	return true
}

// Stop cancela el loop y espera a que termine. Devuelve true si había
// algo que parar.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return false
	}
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
	return true
}

// Done devuelve el canal que se cierra cuando el loop en curso termina,
// también si el scheduler se paró solo (p.ej. por un bloqueo upstream).
// Nil si Start nunca se llamó.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Err devuelve el error con el que terminó el último loop; nil si
// sigue corriendo o terminó limpio.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	return r.runErr
}

// Running indica si el loop está activo.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Status delega en el scheduler.
func (r *Runner) Status() Status {
	return r.scheduler.Status()
}
