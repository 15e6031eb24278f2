package bot

import (
	"sync"
	"time"
)

// Governor limita las llamadas salientes al feed a un máximo por hora
// rodante. Lista de timestamps: O(llamadas-en-ventana) por chequeo,
// más que suficiente para decenas o pocos cientos por hora. No se
// persiste: la ventana arranca vacía tras un reinicio.
type Governor struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	calls  []time.Time
}

// NewGovernor crea un Governor con el máximo dado. max <= 0 desactiva
// el límite (siempre concede).
func NewGovernor(max int) *Governor {
	return &Governor{max: max, window: time.Hour}
}

// TryAcquire concede una llamada si el conteo dentro de la ventana
// rodante está por debajo del máximo. La denegación no es un error:
// el scheduler la trata como "saltar este ciclo".
func (g *Governor) TryAcquire(now time.Time) bool {
	if g.max <= 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.evictLocked(now)
	if len(g.calls) >= g.max {
		return false
	}
	g.calls = append(g.calls, now)
	return true
}

// InWindow devuelve cuántas llamadas hay dentro de la ventana. Para status.
func (g *Governor) InWindow(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.evictLocked(now)
	return len(g.calls)
}

func (g *Governor) evictLocked(now time.Time) {
	cutoff := now.Add(-g.window)
	kept := g.calls[:0]
	for _, t := range g.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.calls = kept
}
