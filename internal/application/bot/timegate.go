package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeGate decide si "ahora" cae dentro de la ventana de operación
// configurada, en la timezone configurada. Sin ventana configurada,
// siempre abierto. Ventanas que cruzan medianoche (end < start) se
// interpretan como envolventes: 22:00–02:00 está abierta a las 23:30
// y a la 01:00.
type TimeGate struct {
	start   int // minutos desde medianoche
	end     int
	loc     *time.Location
	enabled bool
}

// NewTimeGate construye la gate a partir de "HH:MM" start/end y un
// nombre de timezone IANA. start y end vacíos → gate siempre abierta.
// Una ventana a medias (solo start o solo end) o malformada es un
// error de configuración, fatal en el arranque.
func NewTimeGate(start, end, tz string) (*TimeGate, error) {
	if start == "" && end == "" {
		return &TimeGate{}, nil
	}
	if start == "" || end == "" {
		return nil, fmt.Errorf("timegate: window needs both start and end (got %q, %q)", start, end)
	}

	startMin, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("timegate: start: %w", err)
	}
	endMin, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("timegate: end: %w", err)
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timegate: timezone %q: %w", tz, err)
	}

	return &TimeGate{start: startMin, end: endMin, loc: loc, enabled: true}, nil
}

// IsOpen devuelve true si now (convertido a la timezone de la gate)
// cae en [start, end). Con end < start la ventana envuelve medianoche.
func (g *TimeGate) IsOpen(now time.Time) bool {
	if !g.enabled {
		return true
	}

	local := now.In(g.loc)
	minute := local.Hour()*60 + local.Minute()

	if g.start <= g.end {
		return minute >= g.start && minute < g.end
	}
	return minute >= g.start || minute < g.end
}

// Enabled indica si hay ventana configurada. Para status.
func (g *TimeGate) Enabled() bool {
	return g.enabled
}

// parseClock convierte "HH:MM" a minutos desde medianoche.
func parseClock(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return hour*60 + minute, nil
}
