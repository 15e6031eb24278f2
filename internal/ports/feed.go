package ports

import (
	"context"
	"errors"

	"github.com/alejandrodnm/polywhaler/internal/domain"
)

// ErrBlocked señala que el upstream nos rechazó explícitamente
// (403 / anti-automation). El scheduler decide por política si parar
// o hacer backoff; distinguirlo del error de transporte es clave para eso.
var ErrBlocked = errors.New("feed: blocked by upstream")

// CandidateQuery son los parámetros de la consulta de candidatos.
type CandidateQuery struct {
	WindowMinutes          int
	MinGrade               domain.Grade
	Limit                  int
	RequireMicrostructure  bool
	MarketQualityThreshold float64
}

// FeedProvider obtiene candidatos del feed de señales.
type FeedProvider interface {
	// FetchCandidates devuelve la secuencia ordenada de candidatos
	// recientes. Un bloqueo del upstream se devuelve envolviendo
	// ErrBlocked; cualquier otro fallo es un error de transporte.
	FetchCandidates(ctx context.Context, q CandidateQuery) ([]domain.Opportunity, error)

	// ReportPick informa al feed de una apuesta colocada. Best-effort:
	// el pipeline loguea el error pero nunca falla por esto.
	ReportPick(ctx context.Context, pick domain.Pick) error
}
