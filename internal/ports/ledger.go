package ports

import (
	"context"
	"time"
)

// Ledger es el registro persistido de identidades ya apostadas.
// Es el ancla de corrección del sistema: una identidad con entrada
// viva nunca se vuelve a despachar, también tras un reinicio.
type Ledger interface {
	// IsLive devuelve true si existe una entrada para identity cuya
	// expiración es posterior a now.
	IsLive(ctx context.Context, identity string, now time.Time) (bool, error)

	// Commit inserta (o sobreescribe) la entrada. La expiración es
	// max(actionTime+TTL, eventTime+grace) si eventTime es conocido;
	// actionTime+TTL si no. eventTime zero = desconocido.
	Commit(ctx context.Context, identity string, actionTime, eventTime time.Time) error

	// Prune borra las entradas expiradas y devuelve cuántas quitó.
	// Se llama de forma oportunista (una vez por ciclo), nunca por timer.
	Prune(ctx context.Context, now time.Time) (int, error)

	Close() error
}
