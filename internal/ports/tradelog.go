package ports

import (
	"context"

	"github.com/alejandrodnm/polywhaler/internal/domain"
)

// TradeLog es el registro append-only de resultados terminales del
// pipeline, para auditoría y análisis offline.
type TradeLog interface {
	Append(rec domain.TradeRecord) error
	Close() error
}

// Notifier presenta el resultado de cada ciclo al operador.
type Notifier interface {
	NotifyCycle(ctx context.Context, outcomes []domain.Outcome) error
}
