package storage

// ledger.go — registro de dedupe persistido en SQLite.
//
// Estrategia:
//   - `placed`: UNA fila por identidad despachada (UPSERT). La
//     expiración se calcula al escribir, no al leer: las lecturas son
//     una comparación de enteros.
//   - Prune perezoso: lo dispara el scheduler una vez por ciclo, nunca
//     un timer — tolera periodos largos sin actividad sin fugas.
//   - Un fallo de I/O nunca es fatal para el proceso: el pipeline
//     tratará al candidato como no-despachable ese ciclo.

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
-- Una fila por identidad (conditionId:side) ya despachada
CREATE TABLE IF NOT EXISTS placed (
    identity   TEXT PRIMARY KEY,
    placed_at  INTEGER NOT NULL,          -- epoch segundos
    event_time INTEGER,                   -- epoch segundos, NULL si desconocido
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_placed_expires ON placed(expires_at);
`

// SQLiteLedger implementa ports.Ledger usando SQLite (pure Go, sin CGo).
type SQLiteLedger struct {
	db    *sql.DB
	mu    sync.Mutex // serializa read-modify-write entre candidatos
	ttl   time.Duration
	grace time.Duration
}

// NewSQLiteLedger abre (o crea) la base de datos en la ruta dada y
// aplica el schema. ttl es la vida por defecto de una entrada; grace
// extiende la vida más allá del event time cuando este es conocido.
func NewSQLiteLedger(path string, ttl, grace time.Duration) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteLedger: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteLedger: apply schema: %w", err)
	}

	return &SQLiteLedger{db: db, ttl: ttl, grace: grace}, nil
}

// IsLive devuelve true si identity tiene una entrada con expiración
// posterior a now. No borra nada: el prune es responsabilidad del ciclo.
func (l *SQLiteLedger) IsLive(ctx context.Context, identity string, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var expiresAt int64
	err := l.db.QueryRowContext(ctx,
		`SELECT expires_at FROM placed WHERE identity = ?`, identity,
	).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage.IsLive: query %q: %w", identity, err)
	}
	return now.Unix() < expiresAt, nil
}

// Commit inserta o sobreescribe la entrada para identity. Debe ser
// durable antes de que el pipeline anuncie el dispatch como exitoso.
func (l *SQLiteLedger) Commit(ctx context.Context, identity string, actionTime, eventTime time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	expires := actionTime.Add(l.ttl).Unix()
	var eventCol any
	if !eventTime.IsZero() {
		eventCol = eventTime.Unix()
		if withGrace := eventTime.Add(l.grace).Unix(); withGrace > expires {
			expires = withGrace
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO placed (identity, placed_at, event_time, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			placed_at  = excluded.placed_at,
			event_time = excluded.event_time,
			expires_at = excluded.expires_at
	`, identity, actionTime.Unix(), eventCol, expires)
	if err != nil {
		return fmt.Errorf("storage.Commit: upsert %q: %w", identity, err)
	}
	return nil
}

// Prune borra entradas expiradas y devuelve cuántas quitó.
func (l *SQLiteLedger) Prune(ctx context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.ExecContext(ctx,
		`DELETE FROM placed WHERE expires_at <= ?`, now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("storage.Prune: delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count devuelve el número de entradas vivas. Solo para status/tests.
func (l *SQLiteLedger) Count(ctx context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM placed WHERE expires_at > ?`, now.Unix(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage.Count: %w", err)
	}
	return n, nil
}

// Close cierra la conexión a la base de datos.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
