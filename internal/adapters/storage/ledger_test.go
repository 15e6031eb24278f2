package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polywhaler/internal/adapters/storage"
)

const (
	testTTL   = 21600 * time.Second
	testGrace = 1800 * time.Second
)

func newLedger(t *testing.T) *storage.SQLiteLedger {
	t.Helper()
	l, err := storage.NewSQLiteLedger(":memory:", testTTL, testGrace)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_CommitThenLiveUntilExpiry(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	t0 := time.Unix(0, 0)

	require.NoError(t, l.Commit(ctx, "0xabc:A", t0, time.Time{}))

	// TTL=21600 sin event time: vivo en 21599, muerto en 21600 y 21601.
	live, err := l.IsLive(ctx, "0xabc:A", t0.Add(21599*time.Second))
	require.NoError(t, err)
	assert.True(t, live)

	live, err = l.IsLive(ctx, "0xabc:A", t0.Add(21600*time.Second))
	require.NoError(t, err)
	assert.False(t, live)

	live, err = l.IsLive(ctx, "0xabc:A", t0.Add(21601*time.Second))
	require.NoError(t, err)
	assert.False(t, live)
}

func TestLedger_UnknownIdentityNotLive(t *testing.T) {
	l := newLedger(t)
	live, err := l.IsLive(context.Background(), "0xnope:B", time.Now())
	require.NoError(t, err)
	assert.False(t, live)
}

func TestLedger_EventTimeExtendsExpiry(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	t0 := time.Unix(1_000_000, 0)
	event := t0.Add(48 * time.Hour) // mucho después de placed_at+TTL

	require.NoError(t, l.Commit(ctx, "0xabc:A", t0, event))

	// Pasado el TTL pero antes de event+grace: sigue vivo.
	live, err := l.IsLive(ctx, "0xabc:A", t0.Add(testTTL+time.Hour))
	require.NoError(t, err)
	assert.True(t, live)

	// Después de event+grace: expirado.
	live, err = l.IsLive(ctx, "0xabc:A", event.Add(testGrace+time.Second))
	require.NoError(t, err)
	assert.False(t, live)
}

func TestLedger_EventTimeBeforeTTLKeepsTTL(t *testing.T) {
	// expiry = max(placed+ttl, event+grace): un evento que resuelve
	// enseguida no acorta la vida de la entrada.
	l := newLedger(t)
	ctx := context.Background()
	t0 := time.Unix(1_000_000, 0)
	event := t0.Add(time.Hour)

	require.NoError(t, l.Commit(ctx, "0xabc:A", t0, event))

	live, err := l.IsLive(ctx, "0xabc:A", event.Add(testGrace+time.Minute))
	require.NoError(t, err)
	assert.True(t, live, "placed_at+TTL aún no pasó")
}

func TestLedger_CommitOverwrites(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	t0 := time.Unix(1_000_000, 0)

	require.NoError(t, l.Commit(ctx, "0xabc:A", t0, time.Time{}))
	require.NoError(t, l.Commit(ctx, "0xabc:A", t0.Add(time.Hour), time.Time{}))

	live, err := l.IsLive(ctx, "0xabc:A", t0.Add(testTTL+30*time.Minute))
	require.NoError(t, err)
	assert.True(t, live, "el re-commit movió la expiración")
}

func TestLedger_PruneRemovesOnlyExpired(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	t0 := time.Unix(1_000_000, 0)

	require.NoError(t, l.Commit(ctx, "old:A", t0, time.Time{}))
	require.NoError(t, l.Commit(ctx, "new:A", t0.Add(testTTL), time.Time{}))

	removed, err := l.Prune(ctx, t0.Add(testTTL+time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err := l.Count(ctx, t0.Add(testTTL+time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLedger_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()
	t0 := time.Unix(1_000_000, 0)

	l, err := storage.NewSQLiteLedger(path, testTTL, testGrace)
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, "0xabc:A", t0, time.Time{}))
	require.NoError(t, l.Close())

	// Reabrir simula un reinicio del proceso.
	l2, err := storage.NewSQLiteLedger(path, testTTL, testGrace)
	require.NoError(t, err)
	defer l2.Close()

	live, err := l2.IsLive(ctx, "0xabc:A", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, live)
}
