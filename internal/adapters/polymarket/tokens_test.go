package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const clobMarketBody = `{
  "tokens": [
    {"outcome": "Lakers", "token_id": "111"},
    {"outcome": "Celtics", "token_id": "222"}
  ]
}`

func TestResolve_MatchesLabelExact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/0xabc", r.URL.Path)
		w.Write([]byte(clobMarketBody))
	}))
	defer srv.Close()

	r := newTokenResolver(NewClient(srv.URL, srv.URL))
	tokenID, err := r.Resolve(context.Background(), "0xabc", "B", "Lakers", "Celtics")
	require.NoError(t, err)
	assert.Equal(t, "222", tokenID)
}

func TestResolve_MatchesLabelNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(clobMarketBody))
	}))
	defer srv.Close()

	r := newTokenResolver(NewClient(srv.URL, srv.URL))
	tokenID, err := r.Resolve(context.Background(), "0xabc", "A", "  LAKERS ", "")
	require.NoError(t, err)
	assert.Equal(t, "111", tokenID)
}

func TestResolve_PositionalFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(clobMarketBody))
	}))
	defer srv.Close()

	r := newTokenResolver(NewClient(srv.URL, srv.URL))
	// Sin labels: binario → A = primer token, B = segundo.
	tokenID, err := r.Resolve(context.Background(), "0xabc", "B", "", "")
	require.NoError(t, err)
	assert.Equal(t, "222", tokenID)
}

func TestResolve_GammaFallback(t *testing.T) {
	clobCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/markets/0xabc" {
			clobCalls++
			w.Write([]byte(`{"tokens": []}`)) // CLOB sin tokens
			return
		}
		// Gamma
		assert.Equal(t, "0xabc", r.URL.Query().Get("condition_ids"))
		w.Write([]byte(`[{"conditionId": "0xabc", "tokens": [
			{"outcome": "Yes", "token_id": "333"},
			{"outcome": "No", "token_id": "444"}
		]}]`))
	}))
	defer srv.Close()

	r := newTokenResolver(NewClient(srv.URL, srv.URL))
	tokenID, err := r.Resolve(context.Background(), "0xabc", "A", "Yes", "No")
	require.NoError(t, err)
	assert.Equal(t, "333", tokenID)
	assert.Equal(t, 1, clobCalls)
}

func TestResolve_CachesTokens(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(clobMarketBody))
	}))
	defer srv.Close()

	r := newTokenResolver(NewClient(srv.URL, srv.URL))
	ctx := context.Background()

	_, err := r.Resolve(ctx, "0xabc", "A", "Lakers", "Celtics")
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "0xabc", "B", "Lakers", "Celtics")
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "segunda resolución sale de cache")
}

func TestResolve_EmptyConditionID(t *testing.T) {
	r := newTokenResolver(NewClient("http://127.0.0.1:0", ""))
	_, err := r.Resolve(context.Background(), "", "A", "", "")
	require.Error(t, err)
}

func TestDetectPricePrecision(t *testing.T) {
	assert.Equal(t, int64(100), detectPricePrecision(0.60))
	assert.Equal(t, int64(1000), detectPricePrecision(0.673))
	assert.Equal(t, int64(100), detectPricePrecision(0.55))
}

func TestNormalizeOutcome(t *testing.T) {
	assert.Equal(t, "new york yankees", normalizeOutcome("  New   York  Yankees "))
}
