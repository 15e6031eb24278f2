package control_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polywhaler/internal/application/bot"
	"github.com/alejandrodnm/polywhaler/internal/control"
	"github.com/alejandrodnm/polywhaler/internal/domain"
	"github.com/alejandrodnm/polywhaler/internal/ports"
)

type stubFeed struct{}

func (stubFeed) FetchCandidates(context.Context, ports.CandidateQuery) ([]domain.Opportunity, error) {
	return nil, nil
}
func (stubFeed) ReportPick(context.Context, domain.Pick) error { return nil }

type stubLedger struct{}

func (stubLedger) IsLive(context.Context, string, time.Time) (bool, error) { return false, nil }
func (stubLedger) Commit(context.Context, string, time.Time, time.Time) error {
	return nil
}
func (stubLedger) Prune(context.Context, time.Time) (int, error) { return 0, nil }
func (stubLedger) Close() error                                  { return nil }

type stubTradeLog struct{}

func (stubTradeLog) Append(domain.TradeRecord) error { return nil }
func (stubTradeLog) Close() error                    { return nil }

type stubExecutor struct {
	preflightErr error
	lastCond     string
}

func (e *stubExecutor) PlaceOrder(context.Context, domain.PlaceOrderRequest) (domain.OrderResult, error) {
	return domain.OrderResult{OrderID: "ord", Status: "matched", Simulated: true}, nil
}

func (e *stubExecutor) Preflight(_ context.Context, conditionID string) error {
	e.lastCond = conditionID
	return e.preflightErr
}

func (e *stubExecutor) Mode() string { return "paper" }

func newTestServer(t *testing.T, token string, executor *stubExecutor) (*control.Server, *bot.Runner) {
	t.Helper()
	gate, err := bot.NewTimeGate("", "", "UTC")
	require.NoError(t, err)

	pipeline := bot.NewPipeline(bot.PipelineConfig{
		MinGrade:        domain.GradeA,
		MaxPerCycle:     5,
		Bankroll:        1000,
		KellyFraction:   0.25,
		MinStake:        1,
		MaxStake:        50,
		LowROIThreshold: 0.72,
	}, stubLedger{}, executor, stubTradeLog{}, stubFeed{}, gate)

	scheduler := bot.NewScheduler(bot.SchedulerConfig{
		Interval:    time.Hour, // el loop duerme de inmediato en tests
		BackoffBase: time.Second,
		BackoffMax:  time.Minute,
	}, stubFeed{}, pipeline, bot.NewGovernor(0), gate, stubLedger{}, nil, "paper")

	runner := bot.NewRunner(scheduler)
	t.Cleanup(func() { runner.Stop() })

	return control.NewServer("127.0.0.1:0", token, runner, executor, context.Background()), runner
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestControlHealthNeedsNoAuth(t *testing.T) {
	srv, _ := newTestServer(t, "secret", &stubExecutor{})
	rec := doRequest(t, srv.Router(), http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestControlRejectsBadToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret", &stubExecutor{})
	h := srv.Router()

	rec := doRequest(t, h, http.MethodGet, "/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/status", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/status", "secret", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestControlStatusReportsSchedulerState(t *testing.T) {
	srv, _ := newTestServer(t, "secret", &stubExecutor{})
	rec := doRequest(t, srv.Router(), http.MethodGet, "/status", "secret", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		State   string `json:"state"`
		Mode    string `json:"mode"`
		Running bool   `json:"running"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "idle", got.State)
	assert.Equal(t, "paper", got.Mode)
	assert.False(t, got.Running)
}

func TestControlStartStopLifecycle(t *testing.T) {
	srv, runner := newTestServer(t, "secret", &stubExecutor{})
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/start", "secret", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, runner.Running())

	rec = doRequest(t, h, http.MethodPost, "/start", "secret", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/stop", "secret", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, runner.Running())

	rec = doRequest(t, h, http.MethodPost, "/stop", "secret", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestControlPreflight(t *testing.T) {
	executor := &stubExecutor{}
	srv, _ := newTestServer(t, "secret", executor)
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/preflight", "secret", `{"conditionId":"0xabc"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xabc", executor.lastCond)
	assert.Contains(t, rec.Body.String(), `"paper"`)

	executor.preflightErr = errors.New("clob unreachable")
	rec = doRequest(t, h, http.MethodPost, "/preflight", "secret", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "clob unreachable")
}
