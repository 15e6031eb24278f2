package control

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/alejandrodnm/polywhaler/internal/application/bot"
	"github.com/alejandrodnm/polywhaler/internal/ports"
)

// Server expone el plano de control HTTP del bot: estado, start/stop
// y preflight. No toca la lógica de trading: todo pasa por el Runner
// y el executor ya construidos.
type Server struct {
	runner   *bot.Runner
	executor ports.OrderExecutor
	token    string
	addr     string

	httpServer *http.Server
	runCtx     context.Context
}

// NewServer construye el servidor de control. token vacío desactiva
// la autenticación (solo razonable escuchando en localhost).
func NewServer(addr, token string, runner *bot.Runner, executor ports.OrderExecutor, runCtx context.Context) *Server {
	return &Server{
		runner:   runner,
		executor: executor,
		token:    token,
		addr:     addr,
		runCtx:   runCtx,
	}
}

// Router monta las rutas. Separado de ListenAndServe para que los
// tests puedan golpear el handler con httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/status", s.handleStatus)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/preflight", s.handlePreflight)
	})

	return r
}

// ListenAndServe arranca el servidor y lo apaga limpio cuando ctx
// se cancela.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("control server listening", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// auth exige "Authorization: Bearer <token>" en comparación de tiempo
// constante. Token vacío = sin auth.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.runner.Status()
	writeJSON(w, http.StatusOK, struct {
		bot.Status
		Running bool `json:"running"`
	}{Status: st, Running: s.runner.Running()})
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	if s.runner.Start(s.runCtx) {
		slog.Info("scheduler started via control api")
		writeJSON(w, http.StatusOK, map[string]string{"result": "started"})
		return
	}
	writeJSON(w, http.StatusConflict, map[string]string{"result": "already running"})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if s.runner.Stop() {
		slog.Info("scheduler stopped via control api")
		writeJSON(w, http.StatusOK, map[string]string{"result": "stopped"})
		return
	}
	writeJSON(w, http.StatusConflict, map[string]string{"result": "not running"})
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ConditionID string `json:"conditionId"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body) // body opcional
	}

	if err := s.executor.Preflight(r.Context(), body.ConditionID); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"result": "failed",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"result": "ok",
		"mode":   s.executor.Mode(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("control response encode failed", "err", err)
	}
}
