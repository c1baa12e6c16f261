// Package api exposes the engine over HTTP: a single POST /api/engine
// entrypoint dispatching named actions, plus a health probe.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/backtest"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/bot"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/config"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/marketdata"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/provider"
	"github.com/BekiCrypto/TekWealth-XAUUSD-Bot/internal/storage"
)

// envelope is the uniform response wrapper for every action.
type envelope struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// request is the single-entrypoint action envelope.
type request struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// httpError carries a status code alongside a caller-facing message.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...interface{}) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// Server is the engine's HTTP surface.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	store      storage.Interface
	market     marketdata.Interface
	exec       provider.Provider
	runner     *bot.Runner
	backtester *backtest.Engine
	cfg        *config.Config
	logger     *logrus.Logger

	actions map[string]actionHandler
}

type actionHandler func(ctx context.Context, data json.RawMessage) (interface{}, error)

// NewServer wires the router over the engine's components.
func NewServer(cfg *config.Config, store storage.Interface, market marketdata.Interface,
	exec provider.Provider, runner *bot.Runner, backtester *backtest.Engine, logger *logrus.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		store:      store,
		market:     market,
		exec:       exec,
		runner:     runner,
		backtester: backtester,
		cfg:        cfg,
		logger:     logger,
	}
	s.registerActions()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.cfg.Server.AuthToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Options("/api/engine", s.handlePreflight)
	s.router.Post("/api/engine", s.handleAction)
	s.router.Get("/health", s.handleHealth)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token != s.cfg.Server.AuthToken {
			s.writeJSON(w, http.StatusUnauthorized, envelope{Error: "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handlePreflight answers options-style requests without dispatching.
func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAction decodes the envelope and dispatches to the named action.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Action == "" {
		s.writeJSON(w, http.StatusBadRequest, envelope{Error: "action is required"})
		return
	}

	handler, ok := s.actions[req.Action]
	if !ok {
		s.writeJSON(w, http.StatusBadRequest, envelope{Error: fmt.Sprintf("unknown action %q", req.Action)})
		return
	}

	result, err := handler(r.Context(), req.Data)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.WithError(err).WithField("action", req.Action).Error("action failed")
		}
		s.writeJSON(w, status, envelope{Error: err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, envelope{OK: true, Data: result})
}

// statusFor maps engine error kinds onto HTTP statuses.
func statusFor(err error) int {
	var httpErr *httpError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.status
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, marketdata.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, backtest.ErrInsufficientData):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("writing response failed")
	}
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("starting engine API on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
