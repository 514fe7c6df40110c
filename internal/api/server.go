// Package api exposes the REST and websocket surface over the engine,
// agent, alert manager, and provider orchestrator.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/solterm/trading-core/internal/alerts"
	"github.com/solterm/trading-core/internal/autonomous"
	"github.com/solterm/trading-core/internal/engine"
	"github.com/solterm/trading-core/internal/events"
	"github.com/solterm/trading-core/internal/metrics"
	"github.com/solterm/trading-core/internal/providers"
	"github.com/solterm/trading-core/pkg/types"
)

// Deps are the components the API serves. Any may be nil; the matching
// routes then return 503.
type Deps struct {
	Engine    *engine.Engine
	Agent     *autonomous.Agent
	Alerts    *alerts.Manager
	Providers *providers.Orchestrator
	Metrics   *metrics.Metrics
	Bus       *events.Bus
}

// Server is the HTTP server.
type Server struct {
	cfg    types.ServerConfig
	logger *zap.Logger
	deps   Deps
	hub    *Hub
	srv    *http.Server
}

// NewServer wires the router.
func NewServer(cfg types.ServerConfig, deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger.Named("api"),
		deps:   deps,
		hub:    NewHub(deps.Bus, logger),
	}

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(s.router())

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router returns the bare route tree (without CORS). Exposed for tests.
func (s *Server) Router() http.Handler { return s.router() }

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	v1.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	v1.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	v1.HandleFunc("/watchlist", s.handleWatchlist).Methods(http.MethodGet)
	v1.HandleFunc("/agent/performance", s.handleAgentPerformance).Methods(http.MethodGet)
	v1.HandleFunc("/agent/decisions", s.handleAgentDecisions).Methods(http.MethodGet)
	v1.HandleFunc("/providers/stats", s.handleProviderStats).Methods(http.MethodGet)
	v1.HandleFunc("/alerts", s.handleListAlerts).Methods(http.MethodGet)
	v1.HandleFunc("/alerts", s.handleCreateAlert).Methods(http.MethodPost)
	v1.HandleFunc("/alerts", s.handleClearAlerts).Methods(http.MethodDelete)
	v1.HandleFunc("/alerts/stats", s.handleAlertStats).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/{id}", s.handleGetAlert).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/{id}", s.handleDeleteAlert).Methods(http.MethodDelete)

	if s.cfg.EnableMetrics && s.deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}

	wsPath := s.cfg.WebSocketPath
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.HandleFunc(wsPath, s.hub.ServeWS)
	return r
}

// Start begins serving and runs the websocket hub.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.Stop()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

func (s *Server) respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.logger.Warn("response encode failed", zap.Error(err))
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respond(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine == nil {
		s.respondError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}
	s.respond(w, http.StatusOK, s.deps.Engine.GetStatus())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine == nil {
		s.respondError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}
	s.respond(w, http.StatusOK, s.deps.Engine.GetStats())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine == nil {
		s.respondError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}
	s.respond(w, http.StatusOK, s.deps.Engine.OpenPositions())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine == nil {
		s.respondError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}
	s.respond(w, http.StatusOK, s.deps.Engine.Trades())
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	if s.deps.Engine == nil {
		s.respondError(w, http.StatusServiceUnavailable, "engine not available")
		return
	}
	s.respond(w, http.StatusOK, s.deps.Engine.Watchlist())
}

func (s *Server) handleAgentPerformance(w http.ResponseWriter, r *http.Request) {
	if s.deps.Agent == nil {
		s.respondError(w, http.StatusServiceUnavailable, "agent not available")
		return
	}
	s.respond(w, http.StatusOK, s.deps.Agent.Performance())
}

func (s *Server) handleAgentDecisions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Agent == nil {
		s.respondError(w, http.StatusServiceUnavailable, "agent not available")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	s.respond(w, http.StatusOK, s.deps.Agent.Decisions(limit))
}

func (s *Server) handleProviderStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Providers == nil {
		s.respondError(w, http.StatusServiceUnavailable, "providers not available")
		return
	}
	s.respond(w, http.StatusOK, s.deps.Providers.Stats())
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		s.respondError(w, http.StatusServiceUnavailable, "alerts not available")
		return
	}
	s.respond(w, http.StatusOK, s.deps.Alerts.List())
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		s.respondError(w, http.StatusServiceUnavailable, "alerts not available")
		return
	}
	var a alerts.Alert
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid alert payload")
		return
	}
	created, err := s.deps.Alerts.Add(a)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, http.StatusCreated, created)
}

func (s *Server) handleClearAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		s.respondError(w, http.StatusServiceUnavailable, "alerts not available")
		return
	}
	n := s.deps.Alerts.ClearAll()
	s.respond(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleAlertStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		s.respondError(w, http.StatusServiceUnavailable, "alerts not available")
		return
	}
	s.respond(w, http.StatusOK, s.deps.Alerts.GetStats())
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		s.respondError(w, http.StatusServiceUnavailable, "alerts not available")
		return
	}
	a, err := s.deps.Alerts.Get(mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respond(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		s.respondError(w, http.StatusServiceUnavailable, "alerts not available")
		return
	}
	if err := s.deps.Alerts.Remove(mux.Vars(r)["id"]); err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "deleted"})
}
