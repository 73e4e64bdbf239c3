// Package server exposes the engine over HTTP JSON (§6): the pluggable
// transport the spec names, bound here to stdlib net/http rather than any
// particular RPC framework.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/config"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/coordinator"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/core"
	"github.com/icysaintdx/InvestMind-Pro-sub005/pkg/evidence"
)

// Server binds an Engine to HTTP handlers. One Server typically backs one
// process; the Engine it wraps is the thing that is process-wide, not this
// struct.
type Server struct {
	engine          *coordinator.Engine
	evidenceByKey   map[string]evidence.Provider
	mux             *http.ServeMux
	sessionsStarted prometheus.Counter
	sessionDuration prometheus.Histogram
}

// New builds a Server wrapping engine. evidenceByKey backs the
// GET /evidence/{key}/{symbol} passthrough used to pre-warm UI panels; it is
// not consulted by the core engine itself.
func New(engine *coordinator.Engine, evidenceByKey map[string]evidence.Provider) *Server {
	s := &Server{
		engine:        engine,
		evidenceByKey: evidenceByKey,
		mux:           http.NewServeMux(),
		sessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "investmind_sessions_started_total",
			Help: "Number of analysis sessions started.",
		}),
		sessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "investmind_session_duration_seconds",
			Help:    "Wall time from analyze request to session_completed.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /analyze", s.handleAnalyze)
	s.mux.HandleFunc("GET /agents", s.handleAgents)
	s.mux.HandleFunc("GET /config/agents", s.handleConfigGet)
	s.mux.HandleFunc("POST /config/agents", s.handleConfigPost)
	s.mux.HandleFunc("GET /evidence/{key}/{symbol}", s.handleEvidence)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type analyzeRequest struct {
	Symbol               string            `json:"symbol"`
	EnabledOverrides     map[string]bool   `json:"enabledOverrides,omitempty"`
	OperatorInstructions map[string]string `json:"operatorInstructions,omitempty"`
	Stages               []int             `json:"stages,omitempty"`
}

// handleAnalyze streams newline-delimited JSON progress events, terminated
// by session_completed (§6). The HTTP status is always 200 once the stream
// starts; per-agent failures travel in the body, not the status line.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sink := core.NewBoundedSink(256)
	sessionID := uuid.NewString()
	s.sessionsStarted.Inc()
	start := time.Now()

	ctx := r.Context()
	coord := s.engine.NewCoordinator()
	go func() {
		defer sink.Close()
		_, err := coord.Run(ctx, sessionID, coordinator.Request{
			Symbol:               req.Symbol,
			EnabledOverrides:     req.EnabledOverrides,
			OperatorInstructions: req.OperatorInstructions,
			Stages:               req.Stages,
		}, sink)
		if err != nil {
			slog.Warn("analyze session ended with error", "session", sessionID, "error", err)
		}
	}()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	encoder := json.NewEncoder(w)
	for event := range sink.Events() {
		if err := encoder.Encode(event); err != nil {
			slog.Warn("failed writing progress event to client", "session", sessionID, "error", err)
			return
		}
		flusher.Flush()
		if event.Type == core.EventSessionCompleted {
			s.sessionDuration.Observe(time.Since(start).Seconds())
		}
	}
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	specs := s.engine.Registry.EnabledFor(nil)
	type agentView struct {
		ID       string          `json:"id"`
		Role     string          `json:"role"`
		Stage    int             `json:"stage"`
		Priority config.Priority `json:"priority"`
		Enabled  bool            `json:"enabled"`
	}
	out := make([]agentView, len(specs))
	for i, spec := range specs {
		out[i] = agentView{ID: spec.ID, Role: spec.Role, Stage: spec.Stage, Priority: spec.Priority, Enabled: spec.Enabled}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Registry.StateSnapshot())
}

type configPostRequest struct {
	Profile   string          `json:"profile,omitempty"`
	Overrides map[string]bool `json:"overrides,omitempty"`
}

func (s *Server) handleConfigPost(w http.ResponseWriter, r *http.Request) {
	var req configPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Profile != "" {
		if err := s.engine.Registry.ApplyProfile(req.Profile); err != nil {
			writeConfigError(w, err)
			return
		}
	}
	if len(req.Overrides) > 0 {
		if err := s.engine.Registry.SaveOverrides(req.Overrides); err != nil {
			writeConfigError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.engine.Registry.StateSnapshot())
}

func writeConfigError(w http.ResponseWriter, err error) {
	var invariant *config.InvariantViolation
	var writeErr *config.ConfigWriteError
	switch {
	case errors.As(err, &invariant):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &writeErr):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	symbol := r.PathValue("symbol")

	provider, ok := s.evidenceByKey[key]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no evidence provider registered for key %q", key))
		return
	}

	source, err := provider.Fetch(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, source)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
