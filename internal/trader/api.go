package trader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"phase-trade-bot-go/internal/command"
	"phase-trade-bot-go/internal/models"
	"phase-trade-bot-go/internal/phase"
	"phase-trade-bot-go/internal/venue"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// TradeLog lists journaled trades and phases.
type TradeLog interface {
	Trades(ctx context.Context, limit int) ([]models.Trade, error)
	Phases(ctx context.Context) ([]models.Phase, error)
}

// APIServer provides an HTTP interface for the trading engine.
type APIServer struct {
	server  *http.Server
	engine  *Engine
	router  *command.Router
	journal TradeLog
	hub     http.Handler
	logger  *zap.Logger
}

// NewAPIServer creates a new APIServer. journal and hub may be nil.
func NewAPIServer(port int, engine *Engine, journal TradeLog, hub http.Handler, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine:  engine,
		router:  command.NewRouter(engine, logger),
		journal: journal,
		hub:     hub,
		logger:  logger.Named("api-server"),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.statusHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /api/configure", s.configureHandler)
	mux.HandleFunc("POST /api/start", s.startHandler)
	mux.HandleFunc("POST /api/stop", s.stopHandler)
	mux.HandleFunc("POST /command", s.commandHandler)
	mux.HandleFunc("GET /api/trades", s.tradesHandler)
	mux.HandleFunc("GET /api/phases", s.phasesHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.hub != nil {
		mux.Handle("GET /ws", s.hub)
	}
	return mux
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

type statusResponse struct {
	UUID         string   `json:"uuid"`
	State        string   `json:"state"`
	Symbol       string   `json:"symbol,omitempty"`
	Phase        int      `json:"phase"`
	MaxPhases    int      `json:"max_phases"`
	MaxTrades    int      `json:"max_trades"`
	ProfitTarget float64  `json:"profit_target"`
	Trend        string   `json:"trend,omitempty"`
	PhaseProfit  float64  `json:"phase_profit"`
	ActiveTrades []uint64 `json:"active_trades"`
	Equity       *float64 `json:"equity"`
	StartTime    string   `json:"start_time,omitempty"`
	Uptime       string   `json:"uptime,omitempty"`
	Report       string   `json:"report"`
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	report := s.engine.Report(r.Context())
	st := report.Status

	status := statusResponse{
		UUID:         s.engine.UUID,
		State:        st.State.String(),
		Symbol:       st.Session.Symbol,
		Phase:        st.Session.CurrentPhase,
		MaxPhases:    st.Config.MaxPhases,
		MaxTrades:    st.Config.MaxTradesPerPhase,
		ProfitTarget: st.Config.ProfitTargetPerPhase,
		Trend:        string(st.Session.CurrentTrend),
		PhaseProfit:  st.Session.PhaseProfit,
		ActiveTrades: make([]uint64, 0, len(st.Session.ActiveTrades)),
		Report:       report.String(),
	}
	for _, h := range st.Session.ActiveTrades {
		status.ActiveTrades = append(status.ActiveTrades, uint64(h))
	}
	if report.EquityErr == nil {
		status.Equity = &report.Equity
	}
	if !st.Session.StartedAt.IsZero() {
		status.StartTime = st.Session.StartedAt.Format(time.RFC3339)
	}
	if report.Uptime > 0 {
		status.Uptime = report.Uptime.Truncate(time.Second).String()
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) configureHandler(w http.ResponseWriter, r *http.Request) {
	var cfg phase.Config
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid configuration body: %w", err))
		return
	}
	if err := s.engine.Configure(cfg); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "configured", "config": cfg})
}

func (s *APIServer) startHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(r.Context()); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "trading started"})
}

func (s *APIServer) stopHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "trading stopped"})
}

// commandHandler accepts a raw command line, or {"command": "..."} as JSON.
func (s *APIServer) commandHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	line := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid command body: %w", err))
			return
		}
		line = req.Command
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"reply": s.router.Handle(r.Context(), line)})
}

func (s *APIServer) tradesHandler(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeJSON(w, http.StatusOK, []models.Trade{})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a non-negative integer, got %q", v))
			return
		}
		limit = n
	}
	trades, err := s.journal.Trades(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *APIServer) phasesHandler(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeJSON(w, http.StatusOK, []models.Phase{})
		return
	}
	phases, err := s.journal.Phases(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, phases)
}

func statusFor(err error) int {
	var ce *phase.ConfigError
	var connErr *venue.ConnectError
	switch {
	case errors.As(err, &ce), errors.Is(err, phase.ErrNotConfigured):
		return http.StatusBadRequest
	case errors.Is(err, phase.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *APIServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (s *APIServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
