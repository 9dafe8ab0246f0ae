// Package dashboard serves a finished backtest result over a read-only
// JSON API.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/condor_backtest/internal/backtest"
	"github.com/eddiefleurent/condor_backtest/internal/logging"
	"github.com/eddiefleurent/condor_backtest/internal/report"
)

// Server exposes one backtest result. The result is never modified after
// construction, so handlers need no locking.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	result    *backtest.Result
	logger    logrus.FieldLogger
	authToken string
	port      int
}

// Config configures the listener and optional token auth.
type Config struct {
	AuthToken string
	Port      int
}

// Float is a float64 that encodes non-finite values as JSON strings.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return json.Marshal(report.Float(v, 0))
	}
	return json.Marshal(v)
}

// MetricsView is backtest.Metrics in a JSON-safe form.
type MetricsView struct {
	InitialCapital      Float `json:"initial_capital"`
	FinalCapital        Float `json:"final_capital"`
	TotalReturnPct      Float `json:"total_return_pct"`
	AnnualizedReturnPct Float `json:"annualized_return_pct"`
	MaxDrawdownPct      Float `json:"max_drawdown_pct"`
	SharpeRatio         Float `json:"sharpe_ratio"`
	SortinoRatio        Float `json:"sortino_ratio"`
	WinRatePct          Float `json:"win_rate_pct"`
	AvgProfitPerWin     Float `json:"avg_profit_per_win"`
	AvgLossPerLoss      Float `json:"avg_loss_per_loss"`
	ProfitFactor        Float `json:"profit_factor"`
	AvgHoldingDays      Float `json:"avg_holding_days"`
	TotalTrades         int   `json:"total_trades"`
	WinningTrades       int   `json:"winning_trades"`
	LosingTrades        int   `json:"losing_trades"`
	Processed           int   `json:"snapshots_processed"`
	Skipped             int   `json:"snapshots_skipped"`
}

// TradeView adds the derived profit to a ledger entry.
type TradeView struct {
	backtest.Trade
	State string `json:"status"`
	PnL   Float  `json:"profit"`
}

// NewServer creates a server for result.
func NewServer(cfg Config, result *backtest.Result, logger logrus.FieldLogger) *Server {
	if result == nil {
		result = &backtest.Result{}
	}
	s := &Server{
		router:    chi.NewRouter(),
		result:    result,
		logger:    logging.OrDiscard(logger),
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/metrics", s.handleGetMetrics)
		r.Get("/trades", s.handleGetTrades)
		r.Get("/trades/{id}", s.handleGetTrade)
		r.Get("/equity", s.handleGetEquity)
	})
}

// Handler returns the routed handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Handled request")
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start listens until Shutdown is called. It returns http.ErrServerClosed
// after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Infof("Starting dashboard server on port %d", s.port)
	return s.server.ListenAndServe()
}

// Shutdown stops the listener, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, newMetricsView(s.result))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && status != backtest.StatusOpen && status != backtest.StatusClosed {
		http.Error(w, "status must be open or closed", http.StatusBadRequest)
		return
	}

	views := make([]TradeView, 0, len(s.result.Trades))
	for _, t := range s.result.Trades {
		if status != "" && t.Status() != status {
			continue
		}
		views = append(views, newTradeView(t))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, t := range s.result.Trades {
		if t.ID == id {
			s.writeJSON(w, http.StatusOK, newTradeView(t))
			return
		}
	}
	s.logger.WithField("trade_id", id).Debug("Trade not found")
	http.Error(w, "Not Found", http.StatusNotFound)
}

func (s *Server) handleGetEquity(w http.ResponseWriter, _ *http.Request) {
	points := s.result.EquityCurve
	if points == nil {
		points = []backtest.EquityPoint{}
	}
	s.writeJSON(w, http.StatusOK, points)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func newMetricsView(r *backtest.Result) MetricsView {
	m := r.Metrics
	return MetricsView{
		InitialCapital:      Float(m.InitialCapital),
		FinalCapital:        Float(m.FinalCapital),
		TotalReturnPct:      Float(m.TotalReturnPct),
		AnnualizedReturnPct: Float(m.AnnualizedReturnPct),
		MaxDrawdownPct:      Float(m.MaxDrawdownPct),
		SharpeRatio:         Float(m.SharpeRatio),
		SortinoRatio:        Float(m.SortinoRatio),
		WinRatePct:          Float(m.WinRatePct),
		AvgProfitPerWin:     Float(m.AvgProfitPerWin),
		AvgLossPerLoss:      Float(m.AvgLossPerLoss),
		ProfitFactor:        Float(m.ProfitFactor),
		AvgHoldingDays:      Float(m.AvgHoldingDays),
		TotalTrades:         m.TotalTrades,
		WinningTrades:       m.WinningTrades,
		LosingTrades:        m.LosingTrades,
		Processed:           r.Processed,
		Skipped:             r.Skipped,
	}
}

func newTradeView(t backtest.Trade) TradeView {
	return TradeView{Trade: t, State: t.Status(), PnL: Float(t.Profit())}
}
