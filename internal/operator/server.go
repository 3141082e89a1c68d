// Package operator exposes the dashboard surface: a REST API over the
// quoting engine and journal, plus a WebSocket push channel that streams
// state snapshots on change and on a periodic tick.
package operator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/internal/journal"
	"github.com/oddsmith/kalshi-mm/internal/orderbook"
	"github.com/oddsmith/kalshi-mm/internal/quoting"
	"github.com/oddsmith/kalshi-mm/internal/reconciler"
	"github.com/oddsmith/kalshi-mm/pkg/healthprobe"
)

// Server provides the operator HTTP endpoints and the push hub.
type Server struct {
	server *http.Server
	hub    *hub
	logger *zap.Logger

	engine *quoting.Engine
	orders *reconciler.Reconciler
	store  journal.Store
	books  *orderbook.Cache
	health *healthprobe.HealthChecker
}

// Config holds server configuration.
type Config struct {
	Port          string
	Logger        *zap.Logger
	Engine        *quoting.Engine
	Orders        *reconciler.Reconciler
	Store         journal.Store
	Books         *orderbook.Cache
	HealthChecker *healthprobe.HealthChecker
	// PushInterval is the periodic snapshot cadence. Defaults to 5s.
	PushInterval time.Duration
}

// New creates the operator server and wires its routes.
func New(cfg *Config) *Server {
	s := &Server{
		logger: cfg.Logger,
		engine: cfg.Engine,
		orders: cfg.Orders,
		store:  cfg.Store,
		books:  cfg.Books,
		health: cfg.HealthChecker,
	}

	pushInterval := cfg.PushInterval
	if pushInterval <= 0 {
		pushInterval = 5 * time.Second
	}
	s.hub = newHub(cfg.Logger, s.snapshot, cfg.Engine.Changed(), pushInterval)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post("/matches", s.handleAddMatch)
		r.Post("/matches/batch", s.handleAddBatch)
		r.Post("/matches/start-all", s.handleStartAll)
		r.Delete("/matches/all", s.handleRemoveAll)

		r.Route("/matches/{id}", func(r chi.Router) {
			r.Post("/start", s.handleStartMatch)
			r.Post("/stop", s.handleStopMatch)
			r.Post("/odds", s.handleUpdateOdds)
			r.Post("/settings", s.handleMatchSettings)
			r.Post("/refresh-odds", s.handleRefreshOdds)
			r.Post("/settle", s.handleSettleMatch)
			r.Delete("/", s.handleRemoveMatch)
		})

		r.Get("/state", s.handleState)
		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleUpdateSettings)

		r.Post("/kill", s.handleKill)
		r.Post("/sync-inventory", s.handleSyncInventory)

		r.Get("/pnl/match/{id}", s.handleMatchPnL)
		r.Get("/pnl/summary", s.handlePnLSummary)

		r.Route("/hedges", func(r chi.Router) {
			r.Post("/", s.handleAddHedge)
			r.Get("/", s.handleListHedges)
			r.Put("/{id}", s.handleUpdateHedge)
			r.Delete("/{id}", s.handleDeleteHedge)
		})
	})

	r.Get("/ws", s.hub.handleUpgrade)

	s.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the push hub and serves HTTP. Blocks until the server stops.
func (s *Server) Start() error {
	s.hub.start()

	s.logger.Info("operator-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

// Shutdown stops the push hub and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("operator-server-shutting-down")

	s.hub.stop()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("operator-server-shutdown-complete")
	return nil
}

// stateSnapshot is the full dashboard payload pushed over /ws and served
// at /api/state.
type stateSnapshot struct {
	Matches  []quoting.MatchSnapshot `json:"matches"`
	Settings settingsPayload         `json:"settings"`
	SentAt   time.Time               `json:"sent_at"`
}

func (s *Server) snapshot() interface{} {
	return stateSnapshot{
		Matches:  s.engine.State(),
		Settings: settingsToPayload(s.engine.Settings()),
		SentAt:   time.Now().UTC(),
	}
}

// midPrice derives a mid from the cached book: the average of the best
// YES bid and the YES ask.
func (s *Server) midPrice(ticker string) (int, bool) {
	book, ok := s.books.Snapshot(ticker)
	if !ok || book.Yes.BestBid <= 0 {
		return 0, false
	}
	return (book.Yes.BestBid + book.YesAsk) / 2, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
