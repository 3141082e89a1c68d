// Package app assembles the market maker: exchange gateway, stream, book
// cache, ledger, reconciler, quoting engine, journal, and operator API.
package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/internal/circuitbreaker"
	"github.com/oddsmith/kalshi-mm/internal/gateway"
	"github.com/oddsmith/kalshi-mm/internal/inventory"
	"github.com/oddsmith/kalshi-mm/internal/journal"
	"github.com/oddsmith/kalshi-mm/internal/odds"
	"github.com/oddsmith/kalshi-mm/internal/operator"
	"github.com/oddsmith/kalshi-mm/internal/orderbook"
	"github.com/oddsmith/kalshi-mm/internal/quoting"
	"github.com/oddsmith/kalshi-mm/internal/reconciler"
	"github.com/oddsmith/kalshi-mm/pkg/config"
	"github.com/oddsmith/kalshi-mm/pkg/healthprobe"
	"github.com/oddsmith/kalshi-mm/pkg/websocket"
)

// App is the application orchestrator.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	healthChecker *healthprobe.HealthChecker
	exchange      *gateway.Client
	stream        *websocket.Manager
	books         *orderbook.Cache
	ledger        *inventory.Ledger
	orders        *reconciler.Reconciler
	engine        *quoting.Engine
	breaker       *circuitbreaker.Breaker
	store         journal.Store
	oddsClient    *odds.Client
	operator      *operator.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}
