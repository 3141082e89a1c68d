package app

import (
	"context"
	"fmt"
	"net/url"

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
	"github.com/oddsmith/kalshi-mm/pkg/cache"
	"github.com/oddsmith/kalshi-mm/pkg/config"
	"github.com/oddsmith/kalshi-mm/pkg/healthprobe"
	"github.com/oddsmith/kalshi-mm/pkg/websocket"
)

// New wires every component. A key that cannot be loaded is fatal here;
// a gateway that cannot authenticate is fatal in Run.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	signer, err := gateway.NewSigner(cfg.ExchangeKeyID, cfg.ExchangeKeyPath)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("load exchange key: %w", err)
	}

	marketsCache, err := setupCache(logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup cache: %w", err)
	}

	exchange := gateway.New(&gateway.Config{
		BaseURL:      cfg.ExchangeAPIBase,
		Signer:       signer,
		RateLimit:    cfg.ExchangeRateLimit,
		RateBurst:    cfg.ExchangeRateBurst,
		HTTPTimeout:  cfg.ExchangeHTTPTimout,
		MarketsCache: marketsCache,
		Logger:       logger,
	})

	stream, err := setupStream(cfg, logger, signer)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup stream: %w", err)
	}

	store, err := setupStore(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup journal: %w", err)
	}

	books := orderbook.New(&orderbook.Config{Logger: logger})
	ledger := inventory.New(logger)

	orders := reconciler.New(&reconciler.Config{
		Exchange:           exchange,
		Logger:             logger,
		OverbidCancelDelay: cfg.OverbidCancelDelay,
		Workers:            cfg.ReconcileWorkers,
	})

	oddsClient := odds.New(&odds.Config{
		BaseURL: cfg.OddsAPIBase,
		APIKey:  cfg.OddsAPIKey,
		Logger:  logger,
	})

	breaker, err := circuitbreaker.New(&circuitbreaker.Config{
		CheckInterval:   cfg.BalanceCheckInterval,
		OrderMultiplier: cfg.BalanceOrderMultiplier,
		MinCents:        cfg.BalanceFloorCents,
		HysteresisRatio: cfg.BalanceHysteresisRatio,
		Exchange:        exchange,
		Logger:          logger,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup balance breaker: %w", err)
	}

	engine, err := quoting.New(&quoting.Config{
		Books:    books,
		Ledger:   ledger,
		Orders:   orders,
		Exchange: exchange,
		Stream:   stream,
		Events:   stream.EventChan(),
		Gaps:     stream.GapChan(),
		Odds:     oddsClient,
		Store:    store,
		Breaker:  breaker,
		Logger:   logger,
		Settings: quoting.Settings{
			CheckInterval:      cfg.CheckInterval,
			StickyResetSecs:    cfg.StickyResetSecs,
			OverbidCancelDelay: cfg.OverbidCancelDelay,
		},
		FeeBufferCents: cfg.RebalanceFeeBufferCents,
		Workers:        cfg.ReconcileWorkers,
		Defaults: quoting.MatchDefaults{
			Edge:         cfg.DefaultEdgeCents,
			OrderSize:    cfg.DefaultOrderSize,
			InventoryCap: cfg.DefaultInventoryCap,
		},
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup quoting engine: %w", err)
	}

	healthChecker := healthprobe.New()

	operatorServer := operator.New(&operator.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		Engine:        engine,
		Orders:        orders,
		Store:         store,
		Books:         books,
		HealthChecker: healthChecker,
	})

	return &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthChecker,
		exchange:      exchange,
		stream:        stream,
		books:         books,
		ledger:        ledger,
		orders:        orders,
		engine:        engine,
		breaker:       breaker,
		store:         store,
		oddsClient:    oddsClient,
		operator:      operatorServer,
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

func setupCache(logger *zap.Logger) (cache.Cache, error) {
	return cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 10000,
		MaxCost:     1000,
		BufferItems: 64,
		Logger:      logger,
	})
}

func setupStream(cfg *config.Config, logger *zap.Logger, signer *gateway.Signer) (*websocket.Manager, error) {
	wsURL, err := url.Parse(cfg.ExchangeWSURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	wsPath := wsURL.Path

	return websocket.New(websocket.Config{
		URL: cfg.ExchangeWSURL,
		AuthHeaders: func() (map[string]string, error) {
			return signer.Headers("GET", wsPath)
		},
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Logger:                logger,
	}), nil
}

func setupStore(cfg *config.Config, logger *zap.Logger) (journal.Store, error) {
	if cfg.JournalDriver == "postgres" {
		store, err := journal.NewPostgres(&journal.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres journal: %w", err)
		}
		return store, nil
	}

	return journal.NewSQLite(cfg.JournalPath, logger)
}
