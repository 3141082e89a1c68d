package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/internal/gateway"
	"github.com/oddsmith/kalshi-mm/pkg/cache"
	"github.com/oddsmith/kalshi-mm/pkg/config"
)

// newExchangeClient builds an authenticated gateway client for the utility
// subcommands.
func newExchangeClient() (*gateway.Client, *config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	signer, err := gateway.NewSigner(cfg.ExchangeKeyID, cfg.ExchangeKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load exchange key: %w", err)
	}

	marketsCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zap.NewNop(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create cache: %w", err)
	}

	client := gateway.New(&gateway.Config{
		BaseURL:      cfg.ExchangeAPIBase,
		Signer:       signer,
		RateLimit:    cfg.ExchangeRateLimit,
		RateBurst:    cfg.ExchangeRateBurst,
		HTTPTimeout:  cfg.ExchangeHTTPTimout,
		MarketsCache: marketsCache,
		Logger:       zap.NewNop(),
	})

	return client, cfg, nil
}
