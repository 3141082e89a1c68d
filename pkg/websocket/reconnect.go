package websocket

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReconnectConfig holds the exponential backoff parameters for stream
// reconnection.
type ReconnectConfig struct {
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterPercent     float64 // 0.2 = 20%
}

// ReconnectManager retries the stream connection with exponential backoff
// and jitter, so a fleet of reconnecting clients does not stampede the
// exchange.
type ReconnectManager struct {
	config ReconnectConfig
	logger *zap.Logger

	mu             sync.Mutex
	currentBackoff time.Duration
}

// NewReconnectManager creates a reconnection manager.
func NewReconnectManager(cfg ReconnectConfig, logger *zap.Logger) *ReconnectManager {
	return &ReconnectManager{
		config:         cfg,
		logger:         logger,
		currentBackoff: cfg.InitialDelay,
	}
}

// Reconnect retries connectFunc until it succeeds or the context is
// cancelled. Success resets the backoff for the next outage.
func (rm *ReconnectManager) Reconnect(ctx context.Context, connectFunc func(context.Context) error) error {
	for {
		backoff := rm.nextBackoff()

		rm.logger.Info("attempting-reconnection", zap.Duration("backoff", backoff))
		ReconnectAttemptsTotal.Inc()

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		if err := connectFunc(ctx); err != nil {
			rm.logger.Warn("reconnection-failed", zap.Error(err))
			ReconnectFailuresTotal.Inc()
			rm.incrementBackoff()
			continue
		}

		rm.Reset()
		rm.logger.Info("reconnection-successful")
		return nil
	}
}

// Reset returns the backoff to the initial delay.
func (rm *ReconnectManager) Reset() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.currentBackoff = rm.config.InitialDelay
}

// nextBackoff returns the current delay stretched by up to JitterPercent.
func (rm *ReconnectManager) nextBackoff() time.Duration {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	jitter := 1.0 + rand.Float64()*rm.config.JitterPercent
	return time.Duration(float64(rm.currentBackoff) * jitter)
}

// incrementBackoff grows the delay by the multiplier, capped at MaxDelay.
func (rm *ReconnectManager) incrementBackoff() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	next := time.Duration(float64(rm.currentBackoff) * rm.config.BackoffMultiplier)
	if next > rm.config.MaxDelay {
		next = rm.config.MaxDelay
	}
	rm.currentBackoff = next
}
