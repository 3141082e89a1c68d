// Package circuitbreaker halts quoting when the account balance can no
// longer absorb a fill. Thresholds track the rolling average fill notional
// so a strategy trading bigger clips keeps a proportionally bigger cushion.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// BalanceFetcher returns the account balance in cents. The gateway client
// implements it.
type BalanceFetcher interface {
	GetBalance(ctx context.Context) (int64, error)
}

const recentWindow = 20

// Breaker monitors the exchange balance and gates order placement.
// Hysteresis keeps the state from flapping around the threshold.
type Breaker struct {
	enabled atomic.Bool

	checkInterval   time.Duration
	exchange        BalanceFetcher
	logger          *zap.Logger
	orderMultiplier float64
	minCents        int64
	hysteresisRatio float64

	mu               sync.RWMutex
	lastBalance      int64
	lastCheck        time.Time
	recentNotionals  []int64
	disableThreshold int64
	enableThreshold  int64
}

// Config holds breaker configuration.
type Config struct {
	// CheckInterval is how often the balance is polled.
	CheckInterval time.Duration
	// OrderMultiplier scales the rolling average fill notional into the
	// disable threshold.
	OrderMultiplier float64
	// MinCents is the absolute balance floor regardless of fill history.
	MinCents int64
	// HysteresisRatio raises the re-enable threshold above the disable
	// threshold. Must be >= 1.
	HysteresisRatio float64
	Exchange        BalanceFetcher
	Logger          *zap.Logger
}

// Status is a point-in-time view for logs and diagnostics.
type Status struct {
	Enabled          bool
	LastBalance      int64
	LastCheck        time.Time
	DisableThreshold int64
	EnableThreshold  int64
	AvgNotional      int64
	RecentFillCount  int
}

// New creates a breaker. It starts enabled; the first CheckBalance settles
// the real state.
func New(cfg *Config) (*Breaker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("exchange cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("check interval must be positive")
	}
	if cfg.OrderMultiplier <= 0 {
		return nil, fmt.Errorf("order multiplier must be positive")
	}
	if cfg.MinCents <= 0 {
		return nil, fmt.Errorf("min balance must be positive")
	}
	if cfg.HysteresisRatio < 1.0 {
		return nil, fmt.Errorf("hysteresis ratio must be >= 1.0")
	}

	b := &Breaker{
		checkInterval:    cfg.CheckInterval,
		exchange:         cfg.Exchange,
		logger:           cfg.Logger,
		orderMultiplier:  cfg.OrderMultiplier,
		minCents:         cfg.MinCents,
		hysteresisRatio:  cfg.HysteresisRatio,
		recentNotionals:  make([]int64, 0, recentWindow),
		disableThreshold: cfg.MinCents,
		enableThreshold:  int64(float64(cfg.MinCents) * cfg.HysteresisRatio),
	}
	b.enabled.Store(true)

	BreakerEnabled.Set(1)
	BreakerDisableThreshold.Set(float64(b.disableThreshold))
	BreakerEnableThreshold.Set(float64(b.enableThreshold))

	return b, nil
}

// IsEnabled reports whether quoting may place orders. Lock-free, safe on
// the evaluation path.
func (b *Breaker) IsEnabled() bool {
	return b.enabled.Load()
}

// RecordOrder feeds a fill notional (price x count, cents) into the rolling
// window and recomputes both thresholds.
func (b *Breaker) RecordOrder(notionalCents int64) {
	if notionalCents <= 0 {
		b.logger.Warn("invalid-fill-notional", zap.Int64("notional-cents", notionalCents))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.recentNotionals = append(b.recentNotionals, notionalCents)
	if len(b.recentNotionals) > recentWindow {
		b.recentNotionals = b.recentNotionals[1:]
	}

	avg := b.avgNotionalLocked()
	disable := int64(float64(avg) * b.orderMultiplier)
	if disable < b.minCents {
		disable = b.minCents
	}
	b.disableThreshold = disable
	b.enableThreshold = int64(float64(disable) * b.hysteresisRatio)

	BreakerAvgNotional.Set(float64(avg))
	BreakerDisableThreshold.Set(float64(b.disableThreshold))
	BreakerEnableThreshold.Set(float64(b.enableThreshold))

	b.logger.Debug("breaker-thresholds-updated",
		zap.Int64("avg-notional-cents", avg),
		zap.Int("fill-count", len(b.recentNotionals)),
		zap.Int64("disable-threshold-cents", b.disableThreshold),
		zap.Int64("enable-threshold-cents", b.enableThreshold))
}

// CheckBalance polls the balance and applies the transition rules: disable
// below the disable threshold, re-enable at or above the enable threshold.
func (b *Breaker) CheckBalance(ctx context.Context) error {
	start := time.Now()
	defer func() {
		BreakerCheckDuration.Observe(time.Since(start).Seconds())
	}()

	balance, err := b.exchange.GetBalance(ctx)
	if err != nil {
		b.logger.Error("balance-check-failed", zap.Error(err))
		return fmt.Errorf("get balance: %w", err)
	}

	b.mu.Lock()
	b.lastBalance = balance
	b.lastCheck = time.Now()
	disable := b.disableThreshold
	enable := b.enableThreshold
	b.mu.Unlock()

	BreakerBalance.Set(float64(balance))

	enabled := b.enabled.Load()
	switch {
	case enabled && balance < disable:
		b.enabled.Store(false)
		BreakerEnabled.Set(0)
		BreakerStateChanges.Inc()
		b.logger.Warn("breaker-tripped",
			zap.Int64("balance-cents", balance),
			zap.Int64("disable-threshold-cents", disable),
			zap.Int64("enable-threshold-cents", enable))

	case !enabled && balance >= enable:
		b.enabled.Store(true)
		BreakerEnabled.Set(1)
		BreakerStateChanges.Inc()
		b.logger.Info("breaker-reset",
			zap.Int64("balance-cents", balance),
			zap.Int64("enable-threshold-cents", enable))

	default:
		b.logger.Debug("balance-checked",
			zap.Int64("balance-cents", balance),
			zap.Bool("enabled", enabled))
	}

	return nil
}

// Start checks the balance once, then polls until the context is cancelled.
func (b *Breaker) Start(ctx context.Context) {
	b.logger.Info("breaker-started",
		zap.Duration("check-interval", b.checkInterval),
		zap.Float64("order-multiplier", b.orderMultiplier),
		zap.Int64("min-balance-cents", b.minCents),
		zap.Float64("hysteresis-ratio", b.hysteresisRatio))

	if err := b.CheckBalance(ctx); err != nil {
		b.logger.Error("initial-balance-check-failed", zap.Error(err))
	}

	go b.monitorLoop(ctx)
}

func (b *Breaker) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(b.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("breaker-stopped")
			return
		case <-ticker.C:
			if err := b.CheckBalance(ctx); err != nil {
				b.logger.Error("balance-check-error", zap.Error(err))
			}
		}
	}
}

// GetStatus returns the current breaker state.
func (b *Breaker) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Status{
		Enabled:          b.enabled.Load(),
		LastBalance:      b.lastBalance,
		LastCheck:        b.lastCheck,
		DisableThreshold: b.disableThreshold,
		EnableThreshold:  b.enableThreshold,
		AvgNotional:      b.avgNotionalLocked(),
		RecentFillCount:  len(b.recentNotionals),
	}
}

func (b *Breaker) avgNotionalLocked() int64 {
	if len(b.recentNotionals) == 0 {
		return 0
	}
	var sum int64
	for _, n := range b.recentNotionals {
		sum += n
	}
	return sum / int64(len(b.recentNotionals))
}
