// Package reconciler converges the exchange's resting orders to the quoting
// engine's desired state, one order slot per (match, ticker, side) key.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/internal/gateway"
	"github.com/oddsmith/kalshi-mm/pkg/types"
)

// Exchange is the slice of the gateway the reconciler needs.
type Exchange interface {
	PlaceOrder(ctx context.Context, req *gateway.OrderRequest) (*gateway.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrders(ctx context.Context, status string) ([]gateway.Order, error)
}

// slot is the reconciler's state for one order key: the resting order (if
// any) and the overbid hysteresis clock.
type slot struct {
	mu           sync.Mutex
	order        *types.RestingOrder
	overbidSince time.Time
}

// Reconciler owns every resting order. All mutations for one key serialize
// on the key's slot lock, so concurrent evaluations of different legs never
// interleave a cancel and a place on the same slot.
type Reconciler struct {
	exchange Exchange
	logger   *zap.Logger

	mu    sync.RWMutex
	slots map[types.OrderKey]*slot
	byID  map[string]types.OrderKey

	delayMu            sync.RWMutex
	overbidCancelDelay time.Duration

	workers       int
	emergencyOnce sync.Once

	now func() time.Time
}

// Config holds reconciler configuration.
type Config struct {
	Exchange           Exchange
	Logger             *zap.Logger
	OverbidCancelDelay time.Duration
	Workers            int
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// New creates a reconciler.
func New(cfg *Config) *Reconciler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 20
	}

	return &Reconciler{
		exchange:           cfg.Exchange,
		logger:             cfg.Logger,
		slots:              make(map[types.OrderKey]*slot),
		byID:               make(map[string]types.OrderKey),
		overbidCancelDelay: cfg.OverbidCancelDelay,
		workers:            workers,
		now:                now,
	}
}

// SetOverbidCancelDelay updates the hysteresis window at runtime.
func (r *Reconciler) SetOverbidCancelDelay(d time.Duration) {
	r.delayMu.Lock()
	r.overbidCancelDelay = d
	r.delayMu.Unlock()
}

func (r *Reconciler) cancelDelay() time.Duration {
	r.delayMu.RLock()
	defer r.delayMu.RUnlock()
	return r.overbidCancelDelay
}

func (r *Reconciler) slotFor(key types.OrderKey) *slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.slots[key]
	if !exists {
		s = &slot{}
		r.slots[key] = s
	}
	return s
}

// Quote converges the key's slot to a resting buy at the given price and
// size. A slot already resting at exactly that price and size is left
// untouched so queue priority survives.
func (r *Reconciler) Quote(ctx context.Context, key types.OrderKey, price, size int, expirationTs int64) error {
	s := r.slotFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	// Quoting again means the price is competitive: stop the overbid clock.
	s.overbidSince = time.Time{}

	if s.order != nil {
		if s.order.Price == price && s.order.Remaining() == size {
			return nil
		}
		if err := r.cancelLocked(ctx, s, key, "reprice"); err != nil {
			return err
		}
	}

	return r.placeLocked(ctx, s, key, price, size, expirationTs)
}

// BackOff handles an uncompetitive slot: the order is not cancelled until
// it has been overbid continuously for the configured delay, so a flapping
// competitor cannot walk us out of the queue.
func (r *Reconciler) BackOff(ctx context.Context, key types.OrderKey) error {
	s := r.slotFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.order == nil {
		s.overbidSince = time.Time{}
		return nil
	}

	now := r.now()
	if s.overbidSince.IsZero() {
		s.overbidSince = now
		return nil
	}

	if now.Sub(s.overbidSince) < r.cancelDelay() {
		return nil
	}

	if err := r.cancelLocked(ctx, s, key, "overbid"); err != nil {
		return err
	}
	s.overbidSince = time.Time{}
	return nil
}

// Clear cancels the slot's order immediately, if any. Used for inventory
// gates, deactivation, and event-time cutoff.
func (r *Reconciler) Clear(ctx context.Context, key types.OrderKey) error {
	s := r.slotFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.overbidSince = time.Time{}
	if s.order == nil {
		return nil
	}
	return r.cancelLocked(ctx, s, key, "clear")
}

// placeLocked places a new order for the slot. The slot lock must be held.
func (r *Reconciler) placeLocked(ctx context.Context, s *slot, key types.OrderKey, price, size int, expirationTs int64) error {
	order, err := r.exchange.PlaceOrder(ctx, &gateway.OrderRequest{
		Ticker:       key.Ticker,
		Side:         key.Side,
		Action:       "buy",
		Count:        size,
		Price:        price,
		ExpirationTs: expirationTs,
	})
	if err != nil {
		if errors.Is(err, types.ErrOrderRejected) {
			OrdersRejectedTotal.Inc()
			r.logger.Warn("order-rejected",
				zap.String("ticker", key.Ticker),
				zap.String("side", string(key.Side)),
				zap.Int("price", price))
			return nil
		}
		return err
	}

	s.order = &types.RestingOrder{
		OrderID:  order.OrderID,
		MatchID:  key.MatchID,
		Ticker:   key.Ticker,
		Side:     key.Side,
		Price:    price,
		Size:     size,
		PlacedAt: r.now(),
	}

	r.mu.Lock()
	r.byID[order.OrderID] = key
	RestingOrders.Set(float64(len(r.byID)))
	r.mu.Unlock()

	OrdersPlacedTotal.Inc()

	r.logger.Info("order-placed",
		zap.String("order-id", order.OrderID),
		zap.String("ticker", key.Ticker),
		zap.String("side", string(key.Side)),
		zap.Int("price", price),
		zap.Int("size", size))

	return nil
}

// cancelLocked cancels the slot's order. A cancel race (the exchange no
// longer knows the order) counts as success. The slot lock must be held.
func (r *Reconciler) cancelLocked(ctx context.Context, s *slot, key types.OrderKey, reason string) error {
	orderID := s.order.OrderID

	err := r.exchange.CancelOrder(ctx, orderID)
	if err != nil && !errors.Is(err, types.ErrOrderNotFound) {
		return err
	}

	r.dropOrder(orderID)
	s.order = nil

	OrdersCancelledTotal.WithLabelValues(reason).Inc()

	r.logger.Info("order-cancelled",
		zap.String("order-id", orderID),
		zap.String("ticker", key.Ticker),
		zap.String("side", string(key.Side)),
		zap.String("reason", reason))

	return nil
}

func (r *Reconciler) dropOrder(orderID string) {
	r.mu.Lock()
	delete(r.byID, orderID)
	RestingOrders.Set(float64(len(r.byID)))
	r.mu.Unlock()
}

// OnFill updates the slot for an execution against one of our orders. A
// fully filled order releases its slot.
func (r *Reconciler) OnFill(fill *types.Fill) {
	r.mu.RLock()
	key, known := r.byID[fill.OrderID]
	r.mu.RUnlock()

	if !known {
		// Fills for orders we no longer track (cancelled, restarted) still
		// reach the journal through the fill event path.
		return
	}

	s := r.slotFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.order == nil || s.order.OrderID != fill.OrderID {
		return
	}

	s.order.FilledCount += fill.Count
	if s.order.Remaining() <= 0 {
		r.dropOrder(fill.OrderID)
		s.order = nil
	}
}

// Order returns a copy of the slot's resting order.
func (r *Reconciler) Order(key types.OrderKey) (types.RestingOrder, bool) {
	r.mu.RLock()
	s, exists := r.slots[key]
	r.mu.RUnlock()

	if !exists {
		return types.RestingOrder{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.order == nil {
		return types.RestingOrder{}, false
	}
	return *s.order, true
}

// Orders returns a copy of every tracked resting order.
func (r *Reconciler) Orders() []types.RestingOrder {
	r.mu.RLock()
	keys := make([]types.OrderKey, 0, len(r.slots))
	for key := range r.slots {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	orders := make([]types.RestingOrder, 0, len(keys))
	for _, key := range keys {
		if order, ok := r.Order(key); ok {
			orders = append(orders, order)
		}
	}
	return orders
}

// CancelMatch cancels every resting order belonging to one match.
func (r *Reconciler) CancelMatch(ctx context.Context, matchID string) error {
	var firstErr error
	for _, order := range r.Orders() {
		if order.MatchID != matchID {
			continue
		}
		key := types.OrderKey{MatchID: order.MatchID, Ticker: order.Ticker, Side: order.Side}
		if err := r.Clear(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EmergencyCancelAll cancels the union of locally tracked orders and every
// resting order the exchange reports, fanned out over a worker pool. It
// runs at most once per process; later calls are no-ops.
func (r *Reconciler) EmergencyCancelAll(ctx context.Context) {
	r.emergencyOnce.Do(func() {
		r.logger.Warn("emergency-cancel-all-starting")

		ids := make(map[string]bool)
		for _, order := range r.Orders() {
			ids[order.OrderID] = true
		}

		// The exchange may hold orders we lost track of across restarts.
		exchangeOrders, err := r.exchange.GetOrders(ctx, "resting")
		if err != nil {
			r.logger.Error("emergency-cancel-list-orders-failed", zap.Error(err))
		}
		for _, order := range exchangeOrders {
			ids[order.OrderID] = true
		}

		work := make(chan string, len(ids))
		for id := range ids {
			work <- id
		}
		close(work)

		var wg sync.WaitGroup
		for i := 0; i < r.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for orderID := range work {
					err := r.exchange.CancelOrder(ctx, orderID)
					if err != nil && !errors.Is(err, types.ErrOrderNotFound) {
						r.logger.Error("emergency-cancel-failed",
							zap.String("order-id", orderID),
							zap.Error(err))
						continue
					}
					EmergencyCancelsTotal.Inc()
				}
			}()
		}
		wg.Wait()

		// Local state is cleared regardless of individual failures; the
		// process is shutting down or the operator has halted quoting.
		r.mu.Lock()
		r.slots = make(map[types.OrderKey]*slot)
		r.byID = make(map[string]types.OrderKey)
		RestingOrders.Set(0)
		r.mu.Unlock()

		r.logger.Warn("emergency-cancel-all-complete", zap.Int("count", len(ids)))
	})
}
