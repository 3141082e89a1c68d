package quoting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/internal/inventory"
	"github.com/oddsmith/kalshi-mm/internal/journal"
	"github.com/oddsmith/kalshi-mm/internal/odds"
	"github.com/oddsmith/kalshi-mm/internal/orderbook"
	"github.com/oddsmith/kalshi-mm/internal/reconciler"
	"github.com/oddsmith/kalshi-mm/internal/theo"
	"github.com/oddsmith/kalshi-mm/pkg/config"
	"github.com/oddsmith/kalshi-mm/pkg/types"
)

// Exchange is the slice of the gateway the engine needs directly.
type Exchange interface {
	GetOrderbook(ctx context.Context, ticker string) (*types.OrderbookSnapshot, error)
	GetPositions(ctx context.Context) (map[string]int, error)
}

// Stream manages ticker subscriptions on the exchange stream.
type Stream interface {
	Subscribe(ctx context.Context, tickers []string) error
	Unsubscribe(ctx context.Context, tickers []string) error
}

// OddsProvider fetches blended odds for one event.
type OddsProvider interface {
	EventOdds(ctx context.Context, sportKey, eventID string) (*odds.MatchOdds, error)
}

// Breaker gates order placement on account balance. Optional; a nil
// breaker never halts.
type Breaker interface {
	IsEnabled() bool
	RecordOrder(notionalCents int64)
}

// Settings are the operator-tunable global timings. Floors from
// pkg/config apply on every update.
type Settings struct {
	CheckInterval      time.Duration
	StickyResetSecs    time.Duration
	OverbidCancelDelay time.Duration
}

// Validate enforces the timing floors.
func (s Settings) Validate() error {
	if s.CheckInterval < config.MinCheckInterval {
		return fmt.Errorf("check_interval must be at least %s", config.MinCheckInterval)
	}
	if s.StickyResetSecs < config.MinStickyReset {
		return fmt.Errorf("sticky_reset_secs must be at least %s", config.MinStickyReset)
	}
	if s.OverbidCancelDelay < config.MinOverbidCancelWait {
		return fmt.Errorf("overbid_cancel_delay must be at least %s", config.MinOverbidCancelWait)
	}
	return nil
}

// MatchDefaults fill in per-match knobs the operator leaves unset.
type MatchDefaults struct {
	Edge         int
	OrderSize    int
	InventoryCap int
}

const (
	defaultReconcileWorkers = 8
	reconcileQueueSize      = 128
)

// Engine is the quoting core. One engine serves every match.
type Engine struct {
	books    *orderbook.Cache
	ledger   *inventory.Ledger
	orders   *reconciler.Reconciler
	exchange Exchange
	stream   Stream
	events   <-chan *types.Event
	gaps     <-chan struct{}
	odds     OddsProvider
	store    journal.Store
	breaker  Breaker
	logger   *zap.Logger

	mu        sync.RWMutex
	matches   map[string]*Match
	byTicker  map[string]string // ticker -> match id
	positions map[string]int    // last signed net per ticker from the stream
	settings  Settings

	feeBuffer int
	defaults  MatchDefaults

	changed chan struct{}
	now     func() time.Time

	// Exchange I/O from evaluations runs on this pool so the event loop
	// never blocks on a REST call.
	tasks   chan func()
	done    chan struct{}
	pending sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds engine configuration.
type Config struct {
	Books          *orderbook.Cache
	Ledger         *inventory.Ledger
	Orders         *reconciler.Reconciler
	Exchange       Exchange
	Stream         Stream
	Events         <-chan *types.Event
	Gaps           <-chan struct{}
	Odds           OddsProvider
	Store          journal.Store
	Breaker        Breaker
	Logger         *zap.Logger
	Settings       Settings
	FeeBufferCents int
	Defaults       MatchDefaults
	// Workers bounds the reconcile dispatch pool. Defaults to 8.
	Workers int
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// New creates a quoting engine.
func New(cfg *Config) (*Engine, error) {
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultReconcileWorkers
	}

	// The run context is installed by Start; operator calls that arrive
	// before Start still need a usable context.
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		ctx:       ctx,
		cancel:    cancel,
		books:     cfg.Books,
		ledger:    cfg.Ledger,
		orders:    cfg.Orders,
		exchange:  cfg.Exchange,
		stream:    cfg.Stream,
		events:    cfg.Events,
		gaps:      cfg.Gaps,
		odds:      cfg.Odds,
		store:     cfg.Store,
		breaker:   cfg.Breaker,
		logger:    cfg.Logger,
		matches:   make(map[string]*Match),
		byTicker:  make(map[string]string),
		positions: make(map[string]int),
		settings:  cfg.Settings,
		feeBuffer: cfg.FeeBufferCents,
		defaults:  cfg.Defaults,
		changed:   make(chan struct{}, 1),
		tasks:     make(chan func(), reconcileQueueSize),
		done:      make(chan struct{}),
		now:       now,
	}

	e.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go e.reconcileWorker()
	}

	return e, nil
}

// reconcileWorker drains dispatched exchange actions until Close.
func (e *Engine) reconcileWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case task := <-e.tasks:
			task()
			e.pending.Done()
		}
	}
}

// dispatch queues an exchange action on the worker pool. A full queue
// applies backpressure by running the action inline rather than dropping
// it.
func (e *Engine) dispatch(task func()) {
	e.pending.Add(1)
	select {
	case e.tasks <- task:
	default:
		task()
		e.pending.Done()
	}
}

// Flush blocks until every dispatched exchange action has completed.
func (e *Engine) Flush() {
	e.pending.Wait()
}

// Start launches the event, tick, and gap-resync loops.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)

	e.logger.Info("quoting-engine-starting")

	e.wg.Add(3)
	go e.eventLoop()
	go e.tickLoop()
	go e.gapLoop()

	return nil
}

// Close stops the loops and drains the dispatch queue. Resting orders are
// the shutdown path's problem.
func (e *Engine) Close() error {
	e.logger.Info("closing-quoting-engine")
	if e.cancel != nil {
		e.cancel()
	}
	// Queued actions run against the cancelled context and fail fast;
	// waiting here keeps them from re-placing after the shutdown cancel
	// pass.
	e.pending.Wait()
	close(e.done)
	e.wg.Wait()
	return nil
}

// Changed signals that the dashboard-visible state moved.
func (e *Engine) Changed() <-chan struct{} {
	return e.changed
}

func (e *Engine) signalChanged() {
	select {
	case e.changed <- struct{}{}:
	default:
	}
}

// Settings returns a copy of the current global timings.
func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// UpdateSettings replaces the global timings, enforcing the floors, and
// propagates the overbid delay to the reconciler.
func (e *Engine) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()

	e.orders.SetOverbidCancelDelay(s.OverbidCancelDelay)

	e.logger.Info("settings-updated",
		zap.Duration("check-interval", s.CheckInterval),
		zap.Duration("sticky-reset", s.StickyResetSecs),
		zap.Duration("overbid-cancel-delay", s.OverbidCancelDelay))

	e.signalChanged()
	return nil
}

// AddMatchRequest is the operator's add-match payload, after JSON decoding.
type AddMatchRequest struct {
	Name         string
	Category     string
	TickerA      string
	TickerB      string
	OddsA        float64
	OddsB        float64
	OddsDraw     float64
	HasDraw      bool
	Edge         int
	OrderSize    int
	InventoryCap int
	EventTime    time.Time
	SportKey     string
	OddsEventID  string
	MarketURL    string
}

// AddMatch registers a match, computes its theos, journals it, links any
// orphan fills, and subscribes its tickers. The match starts inactive.
func (e *Engine) AddMatch(ctx context.Context, req *AddMatchRequest) (*MatchSnapshot, error) {
	if req.TickerA == "" || req.TickerB == "" {
		return nil, fmt.Errorf("both tickers are required")
	}
	if req.OddsA <= 1 || req.OddsB <= 1 {
		return nil, fmt.Errorf("decimal odds must be greater than 1")
	}

	e.mu.RLock()
	_, dupA := e.byTicker[req.TickerA]
	_, dupB := e.byTicker[req.TickerB]
	e.mu.RUnlock()
	if dupA || dupB {
		return nil, fmt.Errorf("ticker already quoted by another match")
	}

	m := &Match{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Category:     req.Category,
		TickerA:      req.TickerA,
		TickerB:      req.TickerB,
		OddsA:        req.OddsA,
		OddsB:        req.OddsB,
		OddsDraw:     req.OddsDraw,
		HasDraw:      req.HasDraw,
		Edge:         req.Edge,
		OrderSize:    req.OrderSize,
		InventoryCap: req.InventoryCap,
		EventTime:    req.EventTime,
		SportKey:     req.SportKey,
		OddsEventID:  req.OddsEventID,
		MarketURL:    req.MarketURL,
	}
	if m.Name == "" {
		m.Name = m.TickerA + " / " + m.TickerB
	}
	if m.Category == "" {
		m.Category = inferCategory(m.TickerA)
	}
	if m.Edge <= 0 {
		m.Edge = e.defaults.Edge
	}
	if m.OrderSize <= 0 {
		m.OrderSize = e.defaults.OrderSize
	}
	if m.InventoryCap <= 0 {
		m.InventoryCap = e.defaults.InventoryCap
	}

	if err := e.computeTheos(m); err != nil {
		return nil, err
	}

	if err := e.journalMatch(ctx, m); err != nil {
		return nil, err
	}
	if err := e.store.LinkFillsToMatch(ctx, m.ID, m.TickerA, m.TickerB); err != nil {
		e.logger.Warn("link-fills-failed", zap.String("match-id", m.ID), zap.Error(err))
	}

	e.mu.Lock()
	e.matches[m.ID] = m
	e.byTicker[m.TickerA] = m.ID
	e.byTicker[m.TickerB] = m.ID
	e.mu.Unlock()

	e.subscribeMatch(ctx, m)

	e.logger.Info("match-added",
		zap.String("match-id", m.ID),
		zap.String("name", m.Name),
		zap.String("ticker-a", m.TickerA),
		zap.String("ticker-b", m.TickerB),
		zap.Int("theo-a", m.TheoA),
		zap.Int("theo-b", m.TheoB))

	e.signalChanged()

	snap := e.snapshotMatch(m.ID)
	return &snap, nil
}

// AddBatch adds several matches, returning the first error alongside the
// snapshots that succeeded.
func (e *Engine) AddBatch(ctx context.Context, reqs []*AddMatchRequest) ([]MatchSnapshot, error) {
	var snaps []MatchSnapshot
	var firstErr error
	for _, req := range reqs {
		snap, err := e.AddMatch(ctx, req)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("add %s/%s: %w", req.TickerA, req.TickerB, err)
			}
			continue
		}
		snaps = append(snaps, *snap)
	}
	return snaps, firstErr
}

// Start activates one match. A match whose event time already passed
// cannot be reactivated.
func (e *Engine) StartMatch(id string) error {
	e.mu.Lock()
	m, exists := e.matches[id]
	if !exists {
		e.mu.Unlock()
		return fmt.Errorf("match %s not found", id)
	}
	if !m.EventTime.IsZero() && !e.now().Before(m.EventTime) {
		e.mu.Unlock()
		return fmt.Errorf("match %s event time has passed", id)
	}
	m.Active = true
	e.mu.Unlock()

	e.refreshActiveGauge()
	e.logger.Info("match-started", zap.String("match-id", id))
	e.signalChanged()
	e.evaluate(id, "start")
	return nil
}

// StopMatch deactivates one match and cancels its resting orders.
func (e *Engine) StopMatch(ctx context.Context, id string) error {
	e.mu.Lock()
	m, exists := e.matches[id]
	if !exists {
		e.mu.Unlock()
		return fmt.Errorf("match %s not found", id)
	}
	m.Active = false
	e.mu.Unlock()

	e.refreshActiveGauge()
	err := e.orders.CancelMatch(ctx, id)

	e.logger.Info("match-stopped", zap.String("match-id", id))
	e.signalChanged()
	return err
}

// StartAll activates every match whose event time has not passed.
func (e *Engine) StartAll() int {
	e.mu.Lock()
	var started []string
	now := e.now()
	for id, m := range e.matches {
		if m.Active {
			continue
		}
		if !m.EventTime.IsZero() && !now.Before(m.EventTime) {
			continue
		}
		m.Active = true
		started = append(started, id)
	}
	e.mu.Unlock()

	e.refreshActiveGauge()
	e.signalChanged()
	for _, id := range started {
		e.evaluate(id, "start")
	}
	return len(started)
}

// RemoveMatch cancels the match's orders and drops all of its state. The
// journal rows survive for P&L history.
func (e *Engine) RemoveMatch(ctx context.Context, id string) error {
	e.mu.Lock()
	m, exists := e.matches[id]
	if !exists {
		e.mu.Unlock()
		return fmt.Errorf("match %s not found", id)
	}
	delete(e.matches, id)
	delete(e.byTicker, m.TickerA)
	delete(e.byTicker, m.TickerB)
	e.mu.Unlock()

	err := e.orders.CancelMatch(ctx, id)

	if uerr := e.stream.Unsubscribe(ctx, []string{m.TickerA, m.TickerB}); uerr != nil {
		e.logger.Warn("unsubscribe-failed", zap.String("match-id", id), zap.Error(uerr))
	}
	e.books.Drop(m.TickerA)
	e.books.Drop(m.TickerB)
	e.ledger.Remove(id)

	e.refreshActiveGauge()
	e.logger.Info("match-removed", zap.String("match-id", id))
	e.signalChanged()
	return err
}

// RemoveAll removes every match.
func (e *Engine) RemoveAll(ctx context.Context) error {
	e.mu.RLock()
	ids := make([]string, 0, len(e.matches))
	for id := range e.matches {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	var firstErr error
	for _, id := range ids {
		if err := e.RemoveMatch(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// UpdateOdds replaces the match's odds and recomputes its theos.
func (e *Engine) UpdateOdds(ctx context.Context, id string, oddsA, oddsB, oddsDraw float64, hasDraw bool) error {
	if oddsA <= 1 || oddsB <= 1 {
		return fmt.Errorf("decimal odds must be greater than 1")
	}

	e.mu.Lock()
	m, exists := e.matches[id]
	if !exists {
		e.mu.Unlock()
		return fmt.Errorf("match %s not found", id)
	}
	m.OddsA, m.OddsB, m.OddsDraw, m.HasDraw = oddsA, oddsB, oddsDraw, hasDraw
	err := e.computeTheos(m)
	mCopy := *m
	e.mu.Unlock()

	if err != nil {
		return err
	}

	if jerr := e.journalMatch(ctx, &mCopy); jerr != nil {
		e.logger.Warn("journal-match-failed", zap.String("match-id", id), zap.Error(jerr))
	}

	e.logger.Info("odds-updated",
		zap.String("match-id", id),
		zap.Float64("odds-a", oddsA),
		zap.Float64("odds-b", oddsB),
		zap.Int("theo-a", mCopy.TheoA),
		zap.Int("theo-b", mCopy.TheoB))

	e.signalChanged()
	e.evaluate(id, "odds")
	return nil
}

// RefreshOdds pulls fresh odds from the provider and applies them.
func (e *Engine) RefreshOdds(ctx context.Context, id string) error {
	e.mu.RLock()
	m, exists := e.matches[id]
	if !exists {
		e.mu.RUnlock()
		return fmt.Errorf("match %s not found", id)
	}
	sportKey, eventID := m.SportKey, m.OddsEventID
	e.mu.RUnlock()

	if e.odds == nil || sportKey == "" || eventID == "" {
		return fmt.Errorf("match %s has no odds-provider coordinates", id)
	}

	fetched, err := e.odds.EventOdds(ctx, sportKey, eventID)
	if err != nil {
		return fmt.Errorf("refresh odds: %w", err)
	}

	return e.UpdateOdds(ctx, id, fetched.HomeOdds, fetched.AwayOdds, fetched.DrawOdds, fetched.HasDraw)
}

// UpdateMatchSettings adjusts the per-match quoting knobs. Nil fields are
// left unchanged.
func (e *Engine) UpdateMatchSettings(id string, edge, orderSize, inventoryCap *int) error {
	e.mu.Lock()
	m, exists := e.matches[id]
	if !exists {
		e.mu.Unlock()
		return fmt.Errorf("match %s not found", id)
	}
	if edge != nil {
		if *edge < 1 {
			e.mu.Unlock()
			return fmt.Errorf("edge must be at least 1")
		}
		m.Edge = *edge
	}
	if orderSize != nil {
		if *orderSize < 1 {
			e.mu.Unlock()
			return fmt.Errorf("order_size must be at least 1")
		}
		m.OrderSize = *orderSize
	}
	if inventoryCap != nil {
		if *inventoryCap < 1 {
			e.mu.Unlock()
			return fmt.Errorf("inventory_cap must be at least 1")
		}
		m.InventoryCap = *inventoryCap
	}
	e.mu.Unlock()

	e.logger.Info("match-settings-updated", zap.String("match-id", id))
	e.signalChanged()
	e.evaluate(id, "settings")
	return nil
}

// SyncInventory re-pulls authoritative positions and corrects every
// match's inventory.
func (e *Engine) SyncInventory(ctx context.Context) error {
	positions, err := e.exchange.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("sync inventory: %w", err)
	}

	e.mu.Lock()
	for ticker, pos := range positions {
		e.positions[ticker] = pos
	}
	matches := make([]*Match, 0, len(e.matches))
	for _, m := range e.matches {
		matches = append(matches, m)
	}
	e.mu.Unlock()

	for _, m := range matches {
		e.ledger.ApplyPositions(m.ID, m.TickerA, m.TickerB, positions)
	}

	e.logger.Info("inventory-synced", zap.Int("tickers", len(positions)))
	e.signalChanged()
	return nil
}

// State returns dashboard snapshots for every match, soonest event first.
func (e *Engine) State() []MatchSnapshot {
	e.mu.RLock()
	ids := make([]string, 0, len(e.matches))
	for id := range e.matches {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	snaps := make([]MatchSnapshot, 0, len(ids))
	for _, id := range ids {
		snaps = append(snaps, e.snapshotMatch(id))
	}
	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].EventTime.Equal(snaps[j].EventTime) {
			return snaps[i].EventTime.Before(snaps[j].EventTime)
		}
		return snaps[i].ID < snaps[j].ID
	})
	return snaps
}

// Match returns one match's snapshot.
func (e *Engine) Match(id string) (MatchSnapshot, bool) {
	e.mu.RLock()
	_, exists := e.matches[id]
	e.mu.RUnlock()
	if !exists {
		return MatchSnapshot{}, false
	}
	return e.snapshotMatch(id), true
}

func (e *Engine) snapshotMatch(id string) MatchSnapshot {
	e.mu.RLock()
	m, exists := e.matches[id]
	if !exists {
		e.mu.RUnlock()
		return MatchSnapshot{}
	}
	snap := MatchSnapshot{
		ID:           m.ID,
		Name:         m.Name,
		Category:     m.Category,
		TickerA:      m.TickerA,
		TickerB:      m.TickerB,
		OddsA:        m.OddsA,
		OddsB:        m.OddsB,
		OddsDraw:     m.OddsDraw,
		TheoA:        m.TheoA,
		TheoB:        m.TheoB,
		Edge:         m.Edge,
		OrderSize:    m.OrderSize,
		InventoryCap: m.InventoryCap,
		EventTime:    m.EventTime,
		Active:       m.Active,
	}
	tickerA, tickerB := m.TickerA, m.TickerB
	e.mu.RUnlock()

	st := e.ledger.Snapshot(id)
	snap.Inventory = st.Inventory
	snap.AvgCostA = st.AvgCostLongA()
	snap.AvgCostB = st.AvgCostLongB()

	snap.Books = make(map[string]types.BookSnapshot, 2)
	if book, ok := e.books.Snapshot(tickerA); ok {
		snap.Books[tickerA] = book
	}
	if book, ok := e.books.Snapshot(tickerB); ok {
		snap.Books[tickerB] = book
	}

	for _, order := range e.orders.Orders() {
		if order.MatchID == id {
			snap.Orders = append(snap.Orders, order)
		}
	}

	return snap
}

// computeTheos derives both theos from the match's odds. Callers hold the
// engine lock or own the match exclusively.
func (e *Engine) computeTheos(m *Match) error {
	var err error
	if m.HasDraw {
		m.TheoA, m.TheoB, err = theo.ThreeWay(m.OddsA, m.OddsB, m.OddsDraw)
	} else {
		m.TheoA, m.TheoB, err = theo.TwoWay(m.OddsA, m.OddsB)
	}
	if err != nil {
		return fmt.Errorf("compute theos: %w", err)
	}
	return nil
}

func (e *Engine) journalMatch(ctx context.Context, m *Match) error {
	return e.store.UpsertMatch(ctx, &journal.MatchRecord{
		ID:        m.ID,
		TickerA:   m.TickerA,
		TickerB:   m.TickerB,
		TheoA:     m.TheoA,
		TheoB:     m.TheoB,
		EventTime: m.EventTime,
		Category:  m.Category,
	})
}

// subscribeMatch subscribes the match's tickers and seeds their books from
// REST so quoting does not wait for the first stream snapshot.
func (e *Engine) subscribeMatch(ctx context.Context, m *Match) {
	if err := e.stream.Subscribe(ctx, []string{m.TickerA, m.TickerB}); err != nil {
		e.logger.Warn("subscribe-failed", zap.String("match-id", m.ID), zap.Error(err))
	}
	e.resyncTicker(ctx, m.TickerA)
	e.resyncTicker(ctx, m.TickerB)
}

// resyncTicker reloads one ticker's book from REST.
func (e *Engine) resyncTicker(ctx context.Context, ticker string) {
	snapshot, err := e.exchange.GetOrderbook(ctx, ticker)
	if err != nil {
		e.logger.Warn("orderbook-resync-failed",
			zap.String("ticker", ticker),
			zap.Error(err))
		return
	}
	e.books.ApplySnapshot(snapshot)
}

func (e *Engine) refreshActiveGauge() {
	e.mu.RLock()
	active := 0
	for _, m := range e.matches {
		if m.Active {
			active++
		}
	}
	e.mu.RUnlock()
	ActiveMatches.Set(float64(active))
}
