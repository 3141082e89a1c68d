// Package orderbook maintains in-memory bid ladders for subscribed tickers,
// built from stream snapshots and deltas.
package orderbook

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/pkg/types"
)

// ErrNoBook is returned when a delta arrives for a ticker without a prior
// snapshot. The caller must request a fresh snapshot before applying deltas.
var ErrNoBook = errors.New("no book for ticker")

// book holds both bid ladders for one ticker. Prices and quantities are in
// cents and contracts; a level is removed when its quantity reaches zero.
type book struct {
	yes     map[int]int
	no      map[int]int
	updated time.Time
}

// Cache is the shared orderbook state. Writers are the stream dispatch loop
// and the REST resync path; readers are the quoting engine and the operator
// API. All reads return copies.
type Cache struct {
	books      map[string]*book
	mu         sync.RWMutex
	logger     *zap.Logger
	updateChan chan string
}

// Config holds book cache configuration.
type Config struct {
	Logger *zap.Logger
	// UpdateBuffer sizes the ticker notification channel. Defaults to 10000.
	UpdateBuffer int
}

// New creates a new book cache.
func New(cfg *Config) *Cache {
	buffer := cfg.UpdateBuffer
	if buffer <= 0 {
		buffer = 10000
	}

	return &Cache{
		books:      make(map[string]*book),
		logger:     cfg.Logger,
		updateChan: make(chan string, buffer),
	}
}

// ApplySnapshot replaces both ladders for the ticker.
func (c *Cache) ApplySnapshot(s *types.OrderbookSnapshot) {
	b := &book{
		yes:     make(map[int]int, len(s.Yes)),
		no:      make(map[int]int, len(s.No)),
		updated: time.Now(),
	}
	for _, level := range s.Yes {
		if level[1] > 0 {
			b.yes[level[0]] = level[1]
		}
	}
	for _, level := range s.No {
		if level[1] > 0 {
			b.no[level[0]] = level[1]
		}
	}

	c.mu.Lock()
	c.books[s.Ticker] = b
	BooksTracked.Set(float64(len(c.books)))
	c.mu.Unlock()

	UpdatesTotal.WithLabelValues("snapshot").Inc()

	c.logger.Debug("orderbook-snapshot-applied",
		zap.String("ticker", s.Ticker),
		zap.Int("yes-levels", len(b.yes)),
		zap.Int("no-levels", len(b.no)))

	c.notify(s.Ticker)
}

// ApplyDelta adjusts one price level. A delta for an unknown ticker returns
// ErrNoBook so the caller can resync from REST.
func (c *Cache) ApplyDelta(d *types.OrderbookDelta) error {
	c.mu.Lock()
	b, exists := c.books[d.Ticker]
	if !exists {
		c.mu.Unlock()
		return ErrNoBook
	}

	ladder := b.yes
	if d.Side == types.SideNo {
		ladder = b.no
	}

	qty := ladder[d.Price] + d.Delta
	if qty <= 0 {
		delete(ladder, d.Price)
	} else {
		ladder[d.Price] = qty
	}
	b.updated = time.Now()
	c.mu.Unlock()

	UpdatesTotal.WithLabelValues("delta").Inc()

	c.notify(d.Ticker)
	return nil
}

// notify publishes the ticker to subscribers without blocking.
func (c *Cache) notify(ticker string) {
	select {
	case c.updateChan <- ticker:
	default:
		c.logger.Warn("orderbook-update-channel-full",
			zap.String("ticker", ticker),
			zap.Int("buffer-size", cap(c.updateChan)))
		UpdatesDroppedTotal.WithLabelValues("channel_full").Inc()
	}
}

// TopOfBook returns the best bid view for one side of a ticker.
func (c *Cache) TopOfBook(ticker string, side types.Side) (types.TopOfBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, exists := c.books[ticker]
	if !exists {
		return types.TopOfBook{}, false
	}

	ladder := b.yes
	if side == types.SideNo {
		ladder = b.no
	}
	return topOf(ladder), true
}

// Snapshot returns a point-in-time copy of the ticker's book tops.
func (c *Cache) Snapshot(ticker string) (types.BookSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, exists := c.books[ticker]
	if !exists {
		return types.BookSnapshot{}, false
	}

	no := topOf(b.no)
	return types.BookSnapshot{
		Ticker:      ticker,
		Yes:         topOf(b.yes),
		No:          no,
		YesAsk:      yesAskFrom(no),
		LastUpdated: b.updated,
	}, true
}

// YesAsk returns the implied YES ask for the ticker, 100 when the NO side
// is empty or the ticker is unknown.
func (c *Cache) YesAsk(ticker string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	b, exists := c.books[ticker]
	if !exists {
		return 100
	}
	return yesAskFrom(topOf(b.no))
}

// Drop removes the ticker's book, typically on match deactivation.
func (c *Cache) Drop(ticker string) {
	c.mu.Lock()
	delete(c.books, ticker)
	BooksTracked.Set(float64(len(c.books)))
	c.mu.Unlock()
}

// Tickers returns the tickers currently tracked.
func (c *Cache) Tickers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickers := make([]string, 0, len(c.books))
	for t := range c.books {
		tickers = append(tickers, t)
	}
	return tickers
}

// UpdateChan returns the channel carrying tickers whose books changed.
func (c *Cache) UpdateChan() <-chan string {
	return c.updateChan
}

// Close releases the notification channel.
func (c *Cache) Close() error {
	c.logger.Info("closing-orderbook-cache")
	close(c.updateChan)
	return nil
}

// topOf scans a ladder for the best and second-best bids.
func topOf(ladder map[int]int) types.TopOfBook {
	var top types.TopOfBook
	for price, qty := range ladder {
		switch {
		case price > top.BestBid:
			top.SecondBid = top.BestBid
			top.BestBid = price
			top.BestBidQty = qty
		case price > top.SecondBid:
			top.SecondBid = price
		}
	}
	return top
}

// yesAskFrom derives the implied YES ask from the NO side's best bid.
func yesAskFrom(no types.TopOfBook) int {
	if no.BestBid == 0 {
		return 100
	}
	return 100 - no.BestBid
}
