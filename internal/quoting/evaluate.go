package quoting

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/internal/journal"
	"github.com/oddsmith/kalshi-mm/internal/orderbook"
	"github.com/oddsmith/kalshi-mm/internal/pricer"
	"github.com/oddsmith/kalshi-mm/pkg/types"
)

func (e *Engine) eventLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-e.events:
			if !ok {
				return
			}
			e.handleEvent(ev)
		}
	}
}

func (e *Engine) handleEvent(ev *types.Event) {
	switch ev.Type {
	case types.EventOrderbookSnapshot:
		e.books.ApplySnapshot(ev.Snapshot)
		if id, ok := e.matchForTicker(ev.Snapshot.Ticker); ok {
			e.evaluate(id, "book")
		}

	case types.EventOrderbookDelta:
		if err := e.books.ApplyDelta(ev.Delta); err != nil {
			if errors.Is(err, orderbook.ErrNoBook) {
				e.resyncTicker(e.ctx, ev.Delta.Ticker)
			} else {
				e.logger.Warn("apply-delta-failed",
					zap.String("ticker", ev.Delta.Ticker),
					zap.Error(err))
			}
		}
		if id, ok := e.matchForTicker(ev.Delta.Ticker); ok {
			e.evaluate(id, "book")
		}

	case types.EventFill:
		e.handleFill(ev.Fill)

	case types.EventPosition:
		e.handlePosition(ev.Position)
	}
}

func (e *Engine) tickLoop() {
	defer e.wg.Done()

	for {
		interval := e.Settings().CheckInterval
		select {
		case <-e.ctx.Done():
			return
		case <-time.After(interval):
			e.evaluateAll("tick")
		}
	}
}

// gapLoop reloads every tracked book from REST whenever the stream reports
// a sequence gap or reconnects.
func (e *Engine) gapLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.gaps:
			e.logger.Warn("stream-gap-resyncing-books")
			for _, ticker := range e.trackedTickers() {
				e.resyncTicker(e.ctx, ticker)
			}
			e.evaluateAll("resync")
		}
	}
}

func (e *Engine) matchForTicker(ticker string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.byTicker[ticker]
	return id, ok
}

func (e *Engine) trackedTickers() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tickers := make([]string, 0, len(e.byTicker))
	for ticker := range e.byTicker {
		tickers = append(tickers, ticker)
	}
	return tickers
}

func (e *Engine) evaluateAll(trigger string) {
	e.mu.RLock()
	ids := make([]string, 0, len(e.matches))
	for id, m := range e.matches {
		if m.Active {
			ids = append(ids, id)
		}
	}
	e.mu.RUnlock()

	for _, id := range ids {
		e.evaluate(id, trigger)
	}
}

// handleFill routes an execution to the reconciler, the inventory ledger,
// and the journal, then re-evaluates the match.
func (e *Engine) handleFill(fill *types.Fill) {
	e.orders.OnFill(fill)

	var matchID string
	e.mu.RLock()
	if id, ok := e.byTicker[fill.Ticker]; ok {
		matchID = id
	}
	var longA bool
	if m, ok := e.matches[matchID]; ok {
		longA = m.longALeg(fill.Ticker, fill.Side)
	}
	e.mu.RUnlock()

	if matchID != "" && fill.Action != "sell" {
		e.ledger.ApplyFill(matchID, longA, fill.Price(), fill.Count)
	}
	if e.breaker != nil {
		e.breaker.RecordOrder(int64(fill.Price()) * int64(fill.Count))
	}

	now := e.now()
	created := now
	if t, err := time.Parse(time.RFC3339, fill.CreatedTime); err == nil {
		created = t
	} else if fill.Ts > 0 {
		created = time.Unix(fill.Ts, 0).UTC()
	}

	if err := e.store.InsertFill(e.ctx, &journal.Fill{
		ID:          fill.TradeID,
		Ticker:      fill.Ticker,
		Side:        fill.Side,
		Action:      fill.Action,
		Price:       fill.Price(),
		Count:       fill.Count,
		IsTaker:     fill.IsTaker,
		CreatedTime: created,
		MatchID:     matchID,
		SyncedAt:    now,
	}); err != nil {
		e.logger.Error("journal-fill-failed",
			zap.String("trade-id", fill.TradeID),
			zap.Error(err))
	}

	FillsTotal.Inc()
	e.logger.Info("fill",
		zap.String("ticker", fill.Ticker),
		zap.String("side", string(fill.Side)),
		zap.Int("price", fill.Price()),
		zap.Int("count", fill.Count),
		zap.String("match-id", matchID))

	e.signalChanged()
	if matchID != "" {
		e.evaluate(matchID, "fill")
	}
}

// handlePosition records the exchange's authoritative net position and
// corrects the owning match's inventory from it.
func (e *Engine) handlePosition(p *types.PositionUpdate) {
	e.mu.Lock()
	e.positions[p.Ticker] = p.Position
	var m *Match
	if id, ok := e.byTicker[p.Ticker]; ok {
		m = e.matches[id]
	}
	var matchID, tickerA, tickerB string
	if m != nil {
		matchID, tickerA, tickerB = m.ID, m.TickerA, m.TickerB
	}
	positions := map[string]int{
		tickerA: e.positions[tickerA],
		tickerB: e.positions[tickerB],
	}
	e.mu.Unlock()

	if matchID == "" {
		return
	}

	e.ledger.ApplyPositions(matchID, tickerA, tickerB, positions)
	e.signalChanged()
	e.evaluate(matchID, "position")
}

// evaluate recomputes the four target leg prices for one match and drives
// the reconciler toward them.
func (e *Engine) evaluate(id, trigger string) {
	EvaluationsTotal.WithLabelValues(trigger).Inc()

	e.mu.RLock()
	mp, exists := e.matches[id]
	if !exists {
		e.mu.RUnlock()
		return
	}
	m := *mp
	e.mu.RUnlock()

	if !m.Active {
		return
	}

	now := e.now()
	if !m.EventTime.IsZero() && !now.Before(m.EventTime) {
		e.cutoff(id)
		return
	}

	// Balance breaker tripped: pull everything and wait for it to reset.
	if e.breaker != nil && !e.breaker.IsEnabled() {
		for _, l := range m.legs() {
			key := types.OrderKey{MatchID: m.ID, Ticker: l.ticker, Side: l.side}
			e.dispatch(func() {
				if err := e.orders.Clear(e.ctx, key); err != nil {
					e.logger.Warn("clear-failed", zap.String("ticker", key.Ticker), zap.Error(err))
				}
			})
			LegDecisionsTotal.WithLabelValues("halted").Inc()
		}
		return
	}

	st := e.ledger.Snapshot(m.ID)
	canLongA := st.Inventory < m.InventoryCap
	canLongB := st.Inventory > -m.InventoryCap

	// Capped on one side with an uncompleted arb: quote the other side up
	// to its breakeven plus edge, forcing a price when the book has run away.
	rebalTheoA, rebalA := 0, false
	rebalTheoB, rebalB := 0, false
	if !canLongA {
		if be := st.BreakevenForB(e.feeBuffer); be > m.TheoB-m.Edge {
			rebalTheoB, rebalB = be+m.Edge, true
		}
	}
	if !canLongB {
		if be := st.BreakevenForA(e.feeBuffer); be > m.TheoA-m.Edge {
			rebalTheoA, rebalA = be+m.Edge, true
		}
	}

	settings := e.Settings()
	var expirationTs int64
	if !m.EventTime.IsZero() {
		expirationTs = m.EventTime.Unix()
	}

	for _, l := range m.legs() {
		key := types.OrderKey{MatchID: m.ID, Ticker: l.ticker, Side: l.side}

		allowed := canLongB
		if l.longA {
			allowed = canLongA
		}
		if !allowed {
			e.dispatch(func() {
				if err := e.orders.Clear(e.ctx, key); err != nil {
					e.logger.Warn("clear-failed", zap.String("ticker", key.Ticker), zap.Error(err))
				}
			})
			LegDecisionsTotal.WithLabelValues("gated").Inc()
			continue
		}

		legTheo := m.legTheo(l)
		mustQuote := false
		if l.longA && rebalA {
			legTheo, mustQuote = rebalTheoA, true
		} else if !l.longA && rebalB {
			legTheo, mustQuote = rebalTheoB, true
		}

		top, ok := e.books.TopOfBook(l.ticker, l.side)
		if !ok {
			LegDecisionsTotal.WithLabelValues("no_book").Inc()
			continue
		}

		current, hasCurrent := e.orders.Order(key)
		isRetest := hasCurrent && now.Sub(current.PlacedAt) >= settings.StickyResetSecs
		ourSize := m.OrderSize
		if hasCurrent {
			ourSize = current.Remaining()
		}

		d := pricer.Bid(pricer.Input{
			Theo:       legTheo,
			Best:       top.BestBid,
			BestQty:    top.BestBidQty,
			Second:     top.SecondBid,
			Current:    current.Price,
			HasCurrent: hasCurrent,
			OurSize:    ourSize,
			EdgeMin:    m.Edge,
			Sticky:     true,
			IsRetest:   isRetest,
			MustQuote:  mustQuote,
		})

		// The exchange calls go through the worker pool; per-key locks in
		// the reconciler serialize actions on the same slot, and the
		// (price,size) no-op absorbs stale repeats.
		switch d.Kind {
		case pricer.Quote:
			price, size := d.Price, m.OrderSize
			e.dispatch(func() {
				if err := e.orders.Quote(e.ctx, key, price, size, expirationTs); err != nil {
					e.logger.Warn("quote-failed",
						zap.String("ticker", key.Ticker),
						zap.String("side", string(key.Side)),
						zap.Int("price", price),
						zap.Error(err))
				}
			})
			LegDecisionsTotal.WithLabelValues("quote").Inc()

		case pricer.BackOff:
			e.dispatch(func() {
				if err := e.orders.BackOff(e.ctx, key); err != nil {
					e.logger.Warn("backoff-failed",
						zap.String("ticker", key.Ticker),
						zap.String("side", string(key.Side)),
						zap.Error(err))
				}
			})
			LegDecisionsTotal.WithLabelValues("backoff").Inc()
		}
	}
}

// cutoff deactivates a match whose event time has arrived and pulls its
// orders.
func (e *Engine) cutoff(id string) {
	e.mu.Lock()
	m, exists := e.matches[id]
	if !exists || !m.Active {
		e.mu.Unlock()
		return
	}
	m.Active = false
	e.mu.Unlock()

	CutoffsTotal.Inc()
	e.refreshActiveGauge()

	e.dispatch(func() {
		if err := e.orders.CancelMatch(e.ctx, id); err != nil {
			e.logger.Error("cutoff-cancel-failed", zap.String("match-id", id), zap.Error(err))
		}
	})

	e.logger.Info("match-cutoff", zap.String("match-id", id))
	e.signalChanged()
}
