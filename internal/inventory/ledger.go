// Package inventory tracks per-match cost basis and net inventory.
//
// Inventory is measured in arb units: positive means overexposed to the A
// outcome (A-YES plus B-NO holdings exceed the other pair), negative the
// reverse. Fills move inventory immediately; authoritative position updates
// from the exchange correct any drift on receipt.
package inventory

import (
	"math"
	"sync"

	"go.uber.org/zap"
)

// State is the ledger's view of one match. Copied out by value.
type State struct {
	CostLongA  int // cents paid for long-A legs
	CountLongA int
	CostLongB  int
	CountLongB int
	Inventory  int
}

// AvgCostLongA returns the average entry price of the long-A position in
// cents, or 0 when flat.
func (s State) AvgCostLongA() float64 {
	if s.CountLongA == 0 {
		return 0
	}
	return float64(s.CostLongA) / float64(s.CountLongA)
}

// AvgCostLongB returns the average entry price of the long-B position in
// cents, or 0 when flat.
func (s State) AvgCostLongB() float64 {
	if s.CountLongB == 0 {
		return 0
	}
	return float64(s.CostLongB) / float64(s.CountLongB)
}

// BreakevenForB is the highest price at which buying the B side still locks
// a non-negative arb against the average long-A cost, net of the fee buffer.
func (s State) BreakevenForB(feeBuffer int) int {
	if s.CountLongA == 0 {
		return 0
	}
	return 99 - int(math.Ceil(s.AvgCostLongA())) - feeBuffer
}

// BreakevenForA mirrors BreakevenForB for the opposite exposure.
func (s State) BreakevenForA(feeBuffer int) int {
	if s.CountLongB == 0 {
		return 0
	}
	return 99 - int(math.Ceil(s.AvgCostLongB())) - feeBuffer
}

// Ledger holds inventory state for all matches.
type Ledger struct {
	mu     sync.RWMutex
	states map[string]*State
	logger *zap.Logger
}

// New creates an empty ledger.
func New(logger *zap.Logger) *Ledger {
	return &Ledger{
		states: make(map[string]*State),
		logger: logger,
	}
}

// ApplyFill records a purchase on one of the four legs. longA is true for
// the A-YES and B-NO legs. Cost basis only ever grows within a session; the
// journal holds the durable record.
func (l *Ledger) ApplyFill(matchID string, longA bool, price, count int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.states[matchID]
	if st == nil {
		st = &State{}
		l.states[matchID] = st
	}

	if longA {
		st.CostLongA += price * count
		st.CountLongA += count
		st.Inventory += count
	} else {
		st.CostLongB += price * count
		st.CountLongB += count
		st.Inventory -= count
	}

	l.logger.Debug("inventory-fill-applied",
		zap.String("match-id", matchID),
		zap.Bool("long-a", longA),
		zap.Int("price", price),
		zap.Int("count", count),
		zap.Int("inventory", st.Inventory))
}

// ApplyPositions recomputes inventory from the exchange's signed net
// positions for the match's two tickers. Components are clamped at zero;
// the venue reports one signed net per ticker (positive YES, negative NO).
func (l *Ledger) ApplyPositions(matchID, tickerA, tickerB string, positions map[string]int) {
	posA := positions[tickerA]
	posB := positions[tickerB]

	aYes := clampPos(posA)
	aNo := clampPos(-posA)
	bYes := clampPos(posB)
	bNo := clampPos(-posB)

	inv := (aYes + bNo) - (aNo + bYes)

	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.states[matchID]
	if st == nil {
		st = &State{}
		l.states[matchID] = st
	}

	if st.Inventory != inv {
		l.logger.Info("inventory-corrected-from-positions",
			zap.String("match-id", matchID),
			zap.Int("was", st.Inventory),
			zap.Int("now", inv))
	}
	st.Inventory = inv
}

// Snapshot returns a copy of the match state, zero value if unknown.
func (l *Ledger) Snapshot(matchID string) State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := l.states[matchID]
	if st == nil {
		return State{}
	}
	return *st
}

// Remove drops all state for a match.
func (l *Ledger) Remove(matchID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.states, matchID)
}

func clampPos(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
