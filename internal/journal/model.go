package journal

import (
	"time"

	"github.com/oddsmith/kalshi-mm/pkg/types"
)

// Fill is a durable record of one execution. Idempotent by ID.
type Fill struct {
	ID          string
	Ticker      string
	Side        types.Side
	Action      string // "buy" or "sell"
	Price       int    // cents
	Count       int
	IsTaker     bool
	FeeCost     int // cents
	CreatedTime time.Time
	MatchID     string // empty until linked
	SyncedAt    time.Time
}

// Hedge is an externally placed offsetting bet the operator records manually.
type Hedge struct {
	ID        int64
	MatchID   string
	Platform  string
	Side      string // "A" or "B"
	AmountUSD float64
	Odds      float64 // decimal
	Outcome   string  // "win", "loss", "push" or empty while open
	CreatedAt time.Time
}

// ProfitUSD returns the hedge's realized profit: stake times (odds-1) on a
// win, the lost stake on a loss, zero on a push or while open.
func (h *Hedge) ProfitUSD() float64 {
	switch h.Outcome {
	case "win":
		return h.AmountUSD * (h.Odds - 1)
	case "loss":
		return -h.AmountUSD
	default:
		return 0
	}
}

// MatchRecord is the persisted metadata for a match ever quoted.
type MatchRecord struct {
	ID        string
	TickerA   string
	TickerB   string
	TheoA     int
	TheoB     int
	EventTime time.Time
	SettledAt *time.Time
	Result    string // "A", "B" or empty while unsettled
	Category  string
}

// LongA reports whether a fill adds exposure to the A outcome:
// A-YES and B-NO purchases pay off when A wins.
func (m *MatchRecord) LongA(f *Fill) bool {
	if f.Ticker == m.TickerA {
		return f.Side == types.SideYes
	}
	return f.Side == types.SideNo
}
