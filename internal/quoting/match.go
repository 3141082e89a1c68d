// Package quoting owns the per-match state machine: it consumes book, fill,
// and position events, computes the four target leg prices, and drives the
// reconciler toward them.
package quoting

import (
	"strings"
	"time"

	"github.com/oddsmith/kalshi-mm/pkg/types"
)

// Match is one event being quoted: two complementary tickers, blended odds,
// derived theos, and the per-match quoting knobs.
type Match struct {
	ID       string
	Name     string
	Category string

	TickerA string
	TickerB string

	OddsA    float64
	OddsB    float64
	OddsDraw float64
	HasDraw  bool

	TheoA int
	TheoB int

	Edge         int
	OrderSize    int
	InventoryCap int

	EventTime time.Time
	Active    bool

	// Optional odds-provider coordinates for refresh-odds.
	SportKey    string
	OddsEventID string

	MarketURL string
}

// leg is one of the four quotable sides of a match.
type leg struct {
	ticker string
	side   types.Side
	longA  bool
}

// legs returns the four legs in a fixed order: A-YES and B-NO are long-A,
// A-NO and B-YES are long-B.
func (m *Match) legs() [4]leg {
	return [4]leg{
		{ticker: m.TickerA, side: types.SideYes, longA: true},
		{ticker: m.TickerB, side: types.SideNo, longA: true},
		{ticker: m.TickerA, side: types.SideNo, longA: false},
		{ticker: m.TickerB, side: types.SideYes, longA: false},
	}
}

// legTheo is the fair value of buying this leg: YES legs price at their
// ticker's theo, NO legs at its complement.
func (m *Match) legTheo(l leg) int {
	switch {
	case l.ticker == m.TickerA && l.side == types.SideYes:
		return m.TheoA
	case l.ticker == m.TickerA && l.side == types.SideNo:
		return m.TheoB
	case l.ticker == m.TickerB && l.side == types.SideYes:
		return m.TheoB
	default:
		return m.TheoA
	}
}

// longALeg reports whether a fill on (ticker, side) adds long-A exposure.
func (m *Match) longALeg(ticker string, side types.Side) bool {
	return (ticker == m.TickerA && side == types.SideYes) ||
		(ticker == m.TickerB && side == types.SideNo)
}

// MatchSnapshot is the read-only view served to the operator API and the
// dashboard push channel.
type MatchSnapshot struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	TickerA  string  `json:"ticker_a"`
	TickerB  string  `json:"ticker_b"`
	OddsA    float64 `json:"odds_a"`
	OddsB    float64 `json:"odds_b"`
	OddsDraw float64 `json:"odds_draw,omitempty"`

	TheoA        int       `json:"theo_a"`
	TheoB        int       `json:"theo_b"`
	Edge         int       `json:"edge"`
	OrderSize    int       `json:"order_size"`
	InventoryCap int       `json:"inventory_cap"`
	EventTime    time.Time `json:"event_time"`
	Active       bool      `json:"active"`

	Inventory int     `json:"inventory"`
	AvgCostA  float64 `json:"avg_cost_a"`
	AvgCostB  float64 `json:"avg_cost_b"`

	Books  map[string]types.BookSnapshot `json:"books"`
	Orders []types.RestingOrder          `json:"orders"`
}

// categoryPrefixes maps exchange series prefixes to display categories.
var categoryPrefixes = map[string]string{
	"KXEPL":    "soccer",
	"KXUCL":    "soccer",
	"KXLALIGA": "soccer",
	"KXSERIEA": "soccer",
	"KXBUND":   "soccer",
	"KXNBA":    "basketball",
	"KXNCAAB":  "basketball",
	"KXNFL":    "football",
	"KXNCAAF":  "football",
	"KXMLB":    "baseball",
	"KXNHL":    "hockey",
	"KXATP":    "tennis",
	"KXWTA":    "tennis",
	"KXUFC":    "mma",
}

// inferCategory derives a category from the ticker's series prefix.
func inferCategory(ticker string) string {
	series := ticker
	if i := strings.IndexByte(ticker, '-'); i > 0 {
		series = ticker[:i]
	}
	if cat, ok := categoryPrefixes[strings.ToUpper(series)]; ok {
		return cat
	}
	return "other"
}
