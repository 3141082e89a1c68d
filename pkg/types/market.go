package types

import "time"

// Side identifies the YES or NO side of a binary contract.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other side of the contract.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// TopOfBook is the view of one side's bid ladder that the pricer consumes:
// best bid, its resting quantity, and the level directly below it.
type TopOfBook struct {
	BestBid    int `json:"best_bid"`
	BestBidQty int `json:"best_bid_qty"`
	SecondBid  int `json:"second_bid"`
}

// BookSnapshot is a point-in-time copy of both bid ladders' tops for a ticker.
// YesAsk is derived: 100 minus the best NO bid (100 when the NO side is empty).
type BookSnapshot struct {
	Ticker      string    `json:"ticker"`
	Yes         TopOfBook `json:"yes"`
	No          TopOfBook `json:"no"`
	YesAsk      int       `json:"yes_ask"`
	LastUpdated time.Time `json:"last_updated"`
}

// OrderKey addresses the single resting order slot for one leg of a match.
type OrderKey struct {
	MatchID string
	Ticker  string
	Side    Side
}

// RestingOrder is a live limit order we believe is resting on the exchange.
// At most one exists per OrderKey.
type RestingOrder struct {
	OrderID     string    `json:"order_id"`
	MatchID     string    `json:"match_id"`
	Ticker      string    `json:"ticker"`
	Side        Side      `json:"side"`
	Price       int       `json:"price"` // cents, [1,99]
	Size        int       `json:"size"`  // contracts
	FilledCount int       `json:"filled_count"`
	PlacedAt    time.Time `json:"placed_at"`
}

// Remaining returns the unfilled contract count.
func (o *RestingOrder) Remaining() int {
	r := o.Size - o.FilledCount
	if r < 0 {
		return 0
	}
	return r
}
