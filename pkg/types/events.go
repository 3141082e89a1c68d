package types

import (
	json "github.com/goccy/go-json"
)

// EventType discriminates decoded stream events.
type EventType string

const (
	EventOrderbookSnapshot EventType = "orderbook_snapshot"
	EventOrderbookDelta    EventType = "orderbook_delta"
	EventFill              EventType = "fill"
	EventPosition          EventType = "market_position"
)

// StreamMessage is the wire envelope on the exchange WebSocket.
type StreamMessage struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq"`
	Msg  json.RawMessage `json:"msg"`
}

// OrderbookSnapshot carries the full bid ladders for both sides of a ticker.
// Levels are [price, quantity] pairs in cents and contracts.
type OrderbookSnapshot struct {
	Ticker string   `json:"market_ticker"`
	Yes    [][2]int `json:"yes"`
	No     [][2]int `json:"no"`
}

// OrderbookDelta is an incremental quantity change at one price level.
// A level whose quantity reaches zero is removed from the ladder.
type OrderbookDelta struct {
	Ticker string `json:"market_ticker"`
	Price  int    `json:"price"`
	Delta  int    `json:"delta"`
	Side   Side   `json:"side"`
}

// Fill reports an execution against one of our orders.
type Fill struct {
	TradeID     string `json:"trade_id"`
	OrderID     string `json:"order_id"`
	Ticker      string `json:"market_ticker"`
	Side        Side   `json:"side"`
	Action      string `json:"action"` // "buy" or "sell"
	Count       int    `json:"count"`
	YesPrice    int    `json:"yes_price"`
	NoPrice     int    `json:"no_price"`
	IsTaker     bool   `json:"is_taker"`
	Ts          int64  `json:"ts"`
	CreatedTime string `json:"created_time"`
}

// Price returns the paid price for the filled side.
func (f *Fill) Price() int {
	if f.Side == SideNo {
		return f.NoPrice
	}
	return f.YesPrice
}

// PositionUpdate is the exchange's authoritative net position for a ticker.
// Position is signed: positive counts are YES contracts, negative NO.
type PositionUpdate struct {
	Ticker   string `json:"market_ticker"`
	Position int    `json:"position"`
}

// YesCount returns the held YES contracts, clamped at zero.
func (p *PositionUpdate) YesCount() int {
	if p.Position > 0 {
		return p.Position
	}
	return 0
}

// NoCount returns the held NO contracts, clamped at zero.
func (p *PositionUpdate) NoCount() int {
	if p.Position < 0 {
		return -p.Position
	}
	return 0
}

// Event is the decoded tagged union delivered by the stream manager.
// Exactly one payload pointer is non-nil, matching Type.
type Event struct {
	Type     EventType
	Seq      int64
	Snapshot *OrderbookSnapshot
	Delta    *OrderbookDelta
	Fill     *Fill
	Position *PositionUpdate
}
