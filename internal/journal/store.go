// Package journal persists fills, hedges, and match metadata, and computes
// the arb/EV/AV decomposition of realized P&L.
package journal

import (
	"context"
	"time"
)

// Store is the durable side of the journal. Writes are idempotent where the
// schema allows it: inserting a fill with a known id only refreshes its
// match association.
type Store interface {
	UpsertMatch(ctx context.Context, m *MatchRecord) error
	GetMatch(ctx context.Context, id string) (*MatchRecord, error)
	ListMatches(ctx context.Context) ([]*MatchRecord, error)
	SettleMatch(ctx context.Context, id, result string, settledAt time.Time) error

	InsertFill(ctx context.Context, f *Fill) error
	LinkFillsToMatch(ctx context.Context, matchID, tickerA, tickerB string) error
	FillsForMatch(ctx context.Context, matchID string) ([]*Fill, error)
	AllFills(ctx context.Context) ([]*Fill, error)

	InsertHedge(ctx context.Context, h *Hedge) (int64, error)
	ListHedges(ctx context.Context) ([]*Hedge, error)
	HedgesForMatch(ctx context.Context, matchID string) ([]*Hedge, error)
	UpdateHedge(ctx context.Context, h *Hedge) error
	DeleteHedge(ctx context.Context, id int64) error

	Close() error
}
