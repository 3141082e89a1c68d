package reconciler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/internal/gateway"
	"github.com/oddsmith/kalshi-mm/pkg/types"
)

// fakeExchange records order traffic and lets tests inject failures.
type fakeExchange struct {
	mu        sync.Mutex
	nextID    int
	placed    []*gateway.OrderRequest
	cancelled []string
	resting   []gateway.Order
	placeErr  error
	cancelErr error
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req *gateway.OrderRequest) (*gateway.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.nextID++
	f.placed = append(f.placed, req)
	return &gateway.Order{OrderID: fmt.Sprintf("o%d", f.nextID)}, nil
}

func (f *fakeExchange) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeExchange) GetOrders(ctx context.Context, status string) ([]gateway.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resting, nil
}

func (f *fakeExchange) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

func (f *fakeExchange) cancelledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestReconciler(t *testing.T) (*Reconciler, *fakeExchange, *testClock) {
	t.Helper()

	exchange := &fakeExchange{}
	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	r := New(&Config{
		Exchange:           exchange,
		Logger:             zap.NewNop(),
		OverbidCancelDelay: 10 * time.Second,
		Workers:            4,
		Now:                clock.Now,
	})
	return r, exchange, clock
}

func key(side types.Side) types.OrderKey {
	return types.OrderKey{MatchID: "m1", Ticker: "TEAMA", Side: side}
}

func TestQuote_PlacesAndHolds(t *testing.T) {
	r, exchange, _ := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.Quote(ctx, key(types.SideYes), 53, 20, 1700000000))
	assert.Equal(t, 1, exchange.placedCount())

	order, ok := r.Order(key(types.SideYes))
	require.True(t, ok)
	assert.Equal(t, 53, order.Price)
	assert.Equal(t, 20, order.Size)

	// Same price and size is a no-op: queue priority survives.
	require.NoError(t, r.Quote(ctx, key(types.SideYes), 53, 20, 1700000000))
	assert.Equal(t, 1, exchange.placedCount())
	assert.Empty(t, exchange.cancelledIDs())
}

func TestQuote_RepriceCancelsThenPlaces(t *testing.T) {
	r, exchange, _ := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.Quote(ctx, key(types.SideYes), 53, 20, 0))
	require.NoError(t, r.Quote(ctx, key(types.SideYes), 55, 20, 0))

	assert.Equal(t, 2, exchange.placedCount())
	assert.Equal(t, []string{"o1"}, exchange.cancelledIDs())

	order, ok := r.Order(key(types.SideYes))
	require.True(t, ok)
	assert.Equal(t, 55, order.Price)
}

func TestQuote_RejectedLeavesSlotEmpty(t *testing.T) {
	r, exchange, _ := newTestReconciler(t)
	exchange.placeErr = types.ErrOrderRejected

	require.NoError(t, r.Quote(context.Background(), key(types.SideYes), 53, 20, 0))

	_, ok := r.Order(key(types.SideYes))
	assert.False(t, ok)
}

func TestBackOff_HysteresisDelaysCancel(t *testing.T) {
	r, exchange, clock := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.Quote(ctx, key(types.SideYes), 53, 20, 0))

	// First back-off only starts the clock.
	require.NoError(t, r.BackOff(ctx, key(types.SideYes)))
	assert.Empty(t, exchange.cancelledIDs())

	// Still inside the window: order stays.
	clock.Advance(9 * time.Second)
	require.NoError(t, r.BackOff(ctx, key(types.SideYes)))
	assert.Empty(t, exchange.cancelledIDs())

	// Past the window: order goes.
	clock.Advance(2 * time.Second)
	require.NoError(t, r.BackOff(ctx, key(types.SideYes)))
	assert.Equal(t, []string{"o1"}, exchange.cancelledIDs())

	_, ok := r.Order(key(types.SideYes))
	assert.False(t, ok)
}

func TestBackOff_QuoteResetsOverbidClock(t *testing.T) {
	r, exchange, clock := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.Quote(ctx, key(types.SideYes), 53, 20, 0))
	require.NoError(t, r.BackOff(ctx, key(types.SideYes)))

	clock.Advance(9 * time.Second)

	// Competitive again: the overbid clock must restart from zero.
	require.NoError(t, r.Quote(ctx, key(types.SideYes), 53, 20, 0))

	clock.Advance(2 * time.Second)
	require.NoError(t, r.BackOff(ctx, key(types.SideYes)))
	assert.Empty(t, exchange.cancelledIDs())
}

func TestClear_CancelsImmediately(t *testing.T) {
	r, exchange, _ := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.Quote(ctx, key(types.SideYes), 53, 20, 0))
	require.NoError(t, r.Clear(ctx, key(types.SideYes)))

	assert.Equal(t, []string{"o1"}, exchange.cancelledIDs())
	_, ok := r.Order(key(types.SideYes))
	assert.False(t, ok)

	// Clearing an empty slot is fine.
	require.NoError(t, r.Clear(ctx, key(types.SideYes)))
}

func TestCancelRaceTreatedAsSuccess(t *testing.T) {
	r, exchange, _ := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.Quote(ctx, key(types.SideYes), 53, 20, 0))

	exchange.cancelErr = types.ErrOrderNotFound
	require.NoError(t, r.Clear(ctx, key(types.SideYes)))

	_, ok := r.Order(key(types.SideYes))
	assert.False(t, ok)
}

func TestOnFill_PartialThenFull(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.Quote(ctx, key(types.SideYes), 53, 20, 0))

	r.OnFill(&types.Fill{OrderID: "o1", Ticker: "TEAMA", Side: types.SideYes, Count: 8})

	order, ok := r.Order(key(types.SideYes))
	require.True(t, ok)
	assert.Equal(t, 12, order.Remaining())

	r.OnFill(&types.Fill{OrderID: "o1", Ticker: "TEAMA", Side: types.SideYes, Count: 12})

	_, ok = r.Order(key(types.SideYes))
	assert.False(t, ok)
}

func TestOnFill_UnknownOrderIgnored(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	r.OnFill(&types.Fill{OrderID: "ghost", Count: 5})
	assert.Empty(t, r.Orders())
}

func TestCancelMatch(t *testing.T) {
	r, exchange, _ := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.Quote(ctx, types.OrderKey{MatchID: "m1", Ticker: "TEAMA", Side: types.SideYes}, 53, 20, 0))
	require.NoError(t, r.Quote(ctx, types.OrderKey{MatchID: "m1", Ticker: "TEAMB", Side: types.SideYes}, 45, 20, 0))
	require.NoError(t, r.Quote(ctx, types.OrderKey{MatchID: "m2", Ticker: "OTHER", Side: types.SideYes}, 30, 10, 0))

	require.NoError(t, r.CancelMatch(ctx, "m1"))

	assert.Len(t, exchange.cancelledIDs(), 2)
	assert.Len(t, r.Orders(), 1)
	assert.Equal(t, "m2", r.Orders()[0].MatchID)
}

func TestEmergencyCancelAll_UnionAndOnce(t *testing.T) {
	r, exchange, _ := newTestReconciler(t)
	ctx := context.Background()

	require.NoError(t, r.Quote(ctx, key(types.SideYes), 53, 20, 0))
	require.NoError(t, r.Quote(ctx, key(types.SideNo), 44, 20, 0))

	// The exchange also knows an order we lost track of.
	exchange.mu.Lock()
	exchange.resting = []gateway.Order{{OrderID: "stale-1"}, {OrderID: "o1"}}
	exchange.mu.Unlock()

	r.EmergencyCancelAll(ctx)

	assert.ElementsMatch(t, []string{"o1", "o2", "stale-1"}, exchange.cancelledIDs())
	assert.Empty(t, r.Orders())

	// One-shot: a second invocation does nothing.
	r.EmergencyCancelAll(ctx)
	assert.Len(t, exchange.cancelledIDs(), 3)
}
