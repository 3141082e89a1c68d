package pricer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBid_NoCurrentOutbidsByOne(t *testing.T) {
	// theo 60, edge 2 -> ceiling 58; best 52 -> quote 53.
	d := Bid(Input{Theo: 60, EdgeMin: 2, Best: 52, BestQty: 10, Second: 50, OurSize: 5})

	assert.Equal(t, Quote, d.Kind)
	assert.Equal(t, 53, d.Price)
	assert.False(t, d.Forced)
}

func TestBid_StickyHold(t *testing.T) {
	// We are alone at the ceiling with stickiness active: no flicker.
	d := Bid(Input{
		Theo: 60, EdgeMin: 2,
		Best: 58, BestQty: 5, Second: 52,
		Current: 58, HasCurrent: true, OurSize: 5,
		Sticky: true,
	})

	assert.Equal(t, Quote, d.Kind)
	assert.Equal(t, 58, d.Price)
}

func TestBid_TieAtTopTakesPriority(t *testing.T) {
	// Competitors joined our level and we are below the ceiling: step up.
	d := Bid(Input{
		Theo: 61, EdgeMin: 2, // ceiling 59
		Best: 58, BestQty: 12, Second: 52,
		Current: 58, HasCurrent: true, OurSize: 5,
		Sticky: true,
	})

	assert.Equal(t, Quote, d.Kind)
	assert.Equal(t, 59, d.Price)
}

func TestBid_TieAtCeilingHolds(t *testing.T) {
	// Tied at the ceiling: cannot step up, stickiness keeps us in place.
	d := Bid(Input{
		Theo: 60, EdgeMin: 2,
		Best: 58, BestQty: 12, Second: 52,
		Current: 58, HasCurrent: true, OurSize: 5,
		Sticky: true,
	})

	assert.Equal(t, Quote, d.Kind)
	assert.Equal(t, 58, d.Price)
}

func TestBid_RetestDropsToSecondPlusOne(t *testing.T) {
	d := Bid(Input{
		Theo: 60, EdgeMin: 2,
		Best: 58, BestQty: 5, Second: 51,
		Current: 58, HasCurrent: true, OurSize: 5,
		Sticky: true, IsRetest: true,
	})

	assert.Equal(t, Quote, d.Kind)
	assert.Equal(t, 52, d.Price)
}

func TestBid_RetestEmptySecondFloorsAtOne(t *testing.T) {
	d := Bid(Input{
		Theo: 60, EdgeMin: 2,
		Best: 58, BestQty: 5, Second: 0,
		Current: 58, HasCurrent: true, OurSize: 5,
		IsRetest: true,
	})

	assert.Equal(t, Quote, d.Kind)
	assert.Equal(t, 1, d.Price)
}

func TestBid_CompetitorAboveCeilingBacksOff(t *testing.T) {
	d := Bid(Input{Theo: 60, EdgeMin: 2, Best: 59, BestQty: 3, OurSize: 5})

	assert.Equal(t, BackOff, d.Kind)
}

func TestBid_CompetitorAboveCeilingMustQuote(t *testing.T) {
	d := Bid(Input{Theo: 60, EdgeMin: 2, Best: 59, BestQty: 3, OurSize: 5, MustQuote: true})

	assert.Equal(t, Quote, d.Kind)
	assert.Equal(t, 58, d.Price)
	assert.True(t, d.Forced)
}

func TestBid_OutbidClampedToCeiling(t *testing.T) {
	// best == ceiling: best+1 would breach it.
	d := Bid(Input{Theo: 60, EdgeMin: 2, Best: 58, BestQty: 3, OurSize: 5})

	assert.Equal(t, Quote, d.Kind)
	assert.Equal(t, 58, d.Price)
}

func TestBid_EmptyBookQuotesOne(t *testing.T) {
	d := Bid(Input{Theo: 60, EdgeMin: 2, OurSize: 5})

	assert.Equal(t, Quote, d.Kind)
	assert.Equal(t, 1, d.Price)
}

func TestBid_CeilingBelowOne(t *testing.T) {
	d := Bid(Input{Theo: 2, EdgeMin: 3, OurSize: 5})
	assert.Equal(t, BackOff, d.Kind)

	forced := Bid(Input{Theo: 2, EdgeMin: 3, OurSize: 5, MustQuote: true})
	assert.Equal(t, Quote, forced.Kind)
	assert.Equal(t, 1, forced.Price)
	assert.True(t, forced.Forced)
}

func TestBid_NumericOutputNeverExceedsCeiling(t *testing.T) {
	inputs := []Input{
		{Theo: 60, EdgeMin: 2, Best: 52, BestQty: 10, Second: 48, OurSize: 5},
		{Theo: 60, EdgeMin: 2, Best: 58, BestQty: 12, Second: 57, Current: 58, HasCurrent: true, OurSize: 5, Sticky: true},
		{Theo: 55, EdgeMin: 2, Best: 53, BestQty: 5, Second: 57, Current: 53, HasCurrent: true, OurSize: 5, IsRetest: true},
		{Theo: 40, EdgeMin: 3, Best: 60, BestQty: 1, OurSize: 5, MustQuote: true},
		// Theo dropped below our resting price: sticky hold must reprice down.
		{Theo: 50, EdgeMin: 2, Best: 58, BestQty: 5, Second: 40, Current: 58, HasCurrent: true, OurSize: 5, Sticky: true},
	}

	for _, in := range inputs {
		d := Bid(in)
		if d.Kind == Quote {
			ceiling := in.Theo - in.EdgeMin
			assert.LessOrEqual(t, d.Price, ceiling, "input %+v", in)
			assert.GreaterOrEqual(t, d.Price, 1, "input %+v", in)
		}
	}
}

func TestAsk_NoCurrentUnderbidsByOne(t *testing.T) {
	// theo 60, edge 2 -> floor 63; best ask 70 -> quote 69.
	d := Ask(Input{Theo: 60, EdgeMin: 2, Best: 70, BestQty: 10, Second: 75, OurSize: 5})

	assert.Equal(t, Quote, d.Kind)
	assert.Equal(t, 69, d.Price)
}

func TestAsk_CompetitorBelowFloorBacksOff(t *testing.T) {
	d := Ask(Input{Theo: 60, EdgeMin: 2, Best: 61, BestQty: 3, OurSize: 5})

	assert.Equal(t, BackOff, d.Kind)
}

func TestAsk_MustQuoteForcedAtFloor(t *testing.T) {
	d := Ask(Input{Theo: 60, EdgeMin: 2, Best: 61, BestQty: 3, OurSize: 5, MustQuote: true})

	assert.Equal(t, Quote, d.Kind)
	assert.Equal(t, 63, d.Price)
	assert.True(t, d.Forced)
}

func TestAsk_FloorAboveNinetyNine(t *testing.T) {
	d := Ask(Input{Theo: 98, EdgeMin: 3, OurSize: 5})
	assert.Equal(t, BackOff, d.Kind)

	forced := Ask(Input{Theo: 98, EdgeMin: 3, OurSize: 5, MustQuote: true})
	assert.Equal(t, Quote, forced.Kind)
	assert.Equal(t, 99, forced.Price)
	assert.True(t, forced.Forced)
}

func TestAsk_StickyHoldAndRetest(t *testing.T) {
	hold := Ask(Input{
		Theo: 60, EdgeMin: 2,
		Best: 65, BestQty: 5, Second: 72,
		Current: 65, HasCurrent: true, OurSize: 5,
		Sticky: true,
	})
	assert.Equal(t, Quote, hold.Kind)
	assert.Equal(t, 65, hold.Price)

	retest := Ask(Input{
		Theo: 60, EdgeMin: 2,
		Best: 65, BestQty: 5, Second: 72,
		Current: 65, HasCurrent: true, OurSize: 5,
		Sticky: true, IsRetest: true,
	})
	assert.Equal(t, Quote, retest.Kind)
	assert.Equal(t, 71, retest.Price)
}

func TestAsk_NumericOutputNeverBelowFloor(t *testing.T) {
	inputs := []Input{
		{Theo: 60, EdgeMin: 2, Best: 70, BestQty: 10, Second: 80, OurSize: 5},
		{Theo: 60, EdgeMin: 2, Best: 64, BestQty: 3, OurSize: 5},
		{Theo: 60, EdgeMin: 2, Best: 65, BestQty: 12, Second: 80, Current: 65, HasCurrent: true, OurSize: 5, Sticky: true},
		{Theo: 60, EdgeMin: 2, Best: 61, BestQty: 1, OurSize: 5, MustQuote: true},
	}

	for _, in := range inputs {
		d := Ask(in)
		if d.Kind == Quote {
			floor := in.Theo + in.EdgeMin + 1
			assert.GreaterOrEqual(t, d.Price, floor, "input %+v", in)
			assert.LessOrEqual(t, d.Price, 99, "input %+v", in)
		}
	}
}
