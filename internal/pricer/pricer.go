// Package pricer decides the target price for a single leg given the fair
// value, the current top of book, and our resting state. It is purely
// functional: no clocks, no I/O. Timing flags (stickiness, retest) are
// computed by the caller.
package pricer

// Kind discriminates pricing decisions.
type Kind int

const (
	// Quote means place or keep an order at Decision.Price.
	Quote Kind = iota
	// BackOff means a competitor has crossed our edge bound and we should
	// not rest an order at any acceptable price.
	BackOff
)

// Decision is the outcome of one pricing evaluation.
type Decision struct {
	Kind   Kind
	Price  int
	Forced bool // must-quote override pinned at the edge bound
}

// Input carries everything a single evaluation needs.
//
// Best, BestQty and Second describe the relevant ladder: the bid ladder for
// Bid, the ask ladder for Ask (where "best" is the lowest ask and "second"
// the next level above it). Current is our resting price; HasCurrent is
// false when we have no order on this leg.
type Input struct {
	Theo       int
	Best       int
	BestQty    int
	Second     int
	Current    int
	HasCurrent bool
	OurSize    int
	EdgeMin    int
	Sticky     bool
	IsRetest   bool
	MustQuote  bool
}

// Bid returns the target buy price for a leg. Numeric results never exceed
// the ceiling theo - edgeMin.
func Bid(in Input) Decision {
	ceiling := in.Theo - in.EdgeMin

	if ceiling < 1 {
		if in.MustQuote {
			return Decision{Kind: Quote, Price: 1, Forced: true}
		}
		return Decision{Kind: BackOff}
	}

	if in.HasCurrent && in.Current == in.Best {
		// We are top of book.
		if in.BestQty > in.OurSize && in.Current < ceiling {
			// Others have joined our level; take clear priority.
			return Decision{Kind: Quote, Price: in.Current + 1}
		}

		if in.Sticky && !in.IsRetest {
			return Decision{Kind: Quote, Price: clampBid(in.Current, ceiling)}
		}

		// Retest: drop to just above the competition to discover a
		// lower viable quote.
		px := in.Second + 1
		if px < 1 {
			px = 1
		}
		return Decision{Kind: Quote, Price: clampBid(px, ceiling)}
	}

	if !in.HasCurrent || in.Best > in.Current {
		// A competitor leads, or we have nothing resting.
		if in.Best > ceiling {
			if in.MustQuote {
				return Decision{Kind: Quote, Price: ceiling, Forced: true}
			}
			return Decision{Kind: BackOff}
		}

		return Decision{Kind: Quote, Price: clampBid(in.Best+1, ceiling)}
	}

	// Book says someone below us is best: stale view. Hold.
	return Decision{Kind: Quote, Price: clampBid(in.Current, ceiling)}
}

// Ask returns the target sell price for a leg. Numeric results never go
// below the floor theo + edgeMin + 1 and never exceed 99.
func Ask(in Input) Decision {
	floor := in.Theo + in.EdgeMin + 1

	if floor > 99 {
		if in.MustQuote {
			return Decision{Kind: Quote, Price: 99, Forced: true}
		}
		return Decision{Kind: BackOff}
	}

	if in.HasCurrent && in.Current == in.Best {
		if in.BestQty > in.OurSize && in.Current > floor {
			return Decision{Kind: Quote, Price: in.Current - 1}
		}

		if in.Sticky && !in.IsRetest {
			return Decision{Kind: Quote, Price: clampAsk(in.Current, floor)}
		}

		px := in.Second - 1
		if px > 99 {
			px = 99
		}
		return Decision{Kind: Quote, Price: clampAsk(px, floor)}
	}

	if !in.HasCurrent || (in.Best > 0 && in.Best < in.Current) {
		if in.Best > 0 && in.Best < floor {
			if in.MustQuote {
				return Decision{Kind: Quote, Price: floor, Forced: true}
			}
			return Decision{Kind: BackOff}
		}

		px := 99
		if in.Best > 0 {
			px = in.Best - 1
		}
		return Decision{Kind: Quote, Price: clampAsk(px, floor)}
	}

	return Decision{Kind: Quote, Price: clampAsk(in.Current, floor)}
}

func clampBid(px, ceiling int) int {
	if px > ceiling {
		return ceiling
	}
	if px < 1 {
		return 1
	}
	return px
}

func clampAsk(px, floor int) int {
	if px < floor {
		return floor
	}
	if px > 99 {
		return 99
	}
	return px
}
