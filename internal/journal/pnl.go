package journal

import (
	"fmt"
	"sort"
	"time"

	"github.com/oddsmith/kalshi-mm/pkg/types"
)

// MidPriceFunc values an open position at the current YES mid for a ticker.
// The second return is false when no market price is available.
type MidPriceFunc func(ticker string) (int, bool)

// MatchPnL is the deterministic decomposition of a match's economics.
// All cent fields are exact integers except EV, which carries the theo
// expectation of the unpaired tail.
type MatchPnL struct {
	MatchID       string  `json:"match_id"`
	TotalA        int     `json:"total_a"`
	TotalB        int     `json:"total_b"`
	Pairs         int     `json:"pairs"`
	CostAPaired   int     `json:"cost_a_paired"`
	CostBPaired   int     `json:"cost_b_paired"`
	ArbCents      int     `json:"arb_cents"`
	LeftoverA     int     `json:"leftover_a"`
	LeftoverB     int     `json:"leftover_b"`
	LeftoverCostA int     `json:"leftover_cost_a"`
	LeftoverCostB int     `json:"leftover_cost_b"`
	EVCents       float64 `json:"ev_cents"`
	AVCents       float64 `json:"av_cents"`
	AVKnown       bool    `json:"av_known"`
	FeesCents     int     `json:"fees_cents"`
	HedgeUSD      float64 `json:"hedge_usd"`
	NetUSD        float64 `json:"net_usd"`
}

// fillUnit is one fill's contribution to a FIFO queue.
type fillUnit struct {
	price  int
	count  int
	date   time.Time
	ticker string
	side   types.Side
}

// pairChunk is a contiguous run of pairs closed from one long-A unit against
// one long-B unit. ClosedAt is the later leg's fill time; the arb is credited
// to that date in period summaries.
type pairChunk struct {
	count    int
	costA    int
	costB    int
	closedAt time.Time
}

func (c pairChunk) arbCents() int {
	return 100*c.count - c.costA - c.costB
}

type pairing struct {
	chunks      []pairChunk
	pairs       int
	costAPaired int
	costBPaired int
	leftoverA   []fillUnit
	leftoverB   []fillUnit
}

// pairFills walks both FIFO queues, matching one-for-one until the shorter
// side is exhausted.
func pairFills(longA, longB []fillUnit) pairing {
	var p pairing

	i, j := 0, 0
	remA, remB := 0, 0
	if len(longA) > 0 {
		remA = longA[0].count
	}
	if len(longB) > 0 {
		remB = longB[0].count
	}

	for i < len(longA) && j < len(longB) {
		take := remA
		if remB < take {
			take = remB
		}

		closedAt := longA[i].date
		if longB[j].date.After(closedAt) {
			closedAt = longB[j].date
		}

		chunk := pairChunk{
			count:    take,
			costA:    take * longA[i].price,
			costB:    take * longB[j].price,
			closedAt: closedAt,
		}
		p.chunks = append(p.chunks, chunk)
		p.pairs += take
		p.costAPaired += chunk.costA
		p.costBPaired += chunk.costB

		remA -= take
		remB -= take
		if remA == 0 {
			i++
			if i < len(longA) {
				remA = longA[i].count
			}
		}
		if remB == 0 {
			j++
			if j < len(longB) {
				remB = longB[j].count
			}
		}
	}

	if i < len(longA) {
		head := longA[i]
		head.count = remA
		p.leftoverA = append(p.leftoverA, head)
		p.leftoverA = append(p.leftoverA, longA[i+1:]...)
	}
	if j < len(longB) {
		head := longB[j]
		head.count = remB
		p.leftoverB = append(p.leftoverB, head)
		p.leftoverB = append(p.leftoverB, longB[j+1:]...)
	}

	return p
}

func splitFills(m *MatchRecord, fills []*Fill) (longA, longB []fillUnit, totalA, totalB, fees int) {
	sorted := make([]*Fill, len(fills))
	copy(sorted, fills)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].CreatedTime.Before(sorted[b].CreatedTime)
	})

	for _, f := range sorted {
		fees += f.FeeCost

		unit := fillUnit{
			price:  f.Price,
			count:  f.Count,
			date:   f.CreatedTime,
			ticker: f.Ticker,
			side:   f.Side,
		}

		if m.LongA(f) {
			longA = append(longA, unit)
			totalA += f.Count
		} else {
			longB = append(longB, unit)
			totalB += f.Count
		}
	}

	return longA, longB, totalA, totalB, fees
}

// leftoverValue prices the unpaired tail. With a settled result the winning
// exposure pays 100 per contract and the losing one zero; otherwise each
// chunk is marked at its ticker's current mid (NO exposure at 100-mid).
func leftoverValue(m *MatchRecord, units []fillUnit, winning bool, midPrice MidPriceFunc) (value float64, known bool) {
	if m.Result != "" {
		if !winning {
			return 0, true
		}
		total := 0
		for _, u := range units {
			total += 100 * u.count
		}
		return float64(total), true
	}

	if midPrice == nil {
		return 0, false
	}

	known = true
	for _, u := range units {
		mid, ok := midPrice(u.ticker)
		if !ok {
			return 0, false
		}
		if u.side == types.SideNo {
			mid = 100 - mid
		}
		value += float64(mid * u.count)
	}

	return value, known
}

func sumUnits(units []fillUnit) (count, cost int) {
	for _, u := range units {
		count += u.count
		cost += u.count * u.price
	}
	return count, cost
}

// CalculateMatchPnL decomposes a match's fills into guaranteed arb,
// expected value of the unpaired tail, and actual (settled or marked) value.
// It is pure: identical inputs always yield identical outputs.
func CalculateMatchPnL(m *MatchRecord, fills []*Fill, hedges []*Hedge, midPrice MidPriceFunc) MatchPnL {
	longA, longB, totalA, totalB, fees := splitFills(m, fills)
	p := pairFills(longA, longB)

	leftoverA, leftoverCostA := sumUnits(p.leftoverA)
	leftoverB, leftoverCostB := sumUnits(p.leftoverB)

	ev := float64(m.TheoA*leftoverA-leftoverCostA) + float64(m.TheoB*leftoverB-leftoverCostB)

	valueA, knownA := leftoverValue(m, p.leftoverA, m.Result == "A", midPrice)
	valueB, knownB := leftoverValue(m, p.leftoverB, m.Result == "B", midPrice)
	avKnown := knownA && knownB
	var av float64
	if avKnown {
		av = valueA + valueB - float64(leftoverCostA) - float64(leftoverCostB)
	}

	var hedgeUSD float64
	for _, h := range hedges {
		hedgeUSD += h.ProfitUSD()
	}

	arb := 100*p.pairs - p.costAPaired - p.costBPaired

	return MatchPnL{
		MatchID:       m.ID,
		TotalA:        totalA,
		TotalB:        totalB,
		Pairs:         p.pairs,
		CostAPaired:   p.costAPaired,
		CostBPaired:   p.costBPaired,
		ArbCents:      arb,
		LeftoverA:     leftoverA,
		LeftoverB:     leftoverB,
		LeftoverCostA: leftoverCostA,
		LeftoverCostB: leftoverCostB,
		EVCents:       ev,
		AVCents:       av,
		AVKnown:       avKnown,
		FeesCents:     fees,
		HedgeUSD:      hedgeUSD,
		NetUSD:        float64(arb)/100 + av/100 + hedgeUSD - float64(fees)/100,
	}
}

// Period selects the bucketing granularity for summaries.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod validates a period string from the API.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return Period(s), nil
	case "":
		return PeriodDaily, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// BucketKey returns the summary bucket a timestamp falls into.
func (p Period) BucketKey(t time.Time) string {
	switch p {
	case PeriodWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case PeriodMonthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// PeriodBucket aggregates P&L credited to one period.
type PeriodBucket struct {
	Period    string  `json:"period"`
	ArbCents  int     `json:"arb_cents"`
	EVCents   float64 `json:"ev_cents"`
	AVCents   float64 `json:"av_cents"`
	FeesCents int     `json:"fees_cents"`
	HedgeUSD  float64 `json:"hedge_usd"`
	NetUSD    float64 `json:"net_usd"`
}

// Summarize buckets P&L by period across matches. A pair's arb is credited
// to the later of its two legs' dates; leftover EV/AV and fees go to each
// fill's own date; hedges to their creation date.
func Summarize(
	matches []*MatchRecord,
	fillsByMatch map[string][]*Fill,
	hedgesByMatch map[string][]*Hedge,
	period Period,
	midPrice MidPriceFunc,
) []PeriodBucket {
	buckets := make(map[string]*PeriodBucket)
	bucket := func(key string) *PeriodBucket {
		b := buckets[key]
		if b == nil {
			b = &PeriodBucket{Period: key}
			buckets[key] = b
		}
		return b
	}

	for _, m := range matches {
		longA, longB, _, _, _ := splitFills(m, fillsByMatch[m.ID])
		p := pairFills(longA, longB)

		for _, chunk := range p.chunks {
			bucket(period.BucketKey(chunk.closedAt)).ArbCents += chunk.arbCents()
		}

		creditLeftover := func(units []fillUnit, theo int, winning bool) {
			for _, u := range units {
				b := bucket(period.BucketKey(u.date))
				b.EVCents += float64(theo*u.count - u.price*u.count)

				value, known := leftoverValue(m, []fillUnit{u}, winning, midPrice)
				if known {
					b.AVCents += value - float64(u.price*u.count)
				}
			}
		}
		creditLeftover(p.leftoverA, m.TheoA, m.Result == "A")
		creditLeftover(p.leftoverB, m.TheoB, m.Result == "B")

		for _, f := range fillsByMatch[m.ID] {
			bucket(period.BucketKey(f.CreatedTime)).FeesCents += f.FeeCost
		}

		for _, h := range hedgesByMatch[m.ID] {
			bucket(period.BucketKey(h.CreatedAt)).HedgeUSD += h.ProfitUSD()
		}
	}

	out := make([]PeriodBucket, 0, len(buckets))
	for _, b := range buckets {
		b.NetUSD = float64(b.ArbCents)/100 + b.AVCents/100 + b.HedgeUSD - float64(b.FeesCents)/100
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })

	return out
}
