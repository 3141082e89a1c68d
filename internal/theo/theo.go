// Package theo converts decimal sportsbook odds into vig-free cent prices
// for the two complementary contracts of a match.
package theo

import (
	"fmt"
	"math"
)

// DefaultDrawOdds is used for three-way markets when the draw price is
// unavailable. A long-shot draw keeps the split formula well defined while
// converging to the two-way result.
const DefaultDrawOdds = 20.0

// TwoWay removes the vig from a two-outcome market.
// Returns theo prices in cents with theoA + theoB == 100.
func TwoWay(oddsA, oddsB float64) (theoA, theoB int, err error) {
	if oddsA <= 0 || oddsB <= 0 {
		return 0, 0, fmt.Errorf("odds must be positive, got a=%f b=%f", oddsA, oddsB)
	}

	pA := 1.0 / oddsA
	pB := 1.0 / oddsB

	theoA = int(math.Round(100 * pA / (pA + pB)))
	theoB = 100 - theoA

	return theoA, theoB, nil
}

// ThreeWay removes the vig from a three-outcome market where the third
// outcome is a draw. The exchange resolves draws 50/50, so the draw
// probability is split evenly between A and B.
func ThreeWay(oddsA, oddsB, oddsDraw float64) (theoA, theoB int, err error) {
	if oddsDraw <= 0 {
		oddsDraw = DefaultDrawOdds
	}

	if oddsA <= 0 || oddsB <= 0 {
		return 0, 0, fmt.Errorf("odds must be positive, got a=%f b=%f", oddsA, oddsB)
	}

	pA := 1.0 / oddsA
	pB := 1.0 / oddsB
	pD := 1.0 / oddsDraw
	total := pA + pB + pD

	theoA = int(math.Round((pA + pD/2) / total * 100))
	theoB = 100 - theoA

	return theoA, theoB, nil
}

// FairOdds returns the decimal odds implied by a theo price.
func FairOdds(theo int) float64 {
	if theo <= 0 {
		return 0
	}
	return 100.0 / float64(theo)
}
