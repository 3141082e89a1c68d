package theo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwoWay(t *testing.T) {
	tests := []struct {
		name      string
		oddsA     float64
		oddsB     float64
		wantTheoA int
	}{
		{"even_money", 2.0, 2.0, 50},
		{"favorite_a", 1.5, 3.0, 67},
		{"favorite_b", 3.0, 1.5, 33},
		{"vig_removed", 1.9, 1.9, 50}, // both sides juiced, still 50/50
		{"heavy_favorite", 1.1, 8.0, 88},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			theoA, theoB, err := TwoWay(tt.oddsA, tt.oddsB)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTheoA, theoA)
			assert.Equal(t, 100, theoA+theoB, "theos must sum to 100")
		})
	}
}

func TestTwoWay_InvalidOdds(t *testing.T) {
	_, _, err := TwoWay(0, 2.0)
	assert.Error(t, err)

	_, _, err = TwoWay(2.0, -1.0)
	assert.Error(t, err)
}

func TestThreeWay(t *testing.T) {
	t.Run("symmetric_with_draw", func(t *testing.T) {
		// p = 0.4, 0.4, 0.2; draw split adds 0.1 to each side.
		theoA, theoB, err := ThreeWay(2.5, 2.5, 5.0)
		require.NoError(t, err)
		assert.Equal(t, 50, theoA)
		assert.Equal(t, 50, theoB)
	})

	t.Run("favorite_with_draw", func(t *testing.T) {
		// p = 0.5, 0.25, 0.25; theoA = (0.5+0.125)/1.0 = 62.5 -> 62 or 63 by rounding.
		theoA, theoB, err := ThreeWay(2.0, 4.0, 4.0)
		require.NoError(t, err)
		assert.Equal(t, 62, theoA)
		assert.Equal(t, 100, theoA+theoB)
	})

	t.Run("missing_draw_uses_default", func(t *testing.T) {
		withDefault, _, err := ThreeWay(2.0, 2.0, 0)
		require.NoError(t, err)

		explicit, _, err := ThreeWay(2.0, 2.0, DefaultDrawOdds)
		require.NoError(t, err)

		assert.Equal(t, explicit, withDefault)
	})

	t.Run("sum_invariant", func(t *testing.T) {
		for _, odds := range [][3]float64{{1.2, 9.0, 15.0}, {3.3, 2.1, 3.4}, {1.01, 50.0, 30.0}} {
			theoA, theoB, err := ThreeWay(odds[0], odds[1], odds[2])
			require.NoError(t, err)
			assert.Equal(t, 100, theoA+theoB)
		}
	})
}

func TestFairOdds(t *testing.T) {
	assert.InDelta(t, 2.0, FairOdds(50), 1e-9)
	assert.InDelta(t, 100.0/62.0, FairOdds(62), 1e-9)
	assert.Equal(t, 0.0, FairOdds(0))
}
