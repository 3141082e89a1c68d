package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLedger_ApplyFill(t *testing.T) {
	l := New(zap.NewNop())

	l.ApplyFill("m1", true, 50, 5)
	l.ApplyFill("m1", true, 52, 3)
	l.ApplyFill("m1", false, 48, 2)

	st := l.Snapshot("m1")
	assert.Equal(t, 50*5+52*3, st.CostLongA)
	assert.Equal(t, 8, st.CountLongA)
	assert.Equal(t, 96, st.CostLongB)
	assert.Equal(t, 2, st.CountLongB)
	assert.Equal(t, 6, st.Inventory)
}

func TestLedger_ApplyPositions(t *testing.T) {
	l := New(zap.NewNop())
	l.ApplyFill("m1", true, 50, 3)

	// A: net +10 yes, B: net -4 (4 no contracts).
	// inventory = (10 + 4) - (0 + 0) = 14.
	l.ApplyPositions("m1", "TICK-A", "TICK-B", map[string]int{"TICK-A": 10, "TICK-B": -4})

	st := l.Snapshot("m1")
	assert.Equal(t, 14, st.Inventory)
	// Cost basis is untouched by position corrections.
	assert.Equal(t, 150, st.CostLongA)
	assert.Equal(t, 3, st.CountLongA)
}

func TestLedger_ApplyPositionsMixedSigns(t *testing.T) {
	l := New(zap.NewNop())

	// A: +5 yes, B: +3 yes -> inventory = (5 + 0) - (0 + 3) = 2.
	l.ApplyPositions("m1", "A", "B", map[string]int{"A": 5, "B": 3})
	assert.Equal(t, 2, l.Snapshot("m1").Inventory)

	// A: -2 no, B: -7 no -> inventory = (0 + 7) - (2 + 0) = 5.
	l.ApplyPositions("m1", "A", "B", map[string]int{"A": -2, "B": -7})
	assert.Equal(t, 5, l.Snapshot("m1").Inventory)
}

func TestState_Breakevens(t *testing.T) {
	st := State{CostLongA: 350, CountLongA: 5} // avg 70

	// 99 - 70 - 2 = 27
	assert.Equal(t, 27, st.BreakevenForB(2))

	// avg 70.5 rounds up to 71: 99 - 71 - 2 = 26
	st = State{CostLongA: 705, CountLongA: 10}
	assert.Equal(t, 26, st.BreakevenForB(2))

	// Flat position yields no breakeven.
	assert.Equal(t, 0, State{}.BreakevenForB(2))
	assert.Equal(t, 0, State{}.BreakevenForA(2))

	st = State{CostLongB: 110, CountLongB: 2} // avg 55
	assert.Equal(t, 42, st.BreakevenForA(2))
}

func TestLedger_Remove(t *testing.T) {
	l := New(zap.NewNop())
	l.ApplyFill("m1", true, 50, 5)

	l.Remove("m1")

	assert.Equal(t, State{}, l.Snapshot("m1"))
}
