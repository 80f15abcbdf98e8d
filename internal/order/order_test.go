package order

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	id  string
	pos float64
}

func (i item) ElementID() string        { return i.id }
func (i item) ElementPosition() float64 { return i.pos }

func items(pairs ...any) []item {
	out := make([]item, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, item{id: pairs[i].(string), pos: pairs[i+1].(float64)})
	}
	return out
}

// apply places p into seq and returns the re-sorted container.
func apply(seq []item, p Placement) []item {
	if len(p.Rebalanced) > 0 {
		out := make([]item, len(p.Rebalanced))
		for i, a := range p.Rebalanced {
			out[i] = item{id: a.ID, pos: a.Position}
		}
		return out
	}
	out := append(Without(seq, p.ID), item{id: p.ID, pos: p.Position})
	Sort(out)
	return out
}

func TestSortTieBreaksByID(t *testing.T) {
	seq := items("b", 1000.0, "a", 1000.0, "c", 500.0)
	Sort(seq)

	assert.Equal(t, []string{"c", "a", "b"}, IDs(seq))
	assert.True(t, Ordered(seq))
	assert.False(t, Ordered(items("a", 1.0, "a", 1.0)))
}

func TestPositionAt(t *testing.T) {
	t.Run("empty container gets base position", func(t *testing.T) {
		pos, ok := PositionAt([]item{}, 0)
		require.True(t, ok)
		assert.Equal(t, BasePosition, pos)
	})

	t.Run("head insert subtracts gap", func(t *testing.T) {
		pos, ok := PositionAt(items("x", 1000.0), 0)
		require.True(t, ok)
		assert.Equal(t, 0.0, pos)
	})

	t.Run("tail insert adds gap", func(t *testing.T) {
		pos, ok := PositionAt(items("a", 1000.0, "b", 2000.0), 2)
		require.True(t, ok)
		assert.Equal(t, 3000.0, pos)
	})

	t.Run("index beyond bounds is clamped", func(t *testing.T) {
		pos, ok := PositionAt(items("a", 1000.0), 7)
		require.True(t, ok)
		assert.Equal(t, 2000.0, pos)
	})

	t.Run("middle insert takes the midpoint", func(t *testing.T) {
		pos, ok := PositionAt(items("a", 1000.0, "b", 2000.0), 1)
		require.True(t, ok)
		assert.Equal(t, 1500.0, pos)
	})

	t.Run("exhausted gap", func(t *testing.T) {
		_, ok := PositionAt(items("a", 1000.0000001, "b", 1000.0000002), 1)
		assert.False(t, ok)
	})

	t.Run("equal neighbours", func(t *testing.T) {
		_, ok := PositionAt(items("a", 5.0, "b", 5.0), 1)
		assert.False(t, ok)
	})
}

func TestPlanInsertBetween(t *testing.T) {
	// [A 1000, B 2000], insert C between A and B.
	seq := items("A", 1000.0, "B", 2000.0)

	p := Plan(seq, "C", 1)
	assert.Empty(t, p.Rebalanced)
	assert.Equal(t, 1500.0, p.Position)

	seq = apply(seq, p)
	assert.Equal(t, []string{"A", "C", "B"}, IDs(seq))
}

func TestPlanHeadOfOtherContainer(t *testing.T) {
	// Done has [X 1000]; A arrives at index 0.
	done := items("X", 1000.0)

	p := Plan(done, "A", 0)
	assert.Equal(t, 0.0, p.Position)
	assert.Equal(t, []string{"A", "X"}, IDs(apply(done, p)))
}

func TestPlanExcludesMovingElement(t *testing.T) {
	seq := items("a", 1000.0, "b", 2000.0, "c", 3000.0)

	// Moving a to the end: neighbours are b and c, a is ignored.
	p := Plan(seq, "a", 2)
	assert.Equal(t, 4000.0, p.Position)
	assert.Equal(t, []string{"b", "c", "a"}, IDs(apply(seq, p)))
}

func TestPlanRebalancesExhaustedGap(t *testing.T) {
	seq := items("a", 1000.0000001, "b", 1000.0000002, "z", 5000.0)

	p := Plan(seq, "c", 1)
	require.NotEmpty(t, p.Rebalanced)
	assert.Equal(t, []Assignment{
		{ID: "a", Position: 1000},
		{ID: "c", Position: 2000},
		{ID: "b", Position: 3000},
		{ID: "z", Position: 4000},
	}, p.Rebalanced)
	assert.Equal(t, 2000.0, p.Position)

	after := apply(seq, p)
	assert.True(t, Ordered(after))
	assert.Equal(t, []string{"a", "c", "b", "z"}, IDs(after))
}

func TestRepeatedBoundaryInsertsStayOrdered(t *testing.T) {
	seq := items("first", 1000.0, "last", 2000.0)
	want := IDs(seq)
	rebalances := 0

	for i := range 200 {
		id := fmt.Sprintf("n%03d", i)
		p := Plan(seq, id, 1)
		if len(p.Rebalanced) > 0 {
			rebalances++
			for j, a := range p.Rebalanced {
				assert.Equal(t, float64(j+1)*Gap, a.Position)
			}
		}
		seq = apply(seq, p)
		want = Insert(want, id, 1)

		require.True(t, Ordered(seq), "insert %d broke ordering", i)
		require.Equal(t, want, IDs(seq), "insert %d changed visual order", i)
	}

	assert.Positive(t, rebalances)
}

func TestSpread(t *testing.T) {
	assert.Equal(t, []Assignment{
		{ID: "x", Position: 1000},
		{ID: "y", Position: 2000},
	}, Spread([]string{"x", "y"}))
	assert.Empty(t, Spread(nil))
}

func TestInsert(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, Insert([]string{"a", "b", "c"}, "a", 1))
	assert.Equal(t, []string{"a", "b", "n"}, Insert([]string{"a", "b"}, "n", 99))
	assert.Equal(t, []string{"n", "a"}, Insert([]string{"a"}, "n", -3))
}

func TestSameSet(t *testing.T) {
	assert.True(t, SameSet([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, SameSet([]string{"a", "b"}, []string{"a", "c"}))
	assert.False(t, SameSet([]string{"a", "a"}, []string{"a", "b"}))
	assert.False(t, SameSet([]string{"a"}, []string{"a", "b"}))
	assert.True(t, SameSet(nil, []string{}))
}
