package drag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/engine"
	"github.com/h0rv/kanban/internal/engine/mocks"
	"github.com/h0rv/kanban/internal/order"
	"github.com/h0rv/kanban/internal/store"
)

const (
	colWidth   = 20
	colHeight  = 30
	cardHeight = 3
)

// Test fixtures
func createTestStore() *store.Store {
	s := store.New()
	s.Load(domain.Board{
		ID:      "board_1",
		Version: 1,
		Lists: []domain.List{
			{
				ID: "todo", BoardID: "board_1", Title: "To Do", Position: 1000,
				Cards: []domain.Card{
					{ID: "A", Title: "A", Position: 1000},
					{ID: "B", Title: "B", Position: 2000},
				},
			},
			{
				ID: "done", BoardID: "board_1", Title: "Done", Position: 2000, RequiresApproval: true,
				Cards: []domain.Card{{ID: "X", Title: "X", Position: 1000, Approved: true}},
			},
			{ID: "later", BoardID: "board_1", Title: "Later", Position: 3000},
		},
	})
	return s
}

// cardLayout renders lists as side-by-side columns with stacked cards.
func cardLayout(s *store.Store) Layout {
	layout := Layout{Axis: Vertical}
	for i, l := range s.Lists() {
		c := Container{ID: l.ID, Rect: Rect{X: i * colWidth, Y: 0, W: colWidth - 2, H: colHeight}}
		for j, card := range s.Cards(l.ID) {
			c.Items = append(c.Items, Item{ID: card.ID, Rect: Rect{X: i*colWidth + 1, Y: 2 + j*cardHeight, W: colWidth - 4, H: cardHeight}})
		}
		layout.Containers = append(layout.Containers, c)
	}
	return layout
}

// listLayout renders the board as one horizontal container of columns.
func listLayout(s *store.Store) Layout {
	lists := s.Lists()
	c := Container{ID: s.BoardID(), Rect: Rect{X: 0, Y: 0, W: len(lists) * colWidth, H: colHeight}}
	for i, l := range lists {
		c.Items = append(c.Items, Item{ID: l.ID, Rect: Rect{X: i * colWidth, Y: 0, W: colWidth - 2, H: colHeight}})
	}
	return Layout{Axis: Horizontal, Containers: []Container{c}}
}

func mustBoard(t *testing.T, s *store.Store) domain.Board {
	t.Helper()
	b, err := s.Board()
	require.NoError(t, err)
	return b
}

type countingGate struct {
	holds, releases int
}

func (g *countingGate) Hold()         { g.holds++ }
func (g *countingGate) Release() bool { g.releases++; return false }

func TestPressWithoutMovementIsAClick(t *testing.T) {
	s := createTestStore()
	before := mustBoard(t, s)
	gate := &countingGate{}
	c := New(s, gate)

	require.NoError(t, c.Press(KindCard, "A", Point{9, 3}))
	assert.True(t, c.Active())

	changed, err := c.Move(Point{10, 3}, cardLayout(s))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, Idle, c.State())

	intent, err := c.Release(Point{10, 3}, cardLayout(s))
	require.NoError(t, err)
	assert.Nil(t, intent)
	assert.False(t, c.Active())
	assert.Equal(t, before, mustBoard(t, s))
	assert.Zero(t, gate.holds)
}

func TestPointerDragAcrossLists(t *testing.T) {
	s := createTestStore()
	before := mustBoard(t, s)
	gate := &countingGate{}
	c := New(s, gate)

	require.NoError(t, c.Press(KindCard, "A", Point{9, 3}))

	changed, err := c.Move(Point{29, 1}, cardLayout(s))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, Dragging, c.State())
	assert.Equal(t, Target{ContainerID: "done", Index: 0}, c.Target())

	// Preview is visible in the store.
	assert.Equal(t, []string{"A", "X"}, order.IDs(s.Cards("done")))
	assert.Equal(t, []string{"B"}, order.IDs(s.Cards("todo")))

	intent, err := c.Release(Point{29, 1}, cardLayout(s))
	require.NoError(t, err)
	assert.Equal(t, engine.MoveCardIntent{CardID: "A", TargetListID: "done", Index: 0}, intent)

	// Drop restores the pre-drag state for the engine to apply on.
	assert.Equal(t, before, mustBoard(t, s))
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 1, gate.holds)
	assert.Equal(t, 1, gate.releases)
}

func TestPreviewsDoNotAccumulate(t *testing.T) {
	s := createTestStore()
	c := New(s, nil)

	require.NoError(t, c.Press(KindCard, "B", Point{9, 6}))
	for _, p := range []Point{{29, 1}, {49, 1}, {29, 20}, {9, 1}} {
		_, err := c.Move(p, cardLayout(s))
		require.NoError(t, err)
	}

	assert.Equal(t, Target{ContainerID: "todo", Index: 0}, c.Target())
	assert.Equal(t, []string{"B", "A"}, order.IDs(s.Cards("todo")))
	assert.Equal(t, []string{"X"}, order.IDs(s.Cards("done")))
	assert.Empty(t, s.Cards("later"))
}

func TestCancelRestoresPreDragSnapshot(t *testing.T) {
	s := createTestStore()
	before := mustBoard(t, s)
	gate := &countingGate{}
	c := New(s, gate)

	require.NoError(t, c.Press(KindCard, "A", Point{9, 3}))
	_, err := c.Move(Point{29, 1}, cardLayout(s))
	require.NoError(t, err)
	_, err = c.Move(Point{49, 1}, cardLayout(s))
	require.NoError(t, err)
	assert.NotEqual(t, before, mustBoard(t, s))

	c.Cancel()
	assert.Equal(t, Cancelled, c.State())
	assert.Equal(t, before, mustBoard(t, s))
	assert.Equal(t, 1, gate.releases)

	c.Reset()
	assert.Equal(t, Idle, c.State())
}

func TestReleaseOutsideEveryContainerCancels(t *testing.T) {
	s := createTestStore()
	before := mustBoard(t, s)
	c := New(s, nil)

	require.NoError(t, c.Press(KindCard, "A", Point{9, 3}))
	_, err := c.Move(Point{29, 1}, cardLayout(s))
	require.NoError(t, err)

	intent, err := c.Release(Point{200, 200}, cardLayout(s))
	require.NoError(t, err)
	assert.Nil(t, intent)
	assert.Equal(t, Cancelled, c.State())
	assert.Equal(t, before, mustBoard(t, s))
}

func TestDropWhereItStartedIsNoop(t *testing.T) {
	s := createTestStore()
	c := New(s, nil)

	require.NoError(t, c.Press(KindCard, "A", Point{9, 3}))
	_, err := c.Move(Point{29, 1}, cardLayout(s))
	require.NoError(t, err)
	_, err = c.Move(Point{9, 1}, cardLayout(s))
	require.NoError(t, err)

	intent, err := c.Drop()
	require.NoError(t, err)
	assert.Nil(t, intent)
}

func TestOneGestureAtATime(t *testing.T) {
	s := createTestStore()
	c := New(s, nil)

	require.NoError(t, c.BeginKeyboard(KindCard, "A"))
	assert.ErrorIs(t, c.Press(KindCard, "B", Point{}), ErrGestureActive)
	assert.ErrorIs(t, c.BeginKeyboard(KindCard, "B"), ErrGestureActive)
}

func TestBeginUnknownItem(t *testing.T) {
	s := createTestStore()
	c := New(s, nil)

	assert.ErrorIs(t, c.BeginKeyboard(KindCard, "nope"), store.ErrCardNotFound)
	assert.ErrorIs(t, c.BeginKeyboard(KindList, "nope"), store.ErrListNotFound)
	assert.Equal(t, Idle, c.State())
}

func TestKeyboardCardMove(t *testing.T) {
	s := createTestStore()
	c := New(s, nil)

	require.NoError(t, c.BeginKeyboard(KindCard, "A"))
	assert.Equal(t, Dragging, c.State())
	assert.True(t, c.Keyboard())
	assert.Equal(t, Target{ContainerID: "todo", Index: 0}, c.Target())

	changed, err := c.Step(1, 0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, Target{ContainerID: "done", Index: 0}, c.Target())

	_, err = c.Step(0, 5)
	require.NoError(t, err)
	assert.Equal(t, Target{ContainerID: "done", Index: 1}, c.Target())
	assert.Equal(t, []string{"X", "A"}, order.IDs(s.Cards("done")))

	changed, err = c.Step(0, 1)
	require.NoError(t, err)
	assert.False(t, changed, "already at the end")

	intent, err := c.Drop()
	require.NoError(t, err)
	assert.Equal(t, engine.MoveCardIntent{CardID: "A", TargetListID: "done", Index: 1}, intent)
}

func TestKeyboardListReorder(t *testing.T) {
	s := createTestStore()
	c := New(s, nil)

	require.NoError(t, c.BeginKeyboard(KindList, "todo"))
	_, err := c.Step(1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"done", "todo", "later"}, order.IDs(s.Lists()))

	_, err = c.Step(10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"done", "later", "todo"}, order.IDs(s.Lists()))

	intent, err := c.Drop()
	require.NoError(t, err)
	assert.Equal(t, engine.ReorderListIntent{ListID: "todo", Index: 2}, intent)
	assert.Equal(t, []string{"todo", "done", "later"}, order.IDs(s.Lists()))
}

func TestPointerListReorder(t *testing.T) {
	s := createTestStore()
	c := New(s, nil)

	require.NoError(t, c.Press(KindList, "later", Point{49, 0}))
	_, err := c.Move(Point{5, 10}, listLayout(s))
	require.NoError(t, err)
	assert.Equal(t, []string{"later", "todo", "done"}, order.IDs(s.Lists()))

	intent, err := c.Release(Point{5, 10}, listLayout(s))
	require.NoError(t, err)
	assert.Equal(t, engine.ReorderListIntent{ListID: "later", Index: 0}, intent)
}

// TestDropThenPolicyRejection runs a full gesture through the engine and
// checks the board ends where the drag started.
func TestDropThenPolicyRejection(t *testing.T) {
	s := createTestStore()
	before := mustBoard(t, s)
	p := &mocks.Persistence{}
	eng := engine.New(s, p)
	c := New(s, eng)

	require.NoError(t, c.Press(KindCard, "B", Point{9, 6}))
	_, err := c.Move(Point{29, 20}, cardLayout(s))
	require.NoError(t, err)
	intent, err := c.Release(Point{29, 20}, cardLayout(s))
	require.NoError(t, err)
	require.Equal(t, engine.MoveCardIntent{CardID: "B", TargetListID: "done", Index: 1}, intent)

	ref, err := eng.Apply(intent)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "B"}, order.IDs(s.Cards("done")))

	p.On("MoveCard", mock.Anything, "B", "done", 2000.0).Return(nil, domain.Reject("requires approval")).Once()
	out := eng.Commit(context.Background(), ref)
	assert.Equal(t, domain.KindPolicy, out.Kind)
	assert.Equal(t, before, mustBoard(t, s))
	p.AssertExpectations(t)
}

// TestRollbackDuringDragSurvivesCancel rejects another card's commit while a
// drag is running; neither the next preview nor the cancel may undo the rollback.
func TestRollbackDuringDragSurvivesCancel(t *testing.T) {
	s := createTestStore()
	before := mustBoard(t, s)
	p := &mocks.Persistence{}
	eng := engine.New(s, p)
	c := New(s, eng)

	ref, err := eng.Apply(engine.MoveCardIntent{CardID: "A", TargetListID: "done", Index: 0})
	require.NoError(t, err)
	require.NoError(t, c.BeginKeyboard(KindCard, "B"))

	p.On("MoveCard", mock.Anything, "A", "done", 0.0).Return(nil, domain.Reject("requires approval")).Once()
	out := eng.Commit(context.Background(), ref)
	require.Equal(t, domain.KindPolicy, out.Kind)
	home := store.Placement{Container: "todo", Position: 1000}

	changed, err := c.Step(1, 0)
	require.NoError(t, err)
	require.True(t, changed)
	a, err := s.CardPlacement("A")
	require.NoError(t, err)
	assert.Equal(t, home, a)

	c.Cancel()
	a, err = s.CardPlacement("A")
	require.NoError(t, err)
	assert.Equal(t, home, a)
	assert.Equal(t, before, mustBoard(t, s))
	p.AssertExpectations(t)
}

func TestCardCreatedDuringDragSurvivesCancel(t *testing.T) {
	s := createTestStore()
	c := New(s, nil)

	require.NoError(t, c.BeginKeyboard(KindCard, "A"))
	_, err := c.Step(2, 0)
	require.NoError(t, err)
	require.NoError(t, s.UpsertCard(domain.Card{ID: "N", ListID: "later", Title: "N", Position: 5000}))

	c.Cancel()
	assert.Equal(t, []string{"A", "B"}, order.IDs(s.Cards("todo")))
	assert.Equal(t, []string{"N"}, order.IDs(s.Cards("later")))
}

func TestDetect(t *testing.T) {
	layout := Layout{
		Axis: Vertical,
		Containers: []Container{
			{ID: "left", Rect: Rect{X: 0, Y: 0, W: 10, H: 20}, Items: []Item{
				{ID: "a", Rect: Rect{X: 0, Y: 0, W: 10, H: 4}},
				{ID: "b", Rect: Rect{X: 0, Y: 4, W: 10, H: 4}},
				{ID: "c", Rect: Rect{X: 0, Y: 8, W: 10, H: 4}},
			}},
			{ID: "right", Rect: Rect{X: 20, Y: 0, W: 10, H: 20}},
		},
	}

	t.Run("index counts centers above the pointer", func(t *testing.T) {
		got, ok := Detect(layout, Point{5, 7}, "", 0)
		require.True(t, ok)
		assert.Equal(t, Target{ContainerID: "left", Index: 2}, got)
	})

	t.Run("dragged item is not counted", func(t *testing.T) {
		got, ok := Detect(layout, Point{5, 7}, "a", 0)
		require.True(t, ok)
		assert.Equal(t, Target{ContainerID: "left", Index: 1}, got)
	})

	t.Run("gap between containers picks the closest", func(t *testing.T) {
		got, ok := Detect(layout, Point{17, 5}, "", 5)
		require.True(t, ok)
		assert.Equal(t, "right", got.ContainerID)
	})

	t.Run("too far from everything", func(t *testing.T) {
		_, ok := Detect(layout, Point{15, 5}, "", 2)
		assert.False(t, ok)
	})

	t.Run("horizontal axis", func(t *testing.T) {
		row := Layout{Axis: Horizontal, Containers: []Container{{
			ID:   "board",
			Rect: Rect{X: 0, Y: 0, W: 30, H: 5},
			Items: []Item{
				{ID: "l1", Rect: Rect{X: 0, Y: 0, W: 10, H: 5}},
				{ID: "l2", Rect: Rect{X: 10, Y: 0, W: 10, H: 5}},
			},
		}}}
		got, ok := Detect(row, Point{12, 2}, "", 0)
		require.True(t, ok)
		assert.Equal(t, Target{ContainerID: "board", Index: 1}, got)
	})
}

func TestRect(t *testing.T) {
	r := Rect{X: 2, Y: 2, W: 4, H: 4}
	assert.True(t, r.Contains(Point{2, 2}))
	assert.False(t, r.Contains(Point{6, 2}))
	assert.Equal(t, Point{4, 4}, r.Center())
	assert.Zero(t, r.distance(Point{3, 3}))
	assert.Equal(t, 3.0, r.distance(Point{8, 3}))
}
