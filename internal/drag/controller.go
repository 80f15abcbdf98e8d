// Package drag turns pointer and keyboard gestures into exactly one terminal
// ordering intent per gesture.
//
// While dragging, every change of the target placement is written to the
// board as a preview so the UI shows the pending drop. Previews are never
// committed. The controller remembers the pre-drag placement of each entity a
// preview moved and puts exactly those back on drop and cancel, so the engine
// sees the pre-drag state when it applies the terminal intent. Anything else
// written to the board during the gesture, such as a rollback of an earlier
// commit, is left alone.
package drag

import (
	"errors"
	"fmt"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/engine"
	"github.com/h0rv/kanban/internal/order"
	"github.com/h0rv/kanban/internal/store"
)

// ErrGestureActive indicates a gesture is already in progress.
var ErrGestureActive = errors.New("gesture already in progress")

// State is the controller's state.
type State int

const (
	Idle State = iota
	Dragging
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Kind is what is being dragged.
type Kind int

const (
	KindCard Kind = iota
	KindList
)

// Board is the state a drag previews into. *store.Store implements it.
type Board interface {
	BoardID() string
	Lists() []domain.List
	Cards(listID string) []domain.Card
	CardPlacement(id string) (store.Placement, error)
	ListPlacement(id string) (store.Placement, error)
	PlaceCard(id, listID string, position float64) error
	PlaceList(id string, position float64) error
}

// Gate defers refetches while a drag is active. *engine.Engine implements it.
type Gate interface {
	Hold()
	Release() bool
}

const (
	// DefaultThreshold is the pointer travel, in cells, that turns a press into a drag.
	DefaultThreshold = 2
	// DefaultMaxDistance is how far outside a container a drop still counts.
	DefaultMaxDistance = 3.0
)

// Controller runs the drag state machine for one board view.
type Controller struct {
	board       Board
	gate        Gate
	threshold   int
	maxDistance float64

	state    State
	kind     Kind
	itemID   string
	armed    bool // Pressed but not yet past the threshold
	keyboard bool
	origin   Point

	moved  map[entity]change // What the current preview wrote
	start  Target            // Placement before the gesture
	target Target
}

type entity struct {
	kind Kind
	id   string
}

// change is one preview write: where the entity was before the gesture and
// where the preview put it.
type change struct {
	before, wrote store.Placement
}

// Option configures a Controller.
type Option func(*Controller)

// WithThreshold sets the drag threshold in cells.
func WithThreshold(cells int) Option {
	return func(c *Controller) { c.threshold = cells }
}

// WithMaxDistance sets how far outside a container a pointer may be.
func WithMaxDistance(cells float64) Option {
	return func(c *Controller) { c.maxDistance = cells }
}

// New creates a controller previewing into board. gate may be nil.
func New(board Board, gate Gate, opts ...Option) *Controller {
	c := &Controller{
		board:       board,
		gate:        gate,
		threshold:   DefaultThreshold,
		maxDistance: DefaultMaxDistance,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Active reports whether a gesture is armed or dragging.
func (c *Controller) Active() bool { return c.armed || c.state == Dragging }

// Item returns what is being dragged.
func (c *Controller) Item() (Kind, string) { return c.kind, c.itemID }

// Target returns the current preview placement.
func (c *Controller) Target() Target { return c.target }

// Keyboard reports whether the current drag was started from the keyboard.
func (c *Controller) Keyboard() bool { return c.keyboard }

// Press arms a pointer gesture on an item. Nothing changes until the pointer
// travels past the threshold.
func (c *Controller) Press(kind Kind, itemID string, p Point) error {
	if c.Active() {
		return ErrGestureActive
	}
	c.kind = kind
	c.itemID = itemID
	c.origin = p
	c.armed = true
	c.keyboard = false
	c.state = Idle
	return nil
}

// Move feeds a pointer movement. It reports whether the preview changed.
func (c *Controller) Move(p Point, layout Layout) (bool, error) {
	if c.armed {
		if abs(p.X-c.origin.X)+abs(p.Y-c.origin.Y) < c.threshold {
			return false, nil
		}
		c.armed = false
		if err := c.begin(); err != nil {
			return false, err
		}
	}
	if c.state != Dragging {
		return false, nil
	}

	t, ok := Detect(layout, p, c.itemID, c.maxDistance)
	if !ok || t == c.target {
		return false, nil
	}
	return true, c.preview(t)
}

// Release ends a pointer gesture at p. A press that never passed the
// threshold is a click and returns no intent. Releasing outside every
// container cancels the drag.
func (c *Controller) Release(p Point, layout Layout) (engine.Intent, error) {
	if c.armed {
		c.armed = false
		return nil, nil
	}
	if c.state != Dragging {
		return nil, nil
	}
	t, ok := Detect(layout, p, c.itemID, c.maxDistance)
	if !ok {
		c.Cancel()
		return nil, nil
	}
	if t != c.target {
		if err := c.preview(t); err != nil {
			c.Cancel()
			return nil, err
		}
	}
	return c.Drop()
}

// BeginKeyboard starts a drag on an item without any pointer.
func (c *Controller) BeginKeyboard(kind Kind, itemID string) error {
	if c.Active() {
		return ErrGestureActive
	}
	c.kind = kind
	c.itemID = itemID
	c.keyboard = true
	return c.begin()
}

// Step moves the preview by whole containers (dx) and indices (dy).
// For lists both deltas move the list sideways.
func (c *Controller) Step(dx, dy int) (bool, error) {
	if c.state != Dragging {
		return false, nil
	}
	t := c.target

	if c.kind == KindList {
		n := len(c.board.Lists()) - 1
		t.Index = clamp(t.Index+dx+dy, 0, n)
		if t == c.target {
			return false, nil
		}
		return true, c.preview(t)
	}

	lists := c.board.Lists()
	li := order.IndexOf(lists, t.ContainerID)
	if li < 0 {
		return false, fmt.Errorf("%w: %s", store.ErrListNotFound, t.ContainerID)
	}
	if dx != 0 {
		li = clamp(li+dx, 0, len(lists)-1)
		t.ContainerID = lists[li].ID
	}
	siblings := order.Without(c.board.Cards(t.ContainerID), c.itemID)
	t.Index = clamp(t.Index+dy, 0, len(siblings))
	if t == c.target {
		return false, nil
	}
	return true, c.preview(t)
}

// Drop ends the drag at the current preview. It restores the pre-drag state
// and returns the intent the engine should apply, or nil when the item ends
// where it started.
func (c *Controller) Drop() (engine.Intent, error) {
	if c.state != Dragging {
		return nil, nil
	}
	target, start := c.target, c.start
	kind, id := c.kind, c.itemID
	c.finish(Idle)

	if target == start {
		return nil, nil
	}
	if kind == KindList {
		return engine.ReorderListIntent{ListID: id, Index: target.Index}, nil
	}
	return engine.MoveCardIntent{CardID: id, TargetListID: target.ContainerID, Index: target.Index}, nil
}

// Cancel abandons the gesture and restores the pre-drag state exactly.
func (c *Controller) Cancel() {
	if c.armed {
		c.armed = false
		return
	}
	if c.state != Dragging {
		return
	}
	c.finish(Cancelled)
}

// Reset returns a cancelled controller to Idle.
func (c *Controller) Reset() {
	if c.state == Cancelled {
		c.state = Idle
	}
}

func (c *Controller) begin() error {
	start, err := c.placement()
	if err != nil {
		c.itemID = ""
		return err
	}
	if c.gate != nil {
		c.gate.Hold()
	}
	c.moved = make(map[entity]change)
	c.start = start
	c.target = start
	c.state = Dragging
	return nil
}

func (c *Controller) finish(next State) {
	c.undo()
	c.moved = nil
	c.state = next
	c.itemID = ""
	c.keyboard = false
	if c.gate != nil {
		c.gate.Release()
	}
}

// placement returns where the dragged item currently sits.
func (c *Controller) placement() (Target, error) {
	if c.kind == KindList {
		lists := c.board.Lists()
		i := order.IndexOf(lists, c.itemID)
		if i < 0 {
			return Target{}, fmt.Errorf("%w: %s", store.ErrListNotFound, c.itemID)
		}
		return Target{ContainerID: c.board.BoardID(), Index: i}, nil
	}
	p, err := c.board.CardPlacement(c.itemID)
	if err != nil {
		return Target{}, err
	}
	i := order.IndexOf(c.board.Cards(p.Container), c.itemID)
	return Target{ContainerID: p.Container, Index: i}, nil
}

// preview undoes the previous preview and places the item at t, so previews
// never accumulate.
func (c *Controller) preview(t Target) error {
	c.undo()

	if c.kind == KindList {
		t.ContainerID = c.board.BoardID()
		plan := order.Plan(c.board.Lists(), c.itemID, t.Index)
		if err := c.applyLists(plan); err != nil {
			return err
		}
		c.target = Target{ContainerID: t.ContainerID, Index: plan.Index}
		return nil
	}

	plan := order.Plan(c.board.Cards(t.ContainerID), c.itemID, t.Index)
	if len(plan.Rebalanced) == 0 {
		if err := c.place(KindCard, c.itemID, t.ContainerID, plan.Position); err != nil {
			return err
		}
	}
	for _, a := range plan.Rebalanced {
		if err := c.place(KindCard, a.ID, t.ContainerID, a.Position); err != nil {
			return err
		}
	}
	c.target = Target{ContainerID: t.ContainerID, Index: plan.Index}
	return nil
}

func (c *Controller) applyLists(plan order.Placement) error {
	boardID := c.board.BoardID()
	if len(plan.Rebalanced) == 0 {
		return c.place(KindList, plan.ID, boardID, plan.Position)
	}
	for _, a := range plan.Rebalanced {
		if err := c.place(KindList, a.ID, boardID, a.Position); err != nil {
			return err
		}
	}
	return nil
}

// place writes one preview placement and remembers where the entity was.
func (c *Controller) place(kind Kind, id, container string, position float64) error {
	key := entity{kind, id}
	ch, seen := c.moved[key]
	if !seen {
		before, err := c.current(key)
		if err != nil {
			return err
		}
		ch.before = before
	}
	if kind == KindList {
		container = ch.before.Container
	}

	var err error
	if kind == KindList {
		err = c.board.PlaceList(id, position)
	} else {
		err = c.board.PlaceCard(id, container, position)
	}
	if err != nil {
		return err
	}
	ch.wrote = store.Placement{Container: container, Position: position}
	c.moved[key] = ch
	return nil
}

// undo puts back every entity the preview moved. An entity that was removed
// or placed elsewhere since the preview wrote it belongs to someone else now
// and is skipped.
func (c *Controller) undo() {
	for key, ch := range c.moved {
		cur, err := c.current(key)
		if err != nil || cur != ch.wrote {
			continue
		}
		if key.kind == KindList {
			_ = c.board.PlaceList(key.id, ch.before.Position)
		} else {
			_ = c.board.PlaceCard(key.id, ch.before.Container, ch.before.Position)
		}
	}
	clear(c.moved)
}

func (c *Controller) current(key entity) (store.Placement, error) {
	if key.kind == KindList {
		return c.board.ListPlacement(key.id)
	}
	return c.board.CardPlacement(key.id)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
