// Package order implements gap-based positioning for ordered containers.
//
// A container is a sequence of identified, positioned elements: lists within a
// board, or cards within a list. Positions are sparse real numbers, so an
// element can be placed between two neighbours without renumbering anything
// else. When repeated insertions exhaust floating-point precision between two
// neighbours, the whole container is rebalanced to evenly spaced positions.
package order

import (
	"cmp"
	"slices"
)

const (
	// BasePosition is the position given to the first element of an empty container.
	BasePosition = 1000.0
	// Gap is the distance used for head and tail inserts and for rebalanced positions.
	Gap = 1000.0
	// MinGap is the smallest neighbour distance that can still be split.
	MinGap = 1e-6
)

// Element is anything that can be ordered within a container.
type Element interface {
	ElementID() string
	ElementPosition() float64
}

// Assignment is a position assigned to an element.
type Assignment struct {
	ID       string
	Position float64
}

// Placement is the outcome of planning an insertion.
type Placement struct {
	ID       string
	Index    int
	Position float64

	// Rebalanced is non-empty when the container had to be renumbered.
	// It holds every element of the container, the placed one included,
	// in final order.
	Rebalanced []Assignment
}

// Compare orders by position, then by ID so that no two elements compare equal.
func Compare[E Element](a, b E) int {
	if c := cmp.Compare(a.ElementPosition(), b.ElementPosition()); c != 0 {
		return c
	}
	return cmp.Compare(a.ElementID(), b.ElementID())
}

// Less reports whether a sorts before b.
func Less[E Element](a, b E) bool {
	return Compare(a, b) < 0
}

// Sort sorts seq in rendering order.
func Sort[E Element](seq []E) {
	slices.SortStableFunc(seq, Compare[E])
}

// Ordered reports whether seq is strictly ordered.
func Ordered[E Element](seq []E) bool {
	for i := 1; i < len(seq); i++ {
		if !Less(seq[i-1], seq[i]) {
			return false
		}
	}
	return true
}

// IDs returns the element IDs of seq in order.
func IDs[E Element](seq []E) []string {
	ids := make([]string, len(seq))
	for i, e := range seq {
		ids[i] = e.ElementID()
	}
	return ids
}

// Without returns seq minus the element with the given ID.
func Without[E Element](seq []E, id string) []E {
	out := make([]E, 0, len(seq))
	for _, e := range seq {
		if e.ElementID() != id {
			out = append(out, e)
		}
	}
	return out
}

// IndexOf returns the index of id in seq, or -1.
func IndexOf[E Element](seq []E, id string) int {
	return slices.IndexFunc(seq, func(e E) bool { return e.ElementID() == id })
}

// PositionAt computes the position for an element inserted at index of the
// sorted container seq. seq must not contain the element being placed.
// It returns false when the neighbours at index are too close to split.
func PositionAt[E Element](seq []E, index int) (float64, bool) {
	index = clamp(index, 0, len(seq))

	switch {
	case len(seq) == 0:
		return BasePosition, true
	case index == 0:
		first := seq[0].ElementPosition()
		pos := first - Gap
		return pos, pos < first
	case index == len(seq):
		last := seq[len(seq)-1].ElementPosition()
		pos := last + Gap
		return pos, pos > last
	}

	prev := seq[index-1].ElementPosition()
	next := seq[index].ElementPosition()
	if next-prev < MinGap {
		return 0, false
	}
	mid := prev + (next-prev)/2
	if mid <= prev || mid >= next {
		return 0, false
	}
	return mid, true
}

// Plan places the element id at index within seq.
// seq may still contain the element; it is excluded before planning.
// If the neighbours cannot be split, the whole container is rebalanced.
func Plan[E Element](seq []E, id string, index int) Placement {
	rest := Without(seq, id)
	Sort(rest)
	index = clamp(index, 0, len(rest))

	if pos, ok := PositionAt(rest, index); ok {
		return Placement{ID: id, Index: index, Position: pos}
	}

	ids := Insert(IDs(rest), id, index)
	spread := Spread(ids)
	return Placement{
		ID:         id,
		Index:      index,
		Position:   spread[index].Position,
		Rebalanced: spread,
	}
}

// Spread assigns evenly spaced positions to ids in the given order.
// Full-order reorders use it on both ends of the wire, so a client and the
// server always agree on the resulting positions.
func Spread(ids []string) []Assignment {
	out := make([]Assignment, len(ids))
	for i, id := range ids {
		out[i] = Assignment{ID: id, Position: float64(i+1) * Gap}
	}
	return out
}

// Insert returns ids with id removed and re-inserted at index.
func Insert(ids []string, id string, index int) []string {
	out := make([]string, 0, len(ids)+1)
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	index = clamp(index, 0, len(out))
	return slices.Insert(out, index, id)
}

// SameSet reports whether a and b hold the same IDs, ignoring order.
// Duplicates make the sets unequal.
func SameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		if seen[id] == 0 {
			return false
		}
		seen[id]--
	}
	return true
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
