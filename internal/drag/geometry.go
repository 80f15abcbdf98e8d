package drag

import "math"

// Point is a pointer location in screen cells.
type Point struct {
	X, Y int
}

// Rect is an axis-aligned rectangle in screen cells.
type Rect struct {
	X, Y, W, H int
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// Center returns the middle of r.
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

func (r Rect) corners() [4]Point {
	return [4]Point{
		{r.X, r.Y},
		{r.X + r.W, r.Y},
		{r.X, r.Y + r.H},
		{r.X + r.W, r.Y + r.H},
	}
}

// distance returns how far p lies outside r, or 0 when inside.
func (r Rect) distance(p Point) float64 {
	dx := max(r.X-p.X, 0, p.X-(r.X+r.W-1))
	dy := max(r.Y-p.Y, 0, p.Y-(r.Y+r.H-1))
	return math.Hypot(float64(dx), float64(dy))
}

// Axis is the direction items are stacked in within a container.
type Axis int

const (
	Vertical Axis = iota
	Horizontal
)

// Item is a rendered element inside a container.
type Item struct {
	ID   string
	Rect Rect
}

// Container is a rendered drop zone: a list for cards, the board for lists.
type Container struct {
	ID    string
	Rect  Rect
	Items []Item // In rendering order
}

// Layout is what the renderer drew during the last frame.
type Layout struct {
	Axis       Axis
	Containers []Container
}

// Target is a container and an index within it, counted without the dragged item.
type Target struct {
	ContainerID string
	Index       int
}

// Detect finds the drop target under p using closest corners: the container
// whose four corners are nearest to p in sum wins, provided p is within
// maxDistance of it. The index is the number of items, excluding the dragged
// one, whose center lies before p along the layout axis.
func Detect(layout Layout, p Point, dragged string, maxDistance float64) (Target, bool) {
	best := -1
	bestScore := math.Inf(1)
	for i, c := range layout.Containers {
		if c.Rect.distance(p) > maxDistance {
			continue
		}
		var score float64
		for _, corner := range c.Rect.corners() {
			score += math.Hypot(float64(p.X-corner.X), float64(p.Y-corner.Y))
		}
		if score < bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Target{}, false
	}

	c := layout.Containers[best]
	index := 0
	for _, it := range c.Items {
		if it.ID == dragged {
			continue
		}
		center := it.Rect.Center()
		if layout.Axis == Vertical && center.Y < p.Y || layout.Axis == Horizontal && center.X < p.X {
			index++
		}
	}
	return Target{ContainerID: c.ID, Index: index}, true
}
