// Package grid provides the coordinate model of the shared board: positions,
// movement directions, clamped stepping, and start/target sampling.
package grid

import (
	"fmt"

	"github.com/cory-johannsen/harmony/internal/game/dice"
)

// Direction is the single axis along which a member may move the shared token.
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Directions lists every Direction in assignment order.
var Directions = []Direction{Up, Down, Left, Right}

// Valid reports whether d is one of the four known directions.
func (d Direction) Valid() bool {
	switch d {
	case Up, Down, Left, Right:
		return true
	}
	return false
}

// ParseDirection converts a wire string into a Direction.
//
// Postcondition: Returns a valid Direction or a non-nil error.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown direction %q", s)
	}
	return d, nil
}

// Position is an [x, y] coordinate. It encodes to JSON as a two-element array.
type Position [2]int

// X returns the column.
func (p Position) X() int { return p[0] }

// Y returns the row; y grows downward.
func (p Position) Y() int { return p[1] }

// InBounds reports whether p lies on a size×size grid.
func (p Position) InBounds(size int) bool {
	return p[0] >= 0 && p[0] < size && p[1] >= 0 && p[1] < size
}

// Step moves p one cell along d, clamped to [0, size-1] on both axes.
// An invalid direction or a move into the boundary returns p unchanged.
//
// Precondition: p.InBounds(size).
// Postcondition: The result is in bounds and differs from p in at most one axis by 1.
func (p Position) Step(d Direction, size int) Position {
	next := p
	switch d {
	case Up:
		next[1]--
	case Down:
		next[1]++
	case Left:
		next[0]--
	case Right:
		next[0]++
	}
	if !next.InBounds(size) {
		return p
	}
	return next
}

// Manhattan returns |Δx| + |Δy| between a and b.
func Manhattan(a, b Position) int {
	return abs(a[0]-b[0]) + abs(a[1]-b[1])
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// SamplePair draws a start and target position, resampling until they differ
// and are at least minDistance apart.
//
// Precondition: size >= 2; 1 <= minDistance <= 2*(size-1); src must be non-nil.
// Postcondition: start != target and Manhattan(start, target) >= minDistance.
func SamplePair(src dice.Source, size, minDistance int) (start, target Position) {
	if minDistance < 1 {
		minDistance = 1
	}
	for {
		start = Position{src.Intn(size), src.Intn(size)}
		target = Position{src.Intn(size), src.Intn(size)}
		if start != target && Manhattan(start, target) >= minDistance {
			return start, target
		}
	}
}
