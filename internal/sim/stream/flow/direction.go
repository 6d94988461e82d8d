package flow

import (
	"fmt"
	"strings"
)

// Direction is a horizontal compass direction, clockwise from north.
type Direction uint8

const (
	North Direction = iota
	East
	South
	West
)

// Horizontal lists the four directions in clockwise order.
var Horizontal = [4]Direction{North, East, South, West}

var directionNames = [...]string{"NORTH", "EAST", "SOUTH", "WEST"}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

func ParseDirection(s string) (Direction, error) {
	for i, n := range directionNames {
		if strings.EqualFold(n, s) {
			return Direction(i), nil
		}
	}
	return North, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) Clockwise() Direction { return (d + 1) % 4 }
func (d Direction) Opposite() Direction  { return (d + 2) % 4 }

// AxisX reports whether d points along the X axis (east or west).
func (d Direction) AxisX() bool { return d == East || d == West }

// MirrorX flips east and west; north and south are unchanged.
func (d Direction) MirrorX() Direction {
	if d.AxisX() {
		return d.Opposite()
	}
	return d
}
