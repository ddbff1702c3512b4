// Package geom holds the planar geometry shared by the grid, the mapper and
// the sensors.
package geom

import (
	"fmt"
	"math"
)

// Point is a 2D coordinate in grid units. Points are values and are copied
// freely.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NewPoint returns the point (x, y).
func NewPoint(x, y float64) Point {
	return Point{X: x, Y: y}
}

// DistanceTo returns the Euclidean distance from p to other.
func (p Point) DistanceTo(other Point) float64 {
	dx := other.X - p.X
	dy := other.Y - p.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// AngleTo returns the bearing from p to other in radians, in (-π, π].
func (p Point) AngleTo(other Point) float64 {
	return math.Atan2(other.Y-p.Y, other.X-p.X)
}

// Equal reports whether both coordinates match exactly. There is no epsilon:
// two points computed along different float paths may compare unequal.
func (p Point) Equal(other Point) bool {
	return p.X == other.X && p.Y == other.Y
}

// Cell truncates both coordinates toward zero, giving the grid column and row
// the point falls in.
func (p Point) Cell() (col, row int) {
	return int(p.X), int(p.Y)
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}
