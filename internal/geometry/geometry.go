// Package geometry holds the planar math used by route tracking: distances,
// lines, circle intersections, angles and the section corridor.
// All values are meters in a locally planar frame (X east, Y north).
package geometry

import (
	"errors"
	"math"
)

var (
	// ErrVerticalLine is returned when a slope is requested for two points sharing X.
	ErrVerticalLine = errors.New("vertical line has no slope")
	// ErrNoIntersection is returned when a circle and a line do not meet.
	ErrNoIntersection = errors.New("circle and line do not intersect")
	// ErrDegenerateSection is returned for a section whose endpoints coincide.
	ErrDegenerateSection = errors.New("section endpoints coincide")
)

// Point is a planar coordinate in meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Add returns p translated by v.
func (p Point) Add(v Point) Point { return Point{X: p.X + v.X, Y: p.Y + v.Y} }

// Dot is the dot product of p and q treated as vectors.
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Cross is the z component of p × q.
func (p Point) Cross(q Point) float64 { return p.X*q.Y - p.Y*q.X }

// Norm is the vector length.
func (p Point) Norm() float64 { return math.Hypot(p.X, p.Y) }

// Distance is the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Line is y = Slope*x + Intercept.
type Line struct {
	Slope     float64
	Intercept float64
}

// LineThrough returns the line through a and b.
func LineThrough(a, b Point) (Line, error) {
	if a.X == b.X {
		return Line{}, ErrVerticalLine
	}
	slope := (a.Y - b.Y) / (a.X - b.X)
	return Line{Slope: slope, Intercept: a.Y - slope*a.X}, nil
}

// PerpendicularDistance is the distance from p to the line.
func PerpendicularDistance(p Point, l Line) float64 {
	// -m*x + 1*y - c = 0
	return math.Abs(-l.Slope*p.X+p.Y-l.Intercept) / math.Sqrt(l.Slope*l.Slope+1)
}

// CircleLineIntersections intersects the circle (center, radius) with the line of
// the given slope passing through `through`. The first point returned has the
// larger X. The quadratic is solved relative to center, so large absolute
// coordinates do not cancel out.
func CircleLineIntersections(center Point, radius, slope float64, through Point) (Point, Point, error) {
	rel := through.Sub(center)
	c := rel.Y - slope*rel.X
	a := 1 + slope*slope
	b := 2 * slope * c
	k := c*c - radius*radius

	disc := b*b - 4*a*k
	if disc < 0 || math.IsNaN(disc) || math.IsInf(disc, 0) {
		return Point{}, Point{}, ErrNoIntersection
	}
	root := math.Sqrt(disc)
	x1 := (-b + root) / (2 * a)
	x2 := (-b - root) / (2 * a)
	return Point{X: center.X + x1, Y: center.Y + slope*x1 + c},
		Point{X: center.X + x2, Y: center.Y + slope*x2 + c}, nil
}

// SignedAngle returns the clockwise angle in degrees, in [0, 360), that rotates
// v1 onto v2. A zero-length vector yields 0.
func SignedAngle(v1, v2 Point) float64 {
	n := v1.Norm() * v2.Norm()
	if n == 0 {
		return 0
	}
	cos := v1.Dot(v2) / n
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	deg := math.Acos(cos) * 180 / math.Pi
	if v1.Cross(v2) > 0 {
		// v2 lies counter-clockwise of v1
		deg = 360 - deg
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}
