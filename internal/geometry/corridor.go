package geometry

import "math"

// Corridor is the tolerance rectangle around a directed section. Left and right
// are relative to the direction of travel from the section start to its end.
type Corridor struct {
	FromLeft  Point `json:"from_left"`
	FromRight Point `json:"from_right"`
	ToLeft    Point `json:"to_left"`
	ToRight   Point `json:"to_right"`
}

// Length is the along-track extent of the corridor.
func (c Corridor) Length() float64 { return Distance(c.FromRight, c.ToRight) }

// Width is the cross-track extent of the corridor.
func (c Corridor) Width() float64 { return Distance(c.FromRight, c.FromLeft) }

// Ring returns the corners in drawing order, closed on the first corner.
func (c Corridor) Ring() []Point {
	return []Point{c.FromLeft, c.ToLeft, c.ToRight, c.FromRight, c.FromLeft}
}

// BuildCorridor intersects the perpendicular to the section at each endpoint with
// a circle of the given radius around that endpoint. Both intersections of a
// circle with a line through its center lie at center ± radius·n, with n the
// unit normal of the section, so no slope is ever formed and near-axis
// sections far from the origin keep full precision.
func BuildCorridor(from, to Point, radius float64) (Corridor, error) {
	if from == to {
		return Corridor{}, ErrDegenerateSection
	}
	if !(radius > 0) || math.IsInf(radius, 0) {
		return Corridor{}, ErrNoIntersection
	}
	dir := to.Sub(from)
	length := dir.Norm()
	if length == 0 || math.IsInf(length, 0) {
		return Corridor{}, ErrDegenerateSection
	}
	// left normal: counter-clockwise of the direction of travel
	off := Point{X: -dir.Y / length * radius, Y: dir.X / length * radius}

	return Corridor{
		FromLeft:  from.Add(off),
		FromRight: from.Sub(off),
		ToLeft:    to.Add(off),
		ToRight:   to.Sub(off),
	}, nil
}

// PointInCorridorRectangle reports whether p lies inside the corridor. The test
// projects p onto the corridor's length and width vectors (both anchored at the
// from-right corner) and requires the clockwise angle from the width vector to p
// to be within [0, 90] degrees.
func PointInCorridorRectangle(c Corridor, p Point) bool {
	origin := c.FromRight
	widthVec := c.FromLeft.Sub(origin)
	lengthVec := c.ToRight.Sub(origin)
	length := lengthVec.Norm()
	width := widthVec.Norm()
	if length == 0 || width == 0 {
		return false
	}

	v := p.Sub(origin)
	along := v.Dot(lengthVec) / length
	if along < 0 || along > length {
		return false
	}
	across := v.Dot(widthVec) / width
	if across < 0 || across > width {
		return false
	}
	angle := SignedAngle(widthVec, v)
	return angle >= 0 && angle <= 90
}
