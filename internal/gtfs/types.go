package gtfs

import (
	"sort"

	"route-tracker/internal/geo"
)

type Trip struct {
	TripID  string
	RouteID string
	ShapeID string
}

type ShapePoint struct {
	Lat          float64
	Lon          float64
	Sequence     int
	DistTraveled float64 // meters, if available; 0 if missing
}

// ShapePoints is the polyline of one GTFS shape.
type ShapePoints []ShapePoint

// Route orders the points by shape_pt_sequence and returns them as waypoints.
func (s ShapePoints) Route() []geo.Point {
	pts := append(ShapePoints(nil), s...)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Sequence < pts[j].Sequence })
	out := make([]geo.Point, len(pts))
	for i, p := range pts {
		out[i] = geo.Point{Latitude: p.Lat, Longitude: p.Lon}
	}
	return out
}
