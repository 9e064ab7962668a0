package tracker

import (
	"fmt"
	"strings"

	"route-tracker/internal/deviation"
	"route-tracker/internal/geo"
)

// ProjectionFunc picks the planar frame for a route, given its first waypoint.
type ProjectionFunc func(origin geo.Point) geo.Projector

// LocalProjection centres a true-scale transverse Mercator on the route start.
func LocalProjection(origin geo.Point) geo.Projector { return geo.LocalTM(origin) }

// FixedProjection uses the same projector for every route.
func FixedProjection(p geo.Projector) ProjectionFunc {
	return func(geo.Point) geo.Projector { return p }
}

// ParseProjection maps a configured projection name: "local" (or empty) for
// LocalProjection, "utmk" for the Korean national grid.
func ParseProjection(name string) (ProjectionFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "local":
		return LocalProjection, nil
	case "utmk", "utm-k", "epsg:5179":
		return FixedProjection(geo.UTMK()), nil
	default:
		return nil, fmt.Errorf("unknown projection %q", name)
	}
}

// Options configures a Tracker.
type Options struct {
	// AdvanceRadius is the distance to a section's far waypoint at which the
	// section counts as done. Inclusive.
	AdvanceRadius float64
	// StrongSignalRadius and WeakSignalRadius replace AdvanceRadius for fixes
	// carrying that signal class, when positive.
	StrongSignalRadius float64
	WeakSignalRadius   float64

	Policy    deviation.Kind
	Deviation deviation.Settings

	Projection ProjectionFunc
}

// DefaultOptions uses an 8 m advance radius and the corridor policy.
func DefaultOptions() Options {
	return Options{
		AdvanceRadius: 8,
		Policy:        deviation.KindCorridor,
		Deviation:     deviation.DefaultSettings(),
		Projection:    LocalProjection,
	}
}

func (o Options) validate() error {
	if !(o.AdvanceRadius > 0) {
		return fmt.Errorf("advance radius must be positive, got %v", o.AdvanceRadius)
	}
	if o.StrongSignalRadius < 0 || o.WeakSignalRadius < 0 {
		return fmt.Errorf("signal radii must not be negative")
	}
	if !(o.Deviation.CorridorRadius > 0) {
		return fmt.Errorf("corridor radius must be positive, got %v", o.Deviation.CorridorRadius)
	}
	if o.Deviation.CorridorMargin < 0 {
		return fmt.Errorf("corridor margin must not be negative, got %v", o.Deviation.CorridorMargin)
	}
	if o.Deviation.PerpendicularThreshold < 0 {
		return fmt.Errorf("perpendicular threshold must not be negative, got %v", o.Deviation.PerpendicularThreshold)
	}
	return nil
}

func (o Options) radiusFor(s Signal) float64 {
	switch {
	case s == SignalStrong && o.StrongSignalRadius > 0:
		return o.StrongSignalRadius
	case s == SignalWeak && o.WeakSignalRadius > 0:
		return o.WeakSignalRadius
	default:
		return o.AdvanceRadius
	}
}
