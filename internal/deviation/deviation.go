// Package deviation decides whether a position has left the route corridor of
// the section currently being tracked.
package deviation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"route-tracker/internal/geometry"
)

// Section is the planar view of the section being tracked.
type Section struct {
	From geometry.Point
	To   geometry.Point
}

// Policy is a pure predicate over the current section, its corridor and a
// projected position.
type Policy interface {
	Deviated(s Section, c geometry.Corridor, pos geometry.Point) (bool, error)
	Kind() Kind
}

// Kind names a deviation policy.
type Kind string

const (
	KindCorridor      Kind = "corridor"
	KindPerpendicular Kind = "perpendicular"
)

// ParseKind accepts the policy names used in configuration.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindCorridor:
		return KindCorridor, nil
	case KindPerpendicular, "line":
		return KindPerpendicular, nil
	default:
		return "", fmt.Errorf("unknown deviation policy %q", s)
	}
}

// Settings carries the thresholds for both policies.
type Settings struct {
	PerpendicularThreshold float64 // meters
	CorridorRadius         float64 // meters, half-width of the corridor
	CorridorMargin         float64 // meters added to the radius around the section start
}

// DefaultSettings mirrors the reference deployment: 8 m line threshold,
// 8 m corridor half-width, 2 m margin.
func DefaultSettings() Settings {
	return Settings{
		PerpendicularThreshold: 8,
		CorridorRadius:         8,
		CorridorMargin:         2,
	}
}

// New returns the policy for kind.
func New(kind Kind, s Settings) (Policy, error) {
	switch kind {
	case KindCorridor, "":
		return Corridor{Radius: s.CorridorRadius, Margin: s.CorridorMargin}, nil
	case KindPerpendicular:
		return Perpendicular{Threshold: s.PerpendicularThreshold}, nil
	default:
		return nil, fmt.Errorf("unknown deviation policy %q", kind)
	}
}

// Perpendicular flags a position whose distance to the infinite line through
// the section exceeds Threshold. It does not bound along-track deviation.
type Perpendicular struct {
	Threshold float64
}

func (Perpendicular) Kind() Kind { return KindPerpendicular }

func (p Perpendicular) Deviated(s Section, _ geometry.Corridor, pos geometry.Point) (bool, error) {
	d, err := LineDistance(s, pos)
	if err != nil {
		return false, err
	}
	return d > p.Threshold, nil
}

// LineDistance is the perpendicular distance from pos to the line through the
// section, with vertical sections measured horizontally.
func LineDistance(s Section, pos geometry.Point) (float64, error) {
	if s.From == s.To {
		return 0, geometry.ErrDegenerateSection
	}
	line, err := geometry.LineThrough(s.From, s.To)
	if errors.Is(err, geometry.ErrVerticalLine) {
		return math.Abs(pos.X - s.From.X), nil
	}
	if err != nil {
		return 0, err
	}
	return geometry.PerpendicularDistance(pos, line), nil
}

// Corridor flags a position that is more than Radius+Margin from the section
// start and outside the corridor rectangle.
type Corridor struct {
	Radius float64
	Margin float64
}

func (Corridor) Kind() Kind { return KindCorridor }

func (p Corridor) Deviated(s Section, c geometry.Corridor, pos geometry.Point) (bool, error) {
	if s.From == s.To {
		return false, geometry.ErrDegenerateSection
	}
	if geometry.Distance(pos, s.From) <= p.Radius+p.Margin {
		return false, nil
	}
	return !geometry.PointInCorridorRectangle(c, pos), nil
}
