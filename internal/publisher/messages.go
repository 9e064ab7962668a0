package publisher

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"route-tracker/internal/geo"
	"route-tracker/internal/tracker"
)

var errMissingTrip = errors.New("position has no trip id")

// PositionMessage is a vehicle position as published by the simulator, plus
// the optional GPS signal class of the fix.
type PositionMessage struct {
	TripID    string    `json:"tripId"`
	RouteID   string    `json:"routeId"`
	Timestamp time.Time `json:"timestamp"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Bearing   float64   `json:"bearing"`
	Progress  float64   `json:"progress"`
	SpeedMps  float64   `json:"speedMps"`
	Signal    string    `json:"signal,omitempty"`
}

// Fix converts the message into a tracker fix.
func (m PositionMessage) Fix() tracker.Fix {
	return tracker.Fix{
		Time:   m.Timestamp,
		Point:  geo.Point{Latitude: m.Lat, Longitude: m.Lon},
		Signal: tracker.ParseSignal(m.Signal),
	}
}

// SectionMessage reports that a trip advanced or completed its route.
type SectionMessage struct {
	EventID   string    `json:"eventId"`
	TripID    string    `json:"tripId"`
	RouteID   string    `json:"routeId"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Section   int       `json:"section"`
	Skipped   int       `json:"skipped"`
	Sections  int       `json:"sections"`
	// Corridor is the polygon of the new current section.
	Corridor *geojson.Geometry `json:"corridor,omitempty"`
	// Progress runs from the section start to the fix position.
	Progress *geojson.Geometry `json:"progress,omitempty"`
}

// DeviationMessage reports a change between on-route and deviated.
type DeviationMessage struct {
	EventID   string            `json:"eventId"`
	TripID    string            `json:"tripId"`
	RouteID   string            `json:"routeId"`
	Timestamp time.Time         `json:"timestamp"`
	Deviated  bool              `json:"deviated"`
	Policy    string            `json:"policy"`
	Section   int               `json:"section"`
	Lat       float64           `json:"lat"`
	Lon       float64           `json:"lon"`
	Corridor  *geojson.Geometry `json:"corridor,omitempty"`
}

// NewSectionMessage builds the message for a tracker event. ring may be nil.
func NewSectionMessage(routeID, tripID string, at time.Time, ev tracker.Event, sections int, ring []geo.Point) SectionMessage {
	return SectionMessage{
		EventID:   uuid.NewString(),
		TripID:    tripID,
		RouteID:   routeID,
		Timestamp: at,
		Kind:      ev.Kind.String(),
		Section:   ev.Section,
		Skipped:   ev.Skipped,
		Sections:  sections,
		Corridor:  CorridorGeometry(ring),
		Progress:  ProgressGeometry(ev.SectionStart, ev.Position),
	}
}

// NewDeviationMessage builds the message for a deviation transition. ring may be nil.
func NewDeviationMessage(routeID, tripID string, at time.Time, deviated bool, policy string, section int, pos geo.Point, ring []geo.Point) DeviationMessage {
	return DeviationMessage{
		EventID:   uuid.NewString(),
		TripID:    tripID,
		RouteID:   routeID,
		Timestamp: at,
		Deviated:  deviated,
		Policy:    policy,
		Section:   section,
		Lat:       pos.Latitude,
		Lon:       pos.Longitude,
		Corridor:  CorridorGeometry(ring),
	}
}

// CorridorGeometry returns a closed corridor ring as a GeoJSON polygon.
func CorridorGeometry(ring []geo.Point) *geojson.Geometry {
	if len(ring) < 4 {
		return nil
	}
	r := make(orb.Ring, len(ring))
	for i, p := range ring {
		r[i] = p.Orb()
	}
	return geojson.NewGeometry(orb.Polygon{r})
}

// ProgressGeometry returns the line from the section start to the position.
func ProgressGeometry(from, to geo.Point) *geojson.Geometry {
	return geojson.NewGeometry(orb.LineString{from.Orb(), to.Orb()})
}

// EventSubject is <prefix>.<route>.<trip>.<kind>.
func EventSubject(prefix, routeID, tripID, kind string) string {
	return fmt.Sprintf("%s.%s.%s.%s", prefix, subjectToken(routeID), subjectToken(tripID), kind)
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
