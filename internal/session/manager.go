// Package session runs one section tracker per trip, fed from the live
// position stream, and reports section and deviation events.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"route-tracker/internal/geo"
	"route-tracker/internal/geometry"
	mmetrics "route-tracker/internal/metrics"
	"route-tracker/internal/publisher"
	"route-tracker/internal/tracker"
)

// ErrRouteUnavailable means the trip's route could not be loaded or installed.
var ErrRouteUnavailable = errors.New("route unavailable")

// routeRetryInterval bounds how often a failing trip hits the route source.
const routeRetryInterval = time.Minute

type RouteLoader interface {
	LoadRoute(ctx context.Context, tripID string) ([]geo.Point, error)
}

type EventSink interface {
	PublishSection(msg publisher.SectionMessage) error
	PublishDeviation(msg publisher.DeviationMessage) error
}

type Manager struct {
	loader  RouteLoader
	sink    EventSink
	opts    tracker.Options
	idleTTL time.Duration
	metrics *mmetrics.Collector
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session  // tripID -> session
	failed   map[string]time.Time // tripID -> last failed load

	reaperCancel context.CancelFunc
	reaperWG     sync.WaitGroup
}

type session struct {
	mu       sync.Mutex
	routeID  string
	tracker  *tracker.Tracker
	sections int
	deviated bool
	lastSeen time.Time
}

func NewManager(loader RouteLoader, sink EventSink, opts tracker.Options, idleTTL time.Duration, metrics *mmetrics.Collector) (*Manager, error) {
	// fail fast on bad options rather than on the first fix
	if _, err := tracker.NewTracker(opts); err != nil {
		return nil, err
	}
	return &Manager{
		loader:   loader,
		sink:     sink,
		opts:     opts,
		idleTTL:  idleTTL,
		metrics:  metrics,
		now:      time.Now,
		sessions: make(map[string]*session),
		failed:   make(map[string]time.Time),
	}, nil
}

// HandleFix applies one position to its trip's tracker, creating the tracker
// on the trip's first fix.
func (m *Manager) HandleFix(ctx context.Context, msg publisher.PositionMessage) error {
	start := time.Now()
	if m.metrics != nil {
		defer func() { m.metrics.FixDuration.Observe(time.Since(start).Seconds()) }()
	}

	s, err := m.session(ctx, msg.TripID, msg.RouteID)
	if err != nil {
		m.countErr(err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// a trip still sending fixes is live even when they fail
	s.lastSeen = m.now()
	fix := msg.Fix()
	ev, err := s.tracker.OnPositionFix(fix)
	if err != nil {
		m.countErr(err)
		return fmt.Errorf("trip %s: %w", msg.TripID, err)
	}
	if m.metrics != nil {
		m.metrics.FixesProcessed.Inc()
	}
	at := fix.Time
	if at.IsZero() {
		at = m.now()
	}

	if ev.Kind != tracker.NoChange {
		if m.metrics != nil {
			m.metrics.SectionsAdvanced.Add(float64(ev.Skipped))
		}
		m.publishSection(publisher.NewSectionMessage(s.routeID, msg.TripID, at, ev, s.sections, m.corridorRing(msg.TripID, s)))
	}
	if ev.Kind == tracker.RouteCompleted {
		if m.metrics != nil {
			m.metrics.RoutesCompleted.Inc()
		}
		log.Printf("trip %s completed route %s", msg.TripID, s.routeID)
	}
	if s.tracker.State() == tracker.Completed {
		// the session stays until reaped so late fixes do not restart tracking
		return nil
	}

	deviated, err := s.tracker.IsDeviated(fix.Point)
	if err != nil {
		m.countErr(err)
		return fmt.Errorf("trip %s: %w", msg.TripID, err)
	}
	if deviated == s.deviated {
		return nil
	}
	s.deviated = deviated
	if m.metrics != nil {
		transition := "recovered"
		if deviated {
			transition = "deviated"
		}
		m.metrics.Deviations.WithLabelValues(transition).Inc()
	}
	m.publishDeviation(publisher.NewDeviationMessage(s.routeID, msg.TripID, at, deviated, string(s.tracker.Policy()), ev.Section, fix.Point, m.corridorRing(msg.TripID, s)))
	return nil
}

// session returns the trip's session, loading its route on first use.
func (m *Manager) session(ctx context.Context, tripID, routeID string) (*session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[tripID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	if at, ok := m.failed[tripID]; ok && m.now().Sub(at) < routeRetryInterval {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: trip %s (retry pending)", ErrRouteUnavailable, tripID)
	}
	m.mu.Unlock()

	route, err := m.loader.LoadRoute(ctx, tripID)
	var tr *tracker.Tracker
	if err == nil {
		tr, err = tracker.Install(route, m.opts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed[tripID] = m.now()
		if m.metrics != nil {
			m.metrics.RouteLoads.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("%w: trip %s: %w", ErrRouteUnavailable, tripID, err)
	}
	if m.metrics != nil {
		m.metrics.RouteLoads.WithLabelValues("ok").Inc()
	}
	if s, ok := m.sessions[tripID]; ok {
		return s, nil
	}
	delete(m.failed, tripID)
	waypoints := tr.Route()
	s := &session{routeID: routeID, tracker: tr, sections: len(waypoints) - 1, lastSeen: m.now()}
	m.sessions[tripID] = s
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	log.Printf("tracking trip %s (route %s, %d waypoints, %.0fm)", tripID, routeID, len(waypoints), geo.PathLength(waypoints))
	return s, nil
}

// corridorRing returns the session's corridor for an event. Events are still
// published without a corridor when it cannot be read.
func (m *Manager) corridorRing(tripID string, s *session) []geo.Point {
	ring, err := s.tracker.CorridorRing()
	if err != nil {
		m.countErr(err)
		log.Printf("corridor for %s: %v", tripID, err)
		return nil
	}
	return ring
}

func (m *Manager) publishSection(msg publisher.SectionMessage) {
	if m.sink == nil {
		return
	}
	if err := m.sink.PublishSection(msg); err != nil {
		log.Printf("publish section error for %s: %v", msg.TripID, err)
	}
}

func (m *Manager) publishDeviation(msg publisher.DeviationMessage) {
	if m.sink == nil {
		return
	}
	if err := m.sink.PublishDeviation(msg); err != nil {
		log.Printf("publish deviation error for %s: %v", msg.TripID, err)
	}
}

func (m *Manager) countErr(err error) {
	if m.metrics != nil {
		m.metrics.Errors.WithLabelValues(errorKind(err)).Inc()
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrRouteUnavailable):
		return "route_unavailable"
	case errors.Is(err, tracker.ErrStaleFix):
		return "stale_fix"
	case errors.Is(err, tracker.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, geo.ErrInvalidCoordinate):
		return "invalid_coordinate"
	case errors.Is(err, geometry.ErrNoIntersection):
		return "no_intersection"
	case errors.Is(err, geometry.ErrVerticalLine):
		return "vertical_line"
	case errors.Is(err, geometry.ErrDegenerateSection):
		return "degenerate_section"
	default:
		return "other"
	}
}

// Active returns the number of tracked trips.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SectionIndex reports the current section of a tracked trip.
func (m *Manager) SectionIndex(tripID string) (int, bool) {
	m.mu.Lock()
	s, ok := m.sessions[tripID]
	m.mu.Unlock()
	if !ok {
		return 0, false
	}
	i, err := s.tracker.SectionIndex()
	return i, err == nil
}

// StartReaper launches a background loop that drops sessions idle for longer
// than the idle TTL.
func (m *Manager) StartReaper(parent context.Context) {
	if m.idleTTL <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.reaperCancel = cancel
	m.reaperWG.Add(1)
	go func() {
		defer m.reaperWG.Done()
		interval := m.idleTTL / 2
		if interval < time.Second {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.Reap(); n > 0 {
					log.Printf("reaped %d idle sessions", n)
				}
			}
		}
	}()
}

// Reap drops idle sessions and returns how many were dropped.
func (m *Manager) Reap() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for tripID, s := range m.sessions {
		s.mu.Lock()
		idle := now.Sub(s.lastSeen) > m.idleTTL
		s.mu.Unlock()
		if idle {
			delete(m.sessions, tripID)
			n++
		}
	}
	for tripID, at := range m.failed {
		if now.Sub(at) >= routeRetryInterval {
			delete(m.failed, tripID)
		}
	}
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	return n
}

func (m *Manager) Stop() {
	if m.reaperCancel != nil {
		m.reaperCancel()
	}
	m.reaperWG.Wait()
	m.mu.Lock()
	n := len(m.sessions)
	m.sessions = make(map[string]*session)
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(0)
	}
	m.mu.Unlock()
	log.Printf("session manager stopped (%d sessions dropped)", n)
}
