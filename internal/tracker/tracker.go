// Package tracker follows a live position along a planned route, one section
// (pair of consecutive waypoints) at a time.
package tracker

import (
	"fmt"
	"sync"
	"time"

	"route-tracker/internal/deviation"
	"route-tracker/internal/geo"
	"route-tracker/internal/geometry"
)

// Tracker is the section state machine for one navigation session. Reads may
// run concurrently; mutations are exclusive.
type Tracker struct {
	opts   Options
	policy deviation.Policy

	mu       sync.RWMutex
	state    State
	proj     geo.Projector
	route    []geo.Point
	planar   []geometry.Point
	index    int
	corridor geometry.Corridor
	lastFix  time.Time
}

// NewTracker returns an uninitialized tracker.
func NewTracker(opts Options) (*Tracker, error) {
	if opts.Projection == nil {
		opts.Projection = LocalProjection
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	policy, err := deviation.New(opts.Policy, opts.Deviation)
	if err != nil {
		return nil, err
	}
	return &Tracker{opts: opts, policy: policy}, nil
}

// Install creates a tracker and installs route on it.
func Install(route []geo.Point, opts Options) (*Tracker, error) {
	t, err := NewTracker(opts)
	if err != nil {
		return nil, err
	}
	if err := t.InstallRoute(route); err != nil {
		return nil, err
	}
	return t, nil
}

// InstallRoute replaces the route and resets tracking to section 0.
func (t *Tracker) InstallRoute(route []geo.Point) error {
	if err := geo.ValidatePoints(route); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.load(collapse(route)); err != nil {
		return err
	}
	t.lastFix = time.Time{}
	return nil
}

// load installs route as the current route at section 0. State is left
// untouched on error. Callers hold mu.
func (t *Tracker) load(route []geo.Point) error {
	if len(route) < 2 {
		return ErrRouteTooShort
	}
	proj := t.opts.Projection(route[0])
	planar := make([]geometry.Point, len(route))
	for i, p := range route {
		planar[i] = proj.Project(p)
	}
	c, err := geometry.BuildCorridor(planar[0], planar[1], t.opts.Deviation.CorridorRadius)
	if err != nil {
		return fmt.Errorf("section 0: %w", err)
	}
	t.proj = proj
	t.route = route
	t.planar = planar
	t.index = 0
	t.corridor = c
	t.state = Tracking
	return nil
}

// sectionCorridor builds the corridor of section i. Callers hold mu.
func (t *Tracker) sectionCorridor(i int) (geometry.Corridor, error) {
	c, err := geometry.BuildCorridor(t.planar[i], t.planar[i+1], t.opts.Deviation.CorridorRadius)
	if err != nil {
		return geometry.Corridor{}, fmt.Errorf("section %d: %w", i, err)
	}
	return c, nil
}

// OnPositionFix advances past every section whose far waypoint lies within the
// advance radius of the fix. On error the tracker is left as it was before the
// call, including the last fix time.
func (t *Tracker) OnPositionFix(fix Fix) (Event, error) {
	if err := geo.ValidatePoint(fix.Point); err != nil {
		return Event{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Uninitialized {
		return Event{}, ErrNotInitialized
	}
	if !fix.Time.IsZero() && fix.Time.Before(t.lastFix) {
		return Event{}, fmt.Errorf("%w: %s before %s", ErrStaleFix, fix.Time.Format(time.RFC3339Nano), t.lastFix.Format(time.RFC3339Nano))
	}

	ev := Event{Kind: NoChange, Section: t.index, SectionStart: t.route[t.index], Position: fix.Point}
	if t.state == Completed {
		t.markFix(fix)
		return ev, nil
	}

	pos := t.proj.Project(fix.Point)
	radius := t.opts.radiusFor(fix.Signal)
	start := t.index
	last := len(t.planar) - 2

	index, corridor, completed := t.index, t.corridor, false
	for geometry.Distance(pos, t.planar[index+1]) <= radius {
		if index == last {
			completed = true
			break
		}
		c, err := t.sectionCorridor(index + 1)
		if err != nil {
			return Event{}, err
		}
		index, corridor = index+1, c
	}

	t.index, t.corridor = index, corridor
	if completed {
		t.state = Completed
	}
	t.markFix(fix)

	ev.Section = t.index
	ev.Skipped = t.index - start
	ev.SectionStart = t.route[t.index]
	switch {
	case completed:
		ev.Kind = RouteCompleted
	case t.index > start:
		ev.Kind = AdvancedTo
	}
	return ev, nil
}

func (t *Tracker) markFix(fix Fix) {
	if !fix.Time.IsZero() {
		t.lastFix = fix.Time
	}
}

// IsDeviated applies the configured deviation policy to p against the current section.
func (t *Tracker) IsDeviated(p geo.Point) (bool, error) {
	if err := geo.ValidatePoint(p); err != nil {
		return false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state == Uninitialized {
		return false, ErrNotInitialized
	}
	s := deviation.Section{From: t.planar[t.index], To: t.planar[t.index+1]}
	return t.policy.Deviated(s, t.corridor, t.proj.Project(p))
}

// CurrentCorridor returns the planar corridor of the current section.
func (t *Tracker) CurrentCorridor() (geometry.Corridor, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state == Uninitialized {
		return geometry.Corridor{}, ErrNotInitialized
	}
	return t.corridor, nil
}

// CorridorRing returns the current corridor as a closed ring of geographic points.
func (t *Tracker) CorridorRing() ([]geo.Point, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state == Uninitialized {
		return nil, ErrNotInitialized
	}
	ring := t.corridor.Ring()
	out := make([]geo.Point, len(ring))
	for i, p := range ring {
		out[i] = t.proj.Unproject(p)
	}
	return out, nil
}

// CurrentSection returns the endpoints of the current section.
func (t *Tracker) CurrentSection() (Section, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state == Uninitialized {
		return Section{}, ErrNotInitialized
	}
	return Section{Index: t.index, From: t.route[t.index], To: t.route[t.index+1]}, nil
}

// SectionIndex returns the current section index.
func (t *Tracker) SectionIndex() (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state == Uninitialized {
		return 0, ErrNotInitialized
	}
	return t.index, nil
}

// State returns the lifecycle phase.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Policy reports which deviation policy is in use.
func (t *Tracker) Policy() deviation.Kind { return t.policy.Kind() }

// Route returns a copy of the installed route.
func (t *Tracker) Route() []geo.Point {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]geo.Point(nil), t.route...)
}

// DropPrefix removes the first count waypoints and restarts at section 0.
func (t *Tracker) DropPrefix(count int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Uninitialized {
		return ErrNotInitialized
	}
	switch {
	case count < 0:
		return ErrInvalidCount
	case count >= len(t.route):
		return fmt.Errorf("%w: drop %d of %d", ErrPrefixTooLong, count, len(t.route))
	case len(t.route)-count < 2:
		return fmt.Errorf("%w: drop %d of %d", ErrRouteTooShort, count, len(t.route))
	}
	return t.load(append([]geo.Point(nil), t.route[count:]...))
}

// PrependRoute splices points in front of the route and restarts at section 0.
func (t *Tracker) PrependRoute(points []geo.Point) error {
	if err := geo.ValidatePoints(points); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Uninitialized {
		return ErrNotInitialized
	}
	joined := make([]geo.Point, 0, len(points)+len(t.route))
	joined = append(joined, points...)
	joined = append(joined, t.route...)
	return t.load(collapse(joined))
}

// FindNearestSectionIndex returns the section index j >= current whose start
// waypoint is closest to p. Ties go to the lower index.
func (t *Tracker) FindNearestSectionIndex(p geo.Point) (int, error) {
	if err := geo.ValidatePoint(p); err != nil {
		return 0, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.state == Uninitialized {
		return 0, ErrNotInitialized
	}
	return t.nearest(t.proj.Project(p)), nil
}

func (t *Tracker) nearest(pos geometry.Point) int {
	best := t.index
	bestDist := geometry.Distance(pos, t.planar[t.index])
	for j := t.index + 1; j <= len(t.planar)-2; j++ {
		if d := geometry.Distance(pos, t.planar[j]); d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

// Resync jumps forward to the nearest section start. It never moves backward.
func (t *Tracker) Resync(p geo.Point) (Event, error) {
	if err := geo.ValidatePoint(p); err != nil {
		return Event{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Uninitialized {
		return Event{}, ErrNotInitialized
	}
	ev := Event{Kind: NoChange, Section: t.index, SectionStart: t.route[t.index], Position: p}
	if t.state == Completed {
		return ev, nil
	}
	start := t.index
	if j := t.nearest(t.proj.Project(p)); j > start {
		c, err := t.sectionCorridor(j)
		if err != nil {
			return Event{}, err
		}
		t.index, t.corridor = j, c
		ev.Kind = AdvancedTo
		ev.Section = j
		ev.Skipped = j - start
		ev.SectionStart = t.route[j]
	}
	return ev, nil
}

// collapse drops consecutive duplicate waypoints, which would make zero-length sections.
func collapse(route []geo.Point) []geo.Point {
	out := make([]geo.Point, 0, len(route))
	for _, p := range route {
		if n := len(out); n > 0 && out[n-1] == p {
			continue
		}
		out = append(out, p)
	}
	return out
}
