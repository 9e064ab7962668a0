package tracker

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"route-tracker/internal/geo"
)

var (
	// ErrRouteTooShort means fewer than two distinct waypoints are available.
	ErrRouteTooShort = errors.New("route needs at least 2 distinct waypoints")
	// ErrPrefixTooLong means a drop count reaches past the end of the route.
	ErrPrefixTooLong = errors.New("drop count exceeds route length")
	// ErrInvalidCount means a negative drop count.
	ErrInvalidCount = errors.New("drop count must not be negative")
	// ErrNotInitialized means no route has been installed yet.
	ErrNotInitialized = errors.New("tracker has no route installed")
	// ErrStaleFix means a fix is older than one already applied.
	ErrStaleFix = errors.New("position fix is older than the last applied fix")
)

// State is the tracker's lifecycle phase.
type State int

const (
	Uninitialized State = iota
	Tracking
	Completed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Tracking:
		return "tracking"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Signal is the GPS signal classification reported with a fix.
type Signal int

const (
	SignalUnknown Signal = iota
	SignalStrong
	SignalWeak
)

// ParseSignal maps the location provider's labels; anything unrecognised is Unknown.
func ParseSignal(s string) Signal {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strong":
		return SignalStrong
	case "weak":
		return SignalWeak
	default:
		return SignalUnknown
	}
}

func (s Signal) String() string {
	switch s {
	case SignalStrong:
		return "strong"
	case SignalWeak:
		return "weak"
	default:
		return "unknown"
	}
}

// Fix is a single live position. Time and Signal are optional.
type Fix struct {
	Time   time.Time
	Point  geo.Point
	Signal Signal
}

// EventKind classifies the outcome of a fix.
type EventKind int

const (
	NoChange EventKind = iota
	AdvancedTo
	RouteCompleted
)

func (k EventKind) String() string {
	switch k {
	case NoChange:
		return "no_change"
	case AdvancedTo:
		return "advanced"
	case RouteCompleted:
		return "completed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is the result of applying one fix.
type Event struct {
	Kind EventKind
	// Section is the current section index after the fix.
	Section int
	// Skipped counts sections passed by this fix.
	Skipped int
	// SectionStart and Position let a renderer draw the progress line.
	SectionStart geo.Point
	Position     geo.Point
}

// Section is the geographic view of the section being tracked.
type Section struct {
	Index int
	From  geo.Point
	To    geo.Point
}
