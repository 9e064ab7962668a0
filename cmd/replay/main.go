package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"route-tracker/internal/deviation"
	"route-tracker/internal/geo"
	"route-tracker/internal/publisher"
	"route-tracker/internal/tracker"
)

type replayOptions struct {
	polyline   string
	routeFile  string
	fixesFile  string
	projection string
	policy     string
	advance    float64
	strong     float64
	weak       float64
	threshold  float64
	corridor   float64
	margin     float64
	resync     bool
}

func newRootCmd() *cobra.Command {
	o := &replayOptions{}
	defaults := deviation.DefaultSettings()

	cmd := &cobra.Command{
		Use:   "replay --fixes <file> (--polyline <encoded> | --route <file>)",
		Short: "Replay recorded position fixes against a route",
		Long: `Replay feeds position fixes, one JSON object per line in the same shape
the tracker consumes from NATS, through a section tracker and prints every
section change and deviation verdict.

Examples:
  replay --polyline '_p~iF~ps|U_ulLnnqC' --fixes trip.jsonl
  replay --route shape.geojson --fixes - --policy perpendicular < trip.jsonl`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(o, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.polyline, "polyline", "", "route as an encoded polyline")
	f.StringVar(&o.routeFile, "route", "", "route file: GeoJSON LineString (or Feature) or a JSON array of {lat,lng}")
	f.StringVar(&o.fixesFile, "fixes", "-", "JSON lines of positions, - for stdin")
	f.StringVar(&o.projection, "projection", "local", "planar projection: local or utmk")
	f.StringVar(&o.policy, "policy", string(deviation.KindCorridor), "deviation policy: corridor or perpendicular")
	f.Float64Var(&o.advance, "advance-radius", 8, "meters from a section's end at which it counts as passed")
	f.Float64Var(&o.strong, "strong-radius", 0, "advance radius for strong-signal fixes (0 uses --advance-radius)")
	f.Float64Var(&o.weak, "weak-radius", 0, "advance radius for weak-signal fixes (0 uses --advance-radius)")
	f.Float64Var(&o.threshold, "threshold", defaults.PerpendicularThreshold, "perpendicular policy threshold in meters")
	f.Float64Var(&o.corridor, "corridor-radius", defaults.CorridorRadius, "corridor half-width in meters")
	f.Float64Var(&o.margin, "margin", defaults.CorridorMargin, "extra meters around the section start")
	f.BoolVar(&o.resync, "resync", false, "jump ahead to the nearest waypoint when a fix is off route")
	cmd.MarkFlagsMutuallyExclusive("polyline", "route")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func (o *replayOptions) trackerOptions() (tracker.Options, error) {
	proj, err := tracker.ParseProjection(o.projection)
	if err != nil {
		return tracker.Options{}, err
	}
	kind, err := deviation.ParseKind(o.policy)
	if err != nil {
		return tracker.Options{}, err
	}
	return tracker.Options{
		AdvanceRadius:      o.advance,
		StrongSignalRadius: o.strong,
		WeakSignalRadius:   o.weak,
		Policy:             kind,
		Deviation: deviation.Settings{
			PerpendicularThreshold: o.threshold,
			CorridorRadius:         o.corridor,
			CorridorMargin:         o.margin,
		},
		Projection: proj,
	}, nil
}

func runReplay(o *replayOptions, stdin io.Reader, out io.Writer) error {
	route, err := loadRoute(o)
	if err != nil {
		return err
	}
	opts, err := o.trackerOptions()
	if err != nil {
		return err
	}
	tr, err := tracker.Install(route, opts)
	if err != nil {
		return fmt.Errorf("install route: %w", err)
	}
	sections := len(tr.Route()) - 1
	fmt.Fprintf(out, "route: %d waypoints, %.0fm, policy %s\n", sections+1, geo.PathLength(tr.Route()), tr.Policy())

	in := stdin
	if o.fixesFile != "-" {
		file, err := os.Open(o.fixesFile)
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}

	var n, advanced, deviations int
	wasDeviated := false
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var msg publisher.PositionMessage
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		fix := msg.Fix()
		n++

		ev, err := tr.OnPositionFix(fix)
		if errors.Is(err, tracker.ErrStaleFix) || errors.Is(err, geo.ErrInvalidCoordinate) {
			fmt.Fprintf(out, "#%d %s %v\n", n, color.YellowString("skip"), err)
			continue
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		deviated := false
		if tr.State() != tracker.Completed {
			if deviated, err = tr.IsDeviated(fix.Point); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			if deviated && o.resync {
				rev, err := tr.Resync(fix.Point)
				if err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				if rev.Kind == tracker.AdvancedTo {
					ev.Kind, ev.Section = tracker.AdvancedTo, rev.Section
					ev.Skipped += rev.Skipped
					fmt.Fprintf(out, "#%d %s to section %d\n", n, color.MagentaString("resync"), rev.Section)
					if deviated, err = tr.IsDeviated(fix.Point); err != nil {
						return fmt.Errorf("line %d: %w", line, err)
					}
				}
			}
		}

		status := "on route"
		if deviated {
			status = color.RedString("deviated")
			if !wasDeviated {
				deviations++
			}
		}
		wasDeviated = deviated

		switch ev.Kind {
		case tracker.AdvancedTo:
			advanced += ev.Skipped
			fmt.Fprintf(out, "#%d %s section %d/%d (+%d) %s\n", n, color.GreenString("advanced"), ev.Section, sections, ev.Skipped, status)
		case tracker.RouteCompleted:
			advanced += ev.Skipped
			fmt.Fprintf(out, "#%d %s\n", n, color.New(color.FgCyan, color.Bold).Sprint("completed"))
		default:
			fmt.Fprintf(out, "#%d section %d/%d %s\n", n, ev.Section, sections, status)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	fmt.Fprintf(out, "fixes=%d advanced=%d deviations=%d state=%s\n", n, advanced, deviations, tr.State())
	return nil
}

func loadRoute(o *replayOptions) ([]geo.Point, error) {
	if o.polyline != "" {
		return geo.DecodePolyline(o.polyline)
	}
	if o.routeFile == "" {
		return nil, errors.New("one of --polyline or --route is required")
	}
	data, err := os.ReadFile(o.routeFile)
	if err != nil {
		return nil, err
	}
	return parseRoute(data)
}

// parseRoute accepts a JSON array of points, a GeoJSON LineString geometry or
// a GeoJSON Feature wrapping one.
func parseRoute(data []byte) ([]geo.Point, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var pts []geo.Point
		if err := json.Unmarshal(data, &pts); err != nil {
			return nil, fmt.Errorf("route points: %w", err)
		}
		return pts, nil
	}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	var g orb.Geometry
	switch probe.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		g = f.Geometry
	default:
		gg, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		g = gg.Geometry()
	}
	ls, ok := g.(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("route geometry must be a LineString, got %T", g)
	}
	pts := make([]geo.Point, len(ls))
	for i, p := range ls {
		pts[i] = geo.FromOrb(p)
	}
	return pts, nil
}
