package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveSessions prometheus.Gauge

	FixesProcessed   prometheus.Counter
	SectionsAdvanced prometheus.Counter
	RoutesCompleted  prometheus.Counter
	Deviations       *prometheus.CounterVec // transition label: deviated|recovered
	Errors           *prometheus.CounterVec // kind label, see session.errorKind
	RouteLoads       *prometheus.CounterVec // result label: ok|error

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSReceived    prometheus.Counter
	NATSDecodeErrs  prometheus.Counter
	NATSConnected   prometheus.Gauge

	DBSwitches *prometheus.CounterVec // reason label: update|ping_failure

	FixDuration     prometheus.Histogram
	PublishDuration prometheus.Histogram

	AdvanceRadius  prometheus.Gauge // meters
	CorridorRadius prometheus.Gauge // meters
	SessionIdleTTL prometheus.Gauge // seconds
}

func NewCollector(advanceRadius, corridorRadius float64, idleTTL time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_active_sessions",
			Help: "Number of trips currently being tracked.",
		}),
		FixesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_fixes_processed_total",
			Help: "Total position fixes applied to a tracker.",
		}),
		SectionsAdvanced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_sections_advanced_total",
			Help: "Total sections passed, including several passed by one fix.",
		}),
		RoutesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_routes_completed_total",
			Help: "Total trips that reached their final waypoint.",
		}),
		Deviations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_deviation_transitions_total",
			Help: "Transitions between on-route and deviated.",
		}, []string{"transition"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_errors_total",
			Help: "Tracking errors by kind.",
		}, []string{"kind"}),
		RouteLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_route_loads_total",
			Help: "Route loads from the GTFS database.",
		}, []string{"result"}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_received_total",
			Help: "Total position messages received.",
		}),
		NATSDecodeErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_decode_errors_total",
			Help: "Total position messages that could not be decoded.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		DBSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_db_switches_total",
			Help: "Number of database switches.",
		}, []string{"reason"}),
		FixDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_fix_duration_seconds",
			Help:    "Duration of applying one fix, including event publishing.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		AdvanceRadius: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_advance_radius_meters",
			Help: "Configured section advance radius.",
		}),
		CorridorRadius: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_corridor_radius_meters",
			Help: "Configured corridor half-width.",
		}),
		SessionIdleTTL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_session_idle_ttl_seconds",
			Help: "Idle time after which a session is dropped.",
		}),
	}

	reg.MustRegister(
		c.ActiveSessions,
		c.FixesProcessed, c.SectionsAdvanced, c.RoutesCompleted,
		c.Deviations, c.Errors, c.RouteLoads,
		c.NATSPublished, c.NATSPublishErrs, c.NATSReceived, c.NATSDecodeErrs, c.NATSConnected,
		c.DBSwitches, c.FixDuration, c.PublishDuration,
		c.AdvanceRadius, c.CorridorRadius, c.SessionIdleTTL,
	)

	c.AdvanceRadius.Set(advanceRadius)
	c.CorridorRadius.Set(corridorRadius)
	c.SessionIdleTTL.Set(idleTTL.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

// The methods below satisfy publisher.PublisherMetrics.

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) NATSReceivedInc()               { c.NATSReceived.Inc() }
func (c *Collector) NATSDecodeErrInc()              { c.NATSDecodeErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
