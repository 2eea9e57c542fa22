package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Frames        prometheus.Counter
	DroppedFrames prometheus.Counter
	Arrivals      prometheus.Counter
	Phase         *prometheus.GaugeVec // phase label: idle|pending|en_route|arrived

	TimelineStops   prometheus.Gauge
	TimelineRebuilt prometheus.Counter
	UserStops       prometheus.Gauge

	WaypointsAccepted prometheus.Counter
	WaypointsRejected *prometheus.CounterVec // reason label
	WaypointsDropped  prometheus.Counter     // malformed stored records
	StoreErrors       *prometheus.CounterVec // op label: load|save

	SinkPublished   *prometheus.CounterVec // sink label: nats|kafka
	SinkPublishErrs *prometheus.CounterVec
	SinkConnected   prometheus.Gauge

	TickDuration    prometheus.Histogram
	PublishDuration prometheus.Histogram

	FrameInterval prometheus.Gauge // seconds
	BedtimeMinute prometheus.Gauge // minutes after local midnight
}

func NewCollector(frameInterval time.Duration, bedHour, bedMinute int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_frames_total",
			Help: "Total playback frames computed.",
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_frames_dropped_total",
			Help: "Frames whose interpolated position was not finite.",
		}),
		Arrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_arrivals_total",
			Help: "Arrival events emitted.",
		}),
		Phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tracker_phase",
			Help: "1 for the current playback phase, 0 otherwise.",
		}, []string{"phase"}),
		TimelineStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_timeline_stops",
			Help: "Number of stops in the viewer timeline.",
		}),
		TimelineRebuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_timeline_rebuilds_total",
			Help: "Times the base and viewer timelines were recomputed.",
		}),
		UserStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_user_stops",
			Help: "Number of viewer-submitted stops loaded.",
		}),
		WaypointsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_waypoints_accepted_total",
			Help: "Viewer waypoint submissions accepted.",
		}),
		WaypointsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_waypoints_rejected_total",
			Help: "Viewer waypoint submissions rejected.",
		}, []string{"reason"}),
		WaypointsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_waypoints_dropped_total",
			Help: "Stored waypoint records dropped by normalization.",
		}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_store_errors_total",
			Help: "Waypoint store failures.",
		}, []string{"op"}),
		SinkPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_sink_published_total",
			Help: "Messages published to the frame sink.",
		}, []string{"sink"}),
		SinkPublishErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_sink_publish_errors_total",
			Help: "Frame sink publish errors.",
		}, []string{"sink"}),
		SinkConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_sink_connected",
			Help: "1 if the frame sink connection is established, 0 otherwise.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_tick_duration_seconds",
			Help:    "Duration of playback tick computations.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_publish_duration_seconds",
			Help:    "Duration to marshal and publish a sink message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		FrameInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_frame_interval_seconds",
			Help: "Configured frame interval in seconds.",
		}),
		BedtimeMinute: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_bedtime_minute_of_day",
			Help: "Configured local bedtime as minutes after midnight.",
		}),
	}

	reg.MustRegister(
		c.Frames, c.DroppedFrames, c.Arrivals, c.Phase,
		c.TimelineStops, c.TimelineRebuilt, c.UserStops,
		c.WaypointsAccepted, c.WaypointsRejected, c.WaypointsDropped, c.StoreErrors,
		c.SinkPublished, c.SinkPublishErrs, c.SinkConnected,
		c.TickDuration, c.PublishDuration,
		c.FrameInterval, c.BedtimeMinute,
	)

	c.FrameInterval.Set(frameInterval.Seconds())
	c.BedtimeMinute.Set(float64(bedHour*60 + bedMinute))

	return c
}

// SetPhase marks phase as the current one.
func (c *Collector) SetPhase(phase string) {
	for _, p := range []string{"idle", "pending", "en_route", "arrived"} {
		v := 0.0
		if p == phase {
			v = 1
		}
		c.Phase.WithLabelValues(p).Set(v)
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "err", err)
		}
	}()
	log.Info("metrics listening", "addr", addr)
	return srv
}

func (c *Collector) PublishedInc(sink string)  { c.SinkPublished.WithLabelValues(sink).Inc() }
func (c *Collector) PublishErrInc(sink string) { c.SinkPublishErrs.WithLabelValues(sink).Inc() }

func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }

func (c *Collector) SetSinkConnected(connected bool) {
	if connected {
		c.SinkConnected.Set(1)
		return
	}
	c.SinkConnected.Set(0)
}
