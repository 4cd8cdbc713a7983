package mot3d

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors of trackers. Nil *Metrics is valid and records nothing
type Metrics struct {
	tracksCreated      *prometheus.CounterVec
	tracksDeleted      *prometheus.CounterVec
	detectionsRejected *prometheus.CounterVec
	liveTracks         *prometheus.GaugeVec
	frameDuration      prometheus.Histogram
}

// NewMetrics creates collectors and registers them in given registerer
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	tracksCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mot3d_tracks_created_total",
			Help: "Total tracks created",
		},
		[]string{"category", "hypothesis"},
	)

	tracksDeleted := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mot3d_tracks_deleted_total",
			Help: "Total tracks deleted",
		},
		[]string{"category", "hypothesis"},
	)

	detectionsRejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mot3d_detections_rejected_total",
			Help: "Total detections skipped before association",
		},
		[]string{"category", "reason"},
	)

	liveTracks := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mot3d_live_tracks",
			Help: "Number of live tracks after the last frame",
		},
		[]string{"category", "hypothesis"},
	)

	frameDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mot3d_frame_duration_seconds",
			Help:    "Frame processing latency in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	collectors := []prometheus.Collector{tracksCreated, tracksDeleted, detectionsRejected, liveTracks, frameDuration}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, errors.Wrap(err, "Can't register metrics")
		}
	}

	return &Metrics{
		tracksCreated:      tracksCreated,
		tracksDeleted:      tracksDeleted,
		detectionsRejected: detectionsRejected,
		liveTracks:         liveTracks,
		frameDuration:      frameDuration,
	}, nil
}

func (metrics *Metrics) trackCreated(category Category, hypothesis string) {
	if metrics == nil {
		return
	}
	metrics.tracksCreated.WithLabelValues(string(category), hypothesis).Inc()
}

func (metrics *Metrics) trackDeleted(category Category, hypothesis string) {
	if metrics == nil {
		return
	}
	metrics.tracksDeleted.WithLabelValues(string(category), hypothesis).Inc()
}

func (metrics *Metrics) detectionRejected(category Category, reason RejectReason) {
	if metrics == nil {
		return
	}
	metrics.detectionsRejected.WithLabelValues(string(category), reason.String()).Inc()
}

func (metrics *Metrics) setLiveTracks(category Category, hypothesis string, count int) {
	if metrics == nil {
		return
	}
	metrics.liveTracks.WithLabelValues(string(category), hypothesis).Set(float64(count))
}

func (metrics *Metrics) observeFrame(duration time.Duration) {
	if metrics == nil {
		return
	}
	metrics.frameDuration.Observe(duration.Seconds())
}
