// Package metrics exposes Prometheus counters and gauges for the download pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry          *prometheus.Registry
	segmentsFetched   prometheus.Counter
	segmentsSkipped   prometheus.Counter
	bytesDownloaded   prometheus.Counter
	tracksAssembled   prometheus.Counter
	videosCompleted   prometheus.Counter
	artifactsSkipped  *prometheus.CounterVec
	failuresTotal     *prometheus.CounterVec
	permitsInUse      *prometheus.GaugeVec
	permitsInUseFuncs map[string]func() float64
}

// New creates and registers the pipeline metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	segmentsFetched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashfetch_segments_fetched_total",
		Help: "Total number of segments downloaded and finalized",
	})
	segmentsSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashfetch_segments_skipped_total",
		Help: "Total number of segments already finalized by an earlier run",
	})
	bytesDownloaded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashfetch_bytes_downloaded_total",
		Help: "Total number of segment bytes written to disk",
	})
	tracksAssembled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashfetch_tracks_assembled_total",
		Help: "Total number of track files assembled from segments",
	})
	videosCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dashfetch_videos_completed_total",
		Help: "Total number of combined outputs finalized",
	})
	artifactsSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashfetch_artifacts_skipped_total",
		Help: "Total number of tracks and videos skipped because they were already finalized",
	}, []string{"level"})
	failuresTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dashfetch_failures_total",
		Help: "Total number of failures by pipeline stage",
	}, []string{"stage"})
	permitsInUse := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dashfetch_permits_in_use",
		Help: "Number of permits currently held per resource class",
	}, []string{"class"})

	registry.MustRegister(
		segmentsFetched,
		segmentsSkipped,
		bytesDownloaded,
		tracksAssembled,
		videosCompleted,
		artifactsSkipped,
		failuresTotal,
		permitsInUse,
	)

	return &Metrics{
		registry:          registry,
		segmentsFetched:   segmentsFetched,
		segmentsSkipped:   segmentsSkipped,
		bytesDownloaded:   bytesDownloaded,
		tracksAssembled:   tracksAssembled,
		videosCompleted:   videosCompleted,
		artifactsSkipped:  artifactsSkipped,
		failuresTotal:     failuresTotal,
		permitsInUse:      permitsInUse,
		permitsInUseFuncs: map[string]func() float64{},
	}
}

// IncSegmentsFetched records one downloaded segment of n bytes.
func (m *Metrics) IncSegmentsFetched(n int64) {
	if m == nil {
		return
	}
	m.segmentsFetched.Inc()
	m.bytesDownloaded.Add(float64(n))
}

// IncSegmentsSkipped increments the skipped segments counter.
func (m *Metrics) IncSegmentsSkipped() {
	if m == nil {
		return
	}
	m.segmentsSkipped.Inc()
}

// IncTracksAssembled increments the assembled tracks counter.
func (m *Metrics) IncTracksAssembled() {
	if m == nil {
		return
	}
	m.tracksAssembled.Inc()
}

// IncVideosCompleted increments the completed videos counter.
func (m *Metrics) IncVideosCompleted() {
	if m == nil {
		return
	}
	m.videosCompleted.Inc()
}

// IncSkipped records a track or video level skip.
func (m *Metrics) IncSkipped(level string) {
	if m == nil {
		return
	}
	m.artifactsSkipped.WithLabelValues(level).Inc()
}

// IncFailures records a failure at stage.
func (m *Metrics) IncFailures(stage string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(stage).Inc()
}

// TrackPermits registers a callback sampled before each scrape for the
// permits-in-use gauge of class.
func (m *Metrics) TrackPermits(class string, inUse func() float64) {
	if m == nil {
		return
	}
	m.permitsInUseFuncs[class] = inUse
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for class, fn := range m.permitsInUseFuncs {
			m.permitsInUse.WithLabelValues(class).Set(fn())
		}
		inner.ServeHTTP(w, r)
	})
}
