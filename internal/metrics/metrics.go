package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records
// nothing, so library code can take one unconditionally.
type Metrics struct {
	// Analyzer counters
	CacheHits         atomic.Uint64
	CacheMisses       atomic.Uint64
	AnalysisFallbacks atomic.Uint64

	// Engine counters
	ElementErrors  atomic.Uint64
	CanvasFallback atomic.Uint64
	VideoFrames    atomic.Uint64
	VideoReused    atomic.Uint64
	ActiveVideos   atomic.Int64

	// Calibration
	CalibrationChanges atomic.Uint64

	// Websocket subscribers
	ActiveSubscribers atomic.Int64

	analysisDuration *prometheus.HistogramVec
	elements         *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vision_analysis_phase_seconds",
			Help:    "Content analysis time per phase",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"phase"},
	)
	m.registry.MustRegister(m.analysisDuration)

	m.elements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vision_elements_processed_total",
			Help: "Elements processed by the correction engine, by strategy",
		},
		[]string{"strategy"},
	)
	m.registry.MustRegister(m.elements)

	// Analyzer metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_analysis_cache_hits_total",
			Help: "Analysis results served from the cache",
		},
		func() float64 { return float64(m.CacheHits.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_analysis_cache_misses_total",
			Help: "Analysis requests that ran the full pipeline",
		},
		func() float64 { return float64(m.CacheMisses.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_analysis_fallbacks_total",
			Help: "Analysis runs that failed and returned the fallback result",
		},
		func() float64 { return float64(m.AnalysisFallbacks.Load()) },
	))

	// Engine metrics
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_element_errors_total",
			Help: "Elements that ended in the error state",
		},
		func() float64 { return float64(m.ElementErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_canvas_fallbacks_total",
			Help: "Canvas processing attempts that fell back to CSS filters",
		},
		func() float64 { return float64(m.CanvasFallback.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_video_frames_total",
			Help: "Video frames run through the pixel pipeline",
		},
		func() float64 { return float64(m.VideoFrames.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_video_frames_reused_total",
			Help: "Unchanged video frames that re-presented the previous output",
		},
		func() float64 { return float64(m.VideoReused.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_active_video_tasks",
			Help: "Running per-frame video tasks",
		},
		func() float64 { return float64(m.ActiveVideos.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_calibration_changes_total",
			Help: "Calibration store changes observed",
		},
		func() float64 { return float64(m.CalibrationChanges.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vision_event_subscribers",
			Help: "Connected change-feed websocket clients",
		},
		func() float64 { return float64(m.ActiveSubscribers.Load()) },
	))
}

// ObservePhase records how long an analysis phase took
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.analysisDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// CacheHit counts an analysis cache hit
func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Add(1)
	}
}

// CacheMiss counts an analysis cache miss
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMisses.Add(1)
	}
}

// AnalysisFallback counts a recovered analysis failure
func (m *Metrics) AnalysisFallback() {
	if m != nil {
		m.AnalysisFallbacks.Add(1)
	}
}

// ElementProcessed counts an element handled by the given strategy
func (m *Metrics) ElementProcessed(strategy string) {
	if m == nil {
		return
	}
	m.elements.WithLabelValues(strategy).Inc()
}

// ElementError counts an element marked as errored
func (m *Metrics) ElementError() {
	if m != nil {
		m.ElementErrors.Add(1)
	}
}

// CanvasFallbackUsed counts a tainted-canvas fallback
func (m *Metrics) CanvasFallbackUsed() {
	if m != nil {
		m.CanvasFallback.Add(1)
	}
}

// VideoFrame counts a processed (or reused) video frame
func (m *Metrics) VideoFrame(reused bool) {
	if m == nil {
		return
	}
	if reused {
		m.VideoReused.Add(1)
		return
	}
	m.VideoFrames.Add(1)
}

// VideoTaskStarted adjusts the running video task gauge
func (m *Metrics) VideoTaskStarted() {
	if m != nil {
		m.ActiveVideos.Add(1)
	}
}

// VideoTaskStopped adjusts the running video task gauge
func (m *Metrics) VideoTaskStopped() {
	if m != nil {
		m.ActiveVideos.Add(-1)
	}
}

// CalibrationChanged counts a calibration store change
func (m *Metrics) CalibrationChanged() {
	if m != nil {
		m.CalibrationChanges.Add(1)
	}
}

// SubscriberDelta adjusts the connected websocket client gauge
func (m *Metrics) SubscriberDelta(n int64) {
	if m != nil {
		m.ActiveSubscribers.Add(n)
	}
}

// Registry exposes the underlying registry for tests and custom collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
