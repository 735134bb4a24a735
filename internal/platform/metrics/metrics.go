package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the server. A nil *Metrics is
// valid and records nothing, so components can run without it in tests.
type Metrics struct {
	registry *prometheus.Registry

	captureJobs      *prometheus.CounterVec
	captureCacheHits prometheus.Counter
	captureDuration  prometheus.Histogram

	streamStarts    prometheus.Counter
	streamCrashes   prometheus.Counter
	streamIdleStops prometheus.Counter
	streamsRunning  prometheus.Gauge

	watchdogProbeFailures prometheus.Counter
	watchdogRestarts      prometheus.Counter

	httpRequests *prometheus.CounterVec
}

// New creates and registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		captureJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtsplive_capture_jobs_total",
			Help: "Snapshot capture jobs by terminal result",
		}, []string{"result"}),
		captureCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsplive_capture_cache_hits_total",
			Help: "Snapshot requests served from a fresh cached file",
		}),
		captureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rtsplive_capture_duration_seconds",
			Help:    "Wall-clock time of snapshot capture subprocesses",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
		}),
		streamStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsplive_stream_starts_total",
			Help: "HLS transcoder launches",
		}),
		streamCrashes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsplive_stream_crashes_total",
			Help: "HLS transcoders that exited while their stream was wanted",
		}),
		streamIdleStops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsplive_stream_idle_stops_total",
			Help: "Streams turned off for lack of viewers",
		}),
		streamsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rtsplive_streams_running",
			Help: "Streams with a live transcoder after the last reconciliation",
		}),
		watchdogProbeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsplive_watchdog_probe_failures_total",
			Help: "Failed HTTP self-probes",
		}),
		watchdogRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rtsplive_watchdog_restarts_total",
			Help: "HTTP listener restarts issued by the watchdog",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rtsplive_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"route", "status"}),
	}

	m.registry.MustRegister(
		m.captureJobs,
		m.captureCacheHits,
		m.captureDuration,
		m.streamStarts,
		m.streamCrashes,
		m.streamIdleStops,
		m.streamsRunning,
		m.watchdogProbeFailures,
		m.watchdogRestarts,
		m.httpRequests,
	)
	return m
}

// ObserveCapture records a finished capture job. result is "ok", "timeout" or "error".
func (m *Metrics) ObserveCapture(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.captureJobs.WithLabelValues(result).Inc()
	m.captureDuration.Observe(took.Seconds())
}

func (m *Metrics) IncCaptureCacheHit() {
	if m == nil {
		return
	}
	m.captureCacheHits.Inc()
}

func (m *Metrics) IncStreamStart() {
	if m == nil {
		return
	}
	m.streamStarts.Inc()
}

func (m *Metrics) IncStreamCrash() {
	if m == nil {
		return
	}
	m.streamCrashes.Inc()
}

func (m *Metrics) IncStreamIdleStop() {
	if m == nil {
		return
	}
	m.streamIdleStops.Inc()
}

func (m *Metrics) SetStreamsRunning(n int) {
	if m == nil {
		return
	}
	m.streamsRunning.Set(float64(n))
}

func (m *Metrics) IncWatchdogProbeFailure() {
	if m == nil {
		return
	}
	m.watchdogProbeFailures.Inc()
}

func (m *Metrics) IncWatchdogRestart() {
	if m == nil {
		return
	}
	m.watchdogRestarts.Inc()
}

func (m *Metrics) ObserveRequest(route string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
