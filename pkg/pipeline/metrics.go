package pipeline

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "tarumae_radio"

// MetricsCollector defines the interface for metrics collection
type MetricsCollector interface {
	RecordLaunch(codec, kind string)
	RecordRelaunch(reason string)
	RecordStateChange(from, to string)
	RecordError(err error)
	SetSessions(n int)
}

// PrometheusCollector records relay metrics into a prometheus registry.
type PrometheusCollector struct {
	registry    *prometheus.Registry
	launches    *prometheus.CounterVec
	relaunches  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	errors      *prometheus.CounterVec
	sessions    prometheus.Gauge
}

// NewPrometheusCollector registers the relay metrics on a fresh registry.
func NewPrometheusCollector() *PrometheusCollector {
	c := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
		launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transcoder_launches_total",
			Help:      "Transcoder processes spawned, by output codec and source kind.",
		}, []string{"codec", "kind"}),
		relaunches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transcoder_relaunches_total",
			Help:      "Supervisor relaunches, by reason.",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions.",
		}, []string{"from", "to"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "errors_total",
			Help:      "Classified pipeline errors.",
		}, []string{"category", "severity"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions",
			Help:      "Streaming sessions currently registered.",
		}),
	}

	c.registry.MustRegister(c.launches, c.relaunches, c.transitions, c.errors, c.sessions)
	return c
}

// RecordLaunch counts one spawned transcoder.
func (c *PrometheusCollector) RecordLaunch(codec, kind string) {
	c.launches.WithLabelValues(codec, kind).Inc()
}

// RecordRelaunch counts one supervisor relaunch.
func (c *PrometheusCollector) RecordRelaunch(reason string) {
	c.relaunches.WithLabelValues(reason).Inc()
}

// RecordStateChange counts one session state transition.
func (c *PrometheusCollector) RecordStateChange(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

// RecordError counts a classified error.
func (c *PrometheusCollector) RecordError(err error) {
	pe := Classify(err)
	c.errors.WithLabelValues(pe.Category.String(), pe.Severity.String()).Inc()
}

// SetSessions updates the registered sessions gauge.
func (c *PrometheusCollector) SetSessions(n int) {
	c.sessions.Set(float64(n))
}

// Handler exposes the registry over HTTP.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

type nopMetrics struct{}

func (nopMetrics) RecordLaunch(string, string)      {}
func (nopMetrics) RecordRelaunch(string)            {}
func (nopMetrics) RecordStateChange(string, string) {}
func (nopMetrics) RecordError(error)                {}
func (nopMetrics) SetSessions(int)                  {}

// NopMetrics returns a collector that records nothing.
func NopMetrics() MetricsCollector {
	return nopMetrics{}
}
