// Package metrics provides Prometheus instrumentation for fhevmkit. All
// recorders are no-ops until Init is called with enabled set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fhevmkit"

var (
	enabled  bool
	registry *prometheus.Registry

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	instanceBuildTotal    *prometheus.CounterVec
	instanceBuildDuration *prometheus.HistogramVec

	keyCacheTotal *prometheus.CounterVec

	bindingTransitionsTotal *prometheus.CounterVec
	bindingStatus           *prometheus.GaugeVec
)

// bindingStatuses are the values of the binding_status gauge's label.
var bindingStatuses = []string{"idle", "loading", "ready", "error"}

// Init sets up a fresh registry labelled with service. Calling it again
// replaces the previous registry.
func Init(enable bool, service string) {
	enabled = enable
	if !enabled {
		registry = nil
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"service": service}, registry))

	httpRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "path", "status"})

	httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	instanceBuildTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "instance_builds_total",
		Help:      "Finished instance builds by path and result code.",
	}, []string{"path", "result"})

	// Production builds include SDK initialization, hence the long tail
	instanceBuildDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "instance_build_duration_seconds",
		Help:      "Instance build latency in seconds.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"path"})

	keyCacheTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "key_cache_operations_total",
		Help:      "Public key cache operations by op and result.",
	}, []string{"op", "result"})

	bindingTransitionsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "binding_transitions_total",
		Help:      "Binding state transitions by target status.",
	}, []string{"status"})

	bindingStatus = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "binding_status",
		Help:      "1 for the status the most recently changed binding is in, 0 otherwise.",
	}, []string{"status"})
	for _, s := range bindingStatuses {
		bindingStatus.WithLabelValues(s).Set(0)
	}
}

// Handler serves the registry, or 404 when metrics are disabled.
func Handler() http.Handler {
	if !enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}
