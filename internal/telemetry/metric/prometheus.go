package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sightingdb"

// Result labels.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultDenied   = "denied"
	ResultError    = "error"
)

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	WritesTotal     *prometheus.CounterVec
	ReadsTotal      *prometheus.CounterVec
	DeletesTotal    prometheus.Counter
	ACLDeniedTotal  *prometheus.CounterVec
	WALFailures     prometheus.Counter
	SnapshotsTotal  *prometheus.CounterVec
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimited     prometheus.Counter
}

// NewRegistry creates a registry with Go runtime and process collectors
// plus the SightingDB metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		registry: reg,
		WritesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Sighting writes by result.",
		}, []string{"result"}),
		ReadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reads_total",
			Help:      "Sighting reads by result.",
		}, []string{"result"}),
		DeletesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletes_total",
			Help:      "Namespaces deleted.",
		}),
		ACLDeniedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acl_denied_total",
			Help:      "Requests rejected by the ACL, by access mode.",
		}, []string{"mode"}),
		WALFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wal_failures_total",
			Help:      "Failed WAL appends.",
		}),
		SnapshotsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots taken by result.",
		}, []string{"result"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() { global = NewRegistry() })
	return global
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Handler returns an HTTP handler exposing this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Register adds a collector to this registry.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.registry.Register(c)
}

// RecordWrite counts one write with the given result label.
func (r *Registry) RecordWrite(result string) {
	r.WritesTotal.WithLabelValues(result).Inc()
}

// RecordRead counts one read with the given result label.
func (r *Registry) RecordRead(result string) {
	r.ReadsTotal.WithLabelValues(result).Inc()
}

// RecordDelete counts one namespace deletion.
func (r *Registry) RecordDelete() {
	r.DeletesTotal.Inc()
}

// RecordACLDenied counts a rejected access for mode.
func (r *Registry) RecordACLDenied(mode string) {
	r.ACLDeniedTotal.WithLabelValues(mode).Inc()
}

// RecordWALFailure counts one failed WAL append.
func (r *Registry) RecordWALFailure() {
	r.WALFailures.Inc()
}

// RecordSnapshot counts one snapshot attempt.
func (r *Registry) RecordSnapshot(result string) {
	r.SnapshotsTotal.WithLabelValues(result).Inc()
}

// RecordRequest counts one HTTP request.
func (r *Registry) RecordRequest(route, method, code string) {
	r.RequestsTotal.WithLabelValues(route, method, code).Inc()
}

// ObserveRequestDuration records an HTTP request latency in seconds.
func (r *Registry) ObserveRequestDuration(route, code string, seconds float64) {
	r.RequestDuration.WithLabelValues(route, code).Observe(seconds)
}

// RecordRateLimited counts one request rejected by the rate limiter.
func (r *Registry) RecordRateLimited() {
	r.RateLimited.Inc()
}
