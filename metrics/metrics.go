// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the service.
type Collector struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	storeOpDuration    *prometheus.HistogramVec
	remindersPublished prometheus.Counter
}

// New creates and registers all Prometheus metrics on a fresh registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "habithive_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "habithive_http_request_duration_seconds",
				Help:    "HTTP request duration by route",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"route"},
		),
		storeOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "habithive_store_op_duration_seconds",
				Help:    "Storage operation duration by backend and operation",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"backend", "op"},
		),
		remindersPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "habithive_reminders_published_total",
				Help: "Reminder messages published to the queue",
			},
		),
	}

	c.registry.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.storeOpDuration,
		c.remindersPublished,
	)

	return c
}

// Handler returns the /metrics scrape handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// HTTPRequest records one served request.
func (c *Collector) HTTPRequest(route, status string, d time.Duration) {
	c.httpRequests.WithLabelValues(route, status).Inc()
	c.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// StoreOp observes a storage operation duration.
func (c *Collector) StoreOp(backend, op string, d time.Duration) {
	c.storeOpDuration.WithLabelValues(backend, op).Observe(d.Seconds())
}

// ReminderPublished increments the published reminder counter.
func (c *Collector) ReminderPublished() {
	c.remindersPublished.Inc()
}
