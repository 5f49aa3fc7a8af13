// Package middleware provides HTTP middleware for the Fiber application
package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Total HTTP requests partitioned by method, route, and status code
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kusanagi_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)

	// Request duration in seconds partitioned by method, route, and status code
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kusanagi_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// In-flight HTTP requests
	httpInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kusanagi_http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
	)

	// Public scan redirects partitioned by outcome (redirected, not_found)
	redirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kusanagi_redirects_total",
			Help: "Total number of public slug resolutions by outcome",
		},
		[]string{"outcome"},
	)
)

// Metrics returns a Fiber v3 middleware that records Prometheus metrics.
// Labels stay low-cardinality by using the matched route template.
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}

		labels := prometheus.Labels{
			"method": c.Method(),
			"route":  route,
			"status": strconv.Itoa(status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())

		if route == "/:slug" {
			outcome := "not_found"
			if status == fiber.StatusMovedPermanently {
				outcome = "redirected"
			}
			redirectsTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
		}

		return err
	}
}
