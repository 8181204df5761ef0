// Package metrics exports Prometheus metrics for the HTTP API, issue
// reconciliation and lifecycle event delivery.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/complyhq/issues-backend/v2/internal/notify"
	"github.com/complyhq/issues-backend/v2/model"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "issues"

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
	outcomes *prometheus.CounterVec
}

// New builds a registry with the Go runtime, process and service collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_outcomes_total",
			Help:      "Reconcile attempts by outcome. A retried finding counts once per attempt.",
		}, []string{"outcome"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.inFlight, m.outcomes,
	)
	for _, o := range []model.Outcome{
		model.OutcomeCreated,
		model.OutcomeUpdated,
		model.OutcomeReopened,
		model.OutcomeDismissedConfirmed,
		model.OutcomeFailed,
	} {
		m.outcomes.WithLabelValues(string(o))
	}
	return m
}

// ObserveOutcome implements lifecycle.OutcomeRecorder.
func (m *Metrics) ObserveOutcome(outcome model.Outcome) {
	m.outcomes.WithLabelValues(string(outcome)).Inc()
}

// StatsSource reports lifecycle event delivery counters.
type StatsSource interface {
	Stats() notify.Stats
}

// WatchNotifier exports the delivery counters of src, read at scrape time.
func (m *Metrics) WatchNotifier(src StatsSource) error {
	results := map[string]func(notify.Stats) int64{
		"delivered": func(s notify.Stats) int64 { return s.Delivered },
		"failed":    func(s notify.Stats) int64 { return s.Failed },
		"dropped":   func(s notify.Stats) int64 { return s.Dropped },
	}
	for result, pick := range results {
		counter := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "lifecycle_events_total",
			Help:        "Lifecycle events by delivery result.",
			ConstLabels: prometheus.Labels{"result": result},
		}, func() float64 { return float64(pick(src.Stats())) })
		if err := m.Registry.Register(counter); err != nil {
			return err
		}
	}
	return nil
}

// Middleware records request count, latency and concurrency per route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		route := c.Route().Path
		m.requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		m.latency.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		DisableCompression: true,
	}))
}
