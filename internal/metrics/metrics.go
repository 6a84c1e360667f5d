package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taskcal"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Classified request failures by error kind.",
		},
		[]string{"kind"},
	)

	calendarSync = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_sync_total",
			Help:      "Calendar sync outcomes by operation and result.",
		},
		[]string{"op", "result"},
	)

	taskEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_events_total",
			Help:      "Task domain events published.",
		},
		[]string{"type"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, requestErrors, calendarSync, taskEvents)
	})
}

// ObserveHTTP records one finished request.
func ObserveHTTP(route, code string, d time.Duration) {
	httpRequests.WithLabelValues(route, code).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// IncRequestError counts a classified failure.
func IncRequestError(kind string) {
	requestErrors.WithLabelValues(kind).Inc()
}

// IncCalendarSync counts a sync outcome; result is one of synced, skipped, failed.
func IncCalendarSync(op, result string) {
	calendarSync.WithLabelValues(op, result).Inc()
}

// IncTaskEvent counts a published task event.
func IncTaskEvent(eventType string) {
	taskEvents.WithLabelValues(eventType).Inc()
}
