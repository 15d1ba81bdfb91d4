package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ms-reservation/internal/apperrors"
)

type Metrics struct {
	registry *prometheus.Registry

	operations      *prometheus.CounterVec
	operationTime   *prometheus.HistogramVec
	lockWait        prometheus.Histogram
	seatsHeld       *prometheus.GaugeVec
	codeRetries     prometheus.Counter
	publishFailures *prometheus.CounterVec
	expired         prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the reservation metrics on a fresh registry together with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_operations_total",
				Help: "Reservation engine operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reservation_operation_duration_seconds",
				Help:    "Duration of reservation engine operations",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"operation"},
		),
		lockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reservation_event_lock_wait_seconds",
			Help:    "Time spent waiting for the per-event allocation lock",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		seatsHeld: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reservation_seats_held",
				Help: "Seats currently held per event",
			},
			[]string{"event_id"},
		),
		codeRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "reservation_booking_code_retries_total",
			Help: "Booking code collisions that forced a retry",
		}),
		publishFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_publish_failures_total",
				Help: "Domain events that failed to publish",
			},
			[]string{"topic"},
		),
		expired: f.NewCounter(prometheus.CounterOpts{
			Name: "reservation_pending_expired_total",
			Help: "Pending bookings cancelled by the expiry sweeper",
		}),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveOperation records one engine operation. The outcome label is
// "ok" or the error kind.
func (m *Metrics) ObserveOperation(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.KindOf(err))
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.operationTime.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) SetSeatsHeld(eventID int64, held int) {
	if m == nil {
		return
	}
	m.seatsHeld.WithLabelValues(strconv.FormatInt(eventID, 10)).Set(float64(held))
}

func (m *Metrics) CodeRetry() {
	if m == nil {
		return
	}
	m.codeRetries.Inc()
}

func (m *Metrics) PublishFailed(topic string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(topic).Inc()
}

func (m *Metrics) Expired(n int) {
	if m == nil {
		return
	}
	m.expired.Add(float64(n))
}

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
