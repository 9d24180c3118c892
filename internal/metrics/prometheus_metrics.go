package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/edgecomet/eventrelay/internal/connection"
)

// Rejection reasons reported on events_rejected_total
var rejectReasons = []string{
	connection.RejectReasonShutdown,
	connection.RejectReasonQueueFull,
	connection.RejectReasonDropped,
}

type PrometheusMetrics struct {
	httpHandler func(*fasthttp.RequestCtx)
	logger      *zap.Logger

	eventsSubmittedTotal prometheus.Counter
	eventsDeliveredTotal prometheus.Counter
	eventsFailedTotal    prometheus.Counter
	eventsRejectedTotal  *prometheus.CounterVec
	eventsAbandonedTotal prometheus.Counter
	queueDepth           prometheus.Gauge
	deliveryDuration     *prometheus.HistogramVec
}

// Snapshot is a point-in-time copy of the delivery counters
type Snapshot struct {
	Submitted uint64
	Delivered uint64
	Failed    uint64
	Rejected  uint64
	Abandoned uint64
}

func NewPrometheusMetrics(namespace string, logger *zap.Logger) *PrometheusMetrics {
	return NewPrometheusMetricsWithRegistry(namespace, prometheus.NewRegistry(), logger)
}

// NewPrometheusMetricsWithRegistry registers the relay metrics on registry and
// serves it on ServeHTTP
func NewPrometheusMetricsWithRegistry(namespace string, registry *prometheus.Registry, logger *zap.Logger) *PrometheusMetrics {
	if namespace == "" {
		namespace = "eventrelay"
	}

	pm := &PrometheusMetrics{
		logger: logger,
	}

	pm.eventsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_submitted_total",
			Help:      "Total number of events accepted for asynchronous delivery",
		},
	)

	pm.eventsDeliveredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_delivered_total",
			Help:      "Total number of events sent successfully",
		},
	)

	pm.eventsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_failed_total",
			Help:      "Total number of events whose delivery returned an error",
		},
	)

	pm.eventsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_rejected_total",
			Help:      "Total number of events refused or evicted by the delivery queue",
		},
		[]string{"reason"},
	)

	pm.eventsAbandonedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_abandoned_total",
			Help:      "Total number of events left undelivered by a forced shutdown",
		},
	)

	pm.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "queue_depth",
			Help:      "Current number of events waiting for a worker",
		},
	)

	pm.deliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "delivery_duration_seconds",
			Help:      "Time spent sending one event through the transports",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	registry.MustRegister(pm.eventsSubmittedTotal)
	registry.MustRegister(pm.eventsDeliveredTotal)
	registry.MustRegister(pm.eventsFailedTotal)
	registry.MustRegister(pm.eventsRejectedTotal)
	registry.MustRegister(pm.eventsAbandonedTotal)
	registry.MustRegister(pm.queueDepth)
	registry.MustRegister(pm.deliveryDuration)

	// Pre-create label combinations so they are exported at zero
	for _, reason := range rejectReasons {
		pm.eventsRejectedTotal.WithLabelValues(reason)
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
	pm.httpHandler = fasthttpadaptor.NewFastHTTPHandler(handler)

	logger.Info("Prometheus metrics initialized for event relay",
		zap.String("namespace", namespace))

	return pm
}

func (pm *PrometheusMetrics) RecordSubmitted() {
	pm.eventsSubmittedTotal.Inc()
}

func (pm *PrometheusMetrics) RecordDelivered(seconds float64) {
	pm.eventsDeliveredTotal.Inc()
	pm.deliveryDuration.WithLabelValues("success").Observe(seconds)
}

func (pm *PrometheusMetrics) RecordFailed(seconds float64) {
	pm.eventsFailedTotal.Inc()
	pm.deliveryDuration.WithLabelValues("error").Observe(seconds)
}

func (pm *PrometheusMetrics) RecordRejected(reason string) {
	pm.eventsRejectedTotal.WithLabelValues(reason).Inc()
}

func (pm *PrometheusMetrics) RecordAbandoned(count int) {
	if count > 0 {
		pm.eventsAbandonedTotal.Add(float64(count))
	}
}

func (pm *PrometheusMetrics) SetQueueDepth(depth int) {
	pm.queueDepth.Set(float64(depth))
}

// Snapshot reads the current counter values
func (pm *PrometheusMetrics) Snapshot() Snapshot {
	var rejected float64
	for _, reason := range rejectReasons {
		rejected += pm.getCounterValue(pm.eventsRejectedTotal.WithLabelValues(reason))
	}

	return Snapshot{
		Submitted: uint64(pm.getCounterValue(pm.eventsSubmittedTotal)),
		Delivered: uint64(pm.getCounterValue(pm.eventsDeliveredTotal)),
		Failed:    uint64(pm.getCounterValue(pm.eventsFailedTotal)),
		Rejected:  uint64(rejected),
		Abandoned: uint64(pm.getCounterValue(pm.eventsAbandonedTotal)),
	}
}

func (pm *PrometheusMetrics) ServeHTTP(ctx *fasthttp.RequestCtx) {
	pm.httpHandler(ctx)
}

func (pm *PrometheusMetrics) getCounterValue(counter prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		pm.logger.Warn("Failed to read counter value", zap.Error(err))
		return 0
	}
	return metric.GetCounter().GetValue()
}
