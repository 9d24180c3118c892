package metrics

import (
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/eventrelay/internal/connection"
)

var _ connection.Recorder = (*MetricsCollector)(nil)

// MetricsCollector records async delivery metrics. It satisfies connection.Recorder.
type MetricsCollector struct {
	prometheus *PrometheusMetrics
	logger     *zap.Logger
}

func NewMetricsCollector(namespace string, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		prometheus: NewPrometheusMetrics(namespace, logger),
		logger:     logger,
	}
}

func (mc *MetricsCollector) RecordSubmitted() {
	mc.prometheus.RecordSubmitted()
}

func (mc *MetricsCollector) RecordRejected(reason string) {
	mc.prometheus.RecordRejected(reason)

	mc.logger.Debug("Recorded rejected event metric",
		zap.String("reason", reason))
}

func (mc *MetricsCollector) RecordDelivered(duration time.Duration) {
	mc.prometheus.RecordDelivered(duration.Seconds())
}

func (mc *MetricsCollector) RecordFailed(duration time.Duration) {
	mc.prometheus.RecordFailed(duration.Seconds())

	mc.logger.Debug("Recorded failed delivery metric",
		zap.Duration("duration", duration))
}

func (mc *MetricsCollector) RecordAbandoned(count int) {
	mc.prometheus.RecordAbandoned(count)

	mc.logger.Debug("Recorded abandoned events metric",
		zap.Int("count", count))
}

func (mc *MetricsCollector) SetQueueDepth(depth int) {
	mc.prometheus.SetQueueDepth(depth)
}

// Snapshot returns the current counter values
func (mc *MetricsCollector) Snapshot() Snapshot {
	return mc.prometheus.Snapshot()
}

func (mc *MetricsCollector) ServeHTTP(ctx *fasthttp.RequestCtx) {
	mc.prometheus.ServeHTTP(ctx)
}
