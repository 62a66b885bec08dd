// Package metrics defines the narrow boundary the lifecycle manager
// reports through. A real exporter (Prometheus,
// Datadog, ...) is out of scope for this system (spec.md §1 Non-goals);
// Sink exists so that boundary is explicit rather than calls to a
// concrete client scattered through business logic.
package metrics

import (
	"go.uber.org/zap"

	"github.com/Abhii8084/token-price-storage-system/internal/logger"
)

// Sink receives point-in-time counters and gauges. Implementations may
// forward them to a real backend; the default LogSink just logs them,
// which is enough for the cache-stat and queue-depth sampling this system
// performs (SPEC_FULL.md §4.7 metricsCollection).
type Sink interface {
	Gauge(name string, value float64, tags map[string]string)
	Count(name string, value int64, tags map[string]string)
}

// LogSink writes every sample through the structured logger. It is the
// only Sink this repo ships, matching spec.md's decision to leave metrics
// export to the operator's own stack.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (LogSink) Gauge(name string, value float64, tags map[string]string) {
	logger.Info("metric.gauge", zap.String("name", name), zap.Float64("value", value), zap.Any("tags", tags))
}

func (LogSink) Count(name string, value int64, tags map[string]string) {
	logger.Info("metric.count", zap.String("name", name), zap.Int64("value", value), zap.Any("tags", tags))
}
