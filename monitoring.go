package dbcrypt

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hengadev/dbcrypt/internal/monitoring"
)

type (
	// ObservabilityHook is notified of transforms, errors and key operations.
	ObservabilityHook = monitoring.ObservabilityHook
	// TransformEvent describes one encrypt or decrypt attempt.
	TransformEvent = monitoring.TransformEvent
	// MetricsCollector receives counters, gauges and timings.
	MetricsCollector = monitoring.MetricsCollector
	// InMemoryMetricsCollector keeps metrics in memory for tests.
	InMemoryMetricsCollector = monitoring.InMemoryMetricsCollector
	// PrometheusCollector exports metrics as Prometheus series.
	PrometheusCollector = monitoring.PrometheusCollector
)

// NewLoggingHook returns a hook that logs through logger.
func NewLoggingHook(logger *zap.Logger) ObservabilityHook {
	return monitoring.NewLoggingObservabilityHook(logger)
}

// NewMetricsHook returns a hook that reports to collector.
func NewMetricsHook(collector MetricsCollector) ObservabilityHook {
	return monitoring.NewMetricsObservabilityHook(collector)
}

// NewCompositeHook returns a hook forwarding every call to hooks in order.
func NewCompositeHook(hooks ...ObservabilityHook) ObservabilityHook {
	return monitoring.NewCompositeObservabilityHook(hooks...)
}

func NewInMemoryMetricsCollector() *InMemoryMetricsCollector {
	return monitoring.NewInMemoryMetricsCollector()
}

// NewPrometheusCollector registers the dbcrypt series with reg.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	return monitoring.NewPrometheusCollector(reg)
}
