package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TransformEvent describes one encrypt or decrypt attempt on a field.
type TransformEvent struct {
	Operation string // "encrypt" or "decrypt"
	Entity    string
	Field     string
	Outcome   string
	Duration  time.Duration
	Err       error
}

// ObservabilityHook defines hooks for monitoring field transforms and key operations
type ObservabilityHook interface {
	// Called after every transform attempt, whatever its outcome
	OnTransform(ctx context.Context, event TransformEvent)

	// Called when errors occur outside of a transform
	OnError(ctx context.Context, operation string, err error, metadata map[string]any)

	// Called for key operations
	OnKeyOperation(ctx context.Context, operation string, keyAlias string, keyVersion int, metadata map[string]any)
}

// NoOpObservabilityHook is a no-op implementation of ObservabilityHook
type NoOpObservabilityHook struct{}

func (n *NoOpObservabilityHook) OnTransform(ctx context.Context, event TransformEvent) {}
func (n *NoOpObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
}
func (n *NoOpObservabilityHook) OnKeyOperation(ctx context.Context, operation string, keyAlias string, keyVersion int, metadata map[string]any) {
}

// LoggingObservabilityHook logs all operations through zap. Failed transforms
// are logged at warn level, successful ones at debug level.
type LoggingObservabilityHook struct {
	logger *zap.Logger
}

// NewLoggingObservabilityHook creates a new logging observability hook
func NewLoggingObservabilityHook(logger *zap.Logger) *LoggingObservabilityHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObservabilityHook{
		logger: logger,
	}
}

func (l *LoggingObservabilityHook) OnTransform(ctx context.Context, event TransformEvent) {
	fields := []zap.Field{
		zap.String("operation", event.Operation),
		zap.String("entity", event.Entity),
		zap.String("field", event.Field),
		zap.String("outcome", event.Outcome),
		zap.Duration("duration", event.Duration),
	}
	if event.Err != nil {
		l.logger.Warn("field transform failed, passing value through", append(fields, zap.Error(event.Err))...)
		return
	}
	l.logger.Debug("field transform", fields...)
}

func (l *LoggingObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	l.logger.Error("operation error", zap.String("operation", operation), zap.Error(err), zap.Any("metadata", metadata))
}

func (l *LoggingObservabilityHook) OnKeyOperation(ctx context.Context, operation string, keyAlias string, keyVersion int, metadata map[string]any) {
	l.logger.Info("key operation",
		zap.String("operation", operation),
		zap.String("key_alias", keyAlias),
		zap.Int("key_version", keyVersion),
		zap.Any("metadata", metadata),
	)
}

// MetricsObservabilityHook collects metrics for operations
type MetricsObservabilityHook struct {
	collector MetricsCollector
}

// NewMetricsObservabilityHook creates a new metrics observability hook
func NewMetricsObservabilityHook(collector MetricsCollector) *MetricsObservabilityHook {
	if collector == nil {
		collector = &NoOpMetricsCollector{}
	}
	return &MetricsObservabilityHook{
		collector: collector,
	}
}

func (m *MetricsObservabilityHook) OnTransform(ctx context.Context, event TransformEvent) {
	tags := map[string]string{
		"operation": event.Operation,
		"entity":    event.Entity,
		"outcome":   event.Outcome,
	}
	m.collector.IncrementCounter(MetricTransforms, tags)
	m.collector.RecordTiming(MetricTransformDuration, event.Duration, map[string]string{"operation": event.Operation})
}

func (m *MetricsObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	tags := map[string]string{
		"operation": operation,
		"error":     fmt.Sprintf("%T", err),
	}
	m.collector.IncrementCounter(MetricErrors, tags)
}

func (m *MetricsObservabilityHook) OnKeyOperation(ctx context.Context, operation string, keyAlias string, keyVersion int, metadata map[string]any) {
	m.collector.IncrementCounter(MetricKeyOperations, map[string]string{
		"operation": operation,
		"key_alias": keyAlias,
	})
	m.collector.SetGauge(MetricKeyVersion, float64(keyVersion), map[string]string{"key_alias": keyAlias})
}

// CompositeObservabilityHook combines multiple hooks
type CompositeObservabilityHook struct {
	hooks []ObservabilityHook
}

// NewCompositeObservabilityHook creates a new composite hook
func NewCompositeObservabilityHook(hooks ...ObservabilityHook) *CompositeObservabilityHook {
	return &CompositeObservabilityHook{
		hooks: hooks,
	}
}

func (c *CompositeObservabilityHook) OnTransform(ctx context.Context, event TransformEvent) {
	for _, hook := range c.hooks {
		hook.OnTransform(ctx, event)
	}
}

func (c *CompositeObservabilityHook) OnError(ctx context.Context, operation string, err error, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnError(ctx, operation, err, metadata)
	}
}

func (c *CompositeObservabilityHook) OnKeyOperation(ctx context.Context, operation string, keyAlias string, keyVersion int, metadata map[string]any) {
	for _, hook := range c.hooks {
		hook.OnKeyOperation(ctx, operation, keyAlias, keyVersion, metadata)
	}
}
