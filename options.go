package dbcrypt

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hengadev/dbcrypt/internal/monitoring"
)

// Option configures NewTransformer, NewEntityType and LoadEntityTypes.
type Option func(s *settings) error

type settings struct {
	logger     *zap.Logger
	hooks      []ObservabilityHook
	castBypass bool
}

// WithLogger sets the logger. Failed transforms are logged at warn level.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfiguration)
		}
		s.logger = logger
		return nil
	}
}

// WithObservabilityHook adds a hook notified of every transform and key operation.
func WithObservabilityHook(hook ObservabilityHook) Option {
	return func(s *settings) error {
		if hook == nil {
			return fmt.Errorf("%w: observability hook cannot be nil", ErrInvalidConfiguration)
		}
		s.hooks = append(s.hooks, hook)
		return nil
	}
}

// WithMetricsCollector reports transform counts and timings to collector.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(s *settings) error {
		if collector == nil {
			return fmt.Errorf("%w: metrics collector cannot be nil", ErrInvalidConfiguration)
		}
		s.hooks = append(s.hooks, monitoring.NewMetricsObservabilityHook(collector))
		return nil
	}
}

// WithCastBypass accepts encryptable fields that are also enum, class or JSON
// cast, or that have a set mutator. Writes to such fields go through the cast
// or mutator and are stored unencrypted. Each conflict is logged as a warning
// when the entity type is built.
func WithCastBypass() Option {
	return func(s *settings) error {
		s.castBypass = true
		return nil
	}
}

func applyOptions(options []Option) (*settings, error) {
	s := &settings{}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *settings) zapLogger() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

func (s *settings) observabilityHook() ObservabilityHook {
	hooks := append([]ObservabilityHook{monitoring.NewLoggingObservabilityHook(s.zapLogger())}, s.hooks...)
	return monitoring.NewCompositeObservabilityHook(hooks...)
}
