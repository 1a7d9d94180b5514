package keyring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hengadev/dbcrypt"
	"github.com/hengadev/dbcrypt/internal/reliability"
)

// ResilienceConfig enables retries and a circuit breaker around KMS calls.
// Only errors reported as retryable by dbcrypt.IsRetryableError are retried
// or counted by the breaker.
type ResilienceConfig struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	FailureThreshold int
	OpenTimeout      time.Duration
}

// WithResilience wraps the KMS with retries and a circuit breaker.
func WithResilience(cfg ResilienceConfig) Option {
	return func(o *options) error {
		if cfg.MaxAttempts < 0 || cfg.FailureThreshold < 0 {
			return fmt.Errorf("resilience limits cannot be negative")
		}
		o.resilience = &cfg
		return nil
	}
}

// resilientKMS runs every KMS call through a circuit breaker and retrier.
type resilientKMS struct {
	next    dbcrypt.KeyManagementService
	retrier *reliability.Retrier
	breaker *reliability.CircuitBreaker
}

func newResilientKMS(next dbcrypt.KeyManagementService, alias string, cfg ResilienceConfig, logger *zap.Logger) *resilientKMS {
	retrier := reliability.NewRetrier(reliability.RetryConfig{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		ShouldRetry: func(err error) bool {
			return dbcrypt.IsRetryableError(err) && !errors.Is(err, reliability.ErrCircuitOpen)
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logger.Warn("retrying KMS call",
				zap.String("key_alias", alias),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		},
	})
	breaker := reliability.NewCircuitBreaker(alias, reliability.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		Timeout:          cfg.OpenTimeout,
		ShouldTrip:       dbcrypt.IsRetryableError,
		OnStateChange: func(name string, from, to reliability.CircuitState) {
			logger.Warn("KMS circuit state changed",
				zap.String("key_alias", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})
	return &resilientKMS{next: next, retrier: retrier, breaker: breaker}
}

func (r *resilientKMS) do(ctx context.Context, fn func(context.Context) error) error {
	return r.retrier.Execute(ctx, func(ctx context.Context) error {
		err := r.breaker.Execute(ctx, fn)
		if errors.Is(err, reliability.ErrCircuitOpen) {
			return fmt.Errorf("%w: %w", dbcrypt.ErrKMSUnavailable, err)
		}
		return err
	})
}

func (r *resilientKMS) GetKeyID(ctx context.Context, alias string) (id string, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		id, err = r.next.GetKeyID(ctx, alias)
		return err
	})
	return id, err
}

func (r *resilientKMS) CreateKey(ctx context.Context, description string) (id string, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		id, err = r.next.CreateKey(ctx, description)
		return err
	})
	return id, err
}

func (r *resilientKMS) EncryptDEK(ctx context.Context, keyID string, plaintext []byte) (out []byte, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		out, err = r.next.EncryptDEK(ctx, keyID, plaintext)
		return err
	})
	return out, err
}

func (r *resilientKMS) DecryptDEK(ctx context.Context, keyID string, ciphertext []byte) (out []byte, err error) {
	err = r.do(ctx, func(ctx context.Context) error {
		out, err = r.next.DecryptDEK(ctx, keyID, ciphertext)
		return err
	})
	return out, err
}
