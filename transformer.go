package dbcrypt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hengadev/dbcrypt/internal/monitoring"
)

// Outcome reports what a transform did with its input.
type Outcome int

const (
	// NotEncryptable means the field is not in the encryptable set and the
	// cipher was not consulted.
	NotEncryptable Outcome = iota
	// Transformed means the cipher succeeded and Value is its output.
	Transformed
	// PassthroughEmpty means the input was nil or "" and was returned as-is.
	PassthroughEmpty
	// PassthroughFailed means the cipher failed and the input was returned as-is.
	PassthroughFailed
)

func (o Outcome) String() string {
	switch o {
	case NotEncryptable:
		return "not_encryptable"
	case Transformed:
		return "transformed"
	case PassthroughEmpty:
		return "passthrough_empty"
	case PassthroughFailed:
		return "passthrough_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of one transform. Err is set only for PassthroughFailed
// and is informational: the caller is expected to carry on with Value.
type Result struct {
	Value   any
	Outcome Outcome
	Err     error
}

// Transformer wraps a Cipher with fail-open semantics: it never returns an
// error, and on failure hands back the value it was given.
type Transformer struct {
	cipher Cipher
	hook   ObservabilityHook
}

// NewTransformer returns a Transformer using cipher.
func NewTransformer(cipher Cipher, options ...Option) (*Transformer, error) {
	if cipher == nil {
		return nil, fmt.Errorf("%w: cipher is required", ErrInvalidConfiguration)
	}
	s, err := applyOptions(options)
	if err != nil {
		return nil, err
	}
	return &Transformer{cipher: cipher, hook: s.observabilityHook()}, nil
}

// Encrypt encrypts value. Nil and empty strings are returned without calling
// the cipher.
func (t *Transformer) Encrypt(ctx context.Context, value any) Result {
	return t.encrypt(ctx, "", "", value)
}

// Decrypt decrypts value. Anything but a non-empty string cannot be ciphertext
// and is returned unchanged with PassthroughFailed.
func (t *Transformer) Decrypt(ctx context.Context, value any) Result {
	return t.decrypt(ctx, "", "", value)
}

// Cipher returns the underlying cipher.
func (t *Transformer) Cipher() Cipher { return t.cipher }

func (t *Transformer) encrypt(ctx context.Context, entity, field string, value any) Result {
	if isEmpty(value) {
		return Result{Value: value, Outcome: PassthroughEmpty}
	}
	start := time.Now()
	out, err := t.cipher.Encrypt(ctx, value)
	r := Result{Value: out, Outcome: Transformed}
	if err != nil {
		r = Result{Value: value, Outcome: PassthroughFailed, Err: wrapIfNot(err, ErrEncryptionFailed)}
	}
	t.report(ctx, ActionEncrypt, entity, field, time.Since(start), r)
	return r
}

func (t *Transformer) decrypt(ctx context.Context, entity, field string, value any) Result {
	if isEmpty(value) {
		return Result{Value: value, Outcome: PassthroughEmpty}
	}
	start := time.Now()
	s, ok := value.(string)
	if !ok {
		r := Result{
			Value:   value,
			Outcome: PassthroughFailed,
			Err:     fmt.Errorf("%w: stored value is %T, not a ciphertext string", ErrDecryptionFailed, value),
		}
		t.report(ctx, ActionDecrypt, entity, field, time.Since(start), r)
		return r
	}
	out, err := t.cipher.Decrypt(ctx, s)
	r := Result{Value: out, Outcome: Transformed}
	if err != nil {
		r = Result{Value: value, Outcome: PassthroughFailed, Err: wrapIfNot(err, ErrDecryptionFailed)}
	}
	t.report(ctx, ActionDecrypt, entity, field, time.Since(start), r)
	return r
}

func (t *Transformer) report(ctx context.Context, action Action, entity, field string, d time.Duration, r Result) {
	t.hook.OnTransform(ctx, monitoring.TransformEvent{
		Operation: string(action),
		Entity:    entity,
		Field:     field,
		Outcome:   r.Outcome.String(),
		Duration:  d,
		Err:       r.Err,
	})
}

func isEmpty(v any) bool {
	return v == nil || v == ""
}

func wrapIfNot(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
