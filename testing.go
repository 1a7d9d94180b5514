package dbcrypt

// This file provides cipher doubles for tests of code built on dbcrypt.

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/hengadev/dbcrypt/internal/crypto"
)

// NewTestKeyCipher returns a KeyCipher using a fresh random key.
func NewTestKeyCipher(t testing.TB) *KeyCipher {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	c, err := NewKeyCipher(key)
	if err != nil {
		t.Fatalf("create test cipher: %v", err)
	}
	return c
}

// FailingCipher fails every call. It stands in for a missing key or an
// unreachable KMS.
type FailingCipher struct {
	Err error
}

func (f FailingCipher) err() error {
	if f.Err != nil {
		return f.Err
	}
	return errors.New("cipher unavailable")
}

func (f FailingCipher) Encrypt(ctx context.Context, value any) (string, error) {
	return "", errors.Join(ErrEncryptionFailed, f.err())
}

func (f FailingCipher) Decrypt(ctx context.Context, ciphertext string) (any, error) {
	return nil, errors.Join(ErrDecryptionFailed, f.err())
}

// CountingCipher wraps a Cipher and counts the calls made to it.
type CountingCipher struct {
	Cipher   Cipher
	encrypts atomic.Int64
	decrypts atomic.Int64
}

func (c *CountingCipher) Encrypt(ctx context.Context, value any) (string, error) {
	c.encrypts.Add(1)
	return c.Cipher.Encrypt(ctx, value)
}

func (c *CountingCipher) Decrypt(ctx context.Context, ciphertext string) (any, error) {
	c.decrypts.Add(1)
	return c.Cipher.Decrypt(ctx, ciphertext)
}

func (c *CountingCipher) Encrypts() int64 { return c.encrypts.Load() }

func (c *CountingCipher) Decrypts() int64 { return c.decrypts.Load() }

// Reset zeroes both counters.
func (c *CountingCipher) Reset() {
	c.encrypts.Store(0)
	c.decrypts.Store(0)
}
