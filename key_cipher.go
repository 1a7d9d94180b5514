package dbcrypt

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/hengadev/errsx"

	"github.com/hengadev/dbcrypt/internal/crypto"
	"github.com/hengadev/dbcrypt/internal/serialization"
)

// KeyPrefix marks a base64 encoded application key, as in "base64:...".
const KeyPrefix = "base64:"

type derivedKey struct {
	id  string
	key []byte
}

// KeyCipher encrypts values with a static application key. Ciphertext records
// the fingerprint of the key that produced it, so values written under a
// retired key still decrypt as long as that key is listed as previous.
type KeyCipher struct {
	current  derivedKey
	keys     map[string]derivedKey
	data     *crypto.DataEncryption
	previous int
}

// KeyCipherOption configures a KeyCipher.
type KeyCipherOption func(c *KeyCipher) error

// WithPreviousKeys adds retired application keys accepted for decryption.
func WithPreviousKeys(keys ...[]byte) KeyCipherOption {
	return func(c *KeyCipher) error {
		for i, k := range keys {
			dk, err := deriveKey(k)
			if err != nil {
				return fmt.Errorf("previous key %d: %w", i+1, err)
			}
			if _, exists := c.keys[dk.id]; exists {
				continue
			}
			c.keys[dk.id] = dk
			c.previous++
		}
		return nil
	}
}

// NewKeyCipher returns a cipher sealing new values with appKey, which must be
// KeyLength bytes.
func NewKeyCipher(appKey []byte, options ...KeyCipherOption) (*KeyCipher, error) {
	current, err := deriveKey(appKey)
	if err != nil {
		return nil, err
	}
	c := &KeyCipher{
		current: current,
		keys:    map[string]derivedKey{current.id: current},
		data:    crypto.NewDataEncryption(),
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
	}
	return c, nil
}

func deriveKey(appKey []byte) (derivedKey, error) {
	if len(appKey) != KeyLength {
		return derivedKey{}, fmt.Errorf("%w: application key must be %d bytes, got %d", ErrInvalidKey, KeyLength, len(appKey))
	}
	k, err := crypto.DeriveKey(appKey)
	if err != nil {
		return derivedKey{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return derivedKey{id: crypto.Fingerprint(appKey), key: k}, nil
}

// KeyID returns the fingerprint of the current application key.
func (c *KeyCipher) KeyID() string { return c.current.id }

// PreviousKeyCount returns how many retired keys are accepted for decryption.
func (c *KeyCipher) PreviousKeyCount() int { return c.previous }

func (c *KeyCipher) Encrypt(ctx context.Context, value any) (string, error) {
	plaintext, err := serialization.Encode(value)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}
	out, err := crypto.Seal(ctx, c.data, c.current.id, c.current.key, plaintext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}
	return out, nil
}

func (c *KeyCipher) Decrypt(ctx context.Context, ciphertext string) (any, error) {
	p, err := crypto.ParsePayload(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, NewInvalidFormatError("payload", ActionDecrypt))
	}
	k, ok := c.keys[p.KeyID]
	if !ok {
		return nil, fmt.Errorf("%w: %w: key '%s'", ErrDecryptionFailed, ErrUnknownKeyVersion, p.KeyID)
	}
	plaintext, err := crypto.Open(ctx, c.data, p, k.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	value, err := serialization.Decode(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	}
	return value, nil
}

// IsCurrent reports whether ciphertext was sealed with the current key.
func (c *KeyCipher) IsCurrent(ciphertext string) bool {
	p, err := crypto.ParsePayload(ciphertext)
	return err == nil && p.KeyID == c.current.id
}

// ParseKey decodes a base64 application key, with or without KeyPrefix.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), KeyPrefix)
	if s == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64: %w", ErrInvalidKey, err)
	}
	if len(key) != KeyLength {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrInvalidKey, KeyLength, len(key))
	}
	return key, nil
}

// GenerateAppKey returns a new random application key encoded with KeyPrefix.
func GenerateAppKey() (string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	return KeyPrefix + base64.StdEncoding.EncodeToString(key), nil
}

// NewKeyCipherFromStrings builds a KeyCipher from encoded keys as found in
// configuration.
func NewKeyCipherFromStrings(appKey string, previous []string) (*KeyCipher, error) {
	current, err := ParseKey(appKey)
	if err != nil {
		return nil, err
	}
	errs := errsx.Map{}
	prev := make([][]byte, 0, len(previous))
	for i, p := range previous {
		k, err := ParseKey(p)
		if err != nil {
			errs.Set(fmt.Sprintf("previous key %d", i+1), err)
			continue
		}
		prev = append(prev, k)
	}
	if err := errs.AsError(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return NewKeyCipher(current, WithPreviousKeys(prev...))
}
