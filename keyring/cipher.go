package keyring

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hengadev/dbcrypt"
	"github.com/hengadev/dbcrypt/internal/crypto"
	"github.com/hengadev/dbcrypt/internal/serialization"
)

const versionPrefix = "v"

// Cipher is a dbcrypt.Cipher sealing values with the current DEK of a
// Keyring. Ciphertext records the DEK version as its key ID, so values sealed
// before a rotation keep decrypting.
type Cipher struct {
	ring *Keyring
	data *crypto.DataEncryption
}

var (
	_ dbcrypt.Cipher        = (*Cipher)(nil)
	_ dbcrypt.RotationAware = (*Cipher)(nil)
)

func NewCipher(ring *Keyring) *Cipher {
	return &Cipher{ring: ring, data: crypto.NewDataEncryption()}
}

func (c *Cipher) Encrypt(ctx context.Context, value any) (string, error) {
	plaintext, err := serialization.Encode(value)
	if err != nil {
		return "", fmt.Errorf("%w: %w", dbcrypt.ErrEncryptionFailed, err)
	}
	version, dek, err := c.ring.currentKey(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", dbcrypt.ErrEncryptionFailed, err)
	}
	out, err := crypto.Seal(ctx, c.data, keyID(version), dek, plaintext)
	if err != nil {
		return "", fmt.Errorf("%w: %w", dbcrypt.ErrEncryptionFailed, err)
	}
	return out, nil
}

func (c *Cipher) Decrypt(ctx context.Context, ciphertext string) (any, error) {
	p, err := crypto.ParsePayload(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDecryptionFailed, dbcrypt.NewInvalidFormatError("payload", dbcrypt.ActionDecrypt))
	}
	version, err := parseKeyID(p.KeyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDecryptionFailed, err)
	}
	dek, err := c.ring.key(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDecryptionFailed, err)
	}
	plaintext, err := crypto.Open(ctx, c.data, p, dek)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDecryptionFailed, err)
	}
	value, err := serialization.Decode(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDecryptionFailed, err)
	}
	return value, nil
}

// IsCurrent reports whether ciphertext was sealed with the current DEK version.
func (c *Cipher) IsCurrent(ciphertext string) bool {
	p, err := crypto.ParsePayload(ciphertext)
	return err == nil && p.KeyID == keyID(c.ring.CurrentVersion())
}

// CiphertextVersion returns the DEK version recorded in ciphertext.
func CiphertextVersion(ciphertext string) (int, error) {
	p, err := crypto.ParsePayload(ciphertext)
	if err != nil {
		return 0, dbcrypt.NewInvalidFormatError("payload", dbcrypt.ActionDecrypt)
	}
	return parseKeyID(p.KeyID)
}

func keyID(version int) string {
	return versionPrefix + strconv.Itoa(version)
}

func parseKeyID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, versionPrefix))
	if err != nil || !strings.HasPrefix(id, versionPrefix) || n < 1 {
		return 0, fmt.Errorf("%w: key '%s'", dbcrypt.ErrUnknownKeyVersion, id)
	}
	return n, nil
}
