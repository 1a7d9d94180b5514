package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// hkdfInfo scopes derived subkeys to field encryption.
const hkdfInfo = "dbcrypt field encryption v1"

// DeriveKey derives the field encryption key from an application key. The
// application key itself is never used directly with AES.
func DeriveKey(master []byte) ([]byte, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(master))
	}
	r := hkdf.New(sha256.New, master, nil, []byte(hkdfInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// Fingerprint returns a short, stable identifier of key suitable for storing
// next to ciphertext. It reveals nothing usable about the key.
func Fingerprint(key []byte) string {
	sum := sha256.Sum256(append([]byte("dbcrypt kid:"), key...))
	return hex.EncodeToString(sum[:6])
}
