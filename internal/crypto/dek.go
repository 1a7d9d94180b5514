package crypto

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
)

// KeySize is the AES-256 key size in bytes.
const KeySize = 32

// DEKOperations handles Data Encryption Key operations
type DEKOperations struct {
	kmsService KeyManagementService
	kekAlias   string
}

// KeyManagementService defines the interface for KMS operations needed by crypto package
type KeyManagementService interface {
	EncryptDEK(ctx context.Context, keyID string, plaintext []byte) ([]byte, error)
	DecryptDEK(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error)
}

// KMSVersionManager resolves KEK versions to KMS key IDs.
type KMSVersionManager interface {
	GetKMSKeyIDForVersion(ctx context.Context, alias string, version int) (string, error)
}

// NewDEKOperations creates a new DEKOperations instance
func NewDEKOperations(kmsService KeyManagementService, kekAlias string) *DEKOperations {
	return &DEKOperations{
		kmsService: kmsService,
		kekAlias:   kekAlias,
	}
}

// GenerateDEK generates a new Data Encryption Key.
func (d *DEKOperations) GenerateDEK() ([]byte, error) {
	return GenerateKey()
}

// EncryptDEK wraps the DEK with the KEK of the given version.
func (d *DEKOperations) EncryptDEK(ctx context.Context, plaintextDEK []byte, kekVersion int, versionManager KMSVersionManager) ([]byte, error) {
	kmsKeyID, err := versionManager.GetKMSKeyIDForVersion(ctx, d.kekAlias, kekVersion)
	if err != nil {
		return nil, err
	}
	ciphertextDEK, err := d.kmsService.EncryptDEK(ctx, kmsKeyID, plaintextDEK)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt DEK with KMS (version %d): %w", kekVersion, err)
	}
	return ciphertextDEK, nil
}

// DecryptDEKWithVersion unwraps a DEK using the KEK version it was encrypted with.
func (d *DEKOperations) DecryptDEKWithVersion(ctx context.Context, ciphertextDEK []byte, kekVersion int, versionManager KMSVersionManager) ([]byte, error) {
	kmsKeyID, err := versionManager.GetKMSKeyIDForVersion(ctx, d.kekAlias, kekVersion)
	if err != nil {
		return nil, err
	}
	plaintextDEK, err := d.kmsService.DecryptDEK(ctx, kmsKeyID, ciphertextDEK)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt DEK with KMS (version %d): %w", kekVersion, err)
	}
	if len(plaintextDEK) != KeySize {
		return nil, fmt.Errorf("unwrapped DEK has %d bytes, want %d", len(plaintextDEK), KeySize)
	}
	return plaintextDEK, nil
}

// GenerateKey returns KeySize random bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}
