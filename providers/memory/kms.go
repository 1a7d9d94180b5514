// Package memory provides an in-process KeyManagementService for tests,
// local development and the CLI's "memory" provider.
//
// Key encryption keys live only in process memory: anything wrapped by one KMS
// value cannot be unwrapped after the process exits. Do not use it for data
// that must survive a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/hengadev/dbcrypt"
	"github.com/hengadev/dbcrypt/internal/crypto"
)

// KMS is an in-memory implementation of dbcrypt.KeyManagementService. DEKs are
// wrapped with AES-256-GCM under randomly generated keys.
type KMS struct {
	mu          sync.RWMutex
	keys        map[string][]byte
	aliases     map[string]string
	nextKeyID   int
	unavailable bool
	data        *crypto.DataEncryption
}

var _ dbcrypt.KeyManagementService = (*KMS)(nil)

func New() *KMS {
	return &KMS{
		keys:    make(map[string][]byte),
		aliases: make(map[string]string),
		data:    crypto.NewDataEncryption(),
	}
}

// SetUnavailable makes every call fail with dbcrypt.ErrKMSUnavailable until
// it is called again with false.
func (k *KMS) SetUnavailable(unavailable bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.unavailable = unavailable
}

func (k *KMS) GetKeyID(ctx context.Context, alias string) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.unavailable {
		return "", dbcrypt.ErrKMSUnavailable
	}
	if keyID, exists := k.aliases[alias]; exists {
		return keyID, nil
	}
	return "", fmt.Errorf("%w: key for alias '%s'", dbcrypt.ErrNotFound, alias)
}

// CreateKey creates a new key and points the alias named by description at it.
func (k *KMS) CreateKey(ctx context.Context, description string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.unavailable {
		return "", dbcrypt.ErrKMSUnavailable
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}
	k.nextKeyID++
	keyID := fmt.Sprintf("memory-key-%d", k.nextKeyID)
	k.keys[keyID] = key
	k.aliases[description] = keyID
	return keyID, nil
}

func (k *KMS) EncryptDEK(ctx context.Context, keyID string, plaintext []byte) ([]byte, error) {
	key, err := k.key(keyID)
	if err != nil {
		return nil, err
	}
	out, err := k.data.EncryptData(ctx, plaintext, key, []byte(keyID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrEncryptionFailed, err)
	}
	return out, nil
}

func (k *KMS) DecryptDEK(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	key, err := k.key(keyID)
	if err != nil {
		return nil, err
	}
	out, err := k.data.DecryptData(ctx, ciphertext, key, []byte(keyID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDecryptionFailed, err)
	}
	return out, nil
}

// KeyCount returns the number of keys created so far.
func (k *KMS) KeyCount() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

func (k *KMS) key(keyID string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.unavailable {
		return nil, dbcrypt.ErrKMSUnavailable
	}
	key, exists := k.keys[keyID]
	if !exists {
		return nil, fmt.Errorf("%w: key '%s'", dbcrypt.ErrNotFound, keyID)
	}
	return key, nil
}
