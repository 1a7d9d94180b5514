package dbcrypt

import "context"

// Cipher is the crypto service used by the interceptor.
//
// Encrypt turns a plaintext storage scalar into an opaque ciphertext string.
// Decrypt reverses it and returns the original typed value. Errors should wrap
// ErrEncryptionFailed or ErrDecryptionFailed. The interceptor never lets these
// errors reach application code; it falls back to the untransformed value.
//
// Implementations:
//   - Static application key: dbcrypt.KeyCipher
//   - Envelope encryption with KMS-wrapped data keys: keyring.Cipher
//
// Implementations must be safe for concurrent use.
type Cipher interface {
	Encrypt(ctx context.Context, value any) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (any, error)
}

// RotationAware is implemented by ciphers that can tell whether a ciphertext
// was sealed with their current key. Entity.Reencrypt uses it to skip values
// that are already up to date.
type RotationAware interface {
	IsCurrent(ciphertext string) bool
}

// KeyManagementService defines the contract for cryptographic key operations.
//
// This interface is implemented by KMS providers (AWS KMS, HashiCorp Vault Transit Engine,
// in-memory for tests) and handles cryptographic operations with Key Encryption Keys (KEKs):
//   - Managing KEK lifecycle (creation, retrieval)
//   - Encrypting Data Encryption Keys (DEKs) with KEKs
//   - Decrypting DEKs that were encrypted with KEKs
//
// Implementations:
//   - AWS KMS: github.com/hengadev/dbcrypt/providers/awskms.KMSService
//   - HashiCorp Vault Transit: github.com/hengadev/dbcrypt/providers/hashicorp.TransitService
//   - In-memory: github.com/hengadev/dbcrypt/providers/memory.KMS
//
// Example usage:
//
//	kms, err := awskms.New(ctx, awskms.Config{Region: "us-east-1"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ring, err := keyring.Open(ctx, kms, "alias/myapp-kek", keyring.WithDBPath(".dbcrypt"))
type KeyManagementService interface {
	// GetKeyID resolves a key alias to a key ID.
	//
	// For AWS KMS, this resolves an alias like "alias/my-key" to the underlying key ID.
	// For Vault Transit, this returns the key name once the key exists.
	GetKeyID(ctx context.Context, alias string) (string, error)

	// CreateKey creates a new symmetric encryption key in the KMS and returns its ID.
	// The key remains in the KMS and is never exposed.
	CreateKey(ctx context.Context, description string) (string, error)

	// EncryptDEK encrypts a Data Encryption Key using the KMS key identified by keyID.
	EncryptDEK(ctx context.Context, keyID string, plaintext []byte) ([]byte, error)

	// DecryptDEK decrypts a Data Encryption Key that was encrypted by EncryptDEK.
	DecryptDEK(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error)
}
