package dbcrypt

import (
	"errors"
	"fmt"
)

var (
	// High-level service errors
	ErrKMSUnavailable       = errors.New("KMS service unavailable")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrEncryptionFailed     = errors.New("encryption failed")
	ErrDecryptionFailed     = errors.New("decryption failed")
	ErrDatabaseUnavailable  = errors.New("database unavailable")

	// Key errors
	ErrUnknownKeyVersion = errors.New("unknown key version")
	ErrInvalidKey        = errors.New("invalid key")

	// Attribute errors
	ErrEncryptedPathWrite = errors.New("dotted write into encrypted column")
	ErrNotFound           = errors.New("not found")

	// Operation errors
	ErrOperationFailed = errors.New("operation failed")
	ErrInvalidFormat   = errors.New("invalid format")
)

// Action names the operation an error occurred in.
type Action string

const (
	ActionEncrypt Action = "encrypt"
	ActionDecrypt Action = "decrypt"
	ActionRotate  Action = "rotate"
)

func NewOperationFailedError(field string, action Action, details string) error {
	if details != "" {
		return fmt.Errorf("%w: %s operation failed for field '%s': %s",
			ErrOperationFailed, action, field, details)
	}
	return fmt.Errorf("%w: %s operation failed for field '%s'",
		ErrOperationFailed, action, field)
}

func NewInvalidFormatError(formatName string, action Action) error {
	return fmt.Errorf("%w: payload is not valid %s for %s operation",
		ErrInvalidFormat, formatName, action)
}

func NewEncryptedPathWriteError(key, column string) error {
	return fmt.Errorf("%w: '%s' targets encrypted column '%s'", ErrEncryptedPathWrite, key, column)
}

// IsRetryableError returns true if the error represents a transient failure that might succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrKMSUnavailable) ||
		errors.Is(err, ErrDatabaseUnavailable)
}

// IsConfigurationError returns true if the error represents a configuration problem.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrEncryptedPathWrite)
}

// IsAuthError returns true if the error represents an authentication problem.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

// IsOperationError returns true if the error represents a failure during encryption/decryption operations.
func IsOperationError(err error) bool {
	return errors.Is(err, ErrEncryptionFailed) ||
		errors.Is(err, ErrDecryptionFailed) ||
		errors.Is(err, ErrOperationFailed)
}

// IsValidationError returns true if the error represents a malformed payload.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrUnknownKeyVersion)
}
