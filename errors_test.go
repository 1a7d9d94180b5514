package dbcrypt

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{"KMS Unavailable", ErrKMSUnavailable, ErrKMSUnavailable},
		{"Authentication Failed", ErrAuthenticationFailed, ErrAuthenticationFailed},
		{"Invalid Configuration", ErrInvalidConfiguration, ErrInvalidConfiguration},
		{"Encryption Failed", ErrEncryptionFailed, ErrEncryptionFailed},
		{"Decryption Failed", ErrDecryptionFailed, ErrDecryptionFailed},
		{"Database Unavailable", ErrDatabaseUnavailable, ErrDatabaseUnavailable},
		{"Unknown Key Version", ErrUnknownKeyVersion, ErrUnknownKeyVersion},
		{"Encrypted Path Write", ErrEncryptedPathWrite, ErrEncryptedPathWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("context: %w", tt.err)
			if !errors.Is(wrapped, tt.expected) {
				t.Errorf("Expected errors.Is(wrapped, %v) to be true", tt.expected)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		isRetryable  bool
		isConfig     bool
		isAuth       bool
		isOperation  bool
		isValidation bool
	}{
		{
			name:        "KMS Unavailable",
			err:         fmt.Errorf("test: %w", ErrKMSUnavailable),
			isRetryable: true,
		},
		{
			name:        "Database Unavailable",
			err:         fmt.Errorf("test: %w", ErrDatabaseUnavailable),
			isRetryable: true,
		},
		{
			name:   "Authentication Failed",
			err:    fmt.Errorf("test: %w", ErrAuthenticationFailed),
			isAuth: true,
		},
		{
			name:     "Invalid Configuration",
			err:      fmt.Errorf("test: %w", ErrInvalidConfiguration),
			isConfig: true,
		},
		{
			name:     "Invalid Key",
			err:      fmt.Errorf("test: %w", ErrInvalidKey),
			isConfig: true,
		},
		{
			name:     "Encrypted Path Write",
			err:      NewEncryptedPathWriteError("profile.phone", "profile"),
			isConfig: true,
		},
		{
			name:        "Encryption Failed",
			err:         fmt.Errorf("test: %w", ErrEncryptionFailed),
			isOperation: true,
		},
		{
			name:        "Decryption Failed",
			err:         fmt.Errorf("test: %w", ErrDecryptionFailed),
			isOperation: true,
		},
		{
			name:        "Operation Failed",
			err:         NewOperationFailedError("ssn", ActionEncrypt, ""),
			isOperation: true,
		},
		{
			name:         "Invalid Format",
			err:          NewInvalidFormatError("payload", ActionDecrypt),
			isValidation: true,
		},
		{
			name:         "Unknown Key Version",
			err:          fmt.Errorf("test: %w", ErrUnknownKeyVersion),
			isValidation: true,
		},
		{
			name: "Unrelated",
			err:  errors.New("boom"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.isRetryable {
				t.Errorf("IsRetryableError() = %v, want %v", got, tt.isRetryable)
			}
			if got := IsConfigurationError(tt.err); got != tt.isConfig {
				t.Errorf("IsConfigurationError() = %v, want %v", got, tt.isConfig)
			}
			if got := IsAuthError(tt.err); got != tt.isAuth {
				t.Errorf("IsAuthError() = %v, want %v", got, tt.isAuth)
			}
			if got := IsOperationError(tt.err); got != tt.isOperation {
				t.Errorf("IsOperationError() = %v, want %v", got, tt.isOperation)
			}
			if got := IsValidationError(tt.err); got != tt.isValidation {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.isValidation)
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		contains []string
	}{
		{
			name:     "operation failed with details",
			err:      NewOperationFailedError("ssn", ActionRotate, "no current key"),
			sentinel: ErrOperationFailed,
			contains: []string{"rotate", "'ssn'", "no current key"},
		},
		{
			name:     "operation failed without details",
			err:      NewOperationFailedError("ssn", ActionDecrypt, ""),
			sentinel: ErrOperationFailed,
			contains: []string{"decrypt operation failed for field 'ssn'"},
		},
		{
			name:     "invalid format",
			err:      NewInvalidFormatError("payload", ActionDecrypt),
			sentinel: ErrInvalidFormat,
			contains: []string{"payload", "decrypt"},
		},
		{
			name:     "encrypted path write",
			err:      NewEncryptedPathWriteError("profile.phone", "profile"),
			sentinel: ErrEncryptedPathWrite,
			contains: []string{"'profile.phone'", "'profile'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("expected %v to wrap %v", tt.err, tt.sentinel)
			}
			for _, s := range tt.contains {
				if !strings.Contains(tt.err.Error(), s) {
					t.Errorf("expected %q to contain %q", tt.err.Error(), s)
				}
			}
		})
	}
}
