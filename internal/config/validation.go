package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidateKEKAlias checks that alias is set, bounded and free of whitespace.
func ValidateKEKAlias(alias string, maxLength int) error {
	if alias == "" {
		return fmt.Errorf("KEK alias is required")
	}
	if len(alias) > maxLength {
		return fmt.Errorf("KEK alias must be %d characters or less, got %d", maxLength, len(alias))
	}
	if strings.ContainsAny(alias, " \t\n") {
		return fmt.Errorf("KEK alias cannot contain whitespace")
	}
	return nil
}

// EnsureDirectory creates dirPath if needed and checks that it is writable.
func EnsureDirectory(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o700); err != nil {
		return fmt.Errorf("create directory '%s': %w", dirPath, err)
	}
	probe, err := os.CreateTemp(dirPath, ".write-test-*")
	if err != nil {
		return fmt.Errorf("directory '%s' is not writable: %w", dirPath, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(filepath.Clean(name))
}
