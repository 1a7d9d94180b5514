package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// FindProjectRoot walks up from startDir to the nearest directory holding a
// go.mod. dbcrypt anchors its default key database directory there so the CLI
// and an application started from a subdirectory share one keyring file.
// An error means no go.mod was found; callers fall back to a path relative
// to the working directory.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", startDir, err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no go.mod above %q", startDir)
		}
		dir = parent
	}
}
