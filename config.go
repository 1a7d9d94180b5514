package dbcrypt

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/hengadev/errsx"

	"github.com/hengadev/dbcrypt/internal/config"
)

// Config holds the settings needed to build a cipher and open the key and
// entity database.
//
// Two modes are supported:
//   - Static key: AppKey (and optionally PreviousKeys) is set, KMSProvider is empty.
//   - Envelope: KMSProvider and KEKAlias are set; data keys live in the database
//     wrapped by the KMS.
//
// Example usage:
//
//	cfg := dbcrypt.Config{
//	    AppKey:       os.Getenv("DBCRYPT_APP_KEY"),
//	    PreviousKeys: []string{oldKey},
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	cipher, err := dbcrypt.NewKeyCipherFromStrings(cfg.AppKey, cfg.PreviousKeys)
type Config struct {
	// AppKey is the base64 application key, optionally prefixed with "base64:".
	AppKey string

	// PreviousKeys are retired application keys still accepted for decryption.
	PreviousKeys []string

	// KMSProvider is one of "", "memory", "awskms" or "vault".
	KMSProvider string

	// KEKAlias is the key encryption key identifier in the KMS. Required when
	// KMSProvider is set. Maximum length: 256 characters.
	KEKAlias string

	// DBPath is the directory of the SQLite database.
	//
	// Optional field. Default: .dbcrypt next to the project's go.mod, or in
	// the working directory.
	DBPath string

	// DBFilename is the SQLite database filename.
	//
	// Optional field. Default: dbcrypt.db
	DBFilename string

	// SchemaFile is an optional YAML file declaring entity types.
	SchemaFile string
}

// Validate checks the configuration and applies defaults to optional fields.
// All problems are reported together.
func (c *Config) Validate() error {
	errs := errsx.Map{}

	if c.KMSProvider == ProviderNone {
		if c.AppKey == "" {
			errs.Set("AppKey", "AppKey is required when no KMS provider is configured")
		} else if _, err := ParseKey(c.AppKey); err != nil {
			errs.Set("AppKey", err)
		}
	} else {
		if !slices.Contains([]string{ProviderMemory, ProviderAWSKMS, ProviderVault}, c.KMSProvider) {
			errs.Set("KMSProvider", fmt.Sprintf("unknown KMS provider %q", c.KMSProvider))
		}
		if err := config.ValidateKEKAlias(c.KEKAlias, MaxKEKAliasLength); err != nil {
			errs.Set("KEKAlias", err)
		}
	}
	for i, k := range c.PreviousKeys {
		if _, err := ParseKey(k); err != nil {
			errs.Set(fmt.Sprintf("PreviousKeys[%d]", i), err)
		}
	}
	if c.SchemaFile != "" {
		if _, err := os.Stat(c.SchemaFile); err != nil {
			errs.Set("SchemaFile", err)
		}
	}
	if err := errs.AsError(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
		if cwd, err := os.Getwd(); err == nil {
			if projectRoot, err := config.FindProjectRoot(cwd); err == nil {
				c.DBPath = filepath.Join(projectRoot, DefaultDBPath)
			}
		}
	}
	if c.DBFilename == "" {
		c.DBFilename = DefaultDBFilename
	}
	return nil
}

// DatabaseFile returns the full path of the SQLite database.
func (c Config) DatabaseFile() string {
	return filepath.Join(c.DBPath, c.DBFilename)
}

// EnvelopeMode reports whether data keys are managed through a KMS.
func (c Config) EnvelopeMode() bool {
	return c.KMSProvider != ProviderNone
}
