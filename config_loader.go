package dbcrypt

import (
	"fmt"
	"os"
	"strings"
)

// LoadConfigFromEnvironment loads configuration from environment variables.
//
// Environment variables:
//   - DBCRYPT_APP_KEY: base64 application key (static key mode)
//   - DBCRYPT_PREVIOUS_KEYS: comma separated retired keys
//   - DBCRYPT_KMS_PROVIDER: memory, awskms or vault (envelope mode)
//   - DBCRYPT_KEK_ALIAS: key encryption key alias (envelope mode)
//   - DBCRYPT_DB_PATH: database directory (default: .dbcrypt)
//   - DBCRYPT_DB_FILENAME: database filename (default: dbcrypt.db)
//   - DBCRYPT_SCHEMA_FILE: YAML entity type declarations
//
// Example usage:
//
//	cfg, err := dbcrypt.LoadConfigFromEnvironment()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnvironment() (Config, error) {
	cfg := Config{
		AppKey:       os.Getenv(EnvAppKey),
		PreviousKeys: splitList(os.Getenv(EnvPreviousKeys)),
		KMSProvider:  strings.ToLower(strings.TrimSpace(os.Getenv(EnvKMSProvider))),
		KEKAlias:     os.Getenv(EnvKEKAlias),
		DBPath:       getEnvOrDefault(EnvDBPath, ""),
		DBFilename:   getEnvOrDefault(EnvDBFilename, DefaultDBFilename),
		SchemaFile:   os.Getenv(EnvSchemaFile),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// getEnvOrDefault returns the value of an environment variable, or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
