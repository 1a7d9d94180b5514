package dbcrypt

// Key constants
const (
	// KeyLength is the size in bytes of application keys and data keys (AES-256).
	KeyLength = 32
)

// Environment variable names
const (
	// EnvAppKey holds the base64 encoded static application key used by KeyCipher.
	EnvAppKey = "DBCRYPT_APP_KEY"

	// EnvPreviousKeys holds a comma separated list of retired base64 keys that
	// remain valid for decryption.
	EnvPreviousKeys = "DBCRYPT_PREVIOUS_KEYS"

	// EnvKEKAlias is the alias of the key encryption key in the KMS.
	// Example: "user-service-kek" or "alias/myapp-kek"
	EnvKEKAlias = "DBCRYPT_KEK_ALIAS"

	// EnvKMSProvider selects the KMS implementation: memory, awskms or vault.
	EnvKMSProvider = "DBCRYPT_KMS_PROVIDER"

	// EnvDBPath is the directory of the SQLite database holding key versions
	// and stored entities.
	// Default: .dbcrypt
	EnvDBPath = "DBCRYPT_DB_PATH"

	// EnvDBFilename is the filename of the SQLite database.
	// Default: dbcrypt.db
	EnvDBFilename = "DBCRYPT_DB_FILENAME"

	// EnvSchemaFile points at the YAML file declaring entity types.
	EnvSchemaFile = "DBCRYPT_SCHEMA_FILE"
)

// Default values
const (
	DefaultDBPath     = ".dbcrypt"
	DefaultDBFilename = "dbcrypt.db"
)

// KMS provider names accepted by EnvKMSProvider.
const (
	ProviderNone   = ""
	ProviderMemory = "memory"
	ProviderAWSKMS = "awskms"
	ProviderVault  = "vault"
)

// KEK constraints
const (
	// MaxKEKAliasLength is the maximum allowed length for a KEK alias.
	MaxKEKAliasLength = 256
)
