// Package keyring manages versioned data encryption keys (DEKs) wrapped by a
// key encryption key (KEK) held in a KMS.
//
// Each version row in the SQLite metadata database records the KMS key that
// wraps it and the wrapped DEK. Plaintext DEKs are only ever held in memory.
// Rotation creates a new KMS key and a new DEK; older versions stay readable
// so existing ciphertext keeps decrypting until it is re-encrypted.
package keyring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hengadev/dbcrypt"
	"github.com/hengadev/dbcrypt/internal/config"
	"github.com/hengadev/dbcrypt/internal/crypto"
)

const schema = `
	CREATE TABLE IF NOT EXISTS kek_versions (
		alias TEXT NOT NULL,
		version INTEGER NOT NULL,
		creation_time DATETIME DEFAULT CURRENT_TIMESTAMP,
		is_deprecated BOOLEAN DEFAULT FALSE,
		kms_key_id TEXT NOT NULL,
		wrapped_dek BLOB NOT NULL,
		PRIMARY KEY (alias, version)
	);

	CREATE INDEX IF NOT EXISTS idx_kek_versions_active ON kek_versions(alias, is_deprecated);
`

// Version describes one KEK version.
type Version struct {
	Version    int
	KMSKeyID   string
	CreatedAt  time.Time
	Deprecated bool
}

// Keyring resolves DEK versions for one KEK alias. It is safe for concurrent use.
type Keyring struct {
	db     *sql.DB
	ownsDB bool
	kms    dbcrypt.KeyManagementService
	alias  string
	dek    *crypto.DEKOperations
	hook   dbcrypt.ObservabilityHook
	logger *zap.Logger

	mu      sync.RWMutex
	current int
	cache   map[int][]byte
}

type options struct {
	dbPath     string
	dbFilename string
	db         *sql.DB
	logger     *zap.Logger
	hooks      []dbcrypt.ObservabilityHook
	resilience *ResilienceConfig
}

// Option configures Open.
type Option func(o *options) error

// WithDBPath sets the directory of the metadata database.
func WithDBPath(path string) Option {
	return func(o *options) error {
		if path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
		o.dbPath = path
		return nil
	}
}

// WithDBFilename sets the metadata database filename.
func WithDBFilename(name string) Option {
	return func(o *options) error {
		if name == "" || filepath.Base(name) != name {
			return fmt.Errorf("invalid database filename %q", name)
		}
		o.dbFilename = name
		return nil
	}
}

// WithDB uses an already open database. The keyring does not close it.
func WithDB(db *sql.DB) Option {
	return func(o *options) error {
		if db == nil {
			return fmt.Errorf("database cannot be nil")
		}
		o.db = db
		return nil
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithObservabilityHook adds a hook notified of key creation and rotation.
func WithObservabilityHook(hook dbcrypt.ObservabilityHook) Option {
	return func(o *options) error {
		if hook == nil {
			return fmt.Errorf("observability hook cannot be nil")
		}
		o.hooks = append(o.hooks, hook)
		return nil
	}
}

// Open opens the metadata database and makes sure a first KEK version exists
// for alias, creating the KMS key and DEK when needed.
func Open(ctx context.Context, kms dbcrypt.KeyManagementService, alias string, opts ...Option) (*Keyring, error) {
	if kms == nil {
		return nil, fmt.Errorf("%w: KMS service is required", dbcrypt.ErrInvalidConfiguration)
	}
	if err := config.ValidateKEKAlias(alias, dbcrypt.MaxKEKAliasLength); err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrInvalidConfiguration, err)
	}
	o := &options{dbPath: dbcrypt.DefaultDBPath, dbFilename: dbcrypt.DefaultDBFilename}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("%w: %w", dbcrypt.ErrInvalidConfiguration, err)
		}
	}

	db, owns := o.db, false
	if db == nil {
		var err error
		if db, err = openDatabase(ctx, o.dbPath, o.dbFilename); err != nil {
			return nil, err
		}
		owns = true
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		if owns {
			db.Close()
		}
		return nil, fmt.Errorf("%w: create schema: %w", dbcrypt.ErrDatabaseUnavailable, err)
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hooks := append([]dbcrypt.ObservabilityHook{dbcrypt.NewLoggingHook(logger)}, o.hooks...)
	if o.resilience != nil {
		kms = newResilientKMS(kms, alias, *o.resilience, logger)
	}

	k := &Keyring{
		db:     db,
		ownsDB: owns,
		kms:    kms,
		alias:  alias,
		dek:    crypto.NewDEKOperations(kms, alias),
		hook:   dbcrypt.NewCompositeHook(hooks...),
		logger: logger,
		cache:  make(map[int][]byte),
	}
	if err := k.ensureInitialVersion(ctx); err != nil {
		k.Close()
		return nil, err
	}
	return k, nil
}

func openDatabase(ctx context.Context, dir, filename string) (*sql.DB, error) {
	if err := config.EnsureDirectory(dir); err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDatabaseUnavailable, err)
	}
	dbPath := filepath.Join(dir, filename)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open '%s': %w", dbcrypt.ErrDatabaseUnavailable, dbPath, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connection test failed for '%s': %w", dbcrypt.ErrDatabaseUnavailable, dbPath, err)
	}
	return db, nil
}

// Alias returns the KEK alias the keyring manages.
func (k *Keyring) Alias() string { return k.alias }

// CurrentVersion returns the version used for new encryptions.
func (k *Keyring) CurrentVersion() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.current
}

// Close releases the database when the keyring opened it and drops cached DEKs.
func (k *Keyring) Close() error {
	k.mu.Lock()
	for v, dek := range k.cache {
		clear(dek)
		delete(k.cache, v)
	}
	k.mu.Unlock()
	if k.ownsDB {
		return k.db.Close()
	}
	return nil
}

// ensureInitialVersion records version 1 when the alias has no versions yet.
// An existing KMS key for the alias is reused, otherwise one is created.
func (k *Keyring) ensureInitialVersion(ctx context.Context) error {
	current, err := k.latestVersion(ctx)
	if err != nil {
		return err
	}
	if current > 0 {
		k.current = current
		k.logger.Debug("keyring opened", zap.String("key_alias", k.alias), zap.Int("key_version", current))
		return nil
	}

	kmsKeyID, err := k.kms.GetKeyID(ctx, k.alias)
	if err != nil {
		k.logger.Info("no KEK found in KMS, creating one", zap.String("key_alias", k.alias))
		if kmsKeyID, err = k.kms.CreateKey(ctx, k.alias); err != nil {
			return fmt.Errorf("create initial KEK in KMS: %w", err)
		}
	}
	if err := k.addVersion(ctx, 1, kmsKeyID); err != nil {
		return err
	}
	k.hook.OnKeyOperation(ctx, "create", k.alias, 1, map[string]any{"kms_key_id": kmsKeyID})
	return nil
}

// Rotate creates a new KMS key and DEK and makes them current. Earlier
// versions are marked deprecated but remain usable for decryption.
func (k *Keyring) Rotate(ctx context.Context) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	oldVersion := k.current
	newVersion := oldVersion + 1
	metadata := map[string]any{
		"old_version": oldVersion,
		"new_version": newVersion,
	}

	kmsKeyID, err := k.kms.CreateKey(ctx, k.alias)
	if err != nil {
		err = fmt.Errorf("create KEK version %d in KMS: %w", newVersion, err)
		k.hook.OnError(ctx, "rotate", err, metadata)
		return 0, err
	}
	metadata["kms_key_id"] = kmsKeyID
	if err := k.insertVersionLocked(ctx, newVersion, kmsKeyID, oldVersion); err != nil {
		k.hook.OnError(ctx, "rotate", err, metadata)
		return 0, err
	}

	k.hook.OnKeyOperation(ctx, "rotate", k.alias, newVersion, metadata)
	return newVersion, nil
}

func (k *Keyring) addVersion(ctx context.Context, version int, kmsKeyID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.insertVersionLocked(ctx, version, kmsKeyID, 0)
}

// insertVersionLocked generates and wraps a DEK, stores it as version and
// deprecates the version before it. k.mu must be held.
func (k *Keyring) insertVersionLocked(ctx context.Context, version int, kmsKeyID string, deprecate int) error {
	dek, err := k.dek.GenerateDEK()
	if err != nil {
		return err
	}
	wrapped, err := k.dek.EncryptDEK(ctx, dek, version, pendingVersion(kmsKeyID))
	if err != nil {
		return err
	}

	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", dbcrypt.ErrDatabaseUnavailable, err)
	}
	defer tx.Rollback()

	if deprecate > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE kek_versions SET is_deprecated = TRUE
			WHERE alias = ? AND version = ?
		`, k.alias, deprecate); err != nil {
			return fmt.Errorf("%w: deprecate KEK version %d: %w", dbcrypt.ErrDatabaseUnavailable, deprecate, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO kek_versions (alias, version, kms_key_id, wrapped_dek) VALUES (?, ?, ?, ?)
	`, k.alias, version, kmsKeyID, wrapped); err != nil {
		return fmt.Errorf("%w: record KEK version %d: %w", dbcrypt.ErrDatabaseUnavailable, version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", dbcrypt.ErrDatabaseUnavailable, err)
	}

	k.current = version
	k.cache[version] = dek
	return nil
}

// Versions lists every version of the alias, oldest first.
func (k *Keyring) Versions(ctx context.Context) ([]Version, error) {
	rows, err := k.db.QueryContext(ctx, `
		SELECT version, kms_key_id, creation_time, is_deprecated FROM kek_versions
		WHERE alias = ? ORDER BY version
	`, k.alias)
	if err != nil {
		return nil, fmt.Errorf("%w: list KEK versions: %w", dbcrypt.ErrDatabaseUnavailable, err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.Version, &v.KMSKeyID, &v.CreatedAt, &v.Deprecated); err != nil {
			return nil, fmt.Errorf("%w: scan KEK version: %w", dbcrypt.ErrDatabaseUnavailable, err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDatabaseUnavailable, err)
	}
	return versions, nil
}

// GetKMSKeyIDForVersion retrieves the KMS key ID for a specific KEK version and alias.
func (k *Keyring) GetKMSKeyIDForVersion(ctx context.Context, alias string, version int) (string, error) {
	var kmsKeyID string
	err := k.db.QueryRowContext(ctx, `
		SELECT kms_key_id FROM kek_versions
		WHERE alias = ? AND version = ?
	`, alias, version).Scan(&kmsKeyID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: alias '%s' version %d", dbcrypt.ErrUnknownKeyVersion, alias, version)
	}
	if err != nil {
		return "", fmt.Errorf("%w: KMS key ID for alias '%s' version %d: %w", dbcrypt.ErrDatabaseUnavailable, alias, version, err)
	}
	return kmsKeyID, nil
}

// currentKey returns the current version and its DEK.
func (k *Keyring) currentKey(ctx context.Context) (int, []byte, error) {
	version := k.CurrentVersion()
	dek, err := k.key(ctx, version)
	return version, dek, err
}

// key returns the plaintext DEK of version, unwrapping it through the KMS on
// first use.
func (k *Keyring) key(ctx context.Context, version int) ([]byte, error) {
	k.mu.RLock()
	dek, ok := k.cache[version]
	k.mu.RUnlock()
	if ok {
		return dek, nil
	}

	var wrapped []byte
	err := k.db.QueryRowContext(ctx, `
		SELECT wrapped_dek FROM kek_versions
		WHERE alias = ? AND version = ?
	`, k.alias, version).Scan(&wrapped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: alias '%s' version %d", dbcrypt.ErrUnknownKeyVersion, k.alias, version)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load DEK version %d: %w", dbcrypt.ErrDatabaseUnavailable, version, err)
	}
	dek, err = k.dek.DecryptDEKWithVersion(ctx, wrapped, version, k)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if cached, ok := k.cache[version]; ok {
		return cached, nil
	}
	k.cache[version] = dek
	return dek, nil
}

func (k *Keyring) latestVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := k.db.QueryRowContext(ctx, `
		SELECT MAX(version) FROM kek_versions WHERE alias = ?
	`, k.alias).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("%w: current KEK version for alias '%s': %w", dbcrypt.ErrDatabaseUnavailable, k.alias, err)
	}
	return int(version.Int64), nil
}

// pendingVersion resolves the KMS key of a version that is not stored yet.
type pendingVersion string

func (p pendingVersion) GetKMSKeyIDForVersion(context.Context, string, int) (string, error) {
	return string(p), nil
}
