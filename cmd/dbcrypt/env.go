package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/hengadev/dbcrypt"
	"github.com/hengadev/dbcrypt/internal/config"
	"github.com/hengadev/dbcrypt/internal/monitoring"
	"github.com/hengadev/dbcrypt/keyring"
	"github.com/hengadev/dbcrypt/providers/awskms"
	"github.com/hengadev/dbcrypt/providers/hashicorp"
	"github.com/hengadev/dbcrypt/providers/memory"
	"github.com/hengadev/dbcrypt/store"
)

// env is what most commands need: configuration, a logger and the cipher.
type env struct {
	cfg     dbcrypt.Config
	logger  *zap.Logger
	cipher  dbcrypt.Cipher
	ring    *keyring.Keyring
	cleanup []func()
}

type commonFlags struct {
	verbose *bool
	schema  *string
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs, commonFlags{
		verbose: fs.Bool("v", false, "Verbose output"),
		schema:  fs.String("schema", "", "Entity schema YAML file (default: $DBCRYPT_SCHEMA_FILE)"),
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return monitoring.NewLogger(monitoring.LoggerConfig{
		Level:     level,
		Encoding:  "console",
		Component: "dbcrypt-cli",
	})
}

// setup loads the configuration from the environment and builds the cipher:
// a KeyCipher in static key mode, a keyring Cipher when a KMS is configured.
func setup(ctx context.Context, flags commonFlags) (*env, error) {
	logger, err := newLogger(*flags.verbose)
	if err != nil {
		return nil, err
	}
	cfg, err := dbcrypt.LoadConfigFromEnvironment()
	if err != nil {
		return nil, err
	}
	if *flags.schema != "" {
		cfg.SchemaFile = *flags.schema
	}
	e := &env{cfg: cfg, logger: logger}
	e.cleanup = append(e.cleanup, func() { _ = logger.Sync() })

	if !cfg.EnvelopeMode() {
		e.cipher, err = dbcrypt.NewKeyCipherFromStrings(cfg.AppKey, cfg.PreviousKeys)
		if err != nil {
			e.Close()
			return nil, err
		}
		logger.Debug("using static application key", zap.Int("previous_keys", len(cfg.PreviousKeys)))
		return e, nil
	}

	kms, closeKMS, err := newKMS(ctx, cfg.KMSProvider, logger)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.cleanup = append(e.cleanup, closeKMS)
	opts := []keyring.Option{
		keyring.WithDBPath(cfg.DBPath),
		keyring.WithDBFilename(cfg.DBFilename),
		keyring.WithLogger(logger),
	}
	if cfg.KMSProvider != dbcrypt.ProviderMemory {
		opts = append(opts, keyring.WithResilience(keyring.ResilienceConfig{
			MaxAttempts:      3,
			InitialDelay:     200 * time.Millisecond,
			MaxDelay:         2 * time.Second,
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		}))
	}
	e.ring, err = keyring.Open(ctx, kms, cfg.KEKAlias, opts...)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.cleanup = append(e.cleanup, func() { _ = e.ring.Close() })
	e.cipher = keyring.NewCipher(e.ring)
	logger.Debug("using KMS keyring",
		zap.String("provider", cfg.KMSProvider),
		zap.String("key_alias", cfg.KEKAlias),
		zap.Int("key_version", e.ring.CurrentVersion()))
	return e, nil
}

func newKMS(ctx context.Context, provider string, logger *zap.Logger) (dbcrypt.KeyManagementService, func(), error) {
	switch provider {
	case dbcrypt.ProviderMemory:
		logger.Warn("memory KMS keys do not outlive the process")
		return memory.New(), func() {}, nil
	case dbcrypt.ProviderAWSKMS:
		svc, err := awskms.New(ctx, awskms.Config{Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return svc, func() {}, nil
	case dbcrypt.ProviderVault:
		cfg := hashicorp.ConfigFromEnvironment()
		cfg.Logger = logger
		svc, err := hashicorp.NewTransitService(cfg)
		if err != nil {
			return nil, nil, err
		}
		return svc, svc.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown KMS provider %q", dbcrypt.ErrInvalidConfiguration, provider)
	}
}

// Close runs cleanups in reverse order.
func (e *env) Close() {
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		e.cleanup[i]()
	}
	e.cleanup = nil
}

func (e *env) entityTypes() (map[string]*dbcrypt.EntityType, error) {
	if e.cfg.SchemaFile == "" {
		return nil, fmt.Errorf("%w: no schema file (use -schema or %s)", dbcrypt.ErrInvalidConfiguration, dbcrypt.EnvSchemaFile)
	}
	return dbcrypt.LoadEntityTypesFile(e.cfg.SchemaFile, e.cipher, dbcrypt.WithLogger(e.logger))
}

func (e *env) entityType(name string) (*dbcrypt.EntityType, error) {
	types, err := e.entityTypes()
	if err != nil {
		return nil, err
	}
	typ, ok := types[name]
	if !ok {
		return nil, fmt.Errorf("%w: entity type %q is not declared in %s", dbcrypt.ErrNotFound, name, e.cfg.SchemaFile)
	}
	return typ, nil
}

// openStore opens the entity store, which shares the configured database file.
func (e *env) openStore(ctx context.Context) (*store.SQLite, error) {
	if err := config.EnsureDirectory(e.cfg.DBPath); err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDatabaseUnavailable, err)
	}
	return store.OpenSQLite(ctx, e.cfg.DatabaseFile(), e.logger)
}

func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("-%s is required", name)
	}
	return nil
}
