package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/hengadev/dbcrypt"
	"github.com/hengadev/dbcrypt/internal/health"
	"github.com/hengadev/dbcrypt/store"
)

func keygenCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, _ := newFlagSet("keygen", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	key, err := dbcrypt.GenerateAppKey()
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, key)
	return nil
}

func encryptCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("encrypt", stderr)
	value := fs.String("value", "", "Value to encrypt")
	kind := fs.String("kind", "string", "Value kind: string, int, float or bool")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("value", *value); err != nil {
		return err
	}
	v, err := parseValue(*kind, *value)
	if err != nil {
		return err
	}

	e, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer e.Close()

	ciphertext, err := e.cipher.Encrypt(ctx, v)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, ciphertext)
	return nil
}

func decryptCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("decrypt", stderr)
	value := fs.String("value", "", "Ciphertext to decrypt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("value", *value); err != nil {
		return err
	}

	e, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer e.Close()

	plain, err := e.cipher.Decrypt(ctx, *value)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, plain)
	return nil
}

func rotateCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("rotate", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.ring == nil {
		return fmt.Errorf("%w: rotate needs a KMS provider; with a static key, run keygen and move the old key to %s",
			dbcrypt.ErrInvalidConfiguration, dbcrypt.EnvPreviousKeys)
	}
	version, err := e.ring.Rotate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Rotated %s to version %d\n", e.ring.Alias(), version)
	return nil
}

func reencryptCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("reencrypt", stderr)
	typeName := fs.String("type", "", "Entity type to re-encrypt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("type", *typeName); err != nil {
		return err
	}

	e, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer e.Close()

	typ, err := e.entityType(*typeName)
	if err != nil {
		return err
	}
	s, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	entities, fields, err := store.ReencryptAll(ctx, s, typ)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Re-encrypted %d fields in %d %s entities\n", fields, entities, typ.Name())
	return nil
}

func validateCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("validate", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer e.Close()
	fmt.Fprintln(stdout, "✓ Configuration is valid")

	if e.cfg.SchemaFile == "" {
		return nil
	}
	types, err := e.entityTypes()
	if err != nil {
		return err
	}
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(stdout, "✓ %s: encrypted %v\n", name, types[name].Encryptable())
	}
	return nil
}

func healthCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("health", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer e.Close()

	checker := health.NewChecker(dbcrypt.Version)
	checks := []health.Check{
		{Name: "cipher", Critical: true, Func: e.checkCipher},
		{Name: "store", Func: func(ctx context.Context) error {
			s, err := e.openStore(ctx)
			if err != nil {
				return err
			}
			return s.Close()
		}},
	}
	if e.ring != nil {
		checks = append(checks, health.Check{Name: "keyring", Critical: true, Func: func(ctx context.Context) error {
			_, err := e.ring.Versions(ctx)
			return err
		}})
	}
	for _, c := range checks {
		if err := checker.Register(c); err != nil {
			return err
		}
	}

	report := checker.Run(ctx)
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Status == health.StatusUnhealthy {
		return fmt.Errorf("status %s", report.Status)
	}
	return nil
}

// checkCipher round-trips a probe value through the configured cipher.
func (e *env) checkCipher(ctx context.Context) error {
	sealed, err := e.cipher.Encrypt(ctx, "dbcrypt-health")
	if err != nil {
		return err
	}
	plain, err := e.cipher.Decrypt(ctx, sealed)
	if err != nil {
		return err
	}
	if plain != "dbcrypt-health" {
		return fmt.Errorf("round trip returned %v", plain)
	}
	return nil
}

func inspectCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, flags := newFlagSet("inspect", stderr)
	typeName := fs.String("type", "", "Entity type")
	idFlag := fs.String("id", "", "Entity ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("type", *typeName); err != nil {
		return err
	}
	id, err := uuid.Parse(*idFlag)
	if err != nil {
		return fmt.Errorf("invalid -id: %w", err)
	}

	e, err := setup(ctx, flags)
	if err != nil {
		return err
	}
	defer e.Close()

	typ, err := e.entityType(*typeName)
	if err != nil {
		return err
	}
	s, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	entity, err := s.Load(ctx, typ, id)
	if err != nil {
		return err
	}
	decrypted, err := entity.ToMap(ctx)
	if err != nil {
		return err
	}
	fields := map[string]string{}
	for _, f := range typ.Encryptable() {
		fields[f] = entity.Inspect(ctx, f).Outcome.String()
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"id":        id,
		"type":      typ.Name(),
		"raw":       entity.RawAttributes(),
		"decrypted": decrypted,
		"fields":    fields,
	})
}

func versionCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fmt.Fprintln(stdout, dbcrypt.VersionInfo())
	fmt.Fprintln(stdout, "Transparent field-level encryption for entity attributes")
	fmt.Fprintln(stdout, "")
	fmt.Fprintln(stdout, "KMS providers: memory, awskms, vault")
	fmt.Fprintln(stdout, "Entity stores: sqlite, s3")
	return nil
}

func parseValue(kind, s string) (any, error) {
	switch kind {
	case "string":
		return s, nil
	case "int":
		return strconv.ParseInt(s, 10, 64)
	case "float":
		return strconv.ParseFloat(s, 64)
	case "bool":
		return strconv.ParseBool(s)
	default:
		return nil, fmt.Errorf("unknown -kind %q", kind)
	}
}
