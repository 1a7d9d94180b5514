package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/dbcrypt"
	"github.com/hengadev/dbcrypt/store"
)

const testSchema = `
entities:
  - name: user
    encrypted: [ssn]
    casts:
      age: int
`

type cli struct {
	t   *testing.T
	dir string
	key string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	key, err := dbcrypt.GenerateAppKey()
	require.NoError(t, err)
	c := &cli{t: t, dir: t.TempDir(), key: key}
	t.Setenv(dbcrypt.EnvAppKey, key)
	t.Setenv(dbcrypt.EnvPreviousKeys, "")
	t.Setenv(dbcrypt.EnvKMSProvider, "")
	t.Setenv(dbcrypt.EnvKEKAlias, "")
	t.Setenv(dbcrypt.EnvDBPath, c.dir)
	t.Setenv(dbcrypt.EnvDBFilename, "cli.db")
	t.Setenv(dbcrypt.EnvSchemaFile, "")
	return c
}

func (c *cli) run(args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, strings.TrimSpace(stdout.String()), stderr.String()
}

func (c *cli) writeSchema() string {
	c.t.Helper()
	path := filepath.Join(c.dir, "schema.yaml")
	require.NoError(c.t, os.WriteFile(path, []byte(testSchema), 0o600))
	return path
}

func (c *cli) userType(cipher dbcrypt.Cipher) *dbcrypt.EntityType {
	c.t.Helper()
	types, err := dbcrypt.LoadEntityTypes(strings.NewReader(testSchema), cipher)
	require.NoError(c.t, err)
	return types["user"]
}

func TestRunUsage(t *testing.T) {
	newCLI(t)
	var stdout, stderr bytes.Buffer

	assert.Equal(t, 2, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: dbcrypt")

	stderr.Reset()
	assert.Equal(t, 2, run(context.Background(), []string{"frobnicate"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unknown command: frobnicate")
}

func TestKeygen(t *testing.T) {
	c := newCLI(t)
	code, out, _ := c.run("keygen")
	require.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(out, dbcrypt.KeyPrefix))
	_, err := dbcrypt.ParseKey(out)
	assert.NoError(t, err)
}

func TestEncryptDecrypt(t *testing.T) {
	c := newCLI(t)

	code, sealed, stderr := c.run("encrypt", "-value", "123-45-6789")
	require.Equal(t, 0, code, stderr)
	assert.NotContains(t, sealed, "123-45-6789")

	code, out, stderr := c.run("decrypt", "-value", sealed)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "123-45-6789", out)

	code, sealed, _ = c.run("encrypt", "-value", "42", "-kind", "int")
	require.Equal(t, 0, code)
	_, out, _ = c.run("decrypt", "-value", sealed)
	assert.Equal(t, "42", out)

	code, _, stderr = c.run("encrypt", "-value", "abc", "-kind", "int")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "encrypt:")

	code, _, _ = c.run("encrypt")
	assert.Equal(t, 1, code)
}

func TestDecryptWithOtherKeyFails(t *testing.T) {
	c := newCLI(t)
	_, sealed, _ := c.run("encrypt", "-value", "secret")

	other, err := dbcrypt.GenerateAppKey()
	require.NoError(t, err)
	t.Setenv(dbcrypt.EnvAppKey, other)
	code, _, stderr := c.run("decrypt", "-value", sealed)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "decrypt:")

	// With the old key listed as previous it works again.
	t.Setenv(dbcrypt.EnvPreviousKeys, c.key)
	code, out, _ := c.run("decrypt", "-value", sealed)
	assert.Equal(t, 0, code)
	assert.Equal(t, "secret", out)
}

func TestInvalidConfiguration(t *testing.T) {
	c := newCLI(t)
	t.Setenv(dbcrypt.EnvAppKey, "not-a-key")
	code, _, stderr := c.run("validate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "validate:")
}

func TestRotate(t *testing.T) {
	c := newCLI(t)

	code, _, stderr := c.run("rotate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, dbcrypt.EnvPreviousKeys)

	t.Setenv(dbcrypt.EnvKMSProvider, dbcrypt.ProviderMemory)
	t.Setenv(dbcrypt.EnvKEKAlias, "alias/cli-test")
	code, out, stderr := c.run("rotate")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Rotated alias/cli-test to version 2", out)
}

func TestValidate(t *testing.T) {
	c := newCLI(t)
	schema := c.writeSchema()

	code, out, stderr := c.run("validate", "-schema", schema)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "✓ Configuration is valid")
	assert.Contains(t, out, "✓ user: encrypted [ssn]")

	bad := filepath.Join(c.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("entities:\n  - name: user\n    encrypted: [status]\n    enums:\n      status: [a, b]\n"), 0o600))
	code, _, _ = c.run("validate", "-schema", bad)
	assert.Equal(t, 1, code)
}

func TestInspect(t *testing.T) {
	ctx := context.Background()
	c := newCLI(t)
	schema := c.writeSchema()

	cipher, err := dbcrypt.NewKeyCipherFromStrings(c.key, nil)
	require.NoError(t, err)
	users := c.userType(cipher)
	u, err := users.New(ctx, map[string]any{"ssn": "123-45-6789", "age": 30})
	require.NoError(t, err)

	s, err := store.OpenSQLite(ctx, filepath.Join(c.dir, "cli.db"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, u))
	require.NoError(t, s.Close())

	code, out, stderr := c.run("inspect", "-schema", schema, "-type", "user", "-id", u.ID().String())
	require.Equal(t, 0, code, stderr)

	var got struct {
		Raw       map[string]any    `json:"raw"`
		Decrypted map[string]any    `json:"decrypted"`
		Fields    map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEqual(t, "123-45-6789", got.Raw["ssn"])
	assert.Equal(t, "123-45-6789", got.Decrypted["ssn"])
	assert.Equal(t, float64(30), got.Decrypted["age"])
	assert.Equal(t, "transformed", got.Fields["ssn"])

	code, _, _ = c.run("inspect", "-schema", schema, "-type", "user", "-id", "nope")
	assert.Equal(t, 1, code)
	code, _, _ = c.run("inspect", "-schema", schema, "-type", "order", "-id", u.ID().String())
	assert.Equal(t, 1, code)
}

func TestReencrypt(t *testing.T) {
	ctx := context.Background()
	c := newCLI(t)
	schema := c.writeSchema()

	oldCipher, err := dbcrypt.NewKeyCipherFromStrings(c.key, nil)
	require.NoError(t, err)
	u, err := c.userType(oldCipher).New(ctx, map[string]any{"ssn": "123-45-6789"})
	require.NoError(t, err)
	s, err := store.OpenSQLite(ctx, filepath.Join(c.dir, "cli.db"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, u))
	require.NoError(t, s.Close())

	newKey, err := dbcrypt.GenerateAppKey()
	require.NoError(t, err)
	t.Setenv(dbcrypt.EnvAppKey, newKey)
	t.Setenv(dbcrypt.EnvPreviousKeys, c.key)

	code, out, stderr := c.run("reencrypt", "-schema", schema, "-type", "user")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "Re-encrypted 1 fields in 1 user entities", out)

	t.Setenv(dbcrypt.EnvPreviousKeys, "")
	code, out, _ = c.run("inspect", "-schema", schema, "-type", "user", "-id", u.ID().String())
	require.Equal(t, 0, code)
	assert.Contains(t, out, `"ssn": "123-45-6789"`)
}

func TestHealth(t *testing.T) {
	c := newCLI(t)
	code, out, stderr := c.run("health")
	require.Equal(t, 0, code, stderr)

	var report struct {
		Status  string `json:"status"`
		Results []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "healthy", report.Status)
	require.Len(t, report.Results, 2)
	assert.Equal(t, "cipher", report.Results[0].Name)
	assert.Equal(t, "store", report.Results[1].Name)

	t.Setenv(dbcrypt.EnvKMSProvider, dbcrypt.ProviderMemory)
	t.Setenv(dbcrypt.EnvKEKAlias, "alias/health")
	code, out, stderr = c.run("health")
	require.Equal(t, 0, code, stderr)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Results, 3)
}

func TestVersion(t *testing.T) {
	c := newCLI(t)
	code, out, _ := c.run("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "dbcrypt v"+dbcrypt.Version)
}
