package hashicorp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hengadev/dbcrypt"
	"github.com/hengadev/dbcrypt/keyring"
)

const testToken = "test-token-12345"

// fakeVault is a minimal Transit engine: keys are versioned and ciphertext
// is "vault:v<n>:<key>:<plaintext b64>".
type fakeVault struct {
	mu   sync.Mutex
	keys map[string]int
}

func (fv *fakeVault) version(name string) int {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	return fv.keys[name]
}

func (fv *fakeVault) set(name string, version int) {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	fv.keys[name] = version
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func vaultError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"errors": []string{msg}})
}

func mockVaultServer(t *testing.T) (*httptest.Server, *fakeVault) {
	t.Helper()
	fv := &fakeVault{keys: map[string]int{}}
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/auth/approle/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"auth": map[string]any{"client_token": testToken, "renewable": false},
		})
	})

	mux.HandleFunc("/v1/transit/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != testToken {
			vaultError(w, http.StatusForbidden, "permission denied")
			return
		}
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/transit/"), "/")
		var body map[string]string
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}

		fv.mu.Lock()
		defer fv.mu.Unlock()

		switch {
		case parts[0] == "keys" && len(parts) == 2 && r.Method == http.MethodGet:
			version, ok := fv.keys[parts[1]]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{"name": parts[1], "latest_version": version, "type": "aes256-gcm96"},
			})
		case parts[0] == "keys" && len(parts) == 2:
			if _, ok := fv.keys[parts[1]]; !ok {
				fv.keys[parts[1]] = 1
			}
			w.WriteHeader(http.StatusNoContent)
		case parts[0] == "keys" && len(parts) == 3 && parts[2] == "rotate":
			fv.keys[parts[1]]++
			w.WriteHeader(http.StatusNoContent)
		case parts[0] == "encrypt":
			version, ok := fv.keys[parts[1]]
			if !ok {
				vaultError(w, http.StatusBadRequest, "encryption key not found")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": map[string]any{"ciphertext": fmt.Sprintf("vault:v%d:%s:%s", version, parts[1], body["plaintext"])},
			})
		case parts[0] == "decrypt":
			fields := strings.SplitN(body["ciphertext"], ":", 4)
			if len(fields) != 4 || fields[2] != parts[1] {
				vaultError(w, http.StatusBadRequest, "invalid ciphertext")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"plaintext": fields[3]}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, fv
}

func newTestTransit(t *testing.T) (*TransitService, *fakeVault) {
	t.Helper()
	server, fv := mockVaultServer(t)
	ts, err := NewTransitService(Config{Address: server.URL, Token: testToken})
	require.NoError(t, err)
	t.Cleanup(ts.Close)
	return ts, fv
}

func TestNewTransitService(t *testing.T) {
	server, _ := mockVaultServer(t)

	t.Run("token", func(t *testing.T) {
		ts, err := NewTransitService(Config{Address: server.URL, Token: testToken, Namespace: "admin/test"})
		require.NoError(t, err)
		assert.Equal(t, testToken, ts.client.Token())
		assert.Equal(t, "transit", ts.mount)
	})

	t.Run("approle", func(t *testing.T) {
		ts, err := NewTransitService(Config{Address: server.URL, RoleID: "role", SecretID: "secret"})
		require.NoError(t, err)
		assert.Equal(t, testToken, ts.client.Token())
		assert.Nil(t, ts.watcher)
	})

	t.Run("no auth", func(t *testing.T) {
		t.Setenv("VAULT_TOKEN", "")
		_, err := NewTransitService(Config{Address: server.URL})
		assert.ErrorIs(t, err, dbcrypt.ErrInvalidConfiguration)
	})

	t.Run("custom mount", func(t *testing.T) {
		ts, err := NewTransitService(Config{Address: server.URL, Token: testToken, MountPath: "/kek-transit/"})
		require.NoError(t, err)
		assert.Equal(t, "kek-transit/encrypt/app", ts.path("encrypt", "app"))
	})
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")
	t.Setenv("VAULT_NAMESPACE", "admin/test")
	t.Setenv("VAULT_TOKEN", "tok")
	t.Setenv("VAULT_ROLE_ID", "")
	t.Setenv("VAULT_SECRET_ID", "")
	t.Setenv("VAULT_TRANSIT_MOUNT", "kek")

	cfg := ConfigFromEnvironment()
	assert.Equal(t, Config{
		Address:   "http://127.0.0.1:8200",
		Namespace: "admin/test",
		Token:     "tok",
		MountPath: "kek",
	}, cfg)
}

func TestGetKeyID(t *testing.T) {
	ctx := context.Background()
	ts, fv := newTestTransit(t)

	_, err := ts.GetKeyID(ctx, "")
	assert.ErrorIs(t, err, dbcrypt.ErrInvalidConfiguration)

	_, err = ts.GetKeyID(ctx, "alias/app")
	assert.ErrorIs(t, err, dbcrypt.ErrNotFound)

	fv.set("app", 1)
	id, err := ts.GetKeyID(ctx, "alias/app")
	require.NoError(t, err)
	assert.Equal(t, "app", id)
}

func TestCreateKeyRotatesExisting(t *testing.T) {
	ctx := context.Background()
	ts, fv := newTestTransit(t)

	id, err := ts.CreateKey(ctx, "alias/app")
	require.NoError(t, err)
	assert.Equal(t, "app", id)
	assert.Equal(t, 1, fv.version("app"))

	id, err = ts.CreateKey(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, "app", id)
	assert.Equal(t, 2, fv.version("app"))

	_, err = ts.CreateKey(ctx, " ")
	assert.ErrorIs(t, err, dbcrypt.ErrInvalidConfiguration)
}

func TestEncryptDecryptDEK(t *testing.T) {
	ctx := context.Background()
	ts, _ := newTestTransit(t)
	_, err := ts.CreateKey(ctx, "app")
	require.NoError(t, err)

	wrapped, err := ts.EncryptDEK(ctx, "app", []byte("plaintext-dek"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(wrapped), "vault:v1:"))

	got, err := ts.DecryptDEK(ctx, "app", wrapped)
	require.NoError(t, err)
	assert.Equal(t, []byte("plaintext-dek"), got)

	tests := []struct {
		name string
		call func() error
		want []error
	}{
		{"empty plaintext", func() error { _, err := ts.EncryptDEK(ctx, "app", nil); return err }, []error{dbcrypt.ErrEncryptionFailed}},
		{"empty key", func() error { _, err := ts.EncryptDEK(ctx, "", []byte("x")); return err }, []error{dbcrypt.ErrInvalidConfiguration}},
		{"unknown key", func() error { _, err := ts.EncryptDEK(ctx, "other", []byte("x")); return err }, []error{dbcrypt.ErrEncryptionFailed, dbcrypt.ErrInvalidKey}},
		{"empty ciphertext", func() error { _, err := ts.DecryptDEK(ctx, "app", nil); return err }, []error{dbcrypt.ErrDecryptionFailed}},
		{"wrong key", func() error { _, err := ts.DecryptDEK(ctx, "other", wrapped); return err }, []error{dbcrypt.ErrDecryptionFailed, dbcrypt.ErrInvalidKey}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			for _, want := range tt.want {
				assert.ErrorIs(t, err, want)
			}
		})
	}
}

func TestPermissionDenied(t *testing.T) {
	server, _ := mockVaultServer(t)
	ts, err := NewTransitService(Config{Address: server.URL, Token: "revoked"})
	require.NoError(t, err)

	_, err = ts.GetKeyID(context.Background(), "app")
	assert.ErrorIs(t, err, dbcrypt.ErrAuthenticationFailed)
	assert.True(t, dbcrypt.IsAuthError(err))

	_, err = ts.EncryptDEK(context.Background(), "app", []byte("dek"))
	assert.ErrorIs(t, err, dbcrypt.ErrAuthenticationFailed)
}

func TestKeyringWithTransit(t *testing.T) {
	ctx := context.Background()
	ts, fv := newTestTransit(t)

	ring, err := keyring.Open(ctx, ts, "alias/app-kek", keyring.WithDBPath(t.TempDir()))
	require.NoError(t, err)
	defer ring.Close()
	c := keyring.NewCipher(ring)

	sealed, err := c.Encrypt(ctx, "123-45-6789")
	require.NoError(t, err)

	v, err := ring.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, fv.version("app-kek"))

	got, err := c.Decrypt(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, "123-45-6789", got)
}
