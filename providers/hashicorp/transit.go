package hashicorp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/hengadev/dbcrypt"
)

// TransitService implements dbcrypt.KeyManagementService using the HashiCorp
// Vault Transit engine. Keys never leave Vault; data keys are wrapped and
// unwrapped remotely.
type TransitService struct {
	client  *api.Client
	mount   string
	logger  *zap.Logger
	watcher *api.LifetimeWatcher
	done    chan struct{}
}

var _ dbcrypt.KeyManagementService = (*TransitService)(nil)

// NewTransitService creates a TransitService. A renewable AppRole token is
// renewed in the background until Close is called.
//
// The Transit Engine must be enabled in Vault before use:
//
//	vault secrets enable transit
func NewTransitService(cfg Config) (*TransitService, error) {
	client, login, err := newVaultClient(cfg)
	if err != nil {
		return nil, err
	}
	t := newTransit(client, cfg)
	if login != nil && login.Auth != nil && login.Auth.Renewable {
		if err := t.watchToken(login); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func newTransit(client *api.Client, cfg Config) *TransitService {
	mount := strings.Trim(cfg.MountPath, "/")
	if mount == "" {
		mount = defaultMountPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransitService{client: client, mount: mount, logger: logger}
}

func (t *TransitService) watchToken(secret *api.Secret) error {
	watcher, err := t.client.NewLifetimeWatcher(&api.LifetimeWatcherInput{Secret: secret})
	if err != nil {
		return fmt.Errorf("%w: token watcher: %w", dbcrypt.ErrAuthenticationFailed, err)
	}
	t.watcher = watcher
	t.done = make(chan struct{})
	go watcher.Start()
	go func() {
		defer close(t.done)
		for {
			select {
			case err := <-watcher.DoneCh():
				if err != nil {
					t.logger.Warn("vault token renewal stopped", zap.Error(err))
				}
				return
			case <-watcher.RenewCh():
				t.logger.Debug("vault token renewed")
			}
		}
	}()
	return nil
}

// GetKeyID returns the Transit key name for alias when the key exists. An
// "alias/" prefix is dropped since Transit key names are flat.
func (t *TransitService) GetKeyID(ctx context.Context, alias string) (string, error) {
	name := keyName(alias)
	if name == "" {
		return "", fmt.Errorf("%w: alias cannot be empty", dbcrypt.ErrInvalidConfiguration)
	}
	resp, err := t.client.Logical().ReadWithContext(ctx, t.path("keys", name))
	if err != nil {
		return "", classify(fmt.Sprintf("read transit key '%s'", name), err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: transit key '%s'", dbcrypt.ErrNotFound, name)
	}
	return name, nil
}

// CreateKey creates the Transit key named by description, or rotates it when
// it already exists. Transit ciphertext carries its key version, so DEKs
// wrapped before a rotation still unwrap.
func (t *TransitService) CreateKey(ctx context.Context, description string) (string, error) {
	name := keyName(description)
	if name == "" {
		return "", fmt.Errorf("%w: description (key name) cannot be empty", dbcrypt.ErrInvalidConfiguration)
	}

	existing, err := t.client.Logical().ReadWithContext(ctx, t.path("keys", name))
	if err != nil {
		return "", classify(fmt.Sprintf("read transit key '%s'", name), err)
	}
	if existing != nil {
		if _, err := t.client.Logical().WriteWithContext(ctx, t.path("keys", name, "rotate"), nil); err != nil {
			return "", classify(fmt.Sprintf("rotate transit key '%s'", name), err)
		}
		t.logger.Info("transit key rotated", zap.String("key_name", name))
		return name, nil
	}

	if _, err := t.client.Logical().WriteWithContext(ctx, t.path("keys", name), map[string]any{
		"type": "aes256-gcm96",
	}); err != nil {
		return "", classify(fmt.Sprintf("create transit key '%s'", name), err)
	}
	t.logger.Info("transit key created", zap.String("key_name", name))
	return name, nil
}

// EncryptDEK wraps a data key. The result is Vault-formatted ciphertext
// such as "vault:v1:...".
func (t *TransitService) EncryptDEK(ctx context.Context, keyID string, plaintextDEK []byte) ([]byte, error) {
	if len(plaintextDEK) == 0 {
		return nil, fmt.Errorf("%w: plaintext cannot be empty", dbcrypt.ErrEncryptionFailed)
	}
	name := keyName(keyID)
	if name == "" {
		return nil, fmt.Errorf("%w: keyID cannot be empty", dbcrypt.ErrInvalidConfiguration)
	}

	resp, err := t.client.Logical().WriteWithContext(ctx, t.path("encrypt", name), map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(plaintextDEK),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrEncryptionFailed, classify(fmt.Sprintf("encrypt with key '%s'", name), err))
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("%w: no response from Vault Transit encrypt", dbcrypt.ErrEncryptionFailed)
	}
	ciphertext, ok := resp.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: ciphertext not found in response", dbcrypt.ErrEncryptionFailed)
	}
	return []byte(ciphertext), nil
}

// DecryptDEK unwraps a data key produced by EncryptDEK.
func (t *TransitService) DecryptDEK(ctx context.Context, keyID string, ciphertextDEK []byte) ([]byte, error) {
	if len(ciphertextDEK) == 0 {
		return nil, fmt.Errorf("%w: ciphertext cannot be empty", dbcrypt.ErrDecryptionFailed)
	}
	name := keyName(keyID)
	if name == "" {
		return nil, fmt.Errorf("%w: keyID cannot be empty", dbcrypt.ErrInvalidConfiguration)
	}

	resp, err := t.client.Logical().WriteWithContext(ctx, t.path("decrypt", name), map[string]any{
		"ciphertext": string(ciphertextDEK),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbcrypt.ErrDecryptionFailed, classify(fmt.Sprintf("decrypt with key '%s'", name), err))
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("%w: no response from Vault Transit decrypt", dbcrypt.ErrDecryptionFailed)
	}
	encoded, ok := resp.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: plaintext not found in response", dbcrypt.ErrDecryptionFailed)
	}
	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode plaintext: %w", dbcrypt.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// Close stops background token renewal.
func (t *TransitService) Close() {
	if t.watcher != nil {
		t.watcher.Stop()
		<-t.done
		t.watcher = nil
	}
}

func (t *TransitService) path(parts ...string) string {
	return t.mount + "/" + strings.Join(parts, "/")
}

func keyName(alias string) string {
	return strings.TrimPrefix(strings.TrimSpace(alias), "alias/")
}

// classify maps Vault response errors to dbcrypt sentinels.
func classify(op string, err error) error {
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s: %w", dbcrypt.ErrAuthenticationFailed, op, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s: %w", dbcrypt.ErrNotFound, op, err)
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s: %w", dbcrypt.ErrInvalidKey, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", dbcrypt.ErrKMSUnavailable, op, err)
}
