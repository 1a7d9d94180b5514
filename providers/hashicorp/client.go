package hashicorp

import (
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/vault/api"
	"go.uber.org/zap"

	"github.com/hengadev/dbcrypt"
)

const defaultMountPath = "transit"

// Config configures the Vault connection. Empty fields are left to the Vault
// client defaults; ConfigFromEnvironment fills them from VAULT_* variables.
type Config struct {
	Address   string
	Namespace string

	// Token is used directly when set. Otherwise RoleID and SecretID are
	// exchanged for a token through AppRole login.
	Token    string
	RoleID   string
	SecretID string

	// MountPath is where the Transit engine is mounted. Defaults to "transit".
	MountPath string

	Logger *zap.Logger
}

// ConfigFromEnvironment reads the Vault connection settings.
//
// Environment Variables:
//   - VAULT_ADDR: Vault server address (required, e.g., "https://vault.example.com")
//   - VAULT_NAMESPACE: Vault namespace for HCP Vault (optional, e.g., "admin/example")
//   - VAULT_TOKEN: Direct Vault token (optional, alternative to AppRole)
//   - VAULT_ROLE_ID: AppRole role ID for authentication (optional, requires VAULT_SECRET_ID)
//   - VAULT_SECRET_ID: AppRole secret ID for authentication (optional, requires VAULT_ROLE_ID)
//   - VAULT_TRANSIT_MOUNT: Transit engine mount path (optional, defaults to "transit")
func ConfigFromEnvironment() Config {
	return Config{
		Address:   os.Getenv("VAULT_ADDR"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Token:     os.Getenv("VAULT_TOKEN"),
		RoleID:    os.Getenv("VAULT_ROLE_ID"),
		SecretID:  os.Getenv("VAULT_SECRET_ID"),
		MountPath: os.Getenv("VAULT_TRANSIT_MOUNT"),
	}
}

// newVaultClient creates an authenticated Vault client.
//
// Authentication Priority:
//  1. If Token is set, uses token directly
//  2. If RoleID and SecretID are set, uses AppRole authentication
//  3. Otherwise, returns error (no authentication method available)
//
// The AppRole login secret is returned so renewable tokens can be watched.
func newVaultClient(cfg Config) (*api.Client, *api.Secret, error) {
	config := api.DefaultConfig()
	if cfg.Address != "" {
		config.Address = cfg.Address
	}
	if config.Address == "" {
		return nil, nil, fmt.Errorf("%w: Vault address is required (set VAULT_ADDR)", dbcrypt.ErrInvalidConfiguration)
	}
	config.HttpClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to create Vault client: %w", dbcrypt.ErrKMSUnavailable, err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
		return client, nil, nil
	}

	if cfg.RoleID != "" && cfg.SecretID != "" {
		// Drop any token picked up from the environment before logging in.
		client.ClearToken()
		resp, err := client.Logical().Write("auth/approle/login", map[string]any{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("%w: failed to login with AppRole: %w", dbcrypt.ErrAuthenticationFailed, err)
		}
		if resp == nil || resp.Auth == nil {
			return nil, nil, fmt.Errorf("%w: no auth info returned from AppRole login", dbcrypt.ErrAuthenticationFailed)
		}
		client.SetToken(resp.Auth.ClientToken)
		return client, resp, nil
	}

	return nil, nil, fmt.Errorf("%w: no Vault authentication method configured (set VAULT_TOKEN or VAULT_ROLE_ID+VAULT_SECRET_ID)",
		dbcrypt.ErrInvalidConfiguration)
}
