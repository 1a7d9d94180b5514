// Package hashicorp implements dbcrypt.KeyManagementService on the
// HashiCorp Vault Transit engine.
//
// Transit wraps and unwraps data keys without ever exposing the key
// encryption key. Key names map to KEK aliases; an "alias/" prefix is
// stripped, so "alias/billing" and "billing" name the same Transit key.
//
// # Setup
//
//	vault secrets enable transit
//
// # Authentication
//
// A static token is used when VAULT_TOKEN is set. Otherwise the service logs
// in with AppRole (VAULT_ROLE_ID and VAULT_SECRET_ID) and keeps the token
// renewed in the background until Close is called.
//
//	VAULT_ADDR           Vault address, e.g. https://vault.example.com:8200
//	VAULT_NAMESPACE      Vault Enterprise namespace (optional)
//	VAULT_TOKEN          static token
//	VAULT_ROLE_ID        AppRole role ID
//	VAULT_SECRET_ID      AppRole secret ID
//	VAULT_TRANSIT_MOUNT  Transit mount path (default "transit")
//
// # Policy
//
//	path "transit/encrypt/*" {
//	  capabilities = ["update"]
//	}
//	path "transit/decrypt/*" {
//	  capabilities = ["update"]
//	}
//	path "transit/keys/*" {
//	  capabilities = ["create", "read", "update"]
//	}
//
// # Rotation
//
// CreateKey on an existing key rotates it in place. Transit ciphertext
// carries the key version ("vault:v2:..."), so data keys wrapped under older
// versions keep unwrapping after a keyring rotation.
//
// # Usage
//
//	kms, err := hashicorp.NewTransitService(hashicorp.ConfigFromEnvironment())
//	if err != nil {
//		return err
//	}
//	defer kms.Close()
//
//	ring, err := keyring.Open(ctx, kms, "alias/billing")
package hashicorp
