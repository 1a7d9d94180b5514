// Package dbcrypt provides transparent field-level encryption for entities
// built on an attribute bag.
//
// An entity type declares which of its fields are encryptable. Values written
// to those fields are stored as ciphertext, values read back are plaintext,
// and code that gets, sets or exports entities does not change.
//
// # Key Features
//
//   - Encryption stages installed into an explicit, ordered attribute pipeline
//   - Fail-open transforms: a value that cannot be decrypted is returned as stored
//   - Static application keys with previous-key rotation (KeyCipher)
//   - Envelope encryption with KMS-wrapped data keys and versioned rotation (keyring)
//   - AWS KMS and HashiCorp Vault Transit providers
//   - zap logging and Prometheus metrics through observability hooks
//
// # Quick Start
//
//	schema, _ := attribute.NewSchema("user",
//	    attribute.WithCast("born_on", attribute.CastDate),
//	)
//	cipher, _ := dbcrypt.NewKeyCipherFromStrings(os.Getenv("DBCRYPT_APP_KEY"), nil)
//	users, _ := dbcrypt.NewEntityType(schema, []string{"ssn"}, cipher)
//
//	u, _ := users.New(ctx, map[string]any{"ssn": "123-45-6789"})
//	raw, _ := u.Raw("ssn")      // ciphertext
//	ssn, _ := u.Get(ctx, "ssn") // "123-45-6789"
//	out, _ := u.ToMap(ctx)      // out["ssn"] == "123-45-6789"
//
// # Ordering
//
// On read, an accessor for the field wins and sees the stored ciphertext.
// Otherwise the value is decrypted before casts and date parsing run. On
// write, mutators, date coercion, enum, class and JSON casts and dotted paths
// run first; the value is encrypted last, right before it is stored. Fields
// that are both encryptable and handled by one of those earlier write stages
// are rejected by NewEntityType unless WithCastBypass is given.
//
// # Errors
//
// Get, Set and ToMap never return crypto errors. Use Entity.Inspect to see
// whether a stored value decrypts, and the observability hooks to count
// failures in production.
package dbcrypt
