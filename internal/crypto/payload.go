package crypto

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned when a string is not a ciphertext payload.
var ErrMalformedPayload = errors.New("malformed payload")

// Payload is the stored form of an encrypted value:
// base64(JSON{"kid","iv","value"}). KeyID names the key that sealed Value and
// is bound to it as additional authenticated data.
type Payload struct {
	KeyID string `json:"kid"`
	IV    []byte `json:"iv"`
	Value []byte `json:"value"`
}

// Seal encrypts plaintext under key and returns the encoded payload.
func Seal(ctx context.Context, de *DataEncryption, keyID string, key, plaintext []byte) (string, error) {
	sealed, err := de.EncryptData(ctx, plaintext, key, []byte(keyID))
	if err != nil {
		return "", err
	}
	p := Payload{KeyID: keyID, IV: sealed[:NonceSize], Value: sealed[NonceSize:]}
	return p.Encode()
}

// Open decrypts p with key.
func Open(ctx context.Context, de *DataEncryption, p Payload, key []byte) ([]byte, error) {
	sealed := make([]byte, 0, len(p.IV)+len(p.Value))
	sealed = append(sealed, p.IV...)
	sealed = append(sealed, p.Value...)
	return de.DecryptData(ctx, sealed, key, []byte(p.KeyID))
}

// Encode returns the base64 JSON form of the payload.
func (p Payload) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// ParsePayload decodes s. It fails for any string that was not produced by Encode.
func ParsePayload(s string) (Payload, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: not base64", ErrMalformedPayload)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.KeyID == "" || len(p.IV) != NonceSize || len(p.Value) == 0 {
		return Payload{}, fmt.Errorf("%w: missing fields", ErrMalformedPayload)
	}
	return p, nil
}
