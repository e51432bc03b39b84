package securestore

import (
	"encoding/hex"
	"fmt"

	"github.com/cdmx-in/isms-manager-sub001/internal/vault"
)

// Cipher encrypts and decrypts sensitive record fields with a single
// data encryption key. The key comes either from Vault's transit engine
// (the wrapped form is kept in Vault KV so the same key survives
// restarts) or from a locally configured hex key for deployments
// without Vault.
type Cipher struct {
	key []byte
}

const dataKeyPath = "isms/incident-data-key"

// NewVaultCipher loads or creates the data encryption key through
// Vault. The wrapped key is stored under a KV path; the transit key
// itself never leaves Vault.
func NewVaultCipher(client *vault.Client, keyName string) (*Cipher, error) {
	if err := client.EnsureKey(keyName); err != nil {
		return nil, err
	}

	secret, err := client.GetSecret(dataKeyPath)
	if err == nil {
		wrapped, ok := secret["wrapped_key"].(string)
		if !ok {
			return nil, fmt.Errorf("malformed data key secret at %s", dataKeyPath)
		}
		key, err := client.UnwrapDataKey(keyName, wrapped)
		if err != nil {
			return nil, err
		}
		return &Cipher{key: key}, nil
	}
	if err != vault.ErrSecretNotFound {
		return nil, err
	}

	key, wrapped, err := client.GenerateDataKey(keyName)
	if err != nil {
		return nil, err
	}
	if err := client.StoreSecret(dataKeyPath, map[string]interface{}{
		"wrapped_key": wrapped,
	}); err != nil {
		return nil, err
	}

	return &Cipher{key: key}, nil
}

// NewLocalCipher builds a cipher from a hex-encoded 32-byte key.
func NewLocalCipher(keyHex string) (*Cipher, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("data encryption key must be 32 bytes, got %d", len(key))
	}
	return &Cipher{key: key}, nil
}

// Encrypt seals a plaintext field. The additional data binds the
// ciphertext to its owning record so rows cannot be swapped.
func (c *Cipher) Encrypt(plaintext string, additionalData string) (ciphertext, nonce []byte, err error) {
	return vault.EncryptLocal([]byte(plaintext), c.key, []byte(additionalData))
}

// Decrypt opens a sealed field.
func (c *Cipher) Decrypt(ciphertext, nonce []byte, additionalData string) (string, error) {
	plaintext, err := vault.DecryptLocal(ciphertext, c.key, nonce, []byte(additionalData))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
