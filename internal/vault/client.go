package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/vault/api"
)

// ErrSecretNotFound is returned by GetSecret for unwritten paths.
var ErrSecretNotFound = errors.New("secret not found")

// Client wraps the HashiCorp Vault API for the transit operations the
// application uses: key setup and data-key wrapping.
type Client struct {
	client       *api.Client
	transitMount string
}

// Config holds Vault configuration
type Config struct {
	Address      string
	Token        string
	TransitMount string
}

// NewClient creates a new Vault client and ensures the transit engine
// is mounted.
func NewClient(cfg *Config) (*Client, error) {
	apiConfig := api.DefaultConfig()
	apiConfig.Address = cfg.Address

	inner, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	inner.SetToken(cfg.Token)

	c := &Client{client: inner, transitMount: cfg.TransitMount}
	if err := c.mountTransit(); err != nil {
		return nil, fmt.Errorf("failed to initialize transit engine: %w", err)
	}
	return c, nil
}

func (c *Client) mountTransit() error {
	ctx := context.Background()

	mounts, err := c.client.Sys().ListMountsWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to list mounts: %w", err)
	}
	if _, mounted := mounts[c.transitMount+"/"]; mounted {
		return nil
	}

	return c.client.Sys().MountWithContext(ctx, c.transitMount, &api.MountInput{
		Type:        "transit",
		Description: "Transit encryption for ISMS data",
		Config: api.MountConfigInput{
			DefaultLeaseTTL: "768h",
			MaxLeaseTTL:     "8760h",
		},
	})
}

// write posts to a logical path and returns the response secret.
func (c *Client) write(path string, data map[string]any) (*api.Secret, error) {
	return c.client.Logical().WriteWithContext(context.Background(), path, data)
}

// b64Field decodes a base64 string field from a secret's data.
func b64Field(secret *api.Secret, field string) ([]byte, error) {
	encoded, ok := secret.Data[field].(string)
	if !ok {
		return nil, fmt.Errorf("missing %s in transit response", field)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", field, err)
	}
	return raw, nil
}

// EnsureKey creates the named transit key if it does not exist. Transit
// key creation is idempotent.
func (c *Client) EnsureKey(keyName string) error {
	path := fmt.Sprintf("%s/keys/%s", c.transitMount, keyName)
	if _, err := c.write(path, map[string]any{
		"type":       "aes256-gcm96",
		"exportable": false,
	}); err != nil {
		return fmt.Errorf("failed to create key %s: %w", keyName, err)
	}
	return nil
}

// GenerateDataKey asks transit for a fresh 256-bit data encryption key.
// The plaintext form is used in memory; the wrapped form is safe to
// persist and can only be opened by UnwrapDataKey.
func (c *Client) GenerateDataKey(keyName string) (plaintext []byte, wrapped string, err error) {
	path := fmt.Sprintf("%s/datakey/plaintext/%s", c.transitMount, keyName)
	secret, err := c.write(path, map[string]any{"bits": 256})
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate data key: %w", err)
	}

	plaintext, err = b64Field(secret, "plaintext")
	if err != nil {
		return nil, "", err
	}
	wrapped, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, "", errors.New("missing ciphertext in transit response")
	}
	return plaintext, wrapped, nil
}

// UnwrapDataKey decrypts a wrapped data encryption key.
func (c *Client) UnwrapDataKey(keyName, wrapped string) ([]byte, error) {
	path := fmt.Sprintf("%s/decrypt/%s", c.transitMount, keyName)
	secret, err := c.write(path, map[string]any{"ciphertext": wrapped})
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap data key: %w", err)
	}
	return b64Field(secret, "plaintext")
}

// StoreSecret stores a secret in Vault KV v2
func (c *Client) StoreSecret(path string, data map[string]any) error {
	if _, err := c.write("secret/data/"+path, map[string]any{"data": data}); err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}
	return nil
}

// GetSecret retrieves a secret from Vault KV v2
func (c *Client) GetSecret(path string) (map[string]any, error) {
	secret, err := c.client.Logical().ReadWithContext(context.Background(), "secret/data/"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrSecretNotFound
	}

	data, ok := secret.Data["data"].(map[string]any)
	if !ok {
		return nil, errors.New("invalid secret data format")
	}
	return data, nil
}

// Health checks Vault health status
func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if !health.Initialized {
		return errors.New("vault is not initialized")
	}
	if health.Sealed {
		return errors.New("vault is sealed")
	}
	return nil
}

// EncryptLocal performs AES-256-GCM encryption with a random nonce.
func EncryptLocal(plaintext, key []byte, additionalData []byte) (ciphertext []byte, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("nonce generation failed: %w", err)
	}

	return gcm.Seal(nil, nonce, plaintext, additionalData), nonce, nil
}

// DecryptLocal performs AES-256-GCM decryption.
func DecryptLocal(ciphertext, key, nonce []byte, additionalData []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM creation failed: %w", err)
	}
	return gcm, nil
}
