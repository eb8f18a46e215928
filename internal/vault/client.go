package vault

import (
	"context"
	"fmt"
	"sync"

	"mt5-signal-bot/config"

	"github.com/hashicorp/vault/api"
)

// BridgeCredentials holds the secrets the terminal bridge needs
type BridgeCredentials struct {
	Token   string `json:"token"`
	Account string `json:"account"`
}

// GatewayCredentials holds the secrets the message gateway needs
type GatewayCredentials struct {
	Token   string `json:"token"`
	Session string `json:"session"`
}

// Client wraps the HashiCorp Vault client for credential lookups
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu    sync.RWMutex
	cache map[string]map[string]interface{} // secret name -> data cache
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config: cfg,
			cache:  make(map[string]map[string]interface{}),
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
		cache:  make(map[string]map[string]interface{}),
	}, nil
}

// BridgeCredentials reads the terminal-bridge credentials from Vault
func (c *Client) BridgeCredentials(ctx context.Context) (*BridgeCredentials, error) {
	data, err := c.secret(ctx, "bridge")
	if err != nil {
		return nil, err
	}
	return &BridgeCredentials{
		Token:   getString(data, "token"),
		Account: getString(data, "account"),
	}, nil
}

// GatewayCredentials reads the message-gateway credentials from Vault
func (c *Client) GatewayCredentials(ctx context.Context) (*GatewayCredentials, error) {
	data, err := c.secret(ctx, "gateway")
	if err != nil {
		return nil, err
	}
	return &GatewayCredentials{
		Token:   getString(data, "token"),
		Session: getString(data, "session"),
	}, nil
}

// JWTSecret reads the operator API signing secret from Vault
func (c *Client) JWTSecret(ctx context.Context) (string, error) {
	data, err := c.secret(ctx, "api")
	if err != nil {
		return "", err
	}
	return getString(data, "jwt_secret"), nil
}

// StoreSecret writes a named secret. Used for provisioning and tests.
func (c *Client) StoreSecret(ctx context.Context, name string, data map[string]interface{}) error {
	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[name] = data
		c.mu.Unlock()
		return nil
	}

	payload := map[string]interface{}{"data": data}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(name), payload); err != nil {
		return fmt.Errorf("failed to store secret %q in vault: %w", name, err)
	}

	c.mu.Lock()
	c.cache[name] = data
	c.mu.Unlock()
	return nil
}

// DeleteSecret removes a named secret
func (c *Client) DeleteSecret(ctx context.Context, name string) error {
	c.mu.Lock()
	delete(c.cache, name)
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	if _, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(name)); err != nil {
		return fmt.Errorf("failed to delete secret %q from vault: %w", name, err)
	}
	return nil
}

// ClearCache clears the in-memory secret cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]map[string]interface{})
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func (c *Client) secret(ctx context.Context, name string) (map[string]interface{}, error) {
	c.mu.RLock()
	if cached, ok := c.cache[name]; ok {
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return nil, fmt.Errorf("secret %q not found and vault is disabled", name)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %q from vault: %w", name, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("secret %q not found", name)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format for %q", name)
	}

	c.mu.Lock()
	c.cache[name] = data
	c.mu.Unlock()
	return data, nil
}

// secretPath returns the KV v2 data path for a named secret
func (c *Client) secretPath(name string) string {
	return fmt.Sprintf("%s/data/signal-bot/%s", c.config.MountPath, name)
}

// metadataPath returns the KV v2 metadata path for a named secret
func (c *Client) metadataPath(name string) string {
	return fmt.Sprintf("%s/metadata/signal-bot/%s", c.config.MountPath, name)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// NewMockClient creates a disabled client backed only by the cache, for testing
func NewMockClient() *Client {
	return &Client{
		config: config.VaultConfig{Enabled: false},
		cache:  make(map[string]map[string]interface{}),
	}
}
