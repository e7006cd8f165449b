package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"metaapi-trading-bot/config"
)

var ErrCredentialsNotFound = errors.New("metaapi credentials not found")

// Credentials is the MetaAPI secret: the API token and the MetaAPI account id
// of each platform
type Credentials struct {
	Token    string            `json:"token"`
	Accounts map[string]string `json:"accounts"` // platform name -> account id
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	mu     sync.RWMutex
	cached *Credentials
}

// NewClient creates a new Vault client. A disabled client keeps credentials
// in memory only.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if cfg.MountPath == "" {
		cfg.MountPath = "secret"
	}
	if cfg.SecretPath == "" {
		cfg.SecretPath = "trading-bot"
	}
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
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
	}, nil
}

// StoreCredentials writes the MetaAPI credentials
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	if c.config.Enabled {
		accounts := make(map[string]interface{}, len(creds.Accounts))
		for name, id := range creds.Accounts {
			accounts[name] = id
		}
		secretData := map[string]interface{}{
			"data": map[string]interface{}{
				"token":    creds.Token,
				"accounts": accounts,
			},
		}
		if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(), secretData); err != nil {
			return fmt.Errorf("failed to store credentials in vault: %w", err)
		}
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
	return nil
}

// GetCredentials reads the MetaAPI credentials, served from cache after the first read
func (c *Client) GetCredentials(ctx context.Context) (*Credentials, error) {
	c.mu.RLock()
	cached := c.cached
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	if !c.config.Enabled {
		return nil, fmt.Errorf("%w: vault is disabled", ErrCredentialsNotFound)
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, ErrCredentialsNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	creds := &Credentials{
		Token:    getString(data, "token"),
		Accounts: make(map[string]string),
	}
	if accounts, ok := data["accounts"].(map[string]interface{}); ok {
		for name, v := range accounts {
			if id, ok := v.(string); ok && id != "" {
				creds.Accounts[name] = id
			}
		}
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()
	return creds, nil
}

// DeleteCredentials removes the stored secret and its versions
func (c *Client) DeleteCredentials(ctx context.Context) error {
	c.ClearCache()
	if !c.config.Enabled {
		return nil
	}
	if _, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath()); err != nil {
		return fmt.Errorf("failed to delete credentials from vault: %w", err)
	}
	return nil
}

// ApplyTo overlays the stored token and account ids on the MetaAPI config.
// Accounts named in the secret but absent from the config are added with the
// broker inferred from the platform name.
func (c *Client) ApplyTo(ctx context.Context, cfg *config.MetaAPIConfig) error {
	creds, err := c.GetCredentials(ctx)
	if err != nil {
		return err
	}
	if creds.Token != "" {
		cfg.Token = creds.Token
	}

	seen := make(map[string]bool, len(cfg.Accounts))
	for i := range cfg.Accounts {
		name := cfg.Accounts[i].Name
		seen[name] = true
		if id, ok := creds.Accounts[name]; ok {
			cfg.Accounts[i].AccountID = id
		}
	}
	for name, id := range creds.Accounts {
		if !seen[name] {
			cfg.Accounts = append(cfg.Accounts, config.PlatformAccount{Name: name, AccountID: id})
		}
	}
	return nil
}

// ClearCache drops the cached credentials
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
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

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s/metaapi", c.config.MountPath, c.config.SecretPath)
}

func (c *Client) metadataPath() string {
	return fmt.Sprintf("%s/metadata/%s/metaapi", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
