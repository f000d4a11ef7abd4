package vault

import (
	"context"
	"fmt"
	"sync"

	"ict-engine/config"
	"ict-engine/internal/logging"

	"github.com/hashicorp/vault/api"
)

// Secrets are the service credentials that may live in Vault
type Secrets struct {
	JWTSecret            string `json:"jwt_secret"`
	OperatorPasswordHash string `json:"operator_password_hash"`
	DBPassword           string `json:"db_password"`
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	logger *logging.Logger
	mu     sync.RWMutex
	cached *Secrets
}

// NewClient creates a new Vault client. A disabled config yields a client
// that always resolves to the fallback values.
func NewClient(cfg config.VaultConfig, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{config: cfg, logger: logger.WithComponent("vault")}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client
	return c, nil
}

// ResolveSecrets reads the service secret and fills any field Vault does not
// provide from fallback
func (c *Client) ResolveSecrets(ctx context.Context, fallback Secrets) (Secrets, error) {
	if !c.config.Enabled {
		return fallback, nil
	}

	c.mu.RLock()
	cached := c.cached
	c.mu.RUnlock()
	if cached != nil {
		return merge(*cached, fallback), nil
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath())
	if err != nil {
		return fallback, fmt.Errorf("failed to read service secret from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		c.logger.Warn("Service secret not found in vault, using fallback values", "path", c.secretPath())
		return fallback, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return fallback, fmt.Errorf("invalid secret format at %s", c.secretPath())
	}

	resolved := Secrets{
		JWTSecret:            getString(data, "jwt_secret"),
		OperatorPasswordHash: getString(data, "operator_password_hash"),
		DBPassword:           getString(data, "db_password"),
	}

	c.mu.Lock()
	c.cached = &resolved
	c.mu.Unlock()

	c.logger.Info("Resolved service secrets from vault", "path", c.secretPath())
	return merge(resolved, fallback), nil
}

// ClearCache forces the next resolve to hit Vault
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

// secretPath returns the KV v2 data path of the service secret
func (c *Client) secretPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func merge(primary, fallback Secrets) Secrets {
	if primary.JWTSecret == "" {
		primary.JWTSecret = fallback.JWTSecret
	}
	if primary.OperatorPasswordHash == "" {
		primary.OperatorPasswordHash = fallback.OperatorPasswordHash
	}
	if primary.DBPassword == "" {
		primary.DBPassword = fallback.DBPassword
	}
	return primary
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
